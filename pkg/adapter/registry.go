package adapter

import (
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
)

// Factory builds an unconnected Source. A nil logger means discard.
type Factory func(*slog.Logger) Source

var (
	registryMu sync.RWMutex
	factories  = map[string]Factory{}
)

// Register makes a source type available under name. Adapter packages call it
// from init, so importing a package for side effects enables its type.
func Register(name string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	factories[name] = f
}

// Get returns the factory registered under name.
func Get(name string) (Factory, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	f, ok := factories[name]
	return f, ok
}

// IsRegistered reports whether name is a known source type.
func IsRegistered(name string) bool {
	_, ok := Get(name)
	return ok
}

// ListAdapters returns the registered source types in name order.
func ListAdapters() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return slices.Sorted(maps.Keys(factories))
}

// NewAdapter builds the source named by cfg.Type. It does not connect.
func NewAdapter(cfg Config, logger *slog.Logger) (Source, error) {
	if cfg.Type == "" {
		return nil, fmt.Errorf("source type not specified")
	}
	f, ok := Get(cfg.Type)
	if !ok {
		return nil, &UnknownAdapterError{Type: cfg.Type, Available: ListAdapters()}
	}
	return f(logger), nil
}

// UnknownAdapterError names a source type no imported adapter registered.
type UnknownAdapterError struct {
	Type      string
	Available []string
}

func (e *UnknownAdapterError) Error() string {
	return fmt.Sprintf("unknown source type %q\nAvailable types: %v\nHint: check source.type in leapdump.yaml", e.Type, e.Available)
}
