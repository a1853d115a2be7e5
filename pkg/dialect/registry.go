package dialect

import (
	"maps"
	"slices"
	"strings"
	"sync"
)

var (
	registryMu sync.RWMutex
	byName     = map[string]*Dialect{}
)

// Register makes d available to Get under its lower-cased name.
func Register(d *Dialect) {
	registryMu.Lock()
	defer registryMu.Unlock()
	byName[strings.ToLower(d.Name)] = d
}

// Get looks a dialect up by name, ignoring case.
func Get(name string) (*Dialect, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	d, ok := byName[strings.ToLower(name)]
	return d, ok
}

// List returns the registered dialect names in order.
func List() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return slices.Sorted(maps.Keys(byName))
}
