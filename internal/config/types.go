// Package config provides the shared source connection types for leapdump.
// It is decoupled from CLI concerns so that tests and other entry points can
// load a project's connection settings without cobra.
package config

import (
	"fmt"
	"strings"

	"github.com/leapstack-labs/leapdump/pkg/adapter"
	"github.com/leapstack-labs/leapdump/pkg/dialect"
)

// SourceConfig holds the connection settings of the database being exported.
type SourceConfig struct {
	Type string `koanf:"type"` // mysql, postgres, sqlite, duckdb

	// File-based databases (DuckDB, SQLite) use Database as the file path.
	Database string `koanf:"database"`

	// Network databases
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	User     string `koanf:"user"`
	Password string `koanf:"password"`

	Schema string `koanf:"schema"`

	// Additional driver-specific options
	Options map[string]string `koanf:"options"`

	// Params holds adapter-specific configuration (e.g. DuckDB settings)
	Params map[string]any `koanf:"params"`
}

// DefaultSchemaForType returns the default schema for a database type.
// It looks up the dialect in the registry; if not found, returns "main" as fallback.
func DefaultSchemaForType(dbType string) string {
	if d, ok := dialect.Get(dbType); ok && d.DefaultSchema != "" {
		return d.DefaultSchema
	}
	return "main"
}

// IsFileBased reports whether the source type is addressed by a file path.
func (s *SourceConfig) IsFileBased() bool {
	switch strings.ToLower(s.Type) {
	case "sqlite", "duckdb":
		return true
	}
	return false
}

// Validate checks if the source configuration is usable.
// It uses the adapter registry to determine which adapter types are available.
func (s *SourceConfig) Validate() error {
	if s.Type == "" {
		return fmt.Errorf("source type is required")
	}

	if !adapter.IsRegistered(strings.ToLower(s.Type)) {
		return &adapter.UnknownAdapterError{
			Type:      s.Type,
			Available: adapter.ListAdapters(),
		}
	}

	if s.Database == "" {
		if s.IsFileBased() {
			return fmt.Errorf("source.database must name the %s file", s.Type)
		}
		return fmt.Errorf("source.database is required for %s", s.Type)
	}
	if !s.IsFileBased() && s.Host == "" {
		return fmt.Errorf("source.host is required for %s", s.Type)
	}
	return nil
}

// ApplyDefaults fills the schema and port from the source type.
func (s *SourceConfig) ApplyDefaults() {
	if s == nil {
		return
	}
	s.Type = strings.ToLower(s.Type)

	if s.Schema == "" && s.Type != "mysql" {
		s.Schema = DefaultSchemaForType(s.Type)
	}

	if s.Port == 0 {
		switch s.Type {
		case "postgres":
			s.Port = 5432
		case "mysql":
			s.Port = 3306
		}
	}
}

// ToAdapterConfig converts the settings into the adapter package's form.
func (s *SourceConfig) ToAdapterConfig() adapter.Config {
	cfg := adapter.Config{
		Type:     s.Type,
		Host:     s.Host,
		Port:     s.Port,
		Database: s.Database,
		Username: s.User,
		Password: s.Password,
		Schema:   s.Schema,
		Options:  s.Options,
		Params:   s.Params,
	}
	if s.IsFileBased() {
		cfg.Path = s.Database
	}
	return cfg
}

// String renders the source for logs without credentials.
func (s *SourceConfig) String() string {
	if s.IsFileBased() {
		return fmt.Sprintf("%s:%s", s.Type, s.Database)
	}
	if s.User != "" {
		return fmt.Sprintf("%s://%s@%s:%d/%s", s.Type, s.User, s.Host, s.Port, s.Database)
	}
	return fmt.Sprintf("%s://%s:%d/%s", s.Type, s.Host, s.Port, s.Database)
}
