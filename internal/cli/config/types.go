// Package config provides configuration management for the leapdump CLI.
//
// This package extends the shared source configuration from internal/config
// with the catalog, policy and export sections of leapdump.yaml.
package config

import (
	"github.com/leapstack-labs/leapdump/internal/catalog"
	sharedcfg "github.com/leapstack-labs/leapdump/internal/config"
	"github.com/leapstack-labs/leapdump/internal/policy"
)

// SourceConfig is an alias for the shared source configuration.
// This allows CLI code to use config.SourceConfig without importing internal/config.
type SourceConfig = sharedcfg.SourceConfig

// Config holds all CLI configuration options.
type Config struct {
	Source       *SourceConfig        `koanf:"source"`
	Catalog      catalog.Spec         `koanf:"catalog"`
	Policy       policy.Document      `koanf:"policy"`
	Export       ExportConfig         `koanf:"export"`
	Environment  string               `koanf:"environment"`
	Verbose      bool                 `koanf:"verbose"`
	OutputFormat string               `koanf:"format"`
	Environments map[string]EnvConfig `koanf:"environments"`

	// ProjectRoot is the directory relative paths are resolved against.
	ProjectRoot string `koanf:"-"`
}

// ExportConfig holds the settings of the export command.
type ExportConfig struct {
	Output        string `koanf:"output"`
	Concurrency   int    `koanf:"concurrency"`
	HashSalt      string `koanf:"hash_salt"`
	RedactSecrets bool   `koanf:"redact_secrets"`
	StatePath     string `koanf:"state_path"`
	Progress      string `koanf:"progress"`
	BatchSize     int    `koanf:"batch_size"`
	ForeignKeys   bool   `koanf:"foreign_keys"`
}

// EnvConfig holds environment-specific configuration overrides.
type EnvConfig struct {
	Source *SourceConfig `koanf:"source"`
	Output string        `koanf:"output"`
}

// Progress reporter names accepted by export.progress.
const (
	ProgressAuto = "auto"
	ProgressBar  = "bar"
	ProgressJSON = "json"
	ProgressLog  = "log"
	ProgressNone = "none"
)

// Default configuration values.
const (
	DefaultStateFile   = ".leapdump/state.db"
	DefaultEnv         = "dev"
	DefaultOutput      = "auto" // Auto-detect: TTY=text, non-TTY=markdown
	DefaultConcurrency = 4
	DefaultBatchSize   = 100
)
