package config

import (
	"errors"
	"fmt"
	"slices"
)

var progressModes = []string{ProgressAuto, ProgressBar, ProgressJSON, ProgressLog, ProgressNone}

// Validate checks the settings every command relies on.
func (c *Config) Validate() error {
	var errs []error
	if c.Export.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("export.concurrency must be at least 1, got %d", c.Export.Concurrency))
	}
	if c.Export.BatchSize < 1 {
		errs = append(errs, fmt.Errorf("export.batch_size must be at least 1, got %d", c.Export.BatchSize))
	}
	if !slices.Contains(progressModes, c.Export.Progress) {
		errs = append(errs, fmt.Errorf("export.progress must be one of %v, got %q", progressModes, c.Export.Progress))
	}
	return errors.Join(errs...)
}

// ValidateSource checks the source section. Commands that read the database
// call it; help and version do not.
func (c *Config) ValidateSource() error {
	if c.Source == nil {
		return fmt.Errorf("no source configured\nHint: add a source section to leapdump.yaml or set LEAPDUMP_SOURCE_TYPE and LEAPDUMP_SOURCE_DATABASE")
	}
	if err := c.Source.Validate(); err != nil {
		return fmt.Errorf("invalid source configuration: %w", err)
	}
	return nil
}

// ValidateExport checks what the export command needs beyond the source.
func (c *Config) ValidateExport() error {
	if err := c.ValidateSource(); err != nil {
		return err
	}
	if c.Export.Output == "" {
		return fmt.Errorf("no output destination\nHint: pass --output or set export.output")
	}
	return nil
}
