package duckdb

import (
	"fmt"

	"github.com/go-viper/mapstructure/v2"
)

// Params holds DuckDB-specific source options, decoded from
// source.params in leapdump.yaml.
type Params struct {
	// ReadOnly opens the file with access_mode=READ_ONLY. Ignored for
	// in-memory databases.
	ReadOnly bool `mapstructure:"read_only"`

	// Extensions to install and load before reading (e.g., "json", "icu")
	Extensions []string `mapstructure:"extensions"`

	// Settings to apply at session level (e.g., memory_limit, threads)
	Settings map[string]string `mapstructure:"settings"`
}

// DSN returns the connection string for path under these params.
func (p *Params) DSN(path string) string {
	if p.ReadOnly && path != ":memory:" {
		return path + "?access_mode=READ_ONLY"
	}
	return path
}

// ParseParams decodes the params map into Params. Unknown keys are an error.
func ParseParams(raw map[string]any) (*Params, error) {
	p := &Params{}
	if len(raw) == 0 {
		return p, nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           p,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(raw); err != nil {
		return nil, fmt.Errorf("invalid duckdb params: %w", err)
	}
	return p, nil
}
