package policy

import (
	"fmt"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// LoadFile reads a standalone policy file. The document may be written at the
// top level or nested under a "policy" key, so a full leapdump.yaml works too.
func LoadFile(path string) (*Document, error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("error reading policy file %s: %w", path, err)
	}

	key := ""
	if k.Exists("policy") {
		key = "policy"
	}

	var doc Document
	if err := k.Unmarshal(key, &doc); err != nil {
		return nil, fmt.Errorf("unable to decode policy file %s: %w", path, err)
	}
	return &doc, nil
}
