package catalog

import (
	"embed"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/leapstack-labs/leapdump/internal/policy"
	"github.com/leapstack-labs/leapdump/pkg/core"
	"gopkg.in/yaml.v3"
)

//go:embed presets/*.yaml
var presetFS embed.FS

// Fragment is one composable piece of catalog knowledge: dependency edges plus
// baseline rules for a group of tables. Optional fragments describe table
// groups that may be absent (e.g. a plugin's tables); their edges are dropped
// when a table is missing instead of failing the load.
type Fragment struct {
	Name     string                          `koanf:"name" yaml:"name"`
	Optional bool                            `koanf:"optional" yaml:"optional"`
	Edges    []core.DependencyEdge           `koanf:"edges" yaml:"edges"`
	Exclude  []string                        `koanf:"exclude" yaml:"exclude"`
	Where    map[string]policy.PredicateSpec `koanf:"where" yaml:"where"`
	// Combine sets the default multi-parent mode of a table ("or", "and").
	Combine map[string]string `koanf:"combine" yaml:"combine"`
}

// WithPrefix returns a copy with every table name prefixed.
func (f Fragment) WithPrefix(prefix string) Fragment {
	if prefix == "" {
		return f
	}
	out := Fragment{Name: f.Name, Optional: f.Optional}
	for _, e := range f.Edges {
		e.ChildTable = prefix + e.ChildTable
		e.ParentTable = prefix + e.ParentTable
		out.Edges = append(out.Edges, e)
	}
	for _, t := range f.Exclude {
		out.Exclude = append(out.Exclude, prefix+t)
	}
	if f.Where != nil {
		out.Where = make(map[string]policy.PredicateSpec, len(f.Where))
		for t, spec := range f.Where {
			out.Where[prefix+t] = spec
		}
	}
	if f.Combine != nil {
		out.Combine = make(map[string]string, len(f.Combine))
		for t, mode := range f.Combine {
			out.Combine[prefix+t] = mode
		}
	}
	return out
}

// Preset returns the embedded fragment with the given name.
func Preset(name string) (Fragment, error) {
	data, err := presetFS.ReadFile(path.Join("presets", name+".yaml"))
	if err != nil {
		return Fragment{}, fmt.Errorf("unknown catalog preset %q (available: %s)", name, strings.Join(PresetNames(), ", "))
	}
	var f Fragment
	if err := yaml.Unmarshal(data, &f); err != nil {
		return Fragment{}, fmt.Errorf("invalid catalog preset %q: %w", name, err)
	}
	if f.Name == "" {
		f.Name = name
	}
	return f, nil
}

// PresetNames lists the embedded presets.
func PresetNames() []string {
	entries, _ := presetFS.ReadDir("presets")
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, strings.TrimSuffix(e.Name(), ".yaml"))
	}
	sort.Strings(names)
	return names
}

// Spec is the catalog section of leapdump.yaml.
type Spec struct {
	// Presets are merged first, in order, with TablePrefix applied.
	Presets     []string `koanf:"presets"`
	TablePrefix string   `koanf:"table_prefix"`

	// Fragments, Edges and Exclude use literal table names.
	Fragments []Fragment            `koanf:"fragments"`
	Edges     []core.DependencyEdge `koanf:"edges"`
	Exclude   []string              `koanf:"exclude"`
}

// Resolve expands presets and inline entries into the ordered fragment list.
func (s Spec) Resolve() ([]Fragment, error) {
	var out []Fragment
	for _, name := range s.Presets {
		f, err := Preset(name)
		if err != nil {
			return nil, err
		}
		out = append(out, f.WithPrefix(s.TablePrefix))
	}
	for i, f := range s.Fragments {
		if f.Name == "" {
			f.Name = fmt.Sprintf("fragments[%d]", i)
		}
		out = append(out, f)
	}
	if len(s.Edges) > 0 || len(s.Exclude) > 0 {
		out = append(out, Fragment{Name: "config", Edges: s.Edges, Exclude: s.Exclude})
	}
	return out, nil
}
