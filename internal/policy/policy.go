// Package policy turns the declarative policy section of leapdump.yaml into a
// core.ExportPolicy. Every malformed or contradictory entry is reported as a
// *core.PolicyError naming its location in the document.
package policy

import (
	"errors"
	"fmt"
	"sort"

	"github.com/leapstack-labs/leapdump/pkg/core"
)

// Document is the policy section of the configuration file.
type Document struct {
	Root          RootSpec                     `koanf:"root"`
	Criteria      *PredicateSpec               `koanf:"criteria"`
	Combine       string                       `koanf:"combine"`
	CombineTables map[string]string            `koanf:"combine_tables"`
	Exclude       []string                     `koanf:"exclude"`
	Include       []string                     `koanf:"include"`
	Where         map[string]PredicateSpec     `koanf:"where"`
	Redact        map[string]map[string]string `koanf:"redact"`
	Redactions    []RedactionEntry             `koanf:"redactions"`
	Secrets       []RedactionEntry             `koanf:"secrets"`
	Hooks         []string                     `koanf:"hooks"`
}

// RootSpec names the primary entity table and its key column.
type RootSpec struct {
	Table string `koanf:"table"`
	Key   string `koanf:"key"`
}

// RedactionEntry is a single, optionally conditional, column redaction.
type RedactionEntry struct {
	Table  string         `koanf:"table"`
	Column string         `koanf:"column"`
	Action string         `koanf:"action"`
	When   *PredicateSpec `koanf:"when"`
}

// BuildOptions carries run-time switches that shape the policy.
type BuildOptions struct {
	RedactSecrets bool
	HashSalt      string
}

// Build validates the document and produces the export policy. All problems
// found are returned together.
func (d *Document) Build(opts BuildOptions) (*core.ExportPolicy, error) {
	var errs []error
	fail := func(err error) { errs = append(errs, err) }

	p := &core.ExportPolicy{
		RootTable:     d.Root.Table,
		RootKey:       d.Root.Key,
		CombineTables: make(map[string]core.Combine),
		Overrides:     make(map[string]core.FilterRule),
		RedactSecrets: opts.RedactSecrets,
		HashSalt:      opts.HashSalt,
	}

	if d.Root.Table == "" {
		fail(&core.PolicyError{Fragment: "policy.root.table", Reason: "root table is required"})
	}
	if d.Root.Key == "" {
		fail(&core.PolicyError{Fragment: "policy.root.key", Reason: "root key column is required"})
	}

	if d.Criteria != nil {
		crit, err := d.Criteria.Build("policy.criteria")
		if err != nil {
			fail(err)
		}
		p.Criteria = crit
	}

	combine, err := core.ParseCombine(d.Combine)
	if err != nil {
		fail(&core.PolicyError{Fragment: "policy.combine", Reason: err.Error()})
	}
	p.Combine = combine
	for _, table := range sortedKeys(d.CombineTables) {
		c, err := core.ParseCombine(d.CombineTables[table])
		if err != nil {
			fail(&core.PolicyError{Fragment: "policy.combine_tables." + table, Table: table, Reason: err.Error()})
			continue
		}
		p.CombineTables[table] = c
	}

	sources := make(map[string]string)
	claim := func(table, fragment string, rule core.FilterRule) {
		if prev, ok := sources[table]; ok {
			fail(&core.PolicyError{
				Fragment: fragment,
				Table:    table,
				Reason:   fmt.Sprintf("conflicts with %s", prev),
			})
			return
		}
		sources[table] = fragment
		p.Overrides[table] = rule.WithOrigin(core.OriginOverride)
	}
	for i, table := range d.Exclude {
		claim(table, fmt.Sprintf("policy.exclude[%d]", i), core.ExcludeAll())
	}
	for i, table := range d.Include {
		claim(table, fmt.Sprintf("policy.include[%d]", i), core.IncludeAll())
	}
	for _, table := range sortedKeys(d.Where) {
		fragment := "policy.where." + table
		pred, err := d.Where[table].Build(fragment)
		if err != nil {
			fail(err)
			continue
		}
		claim(table, fragment, core.IncludeWhere(pred))
	}

	for _, table := range sortedKeys(d.Redact) {
		cols := d.Redact[table]
		for _, col := range sortedKeys(cols) {
			fragment := fmt.Sprintf("policy.redact.%s.%s", table, col)
			rule, err := RedactionEntry{Table: table, Column: col, Action: cols[col]}.Build(fragment)
			if err != nil {
				fail(err)
				continue
			}
			p.Redactions = append(p.Redactions, rule)
		}
	}
	for i, e := range d.Redactions {
		rule, err := e.Build(fmt.Sprintf("policy.redactions[%d]", i))
		if err != nil {
			fail(err)
			continue
		}
		p.Redactions = append(p.Redactions, rule)
	}
	for i, e := range d.Secrets {
		rule, err := e.Build(fmt.Sprintf("policy.secrets[%d]", i))
		if err != nil {
			fail(err)
			continue
		}
		p.Secrets = append(p.Secrets, rule)
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return p, nil
}

// Build validates the entry. fragment locates it in PolicyErrors and becomes
// the rule's origin.
func (e RedactionEntry) Build(fragment string) (core.RedactionRule, error) {
	if e.Table == "" || e.Column == "" {
		return core.RedactionRule{}, &core.PolicyError{Fragment: fragment, Reason: "redaction needs a table and a column"}
	}
	action, err := core.ParseRedactAction(e.Action)
	if err != nil {
		return core.RedactionRule{}, &core.PolicyError{Fragment: fragment, Table: e.Table, Column: e.Column, Reason: err.Error()}
	}
	red := core.Redaction{Action: action}
	if e.When != nil {
		when, err := e.When.Build(fragment + ".when")
		if err != nil {
			return core.RedactionRule{}, err
		}
		red.When = when
	}
	return core.RedactionRule{Table: e.Table, Column: e.Column, Redaction: red, Origin: fragment}, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
