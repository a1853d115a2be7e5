// Package rules compiles the final per-table FilterRule and RedactionSpec.
//
// Precedence, highest first: explicit override > baseline > cascade-derived >
// default IncludeAll. Compilation is a pure function of its inputs, so running
// it twice yields identical output.
package rules

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/leapstack-labs/leapdump/internal/catalog"
	"github.com/leapstack-labs/leapdump/internal/extension"
	"github.com/leapstack-labs/leapdump/pkg/core"
)

// Pinned holds the rules that win over the cascade.
type Pinned struct {
	Overrides map[string]core.FilterRule
	Baselines map[string]core.FilterRule
}

// Rules returns baselines overlaid with overrides.
func (p *Pinned) Rules() map[string]core.FilterRule {
	out := make(map[string]core.FilterRule, len(p.Overrides)+len(p.Baselines))
	for t, r := range p.Baselines {
		out[t] = r
	}
	for t, r := range p.Overrides {
		out[t] = r
	}
	return out
}

// Compiled is the result of rule compilation.
type Compiled struct {
	// Rules has exactly one entry per catalog table.
	Rules      map[string]core.FilterRule
	Redactions map[string]core.RedactionSpec
	Warnings   []core.ConflictWarning
}

// Tables returns the compiled table names, sorted.
func (c *Compiled) Tables() []string {
	names := make([]string, 0, len(c.Rules))
	for t := range c.Rules {
		names = append(names, t)
	}
	sort.Strings(names)
	return names
}

// Compiler merges rules from every tier.
type Compiler struct {
	catalog *catalog.Catalog
	policy  *core.ExportPolicy
	hooks   *extension.Registry
	logger  *slog.Logger
}

// NewCompiler creates a compiler. hooks may be nil.
func NewCompiler(cat *catalog.Catalog, p *core.ExportPolicy, hooks *extension.Registry, logger *slog.Logger) *Compiler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Compiler{catalog: cat, policy: p, hooks: hooks, logger: logger}
}

// Pin runs the table-rule hooks over the policy overrides and validates the
// result against the catalog.
func (c *Compiler) Pin(ctx context.Context) (*Pinned, error) {
	overrides, err := c.hooks.ApplyTableRules(ctx, c.policy.Overrides)
	if err != nil {
		return nil, err
	}

	var errs []error
	for _, table := range sortedKeys(overrides) {
		rule := overrides[table]
		if rule.Origin == "" {
			rule = rule.WithOrigin(core.OriginOverride)
			overrides[table] = rule
		}
		if err := c.checkRule(table, rule); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	return &Pinned{Overrides: overrides, Baselines: c.catalog.Baselines()}, nil
}

func (c *Compiler) checkRule(table string, rule core.FilterRule) error {
	t, ok := c.catalog.Table(table)
	if !ok {
		return &core.PolicyError{Fragment: "overrides", Table: table, Reason: "unknown table"}
	}
	if rule.Kind != core.RuleIncludeWhere {
		return nil
	}
	for _, col := range rule.Where.Columns() {
		if !t.HasColumn(col) {
			return &core.PolicyError{Fragment: "overrides", Table: table, Column: col, Reason: "rule references unknown column"}
		}
	}
	return nil
}

// Compile produces the final rules and redaction specs. derived holds the
// cascade-derived rules.
func (c *Compiler) Compile(ctx context.Context, pinned *Pinned, derived map[string]core.FilterRule) (*Compiled, error) {
	out := &Compiled{
		Rules: Merge(c.catalog.Tables(), pinned, derived),
	}

	regs, err := c.hooks.ApplyRedactions(ctx, c.policy.EffectiveRedactions())
	if err != nil {
		return nil, err
	}

	var errs []error
	for _, r := range regs {
		if err := c.checkRedaction(r); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	out.Redactions, out.Warnings = Fold(regs)
	for _, w := range out.Warnings {
		c.logger.Warn(w.String(), "table", w.Table, "column", w.Column)
	}
	return out, nil
}

// Merge applies rule precedence to every table.
func Merge(tables []core.Table, pinned *Pinned, derived map[string]core.FilterRule) map[string]core.FilterRule {
	out := make(map[string]core.FilterRule, len(tables))
	for _, t := range tables {
		if r, ok := pinned.Overrides[t.Name]; ok {
			out[t.Name] = r
		} else if r, ok := pinned.Baselines[t.Name]; ok {
			out[t.Name] = r
		} else if r, ok := derived[t.Name]; ok {
			out[t.Name] = r
		} else {
			out[t.Name] = core.IncludeAll().WithOrigin(core.OriginDefault)
		}
	}
	return out
}

// Fold unions redaction registrations into one spec per table. A later
// registration for the same column replaces the earlier one and produces a
// warning.
func Fold(regs []core.RedactionRule) (map[string]core.RedactionSpec, []core.ConflictWarning) {
	specs := make(map[string]core.RedactionSpec)
	var warnings []core.ConflictWarning
	for _, r := range regs {
		spec, ok := specs[r.Table]
		if !ok {
			spec = make(core.RedactionSpec)
			specs[r.Table] = spec
		}
		if prev, dup := spec[r.Column]; dup {
			warnings = append(warnings, core.ConflictWarning{
				Table:    r.Table,
				Column:   r.Column,
				Previous: prev,
				Current:  r.Redaction,
				Origin:   r.Origin,
			})
		}
		spec[r.Column] = r.Redaction
	}
	return specs, warnings
}

func (c *Compiler) checkRedaction(r core.RedactionRule) error {
	fail := func(reason string) error {
		return &core.PolicyError{Fragment: r.Origin, Table: r.Table, Column: r.Column, Reason: reason}
	}

	t, ok := c.catalog.Table(r.Table)
	if !ok {
		return fail("unknown table")
	}
	if !t.HasColumn(r.Column) {
		return fail("unknown column")
	}
	if c.isKeyColumn(r.Table, r.Column) {
		return fail("cannot redact a key column used by a dependency edge")
	}
	if r.Redaction.When != nil {
		for _, col := range r.Redaction.When.Columns() {
			if !t.HasColumn(col) {
				return fail(fmt.Sprintf("condition references unknown column %q", col))
			}
		}
	}
	return nil
}

func (c *Compiler) isKeyColumn(table, column string) bool {
	if table == c.policy.RootTable && column == c.policy.RootKey {
		return true
	}
	return c.catalog.IsKeyColumn(table, column)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
