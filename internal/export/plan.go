package export

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/leapstack-labs/leapdump/internal/allowset"
	"github.com/leapstack-labs/leapdump/internal/cascade"
	"github.com/leapstack-labs/leapdump/internal/catalog"
	"github.com/leapstack-labs/leapdump/internal/rules"
	"github.com/leapstack-labs/leapdump/pkg/core"
)

// Plan is the resolved and compiled state of a run, before streaming.
type Plan struct {
	RootTable string
	RootSet   *core.AllowSet
	// KeySets holds the materialised parent key sets, keyed "table.column".
	KeySets  map[string]*core.AllowSet
	Compiled *rules.Compiled
	// Order lists tables parents first; Levels groups them by depth.
	Order  []string
	Levels [][]string
}

// TablePlan is what a run would do with one table.
type TablePlan struct {
	Table      string
	Rule       core.FilterRule
	Redactions core.RedactionSpec
}

// Tables returns the per-table plan in dependency order.
func (p *Plan) Tables() []TablePlan {
	out := make([]TablePlan, 0, len(p.Order))
	for _, t := range p.Order {
		out = append(out, TablePlan{Table: t, Rule: p.Compiled.Rules[t], Redactions: p.Compiled.Redactions[t]})
	}
	return out
}

func (e *Exporter) plan(ctx context.Context) (*Plan, error) {
	cfg := e.cfg
	e.transition(core.StateResolving)

	compiler := rules.NewCompiler(cfg.Catalog, cfg.Policy, cfg.Hooks, e.logger)
	pinned, err := compiler.Pin(ctx)
	if err != nil {
		return nil, fmt.Errorf("compiling overrides: %w", err)
	}

	rootSet, err := allowset.NewResolver(cfg.Source, cfg.Catalog, cfg.Hooks, e.logger).Resolve(ctx, cfg.Policy)
	if err != nil {
		return nil, fmt.Errorf("resolving allow-set: %w", err)
	}

	derived, err := cascade.NewResolver(cfg.Source, e.logger).Resolve(ctx, cascade.Input{
		Catalog: cfg.Catalog,
		RootSet: rootSet,
		Pinned:  pinned.Rules(),
		Combine: combineFor(cfg.Policy, cfg.Catalog),
	})
	if err != nil {
		return nil, fmt.Errorf("cascading allow-set: %w", err)
	}

	e.transition(core.StateCompiling)
	compiled, err := compiler.Compile(ctx, pinned, derived.Rules)
	if err != nil {
		return nil, fmt.Errorf("compiling rules: %w", err)
	}

	e.logger.Debug("plan ready",
		slog.Int("root_keys", rootSet.Len()),
		slog.Int("key_sets", len(derived.KeySets)),
		slog.Int("warnings", len(compiled.Warnings)))

	return &Plan{
		RootTable: cfg.Policy.RootTable,
		RootSet:   rootSet,
		KeySets:   derived.KeySets,
		Compiled:  compiled,
		Order:     cfg.Catalog.Order(),
		Levels:    cfg.Catalog.Levels(),
	}, nil
}

// combineFor resolves the multi-parent mode of a table: a per-table policy
// entry, then the catalog's declaration, then the policy default.
func combineFor(policy *core.ExportPolicy, cat *catalog.Catalog) func(string) core.Combine {
	return func(table string) core.Combine {
		if c, ok := policy.CombineTables[table]; ok && c != "" {
			return c
		}
		if c, ok := cat.Combine(table); ok {
			return c
		}
		return policy.CombineFor(table)
	}
}
