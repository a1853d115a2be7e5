// Package cascade propagates the root allow-set through the dependency graph.
//
// Tables are visited parents first. A table without a pinned rule (override or
// baseline) whose parents are constrained gets IncludeWhere(fk ∈ parent keys)
// per incoming edge, where the parent keys are materialised from the parent's
// own effective rule. Multi-hop dependents therefore use the derived parent
// set, never the root set directly.
package cascade

import (
	"context"
	"log/slog"

	"github.com/leapstack-labs/leapdump/internal/catalog"
	"github.com/leapstack-labs/leapdump/pkg/core"
)

// KeySource runs DISTINCT key queries against the data source.
type KeySource interface {
	SelectKeys(ctx context.Context, table, column string, where core.Predicate) ([]any, error)
}

// Input is everything one cascade needs. It is read-only.
type Input struct {
	Catalog *catalog.Catalog
	RootSet *core.AllowSet
	// Pinned holds the rules that take precedence over the cascade, keyed by
	// table. A pinned table is never derived, and its rule decides what it
	// contributes to its children.
	Pinned map[string]core.FilterRule
	// Combine returns the multi-parent combination of a table. Nil means OR.
	Combine func(table string) core.Combine
}

// Result is the outcome of one cascade.
type Result struct {
	// Rules holds the derived rule of every table constrained by the cascade,
	// including the root. Unconstrained and pinned tables are absent.
	Rules map[string]core.FilterRule
	// KeySets holds every materialised parent key set, keyed "table.column".
	KeySets map[string]*core.AllowSet
}

// Resolver computes cascade-derived rules.
type Resolver struct {
	source KeySource
	logger *slog.Logger
}

// NewResolver creates a cascade resolver.
func NewResolver(source KeySource, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Resolver{source: source, logger: logger}
}

type walk struct {
	ctx     context.Context
	source  KeySource
	in      Input
	result  *Result
	logger  *slog.Logger
	queries int
}

// Resolve walks the catalog in dependency order.
func (r *Resolver) Resolve(ctx context.Context, in Input) (*Result, error) {
	w := &walk{
		ctx:    ctx,
		source: r.source,
		in:     in,
		result: &Result{
			Rules:   make(map[string]core.FilterRule),
			KeySets: make(map[string]*core.AllowSet),
		},
		logger: r.logger,
	}

	root := in.RootSet.Table
	if _, pinned := in.Pinned[root]; !pinned {
		w.result.Rules[root] = core.IncludeWhere(core.InSet{Column: in.RootSet.Column, Set: in.RootSet}).
			WithOrigin(core.OriginCascade)
		w.result.KeySets[key(root, in.RootSet.Column)] = in.RootSet
	}

	for _, table := range in.Catalog.Order() {
		if table == root {
			continue
		}
		if _, pinned := in.Pinned[table]; pinned {
			continue
		}
		rule, ok, err := w.derive(table)
		if err != nil {
			return nil, err
		}
		if ok {
			w.result.Rules[table] = rule
			r.logger.Debug("derived rule", "table", table, "rule", rule.String())
		}
	}

	r.logger.Debug("cascade complete", "derived", len(w.result.Rules), "key_queries", w.queries)
	return w.result, nil
}

// effective returns the rule a table has after compilation, as far as the
// cascade is concerned. ok is false for an unconstrained table.
func (w *walk) effective(table string) (core.FilterRule, bool) {
	if r, ok := w.in.Pinned[table]; ok {
		return r, r.Kind != core.RuleIncludeAll
	}
	r, ok := w.result.Rules[table]
	return r, ok
}

// derive builds the rule of a table from its parents. Only tables with at
// least one constrained parent are derived. An edge to an unconstrained parent
// allows every row that references some parent row, so under OR it opens the
// table to any row with a non-NULL foreign key on that edge.
func (w *walk) derive(table string) (core.FilterRule, bool, error) {
	// Parents that reference the same child column fold into one key set.
	var columns []string
	sets := make(map[string][]*core.AllowSet)
	var open []core.Predicate
	constrained := false
	for _, e := range w.in.Catalog.ParentEdges(table) {
		parentRule, ok := w.effective(e.ParentTable)
		if !ok {
			open = append(open, core.Not{P: core.IsNull{Column: e.ChildColumn}})
			continue
		}
		constrained = true
		set, err := w.keys(e.ParentTable, e.ParentColumn, parentRule)
		if err != nil {
			return core.FilterRule{}, false, err
		}
		if _, seen := sets[e.ChildColumn]; !seen {
			columns = append(columns, e.ChildColumn)
		}
		sets[e.ChildColumn] = append(sets[e.ChildColumn], set)
	}
	if !constrained {
		return core.FilterRule{}, false, nil
	}

	combine := core.CombineOr
	if w.in.Combine != nil {
		combine = w.in.Combine(table)
	}
	preds := make([]core.Predicate, 0, len(columns)+len(open))
	for _, col := range columns {
		set := sets[col][0]
		if len(sets[col]) > 1 {
			if combine == core.CombineAnd {
				set = core.Intersect(table, col, sets[col]...)
			} else {
				set = core.Union(table, col, sets[col]...)
			}
		}
		preds = append(preds, core.InSet{Column: col, Set: set})
	}
	preds = append(preds, open...)

	var where core.Predicate
	if combine == core.CombineAnd {
		where = core.AllOf(preds...)
	} else {
		where = core.AnyOf(preds...)
	}
	return core.FilterRule{Kind: core.RuleIncludeWhere, Where: where, Origin: core.OriginCascade}, true, nil
}

// keys materialises the values of column in the rows of table allowed by rule.
// Results are cached per (table, column).
func (w *walk) keys(table, column string, rule core.FilterRule) (*core.AllowSet, error) {
	k := key(table, column)
	if set, ok := w.result.KeySets[k]; ok {
		return set, nil
	}

	var set *core.AllowSet
	switch {
	case rule.Kind == core.RuleExcludeAll:
		set = core.EmptyAllowSet(table, column)
	case isSetOn(rule.Where, column):
		set = rule.Where.(core.InSet).Set
	default:
		w.queries++
		values, err := w.source.SelectKeys(w.ctx, table, column, rule.Predicate())
		if err != nil {
			return nil, core.NewDataAccessError(table, "cascade keys", err)
		}
		set = core.NewAllowSet(table, column, values)
	}

	w.result.KeySets[k] = set
	return set, nil
}

func isSetOn(p core.Predicate, column string) bool {
	s, ok := p.(core.InSet)
	return ok && s.Column == column
}

func key(table, column string) string {
	return table + "." + column
}
