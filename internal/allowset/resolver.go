// Package allowset resolves the primary allow-set: the key values of the root
// table whose rows are retained. An empty set is a valid outcome and is never
// confused with a failed query, which is reported as a *core.DataAccessError.
package allowset

import (
	"context"
	"log/slog"

	"github.com/leapstack-labs/leapdump/internal/catalog"
	"github.com/leapstack-labs/leapdump/internal/extension"
	"github.com/leapstack-labs/leapdump/pkg/core"
)

// KeySource runs DISTINCT key queries against the data source.
type KeySource interface {
	SelectKeys(ctx context.Context, table, column string, where core.Predicate) ([]any, error)
}

// Resolver computes the root allow-set from the policy criteria.
type Resolver struct {
	source  KeySource
	catalog *catalog.Catalog
	hooks   *extension.Registry
	logger  *slog.Logger
}

// NewResolver creates a resolver. hooks may be nil.
func NewResolver(source KeySource, cat *catalog.Catalog, hooks *extension.Registry, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Resolver{source: source, catalog: cat, hooks: hooks, logger: logger}
}

// Resolve runs the criteria hooks, queries the matching root keys and runs the
// allow-set hooks on the result.
func (r *Resolver) Resolve(ctx context.Context, p *core.ExportPolicy) (*core.AllowSet, error) {
	if err := r.checkRoot(p); err != nil {
		return nil, err
	}

	criteria, err := r.hooks.ApplyCriteria(ctx, p.Criteria)
	if err != nil {
		return nil, err
	}
	if criteria == nil {
		criteria = core.True
	}
	if err := r.checkColumns(p.RootTable, criteria); err != nil {
		return nil, err
	}

	r.logger.Debug("resolving allow-set", "table", p.RootTable, "key", p.RootKey, "criteria", criteria.String())
	keys, err := r.source.SelectKeys(ctx, p.RootTable, p.RootKey, criteria)
	if err != nil {
		return nil, core.NewDataAccessError(p.RootTable, "resolve allow-set", err)
	}

	set, err := r.hooks.ApplyAllowSet(ctx, core.NewAllowSet(p.RootTable, p.RootKey, keys))
	if err != nil {
		return nil, err
	}

	if set.IsEmpty() {
		r.logger.Info("allow-set is empty, no root rows are retained", "table", p.RootTable)
	} else {
		r.logger.Info("resolved allow-set", "table", p.RootTable, "keys", set.Len())
	}
	return set, nil
}

func (r *Resolver) checkRoot(p *core.ExportPolicy) error {
	if p.RootTable == "" || p.RootKey == "" {
		return &core.PolicyError{Fragment: "policy.root", Reason: "root table and key are required"}
	}
	t, ok := r.catalog.Table(p.RootTable)
	if !ok {
		return &core.PolicyError{Fragment: "policy.root.table", Table: p.RootTable, Reason: "unknown table"}
	}
	if !t.HasColumn(p.RootKey) {
		return &core.PolicyError{Fragment: "policy.root.key", Table: p.RootTable, Column: p.RootKey, Reason: "unknown column"}
	}
	return nil
}

func (r *Resolver) checkColumns(table string, criteria core.Predicate) error {
	t, _ := r.catalog.Table(table)
	for _, col := range criteria.Columns() {
		if !t.HasColumn(col) {
			return &core.PolicyError{Fragment: "policy.criteria", Table: table, Column: col, Reason: "unknown column"}
		}
	}
	return nil
}
