package allowset

import (
	"context"
	"errors"
	"testing"

	"github.com/leapstack-labs/leapdump/internal/catalog"
	"github.com/leapstack-labs/leapdump/internal/extension"
	"github.com/leapstack-labs/leapdump/internal/testutil"
	"github.com/leapstack-labs/leapdump/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) (*testutil.MemorySource, *catalog.Catalog) {
	t.Helper()
	src := testutil.NewMemorySource().
		AddTable("users", []string{"id", "email", "role"},
			[]any{int64(1), "ann@example.com", "administrator"},
			[]any{int64(2), "bob@other.org", "customer"},
			[]any{int64(3), "cy@example.com", "customer"},
		)
	tables, err := src.Tables(context.Background())
	require.NoError(t, err)
	cat, err := catalog.New(tables)
	require.NoError(t, err)
	return src, cat
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name     string
		criteria core.Predicate
		want     []any
	}{
		{name: "no criteria keeps every root row", criteria: nil, want: []any{int64(1), int64(2), int64(3)}},
		{name: "like", criteria: core.Like{Column: "email", Pattern: "%@example.com"}, want: []any{int64(1), int64(3)}},
		{name: "role", criteria: core.Eq{Column: "role", Value: "administrator"}, want: []any{int64(1)}},
		{name: "nothing matches", criteria: core.Eq{Column: "role", Value: "editor"}, want: []any{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src, cat := setup(t)
			r := NewResolver(src, cat, nil, testutil.NewTestLogger(t))

			set, err := r.Resolve(context.Background(), &core.ExportPolicy{RootTable: "users", RootKey: "id", Criteria: tt.criteria})
			require.NoError(t, err)
			require.NotNil(t, set, "an empty result is a set, not nil")
			assert.Equal(t, tt.want, set.Values())
			assert.Equal(t, "users", set.Table)
			assert.Equal(t, "id", set.Column)
		})
	}
}

func TestResolve_QueryFailureIsDataAccessError(t *testing.T) {
	src, cat := setup(t)
	boom := errors.New("connection reset")
	src.FailOn("users", boom)

	_, err := NewResolver(src, cat, nil, nil).Resolve(context.Background(), &core.ExportPolicy{RootTable: "users", RootKey: "id"})

	var dae *core.DataAccessError
	require.ErrorAs(t, err, &dae)
	assert.Equal(t, "users", dae.Table)
	assert.ErrorIs(t, err, boom)
}

func TestResolve_PolicyErrors(t *testing.T) {
	tests := []struct {
		name     string
		policy   core.ExportPolicy
		fragment string
	}{
		{name: "missing root", policy: core.ExportPolicy{}, fragment: "policy.root"},
		{name: "unknown table", policy: core.ExportPolicy{RootTable: "accounts", RootKey: "id"}, fragment: "policy.root.table"},
		{name: "unknown key", policy: core.ExportPolicy{RootTable: "users", RootKey: "uid"}, fragment: "policy.root.key"},
		{
			name:     "criteria column",
			policy:   core.ExportPolicy{RootTable: "users", RootKey: "id", Criteria: core.Eq{Column: "nope", Value: 1}},
			fragment: "policy.criteria",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src, cat := setup(t)
			_, err := NewResolver(src, cat, nil, nil).Resolve(context.Background(), &tt.policy)

			var pe *core.PolicyError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, tt.fragment, pe.Fragment)
			assert.Empty(t, src.KeyQueries(), "no query runs for an invalid policy")
		})
	}
}

func TestResolve_Hooks(t *testing.T) {
	src, cat := setup(t)
	hooks := extension.NewRegistry()
	hooks.OnCriteria("admins", func(_ context.Context, p core.Predicate) (core.Predicate, error) {
		return core.AnyOf(p, core.Eq{Column: "role", Value: "administrator"}), nil
	})
	hooks.OnAllowSet("extra", func(_ context.Context, s *core.AllowSet) (*core.AllowSet, error) {
		return core.Union(s.Table, s.Column, s, core.NewAllowSet(s.Table, s.Column, []any{int64(99)})), nil
	})

	set, err := NewResolver(src, cat, hooks, nil).Resolve(context.Background(), &core.ExportPolicy{
		RootTable: "users",
		RootKey:   "id",
		Criteria:  core.Eq{Column: "email", Value: "cy@example.com"},
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []any{int64(1), int64(3), int64(99)}, set.Values())
	assert.Len(t, src.KeyQueries(), 1)
}
