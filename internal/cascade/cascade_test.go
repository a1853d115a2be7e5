package cascade

import (
	"context"
	"errors"
	"testing"

	"github.com/leapstack-labs/leapdump/internal/catalog"
	"github.com/leapstack-labs/leapdump/internal/testutil"
	"github.com/leapstack-labs/leapdump/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func edge(child, childCol, parent, parentCol string) core.DependencyEdge {
	return core.DependencyEdge{ChildTable: child, ChildColumn: childCol, ParentTable: parent, ParentColumn: parentCol}
}

func row(cols []string, vals ...any) core.Row {
	return core.NewRow(cols, vals)
}

func load(t *testing.T, src *testutil.MemorySource, edges ...core.DependencyEdge) *catalog.Catalog {
	t.Helper()
	tables, err := src.Tables(context.Background())
	require.NoError(t, err)
	cat, err := catalog.New(tables, edges...)
	require.NoError(t, err)
	return cat
}

func shop() *testutil.MemorySource {
	return testutil.NewMemorySource().
		AddTable("users", []string{"id"}, []any{int64(1)}, []any{int64(2)}, []any{int64(3)}).
		AddTable("orders", []string{"id", "user_id"},
			[]any{int64(10), int64(1)},
			[]any{int64(11), int64(2)},
			[]any{int64(12), int64(3)},
			[]any{int64(9), int64(2)},
		).
		AddTable("order_items", []string{"id", "order_id"},
			[]any{int64(100), int64(10)},
			[]any{int64(101), int64(11)},
			[]any{int64(102), int64(12)},
			[]any{int64(103), int64(9)},
		)
}

func shopEdges() []core.DependencyEdge {
	return []core.DependencyEdge{
		edge("orders", "user_id", "users", "id"),
		edge("order_items", "order_id", "orders", "id"),
	}
}

func TestResolve_DirectChild(t *testing.T) {
	src := shop()
	cat := load(t, src, shopEdges()...)
	root := core.NewAllowSet("users", "id", []any{int64(1), int64(3)})

	res, err := NewResolver(src, testutil.NewTestLogger(t)).Resolve(context.Background(), Input{Catalog: cat, RootSet: root})
	require.NoError(t, err)

	orders := res.Rules["orders"]
	assert.Equal(t, core.RuleIncludeWhere, orders.Kind)
	assert.Equal(t, core.OriginCascade, orders.Origin)
	assert.Equal(t, core.InSet{Column: "user_id", Set: root}, orders.Where, "root set is reused without a query")

	cols := []string{"id", "user_id"}
	assert.False(t, orders.Allows(row(cols, int64(9), int64(2))))
	assert.True(t, orders.Allows(row(cols, int64(10), int64(1))))

	assert.Equal(t, core.RuleIncludeWhere, res.Rules["users"].Kind)
}

func TestResolve_MultiHopUsesDerivedParentSet(t *testing.T) {
	src := shop()
	cat := load(t, src, shopEdges()...)
	root := core.NewAllowSet("users", "id", []any{int64(1), int64(3)})

	res, err := NewResolver(src, nil).Resolve(context.Background(), Input{Catalog: cat, RootSet: root})
	require.NoError(t, err)

	items := res.Rules["order_items"]
	set := items.Where.(core.InSet)
	assert.Equal(t, "order_id", set.Column)
	assert.ElementsMatch(t, []any{int64(10), int64(12)}, set.Set.Values())
	assert.Equal(t, []string{"orders.id WHERE user_id IN users.id{1,3}"}, src.KeyQueries())
}

func TestResolve_MultiParentOr(t *testing.T) {
	src := testutil.NewMemorySource().
		AddTable("posts", []string{"id"}, []any{int64(5)}, []any{int64(6)}).
		AddTable("orders", []string{"id"}, []any{int64(7)}).
		AddTable("comments", []string{"id", "post_id", "order_id"},
			[]any{int64(1), int64(5), nil},
			[]any{int64(2), int64(6), nil},
			[]any{int64(3), nil, int64(7)},
		)
	cat := load(t, src,
		edge("comments", "post_id", "posts", "id"),
		edge("comments", "order_id", "orders", "id"),
	)

	pinned := map[string]core.FilterRule{
		"orders": core.ExcludeAll().WithOrigin(core.OriginOverride),
	}
	root := core.NewAllowSet("posts", "id", []any{int64(5)})

	res, err := NewResolver(src, nil).Resolve(context.Background(), Input{Catalog: cat, RootSet: root, Pinned: pinned})
	require.NoError(t, err)

	comments := res.Rules["comments"]
	cols := []string{"id", "post_id", "order_id"}
	assert.True(t, comments.Allows(row(cols, int64(1), int64(5), nil)), "allowed through posts although no order is")
	assert.False(t, comments.Allows(row(cols, int64(2), int64(6), nil)))
	assert.False(t, comments.Allows(row(cols, int64(3), nil, int64(7))))
	assert.NotContains(t, res.Rules, "orders", "pinned tables are not derived")
	assert.True(t, res.KeySets["orders.id"].IsEmpty())
	assert.Empty(t, src.KeyQueries())
}

func TestResolve_MultiParentAnd(t *testing.T) {
	src := testutil.NewMemorySource().
		AddTable("users", []string{"id"}).
		AddTable("posts", []string{"id"}, []any{int64(5)}, []any{int64(6)}).
		AddTable("comments", []string{"id", "post_id", "user_id"})
	cat := load(t, src,
		edge("comments", "post_id", "posts", "id"),
		edge("comments", "user_id", "users", "id"),
	)
	pinned := map[string]core.FilterRule{"posts": core.IncludeWhere(core.In{Column: "id", Values: []any{int64(5)}})}

	in := Input{
		Catalog: cat,
		RootSet: core.NewAllowSet("users", "id", []any{int64(1)}),
		Pinned:  pinned,
		Combine: func(table string) core.Combine {
			if table == "comments" {
				return core.CombineAnd
			}
			return core.CombineOr
		},
	}
	res, err := NewResolver(src, nil).Resolve(context.Background(), in)
	require.NoError(t, err)

	comments := res.Rules["comments"]
	cols := []string{"id", "post_id", "user_id"}
	assert.True(t, comments.Allows(row(cols, int64(1), int64(5), int64(1))))
	assert.False(t, comments.Allows(row(cols, int64(2), int64(5), int64(2))))
	assert.False(t, comments.Allows(row(cols, int64(3), int64(6), int64(1))))
	assert.Equal(t, []string{"posts.id WHERE id IN (5)"}, src.KeyQueries())
}

func TestResolve_UnconstrainedParentOpensItsEdge(t *testing.T) {
	src := testutil.NewMemorySource().
		AddTable("users", []string{"id"}).
		AddTable("posts", []string{"id"}).
		AddTable("comments", []string{"id", "post_id", "user_id"})
	cat := load(t, src,
		edge("comments", "post_id", "posts", "id"),
		edge("comments", "user_id", "users", "id"),
	)
	cols := []string{"id", "post_id", "user_id"}
	otherUser := row(cols, int64(1), int64(5), int64(2))
	ownComment := row(cols, int64(2), int64(5), int64(1))
	ownOrphan := row(cols, int64(3), nil, int64(1))
	anonymous := row(cols, int64(4), int64(5), nil)

	tests := []struct {
		name    string
		pinned  map[string]core.FilterRule
		combine core.Combine
		allowed []core.Row
		denied  []core.Row
	}{
		{
			name:    "or with posts pinned to everything",
			pinned:  map[string]core.FilterRule{"posts": core.IncludeAll().WithOrigin(core.OriginOverride)},
			combine: core.CombineOr,
			allowed: []core.Row{otherUser, ownComment, ownOrphan, anonymous},
		},
		{
			name:    "or with posts unconstrained",
			combine: core.CombineOr,
			allowed: []core.Row{otherUser, ownComment, ownOrphan},
			denied:  []core.Row{row(cols, int64(5), nil, int64(2)), row(cols, int64(6), nil, nil)},
		},
		{
			name:    "and still requires the root user",
			pinned:  map[string]core.FilterRule{"posts": core.IncludeAll()},
			combine: core.CombineAnd,
			allowed: []core.Row{ownComment},
			denied:  []core.Row{otherUser, ownOrphan, anonymous},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := NewResolver(src, nil).Resolve(context.Background(), Input{
				Catalog: cat,
				RootSet: core.NewAllowSet("users", "id", []any{int64(1)}),
				Pinned:  tt.pinned,
				Combine: func(string) core.Combine { return tt.combine },
			})
			require.NoError(t, err)

			comments, ok := res.Rules["comments"]
			require.True(t, ok, "comments have a constrained parent")
			for _, r := range tt.allowed {
				assert.True(t, comments.Allows(r), "%v allowed by %s", r.Values, comments.Where)
			}
			for _, r := range tt.denied {
				assert.False(t, comments.Allows(r), "%v denied by %s", r.Values, comments.Where)
			}
			assert.NotContains(t, res.Rules, "posts")
		})
	}
}

func TestResolve_SharedChildColumnFoldsIntoOneSet(t *testing.T) {
	src := testutil.NewMemorySource().
		AddTable("users", []string{"id"}).
		AddTable("posts", []string{"id"}).
		AddTable("pages", []string{"id"}).
		AddTable("revisions", []string{"id", "object_id"})
	cat := load(t, src,
		edge("revisions", "object_id", "posts", "id"),
		edge("revisions", "object_id", "pages", "id"),
	)
	pinned := map[string]core.FilterRule{
		"posts": core.IncludeWhere(core.InSet{Column: "id", Set: core.NewAllowSet("posts", "id", []any{int64(5), int64(6)})}),
		"pages": core.IncludeWhere(core.InSet{Column: "id", Set: core.NewAllowSet("pages", "id", []any{int64(6), int64(7)})}),
	}

	tests := []struct {
		combine core.Combine
		want    []string
	}{
		{core.CombineOr, []string{"5", "6", "7"}},
		{core.CombineAnd, []string{"6"}},
	}
	for _, tt := range tests {
		t.Run(string(tt.combine), func(t *testing.T) {
			in := Input{
				Catalog: cat,
				RootSet: core.EmptyAllowSet("users", "id"),
				Pinned:  pinned,
				Combine: func(string) core.Combine { return tt.combine },
			}
			res, err := NewResolver(src, nil).Resolve(context.Background(), in)
			require.NoError(t, err)

			where, ok := res.Rules["revisions"].Where.(core.InSet)
			require.True(t, ok, "one predicate on object_id, got %s", res.Rules["revisions"].Where)
			assert.Equal(t, "object_id", where.Column)
			assert.Equal(t, tt.want, where.Set.Keys())
			assert.Empty(t, src.KeyQueries(), "pinned sets are reused")
		})
	}
}

func TestResolve_PinnedParents(t *testing.T) {
	tests := []struct {
		name       string
		pinned     core.FilterRule
		wantDerive bool
		allowsTen  bool
	}{
		{name: "include all decouples children", pinned: core.IncludeAll(), wantDerive: false},
		{name: "exclude all empties children", pinned: core.ExcludeAll(), wantDerive: true, allowsTen: false},
		{name: "include where selects parent keys", pinned: core.IncludeWhere(core.Eq{Column: "id", Value: int64(10)}), wantDerive: true, allowsTen: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := shop()
			cat := load(t, src, shopEdges()...)
			in := Input{
				Catalog: cat,
				RootSet: core.NewAllowSet("users", "id", []any{int64(2)}),
				Pinned:  map[string]core.FilterRule{"orders": tt.pinned},
			}

			res, err := NewResolver(src, nil).Resolve(context.Background(), in)
			require.NoError(t, err)

			items, ok := res.Rules["order_items"]
			require.Equal(t, tt.wantDerive, ok)
			if ok {
				assert.Equal(t, tt.allowsTen, items.Allows(row([]string{"id", "order_id"}, int64(100), int64(10))))
				assert.False(t, items.Allows(row([]string{"id", "order_id"}, int64(101), int64(11))))
			}
		})
	}
}

func TestResolve_UnreachableTablesAreUnconstrained(t *testing.T) {
	src := shop().AddTable("options", []string{"name", "value"})
	cat := load(t, src, shopEdges()...)

	res, err := NewResolver(src, nil).Resolve(context.Background(), Input{
		Catalog: cat,
		RootSet: core.NewAllowSet("users", "id", []any{int64(1)}),
	})
	require.NoError(t, err)
	assert.NotContains(t, res.Rules, "options")
	assert.Len(t, res.Rules, 3)
}

func TestResolve_KeyQueryFailure(t *testing.T) {
	boom := errors.New("lost connection")
	src := shop().FailOn("orders", boom)
	cat := load(t, src, shopEdges()...)

	_, err := NewResolver(src, nil).Resolve(context.Background(), Input{
		Catalog: cat,
		RootSet: core.NewAllowSet("users", "id", []any{int64(1)}),
	})

	var dae *core.DataAccessError
	require.ErrorAs(t, err, &dae)
	assert.Equal(t, "orders", dae.Table)
	assert.ErrorIs(t, err, boom)
}

func TestResolve_KeySetsAreCached(t *testing.T) {
	src := shop().AddTable("shipments", []string{"id", "order_id"})
	cat := load(t, src, append(shopEdges(), edge("shipments", "order_id", "orders", "id"))...)

	_, err := NewResolver(src, nil).Resolve(context.Background(), Input{
		Catalog: cat,
		RootSet: core.NewAllowSet("users", "id", []any{int64(1)}),
	})
	require.NoError(t, err)
	assert.Len(t, src.KeyQueries(), 1, "orders.id is materialised once for both children")
}
