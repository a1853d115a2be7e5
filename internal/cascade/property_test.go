package cascade

import (
	"context"
	"testing"

	"github.com/leapstack-labs/leapdump/internal/catalog"
	"github.com/leapstack-labs/leapdump/internal/testutil"
	"github.com/leapstack-labs/leapdump/pkg/core"
	"pgregory.net/rapid"
)

// For random users/orders/order_items data and a random root set, every
// order_item the derived rules keep points at a kept order, and every kept
// order points at a root user.
func TestResolve_ReferentialInvariant(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		users := rapid.IntRange(1, 8).Draw(t, "users")
		src := testutil.NewMemorySource()

		var userRows [][]any
		for id := 1; id <= users; id++ {
			userRows = append(userRows, []any{int64(id)})
		}
		src.AddTable("users", []string{"id"}, userRows...)

		orders := rapid.SliceOfN(rapid.Int64Range(1, int64(users)), 0, 12).Draw(t, "orders")
		var orderRows [][]any
		for i, uid := range orders {
			orderRows = append(orderRows, []any{int64(100 + i), uid})
		}
		src.AddTable("orders", []string{"id", "user_id"}, orderRows...)

		items := rapid.SliceOfN(rapid.Int64Range(99, int64(100+len(orders))), 0, 20).Draw(t, "items")
		var itemRows [][]any
		for i, oid := range items {
			itemRows = append(itemRows, []any{int64(1000 + i), oid})
		}
		src.AddTable("order_items", []string{"id", "order_id"}, itemRows...)

		tables, err := src.Tables(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		cat, err := catalog.New(tables, shopEdges()...)
		if err != nil {
			t.Fatal(err)
		}

		rootIDs := rapid.SliceOfNDistinct(rapid.IntRange(1, users), 0, users, rapid.ID[int]).Draw(t, "root")
		root := make([]any, len(rootIDs))
		for i, id := range rootIDs {
			root[i] = int64(id)
		}
		rootSet := core.NewAllowSet("users", "id", root)

		res, err := NewResolver(src, nil).Resolve(context.Background(), Input{Catalog: cat, RootSet: rootSet})
		if err != nil {
			t.Fatal(err)
		}

		keptOrders := map[int64]bool{}
		for _, r := range orderRows {
			row := core.NewRow([]string{"id", "user_id"}, r)
			if !res.Rules["orders"].Allows(row) {
				continue
			}
			if !rootSet.Contains(r[1]) {
				t.Fatalf("order %v kept for user %v outside the root set", r[0], r[1])
			}
			keptOrders[r[0].(int64)] = true
		}
		for _, r := range itemRows {
			row := core.NewRow([]string{"id", "order_id"}, r)
			if res.Rules["order_items"].Allows(row) && !keptOrders[r[1].(int64)] {
				t.Fatalf("item %v kept for order %v that is not exported", r[0], r[1])
			}
		}
	})
}
