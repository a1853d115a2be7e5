package adapter

import (
	"testing"

	"github.com/leapstack-labs/leapdump/pkg/core"
	"github.com/leapstack-labs/leapdump/pkg/dialect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanWhere(t *testing.T) {
	tiny := dialect.NewDialect("tiny").MaxParams(4).Build()
	ids := func(n int) []any {
		out := make([]any, n)
		for i := range out {
			out[i] = i + 1
		}
		return out
	}

	tests := []struct {
		name    string
		where   core.Predicate
		parts   int
		recheck bool
	}{
		{"nil predicate", nil, 1, false},
		{"fits the limit", core.In{Column: "id", Values: ids(4)}, 1, false},
		{"chunks a bare set", core.InSet{Column: "id", Set: core.NewAllowSet("t", "id", ids(9))}, 3, false},
		{"duplicates do not widen chunks", core.In{Column: "id", Values: []any{1, 1, 2, 2, 3, 3}}, 1, false},
		{"keeps the rest of a conjunction", core.AllOf(
			core.Eq{Column: "status", Value: "paid"},
			core.In{Column: "user_id", Values: ids(6)},
		), 2, false},
		{"widens an oversized rest", core.AllOf(
			core.In{Column: "a", Values: ids(5)},
			core.In{Column: "b", Values: ids(8)},
		), 2, true},
		{"widens a disjunction", core.AnyOf(
			core.In{Column: "a", Values: ids(3)},
			core.In{Column: "b", Values: ids(3)},
		), 1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := planWhere(tiny, tt.where)
			require.Len(t, plan.parts, tt.parts)
			assert.Equal(t, tt.recheck, plan.recheck)
			for _, p := range plan.parts {
				assert.LessOrEqual(t, countParams(p), tiny.ParamLimit(), "%v", p)
			}
		})
	}
}

func TestPlanWhere_PartsCoverTheOriginal(t *testing.T) {
	tiny := dialect.NewDialect("tiny").MaxParams(4).Build()
	where := core.AllOf(
		core.Not{P: core.In{Column: "role", Values: []any{"admin", "owner", "bot"}}},
		core.InSet{Column: "user_id", Set: core.NewAllowSet("users", "id", []any{1, 2, 3, 4, 5, 6, 7})},
	)
	plan := planWhere(tiny, where)

	rows := []core.Row{
		core.NewRow([]string{"role", "user_id"}, []any{"editor", 3}),
		core.NewRow([]string{"role", "user_id"}, []any{"admin", 3}),
		core.NewRow([]string{"role", "user_id"}, []any{"editor", 42}),
		core.NewRow([]string{"role", "user_id"}, []any{nil, 5}),
		core.NewRow([]string{"role", "user_id"}, []any{"author", 7}),
	}
	for _, row := range rows {
		matches := 0
		for _, p := range plan.parts {
			if p.Eval(row) {
				matches++
			}
		}
		want := where.Eval(row)
		if plan.recheck {
			assert.True(t, !want || matches == 1, "%v", row.Values)
			continue
		}
		assert.Equal(t, want, matches == 1, "%v", row.Values)
		assert.LessOrEqual(t, matches, 1, "parts overlap on %v", row.Values)
	}
}
