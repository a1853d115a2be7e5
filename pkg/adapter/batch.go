package adapter

import (
	"github.com/leapstack-labs/leapdump/pkg/core"
	"github.com/leapstack-labs/leapdump/pkg/dialect"
)

// queryPlan is a predicate split into statements that each stay under the
// dialect's bind parameter limit. Parts select disjoint rows.
type queryPlan struct {
	parts []core.Predicate
	// recheck is set when parts were widened; rows must pass Eval on the
	// original predicate.
	recheck bool
}

// planWhere splits where for the dialect. The largest top-level IN list is
// cut into chunks, one statement each; anything still too large is widened
// and filtered in memory.
func planWhere(d *dialect.Dialect, where core.Predicate) queryPlan {
	limit := d.ParamLimit()
	if countParams(where) <= limit {
		return queryPlan{parts: []core.Predicate{where}}
	}

	conjuncts := []core.Predicate{where}
	if and, ok := where.(core.And); ok {
		conjuncts = and
	}
	pick, column, values := -1, "", []any(nil)
	for i, c := range conjuncts {
		col, vals, ok := setValues(c)
		if ok && (pick < 0 || len(vals) > len(values)) {
			pick, column, values = i, col, vals
		}
	}
	if pick < 0 {
		return queryPlan{parts: []core.Predicate{shrink(where, limit)}, recheck: true}
	}

	rest := make([]core.Predicate, 0, len(conjuncts)-1)
	rest = append(rest, conjuncts[:pick]...)
	rest = append(rest, conjuncts[pick+1:]...)
	restP := core.AllOf(rest...)
	plan := queryPlan{}
	if countParams(restP) > limit/2 {
		restP = shrink(restP, limit/2)
		plan.recheck = true
	}
	room := limit - countParams(restP)

	values = distinct(values)
	if len(values) == 0 {
		plan.parts = []core.Predicate{core.False}
		return plan
	}
	for start := 0; start < len(values); start += room {
		end := min(start+room, len(values))
		plan.parts = append(plan.parts, core.AllOf(restP, core.In{Column: column, Values: values[start:end]}))
	}
	return plan
}

// countParams is the number of bind parameters ToSqlizer emits for p.
func countParams(p core.Predicate) int {
	switch x := p.(type) {
	case core.Eq:
		if _, ok := core.KeyOf(x.Value); ok {
			return 1
		}
	case core.Like:
		return 1
	case core.In, core.InSet:
		_, vals, _ := setValues(x)
		return len(vals)
	case core.And:
		return sumParams(x)
	case core.Or:
		return sumParams(x)
	case core.Not:
		return countParams(x.P)
	}
	return 0
}

func sumParams(preds []core.Predicate) int {
	n := 0
	for _, q := range preds {
		n += countParams(q)
	}
	return n
}

// setValues returns the non-NULL values of an In or InSet predicate.
func setValues(p core.Predicate) (string, []any, bool) {
	switch x := p.(type) {
	case core.In:
		return x.Column, nonNil(x.Values), true
	case core.InSet:
		if x.Set == nil {
			return x.Column, nil, true
		}
		return x.Column, x.Set.Values(), true
	}
	return "", nil, false
}

// shrink widens p until it carries at most limit parameters, dropping the
// largest IN lists first. The result matches every row p matches.
func shrink(p core.Predicate, limit int) core.Predicate {
	for countParams(p) > limit {
		largest := largestSet(p)
		if largest == 0 {
			return widen(p, true, func(core.Predicate) bool { return true })
		}
		p = widen(p, true, func(q core.Predicate) bool {
			_, vals, ok := setValues(q)
			return ok && len(vals) >= largest
		})
	}
	return p
}

func largestSet(p core.Predicate) int {
	switch x := p.(type) {
	case core.In, core.InSet:
		_, vals, _ := setValues(x)
		return len(vals)
	case core.And:
		return largestOf(x)
	case core.Or:
		return largestOf(x)
	case core.Not:
		return largestSet(x.P)
	}
	return 0
}

func largestOf(preds []core.Predicate) int {
	n := 0
	for _, q := range preds {
		n = max(n, largestSet(q))
	}
	return n
}

// widen replaces the leaves selected by drop with a constant that can only
// admit more rows: TRUE in positive position, FALSE under an odd number of
// NOTs.
func widen(p core.Predicate, positive bool, drop func(core.Predicate) bool) core.Predicate {
	switch x := p.(type) {
	case core.And:
		out := make([]core.Predicate, len(x))
		for i, q := range x {
			out[i] = widen(q, positive, drop)
		}
		return core.AllOf(out...)
	case core.Or:
		out := make([]core.Predicate, len(x))
		for i, q := range x {
			out[i] = widen(q, positive, drop)
		}
		return core.AnyOf(out...)
	case core.Not:
		return core.Not{P: widen(x.P, !positive, drop)}
	}
	if countParams(p) == 0 || !drop(p) {
		return p
	}
	if positive {
		return core.True
	}
	return core.False
}

// distinct drops repeated keys so chunks never overlap.
func distinct(values []any) []any {
	seen := make(map[string]struct{}, len(values))
	out := make([]any, 0, len(values))
	for _, v := range values {
		k, ok := core.KeyOf(v)
		if !ok {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, v)
	}
	return out
}
