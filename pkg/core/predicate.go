package core

import (
	"fmt"
	"sort"
	"strings"
)

// Predicate is an abstract boolean expression over the column values of a row.
// Sources push predicates down as SQL; Eval is the in-memory equivalent.
type Predicate interface {
	// Eval reports whether the row satisfies the predicate. Comparisons against
	// NULL are false, as in SQL.
	Eval(row Row) bool
	// Columns returns the columns the predicate reads, sorted and de-duplicated.
	Columns() []string
	String() string
}

// TruePredicate matches every row.
type TruePredicate struct{}

// FalsePredicate matches no row.
type FalsePredicate struct{}

// Eq matches rows whose column equals Value.
type Eq struct {
	Column string
	Value  any
}

// In matches rows whose column equals one of Values.
type In struct {
	Column string
	Values []any
}

// Like matches rows whose column matches an SQL LIKE pattern (% and _).
// In-memory matching is case-insensitive, like MySQL and SQLite defaults.
type Like struct {
	Column  string
	Pattern string
}

// IsNull matches rows whose column is NULL.
type IsNull struct {
	Column string
}

// InSet is a membership test against a materialised allow-set, usually one
// derived for a parent table.
type InSet struct {
	Column string
	Set    *AllowSet
}

// And matches rows satisfying every operand. An empty And is true.
type And []Predicate

// Or matches rows satisfying at least one operand. An empty Or is false.
type Or []Predicate

// Not negates its operand.
type Not struct {
	P Predicate
}

var (
	True  Predicate = TruePredicate{}
	False Predicate = FalsePredicate{}
)

func (TruePredicate) Eval(Row) bool     { return true }
func (TruePredicate) Columns() []string { return nil }
func (TruePredicate) String() string    { return "TRUE" }

func (FalsePredicate) Eval(Row) bool     { return false }
func (FalsePredicate) Columns() []string { return nil }
func (FalsePredicate) String() string    { return "FALSE" }

func (p Eq) Eval(row Row) bool {
	v, ok := row.Get(p.Column)
	if !ok {
		return false
	}
	return keysEqual(v, p.Value)
}
func (p Eq) Columns() []string { return []string{p.Column} }
func (p Eq) String() string    { return fmt.Sprintf("%s = %s", p.Column, formatValue(p.Value)) }

func (p In) Eval(row Row) bool {
	v, ok := row.Get(p.Column)
	if !ok {
		return false
	}
	for _, want := range p.Values {
		if keysEqual(v, want) {
			return true
		}
	}
	return false
}
func (p In) Columns() []string { return []string{p.Column} }
func (p In) String() string {
	parts := make([]string, len(p.Values))
	for i, v := range p.Values {
		parts[i] = formatValue(v)
	}
	return fmt.Sprintf("%s IN (%s)", p.Column, strings.Join(parts, ", "))
}

func (p Like) Eval(row Row) bool {
	v, ok := row.Get(p.Column)
	if !ok {
		return false
	}
	s, ok := KeyOf(v)
	if !ok {
		return false
	}
	return likeMatch(strings.ToLower(p.Pattern), strings.ToLower(s))
}
func (p Like) Columns() []string { return []string{p.Column} }
func (p Like) String() string    { return fmt.Sprintf("%s LIKE '%s'", p.Column, p.Pattern) }

func (p IsNull) Eval(row Row) bool {
	v, ok := row.Get(p.Column)
	if !ok {
		return false
	}
	_, notNull := KeyOf(v)
	return !notNull
}
func (p IsNull) Columns() []string { return []string{p.Column} }
func (p IsNull) String() string    { return p.Column + " IS NULL" }

func (p InSet) Eval(row Row) bool {
	v, ok := row.Get(p.Column)
	if !ok {
		return false
	}
	return p.Set.Contains(v)
}
func (p InSet) Columns() []string { return []string{p.Column} }
func (p InSet) String() string {
	if p.Set == nil {
		return p.Column + " IN {}"
	}
	return fmt.Sprintf("%s IN %s.%s{%s}", p.Column, p.Set.Table, p.Set.Column, abbreviateKeys(p.Set.Keys(), 8))
}

func (p And) Eval(row Row) bool {
	for _, q := range p {
		if !q.Eval(row) {
			return false
		}
	}
	return true
}
func (p And) Columns() []string { return collectColumns(p) }
func (p And) String() string    { return joinPredicates(p, " AND ", "TRUE") }

func (p Or) Eval(row Row) bool {
	for _, q := range p {
		if q.Eval(row) {
			return true
		}
	}
	return false
}
func (p Or) Columns() []string { return collectColumns(p) }
func (p Or) String() string    { return joinPredicates(p, " OR ", "FALSE") }

// Eval follows SQL: NOT of a comparison against NULL is still not true, so a
// row the pushed-down query drops is dropped in memory too.
func (p Not) Eval(row Row) bool { return truthOf(p.P, row) == isFalse }
func (p Not) Columns() []string { return p.P.Columns() }
func (p Not) String() string    { return "NOT (" + p.P.String() + ")" }

// truth is a three-valued SQL truth value.
type truth int

const (
	isFalse truth = iota
	isTrue
	isUnknown
)

func known(b bool) truth {
	if b {
		return isTrue
	}
	return isFalse
}

// truthOf evaluates p with SQL NULL semantics, matching the SQL the sources
// render: a NULL column makes a comparison unknown, an empty list is false.
func truthOf(p Predicate, row Row) truth {
	null := func(column string) bool {
		v, ok := row.Get(column)
		if !ok {
			return true
		}
		_, notNull := KeyOf(v)
		return !notNull
	}
	switch x := p.(type) {
	case nil:
		return isTrue
	case Eq:
		if _, ok := KeyOf(x.Value); !ok {
			return isFalse
		}
		if null(x.Column) {
			return isUnknown
		}
	case In:
		empty := true
		for _, v := range x.Values {
			if _, ok := KeyOf(v); ok {
				empty = false
				break
			}
		}
		if empty {
			return isFalse
		}
		if null(x.Column) {
			return isUnknown
		}
	case InSet:
		if x.Set.IsEmpty() {
			return isFalse
		}
		if null(x.Column) {
			return isUnknown
		}
	case Like:
		if null(x.Column) {
			return isUnknown
		}
	case And:
		out := isTrue
		for _, q := range x {
			switch truthOf(q, row) {
			case isFalse:
				return isFalse
			case isUnknown:
				out = isUnknown
			}
		}
		return out
	case Or:
		out := isFalse
		for _, q := range x {
			switch truthOf(q, row) {
			case isTrue:
				return isTrue
			case isUnknown:
				out = isUnknown
			}
		}
		return out
	case Not:
		switch truthOf(x.P, row) {
		case isTrue:
			return isFalse
		case isFalse:
			return isTrue
		}
		return isUnknown
	}
	return known(p.Eval(row))
}

// AllOf combines predicates with AND, flattening nested Ands and folding
// constants. The result is True for no operands.
func AllOf(preds ...Predicate) Predicate {
	var out And
	for _, p := range preds {
		switch q := p.(type) {
		case nil, TruePredicate:
			continue
		case FalsePredicate:
			return False
		case And:
			for _, inner := range q {
				if _, isFalse := inner.(FalsePredicate); isFalse {
					return False
				}
			}
			out = append(out, q...)
		default:
			out = append(out, p)
		}
	}
	switch len(out) {
	case 0:
		return True
	case 1:
		return out[0]
	}
	return out
}

// AnyOf combines predicates with OR, flattening nested Ors and folding
// constants. The result is False for no operands.
func AnyOf(preds ...Predicate) Predicate {
	var out Or
	for _, p := range preds {
		switch q := p.(type) {
		case nil, FalsePredicate:
			continue
		case TruePredicate:
			return True
		case Or:
			for _, inner := range q {
				if _, isTrue := inner.(TruePredicate); isTrue {
					return True
				}
			}
			out = append(out, q...)
		default:
			out = append(out, p)
		}
	}
	switch len(out) {
	case 0:
		return False
	case 1:
		return out[0]
	}
	return out
}

func keysEqual(a, b any) bool {
	ka, okA := KeyOf(a)
	kb, okB := KeyOf(b)
	return okA && okB && ka == kb
}

func collectColumns(preds []Predicate) []string {
	seen := make(map[string]struct{})
	for _, p := range preds {
		for _, c := range p.Columns() {
			seen[c] = struct{}{}
		}
	}
	cols := make([]string, 0, len(seen))
	for c := range seen {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	return cols
}

func joinPredicates(preds []Predicate, sep, empty string) string {
	if len(preds) == 0 {
		return empty
	}
	parts := make([]string, len(preds))
	for i, p := range preds {
		s := p.String()
		switch p.(type) {
		case And, Or:
			s = "(" + s + ")"
		}
		parts[i] = s
	}
	return strings.Join(parts, sep)
}

func formatValue(v any) string {
	k, ok := KeyOf(v)
	if !ok {
		return "NULL"
	}
	if _, isString := v.(string); isString {
		return "'" + k + "'"
	}
	return k
}

func abbreviateKeys(keys []string, limit int) string {
	if len(keys) <= limit {
		return strings.Join(keys, ",")
	}
	return fmt.Sprintf("%s,...+%d", strings.Join(keys[:limit], ","), len(keys)-limit)
}

// likeMatch implements SQL LIKE with % (any run) and _ (any single rune).
func likeMatch(pattern, s string) bool {
	p := []rune(pattern)
	r := []rune(s)
	pi, si := 0, 0
	star, match := -1, 0
	for si < len(r) {
		switch {
		case pi < len(p) && (p[pi] == '_' || p[pi] == r[si]):
			pi++
			si++
		case pi < len(p) && p[pi] == '%':
			star = pi
			match = si
			pi++
		case star != -1:
			pi = star + 1
			match++
			si = match
		default:
			return false
		}
	}
	for pi < len(p) && p[pi] == '%' {
		pi++
	}
	return pi == len(p)
}
