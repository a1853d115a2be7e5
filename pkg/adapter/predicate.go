package adapter

import (
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/leapstack-labs/leapdump/pkg/core"
	"github.com/leapstack-labs/leapdump/pkg/dialect"
)

var (
	sqlTrue  = sq.Expr("1=1")
	sqlFalse = sq.Expr("1=0")
)

// ToSqlizer renders a predicate as a squirrel expression with ? placeholders.
// Column names are quoted with the dialect.
func ToSqlizer(d *dialect.Dialect, p core.Predicate) (sq.Sqlizer, error) {
	switch x := p.(type) {
	case nil, core.TruePredicate:
		return sqlTrue, nil
	case core.FalsePredicate:
		return sqlFalse, nil
	case core.Eq:
		if _, ok := core.KeyOf(x.Value); !ok {
			// col = NULL is never true
			return sqlFalse, nil
		}
		return sq.Eq{d.QuoteIdentifier(x.Column): x.Value}, nil
	case core.In:
		return sq.Eq{d.QuoteIdentifier(x.Column): nonNil(x.Values)}, nil
	case core.InSet:
		if x.Set == nil {
			return sqlFalse, nil
		}
		return sq.Eq{d.QuoteIdentifier(x.Column): x.Set.Values()}, nil
	case core.Like:
		if caseSensitiveLike(d) {
			return sq.ILike{d.QuoteIdentifier(x.Column): x.Pattern}, nil
		}
		return sq.Like{d.QuoteIdentifier(x.Column): x.Pattern}, nil
	case core.IsNull:
		return sq.Eq{d.QuoteIdentifier(x.Column): nil}, nil
	case core.And:
		if len(x) == 0 {
			return sqlTrue, nil
		}
		conj := make(sq.And, 0, len(x))
		for _, q := range x {
			s, err := ToSqlizer(d, q)
			if err != nil {
				return nil, err
			}
			conj = append(conj, s)
		}
		return conj, nil
	case core.Or:
		if len(x) == 0 {
			return sqlFalse, nil
		}
		disj := make(sq.Or, 0, len(x))
		for _, q := range x {
			s, err := ToSqlizer(d, q)
			if err != nil {
				return nil, err
			}
			disj = append(disj, s)
		}
		return disj, nil
	case core.Not:
		inner, err := ToSqlizer(d, x.P)
		if err != nil {
			return nil, err
		}
		innerSQL, args, err := inner.ToSql()
		if err != nil {
			return nil, err
		}
		return sq.Expr("NOT ("+innerSQL+")", args...), nil
	default:
		return nil, fmt.Errorf("unsupported predicate type %T", p)
	}
}

// caseSensitiveLike reports whether plain LIKE is case-sensitive in the
// dialect, in which case ILIKE keeps the in-memory semantics.
func caseSensitiveLike(d *dialect.Dialect) bool {
	switch d.Name {
	case "postgres", "duckdb":
		return true
	}
	return false
}

// nonNil drops NULLs from an IN list; x IN (NULL) never matches.
func nonNil(values []any) []any {
	out := make([]any, 0, len(values))
	for _, v := range values {
		if _, ok := core.KeyOf(v); ok {
			out = append(out, v)
		}
	}
	return out
}
