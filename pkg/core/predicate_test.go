package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPredicate_Eval(t *testing.T) {
	row := NewRow(
		[]string{"id", "user_id", "email", "role", "deleted_at"},
		[]any{int64(9), []byte("2"), "Alice@Example.com", "editor", nil},
	)
	users := NewAllowSet("users", "id", []any{1, 3})

	tests := []struct {
		name string
		pred Predicate
		want bool
	}{
		{"true", True, true},
		{"false", False, false},
		{"eq int vs int64", Eq{Column: "id", Value: 9}, true},
		{"eq bytes vs int", Eq{Column: "user_id", Value: 2}, true},
		{"eq missing column", Eq{Column: "nope", Value: 2}, false},
		{"eq null", Eq{Column: "deleted_at", Value: nil}, false},
		{"in hit", In{Column: "role", Values: []any{"admin", "editor"}}, true},
		{"in miss", In{Column: "role", Values: []any{"admin"}}, false},
		{"like suffix case-insensitive", Like{Column: "email", Pattern: "%@example.com"}, true},
		{"like underscore", Like{Column: "role", Pattern: "e_itor"}, true},
		{"like miss", Like{Column: "email", Pattern: "%@corp.com"}, false},
		{"is null", IsNull{Column: "deleted_at"}, true},
		{"is null on value", IsNull{Column: "email"}, false},
		{"in set miss", InSet{Column: "user_id", Set: users}, false},
		{"and", And{Eq{Column: "id", Value: 9}, Eq{Column: "role", Value: "editor"}}, true},
		{"and short", And{Eq{Column: "id", Value: 9}, False}, false},
		{"or", Or{InSet{Column: "user_id", Set: users}, Eq{Column: "role", Value: "editor"}}, true},
		{"empty or", Or{}, false},
		{"empty and", And{}, true},
		{"not", Not{P: Eq{Column: "role", Value: "admin"}}, true},
		{"not eq on null column", Not{P: Eq{Column: "deleted_at", Value: "2024"}}, false},
		{"not like on null column", Not{P: Like{Column: "deleted_at", Pattern: "%"}}, false},
		{"not in on null column", Not{P: In{Column: "deleted_at", Values: []any{1}}}, false},
		{"not in empty list", Not{P: In{Column: "deleted_at", Values: []any{nil}}}, true},
		{"not is null", Not{P: IsNull{Column: "deleted_at"}}, false},
		{"not is null on value", Not{P: IsNull{Column: "email"}}, true},
		{"not or with unknown operand", Not{P: Or{Eq{Column: "deleted_at", Value: 1}, Eq{Column: "role", Value: "admin"}}}, false},
		{"not and with false operand", Not{P: And{Eq{Column: "deleted_at", Value: 1}, Eq{Column: "role", Value: "admin"}}}, true},
		{"double not on null column", Not{P: Not{P: Eq{Column: "deleted_at", Value: 1}}}, false},
		{"and with not on null column", And{Eq{Column: "id", Value: 9}, Not{P: Eq{Column: "deleted_at", Value: 1}}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.pred.Eval(row))
		})
	}
}

func TestAllOfAnyOf_Folding(t *testing.T) {
	a := Eq{Column: "a", Value: 1}
	b := Eq{Column: "b", Value: 2}

	assert.Equal(t, True, AllOf())
	assert.Equal(t, False, AnyOf())
	assert.Equal(t, a, AllOf(True, a))
	assert.Equal(t, False, AllOf(a, False))
	assert.Equal(t, True, AnyOf(a, True))
	assert.Equal(t, a, AnyOf(False, a))
	assert.Equal(t, And{a, b}, AllOf(a, And{b}))
	assert.Equal(t, Or{a, b}, AnyOf(Or{a}, b))
}

func TestPredicate_Columns(t *testing.T) {
	p := And{Eq{Column: "b", Value: 1}, Or{Like{Column: "a", Pattern: "x%"}, IsNull{Column: "b"}}}
	assert.Equal(t, []string{"a", "b"}, p.Columns())
}

func TestPredicate_String(t *testing.T) {
	p := Or{Eq{Column: "name", Value: "api_key"}, And{In{Column: "id", Values: []any{1, 2}}, IsNull{Column: "x"}}}
	assert.Equal(t, "name = 'api_key' OR (id IN (1, 2) AND x IS NULL)", p.String())
}

func TestLikeMatch(t *testing.T) {
	tests := []struct {
		pattern, s string
		want       bool
	}{
		{"%", "", true},
		{"abc", "abc", true},
		{"a%c", "abbbc", true},
		{"a%c", "abbbd", false},
		{"%b%", "abc", true},
		{"_", "", false},
		{"a_", "ab", true},
		{"%@x.org", "me@x.org", true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, likeMatch(tt.pattern, tt.s), "%q LIKE %q", tt.s, tt.pattern)
	}
}
