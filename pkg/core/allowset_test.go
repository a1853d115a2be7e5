package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAllowSet_NormalisesAndDeduplicates(t *testing.T) {
	s := NewAllowSet("users", "id", []any{int64(1), []byte("1"), "3", nil, 3.0})

	require.Equal(t, 2, s.Len())
	assert.Equal(t, []string{"1", "3"}, s.Keys())
	assert.True(t, s.Contains(1))
	assert.True(t, s.Contains(uint8(3)))
	assert.False(t, s.Contains(nil))
	assert.False(t, s.Contains(2))
	// byte slices are stored as strings
	assert.Equal(t, []any{int64(1), "3"}, s.Values())
}

func TestAllowSet_EmptyIsDistinctFromNil(t *testing.T) {
	empty := EmptyAllowSet("users", "id")
	require.NotNil(t, empty)
	assert.True(t, empty.IsEmpty())
	assert.False(t, empty.Contains(1))

	var missing *AllowSet
	assert.Equal(t, 0, missing.Len())
	assert.Nil(t, missing.Values())
}

func TestAllowSet_SetAlgebra(t *testing.T) {
	a := NewAllowSet("t", "id", []any{1, 2, 3})
	b := NewAllowSet("t", "id", []any{2, 3, 4})

	u := Union("t", "id", a, b)
	assert.Equal(t, []string{"1", "2", "3", "4"}, u.Keys())

	i := Intersect("t", "id", a, b)
	assert.Equal(t, []string{"2", "3"}, i.Keys())
	for _, v := range i.Values() {
		assert.True(t, a.Contains(v) && b.Contains(v))
	}

	assert.True(t, Intersect("t", "id").IsEmpty())
	assert.True(t, NewAllowSet("x", "y", []any{"2", 3}).Equal(i))
}

func TestKeyOf(t *testing.T) {
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	tests := []struct {
		in     any
		want   string
		wantOK bool
	}{
		{nil, "", false},
		{[]byte(nil), "", false},
		{"abc", "abc", true},
		{[]byte("abc"), "abc", true},
		{int32(-4), "-4", true},
		{uint64(7), "7", true},
		{2.0, "2", true},
		{2.5, "2.5", true},
		{true, "true", true},
		{ts, "2024-01-02T03:04:05Z", true},
	}
	for _, tt := range tests {
		got, ok := KeyOf(tt.in)
		assert.Equal(t, tt.wantOK, ok, "%v", tt.in)
		assert.Equal(t, tt.want, got, "%v", tt.in)
	}
}
