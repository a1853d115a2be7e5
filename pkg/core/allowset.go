package core

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"
)

// AllowSet is the set of key values of one table column whose rows are
// retained. It is immutable once built.
type AllowSet struct {
	Table  string
	Column string

	values []any
	index  map[string]struct{}
}

// NewAllowSet builds an allow-set from key values. NULL values are dropped and
// duplicates (after normalisation with KeyOf) are collapsed, keeping the first
// occurrence.
func NewAllowSet(table, column string, values []any) *AllowSet {
	s := &AllowSet{
		Table:  table,
		Column: column,
		values: make([]any, 0, len(values)),
		index:  make(map[string]struct{}, len(values)),
	}
	for _, v := range values {
		k, ok := KeyOf(v)
		if !ok {
			continue
		}
		if _, seen := s.index[k]; seen {
			continue
		}
		s.index[k] = struct{}{}
		s.values = append(s.values, normalizeKeyValue(v))
	}
	return s
}

// EmptyAllowSet returns an allow-set that retains nothing.
func EmptyAllowSet(table, column string) *AllowSet {
	return NewAllowSet(table, column, nil)
}

// Contains reports whether v is a member of the set.
func (s *AllowSet) Contains(v any) bool {
	if s == nil {
		return false
	}
	k, ok := KeyOf(v)
	if !ok {
		return false
	}
	_, found := s.index[k]
	return found
}

// Len returns the number of distinct keys.
func (s *AllowSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.values)
}

// IsEmpty reports whether the set retains nothing.
func (s *AllowSet) IsEmpty() bool {
	return s.Len() == 0
}

// Values returns a copy of the key values in insertion order.
func (s *AllowSet) Values() []any {
	if s == nil {
		return nil
	}
	out := make([]any, len(s.values))
	copy(out, s.values)
	return out
}

// Keys returns the normalised keys, sorted.
func (s *AllowSet) Keys() []string {
	if s == nil {
		return nil
	}
	keys := make([]string, 0, len(s.index))
	for k := range s.index {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Equal reports whether both sets hold the same keys.
func (s *AllowSet) Equal(other *AllowSet) bool {
	if s.Len() != other.Len() {
		return false
	}
	for k := range s.index {
		if _, ok := other.index[k]; !ok {
			return false
		}
	}
	return true
}

func (s *AllowSet) String() string {
	return fmt.Sprintf("%s.%s(%d keys)", s.Table, s.Column, s.Len())
}

// Union returns a new set containing the keys of every input set.
func Union(table, column string, sets ...*AllowSet) *AllowSet {
	var values []any
	for _, s := range sets {
		values = append(values, s.Values()...)
	}
	return NewAllowSet(table, column, values)
}

// Intersect returns a new set containing the keys present in every input set.
func Intersect(table, column string, sets ...*AllowSet) *AllowSet {
	if len(sets) == 0 {
		return EmptyAllowSet(table, column)
	}
	var values []any
	for _, v := range sets[0].Values() {
		inAll := true
		for _, other := range sets[1:] {
			if !other.Contains(v) {
				inAll = false
				break
			}
		}
		if inAll {
			values = append(values, v)
		}
	}
	return NewAllowSet(table, column, values)
}

// KeyOf normalises a key value so that values read through different drivers
// compare equal: []byte and string, every integer width, and integral floats.
// It returns false for NULL.
func KeyOf(v any) (string, bool) {
	switch x := v.(type) {
	case nil:
		return "", false
	case string:
		return x, true
	case []byte:
		if x == nil {
			return "", false
		}
		return string(x), true
	case int:
		return strconv.FormatInt(int64(x), 10), true
	case int8:
		return strconv.FormatInt(int64(x), 10), true
	case int16:
		return strconv.FormatInt(int64(x), 10), true
	case int32:
		return strconv.FormatInt(int64(x), 10), true
	case int64:
		return strconv.FormatInt(x, 10), true
	case uint:
		return strconv.FormatUint(uint64(x), 10), true
	case uint8:
		return strconv.FormatUint(uint64(x), 10), true
	case uint16:
		return strconv.FormatUint(uint64(x), 10), true
	case uint32:
		return strconv.FormatUint(uint64(x), 10), true
	case uint64:
		return strconv.FormatUint(x, 10), true
	case float32:
		return formatFloatKey(float64(x)), true
	case float64:
		return formatFloatKey(x), true
	case bool:
		return strconv.FormatBool(x), true
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano), true
	case fmt.Stringer:
		return x.String(), true
	default:
		return fmt.Sprint(x), true
	}
}

func formatFloatKey(f float64) string {
	if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// normalizeKeyValue converts driver byte slices to strings so that stored
// values are safe to reuse as query arguments.
func normalizeKeyValue(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
