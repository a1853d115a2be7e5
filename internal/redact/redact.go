// Package redact applies field-level redaction to rows that already passed
// inclusion filtering.
package redact

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/leapstack-labs/leapdump/pkg/core"
)

// Options configures the redactor.
type Options struct {
	// Salt is mixed into hashed values. The same salt yields the same digest
	// across runs.
	Salt string
	// VariableColumns is set when the sink accepts rows with fewer columns
	// than their table. Otherwise Omit degrades to Blank.
	VariableColumns bool
}

// Row applies the redaction spec to a row of a table governed by rule. It
// returns false, and no row, when the rule excludes the row: excluded rows
// are never redacted. Inclusion is decided on the original values. The input
// row is not modified.
func Row(rule core.FilterRule, spec core.RedactionSpec, row core.Row, opts Options) (core.Row, bool) {
	if !rule.Allows(row) {
		return core.Row{}, false
	}
	if len(spec) == 0 {
		return row, true
	}

	out := row.Clone()
	omit := make(map[int]bool)
	for i, col := range row.Columns {
		red, ok := spec[col]
		if !ok || !red.Applies(row) {
			continue
		}
		switch red.Action {
		case core.RedactHash:
			out.Values[i] = Hash(opts.Salt, row.Values[i])
		case core.RedactOmit:
			if opts.VariableColumns {
				omit[i] = true
				continue
			}
			out.Values[i] = Blank(row.Values[i])
		default:
			out.Values[i] = Blank(row.Values[i])
		}
	}

	if len(omit) == 0 {
		return out, true
	}
	kept := core.Row{
		Columns: make([]string, 0, len(out.Columns)-len(omit)),
		Values:  make([]any, 0, len(out.Columns)-len(omit)),
	}
	for i := range out.Columns {
		if !omit[i] {
			kept.Columns = append(kept.Columns, out.Columns[i])
			kept.Values = append(kept.Values, out.Values[i])
		}
	}
	return kept, true
}

// Blank returns the empty representation of v's type. NULL stays NULL.
func Blank(v any) any {
	switch v.(type) {
	case nil:
		return nil
	case string:
		return ""
	case []byte:
		return []byte{}
	case bool:
		return false
	case int, int8, int16, int32, int64:
		return int64(0)
	case uint, uint8, uint16, uint32, uint64:
		return uint64(0)
	case float32, float64:
		return float64(0)
	case time.Time:
		return time.Time{}
	default:
		return ""
	}
}

// Hash returns the hex SHA-256 digest of salt, a zero byte and the canonical
// form of v. Values that compare equal as keys hash equally. NULL stays NULL.
func Hash(salt string, v any) any {
	k, ok := core.KeyOf(v)
	if !ok {
		return nil
	}
	h := sha256.New()
	h.Write([]byte(salt))
	h.Write([]byte{0})
	h.Write([]byte(k))
	return hex.EncodeToString(h.Sum(nil))
}
