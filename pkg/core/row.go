package core

// Row is a single record streamed from a table. Columns and Values are parallel
// slices; a redacted row may carry fewer columns than its table when a column
// was omitted.
type Row struct {
	Columns []string
	Values  []any
}

// NewRow builds a row from parallel column and value slices.
func NewRow(columns []string, values []any) Row {
	return Row{Columns: columns, Values: values}
}

// Get returns the value of the named column.
func (r Row) Get(column string) (any, bool) {
	for i, c := range r.Columns {
		if c == column {
			return r.Values[i], true
		}
	}
	return nil, false
}

// Clone returns a copy that shares no slices with r.
func (r Row) Clone() Row {
	cols := make([]string, len(r.Columns))
	copy(cols, r.Columns)
	vals := make([]any, len(r.Values))
	copy(vals, r.Values)
	return Row{Columns: cols, Values: vals}
}

// Map returns the row as a column -> value map.
func (r Row) Map() map[string]any {
	m := make(map[string]any, len(r.Columns))
	for i, c := range r.Columns {
		m[c] = r.Values[i]
	}
	return m
}
