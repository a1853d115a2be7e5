package core

import "fmt"

// Column describes a single column of a table as reported by the live schema.
type Column struct {
	Name       string
	Type       string
	Nullable   bool
	PrimaryKey bool
	Position   int
}

// Table is the immutable description of a table loaded from the live schema.
type Table struct {
	Schema  string
	Name    string
	Columns []Column
}

// ColumnNames returns the column names in ordinal order.
func (t Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// Column returns the named column.
func (t Table) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// HasColumn reports whether the table has a column with the given name.
func (t Table) HasColumn(name string) bool {
	_, ok := t.Column(name)
	return ok
}

// DependencyEdge declares that a child row is meaningful only if a parent row
// with a matching key survives: (ChildTable.ChildColumn) -> (ParentTable.ParentColumn).
type DependencyEdge struct {
	ChildTable   string `yaml:"child" koanf:"child"`
	ChildColumn  string `yaml:"child_column" koanf:"child_column"`
	ParentTable  string `yaml:"parent" koanf:"parent"`
	ParentColumn string `yaml:"parent_column" koanf:"parent_column"`
}

func (e DependencyEdge) String() string {
	return fmt.Sprintf("%s.%s -> %s.%s", e.ChildTable, e.ChildColumn, e.ParentTable, e.ParentColumn)
}
