package core

import (
	"fmt"
	"strings"
)

// SchemaError reports a cyclic or malformed dependency graph. It is fatal and
// detected before any data access.
type SchemaError struct {
	Table  string
	Edge   *DependencyEdge
	Cycle  []string
	Reason string
}

func (e *SchemaError) Error() string {
	var b strings.Builder
	b.WriteString("schema error")
	if e.Table != "" {
		fmt.Fprintf(&b, " in table %q", e.Table)
	}
	if e.Edge != nil {
		fmt.Fprintf(&b, " (edge %s)", e.Edge)
	}
	b.WriteString(": ")
	b.WriteString(e.Reason)
	if len(e.Cycle) > 0 {
		fmt.Fprintf(&b, ": %s", strings.Join(e.Cycle, " -> "))
	}
	return b.String()
}

// PolicyError reports a malformed or contradictory policy, such as redacting a
// key column. It is fatal and detected at compile time.
type PolicyError struct {
	// Fragment locates the offending policy entry (e.g. "policy.redact.users").
	Fragment string
	Table    string
	Column   string
	Reason   string
}

func (e *PolicyError) Error() string {
	var b strings.Builder
	b.WriteString("policy error")
	if e.Fragment != "" {
		fmt.Fprintf(&b, " at %s", e.Fragment)
	}
	switch {
	case e.Table != "" && e.Column != "":
		fmt.Fprintf(&b, " (%s.%s)", e.Table, e.Column)
	case e.Table != "":
		fmt.Fprintf(&b, " (%s)", e.Table)
	}
	b.WriteString(": ")
	b.WriteString(e.Reason)
	return b.String()
}

// DataAccessError reports a query or write failure against the source or the
// sink. It is fatal to the run and never retried.
type DataAccessError struct {
	Table string
	Op    string
	Err   error
}

func (e *DataAccessError) Error() string {
	if e.Table == "" {
		return fmt.Sprintf("data access error during %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("data access error on table %q during %s: %v", e.Table, e.Op, e.Err)
}

func (e *DataAccessError) Unwrap() error {
	return e.Err
}

// NewDataAccessError wraps err unless it already is a DataAccessError.
func NewDataAccessError(table, op string, err error) error {
	if err == nil {
		return nil
	}
	if dae, ok := err.(*DataAccessError); ok {
		return dae
	}
	return &DataAccessError{Table: table, Op: op, Err: err}
}

// ConflictWarning is a non-fatal diagnostic: a column was registered for
// redaction more than once and the later registration won.
type ConflictWarning struct {
	Table    string
	Column   string
	Previous Redaction
	Current  Redaction
	Origin   string
}

func (w ConflictWarning) String() string {
	return fmt.Sprintf("redaction of %s.%s registered twice: %s replaced by %s (from %s)",
		w.Table, w.Column, w.Previous, w.Current, w.Origin)
}
