// Package core defines the shared language of the leapdump system.
//
// This package contains:
//   - Schema entities (Table, Column, DependencyEdge)
//   - Export data (Row, AllowSet, Predicate)
//   - Compiled policy (FilterRule, RedactionSpec, ExportPolicy)
//   - Run bookkeeping (RunStatus, TableResult)
//   - The error taxonomy shared by every stage of an export
//
// The Golden Rule: pkg/core imports ONLY stdlib.
// All other packages depend on core, not the reverse.
package core
