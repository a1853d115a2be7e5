// Package testutil provides in-memory sources, recording sinks and loggers
// for exercising the export pipeline without a database.
package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/leapstack-labs/leapdump/pkg/adapter"
	"github.com/leapstack-labs/leapdump/pkg/core"
	"github.com/leapstack-labs/leapdump/pkg/dialect"
)

var _ adapter.Source = (*MemorySource)(nil)

// MemorySource is an in-memory adapter.Source. Predicates are evaluated with
// core.Predicate.Eval. Every query is recorded.
type MemorySource struct {
	mu      sync.Mutex
	tables  map[string]core.Table
	rows    map[string][]core.Row
	fail    map[string]error
	queries []string
	streams []string
}

// NewMemorySource creates an empty source.
func NewMemorySource() *MemorySource {
	return &MemorySource{
		tables: make(map[string]core.Table),
		rows:   make(map[string][]core.Row),
		fail:   make(map[string]error),
	}
}

// AddTable registers a table. Each row lists values in column order.
func (s *MemorySource) AddTable(name string, columns []string, rows ...[]any) *MemorySource {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := core.Table{Name: name}
	for i, c := range columns {
		t.Columns = append(t.Columns, core.Column{Name: c, Position: i + 1})
	}
	s.tables[name] = t
	for _, values := range rows {
		if len(values) != len(columns) {
			panic(fmt.Sprintf("testutil: row of %s has %d values, want %d", name, len(values), len(columns)))
		}
		s.rows[name] = append(s.rows[name], core.NewRow(columns, values))
	}
	return s
}

// FailOn makes every query against table return err.
func (s *MemorySource) FailOn(table string, err error) *MemorySource {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail[table] = err
	return s
}

// KeyQueries returns the SelectKeys calls as "table.column WHERE predicate".
func (s *MemorySource) KeyQueries() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.queries...)
}

// Streams returns the tables streamed so far, in call order.
func (s *MemorySource) Streams() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.streams...)
}

func (s *MemorySource) Connect(context.Context, adapter.Config) error { return nil }
func (s *MemorySource) Close() error                                  { return nil }
func (s *MemorySource) Dialect() *dialect.Dialect                     { return dialect.SQLite }

// Tables returns the registered tables sorted by name.
func (s *MemorySource) Tables(context.Context) ([]core.Table, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Table, 0, len(s.tables))
	for _, t := range s.tables {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// SelectKeys returns the distinct non-NULL values of column in matching rows.
func (s *MemorySource) SelectKeys(ctx context.Context, table, column string, where core.Predicate) ([]any, error) {
	s.mu.Lock()
	s.queries = append(s.queries, fmt.Sprintf("%s.%s WHERE %s", table, column, predString(where)))
	rows, err := s.lookup(table)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	var values []any
	for _, r := range rows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if where != nil && !where.Eval(r) {
			continue
		}
		if v, ok := r.Get(column); ok && v != nil {
			values = append(values, v)
		}
	}
	return core.NewAllowSet(table, column, values).Values(), nil
}

// StreamRows calls fn with a copy of every matching row.
func (s *MemorySource) StreamRows(ctx context.Context, table core.Table, where core.Predicate, fn adapter.RowFunc) error {
	s.mu.Lock()
	s.streams = append(s.streams, table.Name)
	rows, err := s.lookup(table.Name)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	for _, r := range rows {
		if err := ctx.Err(); err != nil {
			return err
		}
		if where != nil && !where.Eval(r) {
			continue
		}
		if err := fn(r.Clone()); err != nil {
			return err
		}
	}
	return nil
}

func (s *MemorySource) lookup(table string) ([]core.Row, error) {
	if err := s.fail[table]; err != nil {
		return nil, err
	}
	if _, ok := s.tables[table]; !ok {
		return nil, fmt.Errorf("no such table: %s", table)
	}
	return s.rows[table], nil
}

func predString(p core.Predicate) string {
	if p == nil {
		return "TRUE"
	}
	return p.String()
}
