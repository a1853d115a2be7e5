package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/leapstack-labs/leapdump/internal/sink"
	"github.com/leapstack-labs/leapdump/pkg/core"
)

var _ sink.Sink = (*RecordingSink)(nil)

// RecordingSink keeps committed rows in memory, keyed by table.
type RecordingSink struct {
	Caps sink.Capabilities

	mu        sync.Mutex
	rows      map[string][]core.Row
	committed []string
	aborted   []string
	fail      map[string]error
	closed    bool
}

// NewRecordingSink creates a sink with the given capabilities.
func NewRecordingSink(caps sink.Capabilities) *RecordingSink {
	return &RecordingSink{Caps: caps, rows: make(map[string][]core.Row), fail: make(map[string]error)}
}

// FailOn makes writes to table return err.
func (s *RecordingSink) FailOn(table string, err error) *RecordingSink {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail[table] = err
	return s
}

func (s *RecordingSink) Capabilities() sink.Capabilities { return s.Caps }
func (s *RecordingSink) Location() string                { return "memory" }

func (s *RecordingSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *RecordingSink) BeginTable(_ context.Context, table core.Table) (sink.TableWriter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, fmt.Errorf("recording sink closed")
	}
	return &recordingWriter{sink: s, table: table.Name, fail: s.fail[table.Name]}, nil
}

// Rows returns the committed rows of table.
func (s *RecordingSink) Rows(table string) []core.Row {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Row(nil), s.rows[table]...)
}

// Values returns column of every committed row of table.
func (s *RecordingSink) Values(table, column string) []any {
	var out []any
	for _, r := range s.Rows(table) {
		v, _ := r.Get(column)
		out = append(out, v)
	}
	return out
}

// Committed returns the tables committed so far, in commit order.
func (s *RecordingSink) Committed() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.committed...)
}

// Aborted returns the aborted tables, sorted.
func (s *RecordingSink) Aborted() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append([]string(nil), s.aborted...)
	sort.Strings(out)
	return out
}

// Closed reports whether Close was called.
func (s *RecordingSink) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type recordingWriter struct {
	sink  *RecordingSink
	table string
	fail  error
	rows  []core.Row
	done  bool
}

func (w *recordingWriter) WriteRow(_ context.Context, row core.Row) error {
	if w.fail != nil {
		return w.fail
	}
	w.rows = append(w.rows, row.Clone())
	return nil
}

func (w *recordingWriter) Commit() error {
	w.done = true
	s := w.sink
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[w.table] = append(s.rows[w.table], w.rows...)
	s.committed = append(s.committed, w.table)
	return nil
}

func (w *recordingWriter) Abort() {
	if w.done {
		return
	}
	w.done = true
	s := w.sink
	s.mu.Lock()
	defer s.mu.Unlock()
	s.aborted = append(s.aborted, w.table)
}
