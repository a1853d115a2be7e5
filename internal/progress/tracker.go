package progress

import (
	"sync"
	"sync/atomic"

	"github.com/leapstack-labs/leapdump/pkg/core"
)

// Tracker counts finished tables and emitted rows and forwards events to a
// sink. It is safe for concurrent use; counters are monotonic.
type Tracker struct {
	mu    sync.Mutex
	sink  Sink
	total int

	tables atomic.Int64
	failed atomic.Int64
	rows   atomic.Int64
}

// NewTracker creates a tracker for total scheduled tables.
func NewTracker(sink Sink, total int) *Tracker {
	if sink == nil {
		sink = Discard
	}
	return &Tracker{sink: sink, total: total}
}

// TableCompleted records a finished table and forwards the event.
func (t *Tracker) TableCompleted(e TableEvent) {
	t.rows.Add(e.Result.RowsEmitted)
	if e.Result.Status == core.TableFailed {
		t.failed.Add(1)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	e.Done = int(t.tables.Add(1))
	e.Total = t.total
	t.sink.TableCompleted(e)
}

// RunStarted forwards the event.
func (t *Tracker) RunStarted(e RunEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sink.RunStarted(e)
}

// RunFinished forwards the event.
func (t *Tracker) RunFinished(e RunEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sink.RunFinished(e)
}

// Tables returns the number of finished tables, failed ones included.
func (t *Tracker) Tables() int {
	return int(t.tables.Load())
}

// Failed returns the number of failed tables.
func (t *Tracker) Failed() int {
	return int(t.failed.Load())
}

// Rows returns the number of emitted rows.
func (t *Tracker) Rows() int64 {
	return t.rows.Load()
}
