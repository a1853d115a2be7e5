// Package progress reports export progress: one event per table and a final
// run event. Sinks are called from the Tracker, which serialises delivery, so
// implementations need no locking of their own.
package progress

import (
	"time"

	"github.com/leapstack-labs/leapdump/pkg/core"
)

// RunEvent reports the start or the end of a run.
type RunEvent struct {
	RunID string
	State core.RunState
	// Output is the sink location.
	Output string
	Time   time.Time
	// Summary is set on RunFinished.
	Summary *core.RunSummary
	Err     error
}

// TableEvent reports one processed table.
type TableEvent struct {
	RunID  string
	Result core.TableResult
	// Done counts the tables finished so far, Total those scheduled.
	Done  int
	Total int
}

// Sink receives progress events.
type Sink interface {
	RunStarted(RunEvent)
	TableCompleted(TableEvent)
	RunFinished(RunEvent)
}

// Multi fans events out to every sink in order.
func Multi(sinks ...Sink) Sink {
	var out multi
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

type multi []Sink

func (m multi) RunStarted(e RunEvent) {
	for _, s := range m {
		s.RunStarted(e)
	}
}

func (m multi) TableCompleted(e TableEvent) {
	for _, s := range m {
		s.TableCompleted(e)
	}
}

func (m multi) RunFinished(e RunEvent) {
	for _, s := range m {
		s.RunFinished(e)
	}
}

// Discard drops every event.
var Discard Sink = multi(nil)
