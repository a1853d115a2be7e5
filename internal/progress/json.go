package progress

import (
	"io"
	"time"

	"github.com/goccy/go-json"
)

// JSONSink writes one JSON object per event.
type JSONSink struct {
	enc *json.Encoder
	err error
}

type jsonEvent struct {
	Event       string    `json:"event"`
	RunID       string    `json:"run_id"`
	Time        time.Time `json:"time"`
	State       string    `json:"state,omitempty"`
	Output      string    `json:"output,omitempty"`
	Table       string    `json:"table,omitempty"`
	Status      string    `json:"status,omitempty"`
	Rule        string    `json:"rule,omitempty"`
	RowsRead    int64     `json:"rows_read,omitempty"`
	RowsEmitted int64     `json:"rows_emitted,omitempty"`
	DurationMS  int64     `json:"duration_ms,omitempty"`
	Done        int       `json:"done,omitempty"`
	Total       int       `json:"total,omitempty"`
	Tables      int       `json:"tables,omitempty"`
	FailedTable string    `json:"failed_table,omitempty"`
	Error       string    `json:"error,omitempty"`
}

// NewJSONSink creates a sink writing JSON lines to w.
func NewJSONSink(w io.Writer) *JSONSink {
	return &JSONSink{enc: json.NewEncoder(w)}
}

// Err returns the first write error.
func (s *JSONSink) Err() error {
	return s.err
}

func (s *JSONSink) write(e jsonEvent) {
	if s.err != nil {
		return
	}
	s.err = s.enc.Encode(e)
}

func (s *JSONSink) RunStarted(e RunEvent) {
	s.write(jsonEvent{Event: "run_started", RunID: e.RunID, Time: e.Time, State: string(e.State), Output: e.Output})
}

func (s *JSONSink) TableCompleted(e TableEvent) {
	r := e.Result
	s.write(jsonEvent{
		Event:       "table_completed",
		RunID:       e.RunID,
		Time:        time.Now().UTC(),
		Table:       r.Table,
		Status:      string(r.Status),
		Rule:        r.Rule,
		RowsRead:    r.RowsRead,
		RowsEmitted: r.RowsEmitted,
		DurationMS:  r.Duration.Milliseconds(),
		Done:        e.Done,
		Total:       e.Total,
		Error:       r.Error,
	})
}

func (s *JSONSink) RunFinished(e RunEvent) {
	out := jsonEvent{Event: "run_finished", RunID: e.RunID, Time: e.Time, State: string(e.State), Output: e.Output}
	if e.Summary != nil {
		out.Tables = e.Summary.TablesProcessed
		out.RowsEmitted = e.Summary.RowsEmitted
		out.FailedTable = e.Summary.FailedTable
	}
	if e.Err != nil {
		out.Error = e.Err.Error()
	}
	s.write(out)
}
