package progress

import (
	"log/slog"

	"github.com/leapstack-labs/leapdump/pkg/core"
)

// LogSink writes events to a structured logger.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a sink logging through logger.
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) RunStarted(e RunEvent) {
	s.logger.Info("export started", "run_id", e.RunID, "output", e.Output)
}

func (s *LogSink) TableCompleted(e TableEvent) {
	r := e.Result
	attrs := []any{
		"table", r.Table,
		"status", r.Status,
		"rows", r.RowsEmitted,
		"read", r.RowsRead,
		"duration", r.Duration,
		"progress", e.Done,
		"total", e.Total,
	}
	if r.Status == core.TableFailed {
		s.logger.Error("table failed", append(attrs, "error", r.Error)...)
		return
	}
	s.logger.Info("table done", attrs...)
}

func (s *LogSink) RunFinished(e RunEvent) {
	if e.Err != nil {
		s.logger.Error("export failed", "run_id", e.RunID, "error", e.Err)
		return
	}
	attrs := []any{"run_id", e.RunID}
	if e.Summary != nil {
		attrs = append(attrs, "tables", e.Summary.TablesProcessed, "rows", e.Summary.RowsEmitted, "output", e.Summary.Output)
	}
	s.logger.Info("export completed", attrs...)
}
