package state

import (
	"context"
	"log/slog"

	"github.com/leapstack-labs/leapdump/internal/progress"
)

// Recorder returns a progress sink that writes events to the store.
// Write failures never fail the export; they are logged at Warn.
func (s *SQLiteStore) Recorder(ctx context.Context) progress.Sink {
	return &recorder{ctx: context.WithoutCancel(ctx), store: s}
}

type recorder struct {
	ctx   context.Context
	store *SQLiteStore
}

func (r *recorder) warn(msg string, runID string, err error) {
	r.store.logger.Warn(msg, slog.String("run_id", runID), slog.Any("error", err))
}

func (r *recorder) RunStarted(e progress.RunEvent) {
	if _, err := r.store.CreateRun(r.ctx, e.RunID, e.Output, e.Time); err != nil {
		r.warn("failed to record run start", e.RunID, err)
	}
}

func (r *recorder) TableCompleted(e progress.TableEvent) {
	if err := r.store.RecordTable(r.ctx, e.RunID, e.Result); err != nil {
		r.warn("failed to record table", e.RunID, err)
	}
}

func (r *recorder) RunFinished(e progress.RunEvent) {
	if e.Summary == nil {
		return
	}
	if err := r.store.CompleteRun(r.ctx, *e.Summary); err != nil {
		r.warn("failed to record run completion", e.RunID, err)
	}
}
