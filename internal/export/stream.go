package export

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/leapstack-labs/leapdump/internal/progress"
	"github.com/leapstack-labs/leapdump/internal/redact"
	"github.com/leapstack-labs/leapdump/internal/sink"
	"github.com/leapstack-labs/leapdump/pkg/core"
)

// stream exports every table. Sinks that need referential order get one
// level at a time; otherwise all tables share one pool. The first failure
// cancels the rest and no new table starts after it.
func (e *Exporter) stream(ctx context.Context, plan *Plan, tracker *progress.Tracker) error {
	caps := e.cfg.Sink.Capabilities()
	if seq, ok := e.cfg.Sink.(sink.Sequencer); ok {
		seq.Sequence(plan.Order)
	}
	batches := [][]string{plan.Order}
	if caps.ReferentialOrder {
		batches = plan.Levels
	}

	for _, batch := range batches {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(e.cfg.Concurrency)
		for _, name := range batch {
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				return e.exportTable(gctx, plan, name, caps, tracker)
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
	}
	return nil
}

func (e *Exporter) exportTable(ctx context.Context, plan *Plan, name string, caps sink.Capabilities, tracker *progress.Tracker) error {
	table, _ := e.cfg.Catalog.Table(name)
	rule := plan.Compiled.Rules[name]
	spec := plan.Compiled.Redactions[name]
	logger := e.logger.With(slog.String("table", name))
	start := time.Now()

	result := core.TableResult{Table: name, Rule: rule.String()}
	finish := func(err error) error {
		result.Duration = time.Since(start)
		if err != nil {
			// tables cut short by another table's failure are not reported
			if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
				return err
			}
			result.Status = core.TableFailed
			result.RowsEmitted = 0
			result.Error = err.Error()
		}
		tracker.TableCompleted(progress.TableEvent{RunID: e.cfg.RunID, Result: result})
		return err
	}

	w, err := e.cfg.Sink.BeginTable(ctx, table)
	if err != nil {
		return finish(core.NewDataAccessError(name, "begin table", err))
	}

	if rule.Kind == core.RuleExcludeAll {
		if err := w.Commit(); err != nil {
			w.Abort()
			return finish(core.NewDataAccessError(name, "write", err))
		}
		result.Status = core.TableExcluded
		logger.Debug("table excluded", slog.String("origin", string(rule.Origin)))
		return finish(nil)
	}

	if !caps.VariableColumns && hasOmit(spec) {
		logger.Debug("sink has fixed columns; omitted columns are blanked")
	}
	opts := redact.Options{Salt: e.cfg.Policy.HashSalt, VariableColumns: caps.VariableColumns}

	var writeErr error
	err = e.cfg.Source.StreamRows(ctx, table, rule.Predicate(), func(row core.Row) error {
		result.RowsRead++
		out, ok := redact.Row(rule, spec, row, opts)
		if !ok {
			return nil
		}
		if err := w.WriteRow(ctx, out); err != nil {
			writeErr = err
			return err
		}
		result.RowsEmitted++
		return nil
	})
	if err != nil {
		w.Abort()
		if writeErr != nil {
			return finish(core.NewDataAccessError(name, "write", writeErr))
		}
		return finish(core.NewDataAccessError(name, "stream", err))
	}
	if err := w.Commit(); err != nil {
		w.Abort()
		return finish(core.NewDataAccessError(name, "write", err))
	}

	result.Status = core.TableExported
	logger.Debug("table exported", slog.Int64("read", result.RowsRead), slog.Int64("emitted", result.RowsEmitted))
	return finish(nil)
}

func hasOmit(spec core.RedactionSpec) bool {
	for _, r := range spec {
		if r.Action == core.RedactOmit {
			return true
		}
	}
	return false
}
