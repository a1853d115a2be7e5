// Package export drives one export run end to end.
//
// A run moves through Initializing, Resolving, Compiling and Streaming to
// Completed, or to Failed from any non-terminal state. Every allow-set and
// rule is final before the first table starts streaming.
package export

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/leapstack-labs/leapdump/internal/catalog"
	"github.com/leapstack-labs/leapdump/internal/extension"
	"github.com/leapstack-labs/leapdump/internal/progress"
	"github.com/leapstack-labs/leapdump/internal/sink"
	"github.com/leapstack-labs/leapdump/pkg/adapter"
	"github.com/leapstack-labs/leapdump/pkg/core"
)

// DefaultConcurrency is the number of tables streamed at once.
const DefaultConcurrency = 4

// Source is the read side of a run.
type Source interface {
	SelectKeys(ctx context.Context, table, column string, where core.Predicate) ([]any, error)
	StreamRows(ctx context.Context, table core.Table, where core.Predicate, fn adapter.RowFunc) error
}

// Config holds the collaborators of a run.
type Config struct {
	Source  Source
	Catalog *catalog.Catalog
	Policy  *core.ExportPolicy
	// Hooks may be nil.
	Hooks *extension.Registry
	// Sink is required by Run. It is not closed by the exporter.
	Sink sink.Sink
	// Progress may be nil.
	Progress progress.Sink
	// Concurrency bounds parallel table streams; <= 0 means DefaultConcurrency.
	Concurrency int
	// RunID is generated when empty.
	RunID  string
	Logger *slog.Logger
}

// Exporter runs one export. It is not reusable.
type Exporter struct {
	cfg    Config
	logger *slog.Logger

	mu    sync.Mutex
	state core.RunState
	ran   bool
}

// New creates an exporter.
func New(cfg Config) *Exporter {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.RunID == "" {
		cfg.RunID = uuid.NewString()
	}
	return &Exporter{
		cfg:    cfg,
		logger: cfg.Logger.With(slog.String("run_id", cfg.RunID)),
		state:  core.StateInitializing,
	}
}

// RunID returns the identifier of the run.
func (e *Exporter) RunID() string {
	return e.cfg.RunID
}

// State returns the current state.
func (e *Exporter) State() core.RunState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Exporter) transition(to core.RunState) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state.IsTerminal() {
		return
	}
	e.logger.Debug("run state", slog.String("from", string(e.state)), slog.String("to", string(to)))
	e.state = to
}

func (e *Exporter) validate(needSink bool) error {
	switch {
	case e.cfg.Source == nil:
		return errors.New("export: no source")
	case e.cfg.Catalog == nil:
		return errors.New("export: no catalog")
	case e.cfg.Policy == nil:
		return errors.New("export: no policy")
	case needSink && e.cfg.Sink == nil:
		return errors.New("export: no sink")
	}
	return nil
}

// Run resolves, compiles and streams every catalog table into the sink. The
// summary is returned on failure too. Output already written is left in place.
func (e *Exporter) Run(ctx context.Context) (*core.RunSummary, error) {
	e.mu.Lock()
	if e.ran {
		e.mu.Unlock()
		return nil, errors.New("export: exporter already ran")
	}
	e.ran = true
	e.mu.Unlock()

	if err := e.validate(true); err != nil {
		return nil, err
	}

	tables := e.cfg.Catalog.Tables()
	tracker := progress.NewTracker(e.cfg.Progress, len(tables))
	sum := &core.RunSummary{
		RunID:     e.cfg.RunID,
		Output:    e.cfg.Sink.Location(),
		StartedAt: time.Now().UTC(),
	}

	e.logger.Info("starting export", slog.String("output", sum.Output), slog.Int("tables", len(tables)))
	tracker.RunStarted(progress.RunEvent{RunID: sum.RunID, State: core.StateInitializing, Output: sum.Output, Time: sum.StartedAt})

	plan, err := e.plan(ctx)
	if err == nil {
		e.transition(core.StateStreaming)
		err = e.stream(ctx, plan, tracker)
	}

	sum.TablesProcessed = tracker.Tables() - tracker.Failed()
	sum.RowsEmitted = tracker.Rows()
	sum.FinishedAt = time.Now().UTC()
	if err != nil {
		e.transition(core.StateFailed)
		sum.Error = err.Error()
		var dae *core.DataAccessError
		if errors.As(err, &dae) && !errors.Is(err, context.Canceled) {
			sum.FailedTable = dae.Table
		}
		e.logger.Error("export failed", slog.String("table", sum.FailedTable), slog.Any("error", err))
	} else {
		e.transition(core.StateCompleted)
		e.logger.Info("export completed", slog.Int("tables", sum.TablesProcessed), slog.Int64("rows", sum.RowsEmitted))
	}
	sum.State = e.State()

	tracker.RunFinished(progress.RunEvent{
		RunID:   sum.RunID,
		State:   sum.State,
		Output:  sum.Output,
		Time:    sum.FinishedAt,
		Summary: sum,
		Err:     err,
	})
	return sum, err
}

// Plan resolves and compiles without streaming any row.
func (e *Exporter) Plan(ctx context.Context) (*Plan, error) {
	e.mu.Lock()
	if e.ran {
		e.mu.Unlock()
		return nil, errors.New("export: exporter already ran")
	}
	e.ran = true
	e.mu.Unlock()

	if err := e.validate(false); err != nil {
		return nil, err
	}
	plan, err := e.plan(ctx)
	if err != nil {
		e.transition(core.StateFailed)
		return nil, err
	}
	e.transition(core.StateCompleted)
	return plan, nil
}
