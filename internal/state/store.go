// Package state records export run history in a local SQLite database.
// A run row is created when an export starts, one table_runs row is added per
// processed table, and the run row is finalised with the summary.
package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/leapstack-labs/leapdump/pkg/adapters/sqlite"
	"github.com/leapstack-labs/leapdump/pkg/core"
)

var (
	// ErrNotOpen is returned when the store is used before Open.
	ErrNotOpen = errors.New("state: database not opened")
	// ErrRunNotFound is returned by GetRun for unknown ids.
	ErrRunNotFound = errors.New("state: run not found")
)

const timeLayout = time.RFC3339Nano

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Question)

// SQLiteStore persists runs in SQLite.
type SQLiteStore struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

// NewSQLiteStore creates a store. If logger is nil, a discard logger is used.
func NewSQLiteStore(logger *slog.Logger) *SQLiteStore {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &SQLiteStore{logger: logger}
}

// Open opens the database at path and applies migrations.
// Use ":memory:" for an in-memory database.
func (s *SQLiteStore) Open(ctx context.Context, path string) error {
	dsn := sqlite.BuildDSN(path, map[string]string{
		"foreign_keys": "on",
		"busy_timeout": "5000",
	})
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open state database: %w", err)
	}
	// one writer keeps the in-memory database shared and avoids SQLITE_BUSY
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping state database: %w", err)
	}
	s.db = db
	s.path = path

	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		s.db = nil
		return err
	}
	s.logger.Debug("state store opened", slog.String("path", path))
	return nil
}

// Path returns the database path passed to Open.
func (s *SQLiteStore) Path() string {
	return s.path
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// CreateRun inserts a run in the initializing state. An empty id is replaced
// by a generated one, which is returned.
func (s *SQLiteStore) CreateRun(ctx context.Context, id, output string, startedAt time.Time) (string, error) {
	if s.db == nil {
		return "", ErrNotOpen
	}
	if id == "" {
		id = uuid.NewString()
	}
	if startedAt.IsZero() {
		startedAt = time.Now()
	}

	query, args, err := psql.Insert("runs").
		Columns("id", "state", "output", "started_at").
		Values(id, string(core.StateInitializing), output, startedAt.UTC().Format(timeLayout)).
		ToSql()
	if err != nil {
		return "", err
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return "", fmt.Errorf("failed to create run: %w", err)
	}

	s.logger.Debug("run created", slog.String("id", id))
	return id, nil
}

// RecordTable appends a table result to a run and bumps its counters.
func (s *SQLiteStore) RecordTable(ctx context.Context, runID string, r core.TableResult) error {
	if s.db == nil {
		return ErrNotOpen
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query, args, err := psql.Insert("table_runs").
		Columns("run_id", "table_name", "status", "rule", "rows_read", "rows_emitted", "duration_ms", "error").
		Values(runID, r.Table, string(r.Status), r.Rule, r.RowsRead, r.RowsEmitted, r.Duration.Milliseconds(), r.Error).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to record table %s: %w", r.Table, err)
	}

	query, args, err = psql.Update("runs").
		Set("state", string(core.StateStreaming)).
		Set("tables_processed", sq.Expr("tables_processed + 1")).
		Set("rows_emitted", sq.Expr("rows_emitted + ?", r.RowsEmitted)).
		Where(sq.Eq{"id": runID}).
		ToSql()
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return tx.Commit()
}

// CompleteRun stores the final summary of a run.
func (s *SQLiteStore) CompleteRun(ctx context.Context, sum core.RunSummary) error {
	if s.db == nil {
		return ErrNotOpen
	}
	finished := sum.FinishedAt
	if finished.IsZero() {
		finished = time.Now()
	}

	query, args, err := psql.Update("runs").
		Set("state", string(sum.State)).
		Set("tables_processed", sum.TablesProcessed).
		Set("rows_emitted", sum.RowsEmitted).
		Set("finished_at", finished.UTC().Format(timeLayout)).
		Set("failed_table", sum.FailedTable).
		Set("error", sum.Error).
		Where(sq.Eq{"id": sum.RunID}).
		ToSql()
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, sum.RunID)
	}
	return nil
}

var runColumns = []string{"id", "state", "output", "tables_processed", "rows_emitted", "started_at", "finished_at", "failed_table", "error"}

// GetRun returns one run by id.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*core.RunSummary, error) {
	if s.db == nil {
		return nil, ErrNotOpen
	}
	query, args, err := psql.Select(runColumns...).From("runs").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, err
	}

	run, err := scanRun(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// ListRuns returns the most recent runs, newest first. A limit <= 0 returns all.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]core.RunSummary, error) {
	if s.db == nil {
		return nil, ErrNotOpen
	}
	b := psql.Select(runColumns...).From("runs").OrderBy("started_at DESC", "id")
	if limit > 0 {
		b = b.Limit(uint64(limit))
	}
	query, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []core.RunSummary
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// ListTableRuns returns the table results of a run in recording order.
func (s *SQLiteStore) ListTableRuns(ctx context.Context, runID string) ([]core.TableResult, error) {
	if s.db == nil {
		return nil, ErrNotOpen
	}
	query, args, err := psql.
		Select("table_name", "status", "rule", "rows_read", "rows_emitted", "duration_ms", "error").
		From("table_runs").
		Where(sq.Eq{"run_id": runID}).
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list table runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []core.TableResult
	for rows.Next() {
		var (
			r      core.TableResult
			status string
			ms     int64
		)
		if err := rows.Scan(&r.Table, &status, &r.Rule, &r.RowsRead, &r.RowsEmitted, &ms, &r.Error); err != nil {
			return nil, fmt.Errorf("failed to scan table run: %w", err)
		}
		r.Status = core.TableStatus(status)
		r.Duration = time.Duration(ms) * time.Millisecond
		out = append(out, r)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*core.RunSummary, error) {
	var (
		run      core.RunSummary
		state    string
		started  string
		finished sql.NullString
	)
	if err := row.Scan(&run.RunID, &state, &run.Output, &run.TablesProcessed, &run.RowsEmitted,
		&started, &finished, &run.FailedTable, &run.Error); err != nil {
		return nil, err
	}
	run.State = core.RunState(state)

	var err error
	if run.StartedAt, err = time.Parse(timeLayout, started); err != nil {
		return nil, fmt.Errorf("invalid started_at %q: %w", started, err)
	}
	if finished.Valid {
		if run.FinishedAt, err = time.Parse(timeLayout, finished.String); err != nil {
			return nil, fmt.Errorf("invalid finished_at %q: %w", finished.String, err)
		}
	}
	return &run, nil
}
