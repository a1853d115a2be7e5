package sink

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/leapstack-labs/leapdump/pkg/adapters/sqlite"
	"github.com/leapstack-labs/leapdump/pkg/core"
	"github.com/leapstack-labs/leapdump/pkg/dialect"

	_ "github.com/marcboeker/go-duckdb" // duckdb driver
)

// Database writes tables into a SQLite or DuckDB database, one transaction
// per table. Tables are created if missing; existing tables receive the rows
// as they are, so constraints of a pre-created schema apply.
type Database struct {
	db       *sql.DB
	kind     string
	location string
	d        *dialect.Dialect
	batch    int
	fk       bool
	logger   *slog.Logger
}

// OpenDatabase opens a database destination. kind is "sqlite" or "duckdb".
func OpenDatabase(ctx context.Context, kind, path string, opts Options) (*Database, error) {
	opts = opts.withDefaults()
	if path == "" {
		return nil, fmt.Errorf("sink: %s destination needs a path", kind)
	}

	d, ok := dialect.Get(kind)
	if !ok {
		return nil, fmt.Errorf("sink: unsupported database %q", kind)
	}
	var (
		db  *sql.DB
		err error
	)
	switch kind {
	case "sqlite":
		fk := "off"
		if opts.ForeignKeys {
			fk = "on"
		}
		db, err = sql.Open("sqlite", sqlite.BuildDSN(path, map[string]string{"foreign_keys": fk, "busy_timeout": "5000"}))
	case "duckdb":
		db, err = sql.Open("duckdb", path)
	default:
		return nil, fmt.Errorf("sink: %s is not a writable destination", kind)
	}
	if err != nil {
		return nil, fmt.Errorf("sink: opening %s: %w", kind, err)
	}
	// a single writer; table transactions queue on the connection
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sink: connecting to %s: %w", kind, err)
	}

	opts.Logger.Debug("database sink opened", slog.String("kind", kind), slog.String("path", path))
	return &Database{
		db:       db,
		kind:     kind,
		location: kind + "://" + path,
		d:        d,
		batch:    opts.BatchSize,
		fk:       opts.ForeignKeys,
		logger:   opts.Logger,
	}, nil
}

func (s *Database) Capabilities() Capabilities {
	return Capabilities{ReferentialOrder: s.fk}
}

func (s *Database) Location() string { return s.location }

// SQLDB exposes the destination connection.
func (s *Database) SQLDB() *sql.DB { return s.db }

func (s *Database) Close() error {
	return s.db.Close()
}

// BeginTable opens the table transaction and creates the table.
func (s *Database) BeginTable(ctx context.Context, table core.Table) (TableWriter, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("sink: begin %s: %w", table.Name, err)
	}
	if _, err := tx.ExecContext(ctx, s.createTable(table)); err != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("sink: creating %s: %w", table.Name, err)
	}

	types := make(map[string]string, len(table.Columns))
	for _, c := range table.Columns {
		types[c.Name] = s.columnType(c.Type)
	}
	return &dbTableWriter{sink: s, tx: tx, table: table.Name, types: types}, nil
}

func (s *Database) createTable(table core.Table) string {
	var defs, pk []string
	for _, c := range table.Columns {
		def := s.d.QuoteIdentifier(c.Name) + " " + s.columnType(c.Type)
		if !c.Nullable {
			def += " NOT NULL"
		}
		defs = append(defs, def)
		if c.PrimaryKey {
			pk = append(pk, s.d.QuoteIdentifier(c.Name))
		}
	}
	if len(pk) > 0 {
		defs = append(defs, "PRIMARY KEY ("+strings.Join(pk, ", ")+")")
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", s.d.QuoteIdentifier(table.Name), strings.Join(defs, ", "))
}

// columnType maps a source column type to a type the destination accepts.
func (s *Database) columnType(src string) string {
	u := strings.ToUpper(src)
	has := func(subs ...string) bool {
		return slices.ContainsFunc(subs, func(sub string) bool { return strings.Contains(u, sub) })
	}

	if s.kind == "sqlite" {
		switch {
		case has("INTERVAL"):
			return "TEXT"
		case has("INT", "BOOL"):
			return "INTEGER"
		case has("BLOB", "BINARY", "BYTEA"):
			return "BLOB"
		case has("REAL", "FLOA", "DOUB"):
			return "REAL"
		case has("DEC", "NUMERIC"):
			return "NUMERIC"
		default:
			return "TEXT"
		}
	}

	switch {
	case has("INTERVAL", "POINT"):
		return "VARCHAR"
	case has("BOOL"):
		return "BOOLEAN"
	case has("INT"):
		return "BIGINT"
	case has("BLOB", "BINARY", "BYTEA"):
		return "BLOB"
	case has("REAL", "FLOA", "DOUB", "DEC", "NUMERIC"):
		return "DOUBLE"
	default:
		return "VARCHAR"
	}
}

type dbTableWriter struct {
	sink    *Database
	tx      *sql.Tx
	table   string
	types   map[string]string
	columns []string
	pending [][]any
	rows    int
	done    bool
}

func (w *dbTableWriter) WriteRow(ctx context.Context, row core.Row) error {
	if len(w.pending) > 0 && !slices.Equal(w.columns, row.Columns) {
		if err := w.flush(ctx); err != nil {
			return err
		}
	}
	w.columns = row.Columns

	values := make([]any, len(row.Values))
	for i, v := range row.Values {
		values[i] = w.value(row.Columns[i], v)
	}
	w.pending = append(w.pending, values)
	if len(w.pending) >= w.rowsPerInsert() {
		return w.flush(ctx)
	}
	return nil
}

// rowsPerInsert caps a batch so one INSERT stays under the parameter limit.
func (w *dbTableWriter) rowsPerInsert() int {
	return max(1, min(w.sink.batch, w.sink.d.ParamLimit()/max(1, len(w.columns))))
}

// value converts values the driver cannot bind to the column type.
func (w *dbTableWriter) value(column string, v any) any {
	t, ok := v.(time.Time)
	if !ok {
		return v
	}
	switch w.types[column] {
	case "TEXT", "VARCHAR":
		return t.UTC().Format("2006-01-02 15:04:05.999999")
	}
	return v
}

func (w *dbTableWriter) flush(ctx context.Context) error {
	if len(w.pending) == 0 {
		return nil
	}
	d := w.sink.d
	b := d.StatementBuilder().
		Insert(d.QuoteIdentifier(w.table)).
		Columns(d.QuoteIdentifiers(w.columns)...)
	for _, values := range w.pending {
		b = b.Values(values...)
	}
	query, args, err := b.ToSql()
	if err != nil {
		return err
	}
	if _, err := w.tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("sink: inserting into %s: %w", w.table, err)
	}
	w.rows += len(w.pending)
	w.pending = w.pending[:0]
	return nil
}

func (w *dbTableWriter) Commit() error {
	if w.done {
		return fmt.Errorf("sink: %s already finished", w.table)
	}
	if err := w.flush(context.Background()); err != nil {
		w.Abort()
		return err
	}
	w.done = true
	if err := w.tx.Commit(); err != nil {
		return fmt.Errorf("sink: committing %s: %w", w.table, err)
	}
	w.sink.logger.Debug("table committed", slog.String("table", w.table), slog.Int("rows", w.rows))
	return nil
}

func (w *dbTableWriter) Abort() {
	if w.done {
		return
	}
	w.done = true
	_ = w.tx.Rollback()
}
