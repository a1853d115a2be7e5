// Package sink writes exported tables to their destination: a SQL dump file,
// a JSON lines file, or another database.
//
// Each table is written through its own TableWriter. A writer's rows become
// visible in the destination only on Commit, so tables streamed concurrently
// never interleave and an aborted table leaves nothing behind.
package sink

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/leapstack-labs/leapdump/pkg/core"
	"github.com/leapstack-labs/leapdump/pkg/dialect"
)

// DefaultBatchSize is the number of rows per INSERT statement.
const DefaultBatchSize = 100

// Capabilities describes what a sink can accept.
type Capabilities struct {
	// VariableColumns is set when rows of one table may carry different
	// column sets, which makes the Omit redaction possible.
	VariableColumns bool
	// ReferentialOrder is set when parents must be written before children.
	ReferentialOrder bool
}

// Sink is an export destination.
type Sink interface {
	Capabilities() Capabilities
	// BeginTable starts a table segment. It may be called concurrently.
	BeginTable(ctx context.Context, table core.Table) (TableWriter, error)
	// Location describes where the output goes.
	Location() string
	Close() error
}

// Sequencer is implemented by sinks that lay tables out in a fixed order
// whatever order their writers commit in.
type Sequencer interface {
	Sequence(tables []string)
}

// TableWriter receives the rows of one table.
type TableWriter interface {
	WriteRow(ctx context.Context, row core.Row) error
	// Commit makes the segment part of the output.
	Commit() error
	// Abort discards the segment. It is safe to call after Commit.
	Abort()
}

// Options configures Open.
type Options struct {
	// Dialect renders SQL dumps. Defaults to the source dialect chosen by the caller.
	Dialect   *dialect.Dialect
	BatchSize int
	// ForeignKeys enables constraint enforcement in database destinations.
	ForeignKeys bool
	// Stdout receives "-" output.
	Stdout io.Writer
	Logger *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.Dialect == nil {
		o.Dialect = dialect.SQLite
	}
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.Stdout == nil {
		o.Stdout = os.Stdout
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}
	return o
}

// Open returns the sink for dest:
//
//   - "-"                SQL dump on stdout
//   - path.sql           SQL dump file
//   - path.jsonl|ndjson  JSON lines file
//   - sqlite://path      SQLite database
//   - duckdb://path      DuckDB database
func Open(ctx context.Context, dest string, opts Options) (Sink, error) {
	opts = opts.withDefaults()

	if dest == "" {
		return nil, fmt.Errorf("sink: no output destination")
	}
	if dest == "-" {
		return NewSQLDump(nopCloser{opts.Stdout}, "stdout", opts), nil
	}
	if scheme, path, ok := strings.Cut(dest, "://"); ok {
		switch scheme {
		case "sqlite", "duckdb":
			return OpenDatabase(ctx, scheme, path, opts)
		default:
			return nil, fmt.Errorf("sink: unsupported scheme %q", scheme)
		}
	}

	switch strings.ToLower(filepath.Ext(dest)) {
	case ".sql":
		f, err := create(dest)
		if err != nil {
			return nil, err
		}
		return NewSQLDump(f, dest, opts), nil
	case ".jsonl", ".ndjson":
		f, err := create(dest)
		if err != nil {
			return nil, err
		}
		return NewJSONLines(f, dest, opts), nil
	default:
		return nil, fmt.Errorf("sink: cannot infer format of %q (use .sql, .jsonl, sqlite:// or duckdb://)", dest)
	}
}

func create(path string) (*os.File, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("sink: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("sink: %w", err)
	}
	return f, nil
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }
