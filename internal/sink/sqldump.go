package sink

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"

	"github.com/leapstack-labs/leapdump/pkg/core"
	"github.com/leapstack-labs/leapdump/pkg/dialect"
)

// SQLDump writes DROP/CREATE TABLE and batched INSERT statements.
type SQLDump struct {
	out    file
	d      *dialect.Dialect
	batch  int
	logger *slog.Logger
	err    error
}

// NewSQLDump creates a dump writing to w, which is closed by Close.
func NewSQLDump(w io.WriteCloser, location string, opts Options) *SQLDump {
	opts = opts.withDefaults()
	s := &SQLDump{
		out:    file{w: w, location: location},
		d:      opts.Dialect,
		batch:  opts.BatchSize,
		logger: opts.Logger,
	}

	var b strings.Builder
	fmt.Fprintf(&b, "-- leapdump export (%s)\n", s.d.Name)
	for _, stmt := range s.d.Preamble {
		b.WriteString(stmt)
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	s.err = s.out.write(b.String())
	return s
}

func (s *SQLDump) Capabilities() Capabilities { return Capabilities{} }

func (s *SQLDump) Location() string { return s.out.location }

// BeginTable stages the table definition.
func (s *SQLDump) BeginTable(_ context.Context, table core.Table) (TableWriter, error) {
	if s.err != nil {
		return nil, s.err
	}
	seg, err := newSegment()
	if err != nil {
		return nil, err
	}
	w := &sqlTableWriter{dump: s, seg: seg, table: table, ref: s.d.QuoteIdentifier(table.Name)}
	if _, err := seg.WriteString(s.CreateTable(table)); err != nil {
		seg.abort(&s.out, table.Name)
		return nil, err
	}
	return w, nil
}

// CreateTable renders the DROP and CREATE statements of table.
func (s *SQLDump) CreateTable(table core.Table) string {
	ref := s.d.QuoteIdentifier(table.Name)
	var b strings.Builder
	fmt.Fprintf(&b, "DROP TABLE IF EXISTS %s;\n", ref)
	fmt.Fprintf(&b, "CREATE TABLE %s (\n", ref)

	var defs, pk []string
	for _, c := range table.Columns {
		def := s.d.QuoteIdentifier(c.Name) + " " + s.d.ColumnType(c.Type)
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
	b.WriteString("  " + strings.Join(defs, ",\n  ") + "\n")
	b.WriteString(");\n")
	return b.String()
}

// Sequence fixes the order of table segments in the dump.
func (s *SQLDump) Sequence(tables []string) { s.out.sequence(tables) }

// Close writes the postamble and closes the destination.
func (s *SQLDump) Close() error {
	var b strings.Builder
	for _, stmt := range s.d.Postamble {
		b.WriteString(stmt)
		b.WriteByte('\n')
	}
	return s.out.close(b.String())
}

type sqlTableWriter struct {
	dump    *SQLDump
	seg     *segment
	table   core.Table
	ref     string
	columns []string
	pending [][]any
	rows    int
}

func (w *sqlTableWriter) WriteRow(ctx context.Context, row core.Row) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(w.pending) > 0 && !slices.Equal(w.columns, row.Columns) {
		if err := w.flush(); err != nil {
			return err
		}
	}
	w.columns = row.Columns
	w.pending = append(w.pending, row.Values)
	if len(w.pending) >= w.dump.batch {
		return w.flush()
	}
	return nil
}

func (w *sqlTableWriter) flush() error {
	if len(w.pending) == 0 {
		return nil
	}
	d := w.dump.d
	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (%s) VALUES\n", w.ref, strings.Join(d.QuoteIdentifiers(w.columns), ", "))
	for i, values := range w.pending {
		b.WriteByte('(')
		for j, v := range values {
			if j > 0 {
				b.WriteString(", ")
			}
			b.WriteString(d.Literal(v))
		}
		b.WriteByte(')')
		if i < len(w.pending)-1 {
			b.WriteString(",\n")
		}
	}
	b.WriteString(";\n")

	w.rows += len(w.pending)
	w.pending = w.pending[:0]
	_, err := w.seg.WriteString(b.String())
	return err
}

func (w *sqlTableWriter) Commit() error {
	if err := w.flush(); err != nil {
		w.Abort()
		return err
	}
	if _, err := w.seg.WriteString("\n"); err != nil {
		w.Abort()
		return err
	}
	if err := w.seg.commit(&w.dump.out, w.table.Name); err != nil {
		return err
	}
	w.dump.logger.Debug("table segment written", slog.String("table", w.table.Name), slog.Int("rows", w.rows))
	return nil
}

func (w *sqlTableWriter) Abort() {
	w.seg.abort(&w.dump.out, w.table.Name)
}
