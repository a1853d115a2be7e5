package sink

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/goccy/go-json"
	"github.com/leapstack-labs/leapdump/pkg/core"
)

// JSONLines writes one object per row: {"table":"users","row":{...}}.
// Row keys keep the column order of the source.
type JSONLines struct {
	out    file
	logger *slog.Logger
}

// NewJSONLines creates a JSON lines sink writing to w, which is closed by Close.
func NewJSONLines(w io.WriteCloser, location string, opts Options) *JSONLines {
	opts = opts.withDefaults()
	return &JSONLines{out: file{w: w, location: location}, logger: opts.Logger}
}

func (s *JSONLines) Capabilities() Capabilities {
	return Capabilities{VariableColumns: true}
}

func (s *JSONLines) Location() string { return s.out.location }

func (s *JSONLines) BeginTable(_ context.Context, table core.Table) (TableWriter, error) {
	seg, err := newSegment()
	if err != nil {
		return nil, err
	}
	name, err := json.Marshal(table.Name)
	if err != nil {
		seg.abort(&s.out, table.Name)
		return nil, err
	}
	return &jsonTableWriter{sink: s, seg: seg, table: table.Name, prefix: `{"table":` + string(name) + `,"row":{`}, nil
}

// Sequence fixes the order of table segments in the file.
func (s *JSONLines) Sequence(tables []string) { s.out.sequence(tables) }

func (s *JSONLines) Close() error {
	return s.out.close("")
}

type jsonTableWriter struct {
	sink   *JSONLines
	seg    *segment
	table  string
	prefix string
	buf    bytes.Buffer
	rows   int
}

func (w *jsonTableWriter) WriteRow(ctx context.Context, row core.Row) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	w.buf.Reset()
	w.buf.WriteString(w.prefix)
	for i, c := range row.Columns {
		if i > 0 {
			w.buf.WriteByte(',')
		}
		key, err := json.Marshal(c)
		if err != nil {
			return err
		}
		val, err := json.Marshal(jsonValue(row.Values[i]))
		if err != nil {
			return err
		}
		w.buf.Write(key)
		w.buf.WriteByte(':')
		w.buf.Write(val)
	}
	w.buf.WriteString("}}\n")
	w.rows++
	_, err := w.seg.Write(w.buf.Bytes())
	return err
}

// jsonValue keeps text readable: valid UTF-8 bytes become strings, other
// bytes fall through to base64.
func jsonValue(v any) any {
	switch x := v.(type) {
	case []byte:
		if utf8.Valid(x) {
			return string(x)
		}
		return x
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano)
	default:
		return v
	}
}

func (w *jsonTableWriter) Commit() error {
	if err := w.seg.commit(&w.sink.out, w.table); err != nil {
		return err
	}
	w.sink.logger.Debug("table segment written", slog.String("table", w.table), slog.Int("rows", w.rows))
	return nil
}

func (w *jsonTableWriter) Abort() {
	w.seg.abort(&w.sink.out, w.table)
}
