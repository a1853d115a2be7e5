package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/url"
	"sort"

	"github.com/leapstack-labs/leapdump/pkg/adapter"
	"github.com/leapstack-labs/leapdump/pkg/core"
	"github.com/leapstack-labs/leapdump/pkg/dialect"

	_ "modernc.org/sqlite" // sqlite driver
)

const tablesQuery = `
		SELECT
			m.name,
			p.name,
			p.type,
			CASE WHEN p."notnull" = 0 THEN 'YES' ELSE 'NO' END,
			p.cid + 1,
			CASE WHEN p.pk > 0 THEN 'YES' ELSE 'NO' END
		FROM sqlite_master m
		JOIN pragma_table_info(m.name) p
		WHERE m.type = 'table' AND m.name NOT LIKE 'sqlite_%'
		ORDER BY m.name, p.cid
	`

// Adapter implements adapter.Source for SQLite files.
type Adapter struct {
	adapter.BaseSQLAdapter
}

// New creates a new SQLite adapter instance.
// If logger is nil, a discard logger is used.
func New(logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Adapter{
		BaseSQLAdapter: adapter.BaseSQLAdapter{Logger: logger, D: dialect.SQLite},
	}
}

// Dialect returns the SQL dialect for this adapter.
func (a *Adapter) Dialect() *dialect.Dialect {
	return dialect.SQLite
}

// Connect opens the database file. Options become connection pragmas.
func (a *Adapter) Connect(ctx context.Context, cfg adapter.Config) error {
	path := cfg.Path
	if path == "" {
		path = ":memory:"
	}

	a.Logger.Debug("connecting to sqlite", slog.String("path", path))

	db, err := sql.Open("sqlite", BuildDSN(path, cfg.Options))
	if err != nil {
		return fmt.Errorf("failed to open sqlite database: %w", err)
	}
	if path == ":memory:" {
		// every pooled connection would otherwise see its own empty database
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping sqlite: %w", err)
	}

	a.DB = db
	a.Cfg = cfg
	return nil
}

// Tables lists every user table in the database.
func (a *Adapter) Tables(ctx context.Context) ([]core.Table, error) {
	return a.TablesFromQuery(ctx, tablesQuery)
}

// BuildDSN appends pragmas to a modernc sqlite path as _pragma parameters.
func BuildDSN(path string, pragmas map[string]string) string {
	if len(pragmas) == 0 {
		return path
	}
	keys := make([]string, 0, len(pragmas))
	for k := range pragmas {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	q := url.Values{}
	for _, k := range keys {
		q.Add("_pragma", fmt.Sprintf("%s(%s)", k, pragmas[k]))
	}
	return "file:" + path + "?" + q.Encode()
}

// Ensure Adapter implements adapter.Source interface
var _ adapter.Source = (*Adapter)(nil)
