package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/leapstack-labs/leapdump/pkg/adapter"
	"github.com/leapstack-labs/leapdump/pkg/core"
	"github.com/leapstack-labs/leapdump/pkg/dialect"
)

// tablesQuery uses COLUMN_TYPE rather than DATA_TYPE so that dumps keep
// lengths and UNSIGNED modifiers.
const tablesQuery = `
		SELECT
			c.TABLE_NAME,
			c.COLUMN_NAME,
			c.COLUMN_TYPE,
			c.IS_NULLABLE,
			c.ORDINAL_POSITION,
			IF(c.COLUMN_KEY = 'PRI', 'YES', 'NO')
		FROM information_schema.COLUMNS c
		JOIN information_schema.TABLES t
			ON t.TABLE_SCHEMA = c.TABLE_SCHEMA AND t.TABLE_NAME = c.TABLE_NAME
		WHERE c.TABLE_SCHEMA = ? AND t.TABLE_TYPE = 'BASE TABLE'
		ORDER BY c.TABLE_NAME, c.ORDINAL_POSITION
	`

// Adapter implements adapter.Source for MySQL and MariaDB.
type Adapter struct {
	adapter.BaseSQLAdapter
}

// New creates a new MySQL adapter instance.
// If logger is nil, a discard logger is used.
func New(logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Adapter{
		BaseSQLAdapter: adapter.BaseSQLAdapter{Logger: logger, D: dialect.MySQL},
	}
}

// Dialect returns the SQL dialect for this adapter.
func (a *Adapter) Dialect() *dialect.Dialect {
	return dialect.MySQL
}

// Connect establishes a connection to MySQL.
func (a *Adapter) Connect(ctx context.Context, cfg adapter.Config) error {
	if cfg.Database == "" {
		return fmt.Errorf("mysql source requires a database name")
	}
	dsn := buildMySQLDSN(cfg)

	a.Logger.Debug("connecting to mysql", slog.String("host", cfg.Host), slog.String("database", cfg.Database))

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return fmt.Errorf("failed to open mysql connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping mysql: %w", err)
	}

	a.DB = db
	a.Cfg = cfg
	return nil
}

// Tables lists the base tables of the configured database.
func (a *Adapter) Tables(ctx context.Context) ([]core.Table, error) {
	return a.TablesFromQuery(ctx, tablesQuery, a.Cfg.Database)
}

// buildMySQLDSN constructs a go-sql-driver DSN. A host starting with "/" is
// treated as a unix socket path.
func buildMySQLDSN(cfg adapter.Config) string {
	mc := mysql.NewConfig()
	mc.User = cfg.Username
	mc.Passwd = cfg.Password
	mc.DBName = cfg.Database

	host := cfg.Host
	if host == "" {
		host = "127.0.0.1"
	}
	if strings.HasPrefix(host, "/") {
		mc.Net = "unix"
		mc.Addr = host
	} else {
		port := cfg.Port
		if port == 0 {
			port = 3306
		}
		mc.Net = "tcp"
		mc.Addr = net.JoinHostPort(host, strconv.Itoa(port))
	}

	// DATETIME values stay as text so zero dates survive the round trip.
	mc.ParseTime = false
	mc.Params = map[string]string{"charset": "utf8mb4"}
	for k, v := range cfg.Options {
		mc.Params[k] = v
	}
	return mc.FormatDSN()
}

// Ensure Adapter implements adapter.Source interface
var _ adapter.Source = (*Adapter)(nil)
