package adapter

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/leapstack-labs/leapdump/pkg/core"
	"github.com/leapstack-labs/leapdump/pkg/dialect"
)

// InformationSchemaTablesQuery lists base-table columns of one schema. The
// sixth column reports primary-key membership as 'YES'/'NO'.
const InformationSchemaTablesQuery = `
		SELECT
			c.table_name,
			c.column_name,
			c.data_type,
			c.is_nullable,
			c.ordinal_position,
			CASE WHEN EXISTS (
				SELECT 1
				FROM information_schema.table_constraints tc
				JOIN information_schema.key_column_usage k
					ON k.constraint_name = tc.constraint_name
					AND k.table_schema = tc.table_schema
					AND k.table_name = tc.table_name
				WHERE tc.constraint_type = 'PRIMARY KEY'
					AND k.table_schema = c.table_schema
					AND k.table_name = c.table_name
					AND k.column_name = c.column_name
			) THEN 'YES' ELSE 'NO' END
		FROM information_schema.columns c
		JOIN information_schema.tables t
			ON t.table_schema = c.table_schema AND t.table_name = c.table_name
		WHERE c.table_schema = %s AND t.table_type = 'BASE TABLE'
		ORDER BY c.table_name, c.ordinal_position
	`

// BaseSQLAdapter provides common database/sql functionality for adapters.
// Embed this struct in concrete adapter implementations to get standard
// Close, SelectKeys and StreamRows implementations.
type BaseSQLAdapter struct {
	DB     *sql.DB
	Cfg    Config
	D      *dialect.Dialect
	Logger *slog.Logger
}

// Close closes the database connection.
func (b *BaseSQLAdapter) Close() error {
	if b.DB != nil {
		if b.Logger != nil {
			b.Logger.Debug("closing database connection")
		}
		return b.DB.Close()
	}
	return nil
}

// SQLDB exposes the underlying connection pool.
func (b *BaseSQLAdapter) SQLDB() *sql.DB {
	return b.DB
}

// IsConnected returns true if the database connection is established.
func (b *BaseSQLAdapter) IsConnected() bool {
	return b.DB != nil
}

// Exec executes a SQL statement that doesn't return rows.
func (b *BaseSQLAdapter) Exec(ctx context.Context, sqlStr string, args ...any) error {
	if !b.IsConnected() {
		return fmt.Errorf("database connection not established")
	}
	if _, err := b.DB.ExecContext(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("failed to execute SQL: %w", err)
	}
	return nil
}

// tableRef quotes a table name, qualifying it with the configured schema.
func (b *BaseSQLAdapter) tableRef(name string) string {
	return b.D.QuoteTable(b.Cfg.Schema, name)
}

// SelectKeys returns the distinct non-NULL values of column in matching rows.
// Predicates with more bind parameters than the dialect allows run as several
// statements.
func (b *BaseSQLAdapter) SelectKeys(ctx context.Context, table, column string, where core.Predicate) ([]any, error) {
	if !b.IsConnected() {
		return nil, fmt.Errorf("database connection not established")
	}

	plan := planWhere(b.D, where)
	columns := []string{column}
	if plan.recheck {
		for _, c := range where.Columns() {
			if !slices.Contains(columns, c) {
				columns = append(columns, c)
			}
		}
	}
	col := b.D.QuoteIdentifier(column)

	b.debug("selecting keys", "table", table, "column", column, "statements", len(plan.parts))

	var keys []any
	seen := make(map[string]struct{})
	for _, part := range plan.parts {
		cond, err := ToSqlizer(b.D, part)
		if err != nil {
			return nil, fmt.Errorf("failed to render predicate for %s: %w", table, err)
		}
		query, args, err := b.D.StatementBuilder().
			Select(b.D.QuoteIdentifiers(columns)...).
			Distinct().
			From(b.tableRef(table)).
			Where(cond).
			Where(col + " IS NOT NULL").
			ToSql()
		if err != nil {
			return nil, fmt.Errorf("failed to build key query for %s: %w", table, err)
		}

		err = b.scan(ctx, query, args, len(columns), func(values []any) error {
			for i, v := range values {
				if bs, ok := v.([]byte); ok {
					values[i] = string(bs)
				}
			}
			if plan.recheck && !where.Eval(core.NewRow(columns, values)) {
				return nil
			}
			k, _ := core.KeyOf(values[0])
			if _, dup := seen[k]; dup {
				return nil
			}
			seen[k] = struct{}{}
			keys = append(keys, values[0])
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to select keys of %s.%s: %w", table, column, err)
		}
	}
	return keys, nil
}

// StreamRows calls fn for each matching row of the table. Each row is
// delivered once even when the predicate is split across statements.
func (b *BaseSQLAdapter) StreamRows(ctx context.Context, table core.Table, where core.Predicate, fn RowFunc) error {
	if !b.IsConnected() {
		return fmt.Errorf("database connection not established")
	}
	if len(table.Columns) == 0 {
		return fmt.Errorf("table %s has no columns", table.Name)
	}

	plan := planWhere(b.D, where)
	names := table.ColumnNames()
	binary := make([]bool, len(table.Columns))
	for i, c := range table.Columns {
		binary[i] = IsBinaryType(c.Type)
	}

	b.debug("streaming rows", "table", table.Name, "statements", len(plan.parts))

	for _, part := range plan.parts {
		cond, err := ToSqlizer(b.D, part)
		if err != nil {
			return fmt.Errorf("failed to render predicate for %s: %w", table.Name, err)
		}
		query, args, err := b.D.StatementBuilder().
			Select(b.D.QuoteIdentifiers(names)...).
			From(b.tableRef(table.Name)).
			Where(cond).
			ToSql()
		if err != nil {
			return fmt.Errorf("failed to build row query for %s: %w", table.Name, err)
		}

		var fnErr error
		err = b.scan(ctx, query, args, len(names), func(values []any) error {
			for i, v := range values {
				if bs, ok := v.([]byte); ok && !binary[i] {
					values[i] = string(bs)
				}
			}
			row := core.NewRow(names, values)
			if plan.recheck && !where.Eval(row) {
				return nil
			}
			fnErr = fn(row)
			return fnErr
		})
		if fnErr != nil {
			return fnErr
		}
		if err != nil {
			return fmt.Errorf("failed to stream rows of %s: %w", table.Name, err)
		}
	}
	return nil
}

// scan runs one query and hands each row's values to fn.
func (b *BaseSQLAdapter) scan(ctx context.Context, query string, args []any, width int, fn func([]any) error) error {
	//nolint:rowserrcheck // rows.Err() is checked after iteration
	rows, err := b.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		values := make([]any, width)
		ptrs := make([]any, width)
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return fmt.Errorf("scan: %w", err)
		}
		if err := fn(values); err != nil {
			return err
		}
	}
	return rows.Err()
}

// TablesFromQuery runs a schema query returning (table, column, type,
// nullable, position, is_key) rows and groups them into tables.
func (b *BaseSQLAdapter) TablesFromQuery(ctx context.Context, query string, args ...any) ([]core.Table, error) {
	if !b.IsConnected() {
		return nil, fmt.Errorf("database connection not established")
	}

	rows, err := b.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query schema: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var tables []core.Table
	index := make(map[string]int)
	for rows.Next() {
		var tableName, nullable, isKey string
		var col core.Column
		if err := rows.Scan(&tableName, &col.Name, &col.Type, &nullable, &col.Position, &isKey); err != nil {
			return nil, fmt.Errorf("failed to scan column metadata: %w", err)
		}
		col.Nullable = strings.EqualFold(nullable, "YES")
		col.PrimaryKey = strings.EqualFold(isKey, "YES")

		i, ok := index[tableName]
		if !ok {
			i = len(tables)
			index[tableName] = i
			tables = append(tables, core.Table{Schema: b.Cfg.Schema, Name: tableName})
		}
		tables[i].Columns = append(tables[i].Columns, col)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating column metadata: %w", err)
	}
	return tables, nil
}

// TablesFromInformationSchema lists the tables of schema using the ANSI
// information_schema views.
func (b *BaseSQLAdapter) TablesFromInformationSchema(ctx context.Context, schema string) ([]core.Table, error) {
	//nolint:gosec // placeholder comes from the dialect
	query := fmt.Sprintf(InformationSchemaTablesQuery, b.D.FormatPlaceholder(1))
	return b.TablesFromQuery(ctx, query, schema)
}

func (b *BaseSQLAdapter) debug(msg string, args ...any) {
	if b.Logger != nil {
		b.Logger.Debug(msg, args...)
	}
}

// IsBinaryType reports whether a declared column type holds raw bytes.
func IsBinaryType(t string) bool {
	u := strings.ToUpper(t)
	return strings.Contains(u, "BLOB") || strings.Contains(u, "BINARY") || strings.Contains(u, "BYTEA")
}
