// Package adapter provides the data-source contract consumed by the export
// engine and the shared database/sql implementation behind it.
//
// This package contains the public contract that all sources must implement.
// Concrete adapter implementations are in pkg/adapters/ subdirectories and
// register themselves with the registry in their init() functions.
package adapter

import (
	"context"
	"database/sql"

	"github.com/leapstack-labs/leapdump/pkg/core"
	"github.com/leapstack-labs/leapdump/pkg/dialect"
)

// Config holds configuration for connecting to a database.
type Config struct {
	Type     string
	Path     string
	Host     string
	Port     int
	Database string
	Username string
	Password string
	Schema   string
	Options  map[string]string
	Params   map[string]any
}

// RowFunc receives one streamed row. Returning an error stops the stream.
type RowFunc func(core.Row) error

// Source is the read side of an export: the live schema, a key query used by
// the resolvers, and a row stream per table. Predicates are pushed down.
type Source interface {
	// Connect establishes a connection to the database using the provided config.
	Connect(ctx context.Context, cfg Config) error

	// Close closes the database connection and releases resources.
	Close() error

	// Tables returns every base table of the configured schema with its columns.
	Tables(ctx context.Context) ([]core.Table, error)

	// SelectKeys returns the distinct non-NULL values of column in rows of
	// table matching where.
	SelectKeys(ctx context.Context, table, column string, where core.Predicate) ([]any, error)

	// StreamRows calls fn for every row of table matching where, in source
	// order, selecting the table's columns.
	StreamRows(ctx context.Context, table core.Table, where core.Predicate, fn RowFunc) error

	// Dialect returns the SQL dialect configuration for this adapter.
	Dialect() *dialect.Dialect
}

// DBProvider is implemented by database/sql backed adapters. Database sinks
// use it to write through the same driver.
type DBProvider interface {
	SQLDB() *sql.DB
}
