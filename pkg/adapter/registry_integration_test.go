package adapter_test

import (
	"context"
	"testing"

	"github.com/leapstack-labs/leapdump/pkg/adapter"
	"github.com/leapstack-labs/leapdump/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/leapstack-labs/leapdump/pkg/adapters/duckdb"
	_ "github.com/leapstack-labs/leapdump/pkg/adapters/mysql"
	_ "github.com/leapstack-labs/leapdump/pkg/adapters/postgres"
	_ "github.com/leapstack-labs/leapdump/pkg/adapters/sqlite"
)

func TestBuiltinSources(t *testing.T) {
	assert.Equal(t, []string{"duckdb", "mysql", "postgres", "sqlite"}, adapter.ListAdapters())

	for _, name := range adapter.ListAdapters() {
		t.Run(name, func(t *testing.T) {
			src, err := adapter.NewAdapter(adapter.Config{Type: name}, nil)
			require.NoError(t, err)
			assert.Equal(t, name, src.Dialect().Name)
			assert.NoError(t, src.Close(), "closing an unconnected source is a no-op")
		})
	}
}

func TestUnknownSourceListsBuiltins(t *testing.T) {
	_, err := adapter.NewAdapter(adapter.Config{Type: "mssql"}, nil)
	var unknown *adapter.UnknownAdapterError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, []string{"duckdb", "mysql", "postgres", "sqlite"}, unknown.Available)
}

func TestInMemorySQLiteThroughRegistry(t *testing.T) {
	ctx := context.Background()
	src, err := adapter.NewAdapter(adapter.Config{Type: "sqlite", Path: ":memory:"}, nil)
	require.NoError(t, err)
	require.NoError(t, src.Connect(ctx, adapter.Config{Type: "sqlite", Path: ":memory:"}))
	defer src.Close()

	db := src.(adapter.DBProvider).SQLDB()
	_, err = db.ExecContext(ctx, `CREATE TABLE users (id INTEGER PRIMARY KEY, email TEXT)`)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `INSERT INTO users VALUES (1, 'a@example.com'), (2, 'b@gmail.com')`)
	require.NoError(t, err)

	tables, err := src.Tables(ctx)
	require.NoError(t, err)
	require.Len(t, tables, 1)
	assert.Equal(t, "users", tables[0].Name)

	keys, err := src.SelectKeys(ctx, "users", "id", core.Like{Column: "email", Pattern: "%@example.com"})
	require.NoError(t, err)
	assert.Equal(t, []any{int64(1)}, keys)
}
