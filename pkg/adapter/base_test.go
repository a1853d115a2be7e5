package adapter

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/leapstack-labs/leapdump/pkg/core"
	"github.com/leapstack-labs/leapdump/pkg/dialect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBaseSQLAdapter_Lifecycle(t *testing.T) {
	ctx := context.Background()
	base := &BaseSQLAdapter{}
	assert.False(t, base.IsConnected())
	assert.ErrorContains(t, base.Exec(ctx, "SELECT 1"), "not established")
	assert.NoError(t, base.Close(), "closing an unconnected adapter is a no-op")

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	base.DB = db
	assert.True(t, base.IsConnected())
	assert.Same(t, db, base.SQLDB())

	mock.ExpectExec("PRAGMA query_only").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DROP TABLE").WillReturnError(assert.AnError)
	mock.ExpectClose()

	require.NoError(t, base.Exec(ctx, "PRAGMA query_only = 1"))
	assert.ErrorIs(t, base.Exec(ctx, "DROP TABLE users"), assert.AnError)
	require.NoError(t, base.Close())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func newMockBase(t *testing.T) (*BaseSQLAdapter, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return &BaseSQLAdapter{DB: db, D: dialect.MySQL}, mock
}

func TestBaseSQLAdapter_SelectKeys(t *testing.T) {
	t.Run("pushes predicate down and converts bytes", func(t *testing.T) {
		base, mock := newMockBase(t)
		mock.ExpectQuery("SELECT DISTINCT `user_id` FROM `orders` WHERE `status` = \\? AND `user_id` IS NOT NULL").
			WithArgs("paid").
			WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow([]byte("7")).AddRow(int64(9)))

		keys, err := base.SelectKeys(context.Background(), "orders", "user_id", core.Eq{Column: "status", Value: "paid"})
		require.NoError(t, err)
		assert.Equal(t, []any{"7", int64(9)}, keys)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("empty set never matches", func(t *testing.T) {
		base, mock := newMockBase(t)
		mock.ExpectQuery("FROM `users` WHERE \\(1=0\\) AND `id` IS NOT NULL").
			WillReturnRows(sqlmock.NewRows([]string{"id"}))

		keys, err := base.SelectKeys(context.Background(), "users", "id",
			core.InSet{Column: "id", Set: core.EmptyAllowSet("orders", "user_id")})
		require.NoError(t, err)
		assert.Empty(t, keys)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("query error", func(t *testing.T) {
		base, mock := newMockBase(t)
		mock.ExpectQuery("SELECT DISTINCT").WillReturnError(assert.AnError)

		_, err := base.SelectKeys(context.Background(), "users", "id", core.True)
		require.Error(t, err)
		assert.ErrorIs(t, err, assert.AnError)
	})

	t.Run("without connection", func(t *testing.T) {
		base := &BaseSQLAdapter{D: dialect.MySQL}
		_, err := base.SelectKeys(context.Background(), "users", "id", core.True)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database connection not established")
	})
}

func TestBaseSQLAdapter_StreamRows(t *testing.T) {
	table := core.Table{Name: "users", Columns: []core.Column{
		{Name: "id", Type: "bigint"},
		{Name: "email", Type: "varchar(255)"},
		{Name: "avatar", Type: "blob"},
	}}

	t.Run("streams rows in order", func(t *testing.T) {
		base, mock := newMockBase(t)
		mock.ExpectQuery("SELECT `id`, `email`, `avatar` FROM `users` WHERE `id` IN \\(\\?,\\?\\)").
			WithArgs(1, 2).
			WillReturnRows(sqlmock.NewRows([]string{"id", "email", "avatar"}).
				AddRow(int64(1), []byte("a@example.com"), []byte{0x01}).
				AddRow(int64(2), nil, nil))

		var got []core.Row
		err := base.StreamRows(context.Background(), table, core.In{Column: "id", Values: []any{1, 2}}, func(r core.Row) error {
			got = append(got, r)
			return nil
		})
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, []string{"id", "email", "avatar"}, got[0].Columns)
		assert.Equal(t, "a@example.com", got[0].Values[1])
		assert.Equal(t, []byte{0x01}, got[0].Values[2], "binary columns keep raw bytes")
		assert.Nil(t, got[1].Values[1])
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("callback error stops the stream", func(t *testing.T) {
		base, mock := newMockBase(t)
		mock.ExpectQuery("SELECT").
			WillReturnRows(sqlmock.NewRows([]string{"id", "email", "avatar"}).
				AddRow(int64(1), "a", nil).
				AddRow(int64(2), "b", nil))

		calls := 0
		err := base.StreamRows(context.Background(), table, nil, func(core.Row) error {
			calls++
			return assert.AnError
		})
		require.ErrorIs(t, err, assert.AnError)
		assert.Equal(t, 1, calls)
	})

	t.Run("table without columns", func(t *testing.T) {
		base, _ := newMockBase(t)
		err := base.StreamRows(context.Background(), core.Table{Name: "empty"}, nil, func(core.Row) error { return nil })
		require.Error(t, err)
		assert.Contains(t, err.Error(), "has no columns")
	})
}

func TestBaseSQLAdapter_TablesFromQuery(t *testing.T) {
	base, mock := newMockBase(t)
	base.Cfg.Schema = "shop"
	mock.ExpectQuery("information_schema.columns").
		WithArgs("shop").
		WillReturnRows(sqlmock.NewRows([]string{"table_name", "column_name", "data_type", "is_nullable", "ordinal_position", "is_key"}).
			AddRow("orders", "id", "bigint", "NO", 1, "YES").
			AddRow("orders", "user_id", "bigint", "YES", 2, "NO").
			AddRow("users", "id", "bigint", "NO", 1, "NO"))

	tables, err := base.TablesFromInformationSchema(context.Background(), "shop")
	require.NoError(t, err)
	require.Len(t, tables, 2)

	assert.Equal(t, "orders", tables[0].Name)
	assert.Equal(t, "shop", tables[0].Schema)
	assert.Equal(t, []string{"id", "user_id"}, tables[0].ColumnNames())
	assert.True(t, tables[0].Columns[0].PrimaryKey)
	assert.True(t, tables[0].Columns[1].Nullable)
	assert.Equal(t, "users", tables[1].Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIsBinaryType(t *testing.T) {
	tests := []struct {
		typ      string
		expected bool
	}{
		{"BLOB", true},
		{"longblob", true},
		{"varbinary(16)", true},
		{"bytea", true},
		{"varchar(255)", false},
		{"bigint", false},
	}
	for _, tt := range tests {
		t.Run(tt.typ, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsBinaryType(tt.typ))
		})
	}
}

func TestBaseSQLAdapter_SplitsLargeKeySets(t *testing.T) {
	tiny := dialect.NewDialect("tiny").MaxParams(3).Build()

	t.Run("streams one statement per key chunk", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		t.Cleanup(func() { _ = db.Close() })
		base := &BaseSQLAdapter{DB: db, D: tiny}

		table := core.Table{Name: "orders", Columns: []core.Column{{Name: "id"}, {Name: "user_id"}}}
		chunk := `SELECT "id", "user_id" FROM "orders" WHERE \("status" = \? AND "user_id" IN \(\?,\?\)\)`
		mock.ExpectQuery(chunk).WithArgs("paid", 1, 2).
			WillReturnRows(sqlmock.NewRows([]string{"id", "user_id"}).AddRow(int64(10), int64(1)))
		mock.ExpectQuery(chunk).WithArgs("paid", 3, 4).
			WillReturnRows(sqlmock.NewRows([]string{"id", "user_id"}).AddRow(int64(11), int64(4)))
		mock.ExpectQuery(`SELECT "id", "user_id" FROM "orders" WHERE \("status" = \? AND "user_id" IN \(\?\)\)`).
			WithArgs("paid", 5).
			WillReturnRows(sqlmock.NewRows([]string{"id", "user_id"}))

		users := core.NewAllowSet("users", "id", []any{1, 2, 3, 4, 5})
		where := core.AllOf(core.Eq{Column: "status", Value: "paid"}, core.InSet{Column: "user_id", Set: users})
		var ids []any
		err = base.StreamRows(context.Background(), table, where, func(r core.Row) error {
			ids = append(ids, r.Values[0])
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, []any{int64(10), int64(11)}, ids)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("oversized disjunction is filtered in memory", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		t.Cleanup(func() { _ = db.Close() })
		base := &BaseSQLAdapter{DB: db, D: tiny}

		mock.ExpectQuery(`SELECT DISTINCT "id", "post_id", "user_id" FROM "comments" WHERE .*"id" IS NOT NULL`).
			WillReturnRows(sqlmock.NewRows([]string{"id", "post_id", "user_id"}).
				AddRow(int64(1), int64(99), int64(1)).
				AddRow(int64(2), int64(8), int64(50)).
				AddRow(int64(3), int64(99), int64(50)).
				AddRow(int64(1), int64(7), int64(2)).
				AddRow(int64(4), nil, nil))

		where := core.AnyOf(
			core.InSet{Column: "user_id", Set: core.NewAllowSet("users", "id", []any{1, 2, 3, 4})},
			core.InSet{Column: "post_id", Set: core.NewAllowSet("posts", "id", []any{7, 8, 9, 10})},
		)
		keys, err := base.SelectKeys(context.Background(), "comments", "id", where)
		require.NoError(t, err)
		assert.Equal(t, []any{int64(1), int64(2)}, keys)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
