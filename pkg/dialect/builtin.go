package dialect

// Built-in dialects, one per supported adapter type.
var (
	MySQL = NewDialect("mysql").
		Identifiers("`", "`", "``").
		MaxParams(65535).
		BackslashEscapes().
		TextType("LONGTEXT").
		Wrap(
			[]string{"SET NAMES utf8mb4;", "SET FOREIGN_KEY_CHECKS=0;"},
			[]string{"SET FOREIGN_KEY_CHECKS=1;"},
		).
		Build()

	Postgres = NewDialect("postgres").
			DefaultSchema("public").
			Placeholder(PlaceholderDollar).
			MaxParams(65535).
			BlobLiteral("decode('%s', 'hex')").
			Build()

	SQLite = NewDialect("sqlite").
		DefaultSchema("main").
		Wrap(
			[]string{"PRAGMA foreign_keys=OFF;", "BEGIN TRANSACTION;"},
			[]string{"COMMIT;"},
		).
		Build()

	DuckDB = NewDialect("duckdb").
		DefaultSchema("main").
		BlobLiteral("unhex('%s')").
		TextType("VARCHAR").
		Build()
)

func init() {
	Register(MySQL)
	Register(Postgres)
	Register(SQLite)
	Register(DuckDB)
}
