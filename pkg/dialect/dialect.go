// Package dialect provides the SQL dialect configuration used to build queries
// against a source and to render the statements of a SQL dump.
//
// Dialects are registered in a global registry keyed by adapter type. The
// built-in dialects (mysql, postgres, sqlite, duckdb) are registered from
// builtin.go.
package dialect

import (
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
)

// DefaultMaxParams is SQLite's bind parameter limit, the lowest of the
// built-in databases.
const DefaultMaxParams = 32766

// PlaceholderStyle selects how bind parameters are written.
type PlaceholderStyle int

const (
	// PlaceholderQuestion uses ? (MySQL, SQLite, DuckDB).
	PlaceholderQuestion PlaceholderStyle = iota
	// PlaceholderDollar uses $1, $2 (PostgreSQL).
	PlaceholderDollar
)

// IdentifierConfig describes identifier quoting.
type IdentifierConfig struct {
	Quote    string
	QuoteEnd string
	Escape   string
}

// Dialect is the static SQL configuration for one database flavour.
type Dialect struct {
	Name          string
	Identifiers   IdentifierConfig
	DefaultSchema string
	Placeholder   PlaceholderStyle
	// MaxParams is the largest number of bind parameters one statement may carry.
	MaxParams int

	// BackslashEscapes is set when string literals treat \ as an escape (MySQL).
	BackslashEscapes bool
	// BlobLiteral is a fmt format taking the hex encoding of a byte slice.
	BlobLiteral string
	// TextType is the column type used when a source type is unknown.
	TextType string
	// Preamble and Postamble wrap a SQL dump (e.g. toggling FK checks).
	Preamble  []string
	Postamble []string
}

// FormatPlaceholder returns a placeholder for the given parameter index (1-based).
// Returns "?" for PlaceholderQuestion style, "$1", "$2" etc. for PlaceholderDollar style.
func (d *Dialect) FormatPlaceholder(index int) string {
	switch d.Placeholder {
	case PlaceholderDollar:
		return "$" + strconv.Itoa(index)
	default:
		return "?"
	}
}

// ParamLimit returns MaxParams, or the SQLite default when unset.
func (d *Dialect) ParamLimit() int {
	if d.MaxParams > 0 {
		return d.MaxParams
	}
	return DefaultMaxParams
}

// PlaceholderFormat returns the squirrel placeholder format for this dialect.
func (d *Dialect) PlaceholderFormat() sq.PlaceholderFormat {
	if d.Placeholder == PlaceholderDollar {
		return sq.Dollar
	}
	return sq.Question
}

// StatementBuilder returns a squirrel statement builder bound to the dialect.
func (d *Dialect) StatementBuilder() sq.StatementBuilderType {
	return sq.StatementBuilder.PlaceholderFormat(d.PlaceholderFormat())
}

// QuoteIdentifier quotes an identifier using the dialect's quote characters.
func (d *Dialect) QuoteIdentifier(name string) string {
	escaped := strings.ReplaceAll(name, d.Identifiers.QuoteEnd, d.Identifiers.Escape)
	return d.Identifiers.Quote + escaped + d.Identifiers.QuoteEnd
}

// QuoteTable quotes a possibly schema-qualified table name.
func (d *Dialect) QuoteTable(schema, name string) string {
	if schema == "" {
		return d.QuoteIdentifier(name)
	}
	return d.QuoteIdentifier(schema) + "." + d.QuoteIdentifier(name)
}

// QuoteIdentifiers quotes each name.
func (d *Dialect) QuoteIdentifiers(names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = d.QuoteIdentifier(n)
	}
	return out
}

// Literal renders a Go value as an SQL literal for this dialect.
func (d *Dialect) Literal(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case string:
		return d.StringLiteral(x)
	case []byte:
		format := d.BlobLiteral
		if format == "" {
			format = "X'%s'"
		}
		return fmt.Sprintf(format, hex.EncodeToString(x))
	case bool:
		if x {
			return "TRUE"
		}
		return "FALSE"
	case int:
		return strconv.FormatInt(int64(x), 10)
	case int8:
		return strconv.FormatInt(int64(x), 10)
	case int16:
		return strconv.FormatInt(int64(x), 10)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case int64:
		return strconv.FormatInt(x, 10)
	case uint:
		return strconv.FormatUint(uint64(x), 10)
	case uint8:
		return strconv.FormatUint(uint64(x), 10)
	case uint16:
		return strconv.FormatUint(uint64(x), 10)
	case uint32:
		return strconv.FormatUint(uint64(x), 10)
	case uint64:
		return strconv.FormatUint(x, 10)
	case float32:
		return formatFloat(float64(x), 32)
	case float64:
		return formatFloat(x, 64)
	case time.Time:
		return d.StringLiteral(x.Format("2006-01-02 15:04:05.999999"))
	case fmt.Stringer:
		return d.StringLiteral(x.String())
	default:
		return d.StringLiteral(fmt.Sprint(x))
	}
}

// StringLiteral quotes s as a string literal.
func (d *Dialect) StringLiteral(s string) string {
	if d.BackslashEscapes {
		s = strings.ReplaceAll(s, `\`, `\\`)
	}
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// ColumnType returns the type to declare for a column in a dump, falling back
// to the dialect's text type for unknown source types.
func (d *Dialect) ColumnType(sourceType string) string {
	t := strings.TrimSpace(sourceType)
	if t == "" {
		return d.TextType
	}
	return t
}

func formatFloat(f float64, bits int) string {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "NULL"
	}
	return strconv.FormatFloat(f, 'g', -1, bits)
}

// Builder provides a fluent API for constructing dialects.
type Builder struct {
	dialect *Dialect
}

// NewDialect creates a new dialect builder with the given name and ANSI defaults.
func NewDialect(name string) *Builder {
	return &Builder{
		dialect: &Dialect{
			Name: name,
			Identifiers: IdentifierConfig{
				Quote:    `"`,
				QuoteEnd: `"`,
				Escape:   `""`,
			},
			MaxParams:   DefaultMaxParams,
			BlobLiteral: "X'%s'",
			TextType:    "TEXT",
		},
	}
}

// Identifiers configures identifier quoting.
func (b *Builder) Identifiers(quote, quoteEnd, escape string) *Builder {
	b.dialect.Identifiers = IdentifierConfig{Quote: quote, QuoteEnd: quoteEnd, Escape: escape}
	return b
}

// DefaultSchema sets the schema used for unqualified tables.
func (b *Builder) DefaultSchema(schema string) *Builder {
	b.dialect.DefaultSchema = schema
	return b
}

// Placeholder sets the bind parameter style.
func (b *Builder) Placeholder(p PlaceholderStyle) *Builder {
	b.dialect.Placeholder = p
	return b
}

// MaxParams sets the bind parameter limit of one statement.
func (b *Builder) MaxParams(n int) *Builder {
	b.dialect.MaxParams = n
	return b
}

// BackslashEscapes marks string literals as backslash-escaped.
func (b *Builder) BackslashEscapes() *Builder {
	b.dialect.BackslashEscapes = true
	return b
}

// BlobLiteral sets the format used to render byte slices.
func (b *Builder) BlobLiteral(format string) *Builder {
	b.dialect.BlobLiteral = format
	return b
}

// TextType sets the fallback column type.
func (b *Builder) TextType(t string) *Builder {
	b.dialect.TextType = t
	return b
}

// Wrap sets the statements written before and after a dump.
func (b *Builder) Wrap(preamble, postamble []string) *Builder {
	b.dialect.Preamble = preamble
	b.dialect.Postamble = postamble
	return b
}

// Build returns the constructed dialect.
func (b *Builder) Build() *Dialect {
	return b.dialect
}
