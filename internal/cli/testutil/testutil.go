// Package testutil provides test utilities for CLI testing.
package testutil

import (
	"bytes"
	"database/sql"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/leapstack-labs/leapdump/internal/cli/output"

	_ "modernc.org/sqlite" // database/sql driver "sqlite"
)

// ProjectConfig is the leapdump.yaml written by SetupTestProject. The source
// database is shop.db next to it.
const ProjectConfig = `source:
  type: sqlite
  database: shop.db
catalog:
  edges:
    - {child: orders, child_column: user_id, parent: users, parent_column: id}
    - {child: order_items, child_column: order_id, parent: orders, parent_column: id}
  exclude: [sessions]
policy:
  root: {table: users, key: id}
  criteria:
    column: email
    like: "%@example.com"
  redact:
    users: {password: blank}
  secrets:
    - {table: settings, column: value, action: blank, when: {column: name, eq: smtp_password}}
export:
  hash_salt: test
  progress: none
  state_path: .leapdump/state.db
`

var projectSchema = []string{
	"CREATE TABLE users (id INTEGER PRIMARY KEY, email TEXT NOT NULL, password TEXT)",
	"CREATE TABLE orders (id INTEGER PRIMARY KEY, user_id INTEGER NOT NULL, total REAL)",
	"CREATE TABLE order_items (id INTEGER PRIMARY KEY, order_id INTEGER NOT NULL, sku TEXT)",
	"CREATE TABLE sessions (id INTEGER PRIMARY KEY, token TEXT)",
	"CREATE TABLE settings (name TEXT PRIMARY KEY, value TEXT)",
	"INSERT INTO users VALUES (1, 'staff@example.com', 'h1'), (2, 'alice@gmail.com', 'h2'), (3, 'ops@example.com', 'h3')",
	"INSERT INTO orders VALUES (10, 1, 9.5), (11, 2, 20), (12, 3, 1.25)",
	"INSERT INTO order_items VALUES (100, 10, 'A'), (101, 11, 'B'), (102, 12, 'C'), (103, 12, 'D')",
	"INSERT INTO sessions VALUES (1, 'tok')",
	"INSERT INTO settings VALUES ('blogname', 'Shop'), ('smtp_password', 'hunter2')",
}

// SetupTestProject creates a temporary project: a SQLite source database and
// a leapdump.yaml describing it. Returns the project directory.
func SetupTestProject(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	db, err := sql.Open("sqlite", filepath.Join(dir, "shop.db"))
	if err != nil {
		t.Fatalf("failed to open source database: %v", err)
	}
	defer db.Close()

	for _, stmt := range projectSchema {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("failed to seed source database: %s: %v", stmt, err)
		}
	}

	if err := os.WriteFile(filepath.Join(dir, "leapdump.yaml"), []byte(ProjectConfig), 0o600); err != nil {
		t.Fatalf("failed to write leapdump.yaml: %v", err)
	}
	return dir
}

// TestRenderer wraps a Renderer for testing with captured output buffers.
type TestRenderer struct {
	*output.Renderer
	Out    *bytes.Buffer
	ErrOut *bytes.Buffer
}

// NewTestRenderer creates a new test renderer with the specified mode and TTY state.
// Output is captured in buffers for inspection.
func NewTestRenderer(mode output.OutputMode, isTTY bool) *TestRenderer {
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	return &TestRenderer{
		Renderer: output.NewRendererWithTTY(out, errOut, isTTY, mode),
		Out:      out,
		ErrOut:   errOut,
	}
}

// NewTestRendererMarkdown creates a new test renderer in markdown mode.
func NewTestRendererMarkdown() *TestRenderer {
	return NewTestRenderer(output.ModeMarkdown, false)
}

// NewTestRendererJSON creates a new test renderer in JSON mode.
func NewTestRendererJSON() *TestRenderer {
	return NewTestRenderer(output.ModeJSON, false)
}

// Output returns the combined stdout output as a string.
func (tr *TestRenderer) Output() string {
	return tr.Out.String()
}

// ErrorOutput returns the stderr output as a string.
func (tr *TestRenderer) ErrorOutput() string {
	return tr.ErrOut.String()
}

// ansiPattern matches ANSI escape codes.
var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

// AssertNoANSI checks that a string contains no ANSI escape codes.
func AssertNoANSI(t *testing.T, s string) {
	t.Helper()
	if ansiPattern.MatchString(s) {
		t.Errorf("string contains ANSI escape codes: %q", s)
	}
}

// AssertContains checks that the string contains the expected substring.
func AssertContains(t *testing.T, s, expected string) {
	t.Helper()
	if !strings.Contains(s, expected) {
		t.Errorf("string %q does not contain expected %q", s, expected)
	}
}

// AssertNotContains checks that the string does not contain the substring.
func AssertNotContains(t *testing.T, s, unexpected string) {
	t.Helper()
	if strings.Contains(s, unexpected) {
		t.Errorf("string %q unexpectedly contains %q", s, unexpected)
	}
}
