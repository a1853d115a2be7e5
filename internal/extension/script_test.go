package extension

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/leapstack-labs/leapdump/internal/testutil"
	"github.com/leapstack-labs/leapdump/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScript(t *testing.T, dir, name, src string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(src), 0o600))
	return path
}

func loadRegistry(t *testing.T, src string) *Registry {
	t.Helper()
	path := writeScript(t, t.TempDir(), "hook.star", src)
	s, err := LoadScript(path, testutil.NewTestLogger(t))
	require.NoError(t, err)
	r := NewRegistry()
	s.Register(r)
	return r
}

func TestScript_TableRules(t *testing.T) {
	r := loadRegistry(t, `
def table_rules(rules):
    print("rules before:", rules)
    rules["sessions"] = "exclude"
    rules["posts"] = {"column": "post_status", "eq": "publish"}
    return rules
`)

	out, err := r.ApplyTableRules(context.Background(), map[string]core.FilterRule{
		"options": core.IncludeAll().WithOrigin(core.OriginOverride),
	})
	require.NoError(t, err)

	assert.Equal(t, core.RuleExcludeAll, out["sessions"].Kind)
	assert.Equal(t, core.OriginOverride, out["options"].Origin, "unchanged rules keep their origin")
	require.Equal(t, core.RuleIncludeWhere, out["posts"].Kind)
	assert.Equal(t, core.Eq{Column: "post_status", Value: "publish"}, out["posts"].Where)
	assert.Equal(t, []string{"table_rules:hook"}, r.Names())
}

func TestScript_CriteriaAndAllowSet(t *testing.T) {
	r := loadRegistry(t, `
def criteria(spec):
    if spec == None:
        return {"column": "role", "in": ["administrator"]}
    return {"any": [spec, {"column": "role", "eq": "editor"}]}

def allow_set(keys):
    return [k for k in keys if k != 2]
`)
	ctx := context.Background()

	p, err := r.ApplyCriteria(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, core.In{Column: "role", Values: []any{"administrator"}}, p)

	p, err = r.ApplyCriteria(ctx, core.Like{Column: "email", Pattern: "%@example.com"})
	require.NoError(t, err)
	assert.True(t, p.Eval(core.NewRow([]string{"email", "role"}, []any{"a@example.com", "x"})))
	assert.True(t, p.Eval(core.NewRow([]string{"email", "role"}, []any{"a@other.org", "editor"})))
	assert.False(t, p.Eval(core.NewRow([]string{"email", "role"}, []any{"a@other.org", "x"})))

	set, err := r.ApplyAllowSet(ctx, core.NewAllowSet("users", "id", []any{int64(1), int64(2), int64(3)}))
	require.NoError(t, err)
	assert.Equal(t, 2, set.Len())
	assert.True(t, set.Contains(int64(1)))
	assert.False(t, set.Contains(int64(2)))
	assert.Equal(t, "users", set.Table)
}

func TestScript_Redactions(t *testing.T) {
	r := loadRegistry(t, `
def redactions(rules):
    rules.append({"table": "users", "column": "phone", "action": "blank",
                  "when": {"column": "country", "eq": "DE"}})
    return rules
`)

	out, err := r.ApplyRedactions(context.Background(), []core.RedactionRule{
		{Table: "users", Column: "email", Redaction: core.Redaction{Action: core.RedactHash}, Origin: "policy.redact.users.email"},
	})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "policy.redact.users.email", out[0].Origin)
	assert.Equal(t, core.RedactHash, out[0].Redaction.Action)
	assert.Equal(t, "hook:hook.redactions[1]", out[1].Origin)
	assert.Equal(t, core.Eq{Column: "country", Value: "DE"}, out[1].Redaction.When)
}

func TestScript_Errors(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		wantErr string
	}{
		{
			name:    "bad table rule",
			src:     "def table_rules(rules):\n    return {\"t\": \"maybe\"}\n",
			wantErr: `unknown rule "maybe"`,
		},
		{
			name:    "wrong return type",
			src:     "def table_rules(rules):\n    return [1]\n",
			wantErr: "must return a dict",
		},
		{
			name:    "unknown predicate key",
			src:     "def table_rules(rules):\n    return {\"t\": {\"column\": \"a\", \"equals\": 1}}\n",
			wantErr: "policy error at hook:hook.table_rules.t",
		},
		{
			name:    "starlark failure",
			src:     "def table_rules(rules):\n    fail(\"nope\")\n",
			wantErr: "nope",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := loadRegistry(t, tt.src)
			_, err := r.ApplyTableRules(context.Background(), nil)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestScript_CancelledContext(t *testing.T) {
	r := loadRegistry(t, `
def allow_set(keys):
    n = 0
    for i in range(100000000):
        n += i
    return keys
`)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.ApplyAllowSet(ctx, core.NewAllowSet("users", "id", []any{1}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "context canceled")
}

func TestLoadScript_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadScript(filepath.Join(dir, "missing.star"), nil)
	var le *LoadError
	require.ErrorAs(t, err, &le)

	path := writeScript(t, dir, "empty.star", "x = 1\n")
	_, err = LoadScript(path, nil)
	require.ErrorAs(t, err, &le)
	assert.Contains(t, le.Message, "defines none")

	path = writeScript(t, dir, "syntax.star", "def (\n")
	_, err = LoadScript(path, nil)
	require.ErrorAs(t, err, &le)
}

func TestLoadScripts_GlobOrder(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "hooks"), 0o755))
	writeScript(t, dir, "hooks/b.star", "def table_rules(r):\n    return r\n")
	writeScript(t, dir, "hooks/a.star", "def redactions(r):\n    return r\n")
	writeScript(t, dir, "last.star", "def criteria(c):\n    return c\n")

	scripts, err := LoadScripts([]string{"hooks/*.star", "last.star", "hooks/a.star"}, dir, nil)
	require.NoError(t, err)
	require.Len(t, scripts, 3)
	assert.Equal(t, "a", scripts[0].Name)
	assert.Equal(t, "b", scripts[1].Name)
	assert.Equal(t, "last", scripts[2].Name)

	_, err = LoadScripts([]string{"nothing/*.star"}, dir, nil)
	require.Error(t, err)
}
