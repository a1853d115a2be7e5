package output

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRenderer(mode OutputMode, isTTY bool) (*Renderer, *bytes.Buffer, *bytes.Buffer) {
	var out, errOut bytes.Buffer
	return NewRendererWithTTY(&out, &errOut, isTTY, mode), &out, &errOut
}

func TestMode(t *testing.T) {
	tests := []struct {
		in   string
		want OutputMode
	}{
		{"", ModeAuto},
		{"auto", ModeAuto},
		{"TEXT", ModeText},
		{"md", ModeMarkdown},
		{"markdown", ModeMarkdown},
		{"json", ModeJSON},
		{"yaml", ModeAuto},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Mode(tt.in))
		})
	}
}

func TestEffectiveMode(t *testing.T) {
	tests := []struct {
		name  string
		mode  OutputMode
		isTTY bool
		want  OutputMode
	}{
		{"auto on terminal", ModeAuto, true, ModeText},
		{"auto piped", ModeAuto, false, ModeMarkdown},
		{"explicit text piped", ModeText, false, ModeText},
		{"json on terminal", ModeJSON, true, ModeJSON},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _, _ := newTestRenderer(tt.mode, tt.isTTY)
			assert.Equal(t, tt.want, r.EffectiveMode())
		})
	}
}

func TestNewRenderer_BufferIsNotTerminal(t *testing.T) {
	var out bytes.Buffer
	r := NewRenderer(&out, &out, ModeAuto)
	assert.False(t, IsTerminal(&out))
	assert.Equal(t, ModeMarkdown, r.EffectiveMode())
}

func TestRenderer_Markdown(t *testing.T) {
	r, out, errOut := newTestRenderer(ModeMarkdown, false)

	r.Header(2, "Export")
	r.KeyValue("Output", "dump.sql")
	r.StatusLine("wp_users", "exported", "3 rows")
	r.Table([]string{"Table", "Rows"}, [][]string{{"wp_users", "3"}})
	r.Error("boom")

	got := out.String()
	assert.Contains(t, got, "## Export\n")
	assert.Contains(t, got, "**Output:** dump.sql\n")
	assert.Contains(t, got, "- wp_users exported 3 rows\n")
	assert.Contains(t, got, "| Table | Rows |")
	assert.Contains(t, got, "| wp_users | 3 |")
	assert.NotContains(t, got, "\x1b[")
	assert.Equal(t, "Error: boom\n", errOut.String())
}

func TestRenderer_TextTable(t *testing.T) {
	r, out, _ := newTestRenderer(ModeText, false)
	r.Table([]string{"Table", "Rows"}, [][]string{{"orders", "12"}})

	got := out.String()
	assert.Contains(t, got, "orders")
	assert.Contains(t, got, "┌")
	assert.False(t, strings.Contains(got, "|"), "text tables use box drawing")
}

func TestRenderer_JSON(t *testing.T) {
	r, out, _ := newTestRenderer(ModeJSON, false)
	require.NoError(t, r.JSON(map[string]any{"tables": 3}))
	assert.Equal(t, "{\n  \"tables\": 3\n}\n", out.String())

	err := r.JSON(map[string]any{"bad": make(chan int)})
	require.Error(t, err)
}

func TestFormatters(t *testing.T) {
	assert.Equal(t, "# Title", FormatHeader(0, "Title"))
	assert.Equal(t, "### Title", FormatHeader(3, "Title"))
	assert.Equal(t, "**Rows:** 5", FormatKeyValue("Rows", "5"))
	assert.Equal(t, "1,234,567", FormatCount(1234567))
	assert.Equal(t, "1.5s", FormatDuration(1500*time.Millisecond))
	assert.Equal(t, "12ms", FormatDuration(12345*time.Microsecond))
	assert.Equal(t, "-", FormatTime(time.Time{}))
	assert.Equal(t, "2.0 kB", FormatBytes(2000))
}
