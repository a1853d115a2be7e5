// Package output renders command results for terminals, pipes and scripts.
//
// A Renderer writes styled text when stdout is a terminal, plain markdown when
// it is piped, and JSON on request.
package output

import "strings"

// OutputMode selects how a Renderer formats its output.
type OutputMode string

// Output modes.
const (
	ModeAuto     OutputMode = "auto"
	ModeText     OutputMode = "text"
	ModeMarkdown OutputMode = "markdown"
	ModeJSON     OutputMode = "json"
)

// Mode parses a --format value. Unknown values fall back to ModeAuto.
func Mode(s string) OutputMode {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "text":
		return ModeText
	case "markdown", "md":
		return ModeMarkdown
	case "json":
		return ModeJSON
	default:
		return ModeAuto
	}
}
