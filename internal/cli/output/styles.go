package output

import "github.com/charmbracelet/lipgloss"

// Styles are the lipgloss styles used in text mode.
type Styles struct {
	Header1 lipgloss.Style
	Header2 lipgloss.Style
	Bold    lipgloss.Style
	Muted   lipgloss.Style
	Success lipgloss.Style
	Error   lipgloss.Style
	Warning lipgloss.Style

	TableName     lipgloss.Style
	StatusSuccess lipgloss.Style
	StatusFailed  lipgloss.Style
	StatusSkipped lipgloss.Style
}

// DefaultStyles returns the styles used on color terminals.
func DefaultStyles() Styles {
	return Styles{
		Header1: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")),
		Header2: lipgloss.NewStyle().Bold(true),
		Bold:    lipgloss.NewStyle().Bold(true),
		Muted:   lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
		Success: lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		Error:   lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
		Warning: lipgloss.NewStyle().Foreground(lipgloss.Color("11")),

		TableName:     lipgloss.NewStyle().Foreground(lipgloss.Color("14")),
		StatusSuccess: lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true),
		StatusFailed:  lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
		StatusSkipped: lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
	}
}

// PlainStyles returns styles that render text unchanged.
func PlainStyles() Styles {
	plain := lipgloss.NewStyle()
	return Styles{
		Header1: plain, Header2: plain, Bold: plain, Muted: plain,
		Success: plain, Error: plain, Warning: plain,
		TableName: plain, StatusSuccess: plain, StatusFailed: plain, StatusSkipped: plain,
	}
}
