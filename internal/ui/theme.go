package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Theme bundles palette + symbols + box borders.
// All UI helpers pull from `current`.
type Theme struct {
	Title, Muted, Accent, Success, Error, Selected, Help lipgloss.Style

	Border      lipgloss.Border
	BorderColor lipgloss.TerminalColor

	SymOK, SymFail, SymEdit, SymDelete, SymCursor string
}

var current = classic()

func classic() Theme {
	return Theme{
		Title:       lipgloss.NewStyle().Bold(true),
		Muted:       lipgloss.NewStyle().Faint(true),
		Accent:      lipgloss.NewStyle().Foreground(lipgloss.Color("12")),
		Success:     lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		Error:       lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
		Selected:    lipgloss.NewStyle().Bold(true).Reverse(true),
		Help:        lipgloss.NewStyle().Faint(true),
		Border:      lipgloss.RoundedBorder(),
		BorderColor: lipgloss.Color("8"),
		SymOK:       "✔",
		SymFail:     "✖",
		SymEdit:     "✎",
		SymDelete:   "✖",
		SymCursor:   ">",
	}
}

// SetTheme switches the palette. Unknown names fall back to classic.
func SetTheme(name string) {
	switch strings.ToLower(name) {
	case "neon":
		t := classic()
		t.Title = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("13"))
		t.Accent = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
		t.Selected = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14"))
		t.BorderColor = lipgloss.Color("13")
		current = t
	case "mono":
		plain := lipgloss.NewStyle()
		current = Theme{
			Title:       plain.Bold(true),
			Muted:       plain,
			Accent:      plain,
			Success:     plain,
			Error:       plain.Bold(true),
			Selected:    plain.Reverse(true),
			Help:        plain,
			Border:      lipgloss.NormalBorder(),
			BorderColor: lipgloss.NoColor{},
			SymOK:       "ok",
			SymFail:     "x",
			SymEdit:     "e",
			SymDelete:   "d",
			SymCursor:   ">",
		}
	default: // classic
		current = classic()
	}
}

// Current exposes what renderers need.
func Current() Theme { return current }
