package ui

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Output targets; tests swap them.
var (
	Stdout io.Writer = os.Stdout
	Stderr io.Writer = os.Stderr
)

func OK(msg string) {
	t := Current()
	fmt.Fprintln(Stdout, t.Success.Render(t.SymOK+" "+msg))
}

func Fail(msg string) {
	t := Current()
	fmt.Fprintln(Stderr, t.Error.Render(t.SymFail+" "+msg))
}

// PanelString frames inner with the current theme's border.
func PanelString(inner string) string {
	t := Current()
	return lipgloss.NewStyle().
		Border(t.Border).
		BorderForeground(t.BorderColor).
		Padding(0, 1).
		Render(inner)
}

// Panel prints lines inside a framed box.
func Panel(lines []string) {
	fmt.Fprintln(Stdout, PanelString(strings.Join(lines, "\n")))
}

// Truncate shortens s to at most n visible cells, marking the cut with "...".
// Below four cells there is no room for the marker and the text is cut bare.
func Truncate(s string, n int) string {
	if lipgloss.Width(s) <= n {
		return s
	}
	if n <= 0 {
		return ""
	}
	marker := "..."
	if n <= 3 {
		marker = ""
	}
	r := []rune(s)
	for len(r) > 0 && lipgloss.Width(string(r))+len(marker) > n {
		r = r[:len(r)-1]
	}
	return string(r) + marker
}
