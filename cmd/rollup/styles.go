package main

import (
	"io"

	"github.com/charmbracelet/lipgloss"
)

type styles struct {
	title lipgloss.Style
	muted lipgloss.Style
	warn  lipgloss.Style
}

// newStyles binds the styles to w so colour is dropped when w is not a
// terminal.
func newStyles(w io.Writer) styles {
	r := lipgloss.NewRenderer(w)
	return styles{
		title: r.NewStyle().Bold(true).Foreground(lipgloss.Color("86")),
		muted: r.NewStyle().Foreground(lipgloss.Color("241")),
		warn:  r.NewStyle().Foreground(lipgloss.Color("#FF6B6B")),
	}
}
