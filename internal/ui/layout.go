package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// ComposeLayout joins the plot panel and zone panel horizontally,
// with menu bar on top and status bar on bottom.
func ComposeLayout(menuBar, plotPanel, zonePanel, statusBar string) string {
	middle := lipgloss.JoinHorizontal(lipgloss.Top, plotPanel, zonePanel)
	return lipgloss.JoinVertical(lipgloss.Left, menuBar, middle, statusBar)
}

// fitLines pads or truncates a rendered block to exactly height lines.
// lipgloss Height() only sets a minimum; it won't truncate overflow.
func fitLines(s string, height int) string {
	lines := strings.Split(s, "\n")
	if len(lines) > height {
		lines = lines[:height]
	}
	for len(lines) < height {
		lines = append(lines, "")
	}
	return strings.Join(lines, "\n")
}

// pad fills the gap between left and right so the pair spans width.
func pad(left, right string, width int) string {
	gap := width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 0 {
		gap = 0
	}
	return left + strings.Repeat(" ", gap) + right
}
