// Package tui provides Bubble Tea views for the devsync CLI.
//
// Views are opt-in (--tui) and read-only. Each one renders the same payload
// the command would otherwise print as json, yaml or a table.
package tui

import "github.com/charmbracelet/lipgloss"

var (
	sky   = lipgloss.Color("#0EA5E9")
	green = lipgloss.Color("#10B981")
	amber = lipgloss.Color("#F59E0B")
	red   = lipgloss.Color("#EF4444")
	gray  = lipgloss.Color("#6B7280")
	blue  = lipgloss.Color("#3B82F6")
	white = lipgloss.Color("#FFFFFF")
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(sky).MarginBottom(1)
	labelStyle = lipgloss.NewStyle().Foreground(gray).Width(12)
	valueStyle = lipgloss.NewStyle().Foreground(white)
	helpStyle  = lipgloss.NewStyle().Foreground(gray).MarginTop(1)

	// Stat boxes take their border and value color per box.
	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			Padding(0, 2).
			Width(20).
			Align(lipgloss.Center)
	boxLabelStyle = lipgloss.NewStyle().Foreground(gray).Align(lipgloss.Center)
	boxValueStyle = lipgloss.NewStyle().Bold(true).Align(lipgloss.Center)
)

func fg(c lipgloss.Color) lipgloss.Style { return lipgloss.NewStyle().Foreground(c) }

// outcomeStyle maps a session outcome to green, amber or red. Outcomes
// that leave the device usable are amber.
func outcomeStyle(outcome string) lipgloss.Style {
	switch outcome {
	case "":
		return valueStyle
	case "success":
		return fg(green)
	case "partial", "format_declined", "canceled":
		return fg(amber)
	}
	return fg(red)
}

// usageColor picks the color for a filesystem that is fraction full.
func usageColor(fraction float64) lipgloss.Color {
	switch {
	case fraction >= 0.9:
		return red
	case fraction >= 0.7:
		return amber
	}
	return green
}
