package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/pithecene-io/devsync/protocol"
)

// StatsModel shows device filesystem usage.
type StatsModel struct {
	stats    protocol.FSStats
	quitting bool
}

func newStatsModel(data any) (StatsModel, error) {
	switch v := data.(type) {
	case protocol.FSStats:
		return StatsModel{stats: v}, nil
	case *protocol.FSStats:
		if v == nil {
			return StatsModel{}, fmt.Errorf("no filesystem stats to display")
		}
		return StatsModel{stats: *v}, nil
	default:
		return StatsModel{}, fmt.Errorf("invalid data type %T for stats view", data)
	}
}

// Init implements tea.Model.
func (m StatsModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m StatsModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok && key.Matches(msg, keys.Quit) {
		m.quitting = true
		return m, tea.Quit
	}
	return m, nil
}

// View implements tea.Model.
func (m StatsModel) View() string {
	if m.quitting {
		return ""
	}

	boxes := lipgloss.JoinHorizontal(lipgloss.Top,
		statBox("Total", m.stats.Total, blue),
		statBox("Used", m.stats.Used, amber),
		statBox("Free", m.stats.Free(), green),
	)

	var used float64
	if m.stats.Total > 0 {
		used = float64(m.stats.Used) / float64(m.stats.Total)
	}
	bar := progress.New(
		progress.WithSolidFill(string(usageColor(used))),
		progress.WithWidth(usageBarWidth),
		progress.WithoutPercentage(),
	)
	usage := labelStyle.Render("Usage:") + " " +
		bar.ViewAs(used) + " " +
		fg(usageColor(used)).Render(fmt.Sprintf("%.1f%%", used*100))

	return strings.Join([]string{
		titleStyle.Render("Device Filesystem"),
		"",
		boxes,
		usage,
		helpStyle.Render(quitHelp),
	}, "\n")
}

const usageBarWidth = 40

func statBox(label string, n uint32, c lipgloss.Color) string {
	return boxStyle.BorderForeground(c).Render(lipgloss.JoinVertical(lipgloss.Center,
		boxValueStyle.Foreground(c).Render(formatBytes(int64(n))),
		boxLabelStyle.Render(label),
	))
}

// formatBytes renders a byte count with a binary unit suffix.
func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
