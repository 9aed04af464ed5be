package tui

import (
	"fmt"
	"strconv"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/pithecene-io/devsync/lode"
	"github.com/pithecene-io/devsync/protocol"
)

// TableModel is a scrollable list of device files or past sessions.
type TableModel struct {
	title    string
	footer   string
	table    table.Model
	quitting bool
}

const maxTableHeight = 20

func newFilesModel(data any) (TableModel, error) {
	entries, ok := data.([]protocol.FileEntry)
	if !ok {
		return TableModel{}, fmt.Errorf("invalid data type %T for files view", data)
	}

	var total int64
	rows := make([]table.Row, 0, len(entries))
	for _, e := range entries {
		total += int64(e.Size)
		rows = append(rows, table.Row{e.Path, strconv.FormatUint(uint64(e.Size), 10)})
	}
	columns := []table.Column{
		{Title: "PATH", Width: 48},
		{Title: "SIZE", Width: 10},
	}
	footer := fmt.Sprintf("%d files, %s", len(entries), formatBytes(total))
	return newTableModel("Device Files", footer, columns, rows), nil
}

func newHistoryModel(data any) (TableModel, error) {
	sessions, ok := data.([]lode.SessionSummary)
	if !ok {
		return TableModel{}, fmt.Errorf("invalid data type %T for history view", data)
	}

	rows := make([]table.Row, 0, len(sessions))
	for _, s := range sessions {
		rows = append(rows, table.Row{
			s.StartedAt,
			s.Operation,
			s.Device,
			s.Outcome,
			strconv.FormatInt(s.Files, 10),
			strconv.FormatInt(s.Failures, 10),
		})
	}
	columns := []table.Column{
		{Title: "STARTED", Width: 22},
		{Title: "OPERATION", Width: 10},
		{Title: "DEVICE", Width: 16},
		{Title: "OUTCOME", Width: 16},
		{Title: "FILES", Width: 6},
		{Title: "FAILED", Width: 6},
	}
	footer := fmt.Sprintf("%d sessions", len(sessions))
	if len(sessions) > 0 {
		footer += ", latest " + outcomeStyle(sessions[0].Outcome).Render(sessions[0].Outcome)
	}
	return newTableModel("Session History", footer, columns, rows), nil
}

func newTableModel(title, footer string, columns []table.Column, rows []table.Row) TableModel {
	height := min(len(rows)+1, maxTableHeight)
	t := table.New(
		table.WithColumns(columns),
		table.WithRows(rows),
		table.WithFocused(true),
		table.WithHeight(height),
	)

	styles := table.DefaultStyles()
	styles.Header = styles.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(gray).
		BorderBottom(true).
		Bold(true)
	styles.Selected = styles.Selected.
		Foreground(white).
		Background(blue)
	t.SetStyles(styles)

	return TableModel{title: title, footer: footer, table: t}
}

// Init implements tea.Model.
func (m TableModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m TableModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.table.SetHeight(max(min(msg.Height-6, maxTableHeight), 1))
	case tea.KeyMsg:
		if key.Matches(msg, keys.Quit) {
			m.quitting = true
			return m, tea.Quit
		}
	}
	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

// View implements tea.Model.
func (m TableModel) View() string {
	if m.quitting {
		return ""
	}
	return titleStyle.Render(m.title) + "\n" +
		m.table.View() + "\n" +
		valueStyle.Render(m.footer) + "\n" +
		helpStyle.Render("↑/↓ to scroll, "+quitHelp)
}
