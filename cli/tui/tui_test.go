package tui

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/pithecene-io/devsync/lode"
	"github.com/pithecene-io/devsync/protocol"
)

func TestIsTUISupported(t *testing.T) {
	tests := []struct {
		view string
		want bool
	}{
		{"files", true},
		{"stats", true},
		{"history", true},
		{"verify", false},
		{"ports", false},
		{"version", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.view, func(t *testing.T) {
			if got := IsTUISupported(tt.view); got != tt.want {
				t.Errorf("IsTUISupported(%q) = %v, want %v", tt.view, got, tt.want)
			}
		})
	}
}

func TestRenderStatic(t *testing.T) {
	tests := []struct {
		name string
		view string
		data any
		want []string
	}{
		{
			name: "files",
			view: ViewFiles,
			data: []protocol.FileEntry{{Path: "/boot.py", Size: 120}, {Path: "/lib/net.py", Size: 2048}},
			want: []string{"Device Files", "/boot.py", "/lib/net.py", "2 files, 2.1 KiB"},
		},
		{
			name: "empty files",
			view: ViewFiles,
			data: []protocol.FileEntry{},
			want: []string{"0 files, 0 B"},
		},
		{
			name: "stats value",
			view: ViewStats,
			data: protocol.FSStats{Total: 1 << 20, Used: 1 << 19},
			want: []string{"Device Filesystem", "1.0 MiB", "512.0 KiB", "50.0%"},
		},
		{
			name: "stats pointer",
			view: ViewStats,
			data: &protocol.FSStats{Total: 4096},
			want: []string{"4.0 KiB", "0.0%"},
		},
		{
			name: "history",
			view: ViewHistory,
			data: []lode.SessionSummary{
				{StartedAt: "2026-10-17T09:00:00Z", Operation: "upload", Device: "bench-1", Outcome: "partial", Files: 12, Failures: 1},
			},
			want: []string{"Session History", "upload", "bench-1", "1 sessions", "latest partial"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := RenderStatic(tt.view, tt.data)
			if err != nil {
				t.Fatalf("RenderStatic: %v", err)
			}
			for _, want := range tt.want {
				if !strings.Contains(out, want) {
					t.Errorf("output missing %q:\n%s", want, out)
				}
			}
		})
	}
}

func TestRenderStatic_Errors(t *testing.T) {
	tests := []struct {
		name string
		view string
		data any
	}{
		{name: "unknown view", view: "inspect", data: nil},
		{name: "files wrong type", view: ViewFiles, data: protocol.FSStats{}},
		{name: "history wrong type", view: ViewHistory, data: []protocol.FileEntry{}},
		{name: "stats nil pointer", view: ViewStats, data: (*protocol.FSStats)(nil)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := RenderStatic(tt.view, tt.data); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestQuitKey(t *testing.T) {
	m, err := newModel(ViewFiles, []protocol.FileEntry{{Path: "/a", Size: 1}})
	if err != nil {
		t.Fatalf("newModel: %v", err)
	}
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if got := next.View(); got != "" {
		t.Errorf("View after quit = %q, want empty", got)
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		n    int64
		want string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.0 KiB"},
		{1536, "1.5 KiB"},
		{1 << 20, "1.0 MiB"},
	}
	for _, tt := range tests {
		if got := formatBytes(tt.n); got != tt.want {
			t.Errorf("formatBytes(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}
