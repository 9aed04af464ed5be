package log

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestLogger_SessionContext(t *testing.T) {
	var buf bytes.Buffer
	l, err := NewLoggerWithOptions(SessionMeta{
		SessionID: "sess-1",
		Port:      "/dev/ttyUSB0",
		Device:    "bench-1",
	}, Options{Output: &buf})
	if err != nil {
		t.Fatalf("NewLoggerWithOptions: %v", err)
	}

	l.Info("listing complete", map[string]any{"entries": 3})

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v (%s)", err, buf.String())
	}
	if entry["session_id"] != "sess-1" {
		t.Errorf("session_id = %v", entry["session_id"])
	}
	if entry["port"] != "/dev/ttyUSB0" {
		t.Errorf("port = %v", entry["port"])
	}
	if entry["device"] != "bench-1" {
		t.Errorf("device = %v", entry["device"])
	}
	if entry["level"] != "info" {
		t.Errorf("level = %v", entry["level"])
	}
	if entry["message"] != "listing complete" {
		t.Errorf("message = %v", entry["message"])
	}
	fields, ok := entry["fields"].(map[string]any)
	if !ok || fields["entries"] != float64(3) {
		t.Errorf("fields = %v", entry["fields"])
	}
}

func TestLogger_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	l, err := NewLoggerWithOptions(SessionMeta{SessionID: "s"}, Options{Output: &buf, Level: "warn"})
	if err != nil {
		t.Fatalf("NewLoggerWithOptions: %v", err)
	}

	l.Debug("hidden", nil)
	l.Info("hidden", nil)
	l.Warn("shown", nil)

	if strings.Contains(buf.String(), "hidden") {
		t.Errorf("entries below warn were written: %s", buf.String())
	}
	if !strings.Contains(buf.String(), "shown") {
		t.Errorf("warn entry missing: %s", buf.String())
	}
}

func TestLogger_InvalidOptions(t *testing.T) {
	if _, err := NewLoggerWithOptions(SessionMeta{}, Options{Level: "loud"}); err == nil {
		t.Error("expected error for invalid level")
	}
	if _, err := NewLoggerWithOptions(SessionMeta{}, Options{Format: "xml"}); err == nil {
		t.Error("expected error for invalid format")
	}
}

func TestLogger_ConsoleFormat(t *testing.T) {
	var buf bytes.Buffer
	l, err := NewLoggerWithOptions(SessionMeta{SessionID: "s"}, Options{Output: &buf, Format: "console"})
	if err != nil {
		t.Fatalf("NewLoggerWithOptions: %v", err)
	}
	l.Info("uploaded 4 files", nil)

	if !strings.Contains(buf.String(), "uploaded 4 files") {
		t.Errorf("console output missing message: %q", buf.String())
	}
	if json.Valid(bytes.TrimSpace(buf.Bytes())) {
		t.Error("console output should not be JSON")
	}
}

func TestLogger_With(t *testing.T) {
	var buf bytes.Buffer
	base, err := NewLoggerWithOptions(SessionMeta{SessionID: "s", Port: "COM3"}, Options{Output: &buf})
	if err != nil {
		t.Fatalf("NewLoggerWithOptions: %v", err)
	}
	base.With(map[string]any{"operation": "dump"}).Warn("retrying block", nil)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v (%s)", err, buf.String())
	}
	if entry["operation"] != "dump" || entry["port"] != "COM3" {
		t.Errorf("entry = %v", entry)
	}
	if _, ok := entry["fields"]; ok {
		t.Errorf("empty fields should be omitted: %v", entry)
	}
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]string{"": "info", "DEBUG": "debug", "warning": "warn", "error": "error"} {
		got, err := ParseLevel(in)
		if err != nil || got.String() != want {
			t.Errorf("ParseLevel(%q) = %v, %v; want %s", in, got, err, want)
		}
	}
}

func TestNop(t *testing.T) {
	l := Nop()
	l.Error("dropped", map[string]any{"k": "v"})
	if err := l.Sync(); err != nil {
		t.Errorf("Sync = %v", err)
	}
}
