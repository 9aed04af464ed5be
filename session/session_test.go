package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/justapithecus/lode/lode"

	"github.com/pithecene-io/devsync/bundle"
	"github.com/pithecene-io/devsync/device"
	"github.com/pithecene-io/devsync/device/devicetest"
	devlode "github.com/pithecene-io/devsync/lode"
	"github.com/pithecene-io/devsync/metrics"
	"github.com/pithecene-io/devsync/protocol"
)

func testConfig() Config {
	return Config{
		Port:        "sim",
		ReadTimeout: 10 * time.Millisecond,
		// Keep the device's default retry ceiling.
		BlockRetries:           8,
		ReformatRequestTimeout: 20 * time.Millisecond,
		ReformatTimeout:        20 * time.Millisecond,
	}
}

func openSession(t *testing.T, dev *devicetest.Device, cfg Config, opts ...Option) (*Session, *metrics.Collector) {
	t.Helper()
	collector := metrics.NewCollector("test", "sim", "", "s-1")
	opts = append([]Option{WithPort(dev), WithCollector(collector)}, opts...)
	s, err := Open(cfg, opts...)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s, collector
}

func content(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i*13 + 1)
	}
	return b
}

// sliceSource is an in-memory bundle.Source.
type sliceSource struct {
	files []bundle.File
	err   error
}

func (s *sliceSource) Next() (bundle.File, error) {
	if len(s.files) == 0 {
		if s.err != nil {
			return bundle.File{}, s.err
		}
		return bundle.File{}, io.EOF
	}
	f := s.files[0]
	s.files = s.files[1:]
	return f, nil
}

func (s *sliceSource) Close() error { return nil }

type mapSink map[string][]byte

func (m mapSink) Store(_ context.Context, path string, data []byte) error {
	m[path] = data
	return nil
}

type failingSink struct{ fail string }

func (f failingSink) Store(_ context.Context, path string, _ []byte) error {
	if path == f.fail {
		return errors.New("disk full")
	}
	return nil
}

type recordingObserver struct {
	started []string
	done    []string
	bytes   int
}

func (r *recordingObserver) FileStarted(_, path string, _ int64) { r.started = append(r.started, path) }
func (r *recordingObserver) BlockSent(n int) { r.bytes += n }
func (r *recordingObserver) FileDone(_, path string, err error) {
	if err != nil {
		path += " (failed)"
	}
	r.done = append(r.done, path)
}

func TestOpen_InterruptAbortsLeftoverCommand(t *testing.T) {
	tests := []struct {
		name     string
		leftover func(*devicetest.Device)
	}{
		{
			name: "half-written command line",
			leftover: func(d *devicetest.Device) {
				_, _ = d.Write([]byte("R:/ha"))
			},
		},
		{
			name: "transfer left open",
			leftover: func(d *devicetest.Device) {
				_, _ = d.Write([]byte("W:/partial\n"))
				// The previous client read the open acknowledgment.
				_, _ = d.Read(make([]byte, 5))
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := devicetest.New()
			tt.leftover(dev)

			s, collector := openSession(t, dev, testConfig())
			if dev.Interrupts != 1 {
				t.Errorf("Interrupts = %d, want 1", dev.Interrupts)
			}
			info, err := s.VerifyLink()
			if err != nil {
				t.Fatalf("VerifyLink: %v", err)
			}
			if info != "devsim 1.0" || s.Firmware() != info {
				t.Errorf("firmware = %q", info)
			}
			if _, ok := dev.File("/partial"); ok {
				t.Error("abandoned transfer was committed")
			}
			if got := collector.Snapshot().SessionsStarted; got != 1 {
				t.Errorf("SessionsStarted = %d, want 1", got)
			}
		})
	}
}

func TestOpen_InvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.BlockRetries = -1
	_, err := Open(cfg, WithPort(devicetest.New()))
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("error = %v, want ErrInvalidConfig", err)
	}

	_, err = Open(Config{})
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("Open without port: %v, want ErrInvalidConfig", err)
	}
}

func TestOpen_NoPromptIsFatal(t *testing.T) {
	dev := devicetest.New()
	dev.Prompt = '#'
	_, err := Open(testConfig(), WithPort(dev))
	if !errors.Is(err, protocol.ErrProtocolViolation) {
		t.Fatalf("error = %v, want ErrProtocolViolation", err)
	}
	if !dev.Closed {
		t.Error("link left open after fatal error")
	}
}

func TestFatalErrorClosesSession(t *testing.T) {
	dev := devicetest.New()
	s, collector := openSession(t, dev, testConfig())

	dev.Prompt = '#'
	_, err := s.VerifyLink()
	if !errors.Is(err, protocol.ErrProtocolViolation) {
		t.Fatalf("VerifyLink error = %v, want ErrProtocolViolation", err)
	}
	if !dev.Closed {
		t.Fatal("link not closed after fatal error")
	}
	if !errors.Is(s.Err(), protocol.ErrProtocolViolation) {
		t.Errorf("Err() = %v", s.Err())
	}

	if _, err := s.ListFiles(); !errors.Is(err, ErrClosed) {
		t.Errorf("ListFiles after fatal = %v, want ErrClosed", err)
	}
	if _, err := s.UploadTree(t.Context(), &sliceSource{}); !errors.Is(err, ErrClosed) {
		t.Errorf("UploadTree after fatal = %v, want ErrClosed", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("Close after fatal: %v", err)
	}

	snap := collector.Snapshot()
	if snap.SessionsFailed != 1 || snap.SessionsCompleted != 0 {
		t.Errorf("sessions failed/completed = %d/%d, want 1/0", snap.SessionsFailed, snap.SessionsCompleted)
	}
}

func TestStatsListDownloadDelete(t *testing.T) {
	dev := devicetest.New()
	dev.Total = 1000
	dev.Put("/a.txt", []byte("alpha"))
	dev.Put("/lib/b.py", []byte("beta!"))
	s, _ := openSession(t, dev, testConfig())

	stats, err := s.Stats()
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Used != 10 || stats.Total != 1000 {
		t.Errorf("Stats = %+v", stats)
	}

	entries, err := s.ListFiles()
	if err != nil {
		t.Fatalf("ListFiles: %v", err)
	}
	if len(entries) != 2 || entries[1].Path != "/lib/b.py" {
		t.Errorf("ListFiles = %+v", entries)
	}

	data, size, err := s.DownloadFile("/a.txt")
	if err != nil || string(data) != "alpha" || size != 5 {
		t.Errorf("DownloadFile = %q, %d, %v", data, size, err)
	}

	_, _, err = s.DownloadFile("/missing")
	fe, ok := protocol.AsFileError(err)
	if !ok || fe.Reason != protocol.ReasonNotFound {
		t.Fatalf("DownloadFile(/missing) = %v, want not_found", err)
	}

	if err := s.Delete("/lib"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Delete("/lib"); !errors.Is(err, device.ErrDeleteRefused) {
		t.Errorf("second Delete(/lib) = %v, want ErrDeleteRefused", err)
	}
	if _, err := s.VerifyLink(); err != nil {
		t.Fatalf("session unusable after per-file failures: %v", err)
	}
}

func TestUploadTree_ContinuesPastFileFailures(t *testing.T) {
	dev := devicetest.New()
	dev.WriteFailAt = map[string]int{"/b": 1}
	dev.OpenRefused = map[string]bool{"/c": true}
	obs := &recordingObserver{}
	s, collector := openSession(t, dev, testConfig(), WithObserver(obs))

	src := &sliceSource{files: []bundle.File{
		{Path: "/a", Data: content(300)},
		{Path: "/b", Data: content(600)},
		{Path: "/c", Data: content(10)},
		{Path: "/d", Data: nil},
	}}
	summary, err := s.UploadTree(t.Context(), src)
	if err != nil {
		t.Fatalf("UploadTree: %v", err)
	}

	if summary.Attempted != 4 || summary.Succeeded != 2 {
		t.Errorf("attempted/succeeded = %d/%d, want 4/2", summary.Attempted, summary.Succeeded)
	}
	if summary.Bytes != 300 {
		t.Errorf("Bytes = %d, want 300", summary.Bytes)
	}
	if len(summary.Failures) != 2 {
		t.Fatalf("Failures = %v, want 2", summary.Failures)
	}
	if f := summary.Failures[0]; f.Path != "/b" || f.Reason != protocol.ReasonWriteFailed || f.Offset != 256 {
		t.Errorf("Failures[0] = %+v", f)
	}
	if f := summary.Failures[1]; f.Path != "/c" || f.Reason != protocol.ReasonOpenRefused {
		t.Errorf("Failures[1] = %+v", f)
	}

	if got, _ := dev.File("/a"); !bytes.Equal(got, content(300)) {
		t.Error("/a content mismatch")
	}
	if got, ok := dev.File("/d"); !ok || len(got) != 0 {
		t.Error("/d not created empty")
	}
	if _, ok := dev.File("/b"); ok {
		t.Error("failed upload /b was committed")
	}

	if strings.Join(obs.done, ",") != "/a,/b (failed),/c (failed),/d" {
		t.Errorf("observer done = %v", obs.done)
	}
	// 300 bytes of /a and the first accepted block of /b.
	if obs.bytes != 300+256 {
		t.Errorf("observer bytes = %d, want %d", obs.bytes, 300+256)
	}

	snap := collector.Snapshot()
	if snap.FilesUploaded != 2 || snap.FailuresByReason["write_failed"] != 1 || snap.FailuresByReason["open_refused"] != 1 {
		t.Errorf("metrics = %+v", snap)
	}
}

func TestUploadTree_AckTimeoutContinues(t *testing.T) {
	dev := devicetest.New()
	dev.DropAckAt = map[string]int{"/slow": 0}
	s, _ := openSession(t, dev, testConfig())

	summary, err := s.UploadTree(t.Context(), &sliceSource{files: []bundle.File{
		{Path: "/slow", Data: content(10)},
		{Path: "/next", Data: content(10)},
	}})
	if err != nil {
		t.Fatalf("UploadTree: %v", err)
	}
	if len(summary.Failures) != 1 || summary.Failures[0].Reason != protocol.ReasonAckTimeout {
		t.Fatalf("Failures = %v, want one ack_timeout", summary.Failures)
	}
	if _, ok := dev.File("/next"); !ok {
		t.Error("/next not uploaded after ack timeout")
	}
}

func TestUploadTree_FatalStopsPhase(t *testing.T) {
	dev := devicetest.New()
	dev.RegressAt = map[string]int{"/a": 1}
	s, _ := openSession(t, dev, testConfig())

	summary, err := s.UploadTree(t.Context(), &sliceSource{files: []bundle.File{
		{Path: "/a", Data: content(600)},
		{Path: "/b", Data: content(10)},
	}})
	if !errors.Is(err, protocol.ErrProtocolViolation) {
		t.Fatalf("error = %v, want ErrProtocolViolation", err)
	}
	if summary.Attempted != 0 {
		t.Errorf("Attempted = %d, want 0", summary.Attempted)
	}
	if dev.CommandCount("W:/b") != 0 {
		t.Error("upload continued after fatal error")
	}
	if !dev.Closed {
		t.Error("link not closed")
	}
}

func TestUploadTree_SourceError(t *testing.T) {
	dev := devicetest.New()
	s, _ := openSession(t, dev, testConfig())
	boom := errors.New("unreadable bundle")

	summary, err := s.UploadTree(t.Context(), &sliceSource{
		files: []bundle.File{{Path: "/a", Data: content(5)}},
		err:   boom,
	})
	if !errors.Is(err, boom) {
		t.Fatalf("error = %v, want source error", err)
	}
	if summary.Succeeded != 1 {
		t.Errorf("Succeeded = %d, want 1", summary.Succeeded)
	}
	if s.Err() != nil {
		t.Errorf("source error closed the session: %v", s.Err())
	}
}

func TestUploadTree_CanceledBetweenFiles(t *testing.T) {
	dev := devicetest.New()
	ctx, cancel := context.WithCancel(t.Context())
	s, _ := openSession(t, dev, testConfig(), WithObserver(&cancelObserver{cancel: cancel}))

	summary, err := s.UploadTree(ctx, &sliceSource{files: []bundle.File{
		{Path: "/a", Data: content(600)},
		{Path: "/b", Data: content(5)},
	}})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	// /a finishes; /b is never started.
	if summary.Succeeded != 1 || dev.CommandCount("W:/b") != 0 {
		t.Errorf("succeeded = %d, W:/b = %d", summary.Succeeded, dev.CommandCount("W:/b"))
	}
	if dev.EOFs != 1 || dev.Pending() != 0 {
		t.Errorf("EOFs = %d, Pending = %d: link left mid-command", dev.EOFs, dev.Pending())
	}
}

// cancelObserver cancels on the first block, mid-file.
type cancelObserver struct {
	NopObserver
	cancel context.CancelFunc
}

func (c *cancelObserver) BlockSent(int) { c.cancel() }

func TestDeploy(t *testing.T) {
	tests := []struct {
		name       string
		noReformat bool
		setup      func(*devicetest.Device)
		wantErr    error
		wantWrites int
		wantClosed bool
	}{
		{name: "reformat confirmed", setup: func(*devicetest.Device) {}, wantWrites: 2},
		{name: "wipe", noReformat: true, setup: func(*devicetest.Device) {}, wantWrites: 2},
		{
			name:    "declined",
			setup:   func(d *devicetest.Device) { d.Decision = protocol.DecisionDeclined },
			wantErr: protocol.ErrFormatDeclined,
		},
		{
			name:       "no decision",
			setup:      func(d *devicetest.Device) { d.Decision = protocol.DecisionTimedOut },
			wantErr:    protocol.ErrFormatDeclined,
			wantClosed: true,
		},
		{
			name:       "format failed",
			setup:      func(d *devicetest.Device) { d.ReformatFails = true },
			wantErr:    protocol.ErrFormatFailed,
			wantClosed: true,
		},
		{
			name:       "wipe failed",
			noReformat: true,
			setup:      func(d *devicetest.Device) { d.WipeFails = true },
			wantErr:    protocol.ErrFormatFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := devicetest.New()
			dev.Put("/old", content(4))
			tt.setup(dev)
			cfg := testConfig()
			cfg.NoReformat = tt.noReformat
			s, _ := openSession(t, dev, cfg)

			_, err := s.Deploy(t.Context(), &sliceSource{files: []bundle.File{
				{Path: "/main.py", Data: content(40)},
				{Path: "/lib/x.py", Data: content(400)},
			}})
			if tt.wantErr == nil && err != nil {
				t.Fatalf("Deploy: %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("error = %v, want %v", err, tt.wantErr)
			}
			if got := dev.CommandCount("W:"); got != tt.wantWrites {
				t.Errorf("W: commands = %d, want %d", got, tt.wantWrites)
			}
			if tt.noReformat && dev.CommandCount("X:/") == 0 {
				t.Error("wipe did not issue X:/")
			}
			if dev.Closed != tt.wantClosed {
				t.Errorf("link closed = %v, want %v", dev.Closed, tt.wantClosed)
			}
			if tt.wantErr == nil {
				if _, ok := dev.File("/old"); ok {
					t.Error("/old survived deploy")
				}
			}
		})
	}
}

func TestWipeOrReformat_TimedOutClosesSession(t *testing.T) {
	dev := devicetest.New()
	dev.Decision = protocol.DecisionTimedOut
	s, collector := openSession(t, dev, testConfig())

	err := s.WipeOrReformat()
	var fe *protocol.FormatError
	if !errors.As(err, &fe) || fe.Decision != protocol.DecisionTimedOut {
		t.Fatalf("error = %v, want timed out FormatError", err)
	}
	if _, err := s.VerifyLink(); !errors.Is(err, ErrClosed) {
		t.Errorf("VerifyLink after timed out decision = %v, want ErrClosed", err)
	}
	if collector.Snapshot().SessionsFailed != 0 {
		t.Error("declined format counted as a failed session")
	}
}

func TestWipeOrReformat_FailedFormatClosesSession(t *testing.T) {
	dev := devicetest.New()
	dev.ReformatFails = true
	s, _ := openSession(t, dev, testConfig())

	err := s.WipeOrReformat()
	var fe *protocol.FormatError
	if !errors.As(err, &fe) || fe.Decision != protocol.DecisionConfirmed || !errors.Is(err, protocol.ErrFormatFailed) {
		t.Fatalf("error = %v, want confirmed format failure", err)
	}
	if !dev.Closed {
		t.Error("link left open after failed format")
	}
	if _, err := s.ListFiles(); !errors.Is(err, ErrClosed) {
		t.Errorf("ListFiles after failed format = %v, want ErrClosed", err)
	}
}

func TestDump(t *testing.T) {
	dev := devicetest.New()
	dev.Put("/a", content(300))
	dev.Put("/c", content(3))
	dev.Put("/bad", content(20))
	dev.Put("/empty", nil)
	dev.CorruptChecksum = map[string]bool{"/bad": true}
	s, collector := openSession(t, dev, testConfig())

	sink := mapSink{}
	summary, err := s.Dump(t.Context(), sink)
	if err != nil {
		t.Fatalf("Dump: %v", err)
	}
	if summary.Attempted != 4 || summary.Succeeded != 3 {
		t.Errorf("attempted/succeeded = %d/%d, want 4/3", summary.Attempted, summary.Succeeded)
	}
	if len(summary.Failures) != 1 || summary.Failures[0].Reason != protocol.ReasonChecksumMismatch {
		t.Errorf("Failures = %v", summary.Failures)
	}
	if !bytes.Equal(sink["/a"], content(300)) || len(sink["/empty"]) != 0 {
		t.Error("dumped content mismatch")
	}
	if _, ok := sink["/bad"]; ok {
		t.Error("corrupt file stored")
	}
	if collector.Snapshot().FilesDownloaded != 3 {
		t.Errorf("FilesDownloaded = %d, want 3", collector.Snapshot().FilesDownloaded)
	}
}

func TestDump_TruncatedFileContinues(t *testing.T) {
	dev := devicetest.New()
	dev.Put("/short", content(50))
	dev.Put("/ok", content(5))
	dev.TruncateAt = map[string]int{"/short": 10}
	s, _ := openSession(t, dev, testConfig())

	sink := mapSink{}
	summary, err := s.Dump(t.Context(), sink)
	if err != nil {
		t.Fatalf("Dump: %v", err)
	}
	if len(summary.Failures) != 1 || summary.Failures[0].Reason != protocol.ReasonIncomplete {
		t.Fatalf("Failures = %v, want incomplete", summary.Failures)
	}
	if _, ok := sink["/ok"]; !ok {
		t.Error("/ok not dumped after incomplete read")
	}
}

func TestDump_SinkFailureIsPerFile(t *testing.T) {
	dev := devicetest.New()
	dev.Put("/a", content(5))
	dev.Put("/b", content(5))
	s, collector := openSession(t, dev, testConfig())

	summary, err := s.Dump(t.Context(), failingSink{fail: "/a"})
	if err != nil {
		t.Fatalf("Dump: %v", err)
	}
	if len(summary.Failures) != 1 {
		t.Fatalf("Failures = %v", summary.Failures)
	}
	if f := summary.Failures[0]; f.Reason != protocol.ReasonStorage || f.Op != PhaseDump || f.Path != "/a" {
		t.Errorf("Failures[0] = %+v", f)
	}
	if summary.Succeeded != 1 {
		t.Errorf("Succeeded = %d, want 1", summary.Succeeded)
	}
	if collector.Snapshot().FailuresByReason["storage"] != 1 {
		t.Error("storage failure not counted")
	}
}

func TestDump_SizeDriftIsNotAnError(t *testing.T) {
	dev := devicetest.New()
	dev.Put("/log", content(8))
	// The listing claims 4 bytes; the read returns 8.
	dev.ListingOverride = append(append(protocol.EncodeSize(4), "/log\x00"...),
		append(protocol.EncodeSize(protocol.SizeTerminator), 0, protocol.Ready)...)
	s, _ := openSession(t, dev, testConfig())

	sink := mapSink{}
	summary, err := s.Dump(t.Context(), sink)
	if err != nil {
		t.Fatalf("Dump: %v", err)
	}
	if summary.Failed() || len(sink["/log"]) != 8 {
		t.Errorf("summary = %+v, stored %d bytes", summary, len(sink["/log"]))
	}
	if summary.Bytes != 8 {
		t.Errorf("Bytes = %d, want 8", summary.Bytes)
	}
}

func TestDump_IntoStoreAndBundle(t *testing.T) {
	newDevice := func() *devicetest.Device {
		dev := devicetest.New()
		dev.Put("/boot.py", []byte("print(1)"))
		dev.Put("/lib/util.py", content(700))
		return dev
	}

	t.Run("lode store", func(t *testing.T) {
		s, _ := openSession(t, newDevice(), testConfig())
		mem := lode.NewMemory()
		store := devlode.NewDumpStore(func() (lode.Store, error) { return mem, nil }, "unit-1", nil)

		if _, err := s.Dump(t.Context(), store); err != nil {
			t.Fatalf("Dump: %v", err)
		}
		got, err := store.Load(t.Context(), "/lib/util.py")
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if !bytes.Equal(got, content(700)) {
			t.Error("stored content mismatch")
		}
	})

	t.Run("bundle", func(t *testing.T) {
		s, _ := openSession(t, newDevice(), testConfig())
		var buf bytes.Buffer
		w, err := bundle.NewWriter(&buf)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := s.Dump(t.Context(), w); err != nil {
			t.Fatalf("Dump: %v", err)
		}
		if err := w.Close(); err != nil {
			t.Fatal(err)
		}

		// Re-upload the dumped bundle to a fresh device.
		r, err := bundle.NewReader(&buf)
		if err != nil {
			t.Fatalf("NewReader: %v", err)
		}
		fresh := devicetest.New()
		s2, _ := openSession(t, fresh, testConfig())
		summary, err := s2.UploadTree(t.Context(), r)
		if err != nil || summary.Succeeded != 2 {
			t.Fatalf("UploadTree = %+v, %v", summary, err)
		}
		if got, _ := fresh.File("/boot.py"); string(got) != "print(1)" {
			t.Errorf("/boot.py = %q", got)
		}
	})
}

func TestClassifyOutcome(t *testing.T) {
	partial := &PhaseSummary{Attempted: 3}
	partial.record("/x", 1, &protocol.FileError{Op: "upload", Path: "/x", Reason: protocol.ReasonAckTimeout})

	tests := []struct {
		name    string
		err     error
		summary *PhaseSummary
		want    Outcome
		code    int
	}{
		{"success", nil, nil, OutcomeSuccess, 0},
		{"partial", nil, partial, OutcomePartial, 1},
		{"link", protocol.LinkError("open", errors.New("no such device")), nil, OutcomeLinkError, 2},
		{"timeout", protocol.TimeoutError("await_ready", "x"), partial, OutcomeTimeout, 2},
		{"violation", protocol.Violation("list", "bad"), nil, OutcomeProtocolError, 2},
		{"declined", &protocol.FormatError{Kind: protocol.ErrFormatDeclined, Mode: "reformat"}, nil, OutcomeFormatDeclined, 3},
		{"format failed", &protocol.FormatError{Kind: protocol.ErrFormatFailed, Mode: "wipe"}, nil, OutcomeFormatFailed, 3},
		{"config", ErrInvalidConfig, nil, OutcomeInvalidConfig, 4},
		{"canceled", context.Canceled, nil, OutcomeCanceled, 2},
		{"delete refused", fmt.Errorf("delete /x: %w", device.ErrDeleteRefused), nil, OutcomePartial, 1},
		{"invalid path", protocol.ErrInvalidPath, nil, OutcomeInvalidConfig, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, msg := ClassifyOutcome(tt.err, tt.summary)
			if got != tt.want {
				t.Errorf("outcome = %s, want %s", got, tt.want)
			}
			if msg == "" {
				t.Error("empty message")
			}
			if got.ExitCode() != tt.code {
				t.Errorf("ExitCode = %d, want %d", got.ExitCode(), tt.code)
			}
		})
	}
}

func TestReportJSON(t *testing.T) {
	summary := &PhaseSummary{Phase: PhaseUpload}
	summary.record("/a", 10, nil)
	summary.record("/b", 600, &protocol.FileError{Op: "upload", Path: "/b", Reason: protocol.ReasonWriteFailed, Offset: 256})

	cfg := testConfig()
	cfg.DeviceLabel = "bench-1"
	snap := metrics.Snapshot{BlocksSent: 4, SessionID: "s-1"}
	report := BuildReport("s-1", "upload", cfg, "fw 1", time.Now(), nil, summary, snap)

	var buf bytes.Buffer
	if err := writeReportTo(report, &buf); err != nil {
		t.Fatalf("writeReportTo: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if decoded["outcome"] != "partial" || decoded["exit_code"] != float64(1) {
		t.Errorf("outcome/exit_code = %v/%v", decoded["outcome"], decoded["exit_code"])
	}
	if decoded["device"] != "bench-1" || decoded["port"] != "sim" {
		t.Errorf("device/port = %v/%v", decoded["device"], decoded["port"])
	}
	phase := decoded["phase"].(map[string]any)
	failures := phase["failures"].([]any)
	if len(failures) != 1 {
		t.Fatalf("failures = %v", failures)
	}
	f := failures[0].(map[string]any)
	if f["reason"] != "write_failed" || f["offset"] != float64(256) {
		t.Errorf("failure = %v", f)
	}
	if !strings.HasSuffix(buf.String(), "}\n") {
		t.Error("report not newline terminated")
	}
}

func TestWriteReport_File(t *testing.T) {
	path := t.TempDir() + "/report.json"
	report := BuildReport("s-1", "verify", testConfig(), "", time.Now(), nil, nil, metrics.Snapshot{})
	if err := WriteReport(report, path); err != nil {
		t.Fatalf("WriteReport: %v", err)
	}
	if err := WriteReport(report, ""); err == nil {
		t.Error("empty path accepted")
	}
}
