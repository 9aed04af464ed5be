package metrics

import (
	"sync"
	"testing"
)

func TestCollector_IncrementMethods(t *testing.T) {
	c := NewCollector("deploy", "/dev/ttyUSB0", "fs", "sess-001")

	c.IncSessionStarted()
	c.IncSessionCompleted()
	c.IncSessionFailed()
	c.IncCommand("W")
	c.IncCommand("W")
	c.IncCommand("Z")
	c.IncBlockSent()
	c.IncBlockSent()
	c.IncBlockSent()
	c.IncBlockRetried()
	c.AddBytesUploaded(300)
	c.AddBytesDownloaded(42)
	c.IncTimeout()
	c.IncProtocolError()
	c.IncResync()
	c.AddFilesListed(5)
	c.IncFileDownloaded()
	c.IncFileUploaded()
	c.IncFileFailure("write_failed")
	c.IncFileFailure("write_failed")
	c.IncFileFailure("not_found")
	c.IncStoreWriteSuccess()
	c.IncStoreWriteFailure()

	s := c.Snapshot()

	checks := []struct {
		name string
		got  int64
		want int64
	}{
		{"SessionsStarted", s.SessionsStarted, 1},
		{"SessionsCompleted", s.SessionsCompleted, 1},
		{"SessionsFailed", s.SessionsFailed, 1},
		{"Commands[W]", s.Commands["W"], 2},
		{"Commands[Z]", s.Commands["Z"], 1},
		{"BlocksSent", s.BlocksSent, 3},
		{"BlocksRetried", s.BlocksRetried, 1},
		{"BytesUploaded", s.BytesUploaded, 300},
		{"BytesDownloaded", s.BytesDownloaded, 42},
		{"Timeouts", s.Timeouts, 1},
		{"ProtocolErrors", s.ProtocolErrors, 1},
		{"Resyncs", s.Resyncs, 1},
		{"FilesListed", s.FilesListed, 5},
		{"FilesDownloaded", s.FilesDownloaded, 1},
		{"FilesUploaded", s.FilesUploaded, 1},
		{"FileFailures", s.FileFailures, 3},
		{"FailuresByReason[write_failed]", s.FailuresByReason["write_failed"], 2},
		{"FailuresByReason[not_found]", s.FailuresByReason["not_found"], 1},
		{"StoreWriteSuccess", s.StoreWriteSuccess, 1},
		{"StoreWriteFailure", s.StoreWriteFailure, 1},
	}
	for _, tc := range checks {
		if tc.got != tc.want {
			t.Errorf("%s = %d, want %d", tc.name, tc.got, tc.want)
		}
	}
}

func TestCollector_Dimensions(t *testing.T) {
	c := NewCollector("dump", "COM3", "s3", "sess-42")
	s := c.Snapshot()

	if s.Operation != "dump" {
		t.Errorf("Operation = %q, want %q", s.Operation, "dump")
	}
	if s.Port != "COM3" {
		t.Errorf("Port = %q, want %q", s.Port, "COM3")
	}
	if s.StorageBackend != "s3" {
		t.Errorf("StorageBackend = %q, want %q", s.StorageBackend, "s3")
	}
	if s.SessionID != "sess-42" {
		t.Errorf("SessionID = %q, want %q", s.SessionID, "sess-42")
	}
}

func TestCollector_SnapshotIsolation(t *testing.T) {
	c := NewCollector("deploy", "p", "", "s")
	c.IncCommand("L")
	c.IncFileFailure("incomplete")

	s1 := c.Snapshot()
	s1.Commands["L"] = 999
	s1.FailuresByReason["injected"] = 1

	c.IncCommand("L")

	s2 := c.Snapshot()
	if s2.Commands["L"] != 2 {
		t.Errorf("Commands[L] = %d, want 2 (collector should be isolated from snapshot mutation)", s2.Commands["L"])
	}
	if _, ok := s2.FailuresByReason["injected"]; ok {
		t.Error("FailuresByReason should not contain injected key from snapshot mutation")
	}
	if s1.Commands["L"] != 999 {
		t.Error("s1 should keep its own map")
	}
}

func TestCollector_NilReceiverSafety(t *testing.T) {
	var c *Collector

	// None of these should panic
	c.IncSessionStarted()
	c.IncSessionCompleted()
	c.IncSessionFailed()
	c.IncCommand("v")
	c.IncBlockSent()
	c.IncBlockRetried()
	c.AddBytesUploaded(1)
	c.AddBytesDownloaded(1)
	c.IncTimeout()
	c.IncProtocolError()
	c.IncResync()
	c.AddFilesListed(1)
	c.IncFileDownloaded()
	c.IncFileUploaded()
	c.IncFileFailure("x")
	c.IncStoreWriteSuccess()
	c.IncStoreWriteFailure()

	s := c.Snapshot()
	if s.SessionsStarted != 0 {
		t.Errorf("nil collector snapshot SessionsStarted = %d, want 0", s.SessionsStarted)
	}
	if s.Commands != nil {
		t.Errorf("nil collector snapshot Commands should be nil, got %v", s.Commands)
	}
}

func TestCollector_ConcurrentAccess(t *testing.T) {
	c := NewCollector("deploy", "p", "", "s")
	const goroutines = 10
	const iterations = 1000

	var wg sync.WaitGroup
	wg.Add(goroutines)

	for range goroutines {
		go func() {
			defer wg.Done()
			for range iterations {
				c.IncBlockSent()
				c.IncCommand("W")
				c.IncFileFailure("write_failed")
			}
		}()
	}

	wg.Wait()

	s := c.Snapshot()
	want := int64(goroutines * iterations)

	if s.BlocksSent != want {
		t.Errorf("BlocksSent = %d, want %d", s.BlocksSent, want)
	}
	if s.Commands["W"] != want {
		t.Errorf("Commands[W] = %d, want %d", s.Commands["W"], want)
	}
	if s.FailuresByReason["write_failed"] != want {
		t.Errorf("FailuresByReason[write_failed] = %d, want %d", s.FailuresByReason["write_failed"], want)
	}
}
