// Package metrics provides per-session counters for device sync sessions.
//
// The Collector accumulates counters during a single session. It is a leaf
// package with no internal dependencies; the protocol engine and the session
// both record into it, and the session report embeds its Snapshot.
package metrics

import "sync"

// Snapshot is an immutable point-in-time view of all session metrics.
// Returned by Collector.Snapshot(). Safe to read concurrently after creation.
type Snapshot struct {
	// Session lifecycle
	SessionsStarted   int64 `json:"sessions_started"`
	SessionsCompleted int64 `json:"sessions_completed"`
	SessionsFailed    int64 `json:"sessions_failed"`

	// Wire traffic
	Commands         map[string]int64 `json:"commands"`
	BlocksSent       int64            `json:"blocks_sent"`
	BlocksRetried    int64            `json:"blocks_retried"`
	BytesUploaded    int64            `json:"bytes_uploaded"`
	BytesDownloaded  int64            `json:"bytes_downloaded"`
	Timeouts         int64            `json:"timeouts"`
	ProtocolErrors   int64            `json:"protocol_errors"`
	Resyncs          int64            `json:"resyncs"`
	FilesListed      int64            `json:"files_listed"`
	FilesDownloaded  int64            `json:"files_downloaded"`
	FilesUploaded    int64            `json:"files_uploaded"`
	FileFailures     int64            `json:"file_failures"`
	FailuresByReason map[string]int64 `json:"failures_by_reason"`

	// Storage
	StoreWriteSuccess int64 `json:"store_write_success"`
	StoreWriteFailure int64 `json:"store_write_failure"`

	// Dimensions (informational, set at construction)
	Operation      string `json:"operation"`
	Port           string `json:"port"`
	StorageBackend string `json:"storage_backend,omitempty"`
	SessionID      string `json:"session_id"`
}

// Collector accumulates metrics during a single session.
// Thread-safe via sync.Mutex. All increment methods are nil-receiver safe.
type Collector struct {
	mu sync.Mutex

	sessionsStarted   int64
	sessionsCompleted int64
	sessionsFailed    int64

	commands        map[string]int64
	blocksSent      int64
	blocksRetried   int64
	bytesUploaded   int64
	bytesDownloaded int64
	timeouts        int64
	protocolErrors  int64
	resyncs         int64

	filesListed      int64
	filesDownloaded  int64
	filesUploaded    int64
	fileFailures     int64
	failuresByReason map[string]int64

	storeWriteSuccess int64
	storeWriteFailure int64

	operation      string
	port           string
	storageBackend string
	sessionID      string
}

// NewCollector creates a Collector with dimension labels.
// storageBackend may be empty for operations that store nothing.
func NewCollector(operation, port, storageBackend, sessionID string) *Collector {
	return &Collector{
		commands:         make(map[string]int64),
		failuresByReason: make(map[string]int64),
		operation:        operation,
		port:             port,
		storageBackend:   storageBackend,
		sessionID:        sessionID,
	}
}

func (c *Collector) add(field *int64, n int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	*field += n
	c.mu.Unlock()
}

// --- Session lifecycle ---

// IncSessionStarted records a session start (link opened).
func (c *Collector) IncSessionStarted() {
	if c == nil {
		return
	}
	c.add(&c.sessionsStarted, 1)
}

// IncSessionCompleted records a session that closed without a fatal error.
func (c *Collector) IncSessionCompleted() {
	if c == nil {
		return
	}
	c.add(&c.sessionsCompleted, 1)
}

// IncSessionFailed records a session ended by a fatal error.
func (c *Collector) IncSessionFailed() {
	if c == nil {
		return
	}
	c.add(&c.sessionsFailed, 1)
}

// --- Wire traffic ---

// IncCommand records one command line written to the device, keyed by its
// command letter.
func (c *Collector) IncCommand(cmd string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.commands[cmd]++
	c.mu.Unlock()
}

// IncBlockSent records one block frame transmission, including resends.
func (c *Collector) IncBlockSent() {
	if c == nil {
		return
	}
	c.add(&c.blocksSent, 1)
}

// IncBlockRetried records a resend after a checksum rejection.
func (c *Collector) IncBlockRetried() {
	if c == nil {
		return
	}
	c.add(&c.blocksRetried, 1)
}

// AddBytesUploaded records payload bytes accepted by the device.
func (c *Collector) AddBytesUploaded(n int) {
	if c == nil {
		return
	}
	c.add(&c.bytesUploaded, int64(n))
}

// AddBytesDownloaded records verified content bytes received.
func (c *Collector) AddBytesDownloaded(n int) {
	if c == nil {
		return
	}
	c.add(&c.bytesDownloaded, int64(n))
}

// IncTimeout records a read that produced no byte within its deadline.
func (c *Collector) IncTimeout() {
	if c == nil {
		return
	}
	c.add(&c.timeouts, 1)
}

// IncProtocolError records a byte outside its expected set.
func (c *Collector) IncProtocolError() {
	if c == nil {
		return
	}
	c.add(&c.protocolErrors, 1)
}

// IncResync records an interrupt sent to recover from an abandoned transfer.
func (c *Collector) IncResync() {
	if c == nil {
		return
	}
	c.add(&c.resyncs, 1)
}

// --- Files ---

// AddFilesListed records listing entries received.
func (c *Collector) AddFilesListed(n int) {
	if c == nil {
		return
	}
	c.add(&c.filesListed, int64(n))
}

// IncFileDownloaded records a verified download.
func (c *Collector) IncFileDownloaded() {
	if c == nil {
		return
	}
	c.add(&c.filesDownloaded, 1)
}

// IncFileUploaded records a file closed with end-of-file.
func (c *Collector) IncFileUploaded() {
	if c == nil {
		return
	}
	c.add(&c.filesUploaded, 1)
}

// IncFileFailure records a per-file failure by reason.
func (c *Collector) IncFileFailure(reason string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.fileFailures++
	c.failuresByReason[reason]++
	c.mu.Unlock()
}

// --- Storage ---

// IncStoreWriteSuccess records a successful dump or record write.
func (c *Collector) IncStoreWriteSuccess() {
	if c == nil {
		return
	}
	c.add(&c.storeWriteSuccess, 1)
}

// IncStoreWriteFailure records a failed dump or record write.
func (c *Collector) IncStoreWriteFailure() {
	if c == nil {
		return
	}
	c.add(&c.storeWriteFailure, 1)
}

// --- Snapshot ---

// Snapshot returns an immutable point-in-time view of all metrics.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	commands := make(map[string]int64, len(c.commands))
	for k, v := range c.commands {
		commands[k] = v
	}
	reasons := make(map[string]int64, len(c.failuresByReason))
	for k, v := range c.failuresByReason {
		reasons[k] = v
	}

	return Snapshot{
		SessionsStarted:   c.sessionsStarted,
		SessionsCompleted: c.sessionsCompleted,
		SessionsFailed:    c.sessionsFailed,

		Commands:         commands,
		BlocksSent:       c.blocksSent,
		BlocksRetried:    c.blocksRetried,
		BytesUploaded:    c.bytesUploaded,
		BytesDownloaded:  c.bytesDownloaded,
		Timeouts:         c.timeouts,
		ProtocolErrors:   c.protocolErrors,
		Resyncs:          c.resyncs,
		FilesListed:      c.filesListed,
		FilesDownloaded:  c.filesDownloaded,
		FilesUploaded:    c.filesUploaded,
		FileFailures:     c.fileFailures,
		FailuresByReason: reasons,

		StoreWriteSuccess: c.storeWriteSuccess,
		StoreWriteFailure: c.storeWriteFailure,

		Operation:      c.operation,
		Port:           c.port,
		StorageBackend: c.storageBackend,
		SessionID:      c.sessionID,
	}
}
