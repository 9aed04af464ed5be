package lode

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/justapithecus/lode/lode"

	"github.com/pithecene-io/devsync/metrics"
)

// DatasetID is the lode dataset holding session records.
const DatasetID = "devsync"

// RecordKind discriminator values.
const (
	RecordKindFile    = "file"
	RecordKindSession = "session"
)

// partitionKeys is the Hive layout shared by the write and read paths.
var partitionKeys = []string{"device", "day", "session_id", "record_kind"}

// DeriveDay computes the partition day from the session start time.
// Format: YYYY-MM-DD in UTC.
func DeriveDay(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// RecordsConfig holds the partition values of one session.
type RecordsConfig struct {
	// Device labels the device; defaults to "unlabeled".
	Device    string
	Day       string
	SessionID string
}

// FileRecord is the outcome of one file transfer.
type FileRecord struct {
	// Op is "upload" or "dump".
	Op     string
	Path   string
	Size   int64
	OK     bool
	Reason string
	Offset uint32
	Error  string
}

// SessionRecord summarizes one session.
type SessionRecord struct {
	Operation   string
	Outcome     string
	Port        string
	Firmware    string
	StartedAt   time.Time
	CompletedAt time.Time
	Metrics     metrics.Snapshot
}

// Recorder writes session records into a Hive-partitioned lode dataset:
// device/day/session_id/record_kind.
type Recorder struct {
	dataset   lode.Dataset
	config    RecordsConfig
	collector *metrics.Collector
}

// NewRecorder creates a recorder over factory. Use lode.NewMemoryFactory()
// for testing.
func NewRecorder(factory lode.StoreFactory, cfg RecordsConfig, collector *metrics.Collector) (*Recorder, error) {
	if cfg.Device == "" {
		cfg.Device = "unlabeled"
	}
	ds, err := NewDataset(factory)
	if err != nil {
		return nil, WrapInitError(err, DatasetID)
	}
	return &Recorder{dataset: ds, config: cfg, collector: collector}, nil
}

// NewDataset opens the records dataset with the layout and codec used by
// Recorder.
func NewDataset(factory lode.StoreFactory) (lode.Dataset, error) {
	return lode.NewDataset(
		lode.DatasetID(DatasetID),
		factory,
		lode.WithHiveLayout(partitionKeys...),
		lode.WithCodec(lode.NewJSONLCodec()),
	)
}

// WriteFiles writes a batch of file records as one snapshot.
func (r *Recorder) WriteFiles(ctx context.Context, files []FileRecord) error {
	if len(files) == 0 {
		return nil
	}
	records := make([]any, 0, len(files))
	for _, f := range files {
		records = append(records, r.fileRecordMap(f))
	}
	return r.write(ctx, records)
}

// WriteSession writes the session summary record.
func (r *Recorder) WriteSession(ctx context.Context, s SessionRecord) error {
	m, err := r.sessionRecordMap(s)
	if err != nil {
		return err
	}
	return r.write(ctx, []any{m})
}

// Close releases recorder resources.
func (r *Recorder) Close() error {
	// Dataset doesn't require explicit close in current Lode API
	return nil
}

func (r *Recorder) write(ctx context.Context, records []any) error {
	if _, err := r.dataset.Write(ctx, records, lode.Metadata{}); err != nil {
		r.collector.IncStoreWriteFailure()
		return WrapWriteError(err, fmt.Sprintf("%s/session_id=%s", DatasetID, r.config.SessionID))
	}
	r.collector.IncStoreWriteSuccess()
	return nil
}

func (r *Recorder) partition(kind string) map[string]any {
	return map[string]any{
		"record_kind": kind,
		"device":      r.config.Device,
		"day":         r.config.Day,
		"session_id":  r.config.SessionID,
	}
}

// fileRecordMap converts a FileRecord for storage. Lode HiveLayout requires
// records as map[string]any.
func (r *Recorder) fileRecordMap(f FileRecord) map[string]any {
	m := r.partition(RecordKindFile)
	m["op"] = f.Op
	m["path"] = f.Path
	m["size"] = f.Size
	m["ok"] = f.OK
	if f.Reason != "" {
		m["reason"] = f.Reason
	}
	if f.Offset != 0 {
		m["offset"] = f.Offset
	}
	if f.Error != "" {
		m["error"] = f.Error
	}
	return m
}

func (r *Recorder) sessionRecordMap(s SessionRecord) (map[string]any, error) {
	raw, err := json.Marshal(s.Metrics)
	if err != nil {
		return nil, fmt.Errorf("encode metrics: %w", err)
	}
	var snapshot map[string]any
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		return nil, fmt.Errorf("encode metrics: %w", err)
	}

	m := r.partition(RecordKindSession)
	m["operation"] = s.Operation
	m["outcome"] = s.Outcome
	m["port"] = s.Port
	m["firmware"] = s.Firmware
	m["started_at"] = s.StartedAt.UTC().Format(time.RFC3339Nano)
	m["completed_at"] = s.CompletedAt.UTC().Format(time.RFC3339Nano)
	m["metrics"] = snapshot
	return m, nil
}
