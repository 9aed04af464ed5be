package lode

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/justapithecus/lode/lode"
)

// ErrNoRecordsFound is returned when no matching records exist.
var ErrNoRecordsFound = errors.New("no records found")

// Filter narrows a records query. Empty fields match everything.
type Filter struct {
	Device    string
	SessionID string
	Kind      string
}

// QueryRecords reads matching records, latest snapshot first.
// Returns ErrNoRecordsFound when nothing matches.
func QueryRecords(ctx context.Context, ds lode.Dataset, f Filter) ([]map[string]any, error) {
	snapshots, err := ds.Snapshots(ctx)
	if err != nil {
		return nil, WrapReadError(err, DatasetID+"/snapshots")
	}

	var out []map[string]any
	for i := len(snapshots) - 1; i >= 0; i-- {
		snap := snapshots[i]
		if !snapshotMatches(snap, "device", f.Device) ||
			!snapshotMatches(snap, "session_id", f.SessionID) ||
			!snapshotMatches(snap, "record_kind", f.Kind) {
			continue
		}

		data, err := ds.Read(ctx, snap.ID)
		if err != nil {
			return nil, WrapReadError(err, fmt.Sprintf("%s/snapshot/%s", DatasetID, snap.ID))
		}
		// Manifest paths are a coarse pre-filter; record fields decide.
		for _, item := range data {
			record, ok := item.(map[string]any)
			if !ok {
				continue
			}
			if !fieldMatches(record, "device", f.Device) ||
				!fieldMatches(record, "session_id", f.SessionID) ||
				!fieldMatches(record, "record_kind", f.Kind) {
				continue
			}
			out = append(out, record)
		}
	}
	if len(out) == 0 {
		return nil, ErrNoRecordsFound
	}
	return out, nil
}

func snapshotMatches(snap *lode.DatasetSnapshot, key, value string) bool {
	if value == "" {
		return true
	}
	for _, f := range snap.Manifest.Files {
		if matchesPartitionValue(f.Path, key, value) {
			return true
		}
	}
	return false
}

// matchesPartitionValue checks if a Hive-partitioned path contains an exact
// key=value segment, so session_id=s-1 does not match session_id=s-10.
func matchesPartitionValue(path, key, value string) bool {
	segment := key + "=" + value
	for _, part := range strings.Split(path, "/") {
		if part == segment {
			return true
		}
	}
	return false
}

func fieldMatches(record map[string]any, key, value string) bool {
	return value == "" || ToString(record[key]) == value
}

// ToString converts a record value to string, returning "" for nil or
// non-string values.
func ToString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// ToInt64 converts a decoded record number to int64.
func ToInt64(v any) int64 {
	switch n := v.(type) {
	case float64:
		return int64(n)
	case int64:
		return n
	case int:
		return int64(n)
	case uint32:
		return int64(n)
	default:
		return 0
	}
}

// SessionSummary is one session record decoded for display.
type SessionSummary struct {
	SessionID   string `json:"session_id"`
	Device      string `json:"device"`
	Day         string `json:"day"`
	Operation   string `json:"operation"`
	Outcome     string `json:"outcome"`
	Port        string `json:"port"`
	Firmware    string `json:"firmware,omitempty"`
	StartedAt   string `json:"started_at"`
	CompletedAt string `json:"completed_at"`
	Files       int64  `json:"files"`
	Failures    int64  `json:"failures"`
}

// SessionSummaries decodes session records, newest start time first.
// Records of other kinds are skipped.
func SessionSummaries(records []map[string]any) []SessionSummary {
	out := make([]SessionSummary, 0, len(records))
	for _, r := range records {
		if ToString(r["record_kind"]) != RecordKindSession {
			continue
		}
		s := SessionSummary{
			SessionID:   ToString(r["session_id"]),
			Device:      ToString(r["device"]),
			Day:         ToString(r["day"]),
			Operation:   ToString(r["operation"]),
			Outcome:     ToString(r["outcome"]),
			Port:        ToString(r["port"]),
			Firmware:    ToString(r["firmware"]),
			StartedAt:   ToString(r["started_at"]),
			CompletedAt: ToString(r["completed_at"]),
		}
		if m, ok := r["metrics"].(map[string]any); ok {
			s.Files = ToInt64(m["files_uploaded"]) + ToInt64(m["files_downloaded"])
			s.Failures = ToInt64(m["file_failures"])
		}
		out = append(out, s)
	}
	// RFC 3339 UTC timestamps sort lexically.
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartedAt > out[j].StartedAt })
	return out
}
