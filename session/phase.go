package session

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/pithecene-io/devsync/bundle"
	"github.com/pithecene-io/devsync/protocol"
)

// Phase names.
const (
	PhaseUpload = "upload"
	PhaseDump   = "dump"
)

// FileResult is the outcome of one file in a phase.
type FileResult struct {
	Path string `json:"path"`
	Size int64  `json:"size"`
	// Err is nil when the file transferred.
	Err *protocol.FileError `json:"-"`
}

// PhaseSummary accumulates the per-file outcomes of an upload or dump.
type PhaseSummary struct {
	Phase     string        `json:"phase"`
	Attempted int           `json:"attempted"`
	Succeeded int           `json:"succeeded"`
	Bytes     int64         `json:"bytes"`
	Duration  time.Duration `json:"-"`
	Results   []FileResult  `json:"-"`
	// Failures lists per-file errors in the order they happened.
	Failures []*protocol.FileError `json:"-"`
}

func (p *PhaseSummary) record(path string, size int64, err *protocol.FileError) {
	p.Attempted++
	p.Results = append(p.Results, FileResult{Path: path, Size: size, Err: err})
	if err != nil {
		p.Failures = append(p.Failures, err)
		return
	}
	p.Succeeded++
	p.Bytes += size
}

// Failed reports whether any file failed.
func (p *PhaseSummary) Failed() bool {
	return p != nil && len(p.Failures) > 0
}

// DumpSink receives downloaded files.
type DumpSink interface {
	Store(ctx context.Context, path string, data []byte) error
}

// Observer follows per-file and per-block progress.
type Observer interface {
	FileStarted(phase, path string, size int64)
	BlockSent(n int)
	FileDone(phase, path string, err error)
}

// NopObserver ignores progress.
type NopObserver struct{}

func (NopObserver) FileStarted(string, string, int64) {}
func (NopObserver) BlockSent(int) {}
func (NopObserver) FileDone(string, string, error) {}

// UploadTree writes every file of src to the device. The context is
// checked between files only, so cancellation never splits a command.
func (s *Session) UploadTree(ctx context.Context, src bundle.Source) (*PhaseSummary, error) {
	summary := &PhaseSummary{Phase: PhaseUpload}
	if err := s.check(); err != nil {
		return summary, err
	}
	start := time.Now()
	defer func() { summary.Duration = time.Since(start) }()

	for {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		f, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return summary, err
		}

		size := int64(len(f.Data))
		s.observer.FileStarted(PhaseUpload, f.Path, size)
		err = s.conn.Upload(f.Path, f.Data, s.observer.BlockSent)
		s.observer.FileDone(PhaseUpload, f.Path, err)

		if fe, ok := protocol.AsFileError(err); ok {
			s.logger.Warn("upload failed, continuing", map[string]any{
				"path":   f.Path,
				"reason": fe.Reason.String(),
				"error":  fe.Error(),
			})
			summary.record(f.Path, size, fe)
			continue
		}
		if err != nil {
			return summary, s.fail(err)
		}
		s.logger.Debug("uploaded", map[string]any{"path": f.Path, "size": size})
		summary.record(f.Path, size, nil)
	}

	s.logger.Info("upload finished", map[string]any{
		"attempted": summary.Attempted,
		"succeeded": summary.Succeeded,
		"bytes":     summary.Bytes,
	})
	return summary, nil
}

// Deploy empties the device and uploads src. Nothing is written when the
// wipe or reformat does not succeed.
func (s *Session) Deploy(ctx context.Context, src bundle.Source) (*PhaseSummary, error) {
	if err := s.WipeOrReformat(); err != nil {
		return &PhaseSummary{Phase: PhaseUpload}, err
	}
	return s.UploadTree(ctx, src)
}

// Dump lists the device and downloads every file into sink. A size that
// changed since the listing is logged, not treated as an error. A sink
// failure is recorded against the file with protocol.ReasonStorage.
func (s *Session) Dump(ctx context.Context, sink DumpSink) (*PhaseSummary, error) {
	summary := &PhaseSummary{Phase: PhaseDump}
	entries, err := s.ListFiles()
	if err != nil {
		return summary, err
	}
	start := time.Now()
	defer func() { summary.Duration = time.Since(start) }()

	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		s.observer.FileStarted(PhaseDump, e.Path, int64(e.Size))
		content, size, err := s.conn.Download(e.Path)
		if err == nil && size != e.Size {
			s.logger.Warn("file size changed since listing", map[string]any{
				"path":   e.Path,
				"listed": e.Size,
				"actual": size,
			})
		}
		if err == nil {
			s.observer.BlockSent(len(content))
			if serr := sink.Store(ctx, e.Path, content); serr != nil {
				s.collector.IncFileFailure(protocol.ReasonStorage.String())
				err = &protocol.FileError{Op: PhaseDump, Path: e.Path, Reason: protocol.ReasonStorage, Err: serr}
			}
		}
		s.observer.FileDone(PhaseDump, e.Path, err)

		if fe, ok := protocol.AsFileError(err); ok {
			s.logger.Warn("dump failed, continuing", map[string]any{
				"path":   e.Path,
				"reason": fe.Reason.String(),
				"error":  fe.Error(),
			})
			summary.record(e.Path, int64(e.Size), fe)
			continue
		}
		if err != nil {
			return summary, s.fail(err)
		}
		summary.record(e.Path, int64(len(content)), nil)
	}

	s.logger.Info("dump finished", map[string]any{
		"attempted": summary.Attempted,
		"succeeded": summary.Succeeded,
		"bytes":     summary.Bytes,
	})
	return summary, nil
}
