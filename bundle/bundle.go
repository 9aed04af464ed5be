// Package bundle reads and writes the file sets exchanged with a device.
//
// A bundle is either a directory tree, whose files map to device paths
// rooted at "/", or a packed bundle file: a header frame followed by one
// frame per file, each frame a 4-byte big-endian length prefix and a
// msgpack payload.
package bundle

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/pithecene-io/devsync/protocol"
)

// Extension marks packed bundle files.
const Extension = ".bundle"

// File is one file of a bundle, addressed by its device path.
type File struct {
	Path string
	Data []byte
}

// Source yields bundle files in a stable order. Next returns io.EOF after
// the last file.
type Source interface {
	Next() (File, error)
	Close() error
}

// Sizer is implemented by sources that know their total content size up
// front.
type Sizer interface {
	TotalSize() int64
}

// Open opens a directory tree or a packed bundle file as a Source.
func Open(path string) (Source, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return NewDirSource(path)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	r, err := NewReader(f)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("open bundle %s: %w", path, err)
	}
	r.closer = f
	return r, nil
}

// DevicePath maps a slash-separated path relative to a bundle root to its
// device path.
func DevicePath(rel string) string {
	return "/" + strings.TrimPrefix(filepath.ToSlash(rel), "/")
}

// --- directory source ---

type dirEntry struct {
	devPath string
	osPath  string
	size    int64
}

// DirSource walks a directory tree. Files are yielded sorted by device
// path; directories themselves are implied by file paths.
type DirSource struct {
	root    string
	entries []dirEntry
	next    int
	total   int64
}

// NewDirSource scans root.
func NewDirSource(root string) (*DirSource, error) {
	s := &DirSource{root: root}
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		devPath := DevicePath(rel)
		if err := protocol.ValidatePath(devPath); err != nil {
			return err
		}
		s.entries = append(s.entries, dirEntry{devPath: devPath, osPath: path, size: info.Size()})
		s.total += info.Size()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", root, err)
	}
	sort.Slice(s.entries, func(i, j int) bool {
		return s.entries[i].devPath < s.entries[j].devPath
	})
	return s, nil
}

// Next reads the next file from disk.
func (s *DirSource) Next() (File, error) {
	if s.next >= len(s.entries) {
		return File{}, io.EOF
	}
	e := s.entries[s.next]
	s.next++
	data, err := os.ReadFile(e.osPath)
	if err != nil {
		return File{}, fmt.Errorf("read %s: %w", e.osPath, err)
	}
	return File{Path: e.devPath, Data: data}, nil
}

// Len returns the number of files found.
func (s *DirSource) Len() int { return len(s.entries) }

// TotalSize returns the combined size of all files found.
func (s *DirSource) TotalSize() int64 { return s.total }

// Close is a no-op.
func (s *DirSource) Close() error { return nil }

// --- packed bundles ---

// Reader yields files from a packed bundle stream.
type Reader struct {
	frames  frameReader
	closer  io.Closer
	// Created is the creation timestamp recorded in the header, if any.
	Created string
}

// NewReader reads and checks the bundle header.
func NewReader(r io.Reader) (*Reader, error) {
	br := &Reader{frames: frameReader{r: bufio.NewReader(r)}}
	payload, err := br.frames.next()
	if err == io.EOF {
		return nil, frameErr(FrameErrorHeader, nil, "empty stream")
	}
	if err != nil {
		return nil, err
	}
	var h header
	if err := msgpack.Unmarshal(payload, &h); err != nil {
		return nil, frameErr(FrameErrorDecode, err, "decoding header")
	}
	if h.Type != HeaderType {
		return nil, frameErr(FrameErrorHeader, nil, "first frame is %q", h.Type)
	}
	if h.Version != FormatVersion {
		return nil, frameErr(FrameErrorHeader, nil, "version %d, want %d", h.Version, FormatVersion)
	}
	br.Created = h.Created
	return br, nil
}

// Next returns the next file frame. Unknown frame types are skipped.
func (r *Reader) Next() (File, error) {
	for {
		payload, err := r.frames.next()
		if err != nil {
			return File{}, err
		}
		typ, err := frameType(payload)
		if err != nil {
			return File{}, err
		}
		if typ != FileType {
			continue
		}

		var f fileFrame
		if err := msgpack.Unmarshal(payload, &f); err != nil {
			return File{}, frameErr(FrameErrorDecode, err, "decoding file frame")
		}
		if err := protocol.ValidatePath(f.Path); err != nil {
			return File{}, frameErr(FrameErrorDecode, err, "file path %q", f.Path)
		}
		return File{Path: f.Path, Data: f.Data}, nil
	}
}

// Close closes the underlying file when the Reader was created by Open.
func (r *Reader) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}

// Writer packs files into a bundle stream.
type Writer struct {
	w      *bufio.Writer
	closer io.Closer
	count  int
}

// NewWriter writes the bundle header to w.
func NewWriter(w io.Writer) (*Writer, error) {
	bw := &Writer{w: bufio.NewWriter(w)}
	h := header{Type: HeaderType, Version: FormatVersion, Created: time.Now().UTC().Format(time.RFC3339)}
	if err := writeFrame(bw.w, h); err != nil {
		return nil, fmt.Errorf("write bundle header: %w", err)
	}
	return bw, nil
}

// Create creates a bundle file at path.
func Create(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	w, err := NewWriter(f)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	w.closer = f
	return w, nil
}

// Add appends one file.
func (w *Writer) Add(f File) error {
	if err := protocol.ValidatePath(f.Path); err != nil {
		return err
	}
	if err := writeFrame(w.w, fileFrame{Type: FileType, Path: f.Path, Data: f.Data}); err != nil {
		return fmt.Errorf("write %s: %w", f.Path, err)
	}
	w.count++
	return nil
}

// Store appends one file; it lets a Writer receive dumped files.
func (w *Writer) Store(_ context.Context, path string, data []byte) error {
	return w.Add(File{Path: path, Data: data})
}

// Count returns the number of files written.
func (w *Writer) Count() int { return w.count }

// Close flushes buffered frames and closes the file opened by Create.
func (w *Writer) Close() error {
	err := w.w.Flush()
	if w.closer != nil {
		if cerr := w.closer.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// Pack writes every file of src to w.
func Pack(src Source, w *Writer) error {
	for {
		f, err := src.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if err := w.Add(f); err != nil {
			return err
		}
	}
}
