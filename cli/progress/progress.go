// Package progress renders transfer progress for the upload and dump
// commands.
package progress

import (
	"fmt"
	"io"
	"path"

	"github.com/schollz/progressbar/v3"

	"github.com/pithecene-io/devsync/session"
)

// Bar draws a byte progress bar as files move across the link. A total
// below zero shows a spinner instead of a percentage.
type Bar struct {
	bar    *progressbar.ProgressBar
	out    io.Writer
	files  int
	failed int
}

// New creates a bar writing to out.
func New(out io.Writer, phase string, total int64) *Bar {
	if total == 0 {
		total = -1
	}
	b := &Bar{out: out}
	b.bar = progressbar.NewOptions64(total,
		progressbar.OptionSetWriter(out),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription(phase),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetPredictTime(total > 0),
	)
	return b
}

// FileStarted implements session.Observer.
func (b *Bar) FileStarted(phase, devicePath string, _ int64) {
	b.bar.Describe(fmt.Sprintf("%s %s", phase, path.Base(devicePath)))
}

// BlockSent implements session.Observer.
func (b *Bar) BlockSent(n int) {
	_ = b.bar.Add(n)
}

// FileDone implements session.Observer.
func (b *Bar) FileDone(_, _ string, err error) {
	b.files++
	if err != nil {
		b.failed++
	}
}

// Finish completes the bar and prints a one-line tally.
func (b *Bar) Finish() error {
	if err := b.bar.Finish(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(b.out, "\n%d files, %d failed\n", b.files, b.failed)
	return err
}

// Files returns how many files finished, and how many of those failed.
func (b *Bar) Files() (done, failed int) {
	return b.files, b.failed
}

var _ session.Observer = (*Bar)(nil)
