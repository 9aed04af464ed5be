// Package iox provides cleanup helpers for links, stores and adapters.
package iox

import (
	"errors"
	"io"
)

// DiscardClose closes c and discards the error, for defers where a close
// error is unactionable:
//
//	defer iox.DiscardClose(resp.Body)
func DiscardClose(c io.Closer) { _ = c.Close() }

// CloseFunc returns a cleanup function that closes c, for t.Cleanup.
func CloseFunc(c io.Closer) func() {
	return func() { _ = c.Close() }
}

// DiscardErr calls fn and discards the returned error:
//
//	defer iox.DiscardErr(logger.Sync)
func DiscardErr(fn func() error) { _ = fn() }

// Stack closes resources in reverse order of registration.
// The zero value is ready to use.
type Stack struct {
	closers []io.Closer
}

// Push registers c. Nil closers are ignored.
func (s *Stack) Push(c io.Closer) {
	if c != nil {
		s.closers = append(s.closers, c)
	}
}

// Close closes everything registered, last first, and joins the errors.
// A second Close is a no-op.
func (s *Stack) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}
