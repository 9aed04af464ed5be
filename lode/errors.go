// Package lode stores what a device session produces: dumped device files
// in a lode Store and per-file session records in a lode Dataset, on the
// local filesystem or in S3.
package lode

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"syscall"
)

// Storage failure kinds. Match them with errors.Is on any error returned by
// this package.
var (
	ErrPermissionDenied = errors.New("permission denied")
	ErrNotFound         = errors.New("not found")
	ErrDiskFull         = errors.New("no space left on device")
	ErrTimeout          = errors.New("operation timed out")
	ErrThrottled        = errors.New("rate limited")
	// ErrAuth means no usable credentials; ErrAccessDenied means the
	// credentials were accepted but lack permission.
	ErrAuth         = errors.New("authentication failed")
	ErrAccessDenied = errors.New("access denied")
	ErrNetwork      = errors.New("network error")
	ErrUnclassified = errors.New("storage error")
)

// Storage operations named in a StorageError.
const (
	OpInit  = "init"
	OpRead  = "read"
	OpWrite = "write"
)

// StorageError is a classified failure of a store or dataset call.
type StorageError struct {
	Kind error
	Op   string
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	where := e.Op
	if e.Path != "" {
		where += " " + e.Path
	}
	return fmt.Sprintf("%s: %v: %v", where, e.Kind, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Is matches the error's Kind, so errors.Is(err, ErrNotFound) works
// without unwrapping to the cause.
func (e *StorageError) Is(target error) bool { return errors.Is(e.Kind, target) }

// WrapWriteError classifies err as a failed write of path. nil stays nil.
func WrapWriteError(err error, path string) error { return classify(err, OpWrite, path) }

// WrapReadError classifies err as a failed read of path. nil stays nil.
func WrapReadError(err error, path string) error { return classify(err, OpRead, path) }

// WrapInitError classifies err as a failure to open target.
func WrapInitError(err error, target string) error { return classify(err, OpInit, target) }

func classify(err error, op, path string) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Kind: kindOf(err), Op: op, Path: path, Err: err}
}

// messageKinds is consulted in order when the error carries no typed cause.
// S3 SDK failures usually arrive this way.
var messageKinds = []struct {
	kind     error
	patterns []string
}{
	{ErrAccessDenied, []string{"accessdenied", "forbidden", "403"}},
	{ErrPermissionDenied, []string{"permission denied", "eacces"}},
	{ErrNotFound, []string{"no such file", "does not exist", "not found", "enoent", "404", "nosuchkey", "nosuchbucket"}},
	{ErrDiskFull, []string{"no space left", "disk full", "enospc", "quota exceeded"}},
	{ErrTimeout, []string{"timeout", "timed out", "deadline exceeded"}},
	{ErrThrottled, []string{"slowdown", "rate exceeded", "throttl", "429", "toomanyrequests"}},
	{ErrAuth, []string{"nocredentialproviders", "credentials", "invalidaccesskeyid", "signaturedoesnotmatch", "expiredtoken", "401", "unauthorized"}},
	{ErrNetwork, []string{"connection refused", "no route to host", "network unreachable", "dns", "dial tcp"}},
}

func kindOf(err error) error {
	var to interface{ Timeout() bool }
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &to) && to.Timeout():
		return ErrTimeout
	case errors.Is(err, fs.ErrPermission):
		return ErrPermissionDenied
	case errors.Is(err, fs.ErrNotExist):
		return ErrNotFound
	case errors.Is(err, syscall.ENOSPC):
		return ErrDiskFull
	}

	msg := strings.ToLower(err.Error())
	for _, mk := range messageKinds {
		for _, p := range mk.patterns {
			if strings.Contains(msg, p) {
				return mk.kind
			}
		}
	}
	return ErrUnclassified
}
