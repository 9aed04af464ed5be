package lode

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/justapithecus/lode/lode"
)

// Backend names reported in metrics and reports.
const (
	BackendFS     = "fs"
	BackendS3     = "s3"
	BackendMemory = "memory"
)

// Target is a parsed storage location: a local directory or an S3
// bucket/prefix.
type Target struct {
	Backend string
	// Root is the directory for BackendFS.
	Root string
	S3   S3Config
}

// ParseTarget parses "s3://bucket/prefix" or a filesystem path.
func ParseTarget(s string, opts S3Options) (Target, error) {
	if s == "" {
		return Target{}, errors.New("storage target is empty")
	}
	rest, isS3 := strings.CutPrefix(s, S3Scheme)
	if !isS3 {
		return Target{Backend: BackendFS, Root: s}, nil
	}
	bucket, prefix, _ := strings.Cut(rest, "/")
	c := S3Config{Bucket: bucket, Prefix: strings.TrimSuffix(prefix, "/"), S3Options: opts}
	if err := c.Validate(); err != nil {
		return Target{}, err
	}
	return Target{Backend: BackendS3, S3: c}, nil
}

// String renders the target the way it was given.
func (t Target) String() string {
	if t.Backend == BackendS3 {
		if t.S3.Prefix == "" {
			return S3Scheme + t.S3.Bucket
		}
		return S3Scheme + t.S3.Bucket + "/" + t.S3.Prefix
	}
	return t.Root
}

// Factory returns the lode store factory for the target.
func (t Target) Factory(ctx context.Context) (lode.StoreFactory, error) {
	switch t.Backend {
	case BackendS3:
		return newS3Factory(ctx, t.S3)
	case BackendFS:
		return lode.NewFSFactory(t.Root), nil
	default:
		return nil, errors.New("unknown storage backend " + t.Backend)
	}
}

// lazyStore initializes a store from its factory on first use.
type lazyStore struct {
	factory lode.StoreFactory
	once    sync.Once
	store   lode.Store
	err     error
}

func (l *lazyStore) get() (lode.Store, error) {
	l.once.Do(func() {
		l.store, l.err = l.factory()
	})
	return l.store, l.err
}
