package lode

import (
	"bytes"
	"context"
	"io"
	"path"
	"strings"

	"github.com/justapithecus/lode/lode"

	"github.com/pithecene-io/devsync/metrics"
)

// DumpStore writes dumped device files into a lode Store, keyed by device
// path without its leading slash. Files land under Prefix when set.
type DumpStore struct {
	store     lazyStore
	prefix    string
	collector *metrics.Collector
}

// NewDumpStore creates a dump store over factory. The store itself is
// created on the first write.
func NewDumpStore(factory lode.StoreFactory, prefix string, collector *metrics.Collector) *DumpStore {
	return &DumpStore{
		store:     lazyStore{factory: factory},
		prefix:    strings.Trim(prefix, "/"),
		collector: collector,
	}
}

// Key returns the storage key for a device path.
func (d *DumpStore) Key(devicePath string) string {
	key := strings.TrimPrefix(path.Clean("/"+devicePath), "/")
	if d.prefix == "" {
		return key
	}
	return d.prefix + "/" + key
}

// Store writes one dumped file.
func (d *DumpStore) Store(ctx context.Context, devicePath string, data []byte) error {
	key := d.Key(devicePath)
	store, err := d.store.get()
	if err != nil {
		d.collector.IncStoreWriteFailure()
		return WrapInitError(err, key)
	}
	if err := store.Put(ctx, key, bytes.NewReader(data)); err != nil {
		d.collector.IncStoreWriteFailure()
		return WrapWriteError(err, key)
	}
	d.collector.IncStoreWriteSuccess()
	return nil
}

// Load reads back a dumped file.
func (d *DumpStore) Load(ctx context.Context, devicePath string) ([]byte, error) {
	key := d.Key(devicePath)
	store, err := d.store.get()
	if err != nil {
		return nil, WrapInitError(err, key)
	}
	rc, err := store.Get(ctx, key)
	if err != nil {
		return nil, WrapReadError(err, key)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, WrapReadError(err, key)
	}
	return data, nil
}
