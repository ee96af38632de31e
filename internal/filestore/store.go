// Package filestore defines the read-only object storage interface the
// ingest package loads files from.
//
// Usage:
//
//	cfg := filestore.DefaultConfig("localhost:9000", "minioadmin", "minioadmin")
//	cfg.Bucket = "exports"
//	store, err := minio.New(ctx, cfg)
//	if err != nil { ... }
//	defer store.Close()
package filestore

import (
	"context"
	"iter"
)

// Store is implemented by every storage backend.
type Store interface {
	// Ping verifies the storage backend is reachable.
	Ping(ctx context.Context) error

	// Close releases any held resources.
	Close() error

	// Objects lists the objects in bucket matching opts, in key order.
	// Virtual directories are skipped. Listing stops at the first error,
	// which is yielded as the final pair.
	Objects(ctx context.Context, bucket string, opts ListOptions) iter.Seq2[ObjectInfo, error]

	// GetObject opens a streaming handle to the object at key inside bucket.
	// The caller MUST call Object.Close() after reading.
	GetObject(ctx context.Context, bucket, key string) (Object, error)

	// StatObject returns metadata for the object without downloading it.
	StatObject(ctx context.Context, bucket, key string) (*ObjectInfo, error)
}
