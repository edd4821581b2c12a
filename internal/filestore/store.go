// Package filestore defines the interface for the object storage CSV inputs
// are loaded from.
//
// Usage:
//
//	cfg := filestore.DefaultConfig("localhost:9000", "minioadmin", "minioadmin")
//	store, err := minio.New(ctx, cfg)
//	if err != nil { ... }
//	defer store.Close()
//
//	src, err := filestore.OpenCSV(ctx, store, ref)
package filestore

import (
	"context"

	"github.com/koustreak/geori/internal/logger"
	"github.com/koustreak/geori/internal/rowsource"
)

// Store is the interface all file storage providers implement.
// It is scoped to read operations.
type Store interface {
	// Ping verifies the storage backend is reachable.
	Ping(ctx context.Context) error

	// Close releases any held resources (connections, goroutines, etc.).
	Close() error

	// GetObject opens a streaming handle to the object at key inside bucket.
	// The caller MUST call Object.Close() after reading.
	GetObject(ctx context.Context, bucket, key string) (Object, error)

	// StatObject returns metadata for the object at key inside bucket
	// without downloading its content.
	StatObject(ctx context.Context, bucket, key string) (*ObjectInfo, error)
}

// OpenCSV opens the object at ref and returns it as a CSV row source.
// Closing the source closes the object.
func OpenCSV(ctx context.Context, store Store, ref Ref) (rowsource.Source, error) {
	obj, err := store.GetObject(ctx, ref.Bucket, ref.Key)
	if err != nil {
		return nil, err
	}

	if info := obj.Info(); info != nil {
		logger.FromContext(ctx).With().
			Str("object", ref.String()).
			Any("size", info.Size).
			Logger().
			Debug("reading csv object")
	}

	return rowsource.NewCSV(obj)
}
