// Package minio provides a MinIO implementation of filestore.Store.
//
// Usage:
//
//	cfg := filestore.DefaultConfig("localhost:9000", "minioadmin", "minioadmin")
//	store, err := minio.New(ctx, cfg)
//	if err != nil { ... }
//	defer store.Close()
//
//	obj, err := store.GetObject(ctx, "imports", "parcels.csv")
package minio

import (
	"context"
	"io"

	"github.com/koustreak/geori/internal/errs"
	"github.com/koustreak/geori/internal/filestore"
	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Driver is a MinIO implementation of filestore.Store.
// It is safe for concurrent use by multiple goroutines.
type Driver struct {
	client *miniogo.Client
	bucket string
}

var _ filestore.Store = (*Driver)(nil)

// New connects to MinIO using the provided Config and returns a Driver.
// It calls Ping to validate the connection before returning.
func New(ctx context.Context, cfg *filestore.Config) (*Driver, error) {
	client, err := miniogo.New(cfg.Endpoint, &miniogo.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindConnectionFailed, "failed to create minio client", err)
	}

	d := &Driver{client: client, bucket: cfg.DefaultBucket}

	if err := d.Ping(ctx); err != nil {
		return nil, err
	}

	return d, nil
}

// --- filestore.Store implementation ---

// Ping verifies the MinIO server is reachable. With a default bucket it
// checks that bucket exists, otherwise it lists buckets.
func (d *Driver) Ping(ctx context.Context) error {
	if d.bucket != "" {
		ok, err := d.client.BucketExists(ctx, d.bucket)
		if err != nil {
			return mapError(err, "ping failed")
		}
		if !ok {
			return errs.Newf(errs.ErrKindNotFound, "bucket %q does not exist", d.bucket)
		}
		return nil
	}
	if _, err := d.client.ListBuckets(ctx); err != nil {
		return mapError(err, "ping failed")
	}
	return nil
}

// Close is a no-op for MinIO; the SDK client holds no persistent connections.
func (d *Driver) Close() error {
	return nil
}

// GetObject opens a streaming handle to the object at key inside bucket.
// The caller MUST call Object.Close() after reading.
func (d *Driver) GetObject(ctx context.Context, bucket, key string) (filestore.Object, error) {
	obj, err := d.client.GetObject(ctx, bucket, key, miniogo.GetObjectOptions{})
	if err != nil {
		return nil, mapError(err, "failed to get object")
	}

	// GetObject is lazy; Stat surfaces a missing key before CSV parsing starts.
	stat, err := obj.Stat()
	if err != nil {
		_ = obj.Close()
		return nil, mapError(err, "failed to stat object after get")
	}

	return &object{
		ReadCloser: obj,
		info:       toInfo(key, stat),
	}, nil
}

// StatObject returns metadata for the object at key inside bucket
// without downloading its content.
func (d *Driver) StatObject(ctx context.Context, bucket, key string) (*filestore.ObjectInfo, error) {
	stat, err := d.client.StatObject(ctx, bucket, key, miniogo.StatObjectOptions{})
	if err != nil {
		return nil, mapError(err, "failed to stat object")
	}
	return toInfo(key, stat), nil
}

func toInfo(key string, stat miniogo.ObjectInfo) *filestore.ObjectInfo {
	if stat.Key != "" {
		key = stat.Key
	}
	return &filestore.ObjectInfo{
		Key:          key,
		Size:         stat.Size,
		ContentType:  stat.ContentType,
		ETag:         stat.ETag,
		LastModified: stat.LastModified,
	}
}

// --- internal types ---

// object wraps a MinIO GetObject response and exposes filestore.Object.
type object struct {
	io.ReadCloser
	info *filestore.ObjectInfo
}

func (o *object) Info() *filestore.ObjectInfo {
	return o.info
}
