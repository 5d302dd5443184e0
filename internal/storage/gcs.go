package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
)

// GCSBackend stores chunks as individual objects in a single Google
// Cloud Storage bucket. Selected by STORAGE_BACKEND=gcs.
type GCSBackend struct {
	client *storage.Client
	bucket string
}

var _ Backend = (*GCSBackend)(nil)

// NewGCSBackend builds a client from application-default credentials.
func NewGCSBackend(ctx context.Context, bucket string) (*GCSBackend, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}
	return &GCSBackend{client: client, bucket: bucket}, nil
}

func (b *GCSBackend) Store(ctx context.Context, key Key, data []byte) error {
	w := b.client.Bucket(b.bucket).Object(key.name()).NewWriter(ctx)
	if _, err := w.Write(data); err != nil {
		w.Close()
		return fmt.Errorf("gcs write %s: %w", key.name(), err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("gcs close %s: %w", key.name(), err)
	}
	return nil
}

func (b *GCSBackend) Retrieve(ctx context.Context, key Key) ([]byte, error) {
	r, err := b.client.Bucket(b.bucket).Object(key.name()).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("gcs open reader %s: %w", key.name(), err)
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read gcs object: %w", err)
	}
	return data, nil
}
