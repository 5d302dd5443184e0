package storage

import (
	"context"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
)

// Config describes which Backend to build and how, as read from
// worker settings (STORAGE_BACKEND, STORAGE_ROOT, STORAGE_BUCKET,
// STORAGE_COMPRESSION).
type Config struct {
	Kind        string // "local" (default), "s3", "gcs", "azblob"
	Root        string // local: directory
	Bucket      string // s3/gcs: bucket name
	AzureURL    string // azblob: account URL (e.g. https://acct.blob.core.windows.net)
	Container   string // azblob: container name
	Compression bool   // wrap the chosen backend in zstd
}

// NewBackend builds the Backend named by cfg.Kind.
func NewBackend(ctx context.Context, cfg Config) (Backend, error) {
	var (
		backend Backend
		err     error
	)

	switch cfg.Kind {
	case "", "local":
		backend, err = NewLocalBackend(cfg.Root)
	case "s3":
		backend, err = NewS3Backend(ctx, cfg.Bucket)
	case "gcs":
		backend, err = NewGCSBackend(ctx, cfg.Bucket)
	case "azblob":
		var cred *azidentity.DefaultAzureCredential
		cred, err = azidentity.NewDefaultAzureCredential(nil)
		if err != nil {
			return nil, fmt.Errorf("load azure credential: %w", err)
		}
		backend, err = NewAzureBackend(cfg.AzureURL, cfg.Container, cred)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Kind)
	}
	if err != nil {
		return nil, err
	}

	if cfg.Compression {
		return NewCompressedBackend(backend)
	}
	return backend, nil
}
