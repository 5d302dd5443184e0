package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// LocalBackend stores chunks as individual files directly under its root
// directory (the worker's STORAGE_ROOT, which defaults to
// app/storage/<workerId>). Writes are non-atomic: no fsync, no
// rename-dance, matching the reference implementation's durability
// model (§3: durability equals the durability of the local filesystem).
type LocalBackend struct {
	root string
}

var _ Backend = (*LocalBackend)(nil)

// NewLocalBackend returns a backend rooted at dir, creating it if
// necessary.
func NewLocalBackend(dir string) (*LocalBackend, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root %s: %w", dir, err)
	}
	return &LocalBackend{root: dir}, nil
}

func (b *LocalBackend) path(key Key) string {
	return filepath.Join(b.root, key.name())
}

func (b *LocalBackend) Store(_ context.Context, key Key, data []byte) error {
	path := b.path(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create chunk directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write chunk file: %w", err)
	}
	return nil
}

func (b *LocalBackend) Retrieve(_ context.Context, key Key) ([]byte, error) {
	data, err := os.ReadFile(b.path(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return data, nil
}
