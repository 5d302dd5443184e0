package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// CompressedBackend wraps another Backend, zstd-compressing chunks on
// the way in and decompressing on the way out. It is opt-in
// (STORAGE_COMPRESSION=zstd) since it trades CPU for disk/network, and
// chunks are already fixed-size and often already-compressed content.
type CompressedBackend struct {
	inner Backend

	encMu sync.Mutex
	enc   *zstd.Encoder

	decMu sync.Mutex
	dec   *zstd.Decoder
}

var _ Backend = (*CompressedBackend)(nil)

// NewCompressedBackend wraps inner with zstd compression.
func NewCompressedBackend(inner Backend) (*CompressedBackend, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	return &CompressedBackend{inner: inner, enc: enc, dec: dec}, nil
}

func (b *CompressedBackend) Store(ctx context.Context, key Key, data []byte) error {
	b.encMu.Lock()
	compressed := b.enc.EncodeAll(data, nil)
	b.encMu.Unlock()
	return b.inner.Store(ctx, key, compressed)
}

func (b *CompressedBackend) Retrieve(ctx context.Context, key Key) ([]byte, error) {
	compressed, err := b.inner.Retrieve(ctx, key)
	if err != nil {
		return nil, err
	}
	b.decMu.Lock()
	data, err := b.dec.DecodeAll(compressed, nil)
	b.decMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("decompress chunk: %w", err)
	}
	return data, nil
}
