// Package storage is the worker-side chunk storage engine: the Backend
// interface plus implementations, and the Engine whose
// StoreChunk/RetrieveChunk methods workerrpc serves.
package storage

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is returned by Retrieve when no chunk exists at the given
// key. It is never wrapped with additional detail so callers can use
// errors.Is directly.
var ErrNotFound = errors.New("storage: chunk not found")

// Key uniquely identifies a stored chunk within a worker. The reference
// on-disk layout keys by chunk id alone (chunk_<chunkId>.chunk), which
// collides across files sharing a worker for the same chunk id (see
// spec design notes); this implementation always includes fileId.
type Key struct {
	FileID  string
	ChunkID int
}

// name renders the key as the on-disk/object-store relative path
// fragment shared by all backends.
func (k Key) name() string {
	return fmt.Sprintf("%s_%d.chunk", k.FileID, k.ChunkID)
}

// Backend is where a worker's bytes ultimately land. The local backend
// is the spec's §4.6 contract and is always available; the others are
// opt-in via STORAGE_BACKEND (see SPEC_FULL.md domain stack).
type Backend interface {
	// Store writes data at key, overwriting any existing chunk there.
	Store(ctx context.Context, key Key, data []byte) error

	// Retrieve returns the bytes at key, or ErrNotFound if absent.
	Retrieve(ctx context.Context, key Key) ([]byte, error)
}

// Engine is the worker's storage engine: a Backend plus the informational
// workerID check described in spec §9 ("workerId in StoreChunk requests").
type Engine struct {
	selfWorkerID string
	backend      Backend
}

// NewEngine wraps backend for the worker identified by selfWorkerID.
func NewEngine(selfWorkerID string, backend Backend) *Engine {
	return &Engine{selfWorkerID: selfWorkerID, backend: backend}
}

// ErrWorkerIDMismatch is returned when a StoreChunk request names a
// workerId other than this engine's own. Per spec §9 this field is
// otherwise informational; this implementation chooses to enforce it
// rather than silently ignore it, since silent ignoring hides a
// misrouted RPC from the caller.
var ErrWorkerIDMismatch = errors.New("storage: request workerId does not match this worker")

// StoreChunk writes chunk bytes under this worker's own identity,
// rejecting requests addressed to a different worker.
func (e *Engine) StoreChunk(ctx context.Context, requestWorkerID, fileID string, chunkID int, data []byte) error {
	if requestWorkerID != "" && requestWorkerID != e.selfWorkerID {
		return ErrWorkerIDMismatch
	}
	return e.backend.Store(ctx, Key{FileID: fileID, ChunkID: chunkID}, data)
}

// RetrieveChunk returns the bytes stored at (fileID, chunkID). Per §4.6,
// both "no such chunk" and any I/O error surface identically as
// found=false — there is no silent substitution, but there is also no
// distinct error channel on this path.
func (e *Engine) RetrieveChunk(ctx context.Context, fileID string, chunkID int) ([]byte, bool) {
	data, err := e.backend.Retrieve(ctx, Key{FileID: fileID, ChunkID: chunkID})
	if err != nil {
		return nil, false
	}
	return data, true
}
