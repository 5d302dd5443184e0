// Package metadata is the typed gateway over the persistent chunk
// placement table (file_metadata). It is the only thing the placement
// oracle and the ingest pipeline use to read or write placement rows;
// neither talks to SQL directly.
package metadata

import (
	"context"
	"errors"
	"time"
)

// ErrIntegrityViolation is returned by a non-placeholder Save when a row
// already exists for the row's composite key (fileId, chunkId). The
// placement oracle reads before it writes, so it sees this when a
// concurrent writer inserted in between, and treats it as the idempotent
// "someone else won" path.
var ErrIntegrityViolation = errors.New("metadata: integrity violation on (file_id, chunk_id)")

// ErrNotFound is returned by lookups that find no matching row.
var ErrNotFound = errors.New("metadata: not found")

// Row is one chunk placement record.
type Row struct {
	FileID        string
	ChunkID       int
	Filename      string
	Size          int64
	WorkerID      string
	WorkerAddress string
	UploadTime    time.Time
}

// Gateway is the persistence surface the oracle and ingest pipeline
// depend on. Implementations must make Save atomic with respect to the
// (FileID, ChunkID) composite key: a second Save for the same key either
// updates in place (used only for the chunk-0 placeholder merge, see
// Save's insertPlaceholder) or fails with ErrIntegrityViolation.
type Gateway interface {
	// FindByFilename returns any single row matching filename,
	// deterministically the one with the lowest (FileID, ChunkID).
	FindByFilename(ctx context.Context, filename string) (Row, error)

	// FindAllByFileID returns every placement row for fileID, in no
	// guaranteed order.
	FindAllByFileID(ctx context.Context, fileID string) ([]Row, error)

	// FindByFileIDAndChunkID returns the row for one (fileID, chunkID),
	// or ErrNotFound.
	FindByFileIDAndChunkID(ctx context.Context, fileID string, chunkID int) (Row, error)

	// Save inserts a new row, or updates the existing row at the same key
	// when insertPlaceholder is true (used only for the ingest pipeline's
	// chunk-0 existence marker). When insertPlaceholder is false and a
	// row already exists at the key, Save returns ErrIntegrityViolation
	// without modifying it — this is the oracle's immutable-placement
	// path.
	Save(ctx context.Context, row Row, insertPlaceholder bool) error
}
