// Package oracle implements the placement oracle: the only writer of
// chunk placement rows, and the sole arbiter of which worker a given
// (fileId, chunkId) lands on.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/kluzzebass/filemesh/internal/logging"
	"github.com/kluzzebass/filemesh/internal/metadata"
	"github.com/kluzzebass/filemesh/internal/registry"
)

// ErrNoActiveWorkers is returned when the registry has no active worker
// to place a new chunk on.
var ErrNoActiveWorkers = errors.New("oracle: no active workers")

// AlreadyAssignedError carries the pre-existing placement decision a
// caller should honor instead of retrying. schedulerrpc does not send a
// separate ALREADY_EXISTS code for it: it answers with the existing
// placement as an ordinary assignment response.
type AlreadyAssignedError struct {
	WorkerID      string
	WorkerAddress string
}

func (e *AlreadyAssignedError) Error() string {
	return fmt.Sprintf("oracle: chunk already assigned to worker %s (%s)", e.WorkerID, e.WorkerAddress)
}

// Decision is the outcome of a successful or idempotent placement.
type Decision struct {
	WorkerID      string
	WorkerAddress string
}

// Oracle assigns workers to chunks by round robin over the active
// registry, recording each decision exactly once per (fileId, chunkId).
type Oracle struct {
	registry *registry.Registry
	gateway  metadata.Gateway
	next     atomic.Uint64
	now      func() time.Time
	logger   *slog.Logger
}

// New creates an Oracle. now defaults to time.Now if nil.
func New(reg *registry.Registry, gw metadata.Gateway, now func() time.Time, logger *slog.Logger) *Oracle {
	if now == nil {
		now = time.Now
	}
	return &Oracle{
		registry: reg,
		gateway:  gw,
		now:      now,
		logger:   logging.Default(logger).With("component", "oracle"),
	}
}

// AssignWorker selects a worker for (fileID, chunkID), persists the
// decision, and returns it. If a placement already exists, it returns
// *AlreadyAssignedError carrying the existing decision instead of
// creating or modifying any row.
func (o *Oracle) AssignWorker(ctx context.Context, requesterWorkerID, fileID string, chunkID int) (Decision, error) {
	existing, err := o.gateway.FindByFileIDAndChunkID(ctx, fileID, chunkID)
	hasPlaceholder := false
	switch {
	case err == nil && existing.WorkerID != "":
		// A real placement already exists; this is a broker redelivery.
		return Decision{}, &AlreadyAssignedError{WorkerID: existing.WorkerID, WorkerAddress: existing.WorkerAddress}
	case err == nil:
		// Chunk 0's ingest-written placeholder row (no worker yet) —
		// not a placement, fall through and merge a real one into it.
		hasPlaceholder = true
	case errors.Is(err, metadata.ErrNotFound):
		// No row at all yet — fall through and assign one.
	default:
		return Decision{}, fmt.Errorf("look up existing placement: %w", err)
	}

	active := o.registry.Active(o.now())
	if len(active) == 0 {
		return Decision{}, ErrNoActiveWorkers
	}

	idx := o.next.Add(1) - 1
	chosen := active[idx%uint64(len(active))]

	row := metadata.Row{
		FileID:        fileID,
		ChunkID:       chunkID,
		WorkerID:      chosen.ID,
		WorkerAddress: chosen.Address,
		UploadTime:    o.now(),
	}
	// Preserve filename/size from any chunk-0 placeholder row so the
	// oracle's insert never regresses directory metadata already on
	// file for this fileId.
	if existing, err := o.gateway.FindByFileIDAndChunkID(ctx, fileID, 0); err == nil {
		row.Filename = existing.Filename
		row.Size = existing.Size
	}

	// Only a true placeholder merge goes through the upsert path; every
	// other real assignment — including a fresh chunk 0 with no
	// placeholder row yet — must use the plain insert so a concurrent
	// racer trips the unique-key violation below instead of silently
	// overwriting this decision.
	if err := o.gateway.Save(ctx, row, hasPlaceholder); err != nil {
		if errors.Is(err, metadata.ErrIntegrityViolation) {
			winner, findErr := o.gateway.FindByFileIDAndChunkID(ctx, fileID, chunkID)
			if findErr != nil {
				return Decision{}, fmt.Errorf("re-read placement after losing insert race: %w", findErr)
			}
			return Decision{}, &AlreadyAssignedError{WorkerID: winner.WorkerID, WorkerAddress: winner.WorkerAddress}
		}
		return Decision{}, fmt.Errorf("save placement: %w", err)
	}

	o.logger.Debug("chunk placed",
		"requester", requesterWorkerID, "file_id", fileID, "chunk_id", chunkID,
		"assigned_worker", chosen.ID)

	return Decision{WorkerID: chosen.ID, WorkerAddress: chosen.Address}, nil
}
