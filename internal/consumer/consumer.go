// Package consumer is C5: it drains chunk messages from the broker,
// asks the scheduler to place each one, and stores the bytes on
// whichever worker the placement names — locally if it's this worker,
// forwarded over RPC otherwise.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/kluzzebass/filemesh/internal/broker"
	"github.com/kluzzebass/filemesh/internal/chunkmsg"
	"github.com/kluzzebass/filemesh/internal/logging"
	"github.com/kluzzebass/filemesh/internal/schedulerrpc"
	"github.com/kluzzebass/filemesh/internal/storage"
	"github.com/kluzzebass/filemesh/internal/workerrpc"
)

// Placer is the scheduler capability consumer needs: placing a chunk
// and reporting where it landed. Satisfied by *schedulerrpc.Client.
type Placer interface {
	AssignWorkerForChunk(ctx context.Context, requesterWorkerID, fileID string, chunkID int) (workerID, workerAddress string, err error)
}

// Storer is the local storage capability. Satisfied by
// *storage.Engine.
type Storer interface {
	StoreChunk(ctx context.Context, requestWorkerID, fileID string, chunkID int, data []byte) error
}

// Forwarder is the peer-worker capability used when a chunk is placed
// on a worker other than this one. Satisfied by *workerrpc.Client.
type Forwarder interface {
	StoreChunk(ctx context.Context, addr, workerID, fileID string, chunkID int, data []byte) error
}

var (
	_ Placer    = (*schedulerrpc.Client)(nil)
	_ Storer    = (*storage.Engine)(nil)
	_ Forwarder = (*workerrpc.Client)(nil)
)

// Consumer drains broker.Consumer records, places each chunk via the
// scheduler, and stores it locally or forwards it to its assigned
// worker.
type Consumer struct {
	broker    *broker.Consumer
	placer    Placer
	storer    Storer
	forwarder Forwarder
	selfID    string
	logger    *slog.Logger
}

// New wires a Consumer. selfID is this worker's own identity, used to
// decide whether a placement decision means "store it here" or
// "forward it".
func New(brokerConsumer *broker.Consumer, placer Placer, storer Storer, forwarder Forwarder, selfID string, logger *slog.Logger) *Consumer {
	return &Consumer{
		broker:    brokerConsumer,
		placer:    placer,
		storer:    storer,
		forwarder: forwarder,
		selfID:    selfID,
		logger:    logging.Default(logger).With("component", "consumer"),
	}
}

// Run drains the broker until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	return c.broker.Run(ctx, c.handle)
}

func (c *Consumer) handle(ctx context.Context, msg chunkmsg.Message) error {
	data, err := msg.Bytes()
	if err != nil {
		// Malformed payload: nothing a retry would fix. Log and treat
		// as handled so it doesn't block the partition forever.
		c.logger.Error("dropping chunk with invalid payload", "file_id", msg.FileID, "chunk_id", msg.ChunkID, "error", err)
		return nil
	}

	workerID, workerAddr, err := c.placer.AssignWorkerForChunk(ctx, c.selfID, msg.FileID, msg.ChunkID)
	if err != nil {
		if errors.Is(err, schedulerrpc.ErrNoActiveWorkers) {
			return fmt.Errorf("no active workers to place chunk %s/%d: %w", msg.FileID, msg.ChunkID, err)
		}
		return fmt.Errorf("assign worker for chunk %s/%d: %w", msg.FileID, msg.ChunkID, err)
	}

	if workerID == c.selfID {
		if err := c.storer.StoreChunk(ctx, workerID, msg.FileID, msg.ChunkID, data); err != nil {
			return fmt.Errorf("store chunk %s/%d locally: %w", msg.FileID, msg.ChunkID, err)
		}
		return nil
	}

	if err := c.forwarder.StoreChunk(ctx, workerAddr, workerID, msg.FileID, msg.ChunkID, data); err != nil {
		return fmt.Errorf("forward chunk %s/%d to %s: %w", msg.FileID, msg.ChunkID, workerAddr, err)
	}
	return nil
}
