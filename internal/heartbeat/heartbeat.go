// Package heartbeat runs the worker-side liveness beacon: a recurring
// job that reports this worker's identity and address to the
// scheduler.
package heartbeat

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/kluzzebass/filemesh/internal/logging"
)

// DefaultPeriod is how often a worker reports itself alive.
const DefaultPeriod = 2 * time.Second

// Sender is the scheduler client capability heartbeat needs.
type Sender interface {
	SendHeartbeat(ctx context.Context, workerID, address string) error
}

// Beacon periodically sends heartbeats for one worker.
type Beacon struct {
	scheduler gocron.Scheduler
	sender    Sender
	workerID  string
	address   string
	period    time.Duration
	logger    *slog.Logger
}

// New creates a Beacon. period defaults to DefaultPeriod when zero.
func New(sender Sender, workerID, address string, period time.Duration, logger *slog.Logger) (*Beacon, error) {
	if period <= 0 {
		period = DefaultPeriod
	}
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create heartbeat scheduler: %w", err)
	}
	return &Beacon{
		scheduler: s,
		sender:    sender,
		workerID:  workerID,
		address:   address,
		period:    period,
		logger:    logging.Default(logger).With("component", "heartbeat"),
	}, nil
}

// Start registers the recurring heartbeat job and begins running it.
// The first beat fires immediately so the worker is registered before
// it could plausibly receive placements.
func (b *Beacon) Start(ctx context.Context) error {
	_, err := b.scheduler.NewJob(
		gocron.DurationJob(b.period),
		gocron.NewTask(func() { b.beat(ctx) }),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return fmt.Errorf("schedule heartbeat job: %w", err)
	}
	b.scheduler.Start()
	b.logger.Info("heartbeat started", "worker_id", b.workerID, "period", b.period)
	return nil
}

func (b *Beacon) beat(ctx context.Context) {
	if err := b.sender.SendHeartbeat(ctx, b.workerID, b.address); err != nil {
		b.logger.Warn("heartbeat failed", "error", err)
	}
}

// Stop shuts down the heartbeat scheduler.
func (b *Beacon) Stop() error {
	return b.scheduler.Shutdown()
}
