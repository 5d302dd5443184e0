// Package reaper runs the scheduler-side registry sweep: a recurring
// job that evicts workers whose heartbeat has gone stale.
package reaper

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/kluzzebass/filemesh/internal/logging"
	"github.com/kluzzebass/filemesh/internal/registry"
)

// DefaultPeriod is how often the registry is swept for stale workers.
const DefaultPeriod = 5 * time.Second

// Reaper periodically evicts stale entries from a registry.Registry.
type Reaper struct {
	scheduler gocron.Scheduler
	registry  *registry.Registry
	period    time.Duration
	now       func() time.Time
	logger    *slog.Logger
}

// New creates a Reaper over reg. period defaults to DefaultPeriod and
// now defaults to time.Now when zero/nil.
func New(reg *registry.Registry, period time.Duration, now func() time.Time, logger *slog.Logger) (*Reaper, error) {
	if period <= 0 {
		period = DefaultPeriod
	}
	if now == nil {
		now = time.Now
	}
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create reaper scheduler: %w", err)
	}
	return &Reaper{
		scheduler: s,
		registry:  reg,
		period:    period,
		now:       now,
		logger:    logging.Default(logger).With("component", "reaper"),
	}, nil
}

// Start registers the recurring sweep job and begins running it.
func (r *Reaper) Start() error {
	_, err := r.scheduler.NewJob(
		gocron.DurationJob(r.period),
		gocron.NewTask(r.sweep),
	)
	if err != nil {
		return fmt.Errorf("schedule reaper job: %w", err)
	}
	r.scheduler.Start()
	r.logger.Info("reaper started", "period", r.period)
	return nil
}

func (r *Reaper) sweep() {
	reaped := r.registry.Reap(r.now())
	if len(reaped) > 0 {
		r.logger.Info("reaped stale workers", "workers", reaped)
	}
}

// Stop shuts down the reaper scheduler.
func (r *Reaper) Stop() error {
	return r.scheduler.Shutdown()
}
