// Package maintenance runs Sombra's two background jobs — checkpoint
// and vacuum — on a cron-driven schedule, trimmed to exactly the
// fixed pair Sombra needs instead of an open job registry.
package maintenance

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/sombradb/sombra/internal/sombra/logging"
)

// VacuumFunc reclaims space below the current MVCC horizon; CheckpointFunc
// flushes dirty pages and truncates the WAL. Both are supplied by the
// graphdb facade, which owns the txn.Manager and pager.Pager these act on.
type VacuumFunc func(ctx context.Context) (reclaimed int, err error)
type CheckpointFunc func(ctx context.Context) error

// Scheduler runs checkpoint on a fixed interval and vacuum on its own,
// typically longer, interval, matching the auto_checkpoint_interval
// and vacuum_interval config knobs.
type Scheduler struct {
	cron *cron.Cron
	log  logging.Logger

	mu      sync.Mutex
	running map[string]bool

	checkpointFn CheckpointFunc
	vacuumFn     VacuumFunc
}

// Config wires the two callbacks and the logger. New does not read
// CheckpointInterval or VacuumInterval; the intervals that take effect
// are the ones passed to Start.
type Config struct {
	CheckpointInterval time.Duration
	VacuumInterval     time.Duration
	Checkpoint         CheckpointFunc
	Vacuum             VacuumFunc
	Logger             logging.Logger
}

func New(cfg Config) *Scheduler {
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}
	return &Scheduler{
		cron:         cron.New(cron.WithSeconds()),
		log:          cfg.Logger,
		running:      make(map[string]bool),
		checkpointFn: cfg.Checkpoint,
		vacuumFn:     cfg.Vacuum,
	}
}

// intervalToCronSpec turns a duration into a "@every" cron spec,
// avoiding a hand-rolled ticker loop.
func intervalToCronSpec(d time.Duration) string {
	return "@every " + d.String()
}

// Start schedules both jobs. A zero interval disables that job.
func (s *Scheduler) Start(checkpointEvery, vacuumEvery time.Duration) error {
	if checkpointEvery > 0 && s.checkpointFn != nil {
		if _, err := s.cron.AddFunc(intervalToCronSpec(checkpointEvery), func() {
			s.runOnce("checkpoint", func(ctx context.Context) error {
				return s.checkpointFn(ctx)
			})
		}); err != nil {
			return err
		}
	}
	if vacuumEvery > 0 && s.vacuumFn != nil {
		if _, err := s.cron.AddFunc(intervalToCronSpec(vacuumEvery), func() {
			s.runOnce("vacuum", func(ctx context.Context) error {
				_, err := s.vacuumFn(ctx)
				return err
			})
		}); err != nil {
			return err
		}
	}
	s.cron.Start()
	return nil
}

// runOnce guards against overlapping executions of the same job name —
// if a checkpoint or vacuum is still running when its next tick fires,
// the tick is skipped rather than queued.
func (s *Scheduler) runOnce(name string, fn func(context.Context) error) {
	s.mu.Lock()
	if s.running[name] {
		s.mu.Unlock()
		s.log.Printf("maintenance: skipping %s, previous run still in progress", name)
		return
	}
	s.running[name] = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running[name] = false
		s.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	if err := fn(ctx); err != nil {
		s.log.Printf("maintenance: %s failed: %v", name, err)
	}
}

// Stop halts the cron scheduler, waiting for any in-flight job to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}
