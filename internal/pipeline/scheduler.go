package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Default schedule.
const (
	DefaultCycleInterval  = 72 * time.Hour
	DefaultDigestInterval = 7 * 24 * time.Hour
)

// Scheduler runs cycles and digests on fixed intervals until its context ends.
type Scheduler struct {
	p              *Pipeline
	cycleInterval  time.Duration
	digestInterval time.Duration
	runOnStart     bool
	logger         *slog.Logger
}

// NewScheduler creates a scheduler. Non-positive intervals fall back to the
// defaults. With runOnStart a cycle runs immediately instead of after the
// first interval.
func NewScheduler(p *Pipeline, cycleInterval, digestInterval time.Duration, runOnStart bool, logger *slog.Logger) *Scheduler {
	if cycleInterval <= 0 {
		cycleInterval = DefaultCycleInterval
	}
	if digestInterval <= 0 {
		digestInterval = DefaultDigestInterval
	}
	return &Scheduler{
		p:              p,
		cycleInterval:  cycleInterval,
		digestInterval: digestInterval,
		runOnStart:     runOnStart,
		logger:         logger,
	}
}

// Run blocks until ctx is cancelled. Errors from individual cycles and
// digests are logged; the schedule keeps going.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler started", "cycle_interval", s.cycleInterval, "digest_interval", s.digestInterval)

	cycles := time.NewTicker(s.cycleInterval)
	defer cycles.Stop()
	digests := time.NewTicker(s.digestInterval)
	defer digests.Stop()

	if s.runOnStart {
		s.cycle(ctx)
	}
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return nil
		case <-cycles.C:
			s.cycle(ctx)
		case <-digests.C:
			s.digest(ctx)
		}
	}
}

func (s *Scheduler) cycle(ctx context.Context) {
	if _, err := s.p.RunCycle(ctx, time.Time{}); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		s.logger.Error("scheduled cycle failed", "error", err)
	}
}

func (s *Scheduler) digest(ctx context.Context) {
	if _, err := s.p.SendDigest(ctx, s.p.now()); err != nil {
		s.logger.Error("scheduled digest failed", "error", err)
	}
}
