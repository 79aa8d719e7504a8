// Package scheduler wires the autoscaler and billing background loops
// into a single process lifecycle. The load-test engine manages its own
// per-test goroutines and is not started here; the scheduler only owns
// the two fixed-interval loops and their shared shutdown deadline.
package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"classroomd/internal/logger"
)

// loop is the minimal surface the scheduler needs from a background
// worker. Both autoscaler.Engine and billing.Engine satisfy it.
type loop interface {
	Start(ctx context.Context)
	Stop()
}

// Scheduler starts and stops the process's background loops together,
// bounding shutdown to a fixed deadline so a stuck loop cannot hang
// process exit indefinitely.
type Scheduler struct {
	loops            []loop
	shutdownDeadline time.Duration
}

// New builds a Scheduler over the given loops. Order is preserved for
// Stop, which stops loops in the same order they were started.
func New(shutdownDeadline time.Duration, loops ...loop) *Scheduler {
	return &Scheduler{loops: loops, shutdownDeadline: shutdownDeadline}
}

// Start launches every registered loop.
func (s *Scheduler) Start(ctx context.Context) error {
	log := logger.GetLogger(ctx)
	for _, l := range s.loops {
		l.Start(ctx)
	}
	log.Info("scheduler started", zap.Int("loops", len(s.loops)))
	return nil
}

// Stop signals every loop to exit and waits for all of them, bounded by
// the configured shutdown deadline. A loop that does not exit in time is
// abandoned so the process can still shut down.
func (s *Scheduler) Stop(ctx context.Context) error {
	log := logger.GetLogger(ctx)

	done := make(chan struct{})
	go func() {
		for _, l := range s.loops {
			l.Stop()
		}
		close(done)
	}()

	select {
	case <-done:
		log.Info("scheduler stopped cleanly")
		return nil
	case <-time.After(s.shutdownDeadline):
		log.Warn("scheduler shutdown deadline exceeded, abandoning remaining loops",
			zap.Duration("deadline", s.shutdownDeadline))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
