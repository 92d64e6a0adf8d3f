// Package worker holds the gate's background jobs.
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/ignite/outreach-guard/internal/pkg/distlock"
	"github.com/ignite/outreach-guard/internal/pkg/logger"
)

// DefaultSweepInterval is how often the sweep cycle runs.
const DefaultSweepInterval = time.Hour

var wlog = logger.Component("sweeper")

// ExpiredRecordSweeper removes rejection records past their TTL.
// *rejection.Store implements it.
type ExpiredRecordSweeper interface {
	Sweep(ctx context.Context) (int, error)
}

// DecisionPurger deletes decision log rows older than a cutoff.
// *postgres.DecisionRepo implements it.
type DecisionPurger interface {
	PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// RejectionSweeper periodically removes expired rejection records and old
// decision log rows. Only the instance holding the lock sweeps in a cycle.
//
// Expired records are already ignored on read; sweeping only reclaims
// space on backends without native expiry.
type RejectionSweeper struct {
	store     ExpiredRecordSweeper
	decisions DecisionPurger
	lock      distlock.Lock
	interval  time.Duration
	retention time.Duration
	now       func() time.Time
}

// NewRejectionSweeper creates a sweeper. decisions may be nil. A zero
// interval uses DefaultSweepInterval; a zero retention keeps decisions
// forever.
func NewRejectionSweeper(store ExpiredRecordSweeper, decisions DecisionPurger, lock distlock.Lock, interval, retention time.Duration) *RejectionSweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &RejectionSweeper{
		store:     store,
		decisions: decisions,
		lock:      lock,
		interval:  interval,
		retention: retention,
		now:       time.Now,
	}
}

// Start runs a sweep immediately and then on every tick. It blocks until
// ctx is cancelled.
func (s *RejectionSweeper) Start(ctx context.Context) {
	wlog.Info("starting", "interval", s.interval.String())

	s.RunOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			wlog.Info("stopping")
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// StartCron runs a sweep on every match of a standard five-field cron
// spec instead of the fixed interval. It blocks until ctx is cancelled and
// waits for a running sweep to finish before returning.
func (s *RejectionSweeper) StartCron(ctx context.Context, spec string) error {
	c := cron.New()
	if _, err := c.AddFunc(spec, func() { s.RunOnce(ctx) }); err != nil {
		return fmt.Errorf("sweeper schedule %q: %w", spec, err)
	}

	wlog.Info("starting", "schedule", spec)
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	wlog.Info("stopping")
	return nil
}

// RunOnce performs one sweep cycle under the lock. It reports whether this
// instance ran the cycle.
func (s *RejectionSweeper) RunOnce(ctx context.Context) bool {
	start := time.Now()
	ran, err := distlock.Run(ctx, s.lock, s.sweep)
	if err != nil {
		wlog.Error("sweep failed", "error", err)
		return ran
	}
	if !ran {
		wlog.Debug("sweep skipped, another instance holds the lock")
		return false
	}
	wlog.Debug("sweep cycle completed", "duration", time.Since(start).Round(time.Millisecond).String())
	return true
}

func (s *RejectionSweeper) sweep(ctx context.Context) error {
	n, err := s.store.Sweep(ctx)
	if n > 0 {
		wlog.Info("removed expired rejection records", "count", n)
	}
	if err != nil {
		return err
	}

	if s.decisions == nil || s.retention <= 0 {
		return nil
	}
	purged, err := s.decisions.PurgeBefore(ctx, s.now().Add(-s.retention))
	if err != nil {
		return err
	}
	if purged > 0 {
		wlog.Info("purged old guard decisions", "count", purged)
	}
	return nil
}
