// Package snooze defers emails and brings them back once their time is up.
package snooze

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"ezmail/pkg/metrics"
	"ezmail/pkg/trace"
)

const DefaultSpec = "@every 5m"

type Store interface {
	RestoreDue(ctx context.Context, now time.Time) (int64, error)
	SetSnooze(ctx context.Context, ownerID, itemID int64, until time.Time) error
	ClearSnooze(ctx context.Context, ownerID, itemID int64) error
}

type Scheduler struct {
	store  Store
	spec   string
	now    func() time.Time
	logger *zap.Logger
}

// NewScheduler 的 spec 为空时每 5 分钟执行一次
func NewScheduler(store Store, spec string, logger *zap.Logger) *Scheduler {
	if spec == "" {
		spec = DefaultSpec
	}
	return &Scheduler{store: store, spec: spec, now: time.Now, logger: logger}
}

// WithClock replaces the time source used for due checks.
func (s *Scheduler) WithClock(now func() time.Time) *Scheduler {
	if now != nil {
		s.now = now
	}
	return s
}

// RunOnce restores every snoozed item whose deadline has passed.
func (s *Scheduler) RunOnce(ctx context.Context) (int64, error) {
	n, err := s.store.RestoreDue(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("restore snoozed: %w", err)
	}
	metrics.AddSnoozeRestored(n)
	return n, nil
}

// Start runs one pass immediately, then on the cron spec until ctx ends.
func (s *Scheduler) Start(ctx context.Context) error {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.PrintfLogger(zap.NewStdLog(s.logger)))))
	if _, err := c.AddFunc(s.spec, func() { s.tick(ctx) }); err != nil {
		return fmt.Errorf("snooze spec %q: %w", s.spec, err)
	}

	s.tick(ctx)
	c.Start()
	s.logger.Info("snooze scheduler started", zap.String("spec", s.spec))

	<-ctx.Done()
	<-c.Stop().Done()
	s.logger.Info("snooze scheduler stopped")
	return nil
}

func (s *Scheduler) tick(ctx context.Context) {
	ctx = trace.Ensure(ctx)
	n, err := s.RunOnce(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		s.logger.Error("snooze restore failed", zap.String("trace_id", trace.FromContext(ctx)), zap.Error(err))
		return
	}
	if n > 0 {
		s.logger.Info("snoozed emails restored", zap.String("trace_id", trace.FromContext(ctx)), zap.Int64("count", n))
	}
}
