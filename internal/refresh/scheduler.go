// Package refresh runs a task on a cron schedule until its context is
// cancelled. It replaces open-ended polling: the caller owns the scheduler
// and stops it explicitly.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/adhocore/gronx"
	"go.uber.org/zap"

	"github.com/capitalize-ai/chatsync/pkg/logger"
	"github.com/capitalize-ai/chatsync/pkg/metrics"
)

// DefaultSchedule refreshes every five minutes.
const DefaultSchedule = "*/5 * * * *"

const retryDelay = 30 * time.Second

// ErrInvalidSchedule is returned for cron expressions gronx rejects.
var ErrInvalidSchedule = errors.New("invalid refresh schedule")

// Task is one refresh run.
type Task func(ctx context.Context) error

// Scheduler triggers a Task on every tick of a cron expression. Runs never
// overlap: ticks that pass during a run are not replayed, and RunOnce is a
// no-op while another run is in progress.
type Scheduler struct {
	expr    string
	task    Task
	logger  *logger.Logger
	now     func() time.Time
	after   func(time.Duration) <-chan time.Time
	running atomic.Bool
}

// New validates expr and returns a scheduler for task. An empty expr uses
// DefaultSchedule.
func New(expr string, task Task, log *logger.Logger) (*Scheduler, error) {
	if expr == "" {
		expr = DefaultSchedule
	}
	if err := Validate(expr); err != nil {
		return nil, err
	}
	return &Scheduler{
		expr:   expr,
		task:   task,
		logger: log.Named("refresh"),
		now:    time.Now,
		after:  time.After,
	}, nil
}

// Validate reports whether expr is a usable cron expression.
func Validate(expr string) error {
	if !gronx.IsValid(expr) {
		return fmt.Errorf("%w: %q", ErrInvalidSchedule, expr)
	}
	return nil
}

// Schedule returns the cron expression in use.
func (s *Scheduler) Schedule() string {
	return s.expr
}

// Next returns the first tick strictly after t.
func (s *Scheduler) Next(t time.Time) (time.Time, error) {
	return gronx.NextTickAfter(s.expr, t.UTC(), false)
}

// Start runs the scheduler in a goroutine. The returned stop function cancels
// it and waits for the loop, including an in-flight run, to exit.
func (s *Scheduler) Start(ctx context.Context) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)
		s.loop(ctx)
	}()

	s.logger.Info("refresh scheduler started", zap.String("schedule", s.expr))
	return func() {
		cancel()
		<-done
	}
}

// RunOnce runs the task now unless a run is already in progress. It reports
// whether the task ran.
func (s *Scheduler) RunOnce(ctx context.Context) (bool, error) {
	if !s.running.CompareAndSwap(false, true) {
		metrics.RefreshRunsTotal.WithLabelValues("skipped").Inc()
		s.logger.Debug("refresh still running, tick skipped")
		return false, nil
	}
	defer s.running.Store(false)

	start := s.now()
	err := s.task(ctx)
	if err != nil {
		metrics.RefreshRunsTotal.WithLabelValues("error").Inc()
		s.logger.Warn("refresh run failed", zap.Error(err), zap.Duration("took", s.now().Sub(start)))
		return true, err
	}

	metrics.RefreshRunsTotal.WithLabelValues("success").Inc()
	s.logger.Debug("refresh run completed", zap.Duration("took", s.now().Sub(start)))
	return true, nil
}

func (s *Scheduler) loop(ctx context.Context) {
	for {
		now := s.now()
		next, err := s.Next(now)
		wait := next.Sub(now)
		if err != nil {
			s.logger.Error("failed to compute next refresh", zap.String("schedule", s.expr), zap.Error(err))
			wait = retryDelay
		}

		select {
		case <-ctx.Done():
			s.logger.Info("refresh scheduler stopping")
			return
		case <-s.after(wait):
		}

		if err != nil {
			continue
		}
		_, _ = s.RunOnce(ctx)
	}
}
