// Package sched runs the pipeline's periodic tasks.
package sched

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Task is one unit of periodic work. It must respect ctx cancellation.
type Task func(ctx context.Context)

// Scheduler runs tasks on intervals until its context is cancelled.
type Scheduler struct {
	logger *slog.Logger
	wg     sync.WaitGroup
}

// New creates a scheduler.
func New(logger *slog.Logger) *Scheduler {
	return &Scheduler{logger: logger}
}

// Every runs task once per interval. The first run happens after one full
// interval, not immediately.
func (s *Scheduler) Every(ctx context.Context, name string, interval time.Duration, task Task) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		s.logger.Info("periodic task scheduled", "task", name, "interval", interval)
		for {
			select {
			case <-ctx.Done():
				s.logger.Info("periodic task stopped", "task", name)
				return
			case <-ticker.C:
				s.runOnce(ctx, name, task)
			}
		}
	}()
}

// EveryDynamic runs task on a cadence re-read before each wait. next returns
// the current interval and whether the task is enabled; a disabled task is
// re-checked after the returned interval without running.
func (s *Scheduler) EveryDynamic(ctx context.Context, name string, next func() (time.Duration, bool), task Task) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Info("dynamic task scheduled", "task", name)
		for {
			interval, enabled := next()
			if interval <= 0 {
				interval = time.Minute
			}
			timer := time.NewTimer(interval)
			select {
			case <-ctx.Done():
				timer.Stop()
				s.logger.Info("dynamic task stopped", "task", name)
				return
			case <-timer.C:
				if enabled {
					s.runOnce(ctx, name, task)
				}
			}
		}
	}()
}

// Wait blocks until every scheduled task loop has exited.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) runOnce(ctx context.Context, name string, task Task) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("periodic task panicked", "task", name, "panic", r)
		}
	}()
	start := time.Now()
	task(ctx)
	s.logger.Debug("periodic task ran", "task", name, "duration", time.Since(start))
}
