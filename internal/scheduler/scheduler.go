package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"news_crawler/internal/domain"
	"news_crawler/internal/metrics"
	"news_crawler/internal/service"
)

// ConfigLister returns the configs that may be scheduled at all.
type ConfigLister interface {
	ListRunnable(ctx context.Context) ([]*domain.CrawlerConfig, error)
}

// Runner creates and executes crawl tasks.
type Runner interface {
	CreateTask(ctx context.Context, cfg *domain.CrawlerConfig, opts service.RunOptions) (*domain.CrawlerTask, error)
	RunTask(ctx context.Context, task *domain.CrawlerTask) bool
}

type Scheduler struct {
	configs  ConfigLister
	runner   Runner
	interval time.Duration
	workers  int
	logger   *slog.Logger
	now      func() time.Time

	mu       sync.Mutex
	inFlight map[int64]struct{}
}

func NewScheduler(configs ConfigLister, runner Runner, interval time.Duration, workers int, logger *slog.Logger) *Scheduler {
	if workers < 1 {
		workers = 1
	}
	return &Scheduler{
		configs:  configs,
		runner:   runner,
		interval: interval,
		workers:  workers,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
		inFlight: make(map[int64]struct{}),
	}
}

// IsDue reports whether cfg should run at now. A config that never ran is
// always due.
func IsDue(cfg *domain.CrawlerConfig, now time.Time, force bool) bool {
	if force || cfg.LastRunTime == nil {
		return true
	}
	return !now.Before(cfg.LastRunTime.Add(cfg.IntervalDuration()))
}

// Summary describes one scheduling pass.
type Summary struct {
	Runnable   int
	Due        int
	Skipped    int
	Dispatched int
	Completed  int
	Failed     int
}

func (s Summary) String() string {
	return fmt.Sprintf("runnable=%d due=%d skipped=%d dispatched=%d completed=%d failed=%d",
		s.Runnable, s.Due, s.Skipped, s.Dispatched, s.Completed, s.Failed)
}

// RunDue creates a pending task for every due config and runs them on a
// bounded pool. All tasks are persisted before the first one starts.
// Configs that still have a task in flight from an earlier pass are skipped.
func (s *Scheduler) RunDue(ctx context.Context, force bool) (Summary, error) {
	var summary Summary

	configs, err := s.configs.ListRunnable(ctx)
	if err != nil {
		return summary, fmt.Errorf("list runnable configs: %w", err)
	}
	summary.Runnable = len(configs)

	now := s.now()
	opts := service.RunOptions{Force: force}
	tasks := make([]*domain.CrawlerTask, 0, len(configs))

	for _, cfg := range configs {
		if !IsDue(cfg, now, force) {
			continue
		}
		summary.Due++

		if !s.claim(cfg.ID) {
			summary.Skipped++
			s.logger.Debug("config already in flight", "config", cfg.Name)
			continue
		}

		task, err := s.runner.CreateTask(ctx, cfg, opts)
		if err != nil {
			s.release(cfg.ID)
			summary.Failed++
			s.logger.Error("failed to create task", "config", cfg.Name, "error", err)
			continue
		}
		tasks = append(tasks, task)
	}

	summary.Dispatched = len(tasks)
	if len(tasks) == 0 {
		return summary, nil
	}

	var completed, failed atomic.Int64
	var g errgroup.Group
	g.SetLimit(s.workers)

	for _, task := range tasks {
		g.Go(func() error {
			defer s.release(task.ConfigID)

			metrics.TaskDispatched()
			defer metrics.TaskReturned()

			if s.runner.RunTask(ctx, task) {
				completed.Add(1)
			} else {
				failed.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	summary.Completed = int(completed.Load())
	summary.Failed += int(failed.Load())
	return summary, nil
}

func (s *Scheduler) claim(configID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inFlight[configID]; busy {
		return false
	}
	s.inFlight[configID] = struct{}{}
	return true
}

func (s *Scheduler) release(configID int64) {
	s.mu.Lock()
	delete(s.inFlight, configID)
	s.mu.Unlock()
}

// Start runs a pass immediately and then on every tick until ctx is done.
// Passes run in the background so one slow source does not hold back the
// others; the in-flight set keeps overlapping passes from doubling up.
func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.Info("scheduler started", "interval", s.interval, "workers", s.workers)

	var wg sync.WaitGroup
	defer wg.Wait()

	pass := func() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.tick(ctx)
		}()
	}

	pass()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			pass()
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	summary, err := s.RunDue(ctx, false)
	if err != nil {
		s.logger.Error("scheduling pass failed", "error", err)
		return
	}
	if summary.Dispatched > 0 || summary.Failed > 0 {
		s.logger.Info("scheduling pass finished",
			"due", summary.Due,
			"skipped", summary.Skipped,
			"completed", summary.Completed,
			"failed", summary.Failed,
		)
	}
}
