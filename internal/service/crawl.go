package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"news_crawler/internal/config"
	"news_crawler/internal/domain"
	"news_crawler/internal/fetch"
	"news_crawler/internal/metrics"
	"news_crawler/internal/parser"
)

type CrawlService struct {
	crawlers  map[domain.CrawlerType]Crawler
	parser    *parser.Parser
	configs   ConfigStore
	tasks     TaskStore
	articles  ArticleStore
	txManager TransactionManager
	publisher Publisher
	logger    *slog.Logger
	config    config.CrawlConfig

	now       func() time.Time
	newTaskID func() string
}

func NewCrawlService(
	crawlers map[domain.CrawlerType]Crawler,
	itemParser *parser.Parser,
	configs ConfigStore,
	tasks TaskStore,
	articles ArticleStore,
	txManager TransactionManager,
	publisher Publisher,
	logger *slog.Logger,
	cfg config.CrawlConfig,
) *CrawlService {
	return &CrawlService{
		crawlers:  crawlers,
		parser:    itemParser,
		configs:   configs,
		tasks:     tasks,
		articles:  articles,
		txManager: txManager,
		publisher: publisher,
		logger:    logger,
		config:    cfg,
		now:       func() time.Time { return time.Now().UTC() },
		newTaskID: uuid.NewString,
	}
}

// RunOptions describe how a task was requested.
type RunOptions struct {
	// Test marks a trial run that never moves last_run_time.
	Test bool
	// Force records that the due check was bypassed.
	Force bool
}

// CreateTask persists a pending task for cfg. It performs no network I/O so
// an interrupted run still leaves an auditable row.
func (s *CrawlService) CreateTask(ctx context.Context, cfg *domain.CrawlerConfig, opts RunOptions) (*domain.CrawlerTask, error) {
	task := &domain.CrawlerTask{
		TaskID:    s.newTaskID(),
		ConfigID:  cfg.ID,
		Config:    cfg,
		Status:    domain.TaskPending,
		IsTest:    opts.Test,
		IsForced:  opts.Force,
		CreatedAt: s.now(),
	}
	if err := s.tasks.Create(ctx, task); err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	return task, nil
}

// RunByName crawls the named config immediately. Missing and disabled
// configs are rejected before any task is created. A task that ends FAILED
// is returned together with an error.
func (s *CrawlService) RunByName(ctx context.Context, name string, opts RunOptions) (*domain.CrawlerTask, error) {
	cfg, err := s.configs.GetByName(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("get config %q: %w", name, err)
	}
	if !cfg.Runnable() {
		return nil, fmt.Errorf("%w: %s", domain.ErrConfigDisabled, name)
	}

	task, err := s.CreateTask(ctx, cfg, opts)
	if err != nil {
		return nil, err
	}

	if !s.RunTask(ctx, task) {
		msg := task.ErrorMessage
		if msg == "" {
			msg = "task did not complete"
		}
		return task, fmt.Errorf("task %s failed: %s", task.TaskID, msg)
	}
	return task, nil
}

// RunTask drives task through RUNNING to a terminal state and reports
// whether it completed.
func (s *CrawlService) RunTask(ctx context.Context, task *domain.CrawlerTask) (completed bool) {
	cfg := task.Config
	if cfg == nil {
		s.logger.Error("task has no config loaded", "task_id", task.TaskID)
		return false
	}
	logger := s.logger.With("config", cfg.Name, "task_id", task.TaskID)

	if err := task.Start(s.now()); err != nil {
		logger.Error("cannot start task", "error", err)
		return false
	}
	if err := s.tasks.MarkRunning(ctx, task); err != nil {
		logger.Error("failed to mark task running", "error", err)
		// ErrInvalidTransition means another worker owns the row.
		if !errors.Is(err, domain.ErrInvalidTransition) {
			s.abandon(ctx, task, err, logger)
		}
		return false
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Error("task panicked", "panic", r)
			if task.Status == domain.TaskRunning {
				s.finish(ctx, task, &domain.TaskResult{
					Status:  domain.ResultError,
					Message: fmt.Sprintf("internal error: %v", r),
				}, logger)
			}
			completed = false
		}
	}()

	if s.config.TaskTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.TaskTimeout)
		defer cancel()
	}

	logger.Info("task started",
		"crawler_type", cfg.CrawlerType.String(),
		"is_test", task.IsTest,
		"is_forced", task.IsForced,
	)

	result := s.Crawl(ctx, cfg)
	return s.finish(ctx, task, result, logger)
}

// abandon makes a best-effort FAILED write for a task whose start could not
// be recorded. It never moves last_run_time.
func (s *CrawlService) abandon(ctx context.Context, task *domain.CrawlerTask, cause error, logger *slog.Logger) {
	msg := fmt.Sprintf("could not start: %v", cause)
	if err := task.Fail(s.now(), msg, &domain.TaskResult{Status: domain.ResultError, Message: msg}); err != nil {
		logger.Error("cannot fail task", "error", err)
		return
	}
	if err := s.tasks.Finish(context.WithoutCancel(ctx), task); err != nil {
		logger.Error("failed to record task failure", "error", err)
		return
	}
	metrics.ObserveTask(task.Config.Name, task.Status, task.EndTime.Sub(*task.StartTime))
}

// finish records the terminal state and, when the run counts, moves the
// config's last_run_time in the same transaction.
func (s *CrawlService) finish(ctx context.Context, task *domain.CrawlerTask, result *domain.TaskResult, logger *slog.Logger) bool {
	end := s.now()
	var err error
	if result.Succeeded() {
		err = task.Complete(end, result)
	} else {
		err = task.Fail(end, result.Message, result)
	}
	if err != nil {
		logger.Error("cannot finish task", "error", err)
		return false
	}

	// Terminal writes must land even when the task's context has expired.
	writeCtx := context.WithoutCancel(ctx)
	cfg := task.Config
	err = s.txManager.WithTransaction(writeCtx, func(txCtx context.Context) error {
		if err := s.tasks.Finish(txCtx, task); err != nil {
			return fmt.Errorf("finish task: %w", err)
		}
		if task.UpdatesLastRun() {
			if err := s.configs.UpdateLastRunTime(txCtx, cfg.ID, *task.EndTime); err != nil {
				return fmt.Errorf("update last run time: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		logger.Error("failed to record task result", "status", task.Status.String(), "error", err)
		return false
	}
	if task.UpdatesLastRun() {
		cfg.LastRunTime = task.EndTime
	}

	metrics.ObserveTask(cfg.Name, task.Status, task.EndTime.Sub(*task.StartTime))

	if task.Status == domain.TaskCompleted {
		logger.Info("task completed",
			"total", result.Stats.Total,
			"saved", result.Stats.Saved,
			"duplicate", result.Stats.Duplicate,
			"filtered", result.Stats.Filtered,
			"errors", result.Stats.Error,
			"duration", task.EndTime.Sub(*task.StartTime),
		)
		return true
	}

	logger.Warn("task failed", "error", task.ErrorMessage)
	return false
}

// Crawl fetches, parses and saves one config's items. Fetch failures,
// including exhausted retries, produce an error envelope; item-level
// problems only show up in the stats.
func (s *CrawlService) Crawl(ctx context.Context, cfg *domain.CrawlerConfig) *domain.TaskResult {
	logger := s.logger.With("config", cfg.Name)

	if err := cfg.Validate(); err != nil {
		return errorResult(err)
	}

	crawler, ok := s.crawlers[cfg.CrawlerType]
	if !ok {
		return errorResult(fmt.Errorf("%w: no crawler registered for type %s", domain.ErrInvalidConfig, cfg.CrawlerType))
	}

	policy := fetch.Policy{
		MaxAttempts: cfg.Attempts(),
		Delay:       cfg.RetryDelayDuration(),
		MaxDelay:    s.config.MaxBackoff,
	}
	observe := func(attempt int, err error) {
		metrics.ObserveFetchAttempt(cfg.CrawlerType, err)
	}

	raw, err := fetch.Retry(ctx, policy, logger, observe, func(ctx context.Context) ([]domain.RawItem, error) {
		return crawler.Fetch(ctx, cfg)
	})
	if err != nil {
		return errorResult(err)
	}

	logger.Info("fetched items", "count", len(raw))

	stats := s.saveItems(ctx, cfg, raw)
	metrics.ObserveStats(cfg.Name, stats)

	// A deadline hit mid-save fails the run but keeps the partial counts.
	if err := ctx.Err(); err != nil {
		result := errorResult(fmt.Errorf("save items: %w", err))
		result.Stats = stats
		return result
	}

	return &domain.TaskResult{
		Status: domain.ResultSuccess,
		Message: fmt.Sprintf("processed %d items: %d saved, %d duplicate, %d filtered, %d error",
			stats.Total, stats.Saved, stats.Duplicate, stats.Filtered, stats.Error),
		Stats: stats,
	}
}

// UpdateConfig applies a partial update to the named config after checking
// the merged result.
func (s *CrawlService) UpdateConfig(ctx context.Context, name string, upd domain.ConfigUpdate) (*domain.CrawlerConfig, error) {
	cfg, err := s.configs.GetByName(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("get config %q: %w", name, err)
	}

	upd.Apply(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if err := s.configs.Update(ctx, cfg); err != nil {
		return nil, fmt.Errorf("update config %q: %w", name, err)
	}

	s.logger.Info("config updated",
		"config", cfg.Name,
		"interval", cfg.Interval,
		"max_retries", cfg.MaxRetries,
		"retry_delay", cfg.RetryDelay,
		"status", cfg.Status.String(),
		"is_active", cfg.IsActive,
	)
	return cfg, nil
}

func (s *CrawlService) ListConfigs(ctx context.Context) ([]*domain.CrawlerConfig, error) {
	return s.configs.List(ctx)
}

func errorResult(err error) *domain.TaskResult {
	msg := err.Error()
	if errors.Is(err, context.DeadlineExceeded) {
		msg = "timed out: " + msg
	}
	return &domain.TaskResult{
		Status:  domain.ResultError,
		Message: msg,
	}
}
