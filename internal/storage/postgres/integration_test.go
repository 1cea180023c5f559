//go:build integration

package postgres

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"news_crawler/internal/domain"
	"news_crawler/testdata/utils"
)

type PostgresIntegrationSuite struct {
	suite.Suite
	ctx       context.Context
	container *postgres.PostgresContainer
	db        *sqlx.DB
}

func (s *PostgresIntegrationSuite) SetupSuite() {
	s.ctx = context.Background()

	migrationsPath, err := filepath.Abs("../../../migrations")
	s.Require().NoError(err)

	container, err := postgres.Run(s.ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("test_db"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		postgres.WithInitScripts(
			filepath.Join(migrationsPath, "001_create_crawler_configs.up.sql"),
			filepath.Join(migrationsPath, "002_create_crawler_tasks.up.sql"),
			filepath.Join(migrationsPath, "003_create_news_articles.up.sql"),
		),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	s.Require().NoError(err)
	s.container = container

	connStr, err := container.ConnectionString(s.ctx, "sslmode=disable")
	s.Require().NoError(err)

	db, err := sqlx.Connect("postgres", connStr)
	s.Require().NoError(err)
	s.db = db
}

func (s *PostgresIntegrationSuite) TearDownSuite() {
	if s.db != nil {
		s.db.Close()
	}
	if s.container != nil {
		_ = s.container.Terminate(s.ctx)
	}
}

func (s *PostgresIntegrationSuite) SetupTest() {
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM news_articles")
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM crawler_tasks")
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM crawler_configs")
}

func TestPostgresIntegrationSuite(t *testing.T) {
	suite.Run(t, new(PostgresIntegrationSuite))
}

func (s *PostgresIntegrationSuite) createConfig(name string) *domain.CrawlerConfig {
	cfg := &domain.CrawlerConfig{
		Name:        name,
		SourceURL:   "https://example.com/api",
		CrawlerType: domain.CrawlerTypeAPI,
		ConfigData:  map[string]any{"data_path": "result.data", "title_path": "title"},
		Headers:     map[string]string{"Accept-Language": "en"},
		Interval:    60,
		Status:      domain.ConfigEnabled,
		IsActive:    true,
		MaxRetries:  3,
		RetryDelay:  10,
	}
	s.Require().NoError(NewConfigStore(s.db).Create(s.ctx, cfg))
	return cfg
}

func (s *PostgresIntegrationSuite) TestConfigStore_GetByName() {
	created := s.createConfig("api-source")
	store := NewConfigStore(s.db)

	cfg, err := store.GetByName(s.ctx, "api-source")

	s.Require().NoError(err)
	s.Equal(created.ID, cfg.ID)
	s.Equal(domain.CrawlerTypeAPI, cfg.CrawlerType)
	s.Equal("result.data", cfg.ConfigData["data_path"])
	s.Equal("en", cfg.Headers["Accept-Language"])
	s.Nil(cfg.LastRunTime)
}

func (s *PostgresIntegrationSuite) TestConfigStore_GetByName_NotFound() {
	_, err := NewConfigStore(s.db).GetByName(s.ctx, "missing")
	s.ErrorIs(err, domain.ErrConfigNotFound)
}

func (s *PostgresIntegrationSuite) TestConfigStore_ListRunnable() {
	s.createConfig("enabled")
	disabled := s.createConfig("disabled")
	inactive := s.createConfig("inactive")
	store := NewConfigStore(s.db)

	disabled.Status = domain.ConfigDisabled
	s.Require().NoError(store.Update(s.ctx, disabled))
	inactive.IsActive = false
	s.Require().NoError(store.Update(s.ctx, inactive))

	configs, err := store.ListRunnable(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(configs, 1)
	s.Equal("enabled", configs[0].Name)

	all, err := store.List(s.ctx)
	s.Require().NoError(err)
	s.Len(all, 3)
}

func (s *PostgresIntegrationSuite) TestConfigStore_UpdateLastRunTime() {
	cfg := s.createConfig("api-source")
	store := NewConfigStore(s.db)
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	s.Require().NoError(store.UpdateLastRunTime(s.ctx, cfg.ID, at))

	got, err := store.GetByName(s.ctx, "api-source")
	s.Require().NoError(err)
	s.Require().NotNil(got.LastRunTime)
	s.True(at.Equal(*got.LastRunTime))

	err = store.UpdateLastRunTime(s.ctx, cfg.ID+1000, at)
	s.ErrorIs(err, domain.ErrConfigNotFound)
}

func (s *PostgresIntegrationSuite) TestTaskStore_Lifecycle() {
	cfg := s.createConfig("api-source")
	store := NewTaskStore(s.db)
	now := time.Now().UTC().Truncate(time.Microsecond)

	task := &domain.CrawlerTask{TaskID: "task-1", ConfigID: cfg.ID, Status: domain.TaskPending}
	s.Require().NoError(store.Create(s.ctx, task))
	s.Greater(task.ID, int64(0))

	s.Require().NoError(task.Start(now))
	s.Require().NoError(store.MarkRunning(s.ctx, task))

	result := &domain.TaskResult{
		Status:  domain.ResultSuccess,
		Message: "processed 2 items",
		Stats:   domain.RunStats{Total: 2, Saved: 1, Duplicate: 1},
	}
	s.Require().NoError(task.Complete(now.Add(time.Second), result))
	s.Require().NoError(store.Finish(s.ctx, task))

	got, err := store.GetByTaskID(s.ctx, "task-1")
	s.Require().NoError(err)
	s.Equal(domain.TaskCompleted, got.Status)
	s.Require().NotNil(got.Result)
	s.Equal(result.Stats, got.Result.Stats)
	s.Require().NotNil(got.StartTime)
	s.Require().NotNil(got.EndTime)
	s.False(got.EndTime.Before(*got.StartTime))
}

func (s *PostgresIntegrationSuite) TestTaskStore_MarkRunningTwiceFails() {
	cfg := s.createConfig("api-source")
	store := NewTaskStore(s.db)

	task := &domain.CrawlerTask{TaskID: "task-1", ConfigID: cfg.ID, Status: domain.TaskPending}
	s.Require().NoError(store.Create(s.ctx, task))
	s.Require().NoError(task.Start(time.Now()))
	s.Require().NoError(store.MarkRunning(s.ctx, task))

	err := store.MarkRunning(s.ctx, task)
	s.ErrorIs(err, domain.ErrInvalidTransition)
}

func (s *PostgresIntegrationSuite) TestTaskStore_FailAbandoned() {
	cfg := s.createConfig("api-source")
	store := NewTaskStore(s.db)
	now := time.Now().UTC()
	longAgo := now.Add(-2 * time.Hour)

	stalePending := &domain.CrawlerTask{TaskID: "stale-pending", ConfigID: cfg.ID, Status: domain.TaskPending, CreatedAt: longAgo}
	s.Require().NoError(store.Create(s.ctx, stalePending))

	staleRunning := &domain.CrawlerTask{TaskID: "stale-running", ConfigID: cfg.ID, Status: domain.TaskPending, CreatedAt: longAgo}
	s.Require().NoError(store.Create(s.ctx, staleRunning))
	s.Require().NoError(staleRunning.Start(longAgo))
	s.Require().NoError(store.MarkRunning(s.ctx, staleRunning))

	liveRunning := &domain.CrawlerTask{TaskID: "live-running", ConfigID: cfg.ID, Status: domain.TaskPending}
	s.Require().NoError(store.Create(s.ctx, liveRunning))
	s.Require().NoError(liveRunning.Start(now))
	s.Require().NoError(store.MarkRunning(s.ctx, liveRunning))

	livePending := &domain.CrawlerTask{TaskID: "live-pending", ConfigID: cfg.ID, Status: domain.TaskPending}
	s.Require().NoError(store.Create(s.ctx, livePending))

	n, err := store.FailAbandoned(s.ctx, now.Add(-time.Hour), "abandoned")
	s.Require().NoError(err)
	s.Equal(int64(2), n)

	for _, id := range []string{"stale-pending", "stale-running"} {
		got, err := store.GetByTaskID(s.ctx, id)
		s.Require().NoError(err)
		s.Equal(domain.TaskFailed, got.Status, id)
		s.Equal("abandoned", got.ErrorMessage, id)
		s.Require().NotNil(got.StartTime, id)
		s.Require().NotNil(got.EndTime, id)
		s.False(got.EndTime.Before(*got.StartTime), id)
	}

	got, err := store.GetByTaskID(s.ctx, "live-running")
	s.Require().NoError(err)
	s.Equal(domain.TaskRunning, got.Status)
	s.Nil(got.EndTime)

	got, err = store.GetByTaskID(s.ctx, "live-pending")
	s.Require().NoError(err)
	s.Equal(domain.TaskPending, got.Status)

	// The live run still finishes normally afterwards.
	s.Require().NoError(liveRunning.Complete(time.Now(), &domain.TaskResult{Status: domain.ResultSuccess}))
	s.Require().NoError(store.Finish(s.ctx, liveRunning))
}

func (s *PostgresIntegrationSuite) TestTaskStore_FinishPendingTask() {
	cfg := s.createConfig("api-source")
	store := NewTaskStore(s.db)

	task := &domain.CrawlerTask{TaskID: "never-started", ConfigID: cfg.ID, Status: domain.TaskPending}
	s.Require().NoError(store.Create(s.ctx, task))

	// Start succeeds in memory but the row is still pending.
	now := time.Now().UTC().Truncate(time.Microsecond)
	s.Require().NoError(task.Start(now))
	s.Require().NoError(task.Fail(now, "could not start: connection reset", &domain.TaskResult{Status: domain.ResultError}))
	s.Require().NoError(store.Finish(s.ctx, task))

	got, err := store.GetByTaskID(s.ctx, "never-started")
	s.Require().NoError(err)
	s.Equal(domain.TaskFailed, got.Status)
	s.Require().NotNil(got.StartTime)
	s.True(now.Equal(*got.StartTime))

	err = store.Finish(s.ctx, task)
	s.ErrorIs(err, domain.ErrInvalidTransition)
}

func (s *PostgresIntegrationSuite) TestArticleStore_CreateIfAbsent() {
	cfg := s.createConfig("api-source")
	store := NewArticleStore(s.db)

	article := &domain.Article{
		URL:             "https://example.com/news/1",
		Title:           "First",
		Author:          "Reporter",
		Source:          "api-source",
		PubTime:         utils.Ptr(time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)),
		CrawlerConfigID: utils.Ptr(cfg.ID),
	}

	outcome, err := store.CreateIfAbsent(s.ctx, article)
	s.Require().NoError(err)
	s.Equal(domain.Created, outcome)
	s.Greater(article.ID, int64(0))

	again := &domain.Article{URL: "https://example.com/news/1", Title: "Changed"}
	outcome, err = store.CreateIfAbsent(s.ctx, again)
	s.Require().NoError(err)
	s.Equal(domain.AlreadyExists, outcome)

	stored, err := store.GetByURL(s.ctx, "https://example.com/news/1")
	s.Require().NoError(err)
	s.Equal("First", stored.Title)
}

func (s *PostgresIntegrationSuite) TestArticleStore_ValidationError() {
	store := NewArticleStore(s.db)

	_, err := store.CreateIfAbsent(s.ctx, &domain.Article{
		URL:   "https://example.com/news/long",
		Title: strings.Repeat("t", 300),
	})

	s.ErrorIs(err, domain.ErrValidation)
}

func (s *PostgresIntegrationSuite) TestArticleStore_ConcurrentCreateSavesOnce() {
	store := NewArticleStore(s.db)
	const workers = 8

	var wg sync.WaitGroup
	outcomes := make(chan domain.CreateOutcome, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcome, err := store.CreateIfAbsent(s.ctx, &domain.Article{
				URL:   "https://example.com/shared",
				Title: fmt.Sprintf("from worker %d", i),
			})
			if err == nil {
				outcomes <- outcome
			}
		}(i)
	}
	wg.Wait()
	close(outcomes)

	created := 0
	total := 0
	for o := range outcomes {
		total++
		if o == domain.Created {
			created++
		}
	}
	s.Equal(workers, total)
	s.Equal(1, created)
}

func (s *PostgresIntegrationSuite) TestTransactionManager_RollbackUndoesWrites() {
	cfg := s.createConfig("api-source")
	tm := NewTransactionManager(s.db)
	configs := NewConfigStore(s.db)

	err := tm.WithTransaction(s.ctx, func(ctx context.Context) error {
		if err := configs.UpdateLastRunTime(ctx, cfg.ID, time.Now()); err != nil {
			return err
		}
		return fmt.Errorf("boom")
	})
	s.Error(err)

	got, err := configs.GetByName(s.ctx, "api-source")
	s.Require().NoError(err)
	s.Nil(got.LastRunTime)
}
