package service

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"time"

	"news_crawler/internal/domain"
)

// Crawler fetches raw items for one protocol. Implementations live under
// internal/source and are selected by domain.CrawlerType.
type Crawler interface {
	Fetch(ctx context.Context, cfg *domain.CrawlerConfig) ([]domain.RawItem, error)
}

type ConfigStore interface {
	GetByName(ctx context.Context, name string) (*domain.CrawlerConfig, error)
	List(ctx context.Context) ([]*domain.CrawlerConfig, error)
	Update(ctx context.Context, cfg *domain.CrawlerConfig) error
	UpdateLastRunTime(ctx context.Context, configID int64, at time.Time) error
}

type TaskStore interface {
	Create(ctx context.Context, task *domain.CrawlerTask) error
	MarkRunning(ctx context.Context, task *domain.CrawlerTask) error
	Finish(ctx context.Context, task *domain.CrawlerTask) error
}

type ArticleStore interface {
	CreateIfAbsent(ctx context.Context, article *domain.Article) (domain.CreateOutcome, error)
}

type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type Publisher interface {
	Publish(ctx context.Context, article *domain.Article, configName string) error
	Close() error
}
