package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"news_crawler/internal/config"
	"news_crawler/internal/datetime"
	"news_crawler/internal/domain"
	"news_crawler/internal/fetch"
	"news_crawler/internal/parser"
	"news_crawler/internal/publisher"
	"news_crawler/internal/scheduler"
	"news_crawler/internal/service"
	"news_crawler/internal/source/api"
	"news_crawler/internal/source/detail"
	"news_crawler/internal/source/html"
	"news_crawler/internal/source/rss"
	"news_crawler/internal/storage/postgres"
)

type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	db        *sqlx.DB
	tasks     *postgres.TaskStore
	crawl     *service.CrawlService
	scheduler *scheduler.Scheduler
	rabbitMQ  *publisher.RabbitMQ
}

func buildApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	logger.Debug("connected to database", "host", cfg.Database.Host, "dbname", cfg.Database.DBName)

	a := &app{cfg: cfg, logger: logger, db: db}

	var pub service.Publisher
	if cfg.RabbitMQ.Enabled {
		a.rabbitMQ, err = publisher.NewRabbitMQ(publisher.Config{
			URL:        cfg.RabbitMQ.URL,
			Exchange:   cfg.RabbitMQ.Exchange,
			RoutingKey: cfg.RabbitMQ.RoutingKey,
			QueueName:  cfg.RabbitMQ.QueueName,
		}, logger)
		if err != nil {
			db.Close()
			return nil, err
		}
		pub = a.rabbitMQ
	}

	configStore := postgres.NewConfigStore(db)
	a.tasks = postgres.NewTaskStore(db)
	articleStore := postgres.NewArticleStore(db)
	txManager := postgres.NewTransactionManager(db)

	client := fetch.NewClient(fetch.Config{
		Timeout:      cfg.HTTP.Timeout,
		UserAgent:    cfg.HTTP.UserAgent,
		MaxBodyBytes: cfg.HTTP.MaxBodyBytes,
	})

	crawlers := map[domain.CrawlerType]service.Crawler{
		domain.CrawlerTypeRSS:  rss.New(client, logger),
		domain.CrawlerTypeAPI:  api.New(client, detail.NewExtractor(client, logger), logger),
		domain.CrawlerTypeHTML: html.New(client, logger),
	}

	a.crawl = service.NewCrawlService(
		crawlers,
		parser.New(datetime.NewNormalizer(logger)),
		configStore,
		a.tasks,
		articleStore,
		txManager,
		pub,
		logger,
		cfg.Crawl,
	)

	a.scheduler = scheduler.NewScheduler(
		configStore,
		a.crawl,
		cfg.Scheduler.TickInterval,
		cfg.Scheduler.Workers,
		logger,
	)

	return a, nil
}

func (a *app) Close() {
	if a.rabbitMQ != nil {
		if err := a.rabbitMQ.Close(); err != nil {
			a.logger.Warn("failed to close rabbitmq", "error", err)
		}
	}
	if a.db != nil {
		a.db.Close()
	}
}
