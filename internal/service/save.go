package service

import (
	"context"
	"errors"

	"news_crawler/internal/domain"
	"news_crawler/internal/metrics"
)

// saveItems parses and persists raw in fetch order. Each item lands in
// exactly one outcome bucket.
func (s *CrawlService) saveItems(ctx context.Context, cfg *domain.CrawlerConfig, raw []domain.RawItem) domain.RunStats {
	var stats domain.RunStats
	for _, r := range raw {
		item, ok := s.parser.Parse(r, cfg)
		if !ok {
			stats.Record(domain.OutcomeFiltered)
			continue
		}
		stats.Record(s.saveItem(ctx, cfg, item))
	}
	return stats
}

func (s *CrawlService) saveItem(ctx context.Context, cfg *domain.CrawlerConfig, item domain.ParsedItem) domain.ItemOutcome {
	article := item.ToArticle()

	outcome, err := s.articles.CreateIfAbsent(ctx, article)
	if err != nil {
		kind := "storage"
		if errors.Is(err, domain.ErrValidation) {
			kind = "validation"
		}
		s.logger.Warn("failed to save article",
			"config", cfg.Name,
			"url", item.URL,
			"kind", kind,
			"error", err,
		)
		return domain.OutcomeError
	}

	if outcome == domain.AlreadyExists {
		return domain.OutcomeDuplicate
	}

	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, article, cfg.Name); err != nil {
			metrics.PublishFailed()
			s.logger.Warn("failed to publish article",
				"config", cfg.Name,
				"url", item.URL,
				"error", err,
			)
		}
	}
	return domain.OutcomeSaved
}
