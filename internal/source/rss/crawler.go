// Package rss crawls RSS and Atom feeds.
package rss

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mmcdole/gofeed"

	"news_crawler/internal/domain"
	"news_crawler/internal/fetch"
)

const accept = "application/rss+xml, application/atom+xml, application/xml;q=0.9, text/xml;q=0.8, */*;q=0.5"

type Crawler struct {
	client *fetch.Client
	logger *slog.Logger
}

func New(client *fetch.Client, logger *slog.Logger) *Crawler {
	return &Crawler{
		client: client,
		logger: logger.With("crawler", domain.CrawlerTypeRSS.String()),
	}
}

// Fetch downloads the feed and maps each entry onto the canonical item keys.
func (c *Crawler) Fetch(ctx context.Context, cfg *domain.CrawlerConfig) ([]domain.RawItem, error) {
	resp, err := c.client.Do(ctx, fetch.Request{
		URL:     cfg.SourceURL,
		Headers: cfg.Headers,
		Accept:  accept,
	})
	if err != nil {
		return nil, err
	}

	feed, err := gofeed.NewParser().Parse(bytes.NewReader(resp.Body))
	if err != nil {
		return nil, fetch.Permanent(cfg.SourceURL, fmt.Errorf("parse feed: %w", err))
	}

	c.logger.Debug("parsed feed",
		"config", cfg.Name,
		"feed_title", feed.Title,
		"entries", len(feed.Items),
	)

	items := make([]domain.RawItem, 0, len(feed.Items))
	for _, entry := range feed.Items {
		if entry == nil {
			continue
		}
		items = append(items, toRawItem(feed, entry))
	}
	return items, nil
}

func toRawItem(feed *gofeed.Feed, entry *gofeed.Item) domain.RawItem {
	item := domain.RawItem{
		domain.FieldTitle:       entry.Title,
		domain.FieldURL:         entryLink(entry),
		domain.FieldDescription: entry.Description,
		domain.FieldContent:     entry.Content,
		domain.FieldSource:      feed.Title,
	}

	if author := entryAuthor(entry); author != "" {
		item[domain.FieldAuthor] = author
	}

	switch {
	case entry.PublishedParsed != nil:
		item[domain.FieldPubDate] = *entry.PublishedParsed
	case entry.Published != "":
		item[domain.FieldPubDate] = entry.Published
	case entry.UpdatedParsed != nil:
		item[domain.FieldPubDate] = *entry.UpdatedParsed
	case entry.Updated != "":
		item[domain.FieldPubDate] = entry.Updated
	}

	return item
}

func entryLink(entry *gofeed.Item) string {
	if entry.Link != "" {
		return entry.Link
	}
	for _, l := range entry.Links {
		if l != "" {
			return l
		}
	}
	if strings.HasPrefix(entry.GUID, "http://") || strings.HasPrefix(entry.GUID, "https://") {
		return entry.GUID
	}
	return ""
}

func entryAuthor(entry *gofeed.Item) string {
	if entry.Author != nil && entry.Author.Name != "" {
		return entry.Author.Name
	}
	for _, a := range entry.Authors {
		if a != nil && a.Name != "" {
			return a.Name
		}
	}
	return ""
}
