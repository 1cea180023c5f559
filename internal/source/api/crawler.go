// Package api crawls JSON APIs using configured field paths.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"news_crawler/internal/domain"
	"news_crawler/internal/fetch"
	"news_crawler/internal/fieldpath"
	"news_crawler/internal/source"
	"news_crawler/internal/source/detail"
)

var errNotAList = errors.New("response does not contain a list")

// DetailFetcher loads the linked article page for items that only carry a
// summary and a link.
type DetailFetcher interface {
	Extract(ctx context.Context, pageURL, selector string, headers map[string]string) (detail.Page, error)
}

type Crawler struct {
	client  *fetch.Client
	details DetailFetcher
	logger  *slog.Logger
}

func New(client *fetch.Client, details DetailFetcher, logger *slog.Logger) *Crawler {
	return &Crawler{
		client:  client,
		details: details,
		logger:  logger.With("crawler", domain.CrawlerTypeAPI.String()),
	}
}

// Fetch calls the API, finds the list under data_path and resolves each
// element through the per-field paths.
func (c *Crawler) Fetch(ctx context.Context, cfg *domain.CrawlerConfig) ([]domain.RawItem, error) {
	resp, err := c.client.Do(ctx, fetch.Request{
		Method:  cfg.DataString(domain.KeyMethod),
		URL:     cfg.SourceURL,
		Headers: cfg.Headers,
		Body:    cfg.DataString(domain.KeyRequestBody),
		Accept:  "application/json",
	})
	if err != nil {
		return nil, err
	}

	elements, err := ListElements(resp.Body, cfg.DataString(domain.KeyDataPath))
	if err != nil {
		return nil, fetch.Permanent(cfg.SourceURL, err)
	}

	c.logger.Debug("decoded api response",
		"config", cfg.Name,
		"elements", len(elements),
	)

	paths := pathsFor(cfg)
	fetchDetail := cfg.DataBool(domain.KeyFetchDetail) && c.details != nil

	items := make([]domain.RawItem, 0, len(elements))
	for _, el := range elements {
		obj, ok := el.(map[string]any)
		if !ok {
			items = append(items, domain.RawItem{})
			continue
		}

		item := resolveItem(obj, paths)
		if link, ok := item[domain.FieldURL].(string); ok {
			item[domain.FieldURL] = source.ResolveURL(cfg.SourceURL, link)
		}
		if fetchDetail {
			c.fillFromDetail(ctx, cfg, item)
		}
		items = append(items, item)
	}
	return items, nil
}

// ListElements decodes body and returns the list found at dataPath. An empty
// dataPath means the document itself must be the list.
func ListElements(body []byte, dataPath string) ([]any, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if dataPath == "" {
		if list, ok := doc.([]any); ok {
			return list, nil
		}
		return nil, fmt.Errorf("%w: set %s", errNotAList, domain.KeyDataPath)
	}

	root, ok := doc.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: %s needs an object at the top level", errNotAList, domain.KeyDataPath)
	}
	list, ok := fieldpath.List(root, dataPath)
	if !ok {
		return nil, fmt.Errorf("%w at %q", errNotAList, dataPath)
	}
	return list, nil
}

// fieldPaths lists candidate paths per canonical field; the first one that
// resolves wins.
type fieldPaths map[string][]string

// pathsFor reads the configured per-field paths. A field without one is
// looked up under its canonical key, so plain {"title":..,"url":..}
// elements need nothing beyond data_path.
func pathsFor(cfg *domain.CrawlerConfig) fieldPaths {
	path := func(key string, defaults ...string) []string {
		if p := cfg.DataString(key); p != "" {
			return []string{p}
		}
		return defaults
	}

	link := path(domain.KeyLinkPath)
	if link == nil {
		link = path(domain.KeyURLPath, "link", domain.FieldURL)
	}
	return fieldPaths{
		domain.FieldTitle:       path(domain.KeyTitlePath, domain.FieldTitle),
		domain.FieldURL:         link,
		domain.FieldAuthor:      path(domain.KeyAuthorPath, domain.FieldAuthor),
		domain.FieldSource:      path(domain.KeySourcePath, domain.FieldSource),
		domain.FieldPubDate:     path(domain.KeyPubDatePath, domain.FieldPubDate, "published_at", "pub_time"),
		domain.FieldContent:     path(domain.KeyContentPath, domain.FieldContent),
		domain.FieldDescription: path(domain.KeyDescriptionPath, domain.FieldDescription, "summary"),
	}
}

func resolveItem(obj map[string]any, paths fieldPaths) domain.RawItem {
	item := make(domain.RawItem, len(paths))
	for field, candidates := range paths {
		for _, path := range candidates {
			v, ok := fieldpath.Extract(obj, path)
			if !ok || v == nil {
				continue
			}
			if s, ok := fieldpath.Stringify(v); ok && s != "" {
				item[field] = s
				break
			}
		}
	}
	return item
}

// fillFromDetail completes missing content and description from the linked
// page. Failures leave the fields empty.
func (c *Crawler) fillFromDetail(ctx context.Context, cfg *domain.CrawlerConfig, item domain.RawItem) {
	link, _ := item[domain.FieldURL].(string)
	if link == "" {
		return
	}
	content, _ := item[domain.FieldContent].(string)
	description, _ := item[domain.FieldDescription].(string)
	if content != "" && description != "" {
		return
	}

	page, err := c.details.Extract(ctx, link, cfg.DataString(domain.KeyDetailSelector), cfg.Headers)
	if err != nil {
		c.logger.Warn("detail fetch failed",
			"config", cfg.Name,
			"url", link,
			"error", err,
		)
	}

	if content == "" {
		item[domain.FieldContent] = page.Content
	}
	if description == "" {
		item[domain.FieldDescription] = page.Description
	}
}
