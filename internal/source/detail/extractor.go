// Package detail pulls the full body and summary out of an article page.
package detail

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"

	"news_crawler/internal/fetch"
)

// Page is what could be recovered from a detail page. Fields are empty when
// nothing usable was found.
type Page struct {
	Content     string
	Description string
}

type Extractor struct {
	client *fetch.Client
	logger *slog.Logger
}

func NewExtractor(client *fetch.Client, logger *slog.Logger) *Extractor {
	return &Extractor{
		client: client,
		logger: logger,
	}
}

// Extract fetches pageURL once and returns its content and description.
// When selector is set it picks the content block; otherwise readability
// decides. Errors are for logging only: callers fall back to empty fields.
func (e *Extractor) Extract(ctx context.Context, pageURL, selector string, headers map[string]string) (Page, error) {
	resp, err := e.client.Do(ctx, fetch.Request{
		URL:     pageURL,
		Headers: headers,
		Accept:  "text/html,application/xhtml+xml",
	})
	if err != nil {
		return Page{}, err
	}

	page, err := Parse(resp.Body, pageURL, selector)
	if err != nil {
		return page, err
	}

	e.logger.Debug("extracted detail page",
		"url", pageURL,
		"content_length", len(page.Content),
		"has_description", page.Description != "",
	)
	return page, nil
}

// Parse extracts a Page from raw HTML.
func Parse(body []byte, pageURL, selector string) (Page, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return Page{}, fmt.Errorf("parse html: %w", err)
	}

	page := Page{Description: metaDescription(doc)}

	if selector != "" {
		page.Content = normalizeText(doc.Find(selector).First().Text())
		return page, nil
	}

	parsedURL, err := url.Parse(pageURL)
	if err != nil {
		return page, fmt.Errorf("parse url: %w", err)
	}

	article, err := readability.FromReader(bytes.NewReader(body), parsedURL)
	if err != nil {
		return page, fmt.Errorf("readability: %w", err)
	}

	content, err := goquery.NewDocumentFromReader(strings.NewReader(article.Content))
	if err == nil {
		page.Content = normalizeText(content.Text())
	}
	if page.Description == "" {
		page.Description = strings.TrimSpace(article.Excerpt)
	}
	return page, nil
}

func metaDescription(doc *goquery.Document) string {
	for _, sel := range []string{
		`meta[name="description"]`,
		`meta[property="og:description"]`,
		`meta[name="twitter:description"]`,
	} {
		if v, ok := doc.Find(sel).First().Attr("content"); ok {
			if v = strings.TrimSpace(v); v != "" {
				return v
			}
		}
	}
	return ""
}

func normalizeText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
