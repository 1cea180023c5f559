// Package html crawls list pages with CSS selectors.
package html

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"news_crawler/internal/domain"
	"news_crawler/internal/fetch"
	"news_crawler/internal/fieldpath"
	"news_crawler/internal/source"
)

var itemFields = []string{
	domain.FieldTitle,
	domain.FieldURL,
	domain.FieldAuthor,
	domain.FieldSource,
	domain.FieldContent,
	domain.FieldDescription,
	domain.FieldPubDate,
}

// selectorKeys maps item fields to their item_selectors key when the two
// differ.
var selectorKeys = map[string]string{
	domain.FieldURL: "link",
}

type Crawler struct {
	client *fetch.Client
	logger *slog.Logger
}

func New(client *fetch.Client, logger *slog.Logger) *Crawler {
	return &Crawler{
		client: client,
		logger: logger.With("crawler", domain.CrawlerTypeHTML.String()),
	}
}

// Fetch downloads the page and yields one item per list_selector match.
func (c *Crawler) Fetch(ctx context.Context, cfg *domain.CrawlerConfig) ([]domain.RawItem, error) {
	listSelector := cfg.DataString(domain.KeyListSelector)
	if listSelector == "" {
		return nil, fetch.Permanent(cfg.SourceURL, fmt.Errorf("%w: missing %s", domain.ErrInvalidConfig, domain.KeyListSelector))
	}

	resp, err := c.client.Do(ctx, fetch.Request{
		URL:     cfg.SourceURL,
		Headers: cfg.Headers,
		Accept:  "text/html,application/xhtml+xml",
	})
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return nil, fetch.Permanent(cfg.SourceURL, fmt.Errorf("parse html: %w", err))
	}

	selectors := itemSelectors(cfg)
	var items []domain.RawItem
	doc.Find(listSelector).Each(func(_ int, block *goquery.Selection) {
		item := make(domain.RawItem, len(selectors))
		for field, sel := range selectors {
			if v, ok := extract(block, sel, field == domain.FieldURL); ok {
				item[field] = v
			}
		}
		if link, ok := item[domain.FieldURL].(string); ok {
			item[domain.FieldURL] = source.ResolveURL(resp.FinalURL, link)
		}
		items = append(items, item)
	})

	c.logger.Debug("parsed html list",
		"config", cfg.Name,
		"blocks", len(items),
	)
	return items, nil
}

// itemSelectors reads item_selectors.<field> from the config.
func itemSelectors(cfg *domain.CrawlerConfig) map[string]string {
	out := make(map[string]string, len(itemFields))
	for _, field := range itemFields {
		key := field
		if alt, ok := selectorKeys[field]; ok {
			key = alt
		}
		sel, ok := fieldpath.String(cfg.ConfigData, domain.KeyItemSelectors+"."+key)
		if !ok && key != field {
			sel, ok = fieldpath.String(cfg.ConfigData, domain.KeyItemSelectors+"."+field)
		}
		if ok && strings.TrimSpace(sel) != "" {
			out[field] = strings.TrimSpace(sel)
		}
	}
	return out
}

// extract applies a "css" or "css@attr" selector inside block. An empty css
// part targets the block itself. Link fields default to the href attribute.
func extract(block *goquery.Selection, selector string, isLink bool) (string, bool) {
	css, attr := splitSelector(selector)

	target := block
	if css != "" {
		target = block.Find(css).First()
	}
	if target.Length() == 0 {
		return "", false
	}

	if attr == "" && isLink {
		attr = "href"
	}
	if attr != "" {
		v, ok := target.Attr(attr)
		if !ok && isLink && attr == "href" {
			v, ok = target.Find("a[href]").First().Attr("href")
		}
		return strings.TrimSpace(v), ok
	}

	return strings.Join(strings.Fields(target.Text()), " "), true
}

var attrName = regexp.MustCompile(`^[A-Za-z_][\w:.-]*$`)

// splitSelector separates a trailing "@attr" from the css part. An @ inside
// brackets or quotes, such as a[href^="mailto:x@y"], belongs to the css.
func splitSelector(selector string) (css, attr string) {
	at, depth := -1, 0
	var quote byte
	for i := 0; i < len(selector); i++ {
		c := selector[i]
		switch {
		case quote != 0:
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == '[':
			depth++
		case c == ']' && depth > 0:
			depth--
		case c == '@' && depth == 0:
			at = i
		}
	}
	if at < 0 {
		return selector, ""
	}
	name := strings.TrimSpace(selector[at+1:])
	if !attrName.MatchString(name) {
		return selector, ""
	}
	return strings.TrimSpace(selector[:at]), name
}
