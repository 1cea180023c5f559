// Package parser turns raw crawler items into parsed items.
package parser

import (
	"strings"
	"time"

	"news_crawler/internal/datetime"
	"news_crawler/internal/domain"
	"news_crawler/internal/fieldpath"
)

type Parser struct {
	dates *datetime.Normalizer
}

func New(dates *datetime.Normalizer) *Parser {
	return &Parser{dates: dates}
}

// Parse normalizes raw. It returns false when a required field (title or
// url) is missing, which the caller counts as filtered.
func (p *Parser) Parse(raw domain.RawItem, cfg *domain.CrawlerConfig) (domain.ParsedItem, bool) {
	item := domain.ParsedItem{
		Title:       text(raw, domain.FieldTitle),
		URL:         text(raw, domain.FieldURL),
		Author:      text(raw, domain.FieldAuthor),
		Source:      text(raw, domain.FieldSource),
		Content:     text(raw, domain.FieldContent),
		Description: text(raw, domain.FieldDescription),
		ConfigID:    cfg.ID,
	}

	if item.Title == "" || item.URL == "" {
		return domain.ParsedItem{}, false
	}

	if item.Source == "" {
		item.Source = cfg.Name
	}
	item.PubDate = p.pubDate(raw[domain.FieldPubDate], cfg.DataString(domain.KeyDateFormat))

	return item, true
}

func (p *Parser) pubDate(v any, layout string) *time.Time {
	switch t := v.(type) {
	case time.Time:
		if t.IsZero() {
			return nil
		}
		u := t.UTC().Truncate(time.Second)
		return &u
	case *time.Time:
		if t == nil {
			return nil
		}
		return p.pubDate(*t, layout)
	}

	s, ok := fieldpath.Stringify(v)
	if !ok {
		return nil
	}
	t, ok := p.dates.Normalize(s, layout)
	if !ok {
		return nil
	}
	return &t
}

func text(raw domain.RawItem, key string) string {
	s, _ := fieldpath.Stringify(raw[key])
	return strings.TrimSpace(s)
}
