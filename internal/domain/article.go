package domain

import "time"

// Article is a persisted news article. URL is the dedup key and never
// changes once the row exists.
type Article struct {
	ID              int64      `db:"id" json:"id"`
	URL             string     `db:"url" json:"url"`
	Title           string     `db:"title" json:"title"`
	Content         string     `db:"content" json:"content"`
	Description     string     `db:"description" json:"description"`
	Author          string     `db:"author" json:"author"`
	Source          string     `db:"source" json:"source"`
	PubTime         *time.Time `db:"pub_time" json:"pub_time,omitempty"`
	CrawlerConfigID *int64     `db:"crawler_config_id" json:"crawler_config_id,omitempty"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
}

// RawItem is a loosely structured record produced by a crawler. Crawlers
// fill the canonical keys below; anything else is ignored by the parser.
type RawItem map[string]any

const (
	FieldTitle       = "title"
	FieldURL         = "url"
	FieldAuthor      = "author"
	FieldSource      = "source"
	FieldContent     = "content"
	FieldDescription = "description"
	FieldPubDate     = "pub_date"
)

// ParsedItem is a normalized candidate article ready for the save step.
type ParsedItem struct {
	Title       string
	URL         string
	Author      string
	Source      string
	Content     string
	Description string
	PubDate     *time.Time
	ConfigID    int64
}

// ToArticle converts the item into the article row it would create.
func (p ParsedItem) ToArticle() *Article {
	a := &Article{
		URL:         p.URL,
		Title:       p.Title,
		Content:     p.Content,
		Description: p.Description,
		Author:      p.Author,
		Source:      p.Source,
		PubTime:     p.PubDate,
	}
	if p.ConfigID != 0 {
		id := p.ConfigID
		a.CrawlerConfigID = &id
	}
	return a
}

// CreateOutcome is the result of a create-if-absent write.
type CreateOutcome int

const (
	Created CreateOutcome = iota + 1
	AlreadyExists
)

func (o CreateOutcome) String() string {
	switch o {
	case Created:
		return "created"
	case AlreadyExists:
		return "already_exists"
	default:
		return "unknown"
	}
}
