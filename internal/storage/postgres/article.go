package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"unicode/utf8"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"news_crawler/internal/domain"
)

// Column limits mirrored from migrations/003_create_news_articles.up.sql.
const (
	maxTitleLen  = 255
	maxAuthorLen = 100
	maxSourceLen = 100
	maxURLLen    = 2048
)

const uniqueViolation = "23505"

type ArticleStore struct {
	db *sqlx.DB
}

func NewArticleStore(db *sqlx.DB) *ArticleStore {
	return &ArticleStore{db: db}
}

// CreateIfAbsent inserts the article unless one with the same URL exists.
// The unique constraint on url decides the race between concurrent tasks.
func (s *ArticleStore) CreateIfAbsent(ctx context.Context, article *domain.Article) (domain.CreateOutcome, error) {
	if err := validateArticle(article); err != nil {
		return 0, err
	}

	query := `
		INSERT INTO news_articles (
			url, title, content, description, author, source, pub_time, crawler_config_id
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8
		)
		ON CONFLICT (url) DO NOTHING
		RETURNING id, created_at`

	err := GetExecutor(ctx, s.db).QueryRowxContext(ctx, query,
		article.URL,
		article.Title,
		article.Content,
		article.Description,
		article.Author,
		article.Source,
		article.PubTime,
		article.CrawlerConfigID,
	).Scan(&article.ID, &article.CreatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return domain.AlreadyExists, nil
	}
	if err != nil {
		return 0, classifyArticleError(err)
	}
	return domain.Created, nil
}

func (s *ArticleStore) GetByURL(ctx context.Context, articleURL string) (*domain.Article, error) {
	var article domain.Article
	query := `
		SELECT id, url, title, content, description, author, source, pub_time, crawler_config_id, created_at
		FROM news_articles
		WHERE url = $1`

	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &article, query, articleURL)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get article by url: %w", err)
	}
	return &article, nil
}

func validateArticle(a *domain.Article) error {
	if a.Title == "" {
		return fmt.Errorf("%w: title is empty", domain.ErrValidation)
	}
	if n := utf8.RuneCountInString(a.Title); n > maxTitleLen {
		return fmt.Errorf("%w: title has %d characters, limit %d", domain.ErrValidation, n, maxTitleLen)
	}
	if n := utf8.RuneCountInString(a.Author); n > maxAuthorLen {
		return fmt.Errorf("%w: author has %d characters, limit %d", domain.ErrValidation, n, maxAuthorLen)
	}
	if n := utf8.RuneCountInString(a.Source); n > maxSourceLen {
		return fmt.Errorf("%w: source has %d characters, limit %d", domain.ErrValidation, n, maxSourceLen)
	}
	if n := utf8.RuneCountInString(a.URL); n > maxURLLen {
		return fmt.Errorf("%w: url has %d characters, limit %d", domain.ErrValidation, n, maxURLLen)
	}
	u, err := url.Parse(a.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: invalid url %q", domain.ErrValidation, a.URL)
	}
	return nil
}

// classifyArticleError maps data exceptions (class 22) and integrity
// violations (class 23) to ErrValidation. Unique violations cannot reach
// here because of ON CONFLICT, except on a constraint other than url.
func classifyArticleError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		class := string(pqErr.Code.Class())
		if (class == "22" || class == "23") && pqErr.Code != uniqueViolation {
			return fmt.Errorf("%w: %s", domain.ErrValidation, pqErr.Message)
		}
	}
	return fmt.Errorf("insert article: %w", err)
}
