package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"

	"news_crawler/internal/domain"
)

const configColumns = `
	id, name, description, source_url, crawler_type, config_data, headers,
	interval_minutes, status, is_active, max_retries, retry_delay_seconds,
	last_run_time, created_at, updated_at`

type configRow struct {
	ID          int64          `db:"id"`
	Name        string         `db:"name"`
	Description string         `db:"description"`
	SourceURL   string         `db:"source_url"`
	CrawlerType int            `db:"crawler_type"`
	ConfigData  types.JSONText `db:"config_data"`
	Headers     types.JSONText `db:"headers"`
	Interval    int            `db:"interval_minutes"`
	Status      int            `db:"status"`
	IsActive    bool           `db:"is_active"`
	MaxRetries  int            `db:"max_retries"`
	RetryDelay  int            `db:"retry_delay_seconds"`
	LastRunTime sql.NullTime   `db:"last_run_time"`
	CreatedAt   time.Time      `db:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at"`
}

func (r configRow) toDomain() (*domain.CrawlerConfig, error) {
	cfg := &domain.CrawlerConfig{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		SourceURL:   r.SourceURL,
		CrawlerType: domain.CrawlerType(r.CrawlerType),
		Interval:    r.Interval,
		Status:      domain.ConfigStatus(r.Status),
		IsActive:    r.IsActive,
		MaxRetries:  r.MaxRetries,
		RetryDelay:  r.RetryDelay,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
	if r.LastRunTime.Valid {
		t := r.LastRunTime.Time.UTC()
		cfg.LastRunTime = &t
	}
	if len(r.ConfigData) > 0 {
		if err := r.ConfigData.Unmarshal(&cfg.ConfigData); err != nil {
			return nil, fmt.Errorf("decode config_data of %q: %w", r.Name, err)
		}
	}
	if len(r.Headers) > 0 {
		if err := r.Headers.Unmarshal(&cfg.Headers); err != nil {
			return nil, fmt.Errorf("decode headers of %q: %w", r.Name, err)
		}
	}
	return cfg, nil
}

type ConfigStore struct {
	db *sqlx.DB
}

func NewConfigStore(db *sqlx.DB) *ConfigStore {
	return &ConfigStore{db: db}
}

func (s *ConfigStore) GetByName(ctx context.Context, name string) (*domain.CrawlerConfig, error) {
	var row configRow
	query := `SELECT ` + configColumns + ` FROM crawler_configs WHERE name = $1`

	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &row, query, name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", domain.ErrConfigNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("get config: %w", err)
	}
	return row.toDomain()
}

func (s *ConfigStore) List(ctx context.Context) ([]*domain.CrawlerConfig, error) {
	return s.selectConfigs(ctx, `SELECT `+configColumns+` FROM crawler_configs ORDER BY name`)
}

// ListRunnable returns enabled, active configs. Whether each is due is left
// to the scheduler.
func (s *ConfigStore) ListRunnable(ctx context.Context) ([]*domain.CrawlerConfig, error) {
	query := `SELECT ` + configColumns + `
		FROM crawler_configs
		WHERE status = $1 AND is_active
		ORDER BY last_run_time NULLS FIRST, id`
	return s.selectConfigs(ctx, query, int(domain.ConfigEnabled))
}

func (s *ConfigStore) selectConfigs(ctx context.Context, query string, args ...any) ([]*domain.CrawlerConfig, error) {
	var rows []configRow
	if err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list configs: %w", err)
	}

	configs := make([]*domain.CrawlerConfig, 0, len(rows))
	for _, row := range rows {
		cfg, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		configs = append(configs, cfg)
	}
	return configs, nil
}

// Create inserts a new config and fills its ID and timestamps.
func (s *ConfigStore) Create(ctx context.Context, cfg *domain.CrawlerConfig) error {
	data, headers, err := encodeConfigMaps(cfg)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO crawler_configs (
			name, description, source_url, crawler_type, config_data, headers,
			interval_minutes, status, is_active, max_retries, retry_delay_seconds
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11
		)
		RETURNING id, created_at, updated_at`

	return GetExecutor(ctx, s.db).QueryRowxContext(ctx, query,
		cfg.Name,
		cfg.Description,
		cfg.SourceURL,
		int(cfg.CrawlerType),
		data,
		headers,
		cfg.Interval,
		int(cfg.Status),
		cfg.IsActive,
		cfg.MaxRetries,
		cfg.RetryDelay,
	).Scan(&cfg.ID, &cfg.CreatedAt, &cfg.UpdatedAt)
}

// Update writes the operator-managed fields. last_run_time is owned by the
// scheduler and is not touched here.
func (s *ConfigStore) Update(ctx context.Context, cfg *domain.CrawlerConfig) error {
	data, headers, err := encodeConfigMaps(cfg)
	if err != nil {
		return err
	}

	query := `
		UPDATE crawler_configs SET
			description = $2,
			source_url = $3,
			crawler_type = $4,
			config_data = $5,
			headers = $6,
			interval_minutes = $7,
			status = $8,
			is_active = $9,
			max_retries = $10,
			retry_delay_seconds = $11,
			updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`

	err = GetExecutor(ctx, s.db).QueryRowxContext(ctx, query,
		cfg.ID,
		cfg.Description,
		cfg.SourceURL,
		int(cfg.CrawlerType),
		data,
		headers,
		cfg.Interval,
		int(cfg.Status),
		cfg.IsActive,
		cfg.MaxRetries,
		cfg.RetryDelay,
	).Scan(&cfg.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: id %d", domain.ErrConfigNotFound, cfg.ID)
	}
	if err != nil {
		return fmt.Errorf("update config: %w", err)
	}
	return nil
}

// UpdateLastRunTime is a plain overwrite; the last writer wins.
func (s *ConfigStore) UpdateLastRunTime(ctx context.Context, configID int64, at time.Time) error {
	res, err := GetExecutor(ctx, s.db).ExecContext(ctx,
		`UPDATE crawler_configs SET last_run_time = $2 WHERE id = $1`,
		configID, at,
	)
	if err != nil {
		return fmt.Errorf("update last run time: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: id %d", domain.ErrConfigNotFound, configID)
	}
	return nil
}

func encodeConfigMaps(cfg *domain.CrawlerConfig) (types.JSONText, types.JSONText, error) {
	data := cfg.ConfigData
	if data == nil {
		data = map[string]any{}
	}
	headers := cfg.Headers
	if headers == nil {
		headers = map[string]string{}
	}

	rawData, err := json.Marshal(data)
	if err != nil {
		return nil, nil, fmt.Errorf("encode config_data: %w", err)
	}
	rawHeaders, err := json.Marshal(headers)
	if err != nil {
		return nil, nil, fmt.Errorf("encode headers: %w", err)
	}
	return types.JSONText(rawData), types.JSONText(rawHeaders), nil
}
