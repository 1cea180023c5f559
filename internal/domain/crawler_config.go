package domain

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// CrawlerType selects the protocol crawler used for a config.
type CrawlerType int

const (
	CrawlerTypeRSS  CrawlerType = 1
	CrawlerTypeAPI  CrawlerType = 2
	CrawlerTypeHTML CrawlerType = 3
)

func (t CrawlerType) String() string {
	switch t {
	case CrawlerTypeRSS:
		return "rss"
	case CrawlerTypeAPI:
		return "api"
	case CrawlerTypeHTML:
		return "html"
	default:
		return fmt.Sprintf("unknown(%d)", int(t))
	}
}

func (t CrawlerType) Valid() bool {
	return t >= CrawlerTypeRSS && t <= CrawlerTypeHTML
}

type ConfigStatus int

const (
	ConfigDisabled ConfigStatus = 0
	ConfigEnabled  ConfigStatus = 1
)

func (s ConfigStatus) String() string {
	if s == ConfigEnabled {
		return "enabled"
	}
	return "disabled"
}

// ParseConfigStatus accepts "enabled"/"disabled" or their numeric forms.
func ParseConfigStatus(s string) (ConfigStatus, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "enabled", "1":
		return ConfigEnabled, nil
	case "disabled", "0":
		return ConfigDisabled, nil
	}
	return 0, fmt.Errorf("%w: unknown status %q", ErrInvalidConfig, s)
}

// Keys understood in CrawlerConfig.ConfigData.
const (
	KeyDataPath        = "data_path"
	KeyTitlePath       = "title_path"
	KeyLinkPath        = "link_path"
	KeyURLPath         = "url_path"
	KeyAuthorPath      = "author_path"
	KeySourcePath      = "source_path"
	KeyPubDatePath     = "pub_date_path"
	KeyContentPath     = "content_path"
	KeyDescriptionPath = "description_path"
	KeyDateFormat      = "date_format"
	KeyMethod          = "method"
	KeyRequestBody     = "request_body"
	KeyFetchDetail     = "fetch_detail"
	KeyDetailSelector  = "detail_selector"
	KeyListSelector    = "list_selector"
	KeyItemSelectors   = "item_selectors"
)

// CrawlerConfig describes one external news source and how to parse it.
type CrawlerConfig struct {
	ID          int64
	Name        string
	Description string
	SourceURL   string
	CrawlerType CrawlerType
	ConfigData  map[string]any
	Headers     map[string]string
	Interval    int // minutes
	Status      ConfigStatus
	IsActive    bool
	MaxRetries  int
	RetryDelay  int // seconds
	LastRunTime *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Runnable reports whether the config may be crawled at all.
func (c *CrawlerConfig) Runnable() bool {
	return c.Status == ConfigEnabled && c.IsActive
}

func (c *CrawlerConfig) IntervalDuration() time.Duration {
	return time.Duration(c.Interval) * time.Minute
}

func (c *CrawlerConfig) RetryDelayDuration() time.Duration {
	return time.Duration(c.RetryDelay) * time.Second
}

// Attempts is the number of fetch attempts a run may make. MaxRetries counts
// total attempts; zero still allows one.
func (c *CrawlerConfig) Attempts() int {
	if c.MaxRetries < 1 {
		return 1
	}
	return c.MaxRetries
}

// DataString returns a top-level string value from ConfigData.
func (c *CrawlerConfig) DataString(key string) string {
	if c.ConfigData == nil {
		return ""
	}
	switch v := c.ConfigData[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case fmt.Stringer:
		return v.String()
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// DataBool interprets a ConfigData value as a flag.
func (c *CrawlerConfig) DataBool(key string) bool {
	if c.ConfigData == nil {
		return false
	}
	switch v := c.ConfigData[key].(type) {
	case bool:
		return v
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "on":
			return true
		}
	case float64:
		return v != 0
	}
	return false
}

// Validate checks what a config must satisfy before it is crawled.
func (c *CrawlerConfig) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidConfig)
	}
	if !c.CrawlerType.Valid() {
		return fmt.Errorf("%w: unsupported crawler type %d", ErrInvalidConfig, int(c.CrawlerType))
	}
	u, err := url.Parse(c.SourceURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: invalid source url %q", ErrInvalidConfig, c.SourceURL)
	}
	if c.Interval <= 0 {
		return fmt.Errorf("%w: interval must be positive, got %d", ErrInvalidConfig, c.Interval)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("%w: max_retries must not be negative", ErrInvalidConfig)
	}
	if c.RetryDelay < 0 {
		return fmt.Errorf("%w: retry_delay must not be negative", ErrInvalidConfig)
	}
	if c.CrawlerType == CrawlerTypeHTML && c.DataString(KeyListSelector) == "" {
		return fmt.Errorf("%w: html crawler requires %s", ErrInvalidConfig, KeyListSelector)
	}
	return nil
}

// ConfigUpdate is a partial change to an operator-managed config. Nil fields
// are left untouched; map entries are merged into the existing maps.
type ConfigUpdate struct {
	Interval   *int
	MaxRetries *int
	RetryDelay *int
	Status     *ConfigStatus
	IsActive   *bool
	Headers    map[string]string
	ConfigData map[string]any
}

// Apply merges the update into cfg.
func (u ConfigUpdate) Apply(cfg *CrawlerConfig) {
	if u.Interval != nil {
		cfg.Interval = *u.Interval
	}
	if u.MaxRetries != nil {
		cfg.MaxRetries = *u.MaxRetries
	}
	if u.RetryDelay != nil {
		cfg.RetryDelay = *u.RetryDelay
	}
	if u.Status != nil {
		cfg.Status = *u.Status
	}
	if u.IsActive != nil {
		cfg.IsActive = *u.IsActive
	}
	if len(u.Headers) > 0 && cfg.Headers == nil {
		cfg.Headers = make(map[string]string, len(u.Headers))
	}
	for k, v := range u.Headers {
		cfg.Headers[k] = v
	}
	if len(u.ConfigData) > 0 && cfg.ConfigData == nil {
		cfg.ConfigData = make(map[string]any, len(u.ConfigData))
	}
	for k, v := range u.ConfigData {
		cfg.ConfigData[k] = v
	}
}
