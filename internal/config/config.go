// Package config loads and validates scraper configuration via Viper.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/JakeFAU/gyik-crawler/internal/crawler"
)

// EnvPrefix prefixes every environment override, e.g. GYIK_DB_PATH.
const EnvPrefix = "GYIK"

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Site    SiteConfig    `mapstructure:"site"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	Block   BlockConfig   `mapstructure:"block"`
	Thread  ThreadConfig  `mapstructure:"thread"`
	Crawl   CrawlConfig   `mapstructure:"crawl"`
	DB      DBConfig      `mapstructure:"db"`
	Logging LoggingConfig `mapstructure:"logging"`
	Archive ArchiveConfig `mapstructure:"archive"`
	Publish PublishConfig `mapstructure:"publish"`
	Server  ServerConfig  `mapstructure:"server"`
}

// SiteConfig describes the scraped site.
type SiteConfig struct {
	BaseURL   string `mapstructure:"base_url"`
	Timezone  string `mapstructure:"timezone"`
	UserAgent string `mapstructure:"user_agent"`
}

// HTTPConfig configures the fetcher's pacing and retry behavior.
type HTTPConfig struct {
	TimeoutSeconds   int   `mapstructure:"timeout_seconds"`
	RequestDelayMs   int   `mapstructure:"request_delay_ms"`
	MaxRetries       int   `mapstructure:"max_retries"`
	BackoffInitialMs int   `mapstructure:"backoff_initial_ms"`
	RetryStatuses    []int `mapstructure:"retry_statuses"`
}

// BlockConfig controls the captcha/ban cooldown loop. MaxRetries 0 retries forever.
type BlockConfig struct {
	CooldownSeconds int `mapstructure:"cooldown_seconds"`
	MaxRetries      int `mapstructure:"max_retries"`
}

// ThreadConfig bounds thread pagination.
type ThreadConfig struct {
	MaxPages int `mapstructure:"max_pages"`
}

// CrawlConfig selects the listing to crawl. EndPage 0 means "up to the last page".
type CrawlConfig struct {
	Category    string `mapstructure:"category"`
	SubCategory string `mapstructure:"sub_category"`
	StartPage   int    `mapstructure:"start_page"`
	EndPage     int    `mapstructure:"end_page"`
}

// DBConfig selects the relational store.
type DBConfig struct {
	Driver          string `mapstructure:"driver"`
	Path            string `mapstructure:"path"`
	DSN             string `mapstructure:"dsn"`
	MaxConns        int32  `mapstructure:"max_conns"`
	MaxConnLifetime int    `mapstructure:"max_conn_lifetime_minutes"`
}

// LoggingConfig toggles zap development features and an optional log file.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	File        string `mapstructure:"file"`
}

// ArchiveConfig selects where raw page snapshots go.
type ArchiveConfig struct {
	Provider  string `mapstructure:"provider"`
	BaseDir   string `mapstructure:"base_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// PublishConfig selects where ingestion events go.
type PublishConfig struct {
	Provider  string `mapstructure:"provider"`
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// ServerConfig controls the optional stats/metrics HTTP server.
type ServerConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// flagKeys maps CLI flag names to config keys.
var flagKeys = map[string]string{
	"database":     "db.path",
	"log-file":     "logging.file",
	"category":     "crawl.category",
	"sub-category": "crawl.sub_category",
	"start-page":   "crawl.start_page",
	"end-page":     "crawl.end_page",
}

// Load builds a Config from defaults, an optional file, the environment and
// flags, in increasing order of precedence. flags may be nil.
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}
	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return Config{}, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("site.base_url", "https://www.gyakorikerdesek.hu")
	v.SetDefault("site.timezone", "Europe/Budapest")
	v.SetDefault("site.user_agent", "gyik-crawler/1.0 (+https://github.com/JakeFAU/gyik-crawler)")
	v.SetDefault("http.timeout_seconds", 30)
	v.SetDefault("http.request_delay_ms", 3000)
	v.SetDefault("http.max_retries", 3)
	v.SetDefault("http.backoff_initial_ms", 300)
	v.SetDefault("http.retry_statuses", []int{500, 502, 504})
	v.SetDefault("block.cooldown_seconds", 30)
	v.SetDefault("block.max_retries", 0)
	v.SetDefault("thread.max_pages", 200)
	v.SetDefault("crawl.category", "")
	v.SetDefault("crawl.sub_category", "")
	v.SetDefault("crawl.start_page", 1)
	v.SetDefault("crawl.end_page", 0)
	v.SetDefault("db.driver", "sqlite")
	v.SetDefault("db.path", "")
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("db.max_conn_lifetime_minutes", 30)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.file", "")
	v.SetDefault("archive.provider", "none")
	v.SetDefault("archive.base_dir", "")
	v.SetDefault("archive.gcs_bucket", "")
	v.SetDefault("archive.prefix", "pages")
	v.SetDefault("publish.provider", "none")
	v.SetDefault("publish.project_id", "")
	v.SetDefault("publish.topic", "gyik-ingest")
	v.SetDefault("server.enabled", false)
	v.SetDefault("server.port", 8080)
}

func invalid(key, reason string) error {
	return &crawler.ConfigurationError{Key: key, Reason: reason}
}

// Validate enforces required values and consistent combinations.
func (c Config) Validate() error {
	if u, err := url.Parse(c.Site.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return invalid("site.base_url", "must be an absolute URL")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return invalid("http.timeout_seconds", "must be > 0")
	}
	if c.HTTP.RequestDelayMs < 0 {
		return invalid("http.request_delay_ms", "must be >= 0")
	}
	if c.HTTP.MaxRetries < 0 {
		return invalid("http.max_retries", "must be >= 0")
	}
	if c.Block.CooldownSeconds <= 0 {
		return invalid("block.cooldown_seconds", "must be > 0")
	}
	if c.Block.MaxRetries < 0 {
		return invalid("block.max_retries", "must be >= 0")
	}
	if c.Thread.MaxPages <= 0 {
		return invalid("thread.max_pages", "must be > 0")
	}

	switch c.DB.Driver {
	case "sqlite":
		if strings.TrimSpace(c.DB.Path) == "" {
			return invalid("db.path", "required for the sqlite driver (--database)")
		}
	case "postgres":
		if strings.TrimSpace(c.DB.DSN) == "" {
			return invalid("db.dsn", "required for the postgres driver")
		}
	default:
		return invalid("db.driver", fmt.Sprintf("unknown driver %q", c.DB.Driver))
	}

	switch c.Archive.Provider {
	case "none", "memory":
	case "local":
		if c.Archive.BaseDir == "" {
			return invalid("archive.base_dir", "required for the local archive")
		}
	case "gcs":
		if c.Archive.GCSBucket == "" {
			return invalid("archive.gcs_bucket", "required for the gcs archive")
		}
	default:
		return invalid("archive.provider", fmt.Sprintf("unknown provider %q", c.Archive.Provider))
	}

	switch c.Publish.Provider {
	case "none", "memory":
	case "pubsub":
		if c.Publish.ProjectID == "" || c.Publish.Topic == "" {
			return invalid("publish.project_id", "project_id and topic are required for pubsub")
		}
	default:
		return invalid("publish.provider", fmt.Sprintf("unknown provider %q", c.Publish.Provider))
	}

	if c.Server.Enabled && c.Server.Port <= 0 {
		return invalid("server.port", "must be > 0 when the server is enabled")
	}
	if c.Crawl.SubCategory != "" && c.Crawl.Category == "" {
		return invalid("crawl.sub_category", "requires crawl.category")
	}
	return nil
}

// ValidateCrawl checks the settings only a list crawl needs.
func (c Config) ValidateCrawl() error {
	if strings.TrimSpace(c.Crawl.Category) == "" {
		return invalid("crawl.category", "required (--category)")
	}
	if c.Crawl.StartPage < 1 {
		return invalid("crawl.start_page", "must be >= 1")
	}
	if c.Crawl.EndPage < 0 {
		return invalid("crawl.end_page", "must be >= 0")
	}
	if c.Crawl.EndPage > 0 && c.Crawl.EndPage < c.Crawl.StartPage {
		return invalid("crawl.end_page", "must not be before crawl.start_page")
	}
	return nil
}

// ListPath is the listing path for the configured category, e.g.
// "tudomanyok__fizika" or "tudomanyok".
func (c CrawlConfig) ListPath() string {
	if c.SubCategory == "" {
		return c.Category
	}
	return c.Category + "__" + c.SubCategory
}

// RequestDelay returns the politeness pause.
func (c HTTPConfig) RequestDelay() time.Duration {
	return time.Duration(c.RequestDelayMs) * time.Millisecond
}

// Timeout returns the per-request timeout.
func (c HTTPConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// BackoffInitial returns the first retry backoff.
func (c HTTPConfig) BackoffInitial() time.Duration {
	return time.Duration(c.BackoffInitialMs) * time.Millisecond
}

// Cooldown returns the pause after a captcha or ban page.
func (c BlockConfig) Cooldown() time.Duration {
	return time.Duration(c.CooldownSeconds) * time.Second
}
