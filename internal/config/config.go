// Package config loads and validates crawler configuration via Viper.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. JOBCRAWLER_STORE_DRIVER.
const EnvPrefix = "JOBCRAWLER"

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Site     SiteConfig     `mapstructure:"site"`
	Keywords KeywordsConfig `mapstructure:"keywords"`
	Probe    ProbeConfig    `mapstructure:"probe"`
	Crawler  CrawlerConfig  `mapstructure:"crawler"`
	Fetcher  FetcherConfig  `mapstructure:"fetcher"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Store    StoreConfig    `mapstructure:"store"`
	Archive  ArchiveConfig  `mapstructure:"archive"`
	Notify   NotifyConfig   `mapstructure:"notify"`
	Schedule ScheduleConfig `mapstructure:"schedule"`
	Server   ServerConfig   `mapstructure:"server"`
	Parser   ParserConfig   `mapstructure:"parser"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Secrets  SecretsConfig  `mapstructure:"secrets"`
}

// SiteConfig identifies the job board.
type SiteConfig struct {
	BaseURL  string `mapstructure:"base_url"`
	Language string `mapstructure:"language"`
	// Regions overrides the province list used for fan-out.
	Regions []string `mapstructure:"regions"`
}

// KeywordsConfig sets the recency windows in days. Seed fills the keyword
// dimension of the memory store.
type KeywordsConfig struct {
	NewWindowDays     int      `mapstructure:"new_window_days"`
	TrackedWindowDays int      `mapstructure:"tracked_window_days"`
	Seed              []string `mapstructure:"seed"`
}

// ProbeConfig controls the result volume probe.
type ProbeConfig struct {
	Threshold    int           `mapstructure:"threshold"`
	FetchTimeout time.Duration `mapstructure:"fetch_timeout"`
}

// CrawlerConfig governs pagination and politeness.
type CrawlerConfig struct {
	Pagination     string        `mapstructure:"pagination"`
	MaxPages       int           `mapstructure:"max_pages"`
	PageSize       int           `mapstructure:"page_size"`
	FetchTimeout   time.Duration `mapstructure:"fetch_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
	RespectRobots  bool          `mapstructure:"respect_robots"`
	RateLimitRPS   float64       `mapstructure:"rate_limit_rps"`
	RateLimitBurst int           `mapstructure:"rate_limit_burst"`
}

// FetcherConfig selects the fetch backend.
type FetcherConfig struct {
	Backend          string            `mapstructure:"backend"`
	Promote          bool              `mapstructure:"promote"`
	PromoteThreshold int               `mapstructure:"promote_threshold"`
	RenderProxy      RenderProxyConfig `mapstructure:"render_proxy"`
	Headless         HeadlessConfig    `mapstructure:"headless"`
}

// RenderProxyConfig points at the rendering proxy. The api key is a secret name.
type RenderProxyConfig struct {
	Endpoint     string        `mapstructure:"endpoint"`
	APIKeySecret string        `mapstructure:"api_key_secret"`
	WaitFor      time.Duration `mapstructure:"wait_for"`
}

// HeadlessConfig configures headless Chrome.
type HeadlessConfig struct {
	NavTimeout   time.Duration `mapstructure:"nav_timeout"`
	Settle       time.Duration `mapstructure:"settle"`
	WaitSelector string        `mapstructure:"wait_selector"`
	ExecPath     string        `mapstructure:"exec_path"`
}

// CacheConfig enables the Redis page cache.
type CacheConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	URL     string        `mapstructure:"url"`
	TTL     time.Duration `mapstructure:"ttl"`
}

// StoreConfig controls the relational store. The DSN is a secret name.
type StoreConfig struct {
	Driver        string `mapstructure:"driver"`
	DSNSecret     string `mapstructure:"dsn_secret"`
	Schema        string `mapstructure:"schema"`
	DedupeJobCode bool   `mapstructure:"dedupe_job_code"`
	MaxConns      int32  `mapstructure:"max_conns"`
}

// ArchiveConfig selects where denied pages are kept.
type ArchiveConfig struct {
	Backend string `mapstructure:"backend"`
	Dir     string `mapstructure:"dir"`
	Bucket  string `mapstructure:"bucket"`
	Prefix  string `mapstructure:"prefix"`
}

// NotifyConfig holds the run-completion topic. An empty topic disables it.
type NotifyConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// ScheduleConfig drives the serve command.
type ScheduleConfig struct {
	Spec       string `mapstructure:"spec"`
	RunOnStart bool   `mapstructure:"run_on_start"`
}

// ServerConfig controls the ops HTTP server.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// ParserConfig toggles extraction quirks.
type ParserConfig struct {
	LegacyApostrophes bool `mapstructure:"legacy_apostrophes"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// SecretsConfig lists dotenv files consulted after the environment.
type SecretsConfig struct {
	EnvFiles []string `mapstructure:"env_files"`
}

// SearchPaths are consulted by Discover, in order.
var SearchPaths = []string{".", "/etc/jobcrawler", "$HOME/.jobcrawler"}

// Discover returns the first config.yaml found on SearchPaths, or "" when
// there is none and configuration comes from defaults and the environment.
func Discover() string {
	for _, dir := range SearchPaths {
		path := filepath.Join(os.ExpandEnv(dir), "config.yaml")
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path
		}
	}
	return ""
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
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
	v.SetDefault("site.base_url", "https://nl.indeed.com")
	v.SetDefault("site.language", "nl-NL")
	v.SetDefault("site.regions", []string{})
	v.SetDefault("keywords.new_window_days", 125)
	v.SetDefault("keywords.tracked_window_days", 1)
	v.SetDefault("keywords.seed", []string{})
	v.SetDefault("probe.threshold", 1000)
	v.SetDefault("probe.fetch_timeout", "60s")
	v.SetDefault("crawler.pagination", "link")
	v.SetDefault("crawler.max_pages", 100)
	v.SetDefault("crawler.page_size", 10)
	v.SetDefault("crawler.fetch_timeout", "60s")
	v.SetDefault("crawler.user_agent", "")
	v.SetDefault("crawler.respect_robots", false)
	v.SetDefault("crawler.rate_limit_rps", 0.5)
	v.SetDefault("crawler.rate_limit_burst", 1)
	v.SetDefault("fetcher.backend", "colly")
	v.SetDefault("fetcher.promote", false)
	v.SetDefault("fetcher.promote_threshold", 4096)
	v.SetDefault("fetcher.render_proxy.endpoint", "https://api.webscrapingapi.com/v1")
	v.SetDefault("fetcher.render_proxy.api_key_secret", "WEBSCRAPINGAPI_KEY")
	v.SetDefault("fetcher.render_proxy.wait_for", "5s")
	v.SetDefault("fetcher.headless.nav_timeout", "45s")
	v.SetDefault("fetcher.headless.settle", "5s")
	v.SetDefault("fetcher.headless.wait_selector", "body")
	v.SetDefault("fetcher.headless.exec_path", "")
	v.SetDefault("cache.enabled", false)
	v.SetDefault("cache.url", "redis://localhost:6379/0")
	v.SetDefault("cache.ttl", "6h")
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.dsn_secret", "JOBCRAWLER_DATABASE_DSN")
	v.SetDefault("store.schema", "rpg")
	v.SetDefault("store.dedupe_job_code", false)
	v.SetDefault("store.max_conns", 4)
	v.SetDefault("archive.backend", "none")
	v.SetDefault("archive.dir", "./archive")
	v.SetDefault("archive.bucket", "")
	v.SetDefault("archive.prefix", "")
	v.SetDefault("notify.project_id", "")
	v.SetDefault("notify.topic", "")
	v.SetDefault("schedule.spec", "@every 24h")
	v.SetDefault("schedule.run_on_start", false)
	v.SetDefault("server.port", 8080)
	v.SetDefault("parser.legacy_apostrophes", false)
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "info")
	v.SetDefault("secrets.env_files", []string{".env"})
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	u, err := url.Parse(c.Site.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("site.base_url must be an absolute URL")
	}
	if c.Keywords.NewWindowDays <= 0 || c.Keywords.TrackedWindowDays <= 0 {
		return fmt.Errorf("keywords window days must be > 0")
	}
	if c.Probe.Threshold <= 0 {
		return fmt.Errorf("probe.threshold must be > 0")
	}
	switch c.Crawler.Pagination {
	case "link", "offset":
	default:
		return fmt.Errorf("crawler.pagination must be link or offset, got %q", c.Crawler.Pagination)
	}
	if c.Crawler.MaxPages <= 0 {
		return fmt.Errorf("crawler.max_pages must be > 0")
	}
	if c.Crawler.PageSize <= 0 {
		return fmt.Errorf("crawler.page_size must be > 0")
	}
	if c.Crawler.FetchTimeout <= 0 || c.Probe.FetchTimeout <= 0 {
		return fmt.Errorf("fetch timeouts must be > 0")
	}
	if c.Crawler.RateLimitRPS < 0 {
		return fmt.Errorf("crawler.rate_limit_rps must be >= 0")
	}
	switch c.Fetcher.Backend {
	case "colly", "headless":
	case "renderproxy":
		if c.Fetcher.RenderProxy.APIKeySecret == "" {
			return fmt.Errorf("fetcher.render_proxy.api_key_secret must be set for the renderproxy backend")
		}
	default:
		return fmt.Errorf("fetcher.backend must be colly, headless or renderproxy, got %q", c.Fetcher.Backend)
	}
	if c.Cache.Enabled && c.Cache.URL == "" {
		return fmt.Errorf("cache.url must be set when the cache is enabled")
	}
	switch c.Store.Driver {
	case "memory":
	case "postgres":
		if c.Store.DSNSecret == "" {
			return fmt.Errorf("store.dsn_secret must be set for the postgres driver")
		}
	default:
		return fmt.Errorf("store.driver must be postgres or memory, got %q", c.Store.Driver)
	}
	switch c.Archive.Backend {
	case "none", "":
	case "local":
		if c.Archive.Dir == "" {
			return fmt.Errorf("archive.dir must be set for the local archive")
		}
	case "gcs":
		if c.Archive.Bucket == "" {
			return fmt.Errorf("archive.bucket must be set for the gcs archive")
		}
	default:
		return fmt.Errorf("archive.backend must be none, local or gcs, got %q", c.Archive.Backend)
	}
	if c.Notify.Topic != "" && c.Notify.ProjectID == "" {
		return fmt.Errorf("notify.project_id must be set when notify.topic is set")
	}
	if _, err := cron.ParseStandard(c.Schedule.Spec); err != nil {
		return fmt.Errorf("schedule.spec: %w", err)
	}
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	return nil
}

// AcceptLanguage returns the Accept-Language header for the configured site language.
func (c Config) AcceptLanguage() string {
	lang := strings.TrimSpace(c.Site.Language)
	if lang == "" {
		return ""
	}
	primary, _, _ := strings.Cut(lang, "-")
	if primary == lang {
		return lang
	}
	if primary == "en" {
		return fmt.Sprintf("%s,en;q=0.9", lang)
	}
	return fmt.Sprintf("%s,%s;q=0.9,en;q=0.7", lang, primary)
}
