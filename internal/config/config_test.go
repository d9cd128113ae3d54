package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, "https://nl.indeed.com", cfg.Site.BaseURL)
	require.Equal(t, 125, cfg.Keywords.NewWindowDays)
	require.Equal(t, 1, cfg.Keywords.TrackedWindowDays)
	require.Equal(t, 1000, cfg.Probe.Threshold)
	require.Equal(t, "link", cfg.Crawler.Pagination)
	require.Equal(t, 100, cfg.Crawler.MaxPages)
	require.Equal(t, 60*time.Second, cfg.Crawler.FetchTimeout)
	require.Equal(t, "colly", cfg.Fetcher.Backend)
	require.Equal(t, 5*time.Second, cfg.Fetcher.RenderProxy.WaitFor)
	require.Equal(t, "postgres", cfg.Store.Driver)
	require.Equal(t, "rpg", cfg.Store.Schema)
	require.False(t, cfg.Store.DedupeJobCode)
	require.Equal(t, "none", cfg.Archive.Backend)
	require.Equal(t, "@every 24h", cfg.Schedule.Spec)
	require.Equal(t, []string{".env"}, cfg.Secrets.EnvFiles)
	require.False(t, cfg.Parser.LegacyApostrophes)
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	configYAML := `
site:
  base_url: https://www.indeed.com
  language: en-US
  regions: ["Texas", "Ohio"]
keywords:
  new_window_days: 30
crawler:
  pagination: offset
  max_pages: 5
  fetch_timeout: 10s
  rate_limit_rps: 2
fetcher:
  backend: renderproxy
  render_proxy:
    api_key_secret: PROXY_KEY
store:
  driver: memory
  dedupe_job_code: true
archive:
  backend: local
  dir: /tmp/denied
notify:
  project_id: demo
  topic: crawler-runs
schedule:
  spec: "0 6 * * *"
parser:
  legacy_apostrophes: true
logging:
  development: true
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(configYAML), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, "https://www.indeed.com", cfg.Site.BaseURL)
	require.Equal(t, []string{"Texas", "Ohio"}, cfg.Site.Regions)
	require.Equal(t, 30, cfg.Keywords.NewWindowDays)
	require.Equal(t, 1, cfg.Keywords.TrackedWindowDays)
	require.Equal(t, "offset", cfg.Crawler.Pagination)
	require.Equal(t, 5, cfg.Crawler.MaxPages)
	require.Equal(t, 10*time.Second, cfg.Crawler.FetchTimeout)
	require.InDelta(t, 2.0, cfg.Crawler.RateLimitRPS, 0.001)
	require.Equal(t, "renderproxy", cfg.Fetcher.Backend)
	require.Equal(t, "PROXY_KEY", cfg.Fetcher.RenderProxy.APIKeySecret)
	require.Equal(t, "memory", cfg.Store.Driver)
	require.True(t, cfg.Store.DedupeJobCode)
	require.Equal(t, "/tmp/denied", cfg.Archive.Dir)
	require.Equal(t, "crawler-runs", cfg.Notify.Topic)
	require.True(t, cfg.Parser.LegacyApostrophes)
	require.Equal(t, "debug", cfg.Logging.Level)
	require.Equal(t, "en-US,en;q=0.9", cfg.AcceptLanguage())
}

func TestLoadEnvironmentOverride(t *testing.T) {
	t.Setenv("JOBCRAWLER_STORE_DRIVER", "memory")
	t.Setenv("JOBCRAWLER_CRAWLER_MAX_PAGES", "7")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "memory", cfg.Store.Driver)
	require.Equal(t, 7, cfg.Crawler.MaxPages)
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base, err := Load("")
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"relative base url", func(c *Config) { c.Site.BaseURL = "/jobs" }, "site.base_url"},
		{"zero window", func(c *Config) { c.Keywords.NewWindowDays = 0 }, "window days"},
		{"zero probe threshold", func(c *Config) { c.Probe.Threshold = 0 }, "probe.threshold"},
		{"unknown pagination", func(c *Config) { c.Crawler.Pagination = "cursor" }, "crawler.pagination"},
		{"zero max pages", func(c *Config) { c.Crawler.MaxPages = 0 }, "crawler.max_pages"},
		{"zero timeout", func(c *Config) { c.Crawler.FetchTimeout = 0 }, "fetch timeouts"},
		{"unknown backend", func(c *Config) { c.Fetcher.Backend = "curl" }, "fetcher.backend"},
		{"proxy without key", func(c *Config) {
			c.Fetcher.Backend = "renderproxy"
			c.Fetcher.RenderProxy.APIKeySecret = ""
		}, "api_key_secret"},
		{"cache without url", func(c *Config) {
			c.Cache.Enabled = true
			c.Cache.URL = ""
		}, "cache.url"},
		{"unknown driver", func(c *Config) { c.Store.Driver = "sqlite" }, "store.driver"},
		{"postgres without dsn", func(c *Config) { c.Store.DSNSecret = "" }, "store.dsn_secret"},
		{"gcs without bucket", func(c *Config) { c.Archive.Backend = "gcs" }, "archive.bucket"},
		{"topic without project", func(c *Config) { c.Notify.Topic = "runs" }, "notify.project_id"},
		{"bad cron", func(c *Config) { c.Schedule.Spec = "every day" }, "schedule.spec"},
		{"invalid port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := base
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			require.True(t, strings.Contains(err.Error(), tt.want), "got %v", err)
		})
	}
}

func TestAcceptLanguage(t *testing.T) {
	t.Parallel()

	require.Equal(t, "nl-NL,nl;q=0.9,en;q=0.7", Config{Site: SiteConfig{Language: "nl-NL"}}.AcceptLanguage())
	require.Equal(t, "nl", Config{Site: SiteConfig{Language: "nl"}}.AcceptLanguage())
	require.Empty(t, Config{}.AcceptLanguage())
}

func TestDiscover(t *testing.T) {
	dir := t.TempDir()
	orig := SearchPaths
	t.Cleanup(func() { SearchPaths = orig })

	SearchPaths = []string{filepath.Join(dir, "missing"), dir}
	require.Empty(t, Discover())

	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9000\n"), 0o600))
	require.Equal(t, path, Discover())

	cfg, err := Load(Discover())
	require.NoError(t, err)
	require.Equal(t, 9000, cfg.Server.Port)
}
