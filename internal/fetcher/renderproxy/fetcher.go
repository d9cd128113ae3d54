// Package renderproxy fetches pages through a JavaScript-rendering scraping
// proxy. The proxy request itself goes through another crawler.Fetcher.
package renderproxy

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/JakeFAU/jobposting-crawler/internal/crawler"
)

// Proxy request defaults.
const (
	DefaultEndpoint  = "https://api.webscrapingapi.com/v1"
	DefaultDevice    = "desktop"
	DefaultProxyType = "datacenter"
	DefaultWaitUntil = "domcontentloaded"
	DefaultWaitFor   = 5 * time.Second
)

// Config describes the proxy request shape.
type Config struct {
	Endpoint  string
	APIKey    string
	Device    string
	ProxyType string
	WaitUntil string
	WaitFor   time.Duration
}

func (c *Config) applyDefaults() {
	if c.Endpoint == "" {
		c.Endpoint = DefaultEndpoint
	}
	if c.Device == "" {
		c.Device = DefaultDevice
	}
	if c.ProxyType == "" {
		c.ProxyType = DefaultProxyType
	}
	if c.WaitUntil == "" {
		c.WaitUntil = DefaultWaitUntil
	}
	if c.WaitFor <= 0 {
		c.WaitFor = DefaultWaitFor
	}
}

// Fetcher rewrites each request into a proxy request.
type Fetcher struct {
	cfg  Config
	next crawler.Fetcher
}

// New builds a proxy fetcher on top of next.
func New(cfg Config, next crawler.Fetcher) (*Fetcher, error) {
	if next == nil {
		return nil, errors.New("render proxy requires a transport fetcher")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("render proxy api key is empty")
	}
	cfg.applyDefaults()
	if _, err := url.Parse(cfg.Endpoint); err != nil {
		return nil, fmt.Errorf("parse render proxy endpoint: %w", err)
	}
	return &Fetcher{cfg: cfg, next: next}, nil
}

// ProxyURL builds the proxy request for target. The target is html-unescaped
// and query-unescaped before being encoded as the url parameter.
func (f *Fetcher) ProxyURL(target string) string {
	decoded := html.UnescapeString(target)
	if unquoted, err := url.QueryUnescape(decoded); err == nil {
		decoded = unquoted
	}

	params := []string{
		"url=" + url.QueryEscape(decoded),
		"api_key=" + url.QueryEscape(f.cfg.APIKey),
		"device=" + url.QueryEscape(f.cfg.Device),
		"proxy_type=" + url.QueryEscape(f.cfg.ProxyType),
		"render_js=1",
		"wait_until=" + url.QueryEscape(f.cfg.WaitUntil),
		"wait_for=" + strconv.FormatInt(f.cfg.WaitFor.Milliseconds(), 10),
	}
	sep := "?"
	if strings.Contains(f.cfg.Endpoint, "?") {
		sep = "&"
	}
	return f.cfg.Endpoint + sep + strings.Join(params, "&")
}

// Fetch requests target through the proxy. The response reports the target
// URL so relative links resolve against the job board.
func (f *Fetcher) Fetch(ctx context.Context, request crawler.FetchRequest) (crawler.FetchResponse, error) {
	resp, err := f.next.Fetch(ctx, crawler.FetchRequest{
		URL:     f.ProxyURL(request.URL),
		Headers: request.Headers,
	})
	if err != nil {
		return crawler.FetchResponse{}, fmt.Errorf("render proxy fetch %s: %w", request.URL, redact(err, f.cfg.APIKey))
	}
	resp.URL = request.URL
	resp.UsedHeadless = true
	return resp, nil
}

// redact keeps the api key out of error messages.
func redact(err error, key string) error {
	msg := err.Error()
	if key == "" || !strings.Contains(msg, key) {
		return err
	}
	return &redactedError{msg: strings.ReplaceAll(msg, key, "REDACTED"), err: err}
}

type redactedError struct {
	msg string
	err error
}

func (e *redactedError) Error() string { return e.msg }

func (e *redactedError) Unwrap() error { return e.err }
