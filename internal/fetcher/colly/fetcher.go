// Package collyfetcher implements Fetcher using gocolly.
package collyfetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/jobposting-crawler/internal/crawler"
)

// DefaultUserAgent mimics a desktop browser.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
	"(KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// Config controls collector behavior.
type Config struct {
	UserAgent     string
	RespectRobots bool
	Timeout       time.Duration
	// Headers are sent with every request before per-request headers.
	Headers http.Header
}

// BrowserHeaders returns the default headers of a Dutch desktop browser.
func BrowserHeaders() http.Header {
	return http.Header{
		"Accept":                    {"text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"},
		"Accept-Language":           {"nl-NL,nl;q=0.9,en-US;q=0.8,en;q=0.7"},
		"Cache-Control":             {"no-cache"},
		"Upgrade-Insecure-Requests": {"1"},
	}
}

// Fetcher implements crawler.Fetcher using the Colly collector.
type Fetcher struct {
	cfg  Config
	base *colly.Collector
}

// New builds a Fetcher. Result pages are revisited across probe and crawl, so
// the collector allows repeated URLs.
func New(cfg Config) *Fetcher {
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Headers == nil {
		cfg.Headers = BrowserHeaders()
	}
	c := colly.NewCollector(colly.Async(false), colly.AllowURLRevisit())
	c.WithTransport(newHTTPTransport())
	return &Fetcher{cfg: cfg, base: c}
}

// Fetch executes a single HTTP GET using Colly. Non-2xx responses are errors.
func (f *Fetcher) Fetch(ctx context.Context, request crawler.FetchRequest) (crawler.FetchResponse, error) {
	v := &visit{defaults: f.cfg.Headers, request: request, start: time.Now()}

	collector := f.base.Clone()
	// Requests carry ctx so an abandoned fetch is torn down with it.
	collector.Context = ctx
	collector.UserAgent = f.cfg.UserAgent
	collector.IgnoreRobotsTxt = !f.cfg.RespectRobots
	collector.SetRequestTimeout(f.cfg.Timeout)
	collector.OnRequest(v.onRequest)
	collector.OnResponse(v.onResponse)
	collector.OnError(v.onError)

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(request.URL)
	}()

	select {
	case <-ctx.Done():
		return crawler.FetchResponse{}, fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if v.err != nil {
			return crawler.FetchResponse{}, fmt.Errorf("colly response failed: %w", v.err)
		}
		if err != nil {
			return crawler.FetchResponse{}, fmt.Errorf("colly visit failed: %w", err)
		}
		return v.result, nil
	}
}

// visit collects the outcome of one collector run. Its fields are read only
// after Visit returns.
type visit struct {
	defaults http.Header
	request  crawler.FetchRequest
	start    time.Time

	result crawler.FetchResponse
	err    error
}

func (v *visit) onRequest(r *colly.Request) {
	setHeaders(r, v.defaults)
	setHeaders(r, v.request.Headers)
}

func (v *visit) onResponse(r *colly.Response) {
	v.result = crawler.FetchResponse{
		URL:        r.Request.URL.String(),
		StatusCode: r.StatusCode,
		Headers:    r.Headers.Clone(),
		Body:       append([]byte(nil), r.Body...),
		Duration:   time.Since(v.start),
	}
}

func (v *visit) onError(r *colly.Response, err error) {
	if r != nil && r.StatusCode != 0 {
		v.err = fmt.Errorf("status %d: %w", r.StatusCode, err)
		return
	}
	v.err = err
}

// setHeaders replaces the request values of every key in headers.
func setHeaders(r *colly.Request, headers http.Header) {
	for key, values := range headers {
		r.Headers.Del(key)
		for _, val := range values {
			r.Headers.Add(key, val)
		}
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
