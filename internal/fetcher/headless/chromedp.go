// Package headless renders result pages in headless Chrome.
package headless

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/JakeFAU/jobposting-crawler/internal/crawler"
)

// Defaults for Config fields left zero.
const (
	DefaultNavigationTimeout = 45 * time.Second
	DefaultSettle            = 5 * time.Second
	DefaultWaitSelector      = "body"
)

// Config controls the behavior of the headless fetcher.
type Config struct {
	UserAgent         string
	NavigationTimeout time.Duration
	// WaitSelector must be ready before the DOM is captured.
	WaitSelector string
	// Settle is the extra wait after WaitSelector for client-side rendering.
	Settle time.Duration
	// ExecPath overrides the Chrome binary.
	ExecPath string
}

// Fetcher implements crawler.Fetcher using chromedp and headless Chrome.
type Fetcher struct {
	cfg         Config
	allocator   context.Context
	allocCancel context.CancelFunc
}

// NewChromedp creates a headless fetcher backed by chromedp. Chrome starts
// lazily on the first fetch.
func NewChromedp(cfg Config) (*Fetcher, error) {
	if cfg.Settle < 0 {
		return nil, fmt.Errorf("settle duration must be >= 0")
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = DefaultNavigationTimeout
	}
	if cfg.WaitSelector == "" {
		cfg.WaitSelector = DefaultWaitSelector
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
		chromedp.WindowSize(1366, 900),
	)
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Fetcher{
		cfg:         cfg,
		allocator:   allocCtx,
		allocCancel: allocCancel,
	}, nil
}

// Close cancels the allocator context and stops Chrome.
func (f *Fetcher) Close() {
	f.allocCancel()
}

// Fetch loads request.URL in a fresh tab and returns the rendered DOM once
// WaitSelector is ready and Settle has elapsed. An error status on the main
// document fails the fetch.
func (f *Fetcher) Fetch(ctx context.Context, request crawler.FetchRequest) (crawler.FetchResponse, error) {
	tabCtx, closeTab := chromedp.NewContext(f.allocator)
	defer closeTab()
	tabCtx, cancel := context.WithTimeout(tabCtx, f.cfg.NavigationTimeout)
	defer cancel()
	defer context.AfterFunc(ctx, cancel)()

	doc := &documentResponse{}
	chromedp.ListenTarget(tabCtx, doc.observe)

	var page renderedPage
	start := time.Now()
	if err := chromedp.Run(tabCtx, f.tasks(request, &page)); err != nil {
		if ctx.Err() != nil {
			return crawler.FetchResponse{}, fmt.Errorf("headless fetch canceled: %w", ctx.Err())
		}
		return crawler.FetchResponse{}, fmt.Errorf("chromedp run %s: %w", request.URL, err)
	}

	status, headers, finalURL := doc.result(request.URL, page.location)
	if status >= http.StatusBadRequest {
		return crawler.FetchResponse{}, fmt.Errorf("headless document status %d", status)
	}
	return crawler.FetchResponse{
		URL:          finalURL,
		StatusCode:   status,
		Headers:      headers,
		Body:         []byte(page.html),
		Duration:     time.Since(start),
		UsedHeadless: true,
	}, nil
}

type renderedPage struct {
	html     string
	location string
}

func (f *Fetcher) tasks(request crawler.FetchRequest, page *renderedPage) chromedp.Tasks {
	tasks := chromedp.Tasks{
		network.Enable(),
		chromedp.ActionFunc(func(ctx context.Context) error {
			if f.cfg.UserAgent == "" {
				return nil
			}
			return emulation.SetUserAgentOverride(f.cfg.UserAgent).Do(ctx)
		}),
		chromedp.ActionFunc(func(ctx context.Context) error {
			if len(request.Headers) == 0 {
				return nil
			}
			return network.SetExtraHTTPHeaders(extraHeaders(request.Headers)).Do(ctx)
		}),
		chromedp.Navigate(request.URL),
		chromedp.WaitReady(f.cfg.WaitSelector, chromedp.ByQuery),
	}
	if f.cfg.Settle > 0 {
		tasks = append(tasks, chromedp.Sleep(f.cfg.Settle))
	}
	return append(tasks,
		chromedp.Location(&page.location),
		chromedp.OuterHTML("html", &page.html, chromedp.ByQuery),
	)
}

// documentResponse records the main document response. Redirect hops
// overwrite each other, so the last hop wins.
type documentResponse struct {
	mu      sync.Mutex
	status  int
	headers http.Header
	url     string
}

func (d *documentResponse) observe(ev any) {
	resp, ok := ev.(*network.EventResponseReceived)
	if !ok || resp.Type != network.ResourceTypeDocument || resp.Response == nil {
		return
	}
	headers := headersFromNetwork(resp.Response.Headers)
	d.mu.Lock()
	defer d.mu.Unlock()
	d.status = int(resp.Response.Status)
	d.headers = headers
	d.url = resp.Response.URL
}

// result falls back to the tab location, then the requested URL, when no
// document response was seen. A missing status is reported as 200.
func (d *documentResponse) result(requestURL, location string) (int, http.Header, string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	status := d.status
	if status == 0 {
		status = http.StatusOK
	}
	headers := d.headers.Clone()
	if headers == nil {
		headers = http.Header{}
	}
	finalURL := d.url
	if finalURL == "" {
		finalURL = location
	}
	if finalURL == "" {
		finalURL = requestURL
	}
	return status, headers, finalURL
}

func headersFromNetwork(in network.Headers) http.Header {
	out := make(http.Header, len(in))
	for key, value := range in {
		if list, ok := value.([]any); ok {
			for _, v := range list {
				out.Add(key, fmt.Sprint(v))
			}
			continue
		}
		out.Add(key, fmt.Sprint(value))
	}
	return out
}

func extraHeaders(h http.Header) network.Headers {
	out := make(network.Headers, len(h))
	for key, values := range h {
		if len(values) == 0 {
			continue
		}
		// Chrome joins repeated headers itself.
		out[key] = strings.Join(values, ", ")
	}
	return out
}
