// Package pagination walks the result pages of one region query.
package pagination

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/jobposting-crawler/internal/crawler"
)

// Strategy selects how the next page is addressed.
type Strategy string

// Pagination strategies.
const (
	StrategyLink   Strategy = "link"
	StrategyOffset Strategy = "offset"
)

// Defaults applied when Options leaves a field zero.
const (
	DefaultMaxPages     = 100
	DefaultPageSize     = 10
	DefaultFetchTimeout = 60 * time.Second
)

// State is a node of the pagination state machine.
type State int

// Pagination states. Denied and Exhausted are terminal.
const (
	StateFetching State = iota
	StateParsing
	StateContinuing
	StateDenied
	StateExhausted
)

func (s State) String() string {
	switch s {
	case StateFetching:
		return "fetching"
	case StateParsing:
		return "parsing"
	case StateContinuing:
		return "continuing"
	case StateDenied:
		return "denied"
	case StateExhausted:
		return "exhausted"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// PageParser turns one fetched page into postings and a continuation.
type PageParser interface {
	Parse(body []byte, query crawler.RegionQuery, scraped time.Time) (crawler.PageResult, error)
}

// Observer receives per-page measurements.
type Observer interface {
	ObservePage(site, outcome string, bytesFetched int)
	ObserveDenial(reason string)
}

// Options configures a Crawler.
type Options struct {
	Strategy     Strategy
	MaxPages     int
	PageSize     int
	FetchTimeout time.Duration
	Headers      map[string]string
}

// Result is the terminal outcome of a crawl.
type Result struct {
	Query    crawler.RegionQuery
	Postings []crawler.JobPosting
	Pages    int
	Final    State
	Denial   crawler.DenialReason
	Capped   bool
	Looped   bool
	Archived string
}

// Denied reports whether the crawl ended on a denial marker.
func (r Result) Denied() bool {
	return r.Final == StateDenied
}

// Crawler drives a Fetcher and a PageParser across result pages.
type Crawler struct {
	fetcher  crawler.Fetcher
	parser   PageParser
	clock    crawler.Clock
	archive  crawler.BlobStore
	hasher   crawler.Hasher
	observer Observer
	opts     Options
	logger   *zap.Logger
}

// Option customises optional collaborators.
type Option func(*Crawler)

// WithArchive stores denied pages under denied/ in the blob store.
func WithArchive(store crawler.BlobStore, hasher crawler.Hasher) Option {
	return func(c *Crawler) {
		c.archive = store
		c.hasher = hasher
	}
}

// WithObserver records page metrics.
func WithObserver(o Observer) Option {
	return func(c *Crawler) {
		c.observer = o
	}
}

// New constructs a Crawler.
func New(
	fetcher crawler.Fetcher,
	parser PageParser,
	clock crawler.Clock,
	opts Options,
	logger *zap.Logger,
	options ...Option,
) *Crawler {
	if opts.Strategy == "" {
		opts.Strategy = StrategyLink
	}
	if opts.MaxPages <= 0 {
		opts.MaxPages = DefaultMaxPages
	}
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = DefaultFetchTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Crawler{
		fetcher: fetcher,
		parser:  parser,
		clock:   clock,
		opts:    opts,
		logger:  logger.Named("pagination"),
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// Crawl walks the pages of query until the results are exhausted or the
// provider denies the request. Postings of a denied page are discarded;
// postings of earlier pages are kept. Fetch and parse errors abort the crawl.
func (c *Crawler) Crawl(ctx context.Context, query crawler.RegionQuery) (Result, error) {
	res := Result{Query: query}
	cursor := crawler.Cursor{Kind: crawler.CursorOffset}
	if c.opts.Strategy == StrategyLink {
		cursor = crawler.Cursor{Kind: crawler.CursorURL, URL: query.URL}
	}
	visited := map[string]struct{}{}
	logger := c.logger.With(zap.String("keyword", query.Keyword), zap.String("region", query.Region))

	state := StateFetching
	var (
		resp crawler.FetchResponse
		page crawler.PageResult
		next *crawler.Cursor
	)
	for {
		switch state {
		case StateFetching:
			if res.Pages >= c.opts.MaxPages {
				logger.Warn("page cap reached", zap.Int("max_pages", c.opts.MaxPages))
				res.Capped = true
				state = StateExhausted
				continue
			}
			visited[cursor.Key()] = struct{}{}
			target, err := c.target(query, cursor)
			if err != nil {
				return res, crawler.Internal(err)
			}
			resp, err = c.fetch(ctx, target)
			if err != nil {
				return res, crawler.Transport(fmt.Errorf("fetch %s: %w", target, err))
			}
			res.Pages++
			state = StateParsing

		case StateParsing:
			var err error
			page, err = c.parser.Parse(resp.Body, query, c.clock.Now())
			if err != nil {
				return res, crawler.Internal(fmt.Errorf("parse %s: %w", resp.URL, err))
			}
			if page.Denied() {
				state = StateDenied
				continue
			}
			c.observe(resp, "ok")
			res.Postings = append(res.Postings, page.Postings...)
			next = c.advance(cursor, page.Next)
			if next == nil {
				state = StateExhausted
				continue
			}
			if _, seen := visited[next.Key()]; seen {
				logger.Warn("pagination loop detected", zap.String("cursor", next.Key()))
				res.Looped = true
				state = StateExhausted
				continue
			}
			state = StateContinuing

		case StateContinuing:
			cursor = *next
			state = StateFetching

		case StateDenied:
			res.Final = StateDenied
			res.Denial = page.Denial
			c.observe(resp, "denied")
			if c.observer != nil {
				c.observer.ObserveDenial(string(page.Denial))
			}
			res.Archived = c.archivePage(ctx, resp, logger)
			logger.Warn("access denied by target",
				zap.String("reason", string(page.Denial)),
				zap.String("url", resp.URL),
				zap.Int("page", res.Pages),
				zap.Int("postings_kept", len(res.Postings)),
			)
			return res, nil

		case StateExhausted:
			res.Final = StateExhausted
			logger.Debug("region exhausted", zap.Int("pages", res.Pages), zap.Int("postings", len(res.Postings)))
			return res, nil
		}
	}
}

func (c *Crawler) target(query crawler.RegionQuery, cursor crawler.Cursor) (string, error) {
	if cursor.Kind == crawler.CursorURL {
		return cursor.URL, nil
	}
	return crawler.WithOffset(query.URL, cursor.Offset)
}

func (c *Crawler) advance(current crawler.Cursor, found *crawler.Cursor) *crawler.Cursor {
	if found == nil {
		return nil
	}
	if c.opts.Strategy == StrategyOffset {
		return &crawler.Cursor{Kind: crawler.CursorOffset, Offset: current.Offset + c.opts.PageSize}
	}
	return found
}

func (c *Crawler) fetch(ctx context.Context, target string) (crawler.FetchResponse, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, c.opts.FetchTimeout)
	defer cancel()
	req := crawler.FetchRequest{URL: target}
	if len(c.opts.Headers) > 0 {
		req.Headers = make(http.Header, len(c.opts.Headers))
		for k, v := range c.opts.Headers {
			req.Headers.Set(k, v)
		}
	}
	resp, err := c.fetcher.Fetch(fetchCtx, req)
	if err != nil {
		return crawler.FetchResponse{}, err
	}
	if resp.URL == "" {
		resp.URL = target
	}
	return resp, nil
}

func (c *Crawler) observe(resp crawler.FetchResponse, outcome string) {
	if c.observer == nil {
		return
	}
	bytesFetched := len(resp.Body)
	if resp.FromCache {
		bytesFetched = 0
	}
	c.observer.ObservePage(resp.URL, outcome, bytesFetched)
}

func (c *Crawler) archivePage(ctx context.Context, resp crawler.FetchResponse, logger *zap.Logger) string {
	if c.archive == nil || c.hasher == nil {
		return ""
	}
	digest, err := c.hasher.Hash([]byte(resp.URL))
	if err != nil {
		logger.Warn("hash denied page url", zap.Error(err))
		return ""
	}
	path := fmt.Sprintf("denied/%s/%s.html", c.clock.Now().UTC().Format("2006-01-02"), digest)
	uri, err := c.archive.PutObject(ctx, path, "text/html; charset=utf-8", bytes.NewReader(resp.Body))
	if err != nil {
		logger.Warn("archive denied page", zap.String("path", path), zap.Error(err))
		return ""
	}
	return uri
}
