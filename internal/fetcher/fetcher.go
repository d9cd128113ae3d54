// Package fetcher composes crawler.Fetcher implementations with rate limiting
// and headless promotion.
package fetcher

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/jobposting-crawler/internal/crawler"
)

// Waiter blocks until a request to rawURL may proceed.
type Waiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// RateLimited delays every fetch until the waiter admits it.
type RateLimited struct {
	next   crawler.Fetcher
	waiter Waiter
}

// NewRateLimited wraps next with waiter.
func NewRateLimited(next crawler.Fetcher, waiter Waiter) *RateLimited {
	return &RateLimited{next: next, waiter: waiter}
}

// Fetch waits for a token and delegates.
func (f *RateLimited) Fetch(ctx context.Context, request crawler.FetchRequest) (crawler.FetchResponse, error) {
	if err := f.waiter.Wait(ctx, request.URL); err != nil {
		return crawler.FetchResponse{}, err
	}
	resp, err := f.next.Fetch(ctx, request)
	if err != nil {
		return crawler.FetchResponse{}, fmt.Errorf("rate limited fetch: %w", err)
	}
	return resp, nil
}

// Promoting fetches statically first and re-fetches through the headless
// fetcher when the detector flags the response.
type Promoting struct {
	static   crawler.Fetcher
	headless crawler.Fetcher
	detector crawler.HeadlessDetector
	logger   *zap.Logger
}

// NewPromoting builds a promoting fetcher.
func NewPromoting(
	static, headless crawler.Fetcher,
	detector crawler.HeadlessDetector,
	logger *zap.Logger,
) *Promoting {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Promoting{
		static:   static,
		headless: headless,
		detector: detector,
		logger:   logger.Named("promote"),
	}
}

// Fetch returns the static response unless promotion succeeds. A failed
// promotion falls back to the static response.
func (f *Promoting) Fetch(ctx context.Context, request crawler.FetchRequest) (crawler.FetchResponse, error) {
	resp, err := f.static.Fetch(ctx, request)
	if err != nil {
		return crawler.FetchResponse{}, fmt.Errorf("static fetch: %w", err)
	}
	if f.headless == nil || f.detector == nil || !f.detector.ShouldPromote(resp) {
		return resp, nil
	}

	f.logger.Debug("promoting to headless", zap.String("url", request.URL), zap.Int("bytes", len(resp.Body)))
	rendered, err := f.headless.Fetch(ctx, request)
	if err != nil {
		f.logger.Warn("headless promotion failed", zap.String("url", request.URL), zap.Error(err))
		return resp, nil
	}
	rendered.UsedHeadless = true
	return rendered, nil
}
