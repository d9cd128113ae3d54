// Package probe estimates the result volume of a keyword query.
package probe

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/jobposting-crawler/internal/crawler"
	"github.com/JakeFAU/jobposting-crawler/internal/parser"
)

// DefaultThreshold is the result count above which queries fan out.
const DefaultThreshold = 1000

// Options configures the probe.
type Options struct {
	Threshold    int
	FetchTimeout time.Duration
}

// Probe fetches the first result page of a query and reads its total count.
type Probe struct {
	fetcher crawler.Fetcher
	opts    Options
	logger  *zap.Logger
}

// New constructs a Probe.
func New(fetcher crawler.Fetcher, opts Options, logger *zap.Logger) *Probe {
	if opts.Threshold <= 0 {
		opts.Threshold = DefaultThreshold
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Probe{fetcher: fetcher, opts: opts, logger: logger.Named("probe")}
}

// HighVolume reports whether the query returns more than the threshold.
// A missing or unreadable count widget counts as low volume.
func (p *Probe) HighVolume(ctx context.Context, query crawler.RegionQuery) (bool, error) {
	fetchCtx := ctx
	if p.opts.FetchTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, p.opts.FetchTimeout)
		defer cancel()
	}
	resp, err := p.fetcher.Fetch(fetchCtx, crawler.FetchRequest{URL: query.URL})
	if err != nil {
		return false, crawler.Transport(fmt.Errorf("probe %s: %w", query.URL, err))
	}
	count, ok, err := parser.ResultCount(resp.Body)
	if err != nil {
		return false, crawler.Internal(fmt.Errorf("probe %s: %w", query.URL, err))
	}
	if !ok {
		p.logger.Debug("result count unavailable", zap.String("keyword", query.Keyword))
		return false, nil
	}
	high := count > p.opts.Threshold
	p.logger.Debug("result count",
		zap.String("keyword", query.Keyword),
		zap.Int("count", count),
		zap.Bool("high_volume", high),
	)
	return high, nil
}
