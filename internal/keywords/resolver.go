// Package keywords resolves the tracked search keywords for a run.
package keywords

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/jobposting-crawler/internal/crawler"
)

// Default recency windows in days.
const (
	DefaultNewWindowDays     = 125
	DefaultTrackedWindowDays = 1
)

// Options tunes the recency windows.
type Options struct {
	NewWindowDays     int
	TrackedWindowDays int
}

// Resolver reads keywords and assigns their recency window.
type Resolver struct {
	source crawler.KeywordSource
	opts   Options
	logger *zap.Logger
}

// NewResolver constructs a Resolver. Zero windows fall back to the defaults.
func NewResolver(source crawler.KeywordSource, opts Options, logger *zap.Logger) *Resolver {
	if opts.NewWindowDays <= 0 {
		opts.NewWindowDays = DefaultNewWindowDays
	}
	if opts.TrackedWindowDays <= 0 {
		opts.TrackedWindowDays = DefaultTrackedWindowDays
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{source: source, opts: opts, logger: logger.Named("keywords")}
}

// Resolve returns every tracked keyword in store order. A store failure
// returns no partial list.
func (r *Resolver) Resolve(ctx context.Context) ([]crawler.SearchKeyword, error) {
	rows, err := r.source.ListKeywords(ctx)
	if err != nil {
		return nil, crawler.Persistence(err)
	}
	out := make([]crawler.SearchKeyword, 0, len(rows))
	for _, row := range rows {
		kw := crawler.SearchKeyword{
			Text:       row.Text,
			SearchID:   row.SearchID,
			State:      crawler.KeywordNew,
			WindowDays: r.opts.NewWindowDays,
		}
		if row.HasPostings {
			kw.State = crawler.KeywordTracked
			kw.WindowDays = r.opts.TrackedWindowDays
		}
		out = append(out, kw)
	}
	r.logger.Debug("keywords resolved", zap.Int("count", len(out)))
	return out, nil
}
