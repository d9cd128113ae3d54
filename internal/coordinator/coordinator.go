// Package coordinator runs the keyword crawl pipeline end to end.
package coordinator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/jobposting-crawler/internal/crawler"
	"github.com/JakeFAU/jobposting-crawler/internal/pagination"
)

// KeywordResolver lists the keywords of a run.
type KeywordResolver interface {
	Resolve(ctx context.Context) ([]crawler.SearchKeyword, error)
}

// VolumeProbe decides whether a keyword query needs regional fan-out.
type VolumeProbe interface {
	HighVolume(ctx context.Context, query crawler.RegionQuery) (bool, error)
}

// Planner builds region queries for a keyword.
type Planner interface {
	Base(kw crawler.SearchKeyword) (crawler.RegionQuery, error)
	Plan(kw crawler.SearchKeyword, highVolume bool) ([]crawler.RegionQuery, error)
}

// PageCrawler walks the result pages of one region query.
type PageCrawler interface {
	Crawl(ctx context.Context, query crawler.RegionQuery) (pagination.Result, error)
}

// Store is the persistence the coordinator writes through.
type Store interface {
	crawler.SchemaManager
	crawler.PostingSink
	crawler.RunLogSink
}

// RunObserver receives run-level measurements.
type RunObserver interface {
	ObservePostings(keyword string, n int)
	ObserveRun(status string, start, end time.Time)
}

// Deps bundles the collaborators of a Coordinator.
type Deps struct {
	Store     Store
	Resolver  KeywordResolver
	Probe     VolumeProbe
	Planner   Planner
	Pages     PageCrawler
	Clock     crawler.Clock
	IDs       crawler.IDGenerator
	Publisher crawler.Publisher
	Observer  RunObserver
}

// Options configures a Coordinator.
type Options struct {
	NotifyTopic string
}

// Coordinator runs keywords strictly one after another.
type Coordinator struct {
	deps   Deps
	opts   Options
	logger *zap.Logger

	mu   sync.RWMutex
	last *crawler.RunReport
}

// New constructs a Coordinator.
func New(deps Deps, opts Options, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{deps: deps, opts: opts, logger: logger.Named("coordinator")}
}

// Run executes one full crawl. The run log row is written only after every
// keyword has been processed; a fatal failure returns a *crawler.RunError and
// writes no row.
func (c *Coordinator) Run(ctx context.Context) (crawler.RunReport, error) {
	start := c.deps.Clock.Now().UTC()
	runID, err := c.deps.IDs.NewID()
	if err != nil {
		return c.fail(ctx, crawler.RunReport{Start: start}, "", fmt.Errorf("generate run id: %w", err))
	}
	report := crawler.RunReport{RunID: runID, Start: start}
	logger := c.logger.With(zap.String("run_id", runID))
	logger.Info("run started")

	if err := c.deps.Store.EnsureSchema(ctx); err != nil {
		return c.fail(ctx, report, "", crawler.Persistence(fmt.Errorf("ensure schema: %w", err)))
	}

	keywords, err := c.deps.Resolver.Resolve(ctx)
	if err != nil {
		return c.fail(ctx, report, "", err)
	}
	logger.Info("keywords resolved", zap.Int("count", len(keywords)))

	for _, kw := range keywords {
		kwReport, err := c.runKeyword(ctx, kw, logger)
		report.Keywords = append(report.Keywords, kwReport)
		if err != nil {
			return c.fail(ctx, report, kw.Text, err)
		}
	}

	report.Status = finalStatus(report.Keywords)
	report.End = c.deps.Clock.Now().UTC()
	entry := crawler.RunLogEntry{
		RunID:   runID,
		Start:   report.Start,
		End:     report.End,
		RunDate: report.End.Truncate(24 * time.Hour),
		Status:  report.Status,
	}
	if err := c.deps.Store.SaveRunLog(ctx, entry); err != nil {
		return c.fail(ctx, report, "", crawler.Persistence(fmt.Errorf("save run log: %w", err)))
	}

	postings, denied := report.Totals()
	logger.Info("run finished",
		zap.String("status", string(report.Status)),
		zap.Int("keywords", len(report.Keywords)),
		zap.Int("postings", postings),
		zap.Int("denied_regions", denied),
		zap.Duration("duration", report.End.Sub(report.Start)),
	)
	c.finish(ctx, report, logger)
	return report, nil
}

// LastReport returns the report of the most recent run, if any.
func (c *Coordinator) LastReport() (crawler.RunReport, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.last == nil {
		return crawler.RunReport{}, false
	}
	return *c.last, true
}

func (c *Coordinator) runKeyword(
	ctx context.Context,
	kw crawler.SearchKeyword,
	logger *zap.Logger,
) (crawler.KeywordReport, error) {
	kwReport := crawler.KeywordReport{Keyword: kw.Text, SearchID: kw.SearchID, WindowDays: kw.WindowDays}
	logger = logger.With(zap.String("keyword", kw.Text), zap.Int("window_days", kw.WindowDays))

	base, err := c.deps.Planner.Base(kw)
	if err != nil {
		return kwReport, crawler.Internal(err)
	}
	high, err := c.deps.Probe.HighVolume(ctx, base)
	if err != nil {
		return kwReport, err
	}
	kwReport.HighVolume = high

	queries, err := c.deps.Planner.Plan(kw, high)
	if err != nil {
		return kwReport, crawler.Internal(err)
	}
	kwReport.Regions = len(queries)

	var postings []crawler.JobPosting
	for _, q := range queries {
		res, err := c.deps.Pages.Crawl(ctx, q)
		kwReport.Pages += res.Pages
		if err != nil {
			return kwReport, err
		}
		if res.Denied() {
			kwReport.Denied++
		}
		postings = append(postings, res.Postings...)
	}
	kwReport.Postings = len(postings)
	for _, p := range postings {
		if p.Incomplete() {
			kwReport.Incomplete++
		}
	}
	if kwReport.Incomplete > 0 {
		logger.Warn("postings missing identifying fields", zap.Int("count", kwReport.Incomplete))
	}

	if len(postings) > 0 {
		stored, err := c.deps.Store.SavePostings(ctx, kw, postings)
		if err != nil {
			return kwReport, crawler.Persistence(fmt.Errorf("save postings: %w", err))
		}
		kwReport.Stored = stored
	}
	if c.deps.Observer != nil {
		c.deps.Observer.ObservePostings(kw.Text, len(postings))
	}
	logger.Info(fmt.Sprintf("finished scraping %d page(s), added %d job(s)", kwReport.Pages, kwReport.Stored),
		zap.Bool("high_volume", high),
		zap.Int("regions", kwReport.Regions),
		zap.Int("denied_regions", kwReport.Denied),
	)
	return kwReport, nil
}

func (c *Coordinator) fail(ctx context.Context, report crawler.RunReport, keyword string, err error) (crawler.RunReport, error) {
	runErr := crawler.NewRunError(keyword, err)
	report.Status = runErr.Status
	report.End = c.deps.Clock.Now().UTC()
	report.Error = runErr.Error()
	c.logger.Error("run aborted",
		zap.String("run_id", report.RunID),
		zap.String("status", string(runErr.Status)),
		zap.String("keyword", keyword),
		zap.Error(err),
	)
	c.finish(context.WithoutCancel(ctx), report, c.logger)
	return report, runErr
}

func (c *Coordinator) finish(ctx context.Context, report crawler.RunReport, logger *zap.Logger) {
	c.mu.Lock()
	c.last = &report
	c.mu.Unlock()

	if c.deps.Observer != nil {
		c.deps.Observer.ObserveRun(string(report.Status), report.Start, report.End)
	}
	if c.deps.Publisher == nil || c.opts.NotifyTopic == "" {
		return
	}
	msgID, err := c.deps.Publisher.Publish(ctx, c.opts.NotifyTopic, report)
	if err != nil {
		logger.Warn("publish run report", zap.String("topic", c.opts.NotifyTopic), zap.Error(err))
		return
	}
	logger.Debug("run report published", zap.String("message_id", msgID))
}

// finalStatus applies denied_by_target over field_extraction_incomplete over
// succeeded.
func finalStatus(keywords []crawler.KeywordReport) crawler.RunStatus {
	var denied, incomplete bool
	for _, kw := range keywords {
		denied = denied || kw.Denied > 0
		incomplete = incomplete || kw.Incomplete > 0
	}
	switch {
	case denied:
		return crawler.StatusDeniedByTarget
	case incomplete:
		return crawler.StatusFieldExtractionIncomplete
	default:
		return crawler.StatusSucceeded
	}
}
