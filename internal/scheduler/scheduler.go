// Package scheduler runs the crawl periodically on a cron spec. Runs never
// overlap: a tick or trigger that arrives while a run is in progress is skipped.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/JakeFAU/jobposting-crawler/internal/crawler"
)

// DefaultSpec runs the crawl once a day.
const DefaultSpec = "@every 24h"

// Runner executes one full crawl.
type Runner interface {
	Run(ctx context.Context) (crawler.RunReport, error)
}

// Options configures a Scheduler.
type Options struct {
	Spec       string
	RunOnStart bool
}

// Scheduler wraps robfig/cron around a Runner.
type Scheduler struct {
	cron   *cron.Cron
	runner Runner
	opts   Options
	logger *zap.Logger

	running atomic.Bool
	wg      sync.WaitGroup

	mu      sync.Mutex
	baseCtx context.Context
}

// New parses the cron expression and builds a Scheduler.
func New(runner Runner, opts Options, logger *zap.Logger) (*Scheduler, error) {
	if opts.Spec == "" {
		opts.Spec = DefaultSpec
	}
	if _, err := cron.ParseStandard(opts.Spec); err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", opts.Spec, err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("scheduler")
	cronLog := cronLogger{sugar: logger.Sugar()}
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(cronLog),
			cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
		),
		runner:  runner,
		opts:    opts,
		logger:  logger,
		baseCtx: context.Background(),
	}, nil
}

// Run registers the job, optionally fires one run immediately, and blocks
// until ctx is canceled. It waits for an in-flight run before returning.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	s.baseCtx = ctx
	s.mu.Unlock()

	if _, err := s.cron.AddFunc(s.opts.Spec, func() { s.runOnce(ctx, "schedule") }); err != nil {
		return fmt.Errorf("cron.AddFunc: %w", err)
	}
	s.cron.Start()
	s.logger.Info("scheduler started", zap.String("spec", s.opts.Spec))

	if s.opts.RunOnStart {
		s.TriggerRun()
	}

	<-ctx.Done()
	<-s.cron.Stop().Done()
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
	return nil
}

// TriggerRun starts a run in the background unless one is in progress.
func (s *Scheduler) TriggerRun() bool {
	if s.running.Load() {
		return false
	}
	s.mu.Lock()
	ctx := s.baseCtx
	s.mu.Unlock()

	started := make(chan bool, 1)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runGuarded(ctx, "trigger", started)
	}()
	return <-started
}

// Running reports whether a run is in progress.
func (s *Scheduler) Running() bool {
	return s.running.Load()
}

func (s *Scheduler) runOnce(ctx context.Context, source string) {
	s.runGuarded(ctx, source, nil)
}

func (s *Scheduler) runGuarded(ctx context.Context, source string, started chan<- bool) {
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Info("run skipped, previous run still in progress", zap.String("source", source))
		if started != nil {
			started <- false
		}
		return
	}
	defer s.running.Store(false)
	if started != nil {
		started <- true
	}

	report, err := s.runner.Run(ctx)
	if err != nil {
		s.logger.Error("scheduled run failed",
			zap.String("source", source),
			zap.String("run_id", report.RunID),
			zap.String("status", string(crawler.StatusFor(err))),
			zap.Error(err),
		)
		return
	}
	postings, denied := report.Totals()
	s.logger.Info("scheduled run finished",
		zap.String("source", source),
		zap.String("run_id", report.RunID),
		zap.String("status", string(report.Status)),
		zap.Int("postings", postings),
		zap.Int("denied", denied),
	)
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	sugar *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.sugar.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.sugar.Errorw(msg, append(keysAndValues, "error", err)...)
}
