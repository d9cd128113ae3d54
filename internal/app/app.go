// Package app initializes and holds long-lived application services, acting as
// a dependency injection container for the crawl pipeline.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	gpubsub "cloud.google.com/go/pubsub"
	gstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/jobposting-crawler/internal/api"
	"github.com/JakeFAU/jobposting-crawler/internal/clock/system"
	"github.com/JakeFAU/jobposting-crawler/internal/config"
	"github.com/JakeFAU/jobposting-crawler/internal/coordinator"
	"github.com/JakeFAU/jobposting-crawler/internal/crawler"
	"github.com/JakeFAU/jobposting-crawler/internal/fetcher"
	cachefetcher "github.com/JakeFAU/jobposting-crawler/internal/fetcher/cache"
	collyfetcher "github.com/JakeFAU/jobposting-crawler/internal/fetcher/colly"
	headlessfetcher "github.com/JakeFAU/jobposting-crawler/internal/fetcher/headless"
	"github.com/JakeFAU/jobposting-crawler/internal/fetcher/renderproxy"
	"github.com/JakeFAU/jobposting-crawler/internal/hash/sha256"
	"github.com/JakeFAU/jobposting-crawler/internal/headless/detector"
	"github.com/JakeFAU/jobposting-crawler/internal/id/uuid"
	"github.com/JakeFAU/jobposting-crawler/internal/keywords"
	"github.com/JakeFAU/jobposting-crawler/internal/metrics"
	"github.com/JakeFAU/jobposting-crawler/internal/pagination"
	"github.com/JakeFAU/jobposting-crawler/internal/parser"
	"github.com/JakeFAU/jobposting-crawler/internal/policy/ratelimit"
	"github.com/JakeFAU/jobposting-crawler/internal/probe"
	pubsubpublisher "github.com/JakeFAU/jobposting-crawler/internal/publisher/pubsub"
	"github.com/JakeFAU/jobposting-crawler/internal/regions"
	"github.com/JakeFAU/jobposting-crawler/internal/secrets"
	"github.com/JakeFAU/jobposting-crawler/internal/storage/gcs"
	"github.com/JakeFAU/jobposting-crawler/internal/storage/local"
	"github.com/JakeFAU/jobposting-crawler/internal/storage/memory"
	"github.com/JakeFAU/jobposting-crawler/internal/storage/postgres"
)

// Store is the persistence the application runs against.
type Store interface {
	crawler.Store
	Ping(ctx context.Context) error
}

// App holds the shared, long-lived services. It is built once per process
// and closed when the command finishes.
type App struct {
	cfg         config.Config
	logger      *zap.Logger
	metrics     *metrics.Recorder
	store       Store
	coordinator *coordinator.Coordinator
	closers     []func() error
}

type overrides struct {
	store     Store
	fetcher   crawler.Fetcher
	secrets   secrets.Resolver
	publisher crawler.Publisher
	clock     crawler.Clock
	archive   crawler.BlobStore
}

// Option replaces a collaborator, mainly for tests.
type Option func(*overrides)

// WithStore uses store instead of the configured driver.
func WithStore(store Store) Option {
	return func(o *overrides) { o.store = store }
}

// WithFetcher uses f as the base fetcher. Rate limiting and the cache still wrap it.
func WithFetcher(f crawler.Fetcher) Option {
	return func(o *overrides) { o.fetcher = f }
}

// WithSecrets uses r instead of the environment resolver.
func WithSecrets(r secrets.Resolver) Option {
	return func(o *overrides) { o.secrets = r }
}

// WithPublisher uses p instead of Pub/Sub.
func WithPublisher(p crawler.Publisher) Option {
	return func(o *overrides) { o.publisher = p }
}

// WithClock pins the clock.
func WithClock(c crawler.Clock) Option {
	return func(o *overrides) { o.clock = c }
}

// WithArchive stores denied pages in b.
func WithArchive(b crawler.BlobStore) Option {
	return func(o *overrides) { o.archive = b }
}

// New builds every service from cfg. Secrets are resolved before any network
// or database activity; a failure there wraps crawler.ErrSecret.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	var o overrides
	for _, opt := range opts {
		opt(&o)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{cfg: cfg, logger: logger, metrics: metrics.New()}

	creds, err := a.resolveSecrets(ctx, o.secrets)
	if err != nil {
		return nil, err
	}

	if err := a.build(ctx, o, creds); err != nil {
		a.Close()
		return nil, err
	}
	logger.Info("application services initialized",
		zap.String("fetcher", cfg.Fetcher.Backend),
		zap.String("store", cfg.Store.Driver),
		zap.String("archive", cfg.Archive.Backend),
	)
	return a, nil
}

type credentials struct {
	dsn      string
	proxyKey string
}

func (a *App) resolveSecrets(ctx context.Context, resolver secrets.Resolver) (credentials, error) {
	var creds credentials
	needDSN := a.cfg.Store.Driver == "postgres"
	needKey := a.cfg.Fetcher.Backend == "renderproxy"
	if !needDSN && !needKey {
		return creds, nil
	}
	if resolver == nil {
		env, err := secrets.NewEnvResolver(a.cfg.Secrets.EnvFiles...)
		if err != nil {
			return creds, err
		}
		resolver = env
	}
	var err error
	if needDSN {
		if creds.dsn, err = resolver.Resolve(ctx, a.cfg.Store.DSNSecret); err != nil {
			return creds, fmt.Errorf("resolve store dsn: %w", err)
		}
	}
	if needKey {
		if creds.proxyKey, err = resolver.Resolve(ctx, a.cfg.Fetcher.RenderProxy.APIKeySecret); err != nil {
			return creds, fmt.Errorf("resolve render proxy key: %w", err)
		}
	}
	return creds, nil
}

func (a *App) build(ctx context.Context, o overrides, creds credentials) error {
	cfg := a.cfg
	clock := o.clock
	if clock == nil {
		clock = system.New()
	}
	hasher := sha256.New()

	store, err := a.buildStore(ctx, o.store, creds.dsn)
	if err != nil {
		return err
	}
	a.store = store

	fetch, err := a.buildFetcher(ctx, o.fetcher, creds.proxyKey, hasher)
	if err != nil {
		return err
	}

	archive, err := a.buildArchive(ctx, o.archive)
	if err != nil {
		return err
	}

	publisher, err := a.buildPublisher(ctx, o.publisher)
	if err != nil {
		return err
	}

	pageParser := parser.New(parser.Options{
		BaseURL:           cfg.Site.BaseURL,
		LegacyApostrophes: cfg.Parser.LegacyApostrophes,
	})
	pageOpts := []pagination.Option{pagination.WithObserver(a.metrics)}
	if archive != nil {
		pageOpts = append(pageOpts, pagination.WithArchive(archive, hasher))
	}
	pages := pagination.New(fetch, pageParser, clock, pagination.Options{
		Strategy:     pagination.Strategy(cfg.Crawler.Pagination),
		MaxPages:     cfg.Crawler.MaxPages,
		PageSize:     cfg.Crawler.PageSize,
		FetchTimeout: cfg.Crawler.FetchTimeout,
	}, a.logger, pageOpts...)

	var regionList []string
	if len(cfg.Site.Regions) > 0 {
		regionList = cfg.Site.Regions
	}

	a.coordinator = coordinator.New(coordinator.Deps{
		Store: store,
		Resolver: keywords.NewResolver(store, keywords.Options{
			NewWindowDays:     cfg.Keywords.NewWindowDays,
			TrackedWindowDays: cfg.Keywords.TrackedWindowDays,
		}, a.logger),
		Probe: probe.New(fetch, probe.Options{
			Threshold:    cfg.Probe.Threshold,
			FetchTimeout: cfg.Probe.FetchTimeout,
		}, a.logger),
		Planner:   regions.NewPlanner(cfg.Site.BaseURL, regionList),
		Pages:     pages,
		Clock:     clock,
		IDs:       uuid.New(),
		Publisher: publisher,
		Observer:  a.metrics,
	}, coordinator.Options{NotifyTopic: cfg.Notify.Topic}, a.logger)
	return nil
}

func (a *App) buildStore(ctx context.Context, override Store, dsn string) (Store, error) {
	if override != nil {
		return override, nil
	}
	switch a.cfg.Store.Driver {
	case "memory":
		a.logger.Info("using in-memory store, postings are discarded on exit",
			zap.Int("seed_keywords", len(a.cfg.Keywords.Seed)))
		rows := make([]crawler.KeywordRow, 0, len(a.cfg.Keywords.Seed))
		for i, text := range a.cfg.Keywords.Seed {
			rows = append(rows, crawler.KeywordRow{SearchID: int64(i + 1), Text: text})
		}
		return memory.NewStore(a.cfg.Store.DedupeJobCode, rows...), nil
	case "postgres":
		store, err := postgres.NewStore(ctx, postgres.Config{
			DSN:           dsn,
			Schema:        a.cfg.Store.Schema,
			DedupeJobCode: a.cfg.Store.DedupeJobCode,
			MaxConns:      a.cfg.Store.MaxConns,
		})
		if err != nil {
			return nil, crawler.Persistence(err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown store driver: %s", a.cfg.Store.Driver)
	}
}

func (a *App) buildFetcher(
	ctx context.Context,
	override crawler.Fetcher,
	proxyKey string,
	hasher *sha256.Hasher,
) (crawler.Fetcher, error) {
	cfg := a.cfg
	base := override
	if base == nil {
		headers := collyfetcher.BrowserHeaders()
		if lang := cfg.AcceptLanguage(); lang != "" {
			headers.Set("Accept-Language", lang)
		}
		static := collyfetcher.New(collyfetcher.Config{
			UserAgent:     cfg.Crawler.UserAgent,
			RespectRobots: cfg.Crawler.RespectRobots,
			Timeout:       cfg.Crawler.FetchTimeout,
			Headers:       headers,
		})

		switch cfg.Fetcher.Backend {
		case "colly":
			base = static
			if cfg.Fetcher.Promote {
				chrome, err := a.newHeadless()
				if err != nil {
					return nil, err
				}
				base = fetcher.NewPromoting(static, chrome, detector.NewHeuristic(cfg.Fetcher.PromoteThreshold), a.logger)
			}
		case "headless":
			chrome, err := a.newHeadless()
			if err != nil {
				return nil, err
			}
			base = chrome
		case "renderproxy":
			proxy, err := renderproxy.New(renderproxy.Config{
				Endpoint: cfg.Fetcher.RenderProxy.Endpoint,
				APIKey:   proxyKey,
				WaitFor:  cfg.Fetcher.RenderProxy.WaitFor,
			}, static)
			if err != nil {
				return nil, err
			}
			base = proxy
		default:
			return nil, fmt.Errorf("unknown fetcher backend: %s", cfg.Fetcher.Backend)
		}
	}

	limiter := ratelimit.New(ratelimit.Config{
		RPS:   cfg.Crawler.RateLimitRPS,
		Burst: cfg.Crawler.RateLimitBurst,
	}, a.metrics)
	var fetch crawler.Fetcher = fetcher.NewRateLimited(base, limiter)

	if cfg.Cache.Enabled {
		client, err := cachefetcher.Connect(ctx, cfg.Cache.URL)
		if err != nil {
			return nil, crawler.Transport(err)
		}
		a.closers = append(a.closers, client.Close)
		fetch = cachefetcher.New(client, fetch, hasher, cfg.Cache.TTL, a.logger)
	}
	return fetch, nil
}

func (a *App) newHeadless() (*headlessfetcher.Fetcher, error) {
	h := a.cfg.Fetcher.Headless
	chrome, err := headlessfetcher.NewChromedp(headlessfetcher.Config{
		UserAgent:         a.cfg.Crawler.UserAgent,
		NavigationTimeout: h.NavTimeout,
		WaitSelector:      h.WaitSelector,
		Settle:            h.Settle,
		ExecPath:          h.ExecPath,
	})
	if err != nil {
		return nil, fmt.Errorf("headless fetcher: %w", err)
	}
	a.closers = append(a.closers, func() error {
		chrome.Close()
		return nil
	})
	return chrome, nil
}

func (a *App) buildArchive(ctx context.Context, override crawler.BlobStore) (crawler.BlobStore, error) {
	if override != nil {
		return override, nil
	}
	switch a.cfg.Archive.Backend {
	case "", "none":
		return nil, nil
	case "local":
		store, err := local.New(local.Config{Dir: a.cfg.Archive.Dir})
		if err != nil {
			return nil, fmt.Errorf("local archive: %w", err)
		}
		return store, nil
	case "gcs":
		client, err := gstorage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client: %w", err)
		}
		a.closers = append(a.closers, client.Close)
		store, err := gcs.New(client, gcs.Config{Bucket: a.cfg.Archive.Bucket, Prefix: a.cfg.Archive.Prefix})
		if err != nil {
			return nil, fmt.Errorf("gcs archive: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown archive backend: %s", a.cfg.Archive.Backend)
	}
}

func (a *App) buildPublisher(ctx context.Context, override crawler.Publisher) (crawler.Publisher, error) {
	if override != nil {
		return override, nil
	}
	if a.cfg.Notify.Topic == "" {
		return nil, nil
	}
	client, err := gpubsub.NewClient(ctx, a.cfg.Notify.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub client: %w", err)
	}
	pub := pubsubpublisher.New(client)
	a.closers = append(a.closers, pub.Close)
	return pub, nil
}

// Run executes one crawl.
func (a *App) Run(ctx context.Context) (crawler.RunReport, error) {
	return a.coordinator.Run(ctx)
}

// Coordinator returns the run coordinator.
func (a *App) Coordinator() *coordinator.Coordinator {
	return a.coordinator
}

// Logger returns the shared logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Config returns the loaded configuration.
func (a *App) Config() config.Config {
	return a.cfg
}

// Metrics returns the Prometheus recorder.
func (a *App) Metrics() *metrics.Recorder {
	return a.metrics
}

// OpsHandler builds the ops HTTP handler. trigger may be nil.
func (a *App) OpsHandler(trigger api.Trigger) http.Handler {
	opts := api.Options{Metrics: a.metrics, Ready: a.store.Ping}
	if trigger != nil {
		opts.Trigger = trigger
	}
	return api.NewServer(a.coordinator, opts, a.logger).Handler()
}

// Close shuts down every service in reverse order of construction.
func (a *App) Close() {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if a.store != nil {
		a.store.Close()
	}
	if err := errors.Join(errs...); err != nil {
		a.logger.Warn("error closing application services", zap.Error(err))
	}
}
