// Package metrics exposes Prometheus collectors for the crawler service.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder holds the crawler collectors registered on one registry.
type Recorder struct {
	gatherer prometheus.Gatherer

	pagesTotal           *prometheus.CounterVec
	bytesTotal           *prometheus.CounterVec
	denialsTotal         *prometheus.CounterVec
	postingsTotal        *prometheus.CounterVec
	runsTotal            *prometheus.CounterVec
	runDurationSeconds   prometheus.Histogram
	lastRunTimestamp     prometheus.Gauge
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	rateLimitDelaySecond *prometheus.HistogramVec
}

// New registers the collectors on a fresh registry.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return NewWithRegistry(reg, reg)
}

// NewWithRegistry registers the collectors on reg and serves them from g.
func NewWithRegistry(reg prometheus.Registerer, g prometheus.Gatherer) *Recorder {
	factory := promauto.With(reg)
	return &Recorder{
		gatherer: g,
		pagesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_pages_total",
				Help: "Total number of result pages fetched, labeled by site and outcome.",
			},
			[]string{"site", "outcome"},
		),
		bytesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_bytes_total",
				Help: "Total number of bytes fetched, labeled by site.",
			},
			[]string{"site"},
		),
		denialsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_denials_total",
				Help: "Result pages that carried a denial marker, labeled by reason.",
			},
			[]string{"reason"},
		),
		postingsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_postings_total",
				Help: "Job postings extracted, labeled by keyword.",
			},
			[]string{"keyword"},
		),
		runsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_runs_total",
				Help: "Completed runs, labeled by final status.",
			},
			[]string{"status"},
		),
		runDurationSeconds: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "crawler_run_duration_seconds",
				Help:    "Wall-clock duration of runs.",
				Buckets: []float64{10, 30, 60, 300, 600, 1800, 3600},
			},
		),
		lastRunTimestamp: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "crawler_last_run_timestamp_seconds",
				Help: "Unix time the last run finished.",
			},
		),
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		),
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		),
		rateLimitDelaySecond: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "crawler_rate_limit_delays_seconds",
				Help:    "Histogram of rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
		),
	}
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing the registered metrics.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{})
}

// ObservePage counts one fetched result page.
func (r *Recorder) ObservePage(site, outcome string, bytesFetched int) {
	sanitizedSite := SanitizeSite(site)
	r.pagesTotal.WithLabelValues(sanitizedSite, outcome).Inc()
	if bytesFetched > 0 {
		r.bytesTotal.WithLabelValues(sanitizedSite).Add(float64(bytesFetched))
	}
}

// ObserveDenial counts one denied page.
func (r *Recorder) ObserveDenial(reason string) {
	r.denialsTotal.WithLabelValues(reason).Inc()
}

// ObservePostings adds extracted postings for a keyword.
func (r *Recorder) ObservePostings(keyword string, n int) {
	if n > 0 {
		r.postingsTotal.WithLabelValues(keyword).Add(float64(n))
	}
}

// ObserveRun records the outcome of one run.
func (r *Recorder) ObserveRun(status string, start, end time.Time) {
	r.runsTotal.WithLabelValues(status).Inc()
	r.runDurationSeconds.Observe(end.Sub(start).Seconds())
	r.lastRunTimestamp.Set(float64(end.Unix()))
}

// ObserveHTTPRequest increments the HTTP request metrics.
func (r *Recorder) ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	r.httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	r.httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func (r *Recorder) ObserveRateLimitDelay(domain string, duration time.Duration) {
	r.rateLimitDelaySecond.WithLabelValues(domain).Observe(duration.Seconds())
}

// Middleware is a chi middleware that records HTTP request metrics.
func (r *Recorder) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, req)

		routePattern := "unknown"
		if rctx := chi.RouteContext(req.Context()); rctx != nil && rctx.RoutePattern() != "" {
			routePattern = rctx.RoutePattern()
		}
		r.ObserveHTTPRequest(req.Method, routePattern, ww.status, time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (sw *statusWriter) WriteHeader(code int) {
	sw.status = code
	sw.ResponseWriter.WriteHeader(code)
}
