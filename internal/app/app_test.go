package app_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/jobposting-crawler/internal/app"
	"github.com/JakeFAU/jobposting-crawler/internal/clock/system"
	"github.com/JakeFAU/jobposting-crawler/internal/config"
	"github.com/JakeFAU/jobposting-crawler/internal/crawler"
	pubmemory "github.com/JakeFAU/jobposting-crawler/internal/publisher/memory"
	"github.com/JakeFAU/jobposting-crawler/internal/storage/memory"
)

// MockResolver mocks secrets.Resolver.
type MockResolver struct {
	mock.Mock
}

// Resolve satisfies secrets.Resolver for the mock.
func (m *MockResolver) Resolve(ctx context.Context, name string) (string, error) {
	args := m.Called(ctx, name)
	return args.String(0), args.Error(1)
}

// resultPage renders a two-page result listing for keyword; start selects the page.
func resultPage(start string) string {
	next := `<nav><a aria-label="Next Page" href="/jobs?q=golang&fromage=125&sort=date&start=10">Next</a></nav>`
	prefix := "a"
	if start == "10" {
		next, prefix = "", "b"
	}
	return fmt.Sprintf(`<html><body>
<div class="jobsearch-JobCountAndSortPane-jobCount"><span>12 vacatures</span></div>
<table><tr><td id="resultsCol"><ul class="jobsearch-ResultsList">
<li><h2 class="jobTitle"><a class="jcs-JobTitle" data-jk="%[1]s1" href="/rc/clk?jk=%[1]s1">Go developer</a></h2>
<span class="companyName">Acme</span><div class="companyLocation">Utrecht</div></li>
<li><div class="mosaic-zone">sponsored</div></li>
<li><h2 class="jobTitle"><a class="jcs-JobTitle" data-jk="%[1]s2" href="/rc/clk?jk=%[1]s2">Backend engineer</a></h2></li>
</ul></td></tr></table>%[2]s</body></html>`, prefix, next)
}

func jobBoard(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/jobs", func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprint(w, resultPage(r.URL.Query().Get("start")))
	})
	// Render proxy: serves the page named by the url parameter.
	mux.HandleFunc("/v1", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("api_key") != "proxy-key" || r.URL.Query().Get("render_js") != "1" {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		target, err := url.Parse(r.URL.Query().Get("url"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		_, _ = fmt.Fprint(w, resultPage(target.Query().Get("start")))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(t *testing.T, baseURL string) config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Site.BaseURL = baseURL
	cfg.Store.Driver = "memory"
	cfg.Crawler.RateLimitRPS = 0
	cfg.Crawler.FetchTimeout = 5 * time.Second
	cfg.Probe.FetchTimeout = 5 * time.Second
	cfg.Notify = config.NotifyConfig{ProjectID: "demo", Topic: "crawler-runs"}
	cfg.Secrets.EnvFiles = nil
	return cfg
}

func runApp(t *testing.T, cfg config.Config, opts ...app.Option) (*memory.Store, *pubmemory.Publisher, crawler.RunReport) {
	t.Helper()
	store := memory.NewStore(false, crawler.KeywordRow{SearchID: 1, Text: "golang"})
	pub := pubmemory.New()
	opts = append(opts,
		app.WithStore(store),
		app.WithPublisher(pub),
		app.WithClock(system.Fixed{At: time.Date(2024, 6, 1, 6, 0, 0, 0, time.UTC)}),
	)
	a, err := app.New(context.Background(), cfg, zap.NewNop(), opts...)
	require.NoError(t, err)
	t.Cleanup(a.Close)

	report, err := a.Coordinator().Run(context.Background())
	require.NoError(t, err)
	return store, pub, report
}

func TestApp_RunsAgainstCollyBackend(t *testing.T) {
	t.Parallel()

	srv := jobBoard(t)
	store, pub, report := runApp(t, testConfig(t, srv.URL))

	assert.Equal(t, crawler.StatusSucceeded, report.Status)
	require.Len(t, report.Keywords, 1)
	assert.False(t, report.Keywords[0].HighVolume)
	assert.Equal(t, 2, report.Keywords[0].Pages)

	postings := store.Postings()
	require.Len(t, postings, 4)
	assert.Equal(t, "a1", *postings[0].JobCode)
	assert.Equal(t, srv.URL+"/rc/clk?jk=a1", *postings[0].JobURL)
	assert.Equal(t, "Acme", *postings[0].CompanyName)
	assert.Nil(t, postings[1].CompanyName)
	assert.Equal(t, "b2", *postings[3].JobCode)
	assert.Equal(t, "2024-06-01", postings[0].ScrapeDate)

	require.Len(t, store.RunLogs(), 1)
	require.Len(t, pub.Messages(), 1)
	assert.Equal(t, "succeeded", pub.Messages()[0].Attributes["status"])
}

func TestApp_RunsThroughRenderProxy(t *testing.T) {
	t.Parallel()

	srv := jobBoard(t)
	cfg := testConfig(t, srv.URL)
	cfg.Fetcher.Backend = "renderproxy"
	cfg.Fetcher.RenderProxy.Endpoint = srv.URL + "/v1"

	resolver := &MockResolver{}
	resolver.On("Resolve", mock.Anything, cfg.Fetcher.RenderProxy.APIKeySecret).Return("proxy-key", nil).Once()

	store, _, report := runApp(t, cfg, app.WithSecrets(resolver))

	assert.Equal(t, crawler.StatusSucceeded, report.Status)
	assert.Len(t, store.Postings(), 4)
	resolver.AssertExpectations(t)
}

func TestApp_SecretFailureAbortsBeforeConnecting(t *testing.T) {
	t.Parallel()

	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Secrets.EnvFiles = nil

	resolver := &MockResolver{}
	resolver.On("Resolve", mock.Anything, cfg.Store.DSNSecret).
		Return("", fmt.Errorf("%w: %s is not set", crawler.ErrSecret, cfg.Store.DSNSecret)).Once()

	_, err = app.New(context.Background(), cfg, zap.NewNop(), app.WithSecrets(resolver))
	require.Error(t, err)
	assert.True(t, errors.Is(err, crawler.ErrSecret))
	assert.Equal(t, crawler.StatusSecretFailure, crawler.StatusFor(err))
	resolver.AssertExpectations(t)
}

func TestApp_OpsHandler(t *testing.T) {
	t.Parallel()

	srv := jobBoard(t)
	cfg := testConfig(t, srv.URL)
	store := memory.NewStore(false)
	a, err := app.New(context.Background(), cfg, zap.NewNop(), app.WithStore(store), app.WithPublisher(pubmemory.New()))
	require.NoError(t, err)
	defer a.Close()

	h := a.OpsHandler(nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/runs/last", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	_, err = a.Coordinator().Run(context.Background())
	require.NoError(t, err)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/runs/last", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, rec.Body.String(), "crawler_runs_total")
}

func TestApp_MemoryDriverSeedsKeywords(t *testing.T) {
	t.Parallel()

	srv := jobBoard(t)
	cfg := testConfig(t, srv.URL)
	cfg.Keywords.Seed = []string{"golang"}
	a, err := app.New(context.Background(), cfg, zap.NewNop(), app.WithPublisher(pubmemory.New()))
	require.NoError(t, err)
	defer a.Close()

	report, err := a.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Keywords, 1)
	assert.Equal(t, int64(1), report.Keywords[0].SearchID)
	assert.Equal(t, 4, report.Keywords[0].Stored)
}
