// Package main hosts the job crawler entrypoint.
//
// Architecture overview:
//   - Keywords: the keyword resolver reads newly added keywords (wide date window) and tracked keywords
//     (one-day window) from the store, dropping tracked keywords that are also new.
//   - Probe & planning: each keyword is probed with one search request; above the volume threshold the
//     region planner fans the keyword out over the configured regions.
//   - Fetch pipeline: the Colly fetcher (or the render proxy, or Chromedp) sits behind a per-host rate
//     limiter and an optional Redis page cache. Pages that look like unrendered shells are promoted to the
//     headless fetcher when promotion is enabled.
//   - Pagination & parsing: the pagination crawler follows "next" links (or numeric offsets) until the
//     listing is exhausted; the goquery parser extracts postings and skips sponsored cards.
//   - Persistence & fanout: postings and a per-run log row land in Postgres (or the memory store);
//     denied pages can be archived to local disk or GCS; a run summary is published to Pub/Sub when a
//     topic is configured.
//   - Configuration & plumbing: Viper reads config.yaml and JOBCRAWLER_* env vars; zap provides
//     structured logging; Prometheus metrics are exported on /metrics.
//
// Commands:
//   - jobcrawler run [--json]: one crawl, non-zero exit when the run aborts.
//   - jobcrawler serve: cron-scheduled crawls plus /healthz, /readyz, /metrics, GET /v1/runs/last and
//     POST /v1/runs on the configured port. SIGINT/SIGTERM drain the in-flight run before exit.
//
// Quick checklist:
//   - Secrets: JOBCRAWLER_DATABASE_DSN (postgres driver) and WEBSCRAPINGAPI_KEY (renderproxy backend),
//     from the environment or a .env file.
//   - Run locally: go run ./cmd/jobcrawler run --config config.yaml
package main
