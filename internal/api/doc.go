// Package api hosts the ops HTTP server. Routes:
//   - GET /healthz and /readyz for probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/runs/last for the report of the most recent run.
//   - POST /v1/runs to start a run outside the schedule.
package api
