// Package api hosts the HTTP server for operator access. Notable routes:
//   - GET /healthz for liveness probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/runs/serp and /v1/runs/content to run a pipeline synchronously.
//   - GET /v1/runs and /v1/runs/{run_id} for run history via progress.RunReader.
package api
