// Package worker holds the per-item tasks the dispatcher runs: one SERP query
// walk, or one article extraction. Each task folds its outcome into the run
// metrics and emits progress.
package worker
