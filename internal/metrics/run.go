package metrics

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/JakeFAU/press-release-collector/internal/collector"
)

// RunMetrics accumulates the outcome of one run. Every mutation takes the
// single lock; contention is negligible next to network latency.
type RunMetrics struct {
	mu         sync.Mutex
	phase      collector.Phase
	total      int
	successful int
	failed     int
	attempts   int
	categories map[collector.Category]int
	strategies map[string]int
	durations  []time.Duration
	failures   []collector.FailureRecord
	startedAt  time.Time
	finishedAt time.Time
	now        func() time.Time
}

// Snapshot is a point-in-time copy of RunMetrics.
type Snapshot struct {
	Phase      collector.Phase            `json:"phase"`
	Total      int                        `json:"total"`
	Successful int                        `json:"successful"`
	Failed     int                        `json:"failed"`
	Attempts   int                        `json:"attempts"`
	Categories map[collector.Category]int `json:"failure_categories"`
	Strategies map[string]int             `json:"strategies"`
	StartedAt  time.Time                  `json:"started_at"`
	FinishedAt time.Time                  `json:"finished_at,omitempty"`
	Elapsed    time.Duration              `json:"elapsed_ns"`
	AvgItem    time.Duration              `json:"avg_item_ns"`
	MaxItem    time.Duration              `json:"max_item_ns"`
	Failures   []collector.FailureRecord  `json:"-"`
}

// SuccessRate returns successful/total as a percentage.
func (s Snapshot) SuccessRate() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Successful) / float64(s.Total) * 100
}

// Throughput returns finished items per second.
func (s Snapshot) Throughput() float64 {
	if s.Elapsed <= 0 {
		return 0
	}
	return float64(s.Total) / s.Elapsed.Seconds()
}

// NewRunMetrics starts a run clock. now may be nil.
func NewRunMetrics(phase collector.Phase, now func() time.Time) *RunMetrics {
	if now == nil {
		now = time.Now
	}
	return &RunMetrics{
		phase:      phase,
		categories: make(map[collector.Category]int),
		strategies: make(map[string]int),
		startedAt:  now(),
		now:        now,
	}
}

// RecordAttempt folds one ephemeral attempt into the counters.
func (m *RunMetrics) RecordAttempt(a collector.FetchAttempt) {
	m.mu.Lock()
	m.attempts++
	m.mu.Unlock()
	ObserveAttempt(a.Step, string(a.Category))
}

// RecordSuccess records a finished item. strategy is empty for SERP queries.
func (m *RunMetrics) RecordSuccess(strategy string, d time.Duration) {
	m.mu.Lock()
	m.total++
	m.successful++
	if strategy != "" {
		m.strategies[strategy]++
	}
	m.durations = append(m.durations, d)
	m.mu.Unlock()

	ObserveItem(string(m.phase), "success", d)
	if strategy != "" {
		ObserveStrategySuccess(strategy)
	}
}

// RecordFailure records a terminal failure.
func (m *RunMetrics) RecordFailure(rec collector.FailureRecord, d time.Duration) {
	m.mu.Lock()
	m.total++
	m.failed++
	m.categories[rec.Category]++
	m.failures = append(m.failures, rec)
	m.durations = append(m.durations, d)
	m.mu.Unlock()

	ObserveItem(string(m.phase), string(rec.Category), d)
}

// Finish freezes the elapsed time. Later calls are no-ops.
func (m *RunMetrics) Finish() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.finishedAt.IsZero() {
		m.finishedAt = m.now()
	}
}

// Snapshot copies the current state. Safe while tasks are still running.
func (m *RunMetrics) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Snapshot{
		Phase:      m.phase,
		Total:      m.total,
		Successful: m.successful,
		Failed:     m.failed,
		Attempts:   m.attempts,
		Categories: make(map[collector.Category]int, len(m.categories)),
		Strategies: make(map[string]int, len(m.strategies)),
		StartedAt:  m.startedAt,
		FinishedAt: m.finishedAt,
		Failures:   append([]collector.FailureRecord(nil), m.failures...),
	}
	for k, v := range m.categories {
		s.Categories[k] = v
	}
	for k, v := range m.strategies {
		s.Strategies[k] = v
	}
	end := m.finishedAt
	if end.IsZero() {
		end = m.now()
	}
	s.Elapsed = end.Sub(m.startedAt)
	var sum time.Duration
	for _, d := range m.durations {
		sum += d
		if d > s.MaxItem {
			s.MaxItem = d
		}
	}
	if len(m.durations) > 0 {
		s.AvgItem = sum / time.Duration(len(m.durations))
	}
	return s
}

// GenerateReport renders a human-readable summary of the current snapshot.
func (m *RunMetrics) GenerateReport() string {
	s := m.Snapshot()
	var b strings.Builder
	fmt.Fprintf(&b, "%s run report\n", strings.ToUpper(string(s.Phase)))
	fmt.Fprintf(&b, "  total:        %d\n", s.Total)
	fmt.Fprintf(&b, "  successful:   %d (%.1f%%)\n", s.Successful, s.SuccessRate())
	fmt.Fprintf(&b, "  failed:       %d\n", s.Failed)
	fmt.Fprintf(&b, "  attempts:     %d\n", s.Attempts)
	fmt.Fprintf(&b, "  elapsed:      %s\n", s.Elapsed.Round(time.Millisecond))
	fmt.Fprintf(&b, "  throughput:   %.2f items/s\n", s.Throughput())
	fmt.Fprintf(&b, "  avg per item: %s (max %s)\n", s.AvgItem.Round(time.Millisecond), s.MaxItem.Round(time.Millisecond))
	if len(s.Strategies) > 0 {
		b.WriteString("  by strategy:\n")
		for _, name := range sortedKeys(s.Strategies) {
			fmt.Fprintf(&b, "    %-14s %d\n", name, s.Strategies[name])
		}
	}
	if len(s.Categories) > 0 {
		b.WriteString("  failures by category:\n")
		categories := make(map[string]int, len(s.Categories))
		for k, v := range s.Categories {
			categories[string(k)] = v
		}
		for _, name := range sortedKeys(categories) {
			fmt.Fprintf(&b, "    %-20s %d\n", name, categories[name])
		}
	}
	return b.String()
}

// SaveErrorLog writes every FailureRecord to sink. With no failures it does
// nothing and returns 0.
func (m *RunMetrics) SaveErrorLog(ctx context.Context, sink collector.FailureSink, runID string) (int, error) {
	s := m.Snapshot()
	if s.Failed == 0 {
		return 0, nil
	}
	if sink == nil {
		return 0, fmt.Errorf("save error log: no failure sink configured")
	}
	if err := sink.WriteFailures(ctx, runID, s.Failures); err != nil {
		return 0, fmt.Errorf("save error log: %w", err)
	}
	return len(s.Failures), nil
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
