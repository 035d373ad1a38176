package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/press-release-collector/internal/progress"
)

// PrometheusSink exports run lifecycle metrics. Per-item counters live in the
// metrics package; this sink only tracks runs.
type PrometheusSink struct {
	runsStarted   *prometheus.CounterVec
	runsCompleted *prometheus.CounterVec
	runsRunning   prometheus.Gauge
	runRuntime    *prometheus.HistogramVec
	itemFailures  *prometheus.CounterVec

	tracker *runTracker
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "collector_runs_started_total",
			Help: "Total runs that have started partitioned by phase.",
		}, []string{"phase"}),
		runsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "collector_runs_completed_total",
			Help: "Total runs completed partitioned by phase and result.",
		}, []string{"phase", "result"}),
		runsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "collector_runs_running",
			Help: "Current number of running runs.",
		}),
		runRuntime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "collector_run_runtime_seconds",
			Help:    "Wall time per completed run.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 3600},
		}, []string{"phase", "result"}),
		itemFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "collector_item_failures_total",
			Help: "Items that ended in a failure record, by category.",
		}, []string{"phase", "category"}),
		tracker: newRunTracker(),
	}
	for _, c := range []prometheus.Collector{
		s.runsStarted,
		s.runsCompleted,
		s.runsRunning,
		s.runRuntime,
		s.itemFailures,
	} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors using the provided batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		phase := string(evt.Phase)
		switch evt.Stage {
		case progress.StageRunStart:
			s.runsStarted.WithLabelValues(phase).Inc()
			if s.tracker.start(evt.RunID) {
				s.runsRunning.Inc()
			}
		case progress.StageRunDone:
			s.finish(evt, "success")
		case progress.StageRunError:
			s.finish(evt, "error")
		case progress.StageItemFailed:
			s.itemFailures.WithLabelValues(phase, string(evt.Category)).Inc()
		}
	}
	return nil
}

func (s *PrometheusSink) finish(evt progress.Event, result string) {
	phase := string(evt.Phase)
	s.runsCompleted.WithLabelValues(phase, result).Inc()
	if evt.Dur > 0 {
		s.runRuntime.WithLabelValues(phase, result).Observe(evt.Dur.Seconds())
	}
	if s.tracker.complete(evt.RunID) {
		s.runsRunning.Dec()
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

type runTracker struct {
	mu      sync.Mutex
	running map[string]struct{}
}

func newRunTracker() *runTracker {
	return &runTracker{running: make(map[string]struct{})}
}

func (t *runTracker) start(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; ok {
		return false
	}
	t.running[id] = struct{}{}
	return true
}

func (t *runTracker) complete(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; !ok {
		return false
	}
	delete(t.running, id)
	return true
}
