// Package dispatcher runs one task per input item on a fixed pool of worker
// slots and gathers the terminal results.
package dispatcher

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/press-release-collector/internal/metrics"
	"github.com/JakeFAU/press-release-collector/internal/retry"
)

// Config controls the pool.
type Config struct {
	// Workers is the number of concurrently running tasks.
	Workers int
	// CourtesyDelay is how long a slot idles after a successful task before
	// taking new work.
	CourtesyDelay time.Duration
	// PauseAfterFailure applies CourtesyDelay after failed tasks too.
	PauseAfterFailure bool
}

// Progress is a live count of finished tasks.
type Progress struct {
	Total     int `json:"total"`
	Done      int `json:"done"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// ProgressFunc observes progress. It is called from a single goroutine.
type ProgressFunc func(Progress)

// Task processes one item and reports whether it succeeded. Tasks own their
// retries; the dispatcher only waits for the terminal result.
type Task[T, R any] func(ctx context.Context, item T) (R, bool)

// Summary is the outcome of Run.
type Summary[R any] struct {
	// Results holds finished tasks in input order.
	Results []R
	// Indices maps each entry of Results back to its input position.
	Indices  []int
	Progress Progress
	// Skipped counts items never started because the run was canceled.
	Skipped  int
	Canceled bool
}

// Dispatcher holds pool settings shared across runs.
type Dispatcher struct {
	cfg        Config
	logger     *zap.Logger
	onProgress ProgressFunc
	sleep      retry.SleepFunc
}

// New creates a Dispatcher.
func New(cfg Config, logger *zap.Logger) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{cfg: cfg, logger: logger, sleep: retry.Sleep}
}

// WithProgress registers a progress observer.
func (d *Dispatcher) WithProgress(fn ProgressFunc) *Dispatcher {
	d.onProgress = fn
	return d
}

// Workers returns the slot count.
func (d *Dispatcher) Workers() int {
	return d.cfg.Workers
}

type job[T any] struct {
	index int
	item  T
}

type outcome[R any] struct {
	index   int
	value   R
	ok      bool
	skipped bool
}

// Run executes task for every item with at most Workers in flight. Results are
// collected as they complete and returned grouped by input order. When ctx is
// done, undispatched items are skipped and whatever finished is returned.
func Run[T, R any](ctx context.Context, d *Dispatcher, items []T, task Task[T, R]) Summary[R] {
	jobs := make(chan job[T])
	results := make(chan outcome[R], d.cfg.Workers)

	go func() {
		defer close(jobs)
		for i, item := range items {
			select {
			case jobs <- job[T]{index: i, item: item}:
			case <-ctx.Done():
				return
			}
		}
	}()

	var wg sync.WaitGroup
	for w := 0; w < d.cfg.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			runSlot(ctx, d, jobs, results, task)
		}()
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	slots := make([]*outcome[R], len(items))
	progress := Progress{Total: len(items)}
	for res := range results {
		if res.skipped {
			continue
		}
		r := res
		slots[res.index] = &r
		progress.Done++
		if res.ok {
			progress.Succeeded++
		} else {
			progress.Failed++
		}
		if d.onProgress != nil {
			d.onProgress(progress)
		}
	}

	summary := Summary[R]{Progress: progress, Canceled: ctx.Err() != nil}
	for i, slot := range slots {
		if slot == nil {
			summary.Skipped++
			continue
		}
		summary.Results = append(summary.Results, slot.value)
		summary.Indices = append(summary.Indices, i)
	}
	if summary.Skipped > 0 {
		d.logger.Warn("run ended before all items were started",
			zap.Int("skipped", summary.Skipped),
			zap.Int("done", progress.Done),
			zap.Error(ctx.Err()),
		)
	}
	return summary
}

// runSlot is one worker slot. Jobs received after cancellation are reported
// as skipped without running.
func runSlot[T, R any](ctx context.Context, d *Dispatcher, jobs <-chan job[T], results chan<- outcome[R], task Task[T, R]) {
	for j := range jobs {
		if ctx.Err() != nil {
			results <- outcome[R]{index: j.index, skipped: true}
			continue
		}
		metrics.IncActiveWorkers()
		value, ok := task(ctx, j.item)
		metrics.DecActiveWorkers()
		results <- outcome[R]{index: j.index, value: value, ok: ok}
		if d.cfg.CourtesyDelay <= 0 || (!ok && !d.cfg.PauseAfterFailure) {
			continue
		}
		if err := d.sleep(ctx, d.cfg.CourtesyDelay); err != nil {
			// Drain the remaining jobs as skipped.
			for rest := range jobs {
				results <- outcome[R]{index: rest.index, skipped: true}
			}
			return
		}
	}
}
