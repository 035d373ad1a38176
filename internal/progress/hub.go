package progress

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Config tunes Hub buffering. Zero values take the defaults below.
type Config struct {
	// BufferSize is the event queue capacity.
	BufferSize int
	// MaxBatchEvents flushes a batch once it holds this many events.
	MaxBatchEvents int
	// MaxBatchWait flushes a non-empty batch at least this often.
	MaxBatchWait time.Duration
	// SinkTimeout bounds each Consume call.
	SinkTimeout time.Duration
	Logger      *zap.Logger
}

const (
	defaultBufferSize     = 1024
	defaultMaxBatchEvents = 200
	defaultMaxBatchWait   = 500 * time.Millisecond
	defaultSinkTimeout    = 10 * time.Second
	dropWarnInterval      = 5 * time.Second
)

// Hub queues events from workers and delivers them in batches to every sink
// from one goroutine. Emit never blocks: when the queue is full the event is
// counted as dropped. RUN_DONE and RUN_ERROR flush at once so a finished run
// is visible to readers without waiting for the batch timer.
type Hub struct {
	cfg    Config
	sinks  []Sink
	events chan Event
	quit   chan struct{}
	done   chan struct{}
	logger *zap.Logger

	closed      atomic.Bool
	dropped     atomic.Int64
	unreported  atomic.Int64
	lastDropLog atomic.Int64

	stopOnce sync.Once
	stopCtx  context.Context
}

// NewHub starts delivery to sinks. Nil sinks are ignored.
func NewHub(cfg Config, sinks ...Sink) *Hub {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaultBufferSize
	}
	if cfg.MaxBatchEvents <= 0 {
		cfg.MaxBatchEvents = defaultMaxBatchEvents
	}
	if cfg.MaxBatchWait <= 0 {
		cfg.MaxBatchWait = defaultMaxBatchWait
	}
	if cfg.SinkTimeout <= 0 {
		cfg.SinkTimeout = defaultSinkTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	h := &Hub{
		cfg:    cfg,
		events: make(chan Event, cfg.BufferSize),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
		logger: cfg.Logger,
	}
	for _, s := range sinks {
		if s != nil {
			h.sinks = append(h.sinks, s)
		}
	}
	go h.loop()
	return h
}

// Emit queues evt. Invalid events and events emitted after Close are
// discarded.
func (h *Hub) Emit(evt Event) {
	if h == nil || h.closed.Load() {
		return
	}
	if err := evt.Validate(); err != nil {
		h.logger.Debug("discarding invalid progress event", zap.String("stage", string(evt.Stage)), zap.Error(err))
		return
	}
	select {
	case h.events <- evt:
	default:
		h.dropped.Add(1)
		h.unreported.Add(1)
		h.warnDropped()
	}
}

// Dropped reports how many events were lost to a full queue since the Hub
// started.
func (h *Hub) Dropped() int64 {
	if h == nil {
		return 0
	}
	return h.dropped.Load()
}

func (h *Hub) warnDropped() {
	now := time.Now().UnixNano()
	last := h.lastDropLog.Load()
	if now-last < dropWarnInterval.Nanoseconds() || !h.lastDropLog.CompareAndSwap(last, now) {
		return
	}
	h.logger.Warn("progress queue full; events dropped",
		zap.Int64("dropped", h.unreported.Swap(0)),
		zap.Int64("dropped_total", h.dropped.Load()))
}

// Close stops intake and waits until queued events reach the sinks and the
// sinks are closed, or until ctx expires. Calling it again only waits.
func (h *Hub) Close(ctx context.Context) error {
	if h == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	h.stopOnce.Do(func() {
		h.closed.Store(true)
		h.stopCtx = ctx
		close(h.quit)
	})
	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for progress hub: %w", ctx.Err())
	}
}

func (h *Hub) loop() {
	defer close(h.done)
	ticker := time.NewTicker(h.cfg.MaxBatchWait)
	defer ticker.Stop()

	batch := make([]Event, 0, h.cfg.MaxBatchEvents)
	add := func(evt Event) {
		batch = append(batch, evt)
		if len(batch) >= h.cfg.MaxBatchEvents || evt.Stage.Terminal() {
			batch = h.deliver(batch)
		}
	}
	for {
		select {
		case evt := <-h.events:
			add(evt)
		case <-ticker.C:
			batch = h.deliver(batch)
		case <-h.quit:
			for {
				select {
				case evt := <-h.events:
					add(evt)
				default:
					h.deliver(batch)
					h.closeSinks()
					return
				}
			}
		}
	}
}

// deliver hands batch to every sink in order and returns it emptied for
// reuse. Sink errors are logged, never retried.
func (h *Hub) deliver(batch []Event) []Event {
	if len(batch) == 0 {
		return batch
	}
	out := make([]Event, len(batch))
	copy(out, batch)
	for _, s := range h.sinks {
		ctx, cancel := context.WithTimeout(context.Background(), h.cfg.SinkTimeout)
		if err := s.Consume(ctx, out); err != nil {
			h.logger.Warn("progress sink rejected batch",
				zap.String("sink", fmt.Sprintf("%T", s)),
				zap.Int("events", len(out)),
				zap.Error(err))
		}
		cancel()
	}
	return batch[:0]
}

func (h *Hub) closeSinks() {
	ctx := h.stopCtx
	if ctx == nil {
		ctx = context.Background()
	}
	for _, s := range h.sinks {
		if err := s.Close(ctx); err != nil {
			h.logger.Warn("progress sink close failed", zap.String("sink", fmt.Sprintf("%T", s)), zap.Error(err))
		}
	}
}
