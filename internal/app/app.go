// Package app builds the collection engine from configuration and holds the
// long-lived services shared by the CLI and the HTTP API.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/JakeFAU/press-release-collector/internal/clock/system"
	"github.com/JakeFAU/press-release-collector/internal/collector"
	"github.com/JakeFAU/press-release-collector/internal/config"
	"github.com/JakeFAU/press-release-collector/internal/dedup"
	"github.com/JakeFAU/press-release-collector/internal/extract"
	collyfetcher "github.com/JakeFAU/press-release-collector/internal/fetcher/colly"
	"github.com/JakeFAU/press-release-collector/internal/fetcher/headless"
	"github.com/JakeFAU/press-release-collector/internal/fetcher/httpclient"
	"github.com/JakeFAU/press-release-collector/internal/fetcher/stealth"
	"github.com/JakeFAU/press-release-collector/internal/id/uuid"
	"github.com/JakeFAU/press-release-collector/internal/metrics"
	"github.com/JakeFAU/press-release-collector/internal/policy/ratelimit"
	"github.com/JakeFAU/press-release-collector/internal/progress"
	"github.com/JakeFAU/press-release-collector/internal/progress/sinks"
	pubsubpublisher "github.com/JakeFAU/press-release-collector/internal/publisher/pubsub"
	"github.com/JakeFAU/press-release-collector/internal/retry"
	"github.com/JakeFAU/press-release-collector/internal/storage"
	"github.com/JakeFAU/press-release-collector/internal/storage/gcs"
	"github.com/JakeFAU/press-release-collector/internal/storage/local"
	"github.com/JakeFAU/press-release-collector/internal/storage/memory"
	"github.com/JakeFAU/press-release-collector/internal/storage/postgres"
)

// RunStore persists run lifecycles and serves them back to the API.
type RunStore interface {
	progress.RunRepository
	progress.RunReader
}

// Deps are the collaborators an App runs with. New fills them from
// configuration; tests construct them directly.
type Deps struct {
	// SERPFetcher fetches result pages, normally through the proxy.
	SERPFetcher collector.Fetcher
	// Strategies is the ordered extraction chain.
	Strategies []extract.Strategy
	Sink       collector.RecordSink
	Runs       RunStore
	// Publisher is optional.
	Publisher collector.Publisher
	// Dedup is optional.
	Dedup *dedup.Tracker
	Clock collector.Clock
	IDs   collector.IDGenerator
	// Sleep overrides backoff and courtesy waits.
	Sleep retry.SleepFunc
	// Registerer receives the progress collectors. Nil skips the Prometheus sink.
	Registerer prometheus.Registerer
}

// App runs SERP and content pipelines. It is safe to run several pipelines
// concurrently; each gets its own run ID and metrics.
type App struct {
	cfg        config.Config
	logger     *zap.Logger
	serp       collector.Fetcher
	strategies []extract.Strategy
	sink       collector.RecordSink
	runs       RunStore
	publisher  collector.Publisher
	dedup      *dedup.Tracker
	clock      collector.Clock
	ids        collector.IDGenerator
	policy     *retry.Policy
	sleep      retry.SleepFunc
	hub        *progress.Hub
	closers    []func() error
}

// New builds every collaborator named by cfg and returns a ready App. It fails
// fast on any collaborator that cannot be initialized.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	logger.Info("initializing collector services")

	var closers []func() error
	fail := func(err error) (*App, error) {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i]()
		}
		return nil, err
	}

	limiter := ratelimit.New(ratelimit.Config{
		PerHostRPS: cfg.Scraper.PerHostRPS,
		Burst:      cfg.Scraper.PerHostBurst,
		Observer:   metrics.ObserveRateLimitDelay,
	})

	serpClient, err := httpclient.New(httpclient.Config{
		Timeout:      cfg.RequestTimeout(),
		UserAgent:    cfg.Scraper.UserAgent,
		HTTPProxy:    cfg.HTTPProxy(),
		HTTPSProxy:   cfg.HTTPSProxy(),
		MaxBodyBytes: cfg.HTTP.MaxBodyBytes,
	}, logger.Named("serp_http"))
	if err != nil {
		return fail(fmt.Errorf("serp http client: %w", err))
	}

	strategies, stratClosers, err := buildStrategies(cfg, limiter, logger)
	closers = append(closers, stratClosers...)
	if err != nil {
		return fail(err)
	}

	deps := Deps{
		SERPFetcher: serpClient,
		Strategies:  strategies,
		Clock:       system.New(),
		IDs:         uuid.New(),
		Registerer:  prometheus.DefaultRegisterer,
	}

	localStore, err := local.New(local.Config{BaseDir: cfg.Output.Dir})
	if err != nil {
		return fail(fmt.Errorf("local output: %w", err))
	}
	names := storage.FileNames{
		SearchResults: cfg.Output.SearchResultsFile,
		Content:       cfg.Output.ContentFile,
		Failures:      cfg.Output.FailuresFile,
	}
	localSink, err := storage.NewBlobSink(localStore, "", names, logger.Named("local"))
	if err != nil {
		return fail(err)
	}
	multi := storage.Multi{localSink}
	logger.Info("writing run files locally", zap.String("dir", localStore.Dir()))

	if cfg.Storage.GCSBucket != "" {
		bucket, err := gcs.Open(ctx, gcs.Config{Bucket: cfg.Storage.GCSBucket}, logger.Named("gcs"))
		if err != nil {
			return fail(fmt.Errorf("gcs storage: %w", err))
		}
		closers = append(closers, bucket.Close)
		gcsSink, err := storage.NewBlobSink(bucket, cfg.Storage.Prefix, names, logger.Named("gcs"))
		if err != nil {
			return fail(err)
		}
		multi = append(multi, gcsSink)
		logger.Info("uploading run files to gcs", zap.String("bucket", cfg.Storage.GCSBucket))
	}

	if cfg.DB.DSN != "" {
		pool, err := postgres.Open(ctx, postgres.Config{
			DSN:         cfg.DB.DSN,
			TablePrefix: cfg.DB.TablePrefix,
			MaxConns:    cfg.DB.MaxConns,
		})
		if err != nil {
			return fail(fmt.Errorf("postgres: %w", err))
		}
		closers = append(closers, func() error { pool.Close(); return nil })
		tables, err := postgres.NewTables(cfg.DB.TablePrefix)
		if err != nil {
			return fail(err)
		}
		if cfg.DB.EnsureSchema {
			if err := postgres.EnsureSchema(ctx, pool, tables); err != nil {
				return fail(err)
			}
		}
		records, err := postgres.NewRecordStore(pool, tables)
		if err != nil {
			return fail(err)
		}
		runs, err := postgres.NewRunStore(pool, tables)
		if err != nil {
			return fail(err)
		}
		multi = append(multi, records)
		deps.Runs = runs
		logger.Info("persisting records to postgres")
	}
	deps.Sink = multi

	if cfg.PubSub.ProjectID != "" {
		pub, err := pubsubpublisher.New(ctx, pubsubpublisher.Config{
			ProjectID: cfg.PubSub.ProjectID,
			TopicName: cfg.PubSub.TopicName,
		}, logger.Named("pubsub"))
		if err != nil {
			return fail(fmt.Errorf("pubsub: %w", err))
		}
		closers = append(closers, pub.Close)
		deps.Publisher = pub
		logger.Info("publishing run notifications", zap.String("topic", cfg.PubSub.TopicName))
	}

	if cfg.Dedup.Enabled {
		tracker, err := dedup.Open(cfg.Dedup.File, logger.Named("dedup"))
		if err != nil {
			return fail(err)
		}
		deps.Dedup = tracker
	}

	a, err := NewWithDeps(cfg, deps, logger)
	if err != nil {
		return fail(err)
	}
	a.closers = append(closers, a.closers...)
	logger.Info("collector services initialized", zap.Strings("strategies", strategyNames(strategies)))
	return a, nil
}

// NewWithDeps assembles an App around ready-made collaborators.
func NewWithDeps(cfg config.Config, deps Deps, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Sink == nil {
		return nil, errors.New("record sink is required")
	}
	if deps.Clock == nil {
		deps.Clock = system.New()
	}
	if deps.IDs == nil {
		deps.IDs = uuid.New()
	}
	if deps.Runs == nil {
		deps.Runs = memory.NewRunStore()
	}
	if deps.Sleep == nil {
		deps.Sleep = retry.Sleep
	}

	progressSinks := []progress.Sink{
		sinks.NewLogSink(logger.Named("progress")),
		sinks.NewStoreSink(deps.Runs, logger.Named("run_store")),
	}
	if deps.Registerer != nil {
		promSink, err := sinks.NewPrometheusSink(deps.Registerer)
		if err != nil {
			return nil, err
		}
		progressSinks = append(progressSinks, promSink)
	}
	hub := progress.NewHub(progress.Config{
		BufferSize:     cfg.Progress.BufferSize,
		MaxBatchEvents: cfg.Progress.MaxBatchEvents,
		MaxBatchWait:   time.Duration(cfg.Progress.MaxBatchWaitMs) * time.Millisecond,
		Logger:         logger.Named("progress"),
	}, progressSinks...)

	return &App{
		cfg:        cfg,
		logger:     logger,
		serp:       deps.SERPFetcher,
		strategies: deps.Strategies,
		sink:       deps.Sink,
		runs:       deps.Runs,
		publisher:  deps.Publisher,
		dedup:      deps.Dedup,
		clock:      deps.Clock,
		ids:        deps.IDs,
		sleep:      deps.Sleep,
		hub:        hub,
		policy: retry.NewPolicy(retry.Config{
			MaxAttempts:         cfg.Retry.Attempts,
			BaseDelay:           time.Duration(cfg.Retry.BaseDelayMs) * time.Millisecond,
			RateLimitMultiplier: cfg.Retry.RateLimitMultiplier,
			MaxDelay:            time.Duration(cfg.Retry.MaxDelayMs) * time.Millisecond,
			Jitter:              cfg.Retry.Jitter,
		}),
	}, nil
}

// Runs exposes the run history for the API.
func (a *App) Runs() progress.RunReader {
	return a.runs
}

// Logger returns the shared logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Close drains progress and releases clients in reverse order of creation.
func (a *App) Close(ctx context.Context) error {
	a.logger.Info("shutting down collector services")
	var errs []error
	if err := a.hub.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("close progress hub: %w", err))
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// buildStrategies turns scraper.strategies into the extraction chain, fast
// strategies first as listed. The headless strategy is skipped unless enabled.
func buildStrategies(cfg config.Config, limiter *ratelimit.Limiter, logger *zap.Logger) ([]extract.Strategy, []func() error, error) {
	var (
		strategies []extract.Strategy
		closers    []func() error
	)
	render := extract.NewRenderDetector(0)
	for _, name := range cfg.Scraper.Strategies {
		switch name {
		case extract.StrategyDOM:
			strategies = append(strategies, extract.NewDOMStrategy(collyfetcher.New(collyfetcher.Config{
				UserAgent:     cfg.Scraper.UserAgent,
				RespectRobots: cfg.Scraper.RespectRobots,
				Timeout:       cfg.RequestTimeout(),
				Limiter:       limiter,
			})).WithRenderDetector(render))
		case extract.StrategyReadability:
			client, err := httpclient.New(httpclient.Config{
				Timeout:      cfg.RequestTimeout(),
				UserAgent:    cfg.Scraper.UserAgent,
				MaxBodyBytes: cfg.HTTP.MaxBodyBytes,
				Limiter:      limiter,
			}, logger.Named("content_http"))
			if err != nil {
				return nil, closers, fmt.Errorf("content http client: %w", err)
			}
			strategies = append(strategies, extract.NewReadabilityStrategy(extract.StrategyReadability, client).WithRenderDetector(render))
		case extract.StrategyStealth:
			strategies = append(strategies, extract.NewReadabilityStrategy(extract.StrategyStealth, stealth.New(stealth.Config{
				Timeout: cfg.RequestTimeout(),
				Limiter: limiter,
			})).WithRenderDetector(render))
		case extract.StrategyHeadless:
			if !cfg.HeadlessActive() {
				logger.Info("headless strategy listed but headless.enabled is false; skipping")
				continue
			}
			browser, err := headless.NewChromedp(headless.Config{
				MaxParallel:       cfg.Headless.MaxParallel,
				UserAgent:         cfg.Scraper.UserAgent,
				NavigationTimeout: cfg.NavTimeout(),
			})
			if err != nil {
				return nil, closers, fmt.Errorf("headless browser: %w", err)
			}
			closers = append(closers, func() error { browser.Close(); return nil })
			strategies = append(strategies, extract.NewReadabilityStrategy(extract.StrategyHeadless, browser))
		default:
			return nil, closers, fmt.Errorf("unknown strategy %q: %w", name, collector.ErrInvalidInput)
		}
	}
	if len(strategies) == 0 {
		return nil, closers, collector.ErrNoStrategies
	}
	return strategies, closers, nil
}

func strategyNames(strategies []extract.Strategy) []string {
	names := make([]string, 0, len(strategies))
	for _, s := range strategies {
		names = append(names, s.Name())
	}
	return names
}
