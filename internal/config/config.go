// Package config loads and validates collector configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. COLLECTOR_SERP_MAX_PAGES.
const EnvPrefix = "COLLECTOR"

// Strategy names accepted in scraper.strategies.
var knownStrategies = map[string]bool{
	"dom":         true,
	"readability": true,
	"stealth":     true,
	"headless":    true,
}

// Config captures all collector knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Proxy    ProxyConfig    `mapstructure:"proxy"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Retry    RetryConfig    `mapstructure:"retry"`
	SERP     SERPConfig     `mapstructure:"serp"`
	Scraper  ScraperConfig  `mapstructure:"scraper"`
	Headless HeadlessConfig `mapstructure:"headless"`
	Run      RunConfig      `mapstructure:"run"`
	Output   OutputConfig   `mapstructure:"output"`
	Storage  StorageConfig  `mapstructure:"storage"`
	DB       DBConfig       `mapstructure:"db"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
	Dedup    DedupConfig    `mapstructure:"dedup"`
	Progress ProgressConfig `mapstructure:"progress"`
	Queries  QueriesConfig  `mapstructure:"queries"`
}

// ServerConfig controls the HTTP API.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// ProxyConfig holds the SERP proxy endpoints. URL is the fallback for both
// schemes.
type ProxyConfig struct {
	URL      string `mapstructure:"url"`
	HTTPURL  string `mapstructure:"http_url"`
	HTTPSURL string `mapstructure:"https_url"`
}

// HTTPConfig configures the fetch client.
type HTTPConfig struct {
	RequestTimeoutSeconds int   `mapstructure:"request_timeout_seconds"`
	MaxBodyBytes          int64 `mapstructure:"max_body_bytes"`
}

// RetryConfig drives the shared retry policy.
type RetryConfig struct {
	Attempts            int  `mapstructure:"attempts"`
	BaseDelayMs         int  `mapstructure:"base_delay_ms"`
	RateLimitMultiplier int  `mapstructure:"rate_limit_multiplier"`
	MaxDelayMs          int  `mapstructure:"max_delay_ms"`
	Jitter              bool `mapstructure:"jitter"`
}

// SERPConfig governs the paginated result walker.
type SERPConfig struct {
	MaxPages              int     `mapstructure:"max_pages"`
	RateLimitDelaySeconds float64 `mapstructure:"rate_limit_delay_seconds"`
	RequireProxy          bool    `mapstructure:"require_proxy"`
	JSONSuffix            string  `mapstructure:"json_suffix"`
	MaxWorkers            int     `mapstructure:"max_workers"`
}

// ScraperConfig governs the content extraction phase.
type ScraperConfig struct {
	MaxWorkers                int      `mapstructure:"max_workers"`
	RateLimitDelaySeconds     float64  `mapstructure:"rate_limit_delay_seconds"`
	ExtractionQualityMinChars int      `mapstructure:"extraction_quality_min_chars"`
	UserAgent                 string   `mapstructure:"user_agent"`
	Strategies                []string `mapstructure:"strategies"`
	PerHostRPS                float64  `mapstructure:"per_host_rps"`
	PerHostBurst              int      `mapstructure:"per_host_burst"`
	RespectRobots             bool     `mapstructure:"respect_robots"`
}

// HeadlessConfig configures the chromedp strategy.
type HeadlessConfig struct {
	Enabled           bool `mapstructure:"enabled"`
	MaxParallel       int  `mapstructure:"max_parallel"`
	NavTimeoutSeconds int  `mapstructure:"nav_timeout_seconds"`
}

// RunConfig bounds a whole run.
type RunConfig struct {
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// OutputConfig names the local output directory and files.
type OutputConfig struct {
	Dir               string `mapstructure:"dir"`
	SearchResultsFile string `mapstructure:"search_results_file"`
	ContentFile       string `mapstructure:"content_file"`
	FailuresFile      string `mapstructure:"failures_file"`
}

// StorageConfig enables uploading run files to GCS.
type StorageConfig struct {
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// DBConfig enables the Postgres record and run stores.
type DBConfig struct {
	DSN          string `mapstructure:"dsn"`
	TablePrefix  string `mapstructure:"table_prefix"`
	MaxConns     int32  `mapstructure:"max_conns"`
	EnsureSchema bool   `mapstructure:"ensure_schema"`
}

// PubSubConfig enables run-complete notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// DedupConfig controls the processed-URL tracker.
type DedupConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	File    string `mapstructure:"file"`
}

// ProgressConfig tunes the progress hub.
type ProgressConfig struct {
	BufferSize     int `mapstructure:"buffer_size"`
	MaxBatchEvents int `mapstructure:"max_batch_events"`
	MaxBatchWaitMs int `mapstructure:"max_batch_wait_ms"`
}

// QueriesConfig points at the newsroom reference data.
type QueriesConfig struct {
	ReferenceFile string `mapstructure:"reference_file"`
	Column        string `mapstructure:"column"`
}

// Load builds a Config from .env, an optional file, and the environment.
// A missing .env file is not an error.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Scraper.Strategies = normalizeList(cfg.Scraper.Strategies)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
	v.SetDefault("proxy.url", "")
	v.SetDefault("proxy.http_url", "")
	v.SetDefault("proxy.https_url", "")
	v.SetDefault("http.request_timeout_seconds", 30)
	v.SetDefault("http.max_body_bytes", 10<<20)
	v.SetDefault("retry.attempts", 3)
	v.SetDefault("retry.base_delay_ms", 1000)
	v.SetDefault("retry.rate_limit_multiplier", 10)
	v.SetDefault("retry.max_delay_ms", 60000)
	v.SetDefault("retry.jitter", false)
	v.SetDefault("serp.max_pages", 10)
	v.SetDefault("serp.rate_limit_delay_seconds", 0.5)
	v.SetDefault("serp.require_proxy", true)
	v.SetDefault("serp.json_suffix", "&brd_json=1")
	v.SetDefault("serp.max_workers", 1)
	v.SetDefault("scraper.max_workers", 10)
	v.SetDefault("scraper.rate_limit_delay_seconds", 0.1)
	v.SetDefault("scraper.extraction_quality_min_chars", 200)
	v.SetDefault("scraper.user_agent", "press-release-collector/1.0")
	v.SetDefault("scraper.strategies", []string{"dom", "readability", "stealth", "headless"})
	v.SetDefault("scraper.per_host_rps", 2.0)
	v.SetDefault("scraper.per_host_burst", 2)
	v.SetDefault("scraper.respect_robots", false)
	v.SetDefault("headless.enabled", false)
	v.SetDefault("headless.max_parallel", 1)
	v.SetDefault("headless.nav_timeout_seconds", 25)
	v.SetDefault("run.timeout_seconds", 0)
	v.SetDefault("output.dir", "outputs")
	v.SetDefault("output.search_results_file", "collected_results.csv")
	v.SetDefault("output.content_file", "content_records.jsonl")
	v.SetDefault("output.failures_file", "scraper_errors.csv")
	v.SetDefault("storage.gcs_bucket", "")
	v.SetDefault("storage.prefix", "collector")
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.table_prefix", "")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("db.ensure_schema", true)
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")
	v.SetDefault("dedup.enabled", false)
	v.SetDefault("dedup.file", "outputs/processed_urls.txt")
	v.SetDefault("progress.buffer_size", 1024)
	v.SetDefault("progress.max_batch_events", 200)
	v.SetDefault("progress.max_batch_wait_ms", 500)
	v.SetDefault("queries.reference_file", "inputs/reference_data.csv")
	v.SetDefault("queries.column", "newsroom_url")
}

// Validate enforces required values and reasonable limits. Every error here
// is a configuration error and aborts before any task starts.
func (c Config) Validate() error {
	var errs []error
	check := func(ok bool, msg string) {
		if !ok {
			errs = append(errs, errors.New(msg))
		}
	}
	check(c.Server.Port > 0, "server.port must be > 0")
	check(c.HTTP.RequestTimeoutSeconds > 0, "http.request_timeout_seconds must be > 0")
	check(c.Retry.Attempts > 0, "retry.attempts must be > 0")
	check(c.Retry.BaseDelayMs >= 0, "retry.base_delay_ms must be >= 0")
	check(c.Retry.RateLimitMultiplier > 0, "retry.rate_limit_multiplier must be > 0")
	check(c.Retry.MaxDelayMs >= c.Retry.BaseDelayMs, "retry.max_delay_ms must be >= retry.base_delay_ms")
	check(c.SERP.MaxPages > 0, "serp.max_pages must be > 0")
	check(c.SERP.RateLimitDelaySeconds >= 0, "serp.rate_limit_delay_seconds must be >= 0")
	check(c.SERP.MaxWorkers > 0, "serp.max_workers must be > 0")
	check(c.Scraper.MaxWorkers > 0, "scraper.max_workers must be > 0")
	check(c.Scraper.RateLimitDelaySeconds >= 0, "scraper.rate_limit_delay_seconds must be >= 0")
	check(c.Scraper.ExtractionQualityMinChars >= 0, "scraper.extraction_quality_min_chars must be >= 0")
	check(len(c.Scraper.Strategies) > 0, "scraper.strategies must not be empty")
	check(c.Scraper.PerHostRPS >= 0, "scraper.per_host_rps must be >= 0")
	check(c.Run.TimeoutSeconds >= 0, "run.timeout_seconds must be >= 0")
	check(strings.TrimSpace(c.Output.Dir) != "", "output.dir is required")
	check(!c.Dedup.Enabled || c.Dedup.File != "", "dedup.file is required when dedup is enabled")
	check(c.PubSub.TopicName == "" || c.PubSub.ProjectID != "", "pubsub.project_id is required when pubsub.topic_name is set")
	for _, name := range c.Scraper.Strategies {
		check(knownStrategies[name], fmt.Sprintf("scraper.strategies: unknown strategy %q", name))
	}
	if c.Headless.Enabled {
		check(c.Headless.MaxParallel > 0, "headless.max_parallel must be > 0 when headless is enabled")
		check(c.Headless.NavTimeoutSeconds > 0, "headless.nav_timeout_seconds must be > 0 when headless is enabled")
	}
	return errors.Join(errs...)
}

// ValidateSERP checks the settings only the SERP phase needs.
func (c Config) ValidateSERP() error {
	if c.SERP.RequireProxy && c.HTTPProxy() == "" && c.HTTPSProxy() == "" {
		return errors.New("serp.require_proxy is set but no proxy.url, proxy.http_url, or proxy.https_url is configured")
	}
	return nil
}

// HTTPProxy returns the proxy for http:// targets.
func (c Config) HTTPProxy() string {
	if c.Proxy.HTTPURL != "" {
		return c.Proxy.HTTPURL
	}
	return c.Proxy.URL
}

// HTTPSProxy returns the proxy for https:// targets.
func (c Config) HTTPSProxy() string {
	if c.Proxy.HTTPSURL != "" {
		return c.Proxy.HTTPSURL
	}
	return c.Proxy.URL
}

// RequestTimeout is the per-request HTTP timeout.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.HTTP.RequestTimeoutSeconds) * time.Second
}

// RunTimeout is the whole-run budget; zero means unbounded.
func (c Config) RunTimeout() time.Duration {
	return time.Duration(c.Run.TimeoutSeconds) * time.Second
}

// SERPDelay is the pause between pages and between queries.
func (c Config) SERPDelay() time.Duration {
	return seconds(c.SERP.RateLimitDelaySeconds)
}

// ScraperDelay is the courtesy pause after each successful scrape.
func (c Config) ScraperDelay() time.Duration {
	return seconds(c.Scraper.RateLimitDelaySeconds)
}

// NavTimeout is the headless navigation budget.
func (c Config) NavTimeout() time.Duration {
	return time.Duration(c.Headless.NavTimeoutSeconds) * time.Second
}

// HeadlessActive reports whether the headless strategy should be built.
func (c Config) HeadlessActive() bool {
	if !c.Headless.Enabled {
		return false
	}
	for _, name := range c.Scraper.Strategies {
		if name == "headless" {
			return true
		}
	}
	return false
}

func seconds(f float64) time.Duration {
	return time.Duration(f * float64(time.Second))
}

// normalizeList accepts both YAML lists and comma-separated env values.
func normalizeList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			part = strings.ToLower(strings.TrimSpace(part))
			if part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
