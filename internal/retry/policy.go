// Package retry implements the backoff policy shared by the SERP walker and the
// extraction strategies, plus the attempt loop that applies it.
package retry

import (
	"crypto/rand"
	"math"
	"math/big"
	"time"

	"github.com/JakeFAU/press-release-collector/internal/collector"
)

// Config tunes the Policy. Zero values fall back to defaults, except BaseDelay
// where zero disables waiting.
type Config struct {
	// MaxAttempts is the total number of tries, including the first one.
	MaxAttempts int
	// BaseDelay is the generic backoff unit; delay = BaseDelay * 2^(attempt-1).
	BaseDelay time.Duration
	// RateLimitMultiplier scales BaseDelay linearly per attempt for 429s.
	RateLimitMultiplier int
	// MaxDelay caps any computed delay.
	MaxDelay time.Duration
	// Jitter spreads each delay over [delay/2, delay).
	Jitter bool
}

const (
	defaultMaxAttempts         = 3
	defaultBaseDelay           = time.Second
	defaultRateLimitMultiplier = 10
	defaultMaxDelay            = time.Minute
	unclassifiedAttempts       = 2
)

// Decision is the outcome of Policy.Decide.
type Decision struct {
	Retry    bool
	Delay    time.Duration
	Category collector.Category
}

// Policy classifies errors as retryable or terminal and computes backoff.
type Policy struct {
	maxAttempts         int
	baseDelay           time.Duration
	rateLimitMultiplier int
	maxDelay            time.Duration
	jitter              bool
}

// NewPolicy builds a policy, filling unset fields with defaults.
func NewPolicy(cfg Config) *Policy {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.BaseDelay < 0 {
		cfg.BaseDelay = defaultBaseDelay
	}
	if cfg.RateLimitMultiplier <= 0 {
		cfg.RateLimitMultiplier = defaultRateLimitMultiplier
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = defaultMaxDelay
	}
	return &Policy{
		maxAttempts:         cfg.MaxAttempts,
		baseDelay:           cfg.BaseDelay,
		rateLimitMultiplier: cfg.RateLimitMultiplier,
		maxDelay:            cfg.MaxDelay,
		jitter:              cfg.Jitter,
	}
}

// MaxAttempts returns the total attempt budget.
func (p *Policy) MaxAttempts() int {
	return p.maxAttempts
}

// Decide inspects the error from attempt (1-based) and reports whether another
// attempt should be made and how long to wait first.
func (p *Policy) Decide(err error, attempt int) Decision {
	category := collector.Classify(err)
	if err == nil || !category.Retryable() {
		return Decision{Category: category}
	}
	if attempt >= p.maxAttempts {
		return Decision{Category: category}
	}
	// Unclassified errors get a single retry regardless of the budget.
	if category == collector.CategoryUnclassified && attempt >= unclassifiedAttempts {
		return Decision{Category: category}
	}
	return Decision{Retry: true, Delay: p.Backoff(category, attempt), Category: category}
}

// Backoff returns the wait before the attempt following attempt.
func (p *Policy) Backoff(category collector.Category, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	var delay float64
	if category == collector.CategoryRateLimited {
		delay = float64(p.baseDelay) * float64(p.rateLimitMultiplier) * float64(attempt)
	} else {
		delay = float64(p.baseDelay) * math.Pow(2, float64(attempt-1))
	}
	if delay > float64(p.maxDelay) {
		delay = float64(p.maxDelay)
	}
	if !p.jitter {
		return time.Duration(delay)
	}
	half := time.Duration(delay / 2)
	return half + randomJitter(half)
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(limit)))
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}
