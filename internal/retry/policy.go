package retry

import (
	"context"
	"time"

	goretry "github.com/sethvargo/go-retry"
)

// Default policy values: three retries waiting 2s, 4s and 8s.
const (
	DefaultMaxRetries = 3
	DefaultBaseDelay  = time.Second
)

// Classifier reports whether err is transient and therefore worth retrying.
type Classifier func(err error) bool

// OnRetryFunc is called before each retry with the 1-based retry number, the
// delay about to be waited and the error that triggered the retry.
type OnRetryFunc func(attempt int, delay time.Duration, err error)

// Config holds the tunable parts of a Policy.
type Config struct {
	// MaxRetries is the number of retries after the initial attempt.
	// Negative values are treated as zero.
	MaxRetries int

	// BaseDelay scales the backoff: retry n waits BaseDelay * 2^n.
	// If zero or negative, defaults to DefaultBaseDelay.
	BaseDelay time.Duration
}

// DefaultConfig returns a Config with the default retry bound and delay.
func DefaultConfig() Config {
	return Config{
		MaxRetries: DefaultMaxRetries,
		BaseDelay:  DefaultBaseDelay,
	}
}

// Policy executes operations with bounded exponential backoff.
// A Policy is immutable and safe for concurrent use.
type Policy struct {
	maxRetries  uint64
	baseDelay   time.Duration
	isTransient Classifier
	onRetry     OnRetryFunc
}

// NewPolicy creates a Policy. A nil classifier treats every error as
// permanent; a nil onRetry callback is ignored.
func NewPolicy(cfg Config, isTransient Classifier, onRetry OnRetryFunc) *Policy {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = DefaultBaseDelay
	}
	if isTransient == nil {
		isTransient = func(error) bool { return false }
	}
	return &Policy{
		maxRetries:  uint64(cfg.MaxRetries),
		baseDelay:   cfg.BaseDelay,
		isTransient: isTransient,
		onRetry:     onRetry,
	}
}

// MaxRetries returns the retry bound.
func (p *Policy) MaxRetries() int {
	return int(p.maxRetries)
}

// Delay returns the wait before retry number attempt (1-based).
func (p *Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		return 0
	}
	return p.baseDelay << uint(attempt)
}

// Execute runs op, retrying transient failures. It returns nil on success,
// the first permanent error, the last transient error once the bound is
// exhausted, or ctx.Err() if the context ends while waiting. A failure
// observed after ctx has ended is returned as is, without classification.
func (p *Policy) Execute(ctx context.Context, op func(ctx context.Context) error) error {
	var (
		lastErr error
		attempt int
	)

	bounded := goretry.WithMaxRetries(p.maxRetries, goretry.NewExponential(2*p.baseDelay))
	backoff := goretry.BackoffFunc(func() (time.Duration, bool) {
		next, stop := bounded.Next()
		if stop {
			return 0, true
		}
		attempt++
		if p.onRetry != nil {
			p.onRetry(attempt, next, lastErr)
		}
		return next, false
	})

	return goretry.Do(ctx, backoff, func(ctx context.Context) error {
		err := op(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return err
		}
		if p.isTransient(err) {
			lastErr = err
			return goretry.RetryableError(err)
		}
		return err
	})
}
