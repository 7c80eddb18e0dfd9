package retry

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// Config controls exponential backoff between attempts.
type Config struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	// JitterFactor in [0,1]; 0.1 means ±10%.
	JitterFactor float64
}

func DefaultConfig() Config {
	return Config{
		MaxRetries:      3,
		InitialInterval: 20 * time.Millisecond,
		MaxInterval:     500 * time.Millisecond,
		Multiplier:      2.0,
		JitterFactor:    0.2,
	}
}

// Operation is the function to be retried.
type Operation func(ctx context.Context) error

// Callback is called before each retry with the attempt that failed.
type Callback func(attempt int, err error, next time.Duration)

type Retrier struct {
	cfg       Config
	retryable func(error) bool
	onRetry   Callback
}

// New returns a Retrier that retries only errors for which retryable
// reports true.
func New(cfg Config, retryable func(error) bool, onRetry Callback) *Retrier {
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = 20 * time.Millisecond
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = 500 * time.Millisecond
	}
	if cfg.Multiplier <= 0 {
		cfg.Multiplier = 2.0
	}
	cfg.JitterFactor = math.Max(0, math.Min(1, cfg.JitterFactor))

	return &Retrier{cfg: cfg, retryable: retryable, onRetry: onRetry}
}

// Do runs op until it succeeds, fails with a non-retryable error or runs
// out of retries. The error of the last attempt is returned unchanged, or
// ctx.Err() if the context ends while waiting.
func (r *Retrier) Do(ctx context.Context, op Operation) error {
	var err error
	for attempt := 0; ; attempt++ {
		if err = op(ctx); err == nil {
			return nil
		}

		if attempt >= r.cfg.MaxRetries || r.retryable == nil || !r.retryable(err) {
			return err
		}

		next := r.interval(attempt)
		if r.onRetry != nil {
			r.onRetry(attempt+1, err, next)
		}

		timer := time.NewTimer(next)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (r *Retrier) interval(attempt int) time.Duration {
	interval := float64(r.cfg.InitialInterval) * math.Pow(r.cfg.Multiplier, float64(attempt))

	if r.cfg.JitterFactor > 0 {
		jitter := interval * r.cfg.JitterFactor
		interval += (rand.Float64()*2 - 1) * jitter
	}

	if interval > float64(r.cfg.MaxInterval) {
		interval = float64(r.cfg.MaxInterval)
	}
	if interval < 0 {
		interval = float64(r.cfg.InitialInterval)
	}

	return time.Duration(interval)
}
