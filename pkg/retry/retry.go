// Package retry re-executes failing operations with a classifier and a backoff schedule.
package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for retry operations.
var (
	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "funda_retries_total",
		Help: "Total number of retry attempts by policy",
	}, []string{"policy"})

	retryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "funda_retry_backoff_seconds",
		Help:    "Backoff duration for retries by policy",
		Buckets: []float64{1, 5, 10, 20, 30, 60},
	}, []string{"policy"})

	retryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "funda_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by policy",
	}, []string{"policy"})
)

// DefaultMaxRetries is the number of retries after the first attempt.
const DefaultMaxRetries = 3

// Backoff returns the delay before retry number attempt (1-based).
type Backoff func(attempt int) time.Duration

// Linear returns a schedule of base*attempt: 10s, 20s, 30s for base=10s.
func Linear(base time.Duration) Backoff {
	return func(attempt int) time.Duration {
		return base * time.Duration(attempt)
	}
}

// Constant returns a schedule that always waits d.
func Constant(d time.Duration) Backoff {
	return func(int) time.Duration {
		return d
	}
}

// SleepFunc suspends for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Policy describes when and how an operation is retried.
type Policy struct {
	// Name labels metrics and log entries.
	Name string

	// MaxRetries is the retry budget after the first attempt.
	MaxRetries int

	// Backoff computes the wait before each retry. Nil means no wait.
	Backoff Backoff

	// Classify decides whether an error is worth another attempt.
	// Nil treats every error as fatal.
	Classify func(error) Decision

	// Sleep waits between attempts. Nil uses Sleep.
	Sleep SleepFunc

	// Logger receives one warning per retry. Nil uses the global logger.
	Logger *zerolog.Logger
}

// DefaultPolicy returns the upstream policy: 3 retries, 10s/20s/30s.
func DefaultPolicy(classify func(error) Decision) Policy {
	return Policy{
		Name:       "default",
		MaxRetries: DefaultMaxRetries,
		Backoff:    Linear(10 * time.Second),
		Classify:   classify,
	}
}

// None returns a policy that never retries.
func None() Policy {
	return Policy{Name: "none"}
}

func (p Policy) logger() *zerolog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	l := log.With().Str("component", "retry").Logger()
	return &l
}

func (p Policy) classify(err error) Decision {
	if p.Classify == nil {
		return Fatal
	}
	return p.Classify(err)
}

func (p Policy) name() string {
	if p.Name == "" {
		return "default"
	}
	return p.Name
}

// Do runs op and retries it while the policy classifies its error as retryable.
// Fatal errors are returned unchanged. When the budget is exhausted the returned
// error wraps both ErrRetryExhausted and the last error.
func Do[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error)) (T, error) {
	sleep := p.Sleep
	if sleep == nil {
		sleep = Sleep
	}
	logger := p.logger()

	var zero T
	for attempt := 0; ; attempt++ {
		result, err := op(ctx)
		if err == nil {
			if attempt > 0 {
				logger.Info().
					Str("policy", p.name()).
					Int("attempt", attempt).
					Msg("Operation succeeded after retry")
			}
			return result, nil
		}

		if p.classify(err) != Retryable {
			return zero, err
		}

		if attempt >= p.MaxRetries {
			if p.MaxRetries == 0 {
				return zero, err
			}
			retryExhaustedTotal.WithLabelValues(p.name()).Inc()
			logger.Warn().
				Str("policy", p.name()).
				Int("max_retries", p.MaxRetries).
				Msg("Retry attempts exhausted")
			return zero, fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, attempt+1, err)
		}

		retry := attempt + 1
		var delay time.Duration
		if p.Backoff != nil {
			delay = p.Backoff(retry)
		}

		retriesTotal.WithLabelValues(p.name()).Inc()
		retryBackoffSeconds.WithLabelValues(p.name()).Observe(delay.Seconds())

		logger.Warn().
			Str("policy", p.name()).
			Int("attempt", retry).
			Dur("delay", delay).
			Err(err).
			Msg("Retrying after backoff")

		if err := sleep(ctx, delay); err != nil {
			return zero, err
		}
	}
}

// Sleep waits for d, returning early with ErrContextCancelled when ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrContextCancelled, err)
		}
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrContextCancelled, ctx.Err())
	case <-timer.C:
		return nil
	}
}
