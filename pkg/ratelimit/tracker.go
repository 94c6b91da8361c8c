package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Prometheus metrics for rate limit tracking.
var (
	requestsInWindow = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "funda_rate_limit_window_requests",
		Help: "Number of requests recorded in the current rate limit window",
	})

	rateLimitBlocksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "funda_rate_limit_blocks_total",
		Help: "Total number of requests delayed until the next window",
	})

	rateLimitWarningsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "funda_rate_limit_warnings_total",
		Help: "Total number of requests made in the warning band of a window",
	})
)

// Tracker counts requests per window in Redis and gates callers that would exceed the limit.
type Tracker struct {
	redis  *redis.Client
	limit  int
	logger zerolog.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewTracker creates a new rate limit tracker.
// A non-positive limit falls back to DefaultRequestsPerMinute.
func NewTracker(redisClient *redis.Client, limit int, logger zerolog.Logger) *Tracker {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	if limit <= 0 {
		limit = DefaultRequestsPerMinute
	}
	return &Tracker{
		redis:  redisClient,
		limit:  limit,
		logger: logger,
		now:    time.Now,
		sleep:  sleepContext,
	}
}

// Limit returns the configured requests per window.
func (t *Tracker) Limit() int {
	return t.limit
}

// GetState retrieves the current window's request count from Redis.
// Returns an empty state if nothing was recorded in this window.
func (t *Tracker) GetState(ctx context.Context) (*State, error) {
	now := t.now()

	count, err := t.redis.Get(ctx, windowKey(now)).Int()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("get window count: %w", err)
	}

	return &State{
		Requests: count,
		Limit:    t.limit,
		ResetAt:  windowStart(now).Add(Window),
	}, nil
}

// record increments the current window's counter and returns the resulting state.
func (t *Tracker) record(ctx context.Context) (*State, error) {
	now := t.now()
	key := windowKey(now)

	pipe := t.redis.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, windowKeyTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("record request in redis: %w", err)
	}

	state := &State{
		Requests: int(incr.Val()),
		Limit:    t.limit,
		ResetAt:  windowStart(now).Add(Window),
	}
	requestsInWindow.Set(float64(state.Requests))

	return state, nil
}

// Acquire records one request. When the window's budget is already spent it
// waits for the next window and tries again. It returns early if ctx is done.
func (t *Tracker) Acquire(ctx context.Context) error {
	for {
		state, err := t.record(ctx)
		if err != nil {
			return err
		}

		if state.NeedsCriticalBlock() {
			waitDuration := state.TimeUntilResetFrom(t.now())

			t.logger.Warn().
				Int("requests", state.Requests).
				Int("limit", state.Limit).
				Dur("wait_duration", waitDuration).
				Msg("Rate limit window exhausted - waiting for next window")

			rateLimitBlocksTotal.Inc()
			if err := t.sleep(ctx, waitDuration); err != nil {
				return err
			}
			continue
		}

		if state.NeedsThrottling() {
			t.logger.Warn().
				Int("requests", state.Requests).
				Int("remaining", state.Remaining()).
				Msg("Rate limit window nearly exhausted")
			rateLimitWarningsTotal.Inc()
		}

		return nil
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		// Land in the next window rather than spinning on the boundary.
		d = 10 * time.Millisecond
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
