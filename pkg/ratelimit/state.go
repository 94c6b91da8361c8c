// Package ratelimit tracks the feed's per-minute request budget in Redis so that
// several processes sharing one API key stay under the upstream limit together.
package ratelimit

import (
	"fmt"
	"time"
)

// Redis key prefix for the request window counters.
const RedisKeyWindowPrefix = "funda:rate_limit:window:"

// Defaults for the feed's request budget.
const (
	// DefaultRequestsPerMinute is the partner feed's documented limit.
	DefaultRequestsPerMinute = 100

	// WarningRatio is the share of the budget above which requests are logged as near the limit.
	WarningRatio = 0.8

	// Window is the length of one counting window.
	Window = time.Minute

	// windowKeyTTL keeps a finished window around long enough for GetState readers.
	windowKeyTTL = 2 * Window
)

// State is the request count of the current window.
type State struct {
	// Requests is the number of requests recorded in the current window.
	Requests int `json:"requests"`

	// Limit is the number of requests allowed per window.
	Limit int `json:"limit"`

	// ResetAt is when the current window ends.
	ResetAt time.Time `json:"reset_at"`
}

// Remaining returns how many requests are left in the window, never below zero.
func (s *State) Remaining() int {
	if s.Requests >= s.Limit {
		return 0
	}
	return s.Limit - s.Requests
}

// NeedsCriticalBlock returns true if the window's budget is used up.
func (s *State) NeedsCriticalBlock() bool {
	return s.Requests > s.Limit
}

// NeedsThrottling returns true if the window is in the warning band.
func (s *State) NeedsThrottling() bool {
	return float64(s.Requests) >= float64(s.Limit)*WarningRatio && !s.NeedsCriticalBlock()
}

// TimeUntilReset returns the duration until the window ends.
// Returns 0 if the reset time has already passed.
func (s *State) TimeUntilReset() time.Duration {
	return s.TimeUntilResetFrom(time.Now())
}

// TimeUntilResetFrom returns the duration from now until the window ends, or 0
// if the window is already over.
func (s *State) TimeUntilResetFrom(now time.Time) time.Duration {
	if d := s.ResetAt.Sub(now); d > 0 {
		return d
	}
	return 0
}

// windowStart truncates t to the start of its counting window.
func windowStart(t time.Time) time.Time {
	return t.Truncate(Window)
}

// windowKey returns the Redis key holding the counter for the window containing t.
func windowKey(t time.Time) string {
	return fmt.Sprintf("%s%d", RedisKeyWindowPrefix, windowStart(t).Unix())
}
