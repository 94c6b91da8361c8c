package retry

import "errors"

// Common errors returned by Do.
var (
	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled during a backoff wait.
	ErrContextCancelled = errors.New("context cancelled")
)

// Decision is the classification of a failed attempt.
type Decision int

const (
	// Fatal errors are returned to the caller without another attempt.
	Fatal Decision = iota

	// Retryable errors are attempted again while the retry budget lasts.
	Retryable
)

// String implements fmt.Stringer.
func (d Decision) String() string {
	switch d {
	case Retryable:
		return "retryable"
	default:
		return "fatal"
	}
}
