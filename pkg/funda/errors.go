package funda

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/Sternrassler/funda-top-agents/pkg/retry"
)

// ErrorClass represents a classification of upstream failures.
type ErrorClass string

const (
	// ErrorClassAuth represents 401 responses. The feed returns these spuriously under load.
	ErrorClassAuth ErrorClass = "auth"

	// ErrorClassRateLimit represents 429 responses.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassClient represents any other 4xx error.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassNetwork represents transport failures (no HTTP status).
	ErrorClassNetwork ErrorClass = "network"

	// ErrorClassDecode represents a successful response with an unreadable body.
	ErrorClassDecode ErrorClass = "decode"
)

// ErrMissingAPIKey is returned by New when no API key is configured.
var ErrMissingAPIKey = errors.New("api key is required")

// APIError is a non-success response from the feed.
type APIError struct {
	StatusCode int
	ErrorClass ErrorClass
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("funda %s error (status %d): %s: %v",
			e.ErrorClass, e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("funda %s error (status %d): %s",
		e.ErrorClass, e.StatusCode, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *APIError) Unwrap() error {
	return e.Err
}

// ClassifyStatus maps an HTTP status code to an ErrorClass.
// Success codes return the empty class.
func ClassifyStatus(statusCode int) ErrorClass {
	switch {
	case statusCode == http.StatusUnauthorized:
		return ErrorClassAuth
	case statusCode == http.StatusTooManyRequests:
		return ErrorClassRateLimit
	case statusCode >= 500:
		return ErrorClassServer
	case statusCode >= 400:
		return ErrorClassClient
	default:
		return ""
	}
}

// IsRetryableStatus reports whether a status code is worth another attempt:
// exactly 401, 429 and every 5xx.
func IsRetryableStatus(statusCode int) bool {
	return statusCode == http.StatusUnauthorized ||
		statusCode == http.StatusTooManyRequests ||
		statusCode >= 500
}

// Classify is the retry classifier for feed errors. Only *APIError values with a
// retryable status are retried; transport and decode failures are fatal.
func Classify(err error) retry.Decision {
	var apiErr *APIError
	if errors.As(err, &apiErr) && IsRetryableStatus(apiErr.StatusCode) {
		return retry.Retryable
	}
	return retry.Fatal
}

// StatusCode extracts the HTTP status from err, or 0 if it carries none.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}
