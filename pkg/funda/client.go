// Package funda provides the HTTP client for the Funda partner listings feed.
package funda

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/funda-top-agents/pkg/listing"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for feed requests.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "funda_requests_total",
		Help: "Total feed requests by status",
	}, []string{"status"})

	requestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "funda_request_duration_seconds",
		Help:    "Feed request duration in seconds",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
	})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "funda_errors_total",
		Help: "Total feed errors by class",
	}, []string{"class"})
)

// Defaults for the partner feed.
const (
	DefaultEndpoint    = "http://partnerapi.funda.nl/feeds/Aanbod.svc/json"
	DefaultPageSize    = 25
	DefaultListingType = "koop"
	DefaultTimeout     = 30 * time.Second
	DefaultUserAgent   = "funda-top-agents/0.1.0"

	// maxErrorBody bounds how much of an error response is kept in APIError.Message.
	maxErrorBody = 512
)

// RateLimiter gates outgoing requests. *ratelimit.Tracker satisfies it.
type RateLimiter interface {
	Acquire(ctx context.Context) error
}

// Config holds the client configuration.
type Config struct {
	// APIKey is the static partner key; it is sent as a path segment.
	APIKey string

	// Endpoint is the feed base URL, without the key.
	Endpoint string

	// PageSize is the number of objects requested per page.
	PageSize int

	// ListingType selects the feed ("koop" for sale, "huur" for rent).
	ListingType string

	// Timeout bounds a single HTTP request.
	Timeout time.Duration

	// UserAgent header sent with each request.
	UserAgent string

	// RateLimiter is optional; nil disables shared request accounting.
	RateLimiter RateLimiter

	// Logger is optional; the zero value uses the global logger.
	Logger *zerolog.Logger
}

// DefaultConfig returns a configuration for the public partner endpoint.
func DefaultConfig(apiKey string) Config {
	return Config{
		APIKey:      apiKey,
		Endpoint:    DefaultEndpoint,
		PageSize:    DefaultPageSize,
		ListingType: DefaultListingType,
		Timeout:     DefaultTimeout,
		UserAgent:   DefaultUserAgent,
	}
}

// Client fetches pages of search results from the feed.
type Client struct {
	httpClient *http.Client
	baseURL    *url.URL
	config     Config
	logger     zerolog.Logger
}

// response is the wire format of one feed page.
type response struct {
	Objects []listing.Listing `json:"Objects"`
	Paging  struct {
		TotalPages  *int `json:"AantalPaginas"`
		CurrentPage int  `json:"HuidigePagina"`
	} `json:"Paging"`
	TotalObjects int `json:"TotaalAantalObjecten"`
}

// New creates a new feed client.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.ListingType == "" {
		cfg.ListingType = DefaultListingType
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}

	baseURL, err := url.Parse(strings.TrimRight(cfg.Endpoint, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}
	if baseURL.Scheme == "" || baseURL.Host == "" {
		return nil, fmt.Errorf("endpoint must be an absolute URL (got %q)", cfg.Endpoint)
	}

	logger := log.With().Str("component", "funda-client").Logger()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL: baseURL,
		config:  cfg,
		logger:  logger,
	}, nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// pageURL builds {endpoint}/{key}/?type=koop&zo={searchPath}&page={page}&pagesize={size}.
func (c *Client) pageURL(searchPath string, page int) string {
	u := *c.baseURL
	u.Path = u.Path + "/" + c.config.APIKey + "/"

	q := url.Values{}
	q.Set("type", c.config.ListingType)
	q.Set("zo", searchPath)
	q.Set("page", strconv.Itoa(page))
	q.Set("pagesize", strconv.Itoa(c.config.PageSize))
	u.RawQuery = q.Encode()

	return u.String()
}

// FetchPage requests one page of searchPath. Non-2xx responses are returned as
// *APIError; transport and decode failures are returned as wrapped errors.
func (c *Client) FetchPage(ctx context.Context, searchPath string, page int) (listing.Page, error) {
	startTime := time.Now()
	defer func() {
		requestDuration.Observe(time.Since(startTime).Seconds())
	}()

	if c.config.RateLimiter != nil {
		if err := c.config.RateLimiter.Acquire(ctx); err != nil {
			return listing.Page{}, fmt.Errorf("rate limiter: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.pageURL(searchPath, page), nil)
	if err != nil {
		return listing.Page{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/json")

	c.logger.Debug().
		Str("search_path", searchPath).
		Int("page", page).
		Msg("Requesting feed page")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		requestsTotal.WithLabelValues("network_error").Inc()
		c.logger.Error().Err(err).Int("page", page).Msg("HTTP request failed")
		return listing.Page{}, fmt.Errorf("request page %d: %w", page, err)
	}
	defer resp.Body.Close()

	requestsTotal.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		class := ClassifyStatus(resp.StatusCode)
		errorsTotal.WithLabelValues(string(class)).Inc()

		// The body only decorates the message; an unreadable body leaves the status line.
		message := resp.Status
		body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		if readErr != nil {
			c.logger.Debug().Err(readErr).Int("status", resp.StatusCode).Msg("Could not read error body")
		} else if text := strings.TrimSpace(string(body)); text != "" {
			message = message + ": " + text
		}

		c.logger.Warn().
			Str("search_path", searchPath).
			Int("page", page).
			Int("status", resp.StatusCode).
			Str("error_class", string(class)).
			Msg("Feed request error")

		return listing.Page{}, &APIError{
			StatusCode: resp.StatusCode,
			ErrorClass: class,
			Message:    message,
		}
	}

	var body response
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassDecode)).Inc()
		return listing.Page{}, fmt.Errorf("decode page %d: %w", page, err)
	}

	return listing.Page{
		Number:        page,
		Listings:      body.Objects,
		TotalPages:    body.Paging.TotalPages,
		TotalListings: body.TotalObjects,
	}, nil
}
