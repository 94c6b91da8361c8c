package pagination

import (
	"context"
	"fmt"
	"time"

	"github.com/Sternrassler/funda-top-agents/pkg/listing"
	"github.com/Sternrassler/funda-top-agents/pkg/retry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	pagesFetchedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "funda_pages_fetched_total",
		Help: "Total number of feed pages fetched successfully",
	})

	throttlePausesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "funda_throttle_pauses_total",
		Help: "Total number of rate limit pauses inserted between pages",
	})
)

// Config holds paginator configuration.
type Config struct {
	// ThrottleEvery pauses before each page number divisible by it. Zero disables throttling.
	ThrottleEvery int

	// ThrottleDelay is the length of each pause.
	ThrottleDelay time.Duration

	// Retry wraps every page request.
	Retry retry.Policy

	// Sleep performs the throttle pause. Nil uses retry.Sleep.
	Sleep retry.SleepFunc

	// Logger is optional; nil uses the global logger.
	Logger *zerolog.Logger
}

// DefaultConfig returns the feed defaults: a 5s pause every 10 pages and the
// default retry policy with the given classifier.
func DefaultConfig(classify func(error) retry.Decision) Config {
	return Config{
		ThrottleEvery: 10,
		ThrottleDelay: 5 * time.Second,
		Retry:         retry.DefaultPolicy(classify),
	}
}

// PageFetcher fetches a single page of a search. *funda.Client implements it.
type PageFetcher interface {
	FetchPage(ctx context.Context, searchPath string, page int) (listing.Page, error)
}

// Paginator collects every listing of a search.
type Paginator struct {
	fetcher PageFetcher
	config  Config
	logger  zerolog.Logger
}

// New creates a new paginator.
func New(fetcher PageFetcher, config Config) *Paginator {
	if config.Sleep == nil {
		config.Sleep = retry.Sleep
	}

	logger := log.With().Str("component", "paginator").Logger()
	if config.Logger != nil {
		logger = *config.Logger
	}
	if config.Retry.Logger == nil {
		config.Retry.Logger = &logger
	}

	return &Paginator{
		fetcher: fetcher,
		config:  config,
		logger:  logger,
	}
}

// FetchAll requests pages 1..N of searchPath in order and returns their listings
// concatenated. N is the total reported by the feed; a page without a total ends
// the search. Any page that still fails after retries aborts the whole fetch.
func (p *Paginator) FetchAll(ctx context.Context, searchPath string) ([]listing.Listing, error) {
	start := time.Now()
	var all []listing.Listing
	page := 1

	for {
		current := page
		resp, err := retry.Do(ctx, p.config.Retry, func(ctx context.Context) (listing.Page, error) {
			return p.fetcher.FetchPage(ctx, searchPath, current)
		})
		if err != nil {
			p.logger.Error().
				Err(err).
				Str("search_path", searchPath).
				Int("page", page).
				Msg("Page fetch failed")
			return nil, fmt.Errorf("fetch page %d of %s: %w", page, searchPath, err)
		}
		pagesFetchedTotal.Inc()

		p.logger.Info().
			Str("search_path", searchPath).
			Int("page", page).
			Int("listings", len(resp.Listings)).
			Msg("Fetched page")

		if len(resp.Listings) > 0 {
			all = append(all, resp.Listings...)
		}

		resp.Number = page
		if resp.IsLast() {
			break
		}

		page++

		if p.config.ThrottleEvery > 0 && page%p.config.ThrottleEvery == 0 {
			p.logger.Info().
				Int("page", page).
				Dur("delay", p.config.ThrottleDelay).
				Msg("Throttling before next page")
			throttlePausesTotal.Inc()
			if err := p.config.Sleep(ctx, p.config.ThrottleDelay); err != nil {
				return nil, err
			}
		}
	}

	p.logger.Info().
		Str("search_path", searchPath).
		Int("pages", page).
		Int("listings", len(all)).
		Dur("duration", time.Since(start)).
		Msg("Fetched all pages")

	return all, nil
}
