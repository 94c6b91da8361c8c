// Package agents answers "which agents list the most properties for this search".
package agents

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Sternrassler/funda-top-agents/pkg/listing"
	"github.com/Sternrassler/funda-top-agents/pkg/ranking"
	"github.com/Sternrassler/funda-top-agents/pkg/retry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	queriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "funda_queries_total",
		Help: "Total top-agent queries by outcome",
	}, []string{"status"})

	queryDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "funda_query_duration_seconds",
		Help:    "Duration of a complete top-agent query",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300},
	})

	queryListings = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "funda_query_listings",
		Help: "Number of listings fetched by the last run of each search path",
	}, []string{"search_path"})
)

// DefaultTopCount is used when a Query leaves TopCount at zero.
const DefaultTopCount = 10

// ErrInvalidQuery is returned for queries without a search path.
var ErrInvalidQuery = errors.New("invalid query")

// Query describes one ranking request.
type Query struct {
	// SearchPath is the feed search, e.g. "/amsterdam/tuin/".
	SearchPath string `yaml:"search_path"`

	// Title labels the query in logs and output only.
	Title string `yaml:"title"`

	// TopCount caps the result length. Zero means DefaultTopCount; negative yields no agents.
	TopCount int `yaml:"top_count"`
}

func (q Query) topCount() int {
	if q.TopCount == 0 {
		return DefaultTopCount
	}
	return q.TopCount
}

// Result is the ranking produced for one query.
type Result struct {
	Query    Query                 `yaml:"query"`
	Agents   []ranking.RankedAgent `yaml:"agents"`
	Listings int                   `yaml:"listings"`
}

// Fetcher returns every listing of a search. *pagination.Paginator implements it.
type Fetcher interface {
	FetchAll(ctx context.Context, searchPath string) ([]listing.Listing, error)
}

// Runner fetches and ranks queries.
type Runner struct {
	fetcher Fetcher
	logger  zerolog.Logger
	sleep   retry.SleepFunc
}

// NewRunner creates a runner around fetcher.
func NewRunner(fetcher Fetcher, logger *zerolog.Logger) *Runner {
	l := log.With().Str("component", "agents").Logger()
	if logger != nil {
		l = *logger
	}
	return &Runner{
		fetcher: fetcher,
		logger:  l,
		sleep:   retry.Sleep,
	}
}

// Run fetches every listing of q.SearchPath and returns the top agents.
// A failed fetch yields no ranking at all.
func (r *Runner) Run(ctx context.Context, q Query) ([]ranking.RankedAgent, error) {
	res, err := r.run(ctx, q)
	if err != nil {
		return nil, err
	}
	return res.Agents, nil
}

func (r *Runner) run(ctx context.Context, q Query) (Result, error) {
	if q.SearchPath == "" {
		return Result{}, fmt.Errorf("%w: search path is required", ErrInvalidQuery)
	}

	start := time.Now()
	defer func() {
		queryDuration.Observe(time.Since(start).Seconds())
	}()

	r.logger.Info().
		Str("title", q.Title).
		Str("search_path", q.SearchPath).
		Int("top_count", q.topCount()).
		Msg("Starting agent query")

	all, err := r.fetcher.FetchAll(ctx, q.SearchPath)
	if err != nil {
		queriesTotal.WithLabelValues("error").Inc()
		r.logger.Error().
			Err(err).
			Str("title", q.Title).
			Str("search_path", q.SearchPath).
			Int("top_count", q.topCount()).
			Msg("Agent query failed")
		return Result{}, fmt.Errorf("query %q: %w", q.SearchPath, err)
	}

	ranked := ranking.TopN(all, q.topCount())
	queriesTotal.WithLabelValues("success").Inc()
	queryListings.WithLabelValues(q.SearchPath).Set(float64(len(all)))

	r.logger.Info().
		Str("title", q.Title).
		Str("search_path", q.SearchPath).
		Int("listings", len(all)).
		Int("agents", len(ranked)).
		Dur("duration", time.Since(start)).
		Msg("Agent query done")

	return Result{Query: q, Agents: ranked, Listings: len(all)}, nil
}

// RunAll runs queries one after another, waiting pause between consecutive
// queries. It stops at the first failure and returns the results so far along
// with the error.
func (r *Runner) RunAll(ctx context.Context, queries []Query, pause time.Duration) ([]Result, error) {
	results := make([]Result, 0, len(queries))
	for i, q := range queries {
		if i > 0 && pause > 0 {
			r.logger.Info().
				Dur("pause", pause).
				Str("next", q.SearchPath).
				Msg("Pausing between queries")
			if err := r.sleep(ctx, pause); err != nil {
				return results, err
			}
		}

		res, err := r.run(ctx, q)
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}
