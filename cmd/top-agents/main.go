package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Sternrassler/funda-top-agents/internal/config"
	"github.com/Sternrassler/funda-top-agents/pkg/agents"
	"github.com/Sternrassler/funda-top-agents/pkg/funda"
	"github.com/Sternrassler/funda-top-agents/pkg/logging"
	"github.com/Sternrassler/funda-top-agents/pkg/metrics"
	"github.com/Sternrassler/funda-top-agents/pkg/pagination"
	"github.com/Sternrassler/funda-top-agents/pkg/ratelimit"
	"github.com/Sternrassler/funda-top-agents/pkg/retry"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
)

const version = "0.1.0"

// lookupEnv is replaced in tests.
var lookupEnv = os.LookupEnv

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp(os.Stdout, os.Stderr).RunContext(ctx, os.Args); err != nil {
		log.Error().Err(err).Msg("top-agents failed")
		stop()
		os.Exit(1)
	}
}

func newApp(stdout, stderr io.Writer) *cli.App {
	return &cli.App{
		Name:      "top-agents",
		Usage:     "rank real estate agents by number of listings on the funda feed",
		Version:   version,
		Writer:    stdout,
		ErrWriter: stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "YAML config file (defaults are used when omitted)",
				EnvVars: []string{"FUNDA_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "api-key",
				Usage: "partner API key (env FUNDA_API_KEY)",
			},
			&cli.StringFlag{
				Name:  "endpoint",
				Usage: "feed base URL (env FUNDA_API_ENDPOINT)",
			},
			&cli.StringSliceFlag{
				Name:    "path",
				Aliases: []string{"p"},
				Usage:   "search path to rank, e.g. /amsterdam/tuin/ (repeatable, replaces configured queries)",
			},
			&cli.StringFlag{
				Name:  "title",
				Usage: "heading printed above the ranking of a --path query",
			},
			&cli.IntFlag{
				Name:  "top",
				Usage: "number of agents to print per query",
			},
			&cli.DurationFlag{
				Name:  "pause",
				Usage: "wait between consecutive queries",
			},
			&cli.StringFlag{
				Name:  "redis",
				Usage: "Redis address for the shared per-minute request window (env REDIS_URL)",
			},
			&cli.StringFlag{
				Name:  "metrics-addr",
				Usage: "serve /metrics and /health on this address while running (env METRICS_ADDR)",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "debug, info, warn or error (env LOG_LEVEL)",
			},
			&cli.BoolFlag{
				Name:  "pretty",
				Usage: "human-readable log output",
			},
		},
		Action: run,
	}
}

// loadConfig layers the config file, the environment and the flags, in that order.
func loadConfig(c *cli.Context) (config.Config, error) {
	cfg := config.Default()
	if path := c.String("config"); path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return cfg, err
		}
	}

	if err := cfg.ApplyEnv(lookupEnv); err != nil {
		return cfg, err
	}

	if c.IsSet("api-key") {
		cfg.API.Key = c.String("api-key")
	}
	if c.IsSet("endpoint") {
		cfg.API.Endpoint = c.String("endpoint")
	}
	if c.IsSet("redis") {
		cfg.Redis.Addr = c.String("redis")
	}
	if c.IsSet("metrics-addr") {
		cfg.Metrics.Addr = c.String("metrics-addr")
	}
	if c.IsSet("log-level") {
		cfg.Log.Level = c.String("log-level")
	}
	if c.IsSet("pretty") {
		cfg.Log.Pretty = c.Bool("pretty")
	}
	if c.IsSet("pause") {
		cfg.QueryPause = c.Duration("pause")
	}

	if paths := c.StringSlice("path"); len(paths) > 0 {
		top := agents.DefaultTopCount
		if c.IsSet("top") {
			top = c.Int("top")
		}
		cfg.Queries = make([]agents.Query, 0, len(paths))
		for _, p := range paths {
			title := c.String("title")
			if title == "" || len(paths) > 1 {
				title = fmt.Sprintf("Top %d agents listings for %s", top, p)
			}
			cfg.Queries = append(cfg.Queries, agents.Query{SearchPath: p, Title: title, TopCount: top})
		}
	} else if c.IsSet("top") {
		for i := range cfg.Queries {
			cfg.Queries[i].TopCount = c.Int("top")
		}
	}

	return cfg, cfg.Validate()
}

func run(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	logging.Setup(logging.Config{
		Level:  logging.LogLevel(cfg.Log.Level),
		Pretty: cfg.Log.Pretty,
		Output: c.App.ErrWriter,
	})
	logger := logging.NewLogger("top-agents")

	ctx := c.Context

	if cfg.Metrics.Addr != "" {
		srv := &http.Server{
			Addr:              cfg.Metrics.Addr,
			Handler:           metrics.NewMux(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info().Str("addr", cfg.Metrics.Addr).Msg("Serving metrics")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Msg("Metrics server failed")
			}
		}()
		defer shutdownMetrics(srv, logger)
	}

	var limiter funda.RateLimiter
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()

		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connect to redis at %s: %w", cfg.Redis.Addr, err)
		}
		logger.Info().Str("addr", cfg.Redis.Addr).Int("limit", cfg.Redis.RequestsPerMinute).Msg("Connected to Redis")
		limiter = ratelimit.NewTracker(rdb, cfg.Redis.RequestsPerMinute, logging.NewLogger("ratelimit"))
	}

	runner, err := newRunner(cfg, limiter)
	if err != nil {
		return err
	}

	results, err := runner.RunAll(ctx, cfg.Queries, cfg.QueryPause)
	printResults(c.App.Writer, results)
	return err
}

// shutdowner is the part of *http.Server used when stopping the metrics listener.
type shutdowner interface {
	Shutdown(ctx context.Context) error
}

// shutdownMetrics stops the metrics listener, waiting at most 5s for open scrapes.
func shutdownMetrics(srv shutdowner, logger zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn().Err(err).Msg("Metrics server shutdown failed")
	}
}

// newRunner wires the feed client, the paginator and the runner from cfg.
func newRunner(cfg config.Config, limiter funda.RateLimiter) (*agents.Runner, error) {
	clientLogger := logging.NewLogger("funda-client")
	client, err := funda.New(funda.Config{
		APIKey:      cfg.API.Key,
		Endpoint:    cfg.API.Endpoint,
		PageSize:    cfg.API.PageSize,
		ListingType: cfg.API.ListingType,
		Timeout:     cfg.API.Timeout,
		UserAgent:   cfg.API.UserAgent,
		RateLimiter: limiter,
		Logger:      &clientLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("create feed client: %w", err)
	}

	retryLogger := logging.NewLogger("retry")
	pagerLogger := logging.NewLogger("paginator")
	pager := pagination.New(client, pagination.Config{
		ThrottleEvery: cfg.Throttle.Every,
		ThrottleDelay: cfg.Throttle.Delay,
		Retry: retry.Policy{
			Name:       "feed-page",
			MaxRetries: cfg.Retry.MaxRetries,
			Backoff:    retry.Linear(cfg.Retry.BaseDelay),
			Classify:   funda.Classify,
			Logger:     &retryLogger,
		},
		Logger: &pagerLogger,
	})

	runnerLogger := logging.NewLogger("agents")
	return agents.NewRunner(pager, &runnerLogger), nil
}

// printResults writes each ranking as a title line followed by one line per agent.
func printResults(w io.Writer, results []agents.Result) {
	for i, res := range results {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "%s:\n", res.Query.Title)
		for _, a := range res.Agents {
			fmt.Fprintf(w, "%s - %d listings\n", a.Agent, a.Count)
		}
	}
}
