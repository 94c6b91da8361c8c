// Package config loads the ranker's settings from a YAML file and the environment.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/Sternrassler/funda-top-agents/pkg/agents"
	"github.com/Sternrassler/funda-top-agents/pkg/funda"
	"github.com/Sternrassler/funda-top-agents/pkg/logging"
	"github.com/Sternrassler/funda-top-agents/pkg/ratelimit"
	"gopkg.in/yaml.v3"
)

// Config is the complete runtime configuration.
type Config struct {
	API        APIConfig      `yaml:"api"`
	Retry      RetryConfig    `yaml:"retry"`
	Throttle   ThrottleConfig `yaml:"throttle"`
	Redis      RedisConfig    `yaml:"redis"`
	Log        LogConfig      `yaml:"log"`
	Metrics    MetricsConfig  `yaml:"metrics"`
	Queries    []agents.Query `yaml:"queries"`
	QueryPause time.Duration  `yaml:"query_pause"`
}

// APIConfig configures the feed client.
type APIConfig struct {
	Key         string        `yaml:"key"`
	Endpoint    string        `yaml:"endpoint"`
	PageSize    int           `yaml:"page_size"`
	ListingType string        `yaml:"listing_type"`
	Timeout     time.Duration `yaml:"timeout"`
	UserAgent   string        `yaml:"user_agent"`
}

// RetryConfig configures the page retry policy.
type RetryConfig struct {
	MaxRetries int           `yaml:"max_retries"`
	BaseDelay  time.Duration `yaml:"base_delay"`
}

// ThrottleConfig configures the periodic pause between pages.
type ThrottleConfig struct {
	Every int           `yaml:"every"`
	Delay time.Duration `yaml:"delay"`
}

// RedisConfig enables the shared request window. An empty Addr disables it.
type RedisConfig struct {
	Addr              string `yaml:"addr"`
	Password          string `yaml:"password"`
	DB                int    `yaml:"db"`
	RequestsPerMinute int    `yaml:"requests_per_minute"`
}

// LogConfig configures zerolog output.
type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// MetricsConfig enables the /metrics listener. An empty Addr disables it.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns the configuration used when no file is given: the two
// Amsterdam searches, top 10 each, one minute apart.
func Default() Config {
	return Config{
		API: APIConfig{
			Endpoint:    funda.DefaultEndpoint,
			PageSize:    funda.DefaultPageSize,
			ListingType: funda.DefaultListingType,
			Timeout:     funda.DefaultTimeout,
			UserAgent:   funda.DefaultUserAgent,
		},
		Retry: RetryConfig{
			MaxRetries: 3,
			BaseDelay:  10 * time.Second,
		},
		Throttle: ThrottleConfig{
			Every: 10,
			Delay: 5 * time.Second,
		},
		Redis: RedisConfig{
			RequestsPerMinute: ratelimit.DefaultRequestsPerMinute,
		},
		Log: LogConfig{
			Level: string(logging.LevelInfo),
		},
		Queries: []agents.Query{
			{SearchPath: "/amsterdam/", Title: "Top 10 agents listings in Amsterdam", TopCount: 10},
			{SearchPath: "/amsterdam/tuin/", Title: "Top 10 agents with garden listings in Amsterdam", TopCount: 10},
		},
		QueryPause: time.Minute,
	}
}

// Load reads a YAML file on top of Default. Unknown keys are rejected.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}

	return cfg, nil
}

// ApplyEnv overrides settings from environment variables using lookup
// (os.LookupEnv in production).
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("FUNDA_API_KEY"); ok && v != "" {
		c.API.Key = v
	}
	if v, ok := lookup("FUNDA_API_ENDPOINT"); ok && v != "" {
		c.API.Endpoint = v
	}
	if v, ok := lookup("REDIS_URL"); ok {
		c.Redis.Addr = v
	}
	if v, ok := lookup("REDIS_PASSWORD"); ok {
		c.Redis.Password = v
	}
	if v, ok := lookup("LOG_LEVEL"); ok && v != "" {
		c.Log.Level = v
	}
	if v, ok := lookup("METRICS_ADDR"); ok {
		c.Metrics.Addr = v
	}
	if v, ok := lookup("FUNDA_MAX_RETRIES"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse FUNDA_MAX_RETRIES: %w", err)
		}
		c.Retry.MaxRetries = n
	}
	return nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.API.Key == "" {
		return fmt.Errorf("api key is required (set api.key or FUNDA_API_KEY)")
	}
	if c.API.PageSize <= 0 {
		return fmt.Errorf("api.page_size must be > 0 (got %d)", c.API.PageSize)
	}
	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("retry.max_retries must be >= 0 (got %d)", c.Retry.MaxRetries)
	}
	if c.Retry.BaseDelay < 0 {
		return fmt.Errorf("retry.base_delay must be >= 0 (got %s)", c.Retry.BaseDelay)
	}
	if c.Throttle.Every < 0 {
		return fmt.Errorf("throttle.every must be >= 0 (got %d)", c.Throttle.Every)
	}
	if c.Redis.RequestsPerMinute < 0 {
		return fmt.Errorf("redis.requests_per_minute must be >= 0 (got %d)", c.Redis.RequestsPerMinute)
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	if len(c.Queries) == 0 {
		return fmt.Errorf("at least one query is required")
	}
	for i, q := range c.Queries {
		if q.SearchPath == "" {
			return fmt.Errorf("queries[%d]: search_path is required", i)
		}
	}
	return nil
}
