package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func envMap(m map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Retry.MaxRetries != 3 || cfg.Retry.BaseDelay != 10*time.Second {
		t.Errorf("Retry = %+v, want 3 retries with 10s base", cfg.Retry)
	}
	if cfg.Throttle.Every != 10 || cfg.Throttle.Delay != 5*time.Second {
		t.Errorf("Throttle = %+v, want every 10 pages for 5s", cfg.Throttle)
	}
	if cfg.API.PageSize != 25 {
		t.Errorf("PageSize = %d, want 25", cfg.API.PageSize)
	}
	if len(cfg.Queries) != 2 || cfg.Queries[1].SearchPath != "/amsterdam/tuin/" {
		t.Errorf("Queries = %+v", cfg.Queries)
	}
	if cfg.QueryPause != time.Minute {
		t.Errorf("QueryPause = %v, want 1m", cfg.QueryPause)
	}
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
api:
  key: secret
  page_size: 10
  timeout: 5s
retry:
  base_delay: 2s
throttle:
  delay: 1s
queries:
  - search_path: /rotterdam/
    title: Rotterdam
    top_count: 5
query_pause: 30s
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.API.Key != "secret" {
		t.Errorf("API.Key = %q, want secret", cfg.API.Key)
	}
	if cfg.API.PageSize != 10 {
		t.Errorf("API.PageSize = %d, want 10", cfg.API.PageSize)
	}
	if cfg.API.Timeout != 5*time.Second {
		t.Errorf("API.Timeout = %v, want 5s", cfg.API.Timeout)
	}
	if cfg.Retry.BaseDelay != 2*time.Second {
		t.Errorf("Retry.BaseDelay = %v, want 2s", cfg.Retry.BaseDelay)
	}
	if cfg.Retry.MaxRetries != 3 {
		t.Errorf("Retry.MaxRetries = %d, want default 3", cfg.Retry.MaxRetries)
	}
	if cfg.Throttle.Every != 10 || cfg.Throttle.Delay != time.Second {
		t.Errorf("Throttle = %+v", cfg.Throttle)
	}
	if len(cfg.Queries) != 1 || cfg.Queries[0].SearchPath != "/rotterdam/" || cfg.Queries[0].TopCount != 5 {
		t.Errorf("Queries = %+v, want only /rotterdam/", cfg.Queries)
	}
	if cfg.QueryPause != 30*time.Second {
		t.Errorf("QueryPause = %v, want 30s", cfg.QueryPause)
	}
}

func TestLoad_EmptyFile(t *testing.T) {
	cfg, err := Load(writeConfig(t, ""))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.API.Endpoint != Default().API.Endpoint {
		t.Errorf("Expected defaults for empty file, got %+v", cfg.API)
	}
}

func TestLoad_UnknownField(t *testing.T) {
	_, err := Load(writeConfig(t, "api:\n  kee: typo\n"))
	if err == nil {
		t.Fatal("Expected error for unknown field, got nil")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil || !strings.Contains(err.Error(), "read config") {
		t.Errorf("Expected read error, got %v", err)
	}
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(envMap(map[string]string{
		"FUNDA_API_KEY":      "env-key",
		"FUNDA_API_ENDPOINT": "http://localhost:9999/feed",
		"REDIS_URL":          "localhost:6380",
		"LOG_LEVEL":          "debug",
		"METRICS_ADDR":       ":9090",
		"FUNDA_MAX_RETRIES":  "5",
	}))
	if err != nil {
		t.Fatalf("ApplyEnv() error = %v", err)
	}

	if cfg.API.Key != "env-key" {
		t.Errorf("API.Key = %q", cfg.API.Key)
	}
	if cfg.API.Endpoint != "http://localhost:9999/feed" {
		t.Errorf("API.Endpoint = %q", cfg.API.Endpoint)
	}
	if cfg.Redis.Addr != "localhost:6380" {
		t.Errorf("Redis.Addr = %q", cfg.Redis.Addr)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q", cfg.Log.Level)
	}
	if cfg.Metrics.Addr != ":9090" {
		t.Errorf("Metrics.Addr = %q", cfg.Metrics.Addr)
	}
	if cfg.Retry.MaxRetries != 5 {
		t.Errorf("Retry.MaxRetries = %d", cfg.Retry.MaxRetries)
	}
}

func TestApplyEnv_InvalidNumber(t *testing.T) {
	cfg := Default()
	if err := cfg.ApplyEnv(envMap(map[string]string{"FUNDA_MAX_RETRIES": "many"})); err == nil {
		t.Error("Expected error for non-numeric FUNDA_MAX_RETRIES")
	}
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		cfg := Default()
		cfg.API.Key = "key"
		return cfg
	}

	tests := []struct {
		name     string
		mutate   func(*Config)
		errorMsg string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "missing key", mutate: func(c *Config) { c.API.Key = "" }, errorMsg: "api key is required"},
		{name: "zero page size", mutate: func(c *Config) { c.API.PageSize = 0 }, errorMsg: "page_size"},
		{name: "negative retries", mutate: func(c *Config) { c.Retry.MaxRetries = -1 }, errorMsg: "max_retries"},
		{name: "negative throttle", mutate: func(c *Config) { c.Throttle.Every = -1 }, errorMsg: "throttle.every"},
		{name: "bad log level", mutate: func(c *Config) { c.Log.Level = "verbose" }, errorMsg: "log.level"},
		{name: "no queries", mutate: func(c *Config) { c.Queries = nil }, errorMsg: "at least one query"},
		{name: "query without path", mutate: func(c *Config) { c.Queries[0].SearchPath = "" }, errorMsg: "queries[0]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.errorMsg == "" {
				if err != nil {
					t.Errorf("Unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.errorMsg) {
				t.Errorf("Validate() error = %v, want it to mention %q", err, tt.errorMsg)
			}
		})
	}
}
