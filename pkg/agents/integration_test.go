//go:build integration

package agents_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"testing"
	"time"

	"github.com/Sternrassler/funda-top-agents/internal/testutil"
	"github.com/Sternrassler/funda-top-agents/pkg/agents"
	"github.com/Sternrassler/funda-top-agents/pkg/funda"
	"github.com/Sternrassler/funda-top-agents/pkg/pagination"
	"github.com/Sternrassler/funda-top-agents/pkg/ranking"
	"github.com/Sternrassler/funda-top-agents/pkg/ratelimit"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const testKey = "dummy"

// setupRedis creates a Redis container for integration testing.
func setupRedis(t *testing.T) (*redis.Client, func()) {
	t.Helper()

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := container.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr: host + ":" + port.Port(),
	})

	cleanup := func() {
		redisClient.Close()
		container.Terminate(ctx)
	}

	return redisClient, cleanup
}

// newRunner wires the full pipeline against the mock feed with the Redis window
// limiter in front of every request and no waits between retries or pages.
func newRunner(t *testing.T, mock *testutil.MockFunda, tracker *ratelimit.Tracker) *agents.Runner {
	t.Helper()

	nop := zerolog.Nop()

	cfg := funda.DefaultConfig(testKey)
	cfg.Endpoint = mock.URL()
	cfg.RateLimiter = tracker
	cfg.Logger = &nop
	client, err := funda.New(cfg)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	noWait := func(context.Context, time.Duration) error { return nil }
	pcfg := pagination.DefaultConfig(funda.Classify)
	pcfg.Sleep = noWait
	pcfg.Retry.Sleep = noWait
	pcfg.Logger = &nop

	return agents.NewRunner(pagination.New(client, pcfg), &nop)
}

// waitForFreshWindow avoids starting a test right before the minute boundary.
func waitForFreshWindow(t *testing.T) {
	t.Helper()
	untilNext := time.Until(time.Now().Truncate(ratelimit.Window).Add(ratelimit.Window))
	if untilNext < 5*time.Second {
		time.Sleep(untilNext + 100*time.Millisecond)
	}
}

func windowKey(t time.Time) string {
	return fmt.Sprintf("%s%d", ratelimit.RedisKeyWindowPrefix, t.Truncate(ratelimit.Window).Unix())
}

// TestFullQueryFlow tests the complete flow: Rate Limit → Feed → Pagination → Ranking.
func TestFullQueryFlow(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()
	waitForFreshWindow(t)

	mock := testutil.NewMockFunda(testKey)
	defer mock.Close()
	mock.SetSearch("/amsterdam/",
		[]string{"Agent A", "Agent B"},
		[]string{"Agent C", "Agent A"},
		[]string{"Agent A"},
	)

	tracker := ratelimit.NewTracker(redisClient, 100, zerolog.Nop())
	ctx := context.Background()

	got, err := newRunner(t, mock, tracker).Run(ctx, agents.Query{SearchPath: "/amsterdam/", Title: "Amsterdam", TopCount: 10})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	want := []ranking.RankedAgent{
		{Agent: "Agent A", Count: 3},
		{Agent: "Agent B", Count: 1},
		{Agent: "Agent C", Count: 1},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Run() = %v, want %v", got, want)
	}

	state, err := tracker.GetState(ctx)
	if err != nil {
		t.Fatalf("GetState() error = %v", err)
	}
	if state.Requests != 3 {
		t.Errorf("window requests = %d, want 3", state.Requests)
	}
}

// TestRateLimitSharedAcrossRunners verifies two runners count against one window.
func TestRateLimitSharedAcrossRunners(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()
	waitForFreshWindow(t)

	mock := testutil.NewMockFunda(testKey)
	defer mock.Close()
	mock.SetSearch("/amsterdam/", []string{"Agent A"}, []string{"Agent B"})
	mock.SetSearch("/amsterdam/tuin/", []string{"Agent B"})

	ctx := context.Background()
	first := newRunner(t, mock, ratelimit.NewTracker(redisClient, 100, zerolog.Nop()))
	second := newRunner(t, mock, ratelimit.NewTracker(redisClient, 100, zerolog.Nop()))

	if _, err := first.Run(ctx, agents.Query{SearchPath: "/amsterdam/"}); err != nil {
		t.Fatalf("first Run() error = %v", err)
	}
	if _, err := second.Run(ctx, agents.Query{SearchPath: "/amsterdam/tuin/"}); err != nil {
		t.Fatalf("second Run() error = %v", err)
	}

	count, err := redisClient.Get(ctx, windowKey(time.Now())).Int()
	if err != nil {
		t.Fatalf("read window counter: %v", err)
	}
	if count != 3 {
		t.Errorf("window counter = %d, want 3", count)
	}
}

// TestRateLimitBlock tests that an exhausted window holds requests back.
func TestRateLimitBlock(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()
	waitForFreshWindow(t)

	mock := testutil.NewMockFunda(testKey)
	defer mock.Close()
	mock.SetSearch("/amsterdam/", []string{"Agent A"})

	// Pre-seed the current window with the whole budget
	redisClient.Set(context.Background(), windowKey(time.Now()), 5, time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	_, err := newRunner(t, mock, ratelimit.NewTracker(redisClient, 5, zerolog.Nop())).
		Run(ctx, agents.Query{SearchPath: "/amsterdam/"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected request to wait for the next window, got %v", err)
	}

	// Verify no request reached the feed
	if mock.GetRequestCount() != 0 {
		t.Errorf("feed requests = %d, want 0 (blocked)", mock.GetRequestCount())
	}
}

// TestRetry5xxErrors tests that 5xx errors are retried and counted by the limiter.
func TestRetry5xxErrors(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()
	waitForFreshWindow(t)

	mock := testutil.NewMockFunda(testKey)
	defer mock.Close()
	mock.SetSearch("/amsterdam/", []string{"Agent A"})
	mock.FailPage("/amsterdam/", 1, http.StatusServiceUnavailable, http.StatusBadGateway)

	tracker := ratelimit.NewTracker(redisClient, 100, zerolog.Nop())
	ctx := context.Background()

	got, err := newRunner(t, mock, tracker).Run(ctx, agents.Query{SearchPath: "/amsterdam/"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(got) != 1 || got[0].Agent != "Agent A" {
		t.Errorf("Run() = %v", got)
	}

	if mock.GetRequestCount() != 3 {
		t.Errorf("feed requests = %d, want 3 (2 failures + 1 success)", mock.GetRequestCount())
	}

	state, err := tracker.GetState(ctx)
	if err != nil {
		t.Fatalf("GetState() error = %v", err)
	}
	if state.Requests != 3 {
		t.Errorf("window requests = %d, want 3", state.Requests)
	}
}

// TestNoRetry4xxErrors tests that client errors fail the query immediately.
func TestNoRetry4xxErrors(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	mock := testutil.NewMockFunda(testKey)
	defer mock.Close()
	mock.SetSearch("/amsterdam/", []string{"Agent A"})
	mock.FailPage("/amsterdam/", 1, http.StatusNotFound)

	tracker := ratelimit.NewTracker(redisClient, 100, zerolog.Nop())

	_, err := newRunner(t, mock, tracker).Run(context.Background(), agents.Query{SearchPath: "/amsterdam/"})
	if funda.StatusCode(err) != http.StatusNotFound {
		t.Errorf("Expected 404 in error chain, got %v", err)
	}
	if mock.GetRequestCount() != 1 {
		t.Errorf("feed requests = %d, want 1 (no retry)", mock.GetRequestCount())
	}
}
