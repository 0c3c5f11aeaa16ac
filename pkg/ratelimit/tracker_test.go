package ratelimit

import (
	"context"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15, // Use a separate DB for tests
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available for testing: %v", err)
	}
	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("Failed to flush test DB: %v", err)
	}

	t.Cleanup(func() {
		client.FlushDB(context.Background())
		client.Close()
	})
	return client
}

func newTestTracker(t *testing.T, maxWait time.Duration) (*Tracker, *[]time.Duration) {
	t.Helper()
	logger := zerolog.New(os.Stderr).Level(zerolog.Disabled)
	tracker := NewTracker(setupTestRedis(t), logger, maxWait)

	waits := []time.Duration{}
	tracker.sleep = func(ctx context.Context, d time.Duration) error {
		waits = append(waits, d)
		return ctx.Err()
	}
	return tracker, &waits
}

func TestNewTracker_DefaultMaxWait(t *testing.T) {
	tracker := NewTracker(nil, zerolog.Nop(), 0)
	if tracker.MaxWait() != DefaultMaxWait {
		t.Errorf("MaxWait() = %v, want %v", tracker.MaxWait(), DefaultMaxWait)
	}
}

func TestTracker_Observe_IgnoresNonBlockingResponses(t *testing.T) {
	// Observe returns before touching Redis, so a nil client is fine.
	tracker := NewTracker(nil, zerolog.Nop(), time.Minute)

	tests := []struct {
		name   string
		status int
		header http.Header
	}{
		{"ok response", 200, http.Header{"Retry-After": []string{"10"}}},
		{"server error", 500, http.Header{"Retry-After": []string{"10"}}},
		{"429 without header", 429, http.Header{}},
		{"503 with garbage header", 503, http.Header{"Retry-After": []string{"later"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tracker.Observe(context.Background(), "example.test", tt.status, tt.header); err != nil {
				t.Errorf("Observe() error = %v", err)
			}
		})
	}
}

func TestTracker_ObserveThenWait(t *testing.T) {
	tracker, waits := newTestTracker(t, time.Minute)
	ctx := context.Background()

	h := http.Header{}
	h.Set("Retry-After", "20")
	if err := tracker.Observe(ctx, "www.goodreads.com", http.StatusTooManyRequests, h); err != nil {
		t.Fatalf("Observe() error = %v", err)
	}

	state, err := tracker.GetState(ctx, "www.goodreads.com")
	if err != nil || state == nil {
		t.Fatalf("GetState() = %v, %v", state, err)
	}
	if state.LastStatus != http.StatusTooManyRequests || !state.IsBlocked() {
		t.Errorf("state = %+v, want blocked by 429", state)
	}

	if err := tracker.Wait(ctx, "www.goodreads.com"); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if len(*waits) != 1 || (*waits)[0] <= 19*time.Second || (*waits)[0] > 20*time.Second {
		t.Errorf("waits = %v, want one wait of about 20s", *waits)
	}

	// Other hosts are unaffected.
	if err := tracker.Wait(ctx, "www.azquotes.com"); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if len(*waits) != 1 {
		t.Errorf("unblocked host waited: %v", *waits)
	}
}

func TestTracker_WaitBoundedByMaxWait(t *testing.T) {
	tracker, waits := newTestTracker(t, 5*time.Second)
	ctx := context.Background()

	h := http.Header{}
	h.Set("Retry-After", "3600")
	if err := tracker.Observe(ctx, "example.test", http.StatusServiceUnavailable, h); err != nil {
		t.Fatalf("Observe() error = %v", err)
	}
	if err := tracker.Wait(ctx, "example.test"); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if len(*waits) != 1 || (*waits)[0] != 5*time.Second {
		t.Errorf("waits = %v, want [5s]", *waits)
	}
}

func TestTracker_WaitCancelled(t *testing.T) {
	tracker, _ := newTestTracker(t, time.Minute)

	h := http.Header{}
	h.Set("Retry-After", "30")
	if err := tracker.Observe(context.Background(), "example.test", http.StatusTooManyRequests, h); err != nil {
		t.Fatalf("Observe() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := tracker.Wait(ctx, "example.test"); err == nil {
		t.Error("Wait() on cancelled context should return error")
	}
}
