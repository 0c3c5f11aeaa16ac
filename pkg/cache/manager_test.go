package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// setupTestRedis connects to a local Redis and skips when none is running.
// tests/integration covers the same paths against a testcontainers Redis.
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

func TestNewManager(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	defer client.Close()

	manager := NewManager(client, 0)
	if manager.redis != client {
		t.Error("Manager redis client not set correctly")
	}
	if manager.ttl != DefaultTTL {
		t.Errorf("ttl = %v, want %v", manager.ttl, DefaultTTL)
	}
}

func TestNewManager_Panic(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("NewManager should panic with nil redis client")
		}
	}()
	NewManager(nil, time.Minute)
}

func TestManager_StoreAndLookup(t *testing.T) {
	manager := NewManager(setupTestRedis(t), time.Minute)
	ctx := context.Background()
	pageURL := "https://www.azquotes.com/quotes/topics/life.html?p=1"

	if _, err := manager.Lookup(ctx, pageURL); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("Lookup before Store: err = %v, want ErrCacheMiss", err)
	}

	body := []byte("<html><div class=\"wrap-block\"></div></html>")
	if err := manager.Store(ctx, pageURL, body, "text/html; charset=utf-8"); err != nil {
		t.Fatalf("Store failed: %v", err)
	}

	got, err := manager.Lookup(ctx, pageURL)
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if string(got) != string(body) {
		t.Errorf("Lookup body = %q, want %q", got, body)
	}

	entry, err := manager.Get(ctx, PageKey{URL: pageURL})
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if entry.ContentType != "text/html; charset=utf-8" || entry.FetchedAt.IsZero() {
		t.Errorf("entry metadata not stored: %+v", entry)
	}
}

func TestManager_Set_ExpiredEntryNotStored(t *testing.T) {
	manager := NewManager(setupTestRedis(t), time.Minute)
	ctx := context.Background()
	key := PageKey{URL: "https://example.test/expired"}

	if err := manager.Set(ctx, key, &Entry{Body: []byte("x"), Expires: time.Now().Add(-time.Hour)}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if _, err := manager.Get(ctx, key); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Get expired entry: err = %v, want ErrCacheMiss", err)
	}
}

func TestManager_Get_InvalidEntry(t *testing.T) {
	client := setupTestRedis(t)
	manager := NewManager(client, time.Minute)
	ctx := context.Background()
	key := PageKey{URL: "https://example.test/garbage"}

	if err := client.Set(ctx, key.String(), "not json", time.Minute).Err(); err != nil {
		t.Fatalf("seed garbage: %v", err)
	}
	if _, err := manager.Get(ctx, key); !errors.Is(err, ErrInvalidEntry) {
		t.Errorf("Get garbage: err = %v, want ErrInvalidEntry", err)
	}
}

func TestManager_Delete(t *testing.T) {
	manager := NewManager(setupTestRedis(t), time.Minute)
	ctx := context.Background()
	pageURL := "https://example.test/delete-me"

	if err := manager.Store(ctx, pageURL, []byte("body"), ""); err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	if err := manager.Delete(ctx, PageKey{URL: pageURL}); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := manager.Lookup(ctx, pageURL); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Lookup after Delete: err = %v, want ErrCacheMiss", err)
	}
}

func TestManager_Evict(t *testing.T) {
	manager := NewManager(setupTestRedis(t), time.Minute)
	ctx := context.Background()
	pageURL := "https://example.test/maintenance?p=2"

	if err := manager.Store(ctx, pageURL, []byte("<html>down for maintenance</html>"), "text/html"); err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	if err := manager.Evict(ctx, pageURL); err != nil {
		t.Fatalf("Evict failed: %v", err)
	}
	if _, err := manager.Lookup(ctx, pageURL); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Lookup after Evict: err = %v, want ErrCacheMiss", err)
	}
	// Evicting an absent page is not an error.
	if err := manager.Evict(ctx, pageURL); err != nil {
		t.Errorf("second Evict: err = %v", err)
	}
}

func TestManager_Set_NilEntry(t *testing.T) {
	manager := NewManager(setupTestRedis(t), time.Minute)
	if err := manager.Set(context.Background(), PageKey{URL: "https://example.test/"}, nil); err == nil {
		t.Error("Set with nil entry should return error")
	}
}
