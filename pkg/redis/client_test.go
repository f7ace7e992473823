package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/repairhub-backend/pkg/config"
)

func newMiniredisClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	client := NewFromClient(redis.NewClient(&redis.Options{Addr: srv.Addr()}))
	t.Cleanup(func() { _ = client.Close() })
	return client, srv
}

func TestIncrWithTTLSetsExpiryOnFirstIncrement(t *testing.T) {
	ctx := context.Background()
	client, srv := newMiniredisClient(t)

	count, err := client.IncrWithTTL(ctx, "k", time.Hour)
	if err != nil || count != 1 {
		t.Fatalf("first increment count=%d err=%v", count, err)
	}
	if ttl := srv.TTL("k"); ttl != time.Hour {
		t.Fatalf("expected 1h ttl, got %v", ttl)
	}

	srv.FastForward(30 * time.Minute)
	count, err = client.IncrWithTTL(ctx, "k", time.Hour)
	if err != nil || count != 2 {
		t.Fatalf("second increment count=%d err=%v", count, err)
	}
	if ttl := srv.TTL("k"); ttl != 30*time.Minute {
		t.Fatalf("ttl should not be refreshed, got %v", ttl)
	}

	if _, err := client.IncrWithTTL(ctx, "persistent", 0); err != nil {
		t.Fatalf("increment without ttl: %v", err)
	}
	if ttl := srv.TTL("persistent"); ttl != 0 {
		t.Fatalf("expected no ttl, got %v", ttl)
	}
}

func TestIdempotencyLifecycleAgainstMiniredis(t *testing.T) {
	ctx := context.Background()
	client, srv := newMiniredisClient(t)

	key := client.IdempotencyKey("batch-create", "abc")
	ok, err := client.SetNX(ctx, key, "pending", time.Minute)
	if err != nil || !ok {
		t.Fatalf("expected first SetNX to win, ok=%v err=%v", ok, err)
	}
	ok, err = client.SetNX(ctx, key, "other", time.Minute)
	if err != nil || ok {
		t.Fatalf("expected second SetNX to lose, ok=%v err=%v", ok, err)
	}
	if err := client.Set(ctx, key, "final", time.Hour); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	got, err := client.Get(ctx, key)
	if err != nil || got != "final" {
		t.Fatalf("unexpected value %q err=%v", got, err)
	}
	if ttl := srv.TTL(key); ttl != time.Hour {
		t.Fatalf("expected ttl 1h, got %v", ttl)
	}

	if err := client.Del(ctx, key); err != nil {
		t.Fatalf("del failed: %v", err)
	}
	if _, err := client.Get(ctx, key); !errors.Is(err, redis.Nil) {
		t.Fatalf("expected redis.Nil after delete, got %v", err)
	}
	if err := client.Ping(ctx); err != nil {
		t.Fatalf("ping failed: %v", err)
	}
}

func TestDelIfValueOnlyRemovesMatchingOwner(t *testing.T) {
	ctx := context.Background()
	client, srv := newMiniredisClient(t)

	if err := srv.Set("lease", "owner-b"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	removed, err := client.DelIfValue(ctx, "lease", "owner-a")
	if err != nil || removed {
		t.Fatalf("mismatched owner removed=%v err=%v", removed, err)
	}
	if got, _ := srv.Get("lease"); got != "owner-b" {
		t.Fatalf("lease changed to %q", got)
	}

	removed, err = client.DelIfValue(ctx, "lease", "owner-b")
	if err != nil || !removed {
		t.Fatalf("matching owner removed=%v err=%v", removed, err)
	}
	if srv.Exists("lease") {
		t.Fatal("lease still present")
	}

	removed, err = client.DelIfValue(ctx, "lease", "owner-b")
	if err != nil || removed {
		t.Fatalf("missing key removed=%v err=%v", removed, err)
	}
}

func TestUninitializedClientErrors(t *testing.T) {
	client := &Client{}
	if err := client.Ping(context.Background()); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}
	if _, err := client.DelIfValue(context.Background(), "k", "v"); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}
	if _, err := client.IncrWithTTL(context.Background(), "k", 0); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}
	if err := client.Close(); err != nil {
		t.Fatalf("close on zero client: %v", err)
	}
}

func TestKeyBuilders(t *testing.T) {
	client := &Client{}
	if got := client.IdempotencyKey("scope", "id"); got != "rh:idempotency:scope:id" {
		t.Fatalf("unexpected idempotency key %s", got)
	}
	if got := client.CounterKey("repair_order", "2026"); got != "rh:counter:repair_order:2026" {
		t.Fatalf("unexpected counter key %s", got)
	}
	if got := client.CounterKey("hits", " "); got != "rh:counter:hits" {
		t.Fatalf("counter key should skip blank parts, got %s", got)
	}
}

func TestOptionsPrecedence(t *testing.T) {
	opts, err := options(config.RedisConfig{
		URL:         "redis://:secret@cache:6380/3",
		Address:     "ignored:6379",
		DB:          1,
		PoolSize:    7,
		DialTimeout: 2 * time.Second,
	})
	if err != nil {
		t.Fatalf("options: %v", err)
	}
	if opts.Addr != "cache:6380" || opts.DB != 3 || opts.Password != "secret" {
		t.Fatalf("url settings should win: %+v", opts)
	}
	if opts.PoolSize != 7 || opts.DialTimeout != 2*time.Second {
		t.Fatalf("config should fill unset pool settings: %+v", opts)
	}

	opts, err = options(config.RedisConfig{Address: "localhost:6379", DB: 2})
	if err != nil || opts.Addr != "localhost:6379" || opts.DB != 2 {
		t.Fatalf("address fallback opts=%+v err=%v", opts, err)
	}

	if _, err := options(config.RedisConfig{}); err == nil {
		t.Fatal("expected error without url or address")
	}
}
