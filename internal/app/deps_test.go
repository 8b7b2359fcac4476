package app

import (
	"context"
	"testing"
	"time"

	"github.com/vidfriends/friendships/internal/config"
	"github.com/vidfriends/friendships/internal/models"
)

func TestBuildDependencies(t *testing.T) {
	ctx := context.Background()
	cfg := config.Config{
		StoreDriver:      config.DriverMemory,
		OperationTimeout: time.Second,
		FanoutLimit:      4,
		RateLimit:        config.RateLimitConfig{Requests: 10, Window: time.Second, Burst: 1},
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()

	deps := buildDependencies(store, cfg)
	if deps.Engine == nil {
		t.Fatal("expected relationship engine to be configured")
	}
	if deps.Queries == nil {
		t.Fatal("expected relationship queries to be configured")
	}
	if deps.Limiter == nil {
		t.Fatal("expected rate limiter to be configured")
	}
	if deps.StoreName != config.DriverMemory {
		t.Fatalf("expected store name %q got %q", config.DriverMemory, deps.StoreName)
	}

	if _, err := deps.Engine.SendRequest(ctx, models.UserKey("alice"), models.UserKey("bob")); err != nil {
		t.Fatalf("send request through wired engine: %v", err)
	}
	pending, err := deps.Queries.ListPendingIncoming(ctx, models.UserKey("bob"), models.Page{})
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected one pending request got %d", len(pending))
	}
}

func TestOpenStoreSQLite(t *testing.T) {
	ctx := context.Background()
	cfg := config.Config{
		StoreDriver: config.DriverSQLite,
		SQLitePath:  "file:app-deps-test?mode=memory&cache=shared",
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()

	if store.ping == nil {
		t.Fatal("expected sqlite store to expose a health check")
	}
	if err := store.ping(ctx); err != nil {
		t.Fatalf("ping sqlite: %v", err)
	}

	deps := buildDependencies(store, cfg)
	if _, err := deps.Engine.Block(ctx, models.UserKey("alice"), models.UserKey("bob")); err != nil {
		t.Fatalf("block through sqlite store: %v", err)
	}
}

func TestOpenStoreUnknownDriver(t *testing.T) {
	if _, err := openStore(context.Background(), config.Config{StoreDriver: "cassandra"}); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}
