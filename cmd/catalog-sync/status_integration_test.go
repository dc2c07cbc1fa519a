//go:build integration

package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/Sternrassler/tcg-catalog-sync/internal/testutil"
	"github.com/Sternrassler/tcg-catalog-sync/pkg/syncstate"
)

func setupTestRedis(t *testing.T) (string, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	redisC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	host, err := redisC.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := redisC.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	return host + ":" + port.Port(), func() { redisC.Terminate(ctx) }
}

func TestSyncPublishesStatus(t *testing.T) {
	addr, cleanup := setupTestRedis(t)
	defer cleanup()

	mock := testutil.NewMockCatalog()
	defer mock.Close()

	cfg := testConfig(t, mock.URL())
	cfg.Redis.Addr = addr
	cfg.Redis.Prefix = "it"
	cfg.Redis.LockTTL = time.Minute

	if err := runSync(context.Background(), cfg, false, &bytes.Buffer{}); err != nil {
		t.Fatalf("runSync() error = %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()
	tracker := syncstate.NewTracker(client, "it", zerolog.Nop())

	var out bytes.Buffer
	if err := runStatus(context.Background(), tracker, true, &out); err != nil {
		t.Fatalf("runStatus() error = %v", err)
	}
	if !strings.HasSuffix(strings.TrimSpace(out.String()), "idle") {
		t.Errorf("status = %q, want finished run", out.String())
	}

	// The lock was released, so a second run can start.
	if err := tracker.AcquireLock(context.Background(), "other-run", time.Second); err != nil {
		t.Errorf("lock still held after run: %v", err)
	}
}
