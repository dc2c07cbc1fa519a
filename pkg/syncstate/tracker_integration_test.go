//go:build integration

package syncstate

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/Sternrassler/tcg-catalog-sync/pkg/syncer"
)

// setupRedis starts a Redis container and returns a client
func setupRedis(t *testing.T) (*redis.Client, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	endpoint, err := redisContainer.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("Failed to get Redis endpoint: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: endpoint})
	if err := client.Ping(ctx).Err(); err != nil {
		t.Fatalf("Failed to connect to Redis: %v", err)
	}

	cleanup := func() {
		client.Close()
		redisContainer.Terminate(ctx)
	}

	return client, cleanup
}

func TestTracker_Integration_RunLifecycle(t *testing.T) {
	client, cleanup := setupRedis(t)
	defer cleanup()

	tracker := NewTracker(client, "", zerolog.New(os.Stderr).Level(zerolog.Disabled))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := tracker.AcquireLock(ctx, "run-1", 2*time.Second); err != nil {
		t.Fatalf("AcquireLock() error = %v", err)
	}

	updates, err := tracker.Subscribe(ctx)
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	sequence := []syncer.Progress{syncer.Loading(0), syncer.Loading(50), syncer.Success(), syncer.Idle()}
	for _, p := range sequence {
		if err := tracker.Publish(ctx, Snapshot{RunID: "run-1", Progress: p}); err != nil {
			t.Fatalf("Publish() error = %v", err)
		}
	}

	received := 0
	for snap := range updates {
		if snap.Progress != sequence[received] {
			t.Errorf("update %d = %v, want %v", received, snap.Progress, sequence[received])
		}
		received++
		if snap.Finished() {
			break
		}
	}
	if received != len(sequence) {
		t.Errorf("received %d updates, want %d", received, len(sequence))
	}

	latest, err := tracker.Latest(ctx)
	if err != nil {
		t.Fatalf("Latest() error = %v", err)
	}
	if !latest.Finished() {
		t.Errorf("Latest() = %v, want idle", latest.Progress)
	}

	// The lock expires on its own when the holder never releases it.
	time.Sleep(2500 * time.Millisecond)
	if err := tracker.AcquireLock(ctx, "run-2", time.Minute); err != nil {
		t.Errorf("AcquireLock() after expiry error = %v", err)
	}
	if err := tracker.ReleaseLock(ctx, "run-1"); !errors.Is(err, ErrNotLockHolder) {
		t.Errorf("ReleaseLock(stale) error = %v, want ErrNotLockHolder", err)
	}
}

func TestTracker_Integration_KeepLockOutlivesTTL(t *testing.T) {
	client, cleanup := setupRedis(t)
	defer cleanup()

	tracker := NewTracker(client, "", zerolog.New(os.Stderr).Level(zerolog.Disabled))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	ttl := time.Second
	if err := tracker.AcquireLock(ctx, "run-1", ttl); err != nil {
		t.Fatalf("AcquireLock() error = %v", err)
	}
	stop := tracker.KeepLock(ctx, "run-1", ttl, func(err error) { t.Errorf("lock lost: %v", err) })

	time.Sleep(3 * ttl)
	if err := tracker.AcquireLock(ctx, "run-2", time.Minute); !errors.Is(err, ErrLocked) {
		t.Errorf("AcquireLock(run-2) during long run error = %v, want ErrLocked", err)
	}

	stop()
	if err := tracker.ReleaseLock(ctx, "run-1"); err != nil {
		t.Errorf("ReleaseLock() error = %v", err)
	}
}
