package syncstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/tcg-catalog-sync/pkg/logging"
)

// releaseScript deletes the lock only if it still holds the caller's run id.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// refreshScript extends the lock's expiry only if it still holds the caller's
// run id.
var refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// Tracker reads and writes sync state in Redis.
type Tracker struct {
	redis  *redis.Client
	prefix string
	logger zerolog.Logger
}

// NewTracker creates a new tracker. An empty prefix uses DefaultPrefix.
func NewTracker(redisClient *redis.Client, prefix string, logger zerolog.Logger) *Tracker {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Tracker{
		redis:  redisClient,
		prefix: prefix,
		logger: logger,
	}
}

// Publish stores snap as the latest snapshot and notifies subscribers.
func (t *Tracker) Publish(ctx context.Context, snap Snapshot) error {
	if snap.UpdatedAt.IsZero() {
		snap.UpdatedAt = time.Now().UTC()
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	pipe := t.redis.Pipeline()
	pipe.Set(ctx, t.prefix+keySnapshot, data, 0)
	pipe.Publish(ctx, t.prefix+keyUpdates, data)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("publish snapshot: %w", err)
	}

	t.logger.Debug().
		Str(logging.FieldRunID, snap.RunID).
		Str("state", snap.Progress.State.String()).
		Int(logging.FieldPercent, snap.Progress.Percent).
		Msg("Snapshot published")
	return nil
}

// Latest returns the most recently published snapshot.
func (t *Tracker) Latest(ctx context.Context) (*Snapshot, error) {
	data, err := t.redis.Get(ctx, t.prefix+keySnapshot).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("get snapshot: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("parse snapshot: %w", err)
	}
	return &snap, nil
}

// Subscribe delivers snapshots published after the subscription is
// confirmed. The channel closes when ctx is done.
func (t *Tracker) Subscribe(ctx context.Context) (<-chan Snapshot, error) {
	sub := t.redis.Subscribe(ctx, t.prefix+keyUpdates)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("subscribe: %w", err)
	}

	out := make(chan Snapshot)
	go func() {
		defer close(out)
		defer sub.Close()

		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var snap Snapshot
				if err := json.Unmarshal([]byte(msg.Payload), &snap); err != nil {
					t.logger.Warn().Err(err).Msg("Dropping malformed snapshot")
					continue
				}
				select {
				case out <- snap:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// AcquireLock takes the run lock for runID. It expires after ttl so a
// crashed run cannot block later ones forever.
func (t *Tracker) AcquireLock(ctx context.Context, runID string, ttl time.Duration) error {
	ok, err := t.redis.SetNX(ctx, t.prefix+keyLock, runID, ttl).Result()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		holder, _ := t.redis.Get(ctx, t.prefix+keyLock).Result()
		t.logger.Warn().Str(logging.FieldRunID, runID).Str("holder", holder).Msg("Sync lock busy")
		return fmt.Errorf("%w (holder %s)", ErrLocked, holder)
	}

	t.logger.Debug().Str(logging.FieldRunID, runID).Dur("ttl", ttl).Msg("Sync lock acquired")
	return nil
}

// ReleaseLock frees the run lock if runID still holds it.
func (t *Tracker) ReleaseLock(ctx context.Context, runID string) error {
	n, err := releaseScript.Run(ctx, t.redis, []string{t.prefix + keyLock}, runID).Int()
	if err != nil {
		return fmt.Errorf("release lock: %w", err)
	}
	if n == 0 {
		return ErrNotLockHolder
	}

	t.logger.Debug().Str(logging.FieldRunID, runID).Msg("Sync lock released")
	return nil
}

// RefreshLock resets the lock's expiry to ttl if runID still holds it.
func (t *Tracker) RefreshLock(ctx context.Context, runID string, ttl time.Duration) error {
	n, err := refreshScript.Run(ctx, t.redis, []string{t.prefix + keyLock}, runID, ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("refresh lock: %w", err)
	}
	if n == 0 {
		return ErrNotLockHolder
	}
	return nil
}

// KeepLock refreshes the lock every ttl/3 until stop is called or ctx ends.
// Redis errors are retried on the next tick. If another run takes over or
// the key disappears, onLost is called once and refreshing stops.
func (t *Tracker) KeepLock(ctx context.Context, runID string, ttl time.Duration, onLost func(error)) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)
		ticker := time.NewTicker(max(ttl/3, time.Millisecond))
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			err := t.RefreshLock(ctx, runID, ttl)
			switch {
			case err == nil:
				t.logger.Debug().Str(logging.FieldRunID, runID).Msg("Sync lock refreshed")
			case errors.Is(err, ErrNotLockHolder):
				t.logger.Error().Str(logging.FieldRunID, runID).Msg("Sync lock lost")
				if onLost != nil {
					onLost(err)
				}
				return
			case ctx.Err() != nil:
				return
			default:
				t.logger.Warn().Err(err).Str(logging.FieldRunID, runID).Msg("Sync lock refresh failed")
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}
