// Package syncstate shares sync run state through Redis: the latest progress
// snapshot, a pub/sub channel of updates for observers, and a lock that keeps
// runs from overlapping across processes.
package syncstate

import (
	"errors"
	"time"

	"github.com/Sternrassler/tcg-catalog-sync/pkg/syncer"
)

// DefaultPrefix namespaces every Redis key and channel.
const DefaultPrefix = "catalog_sync"

// Key suffixes appended to the prefix.
const (
	keySnapshot = ":snapshot"
	keyUpdates  = ":updates"
	keyLock     = ":lock"
)

var (
	// ErrNoSnapshot is returned by Latest when no run has published yet.
	ErrNoSnapshot = errors.New("no sync snapshot")

	// ErrLocked is returned by AcquireLock when another run holds the lock.
	ErrLocked = errors.New("sync lock held by another run")

	// ErrNotLockHolder is returned by ReleaseLock when the lock belongs to
	// another run or has expired.
	ErrNotLockHolder = errors.New("sync lock not held by this run")
)

// Snapshot is the published state of a run.
type Snapshot struct {
	RunID     string          `json:"run_id"`
	Progress  syncer.Progress `json:"progress"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Finished reports whether the run has reached its final Idle state.
func (s Snapshot) Finished() bool {
	return s.Progress.State == syncer.StateIdle
}
