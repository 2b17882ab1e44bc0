// Package lock serialises work per key.  The admission pipeline takes a
// spot-scoped lock around its conflict check and insert so that two requests
// for the same spot cannot both pass the check.
package lock

import (
    "context"
    "errors"
)

// ErrTimeout is returned when a lock could not be acquired before the wait
// budget or the caller's context ran out.
var ErrTimeout = errors.New("lock: timed out waiting for lock")

// Locker hands out exclusive per-key locks.  The returned release func must be
// called exactly once.
type Locker interface {
    Acquire(ctx context.Context, key string) (release func(), err error)
}

// SpotKey is the lock key for admissions against spotID.
func SpotKey(spotID string) string { return "lock:spot:" + spotID }
