// Package store defines the key-value contract shared by session history,
// circuit-breaker bookkeeping, and routing telemetry, plus the available
// backends (Redis for shared deployments, SQLite and in-memory for
// single-node and test use).
package store

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable is returned by backends when the underlying store cannot be
// reached. Callers treat store errors as best-effort and degrade rather than
// fail the request.
var ErrUnavailable = errors.New("store unavailable")

// KeyValue is the minimal contract the orchestrator needs from a store.
//
// Append pushes a value onto the ordered list at key, trims the list to its
// last keep elements, and refreshes the key's TTL; the three steps are atomic
// from the caller's perspective. ReadAll returns the current list, oldest
// first; an expired or missing key reads as empty. Increment atomically
// increments a counter and returns the new value. SetFlag sets a bare marker
// key that expires after ttl. Exists reports whether a non-expired key is
// present. Expire resets a key's TTL. Ping reports backend liveness for
// readiness checks.
type KeyValue interface {
	Append(ctx context.Context, key string, value []byte, keep int, ttl time.Duration) error
	ReadAll(ctx context.Context, key string) ([][]byte, error)
	Delete(ctx context.Context, key string) error
	Increment(ctx context.Context, key string) (int64, error)
	SetFlag(ctx context.Context, key string, ttl time.Duration) error
	Exists(ctx context.Context, key string) (bool, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
	Ping(ctx context.Context) error
	Close() error
}

// Purger is implemented by backends that keep expired keys around until
// something sweeps them (SQLite, in-memory). Redis expires keys itself.
type Purger interface {
	PurgeExpired(ctx context.Context) (int, error)
}
