package kvstore

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = errors.New("kvstore: key not found")

// Store is the associative store consumed by the RBAC core.
//
// All multi-step callers assume only per-key atomicity for individual
// operations; there is no transaction spanning multiple keys.
type Store interface {
	// Get returns the value at key, or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)

	// Set stores value at key, overwriting any existing value.
	Set(ctx context.Context, key, value string) error

	// Del removes the given keys. Missing keys are not an error.
	Del(ctx context.Context, keys ...string) error

	// SAdd adds members to the set at key, creating it if needed.
	SAdd(ctx context.Context, key string, members ...string) error

	// SRem removes members from the set at key. Missing members are not an error.
	SRem(ctx context.Context, key string, members ...string) error

	// SMembers returns all members of the set at key. A missing set is empty.
	SMembers(ctx context.Context, key string) ([]string, error)

	// SIsMember reports whether member is in the set at key.
	SIsMember(ctx context.Context, key, member string) (bool, error)

	// ScanKeys returns every key matching the glob pattern.
	ScanKeys(ctx context.Context, pattern string) ([]string, error)

	// Incr atomically increments the integer at key and returns the new value.
	Incr(ctx context.Context, key string) (int64, error)

	// Expire sets a TTL on key.
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// TTL returns the remaining time to live of key.
	TTL(ctx context.Context, key string) (time.Duration, error)

	// SetNX stores value at key only if the key does not exist, with a TTL.
	// Returns true if the key was set.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)

	// LPush prepends values to the list at key.
	LPush(ctx context.Context, key string, values ...string) error

	// LTrim trims the list at key to the given inclusive range.
	LTrim(ctx context.Context, key string, start, stop int64) error

	// LRange returns the list elements in the given inclusive range.
	LRange(ctx context.Context, key string, start, stop int64) ([]string, error)

	// Ping checks connectivity to the backing store.
	Ping(ctx context.Context) error

	// Close releases the store's resources.
	Close() error
}
