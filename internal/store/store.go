package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound reports a missing key. Components treat it differently
// from availability errors: missing is a normal state, not a failure.
var ErrNotFound = errors.New("key not found")

// Store is the backing-store contract shared by every engine component.
// All keys are namespaced by the calling component. A ttl of zero means
// no expiry.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error

	// IncrBy atomically adds delta and (re)sets the key expiry in a
	// single round trip.
	IncrBy(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
	Exists(ctx context.Context, key string) (bool, error)

	ListPush(ctx context.Context, key, value string) error
	ListTrim(ctx context.Context, key string, start, stop int64) error
	ListRange(ctx context.Context, key string, start, stop int64) ([]string, error)

	SetAdd(ctx context.Context, key, member string) error
	SetRemove(ctx context.Context, key, member string) error
	SetMembers(ctx context.Context, key string) ([]string, error)

	Close() error
}
