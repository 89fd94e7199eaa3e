package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"webtrap/internal/store"
)

type faultyStore struct {
	store.Store
}

func (f *faultyStore) ListPush(ctx context.Context, key, value string) error {
	return errors.New("store unreachable")
}

func TestAllowsUpToLimitThenDenies(t *testing.T) {
	l := NewLimiter(store.NewMemory(), Config{Limit: 3, Window: time.Hour})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow(ctx, "visitor").Allowed, "admission %d", i+1)
	}

	res := l.Allow(ctx, "visitor")
	assert.False(t, res.Allowed)
	assert.Greater(t, res.RetryAfter, time.Duration(0))
}

func TestWindowSlides(t *testing.T) {
	l := NewLimiter(store.NewMemory(), Config{Limit: 2, Window: 50 * time.Millisecond})
	ctx := context.Background()

	assert.True(t, l.Allow(ctx, "visitor").Allowed)
	assert.True(t, l.Allow(ctx, "visitor").Allowed)
	assert.False(t, l.Allow(ctx, "visitor").Allowed)

	time.Sleep(70 * time.Millisecond)
	assert.True(t, l.Allow(ctx, "visitor").Allowed)
}

func TestIdentitiesAreIndependent(t *testing.T) {
	l := NewLimiter(store.NewMemory(), Config{Limit: 1, Window: time.Hour})
	ctx := context.Background()

	assert.True(t, l.Allow(ctx, "first").Allowed)
	assert.False(t, l.Allow(ctx, "first").Allowed)
	assert.True(t, l.Allow(ctx, "second").Allowed)
}

// The limiter fails CLOSED on store errors, unlike every other engine
// component: treating an unreachable store as "allowed" would let a
// destabilized store bypass admission control entirely.
func TestDeniesWhenStoreIsDown(t *testing.T) {
	l := NewLimiter(&faultyStore{}, Config{Limit: 100, Window: time.Hour})

	res := l.Allow(context.Background(), "visitor")
	assert.False(t, res.Allowed)
	assert.Greater(t, res.RetryAfter, time.Duration(0))
}
