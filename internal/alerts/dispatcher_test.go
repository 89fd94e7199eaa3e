package alerts

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"webtrap/internal/store"
)

type recordingTransport struct {
	mu     sync.Mutex
	name   string
	events []*Event
	fail   bool
}

func (r *recordingTransport) Name() string { return r.name }

func (r *recordingTransport) Send(_ context.Context, event *Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return errors.New("delivery refused")
	}
	r.events = append(r.events, event)
	return nil
}

func (r *recordingTransport) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func TestSendAssignsIDAndDelivers(t *testing.T) {
	rec := &recordingTransport{name: "recording"}
	d := NewDispatcher(store.NewMemory(), time.Minute, rec)

	event := &Event{Identity: "visitor-a", Category: "canary_opened", Severity: "high"}
	d.Send(context.Background(), event)

	require.Equal(t, 1, rec.count())
	assert.NotEmpty(t, event.ID)
	assert.False(t, event.Timestamp.IsZero())
}

func TestDuplicateSuppressedWithinWindow(t *testing.T) {
	rec := &recordingTransport{name: "recording"}
	d := NewDispatcher(store.NewMemory(), 50*time.Millisecond, rec)
	ctx := context.Background()

	d.Send(ctx, &Event{Identity: "visitor-a", Category: "injection_probe"})
	d.Send(ctx, &Event{Identity: "visitor-a", Category: "injection_probe"})
	assert.Equal(t, 1, rec.count())

	// A different category for the same identity is not a duplicate.
	d.Send(ctx, &Event{Identity: "visitor-a", Category: "honeytoken_access"})
	assert.Equal(t, 2, rec.count())

	// And neither is the same category from a different identity.
	d.Send(ctx, &Event{Identity: "visitor-b", Category: "injection_probe"})
	assert.Equal(t, 3, rec.count())

	time.Sleep(70 * time.Millisecond)
	d.Send(ctx, &Event{Identity: "visitor-a", Category: "injection_probe"})
	assert.Equal(t, 4, rec.count(), "window expiry re-arms the alert")
}

func TestTransportFailureDoesNotBlockOthers(t *testing.T) {
	failing := &recordingTransport{name: "failing", fail: true}
	working := &recordingTransport{name: "working"}
	d := NewDispatcher(store.NewMemory(), time.Minute, failing, working)

	d.Send(context.Background(), &Event{Identity: "visitor-a", Category: "rule_match"})
	assert.Equal(t, 1, working.count())
}

type brokenDedupStore struct {
	store.Store
}

func (brokenDedupStore) Exists(context.Context, string) (bool, error) {
	return false, errors.New("store unavailable")
}

func TestDedupCheckFailureDropsAlert(t *testing.T) {
	rec := &recordingTransport{name: "recording"}
	d := NewDispatcher(brokenDedupStore{store.NewMemory()}, time.Minute, rec)

	d.Send(context.Background(), &Event{Identity: "visitor-a", Category: "rule_match"})
	assert.Zero(t, rec.count(), "an unverifiable dedup state must not flood transports")
}

func TestNilEventAndNoTransportsAreNoOps(t *testing.T) {
	d := NewDispatcher(store.NewMemory(), time.Minute)
	d.Send(context.Background(), nil)
	d.Send(context.Background(), &Event{Identity: "visitor-a", Category: "rule_match"})
}
