package alerts

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"webtrap/internal/logger"
	"webtrap/internal/metrics"
	"webtrap/internal/store"
)

const dedupKeyPrefix = "webtrap:alertdedup:"

// Event is one externally-visible notification.
type Event struct {
	ID        string                 `json:"id"`
	Identity  string                 `json:"identity"`
	Category  string                 `json:"category"`
	Severity  string                 `json:"severity"`
	Summary   string                 `json:"summary"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// Transport delivers events somewhere external. Implementations are
// fire-and-forget from the dispatcher's point of view.
type Transport interface {
	Name() string
	Send(ctx context.Context, event *Event) error
}

// Dispatcher deduplicates notifications per (identity, category) and
// fans the survivors out to all transports concurrently. Nothing it
// does can fail the request path that triggered the alert.
type Dispatcher struct {
	store      store.Store
	transports []Transport
	window     time.Duration
}

// NewDispatcher creates a Dispatcher with a default 5-minute dedup
// window.
func NewDispatcher(st store.Store, window time.Duration, transports ...Transport) *Dispatcher {
	if window <= 0 {
		window = 5 * time.Minute
	}
	return &Dispatcher{store: st, transports: transports, window: window}
}

// Send dispatches an event unless an identical (identity, category)
// alert went out within the dedup window. Store and transport failures
// are logged and swallowed.
func (d *Dispatcher) Send(ctx context.Context, event *Event) {
	if event == nil || len(d.transports) == 0 {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	key := dedupKeyPrefix + event.Identity + ":" + event.Category
	exists, err := d.store.Exists(ctx, key)
	if err != nil {
		logger.Warnf("alerts: dedup check failed, dropping alert %s: %v", event.Category, err)
		return
	}
	if exists {
		metrics.AlertsSuppressedTotal.Inc()
		logger.Debugf("alerts: suppressed duplicate %s for %s", event.Category, event.Identity)
		return
	}
	if err := d.store.Set(ctx, key, "1", d.window); err != nil {
		logger.Warnf("alerts: dedup marker write failed, dropping alert %s: %v", event.Category, err)
		return
	}

	metrics.AlertsSentTotal.Inc()

	var wg sync.WaitGroup
	for _, transport := range d.transports {
		wg.Add(1)
		go func(t Transport) {
			defer wg.Done()
			if err := t.Send(ctx, event); err != nil {
				logger.Errorf("alerts: %s transport failed for %s: %v", t.Name(), event.ID, err)
			}
		}(transport)
	}
	wg.Wait()
}
