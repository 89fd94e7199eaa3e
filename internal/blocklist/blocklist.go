package blocklist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"webtrap/internal/logger"
	"webtrap/internal/store"
	"webtrap/pkg/models"
)

const (
	entryKeyPrefix = "webtrap:block:"
	indexKey       = "webtrap:blocked"
)

// Registry is the durable deny list. Entries expire independently; the
// enumeration index is eventually consistent and self-heals on read.
type Registry struct {
	store store.Store
	ttl   time.Duration
	now   func() time.Time
}

// NewRegistry creates a Registry with a default entry TTL.
func NewRegistry(st store.Store, ttl time.Duration) *Registry {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Registry{store: st, ttl: ttl, now: time.Now}
}

// IsBlocked is the fast-path lookup consulted before any other engine
// logic. On store failure it returns false: the ledger re-derives
// blocks over time, so availability wins here.
func (r *Registry) IsBlocked(ctx context.Context, identity string) bool {
	_, err := r.store.Get(ctx, entryKeyPrefix+identity)
	if err == nil {
		return true
	}
	if !errors.Is(err, store.ErrNotFound) {
		logger.Warnf("blocklist: lookup failed, treating as not blocked: %v", err)
	}
	return false
}

// Block writes a deny entry and registers it in the index. Writing an
// existing block again is harmless.
func (r *Registry) Block(ctx context.Context, identity, reason string, auto bool) error {
	entry := models.BlockEntry{
		Identity:    identity,
		Reason:      reason,
		BlockedAt:   r.now().UTC(),
		AutoBlocked: auto,
		ExpiresAt:   r.now().UTC().Add(r.ttl),
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal block entry: %w", err)
	}
	if err := r.store.Set(ctx, entryKeyPrefix+identity, string(raw), r.ttl); err != nil {
		return fmt.Errorf("write block entry: %w", err)
	}
	if err := r.store.SetAdd(ctx, indexKey, identity); err != nil {
		return fmt.Errorf("index block entry: %w", err)
	}
	return nil
}

// Unblock removes a deny entry and its index membership.
func (r *Registry) Unblock(ctx context.Context, identity string) error {
	if err := r.store.Del(ctx, entryKeyPrefix+identity); err != nil {
		return fmt.Errorf("delete block entry: %w", err)
	}
	if err := r.store.SetRemove(ctx, indexKey, identity); err != nil {
		return fmt.Errorf("deindex block entry: %w", err)
	}
	return nil
}

// Get returns the block entry for an identity, or store.ErrNotFound.
func (r *Registry) Get(ctx context.Context, identity string) (*models.BlockEntry, error) {
	raw, err := r.store.Get(ctx, entryKeyPrefix+identity)
	if err != nil {
		return nil, err
	}
	var entry models.BlockEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		return nil, fmt.Errorf("decode block entry: %w", err)
	}
	return &entry, nil
}

// ListBlocked enumerates current blocks. Index members whose entry has
// expired are pruned as they are encountered; the per-entry record is
// the source of truth, never the index.
func (r *Registry) ListBlocked(ctx context.Context) ([]models.BlockEntry, error) {
	members, err := r.store.SetMembers(ctx, indexKey)
	if err != nil {
		return nil, fmt.Errorf("read block index: %w", err)
	}

	out := make([]models.BlockEntry, 0, len(members))
	for _, identity := range members {
		entry, err := r.Get(ctx, identity)
		if errors.Is(err, store.ErrNotFound) {
			if remErr := r.store.SetRemove(ctx, indexKey, identity); remErr != nil {
				logger.Debugf("blocklist: prune of %s failed: %v", identity, remErr)
			}
			continue
		}
		if err != nil {
			logger.Warnf("blocklist: skipping unreadable entry %s: %v", identity, err)
			continue
		}
		out = append(out, *entry)
	}
	return out, nil
}
