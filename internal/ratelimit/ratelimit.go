package ratelimit

import (
	"context"
	"strconv"
	"time"

	"webtrap/internal/logger"
	"webtrap/internal/store"
)

const keyPrefix = "webtrap:ratelimit:"

// Config controls the sliding window.
type Config struct {
	Limit  int
	Window time.Duration
}

// Limiter is a per-identity sliding-window admission gate. Unlike the
// rest of the engine it fails closed: if the backing store is down,
// admission is denied, because failing open would turn a destabilized
// store into a brute-force bypass.
type Limiter struct {
	store store.Store
	cfg   Config
	now   func() time.Time
}

// Result reports an admission decision.
type Result struct {
	Allowed    bool
	RetryAfter time.Duration
}

// NewLimiter creates a Limiter with defaulted parameters.
func NewLimiter(st store.Store, cfg Config) *Limiter {
	if cfg.Limit <= 0 {
		cfg.Limit = 5
	}
	if cfg.Window <= 0 {
		cfg.Window = 10 * time.Second
	}
	return &Limiter{store: st, cfg: cfg, now: time.Now}
}

// Allow records an admission attempt for the identity and reports
// whether it fits in the current window.
func (l *Limiter) Allow(ctx context.Context, identity string) Result {
	key := keyPrefix + identity
	now := l.now()
	cutoff := now.Add(-l.cfg.Window)

	denied := Result{Allowed: false, RetryAfter: l.cfg.Window}

	if err := l.store.ListPush(ctx, key, strconv.FormatInt(now.UnixNano(), 10)); err != nil {
		logger.Warnf("ratelimit: store push failed, denying: %v", err)
		return denied
	}
	// Keep only the most recent entries; the list never needs more than
	// one window's worth of admissions.
	if err := l.store.ListTrim(ctx, key, -int64(l.cfg.Limit)-1, -1); err != nil {
		logger.Warnf("ratelimit: store trim failed, denying: %v", err)
		return denied
	}
	if err := l.store.Expire(ctx, key, l.cfg.Window); err != nil {
		logger.Warnf("ratelimit: store expire failed, denying: %v", err)
		return denied
	}

	entries, err := l.store.ListRange(ctx, key, 0, -1)
	if err != nil {
		logger.Warnf("ratelimit: store read failed, denying: %v", err)
		return denied
	}

	inWindow := 0
	var oldest time.Time
	for _, raw := range entries {
		ns, perr := strconv.ParseInt(raw, 10, 64)
		if perr != nil {
			continue
		}
		ts := time.Unix(0, ns)
		if ts.Before(cutoff) {
			continue
		}
		if oldest.IsZero() || ts.Before(oldest) {
			oldest = ts
		}
		inWindow++
	}

	if inWindow > l.cfg.Limit {
		retry := l.cfg.Window
		if !oldest.IsZero() {
			retry = oldest.Add(l.cfg.Window).Sub(now)
			if retry < time.Second {
				retry = time.Second
			}
		}
		return Result{Allowed: false, RetryAfter: retry}
	}
	return Result{Allowed: true}
}
