package profile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"webtrap/internal/store"
	"webtrap/pkg/models"
)

const profileKeyPrefix = "webtrap:profile:"

const maxUserAgentLen = 200

// Journal persists per-identity attacker profiles. Updates are
// read-merge-write; concurrent incidents for one identity may lose an
// update, but the stored shape is re-normalized on every read so it can
// never become malformed.
type Journal struct {
	store store.Store
	ttl   time.Duration
	now   func() time.Time
}

// NewJournal creates a Journal with a default profile retention.
func NewJournal(st store.Store, ttl time.Duration) *Journal {
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	return &Journal{store: st, ttl: ttl, now: time.Now}
}

// Profile loads the identity's profile. A missing record yields a fresh
// empty profile, never an error.
func (j *Journal) Profile(ctx context.Context, identity string) (*models.AttackerProfile, error) {
	raw, err := j.store.Get(ctx, profileKeyPrefix+identity)
	if errors.Is(err, store.ErrNotFound) {
		p := &models.AttackerProfile{Identity: identity}
		p.Normalize()
		return p, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read profile: %w", err)
	}

	var p models.AttackerProfile
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		// A corrupt record is replaced rather than poisoning every
		// subsequent update.
		p = models.AttackerProfile{Identity: identity}
	}
	p.Identity = identity
	p.Normalize()
	return &p, nil
}

// RecordIncident merges one incident into the identity's profile.
func (j *Journal) RecordIncident(ctx context.Context, identity string, inc models.Incident) error {
	p, err := j.Profile(ctx, identity)
	if err != nil {
		return err
	}

	now := j.now().UTC()
	if inc.Timestamp.IsZero() {
		inc.Timestamp = now
	}
	if len(inc.UserAgent) > maxUserAgentLen {
		inc.UserAgent = inc.UserAgent[:maxUserAgentLen]
	}

	if p.FirstSeen.IsZero() {
		p.FirstSeen = now
	}
	p.LastSeen = now
	p.TotalIncidents++
	p.AttackTypes[string(inc.Type)]++
	if inc.UserAgent != "" {
		p.UserAgents[inc.UserAgent]++
	}

	p.ScoreHistory = append(p.ScoreHistory, models.ScorePoint{Score: inc.ThreatScore, Timestamp: inc.Timestamp})
	if len(p.ScoreHistory) > models.MaxScoreHistory {
		p.ScoreHistory = p.ScoreHistory[len(p.ScoreHistory)-models.MaxScoreHistory:]
	}
	p.Incidents = append(p.Incidents, inc)
	if len(p.Incidents) > models.MaxProfileIncidents {
		p.Incidents = p.Incidents[len(p.Incidents)-models.MaxProfileIncidents:]
	}

	return j.write(ctx, identity, p)
}

// RecordForensic appends a canary fingerprint to the profile.
func (j *Journal) RecordForensic(ctx context.Context, identity string, fp models.Fingerprint) error {
	p, err := j.Profile(ctx, identity)
	if err != nil {
		return err
	}

	p.LastSeen = j.now().UTC()
	if p.FirstSeen.IsZero() {
		p.FirstSeen = p.LastSeen
	}
	p.ForensicEntries = append(p.ForensicEntries, fp)
	if len(p.ForensicEntries) > models.MaxForensicEntries {
		p.ForensicEntries = p.ForensicEntries[len(p.ForensicEntries)-models.MaxForensicEntries:]
	}

	return j.write(ctx, identity, p)
}

func (j *Journal) write(ctx context.Context, identity string, p *models.AttackerProfile) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal profile: %w", err)
	}
	if err := j.store.Set(ctx, profileKeyPrefix+identity, string(raw), j.ttl); err != nil {
		return fmt.Errorf("write profile: %w", err)
	}
	return nil
}
