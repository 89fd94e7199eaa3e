package engine

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"webtrap/internal/alerts"
	"webtrap/internal/blocklist"
	"webtrap/internal/canary"
	"webtrap/internal/decoy"
	"webtrap/internal/identity"
	"webtrap/internal/ledger"
	"webtrap/internal/profile"
	"webtrap/internal/ratelimit"
	"webtrap/internal/store"
	"webtrap/pkg/models"
)

var tokenRe = regexp.MustCompile(`[0-9a-f]{32}`)

type testRig struct {
	engine  *Engine
	hasher  *identity.Hasher
	blocks  *blocklist.Registry
	journal *profile.Journal
	store   store.Store
	slept   []time.Duration
}

// newRig wires a full engine over the given store. The rate limit is
// high so pipeline tests are not throttled, and sleeps are recorded
// instead of executed.
func newRig(t *testing.T, st store.Store, cfg Config) *testRig {
	t.Helper()

	hasher, err := identity.NewHasher("engine-test-secret")
	require.NoError(t, err)

	blocks := blocklist.NewRegistry(st, time.Hour)
	led := ledger.NewLedger(st, blocks, ledger.Config{
		Thresholds: ledger.Thresholds{Warn: 3, Tarpit: 7, Block: 12},
		Weights: map[string]int{
			string(models.IncidentInjectionProbe): 5,
			string(models.IncidentHoneytoken):     4,
			string(models.IncidentCanaryOpened):   5,
			string(models.IncidentRateLimit):      1,
		},
		DefaultWeight: 1,
		ScoreDecay:    time.Hour,
	})
	journal := profile.NewJournal(st, time.Hour)
	proto := canary.NewProtocol(st, hasher, canary.Config{Retention: time.Hour})
	limiter := ratelimit.NewLimiter(st, ratelimit.Config{Limit: 1000, Window: time.Minute})

	rig := &testRig{hasher: hasher, blocks: blocks, journal: journal, store: st}
	rig.engine = New(Deps{
		Hasher:     hasher,
		Limiter:    limiter,
		Ledger:     led,
		Blocks:     blocks,
		Journal:    journal,
		Canary:     proto,
		Dispatcher: alerts.NewDispatcher(st, time.Minute),
		Generator:  decoy.NewGenerator(1),
	}, cfg)
	rig.engine.sleep = func(_ context.Context, d time.Duration) {
		rig.slept = append(rig.slept, d)
	}
	return rig
}

func requestFrom(origin, path string) *models.RequestDescriptor {
	return &models.RequestDescriptor{
		Method:       "GET",
		Path:         path,
		SourceOrigin: origin,
		Headers:      map[string]string{"User-Agent": "curl/8.0"},
	}
}

func TestScreenReturnsNilForUnknownVisitor(t *testing.T) {
	rig := newRig(t, store.NewMemory(), Config{})
	assert.Nil(t, rig.engine.Screen(context.Background(), requestFrom("203.0.113.9", "/")))
}

func TestScreenBlocksRegisteredIdentity(t *testing.T) {
	rig := newRig(t, store.NewMemory(), Config{})
	ctx := context.Background()
	req := requestFrom("203.0.113.9", "/")

	id := rig.hasher.FromRequest(req)
	require.NoError(t, rig.blocks.Block(ctx, id, "manual", false))

	d := rig.engine.Screen(ctx, req)
	require.NotNil(t, d)
	assert.Equal(t, models.ActionBlock, d.Action)
	assert.Equal(t, 403, d.Status)
}

func TestInjectionProbeGetsSQLDeception(t *testing.T) {
	rig := newRig(t, store.NewMemory(), Config{DeceptionEnabled: true})
	req := &models.RequestDescriptor{
		Method:       "GET",
		Path:         "/search",
		SourceOrigin: "203.0.113.9",
		Query:        map[string]string{"q": "' OR '1'='1"},
	}

	trigger, hit := rig.engine.Inspect(req)
	require.True(t, hit)
	assert.Equal(t, models.IncidentInjectionProbe, trigger.Type)

	d := rig.engine.Handle(context.Background(), req, trigger)
	require.NotNil(t, d)
	assert.Equal(t, models.ActionDeception, d.Action)
	assert.Equal(t, 500, d.Status)
	assert.Contains(t, string(d.Body), "ER_PARSE_ERROR")
	assert.Equal(t, 5, d.Score)
}

func TestTarpitDelayIsBoundedAndExecuted(t *testing.T) {
	cfg := Config{
		TarpitEnabled: true,
		TarpitMin:     10 * time.Millisecond,
		TarpitMax:     50 * time.Millisecond,
	}
	rig := newRig(t, store.NewMemory(), cfg)
	ctx := context.Background()
	req := requestFrom("203.0.113.9", "/admin")

	// Two probes push the score past the tarpit threshold.
	trigger := models.Trigger{Type: models.IncidentInjectionProbe, Key: "/admin"}
	rig.engine.Handle(ctx, req, trigger)
	d := rig.engine.Handle(ctx, req, trigger)

	require.NotNil(t, d)
	assert.Equal(t, models.ActionTarpit, d.Action)
	assert.Equal(t, 404, d.Status)
	assert.GreaterOrEqual(t, d.Delay, cfg.TarpitMin)
	assert.Less(t, d.Delay, cfg.TarpitMax)
	require.NotEmpty(t, rig.slept)
	assert.Equal(t, d.Delay, rig.slept[len(rig.slept)-1])
}

func TestHoneytokenTriggersTarpitRegardlessOfScore(t *testing.T) {
	rig := newRig(t, store.NewMemory(), Config{
		TarpitEnabled: true,
		TarpitMin:     5 * time.Millisecond,
		TarpitMax:     10 * time.Millisecond,
	})
	req := requestFrom("203.0.113.9", "/wp-admin")

	d := rig.engine.Handle(context.Background(), req, models.Trigger{
		Type: models.IncidentHoneytoken, Key: "/wp-admin",
	})
	require.NotNil(t, d)
	assert.Equal(t, models.ActionTarpit, d.Action)
}

func TestOversizedTakesPrecedenceAtHighTier(t *testing.T) {
	rig := newRig(t, store.NewMemory(), Config{
		OversizedEnabled: true,
		DeceptionEnabled: true,
		TarpitEnabled:    true,
	})
	ctx := context.Background()
	req := requestFrom("203.0.113.9", "/admin")
	trigger := models.Trigger{Type: models.IncidentInjectionProbe, Key: "/admin"}

	rig.engine.Handle(ctx, req, trigger)
	d := rig.engine.Handle(ctx, req, trigger)

	require.NotNil(t, d)
	assert.Equal(t, models.ActionOversized, d.Action)
	assert.Equal(t, 200, d.Status)
	assert.Equal(t, "gzip", d.Headers["Content-Encoding"])
	assert.NotEmpty(t, d.Body)
}

func TestRateLimitDeniesWithRetryHint(t *testing.T) {
	tight := newRig(t, store.NewMemory(), Config{})
	tight.engine.limiter = ratelimit.NewLimiter(tight.store, ratelimit.Config{Limit: 1, Window: time.Minute})

	ctx := context.Background()
	req := requestFrom("203.0.113.9", "/")
	trigger := models.Trigger{Type: models.IncidentRobotsViolation, Key: "/"}

	first := tight.engine.Handle(ctx, req, trigger)
	assert.NotEqual(t, 429, first.Status)

	second := tight.engine.Handle(ctx, req, trigger)
	require.NotNil(t, second)
	assert.Equal(t, 429, second.Status)
	assert.Equal(t, models.ActionBlock, second.Action)
	assert.NotEmpty(t, second.Headers["Retry-After"])
}

func TestEscalationCrossesIntoAutoBlock(t *testing.T) {
	rig := newRig(t, store.NewMemory(), Config{TarpitEnabled: true})
	ctx := context.Background()
	req := requestFrom("203.0.113.9", "/search")
	trigger := models.Trigger{Type: models.IncidentInjectionProbe, Key: "/search"}

	for i := 0; i < 3; i++ {
		rig.engine.Handle(ctx, req, trigger)
	}

	// Score 15 crossed the block threshold; the fast path now refuses.
	d := rig.engine.Screen(ctx, req)
	require.NotNil(t, d)
	assert.Equal(t, models.ActionBlock, d.Action)
}

func TestCanaryDocumentRoundTrip(t *testing.T) {
	rig := newRig(t, store.NewMemory(), Config{
		DeceptionEnabled: true,
		CanaryDocs:       []string{"/backup.sql"},
	})
	ctx := context.Background()
	req := requestFrom("203.0.113.9", "/backup.sql")
	issuingID := rig.hasher.FromRequest(req)

	d := rig.engine.Handle(ctx, req, models.Trigger{
		Type: models.IncidentHoneytoken, Key: "/backup.sql",
	})
	require.NotNil(t, d)
	assert.Equal(t, models.ActionDeception, d.Action)
	assert.Equal(t, 200, d.Status)

	token := tokenRe.FindString(string(d.Body))
	require.NotEmpty(t, token, "served document embeds the token")

	// The callback may come from a different network origin; the open
	// still lands on the issuing identity.
	cbReq := requestFrom("198.51.100.7", "/cdn/pixel")
	pixel := rig.engine.CanaryCallback(ctx, cbReq, token, nil)
	require.NotNil(t, pixel)
	assert.Equal(t, 200, pixel.Status)
	assert.Equal(t, "image/gif", pixel.ContentType)

	p, err := rig.journal.Profile(ctx, issuingID)
	require.NoError(t, err)
	assert.Equal(t, 2, p.TotalIncidents, "honeytoken access plus canary open")
	assert.Equal(t, 1, p.AttackTypes[string(models.IncidentCanaryOpened)])
	require.NotEmpty(t, p.ForensicEntries)
}

func TestCanaryCallbackIsIndistinguishableForBadTokens(t *testing.T) {
	rig := newRig(t, store.NewMemory(), Config{
		DeceptionEnabled: true,
		CanaryDocs:       []string{"/backup.sql"},
	})
	ctx := context.Background()
	cbReq := requestFrom("198.51.100.7", "/cdn/pixel")

	malformed := rig.engine.CanaryCallback(ctx, cbReq, "nope", nil)
	unknown := rig.engine.CanaryCallback(ctx, cbReq, "ffffffffffffffffffffffffffffffff", nil)
	assert.Equal(t, malformed, unknown)
	assert.Equal(t, trackingPixel, malformed.Body)
}

type writeFailingStore struct {
	store.Store
}

func (s writeFailingStore) Set(context.Context, string, string, time.Duration) error {
	return errors.New("store write refused")
}

func TestCanaryBranchFailureFallsThrough(t *testing.T) {
	st := writeFailingStore{store.NewMemory()}
	rig := newRig(t, st, Config{
		DeceptionEnabled: true,
		CanaryDocs:       []string{"/backup.sql"},
	})
	req := requestFrom("203.0.113.9", "/backup.sql")

	d := rig.engine.Handle(context.Background(), req, models.Trigger{
		Type: models.IncidentHoneytoken, Key: "/backup.sql",
	})
	require.NotNil(t, d)
	assert.Equal(t, models.ActionLogOnly, d.Action)
	assert.Equal(t, 404, d.Status)
}

type deadStore struct {
	store.Store
}

func (deadStore) ListPush(context.Context, string, string) error {
	return errors.New("store unavailable")
}

func TestHandleReturnsDecisionWhenStoreIsDown(t *testing.T) {
	rig := newRig(t, deadStore{store.NewMemory()}, Config{TarpitEnabled: true})
	req := requestFrom("203.0.113.9", "/")

	// The limiter fails closed, so the decision is a throttle rather
	// than silence.
	d := rig.engine.Handle(context.Background(), req, models.Trigger{
		Type: models.IncidentRobotsViolation, Key: "/",
	})
	require.NotNil(t, d)
	assert.Equal(t, 429, d.Status)
}

func TestHandleRecoversFromPanicToLogOnly(t *testing.T) {
	rig := newRig(t, store.NewMemory(), Config{})
	rig.engine.journal = nil // bookkeeping stage will panic

	d := rig.engine.Handle(context.Background(), requestFrom("203.0.113.9", "/"), models.Trigger{
		Type: models.IncidentRobotsViolation, Key: "/",
	})
	require.NotNil(t, d)
	assert.Equal(t, models.ActionLogOnly, d.Action)
	assert.Equal(t, 404, d.Status)
}
