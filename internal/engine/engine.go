package engine

import (
	"context"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"webtrap/internal/alerts"
	"webtrap/internal/blocklist"
	"webtrap/internal/canary"
	"webtrap/internal/decoy"
	"webtrap/internal/detect"
	"webtrap/internal/identity"
	"webtrap/internal/ledger"
	"webtrap/internal/logger"
	"webtrap/internal/metrics"
	"webtrap/internal/profile"
	"webtrap/internal/ratelimit"
	"webtrap/pkg/models"

	"github.com/google/uuid"
)

// Config gates individual countermeasures.
type Config struct {
	OversizedEnabled bool
	DeceptionEnabled bool
	TarpitEnabled    bool
	TarpitMin        time.Duration
	TarpitMax        time.Duration
	AlertsEnabled    bool
	// CanaryDocs is the decoy document catalog: request paths that
	// serve token-bearing decoys.
	CanaryDocs []string
}

// Engine ties the components into the response pipeline: block-registry
// fast path, rate limit, score, journal, countermeasure, alert. Every
// stage carries its own failure boundary; a request that enters always
// leaves with a decision.
type Engine struct {
	hasher     *identity.Hasher
	limiter    *ratelimit.Limiter
	ledger     *ledger.Ledger
	blocks     *blocklist.Registry
	journal    *profile.Journal
	canary     *canary.Protocol
	dispatcher *alerts.Dispatcher
	sigma      *detect.SigmaEngine
	gen        *decoy.Generator
	cfg        Config

	mu    sync.Mutex
	rnd   *rand.Rand
	sleep func(ctx context.Context, d time.Duration)
}

// Deps are the engine's collaborators. Sigma is optional.
type Deps struct {
	Hasher     *identity.Hasher
	Limiter    *ratelimit.Limiter
	Ledger     *ledger.Ledger
	Blocks     *blocklist.Registry
	Journal    *profile.Journal
	Canary     *canary.Protocol
	Dispatcher *alerts.Dispatcher
	Sigma      *detect.SigmaEngine
	Generator  *decoy.Generator
}

// New creates an Engine with defaulted countermeasure parameters.
func New(deps Deps, cfg Config) *Engine {
	if cfg.TarpitMin <= 0 {
		cfg.TarpitMin = 3 * time.Second
	}
	if cfg.TarpitMax <= cfg.TarpitMin {
		cfg.TarpitMax = 8 * time.Second
	}
	return &Engine{
		hasher:     deps.Hasher,
		limiter:    deps.Limiter,
		ledger:     deps.Ledger,
		blocks:     deps.Blocks,
		journal:    deps.Journal,
		canary:     deps.Canary,
		dispatcher: deps.Dispatcher,
		sigma:      deps.Sigma,
		gen:        deps.Generator,
		cfg:        cfg,
		rnd:        rand.New(rand.NewSource(time.Now().UnixNano())),
		sleep:      sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// Screen is the fast-path check run on every inbound request before any
// other engine logic. It returns a decision only for blocked
// identities.
func (e *Engine) Screen(ctx context.Context, req *models.RequestDescriptor) *models.Decision {
	id := e.hasher.FromRequest(req)
	if !e.blocks.IsBlocked(ctx, id) {
		return nil
	}
	metrics.CountermeasuresTotal.WithLabelValues(string(models.ActionBlock)).Inc()
	return &models.Decision{
		Action:      models.ActionBlock,
		Status:      403,
		ContentType: "text/plain; charset=utf-8",
		Body:        []byte("Forbidden\n"),
		Level:       models.TierBlock,
	}
}

// Inspect derives a trigger from request content: injection heuristics
// first, then any operator-supplied detection rules.
func (e *Engine) Inspect(req *models.RequestDescriptor) (models.Trigger, bool) {
	if detect.DetectInjection(req) {
		return models.Trigger{Type: models.IncidentInjectionProbe, Key: req.Path}, true
	}
	if matches := e.sigma.Apply(req); len(matches) > 0 {
		return models.Trigger{Type: models.IncidentRuleMatch, Key: matches[0].Title}, true
	}
	return models.Trigger{}, false
}

// Handle runs the full pipeline for one triggering event and returns
// the decision the routing layer must apply. It never panics and never
// returns nil.
func (e *Engine) Handle(ctx context.Context, req *models.RequestDescriptor, trigger models.Trigger) (decision *models.Decision) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("engine: recovered from %v, degrading to log-only", r)
			decision = e.logOnly(false, ledger.Outcome{Level: models.TierClean})
		}
	}()

	id := e.hasher.FromRequest(req)

	if rl := e.limiter.Allow(ctx, id); !rl.Allowed {
		metrics.RateLimitDeniedTotal.Inc()
		out := e.ledger.Increment(ctx, id, string(models.IncidentRateLimit))
		e.record(ctx, id, req, models.Trigger{Type: models.IncidentRateLimit, Key: req.Path}, out, "rate_limited")
		return &models.Decision{
			Action:      models.ActionBlock,
			Status:      429,
			ContentType: "text/plain; charset=utf-8",
			Headers:     map[string]string{"Retry-After": retryAfter(rl.RetryAfter)},
			Body:        []byte("Too Many Requests\n"),
			Score:       out.Score,
			Level:       out.Level,
		}
	}

	out := e.ledger.Increment(ctx, id, string(trigger.Type))
	decision = e.selectCountermeasure(ctx, id, req, trigger, out)

	e.record(ctx, id, req, trigger, out, string(decision.Action))
	e.alert(ctx, id, trigger, out, decision)

	if decision.Delay > 0 {
		metrics.TarpitDelaySeconds.Observe(decision.Delay.Seconds())
		e.sleep(ctx, decision.Delay)
	}
	metrics.CountermeasuresTotal.WithLabelValues(string(decision.Action)).Inc()
	return decision
}

// record journals the incident; failures are logged and dropped so
// bookkeeping never blocks the response.
func (e *Engine) record(ctx context.Context, id string, req *models.RequestDescriptor, trigger models.Trigger, out ledger.Outcome, countermeasure string) {
	inc := models.Incident{
		ID:             uuid.NewString(),
		Type:           trigger.Type,
		Key:            trigger.Key,
		Method:         req.Method,
		UserAgent:      req.UserAgent(),
		ThreatScore:    out.Score,
		ThreatLevel:    out.Level,
		Countermeasure: countermeasure,
		Timestamp:      time.Now().UTC(),
	}
	if err := e.journal.RecordIncident(ctx, id, inc); err != nil {
		logger.Warnf("engine: incident journal failed for %s: %v", id, err)
	}
	metrics.IncidentsTotal.WithLabelValues(string(trigger.Type)).Inc()
}

// alert fans out a notification for events severe enough to wake a
// human: tier at TARPIT or above, or a deception trip.
func (e *Engine) alert(ctx context.Context, id string, trigger models.Trigger, out ledger.Outcome, decision *models.Decision) {
	if !e.cfg.AlertsEnabled {
		return
	}
	severe := out.Level.AtLeast(models.TierTarpit) ||
		trigger.Type == models.IncidentHoneytoken ||
		trigger.Type == models.IncidentCanaryOpened
	if !severe {
		return
	}
	severity := "medium"
	if out.Level == models.TierBlock {
		severity = "high"
	}
	e.dispatcher.Send(ctx, &alerts.Event{
		Identity: id,
		Category: string(trigger.Type),
		Severity: severity,
		Summary:  "threat activity: " + string(trigger.Type),
		Details: map[string]interface{}{
			"key":            trigger.Key,
			"score":          out.Score,
			"level":          string(out.Level),
			"countermeasure": string(decision.Action),
		},
	})
}

func retryAfter(d time.Duration) string {
	secs := int(d.Round(time.Second).Seconds())
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}
