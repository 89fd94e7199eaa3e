package ledger

import (
	"context"
	"errors"
	"strconv"
	"time"

	"webtrap/internal/blocklist"
	"webtrap/internal/logger"
	"webtrap/internal/metrics"
	"webtrap/internal/store"
	"webtrap/pkg/models"
)

const scoreKeyPrefix = "webtrap:score:"

// Thresholds are the tier cut points. Must satisfy 0 < Warn < Tarpit <
// Block; validated at configuration load, assumed here.
type Thresholds struct {
	Warn   int
	Tarpit int
	Block  int
}

// DefaultThresholds are used when configuration is absent.
var DefaultThresholds = Thresholds{Warn: 3, Tarpit: 7, Block: 12}

// Classify returns the highest tier whose threshold the score meets.
func Classify(score int, t Thresholds) models.Tier {
	switch {
	case score >= t.Block:
		return models.TierBlock
	case score >= t.Tarpit:
		return models.TierTarpit
	case score >= t.Warn:
		return models.TierWarn
	default:
		return models.TierClean
	}
}

// Config controls ledger behavior.
type Config struct {
	Thresholds    Thresholds
	Weights       map[string]int
	DefaultWeight int
	ScoreDecay    time.Duration
}

// Ledger accumulates per-identity threat scores in the backing store
// and promotes identities to the block registry on overflow. All
// methods degrade to a CLEAN outcome on store failure so request
// handling never stalls on scoring.
type Ledger struct {
	store  store.Store
	blocks *blocklist.Registry
	cfg    Config
}

// Outcome is the result of a score update or read.
type Outcome struct {
	Score  int
	Level  models.Tier
	Reason string
}

// NewLedger creates a Ledger with defaulted configuration.
func NewLedger(st store.Store, blocks *blocklist.Registry, cfg Config) *Ledger {
	if cfg.Thresholds == (Thresholds{}) {
		cfg.Thresholds = DefaultThresholds
	}
	if cfg.DefaultWeight <= 0 {
		cfg.DefaultWeight = 1
	}
	if cfg.ScoreDecay <= 0 {
		cfg.ScoreDecay = time.Hour
	}
	return &Ledger{store: st, blocks: blocks, cfg: cfg}
}

// Weight returns the configured point value for a reason code. Unknown
// reasons fall back to the default weight.
func (l *Ledger) Weight(reason string) int {
	if w, ok := l.cfg.Weights[reason]; ok {
		return w
	}
	return l.cfg.DefaultWeight
}

// Increment atomically adds the reason's weight to the identity's score,
// refreshes its decay window, classifies the result, and auto-blocks on
// overflow.
func (l *Ledger) Increment(ctx context.Context, identity, reason string) Outcome {
	points := l.Weight(reason)

	score, err := l.store.IncrBy(ctx, scoreKeyPrefix+identity, int64(points), l.cfg.ScoreDecay)
	if err != nil {
		logger.Warnf("ledger: increment failed for %s, falling back to clean: %v", identity, err)
		return Outcome{Score: 0, Level: models.TierClean, Reason: reason}
	}

	level := Classify(int(score), l.cfg.Thresholds)
	if level == models.TierBlock {
		if err := l.blocks.Block(ctx, identity, "threat score "+strconv.FormatInt(score, 10)+" crossed block threshold", true); err != nil {
			logger.Errorf("ledger: auto-block of %s failed: %v", identity, err)
		} else {
			metrics.AutoBlocksTotal.Inc()
		}
	}

	return Outcome{Score: int(score), Level: level, Reason: reason}
}

// Score reads the current score and tier without mutating anything.
func (l *Ledger) Score(ctx context.Context, identity string) Outcome {
	raw, err := l.store.Get(ctx, scoreKeyPrefix+identity)
	if errors.Is(err, store.ErrNotFound) {
		return Outcome{Score: 0, Level: models.TierClean}
	}
	if err != nil {
		logger.Warnf("ledger: score read failed for %s, falling back to clean: %v", identity, err)
		return Outcome{Score: 0, Level: models.TierClean}
	}

	score, err := strconv.Atoi(raw)
	if err != nil {
		logger.Warnf("ledger: malformed score for %s: %v", identity, err)
		return Outcome{Score: 0, Level: models.TierClean}
	}
	return Outcome{Score: score, Level: Classify(score, l.cfg.Thresholds)}
}
