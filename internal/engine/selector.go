package engine

import (
	"context"
	"fmt"
	"time"

	"webtrap/config"
	"webtrap/internal/decoy"
	"webtrap/internal/detect"
	"webtrap/internal/ledger"
	"webtrap/internal/logger"
	"webtrap/internal/metrics"
	"webtrap/pkg/models"
)

// selectCountermeasure picks exactly one countermeasure in fixed
// precedence order. A branch that fails falls through to the next one;
// the log-only floor cannot fail.
func (e *Engine) selectCountermeasure(ctx context.Context, id string, req *models.RequestDescriptor, trigger models.Trigger, out ledger.Outcome) *models.Decision {
	if e.cfg.OversizedEnabled && out.Level.AtLeast(models.TierTarpit) {
		if d, err := branch(e.oversized, out); err == nil {
			return d
		} else {
			logger.Warnf("engine: oversized branch failed, falling through: %v", err)
		}
	}

	if e.cfg.DeceptionEnabled {
		if trigger.Type == models.IncidentInjectionProbe || detect.DetectInjection(req) {
			if d, err := branch(e.sqlDeception, out); err == nil {
				return d
			} else {
				logger.Warnf("engine: sql deception branch failed, falling through: %v", err)
			}
		} else if e.isCanaryDoc(req.Path) {
			if d, err := e.canaryDocument(ctx, id, req.Path, out); err == nil {
				return d
			} else {
				logger.Warnf("engine: canary branch failed, falling through: %v", err)
			}
		}
	}

	if e.cfg.TarpitEnabled && (out.Level.AtLeast(models.TierTarpit) || trigger.Type == models.IncidentHoneytoken) {
		return e.tarpit(out)
	}

	return e.logOnly(out.Level.AtLeast(models.TierWarn), out)
}

// branch runs one countermeasure producer with a panic boundary so a
// misbehaving generator degrades instead of propagating.
func branch(fn func(ledger.Outcome) (*models.Decision, error), out ledger.Outcome) (d *models.Decision, err error) {
	defer func() {
		if r := recover(); r != nil {
			d = nil
			err = fmt.Errorf("countermeasure branch panicked: %v", r)
		}
	}()
	return fn(out)
}

// oversized serves the cached compressed payload as a normal-looking
// page.
func (e *Engine) oversized(out ledger.Outcome) (*models.Decision, error) {
	body, err := decoy.GzipBomb()
	if err != nil {
		return nil, err
	}
	return &models.Decision{
		Action:      models.ActionOversized,
		Status:      200,
		ContentType: "text/html; charset=utf-8",
		Headers:     map[string]string{"Content-Encoding": "gzip"},
		Body:        body,
		Score:       out.Score,
		Level:       out.Level,
	}, nil
}

// sqlDeception serves a fabricated database error to injection probes.
func (e *Engine) sqlDeception(out ledger.Outcome) (*models.Decision, error) {
	headers := e.gen.NoiseHeaders(out.Level.AtLeast(models.TierTarpit))
	return &models.Decision{
		Action:      models.ActionDeception,
		Status:      500,
		ContentType: "application/json",
		Headers:     headers,
		Body:        e.gen.SQLErrorPayload(),
		Score:       out.Score,
		Level:       out.Level,
	}, nil
}

// canaryDocument issues a token and serves the decoy document for the
// requested catalog path.
func (e *Engine) canaryDocument(ctx context.Context, id, path string, out ledger.Outcome) (*models.Decision, error) {
	token, err := e.canary.Issue(ctx, id, path)
	if err != nil {
		return nil, err
	}
	metrics.CanaryIssuedTotal.Inc()

	body, contentType := e.canary.Document(token, path)
	return &models.Decision{
		Action:      models.ActionDeception,
		Status:      200,
		ContentType: contentType,
		Headers:     e.gen.NoiseHeaders(false),
		Body:        body,
		Score:       out.Score,
		Level:       out.Level,
	}, nil
}

// tarpit answers with a generic error page after a bounded random
// delay. The ceiling holds regardless of configuration.
func (e *Engine) tarpit(out ledger.Outcome) *models.Decision {
	e.mu.Lock()
	span := e.cfg.TarpitMax - e.cfg.TarpitMin
	delay := e.cfg.TarpitMin
	if span > 0 {
		delay += time.Duration(e.rnd.Int63n(int64(span)))
	}
	e.mu.Unlock()
	if delay > config.MaxTarpitDelay {
		delay = config.MaxTarpitDelay
	}

	return &models.Decision{
		Action:      models.ActionTarpit,
		Status:      404,
		ContentType: "text/html; charset=utf-8",
		Headers:     e.gen.NoiseHeaders(true),
		Body:        []byte(notFoundPage),
		Delay:       delay,
		Score:       out.Score,
		Level:       out.Level,
	}
}

// logOnly is the floor: a standard error page with noise headers.
func (e *Engine) logOnly(flagged bool, out ledger.Outcome) *models.Decision {
	return &models.Decision{
		Action:      models.ActionLogOnly,
		Status:      404,
		ContentType: "text/html; charset=utf-8",
		Headers:     e.gen.NoiseHeaders(flagged),
		Body:        []byte(notFoundPage),
		Score:       out.Score,
		Level:       out.Level,
	}
}

func (e *Engine) isCanaryDoc(path string) bool {
	for _, doc := range e.cfg.CanaryDocs {
		if path == doc {
			return true
		}
	}
	return false
}

const notFoundPage = `<!DOCTYPE html>
<html><head><title>404 Not Found</title></head>
<body><h1>Not Found</h1>
<p>The requested URL was not found on this server.</p>
</body></html>
`
