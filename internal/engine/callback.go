package engine

import (
	"context"
	"errors"
	"time"

	"webtrap/internal/alerts"
	"webtrap/internal/canary"
	"webtrap/internal/identity"
	"webtrap/internal/logger"
	"webtrap/internal/metrics"
	"webtrap/pkg/models"

	"github.com/google/uuid"
)

// A 1x1 transparent GIF. Served for every callback, valid token or not,
// so the response never leaks detection state.
var trackingPixel = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00, 0x80,
	0x00, 0x00, 0x00, 0x00, 0x00, 0xff, 0xff, 0xff, 0x21, 0xf9, 0x04,
	0x01, 0x00, 0x00, 0x00, 0x00, 0x2c, 0x00, 0x00, 0x00, 0x00, 0x01,
	0x00, 0x01, 0x00, 0x00, 0x02, 0x02, 0x44, 0x01, 0x00, 0x3b,
}

// CanaryCallback processes a phone-home from a decoy document. The
// returned decision is byte-identical whether the token was valid,
// malformed, or unknown.
func (e *Engine) CanaryCallback(ctx context.Context, req *models.RequestDescriptor, token string, client *canary.ClientPayload) *models.Decision {
	decision := &models.Decision{
		Action:      models.ActionLogOnly,
		Status:      200,
		ContentType: "image/gif",
		Headers:     map[string]string{"Cache-Control": "no-store"},
		Body:        trackingPixel,
		Level:       models.TierClean,
	}

	cb := canary.CallbackContext{
		SourceOrigin:   identity.Origin(req),
		UserAgent:      req.UserAgent(),
		AcceptLanguage: req.Header("Accept-Language"),
		Referer:        req.Header("Referer"),
		Client:         client,
	}

	prior, fp, err := e.canary.Callback(ctx, token, cb)
	if err != nil {
		if !errors.Is(err, canary.ErrUnknownToken) {
			logger.Warnf("engine: canary callback persistence failed: %v", err)
		}
		return decision
	}

	if !prior.Opened {
		metrics.CanaryOpenedTotal.Inc()
	}

	// Bookkeeping binds the open to the ISSUING identity, not to
	// whoever fired the callback.
	if err := e.journal.RecordForensic(ctx, prior.Identity, *fp); err != nil {
		logger.Warnf("engine: forensic journal failed for %s: %v", prior.Identity, err)
	}

	out := e.ledger.Increment(ctx, prior.Identity, string(models.IncidentCanaryOpened))
	inc := models.Incident{
		ID:          uuid.NewString(),
		Type:        models.IncidentCanaryOpened,
		Key:         prior.DocumentPath,
		UserAgent:   cb.UserAgent,
		ThreatScore: out.Score,
		ThreatLevel: out.Level,
		Timestamp:   time.Now().UTC(),
	}
	if err := e.journal.RecordIncident(ctx, prior.Identity, inc); err != nil {
		logger.Warnf("engine: incident journal failed for %s: %v", prior.Identity, err)
	}
	metrics.IncidentsTotal.WithLabelValues(string(models.IncidentCanaryOpened)).Inc()

	if e.cfg.AlertsEnabled {
		e.dispatcher.Send(ctx, &alerts.Event{
			Identity: prior.Identity,
			Category: string(models.IncidentCanaryOpened),
			Severity: "high",
			Summary:  "canary document opened: " + prior.DocumentPath,
			Details: map[string]interface{}{
				"document": prior.DocumentPath,
				"score":    out.Score,
				"level":    string(out.Level),
			},
		})
	}

	return decision
}
