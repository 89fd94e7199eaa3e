package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Engine-wide collectors, registered on the default registry and served
// by promhttp in cmd.
var (
	IncidentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webtrap_incidents_total",
		Help: "Incidents recorded, by incident type.",
	}, []string{"type"})

	CountermeasuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webtrap_countermeasures_total",
		Help: "Countermeasures applied, by action.",
	}, []string{"action"})

	AutoBlocksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "webtrap_auto_blocks_total",
		Help: "Identities auto-promoted to the block registry.",
	})

	CanaryIssuedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "webtrap_canary_issued_total",
		Help: "Canary tokens issued in decoy documents.",
	})

	CanaryOpenedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "webtrap_canary_opened_total",
		Help: "Canary tokens opened for the first time.",
	})

	AlertsSentTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "webtrap_alerts_sent_total",
		Help: "Alerts fanned out to transports.",
	})

	AlertsSuppressedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "webtrap_alerts_suppressed_total",
		Help: "Alerts suppressed by the dedup window.",
	})

	RateLimitDeniedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "webtrap_rate_limit_denied_total",
		Help: "Admissions denied by the rate limiter, including store-failure denials.",
	})

	TarpitDelaySeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "webtrap_tarpit_delay_seconds",
		Help:    "Intentional tarpit delays applied to responses.",
		Buckets: []float64{1, 2, 3, 5, 8, 13, 21, 34, 60},
	})
)
