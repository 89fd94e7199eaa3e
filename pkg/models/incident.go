package models

import "time"

// IncidentType is the closed set of recognized incident discriminants.
type IncidentType string

const (
	IncidentRobotsViolation IncidentType = "robots_violation"
	IncidentHoneytoken      IncidentType = "honeytoken_access"
	IncidentInjectionProbe  IncidentType = "injection_probe"
	IncidentCanaryOpened    IncidentType = "canary_opened"
	IncidentRateLimit       IncidentType = "rate_limit_exceeded"
	IncidentBlockedAccess   IncidentType = "blocked_access"
	IncidentRuleMatch       IncidentType = "rule_match"
)

// Incident is one journaled suspicious event for an identity.
type Incident struct {
	ID             string       `json:"id"`
	Type           IncidentType `json:"type"`
	Key            string       `json:"key,omitempty"`
	Method         string       `json:"method,omitempty"`
	UserAgent      string       `json:"user_agent,omitempty"`
	ThreatScore    int          `json:"threat_score"`
	ThreatLevel    Tier         `json:"threat_level"`
	Countermeasure string       `json:"countermeasure,omitempty"`
	Timestamp      time.Time    `json:"timestamp"`
}
