package models

import "time"

// Action is the single countermeasure chosen for a request.
type Action string

const (
	ActionAllow     Action = "allow"
	ActionBlock     Action = "block"
	ActionTarpit    Action = "tarpit"
	ActionDeception Action = "deception"
	ActionOversized Action = "oversized"
	ActionLogOnly   Action = "log_only"
)

// Decision is the engine's verdict for one request. When Action is
// anything but allow, the routing layer sends Status/Headers/Body
// verbatim after waiting out Delay.
type Decision struct {
	Action      Action            `json:"action"`
	Status      int               `json:"status,omitempty"`
	ContentType string            `json:"content_type,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
	Body        []byte            `json:"-"`
	Delay       time.Duration     `json:"delay,omitempty"`
	Score       int               `json:"score"`
	Level       Tier              `json:"level"`
}

// Trigger names the suspicious event that routed a request into the
// engine, plus the key (path, token, parameter) that tripped it.
type Trigger struct {
	Type IncidentType `json:"type"`
	Key  string       `json:"key,omitempty"`
}
