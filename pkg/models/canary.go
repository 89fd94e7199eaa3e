package models

import "time"

// CanaryToken tracks one issued decoy-document token. The opened flag
// transitions once; later callbacks only refresh the fingerprint.
type CanaryToken struct {
	Token        string       `json:"token"`
	Identity     string       `json:"identity"`
	IssuedAt     time.Time    `json:"issued_at"`
	DocumentPath string       `json:"document_path"`
	Opened       bool         `json:"opened"`
	OpenedAt     *time.Time   `json:"opened_at,omitempty"`
	Fingerprint  *Fingerprint `json:"fingerprint,omitempty"`
}

// Fingerprint is the forensic record captured from a canary callback.
// Client-supplied fields are validated before they land here; network
// addresses are stored hashed, never raw.
type Fingerprint struct {
	CapturedAt      time.Time `json:"captured_at"`
	SourceHash      string    `json:"source_hash,omitempty"`
	UserAgent       string    `json:"user_agent,omitempty"`
	AcceptLanguage  string    `json:"accept_language,omitempty"`
	Referer         string    `json:"referer,omitempty"`
	Timezone        string    `json:"timezone,omitempty"`
	Platform        string    `json:"platform,omitempty"`
	ScreenWidth     int       `json:"screen_width,omitempty"`
	ScreenHeight    int       `json:"screen_height,omitempty"`
	CanvasHash      string    `json:"canvas_hash,omitempty"`
	WebRTCAddrHash  string    `json:"webrtc_addr_hash,omitempty"`
}
