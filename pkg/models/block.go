package models

import "time"

// BlockEntry is one deny-list record.
type BlockEntry struct {
	Identity    string    `json:"identity"`
	Reason      string    `json:"reason"`
	BlockedAt   time.Time `json:"blocked_at"`
	AutoBlocked bool      `json:"auto_blocked"`
	ExpiresAt   time.Time `json:"expires_at,omitempty"`
}
