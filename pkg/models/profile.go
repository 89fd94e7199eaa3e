package models

import "time"

// Profile capacity limits. Oldest entries are dropped first.
const (
	MaxProfileIncidents = 50
	MaxScoreHistory     = 100
	MaxForensicEntries  = 50
)

// ScorePoint is one observed threat score sample.
type ScorePoint struct {
	Score     int       `json:"score"`
	Timestamp time.Time `json:"timestamp"`
}

// AttackerProfile aggregates everything observed about one identity.
type AttackerProfile struct {
	Identity        string         `json:"identity"`
	FirstSeen       time.Time      `json:"first_seen"`
	LastSeen        time.Time      `json:"last_seen"`
	TotalIncidents  int            `json:"total_incidents"`
	AttackTypes     map[string]int `json:"attack_types"`
	UserAgents      map[string]int `json:"user_agents"`
	ScoreHistory    []ScorePoint   `json:"score_history"`
	Incidents       []Incident     `json:"incidents"`
	ForensicEntries []Fingerprint  `json:"forensic_entries,omitempty"`
}

// Normalize ensures collection fields are never nil so a partially
// written record can always be merged into.
func (p *AttackerProfile) Normalize() {
	if p.AttackTypes == nil {
		p.AttackTypes = make(map[string]int)
	}
	if p.UserAgents == nil {
		p.UserAgents = make(map[string]int)
	}
	if p.ScoreHistory == nil {
		p.ScoreHistory = []ScorePoint{}
	}
	if p.Incidents == nil {
		p.Incidents = []Incident{}
	}
}

// Pattern is a derived behavioral flag.
type Pattern struct {
	Name        string `json:"name"`
	Severity    string `json:"severity"`
	Description string `json:"description"`
}
