package profile

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"webtrap/pkg/models"
)

// Behavioral pattern rules. Each rule is independent and evaluated on
// read; nothing here is persisted.

// AnalyzePatterns derives behavioral flags from a profile.
func AnalyzePatterns(p *models.AttackerProfile) []models.Pattern {
	if p == nil {
		return nil
	}
	var out []models.Pattern

	if len(p.ScoreHistory) >= 2 {
		first := p.ScoreHistory[0]
		last := p.ScoreHistory[len(p.ScoreHistory)-1]
		span := last.Timestamp.Sub(first.Timestamp)
		if last.Score-first.Score >= 5 && span < time.Hour && span >= 0 {
			out = append(out, models.Pattern{
				Name:        "rapid_escalation",
				Severity:    "high",
				Description: fmt.Sprintf("score rose %d points in %s", last.Score-first.Score, span.Round(time.Second)),
			})
		}
	}

	if len(p.AttackTypes) >= 3 {
		out = append(out, models.Pattern{
			Name:        "diverse_attacks",
			Severity:    "medium",
			Description: fmt.Sprintf("%d distinct attack types observed", len(p.AttackTypes)),
		})
	}

	if len(p.UserAgents) >= 3 {
		out = append(out, models.Pattern{
			Name:        "user_agent_rotation",
			Severity:    "medium",
			Description: fmt.Sprintf("%d distinct user agents observed", len(p.UserAgents)),
		})
	}

	if p.TotalIncidents >= 10 {
		out = append(out, models.Pattern{
			Name:        "persistence",
			Severity:    "high",
			Description: fmt.Sprintf("%d total incidents", p.TotalIncidents),
		})
	}

	if mean, ok := recentCadence(p.Incidents, 5); ok && mean < 5*time.Second {
		out = append(out, models.Pattern{
			Name:        "automated_cadence",
			Severity:    "high",
			Description: fmt.Sprintf("mean inter-arrival %s over last incidents", mean.Round(time.Millisecond)),
		})
	}

	return out
}

// recentCadence returns the mean inter-arrival time among the last n
// incidents. Needs at least n incidents to report.
func recentCadence(incidents []models.Incident, n int) (time.Duration, bool) {
	if len(incidents) < n {
		return 0, false
	}
	recent := incidents[len(incidents)-n:]
	var total time.Duration
	for i := 1; i < len(recent); i++ {
		total += recent[i].Timestamp.Sub(recent[i-1].Timestamp)
	}
	return total / time.Duration(len(recent)-1), true
}

// UserAgentStat is one ranked user-agent observation.
type UserAgentStat struct {
	UserAgent string `json:"user_agent"`
	Count     int    `json:"count"`
	Category  string `json:"category"`
}

// UserAgentAnalysis summarizes an attacker's client software.
type UserAgentAnalysis struct {
	Ranked         []UserAgentStat `json:"ranked"`
	DiversityRatio float64         `json:"diversity_ratio"`
}

// Classification keyword lists, checked in order; the first matching
// category wins.
var uaCategories = []struct {
	name     string
	keywords []string
}{
	{"bot", []string{"bot", "crawler", "spider", "slurp"}},
	{"script", []string{"python", "curl", "wget", "go-http-client", "ruby", "perl", "libwww"}},
	{"api_client", []string{"postman", "insomnia", "axios", "okhttp", "httpclient"}},
	{"browser", []string{"mozilla", "chrome", "safari", "firefox", "edge", "opera"}},
	{"attack_tool", []string{"sqlmap", "nikto", "nmap", "masscan", "gobuster", "dirbuster", "hydra", "burp", "zgrab"}},
}

// ClassifyUserAgent buckets one user-agent string.
func ClassifyUserAgent(ua string) string {
	lower := strings.ToLower(ua)
	for _, cat := range uaCategories {
		for _, kw := range cat.keywords {
			if strings.Contains(lower, kw) {
				return cat.name
			}
		}
	}
	return "unknown"
}

// AnalyzeUserAgents ranks a profile's user agents by frequency and
// computes the diversity ratio (unique strings / total observations).
func AnalyzeUserAgents(p *models.AttackerProfile) UserAgentAnalysis {
	if p == nil || len(p.UserAgents) == 0 {
		return UserAgentAnalysis{}
	}

	total := 0
	ranked := make([]UserAgentStat, 0, len(p.UserAgents))
	for ua, count := range p.UserAgents {
		total += count
		ranked = append(ranked, UserAgentStat{
			UserAgent: ua,
			Count:     count,
			Category:  ClassifyUserAgent(ua),
		})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Count != ranked[j].Count {
			return ranked[i].Count > ranked[j].Count
		}
		return ranked[i].UserAgent < ranked[j].UserAgent
	})

	return UserAgentAnalysis{
		Ranked:         ranked,
		DiversityRatio: float64(len(p.UserAgents)) / float64(total),
	}
}
