package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	WebTrap WebTrapConfig `yaml:"webtrap"`
}

// WebTrapConfig is the project configuration.
type WebTrapConfig struct {
	Server    ServerConfig    `yaml:"server"`
	Store     StoreConfig     `yaml:"store"`
	Identity  IdentityConfig  `yaml:"identity"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Threat    ThreatConfig    `yaml:"threat"`
	Rules     RulesConfig     `yaml:"rules"`
	Canary    CanaryConfig    `yaml:"canary"`
	Alerts    AlertsConfig    `yaml:"alerts"`
	Detection DetectionConfig `yaml:"detection"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig controls the HTTP front.
type ServerConfig struct {
	Addr            string   `yaml:"addr"`
	MetricsEnabled  bool     `yaml:"metrics_enabled"`
	DisallowedPaths []string `yaml:"disallowed_paths"`
}

// StoreConfig selects and configures the backing store. An empty addr
// selects the in-process memory store (standalone mode).
type StoreConfig struct {
	Redis RedisConfig `yaml:"redis"`
}

// RedisConfig controls Redis access.
type RedisConfig struct {
	Addr      string        `yaml:"addr"`
	Password  string        `yaml:"password"`
	DB        int           `yaml:"db"`
	OpTimeout time.Duration `yaml:"op_timeout"`
}

// IdentityConfig controls visitor identity hashing.
type IdentityConfig struct {
	Secret string `yaml:"secret"`
}

// RateLimitConfig controls the sliding-window limiter.
type RateLimitConfig struct {
	Limit  int           `yaml:"limit"`
	Window time.Duration `yaml:"window"`
}

// ThreatConfig controls scoring, tiers and block behavior.
type ThreatConfig struct {
	Thresholds    ThresholdsConfig `yaml:"thresholds"`
	Weights       map[string]int   `yaml:"weights"`
	DefaultWeight int              `yaml:"default_weight"`
	ScoreDecay    time.Duration    `yaml:"score_decay"`
	BlockTTL      time.Duration    `yaml:"block_ttl"`
	ProfileTTL    time.Duration    `yaml:"profile_ttl"`
}

// ThresholdsConfig holds the tier cut points.
type ThresholdsConfig struct {
	Warn   int `yaml:"warn"`
	Tarpit int `yaml:"tarpit"`
	Block  int `yaml:"block"`
}

// RulesConfig gates individual countermeasures.
type RulesConfig struct {
	OversizedEnabled bool          `yaml:"oversized_enabled"`
	DeceptionEnabled bool          `yaml:"deception_enabled"`
	TarpitEnabled    bool          `yaml:"tarpit_enabled"`
	TarpitMin        time.Duration `yaml:"tarpit_min"`
	TarpitMax        time.Duration `yaml:"tarpit_max"`
}

// CanaryConfig controls decoy documents and their tokens.
type CanaryConfig struct {
	Retention    time.Duration `yaml:"retention"`
	CallbackPath string        `yaml:"callback_path"`
	Documents    []string      `yaml:"documents"`
}

// AlertsConfig controls high-severity notification fan-out.
type AlertsConfig struct {
	Enabled     bool            `yaml:"enabled"`
	DedupWindow time.Duration   `yaml:"dedup_window"`
	File        FileAlertConfig `yaml:"file"`
	Webhook     WebhookConfig   `yaml:"webhook"`
	Email       EmailConfig     `yaml:"email"`
}

// FileAlertConfig configures the JSONL alert transport.
type FileAlertConfig struct {
	Path string `yaml:"path"`
}

// WebhookConfig configures the HTTP alert transport.
type WebhookConfig struct {
	URL     string            `yaml:"url"`
	Timeout time.Duration     `yaml:"timeout"`
	Headers map[string]string `yaml:"headers"`
}

// EmailConfig configures the SMTP alert transport.
type EmailConfig struct {
	Host     string   `yaml:"host"`
	Port     int      `yaml:"port"`
	From     string   `yaml:"from"`
	To       []string `yaml:"to"`
	Username string   `yaml:"username"`
	Password string   `yaml:"password"`
}

// DetectionConfig controls operator-supplied detection rules.
type DetectionConfig struct {
	Enabled   bool   `yaml:"enabled"`
	RulesPath string `yaml:"rules_path"`
}

// LoggingConfig controls logging output.
type LoggingConfig struct {
	Enabled bool   `yaml:"enabled"`
	Level   string `yaml:"level"`
	File    string `yaml:"file"`
	Console bool   `yaml:"console"`
}

// LoadConfig reads and parses a YAML config file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Tarpit delay hard ceiling; configuration may not exceed it.
const MaxTarpitDelay = 60 * time.Second

// Validate rejects logically invalid configuration. Invariants are
// enforced here, at load time, never at evaluation time.
func (c *WebTrapConfig) Validate() error {
	t := c.Threat.Thresholds
	if !(0 < t.Warn && t.Warn < t.Tarpit && t.Tarpit < t.Block) {
		return fmt.Errorf("threat thresholds must satisfy 0 < warn < tarpit < block, got warn=%d tarpit=%d block=%d",
			t.Warn, t.Tarpit, t.Block)
	}
	for reason, weight := range c.Threat.Weights {
		if weight < 0 {
			return fmt.Errorf("threat weight for %q must be non-negative, got %d", reason, weight)
		}
	}
	if c.Threat.DefaultWeight < 0 {
		return fmt.Errorf("default threat weight must be non-negative, got %d", c.Threat.DefaultWeight)
	}
	if c.Rules.TarpitMin > c.Rules.TarpitMax {
		return fmt.Errorf("tarpit_min %v exceeds tarpit_max %v", c.Rules.TarpitMin, c.Rules.TarpitMax)
	}
	if c.Rules.TarpitMax > MaxTarpitDelay {
		return fmt.Errorf("tarpit_max %v exceeds the %v ceiling", c.Rules.TarpitMax, MaxTarpitDelay)
	}
	return nil
}
