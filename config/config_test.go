package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() WebTrapConfig {
	return WebTrapConfig{
		Threat: ThreatConfig{
			Thresholds:    ThresholdsConfig{Warn: 3, Tarpit: 7, Block: 12},
			Weights:       map[string]int{"injection_probe": 5},
			DefaultWeight: 1,
		},
		Rules: RulesConfig{
			TarpitMin: 3 * time.Second,
			TarpitMax: 8 * time.Second,
		},
	}
}

func TestValidateAcceptsSaneConfig(t *testing.T) {
	cfg := validConfig()
	assert.NoError(t, cfg.Validate())
}

func TestValidateRejectsBrokenThresholdOrdering(t *testing.T) {
	cases := []ThresholdsConfig{
		{Warn: 0, Tarpit: 7, Block: 12},
		{Warn: 7, Tarpit: 3, Block: 12},
		{Warn: 3, Tarpit: 12, Block: 7},
		{Warn: 3, Tarpit: 3, Block: 12},
		{Warn: 3, Tarpit: 7, Block: 7},
	}
	for _, tc := range cases {
		cfg := validConfig()
		cfg.Threat.Thresholds = tc
		assert.Error(t, cfg.Validate(), "thresholds %+v", tc)
	}
}

func TestValidateRejectsNegativeWeights(t *testing.T) {
	cfg := validConfig()
	cfg.Threat.Weights["rule_match"] = -1
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.Threat.DefaultWeight = -2
	assert.Error(t, cfg.Validate())
}

func TestValidateEnforcesTarpitBounds(t *testing.T) {
	cfg := validConfig()
	cfg.Rules.TarpitMin = 10 * time.Second
	cfg.Rules.TarpitMax = 5 * time.Second
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.Rules.TarpitMax = MaxTarpitDelay + time.Second
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.Rules.TarpitMin = MaxTarpitDelay
	cfg.Rules.TarpitMax = MaxTarpitDelay
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfigParsesYAML(t *testing.T) {
	raw := `
webtrap:
  server:
    addr: ":8080"
    metrics_enabled: true
    disallowed_paths:
      - /admin
      - /backup.sql
  store:
    redis:
      addr: localhost:6379
      db: 2
  identity:
    secret: unit-test-secret
  threat:
    thresholds:
      warn: 3
      tarpit: 7
      block: 12
    weights:
      injection_probe: 5
    score_decay: 1h
  rules:
    tarpit_enabled: true
    tarpit_min: 3s
    tarpit_max: 8s
  canary:
    callback_path: /cdn/pixel
    documents:
      - /backup.sql
`
	path := filepath.Join(t.TempDir(), "webtrap.yml")
	require.NoError(t, os.WriteFile(path, []byte(raw), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.WebTrap.Server.Addr)
	assert.True(t, cfg.WebTrap.Server.MetricsEnabled)
	assert.Equal(t, []string{"/admin", "/backup.sql"}, cfg.WebTrap.Server.DisallowedPaths)
	assert.Equal(t, "localhost:6379", cfg.WebTrap.Store.Redis.Addr)
	assert.Equal(t, 2, cfg.WebTrap.Store.Redis.DB)
	assert.Equal(t, 5, cfg.WebTrap.Threat.Weights["injection_probe"])
	assert.Equal(t, time.Hour, cfg.WebTrap.Threat.ScoreDecay)
	assert.Equal(t, 3*time.Second, cfg.WebTrap.Rules.TarpitMin)
	assert.NoError(t, cfg.WebTrap.Validate())
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yml"))
	assert.Error(t, err)
}
