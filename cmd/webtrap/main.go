package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"webtrap/config"
	"webtrap/internal/alerts"
	"webtrap/internal/blocklist"
	"webtrap/internal/canary"
	"webtrap/internal/decoy"
	"webtrap/internal/detect"
	"webtrap/internal/engine"
	"webtrap/internal/identity"
	"webtrap/internal/ledger"
	"webtrap/internal/logger"
	"webtrap/internal/profile"
	"webtrap/internal/ratelimit"
	"webtrap/internal/store"
)

func findConfigFile(configArg string) string {
	if configArg != "" {
		path := configArg
		if _, err := os.Stat(path); err == nil {
			return path
		}
		log.Printf("Warning: config file not found at %s, trying default locations", path)
	}

	if _, err := os.Stat("webtrap.yml"); err == nil {
		return "webtrap.yml"
	}

	exePath, err := os.Executable()
	if err == nil {
		exeDir := filepath.Dir(exePath)
		path := filepath.Join(exeDir, "webtrap.yml")
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return "webtrap.yml"
}

func applyDefaults(cfg *config.Config) {
	w := &cfg.WebTrap

	if w.Server.Addr == "" {
		w.Server.Addr = ":8080"
	}
	if len(w.Server.DisallowedPaths) == 0 {
		w.Server.DisallowedPaths = []string{"/admin", "/internal", "/api/private"}
	}

	if w.Store.Redis.OpTimeout <= 0 {
		w.Store.Redis.OpTimeout = 2 * time.Second
	}

	if w.RateLimit.Limit <= 0 {
		w.RateLimit.Limit = 5
	}
	if w.RateLimit.Window <= 0 {
		w.RateLimit.Window = 10 * time.Second
	}

	if w.Threat.Thresholds == (config.ThresholdsConfig{}) {
		w.Threat.Thresholds = config.ThresholdsConfig{Warn: 3, Tarpit: 7, Block: 12}
	}
	if w.Threat.DefaultWeight <= 0 {
		w.Threat.DefaultWeight = 1
	}
	if len(w.Threat.Weights) == 0 {
		w.Threat.Weights = map[string]int{
			"robots_violation":    2,
			"honeytoken_access":   4,
			"injection_probe":     5,
			"canary_opened":       5,
			"rate_limit_exceeded": 1,
			"rule_match":          3,
		}
	}
	if w.Threat.ScoreDecay <= 0 {
		w.Threat.ScoreDecay = time.Hour
	}
	if w.Threat.BlockTTL <= 0 {
		w.Threat.BlockTTL = 24 * time.Hour
	}
	if w.Threat.ProfileTTL <= 0 {
		w.Threat.ProfileTTL = 30 * 24 * time.Hour
	}

	if w.Rules.TarpitMin <= 0 {
		w.Rules.TarpitMin = 3 * time.Second
	}
	if w.Rules.TarpitMax <= 0 {
		w.Rules.TarpitMax = 8 * time.Second
	}

	if w.Canary.Retention <= 0 {
		w.Canary.Retention = 7 * 24 * time.Hour
	}
	if w.Canary.CallbackPath == "" {
		w.Canary.CallbackPath = "/cdn/pixel"
	}
	if len(w.Canary.Documents) == 0 {
		w.Canary.Documents = []string{"/backup.sql", "/.env", "/docs/credentials.html"}
	}

	if w.Alerts.DedupWindow <= 0 {
		w.Alerts.DedupWindow = 5 * time.Minute
	}

	if w.Logging.Level == "" {
		w.Logging.Level = "info"
	}
}

func main() {
	configArg := flag.String("config", "", "Path to webtrap.yml")
	flag.Parse()

	configPath := findConfigFile(*configArg)
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	applyDefaults(cfg)
	if err := cfg.WebTrap.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	if err := logger.Init(cfg.WebTrap.Logging.Enabled, cfg.WebTrap.Logging.Level, cfg.WebTrap.Logging.File, cfg.WebTrap.Logging.Console); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	logger.Infof("WebTrap starting")
	logger.Infof("Config loaded from: %s", configPath)

	hasher, err := identity.NewHasher(cfg.WebTrap.Identity.Secret)
	if err != nil {
		log.Fatalf("Refusing to start: %v", err)
	}

	var st store.Store
	if strings.TrimSpace(cfg.WebTrap.Store.Redis.Addr) == "" {
		logger.Warnf("No redis address configured; using in-process store (standalone mode)")
		st = store.NewMemory()
	} else {
		redisStore, err := store.NewRedis(store.RedisConfig{
			Addr:      cfg.WebTrap.Store.Redis.Addr,
			Password:  cfg.WebTrap.Store.Redis.Password,
			DB:        cfg.WebTrap.Store.Redis.DB,
			OpTimeout: cfg.WebTrap.Store.Redis.OpTimeout,
		})
		if err != nil {
			log.Fatalf("Failed to connect to redis: %v", err)
		}
		st = redisStore
	}
	defer st.Close()

	blocks := blocklist.NewRegistry(st, cfg.WebTrap.Threat.BlockTTL)
	scores := ledger.NewLedger(st, blocks, ledger.Config{
		Thresholds: ledger.Thresholds{
			Warn:   cfg.WebTrap.Threat.Thresholds.Warn,
			Tarpit: cfg.WebTrap.Threat.Thresholds.Tarpit,
			Block:  cfg.WebTrap.Threat.Thresholds.Block,
		},
		Weights:       cfg.WebTrap.Threat.Weights,
		DefaultWeight: cfg.WebTrap.Threat.DefaultWeight,
		ScoreDecay:    cfg.WebTrap.Threat.ScoreDecay,
	})
	journal := profile.NewJournal(st, cfg.WebTrap.Threat.ProfileTTL)
	limiter := ratelimit.NewLimiter(st, ratelimit.Config{
		Limit:  cfg.WebTrap.RateLimit.Limit,
		Window: cfg.WebTrap.RateLimit.Window,
	})
	canaryProto := canary.NewProtocol(st, hasher, canary.Config{
		Retention:    cfg.WebTrap.Canary.Retention,
		CallbackPath: cfg.WebTrap.Canary.CallbackPath,
	})

	var transports []alerts.Transport
	if cfg.WebTrap.Alerts.Enabled {
		if cfg.WebTrap.Alerts.File.Path != "" {
			t, err := alerts.NewFileTransport(cfg.WebTrap.Alerts.File.Path)
			if err != nil {
				log.Fatalf("Failed to create file transport: %v", err)
			}
			defer t.Close()
			transports = append(transports, t)
			logger.Infof("Alert transport: file (%s)", cfg.WebTrap.Alerts.File.Path)
		}
		if cfg.WebTrap.Alerts.Webhook.URL != "" {
			t, err := alerts.NewWebhookTransport(alerts.WebhookConfig{
				URL:     cfg.WebTrap.Alerts.Webhook.URL,
				Timeout: cfg.WebTrap.Alerts.Webhook.Timeout,
				Headers: cfg.WebTrap.Alerts.Webhook.Headers,
			})
			if err != nil {
				log.Fatalf("Failed to create webhook transport: %v", err)
			}
			transports = append(transports, t)
			logger.Infof("Alert transport: webhook (%s)", cfg.WebTrap.Alerts.Webhook.URL)
		}
		if cfg.WebTrap.Alerts.Email.Host != "" {
			t, err := alerts.NewEmailTransport(alerts.EmailConfig{
				Host:     cfg.WebTrap.Alerts.Email.Host,
				Port:     cfg.WebTrap.Alerts.Email.Port,
				From:     cfg.WebTrap.Alerts.Email.From,
				To:       cfg.WebTrap.Alerts.Email.To,
				Username: cfg.WebTrap.Alerts.Email.Username,
				Password: cfg.WebTrap.Alerts.Email.Password,
			})
			if err != nil {
				log.Fatalf("Failed to create email transport: %v", err)
			}
			transports = append(transports, t)
			logger.Infof("Alert transport: email (%s)", cfg.WebTrap.Alerts.Email.Host)
		}
		if len(transports) == 0 {
			logger.Warnf("Alerts enabled but no transport configured")
		}
	}
	dispatcher := alerts.NewDispatcher(st, cfg.WebTrap.Alerts.DedupWindow, transports...)

	var sigmaEngine *detect.SigmaEngine
	if cfg.WebTrap.Detection.Enabled {
		if strings.TrimSpace(cfg.WebTrap.Detection.RulesPath) == "" {
			logger.Warnf("Detection enabled but rules_path is empty; rule matching disabled")
		} else {
			se, stats, err := detect.NewSigmaEngine(cfg.WebTrap.Detection.RulesPath)
			if err != nil {
				log.Fatalf("Failed to load detection rules: %v", err)
			}
			sigmaEngine = se
			logger.Infof("Detection rules loaded: loaded=%d skipped_complex=%d skipped_invalid=%d files=%d",
				stats.Loaded, stats.SkippedComplex, stats.SkippedInvalid, stats.TotalFiles)
		}
	}

	eng := engine.New(engine.Deps{
		Hasher:     hasher,
		Limiter:    limiter,
		Ledger:     scores,
		Blocks:     blocks,
		Journal:    journal,
		Canary:     canaryProto,
		Dispatcher: dispatcher,
		Sigma:      sigmaEngine,
		Generator:  decoy.NewGenerator(0),
	}, engine.Config{
		OversizedEnabled: cfg.WebTrap.Rules.OversizedEnabled,
		DeceptionEnabled: cfg.WebTrap.Rules.DeceptionEnabled,
		TarpitEnabled:    cfg.WebTrap.Rules.TarpitEnabled,
		TarpitMin:        cfg.WebTrap.Rules.TarpitMin,
		TarpitMax:        cfg.WebTrap.Rules.TarpitMax,
		AlertsEnabled:    cfg.WebTrap.Alerts.Enabled,
		CanaryDocs:       cfg.WebTrap.Canary.Documents,
	})

	handler := newServer(eng, cfg.WebTrap)
	srv := &http.Server{
		Addr:         cfg.WebTrap.Server.Addr,
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: config.MaxTarpitDelay + 10*time.Second,
	}

	go func() {
		logger.Infof("Listening on %s", cfg.WebTrap.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("HTTP server error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Infof("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Error shutting down HTTP server: %v", err)
	}

	logger.Infof("WebTrap stopped")
}
