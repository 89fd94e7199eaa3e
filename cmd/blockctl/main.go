package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"webtrap/config"
	"webtrap/internal/blocklist"
	"webtrap/internal/profile"
	"webtrap/internal/store"
)

func main() {
	configPath := flag.String("config", "webtrap.yml", "Path to webtrap.yml")
	list := flag.Bool("list", false, "List currently blocked identities")
	block := flag.String("block", "", "Identity to block")
	unblock := flag.String("unblock", "", "Identity to unblock")
	reason := flag.String("reason", "manual block", "Reason recorded with -block")
	ttl := flag.Duration("ttl", 24*time.Hour, "Block duration for -block")
	showProfile := flag.String("profile", "", "Identity whose attacker profile to print")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	st, err := store.NewRedis(store.RedisConfig{
		Addr:      cfg.WebTrap.Store.Redis.Addr,
		Password:  cfg.WebTrap.Store.Redis.Password,
		DB:        cfg.WebTrap.Store.Redis.DB,
		OpTimeout: cfg.WebTrap.Store.Redis.OpTimeout,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect to redis: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	ctx := context.Background()
	registry := blocklist.NewRegistry(st, *ttl)

	switch {
	case *list:
		entries, err := registry.ListBlocked(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to list blocks: %v\n", err)
			os.Exit(1)
		}
		if len(entries) == 0 {
			fmt.Println("no blocked identities")
			return
		}
		for _, e := range entries {
			kind := "manual"
			if e.AutoBlocked {
				kind = "auto"
			}
			fmt.Printf("%s  %s  blocked_at=%s  expires=%s  reason=%q\n",
				e.Identity, kind,
				e.BlockedAt.Format(time.RFC3339),
				e.ExpiresAt.Format(time.RFC3339),
				e.Reason)
		}

	case *block != "":
		if err := registry.Block(ctx, *block, *reason, false); err != nil {
			fmt.Fprintf(os.Stderr, "failed to block %s: %v\n", *block, err)
			os.Exit(1)
		}
		fmt.Printf("blocked %s for %s\n", *block, *ttl)

	case *unblock != "":
		if err := registry.Unblock(ctx, *unblock); err != nil {
			fmt.Fprintf(os.Stderr, "failed to unblock %s: %v\n", *unblock, err)
			os.Exit(1)
		}
		fmt.Printf("unblocked %s\n", *unblock)

	case *showProfile != "":
		journal := profile.NewJournal(st, cfg.WebTrap.Threat.ProfileTTL)
		p, err := journal.Profile(ctx, *showProfile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to read profile: %v\n", err)
			os.Exit(1)
		}
		raw, _ := json.MarshalIndent(p, "", "  ")
		fmt.Println(string(raw))
		for _, pat := range profile.AnalyzePatterns(p) {
			fmt.Printf("pattern: %s severity=%s %s\n", pat.Name, pat.Severity, pat.Description)
		}
		if ua := profile.AnalyzeUserAgents(p); len(ua.Ranked) > 0 {
			fmt.Printf("user-agent diversity: %.2f\n", ua.DiversityRatio)
			for _, stat := range ua.Ranked {
				fmt.Printf("  %3d  %-12s %s\n", stat.Count, stat.Category, stat.UserAgent)
			}
		}

	default:
		flag.Usage()
		os.Exit(2)
	}
}
