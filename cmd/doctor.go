package cmd

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/goturn/internal/config"
	"github.com/nextlevelbuilder/goturn/internal/kv"
	"github.com/nextlevelbuilder/goturn/internal/store/pg"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check system environment and configuration health",
		Run: func(cmd *cobra.Command, args []string) {
			runDoctor()
		},
	}
}

func runDoctor() {
	fmt.Println("goturn doctor")
	fmt.Printf("  Version:  %s\n", Version)
	fmt.Printf("  OS:       %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("  Go:       %s\n", runtime.Version())
	fmt.Println()

	cfgPath := resolveConfigPath()
	fmt.Printf("  Config:   %s", cfgPath)
	if _, err := os.Stat(cfgPath); err != nil {
		fmt.Println(" (NOT FOUND, using defaults + env)")
	} else {
		fmt.Println(" (OK)")
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Printf("  Config load error: %s\n", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	fmt.Println()
	fmt.Println("  Shared store:")
	checkRedis(ctx, cfg.Store)

	fmt.Println()
	fmt.Println("  Chat history:")
	checkPostgres(ctx, cfg.Database)

	fmt.Println()
	fmt.Println("  Engine:")
	checkSetting("URL", cfg.Engine.URL)
	checkSecret("Token", cfg.Engine.Token)

	fmt.Println()
	fmt.Println("  WhatsApp:")
	wa := cfg.Channels.WhatsApp
	fmt.Printf("    %-12s %s\n", "Transport:", wa.Transport)
	if wa.Transport == "bridge" {
		checkSetting("Bridge URL", wa.BridgeURL)
	} else {
		checkSetting("API URL", wa.APIURL)
		checkSecret("Token", wa.Token)
	}
	if len(wa.AllowFrom) > 0 {
		fmt.Printf("    %-12s %d numbers\n", "Allowlist:", len(wa.AllowFrom))
	} else {
		fmt.Printf("    %-12s open\n", "Allowlist:")
	}

	fmt.Println()
	fmt.Println("Doctor check complete.")
}

func checkRedis(ctx context.Context, cfg config.StoreConfig) {
	if cfg.RedisAddr == "" {
		fmt.Printf("    %-12s in-process (single-process mode)\n", "Mode:")
		return
	}
	fmt.Printf("    %-12s %s\n", "Redis:", cfg.RedisAddr)

	s := kv.NewRedisStore(kv.RedisOptions{
		Addr:        cfg.RedisAddr,
		Password:    cfg.RedisPassword,
		DB:          cfg.RedisDB,
		DialTimeout: cfg.DialTimeout(),
		OpTimeout:   cfg.OpTimeout(),
	})
	defer s.Close()

	if err := s.Ping(ctx); err != nil {
		fmt.Printf("    %-12s UNREACHABLE (%s)\n", "Status:", err)
		return
	}
	fmt.Printf("    %-12s OK\n", "Status:")
}

func checkPostgres(ctx context.Context, cfg config.DatabaseConfig) {
	if cfg.PostgresDSN == "" {
		fmt.Printf("    %-12s in-memory (GOTURN_POSTGRES_DSN not set)\n", "Mode:")
		return
	}
	fmt.Printf("    %-12s postgres\n", "Mode:")

	db, err := pg.OpenDB(cfg.PostgresDSN)
	if err != nil {
		fmt.Printf("    %-12s CONNECT FAILED (%s)\n", "Status:", err)
		return
	}
	defer db.Close()

	s, err := pg.CheckSchema(ctx, db)
	if err != nil {
		fmt.Printf("    %-12s CHECK FAILED (%s)\n", "Schema:", err)
		return
	}
	fmt.Printf("    %-12s %s\n", "Schema:", s.Describe())
}

func checkSetting(name, value string) {
	if value == "" {
		fmt.Printf("    %-12s (not configured)\n", name+":")
		return
	}
	fmt.Printf("    %-12s %s\n", name+":", value)
}

func checkSecret(name, value string) {
	if value == "" {
		fmt.Printf("    %-12s (not configured)\n", name+":")
		return
	}
	masked := "****"
	if len(value) > 8 {
		masked = value[:4] + "****" + value[len(value)-4:]
	}
	fmt.Printf("    %-12s %s\n", name+":", masked)
}
