package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/nextlevelbuilder/goturn/internal/bus"
	"github.com/nextlevelbuilder/goturn/internal/channels"
	"github.com/nextlevelbuilder/goturn/internal/channels/whatsapp"
	"github.com/nextlevelbuilder/goturn/internal/config"
	"github.com/nextlevelbuilder/goturn/internal/conversation"
	"github.com/nextlevelbuilder/goturn/internal/debounce"
	"github.com/nextlevelbuilder/goturn/internal/dispatch"
	"github.com/nextlevelbuilder/goturn/internal/engine"
	"github.com/nextlevelbuilder/goturn/internal/gateway"
	httpapi "github.com/nextlevelbuilder/goturn/internal/http"
	"github.com/nextlevelbuilder/goturn/internal/ingest"
	"github.com/nextlevelbuilder/goturn/internal/kv"
	mcpserver "github.com/nextlevelbuilder/goturn/internal/mcp"
	"github.com/nextlevelbuilder/goturn/internal/store"
	"github.com/nextlevelbuilder/goturn/internal/store/memory"
	"github.com/nextlevelbuilder/goturn/internal/store/pg"
	"github.com/nextlevelbuilder/goturn/internal/tracing"
)

const (
	dedupeTTL        = 20 * time.Minute
	dedupeMaxEntries = 5000
	webhookBurst     = 5
)

func gatewayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gateway",
		Short: "Run the WhatsApp buffering gateway (default command)",
		Run: func(cmd *cobra.Command, args []string) {
			runGateway()
		},
	}
}

func runGateway() {
	setupLogging()

	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := serve(ctx, cfg); err != nil {
		slog.Error("gateway exited", "error", err)
		os.Exit(1)
	}
	slog.Info("gateway stopped")
}

func setupLogging() {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})))
}

// serve wires every component and blocks until ctx is cancelled.
func serve(ctx context.Context, cfg *config.Config) error {
	if cfg.Engine.URL == "" {
		return fmt.Errorf("engine.url is required (or GOTURN_ENGINE_URL)")
	}

	shutdownTracing, err := tracing.Setup(ctx, cfg.Telemetry)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			slog.Warn("otel shutdown failed", "error", err)
		}
	}()

	shared := openSharedStore(ctx, cfg.Store)
	defer shared.Close()

	buffer := conversation.NewBuffer(shared, kv.NewMemoryStore(nil), cfg.Buffer.TTL(), cfg.Buffer.MaxFallbackFragments)
	cooldown := conversation.NewCooldown(shared, cfg.Windows.Cooldown())
	session := conversation.NewSessionWindow(shared, cfg.Windows.Session())
	edit := conversation.NewEditWindow(shared, cfg.Windows.EditWindow())

	history := openHistory(ctx, cfg.Database)
	defer history.Close()

	// The bridge transport delivers inbound messages through this callback,
	// so the ingestor is bound after the channel exists.
	var ingestor *ingest.Ingestor
	ch, err := whatsapp.New(cfg.Channels.WhatsApp, func(ctx context.Context, msg bus.InboundMessage) {
		out := ingestor.Handle(ctx, msg)
		slog.Debug("bridge inbound handled", "conversation", out.ConversationID, "status", out.Status)
	})
	if err != nil {
		return err
	}

	readMin, readMax := cfg.Pacing.ReadDelay()
	segMin, segMax := cfg.Pacing.SegmentDelay()
	dispatcher := dispatch.New(
		engine.NewHTTPClient(cfg.Engine.URL, cfg.Engine.Token, cfg.Engine.Timeout()),
		ch, session, edit,
		dispatch.Options{
			ReadDelayMin:    readMin,
			ReadDelayMax:    readMax,
			SegmentDelayMin: segMin,
			SegmentDelayMax: segMax,
			FirstSendDelay:  cfg.Pacing.FirstSendDelay(),
			Delimiter:       cfg.Pacing.SegmentDelimiter,
			FailureMessage:  cfg.Engine.FailureMessage,
			ResetNotice:     cfg.Windows.SessionResetNotice,
			History:         history,
			Tracer:          tracing.Tracer(),
		},
	)

	coordinator := debounce.New(buffer, dispatcher.Handle, debounce.Options{
		PollInterval:   cfg.Buffer.PollInterval(),
		StallThreshold: cfg.Buffer.StallThreshold,
		MaxWatchers:    cfg.Buffer.MaxWatchers,
	})
	defer coordinator.Stop()

	ingestor = ingest.New(ingest.Config{
		Buffer:                  buffer,
		Cooldown:                cooldown,
		Scheduler:               coordinator,
		Dedupe:                  bus.NewDedupeCache(dedupeTTL, dedupeMaxEntries),
		RateLimit:               channels.NewWebhookRateLimiter(cfg.Gateway.RateLimitRPM, webhookBurst),
		Allow:                   ch.IsAllowed,
		History:                 history,
		CooldownOnOperatorReply: cfg.Windows.CooldownOnOperatorReply,
		CooldownTTL:             cfg.Windows.Cooldown(),
	})

	srv := gateway.NewServer(cfg,
		httpapi.NewHealthHandler(Version),
		httpapi.NewWebhookHandler(ingestor, cfg.Gateway.WebhookToken, cfg.Gateway.MaxMessageChars),
		httpapi.NewMessagesHandler(dispatcher, cfg.Gateway.Token),
		httpapi.NewConversationsHandler(buffer, session, edit, cooldown, coordinator, cfg.Gateway.Token),
	)
	if cfg.MCP.Enabled {
		tools := &mcpserver.Tools{Buffer: buffer, Session: session, Edit: edit, Cooldown: cooldown, History: history}
		srv.SetMCPHandler(cfg.MCP.Path, mcpserver.Handler(mcpserver.NewServer(tools, Version), cfg.MCP.Path))
	}

	slog.Info("goturn gateway starting",
		"version", Version,
		"transport", ch.Name(),
		"allowlist", ch.HasAllowList(),
		"shared_store", cfg.Store.RedisAddr != "",
		"mcp", cfg.MCP.Enabled,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := ch.Start(gctx); err != nil {
			return fmt.Errorf("start %s channel: %w", ch.Name(), err)
		}
		<-gctx.Done()
		return ch.Stop(context.Background())
	})
	g.Go(func() error {
		return srv.Start(gctx)
	})
	return g.Wait()
}

// openSharedStore returns the Redis store, or an in-process store when no
// address is configured. An unreachable Redis is not fatal: primitives
// degrade and the buffer falls back to memory until it recovers.
func openSharedStore(ctx context.Context, cfg config.StoreConfig) kv.Store {
	if cfg.RedisAddr == "" {
		slog.Warn("store.redis_addr not set, using in-process store (single-process mode)")
		return kv.NewMemoryStore(nil)
	}

	s := kv.NewRedisStore(kv.RedisOptions{
		Addr:        cfg.RedisAddr,
		Password:    cfg.RedisPassword,
		DB:          cfg.RedisDB,
		DialTimeout: cfg.DialTimeout(),
		OpTimeout:   cfg.OpTimeout(),
	})
	pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := s.Ping(pctx); err != nil {
		slog.Warn("redis not reachable at startup, continuing degraded", "addr", cfg.RedisAddr, "error", err)
	} else {
		slog.Info("redis connected", "addr", cfg.RedisAddr)
	}
	return s
}

// openHistory returns the Postgres history store when a DSN is set and the
// schema is current, otherwise an in-memory one.
func openHistory(ctx context.Context, cfg config.DatabaseConfig) store.HistoryStore {
	if cfg.PostgresDSN == "" {
		return memory.NewHistoryStore(cfg.HistoryLimit)
	}

	db, err := pg.OpenDB(cfg.PostgresDSN)
	if err != nil {
		slog.Warn("postgres unavailable, chat history kept in memory", "error", err)
		return memory.NewHistoryStore(cfg.HistoryLimit)
	}
	status, err := pg.CheckSchema(ctx, db)
	if err != nil || !status.Compatible {
		hint := "unknown"
		if status != nil {
			hint = status.Describe()
		}
		slog.Warn("postgres schema not usable, chat history kept in memory", "schema", hint, "error", err)
		db.Close()
		return memory.NewHistoryStore(cfg.HistoryLimit)
	}

	slog.Info("chat history in postgres", "schema", status.Describe(), "limit", cfg.HistoryLimit)
	return pg.NewPGHistoryStore(db, cfg.HistoryLimit)
}
