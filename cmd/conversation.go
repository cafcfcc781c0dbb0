package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/goturn/internal/config"
	"github.com/nextlevelbuilder/goturn/internal/conversation"
	"github.com/nextlevelbuilder/goturn/internal/kv"
)

func conversationCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "conversation",
		Short: "Inspect and control conversation state in the shared store",
	}
	cmd.AddCommand(conversationStateCmd())
	cmd.AddCommand(conversationCooldownCmd())
	return cmd
}

// openConversationStore connects to the configured Redis. The in-process
// store is private to a running gateway, so there is nothing to inspect
// without one.
func openConversationStore() (*config.Config, kv.Store, error) {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if cfg.Store.RedisAddr == "" {
		return nil, nil, fmt.Errorf("store.redis_addr (or GOTURN_REDIS_ADDR) is not set")
	}
	s := kv.NewRedisStore(kv.RedisOptions{
		Addr:        cfg.Store.RedisAddr,
		Password:    cfg.Store.RedisPassword,
		DB:          cfg.Store.RedisDB,
		DialTimeout: cfg.Store.DialTimeout(),
		OpTimeout:   cfg.Store.OpTimeout(),
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Ping(ctx); err != nil {
		s.Close()
		return nil, nil, fmt.Errorf("redis %s: %w", cfg.Store.RedisAddr, err)
	}
	return cfg, s, nil
}

func conversationStateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "state <phone>",
		Short: "Show buffer, session, edit window and cooldown state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, s, err := openConversationStore()
			if err != nil {
				return err
			}
			defer s.Close()

			state := conversation.Inspect(cmd.Context(), args[0],
				conversation.NewBuffer(s, kv.NewMemoryStore(nil), cfg.Buffer.TTL(), cfg.Buffer.MaxFallbackFragments),
				conversation.NewSessionWindow(s, cfg.Windows.Session()),
				conversation.NewEditWindow(s, cfg.Windows.EditWindow()),
				conversation.NewCooldown(s, cfg.Windows.Cooldown()),
			)

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(state)
		},
	}
}

func conversationCooldownCmd() *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "cooldown <phone>",
		Short: "Pause automated replies for a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, s, err := openConversationStore()
			if err != nil {
				return err
			}
			defer s.Close()

			cooldown := conversation.NewCooldown(s, cfg.Windows.Cooldown())
			if err := cooldown.Activate(cmd.Context(), args[0], ttl); err != nil {
				return fmt.Errorf("activate cooldown: %w", err)
			}
			_, remaining := cooldown.IsActive(cmd.Context(), args[0])
			fmt.Printf("cooldown active for %s (%ds remaining)\n", conversation.Normalize(args[0]), remaining)
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "cooldown length (default: windows.cooldown_seconds)")
	return cmd
}
