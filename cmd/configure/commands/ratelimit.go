package commands

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/benvon/food-delivery/internal/config"
	"github.com/benvon/food-delivery/internal/middleware"
	"github.com/spf13/cobra"
	"github.com/ulule/limiter/v3"
)

// NewRatelimitCmd creates the ratelimit command with status and reset subcommands.
func NewRatelimitCmd(configFile *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ratelimit",
		Short: "Inspect or reset per-client rate limit counters",
		Long:  "Show or clear the request counter of one client. Counters are only reachable when the API shares them through Redis (REDIS_URL).",
	}
	cmd.AddCommand(newRatelimitStatusCmd(configFile))
	cmd.AddCommand(newRatelimitResetCmd(configFile))
	return cmd
}

func newRatelimitStatusCmd(configFile *string) *cobra.Command {
	var ip string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the counter of a client",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLimiter(cmd.Context(), *configFile, ip, func(ctx context.Context, l *limiter.Limiter, key string) error {
				lctx, err := l.Peek(ctx, key)
				if err != nil {
					return fmt.Errorf("read counter: %w", err)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Client: %s\n", key)
				fmt.Fprintf(out, "  Limit: %d\n", lctx.Limit)
				fmt.Fprintf(out, "  Remaining: %d\n", lctx.Remaining)
				fmt.Fprintf(out, "  Blocked: %t\n", lctx.Reached)
				if lctx.Reset > 0 {
					fmt.Fprintf(out, "  Resets at: %s\n", time.Unix(lctx.Reset, 0).UTC().Format(time.RFC3339))
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&ip, "ip", "", "Client IP address (required)")
	return cmd
}

func newRatelimitResetCmd(configFile *string) *cobra.Command {
	var ip string
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Clear the counter of a client",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLimiter(cmd.Context(), *configFile, ip, func(ctx context.Context, l *limiter.Limiter, key string) error {
				if _, err := l.Reset(ctx, key); err != nil {
					return fmt.Errorf("reset counter: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Rate limit counter for %s cleared.\n", key)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&ip, "ip", "", "Client IP address (required)")
	return cmd
}

// withLimiter connects to the shared counter store and calls fn with a limiter
// configured like the API's
func withLimiter(ctx context.Context, configFile, ip string, fn func(context.Context, *limiter.Limiter, string) error) error {
	ip = strings.TrimSpace(ip)
	if ip == "" {
		return fmt.Errorf("--ip is required")
	}
	if net.ParseIP(ip) == nil {
		return fmt.Errorf("--ip %q is not an IP address", ip)
	}

	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.RedisURL == "" {
		return fmt.Errorf("REDIS_URL is not set: counters live in the memory of each API process")
	}

	client, err := middleware.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	store, err := middleware.NewRateLimitStore(client)
	if err != nil {
		return err
	}

	return fn(ctx, middleware.NewLimiter(store, cfg.RateLimitWindow, cfg.RateLimitMax), ip)
}
