package commands

import (
	"context"
	"fmt"
	"net/url"

	"github.com/benvon/food-delivery/internal/config"
	"github.com/benvon/food-delivery/internal/database"
	"github.com/benvon/food-delivery/internal/middleware"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// NewTestCmd creates the test command
func NewTestCmd(configFile *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "test",
		Short: "Test connectivity to backing services",
		Long:  "Connect to MongoDB and Redis with the configured settings and report the outcome",
	}
	cmd.AddCommand(newTestDatabaseCmd(configFile))
	cmd.AddCommand(newTestRedisCmd(configFile))
	return cmd
}

func newTestDatabaseCmd(configFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "database",
		Short: "Test the MongoDB connection",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			db := database.NewConnector(cfg.MongoDBURI, cfg.DBConnectTimeout, zap.NewNop())
			ctx := cmd.Context()
			db.Start(ctx)
			defer func() { _ = db.Close(context.Background()) }()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Testing MongoDB connection: %s\n", redactURI(cfg.MongoDBURI))
			if err := db.Wait(ctx); err != nil {
				return err
			}
			fmt.Fprintf(out, "✓ Connected to database %q\n", db.DatabaseName())
			return nil
		},
	}
}

func newTestRedisCmd(configFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "redis",
		Short: "Test the Redis connection used for rate limit counters",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if cfg.RedisURL == "" {
				fmt.Fprintln(cmd.OutOrStdout(), "REDIS_URL is not set; the API keeps rate limit counters in memory.")
				return nil
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Testing Redis connection: %s\n", redactURI(cfg.RedisURL))
			client, err := middleware.NewRedisClient(cmd.Context(), cfg.RedisURL)
			if err != nil {
				return err
			}
			defer func() { _ = client.Close() }()

			fmt.Fprintln(cmd.OutOrStdout(), "✓ Redis is reachable")
			return nil
		},
	}
}

// redactURI hides the password of a connection URI
func redactURI(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	return u.Redacted()
}
