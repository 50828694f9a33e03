package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benvon/food-delivery/internal/config"
	"github.com/benvon/food-delivery/internal/database"
	"github.com/benvon/food-delivery/internal/handlers"
	"github.com/benvon/food-delivery/internal/logger"
	"github.com/benvon/food-delivery/internal/metrics"
	"github.com/benvon/food-delivery/internal/middleware"
	"github.com/benvon/food-delivery/internal/server"
	"github.com/benvon/food-delivery/internal/telemetry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// routeModules maps each API prefix (handlers.PrefixAuth and friends) to the module that
// serves it. Module owners register here from their own file in this package; prefixes
// left out answer 404.
var routeModules = map[string]handlers.RouteModule{}

type options struct {
	debug      bool
	port       string
	configFile string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:           "food-delivery-api",
		Short:         "Food Delivery API server",
		Long:          "Serves the food delivery HTTP API behind its security and rate limiting pipeline",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return run(ctx, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.debug, "debug", false, "Enable debug logging")
	cmd.Flags().StringVar(&opts.port, "port", "", "Port to listen on (overrides PORT)")
	cmd.Flags().StringVar(&opts.configFile, "config", "", "Path to a YAML config file (overrides CONFIG_FILE)")

	return cmd
}

func run(ctx context.Context, opts *options) error {
	cfg, err := config.Load(opts.configFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if opts.port != "" {
		cfg.ServerPort = opts.port
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	debugMode := cfg.ServerDebugMode || opts.debug

	zapLogger, err := logger.NewProductionLogger(debugMode)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() { _ = logger.Sync(zapLogger) }()

	return serve(ctx, cfg, zapLogger, routeModules)
}

// serve runs the API until ctx is done or a listener fails
func serve(ctx context.Context, cfg *config.Config, zapLogger *zap.Logger, routes map[string]handlers.RouteModule) error {
	debugMode := zapLogger.Core().Enabled(zap.DebugLevel)

	zapLogger.Info("starting_server",
		zap.Bool("debug_mode", debugMode),
		zap.String("server_port", cfg.ServerPort),
		zap.Strings("allowed_origins", cfg.AllowedOrigins),
		zap.Duration("rate_limit_window", cfg.RateLimitWindow),
		zap.Int64("rate_limit_max", cfg.RateLimitMax),
		zap.Bool("otel_enabled", cfg.OTELEnabled),
	)

	tracing := false
	if cfg.OTELEnabled {
		tp, err := telemetry.InitTracer(ctx, telemetry.ServiceName, cfg.OTELEndpoint)
		if err != nil {
			zapLogger.Warn("failed_to_initialize_otel_tracer", zap.Error(err))
		} else {
			tracing = true
			zapLogger.Info("otel_tracer_initialized", zap.String("endpoint", cfg.OTELEndpoint))
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := telemetry.Shutdown(shutdownCtx, tp); err != nil {
					zapLogger.Error("failed_to_shutdown_otel_tracer", zap.Error(err))
				}
			}()
		}
	}

	// The database connects in the background; the listener does not wait for it
	db := database.NewConnector(cfg.MongoDBURI, cfg.DBConnectTimeout, zapLogger)
	db.Start(ctx)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := db.Close(closeCtx); err != nil {
			zapLogger.Warn("failed_to_close_database_connection", zap.Error(err))
		}
	}()

	deps := server.Dependencies{
		Logger:   zapLogger,
		Database: db,
		Routes:   routes,
		Tracing:  tracing,
	}

	if cfg.RedisURL != "" {
		redisClient, err := middleware.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				zapLogger.Warn("failed_to_close_redis_connection", zap.Error(err))
			}
		}()
		store, err := middleware.NewRateLimitStore(redisClient)
		if err != nil {
			return err
		}
		deps.RateLimitStore = store
		zapLogger.Info("connected_to_redis")
	}

	var metricsServer *http.Server
	if cfg.MetricsPort != "" {
		deps.Metrics = metrics.New(db)
		metricsServer = server.MetricsServer(cfg.MetricsPort, deps.Metrics)
	}

	api, err := server.New(cfg, deps)
	if err != nil {
		return err
	}
	zapLogger.Debug("middleware_configured", zap.Strings("stages", api.Stages()))

	srv := api.HTTPServer()
	errCh := make(chan error, 2)

	go func() {
		zapLogger.Info("server_starting",
			zap.String("port", cfg.ServerPort),
			zap.String("message", "Server running on port "+cfg.ServerPort),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server failed: %w", err)
		}
	}()

	if metricsServer != nil {
		go func() {
			zapLogger.Info("metrics_server_starting", zap.String("port", cfg.MetricsPort))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("metrics server failed: %w", err)
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
		zapLogger.Info("server_shutting_down")
	case runErr = <-errCh:
		zapLogger.Error("server_failed", zap.Error(runErr))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("server_forced_to_shutdown", zap.Error(err))
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			zapLogger.Error("metrics_server_forced_to_shutdown", zap.Error(err))
		}
	}

	zapLogger.Info("server_exited")
	return runErr
}
