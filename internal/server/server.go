// Package server assembles the API: the ordered policy chain, the router with its
// route groups, the health check and the catch-all 404.
package server

import (
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/benvon/food-delivery/internal/config"
	"github.com/benvon/food-delivery/internal/handlers"
	"github.com/benvon/food-delivery/internal/metrics"
	"github.com/benvon/food-delivery/internal/middleware"
	"github.com/benvon/food-delivery/internal/telemetry"
	"github.com/gorilla/mux"
	"github.com/ulule/limiter/v3"
	"go.uber.org/zap"
)

// Dependencies are the collaborators the server is built from. Everything except
// Logger is optional.
type Dependencies struct {
	Logger *zap.Logger

	// RateLimitStore holds the per-client counters; nil means process memory
	RateLimitStore limiter.Store

	// Database is reported by the extended health check
	Database handlers.DatabaseStatus

	// Routes maps route group prefixes (handlers.RoutePrefixes) to the modules
	// serving them. Groups without a module answer 404.
	Routes map[string]handlers.RouteModule

	Metrics *metrics.Metrics
	Tracing bool
}

// Server is the assembled HTTP handler
type Server struct {
	cfg     *config.Config
	handler http.Handler
	chain   *middleware.Chain
	router  *mux.Router
}

// New builds the server from cfg and deps
func New(cfg *config.Config, deps Dependencies) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router, err := newRouter(deps)
	if err != nil {
		return nil, err
	}

	store := deps.RateLimitStore
	if store == nil {
		if store, err = middleware.NewRateLimitStore(nil); err != nil {
			return nil, err
		}
	}

	chain := newChain(cfg, deps, store, logger)

	return &Server{
		cfg:     cfg,
		handler: chain.Then(router),
		chain:   chain,
		router:  router,
	}, nil
}

// newChain lays out the request pipeline, outermost stage first
func newChain(cfg *config.Config, deps Dependencies, store limiter.Store, logger *zap.Logger) *middleware.Chain {
	var metricsMW func(http.Handler) http.Handler
	if deps.Metrics != nil {
		metricsMW = deps.Metrics.Middleware
	}

	var exempt []string
	if cfg.RateLimitExemptHealth {
		exempt = append(exempt, handlers.HealthPath)
	}

	return middleware.NewChain(
		middleware.Stage{Name: "request_id", Middleware: middleware.RequestID},
		middleware.Stage{Name: "logging", Middleware: middleware.Logging(logger)},
		middleware.Stage{Name: "audit", Middleware: middleware.Audit(logger, cfg.TrustProxy)},
		middleware.Stage{Name: "metrics", Middleware: metricsMW},
		middleware.Stage{Name: "security_headers", Middleware: middleware.SecurityHeaders(middleware.DefaultSecurityPolicy(cfg.EnableHSTS))},
		middleware.Stage{Name: "error_handler", Middleware: middleware.ErrorHandler(logger)},
		middleware.Stage{Name: "rate_limit", Middleware: middleware.RateLimit(store, middleware.RateLimitOptions{
			Window:      cfg.RateLimitWindow,
			Max:         cfg.RateLimitMax,
			PathPrefix:  middleware.DefaultRateLimitPrefix,
			ExemptPaths: exempt,
			TrustProxy:  cfg.TrustProxy,
		}, logger)},
		middleware.Stage{Name: "cors", Middleware: middleware.CORS(cfg.AllowedOrigins, logger)},
		middleware.Stage{Name: "body_parser", Middleware: middleware.BodyParser(middleware.BodyLimits{
			JSON: cfg.MaxJSONBodyBytes,
			Form: cfg.MaxFormBodyBytes,
		})},
		middleware.Stage{Name: "timeout", Middleware: middleware.Timeout(cfg.RequestTimeout)},
	)
}

func newRouter(deps Dependencies) (*mux.Router, error) {
	known := make(map[string]bool, len(handlers.RoutePrefixes))
	for _, prefix := range handlers.RoutePrefixes {
		known[prefix] = true
	}
	for prefix := range deps.Routes {
		if !known[prefix] {
			return nil, fmt.Errorf("unknown route group %q", prefix)
		}
	}

	// Non-canonical paths such as /api//orders fall through to the 404 handler
	// instead of being redirected
	r := mux.NewRouter().SkipClean(true)
	if deps.Tracing {
		r.Use(telemetry.RouterMiddleware())
	}

	healthChecker := handlers.NewHealthChecker(deps.Database)
	r.HandleFunc(handlers.HealthPath, healthChecker.HealthCheck).Methods(http.MethodGet, http.MethodHead)
	// /api/health/ and /API/Health are the same endpoint
	r.MatcherFunc(matchHealthVariant).Methods(http.MethodGet, http.MethodHead).HandlerFunc(healthChecker.HealthCheck)

	for _, prefix := range handlers.RoutePrefixes {
		module, ok := deps.Routes[prefix]
		if !ok || module == nil {
			continue
		}
		module.RegisterRoutes(r.PathPrefix(prefix).Subrouter())
	}

	// Unknown paths and known paths with the wrong method get the same answer
	r.NotFoundHandler = http.HandlerFunc(handlers.NotFound)
	r.MethodNotAllowedHandler = http.HandlerFunc(handlers.NotFound)

	return r, nil
}

func matchHealthVariant(r *http.Request, _ *mux.RouteMatch) bool {
	return strings.EqualFold(strings.TrimSuffix(r.URL.Path, "/"), handlers.HealthPath)
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Stages returns the names of the pipeline stages in execution order
func (s *Server) Stages() []string {
	return s.chain.Names()
}

// Router returns the router behind the pipeline
func (s *Server) Router() *mux.Router {
	return s.router
}

// HTTPServer returns an http.Server listening on the configured port
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:              net.JoinHostPort("", s.cfg.ServerPort),
		Handler:           s,
		ReadTimeout:       s.cfg.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      s.cfg.WriteTimeout,
		IdleTimeout:       s.cfg.IdleTimeout,
		MaxHeaderBytes:    1 << 20, // 1MB max header size
	}
}

// MetricsServer returns an http.Server exposing m under /metrics on port, or nil
// when metrics are disabled
func MetricsServer(port string, m *metrics.Metrics) *http.Server {
	if port == "" || m == nil {
		return nil
	}
	serveMux := http.NewServeMux()
	serveMux.Handle("/metrics", m.Handler())
	return &http.Server{
		Addr:              net.JoinHostPort("", port),
		Handler:           serveMux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}
