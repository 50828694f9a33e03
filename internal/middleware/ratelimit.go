package middleware

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	logpkg "github.com/benvon/food-delivery/internal/logger"
	"github.com/benvon/food-delivery/internal/request"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	stdlibmw "github.com/ulule/limiter/v3/drivers/middleware/stdlib"
	memorystore "github.com/ulule/limiter/v3/drivers/store/memory"
	redisstore "github.com/ulule/limiter/v3/drivers/store/redis"
	"go.uber.org/zap"
)

const (
	// RateLimitMessage is the body sent with every rejected request
	RateLimitMessage = "Too many requests from this IP, please try again later."
	// DefaultRateLimitPrefix scopes the limiter to API routes
	DefaultRateLimitPrefix = "/api/"

	rateLimitStorePrefix     = "food_delivery_ratelimit"
	rateLimitCleanUpInterval = time.Minute
)

// RateLimitOptions configures the API rate limiter
type RateLimitOptions struct {
	// Window and Max define a fixed window: at most Max requests per client per Window
	Window time.Duration
	Max    int64
	// PathPrefix limits the scope of the limiter; empty means DefaultRateLimitPrefix
	PathPrefix string
	// ExemptPaths are never counted. They match ignoring case and a trailing slash.
	ExemptPaths []string
	TrustProxy  bool
}

// NewRateLimitStore returns the counter store for the limiter. Counters live in
// Redis when a client is given, otherwise in process memory where expired keys
// are swept periodically so distinct clients cannot grow the map without bound.
func NewRateLimitStore(redisClient *redis.Client) (limiter.Store, error) {
	if redisClient == nil {
		return memorystore.NewStoreWithOptions(limiter.StoreOptions{
			Prefix:          rateLimitStorePrefix,
			CleanUpInterval: rateLimitCleanUpInterval,
		}), nil
	}
	store, err := redisstore.NewStoreWithOptions(redisClient, limiter.StoreOptions{
		Prefix: rateLimitStorePrefix,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create redis rate limit store: %w", err)
	}
	return store, nil
}

// NewRedisClient parses redisURL and verifies the server is reachable
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return client, nil
}

// NewLimiter creates a fixed-window limiter allowing limit requests per key per window
func NewLimiter(store limiter.Store, window time.Duration, limit int64) *limiter.Limiter {
	return limiter.New(store, limiter.Rate{Period: window, Limit: limit})
}

// RateLimit creates rate limiting middleware backed by store
func RateLimit(store limiter.Store, opts RateLimitOptions, logger *zap.Logger) func(http.Handler) http.Handler {
	prefix := opts.PathPrefix
	if prefix == "" {
		prefix = DefaultRateLimitPrefix
	}
	exempt := make(map[string]bool, len(opts.ExemptPaths))
	for _, p := range opts.ExemptPaths {
		exempt[routeKey(p)] = true
	}

	instance := NewLimiter(store, opts.Window, opts.Max)
	keyGetter := func(r *http.Request) string {
		return request.ClientIP(r, opts.TrustProxy)
	}

	return func(next http.Handler) http.Handler {
		limited := stdlibmw.NewMiddleware(instance,
			stdlibmw.WithKeyGetter(keyGetter),
			stdlibmw.WithLimitReachedHandler(rateLimitReached),
			stdlibmw.WithErrorHandler(func(w http.ResponseWriter, r *http.Request, err error) {
				// Fail open: a broken counter store must not take the API down
				logger.Error("rate_limit_store_error",
					zap.String("path", logpkg.SanitizePath(r.URL.Path)),
					zap.String("error", logpkg.SanitizeError(err)),
				)
				next.ServeHTTP(w, r)
			}),
		).Handler(next)

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if exempt[routeKey(r.URL.Path)] || !inScope(r.URL.Path, prefix) {
				next.ServeHTTP(w, r)
				return
			}
			limited.ServeHTTP(w, r)
		})
	}
}

// inScope reports whether path falls under prefix, ignoring case; "/api" matches "/api/" as well
func inScope(path, prefix string) bool {
	path, prefix = strings.ToLower(path), strings.ToLower(prefix)
	return strings.HasPrefix(path, prefix) || path == strings.TrimSuffix(prefix, "/")
}

func routeKey(path string) string {
	if len(path) > 1 {
		path = strings.TrimSuffix(path, "/")
	}
	return strings.ToLower(path)
}

// rateLimitReached answers a request over the limit. The X-RateLimit-* headers have
// already been set by the limiter.
func rateLimitReached(w http.ResponseWriter, r *http.Request) {
	if reset, err := strconv.ParseInt(w.Header().Get("X-RateLimit-Reset"), 10, 64); err == nil {
		wait := reset - time.Now().Unix()
		if wait < 1 {
			wait = 1
		}
		w.Header().Set("Retry-After", strconv.FormatInt(wait, 10))
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusTooManyRequests)
	_, _ = io.WriteString(w, RateLimitMessage)
}
