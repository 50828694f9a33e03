package middleware

import (
	"net/http"

	logpkg "github.com/benvon/food-delivery/internal/logger"
	"github.com/rs/cors"
	"go.uber.org/zap"
)

// CORS creates the cross-origin middleware. Only allowedOrigins receive the
// Access-Control-Allow-* headers, credentials included; every other origin gets a
// response without them and the browser blocks it. Every OPTIONS request ends here
// with 204, preflight or not.
func CORS(allowedOrigins []string, logger *zap.Logger) func(http.Handler) http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowCredentials: true,
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodHead,
			http.MethodPut,
			http.MethodPatch,
			http.MethodPost,
			http.MethodDelete,
		},
		// Reflect whatever headers the preflight asks for
		AllowedHeaders:       []string{"*"},
		OptionsSuccessStatus: http.StatusNoContent,
	})

	return func(next http.Handler) http.Handler {
		h := c.Handler(next)
		optionsHandler := c.Handler(http.HandlerFunc(noContent))
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if origin := r.Header.Get("Origin"); origin != "" && !c.OriginAllowed(r) {
				logger.Debug("cors_origin_rejected",
					zap.String("origin", logpkg.SanitizeHeader(origin)),
					zap.String("method", r.Method),
					zap.String("path", logpkg.SanitizePath(r.URL.Path)),
				)
			}
			if r.Method == http.MethodOptions {
				optionsHandler.ServeHTTP(w, r)
				return
			}
			h.ServeHTTP(w, r)
		})
	}
}

func noContent(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Length", "0")
	w.WriteHeader(http.StatusNoContent)
}
