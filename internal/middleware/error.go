package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime/debug"
	"sync"

	"github.com/benvon/food-delivery/internal/apperr"
	logpkg "github.com/benvon/food-delivery/internal/logger"
	"github.com/benvon/food-delivery/internal/request"
	"go.uber.org/zap"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

type errorSlotKey struct{}

// errorSlot holds the first error forwarded while a request is processed
type errorSlot struct {
	mu  sync.Mutex
	err error
}

func (s *errorSlot) set(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

func (s *errorSlot) get() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Forward hands err to the global error handler. The caller must not write to w
// afterwards. When the request did not pass through ErrorHandler the error response
// is written immediately.
func Forward(w http.ResponseWriter, r *http.Request, err error) {
	if err == nil {
		return
	}
	if slot, ok := r.Context().Value(errorSlotKey{}).(*errorSlot); ok {
		slot.set(err)
		return
	}
	writeErrorResponse(w, r, err, zap.NewNop())
}

// ErrorHandler creates the error handling middleware. Every failure surfaced further
// down the chain, either forwarded with Forward or raised as a panic, ends up here
// and produces exactly one JSON response.
func ErrorHandler(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			slot := &errorSlot{}
			wrapped := newStatusRecorder(w)
			r = r.WithContext(context.WithValue(r.Context(), errorSlotKey{}, slot))

			defer func() {
				if p := recover(); p != nil {
					if p == http.ErrAbortHandler {
						panic(p)
					}
					// Log panic details server-side but don't expose to client
					logger.Error("panic_recovered",
						zap.Any("error", p),
						zap.String("request_id", request.RequestID(r)),
						zap.String("path", logpkg.SanitizePath(r.URL.Path)),
						zap.String("method", r.Method),
						zap.ByteString("stack", debug.Stack()),
					)
					slot.set(apperr.Internal(fmt.Errorf("panic: %v", p)))
				}

				err := slot.get()
				if err == nil {
					return
				}
				if wrapped.wroteHeader {
					logger.Error("error_after_response_started",
						zap.String("request_id", request.RequestID(r)),
						zap.String("path", logpkg.SanitizePath(r.URL.Path)),
						zap.Int("status_code", wrapped.statusCode),
						zap.String("error", logpkg.SanitizeError(err)),
					)
					return
				}
				writeErrorResponse(wrapped, r, err, logger)
			}()

			next.ServeHTTP(wrapped, r)
		})
	}
}

// writeErrorResponse logs err and sends the client-safe JSON error body
func writeErrorResponse(w http.ResponseWriter, r *http.Request, err error, logger *zap.Logger) {
	status := apperr.StatusCode(err)
	fields := []zap.Field{
		zap.String("request_id", request.RequestID(r)),
		zap.String("method", r.Method),
		zap.String("path", logpkg.SanitizePath(r.URL.Path)),
		zap.Int("status_code", status),
		zap.String("error", logpkg.SanitizeError(err)),
	}
	if status >= http.StatusInternalServerError {
		logger.Error("request_failed", fields...)
	} else {
		logger.Debug("request_rejected", fields...)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	response := ErrorResponse{
		Success:   false,
		Message:   apperr.PublicMessage(err),
		RequestID: request.RequestID(r),
	}

	if encErr := json.NewEncoder(w).Encode(response); encErr != nil {
		logger.Error("failed_to_encode_error_response",
			zap.Error(encErr),
			zap.Int("status_code", status),
			zap.String("path", logpkg.SanitizePath(r.URL.Path)),
		)
	}
}
