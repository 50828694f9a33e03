package handlers

import (
	"net/http"
	"time"

	"github.com/benvon/food-delivery/internal/database"
)

const (
	// HealthMessage is the fixed message returned by the health check
	HealthMessage = "Food Delivery API is running"

	healthStatusOK       = "OK"
	healthStatusDegraded = "DEGRADED"

	// timestampLayout is ISO-8601 with millisecond precision
	timestampLayout = "2006-01-02T15:04:05.000Z07:00"
)

// DatabaseStatus reports the outcome of the database bootstrap
type DatabaseStatus interface {
	Status() database.Status
}

// HealthChecker handles health check requests
type HealthChecker struct {
	db  DatabaseStatus
	now func() time.Time
}

// NewHealthChecker creates a new health checker. db may be nil, in which case
// extended checks report the database as disconnected.
func NewHealthChecker(db DatabaseStatus) *HealthChecker {
	return &HealthChecker{db: db, now: time.Now}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Message   string            `json:"message"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// HealthCheck handles GET /api/health. The basic check never touches a dependency;
// ?mode=extended adds the last known database status without doing any I/O.
func (h *HealthChecker) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:    healthStatusOK,
		Message:   HealthMessage,
		Timestamp: h.now().UTC().Format(timestampLayout),
	}

	if r.URL.Query().Get("mode") != "extended" {
		respondJSON(w, http.StatusOK, response)
		return
	}

	dbStatus := database.StatusDisconnected
	if h.db != nil {
		dbStatus = h.db.Status()
	}
	response.Checks = map[string]string{"database": string(dbStatus)}

	statusCode := http.StatusOK
	if dbStatus != database.StatusConnected {
		response.Status = healthStatusDegraded
		statusCode = http.StatusServiceUnavailable
	}

	respondJSON(w, statusCode, response)
}
