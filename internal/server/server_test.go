package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/benvon/food-delivery/internal/apperr"
	"github.com/benvon/food-delivery/internal/config"
	"github.com/benvon/food-delivery/internal/database"
	"github.com/benvon/food-delivery/internal/handlers"
	"github.com/benvon/food-delivery/internal/metrics"
	"github.com/benvon/food-delivery/internal/middleware"
	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type fakeDatabase database.Status

func (f fakeDatabase) Status() database.Status {
	return database.Status(f)
}

// orderModule is a stand-in for the orders route group
type orderModule struct {
	reached bool
	note    string
}

func (m *orderModule) RegisterRoutes(r *mux.Router) {
	r.Handle("", handlers.Handle(func(w http.ResponseWriter, r *http.Request) error {
		m.reached = true
		var order struct {
			Item string `json:"item" validate:"required"`
		}
		if err := handlers.Bind(r, &order); err != nil {
			return err
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		return json.NewEncoder(w).Encode(map[string]string{"item": order.Item})
	})).Methods(http.MethodPost)

	r.HandleFunc("/notes", func(w http.ResponseWriter, r *http.Request) {
		m.reached = true
		m.note = r.PostForm.Get("note")
	}).Methods(http.MethodPost)

	r.Handle("/fail", handlers.Handle(func(w http.ResponseWriter, r *http.Request) error {
		return apperr.New(http.StatusConflict, "order already dispatched")
	}))

	r.HandleFunc("/panic", func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})
}

func newTestServer(t *testing.T, mutate func(*config.Config), deps Dependencies) *Server {
	t.Helper()
	cfg := config.Defaults()
	if mutate != nil {
		mutate(cfg)
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	s, err := New(cfg, deps)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return s
}

func serve(s http.Handler, req *http.Request) *httptest.ResponseRecorder {
	if req.RemoteAddr == "" {
		req.RemoteAddr = "192.0.2.1:1234"
	}
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)
	return w
}

func assertSecurityHeaders(t *testing.T, w *httptest.ResponseRecorder) {
	t.Helper()
	for header, want := range map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "SAMEORIGIN",
		"Referrer-Policy":        "no-referrer",
	} {
		if got := w.Header().Get(header); got != want {
			t.Errorf("%s = %q, want %q (status %d)", header, got, want, w.Code)
		}
	}
}

func TestServer_HealthCheck(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, nil, Dependencies{})

	w := serve(s, httptest.NewRequest("GET", "/api/health", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var body handlers.HealthResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if body.Status != "OK" || body.Message != "Food Delivery API is running" {
		t.Errorf("Unexpected health body: %+v", body)
	}
	if _, err := time.Parse(time.RFC3339Nano, body.Timestamp); err != nil {
		t.Errorf("Timestamp %q is not ISO-8601: %v", body.Timestamp, err)
	}
	assertSecurityHeaders(t, w)
	if w.Header().Get(middleware.RequestIDHeader) == "" {
		t.Error("Expected a request ID header")
	}

	head := serve(s, httptest.NewRequest("HEAD", "/api/health", nil))
	if head.Code != http.StatusOK {
		t.Errorf("Expected HEAD to answer 200, got %d", head.Code)
	}

	for _, path := range []string{"/api/health/", "/API/health", "/Api/Health/"} {
		if w := serve(s, httptest.NewRequest("GET", path, nil)); w.Code != http.StatusOK {
			t.Errorf("GET %s: expected 200, got %d", path, w.Code)
		}
	}
}

func TestServer_ExtendedHealthCheck(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, nil, Dependencies{Database: fakeDatabase(database.StatusFailed)})

	w := serve(s, httptest.NewRequest("GET", "/api/health?mode=extended", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected status 503, got %d", w.Code)
	}
	var body handlers.HealthResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if body.Checks["database"] != "failed" {
		t.Errorf("Expected database check 'failed', got %q", body.Checks["database"])
	}
}

func TestServer_NotFound(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, nil, Dependencies{
		Routes: map[string]handlers.RouteModule{handlers.PrefixOrders: &orderModule{}},
	})

	tests := []struct {
		name   string
		method string
		path   string
	}{
		{"unknown api path", "GET", "/api/nonexistent"},
		{"root", "GET", "/"},
		{"wrong method on health", "POST", "/api/health"},
		{"group without module", "GET", "/api/restaurants"},
		{"unknown path in group", "GET", "/api/orders/unknown"},
		{"wrong method in group", "DELETE", "/api/orders"},
		{"prefix lookalike", "POST", "/api/ordersx"},
		{"double slash", "GET", "/api//nonexistent"},
		{"leading double slash", "GET", "//api/health"},
		{"dot segment", "GET", "/api/./health"},
		{"parent segment", "GET", "/api/menu/../health"},
		{"health lookalike", "GET", "/api/healthz"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			w := serve(s, httptest.NewRequest(tt.method, tt.path, nil))

			if w.Code != http.StatusNotFound {
				t.Errorf("Expected status 404, got %d", w.Code)
			}
			if got := w.Body.String(); got != `{"success":false,"message":"API endpoint not found"}`+"\n" {
				t.Errorf("Unexpected body %q", got)
			}
			assertSecurityHeaders(t, w)
		})
	}
}

func TestServer_RateLimit(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, nil, Dependencies{})

	for i := 1; i <= 100; i++ {
		w := serve(s, httptest.NewRequest("GET", "/api/nonexistent", nil))
		if w.Code == http.StatusTooManyRequests {
			t.Fatalf("request %d was rate limited", i)
		}
	}

	w := serve(s, httptest.NewRequest("GET", "/api/health", nil))
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("Expected request 101 to be rejected, got %d", w.Code)
	}
	if got := w.Body.String(); got != "Too many requests from this IP, please try again later." {
		t.Errorf("Unexpected body %q", got)
	}
	assertSecurityHeaders(t, w)

	// Paths outside /api/ are never counted
	if w := serve(s, httptest.NewRequest("GET", "/", nil)); w.Code != http.StatusNotFound {
		t.Errorf("Expected non-API path to bypass the limiter, got %d", w.Code)
	}

	// Another client is unaffected
	req := httptest.NewRequest("GET", "/api/health", nil)
	req.RemoteAddr = "192.0.2.99:1234"
	if w := serve(s, req); w.Code != http.StatusOK {
		t.Errorf("Expected another client to pass, got %d", w.Code)
	}
}

func TestServer_RateLimitExemptHealth(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, func(cfg *config.Config) {
		cfg.RateLimitMax = 2
		cfg.RateLimitExemptHealth = true
	}, Dependencies{})

	for i := 0; i < 5; i++ {
		for _, path := range []string{"/api/health", "/api/health/", "/API/Health"} {
			if w := serve(s, httptest.NewRequest("GET", path, nil)); w.Code != http.StatusOK {
				t.Fatalf("health request %d to %s: expected 200, got %d", i+1, path, w.Code)
			}
		}
	}
	for i := 0; i < 2; i++ {
		serve(s, httptest.NewRequest("GET", "/api/menu", nil))
	}
	if w := serve(s, httptest.NewRequest("GET", "/api/menu", nil)); w.Code != http.StatusTooManyRequests {
		t.Errorf("Expected other API paths to stay limited, got %d", w.Code)
	}
}

func TestServer_RateLimitRedisStore(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store, err := middleware.NewRateLimitStore(client)
	if err != nil {
		t.Fatalf("NewRateLimitStore() error = %v", err)
	}

	cfg := func(cfg *config.Config) { cfg.RateLimitMax = 1 }
	// Two instances sharing one store behave like one
	a := newTestServer(t, cfg, Dependencies{RateLimitStore: store})
	b := newTestServer(t, cfg, Dependencies{RateLimitStore: store})

	if w := serve(a, httptest.NewRequest("GET", "/api/health", nil)); w.Code != http.StatusOK {
		t.Fatalf("Expected first request to pass, got %d", w.Code)
	}
	if w := serve(b, httptest.NewRequest("GET", "/api/health", nil)); w.Code != http.StatusTooManyRequests {
		t.Errorf("Expected second request on another instance to be limited, got %d", w.Code)
	}
}

func TestServer_CORS(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, nil, Dependencies{})

	t.Run("preflight from allowed origin", func(t *testing.T) {
		t.Parallel()

		req := httptest.NewRequest(http.MethodOptions, "/api/orders", nil)
		req.Header.Set("Origin", "http://localhost:3000")
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		w := serve(s, req)

		if w.Code != http.StatusNoContent {
			t.Errorf("Expected status 204, got %d", w.Code)
		}
		if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
			t.Errorf("Expected allowed origin to be echoed, got %q", got)
		}
		if got := w.Header().Get("Access-Control-Allow-Credentials"); got != "true" {
			t.Errorf("Expected credentials header, got %q", got)
		}
	})

	t.Run("options without preflight headers", func(t *testing.T) {
		t.Parallel()

		req := httptest.NewRequest(http.MethodOptions, "/api/nonexistent", nil)
		req.Header.Set("Origin", "http://localhost:5173")
		w := serve(s, req)

		if w.Code != http.StatusNoContent {
			t.Errorf("Expected status 204, got %d", w.Code)
		}
		if w.Body.Len() != 0 {
			t.Errorf("Expected empty body, got %q", w.Body.String())
		}
		assertSecurityHeaders(t, w)
	})

	t.Run("request from other origin", func(t *testing.T) {
		t.Parallel()

		req := httptest.NewRequest("GET", "/api/health", nil)
		req.Header.Set("Origin", "https://attacker.example.com")
		w := serve(s, req)

		if w.Code != http.StatusOK {
			t.Errorf("Expected the request itself to be served, got %d", w.Code)
		}
		if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
			t.Errorf("Expected no Access-Control-Allow-Origin, got %q", got)
		}
	})
}

func TestServer_RouteModules(t *testing.T) {
	t.Parallel()

	t.Run("JSON body reaches module", func(t *testing.T) {
		t.Parallel()

		module := &orderModule{}
		s := newTestServer(t, nil, Dependencies{Routes: map[string]handlers.RouteModule{handlers.PrefixOrders: module}})

		req := httptest.NewRequest("POST", "/api/orders", strings.NewReader(`{"item":"ramen"}`))
		req.Header.Set("Content-Type", "application/json")
		w := serve(s, req)

		if w.Code != http.StatusCreated {
			t.Fatalf("Expected status 201, got %d: %s", w.Code, w.Body.String())
		}
		if !strings.Contains(w.Body.String(), `"ramen"`) {
			t.Errorf("Unexpected body %q", w.Body.String())
		}
	})

	t.Run("malformed JSON never reaches module", func(t *testing.T) {
		t.Parallel()

		module := &orderModule{}
		s := newTestServer(t, nil, Dependencies{Routes: map[string]handlers.RouteModule{handlers.PrefixOrders: module}})

		req := httptest.NewRequest("POST", "/api/orders", strings.NewReader(`{"item":`))
		req.Header.Set("Content-Type", "application/json")
		w := serve(s, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("Expected status 400, got %d", w.Code)
		}
		if module.reached {
			t.Error("Expected module not to run")
		}
		assertErrorBody(t, w, "invalid JSON payload")
	})

	t.Run("invalid order rejected by module", func(t *testing.T) {
		t.Parallel()

		module := &orderModule{}
		s := newTestServer(t, nil, Dependencies{Routes: map[string]handlers.RouteModule{handlers.PrefixOrders: module}})

		req := httptest.NewRequest("POST", "/api/orders", strings.NewReader(`{"item":""}`))
		req.Header.Set("Content-Type", "application/json")
		w := serve(s, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("Expected status 400, got %d", w.Code)
		}
		assertErrorBody(t, w, "invalid field Item: failed required validation")
	})

	t.Run("oversized body rejected", func(t *testing.T) {
		t.Parallel()

		module := &orderModule{}
		s := newTestServer(t, nil, Dependencies{Routes: map[string]handlers.RouteModule{handlers.PrefixOrders: module}})

		big := append(append([]byte(`{"item":"`), bytes.Repeat([]byte("x"), 11<<20)...), []byte(`"}`)...)
		req := httptest.NewRequest("POST", "/api/orders", bytes.NewReader(big))
		req.Header.Set("Content-Type", "application/json")
		w := serve(s, req)

		if w.Code != http.StatusRequestEntityTooLarge {
			t.Errorf("Expected status 413, got %d", w.Code)
		}
		if module.reached {
			t.Error("Expected module not to run")
		}
		assertErrorBody(t, w, "request entity too large")
		assertSecurityHeaders(t, w)
	})

	t.Run("form body parsed before module", func(t *testing.T) {
		t.Parallel()

		module := &orderModule{}
		s := newTestServer(t, nil, Dependencies{Routes: map[string]handlers.RouteModule{handlers.PrefixOrders: module}})

		req := httptest.NewRequest("POST", "/api/orders/notes", strings.NewReader("note=leave+at+door"))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		w := serve(s, req)

		if w.Code != http.StatusOK {
			t.Errorf("Expected status 200, got %d", w.Code)
		}
		if module.note != "leave at door" {
			t.Errorf("Expected parsed note, got %q", module.note)
		}
	})

	t.Run("module errors reach the error handler", func(t *testing.T) {
		t.Parallel()

		s := newTestServer(t, nil, Dependencies{Routes: map[string]handlers.RouteModule{handlers.PrefixOrders: &orderModule{}}})

		w := serve(s, httptest.NewRequest("GET", "/api/orders/fail", nil))
		if w.Code != http.StatusConflict {
			t.Errorf("Expected status 409, got %d", w.Code)
		}
		assertErrorBody(t, w, "order already dispatched")
		assertSecurityHeaders(t, w)
	})

	t.Run("module panics become one 500 response", func(t *testing.T) {
		t.Parallel()

		s := newTestServer(t, nil, Dependencies{Routes: map[string]handlers.RouteModule{handlers.PrefixOrders: &orderModule{}}})

		w := serve(s, httptest.NewRequest("GET", "/api/orders/panic", nil))
		if w.Code != http.StatusInternalServerError {
			t.Errorf("Expected status 500, got %d", w.Code)
		}
		assertErrorBody(t, w, "Internal Server Error")
		if strings.Contains(w.Body.String(), "boom") {
			t.Error("Expected panic details to stay out of the response")
		}
	})
}

func assertErrorBody(t *testing.T, w *httptest.ResponseRecorder, wantMessage string) {
	t.Helper()
	var body middleware.ErrorResponse
	dec := json.NewDecoder(w.Body)
	if err := dec.Decode(&body); err != nil {
		t.Fatalf("Failed to decode error body: %v", err)
	}
	if body.Success {
		t.Error("Expected success to be false")
	}
	if body.Message != wantMessage {
		t.Errorf("Expected message %q, got %q", wantMessage, body.Message)
	}
	if body.RequestID != w.Header().Get(middleware.RequestIDHeader) {
		t.Errorf("Expected request_id %q, got %q", w.Header().Get(middleware.RequestIDHeader), body.RequestID)
	}
	if dec.More() {
		t.Error("Expected exactly one JSON document in the response")
	}
}

func TestServer_Stages(t *testing.T) {
	t.Parallel()

	without := newTestServer(t, nil, Dependencies{})
	want := []string{
		"request_id", "logging", "audit", "security_headers", "error_handler",
		"rate_limit", "cors", "body_parser", "timeout",
	}
	if got := without.Stages(); !reflect.DeepEqual(got, want) {
		t.Errorf("Stages() = %v, want %v", got, want)
	}

	with := newTestServer(t, nil, Dependencies{Metrics: metrics.New(nil)})
	if got := with.Stages(); len(got) != len(want)+1 || got[3] != "metrics" {
		t.Errorf("Expected metrics stage after audit, got %v", got)
	}
}

func TestNew_Errors(t *testing.T) {
	t.Parallel()

	if _, err := New(nil, Dependencies{}); err == nil {
		t.Error("Expected error for nil config")
	}

	_, err := New(config.Defaults(), Dependencies{
		Routes: map[string]handlers.RouteModule{"/api/payments": &orderModule{}},
	})
	if err == nil {
		t.Error("Expected error for unknown route group")
	}
}

func TestHTTPServer(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, func(cfg *config.Config) { cfg.ServerPort = "8080" }, Dependencies{})
	srv := s.HTTPServer()

	if srv.Addr != ":8080" {
		t.Errorf("Expected Addr ':8080', got %q", srv.Addr)
	}
	if srv.ReadTimeout != 15*time.Second || srv.IdleTimeout != 60*time.Second {
		t.Errorf("Unexpected timeouts: read=%v idle=%v", srv.ReadTimeout, srv.IdleTimeout)
	}

	if MetricsServer("", metrics.New(nil)) != nil {
		t.Error("Expected no metrics server without a port")
	}
	ms := MetricsServer("9100", metrics.New(nil))
	if ms == nil || ms.Addr != ":9100" {
		t.Fatalf("Unexpected metrics server: %+v", ms)
	}
	w := httptest.NewRecorder()
	ms.Handler.ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Errorf("Expected metrics endpoint to answer 200, got %d", w.Code)
	}
}
