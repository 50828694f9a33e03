package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/benvon/food-delivery/internal/request"
	"go.uber.org/zap"
)

func serveParsed(limits BodyLimits, next http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	ErrorHandler(zap.NewNop())(BodyParser(limits)(next)).ServeHTTP(w, req)
	return w
}

func TestBodyParser_JSON(t *testing.T) {
	t.Parallel()

	var decoded struct {
		Item     string `json:"item"`
		Quantity int    `json:"quantity"`
	}
	var raw []byte
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := request.DecodeJSON(r, &decoded); err != nil {
			t.Errorf("DecodeJSON() error = %v", err)
		}
		raw, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusCreated)
	})

	body := `{"item":"pad thai","quantity":2}`
	req := httptest.NewRequest("POST", "/api/cart", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	w := serveParsed(BodyLimits{}, next, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d", w.Code)
	}
	if decoded.Item != "pad thai" || decoded.Quantity != 2 {
		t.Errorf("Unexpected decoded body: %+v", decoded)
	}
	if string(raw) != body {
		t.Errorf("Expected body to remain readable, got %q", raw)
	}
}

func TestBodyParser_Rejections(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		contentType string
		body        []byte
		limits      BodyLimits
		wantStatus  int
		wantMessage string
	}{
		{
			name:        "malformed JSON",
			contentType: "application/json",
			body:        []byte(`{"item":`),
			wantStatus:  http.StatusBadRequest,
			wantMessage: "invalid JSON payload",
		},
		{
			name:        "scalar JSON",
			contentType: "application/json",
			body:        []byte(`"just a string"`),
			wantStatus:  http.StatusBadRequest,
			wantMessage: "invalid JSON payload",
		},
		{
			name:        "JSON over default cap",
			contentType: "application/json",
			body:        append(append([]byte(`{"blob":"`), bytes.Repeat([]byte("a"), 11<<20)...), []byte(`"}`)...),
			wantStatus:  http.StatusRequestEntityTooLarge,
			wantMessage: "request entity too large",
		},
		{
			name:        "form over configured cap",
			contentType: "application/x-www-form-urlencoded",
			body:        []byte("note=" + strings.Repeat("x", 64)),
			limits:      BodyLimits{Form: 16},
			wantStatus:  http.StatusRequestEntityTooLarge,
			wantMessage: "request entity too large",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			called := false
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true })

			req := httptest.NewRequest("POST", "/api/orders", bytes.NewReader(tt.body))
			req.Header.Set("Content-Type", tt.contentType)

			w := serveParsed(tt.limits, next, req)

			if called {
				t.Error("Expected route handler not to run")
			}
			if w.Code != tt.wantStatus {
				t.Fatalf("Expected status %d, got %d", tt.wantStatus, w.Code)
			}
			var resp ErrorResponse
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("Failed to decode response: %v", err)
			}
			if resp.Success || resp.Message != tt.wantMessage {
				t.Errorf("Unexpected error response: %+v", resp)
			}
		})
	}
}

func TestBodyParser_ChunkedOversize(t *testing.T) {
	t.Parallel()

	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true })

	req := httptest.NewRequest("POST", "/api/orders", strings.NewReader(`{"note":"`+strings.Repeat("y", 128)+`"}`))
	req.Header.Set("Content-Type", "application/json")
	req.ContentLength = -1

	w := serveParsed(BodyLimits{JSON: 32}, next, req)

	if called {
		t.Error("Expected route handler not to run")
	}
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("Expected 413, got %d", w.Code)
	}
}

func TestBodyParser_Form(t *testing.T) {
	t.Parallel()

	var address string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		address = r.PostForm.Get("address")
	})

	req := httptest.NewRequest("POST", "/api/users", strings.NewReader("address=12+Main+St&zip=90210"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	w := serveParsed(BodyLimits{}, next, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if address != "12 Main St" {
		t.Errorf("Expected parsed address '12 Main St', got %q", address)
	}
}

func TestBodyParser_PassThrough(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		contentType string
		body        string
	}{
		{"plain text", "text/plain", "hello"},
		{"no content type", "", `{"a":1}`},
		{"empty JSON body", "application/json", ""},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var got string
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				data, _ := io.ReadAll(r.Body)
				got = string(data)
			})

			req := httptest.NewRequest("POST", "/api/orders", strings.NewReader(tt.body))
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}

			w := serveParsed(BodyLimits{}, next, req)

			if w.Code != http.StatusOK {
				t.Fatalf("Expected 200, got %d", w.Code)
			}
			if got != tt.body {
				t.Errorf("Expected body %q to reach the handler, got %q", tt.body, got)
			}
		})
	}
}

func TestContentKind(t *testing.T) {
	t.Parallel()

	tests := []struct {
		contentType string
		want        bodyKind
	}{
		{"application/json", bodyJSON},
		{"application/JSON; charset=utf-8", bodyJSON},
		{"application/merge-patch+json", bodyJSON},
		{"application/x-www-form-urlencoded", bodyForm},
		{"multipart/form-data; boundary=x", bodyOther},
		{"text/plain", bodyOther},
		{";;;", bodyOther},
		{"", bodyOther},
	}

	for _, tt := range tests {
		if got := contentKind(tt.contentType); got != tt.want {
			t.Errorf("contentKind(%q) = %v, want %v", tt.contentType, got, tt.want)
		}
	}
}
