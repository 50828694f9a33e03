package request

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
)

type contextKey string

const (
	requestIDContextKey contextKey = "request_id"
	jsonBodyContextKey  contextKey = "json_body"
)

// ErrNoJSONBody is returned by DecodeJSON when the request carried no decoded JSON body
var ErrNoJSONBody = errors.New("request has no JSON body")

// ClientIP extracts the client identity used for rate limiting and audit logs.
// Forwarding headers are only honoured when trustProxy is set; otherwise any client
// could pick its own identity. The port is stripped from RemoteAddr so that every
// connection from one host maps to the same identity.
func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			parts := strings.Split(xff, ",")
			if first := strings.TrimSpace(parts[0]); first != "" {
				return first
			}
		}
		if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
			return xri
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// WithRequestID returns a context carrying the request ID.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDContextKey, id)
}

// RequestID returns the request ID from the request context, or "" when missing.
func RequestID(r *http.Request) string {
	id, _ := r.Context().Value(requestIDContextKey).(string)
	return id
}

// WithJSONBody returns a context carrying the raw, already validated JSON body.
func WithJSONBody(ctx context.Context, body json.RawMessage) context.Context {
	return context.WithValue(ctx, jsonBodyContextKey, body)
}

// JSONBody returns the decoded JSON body stored by the body parser.
func JSONBody(r *http.Request) (json.RawMessage, bool) {
	body, ok := r.Context().Value(jsonBodyContextKey).(json.RawMessage)
	return body, ok
}

// DecodeJSON unmarshals the parsed JSON body into v.
func DecodeJSON(r *http.Request, v any) error {
	body, ok := JSONBody(r)
	if !ok {
		return ErrNoJSONBody
	}
	return json.Unmarshal(body, v)
}
