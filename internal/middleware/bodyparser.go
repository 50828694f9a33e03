package middleware

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/benvon/food-delivery/internal/apperr"
	"github.com/benvon/food-delivery/internal/request"
)

// DefaultMaxRequestSize is the default maximum request body size (10MB)
const DefaultMaxRequestSize int64 = 10 << 20

// BodyLimits caps decoded request bodies per content type
type BodyLimits struct {
	JSON int64
	Form int64
}

type bodyKind int

const (
	bodyOther bodyKind = iota
	bodyJSON
	bodyForm
)

// BodyParser decodes JSON and URL-encoded bodies before they reach route handlers.
// JSON bodies are validated, stored in the request context (see request.DecodeJSON)
// and remain readable through r.Body; form bodies are parsed into r.PostForm.
// Oversized bodies are refused before they are read in full.
func BodyParser(limits BodyLimits) func(http.Handler) http.Handler {
	if limits.JSON <= 0 {
		limits.JSON = DefaultMaxRequestSize
	}
	if limits.Form <= 0 {
		limits.Form = DefaultMaxRequestSize
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			kind := contentKind(r.Header.Get("Content-Type"))
			if kind == bodyOther || r.Body == nil || r.Body == http.NoBody || r.ContentLength == 0 {
				next.ServeHTTP(w, r)
				return
			}

			maxBytes := limits.JSON
			if kind == bodyForm {
				maxBytes = limits.Form
			}

			// Check Content-Length header early if present
			if r.ContentLength > maxBytes {
				Forward(w, r, apperr.PayloadTooLarge(nil))
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

			switch kind {
			case bodyJSON:
				data, err := io.ReadAll(r.Body)
				if err != nil {
					Forward(w, r, readError(err, "failed to read request body"))
					return
				}
				if err := checkJSON(data); err != nil {
					Forward(w, r, apperr.BadRequest(err, "invalid JSON payload"))
					return
				}
				if len(bytes.TrimSpace(data)) == 0 {
					data = []byte("{}")
				}
				r.Body = io.NopCloser(bytes.NewReader(data))
				r = r.WithContext(request.WithJSONBody(r.Context(), json.RawMessage(data)))
			case bodyForm:
				if err := r.ParseForm(); err != nil {
					Forward(w, r, readError(err, "invalid form payload"))
					return
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

func contentKind(contentType string) bodyKind {
	if contentType == "" {
		return bodyOther
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return bodyOther
	}
	switch {
	case mediaType == "application/json", strings.HasSuffix(mediaType, "+json"):
		return bodyJSON
	case mediaType == "application/x-www-form-urlencoded":
		return bodyForm
	default:
		return bodyOther
	}
}

// checkJSON accepts an empty body or a JSON object/array; bare scalars are refused
func checkJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil
	}
	if trimmed[0] != '{' && trimmed[0] != '[' {
		return apperr.ErrMalformedBody
	}
	if !json.Valid(trimmed) {
		return apperr.ErrMalformedBody
	}
	return nil
}

func readError(err error, message string) error {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return apperr.PayloadTooLarge(err)
	}
	return apperr.BadRequest(err, message)
}
