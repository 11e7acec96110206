package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/mimikastudio/mimika/internal/apperr"
)

// errorEnvelope is the uniform error body. Every non-2xx JSON response uses
// it so clients never need per-endpoint error parsing.
type errorEnvelope struct {
	Error     string `json:"error"`
	Detail    string `json:"detail"`
	RequestID string `json:"request_id"`
}

// kindLabel names each error kind in the envelope.
func kindLabel(kind apperr.Kind) string {
	switch kind {
	case apperr.BadRequest:
		return "bad_request"
	case apperr.NotFound:
		return "not_found"
	case apperr.Conflict:
		return "conflict"
	case apperr.Unavailable:
		return "service_unavailable"
	default:
		return "internal_error"
	}
}

func kindStatus(kind apperr.Kind) int {
	switch kind {
	case apperr.BadRequest:
		return http.StatusBadRequest
	case apperr.NotFound:
		return http.StatusNotFound
	case apperr.Conflict:
		return http.StatusConflict
	case apperr.Unavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps err onto the envelope. Internal causes are logged in full
// but never leak past the fixed detail string.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	kind := apperr.KindOf(err)
	detail := apperr.Message(err)
	if kind == apperr.Internal {
		logger.ErrorContext(r.Context(), "request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", requestIDFrom(r.Context()),
			"error", err,
		)
		detail = "Internal server error"
	}
	writeJSON(w, kindStatus(kind), errorEnvelope{
		Error:     kindLabel(kind),
		Detail:    detail,
		RequestID: requestIDFrom(r.Context()),
	})
}

// writeValidationError reports a body that failed to parse at all, which is
// distinct from semantically invalid input.
func writeValidationError(w http.ResponseWriter, r *http.Request, detail string) {
	writeJSON(w, http.StatusUnprocessableEntity, errorEnvelope{
		Error:     "validation_error",
		Detail:    detail,
		RequestID: requestIDFrom(r.Context()),
	})
}

// decodeJSON parses the request body into v. A syntactically broken body is
// a validation error; the handler stops on false.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.Body == nil {
		writeValidationError(w, r, "request body is required")
		return false
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeValidationError(w, r, "invalid JSON: "+err.Error())
		return false
	}
	return true
}
