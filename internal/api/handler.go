// Package api provides HTTP handlers for the lesson API.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/ashureev/lingua-lessons/internal/domain"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// DefaultMaxRequestBodySize is the default maximum allowed request body size (1MB).
const DefaultMaxRequestBodySize = 1 << 20

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// StatusFor maps an error kind to its HTTP status.
func StatusFor(kind domain.Kind) int {
	switch kind {
	case domain.KindInvalidInput:
		return http.StatusBadRequest
	case domain.KindUnauthenticated:
		return http.StatusUnauthorized
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindAlreadyCompleted, domain.KindBusy:
		return http.StatusConflict
	case domain.KindGenerationFailed:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// WriteError writes err as {"error", "kind"}. Causes of server-side
// failures are logged, never sent.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	kind := domain.KindOf(err)
	status := StatusFor(kind)

	message := "internal server error"
	var de *domain.Error
	if errors.As(err, &de) {
		message = de.Message
	}

	if status >= http.StatusInternalServerError {
		slog.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"kind", kind,
			"request_id", chiMiddleware.GetReqID(r.Context()),
			"error", err)
	}
	JSON(w, status, map[string]string{"error": message, "kind": string(kind)})
}

// decodeJSON reads a size-limited JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, maxBytes int64, v interface{}) bool {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxRequestBodySize
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			Error(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		WriteError(w, r, domain.InvalidInput("invalid request body"))
		return false
	}
	return true
}
