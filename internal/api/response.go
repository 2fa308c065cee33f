package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/erazemk/jedilnik/internal/approval"
)

// jsonResponse writes a JSON response with the given status code.
func jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("encoding response", "error", err)
		}
	}
}

// jsonError writes a JSON error response.
func jsonError(w http.ResponseWriter, status int, message string) {
	jsonResponse(w, status, map[string]string{"error": message})
}

// jsonMessage writes an advisory message with status 200.
func jsonMessage(w http.ResponseWriter, message string) {
	jsonResponse(w, http.StatusOK, map[string]string{"message": message})
}

// decodeJSON decodes a JSON request body into the given target.
func decodeJSON(r *http.Request, target any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(target)
}

// approvalError maps authorizer and store failures to responses.
func approvalError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, approval.ErrUnauthenticated):
		jsonError(w, http.StatusUnauthorized, "not authenticated")
	case errors.Is(err, approval.ErrForbidden):
		jsonError(w, http.StatusForbidden, err.Error())
	default:
		slog.Error("approval failed", "error", err)
		jsonError(w, http.StatusInternalServerError, "approval failed, the operation did not take effect")
	}
}
