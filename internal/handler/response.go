package handler

// RESPONSE HELPERS:
// Every handler funnels its output through writeJSON/writeError so the API
// speaks one shape. Error bodies are always:
//
//	{"error": "Not Found", "message": "Profile not found or unauthorized"}
//
// The service layer returns apperror sentinels; this is the one place they
// become HTTP status codes. Services never import net/http.

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sakif/cardlink/internal/apperror"
)

// ErrorResponse is the standard error format returned by all API endpoints.
type ErrorResponse struct {
	Error   string `json:"error"`   // error class, e.g. "Not Found"
	Message string `json:"message"` // human-readable description
}

// writeJSON sends a JSON response with the given status code. Headers and
// status MUST go out before the body — anything set after the first Write
// is silently dropped.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Headers are already gone; logging is all that's left.
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// writeError maps a domain error to its HTTP status and sends it.
//
// errors.Is walks the whole wrap chain, so a service error like
//
//	fmt.Errorf("creating profile: %w", apperror.ValidationFailed(...))
//
// still lands on 400. Anything outside the apperror taxonomy becomes a
// generic 500 — raw internal errors (SQL strings, file paths) never reach
// the client.
func writeError(w http.ResponseWriter, err error) {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		status := http.StatusInternalServerError
		errorType := "Internal Server Error"

		switch {
		case errors.Is(err, apperror.ErrValidation):
			status = http.StatusBadRequest
			errorType = "Validation Error"
		case errors.Is(err, apperror.ErrUnauthorized):
			status = http.StatusUnauthorized
			errorType = "Unauthorized"
		case errors.Is(err, apperror.ErrNotFound):
			status = http.StatusNotFound
			errorType = "Not Found"
		case errors.Is(err, apperror.ErrConflict):
			status = http.StatusConflict
			errorType = "Conflict"
		}

		writeJSON(w, status, ErrorResponse{
			Error:   errorType,
			Message: appErr.Message,
		})
		return
	}

	slog.Error("unhandled error", slog.String("error", err.Error()))
	writeJSON(w, http.StatusInternalServerError, ErrorResponse{
		Error:   "Internal Server Error",
		Message: "An unexpected error occurred",
	})
}
