package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/jwebster45206/roleplay-agent/internal/turn"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, logger *slog.Logger, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, logger *slog.Logger, status int, msg string) {
	writeJSON(w, logger, status, ErrorResponse{Error: msg})
}

// turnErrorStatus maps turn errors to HTTP statuses. Unknown errors are
// internal and their text is not shown to the client.
func turnErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, turn.ErrUnauthorized):
		return http.StatusUnauthorized, err.Error()
	case errors.Is(err, turn.ErrSessionNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, turn.ErrForbidden):
		return http.StatusForbidden, err.Error()
	case errors.Is(err, turn.ErrEmptyAction), errors.Is(err, turn.ErrActionTooLong):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, turn.ErrSessionBusy):
		return http.StatusConflict, err.Error()
	case errors.Is(err, turn.ErrScenarioNotFound):
		return http.StatusUnprocessableEntity, err.Error()
	case errors.Is(err, turn.ErrSaveFailed):
		return http.StatusServiceUnavailable, "failed to save the turn, please retry"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}
