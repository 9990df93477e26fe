package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/phrazzld/taskflow/internal/api/shared"
	"github.com/phrazzld/taskflow/internal/domain"
)

// getPathID extracts a positive integer ID from the URL path parameters.
func getPathID(r *http.Request, paramName string) (int, error) {
	pathParam := chi.URLParam(r, paramName)
	if pathParam == "" {
		return 0, fmt.Errorf("%w: %s is required", domain.ErrValidation, paramName)
	}

	id, err := strconv.Atoi(pathParam)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %s has invalid format", domain.ErrValidation, paramName)
	}

	return id, nil
}

// handlePathID extracts the path ID or writes a 400 response. The boolean
// reports whether the handler should continue.
func handlePathID(w http.ResponseWriter, r *http.Request, paramName string, log *slog.Logger) (int, bool) {
	id, err := getPathID(r, paramName)
	if err != nil {
		log.Warn("invalid path parameter",
			slog.String("param_name", paramName),
			slog.String("value", chi.URLParam(r, paramName)))
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid task ID", err)
		return 0, false
	}
	return id, true
}

// receiveCount reads the count query parameter, defaulting to 1.
func receiveCount(r *http.Request) (int, error) {
	count, err := shared.QueryInt(r, "count", 1)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", domain.ErrValidation, err)
	}
	return count, nil
}
