package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/vidfriends/friendships/internal/logging"
	"github.com/vidfriends/friendships/internal/relationships"
)

func respondJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.FromContext(ctx).Error("encode response body", "status", status, "error", err)
		return
	}

	logger := logging.FromContext(ctx)
	switch {
	case status >= http.StatusInternalServerError:
		logger.Error("request failed", "status", status, "response", payload)
	case status >= http.StatusBadRequest:
		logger.Warn("request returned client error", "status", status, "response", payload)
	}
}

var errorStatuses = []struct {
	err    error
	status int
}{
	{relationships.ErrInvalidParticipant, http.StatusBadRequest},
	{relationships.ErrSelfReference, http.StatusBadRequest},
	{relationships.ErrDuplicateRequest, http.StatusConflict},
	{relationships.ErrAlreadyFriends, http.StatusConflict},
	{relationships.ErrBlocked, http.StatusForbidden},
	{relationships.ErrNotBlockedByYou, http.StatusForbidden},
	{relationships.ErrNoPendingRequest, http.StatusNotFound},
	{relationships.ErrNoRelationship, http.StatusNotFound},
}

// statusForError maps engine failures onto HTTP status codes. Anything
// unrecognised, store failures included, is a 500.
func statusForError(err error) int {
	for _, candidate := range errorStatuses {
		if errors.Is(err, candidate.err) {
			return candidate.status
		}
	}
	return http.StatusInternalServerError
}

func respondError(ctx context.Context, w http.ResponseWriter, err error) {
	status := statusForError(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		logging.FromContext(ctx).Error("relationship operation failed", "error", err)
		message = "relationship service unavailable"
	}
	respondJSON(ctx, w, status, map[string]string{"error": message})
}
