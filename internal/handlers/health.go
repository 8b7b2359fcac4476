package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/vidfriends/friendships/internal/logging"
)

const healthCheckTimeout = 2 * time.Second

// HealthHandler responds with service health information. When Check is set
// it is run against the relationship store on every probe.
type HealthHandler struct {
	Store string
	Check func(ctx context.Context) error
}

// Handle implements GET /healthz.
func (h HealthHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	payload := map[string]string{
		"status": "ok",
	}
	if h.Store != "" {
		payload["store"] = h.Store
	}

	if h.Check != nil {
		checkCtx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
		defer cancel()
		if err := h.Check(checkCtx); err != nil {
			logging.FromContext(ctx).Error("store health check failed", "store", h.Store, "error", err)
			payload["status"] = "unavailable"
			respondJSON(ctx, w, http.StatusServiceUnavailable, payload)
			return
		}
	}

	respondJSON(ctx, w, http.StatusOK, payload)
}
