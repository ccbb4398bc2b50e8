package handler

import (
	"net/http"
	"time"
)

// HealthHandler serves the liveness and status endpoints.
type HealthHandler struct {
	mode      string
	asMaker   bool
	contracts int
	startedAt time.Time
}

// NewHealthHandler creates a HealthHandler reporting the given quoting
// defaults.
func NewHealthHandler(mode string, contracts int, asMaker bool) *HealthHandler {
	return &HealthHandler{
		mode:      mode,
		asMaker:   asMaker,
		contracts: contracts,
		startedAt: time.Now().UTC(),
	}
}

// HealthCheck responds with a simple JSON status indicating the server is alive.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// Status reports the mode and the quoting defaults.
// GET /api/status
func (h *HealthHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"mode":           h.mode,
		"contracts":      h.contracts,
		"as_maker":       h.asMaker,
		"started_at":     h.startedAt.Format(time.RFC3339),
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
	})
}
