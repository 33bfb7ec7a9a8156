package handler

import (
	"net/http"
	"time"

	"github.com/alanyoungcy/marketledger/internal/session"
)

// HealthHandler serves liveness and readiness.
type HealthHandler struct {
	sessions []*session.Session
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(sessions []*session.Session) *HealthHandler {
	return &HealthHandler{sessions: sessions}
}

// Health reports the process is alive.
// GET /api/health
func (h *HealthHandler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// Ready answers 200 once every seller finished its initial load, 503 before.
// GET /api/ready
func (h *HealthHandler) Ready(w http.ResponseWriter, _ *http.Request) {
	var pending []string
	for _, s := range h.sessions {
		if !s.Store().Ready() {
			pending = append(pending, s.Seller())
		}
	}
	if len(pending) > 0 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "loading", "pending": pending})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}
