package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"lifetimebot/internal/config"
	"lifetimebot/internal/store"
)

// handler holds shared dependencies for all endpoint handlers.
type handler struct {
	src StatusSource
	st  *store.Store
	cfg *config.Config
}

func newHandler(src StatusSource, st *store.Store, cfg *config.Config) *handler {
	return &handler{src: src, st: st, cfg: cfg}
}

// writeJSON encodes v with an application/json content type. Encoding errors
// after the header is written can only be logged.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// Root serves service info at /.
func (h *handler) Root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":     "lifetimebot",
		"status":   "running",
		"state":    string(h.src.State()),
		"interest": h.cfg.Interest,
		"club":     h.cfg.Club,
	})
}

// HealthCheck returns basic health status.
func (h *handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"state":     string(h.src.State()),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// GetActivities returns the current filtered watch set.
func (h *handler) GetActivities(w http.ResponseWriter, r *http.Request) {
	activities := h.src.Watched()
	writeJSON(w, http.StatusOK, map[string]any{
		"count":      len(activities),
		"activities": activities,
	})
}

// GetProcessed returns every durably recorded terminal outcome.
func (h *handler) GetProcessed(w http.ResponseWriter, r *http.Request) {
	records := h.st.Records()
	writeJSON(w, http.StatusOK, map[string]any{
		"count":   len(records),
		"records": records,
	})
}
