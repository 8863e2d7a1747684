package handler

import (
	"net/http"
	"time"
)

// StatsFunc returns a snapshot of one component's counters.
type StatsFunc func() any

// StatusHandler reports the running mode and component counters.
type StatusHandler struct {
	mode      string
	pair      string
	stats     map[string]StatsFunc
	startedAt time.Time
}

// NewStatusHandler creates a StatusHandler.
func NewStatusHandler(mode, pair string, stats map[string]StatsFunc) *StatusHandler {
	return &StatusHandler{mode: mode, pair: pair, stats: stats, startedAt: time.Now()}
}

// GetStatus returns mode, pair, uptime and every registered stats snapshot.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	components := make(map[string]any, len(h.stats))
	for name, fn := range h.stats {
		components[name] = fn()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"mode":           h.mode,
		"pair":           h.pair,
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
		"components":     components,
	})
}
