package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// Checker probes one dependency.
type Checker func(ctx context.Context) error

// FeedStatus reports the push feed state.
type FeedStatus interface {
	Fresh() bool
	LastUpdate() time.Time
}

// HealthHandler serves GET /api/health.
type HealthHandler struct {
	feed      FeedStatus
	checks    map[string]Checker
	startedAt time.Time
	logger    *slog.Logger
}

// NewHealthHandler creates a HealthHandler. feed may be nil.
func NewHealthHandler(feed FeedStatus, checks map[string]Checker, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		feed:      feed,
		checks:    checks,
		startedAt: time.Now(),
		logger:    logger.With(slog.String("handler", "health")),
	}
}

// HealthCheck answers 200 when every dependency check passes and 503
// otherwise. A stale feed is reported but does not fail the check.
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	status := http.StatusOK
	deps := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			h.logger.WarnContext(ctx, "dependency unhealthy",
				slog.String("dependency", name),
				slog.String("error", err.Error()),
			)
			deps[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		deps[name] = "ok"
	}

	body := map[string]any{
		"status":         "ok",
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
		"dependencies":   deps,
	}
	if status != http.StatusOK {
		body["status"] = "degraded"
	}
	if h.feed != nil {
		feed := map[string]any{"fresh": h.feed.Fresh()}
		if last := h.feed.LastUpdate(); !last.IsZero() {
			feed["last_update"] = last.UTC().Format(time.RFC3339)
		}
		body["feed"] = feed
	}
	writeJSON(w, status, body)
}
