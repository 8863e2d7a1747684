package handler

import (
	"context"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"
)

// ArchiveRunner performs one archive run.
type ArchiveRunner interface {
	Run(ctx context.Context) (int64, error)
}

// ArchiveHandler triggers archive runs on demand.
type ArchiveHandler struct {
	archiver ArchiveRunner
	running  atomic.Bool
	timeout  time.Duration
	logger   *slog.Logger
}

// NewArchiveHandler creates an ArchiveHandler.
func NewArchiveHandler(archiver ArchiveRunner, logger *slog.Logger) *ArchiveHandler {
	return &ArchiveHandler{
		archiver: archiver,
		timeout:  30 * time.Minute,
		logger:   logger.With(slog.String("handler", "archive")),
	}
}

// TriggerArchive starts one archive run in the background. A second request
// while a run is in progress gets 409.
// POST /api/archive/run
func (h *ArchiveHandler) TriggerArchive(w http.ResponseWriter, r *http.Request) {
	if !h.running.CompareAndSwap(false, true) {
		writeError(w, http.StatusConflict, "archive run already in progress")
		return
	}

	go func() {
		defer h.running.Store(false)
		ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
		defer cancel()
		n, err := h.archiver.Run(ctx)
		if err != nil {
			h.logger.Error("manual archive run failed", slog.String("error", err.Error()))
			return
		}
		h.logger.Info("manual archive run complete", slog.Int64("trades", n))
	}()

	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":       "accepted",
		"requested_at": time.Now().UTC().Format(time.RFC3339),
	})
}
