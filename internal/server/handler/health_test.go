package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestHealthCheck(t *testing.T) {
	h := NewHealthHandler(freshView(), map[string]Checker{
		"redis": func(context.Context) error { return nil },
	}, slog.Default())

	rec, body := do(t, h.HealthCheck, "/api/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, map[string]any{"redis": "ok"}, body["dependencies"])
	assert.Equal(t, true, body["feed"].(map[string]any)["fresh"])
}

func TestHealthCheckDegraded(t *testing.T) {
	h := NewHealthHandler(nil, map[string]Checker{
		"postgres": func(context.Context) error { return errors.New("down") },
	}, slog.Default())

	rec, body := do(t, h.HealthCheck, "/api/health")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "degraded", body["status"])
	assert.Nil(t, body["feed"])
}

func TestStatusHandler(t *testing.T) {
	h := NewStatusHandler("full", "btcusd", map[string]StatsFunc{
		"recorder": func() any { return map[string]int{"recorded": 3} },
	})
	_, body := do(t, h.GetStatus, "/api/status")
	assert.Equal(t, "full", body["mode"])
	comps := body["components"].(map[string]any)
	assert.Equal(t, float64(3), comps["recorder"].(map[string]any)["recorded"])
}

type blockingArchiver struct {
	release chan struct{}
	runs    atomic.Int32
}

func (b *blockingArchiver) Run(context.Context) (int64, error) {
	b.runs.Add(1)
	<-b.release
	return 1, nil
}

func TestArchiveHandler_RejectsConcurrentRuns(t *testing.T) {
	arch := &blockingArchiver{release: make(chan struct{})}
	h := NewArchiveHandler(arch, slog.Default())

	rec, _ := do(t, h.TriggerArchive, "/api/archive/run")
	assert.Equal(t, http.StatusAccepted, rec.Code)

	rec, _ = do(t, h.TriggerArchive, "/api/archive/run")
	assert.Equal(t, http.StatusConflict, rec.Code)

	close(arch.release)
	assert.Eventually(t, func() bool { return !h.running.Load() }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), arch.runs.Load())
}
