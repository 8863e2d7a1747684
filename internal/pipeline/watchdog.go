package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/coinwatch/internal/domain"
	"github.com/alanyoungcy/coinwatch/internal/notify"
)

// Freshness is the part of the tracker the watchdog inspects.
type Freshness interface {
	Fresh() bool
	LastUpdate() time.Time
	FreshnessWindow() time.Duration
}

// StalenessWatchdog alerts when the order book stops updating and again
// when it recovers. A tracker that never received a book is considered
// stale once a full freshness window has passed since the watchdog started.
type StalenessWatchdog struct {
	source   Freshness
	notifier *notify.Notifier
	audit    domain.AuditStore
	pair     string
	interval time.Duration
	now      func() time.Time
	logger   *slog.Logger

	mu      sync.Mutex
	started time.Time
	stale   bool
}

// NewStalenessWatchdog creates a watchdog. notifier and audit may be nil.
func NewStalenessWatchdog(
	source Freshness,
	notifier *notify.Notifier,
	audit domain.AuditStore,
	pair string,
	interval time.Duration,
	logger *slog.Logger,
) *StalenessWatchdog {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &StalenessWatchdog{
		source:   source,
		notifier: notifier,
		audit:    audit,
		pair:     pair,
		interval: interval,
		now:      time.Now,
		logger:   logger.With(slog.String("component", "watchdog")),
	}
}

// Stale reports the last observed state.
func (w *StalenessWatchdog) Stale() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stale
}

// Run checks freshness every interval until ctx is cancelled.
func (w *StalenessWatchdog) Run(ctx context.Context) error {
	w.mu.Lock()
	w.started = w.now()
	w.mu.Unlock()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.Check(ctx)
		}
	}
}

// Check evaluates freshness once and fires an alert on a state change. It
// returns the current staleness.
func (w *StalenessWatchdog) Check(ctx context.Context) bool {
	now := w.now()
	last := w.source.LastUpdate()
	window := w.source.FreshnessWindow()

	w.mu.Lock()
	if w.started.IsZero() {
		w.started = now
	}
	stale := !w.source.Fresh() || (last.IsZero() && now.Sub(w.started) > window)
	changed := stale != w.stale
	w.stale = stale
	w.mu.Unlock()

	if !changed {
		return stale
	}

	event, title := notify.EventFeedRecovered, "Feed recovered"
	if stale {
		event, title = notify.EventFeedStale, "Feed stale"
	}
	msg := fmt.Sprintf("%s: last order book at %s", w.pair, formatLast(last))
	if stale {
		w.logger.WarnContext(ctx, "order book stale", slog.String("pair", w.pair), slog.Time("last_update", last))
	} else {
		w.logger.InfoContext(ctx, "order book fresh again", slog.String("pair", w.pair))
	}

	if w.notifier != nil {
		if err := w.notifier.Notify(ctx, event, title, msg); err != nil {
			w.logger.WarnContext(ctx, "alert failed", slog.String("error", err.Error()))
		}
	}
	if w.audit != nil {
		detail := map[string]any{"pair": w.pair}
		if !last.IsZero() {
			detail["last_update"] = last.UTC().Format(time.RFC3339)
		}
		if err := w.audit.Log(ctx, event, detail); err != nil {
			w.logger.WarnContext(ctx, "audit log failed", slog.String("error", err.Error()))
		}
	}
	return stale
}

func formatLast(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.UTC().Format(time.RFC3339)
}
