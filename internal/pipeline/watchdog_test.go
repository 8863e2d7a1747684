package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/alanyoungcy/coinwatch/internal/domain"
	"github.com/alanyoungcy/coinwatch/internal/notify"
)

type fakeFreshness struct {
	fresh bool
	last  time.Time
}

func (f *fakeFreshness) Fresh() bool                    { return f.fresh }
func (f *fakeFreshness) LastUpdate() time.Time          { return f.last }
func (f *fakeFreshness) FreshnessWindow() time.Duration { return time.Minute }

type captureSender struct {
	mu     sync.Mutex
	titles []string
}

func (s *captureSender) Send(_ context.Context, title, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.titles = append(s.titles, title)
	return nil
}

func (s *captureSender) Name() string { return "capture" }

type auditLog struct {
	events []string
}

func (a *auditLog) Log(_ context.Context, event string, _ map[string]any) error {
	a.events = append(a.events, event)
	return nil
}

func (a *auditLog) List(context.Context, domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}

func TestStalenessWatchdog_Transitions(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	src := &fakeFreshness{fresh: true, last: now}
	sender := &captureSender{}
	audit := &auditLog{}
	w := NewStalenessWatchdog(src, notify.NewNotifier([]notify.Sender{sender}, nil, slog.Default()),
		audit, "btcusd", time.Second, slog.Default())
	w.now = func() time.Time { return now }

	ctx := context.Background()
	assert.False(t, w.Check(ctx))
	assert.Empty(t, sender.titles)

	src.fresh = false
	assert.True(t, w.Check(ctx))
	assert.True(t, w.Check(ctx), "no second alert while still stale")

	src.fresh = true
	assert.False(t, w.Check(ctx))

	assert.Equal(t, []string{"Feed stale", "Feed recovered"}, sender.titles)
	assert.Equal(t, []string{notify.EventFeedStale, notify.EventFeedRecovered}, audit.events)
}

func TestStalenessWatchdog_NeverUpdatedBecomesStale(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	src := &fakeFreshness{fresh: true}
	w := NewStalenessWatchdog(src, nil, nil, "btcusd", time.Second, slog.Default())
	w.now = func() time.Time { return now }

	assert.False(t, w.Check(context.Background()))

	now = now.Add(2 * time.Minute)
	assert.True(t, w.Check(context.Background()))
	assert.True(t, w.Stale())
}
