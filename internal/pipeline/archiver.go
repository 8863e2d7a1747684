package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/coinwatch/internal/domain"
	"github.com/alanyoungcy/coinwatch/internal/notify"
)

const archiveLockKey = "archive:trades"

// Archiver periodically moves trades older than the retention window to
// cold storage. Runs are serialised across processes with a distributed lock.
type Archiver struct {
	archiver  domain.Archiver
	locks     domain.LockManager
	notifier  *notify.Notifier
	retention time.Duration
	lockTTL   time.Duration
	now       func() time.Time
	logger    *slog.Logger
}

// NewArchiver creates an Archiver. locks and notifier may be nil.
func NewArchiver(
	archiver domain.Archiver,
	locks domain.LockManager,
	notifier *notify.Notifier,
	retention time.Duration,
	logger *slog.Logger,
) *Archiver {
	return &Archiver{
		archiver:  archiver,
		locks:     locks,
		notifier:  notifier,
		retention: retention,
		lockTTL:   30 * time.Minute,
		now:       time.Now,
		logger:    logger.With(slog.String("component", "archiver_cron")),
	}
}

// Run performs one archive run. It returns the number of archived trades,
// or zero without error when another process holds the lock.
func (a *Archiver) Run(ctx context.Context) (int64, error) {
	if a.locks != nil {
		unlock, err := a.locks.Acquire(ctx, archiveLockKey, a.lockTTL)
		if errors.Is(err, domain.ErrLockHeld) {
			a.logger.InfoContext(ctx, "archive run skipped, lock held elsewhere")
			return 0, nil
		}
		if err != nil {
			return 0, fmt.Errorf("pipeline: archive: %w", err)
		}
		defer unlock()
	}

	cutoff := a.now().UTC().Add(-a.retention)
	a.logger.InfoContext(ctx, "starting archive run",
		slog.Time("cutoff", cutoff),
		slog.Duration("retention", a.retention),
	)

	n, err := a.archiver.ArchiveTrades(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("pipeline: archive trades before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	a.logger.InfoContext(ctx, "archive run complete", slog.Int64("trades", n))
	return n, nil
}

// RunCron runs the archiver on a 5-field cron schedule until ctx is done.
func (a *Archiver) RunCron(ctx context.Context, expr string) error {
	sched, err := parseCron(expr)
	if err != nil {
		return fmt.Errorf("pipeline: cron %q: %w", expr, err)
	}
	a.logger.InfoContext(ctx, "archiver cron started", slog.String("cron", expr))

	for {
		next, err := sched.next(a.now())
		if err != nil {
			return fmt.Errorf("pipeline: cron %q: %w", expr, err)
		}
		wait := next.Sub(a.now())
		a.logger.DebugContext(ctx, "waiting for next archive run",
			slog.Time("next_run", next),
			slog.Duration("wait", wait),
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
			if _, err := a.Run(ctx); err != nil {
				a.logger.ErrorContext(ctx, "archive run failed", slog.String("error", err.Error()))
				if a.notifier != nil {
					_ = a.notifier.Notify(ctx, notify.EventArchiveFailed, "Archive run failed", err.Error())
				}
			}
		}
	}
}
