package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// Runner is a long-lived pipeline stage.
type Runner interface {
	Run(ctx context.Context) error
}

// Orchestrator runs the background stages that sit behind the tracker:
// trade recording, ticker polling, the staleness watchdog and the archive
// cron. Nil stages are skipped.
type Orchestrator struct {
	Recorder    *TradeRecorder
	Poller      Runner
	Watchdog    *StalenessWatchdog
	Archiver    *Archiver
	ArchiveCron string

	logger *slog.Logger
}

// NewOrchestrator creates an empty Orchestrator; assign the stages to run.
func NewOrchestrator(logger *slog.Logger) *Orchestrator {
	return &Orchestrator{logger: logger.With(slog.String("component", "pipeline"))}
}

// Run starts every configured stage in an errgroup. A stage failing with
// anything other than context cancellation stops the others.
func (o *Orchestrator) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	start := func(name string, run func(context.Context) error) {
		g.Go(func() error {
			o.logger.InfoContext(ctx, "stage starting", slog.String("stage", name))
			err := run(ctx)
			if err == nil || errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("%s: %w", name, err)
		})
	}

	var stages int
	if o.Recorder != nil {
		start("recorder", o.Recorder.Run)
		stages++
	}
	if o.Poller != nil {
		start("poller", o.Poller.Run)
		stages++
	}
	if o.Watchdog != nil {
		start("watchdog", o.Watchdog.Run)
		stages++
	}
	if o.Archiver != nil && o.ArchiveCron != "" {
		start("archiver", func(ctx context.Context) error {
			return o.Archiver.RunCron(ctx, o.ArchiveCron)
		})
		stages++
	}

	o.logger.InfoContext(ctx, "pipeline running", slog.Int("stages", stages))
	if err := g.Wait(); err != nil {
		o.logger.Error("pipeline stopped with error", slog.String("error", err.Error()))
		return err
	}
	o.logger.Info("pipeline stopped")
	return nil
}
