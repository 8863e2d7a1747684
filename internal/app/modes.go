package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/coinwatch/internal/domain"
	"github.com/alanyoungcy/coinwatch/internal/feed"
	"github.com/alanyoungcy/coinwatch/internal/observer"
	"github.com/alanyoungcy/coinwatch/internal/pipeline"
	"github.com/alanyoungcy/coinwatch/internal/platform/bitstamp"
	"github.com/alanyoungcy/coinwatch/internal/platform/pusher"
	"github.com/alanyoungcy/coinwatch/internal/server"
	"github.com/alanyoungcy/coinwatch/internal/server/handler"
	"github.com/alanyoungcy/coinwatch/internal/server/ws"
	"github.com/alanyoungcy/coinwatch/internal/service"
)

// market is the live feed stack shared by every mode: the Pusher socket,
// the Bitstamp channel stream and the tracker observing it.
type market struct {
	client  *pusher.Client
	stream  *feed.BitstampStream
	tracker *observer.Tracker
	runner  *feed.Runner
	rest    *bitstamp.Client
	prices  *service.PriceService
	detach  []func() error
}

func (m *market) close(logger *slog.Logger) {
	for i := len(m.detach) - 1; i >= 0; i-- {
		if err := m.detach[i](); err != nil {
			logger.Warn("detach listener", slog.String("error", err.Error()))
		}
	}
	m.detach = nil
	if err := m.stream.Close(); err != nil {
		logger.Warn("close stream", slog.String("error", err.Error()))
	}
}

// newMarket builds the feed stack and attaches the tracker to the stream,
// which subscribes the pair's channels on the socket.
func (a *App) newMarket(deps *Dependencies) (*market, error) {
	wsURL := a.cfg.Bitstamp.WSURL
	if wsURL == "" {
		wsURL = pusher.BuildURL(a.cfg.Bitstamp.PusherCluster, a.cfg.Bitstamp.PusherKey, "coinwatch", Version)
	}

	client := pusher.NewClient(wsURL, a.logger)
	stream := feed.NewBitstampStream(client, a.cfg.Bitstamp.Pair, a.logger)
	tracker := observer.NewTracker(a.logger,
		observer.WithFreshnessWindow(a.cfg.Tracker.FreshnessWindow.Duration),
		observer.WithRecentTrades(a.cfg.Tracker.RecentTrades),
	)

	m := &market{
		client:  client,
		stream:  stream,
		tracker: tracker,
		runner:  feed.NewRunner(client, a.logger),
		rest:    bitstamp.NewClient(a.cfg.Bitstamp.RESTURL, a.cfg.Bitstamp.Pair, a.cfg.Bitstamp.RESTTimeout.Duration),
		prices:  service.NewPriceService(deps.PriceCache, deps.SignalBus, a.logger),
	}

	detach, err := tracker.Observe(stream)
	if err != nil {
		return nil, err
	}
	m.detach = append(m.detach, detach)

	// Trades are logged at debug level in every mode.
	pair := a.cfg.Bitstamp.Pair
	id, err := tracker.AddTradeListener(func(t domain.Trade) {
		a.logger.Debug("trade",
			slog.String("pair", pair),
			slog.String("price", t.Price.String()),
			slog.String("amount", t.Amount.String()),
			slog.String("direction", t.Direction.String()),
		)
	})
	if err != nil {
		m.close(a.logger)
		return nil, err
	}
	m.detach = append(m.detach, func() error { return tracker.Trades().Unlisten(id) })

	return m, nil
}

// tickerPoller polls the REST ticker into the price service.
func (a *App) tickerPoller(m *market) (*pipeline.Poller[domain.Ticker], error) {
	return pipeline.NewPoller("ticker", a.cfg.Pipeline.TickerInterval.Duration,
		m.rest.Ticker,
		func(ctx context.Context, t domain.Ticker, err error) {
			if err != nil {
				a.logger.WarnContext(ctx, "ticker poll failed", slog.String("error", err.Error()))
				return
			}
			if err := m.prices.HandleTicker(ctx, t); err != nil {
				a.logger.WarnContext(ctx, "ticker update failed", slog.String("error", err.Error()))
			}
		},
		a.logger,
	)
}

// stages selects the optional parts of a mode.
type stages struct {
	mirror  bool
	record  bool
	serve   bool
	archive bool
}

// ObserveMode tracks the market and logs it. No backends are used.
func (a *App) ObserveMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting observe mode", slog.String("pair", a.cfg.Bitstamp.Pair))
	return a.runMode(ctx, deps, stages{})
}

// RecordMode mirrors the market into Redis and persists classified trades.
func (a *App) RecordMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting record mode", slog.String("pair", a.cfg.Bitstamp.Pair))
	return a.runMode(ctx, deps, stages{mirror: true, record: true})
}

// ServerMode mirrors the market into Redis and serves the HTTP and
// WebSocket API.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode", slog.String("pair", a.cfg.Bitstamp.Pair))
	return a.runMode(ctx, deps, stages{mirror: true, serve: true})
}

// FullMode runs everything: mirror, recorder, archive and API.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode", slog.String("pair", a.cfg.Bitstamp.Pair))
	return a.runMode(ctx, deps, stages{mirror: true, record: true, serve: true, archive: deps.Archiver != nil})
}

func (a *App) runMode(ctx context.Context, deps *Dependencies, st stages) error {
	m, err := a.newMarket(deps)
	if err != nil {
		return err
	}
	defer m.close(a.logger)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return m.runner.Run(ctx) })

	stats := map[string]handler.StatsFunc{
		"feed": func() any { return m.stream.Stats() },
		"socket": func() any {
			return map[string]any{
				"connected": m.client.Connected(),
				"channels":  m.client.Channels(),
			}
		},
	}

	var mirror *service.MarketService
	if st.mirror && (deps.BookCache != nil || deps.SignalBus != nil) {
		mirror = service.NewMarketService(deps.BookCache, deps.PriceCache, deps.SignalBus,
			a.cfg.Bitstamp.Pair, a.cfg.Pipeline.QueueSize, a.logger)
		detach, err := mirror.Attach(m.tracker)
		if err != nil {
			return err
		}
		m.detach = append(m.detach, detach)
		g.Go(func() error { return mirror.Run(ctx) })
		stats["mirror"] = func() any {
			return map[string]any{"pending": mirror.Pending(), "dropped": mirror.Dropped()}
		}
	}

	orch := pipeline.NewOrchestrator(a.logger)
	orch.Watchdog = pipeline.NewStalenessWatchdog(m.tracker, deps.Notifier, deps.AuditStore,
		a.cfg.Bitstamp.Pair, a.cfg.Pipeline.WatchdogInterval.Duration, a.logger)

	if a.cfg.Pipeline.TickerInterval.Duration > 0 {
		poller, err := a.tickerPoller(m)
		if err != nil {
			return err
		}
		orch.Poller = poller
	}

	var trades *service.TradeService
	if deps.TradeStore != nil {
		trades = service.NewTradeService(deps.TradeStore, deps.AuditStore, a.logger)
	}

	if st.record && trades != nil {
		rec := pipeline.NewTradeRecorder(trades, pipeline.RecorderConfig{
			Exchange:      "bitstamp",
			Pair:          a.cfg.Bitstamp.Pair,
			BatchSize:     a.cfg.Pipeline.RecorderBatchSize,
			FlushInterval: a.cfg.Pipeline.FlushInterval.Duration,
			QueueSize:     a.cfg.Pipeline.QueueSize,
		}, a.logger)
		detach, err := rec.Attach(m.tracker)
		if err != nil {
			return err
		}
		m.detach = append(m.detach, detach)
		orch.Recorder = rec
		stats["recorder"] = func() any {
			return map[string]any{"recorded": rec.Recorded(), "dropped": rec.Dropped()}
		}
	}

	var archiver *pipeline.Archiver
	if st.archive {
		archiver = pipeline.NewArchiver(deps.Archiver, deps.LockManager, deps.Notifier,
			a.cfg.Pipeline.ArchiveRetention.Duration, a.logger)
		orch.Archiver = archiver
		orch.ArchiveCron = a.cfg.Pipeline.ArchiveCron
	}

	g.Go(func() error { return orch.Run(ctx) })

	if st.serve {
		a.startHTTPServer(ctx, g, deps, m, trades, archiver, stats)
	}

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// startHTTPServer registers the API handlers and runs the server and the
// WebSocket hub in g.
func (a *App) startHTTPServer(
	ctx context.Context,
	g *errgroup.Group,
	deps *Dependencies,
	m *market,
	trades *service.TradeService,
	archiver *pipeline.Archiver,
	stats map[string]handler.StatsFunc,
) {
	hub := ws.NewHub(deps.SignalBus, ws.Config{
		Pair:     a.cfg.Bitstamp.Pair,
		Mode:     a.cfg.Mode,
		Channels: []string{service.ChannelTrades, service.ChannelBooks, service.ChannelTickers},
		Fresh:    m.tracker.Fresh,
	}, a.logger)
	stats["ws"] = func() any { return map[string]any{"clients": hub.Clients()} }

	handlers := server.Handlers{
		Health: handler.NewHealthHandler(m.tracker, deps.Checks, a.logger),
		Status: handler.NewStatusHandler(a.cfg.Mode, a.cfg.Bitstamp.Pair, stats),
	}

	var history handler.TradeHistory
	if trades != nil {
		history = trades
	}
	handlers.Market = handler.NewMarketHandler(a.cfg.Bitstamp.Pair, m.tracker, history, m.prices, m.rest, a.logger)
	if archiver != nil {
		handlers.Archive = handler.NewArchiveHandler(archiver, a.logger)
	}

	srv := server.NewServer(server.Config{
		Port:            a.cfg.Server.Port,
		CORSOrigins:     a.cfg.Server.CORSOrigins,
		APIKey:          a.cfg.Server.APIKey,
		RateLimit:       a.cfg.Server.RateLimit,
		RateLimitWindow: a.cfg.Server.RateLimitWindow.Duration,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(func() error { return hub.Run(ctx) })
	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}
