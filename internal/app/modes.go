package app

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/veritaslabs/oraclesettle/internal/scheduler"
	"github.com/veritaslabs/oraclesettle/internal/server"
	"github.com/veritaslabs/oraclesettle/internal/server/handler"
	"github.com/veritaslabs/oraclesettle/internal/server/ws"
	"github.com/veritaslabs/oraclesettle/internal/service"
)

// ServeMode runs only the HTTP API. Markets are created and reported on, but
// nothing closes, resolves, or relays; a worker elsewhere owns the loops.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startHTTPServer(ctx, g, deps)
	return g.Wait()
}

// WorkerMode runs the three background loops without the HTTP API.
func (a *App) WorkerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting worker mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startSchedulers(ctx, g, deps)
	return g.Wait()
}

// FullMode runs the HTTP API and all background loops in one process.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startSchedulers(ctx, g, deps)
	a.startHTTPServer(ctx, g, deps)
	return g.Wait()
}

// startSchedulers adds the lifecycle, batcher, and relay loops to the group.
func (a *App) startSchedulers(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	sched := a.cfg.Scheduler

	lifecycle := scheduler.NewLifecycle(
		deps.Markets, deps.Reports, deps.Settlements,
		deps.MarketCache, deps.EventBus, deps.Locks,
		scheduler.LifecycleConfig{
			ResolveBatchSize:   sched.ResolveBatchSize,
			ConsensusThreshold: sched.ConsensusThreshold,
			StallWarnAfter:     sched.StallWarnAfter.Duration,
			LockTTL:            sched.LockTTL.Duration,
		},
		a.logger,
	)

	batcher := scheduler.NewBatcher(
		deps.Settlements, deps.Batches,
		deps.Archiver, deps.EventBus, deps.Locks, deps.Notifier,
		scheduler.BatcherConfig{LockTTL: sched.LockTTL.Duration},
		a.logger,
	)

	relay := scheduler.NewRelay(
		deps.Outbox, deps.Ledger,
		deps.EventBus, deps.Locks, deps.Notifier,
		scheduler.RelayConfig{
			BatchSize:  sched.RelayBatchSize,
			MaxRetries: sched.RelayMaxRetries,
			LockTTL:    sched.LockTTL.Duration,
		},
		a.logger,
	)

	orch := scheduler.NewOrchestrator(lifecycle, batcher, relay, scheduler.Intervals{
		Lifecycle: sched.LifecycleInterval.Duration,
		Batch:     sched.BatchInterval.Duration,
		Relay:     sched.RelayInterval.Duration,
	}, a.logger)

	g.Go(func() error {
		return orch.Run(ctx)
	})
}

// startHTTPServer adds the HTTP server (and WebSocket hub when the event bus
// is wired) to the group, with graceful shutdown on context cancellation.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if !a.cfg.Server.Enabled {
		a.logger.InfoContext(ctx, "HTTP server disabled")
		return
	}

	marketSvc := service.NewMarketService(deps.Markets, deps.MarketCache, a.logger)
	reportSvc := service.NewReportService(deps.Markets, deps.Reports, a.logger)
	settlementSvc := service.NewSettlementService(deps.Settlements, deps.Reports, a.logger)

	var cachePing handler.Pinger
	if deps.Redis != nil {
		cachePing = deps.Redis
	}

	handlers := server.Handlers{
		Health:      handler.NewHealthHandler(deps.DB, cachePing, a.logger),
		Markets:     handler.NewMarketHandler(marketSvc, a.logger),
		Reports:     handler.NewReportHandler(reportSvc, a.logger),
		Settlements: handler.NewSettlementHandler(settlementSvc, deps.Batches, a.logger),
	}

	var hub *ws.Hub
	if deps.EventBus != nil {
		hub = ws.NewHub(deps.EventBus, a.logger)
		g.Go(func() error {
			err := hub.Run(ctx)
			if ctx.Err() != nil {
				return nil
			}
			return err
		})
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
	}, handlers, hub, a.logger)

	g.Go(func() error {
		return srv.Start()
	})

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutCtx); err != nil {
			a.logger.Warn("HTTP server shutdown failed", slog.String("error", err.Error()))
		}
		return nil
	})
}
