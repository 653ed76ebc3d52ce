package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/sniperbot/internal/domain"
	"github.com/alanyoungcy/sniperbot/internal/engine"
	"github.com/alanyoungcy/sniperbot/internal/platform/jupiter"
	"github.com/alanyoungcy/sniperbot/internal/server"
	"github.com/alanyoungcy/sniperbot/internal/server/ws"
)

// archiveInterval is how often the S3 archiver sweeps old trades.
const archiveInterval = 6 * time.Hour

// engineCore bundles the pieces of the trading engine shared by all modes.
type engineCore struct {
	ledger   *engine.Ledger
	executor *engine.Executor
	monitor  *engine.Monitor
}

// TradeMode runs the full engine: candidate admission, the portfolio
// monitor, the HTTP and websocket surface, and trade archival.
func (a *App) TradeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting trade mode")

	g, ctx := errgroup.WithContext(ctx)

	core, err := a.buildEngine(ctx, deps)
	if err != nil {
		return err
	}

	admission := engine.NewAdmission(
		core.ledger,
		core.executor,
		deps.Purchased,
		deps.Blacklist,
		a.cfg.Trade.MaxPortfolioSize,
		a.cfg.Trade.AdmissionQueueSize,
		a.logger,
	)
	g.Go(func() error {
		return admission.Run(ctx)
	})
	g.Go(func() error {
		return core.monitor.Run(ctx)
	})

	a.startHTTPServer(ctx, g, deps, core.ledger, admission)

	if deps.Archiver != nil {
		g.Go(func() error {
			return deps.Archiver.Run(ctx, archiveInterval)
		})
	}

	return waitEngine(g)
}

// MonitorMode manages recovered positions only: the monitor and the HTTP
// surface run, admission is disabled.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode")

	g, ctx := errgroup.WithContext(ctx)

	core, err := a.buildEngine(ctx, deps)
	if err != nil {
		return err
	}

	g.Go(func() error {
		return core.monitor.Run(ctx)
	})

	a.startHTTPServer(ctx, g, deps, core.ledger, nil)

	return waitEngine(g)
}

// buildEngine assembles the ledger, executor, and monitor, and reloads open
// positions persisted by a previous run.
func (a *App) buildEngine(ctx context.Context, deps *Dependencies) (*engineCore, error) {
	ledger := engine.NewLedger()
	a.recoverPositions(ctx, deps, ledger)

	clock := engine.RealClock()
	events := engine.NewEvents(deps.SignalBus, deps.Notifier, clock, a.logger)

	executor := engine.NewExecutor(
		deps.Jupiter,
		deps.Jupiter,
		deps.Chain,
		deps.Wallet,
		ledger,
		deps.TradeStore,
		deps.Purchased,
		events,
		clock,
		engine.ExecutorConfig{
			QuoteMint:         jupiter.SOLMint,
			SlippageBps:       a.cfg.Jupiter.SlippageBps,
			MinSOLBalance:     a.cfg.Solana.MinSOLBalance,
			AmountSOLGood:     a.cfg.Trade.AmountSOLGood,
			AmountSOLWarning:  a.cfg.Trade.AmountSOLWarning,
			AmountSOLDanger:   a.cfg.Trade.AmountSOLDanger,
			SellRetry:         engine.FixedDelay(a.cfg.Trade.SellRetryAttempts, a.cfg.Trade.SellRetryDelay.Duration),
			CloseAccountDelay: a.cfg.Trade.CloseAccountDelay.Duration,
			CloseAccountRetry: engine.FixedDelay(3, 2*time.Second),
		},
		a.logger,
	)

	monitor := engine.NewMonitor(
		ledger,
		deps.Jupiter,
		executor,
		events,
		clock,
		engine.MonitorConfig{
			Interval: a.cfg.Trade.MonitorInterval.Duration,
			Risk:     a.cfg.Risk,
		},
		a.logger,
	)

	return &engineCore{ledger: ledger, executor: executor, monitor: monitor}, nil
}

// recoverPositions reloads the ledger from the durable store after a
// restart. The persisted held amount is only a seed; the executor re-reads
// live chain state before any sell.
func (a *App) recoverPositions(ctx context.Context, deps *Dependencies, ledger *engine.Ledger) {
	recs, err := deps.TradeStore.LoadOpenPositions(ctx)
	if err != nil {
		a.logger.WarnContext(ctx, "open position recovery failed",
			slog.String("error", err.Error()))
		return
	}
	for _, rec := range recs {
		pos := domain.Position{
			AssetID:             rec.AssetID,
			PurchasePrice:       rec.PurchasePrice,
			AmountHeld:          rec.AmountHeld,
			CommittedSOL:        rec.CommittedSOL,
			RiskTier:            rec.RiskTier,
			ProfitTiersConsumed: make(map[int]bool),
			OpenedAt:            rec.OpenedAt,
			PeakPrice:           rec.PeakPrice,
			BuyRef:              rec.BuyRef,
		}
		if err := ledger.Insert(pos); err != nil {
			a.logger.WarnContext(ctx, "recovered position skipped",
				slog.String("asset_id", rec.AssetID),
				slog.String("error", err.Error()))
		}
	}
	if len(recs) > 0 {
		a.logger.InfoContext(ctx, "open positions recovered",
			slog.Int("count", len(recs)))
	}
}

// startHTTPServer adds the HTTP server and websocket hub goroutines to the
// errgroup when the server is enabled. admitter may be nil to disable the
// candidate endpoint.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, ledger *engine.Ledger, admitter server.Admitter) {
	if !a.cfg.Server.Enabled {
		return
	}

	hub := ws.NewHub(deps.SignalBus, engine.EventChannel, a.logger)
	g.Go(func() error {
		return hub.Run(ctx)
	})

	srv := server.New(server.Config{
		Port:             a.cfg.Server.Port,
		MaxPortfolioSize: a.cfg.Trade.MaxPortfolioSize,
	}, ledger, admitter, hub, a.logger)

	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

// waitEngine waits for the errgroup and maps the global stop-loss
// termination to a clean error surfaced to main.
func waitEngine(g *errgroup.Group) error {
	if err := g.Wait(); err != nil {
		if errors.Is(err, domain.ErrGlobalStopLoss) {
			return domain.ErrGlobalStopLoss
		}
		return err
	}
	return nil
}
