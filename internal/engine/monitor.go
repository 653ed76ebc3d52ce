package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/alanyoungcy/sniperbot/internal/config"
	"github.com/alanyoungcy/sniperbot/internal/domain"
	"github.com/alanyoungcy/sniperbot/internal/obs"
)

// Seller issues exits. Satisfied by *Executor.
type Seller interface {
	Sell(ctx context.Context, assetID string, percentage float64, reason string) error
}

// MonitorConfig holds the sweep cadence and the exit-policy thresholds.
type MonitorConfig struct {
	Interval time.Duration
	Risk     config.RiskConfig
}

// Monitor sweeps the ledger on a fixed cadence, prices every open position,
// applies the exit policy, and issues the resulting sells. Faults are
// isolated per asset: one position's price fetch or sell failure never stops
// evaluation of the rest.
type Monitor struct {
	ledger *Ledger
	oracle Oracle
	seller Seller
	events *Events
	clock  Clock
	cfg    MonitorConfig
	logger *slog.Logger
}

// NewMonitor wires a Monitor over an existing ledger and executor.
func NewMonitor(ledger *Ledger, oracle Oracle, seller Seller, events *Events, clock Clock, cfg MonitorConfig, logger *slog.Logger) *Monitor {
	return &Monitor{
		ledger: ledger,
		oracle: oracle,
		seller: seller,
		events: events,
		clock:  clock,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "monitor")),
	}
}

// Run drives Tick on the configured cadence until ctx is cancelled or the
// global stop-loss floor is breached, in which case it liquidates every open
// position and returns domain.ErrGlobalStopLoss.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	m.logger.InfoContext(ctx, "monitor started",
		slog.Duration("interval", m.cfg.Interval))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := m.Tick(ctx); err != nil {
				if errors.Is(err, domain.ErrGlobalStopLoss) {
					m.liquidateAll(ctx)
					return err
				}
				return err
			}
		}
	}
}

// Tick performs one sweep over a snapshot of the ledger. It returns
// domain.ErrGlobalStopLoss when the realized-loss floor is breached, the
// context error on cancellation, and nil otherwise.
func (m *Monitor) Tick(ctx context.Context) error {
	obs.CountMonitorTick()

	for _, pos := range m.ledger.Snapshot() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// The position may have been closed since the snapshot was taken.
		if !m.ledger.Contains(pos.AssetID) {
			continue
		}
		m.evaluateOne(ctx, pos)
	}

	obs.SetOpenPositions(m.ledger.Size())

	if total := m.ledger.RealizedPnl(); total <= m.cfg.Risk.GlobalStopLossUSD {
		m.logger.ErrorContext(ctx, "global stop loss breached",
			slog.Float64("total_pnl_usd", total),
			slog.Float64("floor_usd", m.cfg.Risk.GlobalStopLossUSD),
		)
		if m.events != nil {
			m.events.Publish(ctx, Event{Type: EventGlobalStop, PnlUSD: total})
		}
		return domain.ErrGlobalStopLoss
	}
	return nil
}

// evaluateOne prices a single position and applies the exit policy. Its own
// faults are logged and absorbed.
func (m *Monitor) evaluateOne(ctx context.Context, pos domain.Position) {
	price, err := m.oracle.PriceOf(ctx, pos.AssetID)
	if err != nil {
		obs.CountPriceFetchFailure()
		m.logger.WarnContext(ctx, "price fetch failed, skipping",
			slog.String("asset_id", pos.AssetID),
			slog.String("error", err.Error()),
		)
		return
	}

	if peak, ok := m.ledger.ObservePrice(pos.AssetID, price); ok {
		pos.PeakPrice = peak
	} else {
		return // closed concurrently
	}

	decision := Evaluate(pos, price, m.clock.Now(), m.cfg.Risk)
	if !decision.Sell() {
		return
	}

	m.logger.InfoContext(ctx, "exit triggered",
		slog.String("asset_id", pos.AssetID),
		slog.String("reason", decision.Reason),
		slog.Float64("sell_percent", decision.SellPercent),
		slog.Float64("price", price),
		slog.Float64("peak", pos.PeakPrice),
	)

	// A ladder rung is consumed when it triggers, together with any lower
	// rungs the price gapped over, so a retrace never fires a stale rung.
	if decision.Tier > 0 {
		m.ledger.ConsumeTiersThrough(pos.AssetID, decision.Tier)
	}

	if err := m.seller.Sell(ctx, pos.AssetID, decision.SellPercent, decision.Reason); err != nil {
		if errors.Is(err, domain.ErrPositionClosed) {
			return
		}
		m.logger.WarnContext(ctx, "sell failed",
			slog.String("asset_id", pos.AssetID),
			slog.String("reason", decision.Reason),
			slog.String("error", err.Error()),
		)
	}
}

// liquidateAll issues a best-effort full exit for every remaining position
// after the global stop fires.
func (m *Monitor) liquidateAll(ctx context.Context) {
	for _, pos := range m.ledger.Snapshot() {
		if err := m.seller.Sell(ctx, pos.AssetID, 100, ReasonGlobalStop); err != nil {
			m.logger.WarnContext(ctx, "liquidation sell failed",
				slog.String("asset_id", pos.AssetID),
				slog.String("error", err.Error()),
			)
		}
	}
}
