package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/sniperbot/internal/domain"
)

// Event types published on the signal bus and offered to the notifier.
const (
	EventPositionOpened = "position_opened"
	EventPositionClosed = "position_closed"
	EventPartialSell    = "partial_sell"
	EventSellFailed     = "sell_failed"
	EventGlobalStop     = "global_stop"
)

// EventChannel is the bus channel all engine events are published on.
const EventChannel = "sniperbot:events"

// Notifier pushes operator-facing alerts. Satisfied by *notify.Notifier.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Event is the JSON payload published for every position lifecycle change.
type Event struct {
	Type      string  `json:"type"`
	AssetID   string  `json:"asset_id"`
	Tier      string  `json:"tier,omitempty"`
	Reason    string  `json:"reason,omitempty"`
	SOLAmount float64 `json:"sol_amount,omitempty"`
	Price     float64 `json:"price,omitempty"`
	PnlUSD    float64 `json:"pnl_usd,omitempty"`
	Signature string  `json:"signature,omitempty"`
	At        string  `json:"at"`
}

// Events fans position lifecycle changes out to the signal bus and the
// notifier. Both sinks are best-effort: a publish failure is logged and the
// engine proceeds.
type Events struct {
	bus      domain.SignalBus
	notifier Notifier
	clock    Clock
	logger   *slog.Logger
}

// NewEvents returns an Events publisher. bus and notifier may each be nil,
// in which case the corresponding sink is skipped.
func NewEvents(bus domain.SignalBus, notifier Notifier, clock Clock, logger *slog.Logger) *Events {
	return &Events{
		bus:      bus,
		notifier: notifier,
		clock:    clock,
		logger:   logger.With(slog.String("component", "events")),
	}
}

// Publish emits ev to the bus and, when a human-readable summary applies,
// to the notifier.
func (e *Events) Publish(ctx context.Context, ev Event) {
	if ev.At == "" {
		ev.At = e.clock.Now().UTC().Format(time.RFC3339)
	}

	if e.bus != nil {
		payload, err := json.Marshal(ev)
		if err == nil {
			err = e.bus.Publish(ctx, EventChannel, payload)
		}
		if err != nil {
			e.logger.WarnContext(ctx, "event publish failed",
				slog.String("type", ev.Type),
				slog.String("asset_id", ev.AssetID),
				slog.String("error", err.Error()),
			)
		}
	}

	if e.notifier != nil {
		title, message := describe(ev)
		if err := e.notifier.Notify(ctx, ev.Type, title, message); err != nil {
			e.logger.WarnContext(ctx, "notification failed",
				slog.String("type", ev.Type),
				slog.String("error", err.Error()),
			)
		}
	}
}

func describe(ev Event) (title, message string) {
	switch ev.Type {
	case EventPositionOpened:
		return "Position opened",
			fmt.Sprintf("%s (%s): %.4f SOL at %.9f", ev.AssetID, ev.Tier, ev.SOLAmount, ev.Price)
	case EventPositionClosed:
		return "Position closed",
			fmt.Sprintf("%s: %s, received %.4f SOL, pnl %.2f USD", ev.AssetID, ev.Reason, ev.SOLAmount, ev.PnlUSD)
	case EventPartialSell:
		return "Partial sell",
			fmt.Sprintf("%s: %s, received %.4f SOL", ev.AssetID, ev.Reason, ev.SOLAmount)
	case EventSellFailed:
		return "Sell failed",
			fmt.Sprintf("%s: exit attempts exhausted (%s), position stuck", ev.AssetID, ev.Reason)
	case EventGlobalStop:
		return "Global stop loss",
			fmt.Sprintf("realized pnl %.2f USD breached the floor, engine stopping", ev.PnlUSD)
	}
	return ev.Type, ev.AssetID
}
