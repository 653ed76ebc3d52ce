package domain

import (
	"context"
	"time"
)

// TradeStore is the durable persistence adapter for trades and position
// lifecycle status. All writes are best-effort from the engine's point of
// view: failures are logged, never propagated into trading decisions.
type TradeStore interface {
	// RecordTrade appends one confirmed buy or sell.
	RecordTrade(ctx context.Context, rec TradeRecord) error
	// RecordStatus updates the lifecycle status keyed by the buy signature.
	RecordStatus(ctx context.Context, buyRef string, status TradeStatus) error
	// SaveOpenPosition upserts the durable copy of an open position.
	SaveOpenPosition(ctx context.Context, rec OpenPositionRecord) error
	// RemoveOpenPosition deletes the durable copy once a position closes.
	RemoveOpenPosition(ctx context.Context, assetID string) error
	// LoadOpenPositions returns all open positions, used once at startup to
	// reconstruct the ledger after a restart.
	LoadOpenPositions(ctx context.Context) ([]OpenPositionRecord, error)
	// ListTradesBefore returns trades created strictly before the cutoff,
	// oldest first. Used by the archiver.
	ListTradesBefore(ctx context.Context, before time.Time) ([]TradeRecord, error)
}

// PurchasedSet remembers every asset the bot has ever bought so a candidate
// is never re-entered, even across restarts.
type PurchasedSet interface {
	Add(ctx context.Context, assetID string) error
	Contains(ctx context.Context, assetID string) (bool, error)
}

// Blacklist holds token names and symbols that admission must reject.
type Blacklist interface {
	Add(ctx context.Context, name, symbol string) error
	IsBlacklisted(ctx context.Context, name, symbol string) (bool, error)
}

// SignalBus publishes engine events (buys, sells, stops) for out-of-process
// consumers such as the websocket hub.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channels ...string) (<-chan BusMessage, func(), error)
}

// BusMessage is one message delivered by a SignalBus subscription.
type BusMessage struct {
	Channel string
	Payload []byte
}

// BlobWriter uploads a blob to object storage.
type BlobWriter interface {
	Write(ctx context.Context, key string, data []byte, contentType string) error
}
