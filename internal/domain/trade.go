package domain

import "time"

// TradeKind distinguishes the two sides of the position lifecycle.
type TradeKind string

const (
	TradeKindBuy  TradeKind = "BUY"
	TradeKindSell TradeKind = "SELL"
)

// TradeStatus is the durable lifecycle status keyed by the buy settlement
// signature. SELL_FAILED marks a position whose exit exhausted its retry
// budget; it is terminal for the automated engine but recoverable by a later
// manual or out-of-band pass.
type TradeStatus string

const (
	TradeStatusBought     TradeStatus = "BOUGHT"
	TradeStatusSold       TradeStatus = "SOLD"
	TradeStatusSellFailed TradeStatus = "SELL_FAILED"
)

// TradeRecord is the durable row written for every confirmed buy or sell.
// Persistence is best-effort: a write failure is logged and never blocks or
// reverses a trading decision.
type TradeRecord struct {
	ID            string // uuid
	Kind          TradeKind
	AssetID       string
	SOLAmount     float64 // SOL spent (buy) or received (sell)
	Price         float64 // SOL per token at execution
	FeeSOL        float64
	Signature     string // settlement signature of this trade
	RunningPnlUSD float64
	CreatedAt     time.Time
}

// OpenPositionRecord is the persisted shape of an open position, used only to
// reconstruct the ledger at startup. AmountHeld is deliberately re-read from
// live chain state before any sell, so a stale persisted amount is harmless.
type OpenPositionRecord struct {
	AssetID       string
	PurchasePrice float64
	AmountHeld    uint64
	CommittedSOL  float64
	RiskTier      RiskTier
	OpenedAt      time.Time
	PeakPrice     float64
	BuyRef        string
}
