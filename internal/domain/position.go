package domain

import "time"

// RiskTier is the coarse risk classification assigned to an asset at
// admission. It is fixed for the life of the position and drives both the
// buy sizing and the exit policy.
type RiskTier string

const (
	RiskTierGood    RiskTier = "GOOD"
	RiskTierWarning RiskTier = "WARNING"
	RiskTierDanger  RiskTier = "DANGER"
)

// Valid reports whether t is one of the known tiers.
func (t RiskTier) Valid() bool {
	switch t {
	case RiskTierGood, RiskTierWarning, RiskTierDanger:
		return true
	}
	return false
}

// Position represents one open holding managed by the engine.
//
// PurchasePrice and PeakPrice are quoted in SOL per token. AmountHeld is the
// raw on-chain base-unit count. PeakPrice starts at PurchasePrice and never
// decreases for the life of the position.
type Position struct {
	AssetID             string // token mint address, unique ledger key
	PurchasePrice       float64
	AmountHeld          uint64
	CommittedSOL        float64
	RiskTier            RiskTier
	ProfitTiersConsumed map[int]bool
	OpenedAt            time.Time
	PeakPrice           float64
	BuyRef              string // settlement signature of the buy
}

// Age returns how long the position has been open as of now.
func (p *Position) Age(now time.Time) time.Duration {
	return now.Sub(p.OpenedAt)
}

// TierConsumed reports whether the given take-profit tier has already fired.
func (p *Position) TierConsumed(tier int) bool {
	return p.ProfitTiersConsumed[tier]
}

// ConsumeTier marks a take-profit tier as fired. The consumed set only grows.
func (p *Position) ConsumeTier(tier int) {
	if p.ProfitTiersConsumed == nil {
		p.ProfitTiersConsumed = make(map[int]bool)
	}
	p.ProfitTiersConsumed[tier] = true
}

// ObservePrice raises PeakPrice when price exceeds it. It never lowers the
// peak, so the trailing stop always measures drawdown from the true high.
func (p *Position) ObservePrice(price float64) {
	if price > p.PeakPrice {
		p.PeakPrice = price
	}
}
