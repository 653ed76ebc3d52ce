package engine

import (
	"time"

	"github.com/alanyoungcy/sniperbot/internal/config"
	"github.com/alanyoungcy/sniperbot/internal/domain"
)

// Exit reasons reported in Decision.Reason and carried through trade events
// and metrics labels.
const (
	ReasonPriceUnreadable = "price_unreadable"
	ReasonTrailingStop    = "trailing_stop"
	ReasonHardStop        = "hard_stop"
	ReasonStaleDanger     = "stale_danger"
	ReasonDeepLoss        = "deep_loss"
	ReasonTakeProfit      = "take_profit"
	ReasonGlobalStop      = "global_stop"
)

// Decision is the outcome of one policy evaluation. SellPercent zero means
// hold. Tier is nonzero only for GOOD-ladder take-profit decisions and names
// the highest rung that fired.
type Decision struct {
	SellPercent float64
	Reason      string
	Tier        int
}

// Sell reports whether the decision requires an exit.
func (d Decision) Sell() bool { return d.SellPercent > 0 }

// Evaluate applies the exit policy to one position at one observed price.
// It is a pure function of its inputs; the caller persists the raised peak
// and tier consumption only after the resulting sell succeeds or is a hold.
//
// Rules are checked in strict priority order; the first match wins. An
// unreadable price forces a full exit. The trailing stop is armed only while
// the position is in profit and fires on a drawdown of at least
// cfg.TrailingStopPercent from the peak (inclusive). The hard stop fires at
// or below cfg.HardStopPercent from purchase for every tier. DANGER
// positions additionally exit when profitable but stale past the age cutoff,
// or when the loss reaches the deep-loss floor. Finally the take-profit
// rules run: GOOD positions walk a three-rung ladder where each rung fires
// once, and a price that clears several rungs at once fires only the
// highest; WARNING and DANGER positions fully exit at their single target.
func Evaluate(pos domain.Position, price float64, now time.Time, cfg config.RiskConfig) Decision {
	if price <= 0 {
		return Decision{SellPercent: 100, Reason: ReasonPriceUnreadable}
	}

	peak := pos.PeakPrice
	if price > peak {
		peak = price
	}
	profitPct := (price - pos.PurchasePrice) / pos.PurchasePrice * 100

	if profitPct > 0 {
		drawdownPct := (peak - price) / peak * 100
		if drawdownPct >= cfg.TrailingStopPercent {
			return Decision{SellPercent: 100, Reason: ReasonTrailingStop}
		}
	}

	if profitPct <= cfg.HardStopPercent {
		return Decision{SellPercent: 100, Reason: ReasonHardStop}
	}

	if pos.RiskTier == domain.RiskTierDanger {
		staleAfter := time.Duration(cfg.StaleDangerMinutes) * time.Minute
		if profitPct > 0 && staleAfter > 0 && pos.Age(now) > staleAfter {
			return Decision{SellPercent: 100, Reason: ReasonStaleDanger}
		}
		if profitPct <= cfg.DeepLossPercentDanger {
			return Decision{SellPercent: 100, Reason: ReasonDeepLoss}
		}
	}

	switch pos.RiskTier {
	case domain.RiskTierGood:
		// Walk top-down so a gap over several rungs fires only the highest.
		for i := len(cfg.TakeProfitGoodTiers) - 1; i >= 0; i-- {
			tier := i + 1
			rung := cfg.TakeProfitGoodTiers[i]
			if profitPct >= rung.ProfitPercent && !pos.TierConsumed(tier) {
				return Decision{SellPercent: rung.SellPercent, Reason: ReasonTakeProfit, Tier: tier}
			}
		}
	case domain.RiskTierWarning:
		if profitPct >= cfg.TakeProfitWarning {
			return Decision{SellPercent: 100, Reason: ReasonTakeProfit}
		}
	case domain.RiskTierDanger:
		if profitPct >= cfg.TakeProfitDanger {
			return Decision{SellPercent: 100, Reason: ReasonTakeProfit}
		}
	}

	return Decision{}
}
