package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/sniperbot/internal/config"
	"github.com/alanyoungcy/sniperbot/internal/domain"
)

func testRiskConfig() config.RiskConfig {
	return config.Defaults().Risk
}

func goodPosition(purchase float64) domain.Position {
	return domain.Position{
		AssetID:             "mintA",
		PurchasePrice:       purchase,
		AmountHeld:          1_000_000,
		CommittedSOL:        0.1,
		RiskTier:            domain.RiskTierGood,
		ProfitTiersConsumed: map[int]bool{},
		OpenedAt:            time.Now(),
		PeakPrice:           purchase,
	}
}

func TestEvaluateUnreadablePriceForcesFullExit(t *testing.T) {
	pos := goodPosition(1.0)
	d := Evaluate(pos, 0, time.Now(), testRiskConfig())

	assert.Equal(t, 100.0, d.SellPercent)
	assert.Equal(t, ReasonPriceUnreadable, d.Reason)
}

func TestEvaluateTrailingStopSequence(t *testing.T) {
	cfg := testRiskConfig()
	pos := goodPosition(1.0)
	now := time.Now()

	// Walk the price path, applying peak updates the way the monitor does.
	for _, price := range []float64{1.0, 1.5, 1.3} {
		pos.ObservePrice(price)
		d := Evaluate(pos, price, now, cfg)
		// 1.3 is a 13.3% drop from peak 1.5, below the 20% trail. The
		// take-profit ladder fires on the way up instead; only the stop
		// reasons matter here.
		assert.NotEqual(t, ReasonTrailingStop, d.Reason, "price %f", price)
	}

	// 1.2 is exactly a 20% drop from peak 1.5: boundary is inclusive.
	pos.ObservePrice(1.2)
	d := Evaluate(pos, 1.2, now, cfg)
	require.Equal(t, ReasonTrailingStop, d.Reason)
	assert.Equal(t, 100.0, d.SellPercent)

	// And well past the boundary it still fires.
	d = Evaluate(pos, 1.19, now, cfg)
	assert.Equal(t, ReasonTrailingStop, d.Reason)
}

func TestEvaluateTrailingStopNeverFiresAtALoss(t *testing.T) {
	cfg := testRiskConfig()
	pos := goodPosition(1.0)
	pos.ObservePrice(1.05)

	// 0.95 is a 9.5% drawdown from peak and a 5% loss; neither the trail
	// (not in profit) nor the hard stop (loss above -10%) applies.
	d := Evaluate(pos, 0.95, time.Now(), cfg)
	assert.False(t, d.Sell(), "got %+v", d)

	// Deep drawdown from peak while at a loss goes to the hard stop, never
	// the trailing stop.
	pos.ObservePrice(2.0)
	d = Evaluate(pos, 0.85, time.Now(), cfg)
	assert.Equal(t, ReasonHardStop, d.Reason)
}

func TestEvaluateHardStop(t *testing.T) {
	cfg := testRiskConfig()
	pos := goodPosition(1.0)

	d := Evaluate(pos, 0.88, time.Now(), cfg)
	require.Equal(t, ReasonHardStop, d.Reason)
	assert.Equal(t, 100.0, d.SellPercent)

	d = Evaluate(pos, 0.92, time.Now(), cfg)
	assert.False(t, d.Sell())
}

func TestEvaluateStaleDanger(t *testing.T) {
	cfg := testRiskConfig()
	now := time.Now()

	pos := goodPosition(1.0)
	pos.RiskTier = domain.RiskTierDanger
	pos.OpenedAt = now.Add(-31 * time.Minute)

	// Slightly in profit, stale past the cutoff.
	d := Evaluate(pos, 1.05, now, cfg)
	assert.Equal(t, ReasonStaleDanger, d.Reason)

	// Stale but at a small loss: the stale rule requires profit.
	d = Evaluate(pos, 0.97, now, cfg)
	assert.False(t, d.Sell())

	// A fresh DANGER position in the same profit band holds.
	pos.OpenedAt = now.Add(-5 * time.Minute)
	d = Evaluate(pos, 1.05, now, cfg)
	assert.False(t, d.Sell())
}

func TestEvaluateDeepLossDanger(t *testing.T) {
	cfg := testRiskConfig()
	pos := goodPosition(1.0)
	pos.RiskTier = domain.RiskTierDanger

	// The hard stop ranks above the deep-loss rule, so a -30% DANGER
	// position reports the hard stop.
	d := Evaluate(pos, 0.70, time.Now(), cfg)
	assert.Equal(t, ReasonHardStop, d.Reason)
	assert.Equal(t, 100.0, d.SellPercent)
}

func TestEvaluateGoodLadderFiresHighestUnconsumedTier(t *testing.T) {
	cfg := testRiskConfig()
	pos := goodPosition(1.0)
	now := time.Now()

	// +30% clears only tier 1 (25%/33%).
	pos.ObservePrice(1.30)
	d := Evaluate(pos, 1.30, now, cfg)
	require.Equal(t, ReasonTakeProfit, d.Reason)
	assert.Equal(t, 1, d.Tier)
	assert.Equal(t, 33.0, d.SellPercent)

	// With tier 1 consumed the same price holds.
	pos.ConsumeTier(1)
	d = Evaluate(pos, 1.30, now, cfg)
	assert.False(t, d.Sell())

	// +70% fires tier 2 (60%/50%).
	pos.ObservePrice(1.70)
	d = Evaluate(pos, 1.70, now, cfg)
	require.Equal(t, ReasonTakeProfit, d.Reason)
	assert.Equal(t, 2, d.Tier)
	assert.Equal(t, 50.0, d.SellPercent)
}

func TestEvaluateSingleTickJumpFiresOnlyTopTier(t *testing.T) {
	cfg := testRiskConfig()
	pos := goodPosition(1.0)

	// +150% clears all three rungs at once; only tier 3 fires.
	pos.ObservePrice(2.50)
	d := Evaluate(pos, 2.50, time.Now(), cfg)
	require.Equal(t, ReasonTakeProfit, d.Reason)
	assert.Equal(t, 3, d.Tier)
	assert.Equal(t, 100.0, d.SellPercent)
}

func TestEvaluateWarningAndDangerTakeProfit(t *testing.T) {
	cfg := testRiskConfig()
	now := time.Now()

	warn := goodPosition(1.0)
	warn.RiskTier = domain.RiskTierWarning
	warn.ObservePrice(1.30)
	d := Evaluate(warn, 1.30, now, cfg)
	require.Equal(t, ReasonTakeProfit, d.Reason)
	assert.Equal(t, 100.0, d.SellPercent)
	assert.Zero(t, d.Tier)

	danger := goodPosition(1.0)
	danger.RiskTier = domain.RiskTierDanger
	danger.ObservePrice(1.25)
	d = Evaluate(danger, 1.25, now, cfg)
	require.Equal(t, ReasonTakeProfit, d.Reason)
	assert.Equal(t, 100.0, d.SellPercent)

	// Below its target the DANGER position holds.
	d = Evaluate(danger, 1.15, now, cfg)
	assert.False(t, d.Sell())
}
