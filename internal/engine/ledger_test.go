package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/sniperbot/internal/domain"
)

func TestLedgerInsertRejectsDuplicates(t *testing.T) {
	l := NewLedger()

	require.NoError(t, l.Insert(goodPosition(1.0)))
	err := l.Insert(goodPosition(1.0))
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)
	assert.Equal(t, 1, l.Size())
}

func TestLedgerInsertNormalises(t *testing.T) {
	l := NewLedger()

	pos := goodPosition(1.0)
	pos.ProfitTiersConsumed = nil
	pos.PeakPrice = 0.5
	require.NoError(t, l.Insert(pos))

	got, err := l.Get("mintA")
	require.NoError(t, err)
	assert.NotNil(t, got.ProfitTiersConsumed)
	assert.Equal(t, 1.0, got.PeakPrice, "peak starts at the purchase price")
}

func TestLedgerGetReturnsCopies(t *testing.T) {
	l := NewLedger()
	require.NoError(t, l.Insert(goodPosition(1.0)))

	got, err := l.Get("mintA")
	require.NoError(t, err)
	got.AmountHeld = 7
	got.ProfitTiersConsumed[2] = true

	again, err := l.Get("mintA")
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000_000), again.AmountHeld)
	assert.False(t, again.TierConsumed(2))

	_, err = l.Get("missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestLedgerSnapshotIsolation(t *testing.T) {
	l := NewLedger()
	require.NoError(t, l.Insert(goodPosition(1.0)))

	snap := l.Snapshot()
	require.Len(t, snap, 1)
	snap[0].ProfitTiersConsumed[1] = true

	got, err := l.Get("mintA")
	require.NoError(t, err)
	assert.False(t, got.TierConsumed(1))
}

func TestLedgerObservePriceIsMonotonic(t *testing.T) {
	l := NewLedger()
	require.NoError(t, l.Insert(goodPosition(1.0)))

	peak, ok := l.ObservePrice("mintA", 1.5)
	require.True(t, ok)
	assert.Equal(t, 1.5, peak)

	peak, ok = l.ObservePrice("mintA", 1.2)
	require.True(t, ok)
	assert.Equal(t, 1.5, peak, "peak never falls")

	_, ok = l.ObservePrice("missing", 2.0)
	assert.False(t, ok)
}

func TestLedgerConsumeTiersThrough(t *testing.T) {
	l := NewLedger()
	require.NoError(t, l.Insert(goodPosition(1.0)))

	l.ConsumeTiersThrough("mintA", 2)

	got, err := l.Get("mintA")
	require.NoError(t, err)
	assert.True(t, got.TierConsumed(1))
	assert.True(t, got.TierConsumed(2))
	assert.False(t, got.TierConsumed(3))

	// Unknown asset is a no-op.
	l.ConsumeTiersThrough("missing", 3)
}

func TestLedgerReduceAmountClampsAtZero(t *testing.T) {
	l := NewLedger()
	pos := goodPosition(1.0)
	pos.AmountHeld = 100
	require.NoError(t, l.Insert(pos))

	l.ReduceAmount("mintA", 30)
	got, _ := l.Get("mintA")
	assert.Equal(t, uint64(70), got.AmountHeld)

	l.ReduceAmount("mintA", 1000)
	got, _ = l.Get("mintA")
	assert.Equal(t, uint64(0), got.AmountHeld)
}

func TestLedgerRealizedPnlAccumulates(t *testing.T) {
	l := NewLedger()

	assert.Equal(t, 12.5, l.AddRealizedPnl(12.5))
	assert.Equal(t, 2.5, l.AddRealizedPnl(-10))
	assert.Equal(t, 2.5, l.RealizedPnl())
}

func TestLedgerDegradedIsSticky(t *testing.T) {
	l := NewLedger()

	assert.False(t, l.Degraded())
	l.MarkDegraded()
	assert.True(t, l.Degraded())
	l.MarkDegraded()
	assert.True(t, l.Degraded())
}

func TestLedgerRemove(t *testing.T) {
	l := NewLedger()
	require.NoError(t, l.Insert(goodPosition(1.0)))

	l.Remove("mintA")
	assert.False(t, l.Contains("mintA"))
	assert.Equal(t, 0, l.Size())

	// Removing twice is harmless.
	l.Remove("mintA")
}

func TestLedgerAge(t *testing.T) {
	opened := time.Now().Add(-10 * time.Minute)
	pos := goodPosition(1.0)
	pos.OpenedAt = opened

	age := pos.Age(opened.Add(15 * time.Minute))
	assert.Equal(t, 15*time.Minute, age)
}
