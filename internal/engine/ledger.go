package engine

import (
	"sync"

	"github.com/alanyoungcy/sniperbot/internal/domain"
)

// Ledger is the authoritative in-memory view of open positions plus the
// realized profit-and-loss accumulator. All methods are safe for concurrent
// use; callers only ever see copies of positions, never shared pointers.
type Ledger struct {
	mu        sync.Mutex
	positions map[string]*domain.Position

	realizedPnlUSD float64
	// degraded is set when a sell could not be valued in USD because the
	// SOL/USD rate was unavailable. Once set it stays set, so the global
	// stop-loss reading is known to undercount losses.
	degraded bool
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{positions: make(map[string]*domain.Position)}
}

// Insert adds a new position. It returns domain.ErrAlreadyExists if a position
// with the same asset ID is already open.
func (l *Ledger) Insert(pos domain.Position) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.positions[pos.AssetID]; ok {
		return domain.ErrAlreadyExists
	}
	if pos.ProfitTiersConsumed == nil {
		pos.ProfitTiersConsumed = make(map[int]bool)
	}
	if pos.PeakPrice < pos.PurchasePrice {
		pos.PeakPrice = pos.PurchasePrice
	}
	l.positions[pos.AssetID] = &pos
	return nil
}

// Get returns a copy of the position for assetID, or domain.ErrNotFound.
func (l *Ledger) Get(assetID string) (domain.Position, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	pos, ok := l.positions[assetID]
	if !ok {
		return domain.Position{}, domain.ErrNotFound
	}
	return copyPosition(pos), nil
}

// Contains reports whether a position is open for assetID.
func (l *Ledger) Contains(assetID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.positions[assetID]
	return ok
}

// Size returns the number of open positions.
func (l *Ledger) Size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.positions)
}

// Snapshot returns copies of every open position. The monitor iterates over a
// snapshot so a concurrent admission or removal never invalidates the sweep.
func (l *Ledger) Snapshot() []domain.Position {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]domain.Position, 0, len(l.positions))
	for _, pos := range l.positions {
		out = append(out, copyPosition(pos))
	}
	return out
}

// Remove deletes the position for assetID if present.
func (l *Ledger) Remove(assetID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.positions, assetID)
}

// ObservePrice raises the position's peak price if price exceeds it. It
// returns the updated peak and false if the position is gone.
func (l *Ledger) ObservePrice(assetID string, price float64) (float64, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	pos, ok := l.positions[assetID]
	if !ok {
		return 0, false
	}
	pos.ObservePrice(price)
	return pos.PeakPrice, true
}

// ConsumeTiersThrough marks take-profit tiers 1..tier as fired. Marking the
// lower tiers too means a price that gapped over several rungs never triggers
// a stale lower rung on a later sweep.
func (l *Ledger) ConsumeTiersThrough(assetID string, tier int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	pos, ok := l.positions[assetID]
	if !ok {
		return
	}
	for t := 1; t <= tier; t++ {
		pos.ConsumeTier(t)
	}
}

// ReduceAmount subtracts sold from the position's held amount after a partial
// exit, clamping at zero.
func (l *Ledger) ReduceAmount(assetID string, sold uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	pos, ok := l.positions[assetID]
	if !ok {
		return
	}
	if sold >= pos.AmountHeld {
		pos.AmountHeld = 0
		return
	}
	pos.AmountHeld -= sold
}

// SetAmount overwrites the position's held amount with a freshly read
// on-chain balance.
func (l *Ledger) SetAmount(assetID string, amount uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if pos, ok := l.positions[assetID]; ok {
		pos.AmountHeld = amount
	}
}

// AddRealizedPnl accumulates a realized USD profit or loss.
func (l *Ledger) AddRealizedPnl(usd float64) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.realizedPnlUSD += usd
	return l.realizedPnlUSD
}

// RealizedPnl returns the running total of realized USD profit and loss.
func (l *Ledger) RealizedPnl() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.realizedPnlUSD
}

// MarkDegraded records that at least one sell could not be valued in USD.
func (l *Ledger) MarkDegraded() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.degraded = true
}

// Degraded reports whether the PnL total is known to be incomplete.
func (l *Ledger) Degraded() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.degraded
}

func copyPosition(pos *domain.Position) domain.Position {
	cp := *pos
	cp.ProfitTiersConsumed = make(map[int]bool, len(pos.ProfitTiersConsumed))
	for k, v := range pos.ProfitTiersConsumed {
		cp.ProfitTiersConsumed[k] = v
	}
	return cp
}
