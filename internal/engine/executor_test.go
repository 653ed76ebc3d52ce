package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/sniperbot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeClock struct {
	mu    sync.Mutex
	now   time.Time
	slept []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	c.mu.Lock()
	c.slept = append(c.slept, d)
	c.now = c.now.Add(d)
	c.mu.Unlock()
	return ctx.Err()
}

func (c *fakeClock) sleeps() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.slept)
}

type fakeSwapper struct {
	quoteOut   uint64
	quoteErr   error
	buildErr   error
	quoteCalls int
}

func (s *fakeSwapper) Quote(_ context.Context, inMint, outMint string, amount uint64, _ int) (domain.SwapQuote, error) {
	s.quoteCalls++
	if s.quoteErr != nil {
		return domain.SwapQuote{}, s.quoteErr
	}
	return domain.SwapQuote{
		InMint:    inMint,
		OutMint:   outMint,
		InAmount:  amount,
		OutAmount: s.quoteOut,
	}, nil
}

func (s *fakeSwapper) BuildSwap(context.Context, domain.SwapQuote, string) ([]byte, error) {
	if s.buildErr != nil {
		return nil, s.buildErr
	}
	return []byte("unsigned-tx"), nil
}

type fakeOracle struct {
	price    float64
	priceErr error
	solUSD   float64
	solErr   error
}

func (o *fakeOracle) PriceOf(context.Context, string) (float64, error) {
	return o.price, o.priceErr
}

func (o *fakeOracle) SolPriceUSD(context.Context) (float64, error) {
	return o.solUSD, o.solErr
}

type fakeChain struct {
	balance      uint64
	balanceErr   error
	tokenAmounts []uint64 // one per TokenBalance call, last value repeats
	tokenAccount string
	tokenErr     error
	submitErrs   []error // one per SubmitAndConfirm call, nil past the end
	tokenCalls   int
	submitCalls  int
	closeErr     error
	closedCh     chan string
}

func (c *fakeChain) Balance(context.Context, string) (uint64, error) {
	return c.balance, c.balanceErr
}

func (c *fakeChain) TokenBalance(context.Context, string, string) (uint64, string, error) {
	if c.tokenErr != nil {
		return 0, "", c.tokenErr
	}
	i := c.tokenCalls
	c.tokenCalls++
	if i >= len(c.tokenAmounts) {
		i = len(c.tokenAmounts) - 1
	}
	return c.tokenAmounts[i], c.tokenAccount, nil
}

func (c *fakeChain) SubmitAndConfirm(context.Context, []byte) (domain.Settlement, error) {
	i := c.submitCalls
	c.submitCalls++
	if i < len(c.submitErrs) && c.submitErrs[i] != nil {
		return domain.Settlement{}, c.submitErrs[i]
	}
	return domain.Settlement{Signature: "sig-test", FeeSOL: 0.000005}, nil
}

func (c *fakeChain) CloseTokenAccount(_ context.Context, tokenAccount string) error {
	if c.closeErr != nil {
		return c.closeErr
	}
	if c.closedCh != nil {
		c.closedCh <- tokenAccount
	}
	return nil
}

type fakeSigner struct{}

func (fakeSigner) PublicKey() string { return "ownerPubkey" }

func (fakeSigner) SignTransaction(tx []byte) ([]byte, error) {
	return append([]byte("signed:"), tx...), nil
}

type fakeStore struct {
	mu       sync.Mutex
	trades   []domain.TradeRecord
	statuses map[string]domain.TradeStatus
	saved    map[string]domain.OpenPositionRecord
	removed  []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		statuses: make(map[string]domain.TradeStatus),
		saved:    make(map[string]domain.OpenPositionRecord),
	}
}

func (s *fakeStore) RecordTrade(_ context.Context, rec domain.TradeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trades = append(s.trades, rec)
	return nil
}

func (s *fakeStore) RecordStatus(_ context.Context, buyRef string, status domain.TradeStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[buyRef] = status
	return nil
}

func (s *fakeStore) SaveOpenPosition(_ context.Context, rec domain.OpenPositionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved[rec.AssetID] = rec
	return nil
}

func (s *fakeStore) RemoveOpenPosition(_ context.Context, assetID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removed = append(s.removed, assetID)
	return nil
}

func (s *fakeStore) LoadOpenPositions(context.Context) ([]domain.OpenPositionRecord, error) {
	return nil, nil
}

func (s *fakeStore) ListTradesBefore(context.Context, time.Time) ([]domain.TradeRecord, error) {
	return nil, nil
}

func (s *fakeStore) status(buyRef string) (domain.TradeStatus, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.statuses[buyRef]
	return st, ok
}

func (s *fakeStore) tradeKinds() []domain.TradeKind {
	s.mu.Lock()
	defer s.mu.Unlock()
	kinds := make([]domain.TradeKind, 0, len(s.trades))
	for _, rec := range s.trades {
		kinds = append(kinds, rec.Kind)
	}
	return kinds
}

type fakePurchased struct {
	mu    sync.Mutex
	added []string
}

func (p *fakePurchased) Add(_ context.Context, assetID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.added = append(p.added, assetID)
	return nil
}

func (p *fakePurchased) Contains(_ context.Context, assetID string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, id := range p.added {
		if id == assetID {
			return true, nil
		}
	}
	return false, nil
}

type executorFixture struct {
	swapper   *fakeSwapper
	oracle    *fakeOracle
	chain     *fakeChain
	store     *fakeStore
	purchased *fakePurchased
	ledger    *Ledger
	clock     *fakeClock
	exec      *Executor
}

func newExecutorFixture() *executorFixture {
	f := &executorFixture{
		swapper:   &fakeSwapper{quoteOut: 2_000_000},
		oracle:    &fakeOracle{price: 0.00005, solUSD: 200},
		chain:     &fakeChain{balance: 1 * LamportsPerSOL, tokenAmounts: []uint64{2_000_000}, tokenAccount: "tokenAcct"},
		store:     newFakeStore(),
		purchased: &fakePurchased{},
		ledger:    NewLedger(),
		clock:     newFakeClock(),
	}
	cfg := ExecutorConfig{
		QuoteMint:         "So11111111111111111111111111111111111111112",
		SlippageBps:       500,
		MinSOLBalance:     0.05,
		AmountSOLGood:     0.1,
		AmountSOLWarning:  0.05,
		AmountSOLDanger:   0.02,
		SellRetry:         FixedDelay(3, 5*time.Second),
		CloseAccountDelay: time.Second,
		CloseAccountRetry: FixedDelay(3, time.Second),
	}
	f.exec = NewExecutor(f.swapper, f.oracle, f.chain, fakeSigner{}, f.ledger, f.store, f.purchased, nil, f.clock, cfg, testLogger())
	return f
}

func TestExecutorBuyOpensPosition(t *testing.T) {
	f := newExecutorFixture()

	require.NoError(t, f.exec.Buy(context.Background(), "mintA", domain.RiskTierGood))

	pos, err := f.ledger.Get("mintA")
	require.NoError(t, err)
	assert.Equal(t, uint64(2_000_000), pos.AmountHeld)
	assert.Equal(t, 0.00005, pos.PurchasePrice)
	assert.Equal(t, 0.00005, pos.PeakPrice)
	assert.Equal(t, 0.1, pos.CommittedSOL)
	assert.Equal(t, "sig-test", pos.BuyRef)

	st, ok := f.store.status("sig-test")
	require.True(t, ok)
	assert.Equal(t, domain.TradeStatusBought, st)
	assert.Equal(t, []domain.TradeKind{domain.TradeKindBuy}, f.store.tradeKinds())
	assert.Contains(t, f.store.saved, "mintA")
	assert.Equal(t, []string{"mintA"}, f.purchased.added)
}

func TestExecutorBuyInsufficientFunds(t *testing.T) {
	f := newExecutorFixture()
	// 0.1 SOL buy plus the 0.05 reserve needs 0.15 SOL.
	f.chain.balance = 100_000_000

	err := f.exec.Buy(context.Background(), "mintA", domain.RiskTierGood)

	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
	assert.Zero(t, f.ledger.Size())
	assert.Zero(t, f.swapper.quoteCalls, "no quote before the balance check passes")
	assert.Empty(t, f.purchased.added)
}

func TestExecutorBuyFallsBackToImpliedPrice(t *testing.T) {
	f := newExecutorFixture()
	f.oracle.priceErr = errors.New("oracle down")

	require.NoError(t, f.exec.Buy(context.Background(), "mintA", domain.RiskTierGood))

	pos, err := f.ledger.Get("mintA")
	require.NoError(t, err)
	assert.InDelta(t, 0.1/2_000_000, pos.PurchasePrice, 1e-12)
}

func TestExecutorBuyQuoteFailure(t *testing.T) {
	f := newExecutorFixture()
	f.swapper.quoteErr = domain.ErrNoQuote

	err := f.exec.Buy(context.Background(), "mintA", domain.RiskTierGood)

	assert.ErrorIs(t, err, domain.ErrNoQuote)
	assert.Zero(t, f.ledger.Size())
	assert.Zero(t, f.chain.submitCalls)
}

func sellFixture(t *testing.T) *executorFixture {
	t.Helper()
	f := newExecutorFixture()
	require.NoError(t, f.ledger.Insert(domain.Position{
		AssetID:       "mintA",
		PurchasePrice: 0.00005,
		AmountHeld:    2_000_000,
		CommittedSOL:  0.1,
		RiskTier:      domain.RiskTierGood,
		OpenedAt:      f.clock.Now(),
		PeakPrice:     0.00005,
		BuyRef:        "buy-sig",
	}))
	// Sell quotes return lamports out.
	f.swapper.quoteOut = 150_000_000 // 0.15 SOL
	f.chain.tokenAmounts = []uint64{2_000_000}
	f.chain.closedCh = make(chan string, 1)
	return f
}

func TestExecutorSellFullExit(t *testing.T) {
	f := sellFixture(t)

	require.NoError(t, f.exec.Sell(context.Background(), "mintA", 100, ReasonTrailingStop))

	assert.False(t, f.ledger.Contains("mintA"))
	// Proceeds 0.15 SOL against 0.1 committed at 200 USD/SOL books +10 USD.
	assert.InDelta(t, 10.0, f.ledger.RealizedPnl(), 1e-9)

	st, ok := f.store.status("buy-sig")
	require.True(t, ok)
	assert.Equal(t, domain.TradeStatusSold, st)
	assert.Equal(t, []string{"mintA"}, f.store.removed)
	assert.Equal(t, []domain.TradeKind{domain.TradeKindSell}, f.store.tradeKinds())

	select {
	case acct := <-f.chain.closedCh:
		assert.Equal(t, "tokenAcct", acct)
	case <-time.After(2 * time.Second):
		t.Fatal("token account was never reclaimed")
	}
}

func TestExecutorSellPartialReducesHolding(t *testing.T) {
	f := sellFixture(t)
	f.swapper.quoteOut = 75_000_000

	require.NoError(t, f.exec.Sell(context.Background(), "mintA", 50, ReasonTakeProfit))

	pos, err := f.ledger.Get("mintA")
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000_000), pos.AmountHeld)

	// 0.075 SOL proceeds against half the 0.1 SOL basis at 200 USD/SOL.
	assert.InDelta(t, 5.0, f.ledger.RealizedPnl(), 1e-9)
	assert.Equal(t, uint64(1_000_000), f.store.saved["mintA"].AmountHeld)
	assert.Empty(t, f.store.removed)

	select {
	case <-f.chain.closedCh:
		t.Fatal("partial sell must not reclaim the token account")
	default:
	}
}

func TestExecutorSellRetriesThenSucceeds(t *testing.T) {
	f := sellFixture(t)
	f.chain.submitErrs = []error{errors.New("blockhash expired"), nil}

	require.NoError(t, f.exec.Sell(context.Background(), "mintA", 100, ReasonHardStop))

	assert.Equal(t, 2, f.chain.submitCalls)
	assert.GreaterOrEqual(t, f.clock.sleeps(), 1, "a delay separates attempts")
	assert.False(t, f.ledger.Contains("mintA"))
}

func TestExecutorSellExhaustedRetriesMarksSellFailed(t *testing.T) {
	f := sellFixture(t)
	boom := errors.New("slippage exceeded")
	f.chain.submitErrs = []error{boom, boom, boom}

	err := f.exec.Sell(context.Background(), "mintA", 100, ReasonHardStop)

	require.ErrorIs(t, err, boom)
	assert.Equal(t, 3, f.chain.submitCalls)
	assert.True(t, f.ledger.Contains("mintA"), "the position stays for a later sweep")

	st, ok := f.store.status("buy-sig")
	require.True(t, ok)
	assert.Equal(t, domain.TradeStatusSellFailed, st)
}

func TestExecutorSellExternallyClosedPosition(t *testing.T) {
	f := sellFixture(t)
	f.chain.tokenAmounts = []uint64{0}

	err := f.exec.Sell(context.Background(), "mintA", 100, ReasonTrailingStop)

	require.ErrorIs(t, err, domain.ErrPositionClosed)
	assert.False(t, f.ledger.Contains("mintA"))
	assert.Zero(t, f.chain.submitCalls)
	assert.Empty(t, f.store.tradeKinds(), "nothing was traded")

	st, ok := f.store.status("buy-sig")
	require.True(t, ok)
	assert.Equal(t, domain.TradeStatusSold, st)
}

func TestExecutorSellUnknownAsset(t *testing.T) {
	f := newExecutorFixture()

	err := f.exec.Sell(context.Background(), "ghost", 100, ReasonHardStop)

	assert.ErrorIs(t, err, domain.ErrPositionClosed)
	assert.Zero(t, f.swapper.quoteCalls)
}

func TestExecutorSellRejectsBadPercentage(t *testing.T) {
	f := sellFixture(t)

	assert.Error(t, f.exec.Sell(context.Background(), "mintA", 0, ReasonHardStop))
	assert.Error(t, f.exec.Sell(context.Background(), "mintA", 101, ReasonHardStop))
	assert.True(t, f.ledger.Contains("mintA"))
}

func TestExecutorSellDegradedValuation(t *testing.T) {
	f := sellFixture(t)
	f.oracle.solErr = errors.New("price api down")

	require.NoError(t, f.exec.Sell(context.Background(), "mintA", 100, ReasonTrailingStop))

	assert.True(t, f.ledger.Degraded())
	assert.Zero(t, f.ledger.RealizedPnl(), "unpriceable proceeds are not booked")
	assert.False(t, f.ledger.Contains("mintA"))
}

func TestRetryStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	clock := newFakeClock()
	calls := 0

	err := retry(ctx, clock, FixedDelay(5, time.Second), func(int) error {
		calls++
		cancel()
		return errors.New("transient")
	})

	assert.ErrorIs(t, err, domain.ErrContextDone)
	assert.Equal(t, 1, calls)
}

func TestRetryFirstSuccessStopsEarly(t *testing.T) {
	clock := newFakeClock()
	calls := 0

	err := retry(context.Background(), clock, FixedDelay(3, time.Second), func(int) error {
		calls++
		if calls < 2 {
			return errors.New("transient")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 1, clock.sleeps())
}
