package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/sniperbot/internal/domain"
	"github.com/alanyoungcy/sniperbot/internal/obs"
)

// LamportsPerSOL is the number of base units in one SOL.
const LamportsPerSOL = 1_000_000_000

// Swapper provides quotes and executable swap transactions. Satisfied by
// *jupiter.Client.
type Swapper interface {
	Quote(ctx context.Context, inMint, outMint string, amount uint64, slippageBps int) (domain.SwapQuote, error)
	BuildSwap(ctx context.Context, quote domain.SwapQuote, userPublicKey string) ([]byte, error)
}

// Oracle provides token prices in SOL and the SOL/USD valuation rate.
// Satisfied by *jupiter.Client.
type Oracle interface {
	PriceOf(ctx context.Context, mint string) (float64, error)
	SolPriceUSD(ctx context.Context) (float64, error)
}

// Chain provides on-chain reads, transaction settlement, and token-account
// reclamation. Satisfied by *solana.Client.
type Chain interface {
	Balance(ctx context.Context, pubkey string) (uint64, error)
	TokenBalance(ctx context.Context, owner, mint string) (uint64, string, error)
	SubmitAndConfirm(ctx context.Context, signedTx []byte) (domain.Settlement, error)
	CloseTokenAccount(ctx context.Context, tokenAccount string) error
}

// Signer signs prepared transactions. Satisfied by *crypto.Wallet.
type Signer interface {
	PublicKey() string
	SignTransaction(tx []byte) ([]byte, error)
}

// ExecutorConfig holds the sizing and retry parameters for trade execution.
type ExecutorConfig struct {
	QuoteMint     string // mint spent on buys and received on sells
	SlippageBps   int
	MinSOLBalance float64 // reserve floor kept out of every buy

	AmountSOLGood    float64
	AmountSOLWarning float64
	AmountSOLDanger  float64

	SellRetry         RetryPolicy
	CloseAccountDelay time.Duration
	CloseAccountRetry RetryPolicy
}

// amountFor returns the buy size for a tier, falling back to the DANGER size.
func (c ExecutorConfig) amountFor(tier domain.RiskTier) float64 {
	switch tier {
	case domain.RiskTierGood:
		return c.AmountSOLGood
	case domain.RiskTierWarning:
		return c.AmountSOLWarning
	default:
		return c.AmountSOLDanger
	}
}

// Executor performs buys and sells against the swap and chain boundaries and
// keeps the ledger, durable store, and event sinks in step. Persistence and
// event publication are best-effort: their failures are logged and never
// reverse a completed trade.
type Executor struct {
	swapper   Swapper
	oracle    Oracle
	chain     Chain
	signer    Signer
	ledger    *Ledger
	store     domain.TradeStore
	purchased domain.PurchasedSet
	events    *Events
	clock     Clock
	cfg       ExecutorConfig
	logger    *slog.Logger
}

// NewExecutor wires an Executor. store and purchased may be nil to disable
// persistence (used in monitor-only deployments and tests).
func NewExecutor(
	swapper Swapper,
	oracle Oracle,
	chain Chain,
	signer Signer,
	ledger *Ledger,
	store domain.TradeStore,
	purchased domain.PurchasedSet,
	events *Events,
	clock Clock,
	cfg ExecutorConfig,
	logger *slog.Logger,
) *Executor {
	return &Executor{
		swapper:   swapper,
		oracle:    oracle,
		chain:     chain,
		signer:    signer,
		ledger:    ledger,
		store:     store,
		purchased: purchased,
		events:    events,
		clock:     clock,
		cfg:       cfg,
		logger:    logger.With(slog.String("component", "executor")),
	}
}

// Buy enters a new position in assetID sized by tier. The wallet must hold
// the tier amount plus the reserve floor or the buy is abandoned with
// domain.ErrInsufficientFunds. Quote, build, and settlement failures are
// terminal for the attempt; buys are never retried.
func (e *Executor) Buy(ctx context.Context, assetID string, tier domain.RiskTier) error {
	amountSOL := e.cfg.amountFor(tier)
	owner := e.signer.PublicKey()

	balance, err := e.chain.Balance(ctx, owner)
	if err != nil {
		obs.CountBuy(string(tier), "failed")
		return fmt.Errorf("engine: buy %s: read balance: %w", assetID, err)
	}
	needed := uint64((amountSOL + e.cfg.MinSOLBalance) * LamportsPerSOL)
	if balance < needed {
		obs.CountBuy(string(tier), "failed")
		return fmt.Errorf("engine: buy %s: balance %d below %d lamports: %w",
			assetID, balance, needed, domain.ErrInsufficientFunds)
	}

	lamports := uint64(amountSOL * LamportsPerSOL)
	quote, err := e.swapper.Quote(ctx, e.cfg.QuoteMint, assetID, lamports, e.cfg.SlippageBps)
	if err != nil {
		obs.CountBuy(string(tier), "failed")
		return fmt.Errorf("engine: buy %s: %w", assetID, err)
	}

	settlement, err := e.executeSwap(ctx, quote)
	if err != nil {
		obs.CountBuy(string(tier), "failed")
		return fmt.Errorf("engine: buy %s: %w", assetID, err)
	}

	// The position records what actually settled, not the pre-trade quote.
	held, _, err := e.chain.TokenBalance(ctx, owner, assetID)
	if err != nil || held == 0 {
		held = quote.OutAmount
	}
	price, perr := e.oracle.PriceOf(ctx, assetID)
	if perr != nil || price <= 0 {
		// Oracle unreadable right after the fill. Fall back to the implied
		// entry price so the position is still managed rather than orphaned.
		price = amountSOL / float64(held)
	}

	now := e.clock.Now()
	pos := domain.Position{
		AssetID:             assetID,
		PurchasePrice:       price,
		AmountHeld:          held,
		CommittedSOL:        amountSOL,
		RiskTier:            tier,
		ProfitTiersConsumed: make(map[int]bool),
		OpenedAt:            now,
		PeakPrice:           price,
		BuyRef:              settlement.Signature,
	}
	if err := e.ledger.Insert(pos); err != nil {
		obs.CountBuy(string(tier), "failed")
		return fmt.Errorf("engine: buy %s: %w", assetID, err)
	}
	obs.CountBuy(string(tier), "ok")
	obs.SetOpenPositions(e.ledger.Size())

	e.logger.InfoContext(ctx, "position opened",
		slog.String("asset_id", assetID),
		slog.String("tier", string(tier)),
		slog.Float64("amount_sol", amountSOL),
		slog.Float64("price", price),
		slog.Uint64("held", held),
		slog.String("signature", settlement.Signature),
	)

	e.persistBuy(ctx, pos, settlement)
	if e.events != nil {
		e.events.Publish(ctx, Event{
			Type:      EventPositionOpened,
			AssetID:   assetID,
			Tier:      string(tier),
			SOLAmount: amountSOL,
			Price:     price,
			Signature: settlement.Signature,
		})
	}
	return nil
}

// persistBuy records the durable side effects of a completed buy. Failures
// are logged only.
func (e *Executor) persistBuy(ctx context.Context, pos domain.Position, settlement domain.Settlement) {
	if e.purchased != nil {
		if err := e.purchased.Add(ctx, pos.AssetID); err != nil {
			e.logger.WarnContext(ctx, "purchased set update failed",
				slog.String("asset_id", pos.AssetID), slog.String("error", err.Error()))
		}
	}
	if e.store == nil {
		return
	}
	rec := domain.TradeRecord{
		ID:            uuid.NewString(),
		Kind:          domain.TradeKindBuy,
		AssetID:       pos.AssetID,
		SOLAmount:     pos.CommittedSOL,
		Price:         pos.PurchasePrice,
		FeeSOL:        settlement.FeeSOL,
		Signature:     settlement.Signature,
		RunningPnlUSD: e.ledger.RealizedPnl(),
		CreatedAt:     pos.OpenedAt,
	}
	if err := e.store.RecordTrade(ctx, rec); err != nil {
		e.logger.WarnContext(ctx, "trade record failed",
			slog.String("asset_id", pos.AssetID), slog.String("error", err.Error()))
	}
	if err := e.store.RecordStatus(ctx, pos.BuyRef, domain.TradeStatusBought); err != nil {
		e.logger.WarnContext(ctx, "status record failed",
			slog.String("asset_id", pos.AssetID), slog.String("error", err.Error()))
	}
	if err := e.store.SaveOpenPosition(ctx, openRecord(pos)); err != nil {
		e.logger.WarnContext(ctx, "open position save failed",
			slog.String("asset_id", pos.AssetID), slog.String("error", err.Error()))
	}
}

// Sell exits percentage of the position in assetID. It is idempotent for an
// already-closed position: the call returns domain.ErrPositionClosed and has
// no side effects. Each attempt re-reads the live on-chain amount; a zero
// balance means the position was closed externally and ends the call the same
// way. Settlement failures are retried up to the configured budget and then
// surfaced as SELL_FAILED.
func (e *Executor) Sell(ctx context.Context, assetID string, percentage float64, reason string) error {
	if percentage <= 0 || percentage > 100 {
		return fmt.Errorf("engine: sell %s: percentage %.2f out of range", assetID, percentage)
	}
	pos, err := e.ledger.Get(assetID)
	if err != nil {
		return fmt.Errorf("engine: sell %s: %w", assetID, domain.ErrPositionClosed)
	}

	var (
		closedExternally bool
		soldAmount       uint64
		tokenAccount     string
		settlement       domain.Settlement
		quote            domain.SwapQuote
	)

	err = retry(ctx, e.clock, e.cfg.SellRetry, func(attempt int) error {
		if attempt > 1 {
			obs.CountSellRetry()
			e.logger.InfoContext(ctx, "sell retry",
				slog.String("asset_id", assetID), slog.Int("attempt", attempt))
		}

		live, account, rerr := e.chain.TokenBalance(ctx, e.signer.PublicKey(), assetID)
		if rerr != nil {
			return fmt.Errorf("read token balance: %w", rerr)
		}
		if live == 0 {
			closedExternally = true
			return nil
		}
		tokenAccount = account

		soldAmount = uint64(math.Round(float64(live) * percentage / 100))
		if soldAmount == 0 {
			soldAmount = live
		}

		quote, rerr = e.swapper.Quote(ctx, assetID, e.cfg.QuoteMint, soldAmount, e.cfg.SlippageBps)
		if rerr != nil {
			return rerr
		}
		settlement, rerr = e.executeSwap(ctx, quote)
		return rerr
	})

	if closedExternally {
		e.logger.InfoContext(ctx, "position closed externally",
			slog.String("asset_id", assetID))
		e.closeOut(ctx, pos)
		obs.CountSell(reason, "already_closed")
		return fmt.Errorf("engine: sell %s: %w", assetID, domain.ErrPositionClosed)
	}
	if err != nil {
		e.markSellFailed(ctx, pos, reason, err)
		return fmt.Errorf("engine: sell %s: %w", assetID, err)
	}

	proceedsSOL := float64(quote.OutAmount) / LamportsPerSOL
	pnlUSD, total := e.bookProceeds(ctx, pos, proceedsSOL, percentage)
	obs.CountSell(reason, "ok")

	e.logger.InfoContext(ctx, "sell settled",
		slog.String("asset_id", assetID),
		slog.String("reason", reason),
		slog.Float64("percentage", percentage),
		slog.Float64("proceeds_sol", proceedsSOL),
		slog.Float64("pnl_usd", pnlUSD),
		slog.Float64("total_pnl_usd", total),
		slog.String("signature", settlement.Signature),
	)

	e.persistSell(ctx, pos, proceedsSOL, quote, settlement, soldAmount)

	if percentage == 100 {
		e.closeOut(ctx, pos)
		if e.events != nil {
			e.events.Publish(ctx, Event{
				Type:      EventPositionClosed,
				AssetID:   assetID,
				Tier:      string(pos.RiskTier),
				Reason:    reason,
				SOLAmount: proceedsSOL,
				PnlUSD:    pnlUSD,
				Signature: settlement.Signature,
			})
		}
		if tokenAccount != "" {
			go e.reclaimTokenAccount(assetID, tokenAccount)
		}
		return nil
	}

	e.ledger.ReduceAmount(assetID, soldAmount)
	if updated, gerr := e.ledger.Get(assetID); gerr == nil && e.store != nil {
		if serr := e.store.SaveOpenPosition(ctx, openRecord(updated)); serr != nil {
			e.logger.WarnContext(ctx, "open position save failed",
				slog.String("asset_id", assetID), slog.String("error", serr.Error()))
		}
	}
	if e.events != nil {
		e.events.Publish(ctx, Event{
			Type:      EventPartialSell,
			AssetID:   assetID,
			Tier:      string(pos.RiskTier),
			Reason:    reason,
			SOLAmount: proceedsSOL,
			Signature: settlement.Signature,
		})
	}
	return nil
}

// executeSwap builds, signs, and settles one swap transaction.
func (e *Executor) executeSwap(ctx context.Context, quote domain.SwapQuote) (domain.Settlement, error) {
	tx, err := e.swapper.BuildSwap(ctx, quote, e.signer.PublicKey())
	if err != nil {
		return domain.Settlement{}, err
	}
	signed, err := e.signer.SignTransaction(tx)
	if err != nil {
		return domain.Settlement{}, fmt.Errorf("sign transaction: %w", err)
	}
	return e.chain.SubmitAndConfirm(ctx, signed)
}

// bookProceeds converts sell proceeds into realized USD pnl and accumulates
// it. A missing SOL/USD rate leaves the total unchanged and flags the ledger
// as degraded, so the global stop-loss reading is known to undercount.
func (e *Executor) bookProceeds(ctx context.Context, pos domain.Position, proceedsSOL, percentage float64) (pnlUSD, total float64) {
	pnlSOL := proceedsSOL - pos.CommittedSOL*percentage/100
	rate, err := e.oracle.SolPriceUSD(ctx)
	if err != nil || rate <= 0 {
		e.ledger.MarkDegraded()
		e.logger.WarnContext(ctx, "sol valuation unavailable, pnl not booked",
			slog.String("asset_id", pos.AssetID), slog.Float64("pnl_sol", pnlSOL))
		return 0, e.ledger.RealizedPnl()
	}
	pnlUSD = pnlSOL * rate
	total = e.ledger.AddRealizedPnl(pnlUSD)
	obs.SetRealizedPnl(total)
	return pnlUSD, total
}

// closeOut removes a fully exited position from the ledger and marks the
// durable record terminal.
func (e *Executor) closeOut(ctx context.Context, pos domain.Position) {
	e.ledger.Remove(pos.AssetID)
	obs.SetOpenPositions(e.ledger.Size())
	if e.store == nil {
		return
	}
	if err := e.store.RemoveOpenPosition(ctx, pos.AssetID); err != nil {
		e.logger.WarnContext(ctx, "open position remove failed",
			slog.String("asset_id", pos.AssetID), slog.String("error", err.Error()))
	}
	if err := e.store.RecordStatus(ctx, pos.BuyRef, domain.TradeStatusSold); err != nil {
		e.logger.WarnContext(ctx, "status record failed",
			slog.String("asset_id", pos.AssetID), slog.String("error", err.Error()))
	}
}

// markSellFailed records the terminal-but-recoverable SELL_FAILED state after
// the retry budget is exhausted. The position stays in the ledger so a later
// sweep or operator can still act on it.
func (e *Executor) markSellFailed(ctx context.Context, pos domain.Position, reason string, cause error) {
	obs.CountSell(reason, "failed")
	e.logger.ErrorContext(ctx, "sell attempts exhausted",
		slog.String("asset_id", pos.AssetID),
		slog.String("reason", reason),
		slog.String("error", cause.Error()),
	)
	if e.store != nil && !errors.Is(cause, domain.ErrContextDone) {
		if err := e.store.RecordStatus(ctx, pos.BuyRef, domain.TradeStatusSellFailed); err != nil {
			e.logger.WarnContext(ctx, "status record failed",
				slog.String("asset_id", pos.AssetID), slog.String("error", err.Error()))
		}
	}
	if e.events != nil {
		e.events.Publish(ctx, Event{
			Type:    EventSellFailed,
			AssetID: pos.AssetID,
			Tier:    string(pos.RiskTier),
			Reason:  reason,
		})
	}
}

// persistSell appends the durable sell record. Failures are logged only.
func (e *Executor) persistSell(ctx context.Context, pos domain.Position, proceedsSOL float64, quote domain.SwapQuote, settlement domain.Settlement, soldAmount uint64) {
	if e.store == nil {
		return
	}
	price := 0.0
	if soldAmount > 0 {
		price = proceedsSOL / float64(soldAmount)
	}
	rec := domain.TradeRecord{
		ID:            uuid.NewString(),
		Kind:          domain.TradeKindSell,
		AssetID:       pos.AssetID,
		SOLAmount:     proceedsSOL,
		Price:         price,
		FeeSOL:        settlement.FeeSOL,
		Signature:     settlement.Signature,
		RunningPnlUSD: e.ledger.RealizedPnl(),
		CreatedAt:     e.clock.Now(),
	}
	if err := e.store.RecordTrade(ctx, rec); err != nil {
		e.logger.WarnContext(ctx, "trade record failed",
			slog.String("asset_id", pos.AssetID), slog.String("error", err.Error()))
	}
}

// reclaimTokenAccount closes the now-empty holding account after a delay to
// let the final sell fully settle. Runs detached; failure is logged only.
func (e *Executor) reclaimTokenAccount(assetID, tokenAccount string) {
	ctx := context.Background()
	if err := e.clock.Sleep(ctx, e.cfg.CloseAccountDelay); err != nil {
		return
	}
	err := retry(ctx, e.clock, e.cfg.CloseAccountRetry, func(int) error {
		return e.chain.CloseTokenAccount(ctx, tokenAccount)
	})
	if err != nil {
		e.logger.Warn("token account reclamation failed",
			slog.String("asset_id", assetID),
			slog.String("token_account", tokenAccount),
			slog.String("error", err.Error()),
		)
		return
	}
	e.logger.Info("token account reclaimed",
		slog.String("asset_id", assetID),
		slog.String("token_account", tokenAccount),
	)
}

func openRecord(pos domain.Position) domain.OpenPositionRecord {
	return domain.OpenPositionRecord{
		AssetID:       pos.AssetID,
		PurchasePrice: pos.PurchasePrice,
		AmountHeld:    pos.AmountHeld,
		CommittedSOL:  pos.CommittedSOL,
		RiskTier:      pos.RiskTier,
		OpenedAt:      pos.OpenedAt,
		PeakPrice:     pos.PeakPrice,
		BuyRef:        pos.BuyRef,
	}
}
