package engine

import (
	"context"
	"errors"
	"log/slog"

	"github.com/alanyoungcy/sniperbot/internal/domain"
	"github.com/alanyoungcy/sniperbot/internal/obs"
)

// Buyer opens positions. Satisfied by *Executor.
type Buyer interface {
	Buy(ctx context.Context, assetID string, tier domain.RiskTier) error
}

// Candidate is one discovered asset offered for admission. Name and Symbol
// are optional token metadata used for blacklist matching.
type Candidate struct {
	AssetID string          `json:"asset_id"`
	Tier    domain.RiskTier `json:"tier"`
	Name    string          `json:"name,omitempty"`
	Symbol  string          `json:"symbol,omitempty"`
}

// Admission gates discovered candidates into the portfolio. Discovery
// sources enqueue concurrently; a single worker drains the queue, so the
// capacity check, duplicate check, and buy execute as one serialized section
// and the portfolio limit is race-free.
type Admission struct {
	queue     chan Candidate
	ledger    *Ledger
	buyer     Buyer
	purchased domain.PurchasedSet
	blacklist domain.Blacklist
	maxSize   int
	logger    *slog.Logger
}

// NewAdmission returns an Admission with a bounded queue of queueSize.
// purchased and blacklist may be nil to disable the corresponding check.
func NewAdmission(ledger *Ledger, buyer Buyer, purchased domain.PurchasedSet, blacklist domain.Blacklist, maxSize, queueSize int, logger *slog.Logger) *Admission {
	return &Admission{
		queue:     make(chan Candidate, queueSize),
		ledger:    ledger,
		buyer:     buyer,
		purchased: purchased,
		blacklist: blacklist,
		maxSize:   maxSize,
		logger:    logger.With(slog.String("component", "admission")),
	}
}

// Accept offers a candidate for admission. It never blocks: when the queue
// is full the candidate is dropped with a log entry, matching the silent
// no-op contract toward discovery sources.
func (a *Admission) Accept(cand Candidate) {
	select {
	case a.queue <- cand:
	default:
		obs.CountAdmissionRejected("queue_full")
		a.logger.Warn("admission queue full, candidate dropped",
			slog.String("asset_id", cand.AssetID))
	}
}

// Run drains the queue until ctx is cancelled.
func (a *Admission) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "admission worker started",
		slog.Int("max_portfolio_size", a.maxSize))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case cand := <-a.queue:
			a.process(ctx, cand)
		}
	}
}

// process runs the admission checks and the buy for one candidate. Every
// rejection is a logged no-op.
func (a *Admission) process(ctx context.Context, cand Candidate) {
	log := a.logger.With(slog.String("asset_id", cand.AssetID))

	if cand.AssetID == "" || !cand.Tier.Valid() {
		obs.CountAdmissionRejected("invalid")
		log.WarnContext(ctx, "candidate rejected: invalid",
			slog.String("tier", string(cand.Tier)))
		return
	}
	if a.ledger.Contains(cand.AssetID) {
		obs.CountAdmissionRejected("duplicate")
		log.InfoContext(ctx, "candidate rejected: already open")
		return
	}
	if a.ledger.Size() >= a.maxSize {
		obs.CountAdmissionRejected("capacity")
		log.InfoContext(ctx, "candidate rejected: portfolio at capacity",
			slog.Int("size", a.ledger.Size()))
		return
	}
	if a.purchased != nil {
		bought, err := a.purchased.Contains(ctx, cand.AssetID)
		if err != nil {
			log.WarnContext(ctx, "purchased set check failed",
				slog.String("error", err.Error()))
		} else if bought {
			obs.CountAdmissionRejected("duplicate")
			log.InfoContext(ctx, "candidate rejected: previously bought")
			return
		}
	}
	if a.blacklist != nil && (cand.Name != "" || cand.Symbol != "") {
		listed, err := a.blacklist.IsBlacklisted(ctx, cand.Name, cand.Symbol)
		if err != nil {
			log.WarnContext(ctx, "blacklist check failed",
				slog.String("error", err.Error()))
		} else if listed {
			obs.CountAdmissionRejected("blacklist")
			log.InfoContext(ctx, "candidate rejected: blacklisted",
				slog.String("name", cand.Name),
				slog.String("symbol", cand.Symbol))
			return
		}
	}

	if err := a.buyer.Buy(ctx, cand.AssetID, cand.Tier); err != nil {
		if errors.Is(err, domain.ErrInsufficientFunds) {
			log.WarnContext(ctx, "buy abandoned: insufficient funds")
			return
		}
		log.WarnContext(ctx, "buy failed",
			slog.String("error", err.Error()))
		return
	}

	// Ban the bought token's name and symbol so a same-named relaunch is
	// rejected at the door next time.
	if a.blacklist != nil && (cand.Name != "" || cand.Symbol != "") {
		if err := a.blacklist.Add(ctx, cand.Name, cand.Symbol); err != nil {
			log.WarnContext(ctx, "blacklist update failed",
				slog.String("error", err.Error()))
		}
	}
}
