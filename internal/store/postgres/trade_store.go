package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/sniperbot/internal/domain"
)

// TradeStore implements domain.TradeStore using PostgreSQL.
type TradeStore struct {
	pool *pgxpool.Pool
}

// NewTradeStore creates a TradeStore backed by the given connection pool.
func NewTradeStore(pool *pgxpool.Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

const tradeSelectCols = `id, kind, asset_id, sol_amount, price, fee_sol,
	signature, running_pnl_usd, created_at`

func scanTradeRows(rows pgx.Rows) ([]domain.TradeRecord, error) {
	var recs []domain.TradeRecord
	for rows.Next() {
		var r domain.TradeRecord
		if err := rows.Scan(
			&r.ID, &r.Kind, &r.AssetID, &r.SOLAmount, &r.Price,
			&r.FeeSOL, &r.Signature, &r.RunningPnlUSD, &r.CreatedAt,
		); err != nil {
			return nil, err
		}
		recs = append(recs, r)
	}
	return recs, rows.Err()
}

// RecordTrade appends one confirmed buy or sell.
func (s *TradeStore) RecordTrade(ctx context.Context, rec domain.TradeRecord) error {
	const query = `
		INSERT INTO trades (
			id, kind, asset_id, sol_amount, price, fee_sol,
			signature, running_pnl_usd, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := s.pool.Exec(ctx, query,
		rec.ID, rec.Kind, rec.AssetID, rec.SOLAmount, rec.Price,
		rec.FeeSOL, rec.Signature, rec.RunningPnlUSD, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: record trade %s: %w", rec.AssetID, err)
	}
	return nil
}

// RecordStatus upserts the lifecycle status keyed by the buy signature.
func (s *TradeStore) RecordStatus(ctx context.Context, buyRef string, status domain.TradeStatus) error {
	const query = `
		INSERT INTO trade_status (buy_ref, status, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (buy_ref) DO UPDATE
			SET status = EXCLUDED.status, updated_at = NOW()`
	if _, err := s.pool.Exec(ctx, query, buyRef, status); err != nil {
		return fmt.Errorf("postgres: record status %s: %w", buyRef, err)
	}
	return nil
}

// SaveOpenPosition upserts the durable copy of an open position.
func (s *TradeStore) SaveOpenPosition(ctx context.Context, rec domain.OpenPositionRecord) error {
	const query = `
		INSERT INTO open_positions (
			asset_id, purchase_price, amount_held, committed_sol,
			risk_tier, opened_at, peak_price, buy_ref, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		ON CONFLICT (asset_id) DO UPDATE SET
			amount_held = EXCLUDED.amount_held,
			peak_price = EXCLUDED.peak_price,
			updated_at = NOW()`
	_, err := s.pool.Exec(ctx, query,
		rec.AssetID, rec.PurchasePrice, int64(rec.AmountHeld), rec.CommittedSOL,
		rec.RiskTier, rec.OpenedAt, rec.PeakPrice, rec.BuyRef,
	)
	if err != nil {
		return fmt.Errorf("postgres: save open position %s: %w", rec.AssetID, err)
	}
	return nil
}

// RemoveOpenPosition deletes the durable copy once a position closes.
func (s *TradeStore) RemoveOpenPosition(ctx context.Context, assetID string) error {
	if _, err := s.pool.Exec(ctx,
		`DELETE FROM open_positions WHERE asset_id = $1`, assetID,
	); err != nil {
		return fmt.Errorf("postgres: remove open position %s: %w", assetID, err)
	}
	return nil
}

// LoadOpenPositions returns all open positions, oldest first.
func (s *TradeStore) LoadOpenPositions(ctx context.Context) ([]domain.OpenPositionRecord, error) {
	const query = `
		SELECT asset_id, purchase_price, amount_held, committed_sol,
			risk_tier, opened_at, peak_price, buy_ref
		FROM open_positions ORDER BY opened_at ASC`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: load open positions: %w", err)
	}
	defer rows.Close()

	var recs []domain.OpenPositionRecord
	for rows.Next() {
		var (
			r      domain.OpenPositionRecord
			amount int64
		)
		if err := rows.Scan(
			&r.AssetID, &r.PurchasePrice, &amount, &r.CommittedSOL,
			&r.RiskTier, &r.OpenedAt, &r.PeakPrice, &r.BuyRef,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan open position: %w", err)
		}
		r.AmountHeld = uint64(amount)
		recs = append(recs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: load open positions: %w", err)
	}
	return recs, nil
}

// ListTradesBefore returns trades created strictly before the cutoff, oldest
// first. Used by the archiver.
func (s *TradeStore) ListTradesBefore(ctx context.Context, before time.Time) ([]domain.TradeRecord, error) {
	query := `SELECT ` + tradeSelectCols + ` FROM trades WHERE created_at < $1 ORDER BY created_at ASC`
	rows, err := s.pool.Query(ctx, query, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trades before: %w", err)
	}
	defer rows.Close()

	recs, err := scanTradeRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan trades before: %w", err)
	}
	return recs, nil
}

// DeleteTradesBefore deletes trades older than the cutoff after they have
// been archived. Returns the number deleted.
func (s *TradeStore) DeleteTradesBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM trades WHERE created_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete trades before: %w", err)
	}
	return tag.RowsAffected(), nil
}
