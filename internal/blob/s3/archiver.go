package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/sniperbot/internal/domain"
)

// TradeArchiveStore is the narrow store surface the archiver needs: reading
// trades older than a cutoff and pruning them once the archive is uploaded.
type TradeArchiveStore interface {
	ListTradesBefore(ctx context.Context, before time.Time) ([]domain.TradeRecord, error)
	DeleteTradesBefore(ctx context.Context, before time.Time) (int64, error)
}

// Archiver moves trade history older than the retention window out of the
// primary store and into object storage as JSONL, one file per run.
type Archiver struct {
	writer    domain.BlobWriter
	trades    TradeArchiveStore
	retention time.Duration
	logger    *slog.Logger
}

// NewArchiver creates an Archiver. retentionDays bounds how much history the
// primary store keeps.
func NewArchiver(writer domain.BlobWriter, trades TradeArchiveStore, retentionDays int, logger *slog.Logger) *Archiver {
	return &Archiver{
		writer:    writer,
		trades:    trades,
		retention: time.Duration(retentionDays) * 24 * time.Hour,
		logger:    logger.With(slog.String("component", "archiver")),
	}
}

// ArchiveOnce uploads every trade older than the retention cutoff and then
// prunes the archived rows. Pruning only runs after a successful upload, so
// a failed upload leaves the primary store intact. Returns the number of
// trades archived.
func (a *Archiver) ArchiveOnce(ctx context.Context) (int64, error) {
	before := time.Now().UTC().Add(-a.retention)

	trades, err := a.trades.ListTradesBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive query: %w", err)
	}
	if len(trades) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(trades)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive marshal: %w", err)
	}

	key := archiveKey(before)
	if err := a.writer.Write(ctx, key, buf, "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive upload: %w", err)
	}

	deleted, err := a.trades.DeleteTradesBefore(ctx, before)
	if err != nil {
		// The archive is uploaded; the rows will be retried next run.
		a.logger.WarnContext(ctx, "archive prune failed",
			slog.String("key", key), slog.String("error", err.Error()))
	}

	a.logger.InfoContext(ctx, "trades archived",
		slog.String("key", key),
		slog.Int("archived", len(trades)),
		slog.Int64("pruned", deleted),
	)
	return int64(len(trades)), nil
}

// Run repeats ArchiveOnce on the given interval until ctx is cancelled.
func (a *Archiver) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := a.ArchiveOnce(ctx); err != nil {
				a.logger.WarnContext(ctx, "archive run failed",
					slog.String("error", err.Error()))
			}
		}
	}
}

// archiveKey names each batch by its cutoff so successive runs never
// overwrite an earlier upload.
func archiveKey(before time.Time) string {
	return fmt.Sprintf("archive/trades/%s.jsonl", before.Format("2006-01-02T150405Z"))
}

// marshalJSONL serializes records as newline-delimited JSON.
func marshalJSONL(trades []domain.TradeRecord) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, t := range trades {
		if err := enc.Encode(t); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}
