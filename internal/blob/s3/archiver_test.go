package s3blob

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/sniperbot/internal/domain"
)

type fakeBlobWriter struct {
	key         string
	data        []byte
	contentType string
	err         error
	writes      int
}

func (f *fakeBlobWriter) Write(_ context.Context, key string, data []byte, contentType string) error {
	f.writes++
	if f.err != nil {
		return f.err
	}
	f.key = key
	f.data = data
	f.contentType = contentType
	return nil
}

type fakeArchiveStore struct {
	trades    []domain.TradeRecord
	listErr   error
	deleteErr error
	deleted   int
}

func (f *fakeArchiveStore) ListTradesBefore(context.Context, time.Time) ([]domain.TradeRecord, error) {
	return f.trades, f.listErr
}

func (f *fakeArchiveStore) DeleteTradesBefore(context.Context, time.Time) (int64, error) {
	if f.deleteErr != nil {
		return 0, f.deleteErr
	}
	f.deleted++
	return int64(len(f.trades)), nil
}

func archiveFixture() (*Archiver, *fakeBlobWriter, *fakeArchiveStore) {
	writer := &fakeBlobWriter{}
	store := &fakeArchiveStore{
		trades: []domain.TradeRecord{
			{ID: "t1", Kind: domain.TradeKindBuy, AssetID: "mintA", SOLAmount: 0.1},
			{ID: "t2", Kind: domain.TradeKindSell, AssetID: "mintA", SOLAmount: 0.15},
		},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewArchiver(writer, store, 90, logger), writer, store
}

func TestArchiveOnceUploadsJSONLAndPrunes(t *testing.T) {
	a, writer, store := archiveFixture()

	n, err := a.ArchiveOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	assert.Regexp(t, `^archive/trades/\d{4}-\d{2}-\d{2}T\d{6}Z\.jsonl$`, writer.key)
	assert.Equal(t, "application/x-ndjson", writer.contentType)
	assert.Equal(t, 1, store.deleted)

	// One JSON document per line.
	var ids []string
	sc := bufio.NewScanner(bytes.NewReader(writer.data))
	for sc.Scan() {
		var rec domain.TradeRecord
		require.NoError(t, json.Unmarshal(sc.Bytes(), &rec))
		ids = append(ids, rec.ID)
	}
	assert.Equal(t, []string{"t1", "t2"}, ids)
}

func TestArchiveOnceNothingToDo(t *testing.T) {
	a, writer, store := archiveFixture()
	store.trades = nil

	n, err := a.ArchiveOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Zero(t, writer.writes)
	assert.Zero(t, store.deleted)
}

func TestArchiveOnceFailedUploadKeepsRows(t *testing.T) {
	a, writer, store := archiveFixture()
	writer.err = errors.New("bucket unavailable")

	_, err := a.ArchiveOnce(context.Background())
	require.Error(t, err)
	assert.Zero(t, store.deleted, "rows are only pruned after a successful upload")
}

func TestArchiveOnceFailedPruneStillSucceeds(t *testing.T) {
	a, _, store := archiveFixture()
	store.deleteErr = errors.New("deadlock detected")

	n, err := a.ArchiveOnce(context.Background())
	require.NoError(t, err, "the archive is uploaded; pruning retries next run")
	assert.Equal(t, int64(2), n)
}
