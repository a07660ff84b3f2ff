package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/bahbah94/Orbex/internal/domain"
)

type fakeWriter struct {
	objects   map[string][]byte
	multipart []string
}

func newFakeWriter() *fakeWriter {
	return &fakeWriter{objects: make(map[string][]byte)}
}

func (f *fakeWriter) Put(_ context.Context, path string, data io.Reader, _ string) error {
	buf, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	f.objects[path] = buf
	return nil
}

func (f *fakeWriter) PutMultipart(_ context.Context, path string, data io.Reader, _ int64) error {
	buf, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	f.objects[path] = buf
	f.multipart = append(f.multipart, path)
	return nil
}

type fakeReader struct {
	objects map[string][]byte
	missing bool
}

func (f *fakeReader) Get(_ context.Context, path string) (io.ReadCloser, error) {
	buf, ok := f.objects[path]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(buf)), nil
}

func (f *fakeReader) List(context.Context, string) ([]domain.BlobInfo, error) {
	return nil, nil
}

func (f *fakeReader) Exists(_ context.Context, path string) (bool, error) {
	if f.missing {
		return false, nil
	}
	_, ok := f.objects[path]
	return ok, nil
}

type fakeArchiveStore struct {
	trades      []domain.Trade
	listedAt    time.Time
	deletedAt   time.Time
	deleteCalls int
}

func (f *fakeArchiveStore) ListBefore(_ context.Context, before time.Time, _ int) ([]domain.Trade, error) {
	f.listedAt = before
	var out []domain.Trade
	for _, t := range f.trades {
		if t.ExecutedAt.Before(before) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeArchiveStore) DeleteBefore(_ context.Context, before time.Time) (int64, error) {
	f.deletedAt = before
	f.deleteCalls++
	var n int64
	for _, t := range f.trades {
		if t.ExecutedAt.Before(before) {
			n++
		}
	}
	return n, nil
}

func archiveTrade(id int64, executedAt time.Time) domain.Trade {
	return domain.Trade{
		ID:          id,
		Symbol:      "ETH/USDC",
		Price:       decimal.NewFromInt(1850),
		Quantity:    decimal.NewFromInt(1),
		BlockNumber: uint64(id),
		EventIndex:  0,
		ExecutedAt:  executedAt,
	}
}

func TestArchiveTradesGroupsByMonth(t *testing.T) {
	store := &fakeArchiveStore{trades: []domain.Trade{
		archiveTrade(1, time.Date(2025, 3, 5, 10, 0, 0, 0, time.UTC)),
		archiveTrade(2, time.Date(2025, 3, 20, 11, 0, 0, 0, time.UTC)),
		archiveTrade(3, time.Date(2025, 4, 2, 9, 0, 0, 0, time.UTC)),
	}}
	writer := newFakeWriter()
	reader := &fakeReader{objects: writer.objects}
	arch := NewArchiver(writer, reader, store, "", false)

	count, err := arch.ArchiveTrades(context.Background(),
		time.Date(2025, 5, 10, 3, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.EqualValues(t, 3, count)

	require.Contains(t, writer.objects, "archive/trades/2025-03.jsonl")
	require.Contains(t, writer.objects, "archive/trades/2025-04.jsonl")
	require.Len(t, writer.objects, 2)

	lines := bytes.Split(bytes.TrimSpace(writer.objects["archive/trades/2025-03.jsonl"]), []byte("\n"))
	require.Len(t, lines, 2)
	var got domain.Trade
	require.NoError(t, json.Unmarshal(lines[0], &got))
	require.EqualValues(t, 1, got.ID)
	require.Equal(t, "ETH/USDC", got.Symbol)
}

func TestArchiveTradesFloorsCutoffToMonth(t *testing.T) {
	// A trade inside the cutoff month must not be archived, even though it
	// is older than the cutoff instant.
	store := &fakeArchiveStore{trades: []domain.Trade{
		archiveTrade(1, time.Date(2025, 5, 2, 0, 0, 0, 0, time.UTC)),
	}}
	writer := newFakeWriter()
	reader := &fakeReader{objects: writer.objects}
	arch := NewArchiver(writer, reader, store, "", true)

	count, err := arch.ArchiveTrades(context.Background(),
		time.Date(2025, 5, 10, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Zero(t, count)
	require.Equal(t, time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC), store.listedAt)
	require.Empty(t, writer.objects)
	require.Zero(t, store.deleteCalls)
}

func TestArchiveTradesPrunesAfterVerify(t *testing.T) {
	store := &fakeArchiveStore{trades: []domain.Trade{
		archiveTrade(1, time.Date(2025, 3, 5, 10, 0, 0, 0, time.UTC)),
	}}
	writer := newFakeWriter()
	reader := &fakeReader{objects: writer.objects}
	arch := NewArchiver(writer, reader, store, "cold", true)

	count, err := arch.ArchiveTrades(context.Background(),
		time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.EqualValues(t, 1, count)
	require.Contains(t, writer.objects, "cold/trades/2025-03.jsonl")
	require.Equal(t, 1, store.deleteCalls)
	require.Equal(t, time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC), store.deletedAt)
}

func TestArchiveTradesSkipsPruneWhenVerifyFails(t *testing.T) {
	store := &fakeArchiveStore{trades: []domain.Trade{
		archiveTrade(1, time.Date(2025, 3, 5, 10, 0, 0, 0, time.UTC)),
	}}
	writer := newFakeWriter()
	reader := &fakeReader{objects: writer.objects, missing: true}
	arch := NewArchiver(writer, reader, store, "", true)

	_, err := arch.ArchiveTrades(context.Background(),
		time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC))
	require.ErrorContains(t, err, "missing after upload")
	require.Zero(t, store.deleteCalls)
}
