package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bahbah94/Orbex/internal/broadcast"
	"github.com/bahbah94/Orbex/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

type fakeTradeStore struct {
	inserted     []domain.Trade
	insertErr    error
	bars         []domain.TvBar
	barsWidth    int64
	lastBefore   time.Time
	listed       []domain.Trade
	listedSymbol string
}

func (f *fakeTradeStore) InsertBatch(_ context.Context, trades []domain.Trade) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	f.inserted = append(f.inserted, trades...)
	return nil
}

func (f *fakeTradeStore) GetLastTimestamp(context.Context) (time.Time, error) {
	return time.Time{}, nil
}

func (f *fakeTradeStore) ListBySymbol(_ context.Context, symbol string, _ domain.ListOpts) ([]domain.Trade, error) {
	f.listedSymbol = symbol
	return f.listed, nil
}

func (f *fakeTradeStore) ListBars(_ context.Context, _ string, bucketSeconds int64, _, _ time.Time) ([]domain.TvBar, error) {
	f.barsWidth = bucketSeconds
	return f.bars, nil
}

func (f *fakeTradeStore) LastTradeTimeBefore(context.Context, string, time.Time) (time.Time, error) {
	return f.lastBefore, nil
}

func (f *fakeTradeStore) ListBefore(context.Context, time.Time, int) ([]domain.Trade, error) {
	return nil, nil
}

func (f *fakeTradeStore) DeleteBefore(context.Context, time.Time) (int64, error) {
	return 0, nil
}

type fakeBus struct {
	mu        sync.Mutex
	published map[string][][]byte
	appended  map[string][][]byte
	streamed  []domain.StreamMessage
	subs      map[string]chan []byte
	pubErr    error
}

func newFakeBus() *fakeBus {
	return &fakeBus{
		published: make(map[string][][]byte),
		appended:  make(map[string][][]byte),
		subs:      make(map[string]chan []byte),
	}
}

func (f *fakeBus) Publish(_ context.Context, channel string, payload []byte) error {
	if f.pubErr != nil {
		return f.pubErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published[channel] = append(f.published[channel], payload)
	return nil
}

func (f *fakeBus) Subscribe(_ context.Context, channel string) (<-chan []byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan []byte, 16)
	f.subs[channel] = ch
	return ch, nil
}

func (f *fakeBus) StreamAppend(_ context.Context, stream string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.appended[stream] = append(f.appended[stream], payload)
	return nil
}

func (f *fakeBus) StreamRead(context.Context, string, string, int) ([]domain.StreamMessage, error) {
	return f.streamed, nil
}

func (f *fakeBus) countPublished(channel string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.published[channel])
}

func (f *fakeBus) countAppended(stream string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.appended[stream])
}

type fakeBookCache struct {
	mu    sync.Mutex
	snaps map[string]domain.OrderbookSnapshot
}

func newFakeBookCache() *fakeBookCache {
	return &fakeBookCache{snaps: make(map[string]domain.OrderbookSnapshot)}
}

func (f *fakeBookCache) SetSnapshot(_ context.Context, snap domain.OrderbookSnapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snaps[snap.Symbol] = snap
	return nil
}

func (f *fakeBookCache) GetSnapshot(_ context.Context, symbol string) (domain.OrderbookSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	snap, ok := f.snaps[symbol]
	if !ok {
		return domain.OrderbookSnapshot{}, domain.ErrNotFound
	}
	return snap, nil
}

func (f *fakeBookCache) has(symbol string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.snaps[symbol]
	return ok
}

func TestIngestTradesPublishesEachTrade(t *testing.T) {
	store := &fakeTradeStore{}
	bus := newFakeBus()
	svc := NewTradeService(store, bus, discardLogger())

	trades := []domain.Trade{
		{Symbol: "ETH/USDC", Price: decimal.New(2000, 0), BlockNumber: 1},
		{Symbol: "ETH/USDC", Price: decimal.New(2001, 0), BlockNumber: 2},
	}
	require.NoError(t, svc.IngestTrades(context.Background(), trades))

	assert.Len(t, store.inserted, 2)
	assert.Equal(t, 2, bus.countPublished(ChannelTrades))
}

func TestIngestTradesBusFailureIsNonFatal(t *testing.T) {
	store := &fakeTradeStore{}
	bus := newFakeBus()
	bus.pubErr = errors.New("redis down")
	svc := NewTradeService(store, bus, discardLogger())

	err := svc.IngestTrades(context.Background(), []domain.Trade{{Symbol: "ETH/USDC"}})
	require.NoError(t, err)
	assert.Len(t, store.inserted, 1)
}

func TestHistoryMapsResolutionToBucketWidth(t *testing.T) {
	store := &fakeTradeStore{bars: []domain.TvBar{{Time: 60, Close: 1}}}
	svc := NewTradeService(store, nil, discardLogger())

	bars, next, err := svc.History(context.Background(), "ETH/USDC", "60",
		time.Unix(0, 0), time.Unix(7200, 0))
	require.NoError(t, err)
	assert.Nil(t, next)
	assert.Len(t, bars, 1)
	assert.Equal(t, int64(3600), store.barsWidth)

	_, _, err = svc.History(context.Background(), "ETH/USDC", "13",
		time.Unix(0, 0), time.Unix(7200, 0))
	assert.Error(t, err)
}

func TestHistoryEmptyRangeReportsLastTradeTime(t *testing.T) {
	last := time.Unix(1_700_000_000, 0)
	store := &fakeTradeStore{lastBefore: last}
	svc := NewTradeService(store, nil, discardLogger())

	bars, next, err := svc.History(context.Background(), "ETH/USDC", "1",
		time.Unix(1_700_100_000, 0), time.Unix(1_700_200_000, 0))
	require.NoError(t, err)
	assert.Empty(t, bars)
	require.NotNil(t, next)
	assert.Equal(t, last.Unix(), *next)

	// No earlier trade at all: no nextTime hint either.
	store.lastBefore = time.Time{}
	_, next, err = svc.History(context.Background(), "ETH/USDC", "1",
		time.Unix(0, 0), time.Unix(60, 0))
	require.NoError(t, err)
	assert.Nil(t, next)
}

func TestMarketServiceGetAndSearch(t *testing.T) {
	svc := NewMarketService([]domain.Market{
		{Symbol: "ETH/USDC", Description: "Ether vs USD Coin"},
		{Symbol: "DOT/USDC", Description: "Polkadot vs USD Coin"},
	})

	m, err := svc.Get("ETH/USDC")
	require.NoError(t, err)
	assert.Equal(t, "ETH/USDC", m.Symbol)

	_, err = svc.Get("BTC/USDC")
	assert.ErrorIs(t, err, domain.ErrUnknownSymbol)

	assert.Len(t, svc.Search("", 0), 2)
	assert.Len(t, svc.Search("eth", 10), 1)
	assert.Len(t, svc.Search("usd coin", 1), 1)
	assert.Empty(t, svc.Search("sol", 10))
}

func TestCachedBookTruncatesDepth(t *testing.T) {
	cache := newFakeBookCache()
	require.NoError(t, cache.SetSnapshot(context.Background(), domain.OrderbookSnapshot{
		Symbol: "ETH/USDC",
		Bids: []domain.PriceLevel{
			{Price: decimal.New(3, 0)}, {Price: decimal.New(2, 0)}, {Price: decimal.New(1, 0)},
		},
		Asks: []domain.PriceLevel{{Price: decimal.New(4, 0)}},
	}))

	src := NewCachedBook(cache)
	snap, err := src.BookSnapshot(context.Background(), "ETH/USDC", 2)
	require.NoError(t, err)
	assert.Len(t, snap.Bids, 2)
	assert.Len(t, snap.Asks, 1)

	_, err = src.BookSnapshot(context.Background(), "BTC/USDC", 2)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStreamCandlesFiltersAndLimits(t *testing.T) {
	bus := newFakeBus()
	for i := 0; i < 5; i++ {
		payload, _ := json.Marshal(domain.CandleUpdate{
			Symbol:    "ETH/USDC",
			Timeframe: "1m",
			Bar:       domain.TvBar{Time: int64(60 * i)},
			IsClosed:  true,
		})
		bus.streamed = append(bus.streamed, domain.StreamMessage{ID: "x", Payload: payload})
	}
	other, _ := json.Marshal(domain.CandleUpdate{Symbol: "DOT/USDC", Timeframe: "1m", IsClosed: true})
	bus.streamed = append(bus.streamed, domain.StreamMessage{ID: "y", Payload: other})

	src := NewStreamCandles(bus)
	bars, err := src.RecentClosed(context.Background(), "ETH/USDC", "1m", 3)
	require.NoError(t, err)
	require.Len(t, bars, 3)
	assert.Equal(t, int64(120), bars[0].Time)
	assert.Equal(t, int64(240), bars[2].Time)

	// The stream only carries closed buckets, so a follower never reports
	// an open bar.
	_, ok, err := src.CurrentBar(context.Background(), "ETH/USDC", "1m")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMirrorCopiesUpdatesIntoRedis(t *testing.T) {
	books := broadcast.New[domain.OrderbookSnapshot](8)
	candles := broadcast.New[domain.CandleUpdate](8)
	cache := newFakeBookCache()
	bus := newFakeBus()

	m := NewMirror(books.Subscribe(), candles.Subscribe(), cache, bus, discardLogger())

	done := make(chan error, 1)
	go func() { done <- m.Run(context.Background()) }()

	books.Publish(domain.OrderbookSnapshot{Symbol: "ETH/USDC"})
	candles.Publish(domain.CandleUpdate{Symbol: "ETH/USDC", Timeframe: "1m", IsClosed: false})
	candles.Publish(domain.CandleUpdate{Symbol: "ETH/USDC", Timeframe: "1m", IsClosed: true})

	require.Eventually(t, func() bool {
		return cache.has("ETH/USDC") &&
			bus.countPublished(ChannelBook) == 1 &&
			bus.countPublished(ChannelCandles) == 2 &&
			bus.countAppended(StreamCandlesClosed) == 1
	}, time.Second, 5*time.Millisecond)

	books.Close()
	candles.Close()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("mirror did not stop after channels closed")
	}
}

func TestFollowerRepublishesLocally(t *testing.T) {
	bus := newFakeBus()
	books := broadcast.New[domain.OrderbookSnapshot](8)
	candles := broadcast.New[domain.CandleUpdate](8)
	bookSub := books.Subscribe()
	candleSub := candles.Subscribe()

	f := NewFollower(bus, books, candles, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- f.Run(ctx) }()

	require.Eventually(t, func() bool {
		bus.mu.Lock()
		defer bus.mu.Unlock()
		return bus.subs[ChannelBook] != nil && bus.subs[ChannelCandles] != nil
	}, time.Second, 5*time.Millisecond)

	bus.mu.Lock()
	bookCh, candleCh := bus.subs[ChannelBook], bus.subs[ChannelCandles]
	bus.mu.Unlock()

	snapPayload, _ := json.Marshal(domain.OrderbookSnapshot{Symbol: "ETH/USDC"})
	bookCh <- snapPayload
	candlePayload, _ := json.Marshal(domain.CandleUpdate{Symbol: "ETH/USDC", Timeframe: "5m"})
	candleCh <- candlePayload

	recvCtx, recvCancel := context.WithTimeout(context.Background(), time.Second)
	defer recvCancel()

	snap, err := bookSub.Recv(recvCtx)
	require.NoError(t, err)
	assert.Equal(t, "ETH/USDC", snap.Symbol)

	update, err := candleSub.Recv(recvCtx)
	require.NoError(t, err)
	assert.Equal(t, "5m", update.Timeframe)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("follower did not stop on cancel")
	}
}
