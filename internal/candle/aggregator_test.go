package candle

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bahbah94/Orbex/internal/domain"
)

const sym = "ETH/USDC"

// collect returns an aggregator plus a pointer to every update it publishes.
func collect(historyCap int) (*Aggregator, *[]domain.CandleUpdate) {
	var updates []domain.CandleUpdate
	agg := New(historyCap, func(u domain.CandleUpdate) {
		updates = append(updates, u)
	})
	return agg, &updates
}

func ofTimeframe(updates []domain.CandleUpdate, label string) []domain.CandleUpdate {
	var out []domain.CandleUpdate
	for _, u := range updates {
		if u.Timeframe == label {
			out = append(out, u)
		}
	}
	return out
}

func trade(agg *Aggregator, price, qty int64, ts int64) {
	agg.ProcessTrade(sym, decimal.NewFromInt(price), decimal.NewFromInt(qty), ts)
}

func TestFirstTradeOpensBucketAtFloor(t *testing.T) {
	agg, updates := collect(0)

	trade(agg, 2000, 1, 100)

	oneMin := ofTimeframe(*updates, "1m")
	require.Len(t, oneMin, 1)
	assert.False(t, oneMin[0].IsClosed)
	assert.Equal(t, int64(60), oneMin[0].Bar.Time, "bucket start floors to width")
	assert.Equal(t, 2000.0, oneMin[0].Bar.Open)
	assert.Equal(t, 1.0, oneMin[0].Bar.Volume)

	day := ofTimeframe(*updates, "1D")
	require.Len(t, day, 1)
	assert.Equal(t, int64(0), day[0].Bar.Time)
}

func TestEveryTimeframeGetsOneUpdate(t *testing.T) {
	agg, updates := collect(0)

	trade(agg, 2000, 1, 86500)

	require.Len(t, *updates, len(Timeframes))
	wantBuckets := map[string]int64{
		"1m": 86460, "5m": 86400, "15m": 86400,
		"1h": 86400, "4h": 86400, "1D": 86400,
	}
	for _, u := range *updates {
		assert.False(t, u.IsClosed)
		assert.Equal(t, wantBuckets[u.Timeframe], u.Bar.Time, "timeframe %s", u.Timeframe)
	}
}

func TestSameBucketUpdatesInPlace(t *testing.T) {
	agg, updates := collect(0)

	trade(agg, 100, 1, 10)
	trade(agg, 105, 2, 20)
	trade(agg, 98, 3, 30)

	oneMin := ofTimeframe(*updates, "1m")
	require.Len(t, oneMin, 3, "one update per trade, no rollover")
	for _, u := range oneMin {
		assert.False(t, u.IsClosed)
		assert.Equal(t, int64(0), u.Bar.Time)
	}

	final := oneMin[2].Bar
	assert.Equal(t, 100.0, final.Open)
	assert.Equal(t, 105.0, final.High)
	assert.Equal(t, 98.0, final.Low)
	assert.Equal(t, 98.0, final.Close)
	assert.Equal(t, 6.0, final.Volume)

	cur, ok := agg.CurrentBar(sym, "1m")
	require.True(t, ok)
	assert.Equal(t, final, cur)
}

func TestRolloverEmitsCloseThenOpen(t *testing.T) {
	agg, updates := collect(0)

	trade(agg, 2000, 1, 100) // opens [60,120)
	*updates = (*updates)[:0]
	trade(agg, 2010, 2, 140) // rolls into [120,180)

	oneMin := ofTimeframe(*updates, "1m")
	require.Len(t, oneMin, 2, "rollover yields close then open")

	closed, opened := oneMin[0], oneMin[1]
	assert.True(t, closed.IsClosed)
	assert.Equal(t, int64(60), closed.Bar.Time)
	assert.Equal(t, 2000.0, closed.Bar.Close)

	assert.False(t, opened.IsClosed)
	assert.Equal(t, int64(120), opened.Bar.Time)
	assert.Equal(t, 2010.0, opened.Bar.Open)
	assert.Equal(t, 2010.0, opened.Bar.Low)
	assert.Equal(t, 2.0, opened.Bar.Volume)

	// Wider timeframes stayed inside their bucket: one in-place update each.
	fiveMin := ofTimeframe(*updates, "5m")
	require.Len(t, fiveMin, 1)
	assert.False(t, fiveMin[0].IsClosed)
	assert.Equal(t, 3.0, fiveMin[0].Bar.Volume)
}

func TestClosedBarsRetainedOldestFirst(t *testing.T) {
	agg, _ := collect(0)

	for i := int64(0); i < 4; i++ {
		trade(agg, 100+i, 1, i*60)
	}

	bars := agg.RecentBars(sym, "1m", 0)
	require.Len(t, bars, 3, "three rollovers closed three bars")
	assert.Equal(t, int64(0), bars[0].Time)
	assert.Equal(t, int64(60), bars[1].Time)
	assert.Equal(t, int64(120), bars[2].Time)
	assert.Equal(t, 102.0, bars[2].Close)
}

func TestClosedHistoryIsBounded(t *testing.T) {
	agg, _ := collect(3)

	for i := int64(0); i < 10; i++ {
		trade(agg, 100, 1, i*60)
	}

	bars := agg.RecentBars(sym, "1m", 0)
	require.Len(t, bars, 3)
	// Newest closed bar is the 9th bucket's predecessor.
	assert.Equal(t, int64(8*60), bars[2].Time)
	assert.Equal(t, int64(6*60), bars[0].Time)

	limited := agg.RecentBars(sym, "1m", 2)
	require.Len(t, limited, 2)
	assert.Equal(t, int64(7*60), limited[0].Time)
}

func TestCurrentBarUnknownPair(t *testing.T) {
	agg, _ := collect(0)
	_, ok := agg.CurrentBar("BTC/USDC", "1m")
	assert.False(t, ok)
	assert.Empty(t, agg.RecentBars("BTC/USDC", "1m", 0))
}

func TestFromResolution(t *testing.T) {
	tests := []struct {
		res   string
		label string
		ok    bool
	}{
		{"1", "1m", true},
		{"5", "5m", true},
		{"15", "15m", true},
		{"60", "1h", true},
		{"240", "4h", true},
		{"1D", "1D", true},
		{"D", "1D", true},
		{"30", "", false},
		{"1W", "", false},
	}
	for _, tt := range tests {
		tf, ok := FromResolution(tt.res)
		assert.Equal(t, tt.ok, ok, "resolution %q", tt.res)
		if tt.ok {
			assert.Equal(t, tt.label, tf.Label)
		}
	}
}

func TestTimeframeWidths(t *testing.T) {
	want := map[string]int64{
		"1m": 60, "5m": 300, "15m": 900, "1h": 3600, "4h": 14400, "1D": 86400,
	}
	require.Len(t, Timeframes, len(want))
	for _, tf := range Timeframes {
		assert.Equal(t, want[tf.Label], tf.Width, tf.Label)
	}
}
