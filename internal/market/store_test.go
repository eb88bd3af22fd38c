package market

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mkCandles(n int, startMs int64, stepMs int64) []Candle {
	out := make([]Candle, 0, n)
	for i := 0; i < n; i++ {
		open := startMs + int64(i)*stepMs
		out = append(out, Candle{
			OpenTime:  open,
			CloseTime: open + stepMs - 1,
			Open:      100,
			High:      110,
			Low:       90,
			Close:     105,
			Volume:    10,
		})
	}
	return out
}

func TestReplaceWindowRejectsOutOfOrder(t *testing.T) {
	s := NewStore(100, 0)
	good := mkCandles(5, 1000, 60_000)
	require.NoError(t, s.ReplaceWindow("BTCUSDT", good))

	bad := mkCandles(5, 1000, 60_000)
	bad[2].OpenTime = bad[1].OpenTime // duplicate timestamp
	err := s.ReplaceWindow("BTCUSDT", bad)
	require.Error(t, err)

	// fail-soft：旧窗口必须保留
	view, ok := s.Snapshot("BTCUSDT")
	require.True(t, ok)
	assert.Len(t, view.Candles, 5)
	assert.Equal(t, good[4].OpenTime, view.Candles[4].OpenTime)
}

func TestReplaceWindowTrimsToMax(t *testing.T) {
	s := NewStore(3, 0)
	require.NoError(t, s.ReplaceWindow("BTCUSDT", mkCandles(10, 1000, 60_000)))

	view, _ := s.Snapshot("BTCUSDT")
	require.Len(t, view.Candles, 3)
	// 保留的是最新的三根
	assert.Equal(t, int64(1000+7*60_000), view.Candles[0].OpenTime)
}

func TestAppendMergeSemantics(t *testing.T) {
	s := NewStore(100, 0)
	require.NoError(t, s.ReplaceWindow("BTCUSDT", mkCandles(3, 1000, 60_000)))

	t.Run("same open time replaces last", func(t *testing.T) {
		c := Candle{OpenTime: 1000 + 2*60_000, Close: 999}
		s.Append("BTCUSDT", c)
		view, _ := s.Snapshot("BTCUSDT")
		require.Len(t, view.Candles, 3)
		assert.Equal(t, 999.0, view.Candles[2].Close)
	})

	t.Run("newer open time appends", func(t *testing.T) {
		c := Candle{OpenTime: 1000 + 3*60_000, Close: 111}
		s.Append("BTCUSDT", c)
		view, _ := s.Snapshot("BTCUSDT")
		require.Len(t, view.Candles, 4)
		assert.Equal(t, 111.0, view.Candles[3].Close)
	})

	t.Run("older open time dropped", func(t *testing.T) {
		c := Candle{OpenTime: 1000, Close: 777}
		s.Append("BTCUSDT", c)
		view, _ := s.Snapshot("BTCUSDT")
		require.Len(t, view.Candles, 4)
		assert.NotEqual(t, 777.0, view.Candles[0].Close)
	})
}

func TestSnapshotIsolation(t *testing.T) {
	s := NewStore(100, 0)
	require.NoError(t, s.ReplaceWindow("BTCUSDT", mkCandles(3, 1000, 60_000)))
	s.SetIndicators("BTCUSDT", IndicatorSnapshot{RSI: Val(42)})

	view, ok := s.Snapshot("BTCUSDT")
	require.True(t, ok)

	// 快照之后的写入不应影响已取出的视图
	s.Append("BTCUSDT", Candle{OpenTime: 1000 + 3*60_000, Close: 1})
	s.SetIndicators("BTCUSDT", IndicatorSnapshot{RSI: Val(99)})

	assert.Len(t, view.Candles, 3)
	assert.Equal(t, 42.0, view.Indicators.RSI.V)

	// 篡改快照切片也不应写回 store
	view.Candles[0].Close = -1
	fresh, _ := s.Snapshot("BTCUSDT")
	assert.NotEqual(t, -1.0, fresh.Candles[0].Close)
}

func TestSetPriceOverwrites(t *testing.T) {
	s := NewStore(100, 0)
	now := time.Now()
	s.SetPrice("BTCUSDT", 50000, now)
	s.SetPrice("BTCUSDT", 50001, now.Add(time.Second))
	s.SetPrice("BTCUSDT", 0, now.Add(2*time.Second)) // invalid, ignored

	view, ok := s.Snapshot("BTCUSDT")
	require.True(t, ok)
	assert.Equal(t, 50001.0, view.Price)
}

func TestSnapshotUnknownSymbol(t *testing.T) {
	s := NewStore(100, 0)
	_, ok := s.Snapshot("NOPE")
	assert.False(t, ok)
}

func TestDegradedWhenWindowStale(t *testing.T) {
	s := NewStore(100, 50*time.Millisecond)
	require.NoError(t, s.ReplaceWindow("BTCUSDT", mkCandles(3, 1000, 60_000)))

	view, _ := s.Snapshot("BTCUSDT")
	assert.False(t, view.Degraded)

	time.Sleep(80 * time.Millisecond)
	view, _ = s.Snapshot("BTCUSDT")
	assert.True(t, view.Degraded, "窗口超过 maxAge 未刷新应打上降级标记")
}

func TestDegradedDisabledWithoutMaxAge(t *testing.T) {
	s := NewStore(100, 0)
	require.NoError(t, s.ReplaceWindow("BTCUSDT", mkCandles(3, 1000, 60_000)))
	view, _ := s.Snapshot("BTCUSDT")
	assert.False(t, view.Degraded)
}

func TestValidateWindow(t *testing.T) {
	assert.NoError(t, ValidateWindow(nil))
	assert.NoError(t, ValidateWindow(mkCandles(5, 0, 60_000)))

	gap := mkCandles(5, 0, 60_000)
	gap = append(gap[:2], gap[3:]...) // 缺口允许
	assert.NoError(t, ValidateWindow(gap))

	dup := mkCandles(3, 0, 60_000)
	dup[2].OpenTime = dup[1].OpenTime
	assert.Error(t, ValidateWindow(dup))
}
