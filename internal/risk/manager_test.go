package risk

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLimits() Limits {
	return Limits{
		StopLossPct:           0.05,
		TakeProfitPct:         0.10,
		TrailingStopPct:       0.05,
		TrailingActivationPct: 0.005,
		MaxDrawdownPct:        0.15,
	}
}

func TestStopLossSequence(t *testing.T) {
	m := NewManager(testLimits(), nil)
	now := time.Now()
	require.NoError(t, m.Open("BTCUSDT", 100, 1, now))

	assert.Nil(t, m.OnPrice("BTCUSDT", 98, now))

	intent := m.OnPrice("BTCUSDT", 94, now)
	require.NotNil(t, intent)
	assert.Equal(t, CloseStopLoss, intent.Reason)
	assert.Equal(t, 94.0, intent.Price)
	assert.Equal(t, 1.0, intent.Volume)
}

func TestTakeProfit(t *testing.T) {
	m := NewManager(testLimits(), nil)
	now := time.Now()
	require.NoError(t, m.Open("BTCUSDT", 100, 1, now))

	intent := m.OnPrice("BTCUSDT", 110, now)
	require.NotNil(t, intent)
	assert.Equal(t, CloseTakeProfit, intent.Reason)
}

func TestTrailingStopSequence(t *testing.T) {
	limits := testLimits()
	limits.TakeProfitPct = 0 // 关闭止盈，让价格一路上行
	m := NewManager(limits, nil)
	now := time.Now()
	require.NoError(t, m.Open("BTCUSDT", 100, 1, now))

	assert.Nil(t, m.OnPrice("BTCUSDT", 110, now))
	assert.Nil(t, m.OnPrice("BTCUSDT", 120, now))

	// 高点 120，回落 5% 到 114 触发追踪止损
	intent := m.OnPrice("BTCUSDT", 113, now)
	require.NotNil(t, intent)
	assert.Equal(t, CloseTrailingStop, intent.Reason)
}

func TestTrailingNotArmedBeforeActivation(t *testing.T) {
	limits := Limits{TrailingStopPct: 0.05, TrailingActivationPct: 0.02}
	m := NewManager(limits, nil)
	now := time.Now()
	require.NoError(t, m.Open("BTCUSDT", 100, 1, now))

	// 高点从未抬升出 2% 余量：回落不触发
	assert.Nil(t, m.OnPrice("BTCUSDT", 101, now))
	assert.Nil(t, m.OnPrice("BTCUSDT", 95, now))
}

func TestTrailingHighMonotonic(t *testing.T) {
	limits := Limits{TrailingStopPct: 0.10, TrailingActivationPct: 0.005}
	m := NewManager(limits, nil)
	now := time.Now()
	require.NoError(t, m.Open("BTCUSDT", 100, 1, now))

	m.OnPrice("BTCUSDT", 120, now)
	m.OnPrice("BTCUSDT", 115, now)
	assert.Equal(t, 120.0, m.Position("BTCUSDT").TrailingHigh)

	m.OnPrice("BTCUSDT", 125, now)
	assert.Equal(t, 125.0, m.Position("BTCUSDT").TrailingHigh)
}

func TestStopLossBeatsTrailing(t *testing.T) {
	limits := Limits{StopLossPct: 0.05, TrailingStopPct: 0.01, TrailingActivationPct: 0}
	m := NewManager(limits, nil)
	now := time.Now()
	require.NoError(t, m.Open("BTCUSDT", 100, 1, now))

	intent := m.OnPrice("BTCUSDT", 90, now)
	require.NotNil(t, intent)
	assert.Equal(t, CloseStopLoss, intent.Reason)
}

func TestZeroPctDisablesRule(t *testing.T) {
	m := NewManager(Limits{}, nil)
	now := time.Now()
	require.NoError(t, m.Open("BTCUSDT", 100, 1, now))

	assert.Nil(t, m.OnPrice("BTCUSDT", 1, now))
	assert.Nil(t, m.OnPrice("BTCUSDT", 10000, now))
}

func TestDoubleOpenRejected(t *testing.T) {
	m := NewManager(testLimits(), nil)
	now := time.Now()
	require.NoError(t, m.Open("BTCUSDT", 100, 1, now))

	err := m.Open("BTCUSDT", 101, 1, now)
	require.ErrorIs(t, err, ErrPositionOpen)

	// 原仓位不受影响
	pos := m.Position("BTCUSDT")
	assert.Equal(t, StateOpen, pos.State)
	assert.Equal(t, 100.0, pos.EntryPrice)
}

func TestCloseFlatRejected(t *testing.T) {
	m := NewManager(testLimits(), nil)
	err := m.ConfirmClose("BTCUSDT", CloseSignal, 100, 1, time.Now())
	assert.ErrorIs(t, err, ErrNotOpen)
}

func TestOpenCloseEmitsEvents(t *testing.T) {
	m := NewManager(testLimits(), nil)
	var events []Event
	m.SetEventHandler(func(e Event) { events = append(events, e) })
	now := time.Now()

	require.NoError(t, m.Open("BTCUSDT", 100, 2, now))
	require.NoError(t, m.ConfirmClose("BTCUSDT", CloseTakeProfit, 110, 2, now.Add(time.Minute)))

	require.Len(t, events, 2)
	assert.Equal(t, EventOpen, events[0].Kind)
	assert.Equal(t, EventClose, events[1].Kind)
	assert.Equal(t, CloseTakeProfit, events[1].Reason)
	assert.Equal(t, StateFlat, m.Position("BTCUSDT").State)
}

func TestCloseFailureKeepsPositionOpen(t *testing.T) {
	m := NewManager(testLimits(), nil)
	now := time.Now()
	require.NoError(t, m.Open("BTCUSDT", 100, 1, now))

	// 执行被拒绝时不调用 ConfirmClose：条件仍成立，下次价格事件再次产生 intent
	intent := m.OnPrice("BTCUSDT", 94, now)
	require.NotNil(t, intent)
	assert.Equal(t, StateOpen, m.Position("BTCUSDT").State)

	again := m.OnPrice("BTCUSDT", 94, now.Add(time.Minute))
	require.NotNil(t, again)
	assert.Equal(t, CloseStopLoss, again.Reason)
}

func TestDrawdownForceCloseAndHalt(t *testing.T) {
	p := NewPortfolio(0, map[string]float64{"BTCUSDT": 10})
	p.InitValue(map[string]float64{"BTCUSDT": 100}) // 初始总值 1000
	m := NewManager(testLimits(), p)
	now := time.Now()
	require.NoError(t, m.Open("BTCUSDT", 100, 10, now))

	// 回撤 10%：未触发
	assert.Empty(t, m.CheckDrawdown(map[string]float64{"BTCUSDT": 90}, now))
	assert.False(t, m.Halted())

	// 回撤 16%：强平 + 刹车
	intents := m.CheckDrawdown(map[string]float64{"BTCUSDT": 84}, now)
	require.Len(t, intents, 1)
	assert.Equal(t, CloseDrawdown, intents[0].Reason)
	assert.Equal(t, 84.0, intents[0].Price)
	assert.True(t, m.Halted())

	// 刹车后禁止开新仓
	err := m.Open("ETHUSDT", 100, 1, now)
	assert.ErrorIs(t, err, ErrHalted)
}

func TestDrawdownDisabledWithoutPortfolio(t *testing.T) {
	m := NewManager(testLimits(), nil)
	assert.Nil(t, m.CheckDrawdown(map[string]float64{"BTCUSDT": 1}, time.Now()))
}

func TestSetLimitsHotReload(t *testing.T) {
	m := NewManager(Limits{StopLossPct: 0.05}, nil)
	now := time.Now()
	require.NoError(t, m.Open("BTCUSDT", 100, 1, now))

	assert.Nil(t, m.OnPrice("BTCUSDT", 97, now))

	m.SetLimits(Limits{StopLossPct: 0.02})
	intent := m.OnPrice("BTCUSDT", 97, now)
	require.NotNil(t, intent)
	assert.Equal(t, CloseStopLoss, intent.Reason)
}

func TestLastTradeTracksCooldown(t *testing.T) {
	m := NewManager(testLimits(), nil)
	assert.True(t, m.LastTrade("BTCUSDT").IsZero())

	now := time.Now()
	require.NoError(t, m.Open("BTCUSDT", 100, 1, now))
	assert.Equal(t, now, m.LastTrade("BTCUSDT"))

	later := now.Add(time.Hour)
	require.NoError(t, m.ConfirmClose("BTCUSDT", CloseSignal, 110, 1, later))
	assert.Equal(t, later, m.LastTrade("BTCUSDT"))
}

func TestConfirmClosePartialReducesVolume(t *testing.T) {
	m := NewManager(testLimits(), nil)
	now := time.Now()
	require.NoError(t, m.Open("BTCUSDT", 100, 2, now))

	require.NoError(t, m.ConfirmClose("BTCUSDT", CloseSignal, 105, 0.5, now))
	pos := m.Position("BTCUSDT")
	assert.Equal(t, StateOpen, pos.State)
	assert.Equal(t, 1.5, pos.Volume)
	assert.Equal(t, 100.0, pos.EntryPrice, "部分减仓不改入场价")
	assert.Equal(t, 100.0, pos.TrailingHigh)

	// 剩余量全部成交后落回 flat
	require.NoError(t, m.ConfirmClose("BTCUSDT", CloseSignal, 105, 1.5, now))
	assert.Equal(t, StateFlat, m.Position("BTCUSDT").State)
}

func TestConcurrentTransitionsAndSnapshots(t *testing.T) {
	p := NewPortfolio(1000, nil)
	p.InitValue(nil)
	limits := testLimits()
	limits.MaxDrawdownPct = 0.99
	m := NewManager(limits, p)

	// 开平循环与全量快照读并发跑：两边拿锁的顺序不同，卡住即死锁回归
	done := make(chan struct{})
	go func() {
		defer close(done)
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			now := time.Now()
			for i := 0; i < 2000; i++ {
				_ = m.Open("BTCUSDT", 100, 1, now)
				_ = m.ConfirmClose("BTCUSDT", CloseSignal, 101, 1, now)
			}
		}()
		go func() {
			defer wg.Done()
			prices := map[string]float64{"BTCUSDT": 100}
			for i := 0; i < 2000; i++ {
				m.OpenPositions()
				m.LastTrade("BTCUSDT")
				m.CheckDrawdown(prices, time.Now())
			}
		}()
		wg.Wait()
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("open/close 与快照读相互等待未完成")
	}
}

func TestOpenPositionsSnapshot(t *testing.T) {
	m := NewManager(testLimits(), nil)
	now := time.Now()
	require.NoError(t, m.Open("BTCUSDT", 100, 1, now))
	require.NoError(t, m.Open("ETHUSDT", 50, 2, now))
	require.NoError(t, m.ConfirmClose("ETHUSDT", CloseSignal, 55, 2, now))

	open := m.OpenPositions()
	require.Len(t, open, 1)
	assert.Equal(t, "BTCUSDT", open[0].Symbol)
}
