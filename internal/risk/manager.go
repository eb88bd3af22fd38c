package risk

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"sable/internal/logger"
)

var (
	// ErrPositionOpen 表示试图在已有持仓的资产上再开仓。
	// 这是状态机被破坏的信号，属于编程契约错误，调用方应当大声失败。
	ErrPositionOpen = errors.New("position already open")
	// ErrNotOpen 表示试图平掉一个不存在的仓位。
	ErrNotOpen = errors.New("position not open")
	// ErrHalted 表示回撤刹车已触发，本会话不再开新仓。
	ErrHalted = errors.New("trading halted by drawdown kill-switch")
)

// Limits 是风控阈值，均为 [0,1] 比例；<=0 表示对应规则关闭。
type Limits struct {
	StopLossPct           float64
	TakeProfitPct         float64
	TrailingStopPct       float64
	TrailingActivationPct float64
	MaxDrawdownPct        float64
}

// Manager 独占仓位状态的修改权：每资产互斥，组合级回撤检查持单独的锁。
type Manager struct {
	limits    Limits
	portfolio *Portfolio

	mu        sync.RWMutex
	positions map[string]*slot

	// 锁顺序固定为 m.mu -> slot.mu，持有 slot 锁时不得再取 m.mu
	tradeMu   sync.Mutex
	lastTrade map[string]time.Time

	halted  atomic.Bool
	onEvent func(Event)
}

type slot struct {
	mu  sync.Mutex
	pos Position
}

func NewManager(limits Limits, portfolio *Portfolio) *Manager {
	return &Manager{
		limits:    limits,
		portfolio: portfolio,
		positions: make(map[string]*slot),
		lastTrade: make(map[string]time.Time),
	}
}

// SetEventHandler 挂载仓位转换事件订阅者（追加事实，不影响状态机正确性）。
func (m *Manager) SetEventHandler(fn func(Event)) {
	m.onEvent = fn
}

// SetLimits 热更新风控阈值，已持仓位下个价格事件即按新阈值评估。
func (m *Manager) SetLimits(limits Limits) {
	m.mu.Lock()
	m.limits = limits
	m.mu.Unlock()
}

func (m *Manager) limitsSnapshot() Limits {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.limits
}

func (m *Manager) slot(symbol string) *slot {
	m.mu.RLock()
	s, ok := m.positions[symbol]
	m.mu.RUnlock()
	if ok {
		return s
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok = m.positions[symbol]; ok {
		return s
	}
	s = &slot{pos: Position{Symbol: symbol, State: StateFlat}}
	m.positions[symbol] = s
	return s
}

// OnPrice 在价格推进时更新追踪高点并评估平仓条件。
// 返回 nil 表示无需动作；返回的 intent 由引擎执行，执行确认前仓位保持 open。
// 评估顺序：止损 > 止盈 > 追踪止损。
func (m *Manager) OnPrice(symbol string, price float64, now time.Time) *CloseIntent {
	if price <= 0 {
		return nil
	}
	limits := m.limitsSnapshot()
	s := m.slot(symbol)
	s.mu.Lock()
	defer s.mu.Unlock()
	pos := &s.pos
	if pos.State != StateOpen {
		return nil
	}

	// 追踪高点只升不降
	if price > pos.TrailingHigh {
		pos.TrailingHigh = price
	}

	if limits.StopLossPct > 0 && price <= pos.EntryPrice*(1-limits.StopLossPct) {
		return &CloseIntent{Symbol: symbol, Reason: CloseStopLoss, Price: price, Volume: pos.Volume}
	}
	if limits.TakeProfitPct > 0 && price >= pos.EntryPrice*(1+limits.TakeProfitPct) {
		return &CloseIntent{Symbol: symbol, Reason: CloseTakeProfit, Price: price, Volume: pos.Volume}
	}
	if limits.TrailingStopPct > 0 {
		// 追踪止损只在高点较入场价抬升出最小余量后才武装，避免噪声瞬触
		armed := pos.TrailingHigh >= pos.EntryPrice*(1+limits.TrailingActivationPct)
		if armed && price <= pos.TrailingHigh*(1-limits.TrailingStopPct) {
			return &CloseIntent{Symbol: symbol, Reason: CloseTrailingStop, Price: price, Volume: pos.Volume}
		}
	}
	return nil
}

// Open 记录开仓转换。同一资产重复开仓违反不变式，返回 ErrPositionOpen。
func (m *Manager) Open(symbol string, price, volume float64, now time.Time) error {
	if m.halted.Load() {
		return ErrHalted
	}
	s := m.slot(symbol)
	s.mu.Lock()
	if s.pos.State == StateOpen {
		s.mu.Unlock()
		logger.Errorf("[risk] invariant violation: open on open position %s", symbol)
		return fmt.Errorf("%s: %w", symbol, ErrPositionOpen)
	}
	s.pos = Position{
		Symbol:       symbol,
		State:        StateOpen,
		EntryPrice:   price,
		EntryTime:    now,
		TrailingHigh: price,
		Volume:       volume,
	}
	s.mu.Unlock()

	m.recordTrade(symbol, now)
	m.emit(Event{Symbol: symbol, Kind: EventOpen, Price: price, Volume: volume, At: now})
	return nil
}

// ConfirmClose 在执行端确认成交后缩减仓位；成交量覆盖剩余持仓时落回 flat，
// 否则仓位保持 open，入场价与追踪高点不变。
// 执行被拒绝时不要调用它：仓位保持 open，下个周期重试。
func (m *Manager) ConfirmClose(symbol string, reason CloseReason, price, volume float64, now time.Time) error {
	s := m.slot(symbol)
	s.mu.Lock()
	if s.pos.State != StateOpen {
		s.mu.Unlock()
		logger.Errorf("[risk] invariant violation: close on flat position %s", symbol)
		return fmt.Errorf("%s: %w", symbol, ErrNotOpen)
	}
	if volume > 0 && volume < s.pos.Volume {
		s.pos.Volume -= volume
	} else {
		s.pos = Position{Symbol: symbol, State: StateFlat}
	}
	s.mu.Unlock()

	m.recordTrade(symbol, now)
	m.emit(Event{Symbol: symbol, Kind: EventClose, Reason: reason, Price: price, Volume: volume, At: now})
	return nil
}

// CheckDrawdown 做组合级回撤检查。持组合锁读取一致的总值，
// 触发阈值时返回全部持仓的强平 intent 并拉下刹车（本会话不再开仓）。
func (m *Manager) CheckDrawdown(prices map[string]float64, now time.Time) []CloseIntent {
	limits := m.limitsSnapshot()
	if limits.MaxDrawdownPct <= 0 || m.portfolio == nil {
		return nil
	}
	total, drawdown := m.portfolio.Observe(prices)
	if drawdown < limits.MaxDrawdownPct {
		return nil
	}

	var intents []CloseIntent
	m.mu.RLock()
	for sym, s := range m.positions {
		s.mu.Lock()
		if s.pos.State == StateOpen {
			intents = append(intents, CloseIntent{
				Symbol: sym,
				Reason: CloseDrawdown,
				Price:  prices[sym],
				Volume: s.pos.Volume,
			})
		}
		s.mu.Unlock()
	}
	m.mu.RUnlock()

	if len(intents) > 0 {
		m.halted.Store(true)
		logger.Auditf("[risk] max drawdown hit (%.1f%%, total=%.2f): force-closing %d position(s), halting trading",
			drawdown*100, total, len(intents))
	}
	return intents
}

// Halted 报告回撤刹车是否已触发。刹车是有意为之的停机，不是错误。
func (m *Manager) Halted() bool { return m.halted.Load() }

// Position 返回仓位快照。
func (m *Manager) Position(symbol string) Position {
	s := m.slot(symbol)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pos
}

// OpenPositions 返回全部 open 仓位快照。
func (m *Manager) OpenPositions() []Position {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Position
	for _, s := range m.positions {
		s.mu.Lock()
		if s.pos.State == StateOpen {
			out = append(out, s.pos)
		}
		s.mu.Unlock()
	}
	return out
}

// LastTrade 返回该资产最近一次成交时间，用于冷却判断。
func (m *Manager) LastTrade(symbol string) time.Time {
	m.tradeMu.Lock()
	defer m.tradeMu.Unlock()
	return m.lastTrade[symbol]
}

func (m *Manager) recordTrade(symbol string, now time.Time) {
	m.tradeMu.Lock()
	m.lastTrade[symbol] = now
	m.tradeMu.Unlock()
}

func (m *Manager) emit(evt Event) {
	if m.onEvent != nil {
		m.onEvent(evt)
	}
}
