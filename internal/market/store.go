package market

import (
	"fmt"
	"sync"
	"time"
)

// Store 是行情状态缓存：每个资产的最新价、K 线滑动窗口与指标快照。
// 写入按资产互斥；Snapshot 返回某一时刻的一致拷贝，决策周期内不受后续写入影响。
type Store struct {
	mu      sync.RWMutex
	max     int
	maxAge  time.Duration
	records map[string]*assetRecord
}

type assetRecord struct {
	mu       sync.Mutex
	price    float64
	priceAt  time.Time
	candles  []Candle
	windowAt time.Time
	ind      *IndicatorSnapshot
}

// View 是单个资产的一致性快照。Degraded 表示窗口超过 maxAge 未刷新，
// 引擎仍然可以在其上决策，但产出的 DecisionRecord 会被打上降级标记。
type View struct {
	Symbol     string
	Price      float64
	PriceAt    time.Time
	Candles    []Candle
	Indicators *IndicatorSnapshot
	WindowAt   time.Time
	Degraded   bool
}

func NewStore(maxCandles int, maxAge time.Duration) *Store {
	if maxCandles <= 0 {
		maxCandles = 500
	}
	return &Store{
		max:     maxCandles,
		maxAge:  maxAge,
		records: make(map[string]*assetRecord),
	}
}

func (s *Store) record(symbol string) *assetRecord {
	s.mu.RLock()
	rec, ok := s.records[symbol]
	s.mu.RUnlock()
	if ok {
		return rec
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok = s.records[symbol]; ok {
		return rec
	}
	rec = &assetRecord{}
	s.records[symbol] = rec
	return rec
}

// SetPrice 覆盖最新价。重复投递是幂等的：总是覆盖，从不追加。
func (s *Store) SetPrice(symbol string, price float64, ts time.Time) {
	if price <= 0 {
		return
	}
	rec := s.record(symbol)
	rec.mu.Lock()
	rec.price = price
	rec.priceAt = ts
	rec.mu.Unlock()
}

// ReplaceWindow 整体替换滑动窗口。时间戳校验失败时保留旧窗口并返回错误，
// 调用方记录告警后继续（fail-soft）。
func (s *Store) ReplaceWindow(symbol string, candles []Candle) error {
	if len(candles) == 0 {
		return fmt.Errorf("empty candle window for %s", symbol)
	}
	if err := ValidateWindow(candles); err != nil {
		return fmt.Errorf("%s: %w", symbol, err)
	}
	if len(candles) > s.max {
		candles = candles[len(candles)-s.max:]
	}
	cp := make([]Candle, len(candles))
	copy(cp, candles)

	rec := s.record(symbol)
	rec.mu.Lock()
	rec.candles = cp
	rec.windowAt = time.Now()
	rec.mu.Unlock()
	return nil
}

// Append 合并一根推送 K 线：同一 OpenTime 覆盖最后一根，更新者追加，乱序丢弃。
func (s *Store) Append(symbol string, c Candle) {
	rec := s.record(symbol)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	n := len(rec.candles)
	switch {
	case n == 0 || c.OpenTime > rec.candles[n-1].OpenTime:
		rec.candles = append(rec.candles, c)
		if len(rec.candles) > s.max {
			rec.candles = rec.candles[len(rec.candles)-s.max:]
		}
	case c.OpenTime == rec.candles[n-1].OpenTime:
		rec.candles[n-1] = c
	default:
		// out-of-order push, drop
		return
	}
	rec.windowAt = time.Now()
}

// SetIndicators 保存最新指标快照，整体替换。
func (s *Store) SetIndicators(symbol string, snap IndicatorSnapshot) {
	rec := s.record(symbol)
	rec.mu.Lock()
	rec.ind = &snap
	rec.mu.Unlock()
}

// Snapshot 返回资产的点时拷贝；资产从未出现过时返回 (View{}, false)。
func (s *Store) Snapshot(symbol string) (View, bool) {
	s.mu.RLock()
	rec, ok := s.records[symbol]
	s.mu.RUnlock()
	if !ok {
		return View{}, false
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()

	view := View{
		Symbol:   symbol,
		Price:    rec.price,
		PriceAt:  rec.priceAt,
		WindowAt: rec.windowAt,
	}
	if len(rec.candles) > 0 {
		view.Candles = make([]Candle, len(rec.candles))
		copy(view.Candles, rec.candles)
	}
	if rec.ind != nil {
		indCopy := *rec.ind
		view.Indicators = &indCopy
	}
	if s.maxAge > 0 {
		view.Degraded = rec.windowAt.IsZero() || time.Since(rec.windowAt) > s.maxAge
	}
	return view, true
}

func msToTime(ms int64) time.Time {
	if ms <= 0 {
		return time.Now()
	}
	return time.UnixMilli(ms)
}

// Symbols 返回当前已知的资产列表。
func (s *Store) Symbols() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.records))
	for sym := range s.records {
		out = append(out, sym)
	}
	return out
}
