package risk

import "sync"

// Portfolio 是跨资产的资金状态：计价货币余额 + 各资产持有量 + 峰值水位。
// PeakValue 单调不降，回撤 = 1 - 当前总值/峰值。
type Portfolio struct {
	mu        sync.Mutex
	quote     float64
	holdings  map[string]float64
	lastPrice map[string]float64
	initial   float64
	peak      float64
}

// PortfolioView 是对外暴露的只读快照。
type PortfolioView struct {
	Quote        float64            `json:"quote"`
	Holdings     map[string]float64 `json:"holdings"`
	InitialValue float64            `json:"initial_value"`
	PeakValue    float64            `json:"peak_value"`
}

func NewPortfolio(quote float64, holdings map[string]float64) *Portfolio {
	h := make(map[string]float64, len(holdings))
	for k, v := range holdings {
		h[k] = v
	}
	return &Portfolio{quote: quote, holdings: h, lastPrice: make(map[string]float64)}
}

// InitValue 用启动时的价格确定初始总值与峰值基线。
func (p *Portfolio) InitValue(prices map[string]float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	total := p.totalLocked(prices)
	p.initial = total
	if total > p.peak {
		p.peak = total
	}
}

// ApplyFill 按成交回报更新余额。买入扣计价货币加持仓，卖出反之。
// fee 为成交额比例费率。
func (p *Portfolio) ApplyFill(symbol string, isBuy bool, price, volume, fee float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	notional := price * volume
	if price > 0 {
		p.lastPrice[symbol] = price
	}
	if isBuy {
		p.quote -= notional * (1 + fee)
		p.holdings[symbol] += volume
	} else {
		p.quote += notional * (1 - fee)
		p.holdings[symbol] -= volume
		if p.holdings[symbol] < 0 {
			p.holdings[symbol] = 0
		}
	}
}

// Observe 在给定价格下计算总值，推进峰值水位并返回 (总值, 回撤)。
func (p *Portfolio) Observe(prices map[string]float64) (total, drawdown float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	total = p.totalLocked(prices)
	if total > p.peak {
		p.peak = total
	}
	if p.peak > 0 {
		drawdown = 1 - total/p.peak
	}
	return total, drawdown
}

// totalLocked 按给定价格估值，快照中缺价的资产用最近一次已知价。
func (p *Portfolio) totalLocked(prices map[string]float64) float64 {
	total := p.quote
	for sym, amount := range p.holdings {
		if amount <= 0 {
			continue
		}
		price, ok := prices[sym]
		if ok && price > 0 {
			p.lastPrice[sym] = price
		} else {
			price = p.lastPrice[sym]
		}
		total += amount * price
	}
	return total
}

// Quote 返回可用计价货币余额。
func (p *Portfolio) Quote() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.quote
}

// Holding 返回某资产持有量。
func (p *Portfolio) Holding(symbol string) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.holdings[symbol]
}

func (p *Portfolio) Snapshot() PortfolioView {
	p.mu.Lock()
	defer p.mu.Unlock()
	h := make(map[string]float64, len(p.holdings))
	for k, v := range p.holdings {
		h[k] = v
	}
	return PortfolioView{
		Quote:        p.quote,
		Holdings:     h,
		InitialValue: p.initial,
		PeakValue:    p.peak,
	}
}
