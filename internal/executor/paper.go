package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"sable/internal/logger"
)

// Paper 是模拟执行端：订单按参考价立即成交，费用按成交额比例扣除。
// 它自己记账余额，余额不足时像真实交易所一样拒单。
type Paper struct {
	feeRate decimal.Decimal
	clock   func() time.Time

	mu       sync.Mutex
	quote    decimal.Decimal
	holdings map[string]decimal.Decimal
}

// NewPaper 创建模拟执行端。quote 是初始计价货币余额，feeRate 为比例费率。
func NewPaper(quote float64, holdings map[string]float64, feeRate float64) *Paper {
	h := make(map[string]decimal.Decimal, len(holdings))
	for k, v := range holdings {
		h[k] = decimal.NewFromFloat(v)
	}
	return &Paper{
		feeRate:  decimal.NewFromFloat(feeRate),
		clock:    time.Now,
		quote:    decimal.NewFromFloat(quote),
		holdings: h,
	}
}

func (p *Paper) Submit(ctx context.Context, order Order) (Fill, error) {
	if err := ctx.Err(); err != nil {
		return Fill{}, err
	}
	if order.Price <= 0 || order.Volume <= 0 {
		return Fill{}, fmt.Errorf("%w: bad price/volume %f/%f", ErrRejected, order.Price, order.Volume)
	}

	price := decimal.NewFromFloat(order.Price)
	volume := decimal.NewFromFloat(order.Volume)
	notional := price.Mul(volume)
	fee := notional.Mul(p.feeRate)

	p.mu.Lock()
	defer p.mu.Unlock()

	switch order.Side {
	case SideBuy:
		cost := notional.Add(fee)
		if cost.GreaterThan(p.quote) {
			return Fill{}, fmt.Errorf("%w: insufficient quote balance (need %s, have %s)",
				ErrRejected, cost.StringFixed(4), p.quote.StringFixed(4))
		}
		p.quote = p.quote.Sub(cost)
		p.holdings[order.Symbol] = p.holdings[order.Symbol].Add(volume)
	case SideSell:
		held := p.holdings[order.Symbol]
		if volume.GreaterThan(held) {
			return Fill{}, fmt.Errorf("%w: insufficient %s holding (need %s, have %s)",
				ErrRejected, order.Symbol, volume.String(), held.String())
		}
		p.quote = p.quote.Add(notional.Sub(fee))
		p.holdings[order.Symbol] = held.Sub(volume)
	default:
		return Fill{}, fmt.Errorf("%w: unknown side %q", ErrRejected, order.Side)
	}

	feeF, _ := fee.Float64()
	fill := Fill{
		Symbol:   order.Symbol,
		Side:     order.Side,
		Price:    order.Price,
		Volume:   order.Volume,
		Fee:      feeF,
		FilledAt: p.clock(),
	}
	logger.Infof("[paper] filled %s %s %.6f @ %.4f (fee=%.6f, reason=%s)",
		order.Side, order.Symbol, order.Volume, order.Price, feeF, order.Reason)
	return fill, nil
}

// Balances 返回当前模拟账户余额，用于状态接口展示。
func (p *Paper) Balances() (quote float64, holdings map[string]float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	quote, _ = p.quote.Float64()
	holdings = make(map[string]float64, len(p.holdings))
	for k, v := range p.holdings {
		holdings[k], _ = v.Float64()
	}
	return quote, holdings
}
