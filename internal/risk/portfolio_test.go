package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPortfolioApplyFill(t *testing.T) {
	p := NewPortfolio(10000, nil)

	p.ApplyFill("BTCUSDT", true, 100, 10, 0.003)
	assert.InDelta(t, 10000-1000*1.003, p.Quote(), 1e-9)
	assert.Equal(t, 10.0, p.Holding("BTCUSDT"))

	p.ApplyFill("BTCUSDT", false, 110, 10, 0.003)
	assert.InDelta(t, 10000-1000*1.003+1100*0.997, p.Quote(), 1e-9)
	assert.Equal(t, 0.0, p.Holding("BTCUSDT"))
}

func TestPortfolioSellNeverGoesNegative(t *testing.T) {
	p := NewPortfolio(0, map[string]float64{"BTCUSDT": 1})
	p.ApplyFill("BTCUSDT", false, 100, 5, 0)
	assert.Equal(t, 0.0, p.Holding("BTCUSDT"))
}

func TestPortfolioPeakMonotonic(t *testing.T) {
	p := NewPortfolio(0, map[string]float64{"BTCUSDT": 1})
	p.InitValue(map[string]float64{"BTCUSDT": 100})

	_, dd := p.Observe(map[string]float64{"BTCUSDT": 120})
	assert.Equal(t, 0.0, dd)
	assert.Equal(t, 120.0, p.Snapshot().PeakValue)

	// 回落后峰值不降
	_, dd = p.Observe(map[string]float64{"BTCUSDT": 90})
	assert.InDelta(t, 0.25, dd, 1e-9)
	assert.Equal(t, 120.0, p.Snapshot().PeakValue)

	// 新高推进峰值
	_, dd = p.Observe(map[string]float64{"BTCUSDT": 130})
	assert.Equal(t, 0.0, dd)
	assert.Equal(t, 130.0, p.Snapshot().PeakValue)
}

func TestPortfolioMissingPriceUsesLastKnown(t *testing.T) {
	p := NewPortfolio(0, map[string]float64{"BTCUSDT": 1})
	p.InitValue(map[string]float64{"BTCUSDT": 100})

	// 快照缺价：按最近一次已知价估值，回撤不被虚增
	total, dd := p.Observe(map[string]float64{})
	assert.Equal(t, 100.0, total)
	assert.Equal(t, 0.0, dd)

	// 价格恢复后照常推进
	_, dd = p.Observe(map[string]float64{"BTCUSDT": 80})
	assert.InDelta(t, 0.20, dd, 1e-9)
}

func TestPortfolioUnpricedHoldingValuedZero(t *testing.T) {
	// 从未见过价格的持仓不参与估值
	p := NewPortfolio(50, map[string]float64{"ETHUSDT": 3})
	total, _ := p.Observe(nil)
	assert.Equal(t, 50.0, total)
}

func TestPortfolioSnapshotIsolation(t *testing.T) {
	p := NewPortfolio(100, map[string]float64{"BTCUSDT": 1})
	view := p.Snapshot()
	view.Holdings["BTCUSDT"] = 999

	assert.Equal(t, 1.0, p.Holding("BTCUSDT"))
}
