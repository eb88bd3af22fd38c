package sizing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testParams() Params {
	return Params{
		MinVolume: 0.001,
		MaxVolume: 0.01,
		Threshold: 0.35,
		FeeRate:   0.003,
		Precision: 6,
	}
}

func TestSizeBelowThreshold(t *testing.T) {
	_, ok := Size(0.2, testParams(), 1e9, 50000, true)
	assert.False(t, ok)

	_, ok = Size(-0.2, testParams(), 1e9, 50000, true)
	assert.False(t, ok)
}

func TestSizeLinearInterpolation(t *testing.T) {
	p := testParams()

	vol, ok := Size(0.35, p, 1e9, 50000, true)
	require.True(t, ok)
	assert.InDelta(t, 0.001, vol, 1e-9)

	vol, ok = Size(1.0, p, 1e9, 50000, true)
	require.True(t, ok)
	assert.InDelta(t, 0.01, vol, 1e-9)

	// 中点：frac = (0.675-0.35)/0.65 = 0.5
	vol, ok = Size(0.675, p, 1e9, 50000, true)
	require.True(t, ok)
	assert.InDelta(t, 0.0055, vol, 1e-9)
}

func TestSizeUsesAbsoluteConfidence(t *testing.T) {
	p := testParams()
	buyVol, ok := Size(0.675, p, 1e9, 50000, true)
	require.True(t, ok)
	sellVol, ok := Size(-0.675, p, 1e9, 50000, false)
	require.True(t, ok)
	assert.Equal(t, buyVol, sellVol)
}

func TestSizeClampedByAffordability(t *testing.T) {
	p := testParams()

	// 只有 100 计价货币：50000 一枚最多可买 100/(50000*1.003)
	vol, ok := Size(1.0, p, 100, 50000, true)
	require.True(t, ok)
	assert.Less(t, vol, 0.0021)
	assert.Greater(t, vol, 0.0019)

	// 余额为 0 时收缩到 0，不交易
	_, ok = Size(1.0, p, 0, 50000, true)
	assert.False(t, ok)
}

func TestSizeSellClampedByHolding(t *testing.T) {
	p := testParams()
	vol, ok := Size(1.0, p, 0.004, 50000, false)
	require.True(t, ok)
	assert.InDelta(t, 0.004, vol, 1e-9)

	_, ok = Size(1.0, p, 0, 50000, false)
	assert.False(t, ok)
}

func TestForSymbolOverrides(t *testing.T) {
	p := testParams()
	p.PerSymbol = map[string]Range{
		"BTC/USDT": {MinVolume: 0.002, MaxVolume: 0.005},
		"SOL/USDT": {MaxVolume: 5}, // 只覆盖上限，下限沿用全局
	}

	btc := p.ForSymbol("BTC/USDT")
	assert.Equal(t, 0.002, btc.MinVolume)
	assert.Equal(t, 0.005, btc.MaxVolume)

	sol := p.ForSymbol("SOL/USDT")
	assert.Equal(t, 0.001, sol.MinVolume)
	assert.Equal(t, 5.0, sol.MaxVolume)

	// 未覆盖的资产拿到全局区间
	eth := p.ForSymbol("ETH/USDT")
	assert.Equal(t, p.MinVolume, eth.MinVolume)
	assert.Equal(t, p.MaxVolume, eth.MaxVolume)

	vol, ok := Size(1.0, btc, 1e9, 50000, true)
	require.True(t, ok)
	assert.InDelta(t, 0.005, vol, 1e-9)
}

func TestSizePrecisionRoundsDown(t *testing.T) {
	p := testParams()
	p.Precision = 3
	vol, ok := Size(0.675, p, 1e9, 50000, true)
	require.True(t, ok)
	assert.InDelta(t, 0.005, vol, 1e-9)
}
