package decision

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sable/internal/market"
)

func testParams() Params {
	return Params{
		ConfidenceThreshold: 0.35,
		Weights: Weights{
			RSI:      0.2,
			MACD:     0.4,
			ADX:      0.1,
			OBV:      0.1,
			Momentum: 0.1,
			Band:     0.1,
		},
		Thresholds: Thresholds{
			RSIOversold:   30,
			RSIOverbought: 70,
			ADXTrend:      25,
			OBV:           1_000_000,
			BandLow:       0.2,
			BandHigh:      0.8,
		},
		Sources: map[string]SourceParams{
			OriginDirection: {BoostWeight: 0.3, MinConfidence: 0.6},
		},
	}
}

// 全指标买向时应触发 buy：rsi 超卖 + macd 上穿 + adx 趋势 + 动量为正。
func bullishView() market.View {
	return market.View{
		Symbol: "BTCUSDT",
		Price:  50000,
		Indicators: &market.IndicatorSnapshot{
			RSI:      market.Val(25),
			MACDHist: market.Val(12.5),
			ADX:      market.Val(30),
			OBV:      market.Val(2_000_000),
			Momentum: market.Val(150),
			BandPos:  market.Val(0.1),
		},
	}
}

func bearishView() market.View {
	return market.View{
		Symbol: "BTCUSDT",
		Price:  50000,
		Indicators: &market.IndicatorSnapshot{
			RSI:      market.Val(80),
			MACDHist: market.Val(-8.2),
			ADX:      market.Val(30),
			OBV:      market.Val(-2_000_000),
			Momentum: market.Val(-120),
			BandPos:  market.Val(0.95),
		},
	}
}

func TestEvaluateBuyOnBullishIndicators(t *testing.T) {
	e := NewEngine(testParams())
	now := time.Now()

	rec := e.Evaluate(bullishView(), nil, time.Time{}, now)
	assert.Equal(t, ActionBuy, rec.Action)
	// 0.2 + 0.4 + 0.1 + 0.1 + 0.1 + 0.1 = 1.0
	assert.InDelta(t, 1.0, rec.Confidence, 1e-9)
	require.Len(t, rec.Signals, 1)
	assert.Equal(t, OriginIndicator, rec.Signals[0].Origin)
}

func TestEvaluateSellOnBearishIndicators(t *testing.T) {
	e := NewEngine(testParams())

	rec := e.Evaluate(bearishView(), nil, time.Time{}, time.Now())
	assert.Equal(t, ActionSell, rec.Action)
	assert.InDelta(t, -1.0, rec.Confidence, 1e-9)
}

func TestEvaluateHoldBelowThreshold(t *testing.T) {
	e := NewEngine(testParams())
	// 平淡盘面：只有动量贡献 0.1，低于 0.35 阈值
	view := market.View{
		Symbol: "ETHUSDT",
		Indicators: &market.IndicatorSnapshot{
			RSI:      market.Val(50),
			MACDHist: market.Val(0),
			Momentum: market.Val(5),
		},
	}

	rec := e.Evaluate(view, nil, time.Time{}, time.Now())
	assert.Equal(t, ActionHold, rec.Action)
	assert.Equal(t, "confidence below threshold", rec.Reason)
	assert.InDelta(t, 0.1, rec.Confidence, 1e-9)
}

func TestEvaluateHoldWithoutIndicators(t *testing.T) {
	e := NewEngine(testParams())
	rec := e.Evaluate(market.View{Symbol: "BTCUSDT"}, nil, time.Time{}, time.Now())
	assert.Equal(t, ActionHold, rec.Action)
	assert.Equal(t, "no indicators", rec.Reason)
	assert.Empty(t, rec.Signals)
}

func TestEvaluateDegradedFlagPropagates(t *testing.T) {
	e := NewEngine(testParams())
	view := bullishView()
	view.Degraded = true

	rec := e.Evaluate(view, nil, time.Time{}, time.Now())
	assert.True(t, rec.Degraded)
	assert.Equal(t, ActionBuy, rec.Action)
}

func TestPredictorBoostAgreement(t *testing.T) {
	e := NewEngine(testParams())
	view := market.View{
		Symbol: "BTCUSDT",
		Indicators: &market.IndicatorSnapshot{
			MACDHist: market.Val(3.0),
			Momentum: market.Val(10),
		},
	}
	// 基础 0.4 + 0.1 = 0.5
	preds := []SourceResult{{
		Origin:     OriginDirection,
		Prediction: Prediction{Direction: ActionBuy, Confidence: 0.9},
	}}

	rec := e.Evaluate(view, preds, time.Time{}, time.Now())
	// boost = (0.9-0.5)*0.3 = 0.12
	assert.InDelta(t, 0.62, rec.Confidence, 1e-9)
	assert.Equal(t, ActionBuy, rec.Action)
	require.Len(t, rec.Signals, 2)
	assert.InDelta(t, 0.12, rec.Signals[1].Contribute, 1e-9)
}

func TestPredictorBoostDisagreementSubtracts(t *testing.T) {
	e := NewEngine(testParams())
	view := market.View{
		Symbol: "BTCUSDT",
		Indicators: &market.IndicatorSnapshot{
			MACDHist: market.Val(3.0),
			Momentum: market.Val(10),
		},
	}
	preds := []SourceResult{{
		Origin:     OriginDirection,
		Prediction: Prediction{Direction: ActionSell, Confidence: 0.9},
	}}

	rec := e.Evaluate(view, preds, time.Time{}, time.Now())
	assert.InDelta(t, 0.38, rec.Confidence, 1e-9)
}

func TestPredictorBoostSellSideSign(t *testing.T) {
	e := NewEngine(testParams())
	view := market.View{
		Symbol: "BTCUSDT",
		Indicators: &market.IndicatorSnapshot{
			MACDHist: market.Val(-3.0),
			Momentum: market.Val(-10),
		},
	}
	// 基础 -0.5；同向（sell）增强应把置信度推得更负
	preds := []SourceResult{{
		Origin:     OriginDirection,
		Prediction: Prediction{Direction: ActionSell, Confidence: 0.9},
	}}

	rec := e.Evaluate(view, preds, time.Time{}, time.Now())
	assert.InDelta(t, -0.62, rec.Confidence, 1e-9)
	assert.Equal(t, ActionSell, rec.Action)
}

func TestPredictorBelowMinConfidenceIgnored(t *testing.T) {
	e := NewEngine(testParams())
	view := market.View{
		Symbol: "BTCUSDT",
		Indicators: &market.IndicatorSnapshot{
			MACDHist: market.Val(3.0),
			Momentum: market.Val(10),
		},
	}
	preds := []SourceResult{{
		Origin:     OriginDirection,
		Prediction: Prediction{Direction: ActionBuy, Confidence: 0.55},
	}}

	rec := e.Evaluate(view, preds, time.Time{}, time.Now())
	assert.InDelta(t, 0.5, rec.Confidence, 1e-9)
	require.Len(t, rec.Signals, 1, "低置信度预测不应出现在信号列表")
}

func TestUnknownOriginIgnored(t *testing.T) {
	e := NewEngine(testParams())
	preds := []SourceResult{{
		Origin:     "mystery",
		Prediction: Prediction{Direction: ActionBuy, Confidence: 0.99},
	}}

	rec := e.Evaluate(bullishView(), preds, time.Time{}, time.Now())
	require.Len(t, rec.Signals, 1)
}

func TestProfitabilityFloorVeto(t *testing.T) {
	p := testParams()
	p.ProfitabilityFloor = 0.5
	p.Sources[OriginProfitability] = SourceParams{BoostWeight: 0.3, MinConfidence: 0.6}
	e := NewEngine(p)

	preds := []SourceResult{{
		Origin:     OriginProfitability,
		Prediction: Prediction{Direction: ActionBuy, Confidence: 0.3},
	}}
	rec := e.Evaluate(bullishView(), preds, time.Time{}, time.Now())
	assert.Equal(t, ActionHold, rec.Action)
	assert.Contains(t, rec.Reason, "below floor")
}

func TestAdvisoryVetoHold(t *testing.T) {
	p := testParams()
	p.AdvisoryFinalAuthority = true
	p.Sources[OriginAdvisory] = SourceParams{BoostWeight: 0.25, MinConfidence: 0.5}
	e := NewEngine(p)

	preds := []SourceResult{{
		Origin:     OriginAdvisory,
		Prediction: Prediction{Direction: ActionHold, Confidence: 0.9},
	}}
	rec := e.Evaluate(bullishView(), preds, time.Time{}, time.Now())
	assert.Equal(t, ActionHold, rec.Action)
	assert.Equal(t, "advisory veto: hold", rec.Reason)
}

func TestAdvisoryVetoContradiction(t *testing.T) {
	p := testParams()
	p.AdvisoryFinalAuthority = true
	p.Sources[OriginAdvisory] = SourceParams{BoostWeight: 0.25, MinConfidence: 0.5}
	e := NewEngine(p)

	preds := []SourceResult{{
		Origin:     OriginAdvisory,
		Prediction: Prediction{Direction: ActionSell, Confidence: 0.9},
	}}
	rec := e.Evaluate(bullishView(), preds, time.Time{}, time.Now())
	assert.Equal(t, ActionHold, rec.Action)
	assert.Contains(t, rec.Reason, "advisory veto")
}

func TestAdvisoryAbsentNoVeto(t *testing.T) {
	p := testParams()
	p.AdvisoryFinalAuthority = true
	p.Sources[OriginAdvisory] = SourceParams{BoostWeight: 0.25, MinConfidence: 0.5}
	e := NewEngine(p)

	// 顾问超时/不可用时不出现在 preds 中：退化为纯指标口径
	rec := e.Evaluate(bullishView(), nil, time.Time{}, time.Now())
	assert.Equal(t, ActionBuy, rec.Action)
}

func TestAdvisoryFinalAuthorityNotWeighted(t *testing.T) {
	p := testParams()
	p.AdvisoryFinalAuthority = true
	p.Sources[OriginAdvisory] = SourceParams{BoostWeight: 0.25, MinConfidence: 0.5}
	e := NewEngine(p)

	preds := []SourceResult{{
		Origin:     OriginAdvisory,
		Prediction: Prediction{Direction: ActionBuy, Confidence: 0.99},
	}}
	rec := e.Evaluate(bullishView(), preds, time.Time{}, time.Now())
	assert.Equal(t, ActionBuy, rec.Action)
	assert.InDelta(t, 1.0, rec.Confidence, 1e-9, "final-authority 顾问不应参与加权")
}

func TestCooldownBlocksTrade(t *testing.T) {
	p := testParams()
	p.Cooldown = 5 * time.Minute
	e := NewEngine(p)
	now := time.Now()

	rec := e.Evaluate(bullishView(), nil, now.Add(-time.Minute), now)
	assert.Equal(t, ActionHold, rec.Action)
	assert.Contains(t, rec.Reason, "cooldown")

	rec = e.Evaluate(bullishView(), nil, now.Add(-6*time.Minute), now)
	assert.Equal(t, ActionBuy, rec.Action)
}

func TestResolveTieSellWins(t *testing.T) {
	assert.Equal(t, ActionSell, resolveTie(true, true))
	assert.Equal(t, ActionBuy, resolveTie(true, false))
	assert.Equal(t, ActionSell, resolveTie(false, true))
	assert.Equal(t, ActionHold, resolveTie(false, false))
}

func TestRecordHasUniqueID(t *testing.T) {
	e := NewEngine(testParams())
	a := e.Evaluate(bullishView(), nil, time.Time{}, time.Now())
	b := e.Evaluate(bullishView(), nil, time.Time{}, time.Now())
	assert.NotEmpty(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID)
}
