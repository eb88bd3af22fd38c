package decision

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"sable/internal/logger"
	"sable/internal/market"
)

// Weights 是各指标族在基础置信度中的权重，启动时校验总和为 1。
type Weights struct {
	RSI      float64
	MACD     float64
	ADX      float64
	OBV      float64
	Momentum float64
	Band     float64
}

// Thresholds 是指标的触发阈值。
type Thresholds struct {
	RSIOversold   float64 // 低于此值视为超卖（买向贡献）
	RSIOverbought float64 // 高于此值视为超买（卖向贡献）
	ADXTrend      float64 // 高于此值才认为趋势可交易
	OBV           float64 // |OBV| 超过此值才计入量能贡献
	BandLow       float64 // 带内位置低于此值视为触及下轨
	BandHigh      float64 // 带内位置高于此值视为触及上轨
}

// SourceParams 是单个辅助信号源的融合参数。
type SourceParams struct {
	BoostWeight   float64
	MinConfidence float64
}

// Params 汇总融合引擎的全部可调参数，启动时构造后只读。
type Params struct {
	Baseline            float64
	ConfidenceThreshold float64
	Cooldown            time.Duration
	Weights             Weights
	Thresholds          Thresholds
	Sources             map[string]SourceParams

	AdvisoryOrigin         string
	AdvisoryFinalAuthority bool

	ProfitabilityOrigin string
	ProfitabilityFloor  float64
}

// Engine 按周期融合指标置信度与辅助信号，输出一条 Record。
// 引擎本身无持久状态，同样的输入永远产生同样的决策。
type Engine struct {
	params Params
}

func NewEngine(params Params) *Engine {
	if params.Sources == nil {
		params.Sources = map[string]SourceParams{}
	}
	if params.AdvisoryOrigin == "" {
		params.AdvisoryOrigin = OriginAdvisory
	}
	if params.ProfitabilityOrigin == "" {
		params.ProfitabilityOrigin = OriginProfitability
	}
	return &Engine{params: params}
}

// Evaluate 对单个资产完成一次 Idle -> Scoring -> Decided 的融合周期。
// preds 中缺席的信号源视为不存在；lastTrade 用于冷却判断。
func (e *Engine) Evaluate(view market.View, preds []SourceResult, lastTrade, now time.Time) Record {
	rec := Record{
		ID:        uuid.NewString(),
		Symbol:    view.Symbol,
		Action:    ActionHold,
		Timestamp: now,
		Degraded:  view.Degraded,
	}
	ind := view.Indicators
	if ind == nil {
		rec.Reason = "no indicators"
		return rec
	}

	confidence, indSignal := e.scoreIndicators(ind)
	implied := impliedDirection(confidence, ind)
	rec.Signals = append(rec.Signals, indSignal)

	for _, p := range preds {
		src, ok := e.params.Sources[p.Origin]
		if !ok {
			continue
		}
		if p.Prediction.Confidence < src.MinConfidence {
			// 低置信度的预测按缺席处理，而不是按 0 处理
			continue
		}
		if e.params.AdvisoryFinalAuthority && p.Origin == e.params.AdvisoryOrigin {
			// final-authority 模式下顾问信号不参与加权，只行使否决权
			continue
		}
		boost := boostFor(p.Prediction, implied, src.BoostWeight)
		confidence += boost
		rec.Signals = append(rec.Signals, Signal{
			Origin:     p.Origin,
			Direction:  p.Prediction.Direction,
			Strength:   p.Prediction.Confidence,
			Rationale:  p.Prediction.Rationale,
			Contribute: boost,
		})
	}
	rec.Confidence = clamp(confidence, -1, 1)

	// 盈利预测低于下限时直接观望
	if e.params.ProfitabilityFloor > 0 {
		if p, ok := findPred(preds, e.params.ProfitabilityOrigin); ok && p.Confidence < e.params.ProfitabilityFloor {
			rec.Reason = fmt.Sprintf("profitability %.2f below floor %.2f", p.Confidence, e.params.ProfitabilityFloor)
			return rec
		}
	}

	buyOK := rec.Confidence >= e.params.ConfidenceThreshold && implied == ActionBuy
	sellOK := -rec.Confidence >= e.params.ConfidenceThreshold && implied == ActionSell
	action := resolveTie(buyOK, sellOK)
	if action == ActionHold {
		rec.Reason = "confidence below threshold"
		return rec
	}

	// 顾问最终否决：HOLD 或与指标方向相悖时本周期动作归零
	if e.params.AdvisoryFinalAuthority {
		if adv, ok := findPredResult(preds, e.params.AdvisoryOrigin); ok {
			switch {
			case adv.Prediction.Direction == ActionHold:
				rec.Reason = "advisory veto: hold"
				logger.Infof("[fusion] %s advisory veto (hold), confidence was %.2f", view.Symbol, rec.Confidence)
				rec.Signals = append(rec.Signals, vetoSignal(adv))
				return rec
			case adv.Prediction.Direction != action:
				rec.Reason = fmt.Sprintf("advisory veto: %s contradicts %s", adv.Prediction.Direction, action)
				logger.Infof("[fusion] %s advisory veto (%s vs %s)", view.Symbol, adv.Prediction.Direction, action)
				rec.Signals = append(rec.Signals, vetoSignal(adv))
				return rec
			default:
				rec.Signals = append(rec.Signals, Signal{
					Origin:    adv.Origin,
					Direction: adv.Prediction.Direction,
					Strength:  adv.Prediction.Confidence,
					Rationale: adv.Prediction.Rationale,
				})
			}
		}
		// 顾问缺席（超时/不可用）按不存在处理：决策退化为纯指标口径
	}

	if e.params.Cooldown > 0 && !lastTrade.IsZero() && now.Sub(lastTrade) < e.params.Cooldown {
		rec.Reason = fmt.Sprintf("cooldown %.0fs remaining", (e.params.Cooldown - now.Sub(lastTrade)).Seconds())
		return rec
	}

	rec.Action = action
	return rec
}

// scoreIndicators 计算指标族的带符号基础置信度：正为买向，负为卖向。
func (e *Engine) scoreIndicators(ind *market.IndicatorSnapshot) (float64, Signal) {
	w := e.params.Weights
	t := e.params.Thresholds
	conf := e.params.Baseline

	if ind.RSI.Valid {
		switch {
		case ind.RSI.V <= t.RSIOversold:
			conf += w.RSI
		case ind.RSI.V >= t.RSIOverbought:
			conf -= w.RSI
		}
	}
	if ind.MACDHist.Valid {
		if ind.MACDHist.V > 0 {
			conf += w.MACD
		} else if ind.MACDHist.V < 0 {
			conf -= w.MACD
		}
	}
	// ADX 无方向，只在趋势可交易时放大 MACD 方向
	if ind.ADX.Valid && ind.MACDHist.Valid && ind.ADX.V >= t.ADXTrend {
		if ind.MACDHist.V > 0 {
			conf += w.ADX
		} else if ind.MACDHist.V < 0 {
			conf -= w.ADX
		}
	}
	if ind.OBV.Valid {
		if ind.OBV.V >= t.OBV {
			conf += w.OBV
		} else if ind.OBV.V <= -t.OBV {
			conf -= w.OBV
		}
	}
	if ind.Momentum.Valid {
		if ind.Momentum.V > 0 {
			conf += w.Momentum
		} else if ind.Momentum.V < 0 {
			conf -= w.Momentum
		}
	}
	if ind.BandPos.Valid {
		switch {
		case ind.BandPos.V <= t.BandLow:
			conf += w.Band
		case ind.BandPos.V >= t.BandHigh:
			conf -= w.Band
		}
	}

	sig := Signal{
		Origin:     OriginIndicator,
		Direction:  directionOf(conf),
		Strength:   math.Abs(conf),
		Contribute: conf,
		Rationale:  indicatorRationale(ind),
	}
	return conf, sig
}

// impliedDirection 以动量符号为首要方向线索，动量缺失时退回累计置信度符号。
func impliedDirection(conf float64, ind *market.IndicatorSnapshot) Action {
	if ind.Momentum.Valid && ind.Momentum.V != 0 {
		if ind.Momentum.V > 0 {
			return ActionBuy
		}
		return ActionSell
	}
	return directionOf(conf)
}

// boostFor 实现辅助信号的加减分：同向加 (conf-0.5)*w，反向减，HOLD 不加不减。
func boostFor(p Prediction, implied Action, weight float64) float64 {
	if p.Direction == ActionHold || implied == ActionHold {
		return 0
	}
	delta := (p.Confidence - 0.5) * weight
	if p.Direction != implied {
		delta = -delta
	}
	if implied == ActionSell {
		// 卖向的"同向增强"应把置信度推得更负
		delta = -delta
	}
	return delta
}

// resolveTie 固定卖出优先：买卖条件同时成立时选择保全本金的一侧。
func resolveTie(buyOK, sellOK bool) Action {
	switch {
	case sellOK:
		return ActionSell
	case buyOK:
		return ActionBuy
	default:
		return ActionHold
	}
}

func directionOf(conf float64) Action {
	switch {
	case conf > 0:
		return ActionBuy
	case conf < 0:
		return ActionSell
	default:
		return ActionHold
	}
}

func vetoSignal(sr SourceResult) Signal {
	return Signal{
		Origin:    sr.Origin,
		Direction: sr.Prediction.Direction,
		Strength:  sr.Prediction.Confidence,
		Rationale: "veto",
	}
}

func findPred(preds []SourceResult, origin string) (Prediction, bool) {
	if sr, ok := findPredResult(preds, origin); ok {
		return sr.Prediction, true
	}
	return Prediction{}, false
}

func findPredResult(preds []SourceResult, origin string) (SourceResult, bool) {
	for _, p := range preds {
		if p.Origin == origin {
			return p, true
		}
	}
	return SourceResult{}, false
}

func indicatorRationale(ind *market.IndicatorSnapshot) string {
	return fmt.Sprintf("rsi=%.1f macd_hist=%.4f adx=%.1f mom=%.2f band_pos=%.2f",
		ind.RSI.Or(50), ind.MACDHist.Or(0), ind.ADX.Or(0), ind.Momentum.Or(0), ind.BandPos.Or(0.5))
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
