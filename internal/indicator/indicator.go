package indicator

import (
	"math"
	"time"

	"github.com/markcheno/go-talib"

	"sable/internal/market"
)

// Settings 描述指标周期参数。零值字段使用默认周期。
type Settings struct {
	RSIPeriod      int
	MACDFast       int
	MACDSlow       int
	MACDSignal     int
	ADXPeriod      int
	ATRPeriod      int
	MomPeriod      int
	SMAPeriod      int
	BandPeriod     int
	BandStdDev     float64
	CorrMinSamples int
}

func (s Settings) withDefaults() Settings {
	if s.RSIPeriod <= 0 {
		s.RSIPeriod = 14
	}
	if s.MACDFast <= 0 {
		s.MACDFast = 12
	}
	if s.MACDSlow <= 0 {
		s.MACDSlow = 26
	}
	if s.MACDSignal <= 0 {
		s.MACDSignal = 9
	}
	if s.ADXPeriod <= 0 {
		s.ADXPeriod = 14
	}
	if s.ATRPeriod <= 0 {
		s.ATRPeriod = 14
	}
	if s.MomPeriod <= 0 {
		s.MomPeriod = 10
	}
	if s.SMAPeriod <= 0 {
		s.SMAPeriod = 20
	}
	if s.BandPeriod <= 0 {
		s.BandPeriod = 20
	}
	if s.BandStdDev <= 0 {
		s.BandStdDev = 2.0
	}
	if s.CorrMinSamples <= 0 {
		s.CorrMinSamples = 10
	}
	return s
}

// Compute 从 K 线窗口重新计算全部指标，纯函数，无增量状态。
// 窗口不足以计算某个指标时该项 Valid=false，从不报错。
// ref 为参考资产的窗口，用于跨资产收益率相关性；可为 nil。
func Compute(candles []market.Candle, ref []market.Candle, cfg Settings) market.IndicatorSnapshot {
	cfg = cfg.withDefaults()
	snap := market.IndicatorSnapshot{
		Samples:    len(candles),
		ComputedAt: time.Now(),
	}
	if len(candles) == 0 {
		return snap
	}

	closes := make([]float64, len(candles))
	highs := make([]float64, len(candles))
	lows := make([]float64, len(candles))
	volumes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
		highs[i] = c.High
		lows[i] = c.Low
		volumes[i] = c.Volume
	}
	lastClose := closes[len(closes)-1]

	if len(closes) > cfg.RSIPeriod {
		snap.RSI = lastOf(talib.Rsi(closes, cfg.RSIPeriod))
	}
	if len(closes) >= cfg.MACDSlow+cfg.MACDSignal {
		macd, sig, hist := talib.Macd(closes, cfg.MACDFast, cfg.MACDSlow, cfg.MACDSignal)
		snap.MACD = lastOf(macd)
		snap.MACDSignal = lastOf(sig)
		snap.MACDHist = lastOf(hist)
	}
	if len(closes) > 2*cfg.ADXPeriod {
		snap.ADX = lastOf(talib.Adx(highs, lows, closes, cfg.ADXPeriod))
	}
	if len(closes) > cfg.ATRPeriod {
		snap.ATR = lastOf(talib.Atr(highs, lows, closes, cfg.ATRPeriod))
	}
	if len(closes) > 1 {
		snap.OBV = lastOf(talib.Obv(closes, volumes))
	}
	if len(closes) > cfg.MomPeriod {
		snap.Momentum = lastOf(talib.Mom(closes, cfg.MomPeriod))
	}
	if len(closes) >= cfg.SMAPeriod {
		snap.SMA = lastOf(talib.Sma(closes, cfg.SMAPeriod))
	}
	if len(closes) >= cfg.BandPeriod {
		upper, _, lower := talib.BBands(closes, cfg.BandPeriod, cfg.BandStdDev, cfg.BandStdDev, talib.SMA)
		snap.BandUpper = lastOf(upper)
		snap.BandLower = lastOf(lower)
		if snap.BandUpper.Valid && snap.BandLower.Valid {
			width := snap.BandUpper.V - snap.BandLower.V
			snap.BandWidth = market.Val(width)
			if width > 0 {
				snap.BandPos = market.Val((lastClose - snap.BandLower.V) / width)
			}
		}
	}
	snap.Correlation = correlation(closes, ref, cfg.CorrMinSamples)
	return snap
}

// correlation 计算两资产收益率的 Pearson 相关系数，窗口取两者重叠部分。
func correlation(closes []float64, ref []market.Candle, minSamples int) market.IndicatorValue {
	if len(ref) == 0 {
		return market.IndicatorValue{}
	}
	refCloses := make([]float64, len(ref))
	for i, c := range ref {
		refCloses[i] = c.Close
	}
	n := len(closes)
	if len(refCloses) < n {
		n = len(refCloses)
	}
	retA := returns(closes[len(closes)-n:])
	retB := returns(refCloses[len(refCloses)-n:])
	if len(retA) < minSamples || len(retA) != len(retB) {
		return market.IndicatorValue{}
	}
	corr := talib.Correl(retA, retB, len(retA))
	return lastOf(corr)
}

func returns(closes []float64) []float64 {
	if len(closes) < 2 {
		return nil
	}
	out := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		if closes[i-1] == 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, closes[i]/closes[i-1]-1)
	}
	return out
}

func lastOf(series []float64) market.IndicatorValue {
	for i := len(series) - 1; i >= 0; i-- {
		if !math.IsNaN(series[i]) && !math.IsInf(series[i], 0) {
			return market.Val(series[i])
		}
	}
	return market.IndicatorValue{}
}
