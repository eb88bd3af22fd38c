package market

import "time"

// IndicatorValue 是可空的指标数值：样本不足时 Valid=false，而不是报错。
type IndicatorValue struct {
	V     float64 `json:"v"`
	Valid bool    `json:"valid"`
}

// Val 构造一个有效值。
func Val(v float64) IndicatorValue { return IndicatorValue{V: v, Valid: true} }

// Or 返回有效值，否则返回 fallback。
func (v IndicatorValue) Or(fallback float64) float64 {
	if v.Valid {
		return v.V
	}
	return fallback
}

// IndicatorSnapshot 保存某资产在某个时刻由 K 线窗口推导出的全部技术特征。
// 快照一经产出不再修改，下个周期整体替换。
type IndicatorSnapshot struct {
	RSI         IndicatorValue `json:"rsi"`
	MACD        IndicatorValue `json:"macd"`
	MACDSignal  IndicatorValue `json:"macd_signal"`
	MACDHist    IndicatorValue `json:"macd_hist"`
	ADX         IndicatorValue `json:"adx"`
	ATR         IndicatorValue `json:"atr"`
	OBV         IndicatorValue `json:"obv"`
	Momentum    IndicatorValue `json:"momentum"`
	SMA         IndicatorValue `json:"sma"`
	BandUpper   IndicatorValue `json:"band_upper"`
	BandLower   IndicatorValue `json:"band_lower"`
	BandWidth   IndicatorValue `json:"band_width"`
	BandPos     IndicatorValue `json:"band_pos"`
	Correlation IndicatorValue `json:"correlation"`

	Samples    int       `json:"samples"`
	ComputedAt time.Time `json:"computed_at"`
}
