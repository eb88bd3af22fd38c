// Package sizing 把决策置信度映射为下单数量。
package sizing

import (
	"sable/internal/pkg/trading"
)

// Params 定义仓位大小的区间与精度。
type Params struct {
	MinVolume float64 // 刚过阈值时的下单量
	MaxVolume float64 // 置信度 1.0 时的下单量
	Threshold float64 // 决策阈值，低于它不应该走到 sizing
	FeeRate   float64 // 成交额比例费率，买入时计入可负担量
	Precision int32   // 数量小数位，只截不入

	PerSymbol map[string]Range // 按资产覆盖全局区间，未覆盖的字段沿用全局值
}

// Range 是单个资产的下单量区间覆盖，<=0 的字段表示不覆盖。
type Range struct {
	MinVolume float64
	MaxVolume float64
}

// ForSymbol 返回应用了该资产覆盖区间后的参数。
func (p Params) ForSymbol(symbol string) Params {
	r, ok := p.PerSymbol[symbol]
	if !ok {
		return p
	}
	out := p
	if r.MinVolume > 0 {
		out.MinVolume = r.MinVolume
	}
	if r.MaxVolume > 0 {
		out.MaxVolume = r.MaxVolume
	}
	return out
}

// Size 按置信度在 [MinVolume, MaxVolume] 之间线性插值。
// confidence 取绝对值后低于阈值返回 (0, false)，表示不交易。
// available 是本次可动用的余额（买入为计价货币，卖出为持仓量），
// 结果被收缩到可负担范围内；收缩到 0 同样返回 (0, false)。
func Size(confidence float64, p Params, available float64, price float64, isBuy bool) (float64, bool) {
	c := confidence
	if c < 0 {
		c = -c
	}
	if c < p.Threshold || p.MaxVolume <= 0 {
		return 0, false
	}
	if c > 1 {
		c = 1
	}

	vol := p.MinVolume
	if p.Threshold < 1 {
		frac := (c - p.Threshold) / (1 - p.Threshold)
		vol = p.MinVolume + (p.MaxVolume-p.MinVolume)*frac
	}
	if vol > p.MaxVolume {
		vol = p.MaxVolume
	}

	if isBuy {
		max := trading.MaxAffordable(available, price, p.FeeRate, p.Precision)
		if vol > max {
			vol = max
		}
	} else if vol > available {
		vol = available
	}

	vol = trading.RoundVolume(vol, p.Precision)
	if vol <= 0 {
		return 0, false
	}
	return vol, true
}
