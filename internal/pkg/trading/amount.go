// Package trading provides trading calculation utilities.
package trading

import "github.com/shopspring/decimal"

// RoundVolume 把成交量截断到给定小数位，只舍不入，避免下单超出余额。
func RoundVolume(volume float64, precision int32) float64 {
	if volume <= 0 {
		return 0
	}
	v, _ := decimal.NewFromFloat(volume).RoundDown(precision).Float64()
	return v
}

// MaxAffordable 返回在给定余额、价格和费率下最多能买入的数量。
// 费用按成交额比例计入，结果截断到 precision 位。
func MaxAffordable(quote, price, feeRate float64, precision int32) float64 {
	if quote <= 0 || price <= 0 {
		return 0
	}
	q := decimal.NewFromFloat(quote)
	p := decimal.NewFromFloat(price)
	f := decimal.NewFromFloat(1 + feeRate)
	v, _ := q.Div(p.Mul(f)).RoundDown(precision).Float64()
	return v
}

// Notional 计算含费成交额。isBuy 时费用加在支出上，卖出时从所得中扣除。
func Notional(price, volume, feeRate float64, isBuy bool) float64 {
	p := decimal.NewFromFloat(price)
	v := decimal.NewFromFloat(volume)
	n := p.Mul(v)
	if isBuy {
		n = n.Mul(decimal.NewFromFloat(1 + feeRate))
	} else {
		n = n.Mul(decimal.NewFromFloat(1 - feeRate))
	}
	out, _ := n.Float64()
	return out
}

// CalcCloseAmount 按比例计算平仓数量，结果不超过当前持仓。
// isInitialRatio 为真时以初始仓位为基数。
func CalcCloseAmount(currentAmount, initialAmount, ratio float64, isInitialRatio bool) float64 {
	if currentAmount <= 0 || ratio <= 0 {
		return 0
	}
	base := currentAmount
	if isInitialRatio && initialAmount > 0 {
		base = initialAmount
	}
	amount := base * ratio
	if amount > currentAmount {
		amount = currentAmount
	}
	return amount
}
