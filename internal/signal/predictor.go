package signal

import (
	"context"
	"errors"

	"sable/internal/decision"
	"sable/internal/market"
)

// ErrUnavailable 表示信号源本周期不可用（超时、熔断、无响应）。
// 调用方把它与超时同等对待：该源按缺席处理，绝不致命。
var ErrUnavailable = errors.New("predictor unavailable")

// Predictor 是可插拔的辅助信号源：方向模型、盈利模型、顾问模型都实现它。
// Predict 必须尊重 ctx 超时；返回 ErrUnavailable 或任何错误都按缺席处理。
type Predictor interface {
	Name() string
	Predict(ctx context.Context, symbol string, view market.View) (decision.Prediction, error)
}

// normalizeDirection 把各家模型的方向口径统一到 buy/sell/hold。
func normalizeDirection(raw string) (decision.Action, bool) {
	switch raw {
	case "buy", "BUY", "up", "UP", "long":
		return decision.ActionBuy, true
	case "sell", "SELL", "down", "DOWN", "short":
		return decision.ActionSell, true
	case "hold", "HOLD", "flat", "none", "":
		return decision.ActionHold, true
	}
	return decision.ActionHold, false
}
