package notifier

import (
	"fmt"
	"time"

	"sable/internal/risk"
)

// TradeOpened 构造开仓推送。
func TradeOpened(symbol string, price, volume, confidence float64, at time.Time) StructuredMessage {
	return StructuredMessage{
		Icon:  "🟢",
		Title: fmt.Sprintf("开仓 %s", symbol),
		Sections: []MessageSection{{
			Lines: []string{
				fmt.Sprintf("价格: %.4f", price),
				fmt.Sprintf("数量: %.6f", volume),
				fmt.Sprintf("置信度: %.2f", confidence),
			},
		}},
		Timestamp: at,
	}
}

// TradeClosed 构造平仓推送，带触发原因与收益率。
func TradeClosed(symbol string, reason risk.CloseReason, entry, exit, volume float64, at time.Time) StructuredMessage {
	var pnl float64
	if entry > 0 {
		pnl = (exit - entry) / entry
	}
	icon := "🔴"
	if pnl >= 0 {
		icon = "🟡"
	}
	return StructuredMessage{
		Icon:  icon,
		Title: fmt.Sprintf("平仓 %s (%s)", symbol, reasonLabel(reason)),
		Sections: []MessageSection{{
			Lines: []string{
				fmt.Sprintf("入场: %.4f", entry),
				fmt.Sprintf("出场: %.4f", exit),
				fmt.Sprintf("数量: %.6f", volume),
				fmt.Sprintf("收益率: %+.2f%%", pnl*100),
			},
		}},
		Timestamp: at,
	}
}

// DrawdownHalt 构造组合回撤刹车推送。
func DrawdownHalt(drawdown float64, closed int, at time.Time) StructuredMessage {
	return StructuredMessage{
		Icon:  "⛔",
		Title: "组合回撤触发强平",
		Sections: []MessageSection{{
			Lines: []string{
				fmt.Sprintf("回撤: %.1f%%", drawdown*100),
				fmt.Sprintf("强平仓位: %d", closed),
				"交易已暂停，需人工介入恢复",
			},
		}},
		Timestamp: at,
	}
}

func reasonLabel(reason risk.CloseReason) string {
	switch reason {
	case risk.CloseStopLoss:
		return "止损"
	case risk.CloseTakeProfit:
		return "止盈"
	case risk.CloseTrailingStop:
		return "追踪止损"
	case risk.CloseDrawdown:
		return "回撤强平"
	case risk.CloseSignal:
		return "信号"
	default:
		return string(reason)
	}
}
