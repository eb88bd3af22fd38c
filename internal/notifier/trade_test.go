package notifier

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sable/internal/risk"
)

func TestTradeOpenedMessage(t *testing.T) {
	msg := TradeOpened("BTC/USDT", 50000, 0.01, 0.72, time.Now())
	rendered := msg.RenderMarkdown()
	assert.Contains(t, rendered, "开仓 BTC/USDT")
	assert.Contains(t, rendered, "0.72")
}

func TestTradeClosedPnLIcon(t *testing.T) {
	win := TradeClosed("BTC/USDT", risk.CloseTakeProfit, 100, 110, 1, time.Now())
	assert.Equal(t, "🟡", win.Icon)
	assert.Contains(t, win.Title, "止盈")
	require.Len(t, win.Sections, 1)
	assert.Contains(t, win.Sections[0].Lines[3], "+10.00%")

	loss := TradeClosed("BTC/USDT", risk.CloseStopLoss, 100, 94, 1, time.Now())
	assert.Equal(t, "🔴", loss.Icon)
	assert.Contains(t, loss.Title, "止损")
}

func TestDrawdownHaltMessage(t *testing.T) {
	msg := DrawdownHalt(0.16, 2, time.Now())
	rendered := msg.RenderMarkdown()
	assert.Contains(t, rendered, "16.0%")
	assert.Contains(t, rendered, "2")
}

func TestReasonLabelFallback(t *testing.T) {
	assert.Equal(t, "追踪止损", reasonLabel(risk.CloseTrailingStop))
	assert.Equal(t, "custom", reasonLabel(risk.CloseReason("custom")))
}
