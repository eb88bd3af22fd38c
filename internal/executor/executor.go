// Package executor 定义下单执行端接口与模拟实现。
package executor

import (
	"context"
	"errors"
	"time"
)

// Side 是订单方向。
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Order 是一笔市价下单请求。
type Order struct {
	Symbol string
	Side   Side
	Price  float64 // 参考价，模拟盘按此价成交
	Volume float64
	Reason string // 触发来源，用于审计
}

// Fill 是执行端确认的成交回报。
type Fill struct {
	Symbol   string
	Side     Side
	Price    float64
	Volume   float64
	Fee      float64 // 以计价货币计的费用
	FilledAt time.Time
}

// ErrRejected 表示执行端拒单（余额不足、数量非法等）。
// 拒单不是系统故障：仓位状态保持不变，下个周期重试。
var ErrRejected = errors.New("order rejected")

// Client 是引擎面向的执行端抽象。
type Client interface {
	Submit(ctx context.Context, order Order) (Fill, error)
}
