package risk

import "time"

// State 是单资产仓位状态。只做现货多头，没有 open-short。
type State string

const (
	StateFlat State = "flat"
	StateOpen State = "open-long"
)

// CloseReason 标识平仓触发来源。
type CloseReason string

const (
	CloseStopLoss     CloseReason = "stop_loss"
	CloseTakeProfit   CloseReason = "take_profit"
	CloseTrailingStop CloseReason = "trailing_stop"
	CloseDrawdown     CloseReason = "drawdown"
	CloseSignal       CloseReason = "signal"
)

// Position 是某资产的持仓记录。不变式：
//   - 每个资产最多一个 open 仓位
//   - TrailingHigh 在持仓期间单调不降，平仓后归零
type Position struct {
	Symbol       string    `json:"symbol"`
	State        State     `json:"state"`
	EntryPrice   float64   `json:"entry_price"`
	EntryTime    time.Time `json:"entry_time"`
	TrailingHigh float64   `json:"trailing_high"`
	Volume       float64   `json:"volume"`
}

// EventKind 区分开仓与平仓转换。
type EventKind string

const (
	EventOpen  EventKind = "open"
	EventClose EventKind = "close"
)

// Event 是一次仓位状态转换的事实记录，追加发布给订阅者。
type Event struct {
	Symbol string      `json:"symbol"`
	Kind   EventKind   `json:"kind"`
	Reason CloseReason `json:"reason,omitempty"`
	Price  float64     `json:"price"`
	Volume float64     `json:"volume"`
	At     time.Time   `json:"at"`
}

// CloseIntent 是风控要求的平仓请求。执行失败时仓位保持 open，
// 下个周期条件仍成立会再次产生同样的 intent。
type CloseIntent struct {
	Symbol string
	Reason CloseReason
	Price  float64
	Volume float64
}
