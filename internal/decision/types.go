package decision

import "time"

// Action 是一个周期的最终动作。
type Action string

const (
	ActionBuy  Action = "buy"
	ActionSell Action = "sell"
	ActionHold Action = "hold"
)

// Prediction 是辅助信号源（方向模型、盈利模型、顾问模型）返回的类型化预测。
type Prediction struct {
	Direction  Action  `json:"direction"`
	Confidence float64 `json:"confidence"`
	Rationale  string  `json:"rationale,omitempty"`
}

// SourceResult 标识某个信号源在本周期的预测。缺席的源不出现在列表中。
type SourceResult struct {
	Origin     string     `json:"origin"`
	Prediction Prediction `json:"prediction"`
}

// Signal 是参与本周期融合的一条信号，随 Record 一起落盘。
type Signal struct {
	Origin     string  `json:"origin"`
	Direction  Action  `json:"direction"`
	Strength   float64 `json:"strength"`
	Rationale  string  `json:"rationale,omitempty"`
	Contribute float64 `json:"contribute"`
}

// Record 是一次融合+风控周期的产物，追加写入，产出后不再修改。
type Record struct {
	ID         string    `json:"id"`
	Symbol     string    `json:"symbol"`
	Action     Action    `json:"action"`
	Confidence float64   `json:"confidence"`
	Volume     float64   `json:"volume"`
	Timestamp  time.Time `json:"timestamp"`
	Degraded   bool      `json:"degraded"`
	Reason     string    `json:"reason,omitempty"`
	Signals    []Signal  `json:"signals,omitempty"`
}

// 常用信号源名称。融合引擎按 Origin 查找各源的加权配置。
const (
	OriginIndicator     = "indicator"
	OriginDirection     = "ml_direction"
	OriginProfitability = "ml_profitability"
	OriginAdvisory      = "advisory"
)
