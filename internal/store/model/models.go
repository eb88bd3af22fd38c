package model

import "gorm.io/datatypes"

// DecisionRecordModel 是决策留痕表，只追加不更新。
type DecisionRecordModel struct {
	ID          int64          `gorm:"column:id;primaryKey"`
	DecisionID  string         `gorm:"column:decision_uuid;uniqueIndex"`
	Symbol      string         `gorm:"column:symbol;index"`
	Action      string         `gorm:"column:action"`
	Confidence  float64        `gorm:"column:confidence"`
	Volume      float64        `gorm:"column:volume"`
	Degraded    int            `gorm:"column:degraded"`
	Reason      string         `gorm:"column:reason"`
	Signals     datatypes.JSON `gorm:"column:signals;type:TEXT"`
	TimestampMs int64          `gorm:"column:timestamp;index"`
}

func (DecisionRecordModel) TableName() string { return "decision_records" }

// PositionEventModel 记录仓位状态转换事件（开仓/平仓）。
type PositionEventModel struct {
	ID       int64   `gorm:"column:id;primaryKey"`
	Symbol   string  `gorm:"column:symbol;index"`
	Kind     string  `gorm:"column:kind"`
	Reason   string  `gorm:"column:reason"`
	Price    float64 `gorm:"column:price"`
	Volume   float64 `gorm:"column:volume"`
	AtMillis int64   `gorm:"column:at;index"`
}

func (PositionEventModel) TableName() string { return "position_events" }
