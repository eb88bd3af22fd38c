// Package gormstore 用 Gorm + SQLite 持久化决策留痕与仓位事件。
package gormstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"sable/internal/decision"
	"sable/internal/risk"
	storemodel "sable/internal/store/model"
)

type decisionRecordModel = storemodel.DecisionRecordModel
type positionEventModel = storemodel.PositionEventModel

// GormStore 是引擎的落盘端。决策记录只追加，事后审计用。
type GormStore struct {
	db *gorm.DB
}

// NewGormStore 打开（必要时创建）SQLite 数据库并迁移表结构。
func NewGormStore(path string) (*GormStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("gorm store: 数据库路径不能为空")
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                                   gormlogger.Default.LogMode(gormlogger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&decisionRecordModel{}, &positionEventModel{}); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite + WAL: allow a small amount of parallelism for concurrent HTTP reads
	// while keeping lock contention low.
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetMaxIdleConns(2)
	return &GormStore{db: db}, nil
}

// Close 关闭底层数据库连接。
func (s *GormStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// AppendDecision 追加一条决策记录。Signals 原样存 JSON，方便事后用 SQL 翻查。
func (s *GormStore) AppendDecision(ctx context.Context, rec decision.Record) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("gorm store 未初始化")
	}
	signals, err := json.Marshal(rec.Signals)
	if err != nil {
		return fmt.Errorf("gorm store: encode signals: %w", err)
	}
	model := decisionRecordModel{
		DecisionID:  rec.ID,
		Symbol:      strings.ToUpper(strings.TrimSpace(rec.Symbol)),
		Action:      string(rec.Action),
		Confidence:  rec.Confidence,
		Volume:      rec.Volume,
		Degraded:    boolToInt(rec.Degraded),
		Reason:      rec.Reason,
		Signals:     datatypes.JSON(signals),
		TimestampMs: rec.Timestamp.UnixMilli(),
	}
	return s.db.WithContext(ctx).Create(&model).Error
}

// ListDecisions 按时间倒序返回最近的决策记录，可按资产过滤。
func (s *GormStore) ListDecisions(ctx context.Context, symbol string, limit int) ([]decision.Record, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("gorm store 未初始化")
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query := s.db.WithContext(ctx).Model(&decisionRecordModel{})
	if sym := strings.ToUpper(strings.TrimSpace(symbol)); sym != "" {
		query = query.Where("symbol = ?", sym)
	}
	var models []decisionRecordModel
	if err := query.
		Order("timestamp DESC, id DESC").
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]decision.Record, 0, len(models))
	for _, m := range models {
		out = append(out, decisionModelToRecord(m))
	}
	return out, nil
}

// AppendPositionEvent 追加一条仓位转换事件。
func (s *GormStore) AppendPositionEvent(ctx context.Context, evt risk.Event) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("gorm store 未初始化")
	}
	model := positionEventModel{
		Symbol:   strings.ToUpper(strings.TrimSpace(evt.Symbol)),
		Kind:     string(evt.Kind),
		Reason:   string(evt.Reason),
		Price:    evt.Price,
		Volume:   evt.Volume,
		AtMillis: evt.At.UnixMilli(),
	}
	return s.db.WithContext(ctx).Create(&model).Error
}

// ListPositionEvents 按时间倒序返回最近的仓位事件。
func (s *GormStore) ListPositionEvents(ctx context.Context, symbol string, limit int) ([]risk.Event, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("gorm store 未初始化")
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query := s.db.WithContext(ctx).Model(&positionEventModel{})
	if sym := strings.ToUpper(strings.TrimSpace(symbol)); sym != "" {
		query = query.Where("symbol = ?", sym)
	}
	var models []positionEventModel
	if err := query.
		Order("at DESC, id DESC").
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]risk.Event, 0, len(models))
	for _, m := range models {
		out = append(out, risk.Event{
			Symbol: m.Symbol,
			Kind:   risk.EventKind(m.Kind),
			Reason: risk.CloseReason(m.Reason),
			Price:  m.Price,
			Volume: m.Volume,
			At:     time.UnixMilli(m.AtMillis),
		})
	}
	return out, nil
}

func decisionModelToRecord(m decisionRecordModel) decision.Record {
	rec := decision.Record{
		ID:         m.DecisionID,
		Symbol:     m.Symbol,
		Action:     decision.Action(m.Action),
		Confidence: m.Confidence,
		Volume:     m.Volume,
		Degraded:   m.Degraded != 0,
		Reason:     m.Reason,
		Timestamp:  time.UnixMilli(m.TimestampMs),
	}
	if len(m.Signals) > 0 {
		_ = json.Unmarshal(m.Signals, &rec.Signals)
	}
	return rec
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
