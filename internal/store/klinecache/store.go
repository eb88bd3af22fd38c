// Package klinecache 把最近的 K 线窗口落到本地 SQLite，
// 重启或交易所短暂不可达时可以用它回填市场缓存。
package klinecache

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"sable/internal/market"

	_ "modernc.org/sqlite"
)

// Store 是 K 线本地缓存。写入整窗覆盖，读取按 open_time 升序返回。
type Store struct {
	mu   sync.Mutex
	db   *sql.DB
	path string
}

const schema = `
CREATE TABLE IF NOT EXISTS klines (
	symbol     TEXT NOT NULL,
	interval   TEXT NOT NULL,
	open_time  INTEGER NOT NULL,
	close_time INTEGER NOT NULL,
	open       REAL NOT NULL,
	high       REAL NOT NULL,
	low        REAL NOT NULL,
	close      REAL NOT NULL,
	volume     REAL NOT NULL,
	trades     INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (symbol, interval, open_time)
);
`

func Open(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("klinecache: 路径不能为空")
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path))
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}
	db.SetMaxOpenConns(1)
	return &Store{db: db, path: path}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Put 用整窗覆盖写入：先清掉该 symbol/interval 的旧行再批量插入。
func (s *Store) Put(ctx context.Context, symbol, interval string, candles []market.Candle) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("klinecache 未初始化")
	}
	if symbol == "" || interval == "" {
		return fmt.Errorf("klinecache: symbol/interval 不能为空")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM klines WHERE symbol = ? AND interval = ?`, symbol, interval); err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO klines (symbol, interval, open_time, close_time, open, high, low, close, volume, trades)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, c := range candles {
		if _, err := stmt.ExecContext(ctx, symbol, interval,
			c.OpenTime, c.CloseTime, c.Open, c.High, c.Low, c.Close, c.Volume, c.Trades); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Get 按 open_time 升序返回缓存的窗口；无缓存返回空切片。
func (s *Store) Get(ctx context.Context, symbol, interval string) ([]market.Candle, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("klinecache 未初始化")
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT open_time, close_time, open, high, low, close, volume, trades
		 FROM klines WHERE symbol = ? AND interval = ? ORDER BY open_time ASC`,
		symbol, interval)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []market.Candle
	for rows.Next() {
		var c market.Candle
		if err := rows.Scan(&c.OpenTime, &c.CloseTime, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume, &c.Trades); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
