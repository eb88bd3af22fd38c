// Package app 负责组件装配与生命周期管理。
package app

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"sable/internal/config"
	"sable/internal/engine"
	"sable/internal/gateway/binance"
	"sable/internal/logger"
	"sable/internal/market"
	"sable/internal/risk"
	"sable/internal/scheduler"
	"sable/internal/store/gormstore"
	"sable/internal/store/klinecache"
	statushttp "sable/internal/transport/http"
)

// App 持有全部已装配组件，Run 将它们编排为一个阻塞的服务进程。
type App struct {
	cfgMu   sync.RWMutex
	cfg     *config.Config
	watcher *config.Watcher

	symbols     []string
	interval    string
	intervalDur time.Duration

	store     *market.Store
	source    *binance.Source
	updater   *market.WSUpdater
	engine    *engine.Engine
	risk      *risk.Manager
	portfolio *risk.Portfolio
	records   *gormstore.GormStore
	klines    *klinecache.Store
	http      *statushttp.Server
}

// Run 启动全部子系统并阻塞到 ctx 取消或任一子系统失败。
func (a *App) Run(ctx context.Context) error {
	defer a.close()

	if err := a.engine.Bootstrap(ctx, a.currentConfig().Market.MaxCandles); err != nil {
		return err
	}
	if err := a.updater.Start(ctx, a.symbols, a.interval); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.http.Start(gctx)
	})

	g.Go(func() error {
		offset := time.Duration(a.currentConfig().Market.DecisionOffset) * time.Second
		sched := scheduler.NewAlignedScheduler(gctx, a.intervalDur, offset)
		sched.RunImmediately = true
		sched.Start(func() {
			a.engine.RunCycle(gctx)
		})
		return nil
	})

	logger.Infof("sable started: symbols=%v interval=%s http=%s", a.symbols, a.interval, a.http.Addr())
	return g.Wait()
}

func (a *App) close() {
	a.updater.Close()
	if err := a.records.Close(); err != nil {
		logger.Warnf("close decision store: %v", err)
	}
	if err := a.klines.Close(); err != nil {
		logger.Warnf("close kline cache: %v", err)
	}
}

func (a *App) currentConfig() *config.Config {
	a.cfgMu.RLock()
	defer a.cfgMu.RUnlock()
	return a.cfg
}

func (a *App) swapConfig(next *config.Config) {
	a.cfgMu.Lock()
	a.cfg = next
	a.cfgMu.Unlock()
}

// Status 实现 statushttp.StatusProvider。
func (a *App) Status() statushttp.Status {
	cfg := a.currentConfig()
	return statushttp.Status{
		Symbols:   a.symbols,
		Halted:    a.risk.Halted(),
		Positions: a.risk.OpenPositions(),
		Portfolio: a.portfolio.Snapshot(),
		Uptime:    a.engine.Uptime().Truncate(time.Second).String(),
		Config:    redactConfig(cfg),
	}
}

// redactConfig 去掉凭据类字段后用于状态接口展示。
func redactConfig(cfg *config.Config) *config.Config {
	if cfg == nil {
		return nil
	}
	cp := *cfg
	if cp.Notify.Telegram.BotToken != "" {
		cp.Notify.Telegram.BotToken = "***"
	}
	return &cp
}
