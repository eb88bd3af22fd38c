// Package engine 是决策主循环：行情快照 -> 指标 -> 风控出场 -> 信号融合 -> 下单。
package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"sable/internal/decision"
	"sable/internal/executor"
	"sable/internal/indicator"
	"sable/internal/logger"
	"sable/internal/market"
	"sable/internal/notifier"
	"sable/internal/risk"
	"sable/internal/signal"
	"sable/internal/sizing"
	"sable/internal/store/gormstore"
	"sable/internal/store/klinecache"
)

// Options 汇总引擎依赖，全部在启动时装配。
type Options struct {
	Symbols  []string
	Interval string

	Store      *market.Store
	Source     market.Source
	Indicators indicator.Settings
	RefSymbol  string // 跨资产相关性的参考资产，空则跳过

	Fusion     *decision.Engine
	Predictors []signal.Predictor

	Risk      *risk.Manager
	Portfolio *risk.Portfolio
	Sizing    sizing.Params

	Executor executor.Client
	Records  *gormstore.GormStore
	Klines   *klinecache.Store
	Notify   notifier.TextNotifier
}

// Engine 串起一个完整的交易决策回路。每个资产的决策互相独立，
// 风控出场评估既跑在周期内也挂在 tick 回调上（out-of-band）。
type Engine struct {
	opts   Options
	fusion atomic.Pointer[decision.Engine]

	startedAt time.Time

	closeMu sync.Mutex // 序列化平仓执行，避免周期与 tick 路径重复下单
}

func New(opts Options) *Engine {
	e := &Engine{opts: opts, startedAt: time.Now()}
	e.fusion.Store(opts.Fusion)
	if e.opts.Notify == nil {
		e.opts.Notify = notifier.Noop{}
	}
	return e
}

// ApplyFusionParams 热替换融合参数，当前周期用旧参数跑完，下个周期生效。
func (e *Engine) ApplyFusionParams(params decision.Params) {
	e.fusion.Store(decision.NewEngine(params))
	logger.Infof("[engine] fusion params updated")
}

// Bootstrap 启动前回填各资产的 K 线窗口：优先 REST，失败时退回本地缓存。
// 最后用最新收盘价确定组合的初始总值。
func (e *Engine) Bootstrap(ctx context.Context, limit int) error {
	prices := make(map[string]float64, len(e.opts.Symbols))
	for _, sym := range e.opts.Symbols {
		candles, err := e.opts.Source.FetchHistory(ctx, sym, e.opts.Interval, limit)
		if err != nil {
			logger.Warnf("[engine] fetch history for %s failed: %v, trying local cache", sym, err)
			if e.opts.Klines != nil {
				candles, _ = e.opts.Klines.Get(ctx, sym, e.opts.Interval)
			}
		} else if e.opts.Klines != nil {
			if cerr := e.opts.Klines.Put(ctx, sym, e.opts.Interval, candles); cerr != nil {
				logger.Warnf("[engine] kline cache write failed for %s: %v", sym, cerr)
			}
		}
		if len(candles) == 0 {
			logger.Errorf("[engine] no candle window available for %s", sym)
			continue
		}
		if err := e.opts.Store.ReplaceWindow(sym, candles); err != nil {
			// 时间戳校验失败：保留旧窗口继续跑
			logger.Warnf("[engine] window rejected for %s: %v", sym, err)
			continue
		}
		last := candles[len(candles)-1]
		e.opts.Store.SetPrice(sym, last.Close, time.UnixMilli(last.CloseTime))
		prices[sym] = last.Close
	}
	if e.opts.Portfolio != nil {
		e.opts.Portfolio.InitValue(prices)
	}
	return nil
}

// RunCycle 执行一轮完整决策周期。
func (e *Engine) RunCycle(ctx context.Context) {
	now := time.Now()
	prices := make(map[string]float64, len(e.opts.Symbols))
	exited := make(map[string]bool, len(e.opts.Symbols))

	for _, sym := range e.opts.Symbols {
		view, ok := e.refreshIndicators(sym)
		if !ok {
			continue
		}
		price := currentPrice(view)
		if price <= 0 {
			logger.Warnf("[engine] no price for %s, skip", sym)
			continue
		}
		prices[sym] = price

		if intent := e.opts.Risk.OnPrice(sym, price, now); intent != nil {
			e.executeClose(ctx, *intent, now)
			exited[sym] = true
		}
	}

	if intents := e.opts.Risk.CheckDrawdown(prices, now); len(intents) > 0 {
		for _, intent := range intents {
			e.executeClose(ctx, intent, now)
		}
		_, drawdown := e.opts.Portfolio.Observe(prices)
		msg := notifier.DrawdownHalt(drawdown, len(intents), now)
		if err := e.opts.Notify.SendText(msg.RenderMarkdown()); err != nil {
			logger.Warnf("[engine] drawdown notify failed: %v", err)
		}
		return
	}

	for _, sym := range e.opts.Symbols {
		if exited[sym] {
			// 本周期刚出场的资产不再评估入场，冷却从平仓时刻起算
			continue
		}
		price, ok := prices[sym]
		if !ok {
			continue
		}
		e.decideSymbol(ctx, sym, price, now)
	}
}

// OnTick 处理周期外的价格事件：只做风控出场评估，不做新决策。
func (e *Engine) OnTick(evt market.TickEvent) {
	now := time.Now()
	if intent := e.opts.Risk.OnPrice(evt.Symbol, evt.Price, now); intent != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		e.executeClose(ctx, *intent, now)
	}
}

// refreshIndicators 重算指标快照并写回缓存，返回带指标的视图。
func (e *Engine) refreshIndicators(sym string) (market.View, bool) {
	view, ok := e.opts.Store.Snapshot(sym)
	if !ok || len(view.Candles) == 0 {
		return market.View{}, false
	}
	var ref []market.Candle
	if e.opts.RefSymbol != "" && e.opts.RefSymbol != sym {
		if refView, ok := e.opts.Store.Snapshot(e.opts.RefSymbol); ok {
			ref = refView.Candles
		}
	}
	snap := indicator.Compute(view.Candles, ref, e.opts.Indicators)
	e.opts.Store.SetIndicators(sym, snap)
	view.Indicators = &snap
	return view, true
}

// decideSymbol 对单个资产走一次融合 + 执行。
func (e *Engine) decideSymbol(ctx context.Context, sym string, price float64, now time.Time) {
	view, ok := e.opts.Store.Snapshot(sym)
	if !ok || view.Indicators == nil {
		return
	}
	preds := e.collectPredictions(ctx, sym, view)
	rec := e.fusion.Load().Evaluate(view, preds, e.opts.Risk.LastTrade(sym), now)

	pos := e.opts.Risk.Position(sym)
	switch rec.Action {
	case decision.ActionBuy:
		e.executeBuy(ctx, &rec, pos, price, now)
	case decision.ActionSell:
		e.executeSell(ctx, &rec, pos, price, now)
	}

	e.persist(ctx, rec)
	logger.Infof("[engine] %s decision=%s confidence=%.3f volume=%.6f degraded=%v reason=%q",
		sym, rec.Action, rec.Confidence, rec.Volume, rec.Degraded, rec.Reason)
}

// collectPredictions 并发收集全部预测源；不可用的源按缺席处理。
func (e *Engine) collectPredictions(ctx context.Context, sym string, view market.View) []decision.SourceResult {
	if len(e.opts.Predictors) == 0 {
		return nil
	}
	results := make([]decision.SourceResult, len(e.opts.Predictors))
	valid := make([]bool, len(e.opts.Predictors))
	g, gctx := errgroup.WithContext(ctx)
	for i, p := range e.opts.Predictors {
		i, p := i, p
		g.Go(func() error {
			pred, err := p.Predict(gctx, sym, view)
			if err != nil {
				if !errors.Is(err, signal.ErrUnavailable) {
					logger.Warnf("[engine] predictor %s failed for %s: %v", p.Name(), sym, err)
				}
				return nil
			}
			results[i] = decision.SourceResult{Origin: p.Name(), Prediction: pred}
			valid[i] = true
			return nil
		})
	}
	_ = g.Wait()

	out := make([]decision.SourceResult, 0, len(results))
	for i, ok := range valid {
		if ok {
			out = append(out, results[i])
		}
	}
	return out
}

func (e *Engine) executeBuy(ctx context.Context, rec *decision.Record, pos risk.Position, price float64, now time.Time) {
	if pos.State == risk.StateOpen {
		rec.Action = decision.ActionHold
		rec.Reason = "position already open"
		return
	}
	if e.opts.Risk.Halted() {
		rec.Action = decision.ActionHold
		rec.Reason = "trading halted"
		return
	}
	volume, ok := sizing.Size(rec.Confidence, e.opts.Sizing.ForSymbol(rec.Symbol), e.opts.Portfolio.Quote(), price, true)
	if !ok {
		rec.Action = decision.ActionHold
		rec.Reason = "sized volume is zero"
		return
	}
	fill, err := e.opts.Executor.Submit(ctx, executor.Order{
		Symbol: rec.Symbol,
		Side:   executor.SideBuy,
		Price:  price,
		Volume: volume,
		Reason: "signal",
	})
	if err != nil {
		rec.Action = decision.ActionHold
		rec.Reason = "order rejected: " + err.Error()
		logger.Warnf("[engine] buy %s rejected: %v", rec.Symbol, err)
		return
	}
	e.opts.Portfolio.ApplyFill(fill.Symbol, true, fill.Price, fill.Volume, feeRate(fill))
	if err := e.opts.Risk.Open(fill.Symbol, fill.Price, fill.Volume, now); err != nil {
		// 不变式被破坏属于编程错误，大声失败但不中断进程
		logger.Errorf("[engine] open transition failed for %s: %v", fill.Symbol, err)
		return
	}
	rec.Volume = fill.Volume
	logger.Auditf("[trade] OPEN %s price=%.4f volume=%.6f confidence=%.3f", fill.Symbol, fill.Price, fill.Volume, rec.Confidence)
	msg := notifier.TradeOpened(fill.Symbol, fill.Price, fill.Volume, rec.Confidence, now)
	if err := e.opts.Notify.SendText(msg.RenderMarkdown()); err != nil {
		logger.Warnf("[engine] open notify failed: %v", err)
	}
}

// executeSell 把信号卖出也走 sizing：中等置信度只减仓，满置信度清仓。
// 风控出场（止损/止盈/回撤）不走这里，始终全量平仓。
func (e *Engine) executeSell(ctx context.Context, rec *decision.Record, pos risk.Position, price float64, now time.Time) {
	if pos.State != risk.StateOpen {
		rec.Action = decision.ActionHold
		rec.Reason = "no open position to sell"
		return
	}
	volume, ok := sizing.Size(rec.Confidence, e.opts.Sizing.ForSymbol(rec.Symbol), pos.Volume, price, false)
	if !ok {
		rec.Action = decision.ActionHold
		rec.Reason = "sized volume is zero"
		return
	}
	intent := risk.CloseIntent{Symbol: rec.Symbol, Reason: risk.CloseSignal, Price: price, Volume: volume}
	if e.executeClose(ctx, intent, now) {
		rec.Volume = volume
	} else {
		rec.Action = decision.ActionHold
		rec.Reason = "close execution failed, retry next cycle"
	}
}

// executeClose 执行一条平仓 intent。执行失败时仓位保持 open，
// 下个周期（或下个 tick）条件仍成立会重试。
func (e *Engine) executeClose(ctx context.Context, intent risk.CloseIntent, now time.Time) bool {
	e.closeMu.Lock()
	defer e.closeMu.Unlock()

	pos := e.opts.Risk.Position(intent.Symbol)
	if pos.State != risk.StateOpen {
		return false
	}
	volume := intent.Volume
	if volume <= 0 || volume > pos.Volume {
		volume = pos.Volume
	}
	fill, err := e.opts.Executor.Submit(ctx, executor.Order{
		Symbol: intent.Symbol,
		Side:   executor.SideSell,
		Price:  intent.Price,
		Volume: volume,
		Reason: string(intent.Reason),
	})
	if err != nil {
		logger.Warnf("[engine] close %s (%s) failed, position stays open: %v", intent.Symbol, intent.Reason, err)
		return false
	}
	e.opts.Portfolio.ApplyFill(fill.Symbol, false, fill.Price, fill.Volume, feeRate(fill))
	if err := e.opts.Risk.ConfirmClose(fill.Symbol, intent.Reason, fill.Price, fill.Volume, now); err != nil {
		logger.Errorf("[engine] close transition failed for %s: %v", fill.Symbol, err)
		return false
	}
	logger.Auditf("[trade] CLOSE %s reason=%s entry=%.4f exit=%.4f volume=%.6f",
		fill.Symbol, intent.Reason, pos.EntryPrice, fill.Price, fill.Volume)
	msg := notifier.TradeClosed(fill.Symbol, intent.Reason, pos.EntryPrice, fill.Price, fill.Volume, now)
	if err := e.opts.Notify.SendText(msg.RenderMarkdown()); err != nil {
		logger.Warnf("[engine] close notify failed: %v", err)
	}
	return true
}

func (e *Engine) persist(ctx context.Context, rec decision.Record) {
	if e.opts.Records == nil {
		return
	}
	if err := e.opts.Records.AppendDecision(ctx, rec); err != nil {
		logger.Warnf("[engine] persist decision failed: %v", err)
	}
}

// PersistEvent 把仓位转换事件落盘，挂到 risk.Manager 的事件回调上。
func (e *Engine) PersistEvent(evt risk.Event) {
	if e.opts.Records == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.opts.Records.AppendPositionEvent(ctx, evt); err != nil {
		logger.Warnf("[engine] persist position event failed: %v", err)
	}
}

// Uptime 返回引擎运行时长。
func (e *Engine) Uptime() time.Duration {
	return time.Since(e.startedAt)
}

func currentPrice(view market.View) float64 {
	if view.Price > 0 {
		return view.Price
	}
	if n := len(view.Candles); n > 0 {
		return view.Candles[n-1].Close
	}
	return 0
}

func feeRate(fill executor.Fill) float64 {
	notional := fill.Price * fill.Volume
	if notional <= 0 {
		return 0
	}
	return fill.Fee / notional
}
