package market

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"sable/internal/logger"
)

// WSUpdater 将推送行情写入 Store：K 线事件合并进窗口，成交事件覆盖最新价。
// OnTick 供引擎挂载，在决策周期之外响应价格事件（out-of-band）。
type WSUpdater struct {
	Store  *Store
	Source Source

	OnConnected    func()
	OnDisconnected func(error)
	OnTick         func(TickEvent)

	startOnce sync.Once
}

type WSUpdaterOption func(*WSUpdater)

func WithWSCallbacks(onConnect func(), onDisconnect func(error)) WSUpdaterOption {
	return func(u *WSUpdater) {
		u.OnConnected = onConnect
		u.OnDisconnected = onDisconnect
	}
}

func WithTickHandler(handler func(TickEvent)) WSUpdaterOption {
	return func(u *WSUpdater) {
		u.OnTick = handler
	}
}

func NewWSUpdater(s *Store, src Source, opts ...WSUpdaterOption) *WSUpdater {
	u := &WSUpdater{Store: s, Source: src}
	for _, opt := range opts {
		if opt != nil {
			opt(u)
		}
	}
	return u
}

func (u *WSUpdater) Start(ctx context.Context, symbols []string, interval string) error {
	if u.Source == nil {
		return fmt.Errorf("ws updater missing source")
	}
	if len(symbols) == 0 || interval == "" {
		return fmt.Errorf("ws updater requires symbols & interval")
	}
	opts := SubscribeOptions{
		OnConnect:    u.OnConnected,
		OnDisconnect: u.OnDisconnected,
	}
	candles, err := u.Source.Subscribe(ctx, symbols, []string{interval}, opts)
	if err != nil {
		return err
	}
	ticks, err := u.Source.SubscribeTrades(ctx, symbols, opts)
	if err != nil {
		return err
	}
	u.startOnce.Do(func() {
		go u.consumeCandles(ctx, candles)
		go u.consumeTicks(ctx, ticks)
	})
	logger.Infof("[WS] 订阅已启动 symbols=%v interval=%s", symbols, interval)
	return nil
}

func (u *WSUpdater) consumeCandles(ctx context.Context, events <-chan CandleEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			u.Store.Append(strings.ToUpper(evt.Symbol), evt.Candle)
		}
	}
}

func (u *WSUpdater) consumeTicks(ctx context.Context, events <-chan TickEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			evt.Symbol = strings.ToUpper(evt.Symbol)
			u.Store.SetPrice(evt.Symbol, evt.Price, msToTime(evt.TradeTime))
			if u.OnTick != nil {
				u.OnTick(evt)
			}
		}
	}
}

func (u *WSUpdater) Stats() SourceStats {
	if u.Source == nil {
		return SourceStats{}
	}
	return u.Source.Stats()
}

func (u *WSUpdater) Close() {
	if u.Source != nil {
		if err := u.Source.Close(); err != nil {
			logger.Warnf("[WS] source close error: %v", err)
		}
	}
}
