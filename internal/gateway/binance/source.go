// Package binance 基于 go-binance SDK 实现 market.Source。
package binance

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2/futures"

	"sable/internal/logger"
	"sable/internal/market"
	symbolpkg "sable/internal/pkg/symbol"
	"sable/internal/scheduler"
)

const maxHistoryLimit = 1500

// Source 通过 REST 拉取历史 K 线，通过组合 WS 流推送增量，断线指数退避重连。
type Source struct {
	cfg    Config
	client *futures.Client

	mu           sync.Mutex
	candleCancel context.CancelFunc
	tradeCancel  context.CancelFunc

	statsMu sync.Mutex
	stats   market.SourceStats
}

func New(cfg Config) (*Source, error) {
	final := cfg.withDefaults()
	client := futures.NewClient("", "")
	client.BaseURL = final.RESTBaseURL
	httpClient := &http.Client{Timeout: final.HTTPTimeout}
	if final.ProxyEnabled && final.RESTProxyURL != "" {
		proxyURL, err := url.Parse(final.RESTProxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid REST proxy url: %w", err)
		}
		baseTransport, ok := http.DefaultTransport.(*http.Transport)
		if !ok || baseTransport == nil {
			return nil, fmt.Errorf("http DefaultTransport is not *http.Transport")
		}
		transport := baseTransport.Clone()
		transport.Proxy = http.ProxyURL(proxyURL)
		httpClient.Transport = transport
	}
	client.HTTPClient = httpClient
	if final.ProxyEnabled {
		wsProxy := final.WSProxyURL
		if wsProxy == "" {
			wsProxy = final.RESTProxyURL
		}
		if wsProxy != "" {
			futures.SetWsProxyUrl(wsProxy)
		}
	}
	return &Source{cfg: final, client: client}, nil
}

func (s *Source) FetchHistory(ctx context.Context, symbol, interval string, limit int) ([]market.Candle, error) {
	if limit <= 0 {
		limit = 100
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	symbol = strings.TrimSpace(symbol)
	if symbol == "" {
		return nil, fmt.Errorf("symbol is required")
	}
	interval = strings.ToLower(strings.TrimSpace(interval))
	if interval == "" {
		return nil, fmt.Errorf("interval is required")
	}
	// 交易所侧的交易对不带斜杠（ETH/USDT -> ETHUSDT）
	kls, err := s.client.NewKlinesService().
		Symbol(symbolpkg.ToBinance(symbol)).
		Interval(interval).
		Limit(limit).
		Do(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]market.Candle, 0, len(kls))
	for _, kl := range kls {
		if kl == nil {
			continue
		}
		out = append(out, market.Candle{
			OpenTime:  kl.OpenTime,
			CloseTime: kl.CloseTime,
			Open:      parseFloat(kl.Open),
			High:      parseFloat(kl.High),
			Low:       parseFloat(kl.Low),
			Close:     parseFloat(kl.Close),
			Volume:    parseFloat(kl.Volume),
			Trades:    kl.TradeNum,
		})
	}
	// 最后一根可能是未收盘的当前 K 线，丢掉
	if dur, ok := scheduler.ParseIntervalDuration(interval); ok {
		out = scheduler.DropUnclosedKline(out, dur)
	}
	return out, nil
}

// symbolMapping 维护 交易所形式 -> 内部形式 的回写映射，
// 保证订阅用 ETHUSDT 而推送事件回到 ETH/USDT。
func symbolMapping(symbols []string) (map[string]string, []string) {
	mapping := make(map[string]string, len(symbols))
	clean := make([]string, 0, len(symbols))
	for _, sym := range symbols {
		normalized := symbolpkg.Normalize(sym)
		if normalized == "" {
			continue
		}
		ex := symbolpkg.ToBinance(normalized)
		mapping[ex] = normalized
		clean = append(clean, ex)
	}
	return mapping, clean
}

func (s *Source) Subscribe(ctx context.Context, symbols, intervals []string, opts market.SubscribeOptions) (<-chan market.CandleEvent, error) {
	symbolMap, cleanSymbols := symbolMapping(symbols)
	mapping := buildSymbolIntervals(cleanSymbols, intervals)
	if len(mapping) == 0 {
		return nil, fmt.Errorf("no valid symbols or intervals for subscription")
	}
	buffer := opts.Buffer
	if buffer <= 0 {
		buffer = 512
	}
	out := make(chan market.CandleEvent, buffer)
	subCtx := s.swapCancel(ctx, &s.candleCancel)

	go func() {
		defer close(out)
		s.runLoop(subCtx, opts, func(ctx context.Context, errHandler futures.ErrHandler) (chan struct{}, chan struct{}, error) {
			handler := func(event *futures.WsKlineEvent) {
				ce, ok := convertKlineEvent(event)
				if !ok {
					return
				}
				if original, ok := symbolMap[ce.Symbol]; ok {
					ce.Symbol = original
				}
				select {
				case <-ctx.Done():
				case out <- ce:
				default:
					logger.Warnf("[binance] kline channel full, drop %s %s", ce.Symbol, ce.Interval)
				}
			}
			return futures.WsCombinedKlineServeMultiInterval(mapping, handler, errHandler)
		})
	}()
	return out, nil
}

func (s *Source) SubscribeTrades(ctx context.Context, symbols []string, opts market.SubscribeOptions) (<-chan market.TickEvent, error) {
	symbolMap, cleanSymbols := symbolMapping(symbols)
	if len(cleanSymbols) == 0 {
		return nil, fmt.Errorf("no valid symbols for trade subscription")
	}
	buffer := opts.Buffer
	if buffer <= 0 {
		buffer = 1024
	}
	out := make(chan market.TickEvent, buffer)
	subCtx := s.swapCancel(ctx, &s.tradeCancel)

	go func() {
		defer close(out)
		s.runLoop(subCtx, opts, func(ctx context.Context, errHandler futures.ErrHandler) (chan struct{}, chan struct{}, error) {
			handler := func(event *futures.WsAggTradeEvent) {
				te, ok := convertAggTradeEvent(event)
				if !ok {
					return
				}
				if original, ok := symbolMap[te.Symbol]; ok {
					te.Symbol = original
				}
				select {
				case <-ctx.Done():
				case out <- te:
				default:
					logger.Warnf("[binance] aggTrade channel full, drop %s", te.Symbol)
				}
			}
			return futures.WsCombinedAggTradeServe(cleanSymbols, handler, errHandler)
		})
	}()
	return out, nil
}

// swapCancel 替换旧订阅的 cancel，保证同类订阅最多存活一个。
func (s *Source) swapCancel(ctx context.Context, slot *context.CancelFunc) context.Context {
	subCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	if *slot != nil {
		(*slot)()
	}
	*slot = cancel
	s.mu.Unlock()
	return subCtx
}

type serveFn func(ctx context.Context, errHandler futures.ErrHandler) (doneC, stopC chan struct{}, err error)

// runLoop 是 WS 重连骨架：serve 失败或连接中断时按指数退避重试，
// 成功连上后退避归位到 1s。
func (s *Source) runLoop(ctx context.Context, opts market.SubscribeOptions, serve serveFn) {
	delay := time.Second
	for {
		if ctx.Err() != nil {
			return
		}
		var errMu sync.Mutex
		var lastErr error
		errHandler := func(err error) {
			if err == nil {
				return
			}
			errMu.Lock()
			lastErr = err
			errMu.Unlock()
		}
		doneC, stopC, err := serve(ctx, errHandler)
		if err != nil {
			s.recordSubscribeError(err)
			if opts.OnDisconnect != nil {
				opts.OnDisconnect(err)
			}
			if !sleepWithContext(ctx, delay) {
				return
			}
			delay = nextDelay(delay)
			continue
		}
		delay = time.Second
		if opts.OnConnect != nil {
			opts.OnConnect()
		}
		select {
		case <-ctx.Done():
			close(stopC)
			<-doneC
			return
		case <-doneC:
		}
		close(stopC)
		errMu.Lock()
		errCopy := lastErr
		errMu.Unlock()
		s.recordReconnect(errCopy)
		if opts.OnDisconnect != nil {
			opts.OnDisconnect(errCopy)
		}
		if !sleepWithContext(ctx, delay) {
			return
		}
		delay = nextDelay(delay)
	}
}

func (s *Source) Stats() market.SourceStats {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	return s.stats
}

func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.candleCancel != nil {
		s.candleCancel()
		s.candleCancel = nil
	}
	if s.tradeCancel != nil {
		s.tradeCancel()
		s.tradeCancel = nil
	}
	return nil
}

func buildSymbolIntervals(symbols, intervals []string) map[string][]string {
	out := make(map[string][]string)
	for _, sym := range symbols {
		upper := strings.ToUpper(strings.TrimSpace(sym))
		if upper == "" {
			continue
		}
		for _, iv := range intervals {
			interval := strings.ToLower(strings.TrimSpace(iv))
			if interval == "" {
				continue
			}
			out[upper] = appendUnique(out[upper], interval)
		}
	}
	return out
}

func appendUnique(target []string, val string) []string {
	for _, existing := range target {
		if existing == val {
			return target
		}
	}
	return append(target, val)
}

func parseFloat(v string) float64 {
	f, _ := strconv.ParseFloat(strings.TrimSpace(v), 64)
	return f
}

func convertKlineEvent(ev *futures.WsKlineEvent) (market.CandleEvent, bool) {
	if ev == nil {
		return market.CandleEvent{}, false
	}
	symbol := strings.ToUpper(strings.TrimSpace(ev.Symbol))
	interval := strings.ToLower(strings.TrimSpace(ev.Kline.Interval))
	if symbol == "" || interval == "" {
		return market.CandleEvent{}, false
	}
	return market.CandleEvent{
		Symbol:   symbol,
		Interval: interval,
		Candle: market.Candle{
			OpenTime:  ev.Kline.StartTime,
			CloseTime: ev.Kline.EndTime,
			Open:      parseFloat(ev.Kline.Open),
			High:      parseFloat(ev.Kline.High),
			Low:       parseFloat(ev.Kline.Low),
			Close:     parseFloat(ev.Kline.Close),
			Volume:    parseFloat(ev.Kline.Volume),
			Trades:    ev.Kline.TradeNum,
		},
	}, true
}

func convertAggTradeEvent(ev *futures.WsAggTradeEvent) (market.TickEvent, bool) {
	if ev == nil {
		return market.TickEvent{}, false
	}
	price := parseFloat(ev.Price)
	symbol := strings.ToUpper(strings.TrimSpace(ev.Symbol))
	if price <= 0 || symbol == "" {
		return market.TickEvent{}, false
	}
	return market.TickEvent{
		Symbol:    symbol,
		Price:     price,
		Quantity:  parseFloat(ev.Quantity),
		EventTime: ev.Time,
		TradeTime: ev.TradeTime,
	}, true
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		d = time.Second
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func nextDelay(current time.Duration) time.Duration {
	if current <= 0 {
		return time.Second
	}
	next := current * 2
	if next > 30*time.Second {
		next = 30 * time.Second
	}
	return next
}

func (s *Source) recordSubscribeError(err error) {
	if err == nil {
		return
	}
	s.statsMu.Lock()
	s.stats.SubscribeErrors++
	s.stats.LastError = err.Error()
	s.statsMu.Unlock()
}

func (s *Source) recordReconnect(err error) {
	s.statsMu.Lock()
	s.stats.Reconnects++
	if err != nil && err.Error() != "" {
		s.stats.LastError = err.Error()
	}
	s.statsMu.Unlock()
}
