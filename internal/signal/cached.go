package signal

import (
	"context"
	"sync"
	"time"

	"sable/internal/decision"
	"sable/internal/logger"
	"sable/internal/market"
	"sable/internal/pkg/circuit"
)

// CachedOptions 控制节流行为。
type CachedOptions struct {
	TTL         time.Duration // 缓存有效期，过期后返回 ErrUnavailable 而不是旧值
	MinInterval time.Duration // 两次真实调用的最小间隔
	Timeout     time.Duration // 单次调用的硬超时
	Threshold   int           // 熔断阈值（连续失败次数）
	Cooldown    time.Duration // 熔断冷却
}

func (o CachedOptions) withDefaults() CachedOptions {
	if o.TTL <= 0 {
		o.TTL = 60 * time.Second
	}
	if o.Timeout <= 0 {
		o.Timeout = 10 * time.Second
	}
	if o.Threshold <= 0 {
		o.Threshold = 3
	}
	if o.Cooldown <= 0 {
		o.Cooldown = 60 * time.Second
	}
	return o
}

type cacheEntry struct {
	pred decision.Prediction
	at   time.Time
}

// Cached 为慢速预测源提供 TTL 缓存 + 最小调用间隔 + 超时 + 熔断。
// 上游变慢或被限流时退化为"最近一次已知信号"，超过 TTL 则按缺席处理。
type Cached struct {
	inner   Predictor
	opts    CachedOptions
	breaker *circuit.Breaker

	mu       sync.Mutex
	entries  map[string]cacheEntry
	lastCall time.Time
}

func NewCached(inner Predictor, opts CachedOptions) *Cached {
	opts = opts.withDefaults()
	return &Cached{
		inner:   inner,
		opts:    opts,
		breaker: circuit.NewBreaker(inner.Name(), opts.Threshold, opts.Cooldown),
		entries: make(map[string]cacheEntry),
	}
}

func (c *Cached) Name() string { return c.inner.Name() }

func (c *Cached) Predict(ctx context.Context, symbol string, view market.View) (decision.Prediction, error) {
	now := time.Now()

	c.mu.Lock()
	entry, hasEntry := c.entries[symbol]
	fresh := hasEntry && now.Sub(entry.at) < c.opts.TTL
	throttled := c.opts.MinInterval > 0 && !c.lastCall.IsZero() && now.Sub(c.lastCall) < c.opts.MinInterval
	if !throttled {
		c.lastCall = now
	}
	c.mu.Unlock()

	if throttled {
		if fresh {
			return entry.pred, nil
		}
		return decision.Prediction{}, ErrUnavailable
	}

	callCtx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	var pred decision.Prediction
	err := c.breaker.Do(func() error {
		p, err := c.inner.Predict(callCtx, symbol, view)
		if err != nil {
			return err
		}
		pred = p
		return nil
	})
	if err != nil {
		if fresh {
			logger.Debugf("[signal] %s failed (%v), using cached signal for %s", c.inner.Name(), err, symbol)
			return entry.pred, nil
		}
		logger.Warnf("[signal] %s unavailable for %s: %v", c.inner.Name(), symbol, err)
		return decision.Prediction{}, ErrUnavailable
	}

	c.mu.Lock()
	c.entries[symbol] = cacheEntry{pred: pred, at: now}
	c.mu.Unlock()
	return pred, nil
}
