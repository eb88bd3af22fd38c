package config

import (
	"fmt"
	"math"
	"strings"

	"sable/internal/pkg/symbol"
)

const weightSumTolerance = 1e-6

// validate 对配置进行基础校验，错误信息带字段路径方便定位。
func validate(c *Config) error {
	if err := c.Market.validate(); err != nil {
		return err
	}
	if err := c.Indicators.validate(); err != nil {
		return err
	}
	if err := c.Decision.validate(); err != nil {
		return err
	}
	if err := c.Risk.validate(); err != nil {
		return err
	}
	if err := c.Sizing.validate(); err != nil {
		return err
	}
	if err := c.Notify.validate(); err != nil {
		return err
	}
	return nil
}

func (m *MarketConfig) validate() error {
	if len(m.Symbols) == 0 {
		return fmt.Errorf("market.symbols requires at least one symbol")
	}
	for _, s := range m.Symbols {
		if !symbol.IsValid(s) {
			return fmt.Errorf("market.symbols contains invalid symbol: %s", s)
		}
	}
	if m.MaxCandles < 50 || m.MaxCandles > 1000 {
		return fmt.Errorf("market.max_candles must be in [50, 1000], got %d", m.MaxCandles)
	}
	return nil
}

func (i *IndicatorsConfig) validate() error {
	sum := 0.0
	for name, w := range i.Weights {
		if w < 0 {
			return fmt.Errorf("indicators.weights.%s must be >= 0", name)
		}
		sum += w
	}
	if math.Abs(sum-1.0) > weightSumTolerance {
		return fmt.Errorf("indicators.weights must sum to 1.0, got %.6f", sum)
	}
	t := i.Thresholds
	if t.RSIOversold >= t.RSIOverbought {
		return fmt.Errorf("indicators.thresholds: rsi_oversold (%.1f) must be below rsi_overbought (%.1f)",
			t.RSIOversold, t.RSIOverbought)
	}
	if t.BandLow >= t.BandHigh {
		return fmt.Errorf("indicators.thresholds: band_low must be below band_high")
	}
	return nil
}

func (d *DecisionConfig) validate() error {
	if d.ConfidenceThreshold <= 0 || d.ConfidenceThreshold >= 1 {
		return fmt.Errorf("decision.confidence_threshold must be in (0, 1), got %.4f", d.ConfidenceThreshold)
	}
	if d.CooldownSeconds < 0 {
		return fmt.Errorf("decision.cooldown_seconds must be >= 0")
	}
	return nil
}

func (r *RiskConfig) validate() error {
	checks := []struct {
		name string
		val  float64
	}{
		{"risk.stop_loss_pct", r.StopLossPct},
		{"risk.take_profit_pct", r.TakeProfitPct},
		{"risk.trailing_stop_pct", r.TrailingStopPct},
		{"risk.trailing_activation_pct", r.TrailingActivationPct},
		{"risk.max_drawdown_pct", r.MaxDrawdownPct},
	}
	for _, c := range checks {
		if c.val < 0 || c.val > 1 {
			return fmt.Errorf("%s must be in [0, 1], got %.4f", c.name, c.val)
		}
	}
	return nil
}

func (s *SizingConfig) validate() error {
	if s.MinVolume > s.MaxVolume {
		return fmt.Errorf("sizing.min_volume (%.6f) must not exceed sizing.max_volume (%.6f)",
			s.MinVolume, s.MaxVolume)
	}
	for sym, l := range s.Limits {
		if !symbol.IsValid(sym) {
			return fmt.Errorf("sizing.limits contains invalid symbol: %s", sym)
		}
		if l.MinVolume < 0 || l.MaxVolume < 0 {
			return fmt.Errorf("sizing.limits.%s volumes must be >= 0", sym)
		}
		min, max := l.MinVolume, l.MaxVolume
		if min <= 0 {
			min = s.MinVolume
		}
		if max <= 0 {
			max = s.MaxVolume
		}
		if min > max {
			return fmt.Errorf("sizing.limits.%s: effective min_volume (%.6f) exceeds max_volume (%.6f)", sym, min, max)
		}
	}
	return nil
}

func (n *NotifyConfig) validate() error {
	if n.Telegram.Enabled {
		if strings.TrimSpace(n.Telegram.BotToken) == "" || strings.TrimSpace(n.Telegram.ChatID) == "" {
			return fmt.Errorf("notify.telegram requires bot_token and chat_id when enabled")
		}
	}
	return nil
}
