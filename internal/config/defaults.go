package config

import "strings"

// 默认值常量
const (
	defaultAppEnv           = "dev"
	defaultAppLogLevel      = "info"
	defaultAppHTTPAddr      = ":9992"
	defaultAppLogPath       = "/data/logs/sable.log"
	defaultAppAuditLogPath  = "/data/logs/sable-audit.log"
	defaultMarketInterval   = "1m"
	defaultMarketMaxCandles = 300
	defaultMarketREST       = "https://fapi.binance.com"
	defaultMarketTimeout    = 15
	defaultMarketStaleSecs  = 180
	defaultDecisionOffset   = 10
	defaultConfidenceThresh = 0.35
	defaultCooldownSeconds  = 300
	defaultProfitFloor      = 0.5
	defaultRiskStopLoss     = 0.05
	defaultRiskTakeProfit   = 0.10
	defaultRiskTrailing     = 0.05
	defaultRiskTrailingArm  = 0.005
	defaultRiskMaxDrawdown  = 0.15
	defaultSizingMinVolume  = 0.001
	defaultSizingMaxVolume  = 0.01
	defaultSizingPrecision  = 6
	defaultPortfolioQuote   = 10000
	defaultExecutorMode     = "paper"
	defaultExecutorFeeRate  = 0.003
	defaultStoreDBPath      = "/data/db/sable.db"
	defaultKlineCachePath   = "/data/db/klines.db"
	defaultDirectionWeight  = 0.3
	defaultDirectionMinConf = 0.6
	defaultAdvisoryWeight   = 0.25
	defaultAdvisoryMinConf  = 0.5
	defaultAdvisoryTTL      = 600
	defaultPredictorTimeout = 10
	defaultPredictorTTL     = 60
)

// applyDefaults 为所有子配置应用默认值。
func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.Market.applyDefaults(keys)
	c.Indicators.applyDefaults(keys)
	c.Decision.applyDefaults(keys)
	c.Predictors.applyDefaults(keys)
	c.Risk.applyDefaults(keys)
	c.Sizing.applyDefaults(keys)
	c.Portfolio.applyDefaults(keys)
	c.Executor.applyDefaults(keys)
	c.Store.applyDefaults(keys)
}

func (a *AppConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
		stringFieldDefault("app.http_addr", &a.HTTPAddr, defaultAppHTTPAddr),
		stringFieldDefault("app.log_path", &a.LogPath, defaultAppLogPath),
		stringFieldDefault("app.audit_log_path", &a.AuditLogPath, defaultAppAuditLogPath),
	)
}

func (m *MarketConfig) applyDefaults(keys keySet) {
	if m == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("market.interval", &m.Interval, defaultMarketInterval),
		stringFieldDefault("market.rest_base_url", &m.RESTBaseURL, defaultMarketREST),
		fieldDefault{
			key:   "market.max_candles",
			need:  func() bool { return m.MaxCandles <= 0 },
			apply: func() { m.MaxCandles = defaultMarketMaxCandles },
		},
		fieldDefault{
			key:   "market.http_timeout_seconds",
			need:  func() bool { return m.HTTPTimeoutSecs <= 0 },
			apply: func() { m.HTTPTimeoutSecs = defaultMarketTimeout },
		},
		fieldDefault{
			key:   "market.stale_after_seconds",
			need:  func() bool { return m.StaleAfterSecs <= 0 },
			apply: func() { m.StaleAfterSecs = defaultMarketStaleSecs },
		},
		fieldDefault{
			key:   "market.decision_offset_seconds",
			need:  func() bool { return m.DecisionOffset <= 0 },
			apply: func() { m.DecisionOffset = defaultDecisionOffset },
		},
	)
}

func (i *IndicatorsConfig) applyDefaults(keys keySet) {
	if i == nil {
		return
	}
	if len(i.Weights) == 0 {
		i.Weights = map[string]float64{
			"macd":     0.4,
			"rsi":      0.2,
			"adx":      0.1,
			"obv":      0.1,
			"momentum": 0.1,
			"band":     0.1,
		}
	}
	t := &i.Thresholds
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "indicators.thresholds.rsi_oversold",
			need:  func() bool { return t.RSIOversold <= 0 },
			apply: func() { t.RSIOversold = 30 },
		},
		fieldDefault{
			key:   "indicators.thresholds.rsi_overbought",
			need:  func() bool { return t.RSIOverbought <= 0 },
			apply: func() { t.RSIOverbought = 70 },
		},
		fieldDefault{
			key:   "indicators.thresholds.adx_trend",
			need:  func() bool { return t.ADXTrend <= 0 },
			apply: func() { t.ADXTrend = 25 },
		},
		fieldDefault{
			key:   "indicators.thresholds.band_low",
			need:  func() bool { return t.BandLow <= 0 },
			apply: func() { t.BandLow = 0.2 },
		},
		fieldDefault{
			key:   "indicators.thresholds.band_high",
			need:  func() bool { return t.BandHigh <= 0 },
			apply: func() { t.BandHigh = 0.8 },
		},
	)
}

func (d *DecisionConfig) applyDefaults(keys keySet) {
	if d == nil {
		return
	}
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "decision.confidence_threshold",
			need:  func() bool { return d.ConfidenceThreshold <= 0 },
			apply: func() { d.ConfidenceThreshold = defaultConfidenceThresh },
		},
		fieldDefault{
			key:   "decision.cooldown_seconds",
			need:  func() bool { return d.CooldownSeconds <= 0 },
			apply: func() { d.CooldownSeconds = defaultCooldownSeconds },
		},
		fieldDefault{
			key:   "decision.profitability_floor",
			need:  func() bool { return d.ProfitabilityFloor <= 0 },
			apply: func() { d.ProfitabilityFloor = defaultProfitFloor },
		},
	)
}

func (p *PredictorsConfig) applyDefaults(keys keySet) {
	if p == nil {
		return
	}
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "predictors.direction.boost_weight",
			need:  func() bool { return p.Direction.BoostWeight <= 0 },
			apply: func() { p.Direction.BoostWeight = defaultDirectionWeight },
		},
		fieldDefault{
			key:   "predictors.direction.min_confidence",
			need:  func() bool { return p.Direction.MinConfidence <= 0 },
			apply: func() { p.Direction.MinConfidence = defaultDirectionMinConf },
		},
		fieldDefault{
			key:   "predictors.profitability.boost_weight",
			need:  func() bool { return p.Profitability.BoostWeight <= 0 },
			apply: func() { p.Profitability.BoostWeight = defaultDirectionWeight },
		},
		fieldDefault{
			key:   "predictors.profitability.min_confidence",
			need:  func() bool { return p.Profitability.MinConfidence <= 0 },
			apply: func() { p.Profitability.MinConfidence = defaultDirectionMinConf },
		},
		fieldDefault{
			key:   "predictors.advisory.boost_weight",
			need:  func() bool { return p.Advisory.BoostWeight <= 0 },
			apply: func() { p.Advisory.BoostWeight = defaultAdvisoryWeight },
		},
		fieldDefault{
			key:   "predictors.advisory.min_confidence",
			need:  func() bool { return p.Advisory.MinConfidence <= 0 },
			apply: func() { p.Advisory.MinConfidence = defaultAdvisoryMinConf },
		},
		fieldDefault{
			key:   "predictors.advisory.cache_ttl_seconds",
			need:  func() bool { return p.Advisory.CacheTTLSecs <= 0 },
			apply: func() { p.Advisory.CacheTTLSecs = defaultAdvisoryTTL },
		},
	)
	for _, pc := range []*PredictorConfig{&p.Direction, &p.Profitability} {
		if pc.TimeoutSeconds <= 0 {
			pc.TimeoutSeconds = defaultPredictorTimeout
		}
		if pc.CacheTTLSecs <= 0 {
			pc.CacheTTLSecs = defaultPredictorTTL
		}
	}
	if p.Advisory.TimeoutSeconds <= 0 {
		p.Advisory.TimeoutSeconds = defaultPredictorTimeout * 3
	}
}

func (r *RiskConfig) applyDefaults(keys keySet) {
	if r == nil {
		return
	}
	// 比例值显式写 0 表示关闭该规则，只有缺省时才补默认
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "risk.stop_loss_pct",
			need:  func() bool { return r.StopLossPct == 0 },
			apply: func() { r.StopLossPct = defaultRiskStopLoss },
		},
		fieldDefault{
			key:   "risk.take_profit_pct",
			need:  func() bool { return r.TakeProfitPct == 0 },
			apply: func() { r.TakeProfitPct = defaultRiskTakeProfit },
		},
		fieldDefault{
			key:   "risk.trailing_stop_pct",
			need:  func() bool { return r.TrailingStopPct == 0 },
			apply: func() { r.TrailingStopPct = defaultRiskTrailing },
		},
		fieldDefault{
			key:   "risk.trailing_activation_pct",
			need:  func() bool { return r.TrailingActivationPct == 0 },
			apply: func() { r.TrailingActivationPct = defaultRiskTrailingArm },
		},
		fieldDefault{
			key:   "risk.max_drawdown_pct",
			need:  func() bool { return r.MaxDrawdownPct == 0 },
			apply: func() { r.MaxDrawdownPct = defaultRiskMaxDrawdown },
		},
	)
}

func (s *SizingConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "sizing.min_volume",
			need:  func() bool { return s.MinVolume <= 0 },
			apply: func() { s.MinVolume = defaultSizingMinVolume },
		},
		fieldDefault{
			key:   "sizing.max_volume",
			need:  func() bool { return s.MaxVolume <= 0 },
			apply: func() { s.MaxVolume = defaultSizingMaxVolume },
		},
		fieldDefault{
			key:   "sizing.precision",
			need:  func() bool { return s.Precision <= 0 },
			apply: func() { s.Precision = defaultSizingPrecision },
		},
	)
}

func (p *PortfolioConfig) applyDefaults(keys keySet) {
	if p == nil {
		return
	}
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "portfolio.initial_quote",
			need:  func() bool { return p.InitialQuote <= 0 },
			apply: func() { p.InitialQuote = defaultPortfolioQuote },
		},
	)
	if p.Holdings == nil {
		p.Holdings = make(map[string]float64)
	}
}

func (e *ExecutorConfig) applyDefaults(keys keySet) {
	if e == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("executor.mode", &e.Mode, defaultExecutorMode),
		fieldDefault{
			key:   "executor.fee_rate",
			need:  func() bool { return e.FeeRate <= 0 },
			apply: func() { e.FeeRate = defaultExecutorFeeRate },
		},
	)
}

func (s *StoreConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("store.db_path", &s.DBPath, defaultStoreDBPath),
		stringFieldDefault("store.kline_cache_path", &s.KlineCachePath, defaultKlineCachePath),
	)
}

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if def.apply == nil {
			continue
		}
		if def.key != "" && keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key: key,
		need: func() bool {
			return target != nil && strings.TrimSpace(*target) == ""
		},
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}
