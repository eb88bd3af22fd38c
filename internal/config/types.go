package config

import "strings"

// Config 是 Sable 的主配置载体。
type Config struct {
	App        AppConfig        `toml:"app"`
	Market     MarketConfig     `toml:"market"`
	Indicators IndicatorsConfig `toml:"indicators"`
	Decision   DecisionConfig   `toml:"decision"`
	Predictors PredictorsConfig `toml:"predictors"`
	Risk       RiskConfig       `toml:"risk"`
	Sizing     SizingConfig     `toml:"sizing"`
	Portfolio  PortfolioConfig  `toml:"portfolio"`
	Executor   ExecutorConfig   `toml:"executor"`
	Store      StoreConfig      `toml:"store"`
	Notify     NotifyConfig     `toml:"notify"`
}

type AppConfig struct {
	Env          string `toml:"env"`
	LogLevel     string `toml:"log_level"`
	HTTPAddr     string `toml:"http_addr"`
	LogPath      string `toml:"log_path"`
	AuditLogPath string `toml:"audit_log_path"`
}

// MarketConfig 描述行情来源与缓存窗口。
type MarketConfig struct {
	Symbols         []string `toml:"symbols"`
	Interval        string   `toml:"interval"`
	MaxCandles      int      `toml:"max_candles"`
	RESTBaseURL     string   `toml:"rest_base_url"`
	HTTPTimeoutSecs int      `toml:"http_timeout_seconds"`
	ProxyEnabled    bool     `toml:"proxy_enabled"`
	RESTProxyURL    string   `toml:"rest_proxy_url"`
	WSProxyURL      string   `toml:"ws_proxy_url"`
	StaleAfterSecs  int      `toml:"stale_after_seconds"`
	DecisionOffset  int      `toml:"decision_offset_seconds"`
	ReferenceSymbol string   `toml:"reference_symbol"`
}

// IndicatorsConfig 包含指标周期与融合权重/阈值。
type IndicatorsConfig struct {
	RSIPeriod  int `toml:"rsi_period"`
	MACDFast   int `toml:"macd_fast"`
	MACDSlow   int `toml:"macd_slow"`
	MACDSignal int `toml:"macd_signal"`
	ADXPeriod  int `toml:"adx_period"`
	ATRPeriod  int `toml:"atr_period"`
	MomPeriod  int `toml:"momentum_period"`
	SMAPeriod  int `toml:"sma_period"`
	BandPeriod int `toml:"band_period"`

	BandStdDev float64 `toml:"band_std_dev"`

	Weights    map[string]float64 `toml:"weights"`
	Thresholds ThresholdsConfig   `toml:"thresholds"`
}

type ThresholdsConfig struct {
	RSIOversold   float64 `toml:"rsi_oversold"`
	RSIOverbought float64 `toml:"rsi_overbought"`
	ADXTrend      float64 `toml:"adx_trend"`
	OBV           float64 `toml:"obv"`
	BandLow       float64 `toml:"band_low"`
	BandHigh      float64 `toml:"band_high"`
}

// DecisionConfig 控制信号融合行为。
type DecisionConfig struct {
	Baseline               float64 `toml:"baseline"`
	ConfidenceThreshold    float64 `toml:"confidence_threshold"`
	CooldownSeconds        int     `toml:"cooldown_seconds"`
	AdvisoryFinalAuthority bool    `toml:"advisory_final_authority"`
	ProfitabilityFloor     float64 `toml:"profitability_floor"`
}

// PredictorsConfig 声明接入的外部预测源。
type PredictorsConfig struct {
	Direction     PredictorConfig `toml:"direction"`
	Profitability PredictorConfig `toml:"profitability"`
	Advisory      AdvisoryConfig  `toml:"advisory"`
}

type PredictorConfig struct {
	Enabled        bool    `toml:"enabled"`
	URL            string  `toml:"url"`
	BoostWeight    float64 `toml:"boost_weight"`
	MinConfidence  float64 `toml:"min_confidence"`
	TimeoutSeconds int     `toml:"timeout_seconds"`
	CacheTTLSecs   int     `toml:"cache_ttl_seconds"`
}

type AdvisoryConfig struct {
	Enabled         bool    `toml:"enabled"`
	URL             string  `toml:"url"`
	Model           string  `toml:"model"`
	BoostWeight     float64 `toml:"boost_weight"`
	MinConfidence   float64 `toml:"min_confidence"`
	TimeoutSeconds  int     `toml:"timeout_seconds"`
	CacheTTLSecs    int     `toml:"cache_ttl_seconds"`
	MinIntervalSecs int     `toml:"min_interval_seconds"`
}

// RiskConfig 对应风控状态机阈值，比例值 0 表示关闭对应规则。
type RiskConfig struct {
	StopLossPct           float64 `toml:"stop_loss_pct"`
	TakeProfitPct         float64 `toml:"take_profit_pct"`
	TrailingStopPct       float64 `toml:"trailing_stop_pct"`
	TrailingActivationPct float64 `toml:"trailing_activation_pct"`
	MaxDrawdownPct        float64 `toml:"max_drawdown_pct"`
}

// SizingConfig 定义全局下单量区间，limits 按资产覆盖（键为 "BTC/USDT" 形式）。
type SizingConfig struct {
	MinVolume float64                      `toml:"min_volume"`
	MaxVolume float64                      `toml:"max_volume"`
	Precision int                          `toml:"precision"`
	Limits    map[string]VolumeLimitConfig `toml:"limits"`
}

type VolumeLimitConfig struct {
	MinVolume float64 `toml:"min_volume"`
	MaxVolume float64 `toml:"max_volume"`
}

// PortfolioConfig 是模拟账户初始资金。
type PortfolioConfig struct {
	InitialQuote float64            `toml:"initial_quote"`
	Holdings     map[string]float64 `toml:"holdings"`
}

type ExecutorConfig struct {
	Mode    string  `toml:"mode"` // "paper" | 后续扩展 "live"
	FeeRate float64 `toml:"fee_rate"`
}

type StoreConfig struct {
	DBPath         string `toml:"db_path"`
	KlineCachePath string `toml:"kline_cache_path"`
}

type NotifyConfig struct {
	Telegram TelegramConfig `toml:"telegram"`
}

type TelegramConfig struct {
	Enabled  bool   `toml:"enabled"`
	BotToken string `toml:"bot_token"`
	ChatID   string `toml:"chat_id"`
}

// keySet 用于追踪配置文件中显式设置的字段路径。
type keySet map[string]struct{}

func (k keySet) mark(path string) {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return
	}
	k[path] = struct{}{}
}

func (k keySet) isSet(path string) bool {
	if len(k) == 0 {
		return false
	}
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return false
	}
	_, ok := k[path]
	return ok
}

// fieldDefault 描述单个字段的默认值设置规则。
type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}
