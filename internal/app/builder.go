package app

import (
	"fmt"
	"time"

	"sable/internal/config"
	"sable/internal/decision"
	"sable/internal/engine"
	"sable/internal/executor"
	"sable/internal/gateway/binance"
	"sable/internal/indicator"
	"sable/internal/logger"
	"sable/internal/market"
	"sable/internal/notifier"
	symbolpkg "sable/internal/pkg/symbol"
	"sable/internal/risk"
	"sable/internal/scheduler"
	"sable/internal/signal"
	"sable/internal/sizing"
	"sable/internal/store/gormstore"
	"sable/internal/store/klinecache"
	statushttp "sable/internal/transport/http"
)

// NewApp 按配置手工装配全部组件。装配顺序即依赖顺序，无隐式初始化。
func NewApp(watcher *config.Watcher) (*App, error) {
	cfg := watcher.Current()

	symbols := symbolpkg.NormalizeList(cfg.Market.Symbols)
	if len(symbols) == 0 {
		return nil, fmt.Errorf("no valid symbols configured")
	}
	interval := cfg.Market.Interval
	intervalDur, ok := scheduler.ParseIntervalDuration(interval)
	if !ok {
		return nil, fmt.Errorf("invalid market.interval: %s", interval)
	}

	mktStore := market.NewStore(cfg.Market.MaxCandles, time.Duration(cfg.Market.StaleAfterSecs)*time.Second)
	source, err := binance.New(binance.Config{
		RESTBaseURL:  cfg.Market.RESTBaseURL,
		HTTPTimeout:  time.Duration(cfg.Market.HTTPTimeoutSecs) * time.Second,
		ProxyEnabled: cfg.Market.ProxyEnabled,
		RESTProxyURL: cfg.Market.RESTProxyURL,
		WSProxyURL:   cfg.Market.WSProxyURL,
	})
	if err != nil {
		return nil, fmt.Errorf("init market source: %w", err)
	}

	portfolio := risk.NewPortfolio(cfg.Portfolio.InitialQuote, cfg.Portfolio.Holdings)
	riskMgr := risk.NewManager(riskLimits(cfg), portfolio)

	var exec executor.Client
	switch cfg.Executor.Mode {
	case "", "paper":
		exec = executor.NewPaper(cfg.Portfolio.InitialQuote, cfg.Portfolio.Holdings, cfg.Executor.FeeRate)
	default:
		return nil, fmt.Errorf("unsupported executor.mode: %s", cfg.Executor.Mode)
	}

	records, err := gormstore.NewGormStore(cfg.Store.DBPath)
	if err != nil {
		return nil, fmt.Errorf("init decision store: %w", err)
	}
	klines, err := klinecache.Open(cfg.Store.KlineCachePath)
	if err != nil {
		return nil, fmt.Errorf("init kline cache: %w", err)
	}

	var notify notifier.TextNotifier = notifier.Noop{}
	if cfg.Notify.Telegram.Enabled {
		notify = notifier.NewTelegram(cfg.Notify.Telegram.BotToken, cfg.Notify.Telegram.ChatID)
	}

	eng := engine.New(engine.Options{
		Symbols:    symbols,
		Interval:   interval,
		Store:      mktStore,
		Source:     source,
		Indicators: indicatorSettings(cfg),
		RefSymbol:  symbolpkg.Normalize(cfg.Market.ReferenceSymbol),
		Fusion:     decision.NewEngine(fusionParams(cfg)),
		Predictors: buildPredictors(cfg),
		Risk:       riskMgr,
		Portfolio:  portfolio,
		Sizing:     sizingParams(cfg),
		Executor:   exec,
		Records:    records,
		Klines:     klines,
		Notify:     notify,
	})
	riskMgr.SetEventHandler(eng.PersistEvent)

	updater := market.NewWSUpdater(mktStore, source,
		market.WithTickHandler(eng.OnTick),
		market.WithWSCallbacks(
			func() { logger.Infof("[ws] connected") },
			func(err error) { logger.Warnf("[ws] disconnected: %v", err) },
		),
	)

	a := &App{
		cfg:         cfg,
		watcher:     watcher,
		symbols:     symbols,
		interval:    interval,
		intervalDur: intervalDur,
		store:       mktStore,
		source:      source,
		engine:      eng,
		risk:        riskMgr,
		portfolio:   portfolio,
		records:     records,
		klines:      klines,
	}

	httpSrv, err := statushttp.NewServer(statushttp.ServerConfig{
		Addr:     cfg.App.HTTPAddr,
		Provider: a,
		Reader:   records,
	})
	if err != nil {
		return nil, fmt.Errorf("init http server: %w", err)
	}
	a.http = httpSrv
	a.updater = updater

	// 热重载：融合参数与风控阈值即时生效，结构性字段需重启
	watcher.OnChange(func(next *config.Config) {
		eng.ApplyFusionParams(fusionParams(next))
		riskMgr.SetLimits(riskLimits(next))
		a.swapConfig(next)
	})

	return a, nil
}

func riskLimits(cfg *config.Config) risk.Limits {
	return risk.Limits{
		StopLossPct:           cfg.Risk.StopLossPct,
		TakeProfitPct:         cfg.Risk.TakeProfitPct,
		TrailingStopPct:       cfg.Risk.TrailingStopPct,
		TrailingActivationPct: cfg.Risk.TrailingActivationPct,
		MaxDrawdownPct:        cfg.Risk.MaxDrawdownPct,
	}
}

func indicatorSettings(cfg *config.Config) indicator.Settings {
	i := cfg.Indicators
	return indicator.Settings{
		RSIPeriod:  i.RSIPeriod,
		MACDFast:   i.MACDFast,
		MACDSlow:   i.MACDSlow,
		MACDSignal: i.MACDSignal,
		ADXPeriod:  i.ADXPeriod,
		ATRPeriod:  i.ATRPeriod,
		MomPeriod:  i.MomPeriod,
		SMAPeriod:  i.SMAPeriod,
		BandPeriod: i.BandPeriod,
		BandStdDev: i.BandStdDev,
	}
}

func fusionParams(cfg *config.Config) decision.Params {
	w := cfg.Indicators.Weights
	t := cfg.Indicators.Thresholds
	sources := make(map[string]decision.SourceParams)
	if cfg.Predictors.Direction.Enabled {
		sources[decision.OriginDirection] = decision.SourceParams{
			BoostWeight:   cfg.Predictors.Direction.BoostWeight,
			MinConfidence: cfg.Predictors.Direction.MinConfidence,
		}
	}
	if cfg.Predictors.Profitability.Enabled {
		sources[decision.OriginProfitability] = decision.SourceParams{
			BoostWeight:   cfg.Predictors.Profitability.BoostWeight,
			MinConfidence: cfg.Predictors.Profitability.MinConfidence,
		}
	}
	if cfg.Predictors.Advisory.Enabled {
		sources[decision.OriginAdvisory] = decision.SourceParams{
			BoostWeight:   cfg.Predictors.Advisory.BoostWeight,
			MinConfidence: cfg.Predictors.Advisory.MinConfidence,
		}
	}
	params := decision.Params{
		Baseline:            cfg.Decision.Baseline,
		ConfidenceThreshold: cfg.Decision.ConfidenceThreshold,
		Cooldown:            time.Duration(cfg.Decision.CooldownSeconds) * time.Second,
		Weights: decision.Weights{
			RSI:      w["rsi"],
			MACD:     w["macd"],
			ADX:      w["adx"],
			OBV:      w["obv"],
			Momentum: w["momentum"],
			Band:     w["band"],
		},
		Thresholds: decision.Thresholds{
			RSIOversold:   t.RSIOversold,
			RSIOverbought: t.RSIOverbought,
			ADXTrend:      t.ADXTrend,
			OBV:           t.OBV,
			BandLow:       t.BandLow,
			BandHigh:      t.BandHigh,
		},
		Sources:                sources,
		AdvisoryFinalAuthority: cfg.Decision.AdvisoryFinalAuthority,
	}
	if cfg.Predictors.Profitability.Enabled {
		params.ProfitabilityFloor = cfg.Decision.ProfitabilityFloor
	}
	return params
}

func buildPredictors(cfg *config.Config) []signal.Predictor {
	var out []signal.Predictor
	if p := cfg.Predictors.Direction; p.Enabled && p.URL != "" {
		inner := signal.NewHTTPModel(decision.OriginDirection, p.URL, time.Duration(p.TimeoutSeconds)*time.Second)
		out = append(out, signal.NewCached(inner, signal.CachedOptions{
			TTL:     time.Duration(p.CacheTTLSecs) * time.Second,
			Timeout: time.Duration(p.TimeoutSeconds) * time.Second,
		}))
	}
	if p := cfg.Predictors.Profitability; p.Enabled && p.URL != "" {
		inner := signal.NewHTTPModel(decision.OriginProfitability, p.URL, time.Duration(p.TimeoutSeconds)*time.Second)
		out = append(out, signal.NewCached(inner, signal.CachedOptions{
			TTL:     time.Duration(p.CacheTTLSecs) * time.Second,
			Timeout: time.Duration(p.TimeoutSeconds) * time.Second,
		}))
	}
	if p := cfg.Predictors.Advisory; p.Enabled && p.URL != "" {
		inner := signal.NewAdvisory(p.URL, p.Model, time.Duration(p.TimeoutSeconds)*time.Second)
		out = append(out, signal.NewCached(inner, signal.CachedOptions{
			TTL:         time.Duration(p.CacheTTLSecs) * time.Second,
			MinInterval: time.Duration(p.MinIntervalSecs) * time.Second,
			Timeout:     time.Duration(p.TimeoutSeconds) * time.Second,
		}))
	}
	return out
}

func sizingParams(cfg *config.Config) sizing.Params {
	perSymbol := make(map[string]sizing.Range, len(cfg.Sizing.Limits))
	for sym, l := range cfg.Sizing.Limits {
		perSymbol[symbolpkg.Normalize(sym)] = sizing.Range{
			MinVolume: l.MinVolume,
			MaxVolume: l.MaxVolume,
		}
	}
	return sizing.Params{
		MinVolume: cfg.Sizing.MinVolume,
		MaxVolume: cfg.Sizing.MaxVolume,
		Threshold: cfg.Decision.ConfidenceThreshold,
		FeeRate:   cfg.Executor.FeeRate,
		Precision: int32(cfg.Sizing.Precision),
		PerSymbol: perSymbol,
	}
}
