package engine

import (
	"bookbot-go/internal/config"
	"bookbot-go/internal/risk"
	"bookbot-go/internal/strategy"
)

// StrategyParams maps the loaded configuration onto strategy parameters.
// Zero-valued knobs are left for the strategy to default per mode.
func StrategyParams(cfg *config.Config) (strategy.Params, error) {
	sp := cfg.Strategy.Params
	policy, err := risk.ParseGatePolicy(sp.GatePolicy)
	if err != nil {
		return strategy.Params{}, err
	}
	aggressiveness := strategy.DefaultAggressiveness
	if sp.Aggressiveness != nil {
		aggressiveness = *sp.Aggressiveness
	}
	return strategy.Params{
		Symbol:         cfg.Feed.Symbol,
		Quantity:       sp.Quantity,
		Aggressiveness: aggressiveness,
		GatePolicy:     policy,

		StopLoss:     cfg.Risk.StopLoss,
		TakeProfit:   cfg.Risk.TakeProfit,
		RiskCooldown: cfg.Risk.Cooldown(),
		ExitRearm:    cfg.Risk.ExitRearm(),

		Cooldown: sp.Cooldown(),

		FastSpan:        sp.MACDFast,
		SlowSpan:        sp.MACDSlow,
		SignalSpan:      sp.MACDSignal,
		CrossoverOnly:   sp.CrossoverOnly,
		CheckInterval:   sp.CheckInterval(),
		HistoryInterval: cfg.History.Interval,
		HistoryLimit:    cfg.History.Limit,

		OBIDepth:     sp.OBILevels,
		OBIThreshold: sp.OBIThreshold,
		WindowSize:   sp.TrendWindow,

		SpreadThreshold: sp.SpreadThreshold,
		MaxPosition:     sp.MaxPosition,
	}, nil
}

// LoopOptions maps the loaded configuration onto loop options.
func LoopOptions(cfg *config.Config) Options {
	return Options{
		Symbol:         cfg.Feed.Symbol,
		Depth:          cfg.Feed.Depth,
		MissDelay:      cfg.Feed.MissDelay(),
		DuplicateDelay: cfg.Feed.DuplicateDelay(),
		PanicPause:     cfg.Feed.PanicPause(),
		HeartbeatEvery: cfg.Feed.HeartbeatEvery,
		Limits:         risk.Limits{MaxNotionalPerOrder: cfg.Risk.MaxNotionalPerOrder},
	}
}
