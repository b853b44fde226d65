// Package strategy turns ticks into at most one trade signal per refresh.
package strategy

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"bookbot-go/internal/indicator"
	"bookbot-go/internal/risk"
	sig "bookbot-go/internal/signal"
)

// Strategy defines behaviour shared by strategy implementations used by the engine.
type Strategy interface {
	Decide(ctx context.Context, t sig.Tick) *sig.Signal
	Name() string
}

// CloseSource supplies recent candle closes, oldest first.
type CloseSource interface {
	Closes(ctx context.Context, symbol, interval string, limit int) ([]float64, error)
}

// Mode names one member of the closed strategy set.
type Mode string

const (
	ModeTrend  Mode = "trend"
	ModeOBI    Mode = "obi"
	ModeSpread Mode = "spread"
)

// ParseMode accepts the configured spelling of a strategy mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "trend", "trend_follow", "trend_follower", "macd":
		return ModeTrend, nil
	case "obi", "obi_momentum":
		return ModeOBI, nil
	case "spread", "spread_breakout":
		return ModeSpread, nil
	default:
		return "", fmt.Errorf("unknown strategy mode %q", s)
	}
}

// Params expresses tunable knobs required by strategy constructors.
type Params struct {
	Symbol         string
	Quantity       float64
	Aggressiveness float64
	GatePolicy     risk.GatePolicy

	StopLoss     float64
	TakeProfit   float64
	RiskCooldown time.Duration
	ExitRearm    time.Duration

	// Cooldown is the minimum gap between two discretionary signals.
	Cooldown time.Duration

	FastSpan        int
	SlowSpan        int
	SignalSpan      int
	CheckInterval   time.Duration
	HistoryInterval string
	HistoryLimit    int
	// CrossoverOnly acts on histogram sign changes alone. Otherwise a
	// non-crossing histogram still counts in the direction of its sign.
	CrossoverOnly bool

	OBIDepth     int
	OBIThreshold float64
	WindowSize   int

	SpreadThreshold float64
	MaxPosition     float64
}

// Defaults shared by every mode.
const (
	DefaultQuantity       = 0.01
	DefaultAggressiveness = 5.0
	DefaultStopLoss       = 0.02
	DefaultTakeProfit     = 0.05
	DefaultRiskCooldown   = 10 * time.Second
	DefaultExitRearm      = time.Second

	DefaultCheckInterval   = 3 * time.Second
	DefaultTrendCooldown   = 5 * time.Second
	DefaultHistoryInterval = "5m"
	DefaultHistoryLimit    = 50

	DefaultOBIThreshold = 0.6
	DefaultOBICooldown  = 10 * time.Second

	DefaultSpreadCooldown  = 10 * time.Second
	DefaultSpreadThreshold = 0.1
	DefaultMaxPosition     = 0.03
)

func (p Params) withDefaults(mode Mode) Params {
	if p.Quantity <= 0 {
		p.Quantity = DefaultQuantity
	}
	if p.Aggressiveness < 0 {
		p.Aggressiveness = 0
	}
	if p.GatePolicy == "" {
		p.GatePolicy = risk.GateFull
	}
	if p.StopLoss <= 0 {
		p.StopLoss = DefaultStopLoss
	}
	if p.TakeProfit <= 0 {
		p.TakeProfit = DefaultTakeProfit
	}
	if p.RiskCooldown <= 0 {
		p.RiskCooldown = DefaultRiskCooldown
	}
	if p.ExitRearm <= 0 {
		p.ExitRearm = DefaultExitRearm
	}
	if p.Cooldown <= 0 {
		switch mode {
		case ModeTrend:
			p.Cooldown = DefaultTrendCooldown
		case ModeOBI:
			p.Cooldown = DefaultOBICooldown
		default:
			p.Cooldown = DefaultSpreadCooldown
		}
	}
	if p.CheckInterval <= 0 {
		p.CheckInterval = DefaultCheckInterval
	}
	if p.HistoryInterval == "" {
		p.HistoryInterval = DefaultHistoryInterval
	}
	if p.HistoryLimit <= 0 {
		p.HistoryLimit = DefaultHistoryLimit
	}
	if p.OBIDepth <= 0 {
		p.OBIDepth = indicator.DefaultImbalanceDepth
	}
	if p.OBIThreshold <= 0 {
		p.OBIThreshold = DefaultOBIThreshold
	}
	if p.WindowSize <= 0 {
		p.WindowSize = indicator.DefaultWindowSize
	}
	if p.SpreadThreshold <= 0 {
		p.SpreadThreshold = DefaultSpreadThreshold
	}
	if p.MaxPosition <= 0 {
		p.MaxPosition = DefaultMaxPosition
	}
	return p
}

// Build returns the strategy implementation matching the configured mode.
// The trend follower requires a CloseSource.
func Build(mode string, params Params, history CloseSource, log zerolog.Logger) (Strategy, error) {
	m, err := ParseMode(mode)
	if err != nil {
		return nil, err
	}
	params = params.withDefaults(m)
	switch m {
	case ModeOBI:
		return NewOBIMomentum(params), nil
	case ModeSpread:
		return NewSpreadBreakout(params), nil
	default:
		if history == nil {
			return nil, fmt.Errorf("trend strategy requires a candle history source")
		}
		return NewTrendFollower(params, history, log), nil
	}
}
