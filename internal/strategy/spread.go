package strategy

import (
	"context"
	"fmt"
	"time"

	"bookbot-go/internal/indicator"
	"bookbot-go/internal/risk"
	"bookbot-go/internal/signal"
)

// SpreadBreakout buys when the spread widens past a threshold, accumulating a
// long up to MaxPosition. It never shorts and never reverses.
type SpreadBreakout struct {
	params Params
	gate   *riskGate

	lastFire time.Time
}

// NewSpreadBreakout builds a spread breakout strategy. Accumulating up to the cap
// needs open positions to reach the entry logic, so the guard only intercepts breaches.
func NewSpreadBreakout(p Params) *SpreadBreakout {
	p = p.withDefaults(ModeSpread)
	return &SpreadBreakout{
		params: p,
		gate:   newRiskGate(p, risk.GateBreachOnly),
	}
}

// Name returns the identifier for the strategy implementation.
func (s *SpreadBreakout) Name() string { return "SpreadBreakout" }

// Decide checks, in order: Risk Guard, position cap, cooldown, spread threshold.
func (s *SpreadBreakout) Decide(_ context.Context, t signal.Tick) *signal.Signal {
	if exit, _ := s.gate.check(t); exit != nil {
		return exit
	}
	pos := t.Position.Qty
	if pos < 0 {
		return nil
	}
	if s.params.MaxPosition > 0 && pos >= s.params.MaxPosition {
		return nil
	}
	if s.gate.cooling(t.Ts) {
		return nil
	}
	if !s.lastFire.IsZero() && t.Ts.Before(s.lastFire.Add(s.params.Cooldown)) {
		return nil
	}

	spread := indicator.Spread(t.Book)
	if spread < s.params.SpreadThreshold {
		return nil
	}

	s.lastFire = t.Ts
	return &signal.Signal{
		Symbol: t.Symbol,
		Side:   signal.Buy,
		Qty:    s.params.Quantity,
		Price:  signal.AggressivePrice(signal.Buy, t.Book, s.params.Aggressiveness),
		Reason: signal.ReasonSpreadBreakout,
		Detail: fmt.Sprintf("spread=%.2f pos=%.4f", spread, pos),
		Ts:     t.Ts,
	}
}
