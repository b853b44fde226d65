package strategy

import (
	"context"
	"fmt"
	"time"

	"bookbot-go/internal/indicator"
	"bookbot-go/internal/signal"
)

// OBIMomentum opens in the direction of a lopsided book when the short-term
// mid-price trend agrees. It only enters from flat.
type OBIMomentum struct {
	params Params
	gate   *riskGate
	mids   *indicator.Window

	lastFire time.Time
}

// NewOBIMomentum builds an imbalance momentum strategy.
func NewOBIMomentum(p Params) *OBIMomentum {
	p = p.withDefaults(ModeOBI)
	return &OBIMomentum{
		params: p,
		gate:   newRiskGate(p, p.GatePolicy),
		mids:   indicator.NewWindow(p.WindowSize),
	}
}

// Name returns the identifier for the strategy implementation.
func (s *OBIMomentum) Name() string { return "OBIMomentum" }

// Decide records the mid-price, lets the Risk Guard handle any open position and
// otherwise looks for an imbalance entry.
func (s *OBIMomentum) Decide(_ context.Context, t signal.Tick) *signal.Signal {
	s.mids.Push(t.Book.Mid())

	if exit, gated := s.gate.check(t); exit != nil || gated {
		return exit
	}
	if !t.Position.Flat() || s.gate.cooling(t.Ts) {
		return nil
	}
	if !s.lastFire.IsZero() && t.Ts.Before(s.lastFire.Add(s.params.Cooldown)) {
		return nil
	}

	trend, ok := s.mids.Trend()
	if !ok {
		return nil
	}
	obi := indicator.Imbalance(t.Book.Bids, t.Book.Asks, s.params.OBIDepth)

	var side signal.Side
	switch {
	case obi > s.params.OBIThreshold && trend > 0:
		side = signal.Buy
	case obi < -s.params.OBIThreshold && trend < 0:
		side = signal.Sell
	default:
		return nil
	}

	s.lastFire = t.Ts
	return &signal.Signal{
		Symbol: t.Symbol,
		Side:   side,
		Qty:    s.params.Quantity,
		Price:  signal.AggressivePrice(side, t.Book, s.params.Aggressiveness),
		Reason: signal.ReasonImbalance,
		Detail: fmt.Sprintf("obi=%.2f trend=%.4f", obi, trend),
		Ts:     t.Ts,
	}
}
