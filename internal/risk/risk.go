// Package risk enforces capital-preservation rules that override strategy logic.
package risk

import (
	"fmt"
	"math"
	"strings"

	"bookbot-go/internal/signal"
)

// Limits caps the notional of a single order. Zero disables the cap.
type Limits struct {
	MaxNotionalPerOrder float64
}

// Allow reports whether an order of the given notional may be sent.
func (l Limits) Allow(notional float64) bool {
	if l.MaxNotionalPerOrder <= 0 {
		return true
	}
	return notional <= l.MaxNotionalPerOrder
}

// GatePolicy decides how much discretionary logic runs while a position is open.
type GatePolicy string

const (
	// GateFull suppresses all discretionary logic whenever the position is non-zero.
	GateFull GatePolicy = "full"
	// GateBreachOnly lets discretionary exits and reversals through unless a threshold is breached.
	GateBreachOnly GatePolicy = "breach_only"
)

// ParseGatePolicy maps a config string to a policy; empty means GateFull.
func ParseGatePolicy(s string) (GatePolicy, error) {
	switch GatePolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", GateFull:
		return GateFull, nil
	case GateBreachOnly:
		return GateBreachOnly, nil
	default:
		return "", fmt.Errorf("unknown gate policy %q", s)
	}
}

// Guard closes positions whose unrealized P&L fraction crosses stop-loss or take-profit.
type Guard struct {
	stopLoss   float64
	takeProfit float64
	offset     float64
}

// NewGuard builds a guard. stopLoss and takeProfit are fractions of the entry price;
// offset is the absolute price concession used to guarantee the closing fill.
func NewGuard(stopLoss, takeProfit, offset float64) *Guard {
	return &Guard{stopLoss: stopLoss, takeProfit: takeProfit, offset: offset}
}

// StopLoss returns the configured stop-loss fraction.
func (g *Guard) StopLoss() float64 { return g.stopLoss }

// TakeProfit returns the configured take-profit fraction.
func (g *Guard) TakeProfit() float64 { return g.takeProfit }

// PnL returns the unrealized P&L fraction using the price the position would have
// to trade at to close: the bid for a long, the ask for a short.
// ok is false when the position is flat or has no entry price.
func PnL(pos signal.Position, b signal.Book) (float64, bool) {
	if pos.Flat() || pos.EntryPrice <= 0 {
		return 0, false
	}
	if pos.Long() {
		return (b.BestBid() - pos.EntryPrice) / pos.EntryPrice, true
	}
	return (pos.EntryPrice - b.BestAsk()) / pos.EntryPrice, true
}

// Check returns a closing signal when a threshold is breached and nil otherwise.
func (g *Guard) Check(t signal.Tick) *signal.Signal {
	pnl, ok := PnL(t.Position, t.Book)
	if !ok {
		return nil
	}

	var reason signal.Reason
	switch {
	case g.stopLoss > 0 && pnl <= -g.stopLoss:
		reason = signal.ReasonStopLoss
	case g.takeProfit > 0 && pnl >= g.takeProfit:
		reason = signal.ReasonTakeProfit
	default:
		return nil
	}

	side := signal.Sell
	if t.Position.Short() {
		side = signal.Buy
	}
	return &signal.Signal{
		Symbol: t.Symbol,
		Side:   side,
		Qty:    math.Abs(t.Position.Qty),
		Price:  signal.AggressivePrice(side, t.Book, g.offset),
		Reason: reason,
		Detail: fmt.Sprintf("pnl=%.2f%% entry=%.2f", pnl*100, t.Position.EntryPrice),
		Ts:     t.Ts,
	}
}
