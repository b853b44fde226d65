// Package paper simulates the execution gateway: it fills orders at their limit
// price against a virtual account and reports the resulting position.
package paper

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"bookbot-go/internal/signal"
)

var (
	// ErrInvalidOrder covers non-positive quantity or price and unknown sides.
	ErrInvalidOrder = errors.New("invalid order")
	// ErrInsufficientCash means an exposure-increasing order costs more than free cash.
	ErrInsufficientCash = errors.New("insufficient cash")
	// ErrPositionLimit means the fill would push |position| past the per-symbol cap.
	ErrPositionLimit = errors.New("position limit exceeded")
)

const epsilon = 1e-9

type positionState struct {
	Qty     float64
	AvgCost float64
}

// Account tracks virtual cash, realized PnL, and signed per-symbol positions.
type Account struct {
	mu                   sync.Mutex
	startingCash         float64
	cash                 float64
	realizedPnL          float64
	maxPositionPerSymbol float64
	positions            map[string]positionState
}

// PositionSnapshot exposes a read-only view of a single symbol position.
type PositionSnapshot struct {
	Qty         float64 `json:"qty"`
	AvgCost     float64 `json:"avgCost"`
	MarketValue float64 `json:"marketValue"`
	Unrealized  float64 `json:"unrealized"`
}

// Snapshot represents a thread-safe view of the account state, optionally marked to market using provided prices.
type Snapshot struct {
	Cash        float64                     `json:"cash"`
	RealizedPnL float64                     `json:"realizedPnl"`
	Equity      float64                     `json:"equity"`
	Positions   map[string]PositionSnapshot `json:"positions"`
}

// FillResult reports the account effect of one fill.
type FillResult struct {
	Position signal.Position
	Realized float64
}

// NewAccount constructs an account populated with starting cash and optional position cap.
func NewAccount(startingCash, maxPositionPerSymbol float64) *Account {
	return &Account{
		startingCash:         startingCash,
		cash:                 startingCash,
		maxPositionPerSymbol: maxPositionPerSymbol,
		positions:            make(map[string]positionState),
	}
}

// StartingCash returns the initial bankroll used to compute drawdown.
func (a *Account) StartingCash() float64 { return a.startingCash }

// Fill executes qty at price. Buys add to the signed position and sells subtract,
// so an order can open, add to, reduce, close, or flip a position in one step.
func (a *Account) Fill(symbol string, side signal.Side, qty, price float64) (FillResult, error) {
	if qty <= 0 {
		return FillResult{}, fmt.Errorf("%w: quantity must be positive", ErrInvalidOrder)
	}
	if price <= 0 {
		return FillResult{}, fmt.Errorf("%w: price must be positive", ErrInvalidOrder)
	}
	delta := qty
	switch side {
	case signal.Buy:
	case signal.Sell:
		delta = -qty
	default:
		return FillResult{}, fmt.Errorf("%w: unknown side %q", ErrInvalidOrder, side)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	state := a.positions[symbol]
	newQty := state.Qty + delta
	if math.Abs(newQty) <= epsilon {
		newQty = 0
	}
	if a.maxPositionPerSymbol > 0 && math.Abs(newQty) > a.maxPositionPerSymbol+epsilon {
		return FillResult{}, fmt.Errorf("%w: %s would reach %.8f (cap %.8f)", ErrPositionLimit, symbol, newQty, a.maxPositionPerSymbol)
	}

	var (
		realized float64
		newAvg   float64
	)
	increasing := state.Qty == 0 || (state.Qty > 0) == (delta > 0)
	if increasing {
		if notional := qty * price; notional > a.cash+epsilon {
			return FillResult{}, fmt.Errorf("%w: need %.2f, have %.2f", ErrInsufficientCash, notional, a.cash)
		}
		newAvg = (math.Abs(state.Qty)*state.AvgCost + qty*price) / math.Abs(newQty)
	} else {
		closed := math.Min(qty, math.Abs(state.Qty))
		direction := 1.0
		if state.Qty < 0 {
			direction = -1
		}
		realized = closed * (price - state.AvgCost) * direction
		switch {
		case newQty == 0:
			newAvg = 0
		case (newQty > 0) != (state.Qty > 0):
			// flipped through zero: the remainder opens new exposure at this price
			// and must be covered by the cash left once the old side is closed
			opened := math.Abs(newQty) * price
			if free := a.cash + closed*price*direction; opened > free+epsilon {
				return FillResult{}, fmt.Errorf("%w: flip needs %.2f, have %.2f", ErrInsufficientCash, opened, free)
			}
			newAvg = price
		default:
			newAvg = state.AvgCost
		}
	}

	a.cash -= delta * price
	a.realizedPnL += realized
	if newQty == 0 {
		delete(a.positions, symbol)
	} else {
		a.positions[symbol] = positionState{Qty: newQty, AvgCost: newAvg}
	}
	return FillResult{
		Position: signal.Position{Qty: newQty, EntryPrice: newAvg},
		Realized: realized,
	}, nil
}

// Snapshot returns a copy of balances, optionally marked using the supplied prices map.
func (a *Account) Snapshot(prices map[string]float64) Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	positions := make(map[string]PositionSnapshot, len(a.positions))
	equity := a.cash
	for sym, pos := range a.positions {
		mark := prices[sym]
		marketValue := pos.Qty * mark
		unrealized := (mark - pos.AvgCost) * pos.Qty
		if mark == 0 {
			marketValue = 0
			unrealized = 0
		}
		positions[sym] = PositionSnapshot{
			Qty:         pos.Qty,
			AvgCost:     pos.AvgCost,
			MarketValue: marketValue,
			Unrealized:  unrealized,
		}
		equity += marketValue
	}

	return Snapshot{
		Cash:        a.cash,
		RealizedPnL: a.realizedPnL,
		Equity:      equity,
		Positions:   positions,
	}
}

// AvailableCash reports free cash that can be deployed into new exposure.
func (a *Account) AvailableCash() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cash
}

// Position returns the signed position and average entry for the supplied symbol.
func (a *Account) Position(symbol string) signal.Position {
	a.mu.Lock()
	defer a.mu.Unlock()
	st := a.positions[symbol]
	return signal.Position{Qty: st.Qty, EntryPrice: st.AvgCost}
}

// RealizedPnL returns total closed-trade profit and loss.
func (a *Account) RealizedPnL() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.realizedPnL
}
