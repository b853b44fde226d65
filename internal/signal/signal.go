// Package signal standardizes payloads shared between the feed, strategy and execution layers.
package signal

import (
	"errors"
	"fmt"
	"time"
)

// Side enumerates order directions.
type Side string

const (
	// Buy lifts the ask.
	Buy Side = "BUY"
	// Sell hits the bid.
	Sell Side = "SELL"
)

// Valid reports whether s is one of the two known sides.
func (s Side) Valid() bool { return s == Buy || s == Sell }

// Opposite returns the side that unwinds s.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// Level is one price level of the book.
type Level struct {
	Price float64 `json:"p"`
	Qty   float64 `json:"q"`
}

// Book is a read-only top-N view of one order-book refresh.
// Bids are sorted descending, asks ascending.
type Book struct {
	Symbol   string
	UpdateID int64
	Bids     []Level
	Asks     []Level
}

// BestBid returns the highest bid price or 0 when the side is empty.
func (b Book) BestBid() float64 {
	if len(b.Bids) == 0 {
		return 0
	}
	return b.Bids[0].Price
}

// BestAsk returns the lowest ask price or 0 when the side is empty.
func (b Book) BestAsk() float64 {
	if len(b.Asks) == 0 {
		return 0
	}
	return b.Asks[0].Price
}

// Mid returns the midpoint between best bid and best ask.
func (b Book) Mid() float64 { return (b.BestBid() + b.BestAsk()) / 2 }

// Position is the signed holding reported by the external feed.
// Qty > 0 is long, Qty < 0 is short, EntryPrice is 0 when flat.
type Position struct {
	Qty        float64
	EntryPrice float64
}

// Flat reports a zero position.
func (p Position) Flat() bool { return p.Qty == 0 }

// Long reports a positive position.
func (p Position) Long() bool { return p.Qty > 0 }

// Short reports a negative position.
func (p Position) Short() bool { return p.Qty < 0 }

// Tick is the context assembled by the tick loop for one decision.
type Tick struct {
	Symbol   string
	Book     Book
	Position Position
	Ts       time.Time
}

// Reason classifies why a signal was produced.
type Reason string

const (
	ReasonStopLoss       Reason = "stop loss"
	ReasonTakeProfit     Reason = "take profit"
	ReasonTrendOpen      Reason = "trend open"
	ReasonTrendReverse   Reason = "trend reverse to flat"
	ReasonImbalance      Reason = "imbalance momentum"
	ReasonSpreadBreakout Reason = "spread breakout"
)

// Closing reports whether the reason forces an exit.
func (r Reason) Closing() bool { return r == ReasonStopLoss || r == ReasonTakeProfit }

// Signal is a single intended order produced by a strategy.
type Signal struct {
	Symbol string
	Side   Side
	Qty    float64
	Price  float64
	Reason Reason
	Detail string
	Ts     time.Time
}

var ErrInvalidSignal = errors.New("invalid signal")

// Validate checks the invariants every signal must hold before dispatch.
func (s Signal) Validate() error {
	switch {
	case s.Symbol == "":
		return fmt.Errorf("%w: empty symbol", ErrInvalidSignal)
	case !s.Side.Valid():
		return fmt.Errorf("%w: side %q", ErrInvalidSignal, s.Side)
	case s.Qty <= 0:
		return fmt.Errorf("%w: quantity %.8f", ErrInvalidSignal, s.Qty)
	case s.Price <= 0:
		return fmt.Errorf("%w: price %.8f", ErrInvalidSignal, s.Price)
	}
	return nil
}

// Notional returns quantity times limit price.
func (s Signal) Notional() float64 { return s.Qty * s.Price }

// AggressivePrice returns a limit price that crosses the book by offset:
// buys pay best ask plus offset, sells accept best bid minus offset.
func AggressivePrice(side Side, book Book, offset float64) float64 {
	if side == Buy {
		return book.BestAsk() + offset
	}
	return book.BestBid() - offset
}
