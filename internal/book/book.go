// Package book decodes order-book snapshots from the feed store into top-N views
// and drops refreshes whose update id has already been processed.
package book

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"bookbot-go/internal/signal"
)

// DefaultDepth is the number of levels kept per side when none is configured.
const DefaultDepth = 20

var (
	// ErrNoData means there is nothing new to process this poll.
	ErrNoData = errors.New("no new book data")
	// ErrStale means the snapshot carried an update id at or below the last accepted one.
	ErrStale = fmt.Errorf("%w: stale update id", ErrNoData)
)

type wireLevel struct {
	Price decimal.Decimal `json:"p"`
	Qty   decimal.Decimal `json:"q"`
}

// Snapshot is the wire schema stored under OrderBook:<SYMBOL>.
// Prices and quantities are decimal strings; bare JSON numbers are accepted too.
type Snapshot struct {
	UpdateID  int64       `json:"u"`
	Symbol    string      `json:"s,omitempty"`
	Timestamp int64       `json:"t,omitempty"`
	Bids      []wireLevel `json:"b"`
	Asks      []wireLevel `json:"a"`
}

// Encode renders a book in the wire schema.
func Encode(b signal.Book, tsMillis int64) ([]byte, error) {
	snap := Snapshot{
		UpdateID:  b.UpdateID,
		Symbol:    b.Symbol,
		Timestamp: tsMillis,
		Bids:      toWire(b.Bids),
		Asks:      toWire(b.Asks),
	}
	return json.Marshal(snap)
}

func toWire(levels []signal.Level) []wireLevel {
	out := make([]wireLevel, 0, len(levels))
	for _, lvl := range levels {
		out = append(out, wireLevel{
			Price: decimal.NewFromFloat(lvl.Price),
			Qty:   decimal.NewFromFloat(lvl.Qty),
		})
	}
	return out
}

// Deduper accepts strictly increasing update ids.
type Deduper struct {
	last int64
	seen bool
}

// Accept records id and reports whether it is newer than every id accepted before.
func (d *Deduper) Accept(id int64) bool {
	if d.seen && id <= d.last {
		return false
	}
	d.last = id
	d.seen = true
	return true
}

// Last returns the most recent accepted id.
func (d *Deduper) Last() int64 { return d.last }

// View turns raw snapshots for one symbol into books.
// Not safe for concurrent use; the tick loop owns it.
type View struct {
	symbol string
	depth  int
	dedup  Deduper
}

// NewView builds a view that keeps depth levels per side.
func NewView(symbol string, depth int) *View {
	if depth <= 0 {
		depth = DefaultDepth
	}
	return &View{symbol: symbol, depth: depth}
}

// LastUpdateID returns the last update id the view advanced to.
func (v *View) LastUpdateID() int64 { return v.dedup.Last() }

// Next decodes raw and returns the book when it is new and usable.
// Absent, duplicate, stale, malformed, empty or crossed snapshots all yield an
// error wrapping ErrNoData so the caller can simply wait for the next refresh.
// The update id advances as soon as it is accepted, even if the levels are unusable.
func (v *View) Next(raw []byte) (signal.Book, error) {
	if len(raw) == 0 {
		return signal.Book{}, ErrNoData
	}
	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return signal.Book{}, fmt.Errorf("%w: decode: %v", ErrNoData, err)
	}
	if !v.dedup.Accept(snap.UpdateID) {
		return signal.Book{}, fmt.Errorf("%w: got %d, last %d", ErrStale, snap.UpdateID, v.dedup.Last())
	}

	b := signal.Book{
		Symbol:   v.symbol,
		UpdateID: snap.UpdateID,
		Bids:     fromWire(snap.Bids, v.depth),
		Asks:     fromWire(snap.Asks, v.depth),
	}
	if len(b.Bids) == 0 || len(b.Asks) == 0 {
		return signal.Book{}, fmt.Errorf("%w: empty side at %d", ErrNoData, snap.UpdateID)
	}
	if b.BestBid() >= b.BestAsk() {
		return signal.Book{}, fmt.Errorf("%w: crossed book bid=%.8f ask=%.8f", ErrNoData, b.BestBid(), b.BestAsk())
	}
	return b, nil
}

func fromWire(levels []wireLevel, depth int) []signal.Level {
	out := make([]signal.Level, 0, min(len(levels), depth))
	for _, lvl := range levels {
		if len(out) == depth {
			break
		}
		px, _ := lvl.Price.Float64()
		qty, _ := lvl.Qty.Float64()
		if px <= 0 || qty <= 0 {
			continue
		}
		out = append(out, signal.Level{Price: px, Qty: qty})
	}
	return out
}
