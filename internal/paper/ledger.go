package paper

import (
	"strings"
	"sync"
	"time"

	"bookbot-go/internal/signal"
)

// Fill is one executed paper order.
type Fill struct {
	ClientOrderID string      `json:"clientOrderId"`
	Symbol        string      `json:"symbol"`
	Side          signal.Side `json:"side"`
	Qty           float64     `json:"quantity"`
	Price         float64     `json:"price"`
	Realized      float64     `json:"realizedPnl"`
	PositionAfter float64     `json:"positionAfter"`
	Ts            time.Time   `json:"ts"`
}

// Ledger keeps the most recent fills in memory. Older fills are evicted once
// the limit is reached; a limit of zero keeps everything.
type Ledger struct {
	mu    sync.Mutex
	limit int
	fills []Fill
	total int
}

// NewLedger builds a ledger retaining at most limit fills.
func NewLedger(limit int) *Ledger {
	if limit < 0 {
		limit = 0
	}
	return &Ledger{limit: limit, fills: make([]Fill, 0, min(limit, 1024))}
}

// Record appends a fill, evicting the oldest when full.
func (l *Ledger) Record(fill Fill) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.total++
	if l.limit > 0 && len(l.fills) == l.limit {
		copy(l.fills, l.fills[1:])
		l.fills[len(l.fills)-1] = fill
		return
	}
	l.fills = append(l.fills, fill)
}

// Snapshot returns retained fills, oldest first. A non-empty symbol filters.
func (l *Ledger) Snapshot(symbol ...string) []Fill {
	l.mu.Lock()
	defer l.mu.Unlock()
	var want string
	if len(symbol) > 0 {
		want = strings.ToUpper(symbol[0])
	}
	out := make([]Fill, 0, len(l.fills))
	for _, f := range l.fills {
		if want == "" || f.Symbol == want {
			out = append(out, f)
		}
	}
	return out
}

// Len is the number of retained fills.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.fills)
}

// Total counts every fill ever recorded, evicted ones included.
func (l *Ledger) Total() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.total
}

// Reset drops retained fills and the running total.
func (l *Ledger) Reset() {
	l.mu.Lock()
	l.fills = l.fills[:0]
	l.total = 0
	l.mu.Unlock()
}
