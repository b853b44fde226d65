package strategy

import (
	"context"
	"errors"
	"time"

	"bookbot-go/internal/signal"
)

var t0 = time.Unix(1700000000, 0)

func at(offset time.Duration) time.Time { return t0.Add(offset) }

func makeBook(bid, bidQty, ask, askQty float64) signal.Book {
	return signal.Book{
		Symbol: "BTCUSDT",
		Bids:   []signal.Level{{Price: bid, Qty: bidQty}},
		Asks:   []signal.Level{{Price: ask, Qty: askQty}},
	}
}

func makeTick(b signal.Book, pos signal.Position, ts time.Time) signal.Tick {
	return signal.Tick{Symbol: "BTCUSDT", Book: b, Position: pos, Ts: ts}
}

type fakeHistory struct {
	closes []float64
	err    error
	calls  int
}

func (f *fakeHistory) Closes(_ context.Context, _, _ string, _ int) ([]float64, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.closes, nil
}

func risingCloses() []float64 {
	out := make([]float64, 50)
	for i := range out {
		out[i] = 50000 + float64(i*i)
	}
	return out
}

func fallingCloses() []float64 {
	out := make([]float64, 50)
	for i := range out {
		out[i] = 50000 - float64(i*i)
	}
	return out
}

var errHistory = errors.New("klines: connection refused")
