package paper

import (
	"errors"
	"math"
	"testing"

	"bookbot-go/internal/signal"
)

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-6 }

func TestFillBuySellPnL(t *testing.T) {
	account := NewAccount(1000, 1)

	if _, err := account.Fill("BTCUSDT", signal.Buy, 0.5, 1000); err != nil {
		t.Fatalf("unexpected buy error: %v", err)
	}
	res, err := account.Fill("BTCUSDT", signal.Buy, 0.25, 1100)
	if err != nil {
		t.Fatalf("unexpected second buy error: %v", err)
	}
	if !approx(res.Position.Qty, 0.75) || !approx(res.Position.EntryPrice, (500+275)/0.75) {
		t.Fatalf("unexpected position %+v", res.Position)
	}

	snap := account.Snapshot(map[string]float64{"BTCUSDT": 1150})
	if snap.Equity <= 0 {
		t.Fatalf("equity should be positive")
	}

	res, err = account.Fill("BTCUSDT", signal.Sell, 0.25, 1200)
	if err != nil {
		t.Fatalf("unexpected sell error: %v", err)
	}
	if res.Realized <= 0 || !approx(account.RealizedPnL(), res.Realized) {
		t.Fatalf("expected positive realized pnl got %.2f", res.Realized)
	}
	if !approx(res.Position.EntryPrice, (500+275)/0.75) {
		t.Fatalf("reducing must keep the average entry, got %.4f", res.Position.EntryPrice)
	}

	snap = account.Snapshot(map[string]float64{"BTCUSDT": 1180})
	if math.Abs(snap.Cash+snap.Positions["BTCUSDT"].MarketValue-snap.Equity) > 1e-6 {
		t.Fatalf("equity did not balance")
	}
}

func TestFillShortAndCover(t *testing.T) {
	account := NewAccount(10000, 1)
	res, err := account.Fill("BTCUSDT", signal.Sell, 0.1, 50000)
	if err != nil {
		t.Fatalf("unexpected short error: %v", err)
	}
	if res.Position.Qty != -0.1 || res.Position.EntryPrice != 50000 {
		t.Fatalf("unexpected short position %+v", res.Position)
	}
	if !approx(account.AvailableCash(), 15000) {
		t.Fatalf("short proceeds not credited: %.2f", account.AvailableCash())
	}

	res, err = account.Fill("BTCUSDT", signal.Buy, 0.1, 49000)
	if err != nil {
		t.Fatalf("unexpected cover error: %v", err)
	}
	if !res.Position.Flat() || res.Position.EntryPrice != 0 {
		t.Fatalf("expected flat after cover, got %+v", res.Position)
	}
	if !approx(res.Realized, 100) {
		t.Fatalf("expected 100 realized on short, got %.4f", res.Realized)
	}
	if !approx(account.AvailableCash(), 10100) {
		t.Fatalf("unexpected cash after cover %.2f", account.AvailableCash())
	}
}

func TestFillFlipThroughZero(t *testing.T) {
	account := NewAccount(100000, 1)
	if _, err := account.Fill("BTCUSDT", signal.Buy, 0.02, 50000); err != nil {
		t.Fatalf("unexpected buy error: %v", err)
	}
	res, err := account.Fill("BTCUSDT", signal.Sell, 0.05, 51000)
	if err != nil {
		t.Fatalf("unexpected flip error: %v", err)
	}
	if !approx(res.Position.Qty, -0.03) || res.Position.EntryPrice != 51000 {
		t.Fatalf("flip must open the remainder at the fill price, got %+v", res.Position)
	}
	if !approx(res.Realized, 20) {
		t.Fatalf("expected 20 realized on the closed part, got %.4f", res.Realized)
	}
	if pos := account.Position("BTCUSDT"); !approx(pos.Qty, -0.03) {
		t.Fatalf("unexpected stored position %+v", pos)
	}
}

func TestFillFlipNeedsCashForRemainder(t *testing.T) {
	account := NewAccount(1000, 1)
	if _, err := account.Fill("BTCUSDT", signal.Buy, 0.01, 50000); err != nil {
		t.Fatalf("unexpected buy error: %v", err)
	}
	// closing 0.01 frees 500, leaving 1000 against a 2000 short remainder
	_, err := account.Fill("BTCUSDT", signal.Sell, 0.05, 50000)
	if !errors.Is(err, ErrInsufficientCash) {
		t.Fatalf("expected insufficient cash on flip, got %v", err)
	}
	if pos := account.Position("BTCUSDT"); !approx(pos.Qty, 0.01) || pos.EntryPrice != 50000 {
		t.Fatalf("rejected flip must leave the position untouched, got %+v", pos)
	}
	if cash := account.AvailableCash(); !approx(cash, 500) {
		t.Fatalf("rejected flip must leave cash untouched, got %.4f", cash)
	}

	res, err := account.Fill("BTCUSDT", signal.Sell, 0.03, 50000)
	if err != nil {
		t.Fatalf("flip within cash should fill: %v", err)
	}
	if !approx(res.Position.Qty, -0.02) {
		t.Fatalf("unexpected position after flip %+v", res.Position)
	}
}

func TestFillInsufficientCash(t *testing.T) {
	account := NewAccount(10, 1)
	if _, err := account.Fill("BTCUSDT", signal.Buy, 0.1, 200); !errors.Is(err, ErrInsufficientCash) {
		t.Fatalf("expected cash error, got %v", err)
	}
}

func TestFillPositionLimit(t *testing.T) {
	account := NewAccount(1000, 0.1)
	if _, err := account.Fill("BTCUSDT", signal.Buy, 0.2, 1000); !errors.Is(err, ErrPositionLimit) {
		t.Fatalf("expected position limit error, got %v", err)
	}
	if _, err := account.Fill("BTCUSDT", signal.Sell, 0.2, 1000); !errors.Is(err, ErrPositionLimit) {
		t.Fatalf("cap applies to shorts too, got %v", err)
	}
}

func TestFillInvalidOrder(t *testing.T) {
	account := NewAccount(1000, 1)
	cases := []struct {
		side       signal.Side
		qty, price float64
	}{
		{signal.Buy, 0, 100},
		{signal.Sell, 1, 0},
		{signal.Side("HOLD"), 1, 100},
	}
	for _, tc := range cases {
		if _, err := account.Fill("BTCUSDT", tc.side, tc.qty, tc.price); !errors.Is(err, ErrInvalidOrder) {
			t.Fatalf("expected invalid order for %+v, got %v", tc, err)
		}
	}
}
