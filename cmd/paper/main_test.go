package main

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"

	"bookbot-go/internal/exchange"
	"bookbot-go/internal/paper"
)

func TestResetPositionFlattensStore(t *testing.T) {
	mr := miniredis.RunT(t)
	mr.Set(exchange.PositionKey("BTCUSDT"), "0.03")
	mr.Set(exchange.EntryPriceKey("BTCUSDT"), "50100")

	store := exchange.NewRedisStore(mr.Addr(), 0, zerolog.Nop())
	defer store.Close()

	if err := resetPosition(context.Background(), store, paper.NewAccount(10000, 1), "BTCUSDT"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	pos, err := store.Position(context.Background(), "BTCUSDT")
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if !pos.Flat() || pos.EntryPrice != 0 {
		t.Fatalf("expected flat position, got %+v", pos)
	}
}
