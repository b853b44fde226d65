package integration

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bookbot-go/internal/engine"
	"bookbot-go/internal/exchange"
	"bookbot-go/internal/execution"
	"bookbot-go/internal/paper"
	"bookbot-go/internal/signal"
	"bookbot-go/internal/strategy"
)

const sym = "BTCUSDT"

func positionOf(t *testing.T, store *exchange.RedisStore) signal.Position {
	t.Helper()
	pos, err := store.Position(context.Background(), sym)
	require.NoError(t, err)
	return pos
}

// publishLoop keeps refreshing the snapshot with a fresh update id so the
// engine sees a new tick every few milliseconds.
func publishLoop(ctx context.Context, store *exchange.RedisStore, bid, ask *atomic.Value) {
	var id int64
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			id++
			_ = store.PublishBook(ctx, signal.Book{
				Symbol:   sym,
				UpdateID: id,
				Bids:     []signal.Level{{Price: bid.Load().(float64), Qty: 2}},
				Asks:     []signal.Level{{Price: ask.Load().(float64), Qty: 2}},
			})
		}
	}
}

func TestPaperFlowAccumulatesThenStopsOut(t *testing.T) {
	mr := miniredis.RunT(t)
	store := exchange.NewRedisStore(mr.Addr(), 0, zerolog.Nop())
	t.Cleanup(func() { _ = store.Close() })

	dir, err := os.MkdirTemp("", "bb")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	sock := filepath.Join(dir, "gw.sock")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	ledger := paper.NewLedger(8)
	gw := paper.NewGateway(paper.NewAccount(10000, 1), ledger, store, sym, zerolog.Nop())
	gwDone := make(chan error, 1)
	go func() { gwDone <- gw.Serve(ctx, sock) }()
	require.Eventually(t, func() bool {
		_, err := os.Stat(sock)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	strat := strategy.NewSpreadBreakout(strategy.Params{
		Symbol:          sym,
		Quantity:        0.01,
		Aggressiveness:  5,
		SpreadThreshold: 10,
		MaxPosition:     0.02,
		Cooldown:        20 * time.Millisecond,
		StopLoss:        0.02,
		TakeProfit:      0.05,
	})
	exec := execution.NewDispatcher(sock, "/api/order", time.Second, zerolog.Nop())
	loop := engine.New(store, strat, exec, engine.Options{Symbol: sym, MissDelay: 5 * time.Millisecond, DuplicateDelay: time.Millisecond}, zerolog.Nop())

	var bid, ask atomic.Value
	bid.Store(50000.0)
	ask.Store(50020.0)
	go publishLoop(ctx, store, &bid, &ask)

	loopDone := make(chan error, 1)
	go func() { loopDone <- loop.Run(ctx) }()

	require.Eventually(t, func() bool {
		return positionOf(t, store).Qty >= 0.02-1e-9
	}, 5*time.Second, 10*time.Millisecond, "engine should buy up to the cap")

	pos := positionOf(t, store)
	assert.InDelta(t, 0.02, pos.Qty, 1e-9, "never past the cap")
	assert.InDelta(t, 50025, pos.EntryPrice, 1e-6)
	assert.Equal(t, 2, ledger.Len())

	// drop the market 4% below entry
	bid.Store(48000.0)
	ask.Store(48001.0)
	require.Eventually(t, func() bool {
		return positionOf(t, store).Flat()
	}, 5*time.Second, 10*time.Millisecond, "stop loss should flatten the position")

	fills := ledger.Snapshot()
	require.Len(t, fills, 3)
	last := fills[2]
	assert.Equal(t, signal.Sell, last.Side)
	assert.InDelta(t, 0.02, last.Qty, 1e-9)
	assert.InDelta(t, 47995, last.Price, 1e-6)
	assert.Less(t, last.Realized, 0.0)
	assert.Zero(t, positionOf(t, store).EntryPrice)

	cancel()
	for _, ch := range []chan error{loopDone, gwDone} {
		select {
		case err := <-ch:
			assert.NoError(t, err)
		case <-time.After(3 * time.Second):
			t.Fatal("component did not shut down")
		}
	}
}

func TestStubFeedReachesStrategy(t *testing.T) {
	mr := miniredis.RunT(t)
	store := exchange.NewRedisStore(mr.Addr(), 0, zerolog.Nop())
	t.Cleanup(func() { _ = store.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	feed := exchange.NewFeed(exchange.ProviderStub, []string{sym}, zerolog.Nop(),
		exchange.WithInterval(5*time.Millisecond), exchange.WithSeed(7))
	books := make(chan signal.Book, 16)
	go func() { _ = feed.Run(ctx, books) }()
	go func() { _ = exchange.Publish(ctx, books, store, zerolog.Nop()) }()

	strat, err := strategy.Build("obi", strategy.Params{Symbol: sym, Quantity: 0.001}, nil, zerolog.Nop())
	require.NoError(t, err)
	loop := engine.New(store, strat, execution.NewLogExecutor(zerolog.Nop()), engine.Options{Symbol: sym}, zerolog.Nop())

	require.Eventually(t, func() bool {
		loop.Step(ctx)
		return loop.Accepted() >= 3
	}, 3*time.Second, 5*time.Millisecond)
	assert.Positive(t, loop.LastUpdateID())
}
