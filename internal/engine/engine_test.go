package engine

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bookbot-go/internal/book"
	"bookbot-go/internal/config"
	"bookbot-go/internal/execution"
	"bookbot-go/internal/risk"
	"bookbot-go/internal/signal"
	"bookbot-go/internal/strategy"
)

type fakeStore struct {
	mu       sync.Mutex
	raw      []byte
	pos      signal.Position
	pingErr  error
	snapErr  error
	posErr   error
	panicOn  int
	polls    int
	posReads int
}

func (s *fakeStore) Ping(context.Context) error { return s.pingErr }

func (s *fakeStore) Snapshot(context.Context, string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.polls++
	if s.panicOn > 0 && s.polls == s.panicOn {
		panic("corrupt snapshot")
	}
	return s.raw, s.snapErr
}

func (s *fakeStore) Position(context.Context, string) (signal.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.posReads++
	return s.pos, s.posErr
}

func (s *fakeStore) publish(t *testing.T, id int64, bid, ask float64) {
	t.Helper()
	raw, err := book.Encode(signal.Book{
		UpdateID: id,
		Bids:     []signal.Level{{Price: bid, Qty: 1}},
		Asks:     []signal.Level{{Price: ask, Qty: 1}},
	}, 0)
	require.NoError(t, err)
	s.mu.Lock()
	s.raw = raw
	s.mu.Unlock()
}

type fakeExec struct {
	orders []execution.Order
	err    error
}

func (e *fakeExec) Submit(_ context.Context, o execution.Order) (execution.Result, error) {
	e.orders = append(e.orders, o)
	if e.err != nil {
		return execution.Result{Outcome: execution.ClassifyErr(e.err)}, e.err
	}
	return execution.Result{Outcome: execution.Accepted, ClientOrderID: "ok"}, nil
}

// scripted returns queued signals, one per Decide call.
type scripted struct {
	out   []*signal.Signal
	ticks []signal.Tick
}

func (s *scripted) Name() string { return "scripted" }

func (s *scripted) Decide(_ context.Context, t signal.Tick) *signal.Signal {
	s.ticks = append(s.ticks, t)
	if len(s.out) == 0 {
		return nil
	}
	next := s.out[0]
	s.out = s.out[1:]
	return next
}

func newLoop(store Store, strat strategy.Strategy, exec execution.Executor, opts Options) *Loop {
	if opts.Symbol == "" {
		opts.Symbol = "BTCUSDT"
	}
	return New(store, strat, exec, opts, zerolog.Nop())
}

func TestStepMissAndDuplicateDelays(t *testing.T) {
	store := &fakeStore{}
	strat := &scripted{}
	loop := newLoop(store, strat, &fakeExec{}, Options{MissDelay: 50 * time.Millisecond, DuplicateDelay: 5 * time.Millisecond})
	ctx := context.Background()

	assert.Equal(t, 50*time.Millisecond, loop.Step(ctx), "absent snapshot")

	store.publish(t, 10, 100, 101)
	assert.Zero(t, loop.Step(ctx))
	assert.Equal(t, 5*time.Millisecond, loop.Step(ctx), "same id again")
	assert.Len(t, strat.ticks, 1, "duplicate id must not reach the strategy")

	store.publish(t, 9, 100, 101)
	assert.Equal(t, 5*time.Millisecond, loop.Step(ctx), "older id")
	assert.Len(t, strat.ticks, 1)
	assert.Equal(t, int64(10), loop.LastUpdateID())
}

func TestStepBuildsTick(t *testing.T) {
	store := &fakeStore{pos: signal.Position{Qty: -0.02, EntryPrice: 50100}}
	strat := &scripted{}
	loop := newLoop(store, strat, &fakeExec{}, Options{})
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	loop.now = func() time.Time { return fixed }

	store.publish(t, 1, 50000, 50001)
	loop.Step(context.Background())

	require.Len(t, strat.ticks, 1)
	tick := strat.ticks[0]
	assert.Equal(t, "BTCUSDT", tick.Symbol)
	assert.Equal(t, 50000.0, tick.Book.BestBid())
	assert.Equal(t, 50001.0, tick.Book.BestAsk())
	assert.Equal(t, store.pos, tick.Position)
	assert.Equal(t, fixed, tick.Ts)
	assert.Equal(t, int64(1), loop.Accepted())
}

func TestStepCrossedBookIsNoData(t *testing.T) {
	store := &fakeStore{}
	strat := &scripted{}
	loop := newLoop(store, strat, &fakeExec{}, Options{})

	store.publish(t, 1, 101, 100)
	loop.Step(context.Background())
	assert.Empty(t, strat.ticks)
	assert.Equal(t, int64(1), loop.LastUpdateID(), "id advances even when the book is unusable")
}

func TestStepStoreErrors(t *testing.T) {
	store := &fakeStore{snapErr: errors.New("conn reset")}
	strat := &scripted{}
	loop := newLoop(store, strat, &fakeExec{}, Options{MissDelay: 7 * time.Millisecond})

	assert.Equal(t, 7*time.Millisecond, loop.Step(context.Background()))

	store.snapErr = nil
	store.posErr = errors.New("timeout")
	store.publish(t, 1, 100, 101)
	assert.Equal(t, 7*time.Millisecond, loop.Step(context.Background()))
	assert.Empty(t, strat.ticks, "no decision without a position")
}

func TestStepDispatchesSignal(t *testing.T) {
	store := &fakeStore{}
	exec := &fakeExec{}
	strat := &scripted{out: []*signal.Signal{{Symbol: "BTCUSDT", Side: signal.Buy, Qty: 0.01, Price: 50006, Reason: signal.ReasonTrendOpen}}}
	loop := newLoop(store, strat, exec, Options{})

	store.publish(t, 1, 50000, 50001)
	loop.Step(context.Background())

	require.Len(t, exec.orders, 1)
	o := exec.orders[0]
	assert.Equal(t, signal.Buy, o.Side)
	assert.Equal(t, 0.01, o.Qty)
	assert.Equal(t, 50006.0, o.Price)
	assert.NotEmpty(t, o.RequestID)
}

func TestStepDropsInvalidAndOversizedSignals(t *testing.T) {
	store := &fakeStore{}
	exec := &fakeExec{}
	strat := &scripted{out: []*signal.Signal{
		{Symbol: "BTCUSDT", Side: signal.Buy, Qty: 0, Price: 50006},
		{Symbol: "BTCUSDT", Side: signal.Buy, Qty: 1, Price: 50006, Reason: signal.ReasonSpreadBreakout},
		{Symbol: "BTCUSDT", Side: signal.Sell, Qty: 1, Price: 48995, Reason: signal.ReasonStopLoss},
	}}
	loop := newLoop(store, strat, exec, Options{Limits: risk.Limits{MaxNotionalPerOrder: 1000}})

	for id := int64(1); id <= 3; id++ {
		store.publish(t, id, 50000, 50001)
		loop.Step(context.Background())
	}
	require.Len(t, exec.orders, 1, "only the forced exit passes")
	assert.Equal(t, signal.Sell, exec.orders[0].Side)
}

func TestStepSurvivesDispatchFailure(t *testing.T) {
	store := &fakeStore{}
	exec := &fakeExec{err: execution.ErrTransport}
	strat := &scripted{out: []*signal.Signal{
		{Symbol: "BTCUSDT", Side: signal.Buy, Qty: 0.01, Price: 1},
		{Symbol: "BTCUSDT", Side: signal.Buy, Qty: 0.01, Price: 1},
	}}
	loop := newLoop(store, strat, exec, Options{})

	store.publish(t, 1, 100, 101)
	assert.Zero(t, loop.Step(context.Background()))
	store.publish(t, 2, 100, 101)
	assert.Zero(t, loop.Step(context.Background()))
	assert.Len(t, exec.orders, 2, "no retries, next tick decides afresh")
}

func TestRunRecoversFromPanicAndStops(t *testing.T) {
	store := &fakeStore{panicOn: 1}
	store.publish(t, 1, 100, 101)
	strat := &scripted{}
	loop := newLoop(store, strat, &fakeExec{}, Options{PanicPause: time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	var pauses []time.Duration
	loop.sleep = func(_ context.Context, d time.Duration) {
		pauses = append(pauses, d)
		if len(pauses) >= 3 {
			cancel()
		}
	}

	require.NoError(t, loop.Run(ctx))
	require.NotEmpty(t, pauses)
	assert.Equal(t, time.Millisecond, pauses[0], "panic pause after the bad tick")
	assert.Len(t, strat.ticks, 1, "loop kept running after the panic")
}

func TestRunFailsWhenFeedUnreachable(t *testing.T) {
	loop := newLoop(&fakeStore{pingErr: errors.New("refused")}, &scripted{}, &fakeExec{}, Options{})
	err := loop.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "feed unavailable")
}

func TestHeartbeatEveryNthTick(t *testing.T) {
	var buf bytes.Buffer
	store := &fakeStore{}
	loop := New(store, &scripted{}, &fakeExec{}, Options{Symbol: "BTCUSDT", HeartbeatEvery: 10}, zerolog.New(&buf))

	for id := int64(1); id <= 20; id++ {
		store.publish(t, id, 100, 101)
		loop.Step(context.Background())
	}
	assert.Equal(t, 2, strings.Count(buf.String(), `"heartbeat"`))
}

func TestEndToEndSpreadBreakout(t *testing.T) {
	store := &fakeStore{}
	exec := &fakeExec{}
	strat := strategy.NewSpreadBreakout(strategy.Params{
		Symbol:          "BTCUSDT",
		Quantity:        0.01,
		Aggressiveness:  5,
		SpreadThreshold: 10,
		MaxPosition:     0.03,
	})
	loop := newLoop(store, strat, exec, Options{})
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	loop.now = func() time.Time { return now }

	store.publish(t, 1, 50000, 50003)
	loop.Step(context.Background())
	assert.Empty(t, exec.orders, "spread below threshold")

	store.publish(t, 2, 50000, 50020)
	loop.Step(context.Background())
	require.Len(t, exec.orders, 1)
	assert.Equal(t, 50025.0, exec.orders[0].Price)

	now = now.Add(time.Second)
	store.publish(t, 3, 50000, 50020)
	loop.Step(context.Background())
	assert.Len(t, exec.orders, 1, "cooldown holds")
}

func TestParamsFromConfig(t *testing.T) {
	var cfg config.Config
	cfg.ApplyDefaults()
	zero := 0.0
	cfg.Strategy.Params.Aggressiveness = &zero
	cfg.Strategy.Params.GatePolicy = "breach_only"
	cfg.Strategy.Params.CooldownSecs = 7
	cfg.Strategy.Params.CrossoverOnly = true

	p, err := StrategyParams(&cfg)
	require.NoError(t, err)
	assert.Equal(t, "BTCUSDT", p.Symbol)
	assert.Equal(t, 0.01, p.Quantity)
	assert.Zero(t, p.Aggressiveness)
	assert.Equal(t, risk.GateBreachOnly, p.GatePolicy)
	assert.Equal(t, 7*time.Second, p.Cooldown)
	assert.Equal(t, 10*time.Second, p.RiskCooldown)
	assert.Equal(t, "5m", p.HistoryInterval)
	assert.True(t, p.CrossoverOnly)

	opts := LoopOptions(&cfg)
	assert.Equal(t, 50*time.Millisecond, opts.MissDelay)
	assert.Equal(t, 10, opts.HeartbeatEvery)

	cfg.Strategy.Params.GatePolicy = "partial"
	_, err = StrategyParams(&cfg)
	assert.Error(t, err)
}
