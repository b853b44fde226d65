// Package engine runs the tick loop: poll the feed store, drop stale refreshes,
// ask the active strategy for a decision, and forward any signal to the executor.
package engine

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"bookbot-go/internal/book"
	"bookbot-go/internal/execution"
	"bookbot-go/internal/metrics"
	"bookbot-go/internal/risk"
	"bookbot-go/internal/signal"
	"bookbot-go/internal/strategy"
)

// Store is the feed the loop polls.
type Store interface {
	Ping(ctx context.Context) error
	Snapshot(ctx context.Context, symbol string) ([]byte, error)
	Position(ctx context.Context, symbol string) (signal.Position, error)
}

// Options tune the loop cadence and pre-dispatch checks.
type Options struct {
	Symbol         string
	Depth          int
	MissDelay      time.Duration
	DuplicateDelay time.Duration
	PanicPause     time.Duration
	HeartbeatEvery int
	Limits         risk.Limits
}

func (o Options) withDefaults() Options {
	if o.MissDelay <= 0 {
		o.MissDelay = 50 * time.Millisecond
	}
	if o.DuplicateDelay <= 0 {
		o.DuplicateDelay = 5 * time.Millisecond
	}
	if o.PanicPause <= 0 {
		o.PanicPause = 500 * time.Millisecond
	}
	if o.HeartbeatEvery <= 0 {
		o.HeartbeatEvery = 10
	}
	return o
}

// Loop owns every piece of per-symbol state: the book view, the strategy and
// its indicator buffers. It is driven by a single goroutine.
type Loop struct {
	store    Store
	strat    strategy.Strategy
	exec     execution.Executor
	opts     Options
	view     *book.View
	log      zerolog.Logger
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration)
	beat     rate.Sometimes
	accepted int64
}

// New builds a loop for opts.Symbol.
func New(store Store, strat strategy.Strategy, exec execution.Executor, opts Options, log zerolog.Logger) *Loop {
	opts = opts.withDefaults()
	return &Loop{
		store: store,
		strat: strat,
		exec:  exec,
		opts:  opts,
		view:  book.NewView(opts.Symbol, opts.Depth),
		log:   log.With().Str("component", "engine").Str("sym", opts.Symbol).Logger(),
		now:   time.Now,
		sleep: sleepCtx,
		beat:  rate.Sometimes{Every: opts.HeartbeatEvery},
	}
}

// Run pings the store and then polls until ctx is canceled. An unreachable
// store at startup is returned as an error; later failures never stop the loop.
func (l *Loop) Run(ctx context.Context) error {
	if err := l.store.Ping(ctx); err != nil {
		return fmt.Errorf("feed unavailable: %w", err)
	}
	l.log.Info().Str("strategy", l.strat.Name()).Msg("engine started")

	// a tick in progress is finished even if shutdown is requested mid-way
	work := context.WithoutCancel(ctx)
	for {
		if ctx.Err() != nil {
			l.log.Info().Int64("ticks", l.accepted).Msg("engine stopped")
			return nil
		}
		if pause := l.safeStep(work); pause > 0 {
			l.sleep(ctx, pause)
		}
	}
}

func (l *Loop) safeStep(ctx context.Context) (pause time.Duration) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Error().
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("tick failed, pausing")
			pause = l.opts.PanicPause
		}
	}()
	return l.Step(ctx)
}

// Step processes at most one refresh and returns how long to wait before the next poll.
func (l *Loop) Step(ctx context.Context) time.Duration {
	sym := l.opts.Symbol
	raw, err := l.store.Snapshot(ctx, sym)
	if err != nil {
		metrics.SkippedTotal.WithLabelValues(sym, "store_error").Inc()
		l.log.Warn().Err(err).Msg("snapshot read failed")
		return l.opts.MissDelay
	}
	if raw == nil {
		metrics.SkippedTotal.WithLabelValues(sym, "miss").Inc()
		return l.opts.MissDelay
	}

	b, err := l.view.Next(raw)
	if err != nil {
		if errors.Is(err, book.ErrStale) {
			metrics.SkippedTotal.WithLabelValues(sym, "duplicate").Inc()
			return l.opts.DuplicateDelay
		}
		metrics.SkippedTotal.WithLabelValues(sym, "no_data").Inc()
		l.log.Debug().Err(err).Msg("unusable snapshot")
		return l.opts.DuplicateDelay
	}

	pos, err := l.store.Position(ctx, sym)
	if err != nil {
		metrics.SkippedTotal.WithLabelValues(sym, "store_error").Inc()
		l.log.Warn().Err(err).Int64("update_id", b.UpdateID).Msg("position read failed, skipping tick")
		return l.opts.MissDelay
	}

	tick := signal.Tick{Symbol: sym, Book: b, Position: pos, Ts: l.now()}
	l.accepted++
	metrics.TicksTotal.WithLabelValues(sym).Inc()
	l.beat.Do(func() {
		l.log.Info().
			Int64("update_id", b.UpdateID).
			Float64("bid", b.BestBid()).
			Float64("ask", b.BestAsk()).
			Float64("pos", pos.Qty).
			Float64("entry", pos.EntryPrice).
			Msg("heartbeat")
	})

	sig := l.strat.Decide(ctx, tick)
	if sig == nil {
		return 0
	}
	l.dispatch(ctx, *sig)
	return 0
}

func (l *Loop) dispatch(ctx context.Context, s signal.Signal) {
	if err := s.Validate(); err != nil {
		l.log.Error().Err(err).Interface("signal", s).Msg("strategy produced invalid signal, dropped")
		return
	}
	if !s.Reason.Closing() && !l.opts.Limits.Allow(s.Notional()) {
		l.log.Warn().
			Str("side", string(s.Side)).
			Float64("qty", s.Qty).
			Float64("px", s.Price).
			Float64("notional", s.Notional()).
			Float64("max_notional", l.opts.Limits.MaxNotionalPerOrder).
			Msg("signal exceeds per-order notional, dropped")
		return
	}

	metrics.SignalsTotal.WithLabelValues(s.Symbol, string(s.Side), string(s.Reason)).Inc()
	l.log.Info().
		Str("side", string(s.Side)).
		Float64("qty", s.Qty).
		Float64("px", s.Price).
		Str("reason", string(s.Reason)).
		Str("detail", s.Detail).
		Msg("signal")

	order := execution.FromSignal(s)
	res, err := l.exec.Submit(ctx, order)
	if err != nil {
		l.log.Error().
			Err(err).
			Str("outcome", string(execution.ClassifyErr(err))).
			Str("request_id", order.RequestID).
			Str("side", string(order.Side)).
			Float64("qty", order.Qty).
			Float64("px", order.Price).
			Str("reason", string(s.Reason)).
			Dur("latency", res.Latency).
			Msg("order dropped")
		return
	}
	l.log.Info().
		Str("outcome", string(res.Outcome)).
		Str("client_order_id", res.ClientOrderID).
		Dur("latency", res.Latency).
		Msg("order sent")
}

// LastUpdateID exposes the dedup watermark.
func (l *Loop) LastUpdateID() int64 { return l.view.LastUpdateID() }

// Accepted returns how many ticks reached the strategy.
func (l *Loop) Accepted() int64 { return l.accepted }

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
