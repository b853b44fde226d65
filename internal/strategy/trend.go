package strategy

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"bookbot-go/internal/indicator"
	"bookbot-go/internal/signal"
)

// TrendFollower trades MACD histogram crossovers computed from recent candle closes:
// bullish opens a long from flat or flattens a short, bearish mirrors it.
type TrendFollower struct {
	params  Params
	history CloseSource
	log     zerolog.Logger
	gate    *riskGate
	osc     oscillator

	nextEval  time.Time
	lastTrend indicator.Trend
}

type oscillator interface {
	Seed(prices []float64)
	Last() (prev, curr float64, ok bool)
}

// NewTrendFollower builds a trend follower that pulls closes from history.
func NewTrendFollower(p Params, history CloseSource, log zerolog.Logger) *TrendFollower {
	p = p.withDefaults(ModeTrend)
	return &TrendFollower{
		params:  p,
		history: history,
		log:     log.With().Str("strategy", "TrendFollower").Logger(),
		gate:    newRiskGate(p, p.GatePolicy),
		osc:     indicator.NewMACD(p.FastSpan, p.SlowSpan, p.SignalSpan),
	}
}

// Name returns the configured identifier for logging.
func (s *TrendFollower) Name() string { return "TrendFollower" }

// LastTrend returns the state computed on the most recent evaluation.
func (s *TrendFollower) LastTrend() indicator.Trend { return s.lastTrend }

// Decide runs the Risk Guard on every tick and the crossover state machine at most
// once per check interval.
func (s *TrendFollower) Decide(ctx context.Context, t signal.Tick) *signal.Signal {
	if exit, gated := s.gate.check(t); exit != nil || gated {
		return exit
	}
	if s.gate.cooling(t.Ts) || t.Ts.Before(s.nextEval) {
		return nil
	}
	s.nextEval = t.Ts.Add(s.params.CheckInterval)

	trend, prev, curr := s.evaluate(ctx)
	s.lastTrend = trend

	var out *signal.Signal
	pos := t.Position
	switch {
	case trend == indicator.Bullish && pos.Short():
		out = s.order(t, signal.Buy, math.Abs(pos.Qty), signal.ReasonTrendReverse)
	case trend == indicator.Bullish && pos.Flat():
		out = s.order(t, signal.Buy, s.params.Quantity, signal.ReasonTrendOpen)
	case trend == indicator.Bearish && pos.Long():
		out = s.order(t, signal.Sell, pos.Qty, signal.ReasonTrendReverse)
	case trend == indicator.Bearish && pos.Flat():
		out = s.order(t, signal.Sell, s.params.Quantity, signal.ReasonTrendOpen)
	}
	if out != nil {
		out.Detail = fmt.Sprintf("macd hist %.4f -> %.4f (%s)", prev, curr, trend)
		s.nextEval = t.Ts.Add(max(s.params.CheckInterval, s.params.Cooldown))
	}
	return out
}

// evaluate re-seeds the oscillator over the latest closes. Any failure to get
// a usable history degrades to Neutral.
func (s *TrendFollower) evaluate(ctx context.Context) (indicator.Trend, float64, float64) {
	closes, err := s.history.Closes(ctx, s.params.Symbol, s.params.HistoryInterval, s.params.HistoryLimit)
	if err != nil {
		s.log.Warn().Err(err).Str("symbol", s.params.Symbol).Msg("candle history unavailable, trend neutral")
		return indicator.Neutral, 0, 0
	}
	s.osc.Seed(closes)
	prev, curr, ok := s.osc.Last()
	if !ok {
		s.log.Warn().Int("closes", len(closes)).Msg("not enough candle history, trend neutral")
		return indicator.Neutral, 0, 0
	}
	if s.params.CrossoverOnly {
		return indicator.Cross(prev, curr), prev, curr
	}
	return indicator.Classify(prev, curr), prev, curr
}

func (s *TrendFollower) order(t signal.Tick, side signal.Side, qty float64, reason signal.Reason) *signal.Signal {
	return &signal.Signal{
		Symbol: t.Symbol,
		Side:   side,
		Qty:    qty,
		Price:  signal.AggressivePrice(side, t.Book, s.params.Aggressiveness),
		Reason: reason,
		Ts:     t.Ts,
	}
}
