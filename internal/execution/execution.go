// Package execution handles order lifecycle and interaction with the execution gateway.
package execution

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"bookbot-go/internal/metrics"
	"bookbot-go/internal/signal"
)

var (
	// ErrRejected means the gateway answered but refused the order.
	ErrRejected = errors.New("order rejected")
	// ErrTransport means the gateway could not be reached or did not answer in time.
	ErrTransport = errors.New("gateway transport failure")
)

// Outcome classifies a dispatch attempt.
type Outcome string

const (
	Accepted  Outcome = "accepted"
	Rejected  Outcome = "rejected"
	Transport Outcome = "transport"
)

// Order represents a placement request the executor can process.
type Order struct {
	Symbol    string      `json:"symbol"`
	Side      signal.Side `json:"side"`
	Qty       float64     `json:"quantity"`
	Price     float64     `json:"price"`
	RequestID string      `json:"-"`
}

// FromSignal converts a validated signal into an order.
func FromSignal(s signal.Signal) Order {
	return Order{
		Symbol:    s.Symbol,
		Side:      s.Side,
		Qty:       s.Qty,
		Price:     s.Price,
		RequestID: uuid.NewString(),
	}
}

// Result describes what the gateway did with an order.
type Result struct {
	Outcome       Outcome
	ClientOrderID string
	Status        int
	Body          string
	Latency       time.Duration
}

// Executor submits orders. Submit must not retry.
type Executor interface {
	Submit(ctx context.Context, order Order) (Result, error)
}

// ClassifyErr maps a Submit error to its outcome.
func ClassifyErr(err error) Outcome {
	switch {
	case err == nil:
		return Accepted
	case errors.Is(err, ErrRejected):
		return Rejected
	default:
		return Transport
	}
}

// LogExecutor only logs orders. Used for dry runs; every order is accepted
// under a synthetic id.
type LogExecutor struct{ log zerolog.Logger }

// NewLogExecutor wraps a zerolog logger for dry-run submissions.
func NewLogExecutor(log zerolog.Logger) *LogExecutor { return &LogExecutor{log: log} }

// Submit logs the order request.
func (executor *LogExecutor) Submit(_ context.Context, order Order) (Result, error) {
	metrics.OrdersTotal.WithLabelValues(order.Symbol, string(order.Side), string(Accepted)).Inc()
	executor.log.Info().
		Str("sym", order.Symbol).
		Str("side", string(order.Side)).
		Float64("qty", order.Qty).
		Float64("px", order.Price).
		Str("request_id", order.RequestID).
		Msg("submit order (dry run)")
	return Result{Outcome: Accepted, ClientOrderID: "dry_" + order.RequestID}, nil
}
