package execution

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"bookbot-go/internal/metrics"
)

const (
	defaultDispatchTimeout = 2 * time.Second
	defaultOrderPath       = "/api/order"
	maxResponseBody        = 64 << 10
)

// Dispatcher posts orders to the gateway over a Unix domain socket.
type Dispatcher struct {
	client  *http.Client
	url     string
	timeout time.Duration
	log     zerolog.Logger
}

// NewDispatcher builds a dispatcher bound to socketPath. Every request is
// bounded by timeout; a non-positive timeout means two seconds.
func NewDispatcher(socketPath, path string, timeout time.Duration, log zerolog.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = defaultDispatchTimeout
	}
	if path == "" {
		path = defaultOrderPath
	}
	transport := &http.Transport{
		DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "unix", socketPath)
		},
		MaxIdleConns:    4,
		IdleConnTimeout: 90 * time.Second,
	}
	return &Dispatcher{
		client:  &http.Client{Transport: transport, Timeout: timeout},
		url:     "http://unix/" + strings.TrimPrefix(path, "/"),
		timeout: timeout,
		log:     log.With().Str("component", "dispatcher").Str("socket", socketPath).Logger(),
	}
}

// Submit sends a single order. It never retries: a lost order is preferable
// to a duplicated one.
func (d *Dispatcher) Submit(ctx context.Context, order Order) (Result, error) {
	payload, err := json.Marshal(order)
	if err != nil {
		return Result{Outcome: Transport}, fmt.Errorf("%w: encode order: %v", ErrTransport, err)
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(payload))
	if err != nil {
		return Result{Outcome: Transport}, fmt.Errorf("%w: build request: %v", ErrTransport, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if order.RequestID != "" {
		req.Header.Set("X-Request-ID", order.RequestID)
	}

	start := time.Now()
	resp, err := d.client.Do(req)
	latency := time.Since(start)
	metrics.DispatchLatency.WithLabelValues(order.Symbol).Observe(latency.Seconds())
	if err != nil {
		d.record(order, Transport)
		return Result{Outcome: Transport, Latency: latency}, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		d.record(order, Transport)
		return Result{Outcome: Transport, Status: resp.StatusCode, Latency: latency}, fmt.Errorf("%w: read response: %v", ErrTransport, err)
	}
	res := Result{Status: resp.StatusCode, Body: strings.TrimSpace(string(body)), Latency: latency}

	if resp.StatusCode != http.StatusOK {
		res.Outcome = Rejected
		d.record(order, Rejected)
		d.log.Warn().
			Str("sym", order.Symbol).
			Str("side", string(order.Side)).
			Int("status", resp.StatusCode).
			Str("body", res.Body).
			Dur("latency", latency).
			Msg("order rejected")
		return res, fmt.Errorf("%w: status %d: %s", ErrRejected, resp.StatusCode, res.Body)
	}

	res.Outcome = Accepted
	res.ClientOrderID = clientOrderID(body)
	d.record(order, Accepted)
	d.log.Info().
		Str("sym", order.Symbol).
		Str("side", string(order.Side)).
		Float64("qty", order.Qty).
		Float64("px", order.Price).
		Str("client_order_id", res.ClientOrderID).
		Dur("latency", latency).
		Msg("order accepted")
	return res, nil
}

func (d *Dispatcher) record(order Order, outcome Outcome) {
	metrics.OrdersTotal.WithLabelValues(order.Symbol, string(order.Side), string(outcome)).Inc()
}

// clientOrderID pulls the gateway's identifier from an ack, tolerating both
// the gateway's own shape and a raw exchange order response.
func clientOrderID(body []byte) string {
	if !gjson.ValidBytes(body) {
		return "unknown"
	}
	for _, path := range []string{"clientOrderId", "orderId", "data.clientOrderId"} {
		if v := gjson.GetBytes(body, path); v.Exists() && v.String() != "" {
			return v.String()
		}
	}
	return "unknown"
}
