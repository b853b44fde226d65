// Package metrics holds the prometheus collectors shared by the engine, gateway, and feed.
package metrics

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	TicksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "ticks_total", Help: "Count of accepted book snapshots"},
		[]string{"symbol"},
	)
	SkippedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "ticks_skipped_total", Help: "Polls that produced no tick, by reason"},
		[]string{"symbol", "reason"},
	)
	SignalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "signals_total", Help: "Signals emitted by the active strategy"},
		[]string{"symbol", "side", "reason"},
	)
	OrdersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "orders_total", Help: "Orders dispatched, by outcome"},
		[]string{"symbol", "side", "outcome"},
	)
	DispatchLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dispatch_latency_seconds",
			Help:    "Round trip time of order dispatch",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
		},
		[]string{"symbol"},
	)
	FillsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "paper_fills_total", Help: "Orders filled by the paper gateway"},
		[]string{"symbol", "side"},
	)
	SnapshotsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "book_snapshots_published_total", Help: "Book snapshots written to the shared store"},
		[]string{"symbol"},
	)
)

func init() {
	prometheus.MustRegister(TicksTotal, SkippedTotal, SignalsTotal, OrdersTotal, DispatchLatency, FillsTotal, SnapshotsPublished)
}

// Addr picks the listen address: a command-line override wins over the configured one.
func Addr(override, configured string) string {
	if override != "" {
		return override
	}
	return configured
}

// Serve exposes /metrics on addr in the background. A listener failure, such
// as the port being taken by another process, is logged on log.
func Serve(addr string, log zerolog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Str("addr", addr).Msg("metrics server failed")
		}
	}()
	return srv
}
