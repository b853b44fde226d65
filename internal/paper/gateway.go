package paper

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"bookbot-go/internal/metrics"
	"bookbot-go/internal/signal"
)

// PositionPublisher pushes the post-fill position back to the feed store.
type PositionPublisher interface {
	PublishPosition(ctx context.Context, symbol string, pos signal.Position) error
}

// OrderRequest is the body of POST /api/order.
type OrderRequest struct {
	Symbol   string      `json:"symbol"`
	Side     signal.Side `json:"side" binding:"required,oneof=BUY SELL"`
	Quantity float64     `json:"quantity" binding:"required,gt=0"`
	Price    float64     `json:"price" binding:"required,gt=0"`
}

// OrderAck is the body returned for a filled order.
type OrderAck struct {
	ClientOrderID string      `json:"clientOrderId"`
	Status        string      `json:"status"`
	Symbol        string      `json:"symbol"`
	Side          signal.Side `json:"side"`
	ExecutedQty   float64     `json:"executedQty"`
	Price         float64     `json:"price"`
	Position      float64     `json:"position"`
	EntryPrice    float64     `json:"entryPrice"`
	RealizedPnL   float64     `json:"realizedPnl"`
}

// Gateway fills orders against an Account and serves the gateway HTTP surface.
type Gateway struct {
	account       *Account
	ledger        *Ledger
	store         PositionPublisher
	defaultSymbol string
	log           zerolog.Logger
	now           func() time.Time

	mu    sync.Mutex
	marks map[string]float64
}

// NewGateway wires an account and ledger. store may be nil, in which case
// positions are only kept in memory.
func NewGateway(account *Account, ledger *Ledger, store PositionPublisher, defaultSymbol string, log zerolog.Logger) *Gateway {
	return &Gateway{
		account:       account,
		ledger:        ledger,
		store:         store,
		defaultSymbol: strings.ToUpper(defaultSymbol),
		log:           log.With().Str("component", "paper-gateway").Logger(),
		now:           time.Now,
		marks:         make(map[string]float64),
	}
}

// Handler builds the gin router.
func (g *Gateway) Handler() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), g.requestLogger())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	api := router.Group("/api")
	api.POST("/order", g.handleOrder)
	api.GET("/fills", g.handleFills)
	api.GET("/account", g.handleAccount)
	return router
}

func (g *Gateway) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		g.log.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("dur", time.Since(start)).
			Msg("http")
	}
}

func (g *Gateway) handleOrder(c *gin.Context) {
	var req OrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	symbol := strings.ToUpper(strings.TrimSpace(req.Symbol))
	if symbol == "" {
		symbol = g.defaultSymbol
	}
	if symbol == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol is required"})
		return
	}

	res, err := g.account.Fill(symbol, req.Side, req.Quantity, req.Price)
	if err != nil {
		status := http.StatusUnprocessableEntity
		if errors.Is(err, ErrInvalidOrder) {
			status = http.StatusBadRequest
		}
		g.log.Warn().Err(err).Str("sym", symbol).Str("side", string(req.Side)).Float64("qty", req.Quantity).Float64("px", req.Price).Msg("paper order rejected")
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	id := uuid.NewString()
	g.ledger.Record(Fill{
		ClientOrderID: id,
		Symbol:        symbol,
		Side:          req.Side,
		Qty:           req.Quantity,
		Price:         req.Price,
		Realized:      res.Realized,
		PositionAfter: res.Position.Qty,
		Ts:            g.now(),
	})
	g.mu.Lock()
	g.marks[symbol] = req.Price
	g.mu.Unlock()
	metrics.FillsTotal.WithLabelValues(symbol, string(req.Side)).Inc()

	if g.store != nil {
		if err := g.store.PublishPosition(c.Request.Context(), symbol, res.Position); err != nil {
			g.log.Error().Err(err).Str("sym", symbol).Msg("publish position failed")
		}
	}

	g.log.Info().
		Str("client_order_id", id).
		Str("sym", symbol).
		Str("side", string(req.Side)).
		Float64("qty", req.Quantity).
		Float64("px", req.Price).
		Float64("position", res.Position.Qty).
		Float64("realized", res.Realized).
		Msg("paper fill")

	c.JSON(http.StatusOK, OrderAck{
		ClientOrderID: id,
		Status:        "FILLED",
		Symbol:        symbol,
		Side:          req.Side,
		ExecutedQty:   req.Quantity,
		Price:         req.Price,
		Position:      res.Position.Qty,
		EntryPrice:    res.Position.EntryPrice,
		RealizedPnL:   res.Realized,
	})
}

func (g *Gateway) handleFills(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"fills": g.ledger.Snapshot(c.Query("symbol")),
		"total": g.ledger.Total(),
	})
}

func (g *Gateway) handleAccount(c *gin.Context) {
	g.mu.Lock()
	marks := make(map[string]float64, len(g.marks))
	for k, v := range g.marks {
		marks[k] = v
	}
	g.mu.Unlock()
	c.JSON(http.StatusOK, g.account.Snapshot(marks))
}

// Serve listens on socketPath until ctx is canceled. A stale socket file left
// by a previous run is removed first.
func (g *Gateway) Serve(ctx context.Context, socketPath string) error {
	if err := os.Remove(socketPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove stale socket: %w", err)
	}
	ln, err := net.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("listen %s: %w", socketPath, err)
	}
	defer os.Remove(socketPath)

	srv := &http.Server{Handler: g.Handler(), ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	g.log.Info().Str("socket", socketPath).Msg("paper gateway listening")

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	}
}
