package exchange

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/shopspring/decimal"
)

const maxHistoryLimit = 1500

// KlineSource fetches recent candle closes from the futures REST API.
type KlineSource struct {
	client *futures.Client
}

// NewKlineSource builds a source against baseURL. Keys are optional; kline
// endpoints are public.
func NewKlineSource(baseURL, apiKey, apiSecret string, connectTimeout, readTimeout time.Duration) *KlineSource {
	client := futures.NewClient(apiKey, apiSecret)
	if baseURL = strings.TrimSpace(baseURL); baseURL != "" {
		client.BaseURL = strings.TrimSuffix(baseURL, "/")
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{Timeout: connectTimeout}).DialContext
	transport.ResponseHeaderTimeout = readTimeout
	client.HTTPClient = &http.Client{Transport: transport, Timeout: connectTimeout + readTimeout}
	return &KlineSource{client: client}
}

// Closes returns up to limit close prices, oldest first.
func (s *KlineSource) Closes(ctx context.Context, symbol, interval string, limit int) ([]float64, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, fmt.Errorf("symbol is required")
	}
	interval = strings.ToLower(strings.TrimSpace(interval))
	if interval == "" {
		return nil, fmt.Errorf("interval is required")
	}
	if limit <= 0 {
		limit = 50
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	kls, err := s.client.NewKlinesService().Symbol(symbol).Interval(interval).Limit(limit).Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch klines %s %s: %w", symbol, interval, err)
	}
	closes := make([]float64, 0, len(kls))
	for _, kl := range kls {
		if kl == nil {
			continue
		}
		d, err := decimal.NewFromString(kl.Close)
		if err != nil {
			return nil, fmt.Errorf("kline close %q: %w", kl.Close, err)
		}
		closes = append(closes, d.InexactFloat64())
	}
	if len(closes) < 2 {
		return nil, fmt.Errorf("insufficient history for %s: %d closes", symbol, len(closes))
	}
	return closes, nil
}
