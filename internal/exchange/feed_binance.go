package exchange

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"

	"bookbot-go/internal/signal"
)

func (f *Feed) streamNames() []string {
	symbols := f.snapshotSymbols()
	streams := make([]string, len(symbols))
	for i, sym := range symbols {
		streams[i] = fmt.Sprintf("%s@depth%d@100ms", strings.ToLower(sym), f.depth)
	}
	return streams
}

func (f *Feed) runBinance(ctx context.Context, out chan<- signal.Book) error {
	streams := f.streamNames()
	if len(streams) == 0 {
		return fmt.Errorf("binance feed requires at least one symbol")
	}

	url := fmt.Sprintf("%s/stream?streams=%s", f.streamURL, strings.Join(streams, "/"))
	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := f.consumeBinanceStream(ctx, url, out); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			f.log.Warn().Err(err).Dur("backoff", backoff).Msg("binance feed disconnected, retrying")
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			backoff = time.Duration(math.Min(float64(maxBackoff), float64(backoff)*1.8))
			continue
		}
		return nil
	}
}

func (f *Feed) consumeBinanceStream(ctx context.Context, url string, out chan<- signal.Book) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	f.log.Info().Str("provider", ProviderBinance).Strs("symbols", f.snapshotSymbols()).Int("depth", f.depth).Msg("connected book feed")

	conn.SetReadLimit(1 << 20)
	conn.SetReadDeadline(time.Now().Add(30 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(30 * time.Second))
		return nil
	})

	pingCtx, pingCancel := context.WithCancel(ctx)
	defer pingCancel()
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					f.log.Warn().Err(err).Msg("binance ping failed")
					return
				}
			case <-pingCtx.Done():
				return
			}
		}
	}()
	// unblock ReadMessage on cancel
	go func() {
		<-pingCtx.Done()
		conn.SetReadDeadline(time.Now())
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		conn.SetReadDeadline(time.Now().Add(30 * time.Second))

		book, err := parseDepthMessage(message)
		if err != nil {
			f.log.Warn().Err(err).Msg("failed to decode binance depth message")
			continue
		}

		select {
		case out <- book:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// parseDepthMessage accepts both combined-stream envelopes and raw depth payloads.
func parseDepthMessage(message []byte) (signal.Book, error) {
	if !gjson.ValidBytes(message) {
		return signal.Book{}, fmt.Errorf("invalid json")
	}
	data := gjson.GetBytes(message, "data")
	stream := gjson.GetBytes(message, "stream").String()
	if !data.Exists() {
		data = gjson.ParseBytes(message)
	}

	symbol := data.Get("s").String()
	if symbol == "" {
		symbol = parseBinanceSymbol(stream)
	}
	if symbol == "" {
		return signal.Book{}, fmt.Errorf("missing symbol")
	}
	id := data.Get("u")
	if !id.Exists() {
		id = data.Get("lastUpdateId")
	}
	if !id.Exists() {
		return signal.Book{}, fmt.Errorf("missing update id")
	}

	bids, err := parseDepthLevels(firstOf(data, "b", "bids"))
	if err != nil {
		return signal.Book{}, fmt.Errorf("bids: %w", err)
	}
	asks, err := parseDepthLevels(firstOf(data, "a", "asks"))
	if err != nil {
		return signal.Book{}, fmt.Errorf("asks: %w", err)
	}
	return signal.Book{
		Symbol:   strings.ToUpper(symbol),
		UpdateID: id.Int(),
		Bids:     bids,
		Asks:     asks,
	}, nil
}

func firstOf(data gjson.Result, keys ...string) gjson.Result {
	for _, k := range keys {
		if r := data.Get(k); r.Exists() {
			return r
		}
	}
	return gjson.Result{}
}

func parseDepthLevels(levels gjson.Result) ([]signal.Level, error) {
	var (
		out    []signal.Level
		outErr error
	)
	levels.ForEach(func(_, lvl gjson.Result) bool {
		pair := lvl.Array()
		if len(pair) < 2 {
			outErr = fmt.Errorf("level %s has %d fields", lvl.Raw, len(pair))
			return false
		}
		px, err := decimal.NewFromString(pair[0].String())
		if err != nil {
			outErr = fmt.Errorf("price %q: %w", pair[0].String(), err)
			return false
		}
		qty, err := decimal.NewFromString(pair[1].String())
		if err != nil {
			outErr = fmt.Errorf("qty %q: %w", pair[1].String(), err)
			return false
		}
		out = append(out, signal.Level{Price: px.InexactFloat64(), Qty: qty.InexactFloat64()})
		return true
	})
	return out, outErr
}

func parseBinanceSymbol(stream string) string {
	parts := strings.Split(stream, "@")
	if len(parts) == 0 || parts[0] == "" {
		return strings.ToUpper(stream)
	}
	return strings.ToUpper(parts[0])
}
