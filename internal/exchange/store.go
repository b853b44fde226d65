package exchange

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"bookbot-go/internal/book"
	"bookbot-go/internal/signal"
)

// Key layout shared with the feed handler and the gateway.
const (
	bookKeyPrefix  = "OrderBook:"
	posKeyPrefix   = "Position:"
	entryKeyPrefix = "EntryPrice:"
)

// BookKey returns the key holding the latest snapshot for symbol.
func BookKey(symbol string) string { return bookKeyPrefix + symbol }

// PositionKey returns the key holding the signed position quantity for symbol.
func PositionKey(symbol string) string { return posKeyPrefix + symbol }

// EntryPriceKey returns the key holding the average entry price for symbol.
func EntryPriceKey(symbol string) string { return entryKeyPrefix + symbol }

// RedisStore reads and writes the shared feed state.
type RedisStore struct {
	client *redis.Client
	log    zerolog.Logger
}

// NewRedisStore connects lazily to addr/db.
func NewRedisStore(addr string, db int, log zerolog.Logger) *RedisStore {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DB:           db,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})
	return &RedisStore{client: client, log: log.With().Str("component", "store").Logger()}
}

// Ping verifies connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (s *RedisStore) Close() error { return s.client.Close() }

// Snapshot returns the raw book payload for symbol, or nil when absent.
func (s *RedisStore) Snapshot(ctx context.Context, symbol string) ([]byte, error) {
	raw, err := s.client.Get(ctx, BookKey(symbol)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get snapshot %s: %w", symbol, err)
	}
	return raw, nil
}

// Position reads the signed quantity and entry price for symbol.
// Missing or unparseable values read as zero.
func (s *RedisStore) Position(ctx context.Context, symbol string) (signal.Position, error) {
	vals, err := s.client.MGet(ctx, PositionKey(symbol), EntryPriceKey(symbol)).Result()
	if err != nil {
		return signal.Position{}, fmt.Errorf("get position %s: %w", symbol, err)
	}
	pos := signal.Position{
		Qty:        s.parseNumber(vals[0], PositionKey(symbol)),
		EntryPrice: s.parseNumber(vals[1], EntryPriceKey(symbol)),
	}
	if pos.Flat() {
		pos.EntryPrice = 0
	}
	return pos, nil
}

func (s *RedisStore) parseNumber(v any, key string) float64 {
	str, ok := v.(string)
	if !ok || str == "" {
		return 0
	}
	d, err := decimal.NewFromString(str)
	if err != nil {
		s.log.Warn().Str("key", key).Str("value", str).Msg("unparseable numeric value, reading as zero")
		return 0
	}
	return d.InexactFloat64()
}

// PublishBook writes a snapshot in the wire schema.
func (s *RedisStore) PublishBook(ctx context.Context, b signal.Book) error {
	payload, err := book.Encode(b, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("encode book: %w", err)
	}
	if err := s.client.Set(ctx, BookKey(b.Symbol), payload, 0).Err(); err != nil {
		return fmt.Errorf("set snapshot %s: %w", b.Symbol, err)
	}
	return nil
}

// PublishPosition writes the position and entry price atomically.
func (s *RedisStore) PublishPosition(ctx context.Context, symbol string, pos signal.Position) error {
	entry := pos.EntryPrice
	if pos.Flat() {
		entry = 0
	}
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, PositionKey(symbol), decimal.NewFromFloat(pos.Qty).String(), 0)
		pipe.Set(ctx, EntryPriceKey(symbol), decimal.NewFromFloat(entry).String(), 0)
		return nil
	})
	if err != nil {
		return fmt.Errorf("set position %s: %w", symbol, err)
	}
	return nil
}
