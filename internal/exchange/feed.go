// Package exchange hosts the connectors between the engine and the outside world:
// the shared feed store, the candle history provider, and book snapshot sources.
package exchange

import (
	"context"
	"math"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"bookbot-go/internal/signal"
)

const (
	// ProviderStub emits deterministic synthetic books (useful for tests/offline work).
	ProviderStub = "stub"
	// ProviderBinance streams partial depth snapshots from Binance futures websockets.
	ProviderBinance = "binance"
)

// Feed represents a pluggable book snapshot stream.
type Feed struct {
	provider  string
	symbols   []string
	log       zerolog.Logger
	interval  time.Duration
	depth     int
	streamURL string
	seed      int64
	mu        sync.RWMutex
}

// Option configures Feed construction parameters.
type Option func(*Feed)

const (
	defaultStubInterval = 100 * time.Millisecond
	defaultFeedDepth    = 10
	defaultStreamURL    = "wss://stream.binancefuture.com"
)

// WithInterval overrides the stub publish cadence.
func WithInterval(d time.Duration) Option {
	return func(f *Feed) {
		if d > 0 {
			f.interval = d
		}
	}
}

// WithDepth sets how many levels per side are requested. Binance accepts 5, 10 or 20.
func WithDepth(n int) Option {
	return func(f *Feed) {
		if n > 0 {
			f.depth = n
		}
	}
}

// WithStreamURL points the binance provider at a websocket base such as wss://fstream.binance.com.
func WithStreamURL(url string) Option {
	return func(f *Feed) {
		if url != "" {
			f.streamURL = strings.TrimSuffix(url, "/")
		}
	}
}

// WithSeed fixes the stub random walk.
func WithSeed(seed int64) Option {
	return func(f *Feed) { f.seed = seed }
}

// NewFeed constructs a feed backed by the requested provider.
func NewFeed(provider string, symbols []string, log zerolog.Logger, opts ...Option) *Feed {
	if provider == "" {
		provider = ProviderStub
	}
	f := &Feed{
		provider:  strings.ToLower(provider),
		log:       log,
		interval:  defaultStubInterval,
		depth:     defaultFeedDepth,
		streamURL: defaultStreamURL,
		seed:      1,
	}
	f.setSymbols(symbols)
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Symbols returns the tracked symbol list.
func (f *Feed) Symbols() []string { return f.snapshotSymbols() }

func (f *Feed) setSymbols(symbols []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	unique := make(map[string]struct{}, len(symbols))
	for _, sym := range symbols {
		sym = strings.ToUpper(strings.TrimSpace(sym))
		if sym == "" {
			continue
		}
		unique[sym] = struct{}{}
	}
	f.symbols = f.symbols[:0]
	for sym := range unique {
		f.symbols = append(f.symbols, sym)
	}
	sort.Strings(f.symbols)
}

func (f *Feed) snapshotSymbols() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]string, len(f.symbols))
	copy(out, f.symbols)
	return out
}

// Run pushes books onto the provided channel until the context is canceled.
func (f *Feed) Run(ctx context.Context, out chan<- signal.Book) error {
	switch f.provider {
	case ProviderBinance:
		return f.runBinance(ctx, out)
	default:
		return f.runStub(ctx, out)
	}
}

// runStub random-walks a mid price per symbol and emits a two-sided book
// with a one-tick spread and a strictly increasing update id.
func (f *Feed) runStub(ctx context.Context, out chan<- signal.Book) error {
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	rng := rand.New(rand.NewSource(f.seed))
	mids := make(map[string]float64)
	var updateID int64
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			for _, s := range f.snapshotSymbols() {
				mid, ok := mids[s]
				if !ok {
					mid = 50000
				}
				mid = math.Max(1, mid+rng.NormFloat64()*2)
				mids[s] = mid
				updateID++
				book := stubBook(s, updateID, mid, f.depth, rng)
				select {
				case out <- book:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
	}
}

func stubBook(symbol string, id int64, mid float64, depth int, rng *rand.Rand) signal.Book {
	const tick = 0.1
	bestBid := math.Floor(mid/tick) * tick
	book := signal.Book{
		Symbol:   symbol,
		UpdateID: id,
		Bids:     make([]signal.Level, 0, depth),
		Asks:     make([]signal.Level, 0, depth),
	}
	for i := 0; i < depth; i++ {
		step := float64(i) * tick
		book.Bids = append(book.Bids, signal.Level{Price: round(bestBid-step, 1), Qty: round(0.1+rng.Float64()*2, 3)})
		book.Asks = append(book.Asks, signal.Level{Price: round(bestBid+tick+step, 1), Qty: round(0.1+rng.Float64()*2, 3)})
	}
	return book
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
