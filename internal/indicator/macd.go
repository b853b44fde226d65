// Package indicator holds the numeric building blocks strategies compose:
// exponential averages, the MACD oscillator, book imbalance and mid-price windows.
package indicator

// Default MACD spans in samples.
const (
	DefaultFastSpan   = 12
	DefaultSlowSpan   = 26
	DefaultSignalSpan = 9
)

// EMA is an exponential moving average seeded by its first value.
type EMA struct {
	alpha  float64
	value  float64
	seeded bool
}

// NewEMA builds an average with alpha = 2/(span+1).
func NewEMA(span int) *EMA {
	if span < 1 {
		span = 1
	}
	return &EMA{alpha: 2 / (float64(span) + 1)}
}

// Update folds v into the average and returns the new value.
func (e *EMA) Update(v float64) float64 {
	if !e.seeded {
		e.value = v
		e.seeded = true
		return e.value
	}
	e.value = v*e.alpha + e.value*(1-e.alpha)
	return e.value
}

// Value returns the current average.
func (e *EMA) Value() float64 { return e.value }

// Reset forgets every sample.
func (e *EMA) Reset() {
	e.value = 0
	e.seeded = false
}

// MACD tracks fast/slow/signal averages of a price series.
// The oscillator is (fast - slow) - signal, i.e. the MACD histogram.
type MACD struct {
	fast   *EMA
	slow   *EMA
	signal *EMA

	prev    float64
	curr    float64
	samples int
}

// NewMACD builds the oscillator, falling back to 12/26/9 for non-positive spans.
func NewMACD(fastSpan, slowSpan, signalSpan int) *MACD {
	if fastSpan <= 0 {
		fastSpan = DefaultFastSpan
	}
	if slowSpan <= 0 {
		slowSpan = DefaultSlowSpan
	}
	if signalSpan <= 0 {
		signalSpan = DefaultSignalSpan
	}
	return &MACD{
		fast:   NewEMA(fastSpan),
		slow:   NewEMA(slowSpan),
		signal: NewEMA(signalSpan),
	}
}

// Update feeds one price and returns the new oscillator value.
func (m *MACD) Update(price float64) float64 {
	line := m.fast.Update(price) - m.slow.Update(price)
	sig := m.signal.Update(line)
	m.prev = m.curr
	m.curr = line - sig
	m.samples++
	return m.curr
}

// Seed resets the averages and replays prices in order.
func (m *MACD) Seed(prices []float64) {
	m.Reset()
	for _, p := range prices {
		m.Update(p)
	}
}

// Reset clears all averages.
func (m *MACD) Reset() {
	m.fast.Reset()
	m.slow.Reset()
	m.signal.Reset()
	m.prev, m.curr, m.samples = 0, 0, 0
}

// Last returns the previous and current oscillator values.
// ok is false until two samples have been seen.
func (m *MACD) Last() (prev, curr float64, ok bool) {
	return m.prev, m.curr, m.samples >= 2
}
