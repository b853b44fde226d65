package indicator

// DefaultWindowSize is the mid-price history length used for the short-term trend.
const DefaultWindowSize = 10

// Window is a fixed-capacity ring of samples.
// It has no locking: a single strategy instance owns it and only its decide
// call touches it. Keep that ownership if symbols are ever evaluated in parallel.
type Window struct {
	data  []float64
	front int
	size  int
}

// NewWindow allocates a ring holding capacity samples.
func NewWindow(capacity int) *Window {
	if capacity <= 0 {
		capacity = DefaultWindowSize
	}
	return &Window{data: make([]float64, capacity)}
}

// Push appends v, evicting the oldest sample when full.
func (w *Window) Push(v float64) {
	capacity := len(w.data)
	if w.size == capacity {
		w.data[w.front] = v
		w.front = (w.front + 1) % capacity
		return
	}
	w.data[(w.front+w.size)%capacity] = v
	w.size++
}

// Len returns the number of stored samples.
func (w *Window) Len() int { return w.size }

// Cap returns the fixed capacity.
func (w *Window) Cap() int { return len(w.data) }

// Full reports whether the ring holds Cap samples.
func (w *Window) Full() bool { return w.size == len(w.data) }

// At returns the i-th oldest sample; negative indexes count from the newest.
func (w *Window) At(i int) float64 {
	if i < 0 {
		i += w.size
	}
	if i < 0 || i >= w.size {
		return 0
	}
	return w.data[(w.front+i)%len(w.data)]
}

// Trend returns newest minus oldest once the window is full.
func (w *Window) Trend() (float64, bool) {
	if !w.Full() {
		return 0, false
	}
	return w.At(-1) - w.At(0), true
}
