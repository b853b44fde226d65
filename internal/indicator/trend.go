package indicator

// Trend is a directional state: -1 bearish, 0 neutral, +1 bullish.
type Trend int

const (
	Bearish Trend = -1
	Neutral Trend = 0
	Bullish Trend = 1
)

func (t Trend) String() string {
	switch t {
	case Bullish:
		return "bullish"
	case Bearish:
		return "bearish"
	default:
		return "neutral"
	}
}

// Cross reports a sign change between two consecutive oscillator values.
func Cross(prev, curr float64) Trend {
	switch {
	case prev < 0 && curr > 0:
		return Bullish
	case prev > 0 && curr < 0:
		return Bearish
	default:
		return Neutral
	}
}

// Classify returns the crossover when there is one and otherwise keeps the sign of curr.
func Classify(prev, curr float64) Trend {
	if c := Cross(prev, curr); c != Neutral {
		return c
	}
	switch {
	case curr > 0:
		return Bullish
	case curr < 0:
		return Bearish
	default:
		return Neutral
	}
}
