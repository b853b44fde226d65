package indicator

import "bookbot-go/internal/signal"

// DefaultImbalanceDepth is the number of levels per side summed by Imbalance.
const DefaultImbalanceDepth = 5

// Imbalance returns (bidNotional - askNotional) / (bidNotional + askNotional)
// over the top depth levels, where notional is price times quantity.
// The result lies in [-1, 1] and is 0 when both sides are empty.
func Imbalance(bids, asks []signal.Level, depth int) float64 {
	if depth <= 0 {
		depth = DefaultImbalanceDepth
	}
	bidVol := notional(bids, depth)
	askVol := notional(asks, depth)
	total := bidVol + askVol
	if total <= 0 {
		return 0
	}
	return clamp((bidVol-askVol)/total, -1, 1)
}

func notional(levels []signal.Level, depth int) float64 {
	var sum float64
	for i, lvl := range levels {
		if i == depth {
			break
		}
		sum += lvl.Price * lvl.Qty
	}
	return sum
}

// Spread returns best ask minus best bid.
func Spread(b signal.Book) float64 { return b.BestAsk() - b.BestBid() }

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
