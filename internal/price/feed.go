package price

import "time"

// Scale is the fixed-point denominator for prices. A price of 1_500_000 for
// ETH/AZERO means one base unit of ETH is worth 1.5 base units of AZERO.
const Scale = 1_000_000

// Reading is a single oracle observation for a trading pair.
type Reading struct {
	Pair      string
	Price     int64
	Sequence  int64
	Timestamp time.Time
}

// feedState tracks the latest reading per pair
type feedState struct {
	Price     int64
	Sequence  int64
	Timestamp time.Time
}

// Feed caches the latest oracle reading per pair. Ticks arrive over the
// wire in publish order but redeliveries happen, so stale sequences are
// dropped rather than rewinding the cache.
type Feed struct {
	latest map[string]*feedState
}

func NewFeed() *Feed {
	return &Feed{
		latest: make(map[string]*feedState),
	}
}

// Observe processes an oracle reading. Returns false if the reading was
// dropped as stale or duplicate (idempotent on redelivery).
func (f *Feed) Observe(r Reading) bool {
	if r.Price <= 0 {
		return false
	}

	current := f.latest[r.Pair]
	if current != nil {
		// Stale or duplicate - silently ignore
		if r.Sequence <= current.Sequence {
			return false
		}
		// Sequence gaps are tolerable for prices; the next tick supersedes
		// anything missed.
	}

	f.latest[r.Pair] = &feedState{
		Price:     r.Price,
		Sequence:  r.Sequence,
		Timestamp: r.Timestamp,
	}
	return true
}

// Latest returns the most recent accepted reading for a pair.
func (f *Feed) Latest(pair string) (Reading, bool) {
	s, ok := f.latest[pair]
	if !ok {
		return Reading{}, false
	}
	return Reading{Pair: pair, Price: s.Price, Sequence: s.Sequence, Timestamp: s.Timestamp}, true
}
