package price

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// Source records how a closing price was obtained.
type Source int32

const (
	SourceOracle Source = iota
	SourceManual
)

func (s Source) String() string {
	switch s {
	case SourceOracle:
		return "oracle"
	case SourceManual:
		return "manual"
	default:
		return "unknown"
	}
}

// Resolution is a captured closing price for one pair of one tournament.
type Resolution struct {
	Pair       string
	Price      int64
	Source     Source
	CapturedAt time.Time
}

type resolutionKey struct {
	TournamentID uuid.UUID
	Pair         string
}

// Resolver captures closing prices for tournaments awaiting judgment.
// The first price to land for a pair wins; later submissions are rejected
// so a judged ranking can never be invalidated by a price change.
type Resolver struct {
	resolved map[resolutionKey]Resolution
}

func NewResolver() *Resolver {
	return &Resolver{
		resolved: make(map[resolutionKey]Resolution),
	}
}

// SubmitOracle captures an oracle reading as the closing price for a pair.
// The reading must not predate the tournament close: the closing price is
// the first observation at or after the trading window ends.
// Returns ErrPriceAlreadyCaptured if the pair is already resolved.
func (r *Resolver) SubmitOracle(tournamentID uuid.UUID, closedAt time.Time, reading Reading) error {
	if reading.Price <= 0 {
		return ErrInvalidPrice
	}
	if reading.Timestamp.Before(closedAt) {
		return ErrReadingBeforeClose
	}

	key := resolutionKey{TournamentID: tournamentID, Pair: reading.Pair}
	if _, ok := r.resolved[key]; ok {
		return ErrPriceAlreadyCaptured
	}

	r.resolved[key] = Resolution{
		Pair:       reading.Pair,
		Price:      reading.Price,
		Source:     SourceOracle,
		CapturedAt: reading.Timestamp,
	}
	return nil
}

// SubmitManual records an admin-supplied closing price. Manual entry is
// time-gated: the oracle gets the full grace period after close before a
// human may override, and a captured price is never replaced.
func (r *Resolver) SubmitManual(tournamentID uuid.UUID, closedAt time.Time, grace time.Duration, pair string, price int64, now time.Time) error {
	if price <= 0 {
		return ErrInvalidPrice
	}
	if now.Before(closedAt.Add(grace)) {
		return ErrGracePeriodActive
	}

	key := resolutionKey{TournamentID: tournamentID, Pair: pair}
	if _, ok := r.resolved[key]; ok {
		return ErrPriceAlreadyCaptured
	}

	r.resolved[key] = Resolution{
		Pair:       pair,
		Price:      price,
		Source:     SourceManual,
		CapturedAt: now,
	}
	return nil
}

// Resolution returns the captured closing price for a pair, if any.
func (r *Resolver) Resolution(tournamentID uuid.UUID, pair string) (Resolution, bool) {
	res, ok := r.resolved[resolutionKey{TournamentID: tournamentID, Pair: pair}]
	return res, ok
}

// Complete reports whether every listed pair has a captured price.
func (r *Resolver) Complete(tournamentID uuid.UUID, pairs []string) bool {
	for _, pair := range pairs {
		if _, ok := r.resolved[resolutionKey{TournamentID: tournamentID, Pair: pair}]; !ok {
			return false
		}
	}
	return true
}

// Resolutions returns every captured price for a tournament, ordered by pair.
func (r *Resolver) Resolutions(tournamentID uuid.UUID) []Resolution {
	out := make([]Resolution, 0, 4)
	for key, res := range r.resolved {
		if key.TournamentID == tournamentID {
			out = append(out, res)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Pair < out[j].Pair })
	return out
}

// Drop discards all resolutions for a tournament (after settlement or rescue
// the captures are part of the journal history and no longer needed live).
func (r *Resolver) Drop(tournamentID uuid.UUID) {
	for key := range r.resolved {
		if key.TournamentID == tournamentID {
			delete(r.resolved, key)
		}
	}
}

// Snapshot exports all live resolutions keyed by tournament.
func (r *Resolver) Snapshot() map[uuid.UUID][]Resolution {
	out := make(map[uuid.UUID][]Resolution)
	for key, res := range r.resolved {
		out[key.TournamentID] = append(out[key.TournamentID], res)
	}
	for id := range out {
		rs := out[id]
		sort.Slice(rs, func(i, j int) bool { return rs[i].Pair < rs[j].Pair })
		out[id] = rs
	}
	return out
}

// Restore replaces resolver state from a snapshot.
func (r *Resolver) Restore(snapshot map[uuid.UUID][]Resolution) {
	r.resolved = make(map[resolutionKey]Resolution)
	for id, rs := range snapshot {
		for _, res := range rs {
			r.resolved[resolutionKey{TournamentID: id, Pair: res.Pair}] = res
		}
	}
}
