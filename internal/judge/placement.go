package judge

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// AttemptOutcome classifies a logged placement attempt.
type AttemptOutcome int32

const (
	OutcomeNoProgress AttemptOutcome = iota
	OutcomeIncomplete
	OutcomeFinalized
	OutcomeFailure
)

func (o AttemptOutcome) String() string {
	switch o {
	case OutcomeNoProgress:
		return "no_progress"
	case OutcomeIncomplete:
		return "incomplete"
	case OutcomeFinalized:
		return "finalized"
	case OutcomeFailure:
		return "failure"
	default:
		return "unknown"
	}
}

// Attempt is one logged judge action that consumed an attempt.
type Attempt struct {
	Caller  uuid.UUID
	At      time.Time
	Outcome AttemptOutcome
}

// Placement tracks the judging protocol state for one tournament: which
// participants have been valued, how many attempts and resets the judges
// have burned, and whether the ranking is final.
type Placement struct {
	maxAttempts int
	maxResets   int
	batchSize   int

	valuations   map[uuid.UUID]int64
	attemptCount int
	resetCount   int
	attempts     []Attempt
	final        []Ranked
}

func NewPlacement(maxAttempts, maxResets, batchSize int) *Placement {
	return &Placement{
		maxAttempts: maxAttempts,
		maxResets:   maxResets,
		batchSize:   batchSize,
		valuations:  make(map[uuid.UUID]int64),
	}
}

// BatchSize returns the maximum number of valuations one update may carry.
func (p *Placement) BatchSize() int { return p.batchSize }

// AttemptCount returns how many attempts have been consumed.
func (p *Placement) AttemptCount() int { return p.attemptCount }

// ResetCount returns how many resets have been consumed.
func (p *Placement) ResetCount() int { return p.resetCount }

// AttemptsExhausted reports whether the attempt cap is spent.
func (p *Placement) AttemptsExhausted() bool {
	return p.attemptCount >= p.maxAttempts
}

// Finalized reports whether a ranking has been fixed.
func (p *Placement) Finalized() bool { return p.final != nil }

// Ranking returns the finalized placements, or nil before finalization.
func (p *Placement) Ranking() []Ranked {
	if p.final == nil {
		return nil
	}
	out := make([]Ranked, len(p.final))
	copy(out, p.final)
	return out
}

// Attempts returns the attempt log in consumption order.
func (p *Placement) Attempts() []Attempt {
	out := make([]Attempt, len(p.attempts))
	copy(out, p.attempts)
	return out
}

// Valued reports whether a participant already carries a valuation.
func (p *Placement) Valued(account uuid.UUID) bool {
	_, ok := p.valuations[account]
	return ok
}

// ValuedCount returns how many participants have been valued.
func (p *Placement) ValuedCount() int { return len(p.valuations) }

// ApplyValuations records a batch of participant valuations. Returns the
// number of participants newly valued; re-submitting an already-valued
// participant is not progress and does not change the stored value.
func (p *Placement) ApplyValuations(entries map[uuid.UUID]int64) (int, error) {
	if p.final != nil {
		return 0, ErrRankingFinalized
	}

	progress := 0
	for account, value := range entries {
		if _, ok := p.valuations[account]; ok {
			continue
		}
		p.valuations[account] = value
		progress++
	}
	return progress, nil
}

// CanAttempt checks the attempt cap without consuming anything. Callers
// must check before mutating so an exhausted placement stays untouched.
func (p *Placement) CanAttempt() error {
	if p.final != nil {
		return ErrRankingFinalized
	}
	if p.attemptCount >= p.maxAttempts {
		return ErrAttemptsExhausted
	}
	return nil
}

// ConsumeAttempt burns one attempt and logs it.
func (p *Placement) ConsumeAttempt(caller uuid.UUID, at time.Time, outcome AttemptOutcome) {
	p.attemptCount++
	p.attempts = append(p.attempts, Attempt{Caller: caller, At: at, Outcome: outcome})
}

// Finalize fixes the ranking from the accumulated valuations. Every
// participant must be valued; registration times come from the caller
// so ties break on who registered first.
func (p *Placement) Finalize(registrations map[uuid.UUID]time.Time) ([]Ranked, error) {
	if p.final != nil {
		return nil, ErrRankingFinalized
	}
	if len(p.valuations) != len(registrations) {
		return nil, ErrRankingIncomplete
	}

	entries := make([]Entry, 0, len(p.valuations))
	for account, value := range p.valuations {
		registeredAt, ok := registrations[account]
		if !ok {
			return nil, ErrUnknownParticipant
		}
		entries = append(entries, Entry{Account: account, Value: value, RegisteredAt: registeredAt})
	}

	p.final = Rank(entries)
	return p.Ranking(), nil
}

// Reset clears all valuations so judging can start over. The attempt
// counter and log survive a reset; only the valuations are wiped.
func (p *Placement) Reset() error {
	if p.final != nil {
		return ErrRankingFinalized
	}
	if p.resetCount >= p.maxResets {
		return ErrResetLimitExceeded
	}

	p.resetCount++
	p.valuations = make(map[uuid.UUID]int64)
	return nil
}

// ValuationEntry is one valued participant in a snapshot.
type ValuationEntry struct {
	Account uuid.UUID
	Value   int64
}

// Snapshot is the serializable placement state.
type Snapshot struct {
	MaxAttempts  int
	MaxResets    int
	BatchSize    int
	AttemptCount int
	ResetCount   int
	Valuations   []ValuationEntry
	Attempts     []Attempt
	Final        []Ranked
}

// Export captures the placement for persistence, valuations ordered by
// account so the output is deterministic.
func (p *Placement) Export() Snapshot {
	valuations := make([]ValuationEntry, 0, len(p.valuations))
	for account, value := range p.valuations {
		valuations = append(valuations, ValuationEntry{Account: account, Value: value})
	}
	sort.Slice(valuations, func(i, j int) bool {
		return valuations[i].Account.String() < valuations[j].Account.String()
	})

	snap := Snapshot{
		MaxAttempts:  p.maxAttempts,
		MaxResets:    p.maxResets,
		BatchSize:    p.batchSize,
		AttemptCount: p.attemptCount,
		ResetCount:   p.resetCount,
		Valuations:   valuations,
		Attempts:     append([]Attempt(nil), p.attempts...),
	}
	if p.final != nil {
		snap.Final = append([]Ranked(nil), p.final...)
	}
	return snap
}

// Import rebuilds a placement from a snapshot.
func Import(snap Snapshot) *Placement {
	p := NewPlacement(snap.MaxAttempts, snap.MaxResets, snap.BatchSize)
	p.attemptCount = snap.AttemptCount
	p.resetCount = snap.ResetCount
	for _, v := range snap.Valuations {
		p.valuations[v.Account] = v.Value
	}
	p.attempts = append([]Attempt(nil), snap.Attempts...)
	if snap.Final != nil {
		p.final = append([]Ranked(nil), snap.Final...)
	}
	return p
}
