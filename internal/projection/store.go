package projection

import (
	"sync"

	"github.com/google/uuid"

	"github.com/btn-group/az-trading-competition/internal/engine"
	"github.com/btn-group/az-trading-competition/internal/ledger"
)

// Store is the in-memory read model. It holds the latest view of every
// tournament plus the running fee-ledger balance, fed from the engine's
// projection channel. Readers (HTTP handlers, the price-capture loop) only
// ever see whole views, never live engine state.
type Store struct {
	mu         sync.RWMutex
	views      map[uuid.UUID]*engine.TournamentView
	order      []uuid.UUID // creation order
	feeBalance int64
	lastSeq    int64
}

func NewStore() *Store {
	return &Store{
		views: make(map[uuid.UUID]*engine.TournamentView),
	}
}

// Apply folds one engine output into the store.
func (s *Store) Apply(output engine.Output) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if output.View != nil {
		if _, seen := s.views[output.View.ID]; !seen {
			s.order = append(s.order, output.View.ID)
		}
		s.views[output.View.ID] = output.View
	}

	if output.Batch != nil {
		for _, j := range output.Batch.Journals {
			switch j.JournalType {
			case ledger.JournalTypeFailedAttemptFee:
				s.feeBalance += j.Amount
			case ledger.JournalTypeFeeWithdrawal:
				s.feeBalance -= j.Amount
			}
		}
	}

	if output.Envelope != nil {
		s.lastSeq = output.Envelope.Sequence
	}
}

// Tournament returns the latest view for id.
func (s *Store) Tournament(id uuid.UUID) (*engine.TournamentView, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.views[id]
	return v, ok
}

// Tournaments returns every view in creation order.
func (s *Store) Tournaments() []*engine.TournamentView {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*engine.TournamentView, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.views[id])
	}
	return out
}

// AwaitingPrice returns tournaments with unresolved closing prices.
// The oracle capture loop polls this to know which captures to submit.
func (s *Store) AwaitingPrice() []*engine.TournamentView {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*engine.TournamentView
	for _, id := range s.order {
		if v := s.views[id]; v.State == "awaiting_price" {
			out = append(out, v)
		}
	}
	return out
}

// FeeBalance returns the accumulated forfeited judge fees.
func (s *Store) FeeBalance() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.feeBalance
}

// LastSequence returns the sequence of the last applied output.
func (s *Store) LastSequence() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSeq
}
