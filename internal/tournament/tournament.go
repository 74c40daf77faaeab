package tournament

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// State is the tournament lifecycle state.
// Transitions are monotonic: a tournament never returns to an earlier state,
// and exactly one terminal state (Settled or Rescued) is ever reached.
type State int32

const (
	StateRegistering State = iota
	StateActive
	StateAwaitingPrice
	StateJudging
	StateSettled
	StateRescued
)

func (s State) String() string {
	switch s {
	case StateRegistering:
		return "registering"
	case StateActive:
		return "active"
	case StateAwaitingPrice:
		return "awaiting_price"
	case StateJudging:
		return "judging"
	case StateSettled:
		return "settled"
	case StateRescued:
		return "rescued"
	default:
		return "unknown"
	}
}

// Terminal reports whether the state admits no further transitions.
func (s State) Terminal() bool {
	return s == StateSettled || s == StateRescued
}

// CanTransitionTo encodes the legal lifecycle edges.
func (s State) CanTransitionTo(next State) bool {
	switch s {
	case StateRegistering:
		return next == StateActive
	case StateActive:
		return next == StateAwaitingPrice
	case StateAwaitingPrice:
		return next == StateJudging || next == StateRescued
	case StateJudging:
		return next == StateSettled || next == StateRescued
	default:
		return false
	}
}

// RescuePolicy selects how escrowed stakes are distributed when a tournament
// is force-closed through the emergency rescue path.
type RescuePolicy int32

const (
	// RescueRefundStakes returns every participant's original stake.
	RescueRefundStakes RescuePolicy = iota
	// RescuePartialRanking pays prize splits over whatever partial ranking
	// was computed before judging stalled; participants outside the partial
	// ranking get their stake back.
	RescuePartialRanking
)

func (p RescuePolicy) String() string {
	switch p {
	case RescueRefundStakes:
		return "refund_stakes"
	case RescuePartialRanking:
		return "partial_ranking"
	default:
		return "unknown"
	}
}

// Config holds the per-tournament parameters fixed at creation by the
// administrative account. Time windows are compared against the timestamp
// each call carries; the engine itself never reads the wall clock.
type Config struct {
	Admin         uuid.UUID
	Name          string
	PairWhitelist []string // "ETH/AZERO" style pairs; quote side is the settlement asset

	Start time.Time // registration closes, competition opens
	End   time.Time // competition closes; authoritative close timestamp

	GracePeriod     time.Duration // manual price override disabled until End+GracePeriod
	RescueTimeLimit time.Duration // rescue eligible at End+RescueTimeLimit regardless of attempts

	EntryStake         int64 // settlement-asset base units locked at registration
	JudgeFee           int64 // minimum fee per judge call
	MaxJudgeAttempts   int32
	MaxJudgeResets     int32
	PlacementBatchSize int

	RescuePolicy     RescuePolicy
	PrizeNumerators  []int64 // split per rank, best rank first
	PrizeDenominator int64
}

// Validate checks the creation-time invariants of a config.
func (c Config) Validate() error {
	if !c.End.After(c.Start) {
		return ErrInvalidWindow
	}
	if len(c.PairWhitelist) == 0 {
		return ErrInvalidWhitelist
	}
	if c.MaxJudgeAttempts <= 0 || c.MaxJudgeResets <= 0 || c.PlacementBatchSize <= 0 {
		return ErrInvalidMaxima
	}
	if c.EntryStake < 0 || c.JudgeFee < 0 {
		return fmt.Errorf("%w: stake and fee must be non-negative", ErrInvalidMaxima)
	}
	if c.PrizeDenominator <= 0 {
		return ErrInvalidPrizeSplit
	}
	var total int64
	for _, n := range c.PrizeNumerators {
		if n < 0 {
			return ErrInvalidPrizeSplit
		}
		total += n
	}
	if total > c.PrizeDenominator {
		return ErrInvalidPrizeSplit
	}
	return nil
}

// PairWhitelisted reports whether the exact pair is on the whitelist.
func (c Config) PairWhitelisted(pair string) bool {
	for _, p := range c.PairWhitelist {
		if p == pair {
			return true
		}
	}
	return false
}

// TokenWhitelisted reports whether token is the base asset of any
// whitelisted pair.
func (c Config) TokenWhitelisted(token string) bool {
	for _, p := range c.PairWhitelist {
		if base, _, ok := SplitPair(p); ok && base == token {
			return true
		}
	}
	return false
}

// SplitPair breaks "BASE/QUOTE" into its sides.
func SplitPair(pair string) (base, quote string, ok bool) {
	i := strings.IndexByte(pair, '/')
	if i <= 0 || i == len(pair)-1 {
		return "", "", false
	}
	return pair[:i], pair[i+1:], true
}

// Participant is one registered account. Identity is immutable after
// registration; token balances are updated as external fills arrive.
type Participant struct {
	Account      uuid.UUID
	RegisteredAt time.Time
	Stake        int64
	Balances     map[string]int64 // token symbol -> base units
	NFTHandle    *string          // opaque handle from the minting collaborator
}

// Tournament is one bounded-duration trading competition instance.
// All mutation goes through the engine's single command loop, so no field
// needs its own synchronization.
type Tournament struct {
	ID        uuid.UUID
	Config    Config
	State     State
	CreatedAt time.Time
	ClosedAt  *time.Time // set on entering AwaitingPrice; equals Config.End
	Version   int64

	participants map[uuid.UUID]*Participant
	order        []uuid.UUID // registration order, drives tie-breaks
}

func newTournament(id uuid.UUID, cfg Config, createdAt time.Time) *Tournament {
	return &Tournament{
		ID:           id,
		Config:       cfg,
		State:        StateRegistering,
		CreatedAt:    createdAt,
		participants: make(map[uuid.UUID]*Participant),
	}
}

// SyncClock advances the time-driven transitions
// (Registering→Active, Active→AwaitingPrice) against the call's timestamp.
// Idempotent and monotonic; safe to call at the top of every operation.
func (t *Tournament) SyncClock(now time.Time) {
	if t.State == StateRegistering && !now.Before(t.Config.Start) {
		t.State = StateActive
		t.Version++
	}
	if t.State == StateActive && !now.Before(t.Config.End) {
		closed := t.Config.End
		t.ClosedAt = &closed
		t.State = StateAwaitingPrice
		t.Version++
	}
}

// Register adds an account during the Registering window. tokens is the
// participant's intended trading set; every token must be the base of a
// whitelisted pair.
func (t *Tournament) Register(account uuid.UUID, tokens []string, now time.Time) (*Participant, error) {
	t.SyncClock(now)

	if t.State != StateRegistering {
		return nil, ErrTournamentNotOpen
	}
	if _, exists := t.participants[account]; exists {
		return nil, ErrDuplicateParticipant
	}
	for _, tok := range tokens {
		if !t.Config.TokenWhitelisted(tok) {
			return nil, fmt.Errorf("%w: %s", ErrPairNotWhitelisted, tok)
		}
	}

	p := &Participant{
		Account:      account,
		RegisteredAt: now,
		Stake:        t.Config.EntryStake,
		Balances:     make(map[string]int64, len(tokens)),
	}
	for _, tok := range tokens {
		p.Balances[tok] = 0
	}

	t.participants[account] = p
	t.order = append(t.order, account)
	t.Version++
	return p, nil
}

// Close advances the tournament past the competition window. Before the end
// time it is a side-effect-free no-op; afterwards repeated calls change
// nothing beyond the first. Returns whether a transition happened.
func (t *Tournament) Close(now time.Time) bool {
	before := t.State
	t.SyncClock(now)
	return t.State != before && t.State == StateAwaitingPrice
}

// BeginJudging transitions AwaitingPrice→Judging once every whitelisted pair
// has an authoritative price.
func (t *Tournament) BeginJudging() error {
	if !t.State.CanTransitionTo(StateJudging) {
		return fmt.Errorf("%w: %s cannot begin judging", ErrNotInExpectedState, t.State)
	}
	t.State = StateJudging
	t.Version++
	return nil
}

// MarkSettled finalizes the tournament after a successful ranking.
func (t *Tournament) MarkSettled() error {
	if !t.State.CanTransitionTo(StateSettled) {
		return fmt.Errorf("%w: %s cannot settle", ErrNotInExpectedState, t.State)
	}
	t.State = StateSettled
	t.Version++
	return nil
}

// MarkRescued force-closes the tournament through the emergency path.
// Never legal from Settled.
func (t *Tournament) MarkRescued() error {
	if !t.State.CanTransitionTo(StateRescued) {
		return fmt.Errorf("%w: %s cannot be rescued", ErrNotInExpectedState, t.State)
	}
	t.State = StateRescued
	t.Version++
	return nil
}

// RescueDeadline is the absolute time after which rescue is allowed
// regardless of the attempt counter.
func (t *Tournament) RescueDeadline() time.Time {
	return t.Config.End.Add(t.Config.RescueTimeLimit)
}

// Participant returns the registration for account, if any.
func (t *Tournament) Participant(account uuid.UUID) (*Participant, bool) {
	p, ok := t.participants[account]
	return p, ok
}

// Participants returns all registrations in registration order.
func (t *Tournament) Participants() []*Participant {
	out := make([]*Participant, 0, len(t.order))
	for _, acc := range t.order {
		out = append(out, t.participants[acc])
	}
	return out
}

// ParticipantCount returns the number of registrations.
func (t *Tournament) ParticipantCount() int {
	return len(t.order)
}

// RestoreParticipant re-attaches a registration during snapshot restore,
// preserving the original registration order.
func (t *Tournament) RestoreParticipant(p *Participant) {
	t.participants[p.Account] = p
	t.order = append(t.order, p.Account)
}
