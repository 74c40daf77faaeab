package engine

import (
	"time"

	"github.com/google/uuid"

	"github.com/btn-group/az-trading-competition/internal/judge"
	"github.com/btn-group/az-trading-competition/internal/price"
	"github.com/btn-group/az-trading-competition/internal/tournament"
)

// ParticipantView is the read-model projection of one registration.
type ParticipantView struct {
	Account      uuid.UUID        `json:"account"`
	RegisteredAt time.Time        `json:"registered_at"`
	Stake        int64            `json:"stake"`
	Balances     map[string]int64 `json:"balances"`
	Prize        int64            `json:"prize"`
	Refund       int64            `json:"refund"`
}

// TournamentView is the read-model projection the engine attaches to every
// output touching a tournament. Query consumers never reach into live
// engine state; they consume these immutable copies.
type TournamentView struct {
	ID        uuid.UUID  `json:"id"`
	Name      string     `json:"name"`
	Admin     uuid.UUID  `json:"admin"`
	State     string     `json:"state"`
	Start     time.Time  `json:"start"`
	End       time.Time  `json:"end"`
	ClosedAt  *time.Time `json:"closed_at,omitempty"`
	Version   int64      `json:"version"`
	CreatedAt time.Time  `json:"created_at"`

	PairWhitelist   []string `json:"pair_whitelist"`
	UnresolvedPairs []string `json:"unresolved_pairs"`

	EntryStake    int64 `json:"entry_stake"`
	JudgeFee      int64 `json:"judge_fee"`
	EscrowBalance int64 `json:"escrow_balance"`

	AttemptCount    int  `json:"attempt_count"`
	MaxAttempts     int  `json:"max_attempts"`
	ResetCount      int  `json:"reset_count"`
	MaxResets       int  `json:"max_resets"`
	ValuedCount     int  `json:"valued_count"`
	RankingFinal    bool `json:"ranking_final"`
	RescueEligible  bool `json:"rescue_eligible"`

	RescueDeadline time.Time `json:"rescue_deadline"`

	Participants []ParticipantView  `json:"participants"`
	Ranking      []judge.Ranked     `json:"ranking,omitempty"`
	Resolutions  []price.Resolution `json:"resolutions,omitempty"`
}

// buildView snapshots a tournament into an immutable projection. asOf is
// the timestamp of the command that produced this view.
func (e *Engine) buildView(t *tournament.Tournament, asOf time.Time) *TournamentView {
	cfg := t.Config
	placement := e.placements[t.ID]

	view := &TournamentView{
		ID:        t.ID,
		Name:      cfg.Name,
		Admin:     cfg.Admin,
		State:     t.State.String(),
		Start:     cfg.Start,
		End:       cfg.End,
		Version:   t.Version,
		CreatedAt: t.CreatedAt,

		PairWhitelist: append([]string(nil), cfg.PairWhitelist...),

		EntryStake:    cfg.EntryStake,
		JudgeFee:      cfg.JudgeFee,
		EscrowBalance: e.balanceTracker.EscrowBalance(t.ID),

		MaxAttempts: int(cfg.MaxJudgeAttempts),
		MaxResets:   int(cfg.MaxJudgeResets),

		RescueDeadline: t.RescueDeadline(),
	}

	if t.ClosedAt != nil {
		closed := *t.ClosedAt
		view.ClosedAt = &closed
	}

	for _, pair := range cfg.PairWhitelist {
		if _, ok := e.resolver.Resolution(t.ID, pair); !ok {
			view.UnresolvedPairs = append(view.UnresolvedPairs, pair)
		}
	}
	view.Resolutions = e.resolver.Resolutions(t.ID)

	if placement != nil {
		view.AttemptCount = placement.AttemptCount()
		view.ResetCount = placement.ResetCount()
		view.ValuedCount = placement.ValuedCount()
		view.RankingFinal = placement.Finalized()
		view.Ranking = placement.Ranking()
	}

	view.RescueEligible = e.rescueEligible(t, placement, asOf)

	for _, p := range t.Participants() {
		balances := make(map[string]int64, len(p.Balances))
		for tok, bal := range p.Balances {
			balances[tok] = bal
		}
		view.Participants = append(view.Participants, ParticipantView{
			Account:      p.Account,
			RegisteredAt: p.RegisteredAt,
			Stake:        p.Stake,
			Balances:     balances,
			Prize:        e.balanceTracker.PrizeBalance(p.Account),
			Refund:       e.balanceTracker.RefundBalance(p.Account),
		})
	}

	return view
}
