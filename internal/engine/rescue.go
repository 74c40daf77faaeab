package engine

import (
	"time"

	"github.com/btn-group/az-trading-competition/internal/judge"
	"github.com/btn-group/az-trading-competition/internal/ledger"
	"github.com/btn-group/az-trading-competition/internal/tournament"
)

// rescueEligible decides whether a stuck tournament may take the emergency
// exit. Two independent triggers: the judges burned every attempt, or the
// rescue deadline passed with no settlement. Terminal states are never
// eligible.
func (e *Engine) rescueEligible(t *tournament.Tournament, placement *judge.Placement, now time.Time) bool {
	if t.State != tournament.StateAwaitingPrice && t.State != tournament.StateJudging {
		return false
	}
	if placement != nil && placement.AttemptsExhausted() {
		return true
	}
	return !now.Before(t.RescueDeadline())
}

// computeRescueDistribution unwinds escrow according to the tournament's
// rescue policy.
//
// RescueRefundStakes: every participant gets their original stake back.
//
// RescuePartialRanking: participants the judges managed to value are ranked
// and paid prize splits; everyone else gets a stake refund. The ranked pool
// is the escrow minus the refunded stakes, so the distribution can never
// exceed what was collected.
func (e *Engine) computeRescueDistribution(
	t *tournament.Tournament,
	placement *judge.Placement,
) (refunds, payouts []ledger.Payout) {
	participants := t.Participants()
	if len(participants) == 0 {
		return nil, nil
	}

	if t.Config.RescuePolicy == tournament.RescueRefundStakes || placement == nil || placement.ValuedCount() == 0 {
		for _, p := range participants {
			if p.Stake > 0 {
				refunds = append(refunds, ledger.Payout{Account: p.Account, Amount: p.Stake})
			}
		}
		return refunds, nil
	}

	// Partial ranking: rank whoever was valued, refund the rest.
	entries := make([]judge.Entry, 0, placement.ValuedCount())
	var refundedStakes int64
	for _, p := range participants {
		if placement.Valued(p.Account) {
			continue
		}
		if p.Stake > 0 {
			refunds = append(refunds, ledger.Payout{Account: p.Account, Amount: p.Stake})
			refundedStakes += p.Stake
		}
	}
	for _, v := range placement.Export().Valuations {
		p, ok := t.Participant(v.Account)
		if !ok {
			continue
		}
		entries = append(entries, judge.Entry{
			Account:      v.Account,
			Value:        v.Value,
			RegisteredAt: p.RegisteredAt,
		})
	}

	pool := e.balanceTracker.EscrowBalance(t.ID) - refundedStakes
	payouts = computePayouts(judge.Rank(entries), t.Config, pool)
	return refunds, payouts
}
