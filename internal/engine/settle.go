package engine

import (
	"math/big"

	"github.com/btn-group/az-trading-competition/internal/judge"
	"github.com/btn-group/az-trading-competition/internal/ledger"
	"github.com/btn-group/az-trading-competition/internal/tournament"
)

// mulDiv computes a*b/den through a 128-bit intermediate so large pools
// and valuations cannot overflow int64 before the division. Truncates
// toward zero like Go's integer division.
func mulDiv(a, b, den int64) int64 {
	r := new(big.Int).Mul(big.NewInt(a), big.NewInt(b))
	r.Quo(r, big.NewInt(den))
	return r.Int64()
}

// computePayouts divides a prize pool over a ranking using the configured
// split. Each payout is floor(pool * numerator / denominator); division
// residue stays in escrow rather than being minted to anyone. Ranks past
// the last numerator win nothing.
func computePayouts(ranked []judge.Ranked, cfg tournament.Config, pool int64) []ledger.Payout {
	if pool <= 0 || len(ranked) == 0 {
		return nil
	}

	payouts := make([]ledger.Payout, 0, len(ranked))
	for _, r := range ranked {
		idx := r.Place - 1
		if idx >= len(cfg.PrizeNumerators) {
			break
		}
		amount := mulDiv(pool, cfg.PrizeNumerators[idx], cfg.PrizeDenominator)
		if amount <= 0 {
			continue
		}
		payouts = append(payouts, ledger.Payout{Account: r.Account, Amount: amount})
	}
	return payouts
}
