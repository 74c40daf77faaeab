package ledger

import (
	"fmt"

	"github.com/google/uuid"
)

// InvariantValidator checks ledger invariants
type InvariantValidator struct {
	tracker *BalanceTracker
}

func NewInvariantValidator(tracker *BalanceTracker) *InvariantValidator {
	return &InvariantValidator{
		tracker: tracker,
	}
}

// ValidateBatchBalance verifies batch is balanced
func (v *InvariantValidator) ValidateBatchBalance(batch *Batch) error {
	return batch.Validate()
}

// ValidateEscrowNonNegative checks a tournament's escrow never goes negative
func (v *InvariantValidator) ValidateEscrowNonNegative(tournamentID uuid.UUID) error {
	key := NewEscrowAccountKey(tournamentID, SettlementAssetID())
	return v.tracker.ValidateNonNegative(key)
}

// ValidateEscrowDrained verifies a settled tournament's escrow holds only
// rounding residue below one prize share
func (v *InvariantValidator) ValidateEscrowDrained(tournamentID uuid.UUID, maxResidue int64) error {
	balance := v.tracker.EscrowBalance(tournamentID)
	if balance < 0 || balance > maxResidue {
		return fmt.Errorf("escrow for %s out of bounds after distribution: %d (max residue %d)",
			tournamentID, balance, maxResidue)
	}
	return nil
}

// ValidateFeesNonNegative checks the judge-fee accumulator >= 0
func (v *InvariantValidator) ValidateFeesNonNegative() error {
	key := NewJudgeFeesAccountKey(SettlementAssetID())
	return v.tracker.ValidateNonNegative(key)
}

// ValidateGlobalBalance verifies system is zero-sum
func (v *InvariantValidator) ValidateGlobalBalance() error {
	totals := v.tracker.ComputeGlobalBalance()

	for assetID, total := range totals {
		if total != 0 {
			assetName, _ := GetAssetName(assetID)
			return fmt.Errorf("global balance for %s is non-zero: %d", assetName, total)
		}
	}

	return nil
}
