package ledger

import (
	"fmt"

	"github.com/google/uuid"
)

// Payout is one account's share of a settlement or rescue distribution.
type Payout struct {
	Account uuid.UUID
	Amount  int64
}

// JournalGenerator creates balanced journal batches from commands
type JournalGenerator struct {
	sequence       int64
	balanceTracker *BalanceTracker // reference for pre-checks
}

func NewJournalGenerator(startSequence int64, tracker *BalanceTracker) *JournalGenerator {
	return &JournalGenerator{
		sequence:       startSequence,
		balanceTracker: tracker,
	}
}

// SetSequence re-syncs the generator after a replay or snapshot restore.
func (jg *JournalGenerator) SetSequence(seq int64) {
	jg.sequence = seq
}

// GenerateStakeDeposit records an entry stake entering escrow.
// Moves funds: external:stakes → system:stake_escrow:<tournament>
func (jg *JournalGenerator) GenerateStakeDeposit(
	tournamentID uuid.UUID,
	commandRef string,
	amount int64,
	timestamp int64,
) (*Batch, error) {
	assetID := SettlementAssetID()
	batchID := uuid.New()

	batch := &Batch{
		BatchID:    batchID,
		CommandRef: commandRef,
		Sequence:   jg.sequence,
		Timestamp:  timestamp,
		Journals:   make([]Journal, 0, 1),
	}

	journal := Journal{
		JournalID:     uuid.New(),
		BatchID:       batchID,
		CommandRef:    commandRef,
		Sequence:      jg.sequence,
		DebitAccount:  NewEscrowAccountKey(tournamentID, assetID),
		CreditAccount: NewExternalAccountKey(SubTypeExternalStakes, assetID),
		AssetID:       assetID,
		Amount:        amount,
		JournalType:   JournalTypeStakeDeposit,
		Timestamp:     timestamp,
	}

	batch.Journals = append(batch.Journals, journal)
	jg.sequence++

	return batch, nil
}

// GenerateFailedAttemptFee credits a consumed judge fee to the admin accumulator.
// Moves funds: external:fees → system:judge_fees
func (jg *JournalGenerator) GenerateFailedAttemptFee(
	commandRef string,
	amount int64,
	timestamp int64,
) (*Batch, error) {
	assetID := SettlementAssetID()
	batchID := uuid.New()

	batch := &Batch{
		BatchID:    batchID,
		CommandRef: commandRef,
		Sequence:   jg.sequence,
		Timestamp:  timestamp,
		Journals:   make([]Journal, 0, 1),
	}

	journal := Journal{
		JournalID:     uuid.New(),
		BatchID:       batchID,
		CommandRef:    commandRef,
		Sequence:      jg.sequence,
		DebitAccount:  NewJudgeFeesAccountKey(assetID),
		CreditAccount: NewExternalAccountKey(SubTypeExternalFees, assetID),
		AssetID:       assetID,
		Amount:        amount,
		JournalType:   JournalTypeFailedAttemptFee,
		Timestamp:     timestamp,
	}

	batch.Journals = append(batch.Journals, journal)
	jg.sequence++

	return batch, nil
}

// GenerateFeeWithdrawal pays out accumulated judge fees to the admin.
// Pre-check: the fee accumulator must hold at least the requested amount.
// Moves funds: system:judge_fees → external:withdrawals
func (jg *JournalGenerator) GenerateFeeWithdrawal(
	commandRef string,
	amount int64,
	timestamp int64,
) (*Batch, error) {
	assetID := SettlementAssetID()

	if err := jg.balanceTracker.ValidateSufficient(NewJudgeFeesAccountKey(assetID), amount); err != nil {
		return nil, fmt.Errorf("fee withdrawal pre-check failed: %w", err)
	}

	batchID := uuid.New()

	batch := &Batch{
		BatchID:    batchID,
		CommandRef: commandRef,
		Sequence:   jg.sequence,
		Timestamp:  timestamp,
		Journals:   make([]Journal, 0, 1),
	}

	journal := Journal{
		JournalID:     uuid.New(),
		BatchID:       batchID,
		CommandRef:    commandRef,
		Sequence:      jg.sequence,
		DebitAccount:  NewExternalAccountKey(SubTypeExternalWithdrawals, assetID),
		CreditAccount: NewJudgeFeesAccountKey(assetID),
		AssetID:       assetID,
		Amount:        amount,
		JournalType:   JournalTypeFeeWithdrawal,
		Timestamp:     timestamp,
	}

	batch.Journals = append(batch.Journals, journal)
	jg.sequence++

	return batch, nil
}

// GenerateSettlement drains a tournament's escrow into the winners' prize
// accounts, one journal per placement. Pre-check: escrow must cover the
// full distribution, so a settlement can never mint value.
func (jg *JournalGenerator) GenerateSettlement(
	tournamentID uuid.UUID,
	commandRef string,
	payouts []Payout,
	timestamp int64,
) (*Batch, error) {
	assetID := SettlementAssetID()
	escrow := NewEscrowAccountKey(tournamentID, assetID)

	var total int64
	for _, p := range payouts {
		total += p.Amount
	}
	if err := jg.balanceTracker.ValidateSufficient(escrow, total); err != nil {
		return nil, fmt.Errorf("settlement pre-check failed: %w", err)
	}

	batchID := uuid.New()

	batch := &Batch{
		BatchID:    batchID,
		CommandRef: commandRef,
		Sequence:   jg.sequence,
		Timestamp:  timestamp,
		Journals:   make([]Journal, 0, len(payouts)),
	}

	for _, p := range payouts {
		if p.Amount == 0 {
			continue
		}
		journal := Journal{
			JournalID:     uuid.New(),
			BatchID:       batchID,
			CommandRef:    commandRef,
			Sequence:      jg.sequence,
			DebitAccount:  NewParticipantAccountKey(p.Account, SubTypePrize, assetID),
			CreditAccount: escrow,
			AssetID:       assetID,
			Amount:        p.Amount,
			JournalType:   JournalTypePrizePayout,
			Timestamp:     timestamp,
		}
		batch.Journals = append(batch.Journals, journal)
	}

	jg.sequence++
	return batch, nil
}

// GenerateRescueDistribution unwinds a tournament's escrow during an
// emergency rescue: stake refunds for unranked participants and, under
// partial ranking, prize payouts for ranked ones. Leftover rounding
// residue stays in escrow.
func (jg *JournalGenerator) GenerateRescueDistribution(
	tournamentID uuid.UUID,
	commandRef string,
	refunds []Payout,
	payouts []Payout,
	timestamp int64,
) (*Batch, error) {
	assetID := SettlementAssetID()
	escrow := NewEscrowAccountKey(tournamentID, assetID)

	var total int64
	for _, r := range refunds {
		total += r.Amount
	}
	for _, p := range payouts {
		total += p.Amount
	}
	if err := jg.balanceTracker.ValidateSufficient(escrow, total); err != nil {
		return nil, fmt.Errorf("rescue pre-check failed: %w", err)
	}

	batchID := uuid.New()

	batch := &Batch{
		BatchID:    batchID,
		CommandRef: commandRef,
		Sequence:   jg.sequence,
		Timestamp:  timestamp,
		Journals:   make([]Journal, 0, len(refunds)+len(payouts)),
	}

	for _, r := range refunds {
		if r.Amount == 0 {
			continue
		}
		journal := Journal{
			JournalID:     uuid.New(),
			BatchID:       batchID,
			CommandRef:    commandRef,
			Sequence:      jg.sequence,
			DebitAccount:  NewParticipantAccountKey(r.Account, SubTypeStakeRefund, assetID),
			CreditAccount: escrow,
			AssetID:       assetID,
			Amount:        r.Amount,
			JournalType:   JournalTypeStakeRefund,
			Timestamp:     timestamp,
		}
		batch.Journals = append(batch.Journals, journal)
	}

	for _, p := range payouts {
		if p.Amount == 0 {
			continue
		}
		journal := Journal{
			JournalID:     uuid.New(),
			BatchID:       batchID,
			CommandRef:    commandRef,
			Sequence:      jg.sequence,
			DebitAccount:  NewParticipantAccountKey(p.Account, SubTypePrize, assetID),
			CreditAccount: escrow,
			AssetID:       assetID,
			Amount:        p.Amount,
			JournalType:   JournalTypePrizePayout,
			Timestamp:     timestamp,
		}
		batch.Journals = append(batch.Journals, journal)
	}

	jg.sequence++
	return batch, nil
}
