package query

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/btn-group/az-trading-competition/internal/engine"
	"github.com/btn-group/az-trading-competition/internal/ledger"
)

// Service provides read-only access to the projection tables. Every
// response carries as_of_sequence so callers can reason about freshness
// relative to the engine's command log.
type Service struct {
	db *sql.DB
}

func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

// GetTournament returns the stored view document for a tournament.
func (s *Service) GetTournament(ctx context.Context, id uuid.UUID) (*engine.TournamentView, error) {
	var doc []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT view FROM projections.tournaments WHERE tournament_id = $1
	`, id).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var view engine.TournamentView
	if err := json.Unmarshal(doc, &view); err != nil {
		return nil, fmt.Errorf("decode tournament view: %w", err)
	}
	return &view, nil
}

// ListTournaments returns summaries of every projected tournament.
func (s *Service) ListTournaments(ctx context.Context) ([]TournamentSummary, error) {
	asOfSeq, err := s.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT tournament_id, name, state, version
		FROM projections.tournaments
		ORDER BY updated_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var summaries []TournamentSummary
	for rows.Next() {
		var t TournamentSummary
		t.AsOfSequence = asOfSeq
		if err := rows.Scan(&t.TournamentID, &t.Name, &t.State, &t.Version); err != nil {
			return nil, err
		}
		summaries = append(summaries, t)
	}

	return summaries, rows.Err()
}

// GetFeeBalance returns the accumulated forfeited judge fees.
func (s *Service) GetFeeBalance(ctx context.Context) (*FeeBalanceResponse, error) {
	asOfSeq, err := s.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	feesPath := ledger.NewJudgeFeesAccountKey(ledger.SettlementAssetID()).AccountPath()
	balance, err := s.getProjectedBalance(ctx, feesPath)
	if err != nil {
		return nil, err
	}

	return &FeeBalanceResponse{
		Balance:      balance,
		AsOfSequence: asOfSeq,
	}, nil
}

// GetEscrowBalance returns the remaining stake escrow for a tournament.
func (s *Service) GetEscrowBalance(ctx context.Context, tournamentID uuid.UUID) (int64, error) {
	escrowPath := ledger.NewEscrowAccountKey(tournamentID, ledger.SettlementAssetID()).AccountPath()
	return s.getProjectedBalance(ctx, escrowPath)
}

// GetJournalHistory returns journal entries touching a participant's
// accounts, newest first, with cursor pagination on sequence.
func (s *Service) GetJournalHistory(
	ctx context.Context,
	account uuid.UUID,
	limit int,
	afterSequence *int64,
) ([]JournalHistoryEntry, error) {
	accountPrefix := fmt.Sprintf("participant:%s:%%", account)

	query := `
		SELECT journal_id, batch_id, command_ref, sequence,
		       debit_account, credit_account, asset_id, amount, journal_type, timestamp
		FROM command_log.journal
		WHERE debit_account LIKE $1 OR credit_account LIKE $1
	`
	args := []interface{}{accountPrefix}
	argIdx := 2

	if afterSequence != nil {
		query += fmt.Sprintf(" AND sequence < $%d", argIdx)
		args = append(args, *afterSequence)
		argIdx++
	}

	query += " ORDER BY sequence DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []JournalHistoryEntry
	for rows.Next() {
		var e JournalHistoryEntry
		if err := rows.Scan(
			&e.JournalID, &e.BatchID, &e.CommandRef, &e.Sequence,
			&e.DebitAccount, &e.CreditAccount, &e.AssetID, &e.Amount,
			&e.JournalType, &e.Timestamp,
		); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// --- Admin APIs ---

// VerifyIntegrity checks hash chain continuity and the global zero-sum
// invariant over the projected balances.
func (s *Service) VerifyIntegrity(ctx context.Context) (*IntegrityReport, error) {
	report := &IntegrityReport{}

	rows, err := s.db.QueryContext(ctx, `
		SELECT c1.sequence
		FROM command_log.commands c1
		LEFT JOIN command_log.commands c2 ON c2.sequence = c1.sequence - 1
		WHERE c1.sequence > 0 AND c1.prev_hash != COALESCE(c2.state_hash, c1.prev_hash)
		LIMIT 10
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var seq int64
		if err := rows.Scan(&seq); err != nil {
			return nil, err
		}
		report.HashChainBreaks = append(report.HashChainBreaks, seq)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	balanceRows, err := s.db.QueryContext(ctx, `
		SELECT asset_id, SUM(balance) as total
		FROM projections.balances
		GROUP BY asset_id
		HAVING SUM(balance) != 0
	`)
	if err != nil {
		return nil, err
	}
	defer balanceRows.Close()

	for balanceRows.Next() {
		var assetID uint16
		var total int64
		if err := balanceRows.Scan(&assetID, &total); err != nil {
			return nil, err
		}
		report.UnbalancedAssets = append(report.UnbalancedAssets, UnbalancedAsset{
			AssetID:   assetID,
			Imbalance: total,
		})
	}
	if err := balanceRows.Err(); err != nil {
		return nil, err
	}

	report.IsHealthy = len(report.HashChainBreaks) == 0 && len(report.UnbalancedAssets) == 0
	return report, nil
}

// --- helpers ---

func (s *Service) getWatermark(ctx context.Context) (int64, error) {
	var seq int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(last_sequence, 0) FROM projections.watermark WHERE worker_id = 'main'
	`).Scan(&seq)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return seq, err
}

func (s *Service) getProjectedBalance(ctx context.Context, accountPath string) (int64, error) {
	var balance int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(balance, 0) FROM projections.balances
		WHERE account_path = $1
	`, accountPath).Scan(&balance)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return balance, err
}
