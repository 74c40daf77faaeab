package projection

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/btn-group/az-trading-competition/internal/engine"
	"github.com/btn-group/az-trading-competition/internal/observability"
)

// Worker consumes engine outputs and maintains the read models: the
// in-memory Store for hot queries and, when a database is attached, the
// projections schema for durable queries. The projection channel is lossy,
// so everything here can be rebuilt from the command log.
type Worker struct {
	db        *sql.DB // nil in store-only mode
	store     *Store
	inputChan <-chan engine.Output
	logger    zerolog.Logger
	metrics   *observability.Metrics
	lastSeq   int64
}

func NewWorker(db *sql.DB, store *Store, inputChan <-chan engine.Output, metrics *observability.Metrics) *Worker {
	return &Worker{
		db:        db,
		store:     store,
		inputChan: inputChan,
		logger:    observability.NewLogger("projection"),
		metrics:   metrics,
	}
}

// Run starts the projection worker loop.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case output, ok := <-w.inputChan:
			if !ok {
				return nil
			}

			w.store.Apply(output)

			if w.db != nil {
				start := time.Now()
				if err := w.persistOutput(ctx, output); err != nil {
					// Projections are eventually consistent and can be
					// rebuilt from the command log.
					w.logger.Warn().
						Int64("sequence", output.Envelope.Sequence).
						Err(err).
						Msg("projection update failed")
				} else if w.metrics != nil {
					w.metrics.PersistBatchDur.Observe(time.Since(start).Seconds())
				}
			}

			w.lastSeq = output.Envelope.Sequence
			if w.metrics != nil {
				w.metrics.FeeLedgerBalance.Set(float64(w.store.FeeBalance()))
			}
		}
	}
}

func (w *Worker) persistOutput(ctx context.Context, output engine.Output) error {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	seq := output.Envelope.Sequence

	if output.Batch != nil {
		for _, j := range output.Batch.Journals {
			if err := w.updateBalanceProjection(ctx, tx, j.DebitAccount.AccountPath(), uint16(j.AssetID), -j.Amount, seq); err != nil {
				return fmt.Errorf("balance projection (debit): %w", err)
			}
			if err := w.updateBalanceProjection(ctx, tx, j.CreditAccount.AccountPath(), uint16(j.AssetID), j.Amount, seq); err != nil {
				return fmt.Errorf("balance projection (credit): %w", err)
			}
		}
	}

	if output.View != nil {
		if err := w.upsertTournament(ctx, tx, output.View, seq); err != nil {
			return fmt.Errorf("tournament projection: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.watermark (worker_id, last_sequence, updated_at)
		VALUES ('main', $1, NOW())
		ON CONFLICT (worker_id) DO UPDATE SET last_sequence = $1, updated_at = NOW()
	`, seq); err != nil {
		return fmt.Errorf("watermark update: %w", err)
	}

	return tx.Commit()
}

func (w *Worker) updateBalanceProjection(ctx context.Context, tx *sql.Tx, accountPath string, assetID uint16, delta, seq int64) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO projections.balances (account_path, asset_id, balance, last_sequence)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (account_path, asset_id)
		DO UPDATE SET balance = projections.balances.balance + $3, last_sequence = $4
	`, accountPath, assetID, delta, seq)
	return err
}

func (w *Worker) upsertTournament(ctx context.Context, tx *sql.Tx, view *engine.TournamentView, seq int64) error {
	doc, err := json.Marshal(view)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO projections.tournaments (tournament_id, name, state, version, view, last_sequence, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (tournament_id)
		DO UPDATE SET state = $3, version = $4, view = $5, last_sequence = $6, updated_at = NOW()
	`, view.ID, view.Name, view.State, view.Version, doc, seq)
	return err
}

// RebuildProjections rebuilds the projection tables from the command log.
func RebuildProjections(ctx context.Context, db *sql.DB) error {
	truncateStatements := []string{
		`TRUNCATE projections.balances`,
		`TRUNCATE projections.tournaments`,
		`DELETE FROM projections.watermark WHERE worker_id = 'main'`,
	}

	for _, stmt := range truncateStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("truncate failed: %w", err)
		}
	}

	_, err := db.ExecContext(ctx, `
		INSERT INTO projections.balances (account_path, asset_id, balance, last_sequence)
		SELECT
			credit_account AS account_path,
			asset_id,
			SUM(amount) AS balance,
			MAX(sequence) AS last_sequence
		FROM command_log.journal
		GROUP BY credit_account, asset_id
		ON CONFLICT (account_path, asset_id) DO UPDATE
			SET balance = EXCLUDED.balance, last_sequence = EXCLUDED.last_sequence
	`)
	if err != nil {
		return fmt.Errorf("rebuild credit balances: %w", err)
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO projections.balances (account_path, asset_id, balance, last_sequence)
		SELECT
			debit_account AS account_path,
			asset_id,
			-SUM(amount) AS balance,
			MAX(sequence) AS last_sequence
		FROM command_log.journal
		GROUP BY debit_account, asset_id
		ON CONFLICT (account_path, asset_id) DO UPDATE
			SET balance = projections.balances.balance + EXCLUDED.balance,
			    last_sequence = GREATEST(projections.balances.last_sequence, EXCLUDED.last_sequence)
	`)
	if err != nil {
		return fmt.Errorf("rebuild debit balances: %w", err)
	}

	return nil
}
