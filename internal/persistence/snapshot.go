package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/btn-group/az-trading-competition/internal/engine"
	"github.com/btn-group/az-trading-competition/internal/judge"
	"github.com/btn-group/az-trading-competition/internal/ledger"
	"github.com/btn-group/az-trading-competition/internal/price"
	"github.com/btn-group/az-trading-competition/internal/tournament"
)

// SnapshotManager handles creating and loading state snapshots for
// recovery. On a warm restart the latest verified snapshot is loaded and
// the command log replayed from its sequence forward.
type SnapshotManager struct {
	db *sql.DB
}

// SnapshotData is the serializable form of engine.SnapshotState.
// Balances are keyed by account path because struct keys do not survive
// JSON encoding.
type SnapshotData struct {
	Sequence        int64                          `json:"sequence"`
	StateHash       []byte                         `json:"state_hash"`
	Balances        map[string]int64               `json:"balances"` // account path -> balance
	Tournaments     []tournament.Snapshot          `json:"tournaments"`
	Placements      map[uuid.UUID]judge.Snapshot   `json:"placements"`
	Resolutions     map[uuid.UUID][]price.Resolution `json:"resolutions"`
	SequenceState   map[string]int64               `json:"sequence_state"` // partition -> next expected seq
	IdempotencyKeys []string                       `json:"idempotency_keys"`
	CreatedAt       time.Time                      `json:"created_at"`
}

// FromEngineState converts the engine's snapshot into storable form.
func FromEngineState(snap *engine.SnapshotState, createdAt time.Time) *SnapshotData {
	balances := make(map[string]int64, len(snap.Balances))
	for key, bal := range snap.Balances {
		balances[key.AccountPath()] = bal
	}

	return &SnapshotData{
		Sequence:        snap.Sequence,
		StateHash:       append([]byte(nil), snap.StateHash[:]...),
		Balances:        balances,
		Tournaments:     snap.Tournaments,
		Placements:      snap.Placements,
		Resolutions:     snap.Resolutions,
		SequenceState:   snap.SequenceState,
		IdempotencyKeys: snap.IdempotencyKeys,
		CreatedAt:       createdAt,
	}
}

// ToEngineState inverts FromEngineState.
func (sd *SnapshotData) ToEngineState() (*engine.SnapshotState, error) {
	balances := make(map[ledger.AccountKey]int64, len(sd.Balances))
	for path, bal := range sd.Balances {
		key, err := ledger.ParseAccountPath(path)
		if err != nil {
			return nil, fmt.Errorf("snapshot balance %q: %w", path, err)
		}
		balances[key] = bal
	}

	snap := &engine.SnapshotState{
		Sequence:        sd.Sequence,
		Balances:        balances,
		Tournaments:     sd.Tournaments,
		Placements:      sd.Placements,
		Resolutions:     sd.Resolutions,
		SequenceState:   sd.SequenceState,
		IdempotencyKeys: sd.IdempotencyKeys,
	}
	copy(snap.StateHash[:], sd.StateHash)
	return snap, nil
}

func NewSnapshotManager(db *sql.DB) *SnapshotManager {
	return &SnapshotManager{db: db}
}

// SaveSnapshot persists a snapshot to Postgres. Snapshots are written
// unverified; MarkVerified flips the flag after a replay check.
func (sm *SnapshotManager) SaveSnapshot(ctx context.Context, snap *SnapshotData) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	snapshotID := uuid.New()
	sizeBytes := len(data)
	formatVersion := int32(1) // v1: JSON-encoded SnapshotData

	_, err = sm.db.ExecContext(ctx, `
		INSERT INTO command_log.snapshots
			(snapshot_id, sequence, data, state_hash, format_version, size_bytes, verified, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE, $7)
		ON CONFLICT (sequence) DO UPDATE SET data = $3, state_hash = $4, size_bytes = $6
	`, snapshotID, snap.Sequence, data, snap.StateHash, formatVersion, sizeBytes, snap.CreatedAt)

	return err
}

// LoadLatestSnapshot loads the most recent verified snapshot. Returns nil
// with no error on a cold start.
func (sm *SnapshotManager) LoadLatestSnapshot(ctx context.Context) (*SnapshotData, error) {
	row := sm.db.QueryRowContext(ctx, `
		SELECT data FROM command_log.snapshots
		WHERE verified = TRUE
		ORDER BY sequence DESC
		LIMIT 1
	`)

	var data []byte
	if err := row.Scan(&data); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	var snap SnapshotData
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}

	return &snap, nil
}

// MarkVerified marks a snapshot as verified after an integrity check.
func (sm *SnapshotManager) MarkVerified(ctx context.Context, sequence int64) error {
	_, err := sm.db.ExecContext(ctx, `
		UPDATE command_log.snapshots SET verified = TRUE WHERE sequence = $1
	`, sequence)
	return err
}

// LoadCommandsFrom loads envelopes from a given sequence for replay.
func (sm *SnapshotManager) LoadCommandsFrom(ctx context.Context, fromSequence int64, limit int) ([]CommandRow, error) {
	rows, err := sm.db.QueryContext(ctx, `
		SELECT sequence, command_type, idempotency_key, tournament_id, payload,
		       state_hash, prev_hash, timestamp, source_sequence
		FROM command_log.commands
		WHERE sequence >= $1
		ORDER BY sequence ASC
		LIMIT $2
	`, fromSequence, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var commands []CommandRow
	for rows.Next() {
		var c CommandRow
		if err := rows.Scan(
			&c.Sequence, &c.CommandType, &c.IdempotencyKey, &c.TournamentID,
			&c.Payload, &c.StateHash, &c.PrevHash, &c.Timestamp, &c.SourceSequence,
		); err != nil {
			return nil, err
		}
		commands = append(commands, c)
	}

	return commands, rows.Err()
}

// GetLatestSequence returns the highest sequence in the command log.
func (sm *SnapshotManager) GetLatestSequence(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	err := sm.db.QueryRowContext(ctx, `
		SELECT MAX(sequence) FROM command_log.commands
	`).Scan(&seq)
	if err != nil {
		return 0, err
	}
	if !seq.Valid {
		return 0, nil
	}
	return seq.Int64, nil
}
