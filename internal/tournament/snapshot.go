package tournament

import (
	"time"

	"github.com/google/uuid"
)

// Snapshot is the serializable form of one tournament, used for periodic
// state snapshots and warm restarts.
type Snapshot struct {
	ID        uuid.UUID
	Config    Config
	State     State
	CreatedAt time.Time
	ClosedAt  *time.Time
	Version   int64

	Participants []Participant // registration order
}

// Export captures the tournament for persistence.
func (t *Tournament) Export() Snapshot {
	snap := Snapshot{
		ID:        t.ID,
		Config:    t.Config,
		State:     t.State,
		CreatedAt: t.CreatedAt,
		Version:   t.Version,
	}
	if t.ClosedAt != nil {
		closed := *t.ClosedAt
		snap.ClosedAt = &closed
	}

	snap.Participants = make([]Participant, 0, len(t.order))
	for _, acc := range t.order {
		p := t.participants[acc]
		cp := *p
		cp.Balances = make(map[string]int64, len(p.Balances))
		for tok, bal := range p.Balances {
			cp.Balances[tok] = bal
		}
		if p.NFTHandle != nil {
			h := *p.NFTHandle
			cp.NFTHandle = &h
		}
		snap.Participants = append(snap.Participants, cp)
	}
	return snap
}

// FromSnapshot rebuilds a tournament from its serialized form.
func FromSnapshot(snap Snapshot) *Tournament {
	t := newTournament(snap.ID, snap.Config, snap.CreatedAt)
	t.State = snap.State
	t.Version = snap.Version
	if snap.ClosedAt != nil {
		closed := *snap.ClosedAt
		t.ClosedAt = &closed
	}
	for i := range snap.Participants {
		p := snap.Participants[i]
		t.RestoreParticipant(&p)
	}
	return t
}
