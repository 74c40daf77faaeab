package tournament

import (
	"time"

	"github.com/google/uuid"
)

// Registry owns every tournament managed by one engine instance.
// Not thread-safe — only accessed from the single-threaded engine loop.
type Registry struct {
	tournaments map[uuid.UUID]*Tournament
	order       []uuid.UUID // creation order, for deterministic iteration
}

func NewRegistry() *Registry {
	return &Registry{
		tournaments: make(map[uuid.UUID]*Tournament),
	}
}

// Create validates the config and registers a new tournament in Registering
// state.
func (r *Registry) Create(id uuid.UUID, cfg Config, createdAt time.Time) (*Tournament, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if _, exists := r.tournaments[id]; exists {
		return nil, ErrTournamentExists
	}

	t := newTournament(id, cfg, createdAt)
	t.SyncClock(createdAt)
	r.tournaments[id] = t
	r.order = append(r.order, id)
	return t, nil
}

// Get returns the tournament for id.
func (r *Registry) Get(id uuid.UUID) (*Tournament, error) {
	t, ok := r.tournaments[id]
	if !ok {
		return nil, ErrTournamentNotFound
	}
	return t, nil
}

// All returns every tournament in creation order.
func (r *Registry) All() []*Tournament {
	out := make([]*Tournament, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.tournaments[id])
	}
	return out
}

// Restore re-attaches a tournament during snapshot restore. The caller is
// responsible for restoring participants onto it.
func (r *Registry) Restore(t *Tournament) {
	if t.participants == nil {
		t.participants = make(map[uuid.UUID]*Participant)
	}
	r.tournaments[t.ID] = t
	r.order = append(r.order, t.ID)
}
