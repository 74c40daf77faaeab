package judge

import (
	"bytes"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Entry is one participant's final portfolio value awaiting ranking.
type Entry struct {
	Account      uuid.UUID
	Value        int64
	RegisteredAt time.Time
}

// Ranked is a placed participant. Place is 1-based.
type Ranked struct {
	Account uuid.UUID
	Value   int64
	Place   int
}

// Rank orders entries into final placements. Higher value places first;
// ties go to the earlier registrant, then to the lexically smaller
// account ID so the ordering is total and replay-stable.
func Rank(entries []Entry) []Ranked {
	sorted := make([]Entry, len(entries))
	copy(sorted, entries)

	sort.Slice(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Value != b.Value {
			return a.Value > b.Value
		}
		if !a.RegisteredAt.Equal(b.RegisteredAt) {
			return a.RegisteredAt.Before(b.RegisteredAt)
		}
		return bytes.Compare(a.Account[:], b.Account[:]) < 0
	})

	ranked := make([]Ranked, len(sorted))
	for i, e := range sorted {
		ranked[i] = Ranked{Account: e.Account, Value: e.Value, Place: i + 1}
	}
	return ranked
}
