package command

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/btn-group/az-trading-competition/internal/tournament"
)

// CreateTournament opens a new tournament for registration.
type CreateTournament struct {
	ID       uuid.UUID         `json:"id"`
	Config   tournament.Config `json:"config"`
	Sequence int64             `json:"sequence"`
	At       time.Time         `json:"at"`
}

func (c *CreateTournament) IdempotencyKey() string {
	return fmt.Sprintf("create:%s", c.ID)
}

func (c *CreateTournament) CommandType() Type {
	return TypeCreateTournament
}

func (c *CreateTournament) Tournament() *uuid.UUID {
	return &c.ID
}

func (c *CreateTournament) SourceSequence() int64 {
	return c.Sequence
}

func (c *CreateTournament) OccurredAt() time.Time {
	return c.At
}

// RegisterParticipant enrolls a competitor and escrows their entry stake.
type RegisterParticipant struct {
	ID       uuid.UUID `json:"id"`
	Account  uuid.UUID `json:"account"`
	Tokens   []string  `json:"tokens"`
	Sequence int64     `json:"sequence"`
	At       time.Time `json:"at"`
}

func (c *RegisterParticipant) IdempotencyKey() string {
	return fmt.Sprintf("register:%s:%s", c.ID, c.Account)
}

func (c *RegisterParticipant) CommandType() Type {
	return TypeRegisterParticipant
}

func (c *RegisterParticipant) Tournament() *uuid.UUID {
	return &c.ID
}

func (c *RegisterParticipant) SourceSequence() int64 {
	return c.Sequence
}

func (c *RegisterParticipant) OccurredAt() time.Time {
	return c.At
}

// CloseTournament ends the trading window. Idempotent: closing an
// already-closed tournament is a no-op.
type CloseTournament struct {
	ID       uuid.UUID `json:"id"`
	Sequence int64     `json:"sequence"`
	At       time.Time `json:"at"`
}

func (c *CloseTournament) IdempotencyKey() string {
	return fmt.Sprintf("close:%s", c.ID)
}

func (c *CloseTournament) CommandType() Type {
	return TypeCloseTournament
}

func (c *CloseTournament) Tournament() *uuid.UUID {
	return &c.ID
}

func (c *CloseTournament) SourceSequence() int64 {
	return c.Sequence
}

func (c *CloseTournament) OccurredAt() time.Time {
	return c.At
}

// RescueTournament triggers the emergency exit path for a stuck tournament.
type RescueTournament struct {
	ID       uuid.UUID `json:"id"`
	Caller   uuid.UUID `json:"caller"`
	Sequence int64     `json:"sequence"`
	At       time.Time `json:"at"`
}

func (c *RescueTournament) IdempotencyKey() string {
	return fmt.Sprintf("rescue:%s", c.ID)
}

func (c *RescueTournament) CommandType() Type {
	return TypeRescueTournament
}

func (c *RescueTournament) Tournament() *uuid.UUID {
	return &c.ID
}

func (c *RescueTournament) SourceSequence() int64 {
	return c.Sequence
}

func (c *RescueTournament) OccurredAt() time.Time {
	return c.At
}
