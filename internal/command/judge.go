package command

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// JudgeUpdate values a batch of participants at the captured closing
// prices. A successful update consumes no attempt and returns the fee;
// an update that makes no progress burns an attempt and forfeits it.
type JudgeUpdate struct {
	CommandID uuid.UUID   `json:"command_id"`
	ID        uuid.UUID   `json:"id"`
	Caller    uuid.UUID   `json:"caller"`
	Accounts  []uuid.UUID `json:"accounts"`
	FeePaid   int64       `json:"fee_paid"`
	Sequence  int64       `json:"sequence"`
	At        time.Time   `json:"at"`
}

func (c *JudgeUpdate) IdempotencyKey() string {
	return fmt.Sprintf("judge_update:%s", c.CommandID)
}

func (c *JudgeUpdate) CommandType() Type {
	return TypeJudgeUpdate
}

func (c *JudgeUpdate) Tournament() *uuid.UUID {
	return &c.ID
}

func (c *JudgeUpdate) SourceSequence() int64 {
	return c.Sequence
}

func (c *JudgeUpdate) OccurredAt() time.Time {
	return c.At
}

// JudgePlaceAttempt tries to finalize the ranking. Always burns an
// attempt when admitted; the attempt cap is checked before any mutation
// so an exhausted tournament is left untouched.
type JudgePlaceAttempt struct {
	CommandID uuid.UUID `json:"command_id"`
	ID        uuid.UUID `json:"id"`
	Caller    uuid.UUID `json:"caller"`
	FeePaid   int64     `json:"fee_paid"`
	Sequence  int64     `json:"sequence"`
	At        time.Time `json:"at"`
}

func (c *JudgePlaceAttempt) IdempotencyKey() string {
	return fmt.Sprintf("judge_place:%s", c.CommandID)
}

func (c *JudgePlaceAttempt) CommandType() Type {
	return TypeJudgePlaceAttempt
}

func (c *JudgePlaceAttempt) Tournament() *uuid.UUID {
	return &c.ID
}

func (c *JudgePlaceAttempt) SourceSequence() int64 {
	return c.Sequence
}

func (c *JudgePlaceAttempt) OccurredAt() time.Time {
	return c.At
}

// JudgeReset wipes accumulated valuations so judging can restart.
type JudgeReset struct {
	CommandID uuid.UUID `json:"command_id"`
	ID        uuid.UUID `json:"id"`
	Caller    uuid.UUID `json:"caller"`
	Sequence  int64     `json:"sequence"`
	At        time.Time `json:"at"`
}

func (c *JudgeReset) IdempotencyKey() string {
	return fmt.Sprintf("judge_reset:%s", c.CommandID)
}

func (c *JudgeReset) CommandType() Type {
	return TypeJudgeReset
}

func (c *JudgeReset) Tournament() *uuid.UUID {
	return &c.ID
}

func (c *JudgeReset) SourceSequence() int64 {
	return c.Sequence
}

func (c *JudgeReset) OccurredAt() time.Time {
	return c.At
}
