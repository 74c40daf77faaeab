package command

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// WithdrawFees drains the full accumulated judge-fee balance to the
// operator. The amount is never caller-chosen: the engine reads the fee
// accumulator at apply time, so there is no partial withdrawal.
type WithdrawFees struct {
	CommandID uuid.UUID `json:"command_id"`
	Caller    uuid.UUID `json:"caller"`
	Sequence  int64     `json:"sequence"`
	At        time.Time `json:"at"`
}

func (c *WithdrawFees) IdempotencyKey() string {
	return fmt.Sprintf("withdraw_fees:%s", c.CommandID)
}

func (c *WithdrawFees) CommandType() Type {
	return TypeWithdrawFees
}

func (c *WithdrawFees) Tournament() *uuid.UUID {
	return nil // global command
}

func (c *WithdrawFees) SourceSequence() int64 {
	return c.Sequence
}

func (c *WithdrawFees) OccurredAt() time.Time {
	return c.At
}
