package command

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SubmitOraclePrice captures an oracle reading as the closing price for
// one whitelisted pair. The command embeds the resolved reading so a
// replay reproduces the exact capture without consulting the live feed.
type SubmitOraclePrice struct {
	ID         uuid.UUID `json:"id"`
	Pair       string    `json:"pair"`
	Price      int64     `json:"price"`
	ObservedAt time.Time `json:"observed_at"`
	Sequence   int64     `json:"sequence"` // oracle tick sequence
}

// The tick sequence is part of the key so a resubmission carrying a
// different reading reaches the resolver and gets ErrPriceAlreadyCaptured
// instead of being silently deduplicated.
func (c *SubmitOraclePrice) IdempotencyKey() string {
	return fmt.Sprintf("oracle:%s:%s:%d", c.ID, c.Pair, c.Sequence)
}

func (c *SubmitOraclePrice) CommandType() Type {
	return TypeSubmitOraclePrice
}

func (c *SubmitOraclePrice) Tournament() *uuid.UUID {
	return &c.ID
}

// SourceSequence is 0: capture commands are not a contiguous source
// stream. The tick sequence rides in the payload and capture ordering is
// enforced by the resolver's first-writer-wins rule.
func (c *SubmitOraclePrice) SourceSequence() int64 {
	return 0
}

func (c *SubmitOraclePrice) OccurredAt() time.Time {
	return c.ObservedAt
}

// SubmitManualPrice records an admin-supplied closing price after the
// oracle grace period has lapsed. CommandID is the dedup handle: retries
// of one call converge, while a fresh call against an already-captured
// pair reaches the resolver and is rejected with ErrPriceAlreadyCaptured.
type SubmitManualPrice struct {
	CommandID uuid.UUID `json:"command_id"`
	ID        uuid.UUID `json:"id"`
	Pair      string    `json:"pair"`
	Price     int64     `json:"price"`
	Caller    uuid.UUID `json:"caller"`
	Sequence  int64     `json:"sequence"`
	At        time.Time `json:"at"`
}

func (c *SubmitManualPrice) IdempotencyKey() string {
	return fmt.Sprintf("manual:%s", c.CommandID)
}

func (c *SubmitManualPrice) CommandType() Type {
	return TypeSubmitManualPrice
}

func (c *SubmitManualPrice) Tournament() *uuid.UUID {
	return &c.ID
}

func (c *SubmitManualPrice) SourceSequence() int64 {
	return c.Sequence
}

func (c *SubmitManualPrice) OccurredAt() time.Time {
	return c.At
}
