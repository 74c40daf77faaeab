package command

import (
	"time"

	"github.com/google/uuid"
)

// TradeFill mirrors one executed trade from the external venue into a
// participant's tracked balances. BaseDelta is signed in the pair's base
// token; QuoteDelta is signed in the settlement asset.
type TradeFill struct {
	FillID     uuid.UUID `json:"fill_id"`
	ID         uuid.UUID `json:"id"`
	Account    uuid.UUID `json:"account"`
	Pair       string    `json:"pair"`
	BaseDelta  int64     `json:"base_delta"`
	QuoteDelta int64     `json:"quote_delta"`
	Sequence   int64     `json:"sequence"`
	At         time.Time `json:"at"`
}

func (c *TradeFill) IdempotencyKey() string {
	return c.FillID.String()
}

func (c *TradeFill) CommandType() Type {
	return TypeTradeFill
}

func (c *TradeFill) Tournament() *uuid.UUID {
	return &c.ID
}

func (c *TradeFill) SourceSequence() int64 {
	return c.Sequence
}

func (c *TradeFill) OccurredAt() time.Time {
	return c.At
}
