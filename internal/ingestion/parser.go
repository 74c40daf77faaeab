package ingestion

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/btn-group/az-trading-competition/internal/command"
	"github.com/btn-group/az-trading-competition/internal/price"
)

// Subject classification for raw messages. The subject root decides the
// wire format; payload fields carry the identifiers.
const (
	subjectPrefixPrices = "comp.prices."
	subjectPrefixFills  = "comp.fills."
)

// Kind tags a parsed message so the dispatcher can route it without a
// second subject inspection.
type Kind int

const (
	KindUnknown Kind = iota
	KindOracleTick
	KindVenueFill
)

// Classify maps a NATS subject to a message kind.
func Classify(subject string) Kind {
	switch {
	case strings.HasPrefix(subject, subjectPrefixPrices):
		return KindOracleTick
	case strings.HasPrefix(subject, subjectPrefixFills):
		return KindVenueFill
	default:
		return KindUnknown
	}
}

// --- JSON wire formats ---
// Field names use snake_case to match upstream producers.

type oracleTickJSON struct {
	Pair        string `json:"pair"`
	Price       int64  `json:"price"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

// ParseOracleTick decodes one oracle price observation. Prices are
// fixed-point with price.Scale as denominator.
func ParseOracleTick(data []byte) (price.Reading, error) {
	var j oracleTickJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return price.Reading{}, fmt.Errorf("parse oracle tick: %w", err)
	}
	if j.Pair == "" {
		return price.Reading{}, fmt.Errorf("parse oracle tick: missing pair")
	}
	if j.Price <= 0 {
		return price.Reading{}, fmt.Errorf("parse oracle tick: non-positive price %d", j.Price)
	}
	return price.Reading{
		Pair:      j.Pair,
		Price:     j.Price,
		Sequence:  j.Sequence,
		Timestamp: time.UnixMicro(j.TimestampUs),
	}, nil
}

type venueFillJSON struct {
	FillID       string `json:"fill_id"`
	TournamentID string `json:"tournament_id"`
	Account      string `json:"account"`
	Pair         string `json:"pair"`
	BaseDelta    int64  `json:"base_delta"`
	QuoteDelta   int64  `json:"quote_delta"`
	FillSequence int64  `json:"fill_sequence"`
	TimestampUs  int64  `json:"timestamp_us"`
}

// ParseVenueFill decodes one executed trade into a fill command. Deltas
// are signed: a buy has positive base_delta and negative quote_delta.
func ParseVenueFill(data []byte) (*command.TradeFill, error) {
	var j venueFillJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse venue fill: %w", err)
	}

	fillID, err := uuid.Parse(j.FillID)
	if err != nil {
		return nil, fmt.Errorf("parse fill_id: %w", err)
	}
	tournamentID, err := uuid.Parse(j.TournamentID)
	if err != nil {
		return nil, fmt.Errorf("parse tournament_id: %w", err)
	}
	account, err := uuid.Parse(j.Account)
	if err != nil {
		return nil, fmt.Errorf("parse account: %w", err)
	}
	if j.Pair == "" {
		return nil, fmt.Errorf("parse venue fill: missing pair")
	}
	if j.FillSequence <= 0 {
		return nil, fmt.Errorf("parse venue fill: fill_sequence must be positive, got %d", j.FillSequence)
	}

	return &command.TradeFill{
		FillID:     fillID,
		ID:         tournamentID,
		Account:    account,
		Pair:       j.Pair,
		BaseDelta:  j.BaseDelta,
		QuoteDelta: j.QuoteDelta,
		Sequence:   j.FillSequence,
		At:         time.UnixMicro(j.TimestampUs),
	}, nil
}
