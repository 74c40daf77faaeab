package command

import (
	"time"

	"github.com/google/uuid"
)

// Type discriminator for command payloads
type Type int32

const (
	TypeUnknown Type = iota
	TypeCreateTournament
	TypeRegisterParticipant
	TypeCloseTournament
	TypeSubmitOraclePrice
	TypeSubmitManualPrice
	TypeJudgeUpdate
	TypeJudgePlaceAttempt
	TypeJudgeReset
	TypeRescueTournament
	TypeWithdrawFees
	TypeTradeFill
)

// Envelope wraps every command in the log
type Envelope struct {
	// Global monotonic sequence assigned by the engine
	Sequence int64

	// Stable idempotency key
	IdempotencyKey string

	// Command type discriminator
	CommandType Type

	// Tournament context (nil for global commands)
	TournamentID *uuid.UUID

	// Versioned input timestamp (NOT wall-clock)
	Timestamp time.Time

	// Upstream sequence for ordering validation
	SourceSequence int64

	// JSON-encoded command-specific data
	Payload []byte

	// SHA-256 of state AFTER applying this command
	StateHash [32]byte

	// Previous command's state hash (chain integrity)
	PrevHash [32]byte
}

// Command is the interface all command payloads must implement
type Command interface {
	// IdempotencyKey returns the stable dedup key
	IdempotencyKey() string

	// CommandType returns the discriminator
	CommandType() Type

	// Tournament returns the tournament context (nil for global commands)
	Tournament() *uuid.UUID

	// SourceSequence returns upstream ordering key
	SourceSequence() int64

	// OccurredAt returns the caller-stamped timestamp. The engine never
	// reads the wall clock, so this is the only notion of "now" a
	// command carries.
	OccurredAt() time.Time
}

func (t Type) String() string {
	switch t {
	case TypeCreateTournament:
		return "CreateTournament"
	case TypeRegisterParticipant:
		return "RegisterParticipant"
	case TypeCloseTournament:
		return "CloseTournament"
	case TypeSubmitOraclePrice:
		return "SubmitOraclePrice"
	case TypeSubmitManualPrice:
		return "SubmitManualPrice"
	case TypeJudgeUpdate:
		return "JudgeUpdate"
	case TypeJudgePlaceAttempt:
		return "JudgePlaceAttempt"
	case TypeJudgeReset:
		return "JudgeReset"
	case TypeRescueTournament:
		return "RescueTournament"
	case TypeWithdrawFees:
		return "WithdrawFees"
	case TypeTradeFill:
		return "TradeFill"
	default:
		return "Unknown"
	}
}

// ParseType inverts Type.String. Used when decoding the command log.
func ParseType(s string) Type {
	switch s {
	case "CreateTournament":
		return TypeCreateTournament
	case "RegisterParticipant":
		return TypeRegisterParticipant
	case "CloseTournament":
		return TypeCloseTournament
	case "SubmitOraclePrice":
		return TypeSubmitOraclePrice
	case "SubmitManualPrice":
		return TypeSubmitManualPrice
	case "JudgeUpdate":
		return TypeJudgeUpdate
	case "JudgePlaceAttempt":
		return TypeJudgePlaceAttempt
	case "JudgeReset":
		return TypeJudgeReset
	case "RescueTournament":
		return TypeRescueTournament
	case "WithdrawFees":
		return TypeWithdrawFees
	case "TradeFill":
		return TypeTradeFill
	default:
		return TypeUnknown
	}
}
