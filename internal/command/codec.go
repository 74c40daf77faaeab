package command

import (
	"encoding/json"
	"fmt"
)

// Encode serializes a command payload for the durable log.
func Encode(cmd Command) ([]byte, error) {
	data, err := json.Marshal(cmd)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", cmd.CommandType(), err)
	}
	return data, nil
}

// Decode reconstructs a command payload from the log. The envelope's
// type discriminator selects the concrete struct.
func Decode(t Type, payload []byte) (Command, error) {
	var cmd Command

	switch t {
	case TypeCreateTournament:
		cmd = &CreateTournament{}
	case TypeRegisterParticipant:
		cmd = &RegisterParticipant{}
	case TypeCloseTournament:
		cmd = &CloseTournament{}
	case TypeSubmitOraclePrice:
		cmd = &SubmitOraclePrice{}
	case TypeSubmitManualPrice:
		cmd = &SubmitManualPrice{}
	case TypeJudgeUpdate:
		cmd = &JudgeUpdate{}
	case TypeJudgePlaceAttempt:
		cmd = &JudgePlaceAttempt{}
	case TypeJudgeReset:
		cmd = &JudgeReset{}
	case TypeRescueTournament:
		cmd = &RescueTournament{}
	case TypeWithdrawFees:
		cmd = &WithdrawFees{}
	case TypeTradeFill:
		cmd = &TradeFill{}
	default:
		return nil, fmt.Errorf("decode: unknown command type %d", t)
	}

	if err := json.Unmarshal(payload, cmd); err != nil {
		return nil, fmt.Errorf("decode %s: %w", t, err)
	}
	return cmd, nil
}
