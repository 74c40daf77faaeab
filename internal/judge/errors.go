package judge

import "errors"

var (
	ErrAttemptsExhausted  = errors.New("judge placement attempts exhausted")
	ErrResetLimitExceeded = errors.New("judge reset limit exceeded")
	ErrInsufficientFee    = errors.New("judge fee not covered")
	ErrRankingFinalized   = errors.New("ranking already finalized")
	ErrRankingIncomplete  = errors.New("not all participants valued")
	ErrUnknownParticipant = errors.New("valuation for unknown participant")
)
