package engine

import "errors"

var (
	ErrNotAuthorized     = errors.New("caller is not the tournament admin")
	ErrRescueNotEligible = errors.New("rescue conditions not met")
	ErrBatchTooLarge     = errors.New("valuation batch exceeds the placement batch size")
	ErrNoFeesAccrued     = errors.New("judge fee accumulator is empty")
	ErrUnknownCommand    = errors.New("unknown command type")
	ErrEngineClosed      = errors.New("engine loop has stopped")
)
