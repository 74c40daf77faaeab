package tournament

import "errors"

// Domain errors surfaced to callers. Each names the violated precondition so
// the caller can decide whether to retry, wait, or escalate to rescue.
var (
	ErrTournamentNotFound   = errors.New("tournament not found")
	ErrTournamentExists     = errors.New("tournament id already exists")
	ErrTournamentNotOpen    = errors.New("tournament registration is not open")
	ErrDuplicateParticipant = errors.New("account is already registered for this tournament")
	ErrPairNotWhitelisted   = errors.New("token pair is not on the tournament whitelist")
	ErrParticipantNotFound  = errors.New("participant registration not found")
	ErrNotInExpectedState   = errors.New("tournament is not in the expected state for this operation")

	// Config validation
	ErrInvalidWindow     = errors.New("tournament end must be after start")
	ErrInvalidWhitelist  = errors.New("tournament pair whitelist must not be empty")
	ErrInvalidMaxima     = errors.New("attempt and reset maxima must be positive")
	ErrInvalidPrizeSplit = errors.New("prize split numerators must not exceed the denominator")
)
