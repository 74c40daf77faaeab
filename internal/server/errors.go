package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/btn-group/az-trading-competition/internal/engine"
	"github.com/btn-group/az-trading-competition/internal/judge"
	"github.com/btn-group/az-trading-competition/internal/price"
	"github.com/btn-group/az-trading-competition/internal/tournament"
)

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeErrorCode(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}

// writeServiceError maps domain sentinels to HTTP statuses and a
// machine-readable code.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, tournament.ErrTournamentNotFound),
		errors.Is(err, tournament.ErrParticipantNotFound):
		writeErrorCode(w, http.StatusNotFound, "not_found", err.Error())

	case errors.Is(err, tournament.ErrTournamentExists),
		errors.Is(err, tournament.ErrDuplicateParticipant),
		errors.Is(err, price.ErrPriceAlreadyCaptured):
		writeErrorCode(w, http.StatusConflict, "conflict", err.Error())

	case errors.Is(err, tournament.ErrTournamentNotOpen),
		errors.Is(err, tournament.ErrNotInExpectedState),
		errors.Is(err, price.ErrGracePeriodActive),
		errors.Is(err, price.ErrReadingBeforeClose),
		errors.Is(err, price.ErrPriceNotResolved),
		errors.Is(err, judge.ErrAttemptsExhausted),
		errors.Is(err, judge.ErrResetLimitExceeded),
		errors.Is(err, judge.ErrRankingFinalized),
		errors.Is(err, engine.ErrRescueNotEligible),
		errors.Is(err, engine.ErrNoFeesAccrued):
		writeErrorCode(w, http.StatusUnprocessableEntity, "invalid_state", err.Error())

	case errors.Is(err, judge.ErrInsufficientFee):
		writeErrorCode(w, http.StatusPaymentRequired, "fee_required", err.Error())

	case errors.Is(err, engine.ErrNotAuthorized):
		writeErrorCode(w, http.StatusForbidden, "forbidden", err.Error())

	case errors.Is(err, tournament.ErrPairNotWhitelisted),
		errors.Is(err, tournament.ErrInvalidWindow),
		errors.Is(err, tournament.ErrInvalidWhitelist),
		errors.Is(err, tournament.ErrInvalidMaxima),
		errors.Is(err, tournament.ErrInvalidPrizeSplit),
		errors.Is(err, price.ErrInvalidPrice),
		errors.Is(err, engine.ErrBatchTooLarge):
		writeErrorCode(w, http.StatusBadRequest, "invalid_argument", err.Error())

	default:
		writeErrorCode(w, http.StatusInternalServerError, "internal", err.Error())
	}
}
