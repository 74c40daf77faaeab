package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/btn-group/az-trading-competition/internal/command"
	"github.com/btn-group/az-trading-competition/internal/projection"
	"github.com/btn-group/az-trading-competition/internal/tournament"
)

// Commands originating over HTTP are unsequenced: the engine skips
// per-partition ordering checks for SourceSequence 0 and relies on
// idempotency keys alone.

func tournamentIDParam(r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	return id, err == nil
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeErrorCode(w, http.StatusBadRequest, "invalid_argument", "malformed request body: "+err.Error())
		return false
	}
	return true
}

func orNewUUID(id uuid.UUID) uuid.UUID {
	if id == uuid.Nil {
		return uuid.New()
	}
	return id
}

// --- Tournament lifecycle ---

type createTournamentRequest struct {
	ID                     uuid.UUID `json:"id,omitempty"`
	Name                   string    `json:"name"`
	PairWhitelist          []string  `json:"pair_whitelist"`
	Start                  time.Time `json:"start"`
	End                    time.Time `json:"end"`
	GracePeriodSeconds     int64     `json:"grace_period_seconds"`
	RescueTimeLimitSeconds int64     `json:"rescue_time_limit_seconds"`
	EntryStake             int64     `json:"entry_stake"`
	JudgeFee               int64     `json:"judge_fee"`
	MaxJudgeAttempts       int32     `json:"max_judge_attempts"`
	MaxJudgeResets         int32     `json:"max_judge_resets"`
	PlacementBatchSize     int       `json:"placement_batch_size"`
	RescuePolicy           string    `json:"rescue_policy"`
	PrizeNumerators        []int64   `json:"prize_numerators"`
	PrizeDenominator       int64     `json:"prize_denominator"`
}

func (s *Server) handleCreateTournament(w http.ResponseWriter, r *http.Request) {
	caller, err := CallerFromContext(r.Context())
	if err != nil {
		writeErrorCode(w, http.StatusUnauthorized, "unauthorized", err.Error())
		return
	}

	var req createTournamentRequest
	if !decodeBody(w, r, &req) {
		return
	}

	policy := tournament.RescueRefundStakes
	if req.RescuePolicy == "partial_ranking" {
		policy = tournament.RescuePartialRanking
	}

	cmd := &command.CreateTournament{
		ID: orNewUUID(req.ID),
		Config: tournament.Config{
			Admin:              caller,
			Name:               req.Name,
			PairWhitelist:      req.PairWhitelist,
			Start:              req.Start,
			End:                req.End,
			GracePeriod:        time.Duration(req.GracePeriodSeconds) * time.Second,
			RescueTimeLimit:    time.Duration(req.RescueTimeLimitSeconds) * time.Second,
			EntryStake:         req.EntryStake,
			JudgeFee:           req.JudgeFee,
			MaxJudgeAttempts:   req.MaxJudgeAttempts,
			MaxJudgeResets:     req.MaxJudgeResets,
			PlacementBatchSize: req.PlacementBatchSize,
			RescuePolicy:       policy,
			PrizeNumerators:    req.PrizeNumerators,
			PrizeDenominator:   req.PrizeDenominator,
		},
		At: time.Now(),
	}

	if err := s.deps.Engine.Submit(r.Context(), cmd); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": cmd.ID.String()})
}

type registerRequest struct {
	Tokens []string `json:"tokens"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	id, ok := tournamentIDParam(r)
	if !ok {
		writeErrorCode(w, http.StatusBadRequest, "invalid_argument", "invalid tournament id")
		return
	}
	caller, err := CallerFromContext(r.Context())
	if err != nil {
		writeErrorCode(w, http.StatusUnauthorized, "unauthorized", err.Error())
		return
	}

	var req registerRequest
	if !decodeBody(w, r, &req) {
		return
	}

	cmd := &command.RegisterParticipant{
		ID:      id,
		Account: caller,
		Tokens:  req.Tokens,
		At:      time.Now(),
	}
	if err := s.deps.Engine.Submit(r.Context(), cmd); err != nil {
		writeServiceError(w, err)
		return
	}

	// Mint is best-effort and never gates the registration result.
	if s.deps.Mint != nil {
		s.deps.Mint.Enqueue(id, caller)
	}

	writeJSON(w, http.StatusCreated, map[string]string{
		"tournament_id": id.String(),
		"account":       caller.String(),
	})
}

func (s *Server) handleClose(w http.ResponseWriter, r *http.Request) {
	id, ok := tournamentIDParam(r)
	if !ok {
		writeErrorCode(w, http.StatusBadRequest, "invalid_argument", "invalid tournament id")
		return
	}

	cmd := &command.CloseTournament{ID: id, At: time.Now()}
	if err := s.deps.Engine.Submit(r.Context(), cmd); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id.String()})
}

type manualPriceRequest struct {
	CommandID uuid.UUID `json:"command_id,omitempty"`
	Pair      string    `json:"pair"`
	Price     int64     `json:"price"`
}

func (s *Server) handleManualPrice(w http.ResponseWriter, r *http.Request) {
	id, ok := tournamentIDParam(r)
	if !ok {
		writeErrorCode(w, http.StatusBadRequest, "invalid_argument", "invalid tournament id")
		return
	}
	caller, err := CallerFromContext(r.Context())
	if err != nil {
		writeErrorCode(w, http.StatusUnauthorized, "unauthorized", err.Error())
		return
	}

	var req manualPriceRequest
	if !decodeBody(w, r, &req) {
		return
	}

	cmd := &command.SubmitManualPrice{
		CommandID: orNewUUID(req.CommandID),
		ID:        id,
		Pair:      req.Pair,
		Price:     req.Price,
		Caller:    caller,
		At:        time.Now(),
	}
	if err := s.deps.Engine.Submit(r.Context(), cmd); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id.String(), "pair": req.Pair})
}

// --- Judge protocol ---

type judgeUpdateRequest struct {
	CommandID uuid.UUID   `json:"command_id,omitempty"`
	Accounts  []uuid.UUID `json:"accounts"`
	FeePaid   int64       `json:"fee_paid"`
}

func (s *Server) handleJudgeUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := tournamentIDParam(r)
	if !ok {
		writeErrorCode(w, http.StatusBadRequest, "invalid_argument", "invalid tournament id")
		return
	}
	caller, err := CallerFromContext(r.Context())
	if err != nil {
		writeErrorCode(w, http.StatusUnauthorized, "unauthorized", err.Error())
		return
	}

	var req judgeUpdateRequest
	if !decodeBody(w, r, &req) {
		return
	}

	cmd := &command.JudgeUpdate{
		CommandID: orNewUUID(req.CommandID),
		ID:        id,
		Caller:    caller,
		Accounts:  req.Accounts,
		FeePaid:   req.FeePaid,
		At:        time.Now(),
	}
	if err := s.deps.Engine.Submit(r.Context(), cmd); err != nil {
		writeServiceError(w, err)
		return
	}
	s.writeViewOr(w, id, http.StatusOK)
}

type judgeFeeRequest struct {
	CommandID uuid.UUID `json:"command_id,omitempty"`
	FeePaid   int64     `json:"fee_paid"`
}

func (s *Server) handleJudgePlace(w http.ResponseWriter, r *http.Request) {
	id, ok := tournamentIDParam(r)
	if !ok {
		writeErrorCode(w, http.StatusBadRequest, "invalid_argument", "invalid tournament id")
		return
	}
	caller, err := CallerFromContext(r.Context())
	if err != nil {
		writeErrorCode(w, http.StatusUnauthorized, "unauthorized", err.Error())
		return
	}

	var req judgeFeeRequest
	if !decodeBody(w, r, &req) {
		return
	}

	cmd := &command.JudgePlaceAttempt{
		CommandID: orNewUUID(req.CommandID),
		ID:        id,
		Caller:    caller,
		FeePaid:   req.FeePaid,
		At:        time.Now(),
	}
	if err := s.deps.Engine.Submit(r.Context(), cmd); err != nil {
		writeServiceError(w, err)
		return
	}
	s.writeViewOr(w, id, http.StatusOK)
}

func (s *Server) handleJudgeReset(w http.ResponseWriter, r *http.Request) {
	id, ok := tournamentIDParam(r)
	if !ok {
		writeErrorCode(w, http.StatusBadRequest, "invalid_argument", "invalid tournament id")
		return
	}
	caller, err := CallerFromContext(r.Context())
	if err != nil {
		writeErrorCode(w, http.StatusUnauthorized, "unauthorized", err.Error())
		return
	}

	var req judgeFeeRequest
	if !decodeBody(w, r, &req) {
		return
	}

	cmd := &command.JudgeReset{
		CommandID: orNewUUID(req.CommandID),
		ID:        id,
		Caller:    caller,
		At:        time.Now(),
	}
	if err := s.deps.Engine.Submit(r.Context(), cmd); err != nil {
		writeServiceError(w, err)
		return
	}
	s.writeViewOr(w, id, http.StatusOK)
}

// --- Rescue and fees ---

func (s *Server) handleRescue(w http.ResponseWriter, r *http.Request) {
	id, ok := tournamentIDParam(r)
	if !ok {
		writeErrorCode(w, http.StatusBadRequest, "invalid_argument", "invalid tournament id")
		return
	}
	caller, err := CallerFromContext(r.Context())
	if err != nil {
		writeErrorCode(w, http.StatusUnauthorized, "unauthorized", err.Error())
		return
	}

	cmd := &command.RescueTournament{ID: id, Caller: caller, At: time.Now()}
	if err := s.deps.Engine.Submit(r.Context(), cmd); err != nil {
		writeServiceError(w, err)
		return
	}
	s.writeViewOr(w, id, http.StatusOK)
}

type withdrawFeesRequest struct {
	CommandID uuid.UUID `json:"command_id,omitempty"`
}

// handleWithdrawFees drains the full judge-fee balance; the caller never
// chooses an amount.
func (s *Server) handleWithdrawFees(w http.ResponseWriter, r *http.Request) {
	caller, err := CallerFromContext(r.Context())
	if err != nil {
		writeErrorCode(w, http.StatusUnauthorized, "unauthorized", err.Error())
		return
	}

	var req withdrawFeesRequest
	if !decodeBody(w, r, &req) {
		return
	}

	cmd := &command.WithdrawFees{
		CommandID: orNewUUID(req.CommandID),
		Caller:    caller,
		At:        time.Now(),
	}
	if err := s.deps.Engine.Submit(r.Context(), cmd); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"command_id": cmd.CommandID.String()})
}

// --- Read side ---

// writeViewOr returns the freshest in-memory view for a tournament, falling
// back to a bare id when the projection has not caught up yet.
func (s *Server) writeViewOr(w http.ResponseWriter, id uuid.UUID, status int) {
	if s.deps.Store != nil {
		if view, ok := s.deps.Store.Tournament(id); ok {
			writeJSON(w, status, view)
			return
		}
	}
	writeJSON(w, status, map[string]string{"id": id.String()})
}

func (s *Server) handleGetTournament(w http.ResponseWriter, r *http.Request) {
	id, ok := tournamentIDParam(r)
	if !ok {
		writeErrorCode(w, http.StatusBadRequest, "invalid_argument", "invalid tournament id")
		return
	}

	if s.deps.Store != nil {
		if view, found := s.deps.Store.Tournament(id); found {
			writeJSON(w, http.StatusOK, view)
			return
		}
	}

	if s.deps.Query != nil {
		view, err := s.deps.Query.GetTournament(r.Context(), id)
		if err == nil && view != nil {
			writeJSON(w, http.StatusOK, view)
			return
		}
	}
	writeErrorCode(w, http.StatusNotFound, "not_found", "tournament not found")
}

func (s *Server) handleGetRanking(w http.ResponseWriter, r *http.Request) {
	id, ok := tournamentIDParam(r)
	if !ok {
		writeErrorCode(w, http.StatusBadRequest, "invalid_argument", "invalid tournament id")
		return
	}
	if s.deps.Store == nil {
		writeErrorCode(w, http.StatusNotFound, "not_found", "tournament not found")
		return
	}
	view, found := s.deps.Store.Tournament(id)
	if !found {
		writeErrorCode(w, http.StatusNotFound, "not_found", "tournament not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"tournament_id": view.ID,
		"final":         view.RankingFinal,
		"valued_count":  view.ValuedCount,
		"ranking":       view.Ranking,
	})
}

func (s *Server) handleListTournaments(w http.ResponseWriter, r *http.Request) {
	if s.deps.Store != nil {
		views := s.deps.Store.Tournaments()
		if len(views) > 0 || s.deps.Query == nil {
			writeJSON(w, http.StatusOK, map[string]interface{}{"tournaments": views})
			return
		}
	}

	summaries, err := s.deps.Query.ListTournaments(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"tournaments": summaries})
}

func (s *Server) handleGetFees(w http.ResponseWriter, r *http.Request) {
	if s.deps.Query != nil {
		resp, err := s.deps.Query.GetFeeBalance(r.Context())
		if err == nil {
			writeJSON(w, http.StatusOK, resp)
			return
		}
	}

	var balance int64
	var lastSeq int64
	if s.deps.Store != nil {
		balance = s.deps.Store.FeeBalance()
		lastSeq = s.deps.Store.LastSequence()
	}
	writeJSON(w, http.StatusOK, map[string]int64{"balance": balance, "as_of_sequence": lastSeq})
}

func (s *Server) handleJournalHistory(w http.ResponseWriter, r *http.Request) {
	account, err := uuid.Parse(chi.URLParam(r, "account"))
	if err != nil {
		writeErrorCode(w, http.StatusBadRequest, "invalid_argument", "invalid account id")
		return
	}

	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	var after *int64
	if raw := r.URL.Query().Get("from_sequence"); raw != "" {
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil && n > 0 {
			after = &n
		}
	}

	entries, err := s.deps.Query.GetJournalHistory(r.Context(), account, limit, after)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"journals": entries})
}

// --- Admin ---

func (s *Server) handleVerifyIntegrity(w http.ResponseWriter, r *http.Request) {
	report, err := s.deps.Query.VerifyIntegrity(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleRebuildProjections(w http.ResponseWriter, r *http.Request) {
	if err := projection.RebuildProjections(r.Context(), s.deps.DB); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"rebuilt": true})
}
