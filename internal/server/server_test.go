package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"

	"github.com/btn-group/az-trading-competition/internal/command"
	"github.com/btn-group/az-trading-competition/internal/engine"
	"github.com/btn-group/az-trading-competition/internal/judge"
	"github.com/btn-group/az-trading-competition/internal/price"
	"github.com/btn-group/az-trading-competition/internal/projection"
	"github.com/btn-group/az-trading-competition/internal/server"
)

const testSecret = "test-secret"

type stubEngine struct {
	submitted []command.Command
	err       error
}

func (s *stubEngine) Submit(_ context.Context, cmd command.Command) error {
	if s.err != nil {
		return s.err
	}
	s.submitted = append(s.submitted, cmd)
	return nil
}

func newTestServer(eng *stubEngine, store *projection.Store) *server.Server {
	return server.New(":0", &server.Deps{
		Engine:    eng,
		Store:     store,
		JWTSecret: testSecret,
	})
}

func signToken(t *testing.T, account uuid.UUID, role string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  account.String(),
		"role": role,
		"exp":  time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func doJSON(t *testing.T, handler http.Handler, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestRegister_MissingTokenRejected(t *testing.T) {
	srv := newTestServer(&stubEngine{}, nil)
	rec := doJSON(t, srv.Handler(), http.MethodPost,
		"/v1/tournaments/"+uuid.NewString()+"/register", "", map[string]interface{}{"tokens": []string{"ETH"}})

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status: got %d, want 401", rec.Code)
	}
}

func TestRegister_SubmitsCommandWithCaller(t *testing.T) {
	eng := &stubEngine{}
	srv := newTestServer(eng, nil)

	account := uuid.New()
	tournamentID := uuid.New()
	rec := doJSON(t, srv.Handler(), http.MethodPost,
		"/v1/tournaments/"+tournamentID.String()+"/register",
		signToken(t, account, "participant"),
		map[string]interface{}{"tokens": []string{"ETH"}})

	if rec.Code != http.StatusCreated {
		t.Fatalf("status: got %d, want 201 (body: %s)", rec.Code, rec.Body)
	}
	if len(eng.submitted) != 1 {
		t.Fatalf("submitted: got %d commands, want 1", len(eng.submitted))
	}
	reg, ok := eng.submitted[0].(*command.RegisterParticipant)
	if !ok {
		t.Fatalf("expected *command.RegisterParticipant, got %T", eng.submitted[0])
	}
	if reg.Account != account {
		t.Errorf("account: got %s, want caller %s", reg.Account, account)
	}
	if reg.ID != tournamentID {
		t.Errorf("tournament: got %s, want %s", reg.ID, tournamentID)
	}
	if reg.SourceSequence() != 0 {
		t.Errorf("http commands must be unsequenced, got %d", reg.SourceSequence())
	}
}

func TestCreateTournament_RequiresAdminRole(t *testing.T) {
	eng := &stubEngine{}
	srv := newTestServer(eng, nil)

	body := map[string]interface{}{
		"name":           "Summer Open",
		"pair_whitelist": []string{"ETH/AZERO"},
		"start":          time.Now().Add(time.Hour),
		"end":            time.Now().Add(2 * time.Hour),
	}

	rec := doJSON(t, srv.Handler(), http.MethodPost, "/v1/tournaments",
		signToken(t, uuid.New(), "participant"), body)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("non-admin status: got %d, want 403", rec.Code)
	}
	if len(eng.submitted) != 0 {
		t.Fatal("command submitted despite forbidden role")
	}

	rec = doJSON(t, srv.Handler(), http.MethodPost, "/v1/tournaments",
		signToken(t, uuid.New(), "admin"), body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("admin status: got %d, want 201 (body: %s)", rec.Code, rec.Body)
	}
	if len(eng.submitted) != 1 {
		t.Fatalf("submitted: got %d commands, want 1", len(eng.submitted))
	}
}

func TestManualPrice_GracePeriodMappedTo422(t *testing.T) {
	eng := &stubEngine{err: price.ErrGracePeriodActive}
	srv := newTestServer(eng, nil)

	rec := doJSON(t, srv.Handler(), http.MethodPost,
		"/v1/tournaments/"+uuid.NewString()+"/price/manual",
		signToken(t, uuid.New(), "admin"),
		map[string]interface{}{"pair": "ETH/AZERO", "price": 1_500_000})

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status: got %d, want 422", rec.Code)
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if resp["code"] != "invalid_state" {
		t.Errorf("code: got %q, want invalid_state", resp["code"])
	}
}

func TestJudgeUpdate_InsufficientFeeMappedTo402(t *testing.T) {
	eng := &stubEngine{err: fmt.Errorf("judge_update: %w", judge.ErrInsufficientFee)}
	srv := newTestServer(eng, nil)

	rec := doJSON(t, srv.Handler(), http.MethodPost,
		"/v1/tournaments/"+uuid.NewString()+"/judge/update",
		signToken(t, uuid.New(), "judge"),
		map[string]interface{}{"accounts": []string{uuid.NewString()}, "fee_paid": 1})

	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("status: got %d, want 402", rec.Code)
	}
}

func TestGetTournament_ServedFromStore(t *testing.T) {
	store := projection.NewStore()
	id := uuid.New()
	store.Apply(engine.Output{View: &engine.TournamentView{ID: id, Name: "Summer Open", State: "active"}})

	srv := newTestServer(&stubEngine{}, store)
	rec := doJSON(t, srv.Handler(), http.MethodGet, "/v1/tournaments/"+id.String(), "", nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rec.Code)
	}
	var view engine.TournamentView
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode view: %v", err)
	}
	if view.Name != "Summer Open" {
		t.Errorf("name: got %q", view.Name)
	}
}

func TestGetRanking_ServedFromStore(t *testing.T) {
	store := projection.NewStore()
	id := uuid.New()
	store.Apply(engine.Output{View: &engine.TournamentView{ID: id, State: "judging", RankingFinal: true}})

	srv := newTestServer(&stubEngine{}, store)
	rec := doJSON(t, srv.Handler(), http.MethodGet, "/v1/tournaments/"+id.String()+"/ranking", "", nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rec.Code)
	}
	var body struct {
		Final bool `json:"final"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !body.Final {
		t.Error("expected final ranking flag")
	}
}

func TestGetTournament_UnknownReturns404(t *testing.T) {
	srv := newTestServer(&stubEngine{}, projection.NewStore())
	rec := doJSON(t, srv.Handler(), http.MethodGet, "/v1/tournaments/"+uuid.NewString(), "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status: got %d, want 404", rec.Code)
	}
}

func TestJournalHistory_InvalidAccountRejected(t *testing.T) {
	srv := newTestServer(&stubEngine{}, nil)
	rec := doJSON(t, srv.Handler(), http.MethodGet, "/v1/accounts/not-a-uuid/journal", "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want 400", rec.Code)
	}
}
