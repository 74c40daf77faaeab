package tournament_test

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/btn-group/az-trading-competition/internal/tournament"
)

var (
	tCreated = time.Unix(100, 0)
	tStart   = time.Unix(1000, 0)
	tEnd     = time.Unix(2000, 0)
)

func validConfig() tournament.Config {
	return tournament.Config{
		Admin:              uuid.New(),
		Name:               "Summer Open",
		PairWhitelist:      []string{"ETH/AZERO", "BTC/AZERO"},
		Start:              tStart,
		End:                tEnd,
		GracePeriod:        100 * time.Second,
		RescueTimeLimit:    500 * time.Second,
		EntryStake:         1000,
		JudgeFee:           50,
		MaxJudgeAttempts:   3,
		MaxJudgeResets:     2,
		PlacementBatchSize: 10,
		PrizeNumerators:    []int64{50, 30, 20},
		PrizeDenominator:   100,
	}
}

func mustCreate(t *testing.T, r *tournament.Registry, cfg tournament.Config) *tournament.Tournament {
	t.Helper()
	tr, err := r.Create(uuid.New(), cfg, tCreated)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return tr
}

func TestConfigValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*tournament.Config)
		want   error
	}{
		{"valid", func(*tournament.Config) {}, nil},
		{"end before start", func(c *tournament.Config) { c.End = c.Start.Add(-time.Second) }, tournament.ErrInvalidWindow},
		{"empty whitelist", func(c *tournament.Config) { c.PairWhitelist = nil }, tournament.ErrInvalidWhitelist},
		{"zero attempts", func(c *tournament.Config) { c.MaxJudgeAttempts = 0 }, tournament.ErrInvalidMaxima},
		{"negative stake", func(c *tournament.Config) { c.EntryStake = -1 }, tournament.ErrInvalidMaxima},
		{"split exceeds denominator", func(c *tournament.Config) { c.PrizeNumerators = []int64{80, 30} }, tournament.ErrInvalidPrizeSplit},
		{"zero denominator", func(c *tournament.Config) { c.PrizeDenominator = 0 }, tournament.ErrInvalidPrizeSplit},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.want == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tc.want) {
				t.Fatalf("got %v, want %v", err, tc.want)
			}
		})
	}
}

func TestSplitPair(t *testing.T) {
	base, quote, ok := tournament.SplitPair("ETH/AZERO")
	if !ok || base != "ETH" || quote != "AZERO" {
		t.Fatalf("got %q/%q ok=%v", base, quote, ok)
	}
	for _, bad := range []string{"ETHAZERO", "/AZERO", "ETH/", ""} {
		if _, _, ok := tournament.SplitPair(bad); ok {
			t.Errorf("SplitPair(%q) unexpectedly ok", bad)
		}
	}
}

func TestRegistry_DuplicateIDRejected(t *testing.T) {
	r := tournament.NewRegistry()
	id := uuid.New()
	if _, err := r.Create(id, validConfig(), tCreated); err != nil {
		t.Fatalf("first create: %v", err)
	}
	if _, err := r.Create(id, validConfig(), tCreated); !errors.Is(err, tournament.ErrTournamentExists) {
		t.Fatalf("got %v, want ErrTournamentExists", err)
	}
}

func TestSyncClock_AdvancesTimeDrivenStates(t *testing.T) {
	tr := mustCreate(t, tournament.NewRegistry(), validConfig())

	if tr.State != tournament.StateRegistering {
		t.Fatalf("initial state: %s", tr.State)
	}

	tr.SyncClock(tStart)
	if tr.State != tournament.StateActive {
		t.Fatalf("at start: got %s, want active", tr.State)
	}

	tr.SyncClock(tEnd.Add(time.Hour))
	if tr.State != tournament.StateAwaitingPrice {
		t.Fatalf("after end: got %s, want awaiting_price", tr.State)
	}
	if tr.ClosedAt == nil || !tr.ClosedAt.Equal(tEnd) {
		t.Errorf("ClosedAt must equal configured end, got %v", tr.ClosedAt)
	}
}

func TestSyncClock_SkipsStraightToAwaitingPrice(t *testing.T) {
	// A tournament first touched after its end passes through Active
	// without ever observing it.
	tr := mustCreate(t, tournament.NewRegistry(), validConfig())
	tr.SyncClock(tEnd)
	if tr.State != tournament.StateAwaitingPrice {
		t.Fatalf("got %s, want awaiting_price", tr.State)
	}
}

func TestRegister_Lifecycle(t *testing.T) {
	tr := mustCreate(t, tournament.NewRegistry(), validConfig())
	account := uuid.New()

	p, err := tr.Register(account, []string{"ETH"}, tCreated.Add(time.Second))
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if p.Stake != 1000 {
		t.Errorf("stake: got %d, want 1000", p.Stake)
	}
	if _, ok := p.Balances["ETH"]; !ok {
		t.Error("registered token missing from balances")
	}

	if _, err := tr.Register(account, nil, tCreated.Add(2*time.Second)); !errors.Is(err, tournament.ErrDuplicateParticipant) {
		t.Fatalf("duplicate: got %v", err)
	}

	if _, err := tr.Register(uuid.New(), []string{"DOGE"}, tCreated.Add(3*time.Second)); !errors.Is(err, tournament.ErrPairNotWhitelisted) {
		t.Fatalf("unlisted token: got %v", err)
	}

	if _, err := tr.Register(uuid.New(), []string{"ETH"}, tStart); !errors.Is(err, tournament.ErrTournamentNotOpen) {
		t.Fatalf("after start: got %v", err)
	}
}

func TestParticipants_PreserveRegistrationOrder(t *testing.T) {
	tr := mustCreate(t, tournament.NewRegistry(), validConfig())

	first := uuid.New()
	second := uuid.New()
	if _, err := tr.Register(first, []string{"ETH"}, tCreated.Add(time.Second)); err != nil {
		t.Fatal(err)
	}
	if _, err := tr.Register(second, []string{"BTC"}, tCreated.Add(2*time.Second)); err != nil {
		t.Fatal(err)
	}

	ps := tr.Participants()
	if len(ps) != 2 || ps[0].Account != first || ps[1].Account != second {
		t.Fatal("participants not in registration order")
	}
}

func TestClose_ReportsTransitionOnce(t *testing.T) {
	tr := mustCreate(t, tournament.NewRegistry(), validConfig())

	if tr.Close(tEnd.Add(-time.Second)) {
		t.Fatal("close before end must not transition")
	}
	if !tr.Close(tEnd) {
		t.Fatal("first close at end must transition")
	}
	if tr.Close(tEnd.Add(time.Second)) {
		t.Fatal("repeated close must be a no-op")
	}
}

func TestStateMachine_LegalEdgesOnly(t *testing.T) {
	tr := mustCreate(t, tournament.NewRegistry(), validConfig())

	// Judging requires AwaitingPrice.
	if err := tr.BeginJudging(); !errors.Is(err, tournament.ErrNotInExpectedState) {
		t.Fatalf("begin judging from registering: got %v", err)
	}

	tr.Close(tEnd)
	if err := tr.BeginJudging(); err != nil {
		t.Fatalf("begin judging from awaiting_price: %v", err)
	}

	if err := tr.MarkSettled(); err != nil {
		t.Fatalf("settle from judging: %v", err)
	}
	if !tr.State.Terminal() {
		t.Error("settled must be terminal")
	}
	if err := tr.MarkRescued(); !errors.Is(err, tournament.ErrNotInExpectedState) {
		t.Fatalf("rescue after settle: got %v", err)
	}
}

func TestMarkRescued_FromAwaitingPrice(t *testing.T) {
	tr := mustCreate(t, tournament.NewRegistry(), validConfig())
	tr.Close(tEnd)
	if err := tr.MarkRescued(); err != nil {
		t.Fatalf("rescue from awaiting_price: %v", err)
	}
	if tr.State != tournament.StateRescued {
		t.Fatalf("state: %s", tr.State)
	}
}

func TestRescueDeadline(t *testing.T) {
	tr := mustCreate(t, tournament.NewRegistry(), validConfig())
	want := tEnd.Add(500 * time.Second)
	if !tr.RescueDeadline().Equal(want) {
		t.Fatalf("got %v, want %v", tr.RescueDeadline(), want)
	}
}

func TestSnapshot_RoundTrip(t *testing.T) {
	tr := mustCreate(t, tournament.NewRegistry(), validConfig())
	account := uuid.New()
	if _, err := tr.Register(account, []string{"ETH"}, tCreated.Add(time.Second)); err != nil {
		t.Fatal(err)
	}
	tr.Close(tEnd)

	restored := tournament.FromSnapshot(tr.Export())

	if restored.ID != tr.ID || restored.State != tr.State || restored.Version != tr.Version {
		t.Fatal("identity fields not preserved")
	}
	if restored.ClosedAt == nil || !restored.ClosedAt.Equal(*tr.ClosedAt) {
		t.Fatal("ClosedAt not preserved")
	}
	p, ok := restored.Participant(account)
	if !ok {
		t.Fatal("participant lost in round trip")
	}
	if p.Stake != 1000 {
		t.Errorf("stake: got %d", p.Stake)
	}
}
