package price_test

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/btn-group/az-trading-competition/internal/price"
)

var closeTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// ============================================================================
// Test: Feed
// ============================================================================

func TestFeed_ObserveAndLatest(t *testing.T) {
	f := price.NewFeed()

	accepted := f.Observe(price.Reading{Pair: "ETH/AZERO", Price: 1_500, Sequence: 1, Timestamp: closeTime})
	if !accepted {
		t.Fatal("first reading should be accepted")
	}

	r, ok := f.Latest("ETH/AZERO")
	if !ok {
		t.Fatal("latest reading should exist")
	}
	if r.Price != 1_500 || r.Sequence != 1 {
		t.Errorf("got price=%d seq=%d, want 1_500/1", r.Price, r.Sequence)
	}
}

func TestFeed_StaleSequenceIgnored(t *testing.T) {
	f := price.NewFeed()

	f.Observe(price.Reading{Pair: "ETH/AZERO", Price: 1_500, Sequence: 5, Timestamp: closeTime})

	// Redelivery of an older tick must not rewind the cache
	if f.Observe(price.Reading{Pair: "ETH/AZERO", Price: 1_400, Sequence: 4, Timestamp: closeTime}) {
		t.Error("stale sequence should be dropped")
	}
	if f.Observe(price.Reading{Pair: "ETH/AZERO", Price: 1_400, Sequence: 5, Timestamp: closeTime}) {
		t.Error("duplicate sequence should be dropped")
	}

	r, _ := f.Latest("ETH/AZERO")
	if r.Price != 1_500 {
		t.Errorf("cache rewound to %d", r.Price)
	}
}

func TestFeed_SequenceGapAccepted(t *testing.T) {
	f := price.NewFeed()

	f.Observe(price.Reading{Pair: "ETH/AZERO", Price: 1_500, Sequence: 1, Timestamp: closeTime})
	if !f.Observe(price.Reading{Pair: "ETH/AZERO", Price: 1_600, Sequence: 10, Timestamp: closeTime}) {
		t.Error("gapped sequence should still be accepted")
	}
}

func TestFeed_NonPositivePriceDropped(t *testing.T) {
	f := price.NewFeed()

	if f.Observe(price.Reading{Pair: "ETH/AZERO", Price: 0, Sequence: 1, Timestamp: closeTime}) {
		t.Error("zero price should be dropped")
	}
	if f.Observe(price.Reading{Pair: "ETH/AZERO", Price: -5, Sequence: 2, Timestamp: closeTime}) {
		t.Error("negative price should be dropped")
	}
}

// ============================================================================
// Test: Resolver
// ============================================================================

func TestResolver_OracleCapture(t *testing.T) {
	r := price.NewResolver()
	id := uuid.New()

	reading := price.Reading{Pair: "ETH/AZERO", Price: 1_500, Sequence: 1, Timestamp: closeTime.Add(time.Second)}
	if err := r.SubmitOracle(id, closeTime, reading); err != nil {
		t.Fatalf("SubmitOracle failed: %v", err)
	}

	res, ok := r.Resolution(id, "ETH/AZERO")
	if !ok {
		t.Fatal("resolution should exist")
	}
	if res.Price != 1_500 || res.Source != price.SourceOracle {
		t.Errorf("got price=%d source=%s", res.Price, res.Source)
	}
}

func TestResolver_ReadingBeforeCloseRejected(t *testing.T) {
	r := price.NewResolver()
	id := uuid.New()

	reading := price.Reading{Pair: "ETH/AZERO", Price: 1_500, Sequence: 1, Timestamp: closeTime.Add(-time.Second)}
	err := r.SubmitOracle(id, closeTime, reading)
	if !errors.Is(err, price.ErrReadingBeforeClose) {
		t.Errorf("got %v, want ErrReadingBeforeClose", err)
	}
}

func TestResolver_FirstWriterWins(t *testing.T) {
	r := price.NewResolver()
	id := uuid.New()

	first := price.Reading{Pair: "ETH/AZERO", Price: 1_500, Sequence: 1, Timestamp: closeTime}
	if err := r.SubmitOracle(id, closeTime, first); err != nil {
		t.Fatalf("SubmitOracle failed: %v", err)
	}

	second := price.Reading{Pair: "ETH/AZERO", Price: 1_600, Sequence: 2, Timestamp: closeTime.Add(time.Minute)}
	if err := r.SubmitOracle(id, closeTime, second); !errors.Is(err, price.ErrPriceAlreadyCaptured) {
		t.Errorf("got %v, want ErrPriceAlreadyCaptured", err)
	}

	res, _ := r.Resolution(id, "ETH/AZERO")
	if res.Price != 1_500 {
		t.Errorf("captured price changed to %d", res.Price)
	}
}

func TestResolver_ManualBlockedDuringGrace(t *testing.T) {
	r := price.NewResolver()
	id := uuid.New()
	grace := time.Hour

	// One second before the grace period ends
	now := closeTime.Add(grace - time.Second)
	err := r.SubmitManual(id, closeTime, grace, "ETH/AZERO", 1_500, now)
	if !errors.Is(err, price.ErrGracePeriodActive) {
		t.Errorf("got %v, want ErrGracePeriodActive", err)
	}

	// At the boundary the override is allowed
	if err := r.SubmitManual(id, closeTime, grace, "ETH/AZERO", 1_500, closeTime.Add(grace)); err != nil {
		t.Errorf("manual submit at grace boundary should succeed: %v", err)
	}

	res, _ := r.Resolution(id, "ETH/AZERO")
	if res.Source != price.SourceManual {
		t.Errorf("got source %s, want manual", res.Source)
	}
}

func TestResolver_ManualCannotOverrideOracle(t *testing.T) {
	r := price.NewResolver()
	id := uuid.New()
	grace := time.Hour

	reading := price.Reading{Pair: "ETH/AZERO", Price: 1_500, Sequence: 1, Timestamp: closeTime}
	if err := r.SubmitOracle(id, closeTime, reading); err != nil {
		t.Fatalf("SubmitOracle failed: %v", err)
	}

	err := r.SubmitManual(id, closeTime, grace, "ETH/AZERO", 1_600, closeTime.Add(2*grace))
	if !errors.Is(err, price.ErrPriceAlreadyCaptured) {
		t.Errorf("got %v, want ErrPriceAlreadyCaptured", err)
	}
}

func TestResolver_Complete(t *testing.T) {
	r := price.NewResolver()
	id := uuid.New()
	pairs := []string{"ETH/AZERO", "BTC/AZERO"}

	if r.Complete(id, pairs) {
		t.Error("no pairs resolved yet")
	}

	r.SubmitOracle(id, closeTime, price.Reading{Pair: "ETH/AZERO", Price: 1_500, Timestamp: closeTime})
	if r.Complete(id, pairs) {
		t.Error("only one of two pairs resolved")
	}

	r.SubmitOracle(id, closeTime, price.Reading{Pair: "BTC/AZERO", Price: 40_000, Timestamp: closeTime})
	if !r.Complete(id, pairs) {
		t.Error("all pairs resolved, Complete should be true")
	}
}

func TestResolver_SnapshotRestore(t *testing.T) {
	r := price.NewResolver()
	id := uuid.New()

	r.SubmitOracle(id, closeTime, price.Reading{Pair: "ETH/AZERO", Price: 1_500, Timestamp: closeTime})
	r.SubmitOracle(id, closeTime, price.Reading{Pair: "BTC/AZERO", Price: 40_000, Timestamp: closeTime})

	snap := r.Snapshot()

	restored := price.NewResolver()
	restored.Restore(snap)

	if !restored.Complete(id, []string{"ETH/AZERO", "BTC/AZERO"}) {
		t.Error("restored resolver should carry both resolutions")
	}
	res, _ := restored.Resolution(id, "BTC/AZERO")
	if res.Price != 40_000 {
		t.Errorf("restored price: got %d, want 40_000", res.Price)
	}
}

func TestResolver_Drop(t *testing.T) {
	r := price.NewResolver()
	id := uuid.New()

	r.SubmitOracle(id, closeTime, price.Reading{Pair: "ETH/AZERO", Price: 1_500, Timestamp: closeTime})
	r.Drop(id)

	if _, ok := r.Resolution(id, "ETH/AZERO"); ok {
		t.Error("dropped resolution should not exist")
	}
}
