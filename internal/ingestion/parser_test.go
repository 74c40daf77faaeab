package ingestion_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/btn-group/az-trading-competition/internal/ingestion"
)

func marshal(t *testing.T, v interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return data
}

func TestClassify(t *testing.T) {
	cases := []struct {
		subject string
		want    ingestion.Kind
	}{
		{"comp.prices.ETH.AZERO", ingestion.KindOracleTick},
		{"comp.fills.550e8400-e29b-41d4-a716-446655440000", ingestion.KindVenueFill},
		{"comp.ledger.events.TradeFill", ingestion.KindUnknown},
		{"orders.new", ingestion.KindUnknown},
	}
	for _, c := range cases {
		if got := ingestion.Classify(c.subject); got != c.want {
			t.Errorf("Classify(%q): got %d, want %d", c.subject, got, c.want)
		}
	}
}

func TestParseOracleTick(t *testing.T) {
	payload := map[string]interface{}{
		"pair":         "ETH/AZERO",
		"price":        int64(1_500_000),
		"sequence":     int64(42),
		"timestamp_us": int64(1700000000000000),
	}

	reading, err := ingestion.ParseOracleTick(marshal(t, payload))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	if reading.Pair != "ETH/AZERO" {
		t.Errorf("pair: got %s, want ETH/AZERO", reading.Pair)
	}
	if reading.Price != 1_500_000 {
		t.Errorf("price: got %d, want 1_500_000", reading.Price)
	}
	if reading.Sequence != 42 {
		t.Errorf("sequence: got %d, want 42", reading.Sequence)
	}
	if !reading.Timestamp.Equal(time.UnixMicro(1700000000000000)) {
		t.Errorf("timestamp: got %v", reading.Timestamp)
	}
}

func TestParseOracleTick_MissingPair_Fails(t *testing.T) {
	payload := map[string]interface{}{
		"price":        int64(1_500_000),
		"sequence":     int64(1),
		"timestamp_us": int64(1700000000000000),
	}
	if _, err := ingestion.ParseOracleTick(marshal(t, payload)); err == nil {
		t.Fatal("expected error for missing pair")
	}
}

func TestParseOracleTick_NonPositivePrice_Fails(t *testing.T) {
	payload := map[string]interface{}{
		"pair":         "ETH/AZERO",
		"price":        int64(0),
		"sequence":     int64(1),
		"timestamp_us": int64(1700000000000000),
	}
	if _, err := ingestion.ParseOracleTick(marshal(t, payload)); err == nil {
		t.Fatal("expected error for non-positive price")
	}
}

func TestParseVenueFill(t *testing.T) {
	payload := map[string]interface{}{
		"fill_id":       "550e8400-e29b-41d4-a716-446655440000",
		"tournament_id": "660e8400-e29b-41d4-a716-446655440001",
		"account":       "770e8400-e29b-41d4-a716-446655440002",
		"pair":          "ETH/AZERO",
		"base_delta":    int64(10),
		"quote_delta":   int64(-15),
		"fill_sequence": int64(7),
		"timestamp_us":  int64(1700000000000000),
	}

	fill, err := ingestion.ParseVenueFill(marshal(t, payload))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	if fill.Pair != "ETH/AZERO" {
		t.Errorf("pair: got %s, want ETH/AZERO", fill.Pair)
	}
	if fill.BaseDelta != 10 {
		t.Errorf("base_delta: got %d, want 10", fill.BaseDelta)
	}
	if fill.QuoteDelta != -15 {
		t.Errorf("quote_delta: got %d, want -15", fill.QuoteDelta)
	}
	if fill.Sequence != 7 {
		t.Errorf("fill_sequence: got %d, want 7", fill.Sequence)
	}
	if fill.ID.String() != "660e8400-e29b-41d4-a716-446655440001" {
		t.Errorf("tournament_id: got %s", fill.ID)
	}
	if !fill.At.Equal(time.UnixMicro(1700000000000000)) {
		t.Errorf("timestamp: got %v", fill.At)
	}
	if fill.IdempotencyKey() != "550e8400-e29b-41d4-a716-446655440000" {
		t.Errorf("idempotency key: got %s", fill.IdempotencyKey())
	}
}

func TestParseVenueFill_InvalidUUID_Fails(t *testing.T) {
	payload := map[string]interface{}{
		"fill_id":       "not-a-uuid",
		"tournament_id": "660e8400-e29b-41d4-a716-446655440001",
		"account":       "770e8400-e29b-41d4-a716-446655440002",
		"pair":          "ETH/AZERO",
		"base_delta":    int64(1),
		"quote_delta":   int64(-1),
		"fill_sequence": int64(1),
		"timestamp_us":  int64(0),
	}
	if _, err := ingestion.ParseVenueFill(marshal(t, payload)); err == nil {
		t.Fatal("expected error for invalid UUID")
	}
}

func TestParseVenueFill_ZeroSequence_Fails(t *testing.T) {
	payload := map[string]interface{}{
		"fill_id":       "550e8400-e29b-41d4-a716-446655440000",
		"tournament_id": "660e8400-e29b-41d4-a716-446655440001",
		"account":       "770e8400-e29b-41d4-a716-446655440002",
		"pair":          "ETH/AZERO",
		"base_delta":    int64(1),
		"quote_delta":   int64(-1),
		"fill_sequence": int64(0),
		"timestamp_us":  int64(0),
	}
	if _, err := ingestion.ParseVenueFill(marshal(t, payload)); err == nil {
		t.Fatal("expected error for zero fill_sequence")
	}
}

func TestParseInvalidJSON_Fails(t *testing.T) {
	if _, err := ingestion.ParseOracleTick([]byte(`{invalid`)); err == nil {
		t.Fatal("expected error for invalid tick JSON")
	}
	if _, err := ingestion.ParseVenueFill([]byte(`{invalid`)); err == nil {
		t.Fatal("expected error for invalid fill JSON")
	}
}
