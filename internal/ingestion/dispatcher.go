package ingestion

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/btn-group/az-trading-competition/internal/command"
	"github.com/btn-group/az-trading-competition/internal/engine"
	"github.com/btn-group/az-trading-competition/internal/observability"
	"github.com/btn-group/az-trading-competition/internal/price"
)

// Submitter delivers commands to the deterministic core.
type Submitter interface {
	Submit(ctx context.Context, cmd command.Command) error
}

// AwaitingLister exposes the tournaments waiting on a closing price. The
// projection store implements it.
type AwaitingLister interface {
	AwaitingPrice() []*engine.TournamentView
}

// Dispatcher routes raw NATS messages: venue fills go straight to the
// core, oracle ticks land in the feed cache. It also polls the read model
// for tournaments awaiting a closing price and captures one from the feed
// once a reading at or after the close exists. A single goroutine runs
// both paths, so the feed needs no locking.
type Dispatcher struct {
	events       <-chan RawEvent
	feed         *price.Feed
	awaiting     AwaitingLister
	submitter    Submitter
	pollInterval time.Duration
	logger       zerolog.Logger
	metrics      *observability.Metrics
}

func NewDispatcher(
	events <-chan RawEvent,
	feed *price.Feed,
	awaiting AwaitingLister,
	submitter Submitter,
	pollInterval time.Duration,
	metrics *observability.Metrics,
) *Dispatcher {
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	return &Dispatcher{
		events:       events,
		feed:         feed,
		awaiting:     awaiting,
		submitter:    submitter,
		pollInterval: pollInterval,
		logger:       observability.NewLogger("ingest_dispatcher"),
		metrics:      metrics,
	}
}

// Run processes messages until the context is cancelled or the event
// channel closes.
func (d *Dispatcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case raw, ok := <-d.events:
			if !ok {
				return nil
			}
			d.handleRaw(ctx, raw)

		case <-ticker.C:
			d.captureClosingPrices(ctx)
		}
	}
}

func (d *Dispatcher) handleRaw(ctx context.Context, raw RawEvent) {
	switch Classify(raw.Subject) {
	case KindOracleTick:
		d.handleTick(raw)
	case KindVenueFill:
		d.handleFill(ctx, raw)
	default:
		d.logger.Warn().Str("subject", raw.Subject).Msg("message on unrecognized subject")
		raw.AckFunc()
	}
}

func (d *Dispatcher) handleTick(raw RawEvent) {
	reading, err := ParseOracleTick(raw.Data)
	if err != nil {
		// Malformed ticks never become parseable; redelivery is pointless.
		d.logger.Warn().Err(err).Str("subject", raw.Subject).Msg("dropping malformed tick")
		raw.AckFunc()
		return
	}

	accepted := d.feed.Observe(reading)
	if d.metrics != nil {
		if accepted {
			d.metrics.OracleTicks.WithLabelValues(reading.Pair).Inc()
		} else {
			d.metrics.OracleTicksStale.WithLabelValues(reading.Pair).Inc()
		}
	}
	raw.AckFunc()
}

func (d *Dispatcher) handleFill(ctx context.Context, raw RawEvent) {
	fill, err := ParseVenueFill(raw.Data)
	if err != nil {
		d.logger.Warn().Err(err).Str("subject", raw.Subject).Msg("dropping malformed fill")
		raw.AckFunc()
		return
	}

	if err := d.submitter.Submit(ctx, fill); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			raw.NakFunc()
			return
		}
		// Domain rejection: the fill is invalid against current state and
		// a redelivery would be rejected the same way.
		d.logger.Warn().
			Err(err).
			Str("fill_id", fill.FillID.String()).
			Str("tournament_id", fill.ID.String()).
			Msg("fill rejected")
	}
	raw.AckFunc()
}

// captureClosingPrices scans tournaments in the awaiting-price state and
// submits the first feed reading stamped at or after each tournament's
// close. The core enforces first-writer-wins per pair, so a repeat
// submission after a crash is harmless.
func (d *Dispatcher) captureClosingPrices(ctx context.Context) {
	for _, view := range d.awaiting.AwaitingPrice() {
		if view.ClosedAt == nil {
			continue
		}
		for _, pair := range view.UnresolvedPairs {
			reading, ok := d.feed.Latest(pair)
			if !ok || reading.Timestamp.Before(*view.ClosedAt) {
				continue
			}

			cmd := &command.SubmitOraclePrice{
				ID:         view.ID,
				Pair:       pair,
				Price:      reading.Price,
				ObservedAt: reading.Timestamp,
				Sequence:   reading.Sequence,
			}
			if err := d.submitter.Submit(ctx, cmd); err != nil {
				d.logger.Warn().
					Err(err).
					Str("tournament_id", view.ID.String()).
					Str("pair", pair).
					Msg("oracle capture rejected")
				continue
			}
			if d.metrics != nil {
				d.metrics.PricesCaptured.WithLabelValues("oracle").Inc()
			}
			d.logger.Info().
				Str("tournament_id", view.ID.String()).
				Str("pair", pair).
				Int64("price", reading.Price).
				Msg("closing price captured")
		}
	}
}
