package ingestion

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"

	"github.com/btn-group/az-trading-competition/internal/observability"
)

// NATSSubscriber consumes the oracle tick and venue fill streams and hands
// raw messages to the dispatcher. JetStream is the only high-throughput
// ingestion surface; the HTTP API is for admin and judge traffic.
type NATSSubscriber struct {
	js        jetstream.JetStream
	eventChan chan<- RawEvent
	consumers []jetstream.ConsumeContext
	logger    zerolog.Logger
}

// RawEvent is an undecoded message off the wire. The dispatcher parses it
// and decides whether to ack or redeliver.
type RawEvent struct {
	Subject   string
	Data      []byte
	Timestamp time.Time
	AckFunc   func()
	NakFunc   func()
}

// SubjectConfig binds one subject filter to a durable consumer.
type SubjectConfig struct {
	Subject      string
	ConsumerName string
	StreamName   string
}

const (
	// SubjectPrices carries oracle price ticks, one subject token per
	// pair leg: comp.prices.<base>.<quote>
	SubjectPrices = "comp.prices.>"

	// SubjectFills carries executed venue trades keyed by tournament:
	// comp.fills.<tournament_id>
	SubjectFills = "comp.fills.>"

	streamPrices = "COMP_PRICES"
	streamFills  = "COMP_FILLS"
)

// DefaultSubjects returns the consumer bindings for the two ingest streams.
func DefaultSubjects() []SubjectConfig {
	return []SubjectConfig{
		{Subject: SubjectPrices, ConsumerName: "comp-prices-consumer", StreamName: streamPrices},
		{Subject: SubjectFills, ConsumerName: "comp-fills-consumer", StreamName: streamFills},
	}
}

func NewNATSSubscriber(js jetstream.JetStream, eventChan chan<- RawEvent) *NATSSubscriber {
	return &NATSSubscriber{
		js:        js,
		eventChan: eventChan,
		logger:    observability.NewLogger("nats_subscriber"),
	}
}

// Start creates durable consumers for each subject and begins delivery.
func (ns *NATSSubscriber) Start(ctx context.Context, subjects []SubjectConfig) error {
	for _, sc := range subjects {
		consumer, err := ns.js.CreateOrUpdateConsumer(ctx, sc.StreamName, jetstream.ConsumerConfig{
			Durable:       sc.ConsumerName,
			FilterSubject: sc.Subject,
			AckPolicy:     jetstream.AckExplicitPolicy,
			AckWait:       30 * time.Second,
			MaxDeliver:    5,
		})
		if err != nil {
			return fmt.Errorf("create consumer %s: %w", sc.ConsumerName, err)
		}

		cc, err := consumer.Consume(ns.handleMessage)
		if err != nil {
			return fmt.Errorf("consume %s: %w", sc.Subject, err)
		}
		ns.consumers = append(ns.consumers, cc)
		ns.logger.Info().
			Str("subject", sc.Subject).
			Str("stream", sc.StreamName).
			Msg("subscribed")
	}
	return nil
}

func (ns *NATSSubscriber) handleMessage(msg jetstream.Msg) {
	raw := RawEvent{
		Subject:   msg.Subject(),
		Data:      msg.Data(),
		Timestamp: time.Now(),
		AckFunc: func() {
			if err := msg.Ack(); err != nil {
				ns.logger.Warn().Err(err).Str("subject", msg.Subject()).Msg("ack failed")
			}
		},
		NakFunc: func() {
			if err := msg.Nak(); err != nil {
				ns.logger.Warn().Err(err).Str("subject", msg.Subject()).Msg("nak failed")
			}
		},
	}

	// Blocking send: backpressure propagates to JetStream via AckWait.
	ns.eventChan <- raw
}

// Stop drains all consumers.
func (ns *NATSSubscriber) Stop() {
	for _, cc := range ns.consumers {
		cc.Stop()
	}
	ns.logger.Info().Msg("subscriber stopped")
}

// EnsureStreams creates the ingest streams if they do not exist.
func EnsureStreams(ctx context.Context, js jetstream.JetStream) error {
	logger := observability.NewLogger("nats_subscriber")

	streams := []jetstream.StreamConfig{
		{
			Name:      streamPrices,
			Subjects:  []string{SubjectPrices},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
		{
			Name:      streamFills,
			Subjects:  []string{SubjectFills},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
	}

	for _, cfg := range streams {
		if _, err := js.CreateOrUpdateStream(ctx, cfg); err != nil {
			return fmt.Errorf("create stream %s: %w", cfg.Name, err)
		}
		logger.Info().Str("stream", cfg.Name).Msg("ensured stream")
	}
	return nil
}

// ConnectNATS establishes a reconnecting NATS connection and a JetStream
// context.
func ConnectNATS(url string) (*nats.Conn, jetstream.JetStream, error) {
	logger := observability.NewLogger("nats")

	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn().Err(err).Msg("nats disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info().Str("url", nc.ConnectedUrl()).Msg("nats reconnected")
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("connect nats: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("jetstream context: %w", err)
	}

	return nc, js, nil
}
