package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the competition engine.
type Metrics struct {
	// --- Engine ---
	CommandsApplied  *prometheus.CounterVec
	CommandsRejected *prometheus.CounterVec
	CommandDuration  *prometheus.HistogramVec
	JournalsWritten  *prometheus.CounterVec
	EngineSequence   prometheus.Gauge

	// --- Tournament lifecycle ---
	StateTransitions  *prometheus.CounterVec
	Registrations     prometheus.Counter
	TournamentsActive prometheus.Gauge

	// --- Judging ---
	JudgeAttempts     *prometheus.CounterVec
	JudgeResets       prometheus.Counter
	JudgeFeesForfeit  prometheus.Counter
	SettlementsPaid   prometheus.Counter
	RescuesTriggered  *prometheus.CounterVec
	EscrowOutstanding prometheus.Gauge
	FeeLedgerBalance  prometheus.Gauge

	// --- Price capture ---
	OracleTicks      *prometheus.CounterVec
	OracleTicksStale *prometheus.CounterVec
	PricesCaptured   *prometheus.CounterVec
	ManualOverrides  prometheus.Counter

	// --- Channel & Backpressure ---
	ChannelSize         *prometheus.GaugeVec
	ChannelCapacity     *prometheus.GaugeVec
	ChannelUtilization  *prometheus.GaugeVec
	ProjectionDrops     prometheus.Counter
	PersistBackpressure prometheus.Counter

	// --- Idempotency & Ordering ---
	IdempotencyDuplicates *prometheus.CounterVec
	DedupLRUSize          prometheus.Gauge
	DedupTier2Duration    prometheus.Histogram
	SequenceGaps          *prometheus.CounterVec
	OutOfOrder            *prometheus.CounterVec

	// --- Persistence ---
	PersistCommandsWritten prometheus.Counter
	PersistJournalsWritten prometheus.Counter
	PersistBatchDur        prometheus.Histogram
	PersistErrors          *prometheus.CounterVec
	PersistRetry           prometheus.Counter
	PersistLastSequence    prometheus.Gauge

	// --- Snapshot & Replay ---
	SnapshotTaken    prometheus.Counter
	SnapshotDuration prometheus.Histogram
	SnapshotLastSeq  prometheus.Gauge
	ReplayCommands   prometheus.Counter
	ReplayDuration   prometheus.Gauge

	// --- Query API ---
	QueryRequests *prometheus.CounterVec
	QueryDuration *prometheus.HistogramVec

	// --- NFT minting ---
	MintRequests *prometheus.CounterVec
	MintRetries  prometheus.Counter
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	latencyBuckets := []float64{
		0.000001, 0.000005, 0.00001, 0.000025, 0.00005,
		0.0001, 0.00025, 0.0005, 0.001, 0.002, 0.005, 0.01,
	}

	return &Metrics{
		// Engine
		CommandsApplied: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "comp_commands_applied_total",
			Help: "Commands successfully applied by the engine",
		}, []string{"command_type"}),

		CommandsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "comp_commands_rejected_total",
			Help: "Commands rejected (dedup, gap, validation)",
		}, []string{"command_type", "reason"}),

		CommandDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "comp_command_apply_duration_seconds",
			Help:    "Time to apply a single command",
			Buckets: latencyBuckets,
		}, []string{"command_type"}),

		JournalsWritten: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "comp_journals_generated_total",
			Help: "Ledger journal entries generated",
		}, []string{"journal_type"}),

		EngineSequence: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "comp_engine_sequence",
			Help: "Current global sequence number",
		}),

		// Tournament lifecycle
		StateTransitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "comp_state_transitions_total",
			Help: "Tournament lifecycle transitions",
		}, []string{"to_state"}),

		Registrations: promauto.NewCounter(prometheus.CounterOpts{
			Name: "comp_registrations_total",
			Help: "Participant registrations accepted",
		}),

		TournamentsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "comp_tournaments_active",
			Help: "Tournaments not yet in a terminal state",
		}),

		// Judging
		JudgeAttempts: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "comp_judge_attempts_total",
			Help: "Judge attempts consumed",
		}, []string{"outcome"}),

		JudgeResets: promauto.NewCounter(prometheus.CounterOpts{
			Name: "comp_judge_resets_total",
			Help: "Placement resets performed",
		}),

		JudgeFeesForfeit: promauto.NewCounter(prometheus.CounterOpts{
			Name: "comp_judge_fees_forfeit_total",
			Help: "Fees forfeited on unproductive judge calls (base units)",
		}),

		SettlementsPaid: promauto.NewCounter(prometheus.CounterOpts{
			Name: "comp_settlements_total",
			Help: "Tournaments settled with prize payouts",
		}),

		RescuesTriggered: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "comp_rescues_total",
			Help: "Emergency rescues by policy",
		}, []string{"policy"}),

		EscrowOutstanding: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "comp_escrow_outstanding",
			Help: "Total stake escrow across open tournaments (base units)",
		}),

		FeeLedgerBalance: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "comp_fee_ledger_balance",
			Help: "Accumulated forfeited judge fees (base units)",
		}),

		// Price capture
		OracleTicks: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "comp_oracle_ticks_total",
			Help: "Oracle ticks observed",
		}, []string{"pair"}),

		OracleTicksStale: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "comp_oracle_ticks_stale_total",
			Help: "Oracle ticks dropped as stale or duplicate",
		}, []string{"pair"}),

		PricesCaptured: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "comp_prices_captured_total",
			Help: "Closing prices captured",
		}, []string{"source"}),

		ManualOverrides: promauto.NewCounter(prometheus.CounterOpts{
			Name: "comp_manual_price_overrides_total",
			Help: "Manual closing prices accepted after the grace period",
		}),

		// Channel & Backpressure
		ChannelSize: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "comp_channel_size",
			Help: "Current items in channel",
		}, []string{"name"}),

		ChannelCapacity: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "comp_channel_capacity",
			Help: "Channel capacity (constant)",
		}, []string{"name"}),

		ChannelUtilization: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "comp_channel_utilization",
			Help: "Channel size / capacity (0.0-1.0)",
		}, []string{"name"}),

		ProjectionDrops: promauto.NewCounter(prometheus.CounterOpts{
			Name: "comp_projection_drops_total",
			Help: "Outputs dropped due to full projection channel",
		}),

		PersistBackpressure: promauto.NewCounter(prometheus.CounterOpts{
			Name: "comp_persist_backpressure_total",
			Help: "Times the engine blocked on the persist channel",
		}),

		// Idempotency & Ordering
		IdempotencyDuplicates: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "comp_idempotency_duplicates_total",
			Help: "Duplicates caught (lru/postgres)",
		}, []string{"command_type", "tier"}),

		DedupLRUSize: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "comp_dedup_lru_size",
			Help: "Current LRU occupancy",
		}),

		DedupTier2Duration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "comp_dedup_tier2_duration_seconds",
			Help:    "Postgres dedup lookup latency",
			Buckets: latencyBuckets,
		}),

		SequenceGaps: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "comp_sequence_gap_total",
			Help: "Source sequence gaps",
		}, []string{"partition"}),

		OutOfOrder: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "comp_out_of_order_total",
			Help: "Out-of-order rejections",
		}, []string{"partition"}),

		// Persistence
		PersistCommandsWritten: promauto.NewCounter(prometheus.CounterOpts{
			Name: "comp_persist_commands_written_total",
			Help: "Command envelopes written to Postgres",
		}),

		PersistJournalsWritten: promauto.NewCounter(prometheus.CounterOpts{
			Name: "comp_persist_journals_written_total",
			Help: "Journal entries written to Postgres",
		}),

		PersistBatchDur: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "comp_persist_batch_duration_seconds",
			Help:    "Postgres batch write duration",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}),

		PersistErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "comp_persist_errors_total",
			Help: "Persistence errors",
		}, []string{"error_type"}),

		PersistRetry: promauto.NewCounter(prometheus.CounterOpts{
			Name: "comp_persist_retry_total",
			Help: "Persistence retries",
		}),

		PersistLastSequence: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "comp_persist_last_sequence",
			Help: "Last persisted sequence",
		}),

		// Snapshot & Replay
		SnapshotTaken: promauto.NewCounter(prometheus.CounterOpts{
			Name: "comp_snapshot_taken_total",
			Help: "Snapshots created",
		}),

		SnapshotDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "comp_snapshot_duration_seconds",
			Help:    "Snapshot creation time",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 10.0},
		}),

		SnapshotLastSeq: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "comp_snapshot_last_sequence",
			Help: "Sequence of last snapshot",
		}),

		ReplayCommands: promauto.NewCounter(prometheus.CounterOpts{
			Name: "comp_replay_commands_total",
			Help: "Commands replayed on startup",
		}),

		ReplayDuration: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "comp_replay_duration_seconds",
			Help: "Total replay time",
		}),

		// Query API
		QueryRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "comp_query_requests_total",
			Help: "Query requests",
		}, []string{"endpoint", "status"}),

		QueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "comp_query_duration_seconds",
			Help:    "Query latency",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}, []string{"endpoint"}),

		// NFT minting
		MintRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "comp_mint_requests_total",
			Help: "NFT mint requests by result",
		}, []string{"result"}),

		MintRetries: promauto.NewCounter(prometheus.CounterOpts{
			Name: "comp_mint_retries_total",
			Help: "NFT mint retries",
		}),
	}
}

// SetChannelMetrics updates channel utilization metrics.
func (m *Metrics) SetChannelMetrics(name string, size, capacity int) {
	m.ChannelSize.WithLabelValues(name).Set(float64(size))
	m.ChannelCapacity.WithLabelValues(name).Set(float64(capacity))
	if capacity > 0 {
		m.ChannelUtilization.WithLabelValues(name).Set(float64(size) / float64(capacity))
	}
}
