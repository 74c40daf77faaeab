package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/btn-group/az-trading-competition/internal/config"
	"github.com/btn-group/az-trading-competition/internal/engine"
	"github.com/btn-group/az-trading-competition/internal/ingestion"
	"github.com/btn-group/az-trading-competition/internal/mint"
	"github.com/btn-group/az-trading-competition/internal/observability"
	"github.com/btn-group/az-trading-competition/internal/persistence"
	"github.com/btn-group/az-trading-competition/internal/price"
	"github.com/btn-group/az-trading-competition/internal/projection"
	"github.com/btn-group/az-trading-competition/internal/query"
	"github.com/btn-group/az-trading-competition/internal/server"
)

func main() {
	logger := observability.NewLogger("main")
	logger.Info().Msg("competitiond starting")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("load config")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// --- Postgres ---
	db, err := sql.Open("postgres", cfg.PostgresURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres open")
	}
	defer db.Close()

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		logger.Fatal().Err(err).Msg("postgres ping")
	}
	logger.Info().Msg("postgres connected")

	migrator := persistence.NewMigrator(db, cfg.MigrationsDir)
	if err := migrator.Up(ctx); err != nil {
		logger.Fatal().Err(err).Msg("run migrations")
	}

	snapMgr := persistence.NewSnapshotManager(db)

	// --- Recovery: snapshot + replay ---
	startSequence := int64(0)
	snap, err := snapMgr.LoadLatestSnapshot(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("load snapshot failed")
	}
	if snap != nil {
		startSequence = snap.Sequence + 1
		logger.Info().Int64("sequence", snap.Sequence).Msg("loaded snapshot")
	} else {
		logger.Info().Msg("no snapshot, cold start from sequence 0")
	}

	// --- Channels and engine ---
	persistChan := make(chan engine.Output, cfg.PersistChanSize)
	projectionChan := make(chan engine.Output, cfg.ProjectionChanSize)
	persistWorkerChan := make(chan engine.Output, cfg.PersistChanSize)
	publishChan := make(chan ingestion.PublishableEvent, 4096)

	dbChecker := persistence.NewPostgresIdempotencyChecker(db)
	metrics := observability.NewMetrics()
	healthChecker := observability.NewHealthChecker()

	eng := engine.NewEngine(startSequence, cfg.OperatorID, persistChan, projectionChan, dbChecker, metrics)

	if snap != nil {
		engineSnap, err := snap.ToEngineState()
		if err != nil {
			logger.Fatal().Err(err).Msg("decode snapshot")
		}
		eng.RestoreFromSnapshot(engineSnap)
		logger.Info().Int64("sequence", snap.Sequence).Msg("restored in-memory state")
	}

	// --- Workers that drain engine output (must run before replay) ---
	store := projection.NewStore()
	errChan := make(chan error, 10)

	persistWorker := persistence.NewWorker(db, persistWorkerChan, cfg.PersistBatchSize, cfg.PersistFlushTimeout, metrics)
	go func() { errChan <- persistWorker.Run(ctx) }()

	projWorker := projection.NewWorker(db, store, projectionChan, metrics)
	go func() { errChan <- projWorker.Run(ctx) }()

	// Tee: persisted outputs also fan out to the outbound publisher.
	go teePersistOutputs(ctx, persistChan, persistWorkerChan, publishChan)

	// --- Command replay ---
	replayCount, err := replayCommandLog(ctx, snapMgr, eng, startSequence, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("command replay failed")
	}
	if replayCount > 0 {
		logger.Info().
			Int64("replayed", replayCount).
			Int64("sequence", eng.GetSequence()).
			Msg("replay complete")
	}

	if snap != nil && replayCount == 0 {
		var expected [32]byte
		copy(expected[:], snap.StateHash)
		if actual := eng.GetStateHash(); actual != expected {
			logger.Fatal().
				Hex("expected", expected[:]).
				Hex("actual", actual[:]).
				Msg("state hash mismatch after restore")
		}
		logger.Info().Msg("state hash verified after restore")
	}

	go eng.Run(ctx)

	// --- NATS ---
	nc, js, err := ingestion.ConnectNATS(cfg.NATSURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("nats connect")
	}
	defer nc.Close()

	if err := ingestion.EnsureStreams(ctx, js); err != nil {
		logger.Fatal().Err(err).Msg("ensure ingest streams")
	}
	if err := ingestion.EnsureOutboundStream(ctx, js); err != nil {
		logger.Fatal().Err(err).Msg("ensure outbound stream")
	}

	rawEventChan := make(chan ingestion.RawEvent, 4096)
	subscriber := ingestion.NewNATSSubscriber(js, rawEventChan)
	if err := subscriber.Start(ctx, ingestion.DefaultSubjects()); err != nil {
		logger.Fatal().Err(err).Msg("nats subscribe")
	}

	feed := price.NewFeed()
	dispatcher := ingestion.NewDispatcher(rawEventChan, feed, store, eng, cfg.CapturePollInterval, metrics)
	go func() { errChan <- dispatcher.Run(ctx) }()

	publisher := ingestion.NewOutboundPublisher(js, publishChan)
	go func() { errChan <- publisher.Run(ctx) }()

	// --- Mint collaborator ---
	minter := mint.NewNATSMinter(nc, 5*time.Second)
	mintWorker := mint.NewWorker(minter, 1024, func(tournamentID, account uuid.UUID, handle string) {
		logger.Info().
			Str("tournament_id", tournamentID.String()).
			Str("account", account.String()).
			Str("token_handle", handle).
			Msg("participation nft minted")
	}, metrics)
	go func() { errChan <- mintWorker.Run(ctx) }()

	// --- HTTP ---
	httpServer := server.New(cfg.HTTPAddr, &server.Deps{
		Engine:    eng,
		Query:     query.NewService(db),
		Store:     store,
		Mint:      mintWorker,
		DB:        db,
		JWTSecret: cfg.JWTSecret,
		Health:    healthChecker,
	})
	go func() { errChan <- httpServer.Run(ctx) }()

	go func() { errChan <- runMetricsServer(ctx, cfg.MetricsAddr, logger) }()

	go runPeriodicSnapshots(ctx, eng, snapMgr, cfg.SnapshotInterval, metrics, logger)

	healthChecker.SetReady(true)
	logger.Info().
		Int64("sequence", eng.GetSequence()).
		Str("http", cfg.HTTPAddr).
		Str("metrics", cfg.MetricsAddr).
		Msg("competitiond ready")

	// --- Shutdown ---
	select {
	case sig := <-sigChan:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-errChan:
		logger.Error().Err(err).Msg("worker failed, shutting down")
	}
	healthChecker.SetReady(false)
	cancel()

	subscriber.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := takeSnapshot(shutdownCtx, eng, snapMgr, metrics); err != nil {
		logger.Error().Err(err).Msg("final snapshot failed")
	} else {
		logger.Info().Msg("final snapshot saved")
	}

	logger.Info().Msg("shutdown complete")
}

// teePersistOutputs forwards engine outputs to the persistence worker and,
// best-effort, to the outbound publisher.
func teePersistOutputs(
	ctx context.Context,
	in <-chan engine.Output,
	persistOut chan<- engine.Output,
	publishOut chan<- ingestion.PublishableEvent,
) {
	for {
		select {
		case <-ctx.Done():
			return
		case out, ok := <-in:
			if !ok {
				return
			}

			// Blocking: durability backpressure propagates to the engine.
			persistOut <- out

			select {
			case publishOut <- ingestion.PublishableFromOutput(out):
			default:
				// Publisher lagging; downstream can read the command log.
			}
		}
	}
}

// replayCommandLog feeds persisted commands back through the engine before
// its Run loop starts. Duplicates and stale ticks are skipped by the
// engine's own idempotency and sequence checks.
func replayCommandLog(
	ctx context.Context,
	snapMgr *persistence.SnapshotManager,
	eng *engine.Engine,
	fromSequence int64,
	logger zerolog.Logger,
) (int64, error) {
	const batchSize = 1000
	var total int64

	for {
		rows, err := snapMgr.LoadCommandsFrom(ctx, fromSequence, batchSize)
		if err != nil {
			return total, fmt.Errorf("load commands from seq %d: %w", fromSequence, err)
		}
		if len(rows) == 0 {
			break
		}

		for _, row := range rows {
			cmd, err := persistence.DecodeCommand(row)
			if err != nil {
				logger.Warn().
					Err(err).
					Int64("sequence", row.Sequence).
					Str("command_type", row.CommandType).
					Msg("skip undecodable command")
				continue
			}
			if err := eng.ProcessCommand(cmd); err != nil {
				logger.Debug().Err(err).Int64("sequence", row.Sequence).Msg("replay skip")
			}
			total++
		}

		fromSequence = rows[len(rows)-1].Sequence + 1
	}

	return total, nil
}

func runMetricsServer(ctx context.Context, addr string, logger zerolog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutCtx)
	}()

	logger.Info().Str("addr", addr).Msg("metrics server listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}

func runPeriodicSnapshots(
	ctx context.Context,
	eng *engine.Engine,
	snapMgr *persistence.SnapshotManager,
	interval int64,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) {
	if interval <= 0 {
		interval = 100_000
	}

	lastSnapshotSeq := eng.GetSequence()
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			currentSeq := eng.GetSequence()
			if currentSeq-lastSnapshotSeq >= interval {
				if err := takeSnapshot(ctx, eng, snapMgr, metrics); err != nil {
					logger.Warn().Err(err).Msg("periodic snapshot failed")
					continue
				}
				lastSnapshotSeq = currentSeq
				logger.Info().Int64("sequence", currentSeq).Msg("periodic snapshot")
			}
		}
	}
}

func takeSnapshot(
	ctx context.Context,
	eng *engine.Engine,
	snapMgr *persistence.SnapshotManager,
	metrics *observability.Metrics,
) error {
	start := time.Now()

	snapData := persistence.FromEngineState(eng.CreateSnapshotState(), time.Now())
	if err := snapMgr.SaveSnapshot(ctx, snapData); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	// Just captured from live state, so it is trusted immediately.
	if err := snapMgr.MarkVerified(ctx, snapData.Sequence); err != nil {
		return fmt.Errorf("mark snapshot verified: %w", err)
	}

	if metrics != nil {
		metrics.SnapshotTaken.Inc()
		metrics.SnapshotDuration.Observe(time.Since(start).Seconds())
		metrics.SnapshotLastSeq.Set(float64(snapData.Sequence))
	}
	return nil
}
