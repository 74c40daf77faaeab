package mint

import (
	"container/list"
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/btn-group/az-trading-competition/internal/observability"
)

// Request is one pending mint for a registered participant.
type Request struct {
	TournamentID uuid.UUID
	Account      uuid.UUID
	Attempts     int
	NextTry      time.Time
}

// Worker drains mint requests against the collaborator and parks failures
// for retry with exponential backoff. A mint that keeps failing stays in
// the queue; it never affects the registration that spawned it.
type Worker struct {
	minter   Minter
	requests chan Request
	onMinted func(tournamentID, account uuid.UUID, handle string)
	logger   zerolog.Logger
	metrics  *observability.Metrics

	// retry state, owned by the Run goroutine
	pending *list.List
}

const (
	retryBase = 2 * time.Second
	retryMax  = 5 * time.Minute
)

func NewWorker(
	minter Minter,
	queueSize int,
	onMinted func(tournamentID, account uuid.UUID, handle string),
	metrics *observability.Metrics,
) *Worker {
	if queueSize <= 0 {
		queueSize = 1024
	}
	return &Worker{
		minter:   minter,
		requests: make(chan Request, queueSize),
		onMinted: onMinted,
		logger:   observability.NewLogger("mint_worker"),
		metrics:  metrics,
		pending:  list.New(),
	}
}

// Enqueue submits a mint request. Non-blocking: when the queue is full the
// request is dropped with a log line, since a stuck collaborator must not
// stall registration.
func (w *Worker) Enqueue(tournamentID, account uuid.UUID) {
	select {
	case w.requests <- Request{TournamentID: tournamentID, Account: account}:
	default:
		w.logger.Warn().
			Str("tournament_id", tournamentID.String()).
			Str("account", account.String()).
			Msg("mint queue full, dropping request")
	}
}

// Run processes mint requests until the context is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case req := <-w.requests:
			w.attempt(ctx, req)

		case <-ticker.C:
			w.retryDue(ctx, time.Now())
		}
	}
}

// PendingCount reports the number of parked retries. Only meaningful from
// the Run goroutine or after Run stops; exposed for tests.
func (w *Worker) PendingCount() int {
	return w.pending.Len()
}

func (w *Worker) attempt(ctx context.Context, req Request) {
	handle, err := w.minter.MintTo(ctx, req.TournamentID, req.Account)
	if err != nil {
		req.Attempts++
		backoff := retryBase << (req.Attempts - 1)
		if backoff > retryMax {
			backoff = retryMax
		}
		req.NextTry = time.Now().Add(backoff)
		w.pending.PushBack(req)

		if w.metrics != nil {
			w.metrics.MintRequests.WithLabelValues("failed").Inc()
		}
		w.logger.Warn().
			Err(err).
			Str("tournament_id", req.TournamentID.String()).
			Str("account", req.Account.String()).
			Int("attempts", req.Attempts).
			Dur("backoff", backoff).
			Msg("mint failed, parked for retry")
		return
	}

	if w.metrics != nil {
		w.metrics.MintRequests.WithLabelValues("ok").Inc()
	}
	w.logger.Info().
		Str("tournament_id", req.TournamentID.String()).
		Str("account", req.Account.String()).
		Str("token_handle", handle).
		Msg("minted")

	if w.onMinted != nil {
		w.onMinted(req.TournamentID, req.Account, handle)
	}
}

func (w *Worker) retryDue(ctx context.Context, now time.Time) {
	for e := w.pending.Front(); e != nil; {
		next := e.Next()
		req := e.Value.(Request)
		if !req.NextTry.After(now) {
			w.pending.Remove(e)
			if w.metrics != nil {
				w.metrics.MintRetries.Inc()
			}
			w.attempt(ctx, req)
		}
		e = next
	}
}
