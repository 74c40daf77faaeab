package server

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/btn-group/az-trading-competition/internal/command"
	"github.com/btn-group/az-trading-competition/internal/mint"
	"github.com/btn-group/az-trading-competition/internal/observability"
	"github.com/btn-group/az-trading-competition/internal/projection"
	"github.com/btn-group/az-trading-competition/internal/query"
)

// Submitter delivers commands to the engine loop.
type Submitter interface {
	Submit(ctx context.Context, cmd command.Command) error
}

// Deps holds everything the HTTP handlers reach for.
type Deps struct {
	Engine    Submitter
	Query     *query.Service
	Store     *projection.Store
	Mint      *mint.Worker // nil disables mint enqueue on registration
	DB        *sql.DB
	JWTSecret string
	Health    *observability.HealthChecker
}

// Server is the HTTP/JSON surface: public tournament and judge calls,
// read-model queries, and the JWT-guarded admin interface.
type Server struct {
	httpServer *http.Server
	deps       *Deps
	logger     zerolog.Logger
}

func New(addr string, deps *Deps) *Server {
	s := &Server{
		deps:   deps,
		logger: observability.NewLogger("http"),
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(30 * time.Second))

	if deps.Health != nil {
		r.Get("/healthz", deps.Health.LivenessHandler)
		r.Get("/readyz", deps.Health.ReadinessHandler)
	}

	r.Route("/v1", func(r chi.Router) {
		// Open read side.
		r.Get("/tournaments", s.handleListTournaments)
		r.Get("/tournaments/{id}", s.handleGetTournament)
		r.Get("/tournaments/{id}/ranking", s.handleGetRanking)
		r.Get("/fees", s.handleGetFees)
		r.Get("/accounts/{account}/journal", s.handleJournalHistory)

		// Authenticated callers (participants and judges).
		r.Group(func(r chi.Router) {
			r.Use(Authenticate(deps.JWTSecret))

			r.Post("/tournaments/{id}/register", s.handleRegister)
			r.Post("/tournaments/{id}/close", s.handleClose)
			r.Post("/tournaments/{id}/judge/update", s.handleJudgeUpdate)
			r.Post("/tournaments/{id}/judge/place", s.handleJudgePlace)
			r.Post("/tournaments/{id}/judge/reset", s.handleJudgeReset)
			r.Post("/tournaments/{id}/rescue", s.handleRescue)
		})

		// Admin-only surface.
		r.Group(func(r chi.Router) {
			r.Use(Authenticate(deps.JWTSecret))
			r.Use(RequireRole("admin"))

			r.Post("/tournaments", s.handleCreateTournament)
			r.Post("/tournaments/{id}/price/manual", s.handleManualPrice)
			r.Post("/fees/withdraw", s.handleWithdrawFees)
			r.Get("/admin/integrity", s.handleVerifyIntegrity)
			r.Post("/admin/projections/rebuild", s.handleRebuildProjections)
		})
	})

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: r,
	}
	return s
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Run serves until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	s.logger.Info().Str("addr", s.httpServer.Addr).Msg("http server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
