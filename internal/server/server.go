// Package server assembles the HTTP surface of the escrow service.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"rpsarena/internal/config"
	"rpsarena/internal/handler"
	"rpsarena/internal/pkg/db"
	"rpsarena/internal/service"
	"rpsarena/internal/token"
)

// Server wraps the HTTP server with application dependencies.
type Server struct {
	cfg  *config.Config
	pool *db.Pool
	srv  *http.Server
}

// Dependencies holds everything the HTTP handlers need.
type Dependencies struct {
	Config         *config.Config
	Pool           *db.Pool
	Ledger         *token.Ledger
	DepositService *service.DepositService
	GameService    *service.GameService
}

// New creates a new Server instance with the given dependencies.
func New(deps *Dependencies) (*Server, error) {
	if deps.Config.Server.Addr == "" {
		return nil, fmt.Errorf("server address is required")
	}

	tokenHandler := handler.NewTokenHandler(deps.Ledger, deps.Config)
	depositHandler := handler.NewDepositHandler(deps.DepositService)
	gameHandler := handler.NewGameHandler(deps.GameService)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(handler.RequestLogger(log.Logger))

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		if err := deps.Pool.HealthCheck(req.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	r.Group(func(r chi.Router) {
		r.Use(handler.RequireSender)
		r.Route("/token", tokenHandler.Routes)
		r.Route("/deposits", depositHandler.Routes)
		r.Route("/games", gameHandler.Routes)
	})

	srv := &http.Server{
		Addr:         deps.Config.Server.Addr,
		Handler:      r,
		ReadTimeout:  deps.Config.Server.ReadTimeout,
		WriteTimeout: deps.Config.Server.WriteTimeout,
	}

	return &Server{cfg: deps.Config, pool: deps.Pool, srv: srv}, nil
}

// Start runs the HTTP server until Stop is called.
func (s *Server) Start() error {
	log.Info().Str("addr", s.srv.Addr).Msg("HTTP server listening")
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	log.Info().Msg("Shutting down HTTP server")
	return s.srv.Shutdown(ctx)
}
