// Package main is the entry point for the hand-game escrow service.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"rpsarena/internal/config"
	"rpsarena/internal/event"
	"rpsarena/internal/pkg/db"
	"rpsarena/internal/pkg/lock"
	"rpsarena/internal/repository"
	"rpsarena/internal/server"
	"rpsarena/internal/service"
	"rpsarena/internal/token"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	cfg, err := config.Load("config")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log.Info().Msg("Configuration loaded successfully")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dbPool, err := db.NewPool(ctx, &cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer dbPool.Close()

	if err := db.Migrate(ctx, dbPool); err != nil {
		log.Fatal().Err(err).Msg("Failed to run database migrations")
	}

	// Repositories and the token ledger
	accountRepo := repository.NewAccountRepository(dbPool)
	sessionRepo := repository.NewSessionRepository(dbPool)
	journalRepo := repository.NewJournalRepository(dbPool)
	ledger := token.NewLedger(dbPool)

	// Shared infrastructure
	addrLock := lock.NewAddressLock()
	recorder := event.NewRecorder(log.Logger)

	// Services
	depositService := service.NewDepositService(
		dbPool, accountRepo, journalRepo, ledger, addrLock,
		cfg.Contract.Address, log.Logger,
	)
	gameService := service.NewGameService(
		dbPool, accountRepo, sessionRepo, journalRepo, ledger, recorder, addrLock,
		cfg.Contract.Address, cfg.Game.MinTimeout, cfg.Game.MaxTimeout, log.Logger,
	)

	srv, err := server.New(&server.Dependencies{
		Config:         cfg,
		Pool:           dbPool,
		Ledger:         ledger,
		DepositService: depositService,
		GameService:    gameService,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create server")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Start()
	}()

	select {
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
	case err := <-errChan:
		if err != nil {
			log.Fatal().Err(err).Msg("Server failed")
		}
		return
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Graceful shutdown failed")
	}
	log.Info().Msg("Server stopped gracefully")
}
