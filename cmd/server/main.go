package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/hearthchat/hearth/internal/credstore"
	"github.com/hearthchat/hearth/internal/server"
)

func main() {
	cfg := server.LoadConfig()

	var logger zerolog.Logger
	if cfg.IsDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().
			Timestamp().
			Logger()
	} else {
		logger = zerolog.New(os.Stdout).
			With().
			Timestamp().
			Logger()
	}

	ctx := context.Background()

	var creds credstore.Store
	if cfg.RequireAuth {
		store, err := credstore.NewSQLiteStore(ctx, cfg.CredDBPath)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to open credential store")
		}
		defer store.Close()
		creds = store
		logger.Info().Str("path", cfg.CredDBPath).Msg("credential store opened")
	}

	hub := server.NewHub(logger)
	gateway := server.NewGateway(hub, creds, cfg.RequireAuth, logger)
	router := server.NewRouter(hub, gateway, cfg, logger)
	srv := server.CreateServer(cfg.Port, router)

	go func() {
		logger.Info().Str("port", cfg.Port).Str("env", cfg.Env).Msg("starting Hearth chat server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down")
	if err := server.ShutdownServer(srv, 15*time.Second, logger); err != nil {
		logger.Error().Err(err).Msg("forced HTTP shutdown")
	}
	if err := hub.Shutdown(5 * time.Second); err != nil {
		logger.Warn().Err(err).Msg("hub shutdown incomplete")
	}

	logger.Info().Msg("server stopped")
}
