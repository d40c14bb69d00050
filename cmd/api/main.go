package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/progate-hackathon-strawberry-flavor/TETRAIS-backend/internal/api"
	"github.com/progate-hackathon-strawberry-flavor/TETRAIS-backend/internal/config"
	"github.com/progate-hackathon-strawberry-flavor/TETRAIS-backend/internal/database"
	"github.com/progate-hackathon-strawberry-flavor/TETRAIS-backend/internal/services/tetris"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	cfg.SetupLogger()

	// データベースは任意。DATABASE_URL が無い場合は結果を保存しない
	deps := api.Dependencies{
		AllowedOrigins: cfg.AllowedOrigins,
		JWTSecret:      cfg.JWTSecret,
		BypassAuth:     cfg.BypassAuth,
	}
	var results database.ResultRepository
	if cfg.DatabaseURL != "" {
		dbService, err := database.NewDatabaseService(cfg.DatabaseURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer dbService.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err = dbService.EnsureSchema(ctx)
		cancel()
		if err != nil {
			log.Fatal().Err(err).Msg("failed to ensure schema")
		}
		results = database.NewResultRepository(dbService.DB)
		deps.Results = results
		deps.DB = dbService.DB
	} else {
		log.Warn().Msg("DATABASE_URL is not set; results will not be saved")
	}
	if cfg.BypassAuth {
		log.Warn().Msg("BYPASS_AUTH is enabled; do not use this in production")
	}

	sm := tetris.NewSessionManager(results, tetris.SessionSettings{
		Weights:            tetris.StaticWeights(cfg.PieceWeightsOrDefault()),
		SpiteMode:          cfg.SpiteMode,
		CascadeInterval:    cfg.CascadeStepInterval,
		TickInterval:       cfg.TickInterval,
		HighScoreTableSize: cfg.HighScoreTableSize,
	})
	go sm.Run()
	deps.SessionManager = sm

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           api.NewRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Bool("spite_mode", cfg.SpiteMode).Msg("Server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server...")
	sm.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}
	log.Info().Msg("server exited")
}
