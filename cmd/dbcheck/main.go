package main

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/progate-hackathon-strawberry-flavor/TETRAIS-backend/internal/config"
	"github.com/progate-hackathon-strawberry-flavor/TETRAIS-backend/internal/database"
)

// dbcheck はデータベースへの接続とスキーマの作成を確認するツールです。
func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if cfg.DatabaseURL == "" {
		log.Fatal().Msg("DATABASE_URL is not set")
	}

	dbService, err := database.NewDatabaseService(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer dbService.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var version string
	if err := dbService.DB.QueryRowContext(ctx, "SELECT version()").Scan(&version); err != nil {
		log.Warn().Err(err).Msg("SELECT version() failed")
	} else {
		log.Info().Str("version", version).Msg("database version")
	}

	if err := dbService.EnsureSchema(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to ensure schema")
	}

	top, err := database.NewResultRepository(dbService.DB).GetTopResults(1)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to read results table")
	}
	log.Info().Int("top_results", len(top)).Msg("database connection and schema OK")
}
