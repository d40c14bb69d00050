package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQLドライバー
	"github.com/rs/zerolog/log"
)

// schemaStatements はアプリケーションが使うテーブルを作成するDDLです。何度実行しても安全です。
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS results (
		id            BIGSERIAL PRIMARY KEY,
		user_id       UUID        NOT NULL,
		score         INTEGER     NOT NULL,
		lines_cleared INTEGER     NOT NULL DEFAULT 0,
		level         INTEGER     NOT NULL DEFAULT 0,
		final_board   JSONB,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS results_score_idx ON results (score DESC, created_at ASC)`,
	`CREATE INDEX IF NOT EXISTS results_user_idx ON results (user_id)`,
}

// DatabaseService provides methods for interacting with the database.
type DatabaseService struct {
	DB *sql.DB
}

// NewDatabaseService creates a new instance of DatabaseService and establishes a database connection.
func NewDatabaseService(databaseURL string) (*DatabaseService, error) {
	logger := log.With().Str("component", "DatabaseService").Logger()
	logger.Info().Str("url_prefix", databaseURL[:min(len(databaseURL), 20)]).Msg("connecting to database")

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("データベースへの接続オブジェクト作成に失敗しました: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("データベースのPingに失敗しました。接続情報やネットワークを確認してください: %w", err)
	}

	logger.Info().Msg("connected to database")
	return &DatabaseService{DB: db}, nil
}

// EnsureSchema は必要なテーブルとインデックスを作成します。
func (s *DatabaseService) EnsureSchema(ctx context.Context) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクションの開始に失敗しました: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range schemaStatements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("スキーマの作成に失敗しました: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("トランザクションのコミットに失敗しました: %w", err)
	}
	return nil
}

// Close はデータベース接続を閉じます。
func (s *DatabaseService) Close() error {
	return s.DB.Close()
}
