package api

import (
	"database/sql"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/progate-hackathon-strawberry-flavor/TETRAIS-backend/internal/api/handlers"
	"github.com/progate-hackathon-strawberry-flavor/TETRAIS-backend/internal/api/middleware"
	"github.com/progate-hackathon-strawberry-flavor/TETRAIS-backend/internal/database"
	"github.com/progate-hackathon-strawberry-flavor/TETRAIS-backend/internal/services/tetris"
)

// Dependencies はルーターが使うサービスです。
type Dependencies struct {
	SessionManager *tetris.SessionManager
	Results        database.ResultRepository // nil の場合、結果APIは 503 を返す
	DB             *sql.DB                   // ヘルスチェック用（nil可）
	AllowedOrigins []string
	JWTSecret      string
	BypassAuth     bool
}

// NewRouter はAPIのルーティングを設定した http.Handler を返します。
func NewRouter(d Dependencies) http.Handler {
	gameHandler := handlers.NewGameHandler(d.SessionManager, d.AllowedOrigins)
	resultHandler := handlers.NewResultHandler(d.Results)
	publicHandler := handlers.NewPublicHandler(d.DB, d.SessionManager.SessionCount)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(middleware.RequestLogger)
	r.Use(middleware.CORSHandler(d.AllowedOrigins))

	// 認証不要な公開エンドポイント
	r.Get("/api/health", publicHandler.Health)

	// 匿名プレイ（結果は保存されない）
	r.Post("/api/games", gameHandler.CreateGame)
	r.Get("/api/games/{gameID}", gameHandler.GetGame)
	r.Post("/api/games/{gameID}/actions", gameHandler.PostAction)
	r.Get("/api/games/{gameID}/suggestions", gameHandler.GetSuggestions)
	r.Get("/api/games/{gameID}/report", gameHandler.GetReport)
	r.Get("/api/games/{gameID}/ws", gameHandler.HandleWebSocket)

	// ランキング
	r.Get("/api/results", resultHandler.GetTopResults)
	r.Get("/api/results/user/{userID}", resultHandler.GetUserResult)

	// 認証が必要なエンドポイント
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewAuthMiddleware(d.JWTSecret, d.BypassAuth))
		r.Post("/api/protected/games", gameHandler.CreateGame)
		r.Post("/api/protected/games/{gameID}/actions", gameHandler.PostAction)
		r.Get("/api/protected/games/{gameID}/ws", gameHandler.HandleWebSocket)
		r.Get("/api/protected/results/me", resultHandler.GetMyResult)
	})

	return r
}
