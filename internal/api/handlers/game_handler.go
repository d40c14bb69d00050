package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket" // WebSocketライブラリ
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/progate-hackathon-strawberry-flavor/TETRAIS-backend/internal/models"
	"github.com/progate-hackathon-strawberry-flavor/TETRAIS-backend/internal/services/tetris"
)

// GameHandler はゲーム関連のHTTPリクエスト（ゲーム作成、操作、WebSocket接続）を処理します。
type GameHandler struct {
	sessionManager *tetris.SessionManager
	upgrader       websocket.Upgrader
	logger         zerolog.Logger
}

// NewGameHandler は新しい GameHandler インスタンスを作成します。
//
// Parameters:
//   sm             : セッションマネージャーへのポインタ
//   allowedOrigins : WebSocket接続を許可するオリジン（空の場合はすべて許可）
// Returns:
//   *GameHandler: 新しく作成された GameHandler のポインタ
func NewGameHandler(sm *tetris.SessionManager, allowedOrigins []string) *GameHandler {
	origins := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		origins[o] = true
	}
	return &GameHandler{
		sessionManager: sm,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				// ブラウザ以外のクライアントは Origin を送らない
				return origin == "" || len(origins) == 0 || origins[origin]
			},
		},
		logger: log.With().Str("component", "GameHandler").Logger(),
	}
}

// CreateGame は新しいゲームを作成して開始します。
// 認証ミドルウェアの後ろで呼ばれた場合はユーザーのゲームとして作成し、終了時に結果を保存します。
// POST /api/games, POST /api/protected/games
func (h *GameHandler) CreateGame(w http.ResponseWriter, r *http.Request) {
	userID, _ := ExtractUserIDFromContext(r)

	session, err := h.sessionManager.CreateSession(userID)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to create game session")
		WriteErrorResponse(w, http.StatusServiceUnavailable, "ゲームの作成に失敗しました")
		return
	}

	WriteJSONResponse(w, http.StatusCreated, models.GameCreateResponse{
		GameID: session.ID,
		UserID: session.UserID,
	})
}

// GetGame はゲームの現在の状態を返します。
// GET /api/games/{gameID}
func (h *GameHandler) GetGame(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.sessionManager.Snapshot(chi.URLParam(r, "gameID"))
	if err != nil {
		h.writeSessionError(w, err)
		return
	}
	WriteJSONResponse(w, http.StatusOK, snapshot)
}

// PostAction はゲームに操作を適用します。
// ユーザーが所有するゲームは POST /api/protected/games/{gameID}/actions から所有者だけが操作できます。
// POST /api/games/{gameID}/actions  body: {"action": "move_left"}
func (h *GameHandler) PostAction(w http.ResponseWriter, r *http.Request) {
	var req models.GameActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteErrorResponse(w, http.StatusBadRequest, "リクエストボディのパースに失敗しました")
		return
	}
	if req.Action == "" {
		WriteErrorResponse(w, http.StatusBadRequest, "actionが必要です")
		return
	}

	userID, _ := ExtractUserIDFromContext(r)
	applied, status, err := h.sessionManager.ApplyAction(chi.URLParam(r, "gameID"), userID, req.Action)
	if err != nil {
		h.writeSessionError(w, err)
		return
	}
	WriteJSONResponse(w, http.StatusOK, models.GameActionResponse{
		Applied: applied,
		Status:  string(status),
	})
}

// GetSuggestions は現在の盤面に対するピースのランキング（最悪→最善）を返します。
// GET /api/games/{gameID}/suggestions
func (h *GameHandler) GetSuggestions(w http.ResponseWriter, r *http.Request) {
	suggestions, err := h.sessionManager.Suggestions(chi.URLParam(r, "gameID"))
	if err != nil {
		h.writeSessionError(w, err)
		return
	}
	WriteJSONResponse(w, http.StatusOK, map[string]interface{}{
		"suggestions": suggestions,
	})
}

// GetReport はゲームオーバーのレポートを返します。
// GET /api/games/{gameID}/report
func (h *GameHandler) GetReport(w http.ResponseWriter, r *http.Request) {
	report, err := h.sessionManager.Report(chi.URLParam(r, "gameID"))
	if err != nil {
		h.writeSessionError(w, err)
		return
	}
	WriteJSONResponse(w, http.StatusOK, report)
}

// HandleWebSocket はWebSocket接続を確立し、SessionManager にクライアントとして登録します。
// 接続後はゲーム状態がプッシュされ、{"action": "..."} 形式のメッセージで操作できます。
// GET /api/games/{gameID}/ws
func (h *GameHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	gameID := chi.URLParam(r, "gameID")
	if _, ok := h.sessionManager.GetSession(gameID); !ok {
		WriteErrorResponse(w, http.StatusNotFound, "ゲームが見つかりません")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade がエラーレスポンスを書き込み済み
		h.logger.Warn().Err(err).Str("game_id", gameID).Msg("websocket upgrade failed")
		return
	}

	userID, _ := ExtractUserIDFromContext(r)
	if err := h.sessionManager.RegisterClient(gameID, userID, conn); err != nil {
		h.logger.Warn().Err(err).Str("game_id", gameID).Msg("failed to register client")
		conn.WriteJSON(map[string]string{"type": "error", "error": err.Error()})
		conn.Close()
	}
}

// writeSessionError は SessionManager のエラーをHTTPステータスに変換します。
func (h *GameHandler) writeSessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, tetris.ErrSessionNotFound):
		WriteErrorResponse(w, http.StatusNotFound, "ゲームが見つかりません")
	case errors.Is(err, tetris.ErrInvalidAction):
		WriteErrorResponse(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, tetris.ErrForbidden):
		WriteErrorResponse(w, http.StatusForbidden, "このゲームを操作する権限がありません")
	case errors.Is(err, tetris.ErrGameNotFinished):
		WriteErrorResponse(w, http.StatusConflict, "ゲームはまだ終了していません")
	default:
		h.logger.Error().Err(err).Msg("unexpected session error")
		WriteErrorResponse(w, http.StatusInternalServerError, "内部エラーが発生しました")
	}
}
