package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/progate-hackathon-strawberry-flavor/TETRAIS-backend/internal/database"
)

const (
	defaultResultLimit = 50
	maxResultLimit     = 100
)

// ResultHandler はゲーム結果関連のハンドラーを管理する構造体です。
type ResultHandler struct {
	resultRepo database.ResultRepository
}

// NewResultHandler は新しいResultHandlerインスタンスを作成します。
// resultRepo が nil の場合、すべてのエンドポイントは 503 を返します。
func NewResultHandler(resultRepo database.ResultRepository) *ResultHandler {
	return &ResultHandler{
		resultRepo: resultRepo,
	}
}

func (h *ResultHandler) available(w http.ResponseWriter) bool {
	if h.resultRepo == nil {
		WriteErrorResponse(w, http.StatusServiceUnavailable, "結果の保存が無効です")
		return false
	}
	return true
}

// GetTopResults は上位ランキングを取得するハンドラーです。
// GET /api/results?limit=50
func (h *ResultHandler) GetTopResults(w http.ResponseWriter, r *http.Request) {
	if !h.available(w) {
		return
	}

	// limitパラメータを取得（範囲外や不正な値は既定値）
	limit := defaultResultLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsedLimit, err := strconv.Atoi(limitStr); err == nil && parsedLimit > 0 && parsedLimit <= maxResultLimit {
			limit = parsedLimit
		}
	}

	results, err := h.resultRepo.GetTopResults(limit)
	if err != nil {
		log.Error().Err(err).Msg("failed to get top results")
		WriteErrorResponse(w, http.StatusInternalServerError, "ゲーム結果取得に失敗しました")
		return
	}

	WriteJSONResponse(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"results": results,
	})
}

// GetUserResult は指定したユーザーのランキングを取得するハンドラーです。
// GET /api/results/user/{userID}
func (h *ResultHandler) GetUserResult(w http.ResponseWriter, r *http.Request) {
	h.writeUserRanking(w, chi.URLParam(r, "userID"))
}

// GetMyResult は認証済みユーザー自身のランキングを取得するハンドラーです。
// GET /api/protected/results/me
func (h *ResultHandler) GetMyResult(w http.ResponseWriter, r *http.Request) {
	userID, err := ExtractUserIDFromContext(r)
	if err != nil {
		WriteErrorResponse(w, http.StatusUnauthorized, err.Error())
		return
	}
	h.writeUserRanking(w, userID)
}

func (h *ResultHandler) writeUserRanking(w http.ResponseWriter, userID string) {
	if !h.available(w) {
		return
	}
	if userID == "" {
		WriteErrorResponse(w, http.StatusBadRequest, "user_idが指定されていません")
		return
	}

	userResult, err := h.resultRepo.GetUserRanking(userID)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("failed to get user result")
		WriteErrorResponse(w, http.StatusInternalServerError, "ユーザー結果取得に失敗しました")
		return
	}

	if userResult == nil {
		WriteJSONResponse(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"result":  nil,
			"message": "ユーザーのスコアが見つかりません",
		})
		return
	}

	WriteJSONResponse(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"result":  userResult,
	})
}
