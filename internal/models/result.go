package models

import (
	"encoding/json"
	"time"
)

// Result はresultsテーブルのレコードに対応する構造体です。
type Result struct {
	ID         int64           `json:"id"`
	UserID     string          `json:"user_id"` // UUID
	Score      int             `json:"score"`
	Lines      int             `json:"lines"`
	Level      int             `json:"level"`
	FinalBoard json.RawMessage `json:"final_board,omitempty"` // ゲームオーバー時の盤面（JSONB）
	CreatedAt  time.Time       `json:"created_at"`
}

// ResultResponse はAPI レスポンス用の構造体です。
type ResultResponse struct {
	ID        int64     `json:"id"`
	UserID    string    `json:"user_id"`
	Score     int       `json:"score"`
	Lines     int       `json:"lines"`
	Level     int       `json:"level"`
	CreatedAt time.Time `json:"created_at"`
	Rank      int       `json:"rank"` // ランキング順位
}

// GameCreateResponse はゲーム作成APIのレスポンスです。
type GameCreateResponse struct {
	GameID string `json:"game_id"`
	UserID string `json:"user_id,omitempty"`
}

// GameActionRequest はゲーム操作APIのリクエストです。WebSocket経由のメッセージも同じ形式です。
type GameActionRequest struct {
	Action string `json:"action"`
}

// GameActionResponse はゲーム操作APIのレスポンスです。
type GameActionResponse struct {
	Applied bool   `json:"applied"`
	Status  string `json:"status"`
}
