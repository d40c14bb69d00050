package handlers

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// PublicHandler handles public API endpoints
type PublicHandler struct {
	db       *sql.DB // nil の場合はデータベースなしで動作している
	sessions func() int
}

// NewPublicHandler creates a new instance of PublicHandler
func NewPublicHandler(db *sql.DB, sessionCount func() int) *PublicHandler {
	return &PublicHandler{
		db:       db,
		sessions: sessionCount,
	}
}

// Health はサーバーとデータベースの状態を返します。
// GET /api/health
func (h *PublicHandler) Health(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	dbStatus := "disabled"
	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.PingContext(ctx); err != nil {
			log.Warn().Err(err).Msg("health check: database ping failed")
			dbStatus = "down"
			status = http.StatusServiceUnavailable
		} else {
			dbStatus = "up"
		}
	}

	sessions := 0
	if h.sessions != nil {
		sessions = h.sessions()
	}

	WriteJSONResponse(w, status, map[string]interface{}{
		"status":   http.StatusText(status),
		"database": dbStatus,
		"sessions": sessions,
	})
}
