package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

// echoUserHandler はContextのユーザーIDをボディに書き出します。
func echoUserHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, ok := GetUserIDFromContext(r.Context())
		if !ok {
			w.WriteHeader(http.StatusTeapot)
			return
		}
		w.Write([]byte(userID))
	})
}

func signToken(t *testing.T, method jwt.SigningMethod, key any, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return s
}

func serveWithAuth(secret string, bypass bool, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/protected/results/me", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	NewAuthMiddleware(secret, bypass)(echoUserHandler()).ServeHTTP(rec, req)
	return rec
}

// TestAuthMiddleware_ValidToken は正しいJWTでユーザーIDがContextに設定されることをテストします。
func TestAuthMiddleware_ValidToken(t *testing.T) {
	token := signToken(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{
		"sub": "0b6f3c1e-2d4a-4e8b-9c7d-5a1f2e3d4c5b",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	rec := serveWithAuth(testSecret, false, "Bearer "+token)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "0b6f3c1e-2d4a-4e8b-9c7d-5a1f2e3d4c5b", rec.Body.String())
}

// TestAuthMiddleware_Rejects は不正なAuthorizationヘッダーやトークンが401で拒否されることをテストします。
func TestAuthMiddleware_Rejects(t *testing.T) {
	expired := signToken(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{
		"sub": "user-1",
		"exp": time.Now().Add(-time.Hour).Unix(),
	})
	wrongKey := signToken(t, jwt.SigningMethodHS256, []byte("other-secret"), jwt.MapClaims{"sub": "user-1"})
	noSubject := signToken(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"role": "authenticated"})

	tests := []struct {
		name   string
		header string
	}{
		{name: "missing header", header: ""},
		{name: "not bearer", header: "Basic dXNlcjpwYXNz"},
		{name: "garbage token", header: "Bearer not-a-jwt"},
		{name: "expired", header: "Bearer " + expired},
		{name: "wrong key", header: "Bearer " + wrongKey},
		{name: "missing sub", header: "Bearer " + noSubject},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serveWithAuth(testSecret, false, tt.header)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			assert.Contains(t, rec.Body.String(), `"error"`)
		})
	}
}

// TestAuthMiddleware_WebSocketQueryToken はWebSocketのアップグレード要求に限りクエリのトークンを受け付けることをテストします。
func TestAuthMiddleware_WebSocketQueryToken(t *testing.T) {
	token := signToken(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{
		"sub": "user-ws",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	handler := NewAuthMiddleware(testSecret, false)(echoUserHandler())

	upgrade := httptest.NewRequest(http.MethodGet, "/api/protected/games/g1/ws?token="+token, nil)
	upgrade.Header.Set("Connection", "Upgrade")
	upgrade.Header.Set("Upgrade", "websocket")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, upgrade)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user-ws", rec.Body.String())

	// 通常のリクエストではクエリのトークンを受け付けない
	plain := httptest.NewRequest(http.MethodGet, "/api/protected/results/me?token="+token, nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, plain)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

// TestAuthMiddleware_MissingSecret はシークレット未設定時に500を返すことをテストします。
func TestAuthMiddleware_MissingSecret(t *testing.T) {
	rec := serveWithAuth("", false, "Bearer something")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

// TestAuthMiddleware_Bypass は認証バイパス時にリクエストごとに異なるユーザーIDが設定されることをテストします。
func TestAuthMiddleware_Bypass(t *testing.T) {
	first := serveWithAuth("", true, "")
	second := serveWithAuth("", true, "")

	require.Equal(t, http.StatusOK, first.Code)
	_, err := uuid.Parse(first.Body.String())
	assert.NoError(t, err)
	assert.NotEqual(t, first.Body.String(), second.Body.String())
}

// TestCORSHandler は許可されたオリジンだけにCORSヘッダーが付くことをテストします。
func TestCORSHandler(t *testing.T) {
	handler := CORSHandler([]string{"https://tetrais.example"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	allowed := httptest.NewRequest(http.MethodGet, "/api/results", nil)
	allowed.Header.Set("Origin", "https://tetrais.example")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, allowed)
	assert.Equal(t, "https://tetrais.example", rec.Header().Get("Access-Control-Allow-Origin"))

	denied := httptest.NewRequest(http.MethodGet, "/api/results", nil)
	denied.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, denied)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
