package config

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envFrom(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

// TestFromEnv_Defaults は環境変数が空の場合の既定値をテストします。
func TestFromEnv_Defaults(t *testing.T) {
	cfg, err := FromEnv(envFrom(nil))
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "development", cfg.AppEnv)
	assert.False(t, cfg.IsProduction())
	assert.False(t, cfg.BypassAuth)
	assert.False(t, cfg.SpiteMode)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.AllowedOrigins)
	assert.Equal(t, 500*time.Millisecond, cfg.CascadeStepInterval)
	assert.Equal(t, 50*time.Millisecond, cfg.TickInterval)
	assert.Equal(t, 10, cfg.HighScoreTableSize)
	assert.Equal(t, zerolog.InfoLevel, cfg.LogLevel)
	require.Len(t, cfg.PieceWeights, 7)
	assert.InDelta(t, 0.30, cfg.PieceWeights[0], 1e-9)
	assert.InDelta(t, 0.04, cfg.PieceWeights[6], 1e-9)
}

// TestFromEnv_Overrides は環境変数による設定の上書きをテストします。
func TestFromEnv_Overrides(t *testing.T) {
	cfg, err := FromEnv(envFrom(map[string]string{
		"PORT":                  "9000",
		"APP_ENV":               "production",
		"DATABASE_URL":          "postgres://localhost/tetrais",
		"SUPABASE_JWT_SECRET":   "secret",
		"BYPASS_AUTH":           "true",
		"SPITE_MODE":            "1",
		"ALLOWED_ORIGINS":       "https://a.example, https://b.example,",
		"PIECE_WEIGHTS":         "1,1,1,1,1,1,2",
		"CASCADE_STEP_INTERVAL": "250ms",
		"TICK_INTERVAL":         "20ms",
		"HIGH_SCORE_TABLE_SIZE": "5",
		"LOG_LEVEL":             "DEBUG",
	}))
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Port)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, "postgres://localhost/tetrais", cfg.DatabaseURL)
	assert.Equal(t, "secret", cfg.JWTSecret)
	assert.True(t, cfg.BypassAuth)
	assert.True(t, cfg.SpiteMode)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	assert.Equal(t, 250*time.Millisecond, cfg.CascadeStepInterval)
	assert.Equal(t, 20*time.Millisecond, cfg.TickInterval)
	assert.Equal(t, 5, cfg.HighScoreTableSize)
	assert.Equal(t, zerolog.DebugLevel, cfg.LogLevel)
	assert.InDelta(t, 0.125, cfg.PieceWeights[0], 1e-9)
	assert.InDelta(t, 0.25, cfg.PieceWeights[6], 1e-9)
}

// TestFromEnv_Invalid は不正な環境変数がキー名付きのエラーになることをテストします。
func TestFromEnv_Invalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{name: "bypass auth", key: "BYPASS_AUTH", val: "maybe"},
		{name: "spite mode", key: "SPITE_MODE", val: "sometimes"},
		{name: "weights count", key: "PIECE_WEIGHTS", val: "0.5,0.5"},
		{name: "weights value", key: "PIECE_WEIGHTS", val: "a,b,c,d,e,f,g"},
		{name: "cascade interval", key: "CASCADE_STEP_INTERVAL", val: "-1s"},
		{name: "tick interval", key: "TICK_INTERVAL", val: "soon"},
		{name: "table size", key: "HIGH_SCORE_TABLE_SIZE", val: "0"},
		{name: "log level", key: "LOG_LEVEL", val: "loud"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromEnv(envFrom(map[string]string{tt.key: tt.val}))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.key)
		})
	}
}

// TestParsePieceWeights は出現確率の文字列のパースと正規化をテストします。
func TestParsePieceWeights(t *testing.T) {
	w, err := ParsePieceWeights("2, 2, 2, 2, 0, 0, 0")
	require.NoError(t, err)
	assert.Equal(t, []float64{0.25, 0.25, 0.25, 0.25, 0, 0, 0}, w)

	_, err = ParsePieceWeights("0,0,0,0,0,0,0")
	assert.Error(t, err)

	_, err = ParsePieceWeights("1,1,1,1,1,1,-1")
	assert.Error(t, err)

	_, err = ParsePieceWeights("1,1,1,1,1,1,NaN")
	assert.Error(t, err)
}

// TestPieceWeightsOrDefault_ReturnsCopy はPieceWeightsOrDefault がコピーを返すことをテストします。
func TestPieceWeightsOrDefault_ReturnsCopy(t *testing.T) {
	cfg := &Config{}
	assert.Len(t, cfg.PieceWeightsOrDefault(), 7)

	cfg.PieceWeights = []float64{1, 0, 0, 0, 0, 0, 0}
	w := cfg.PieceWeightsOrDefault()
	w[0] = 42
	assert.Equal(t, 1.0, cfg.PieceWeights[0])
}
