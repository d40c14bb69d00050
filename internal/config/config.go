package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DefaultPieceWeights は評価順（最悪→最善）の出現確率の既定値です。
const DefaultPieceWeights = "0.30,0.22,0.17,0.12,0.09,0.06,0.04"

const pieceWeightCount = 7

// Config はアプリケーションの設定値です。
type Config struct {
	Port                string
	AppEnv              string
	DatabaseURL         string        // 空の場合はリザルトの保存を無効にする
	JWTSecret           string        // SUPABASE_JWT_SECRET
	BypassAuth          bool          // テスト用に認証をバイパスする
	AllowedOrigins      []string      // CORSで許可するオリジン
	PieceWeights        []float64     // 評価順（最悪→最善）の出現確率
	SpiteMode           bool          // スパイトモード
	CascadeStepInterval time.Duration // カスケードを1段進める間隔
	TickInterval        time.Duration // セッションマネージャーがゲームを進める間隔
	HighScoreTableSize  int           // ハイスコア入力の対象となる順位
	LogLevel            zerolog.Level
}

// IsProduction は本番環境かどうかを返します。
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// PieceWeightsOrDefault は出現確率ベクトルを返します。WeightProvider として使えます。
func (c *Config) PieceWeightsOrDefault() []float64 {
	if len(c.PieceWeights) == 0 {
		w, _ := ParsePieceWeights(DefaultPieceWeights)
		return w
	}
	return append([]float64(nil), c.PieceWeights...)
}

// Load は .env（本番環境以外）と環境変数から設定を読み込みます。
//
// Returns:
//   *Config: 読み込んだ設定
//   error  : 値の形式が不正な場合
func Load() (*Config, error) {
	if os.Getenv("APP_ENV") != "production" {
		if err := godotenv.Load(); err != nil {
			log.Debug().Err(err).Msg("no .env file loaded (this is fine in production)")
		}
	}
	return FromEnv(os.Getenv)
}

// FromEnv は getenv から設定を読み込みます。テストでは os.Getenv の代わりにマップを渡せます。
func FromEnv(getenv func(string) string) (*Config, error) {
	cfg := &Config{
		Port:        valueOr(getenv("PORT"), "8080"),
		AppEnv:      valueOr(getenv("APP_ENV"), "development"),
		DatabaseURL: getenv("DATABASE_URL"),
		JWTSecret:   getenv("SUPABASE_JWT_SECRET"),
	}

	var err error
	if cfg.BypassAuth, err = parseBool(getenv("BYPASS_AUTH"), false); err != nil {
		return nil, fmt.Errorf("BYPASS_AUTH の形式が不正です: %w", err)
	}
	if cfg.SpiteMode, err = parseBool(getenv("SPITE_MODE"), false); err != nil {
		return nil, fmt.Errorf("SPITE_MODE の形式が不正です: %w", err)
	}
	if cfg.PieceWeights, err = ParsePieceWeights(valueOr(getenv("PIECE_WEIGHTS"), DefaultPieceWeights)); err != nil {
		return nil, fmt.Errorf("PIECE_WEIGHTS の形式が不正です: %w", err)
	}
	if cfg.CascadeStepInterval, err = parseDuration(getenv("CASCADE_STEP_INTERVAL"), 500*time.Millisecond); err != nil {
		return nil, fmt.Errorf("CASCADE_STEP_INTERVAL の形式が不正です: %w", err)
	}
	if cfg.TickInterval, err = parseDuration(getenv("TICK_INTERVAL"), 50*time.Millisecond); err != nil {
		return nil, fmt.Errorf("TICK_INTERVAL の形式が不正です: %w", err)
	}
	if cfg.HighScoreTableSize, err = parsePositiveInt(getenv("HIGH_SCORE_TABLE_SIZE"), 10); err != nil {
		return nil, fmt.Errorf("HIGH_SCORE_TABLE_SIZE の形式が不正です: %w", err)
	}
	if cfg.LogLevel, err = zerolog.ParseLevel(strings.ToLower(valueOr(getenv("LOG_LEVEL"), "info"))); err != nil {
		return nil, fmt.Errorf("LOG_LEVEL の形式が不正です: %w", err)
	}

	origins := valueOr(getenv("ALLOWED_ORIGINS"), "http://localhost:3000")
	for _, o := range strings.Split(origins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			cfg.AllowedOrigins = append(cfg.AllowedOrigins, o)
		}
	}

	return cfg, nil
}

// ParsePieceWeights はカンマ区切りの7つの確率をパースします。
// 合計が1でない場合は正規化します。負の値や合計0は不正です。
func ParsePieceWeights(s string) ([]float64, error) {
	parts := strings.Split(s, ",")
	if len(parts) != pieceWeightCount {
		return nil, fmt.Errorf("%d個の値が必要ですが %d個です", pieceWeightCount, len(parts))
	}

	weights := make([]float64, len(parts))
	sum := 0.0
	for i, p := range parts {
		w, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("%d番目の値 %q: %w", i, p, err)
		}
		if w < 0 || math.IsNaN(w) || math.IsInf(w, 0) {
			return nil, fmt.Errorf("%d番目の値 %q は0以上の有限値である必要があります", i, p)
		}
		weights[i] = w
		sum += w
	}
	if sum <= 0 {
		return nil, fmt.Errorf("合計が0です")
	}
	for i := range weights {
		weights[i] /= sum
	}
	return weights, nil
}

// SetupLogger はグローバルロガーを設定します。本番環境以外ではコンソール出力を使います。
func (c *Config) SetupLogger() {
	zerolog.SetGlobalLevel(c.LogLevel)
	zerolog.TimeFieldFormat = time.RFC3339
	if !c.IsProduction() {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
}

func valueOr(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func parseBool(v string, def bool) (bool, error) {
	if v == "" {
		return def, nil
	}
	return strconv.ParseBool(v)
}

func parseDuration(v string, def time.Duration) (time.Duration, error) {
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("正の値である必要があります: %s", v)
	}
	return d, nil
}

func parsePositiveInt(v string, def int) (int, error) {
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, fmt.Errorf("正の値である必要があります: %d", n)
	}
	return n, nil
}
