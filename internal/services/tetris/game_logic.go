package tetris

import (
	"math"
	"time"

	"github.com/progate-hackathon-strawberry-flavor/TETRAIS-backend/internal/models/tetris"
)

// ゲーム全体に影響する定数です。
const (
	LinesPerLevel          = 5                       // レベルアップに必要なライン数
	BaseDropInterval       = 1000 * time.Millisecond // 0ライン時の自動落下間隔
	MinDropInterval        = 50 * time.Millisecond   // 自動落下間隔の下限
	DefaultCascadeInterval = 500 * time.Millisecond  // カスケードを1段進める間隔
	CascadeMultiplier      = 1.5                     // カスケード中のライン消去に掛かる倍率

	earlySpeedUpLines = 5 // この本数までは 1.01 倍ずつ、以降は 1.0125 倍ずつ速くなる
)

// lineClearPoints は同時消去数ごとの基本点です（1〜4ライン）。
var lineClearPoints = [4]int{40, 100, 300, 1200}

// GetDropInterval は累計消去ライン数に基づいた自動落下間隔を計算して返します。
//
// Parameters:
//   lines : これまでに消去したライン数の合計
// Returns:
//   time.Duration: 自動落下間隔（最小 MinDropInterval）
func GetDropInterval(lines int) time.Duration {
	if lines < 0 {
		lines = 0
	}
	early := math.Pow(1.01, float64(min(lines, earlySpeedUpLines)))
	late := math.Pow(1.0125, float64(max(lines-earlySpeedUpLines, 0)))

	ms := float64(BaseDropInterval/time.Millisecond) / (early * late)
	interval := time.Duration(ms * float64(time.Millisecond))
	if interval < MinDropInterval {
		interval = MinDropInterval
	}
	return interval
}

// GetLevel は累計消去ライン数からレベルを返します（0始まり）。
func GetLevel(lines int) int {
	if lines < 0 {
		return 0
	}
	return lines / LinesPerLevel
}

// CalculateScore はライン消去による得点を計算します。
//
// Parameters:
//   clearedLines : 同時に消去したライン数（4を超える場合は4として扱う）
//   level        : 消去後のレベル
//   cascade      : カスケード（連鎖）による消去かどうか
// Returns:
//   int: 加算する得点
func CalculateScore(clearedLines int, level int, cascade bool) int {
	if clearedLines <= 0 {
		return 0
	}
	if clearedLines > len(lineClearPoints) {
		clearedLines = len(lineClearPoints)
	}
	score := lineClearPoints[clearedLines-1] * (level + 1)
	if cascade {
		score = int(float64(score) * CascadeMultiplier)
	}
	return score
}

// ApplyPlayerInput はプレイヤーの入力（アクション）に基づいて、ゲーム状態を更新します。
// トランスポート層（HTTP / WebSocket）から届く文字列のアクションをゲームの操作に振り分けます。
//
// Parameters:
//   g      : 更新するゲーム
//   action : プレイヤーが実行したアクション（例: "move_left", "rotate"）
// Returns:
//   bool: ゲーム状態が実際に変更された場合はtrue、変更されなかった場合はfalse
func ApplyPlayerInput(g *Game, action string) bool {
	switch action {
	case "move_left":
		return g.MoveLeft()
	case "move_right":
		return g.MoveRight()
	case "rotate", "rotate_right":
		return g.Rotate(tetris.Clockwise)
	case "rotate_left":
		return g.Rotate(tetris.CounterClockwise)
	case "soft_drop":
		return g.SoftDrop()
	case "hard_drop":
		return g.HardDrop()
	case "hold":
		return g.Hold()
	case "pause":
		return g.SetSuspended(true)
	case "resume":
		return g.SetSuspended(false)
	case "start", "restart":
		return g.Start()
	case "confirm_high_score":
		return g.CompleteHighScoreEntry()
	}
	return false
}

// IsKnownAction はアクション文字列が ApplyPlayerInput で扱えるものかどうかを返します。
func IsKnownAction(action string) bool {
	switch action {
	case "move_left", "move_right", "rotate", "rotate_right", "rotate_left",
		"soft_drop", "hard_drop", "hold", "pause", "resume", "start", "restart", "confirm_high_score":
		return true
	}
	return false
}
