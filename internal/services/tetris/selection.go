package tetris

import (
	"math"
	"math/rand"

	"github.com/rs/zerolog"

	"github.com/progate-hackathon-strawberry-flavor/TETRAIS-backend/internal/models/tetris"
)

// WeightProvider は評価順（最悪→最善）に並んだ7つの出現確率を提供する設定側のコラボレーターです。
type WeightProvider interface {
	PieceWeights() []float64
}

// StaticWeights は固定の重みベクトルです。
type StaticWeights []float64

// PieceWeights は重みベクトルのコピーを返します。
func (w StaticWeights) PieceWeights() []float64 {
	return append([]float64(nil), w...)
}

// Selection は選択されたピースです。
type Selection struct {
	Mino  tetris.Mino `json:"mino"`
	Spite bool        `json:"spite"` // スパイトによって強制的に選ばれた場合はtrue
}

// SelectionPolicy は評価順のリストから重み付き乱択で次のピースを選びます。
// スパイトモードでは、前回のスポーンで最も必要とされた（最善の）ピースが
// 今回の最悪のピースと一致した場合、重みを無視してそのピースを強制的に選びます。
type SelectionPolicy struct {
	rng        *rand.Rand
	spiteMode  bool
	mostNeeded tetris.PieceKind // 前回のスポーンで最善だったピース
	logger     zerolog.Logger
}

// NewSelectionPolicy は新しい SelectionPolicy を返します。
func NewSelectionPolicy(rng *rand.Rand, spiteMode bool, logger zerolog.Logger) *SelectionPolicy {
	return &SelectionPolicy{rng: rng, spiteMode: spiteMode, logger: logger}
}

// Reset は前回のスポーンの記録を消去します。新しいゲームの開始時に呼び出します。
func (sp *SelectionPolicy) Reset() {
	sp.mostNeeded = tetris.KindNone
}

// Select は次のピースを選びます。
//
// Parameters:
//   ranking : 最悪→最善の順に並んだ評価結果
//   weights : ranking と同じ順序の確率ベクトル（合計1）
// Returns:
//   Selection: 選ばれたピースとスパイトかどうか
func (sp *SelectionPolicy) Select(ranking []Suggestion, weights []float64) Selection {
	if len(ranking) == 0 {
		kind := tetris.PieceKinds[sp.rng.Intn(len(tetris.PieceKinds))]
		return Selection{Mino: tetris.MinoOf(kind)}
	}

	remembered := sp.mostNeeded
	sp.mostNeeded = ranking[len(ranking)-1].Mino.Kind

	worst := ranking[0].Mino
	if sp.spiteMode && remembered != tetris.KindNone && worst.Kind == remembered {
		return Selection{Mino: worst.Clone(), Spite: true}
	}

	if !validWeights(weights, len(ranking)) {
		sp.logger.Warn().Int("weights", len(weights)).Int("ranking", len(ranking)).
			Msg("piece weights are invalid, falling back to uniform selection")
		return Selection{Mino: ranking[sp.rng.Intn(len(ranking))].Mino.Clone()}
	}

	r := sp.rng.Float64()
	cumulative := 0.0
	for i, w := range weights {
		cumulative += w
		if r <= cumulative {
			return Selection{Mino: ranking[i].Mino.Clone()}
		}
	}
	// 浮動小数点の誤差で合計が1に届かなかった場合は最善のピース
	return Selection{Mino: ranking[len(ranking)-1].Mino.Clone()}
}

// validWeights は重みベクトルが ranking と同じ長さで、有限かつ非負の値からなり、合計が正であるかを返します。
func validWeights(weights []float64, n int) bool {
	if len(weights) != n {
		return false
	}
	sum := 0.0
	for _, w := range weights {
		if math.IsNaN(w) || math.IsInf(w, 0) || w < 0 {
			return false
		}
		sum += w
	}
	return sum > 0
}
