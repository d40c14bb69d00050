package tetris

import (
	"math"
	"math/rand"
	"sort"

	"github.com/progate-hackathon-strawberry-flavor/TETRAIS-backend/internal/models/tetris"
)

// NoPlacementScore は有効な配置が1つもないピースの評価値です。
// JSON にそのまま載せられるよう -Inf の代わりに最小の有限値を使います。
const NoPlacementScore = -math.MaxFloat64

// spawnColumnMin は配置探索を始める左端の列です（形状の左側の空き列を考慮）。
const spawnColumnMin = -2

// Placement はピースの着地位置です。Rotation は時計回りの回転回数です。
type Placement struct {
	Rotation int `json:"rotation"`
	X        int `json:"x"`
	Y        int `json:"y"`
}

// Suggestion はピースの種類ごとの最善の評価結果です。
type Suggestion struct {
	Mino      tetris.Mino `json:"mino"`
	Score     float64     `json:"score"`
	Placement *Placement  `json:"placement,omitempty"`
}

// SuggestionEngine は次に出すピースを評価する探索エンジンです。
// 乱数は盤面が空の場合の並び替えにのみ使います。
type SuggestionEngine struct {
	rng *rand.Rand
}

// NewSuggestionEngine は新しい SuggestionEngine を返します。
func NewSuggestionEngine(rng *rand.Rand) *SuggestionEngine {
	return &SuggestionEngine{rng: rng}
}

// GetPieceSuggestions は7種類のピースを、到達可能な最善の盤面評価が低い順（最悪→最善）に並べて返します。
// 盤面が空の場合は評価しても差がないため、シミュレーションを省略してランダムな順序で返します。
//
// Parameters:
//   b : スポーン時点の盤面
// Returns:
//   []Suggestion: 長さ7。index 0 が最悪、index 6 が最善
func (e *SuggestionEngine) GetPieceSuggestions(b tetris.Board) []Suggestion {
	suggestions := make([]Suggestion, 0, len(tetris.PieceKinds))

	if b.IsEmpty() {
		for _, kind := range tetris.PieceKinds {
			suggestions = append(suggestions, Suggestion{Mino: tetris.MinoOf(kind)})
		}
		e.rng.Shuffle(len(suggestions), func(i, j int) {
			suggestions[i], suggestions[j] = suggestions[j], suggestions[i]
		})
		return suggestions
	}

	for _, kind := range tetris.PieceKinds {
		mino := tetris.MinoOf(kind)
		placement, score, ok := BestPlacement(b, mino)
		s := Suggestion{Mino: mino, Score: score}
		if ok {
			s.Placement = &placement
		}
		suggestions = append(suggestions, s)
	}

	sort.SliceStable(suggestions, func(i, j int) bool {
		return suggestions[i].Score < suggestions[j].Score
	})
	return suggestions
}

// BestPlacement は4方向の回転と全ての列についてハードドロップをシミュレーションし、
// 評価値が最大になる配置を返します。
//
// Parameters:
//   b    : 現在の盤面
//   mino : 評価するピース
// Returns:
//   Placement: 最善の配置
//   float64  : その配置での評価値（有効な配置がない場合は NoPlacementScore）
//   bool     : 有効な配置が見つかった場合はtrue
func BestPlacement(b tetris.Board, mino tetris.Mino) (Placement, float64, bool) {
	best := NoPlacementScore
	var bestPlacement Placement
	found := false

	shape := mino.Shape
	for r := 0; r < 4; r++ {
		for x := spawnColumnMin; x < b.Width(); x++ {
			p := &tetris.Player{Pos: tetris.Position{X: x, Y: 0}, Mino: tetris.Mino{Kind: mino.Kind, Shape: shape}}
			if !withinColumns(p, b.Width()) {
				continue
			}

			p.Pos.Y += b.DropDistance(p)

			scratch, ok := placeOnScratch(b, p)
			if !ok {
				continue
			}
			if score := EvaluateBoard(scratch); !found || score > best {
				best = score
				bestPlacement = Placement{Rotation: r, X: x, Y: p.Pos.Y}
				found = true
			}
		}
		shape = tetris.Rotate(shape, tetris.Clockwise)
	}
	return bestPlacement, best, found
}

// withinColumns はピースのすべてのブロックが左右の範囲内にあるかを返します。
func withinColumns(p *tetris.Player, width int) bool {
	for _, block := range p.Blocks() {
		x := p.Pos.X + block[0]
		if x < 0 || x >= width {
			return false
		}
	}
	return true
}

// placeOnScratch は盤面のコピーにピースを書き込みます。
// 床より下や merged のマスへの書き込みが必要な配置は無効として false を返します。
// ボードより上のブロックは書き込まれません。
func placeOnScratch(b tetris.Board, p *tetris.Player) (tetris.Board, bool) {
	scratch := b.Clone()
	for _, block := range p.Blocks() {
		x, y := p.Pos.X+block[0], p.Pos.Y+block[1]
		if y >= scratch.Height() || x < 0 || x >= scratch.Width() {
			return nil, false
		}
		if y < 0 {
			continue
		}
		if scratch[y][x].State == tetris.StateMerged {
			return nil, false
		}
		scratch[y][x] = tetris.Cell{Kind: p.Mino.Kind, State: tetris.StateMerged}
	}
	return scratch, true
}
