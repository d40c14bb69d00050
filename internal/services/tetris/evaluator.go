package tetris

import (
	"github.com/progate-hackathon-strawberry-flavor/TETRAIS-backend/internal/models/tetris"
)

// 評価関数の重み。プレイヤーにとって「痛い」盤面を強く減点するように調整された固定値です。
const (
	weightLines          = 8.0
	weightHeight         = -0.6
	weightHoles          = -5.0
	weightBumpiness      = -0.3
	weightWells          = -2.0
	negativeSpaceCellPen = 0.1  // 最上段2行（通常は見えない領域）のブロック1つあたりの減点
	topRowClearBonus     = 50.0 // 最初の表示行があと1マスで揃う場合のボーナス
)

// BoardMetrics は盤面評価に使う各特徴量です。
type BoardMetrics struct {
	AggregateHeight      int     `json:"aggregate_height"`
	Holes                int     `json:"holes"`
	Bumpiness            int     `json:"bumpiness"`
	Lines                int     `json:"lines"`
	Wells                int     `json:"wells"`
	NegativeSpacePenalty float64 `json:"negative_space_penalty"`
	TopRowBonus          float64 `json:"top_row_bonus"`
}

// Score は特徴量を重み付けして合計した評価値を返します。値が大きいほど有利な盤面です。
func (m BoardMetrics) Score() float64 {
	return float64(m.Lines)*weightLines +
		float64(m.AggregateHeight)*weightHeight +
		float64(m.Holes)*weightHoles +
		float64(m.Bumpiness)*weightBumpiness +
		float64(m.Wells)*weightWells -
		m.NegativeSpacePenalty +
		m.TopRowBonus
}

// EvaluateBoard は仮想的な盤面を評価します。純粋関数です。
func EvaluateBoard(b tetris.Board) float64 {
	return AnalyzeBoard(b).Score()
}

// AnalyzeBoard は盤面の各特徴量を計算します。
func AnalyzeBoard(b tetris.Board) BoardMetrics {
	heights := columnHeights(b)
	return BoardMetrics{
		AggregateHeight:      aggregateHeight(heights),
		Holes:                holes(b),
		Bumpiness:            bumpiness(heights),
		Lines:                fullLines(b),
		Wells:                wells(heights, b.Height()),
		NegativeSpacePenalty: negativeSpacePenalty(b),
		TopRowBonus:          topRowBonus(b),
	}
}

// columnHeights は表示領域の最上段から数えた各列の高さを返します（空の列は0）。
func columnHeights(b tetris.Board) []int {
	heights := make([]int, b.Width())
	for x := range heights {
		for y := tetris.BufferRows; y < b.Height(); y++ {
			if b[y][x].State == tetris.StateMerged {
				heights[x] = b.Height() - y
				break
			}
		}
	}
	return heights
}

func aggregateHeight(heights []int) int {
	total := 0
	for _, h := range heights {
		total += h
	}
	return total
}

// holes は上に merged ブロックがある clear のマスを数えます。
func holes(b tetris.Board) int {
	n := 0
	for x := 0; x < b.Width(); x++ {
		blockFound := false
		for y := tetris.BufferRows; y < b.Height(); y++ {
			switch {
			case b[y][x].State == tetris.StateMerged:
				blockFound = true
			case blockFound && b[y][x].IsClear():
				n++
			}
		}
	}
	return n
}

func bumpiness(heights []int) int {
	total := 0
	for i := 0; i < len(heights)-1; i++ {
		d := heights[i] - heights[i+1]
		if d < 0 {
			d = -d
		}
		total += d
	}
	return total
}

func fullLines(b tetris.Board) int {
	n := 0
	for y := range b {
		if b.IsRowFull(y) {
			n++
		}
	}
	return n
}

// wells は左右の低い方の列より2以上低い列の深さを合計します。端の列は外側を盤面の高さとみなします。
func wells(heights []int, boardHeight int) int {
	total := 0
	for x, h := range heights {
		left, right := boardHeight, boardHeight
		if x > 0 {
			left = heights[x-1]
		}
		if x < len(heights)-1 {
			right = heights[x+1]
		}
		if depth := min(left, right) - h; depth > 1 {
			total += depth
		}
	}
	return total
}

func negativeSpacePenalty(b tetris.Board) float64 {
	penalty := 0.0
	for y := 0; y < tetris.BufferRows && y < b.Height(); y++ {
		for _, c := range b[y] {
			if c.State == tetris.StateMerged {
				penalty += negativeSpaceCellPen
			}
		}
	}
	return penalty
}

// topRowBonus は最初の表示行があと1マスで揃う盤面（旧バグによる消去を狙える盤面）を高く評価します。
func topRowBonus(b tetris.Board) float64 {
	if b.Height() <= tetris.BufferRows {
		return 0
	}
	merged := 0
	for _, c := range b[tetris.BufferRows] {
		if c.State == tetris.StateMerged {
			merged++
		}
	}
	if merged == b.Width()-1 {
		return topRowClearBonus
	}
	return 0
}
