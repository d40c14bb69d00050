package tetris

// legacyShiftRow は「ずれ」バグが発生する行（最初の表示行）です。
const legacyShiftRow = BufferRows

// ClearLines は固定されたピースの周辺の行だけを調べ、揃った行を消去します。
//
// 旧ハードウェアと同様に、ピースの着地位置（最も下のブロックの行）を基準に
// 2行上・基準行・1行下の4行だけをチェックします。
// また、行インデックス2（最初の表示行）が消去される場合は、その行だけを取り除く代わりに
// バッファ全体を1行ずらす（本当の最上段を捨て、最下段に空行を追加する）既知のバグを意図的に再現します。
//
// Parameters:
//   b : ピースを固定した後のボード
//   p : 固定されたピース
// Returns:
//   Board: 消去後の新しいボード
//   int  : 消去した行数
func ClearLines(b Board, p *Player) (Board, int) {
	nb := b.Clone()
	width, height := nb.Width(), nb.Height()

	anchor := p.LowestRow()
	start := max(0, anchor-2)
	end := anchor + 1

	cleared := 0
	for y := start; y <= end && y < height; y++ {
		if !nb.IsRowFull(y) {
			continue
		}
		cleared++

		if y == legacyShiftRow {
			shifted := append(Board{}, nb[1:]...)
			nb = append(shifted, emptyRow(width))
			continue
		}
		spliced := make(Board, 0, height)
		spliced = append(spliced, emptyRow(width))
		spliced = append(spliced, nb[:y]...)
		spliced = append(spliced, nb[y+1:]...)
		nb = spliced
	}
	return nb, cleared
}

// ClearFullRows はボード全体を走査し、すべての揃った行を取り除いて上に空行を補充します。
// カスケードで落下したブロックが新たに揃えた行の再判定に使用します。
func ClearFullRows(b Board) (Board, int) {
	width := b.Width()
	kept := make(Board, 0, b.Height())
	for y := range b {
		if !b.IsRowFull(y) {
			kept = append(kept, append([]Cell(nil), b[y]...))
		}
	}
	cleared := b.Height() - len(kept)
	nb := make(Board, 0, b.Height())
	for i := 0; i < cleared; i++ {
		nb = append(nb, emptyRow(width))
	}
	return append(nb, kept...), cleared
}

// MarkFloatingBlocks は床につながっていない merged ブロックを falling に変更したボードを返します。
// 最下段の merged ブロックを起点とした幅優先探索で、支えられたブロックから
// 上・左・右の merged ブロックをたどります。到達できなかった merged ブロックが falling になります。
func MarkFloatingBlocks(b Board) Board {
	nb := b.Clone()
	width, height := nb.Width(), nb.Height()
	if height == 0 {
		return nb
	}

	supported := make([][]bool, height)
	for y := range supported {
		supported[y] = make([]bool, width)
	}
	queue := make([][2]int, 0, width*height)

	// 1. 床に接しているブロック
	bottom := height - 1
	for x := 0; x < width; x++ {
		if nb[bottom][x].State == StateMerged {
			supported[bottom][x] = true
			queue = append(queue, [2]int{x, bottom})
		}
	}

	// 2. 支えられたブロックから上・左・右へ探索
	for head := 0; head < len(queue); head++ {
		x, y := queue[head][0], queue[head][1]
		neighbors := [3][2]int{{x, y - 1}, {x - 1, y}, {x + 1, y}}
		for _, n := range neighbors {
			nx, ny := n[0], n[1]
			if !nb.InBounds(nx, ny) || supported[ny][nx] || nb[ny][nx].State != StateMerged {
				continue
			}
			supported[ny][nx] = true
			queue = append(queue, [2]int{nx, ny})
		}
	}

	// 3. 支えのない merged ブロックを falling に
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if nb[y][x].State == StateMerged && !supported[y][x] {
				nb[y][x].State = StateFalling
			}
		}
	}
	return nb
}

// HasFallingBlocks は falling のマスが存在するかどうかを返します。
func (b Board) HasFallingBlocks() bool {
	for _, row := range b {
		for _, c := range row {
			if c.State == StateFalling {
				return true
			}
		}
	}
	return false
}

// StepCascade は下のマスが clear である falling ブロックを1行だけ落下させます。
// 下から上へ走査するため、1ステップで2行落ちるブロックはありません。
//
// Returns:
//   Board: 1ステップ後のボード
//   bool : いずれかのブロックが移動した場合はtrue
func StepCascade(b Board) (Board, bool) {
	nb := b.Clone()
	moved := false
	for y := nb.Height() - 2; y >= 0; y-- {
		for x := 0; x < nb.Width(); x++ {
			if nb[y][x].State == StateFalling && nb[y+1][x].IsClear() {
				nb[y+1][x] = nb[y][x]
				nb[y][x] = EmptyCell()
				moved = true
			}
		}
	}
	return nb, moved
}

// FreezeFallingBlocks は falling のマスをすべて merged に戻したボードを返します。
func FreezeFallingBlocks(b Board) Board {
	nb := b.Clone()
	for y := range nb {
		for x := range nb[y] {
			if nb[y][x].State == StateFalling {
				nb[y][x].State = StateMerged
			}
		}
	}
	return nb
}

// CompactBoard はブロックの間に残った完全に空の行を取り除き、上に空行を補充します。
func CompactBoard(b Board) Board {
	width := b.Width()
	kept := make(Board, 0, b.Height())
	seenBlock := false
	for y := range b {
		if b.IsRowClear(y) && seenBlock {
			continue
		}
		if !b.IsRowClear(y) {
			seenBlock = true
		}
		kept = append(kept, append([]Cell(nil), b[y]...))
	}
	nb := make(Board, 0, b.Height())
	for i := len(kept); i < b.Height(); i++ {
		nb = append(nb, emptyRow(width))
	}
	return append(nb, kept...)
}
