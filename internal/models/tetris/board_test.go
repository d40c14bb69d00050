package tetris

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fillRow は指定行を merged ブロックで埋めます（skip に含まれる列は空のまま）。
func fillRow(b Board, y int, skip ...int) {
	for x := range b[y] {
		empty := false
		for _, s := range skip {
			if s == x {
				empty = true
			}
		}
		if !empty {
			b[y][x] = Cell{Kind: KindZ, State: StateMerged}
		}
	}
}

func assertCellInvariant(t *testing.T, b Board) {
	t.Helper()
	for y, row := range b {
		for x, c := range row {
			assert.Equal(t, c.State == StateClear, c.Kind == KindNone, "cell (%d,%d) = %+v", x, y, c)
		}
	}
}

// TestNewBoard は空のボードの作成をテストします。
func TestNewBoard(t *testing.T) {
	b := NewBoard(7, 9)
	assert.Equal(t, 7, b.Width())
	assert.Equal(t, 9, b.Height())
	assert.True(t, b.IsEmpty())
	assert.Equal(t, 0, b.OccupiedCount())
	assertCellInvariant(t, b)

	std := NewStandardBoard()
	assert.Equal(t, BoardWidth, std.Width())
	assert.Equal(t, BoardHeight, std.Height())
}

// TestHasCollision は壁・床・ブロックとの衝突判定をテストします。
func TestHasCollision(t *testing.T) {
	//    0 1 2 3 4 5 6 7 8 9
	// 10 . . . . . X . . . .
	// O ミノを (4, 8) に置き、各方向の衝突を確認する
	tests := []struct {
		name          string
		pos           Position
		dx, dy        int
		wantCollision bool
	}{
		{name: "no collision", pos: Position{4, 5}},
		{name: "stack collision", pos: Position{4, 8}, dy: 1, wantCollision: true},
		{name: "left wall", pos: Position{0, 5}, dx: -1, wantCollision: true},
		{name: "right wall", pos: Position{8, 5}, dx: 1, wantCollision: true},
		{name: "floor", pos: Position{4, BoardHeight - 2}, dy: 1, wantCollision: true},
		{name: "above board is allowed", pos: Position{4, -3}},
		{name: "above board still checks walls", pos: Position{-1, -3}, wantCollision: true},
		{name: "partially above board", pos: Position{0, -1}, dy: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewStandardBoard()
			b[10][5] = Cell{Kind: KindT, State: StateMerged}
			p := NewPlayer(KindO, tt.pos)
			assert.Equal(t, tt.wantCollision, b.HasCollision(p, tt.dx, tt.dy))
		})
	}
}

// TestHasCollision_ZeroMoveIsIdempotent は移動量0の衝突判定が繰り返しても変わらないことをテストします。
func TestHasCollision_ZeroMoveIsIdempotent(t *testing.T) {
	b := NewStandardBoard()
	fillRow(b, BoardHeight-1, 3)
	for _, kind := range PieceKinds {
		for x := -2; x < BoardWidth; x++ {
			p := NewPlayer(kind, Position{x, 4})
			if !b.HasCollision(p, 0, 0) {
				assert.False(t, b.HasCollision(p, 0, 0), "kind %s at x=%d", kind, x)
			}
		}
	}
}

// TestMergePlayer_PreservesOccupancy はピースの固定でマスの数が保存されることをテストします。
func TestMergePlayer_PreservesOccupancy(t *testing.T) {
	b := NewStandardBoard()
	fillRow(b, BoardHeight-1, 0)
	before := b.OccupiedCount()

	// 上端をはみ出した J ミノ: 4ブロック中3ブロックだけがボード内
	p := NewPlayer(KindJ, Position{3, -1})
	inBounds := 0
	for _, block := range p.Blocks() {
		if b.InBounds(p.Pos.X+block[0], p.Pos.Y+block[1]) {
			inBounds++
		}
	}
	require.Equal(t, 3, inBounds)

	merged := b.MergePlayer(p, true)
	assert.Equal(t, before+inBounds, merged.OccupiedCount())
	assert.Equal(t, before, b.OccupiedCount(), "original board must not change")
	assert.True(t, merged[1][3].Spite)
	assertCellInvariant(t, merged)
}

// TestDropDistance_OPieceLandsOnFloor はOミノの落下距離をテストします。
func TestDropDistance_OPieceLandsOnFloor(t *testing.T) {
	b := NewStandardBoard()
	p := NewPlayer(KindO, Position{4, 0})

	p.Pos.Y += b.DropDistance(p)
	assert.Equal(t, BoardHeight-2, p.Pos.Y)
	assert.Equal(t, BoardHeight-1, p.LowestRow())

	merged := b.MergePlayer(p, false)
	_, cleared := ClearLines(merged, p)
	assert.Equal(t, 0, cleared)
	assert.Equal(t, StateMerged, merged[BoardHeight-1][4].State)
	assert.Equal(t, StateMerged, merged[BoardHeight-2][5].State)
}

// TestWithOverlay はゴーストと操作中ピースの重ね描きをテストします。
func TestWithOverlay(t *testing.T) {
	b := NewStandardBoard()
	p := NewPlayer(KindO, Position{0, 2})

	view := b.WithOverlay(p)
	assert.Equal(t, StatePlayer, view[2][0].State)
	assert.Equal(t, StateGhost, view[BoardHeight-1][1].State)
	assert.Equal(t, KindO, view[BoardHeight-1][1].Kind)
	assert.True(t, b.IsEmpty(), "overlay must not touch the source board")
	assertCellInvariant(t, view)

	assert.True(t, b.WithOverlay(nil).IsEmpty())
}
