package tetris

const (
	BoardWidth         = 10                                // ボードの幅
	VisibleBoardHeight = 20                                // 表示部分の高さ
	BufferRows         = 2                                 // ピースが生成される見えない領域
	BoardHeight        = VisibleBoardHeight + BufferRows // バッファ行を含むボード全体の高さ
)

// CellState はボード上のマスの状態を表します。
type CellState string

const (
	StateClear   CellState = "clear"   // 空のマス
	StateMerged  CellState = "merged"  // 固定済みのブロック
	StateGhost   CellState = "ghost"   // ゴーストピース（描画用オーバーレイ）
	StateFalling CellState = "falling" // カスケード中の支えのないブロック
	StatePlayer  CellState = "player"  // 操作中のピース（描画用オーバーレイ）
)

// Cell はボード上の1マスです。
// 不変条件: State が StateClear であることと Kind が KindNone であることは同値です。
type Cell struct {
	Kind  PieceKind `json:"kind"`
	State CellState `json:"state"`
	Spite bool      `json:"spite,omitempty"` // スパイトピース由来のブロック（表示・デバッグ用）
}

// EmptyCell は空のマスを返します。
func EmptyCell() Cell {
	return Cell{Kind: KindNone, State: StateClear}
}

// IsClear はマスが空かどうかを返します。
func (c Cell) IsClear() bool {
	return c.State == StateClear
}

// Board はゲームボードを表す2次元スライスです。
// Board[y][x] でアクセスします。yは行（0が最上段のバッファ行）、xは列です。
type Board [][]Cell

// NewBoard は指定サイズの空のボードを作成して返します。
//
// Parameters:
//   width  : 列数
//   height : バッファ行を含む行数
// Returns:
//   Board: すべてのマスが clear のボード
func NewBoard(width, height int) Board {
	b := make(Board, height)
	for y := range b {
		b[y] = emptyRow(width)
	}
	return b
}

// NewStandardBoard は 10x22（表示20行 + バッファ2行）の空のボードを返します。
func NewStandardBoard() Board {
	return NewBoard(BoardWidth, BoardHeight)
}

func emptyRow(width int) []Cell {
	row := make([]Cell, width)
	for x := range row {
		row[x] = EmptyCell()
	}
	return row
}

// Width はボードの列数を返します。
func (b Board) Width() int {
	if len(b) == 0 {
		return 0
	}
	return len(b[0])
}

// Height はボードの行数を返します。
func (b Board) Height() int {
	return len(b)
}

// Clone はボードのディープコピーを返します。
// ボードを変更する操作はすべてコピーに対して行われ、元のボードは変更されません。
func (b Board) Clone() Board {
	nb := make(Board, len(b))
	for y, row := range b {
		nb[y] = make([]Cell, len(row))
		copy(nb[y], row)
	}
	return nb
}

// InBounds は座標がボードの範囲内かどうかを返します。
func (b Board) InBounds(x, y int) bool {
	return x >= 0 && x < b.Width() && y >= 0 && y < b.Height()
}

// IsEmpty はボード上のすべてのマスが clear かどうかを返します。
func (b Board) IsEmpty() bool {
	for _, row := range b {
		for _, c := range row {
			if !c.IsClear() {
				return false
			}
		}
	}
	return true
}

// OccupiedCount は clear でないマスの数を返します。
func (b Board) OccupiedCount() int {
	n := 0
	for _, row := range b {
		for _, c := range row {
			if !c.IsClear() {
				n++
			}
		}
	}
	return n
}

// IsRowFull は指定行のすべてのマスが merged かどうかを返します。
func (b Board) IsRowFull(y int) bool {
	if y < 0 || y >= b.Height() {
		return false
	}
	for _, c := range b[y] {
		if c.State != StateMerged {
			return false
		}
	}
	return true
}

// IsRowClear は指定行のすべてのマスが clear かどうかを返します。
func (b Board) IsRowClear(y int) bool {
	for _, c := range b[y] {
		if !c.IsClear() {
			return false
		}
	}
	return true
}

// HasCollision は指定されたプレイヤーのピースが位置 (Pos.X+dx, Pos.Y+dy) で
// 壁・床・既存のブロックと衝突するかどうかを判定します。
//
// Parameters:
//   p  : 衝突判定を行うプレイヤー（操作中のピース）
//   dx : X軸方向の移動量
//   dy : Y軸方向の移動量
// Returns:
//   bool: 衝突する場合はtrue
func (b Board) HasCollision(p *Player, dx, dy int) bool {
	width, height := b.Width(), b.Height()
	for _, block := range p.Blocks() {
		x := p.Pos.X + block[0] + dx
		y := p.Pos.Y + block[1] + dy

		// 左右の壁、または床との衝突
		if x < 0 || x >= width || y >= height {
			return true
		}
		// ボードより上（y < 0）には行が存在しないため、既存ブロックとの判定は行わない。
		// これによりピースはボード上端をはみ出して回転・出現できる。
		if y >= 0 && !b[y][x].IsClear() {
			return true
		}
	}
	return false
}

// MergePlayer はピースをボードに固定した新しいボードを返します。
// ボード範囲外（上端より上）のブロックは何もせずに捨てられます。
//
// Parameters:
//   p     : 固定するプレイヤー
//   spite : スパイトピースとして出現したピースかどうか
// Returns:
//   Board: ピースが merged として書き込まれた新しいボード
func (b Board) MergePlayer(p *Player, spite bool) Board {
	nb := b.Clone()
	for _, block := range p.Blocks() {
		x := p.Pos.X + block[0]
		y := p.Pos.Y + block[1]
		if nb.InBounds(x, y) {
			nb[y][x] = Cell{Kind: p.Mino.Kind, State: StateMerged, Spite: spite}
		}
	}
	return nb
}

// DropDistance はピースをハードドロップした場合に何行落下できるかを返します。
func (b Board) DropDistance(p *Player) int {
	dy := 0
	for !b.HasCollision(p, 0, dy+1) {
		dy++
	}
	return dy
}

// WithOverlay は描画用にゴーストピースと操作中のピースを重ねたボードのコピーを返します。
// merged のマスは上書きされません。
func (b Board) WithOverlay(p *Player) Board {
	nb := b.Clone()
	if p == nil || p.Mino.Kind == KindNone {
		return nb
	}
	ghostY := p.Pos.Y + b.DropDistance(p)
	for _, block := range p.Blocks() {
		x, y := p.Pos.X+block[0], ghostY+block[1]
		if nb.InBounds(x, y) && nb[y][x].IsClear() {
			nb[y][x] = Cell{Kind: p.Mino.Kind, State: StateGhost}
		}
	}
	for _, block := range p.Blocks() {
		x, y := p.Pos.X+block[0], p.Pos.Y+block[1]
		if nb.InBounds(x, y) && nb[y][x].State != StateMerged {
			nb[y][x] = Cell{Kind: p.Mino.Kind, State: StatePlayer}
		}
	}
	return nb
}
