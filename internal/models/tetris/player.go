package tetris

// Position はボード上の座標です。y は表示領域より上で負になることがあります。
type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Player は操作中のピースのインスタンスです。
// Pos は形状のバウンディングボックスの左上を指します。
type Player struct {
	Pos      Position `json:"pos"`
	Mino     Mino     `json:"mino"`
	Collided bool     `json:"collided"` // このティックの下移動がブロックされ、固定待ちかどうか
}

// NewPlayer は指定した種類のピースを指定位置に生成します。
func NewPlayer(kind PieceKind, pos Position) *Player {
	return &Player{Pos: pos, Mino: MinoOf(kind)}
}

// SpawnPosition は幅 width のボードにおける出現位置を返します。
func SpawnPosition(width int) Position {
	return Position{X: width/2 - 2, Y: 0}
}

// Blocks は現在の形状でブロックのある相対座標の一覧を返します。
func (p *Player) Blocks() [][2]int {
	return p.Mino.Shape.Blocks()
}

// Clone は形状行列まで含めた値コピーを返します。
// 履歴のスナップショットはこのコピーを保存し、後からの変更の影響を受けません。
func (p *Player) Clone() *Player {
	np := *p
	np.Mino = p.Mino.Clone()
	return &np
}

// HasBlockAbove はピースのいずれかのブロックが行 row より上にあるかどうかを返します。
func (p *Player) HasBlockAbove(row int) bool {
	for _, block := range p.Blocks() {
		if p.Pos.Y+block[1] < row {
			return true
		}
	}
	return false
}

// LowestRow はピースの最も下にあるブロックのボード上の行を返します。
func (p *Player) LowestRow() int {
	lowest := p.Pos.Y
	for _, block := range p.Blocks() {
		if y := p.Pos.Y + block[1]; y > lowest {
			lowest = y
		}
	}
	return lowest
}

// RotateWithKick はピースを回転させ、衝突する場合は壁蹴りを試みた結果を返します。
// 壁蹴りは +1, -2, +3, -4 ... の順にX方向のずらしを試す簡易版で、
// ピースごとの SRS キックテーブルではありません。ずらし幅が形状の幅+1を超えたら回転を諦めます。
//
// Parameters:
//   b   : 現在のボード
//   dir : 回転方向
// Returns:
//   *Player: 回転後のプレイヤー（失敗時はnil）
//   bool   : 回転できた場合はtrue。失敗時は元のプレイヤーは変更されません
func (p *Player) RotateWithKick(b Board, dir Direction) (*Player, bool) {
	rotated := p.Clone()
	rotated.Mino.Shape = Rotate(p.Mino.Shape, dir)

	offset := 1
	for b.HasCollision(rotated, 0, 0) {
		rotated.Pos.X += offset
		if offset > 0 {
			offset = -(offset + 1)
		} else {
			offset = -(offset - 1)
		}
		if abs(offset) > rotated.Mino.Shape.Width()+1 {
			return nil, false
		}
	}
	return rotated, true
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
