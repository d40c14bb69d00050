package tetris

// PieceKind はテトリミノの種類を表します。
type PieceKind string

const (
	KindNone PieceKind = ""  // 操作中のピースが存在しない状態にのみ使用
	KindI    PieceKind = "I" // I-ミノ
	KindJ    PieceKind = "J" // J-ミノ
	KindL    PieceKind = "L" // L-ミノ
	KindO    PieceKind = "O" // O-ミノ
	KindS    PieceKind = "S" // S-ミノ
	KindT    PieceKind = "T" // T-ミノ
	KindZ    PieceKind = "Z" // Z-ミノ
)

// PieceKinds は7種類のテトリミノを正規の順序で並べたものです。
var PieceKinds = [7]PieceKind{KindI, KindJ, KindL, KindO, KindS, KindT, KindZ}

// IsValid は PieceKind が7種類のいずれかであるかを返します。
func (k PieceKind) IsValid() bool {
	for _, kind := range PieceKinds {
		if k == kind {
			return true
		}
	}
	return false
}

// Shape はピースの形状を表すビットマスク行列です（1: ブロックあり）。
// 正方形（ほとんどのピース）と長方形（I-ミノ）の両方を扱います。
type Shape [][]uint8

// Width は形状の列数を返します。
func (s Shape) Width() int {
	if len(s) == 0 {
		return 0
	}
	return len(s[0])
}

// Height は形状の行数を返します。
func (s Shape) Height() int {
	return len(s)
}

// Clone は形状のコピーを返します。
func (s Shape) Clone() Shape {
	ns := make(Shape, len(s))
	for i, row := range s {
		ns[i] = append([]uint8(nil), row...)
	}
	return ns
}

// Equal は2つの形状がマス単位で等しいかどうかを返します。
func (s Shape) Equal(o Shape) bool {
	if len(s) != len(o) {
		return false
	}
	for y := range s {
		if len(s[y]) != len(o[y]) {
			return false
		}
		for x := range s[y] {
			if s[y][x] != o[y][x] {
				return false
			}
		}
	}
	return true
}

// Blocks はブロックのある相対座標 {x, y} の一覧を返します。
func (s Shape) Blocks() [][2]int {
	blocks := make([][2]int, 0, 4)
	for y, row := range s {
		for x, v := range row {
			if v != 0 {
				blocks = append(blocks, [2]int{x, y})
			}
		}
	}
	return blocks
}

// Direction は回転方向です。
type Direction int

const (
	Clockwise        Direction = iota // 時計回り
	CounterClockwise                  // 反時計回り
)

// Rotate は形状を90度回転させた新しい形状を返します。元の形状は変更しません。
// 転置した後、時計回りなら各行を反転、反時計回りなら行の順序を反転します。
// 長方形の形状では転置により幅と高さが入れ替わります。
func Rotate(s Shape, dir Direction) Shape {
	h, w := s.Height(), s.Width()
	transposed := make(Shape, w)
	for x := 0; x < w; x++ {
		transposed[x] = make([]uint8, h)
		for y := 0; y < h; y++ {
			transposed[x][y] = s[y][x]
		}
	}

	if dir == Clockwise {
		for _, row := range transposed {
			for i, j := 0, len(row)-1; i < j; i, j = i+1, j-1 {
				row[i], row[j] = row[j], row[i]
			}
		}
		return transposed
	}
	for i, j := 0, len(transposed)-1; i < j; i, j = i+1, j-1 {
		transposed[i], transposed[j] = transposed[j], transposed[i]
	}
	return transposed
}

// Mino はテトリミノのテンプレート（種類・形状・表示色）です。
type Mino struct {
	Kind  PieceKind `json:"kind"`
	Shape Shape     `json:"shape"`
	Color string    `json:"color"`
}

// Clone は形状行列を含めて Mino をコピーします。
func (m Mino) Clone() Mino {
	m.Shape = m.Shape.Clone()
	return m
}

// minoTemplates は各ピースの初期形状です。テンプレートは変更してはいけません。
var minoTemplates = map[PieceKind]Mino{
	KindNone: {Kind: KindNone, Shape: Shape{{0}}, Color: "transparent"},
	KindI:    {Kind: KindI, Shape: Shape{{1, 1, 1, 1}}, Color: "#00f0f0"},
	KindJ:    {Kind: KindJ, Shape: Shape{{0, 1, 0}, {0, 1, 0}, {1, 1, 0}}, Color: "#0000f0"},
	KindL:    {Kind: KindL, Shape: Shape{{0, 1, 0}, {0, 1, 0}, {0, 1, 1}}, Color: "#f0a000"},
	KindO:    {Kind: KindO, Shape: Shape{{1, 1}, {1, 1}}, Color: "#f0f000"},
	KindS:    {Kind: KindS, Shape: Shape{{0, 1, 1}, {1, 1, 0}, {0, 0, 0}}, Color: "#00f000"},
	KindT:    {Kind: KindT, Shape: Shape{{1, 1, 1}, {0, 1, 0}, {0, 0, 0}}, Color: "#a000f0"},
	KindZ:    {Kind: KindZ, Shape: Shape{{1, 1, 0}, {0, 1, 1}, {0, 0, 0}}, Color: "#f00000"},
}

// MinoOf は指定された種類の Mino のコピーを返します。未知の種類は KindNone の Mino になります。
func MinoOf(kind PieceKind) Mino {
	m, ok := minoTemplates[kind]
	if !ok {
		m = minoTemplates[KindNone]
	}
	return m.Clone()
}

// StringToPieceKind は文字列（"I", "O", "T"など）を PieceKind に変換します。
func StringToPieceKind(s string) (PieceKind, bool) {
	k := PieceKind(s)
	return k, k.IsValid()
}
