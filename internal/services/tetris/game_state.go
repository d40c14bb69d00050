package tetris

import (
	"math/rand"
	"time"

	"github.com/rs/zerolog"

	"github.com/progate-hackathon-strawberry-flavor/TETRAIS-backend/internal/models/tetris"
)

// GameStatus はゲームの状態機械の現在の状態です。
type GameStatus string

const (
	StatusIdle            GameStatus = "IDLE"
	StatusPlaying         GameStatus = "PLAYING"
	StatusProcessingBoard GameStatus = "PROCESSING_BOARD"
	StatusCascading       GameStatus = "CASCADING"
	StatusGameOver        GameStatus = "GAME_OVER"
	StatusHighScoreEntry  GameStatus = "HIGH_SCORE_ENTRY"
)

// IsTerminal はゲームが終了している状態かどうかを返します。
func (s GameStatus) IsTerminal() bool {
	return s == StatusGameOver || s == StatusHighScoreEntry
}

// EventType は Advance や操作によって発生したイベントの種類です。
type EventType string

const (
	EventSpawn        EventType = "spawn"
	EventLock         EventType = "lock"
	EventLinesCleared EventType = "lines_cleared"
	EventCascadeStep  EventType = "cascade_step"
	EventCascadeClear EventType = "cascade_clear"
	EventCascadeEnd   EventType = "cascade_end"
	EventHold         EventType = "hold"
	EventGameOver     EventType = "game_over"
)

// Event はゲーム内で発生した出来事です。レンダリングやサウンドなどの外部コラボレーターが購読します。
type Event struct {
	Type   EventType        `json:"type"`
	Kind   tetris.PieceKind `json:"kind,omitempty"`
	Lines  int              `json:"lines,omitempty"`
	Points int              `json:"points,omitempty"`
	Spite  bool             `json:"spite,omitempty"`
}

// MoveRecord はプレイヤーの操作履歴の1件です。Player は記録時点の値コピーです。
type MoveRecord struct {
	GameTimeMs int64         `json:"game_time_ms"`
	Action     string        `json:"action"`
	Player     tetris.Player `json:"player"`
	Details    string        `json:"details,omitempty"`
}

// GameOverReport はゲームオーバー時に外部へ公開するスナップショットです。
type GameOverReport struct {
	Timestamp        time.Time     `json:"timestamp"`
	FinalBoard       tetris.Board  `json:"final_board"`
	CollidingPlayer  tetris.Player `json:"colliding_player"`
	Score            int           `json:"score"`
	Lines            int           `json:"lines"`
	Level            int           `json:"level"`
	MoveHistory      []MoveRecord  `json:"move_history"`
	FinalSuggestions []Suggestion  `json:"final_suggestions"`
}

// HighScoreQualifier は最終スコアがハイスコアに入るかどうかを判定する外部コラボレーターです。
type HighScoreQualifier interface {
	Qualifies(score int) bool
}

// HighScoreQualifierFunc は関数を HighScoreQualifier として使うためのアダプターです。
type HighScoreQualifierFunc func(score int) bool

// Qualifies は f(score) を返します。
func (f HighScoreQualifierFunc) Qualifies(score int) bool {
	return f(score)
}

// Game は1人用のゲームの状態機械です。
// 現在の状態は status の1つの値だけで表し、一時停止は状態機械とは独立したフラグとして扱います。
// Game はスレッドセーフではありません。複数のゴルーチンから使う場合は呼び出し側でロックしてください。
type Game struct {
	status    GameStatus
	suspended bool

	board       tetris.Board
	player      *tetris.Player
	spite       bool // 操作中のピースがスパイトで選ばれたかどうか
	held        *tetris.Mino
	holdUsed    bool
	suggestions []Suggestion

	score int
	lines int
	level int

	gameTime        time.Duration
	dropAcc         time.Duration
	cascadeAcc      time.Duration
	cascadeInterval time.Duration

	history []MoveRecord
	report  *GameOverReport
	events  []Event

	width, height int
	rng           *rand.Rand
	weights       WeightProvider
	spiteMode     bool
	engine        *SuggestionEngine
	policy        *SelectionPolicy
	qualifier     HighScoreQualifier
	logger        zerolog.Logger
}

// GameOption は NewGame の設定を変更します。
type GameOption func(*Game)

// WithRand はピース選択とシャッフルに使う乱数生成器を指定します。
func WithRand(r *rand.Rand) GameOption {
	return func(g *Game) { g.rng = r }
}

// WithWeights はピースの出現確率ベクトルの提供元を指定します。
func WithWeights(w WeightProvider) GameOption {
	return func(g *Game) { g.weights = w }
}

// WithSpiteMode はスパイトモードを有効にします。
func WithSpiteMode(enabled bool) GameOption {
	return func(g *Game) { g.spiteMode = enabled }
}

// WithLogger はロガーを指定します。
func WithLogger(l zerolog.Logger) GameOption {
	return func(g *Game) { g.logger = l }
}

// WithCascadeInterval はカスケードを1段進める間隔を指定します。
func WithCascadeInterval(d time.Duration) GameOption {
	return func(g *Game) {
		if d > 0 {
			g.cascadeInterval = d
		}
	}
}

// WithHighScoreQualifier はハイスコア判定のコラボレーターを指定します。
func WithHighScoreQualifier(q HighScoreQualifier) GameOption {
	return func(g *Game) { g.qualifier = q }
}

// WithBoardSize は表示領域のサイズを指定します。バッファ行は自動的に追加されます。
func WithBoardSize(width, visibleHeight int) GameOption {
	return func(g *Game) {
		if width >= 4 && visibleHeight >= 4 {
			g.width = width
			g.height = visibleHeight + tetris.BufferRows
		}
	}
}

// NewGame は IDLE 状態の新しいゲームを返します。Start を呼ぶまでピースは出現しません。
func NewGame(opts ...GameOption) *Game {
	g := &Game{
		status:          StatusIdle,
		width:           tetris.BoardWidth,
		height:          tetris.BoardHeight,
		cascadeInterval: DefaultCascadeInterval,
		logger:          zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.rng == nil {
		g.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	g.engine = NewSuggestionEngine(g.rng)
	g.policy = NewSelectionPolicy(g.rng, g.spiteMode, g.logger)
	g.board = tetris.NewBoard(g.width, g.height)
	return g
}

// Start は新しい盤面でゲームを開始します。IDLE または終了状態からのみ開始できます。
func (g *Game) Start() bool {
	if g.status != StatusIdle && !g.status.IsTerminal() {
		return false
	}
	g.board = tetris.NewBoard(g.width, g.height)
	g.player = nil
	g.spite = false
	g.held = nil
	g.holdUsed = false
	g.suggestions = nil
	g.score, g.lines, g.level = 0, 0, 0
	g.gameTime, g.dropAcc, g.cascadeAcc = 0, 0, 0
	g.history = nil
	g.report = nil
	g.suspended = false
	g.policy.Reset()

	g.status = StatusPlaying
	g.logger.Debug().Bool("spite_mode", g.spiteMode).Msg("game started")
	g.spawn()
	return true
}

// Advance はゲーム時間を delta だけ進めます。
// PLAYING では自動落下、PROCESSING_BOARD では浮いたブロックの検出、
// CASCADING では cascadeInterval ごとに1段ずつカスケードを進めます。
// 一時停止中は何もしません。
//
// Parameters:
//   delta : 前回の呼び出しからの経過時間
// Returns:
//   []Event: 前回の呼び出し以降に発生したイベント（操作によるものを含む）
func (g *Game) Advance(delta time.Duration) []Event {
	if g.suspended || delta < 0 {
		return nil
	}
	if g.status == StatusIdle || g.status.IsTerminal() {
		return g.drainEvents()
	}

	g.gameTime += delta

	switch g.status {
	case StatusPlaying:
		g.dropAcc += delta
		for g.status == StatusPlaying {
			interval := GetDropInterval(g.lines)
			if g.dropAcc < interval {
				break
			}
			g.dropAcc -= interval
			g.tick()
		}
	case StatusProcessingBoard:
		g.processBoard()
	case StatusCascading:
		g.cascadeAcc += delta
		for g.status == StatusCascading && g.cascadeAcc >= g.cascadeInterval {
			g.cascadeAcc -= g.cascadeInterval
			g.cascadeStep()
		}
	}
	return g.drainEvents()
}

// tick は自動落下を1行分進めます。下に動けない場合はピースを固定します。
func (g *Game) tick() {
	if g.player == nil {
		return
	}
	if !g.board.HasCollision(g.player, 0, 1) {
		g.player.Pos.Y++
		g.player.Collided = false
		return
	}
	g.player.Collided = true
	g.lockPiece()
}

// lockPiece は操作中のピースを盤面に固定し、ピース周辺の揃った行を消去します。
// ラインが消えた場合は PROCESSING_BOARD に遷移し、消えなかった場合は次のピースを出現させます。
func (g *Game) lockPiece() {
	p := g.player
	g.record("lock", "")
	g.board = g.board.MergePlayer(p, g.spite)
	g.emit(Event{Type: EventLock, Kind: p.Mino.Kind, Spite: g.spite})

	cleared, n := tetris.ClearLines(g.board, p)
	g.board = cleared
	g.player = nil

	if n > 0 {
		points := g.award(n, false)
		g.emit(Event{Type: EventLinesCleared, Lines: n, Points: points})
		g.status = StatusProcessingBoard
		return
	}
	g.spawn()
}

// award はライン数と得点、レベルを更新し、加算した得点を返します。
func (g *Game) award(n int, cascade bool) int {
	g.lines += n
	g.level = GetLevel(g.lines)
	points := CalculateScore(n, g.level, cascade)
	g.score += points
	g.logger.Debug().Int("lines", n).Bool("cascade", cascade).Int("points", points).Int("score", g.score).Msg("lines cleared")
	return points
}

// processBoard は支えのないブロックを falling にして CASCADING に遷移します。
func (g *Game) processBoard() {
	g.board = tetris.MarkFloatingBlocks(g.board)
	g.cascadeAcc = 0
	g.status = StatusCascading
}

// cascadeStep はカスケードを1段進めます。
// 動くブロックがなくなったら固定して揃った行を探し、あれば連鎖ボーナス付きで消去して再びカスケードします。
// なければ盤面を詰めて PLAYING に戻ります。
func (g *Game) cascadeStep() {
	next, moved := tetris.StepCascade(g.board)
	if moved {
		g.board = next
		g.emit(Event{Type: EventCascadeStep})
		return
	}

	g.board = tetris.FreezeFallingBlocks(g.board)
	cleared, n := tetris.ClearFullRows(g.board)
	if n > 0 {
		points := g.award(n, true)
		g.board = tetris.MarkFloatingBlocks(cleared)
		g.emit(Event{Type: EventCascadeClear, Lines: n, Points: points})
		return
	}

	g.board = tetris.CompactBoard(g.board)
	g.emit(Event{Type: EventCascadeEnd})
	g.status = StatusPlaying
	g.spawn()
}

// spawn はピースの評価を再計算し、選択ポリシーで選ばれたピースを出現させます。
// 出現位置で衝突し、かつバッファ行より上にブロックがある場合はゲームオーバーです。
func (g *Game) spawn() {
	g.suggestions = g.engine.GetPieceSuggestions(g.board)

	var weights []float64
	if g.weights != nil {
		weights = g.weights.PieceWeights()
	}
	sel := g.policy.Select(g.suggestions, weights)

	g.setActive(sel.Mino, sel.Spite)
	g.holdUsed = false
	g.dropAcc = 0
	g.emit(Event{Type: EventSpawn, Kind: sel.Mino.Kind, Spite: sel.Spite})
	g.record("spawn", string(sel.Mino.Kind))
	if sel.Spite {
		g.logger.Debug().Str("kind", string(sel.Mino.Kind)).Msg("spite piece forced")
	}

	g.checkSpawnCollision()
}

func (g *Game) setActive(m tetris.Mino, spite bool) {
	g.player = &tetris.Player{Pos: tetris.SpawnPosition(g.width), Mino: m}
	g.spite = spite
}

func (g *Game) checkSpawnCollision() {
	if g.board.HasCollision(g.player, 0, 0) && g.player.HasBlockAbove(tetris.BufferRows) {
		g.gameOver()
	}
}

// gameOver はゲームオーバーのレポートを作成し、終了状態に遷移します。
func (g *Game) gameOver() {
	g.report = &GameOverReport{
		Timestamp:        time.Now(),
		FinalBoard:       g.board.Clone(),
		CollidingPlayer:  *g.player.Clone(),
		Score:            g.score,
		Lines:            g.lines,
		Level:            g.level,
		MoveHistory:      append([]MoveRecord(nil), g.history...),
		FinalSuggestions: append([]Suggestion(nil), g.suggestions...),
	}

	g.status = StatusGameOver
	if g.qualifier != nil && g.qualifier.Qualifies(g.score) {
		g.status = StatusHighScoreEntry
	}
	g.emit(Event{Type: EventGameOver, Points: g.score, Lines: g.lines})
	g.logger.Info().Int("score", g.score).Int("lines", g.lines).Int("level", g.level).
		Str("status", string(g.status)).Msg("game over")
}

// CompleteHighScoreEntry はハイスコアの入力を終えて GAME_OVER に遷移します。
func (g *Game) CompleteHighScoreEntry() bool {
	if g.status != StatusHighScoreEntry {
		return false
	}
	g.status = StatusGameOver
	return true
}

// canControl は操作中のピースを動かせる状態かどうかを返します。
func (g *Game) canControl() bool {
	return g.status == StatusPlaying && !g.suspended && g.player != nil
}

// MoveLeft はピースを左に1マス動かします。
func (g *Game) MoveLeft() bool {
	return g.shift(-1, "move_left")
}

// MoveRight はピースを右に1マス動かします。
func (g *Game) MoveRight() bool {
	return g.shift(1, "move_right")
}

func (g *Game) shift(dx int, action string) bool {
	if !g.canControl() || g.board.HasCollision(g.player, dx, 0) {
		return false
	}
	g.player.Pos.X += dx
	g.record(action, "")
	return true
}

// Rotate はピースを回転させます。衝突する場合は壁蹴りを試み、失敗した場合は何もしません。
func (g *Game) Rotate(dir tetris.Direction) bool {
	if !g.canControl() {
		return false
	}
	rotated, ok := g.player.RotateWithKick(g.board, dir)
	if !ok {
		return false
	}
	g.player = rotated
	action := "rotate_right"
	if dir == tetris.CounterClockwise {
		action = "rotate_left"
	}
	g.record(action, "")
	return true
}

// SoftDrop はピースを1行下げます。すでに着地している場合はその場で固定します。
func (g *Game) SoftDrop() bool {
	if !g.canControl() {
		return false
	}
	g.dropAcc = 0
	if !g.board.HasCollision(g.player, 0, 1) {
		g.player.Pos.Y++
		g.record("soft_drop", "")
		return true
	}
	g.player.Collided = true
	g.lockPiece()
	return true
}

// HardDrop はピースを着地位置まで落として固定します。
func (g *Game) HardDrop() bool {
	if !g.canControl() {
		return false
	}
	g.player.Pos.Y += g.board.DropDistance(g.player)
	g.player.Collided = true
	g.record("hard_drop", "")
	g.lockPiece()
	return true
}

// Hold は操作中のピースをホールドします。1回の出現につき1回だけ使えます。
// ホールドが空の場合は通常の出現処理（評価の再計算を含む）で次のピースを出し、
// 埋まっている場合はホールド中のピースと入れ替えて出現位置に戻します。
func (g *Game) Hold() bool {
	if !g.canControl() || g.holdUsed {
		return false
	}
	current := tetris.MinoOf(g.player.Mino.Kind)
	g.record("hold", string(current.Kind))
	g.emit(Event{Type: EventHold, Kind: current.Kind})

	if g.held == nil {
		g.held = &current
		g.spawn()
	} else {
		swapped := g.held.Clone()
		g.held = &current
		g.setActive(swapped, false)
		g.dropAcc = 0
		g.checkSpawnCollision()
	}
	g.holdUsed = true
	return true
}

// SetSuspended は一時停止フラグを設定します。状態機械の状態は変わりません。
func (g *Game) SetSuspended(suspended bool) bool {
	if g.suspended == suspended {
		return false
	}
	g.suspended = suspended
	return true
}

func (g *Game) record(action, details string) {
	if g.player == nil {
		return
	}
	g.history = append(g.history, MoveRecord{
		GameTimeMs: g.gameTime.Milliseconds(),
		Action:     action,
		Player:     *g.player.Clone(),
		Details:    details,
	})
}

func (g *Game) emit(e Event) {
	g.events = append(g.events, e)
}

func (g *Game) drainEvents() []Event {
	events := g.events
	g.events = nil
	return events
}

// Status は現在の状態を返します。
func (g *Game) Status() GameStatus { return g.status }

// Suspended は一時停止中かどうかを返します。
func (g *Game) Suspended() bool { return g.suspended }

// Score は現在の得点を返します。
func (g *Game) Score() int { return g.score }

// Lines は累計の消去ライン数を返します。
func (g *Game) Lines() int { return g.lines }

// Level は現在のレベルを返します。
func (g *Game) Level() int { return g.level }

// Board は盤面のコピーを返します（オーバーレイなし）。
func (g *Game) Board() tetris.Board { return g.board.Clone() }

// Player は操作中のピースのコピーを返します。ピースがない場合は nil です。
func (g *Game) Player() *tetris.Player {
	if g.player == nil {
		return nil
	}
	return g.player.Clone()
}

// Suggestions は直近の出現時に計算された評価のコピーを返します（最悪→最善）。
func (g *Game) Suggestions() []Suggestion {
	return append([]Suggestion(nil), g.suggestions...)
}

// History は操作履歴のコピーを返します。
func (g *Game) History() []MoveRecord {
	return append([]MoveRecord(nil), g.history...)
}

// Report はゲームオーバーのレポートを返します。ゲームが終了していない場合は nil です。
func (g *Game) Report() *GameOverReport { return g.report }

// RenderBoard はゴーストピースと操作中のピースを重ねた描画用の盤面を返します。
func (g *Game) RenderBoard() tetris.Board {
	return g.board.WithOverlay(g.player)
}

// Snapshot はレンダリングなどの外部コラボレーター向けの読み取り専用ビューです。
type Snapshot struct {
	Status         GameStatus     `json:"status"`
	Suspended      bool           `json:"suspended"`
	Board          tetris.Board   `json:"board"`
	CurrentPiece   *tetris.Player `json:"current_piece,omitempty"`
	HeldPiece      *tetris.Mino   `json:"held_piece,omitempty"`
	Spite          bool           `json:"spite"`
	Suggestions    []Suggestion   `json:"suggestions"`
	Weights        []float64      `json:"weights,omitempty"`
	Score          int            `json:"score"`
	Lines          int            `json:"lines"`
	Level          int            `json:"level"`
	DropIntervalMs int64          `json:"drop_interval_ms"`
	GameTimeMs     int64          `json:"game_time_ms"`
}

// Snapshot は現在の状態のスナップショットを返します。
func (g *Game) Snapshot() Snapshot {
	s := Snapshot{
		Status:         g.status,
		Suspended:      g.suspended,
		Board:          g.RenderBoard(),
		CurrentPiece:   g.Player(),
		Spite:          g.spite && g.player != nil,
		Suggestions:    g.Suggestions(),
		Score:          g.score,
		Lines:          g.lines,
		Level:          g.level,
		DropIntervalMs: GetDropInterval(g.lines).Milliseconds(),
		GameTimeMs:     g.gameTime.Milliseconds(),
	}
	if g.held != nil {
		held := g.held.Clone()
		s.HeldPiece = &held
	}
	if g.weights != nil {
		s.Weights = g.weights.PieceWeights()
	}
	return s
}
