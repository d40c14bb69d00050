package tetris

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket" // WebSocketライブラリのインポート
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/progate-hackathon-strawberry-flavor/TETRAIS-backend/internal/database"
)

var (
	// ErrSessionNotFound は指定されたIDのゲームセッションが存在しない場合のエラーです。
	ErrSessionNotFound = errors.New("game session not found")
	// ErrInvalidAction は未知のアクション文字列を受け取った場合のエラーです。
	ErrInvalidAction = errors.New("invalid action")
	// ErrGameNotFinished はゲームがまだ終了していない場合のエラーです。
	ErrGameNotFinished = errors.New("game is not finished")
	// ErrForbidden はユーザーが所有するゲームを他のユーザーが操作しようとした場合のエラーです。
	ErrForbidden = errors.New("game belongs to another user")
	// ErrManagerClosed はシャットダウン後に操作した場合のエラーです。
	ErrManagerClosed = errors.New("session manager is shut down")
)

const (
	// sessionTTL はクライアントが接続しておらず操作もされないセッションを破棄するまでの時間です。
	sessionTTL = 30 * time.Minute

	clientSendBuffer = 64
	readLimit        = 1024
	readTimeout      = 300 * time.Second
	writeTimeout     = 10 * time.Second
	pingInterval     = 60 * time.Second
)

// Client はWebSocket接続を持つ単一のクライアント（観戦者を含む）を表します。
type Client struct {
	ID        string          // 接続ごとのID
	SessionID string          // 接続しているゲームのID
	UserID    string          // 認証済みの場合のユーザーID
	Conn      *websocket.Conn // クライアントとの実際のWebSocketコネクション
	Send      chan []byte     // クライアントへメッセージを送信するためのバッファ付きチャネル
	closed    bool
	mu        sync.Mutex
}

// SafeSend は安全にチャネルにメッセージを送信します（closedチェック付き）
func (c *Client) SafeSend(message []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}

	select {
	case c.Send <- message:
		return true
	default:
		return false // チャネルがフル
	}
}

// SafeClose は安全にチャネルを閉じます
func (c *Client) SafeClose() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		close(c.Send)
		c.closed = true
	}
}

// PlayerInputEvent はWebSocketで受け取ったプレイヤーの操作です。
type PlayerInputEvent struct {
	ClientID  string `json:"-"`
	SessionID string `json:"-"`
	UserID    string `json:"-"`
	Action    string `json:"action"`
}

// StateMessage はクライアントへ送るゲーム状態のメッセージです。
type StateMessage struct {
	Type   string   `json:"type"` // "state" または "error"
	GameID string   `json:"game_id"`
	State  Snapshot `json:"state"`
	Events []Event  `json:"events,omitempty"`
	Error  string   `json:"error,omitempty"`
}

// GameStateEvent はブロードキャストチャネルに積まれる、シリアライズ済みのゲーム状態です。
type GameStateEvent struct {
	SessionID string
	Message   []byte
}

// GameSession は1人用のゲームと、その所有者の情報をまとめたものです。
type GameSession struct {
	ID        string
	UserID    string // 匿名プレイの場合は空
	CreatedAt time.Time

	mu           sync.Mutex
	game         *Game
	lastAdvance  time.Time
	lastActivity time.Time
	recorded     *GameOverReport // 保存済みのレポート（再スタートで新しいレポートになる）
}

// Snapshot はセッションのゲーム状態のスナップショットを返します。
func (s *GameSession) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.game.Snapshot()
}

func (s *GameSession) stateMessageLocked(events []Event) ([]byte, error) {
	return json.Marshal(StateMessage{
		Type:   "state",
		GameID: s.ID,
		State:  s.game.Snapshot(),
		Events: events,
	})
}

// SessionSettings は SessionManager が作成するゲームの設定です。
type SessionSettings struct {
	Weights            WeightProvider
	SpiteMode          bool
	CascadeInterval    time.Duration
	TickInterval       time.Duration
	HighScoreTableSize int
	NewRand            func() *rand.Rand // nil の場合は時刻をシードにする
}

// SessionManager はゲームセッションとWebSocketクライアント接続の全体を管理します。
// これはアプリケーション内でシングルトンとして動作することが想定されます。
type SessionManager struct {
	sessions    map[string]*GameSession // gameID -> GameSession
	clients     map[string]*Client      // clientID -> Client
	register    chan *Client
	unregister  chan *Client
	broadcast   chan GameStateEvent
	inputEvents chan PlayerInputEvent
	quit        chan struct{}
	quitOnce    sync.Once
	closed      bool
	mu          sync.RWMutex

	results  database.ResultRepository // nil の場合は結果を保存しない
	settings SessionSettings
	logger   zerolog.Logger
}

// NewSessionManager は新しい SessionManager インスタンスを作成します。
// イベントループを動かすには Run をゴルーチンで呼び出してください。
//
// Parameters:
//   results  : ゲーム結果の保存先（nil可）
//   settings : 作成するゲームの設定
// Returns:
//   *SessionManager: 初期化されたセッションマネージャーのポインタ
func NewSessionManager(results database.ResultRepository, settings SessionSettings) *SessionManager {
	if settings.TickInterval <= 0 {
		settings.TickInterval = 50 * time.Millisecond
	}
	if settings.CascadeInterval <= 0 {
		settings.CascadeInterval = DefaultCascadeInterval
	}
	if settings.HighScoreTableSize <= 0 {
		settings.HighScoreTableSize = 10
	}
	return &SessionManager{
		sessions:    make(map[string]*GameSession),
		clients:     make(map[string]*Client),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		broadcast:   make(chan GameStateEvent, 512),
		inputEvents: make(chan PlayerInputEvent, 512),
		quit:        make(chan struct{}),
		results:     results,
		settings:    settings,
		logger:      log.With().Str("component", "SessionManager").Logger(),
	}
}

// Run は SessionManager のメインイベントループです。
// クライアントの登録/解除、プレイヤー入力の処理、ゲーム時間の進行、ゲーム状態のブロードキャストを処理します。
func (sm *SessionManager) Run() {
	ticker := time.NewTicker(sm.settings.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case client := <-sm.register:
			sm.mu.Lock()
			sm.clients[client.ID] = client
			sm.mu.Unlock()
			sm.logger.Info().Str("client_id", client.ID).Str("game_id", client.SessionID).Msg("client registered")

			// 接続直後に現在の状態を送る
			if msg, err := sm.stateMessage(client.SessionID, nil); err == nil {
				client.SafeSend(msg)
			}

		case client := <-sm.unregister:
			sm.removeClient(client)

		case event := <-sm.inputEvents:
			applied, _, err := sm.ApplyAction(event.SessionID, event.UserID, event.Action)
			if err != nil {
				sm.sendError(event.ClientID, event.SessionID, err)
				continue
			}
			if !applied {
				sm.logger.Debug().Str("game_id", event.SessionID).Str("action", event.Action).Msg("action ignored")
			}

		case now := <-ticker.C:
			sm.Tick(now)

		case event := <-sm.broadcast:
			sm.mu.RLock()
			for _, client := range sm.clients {
				if client.SessionID != event.SessionID {
					continue
				}
				if !client.SafeSend(event.Message) {
					sm.logger.Warn().Str("client_id", client.ID).Msg("failed to send to client (channel closed or full)")
				}
			}
			sm.mu.RUnlock()

		case <-sm.quit:
			sm.logger.Info().Msg("shutdown signal received, stopping main loop")
			return
		}
	}
}

// CreateSession は新しいゲームセッションを作成し、ゲームを開始します。
//
// Parameters:
//   userID : 所有者のユーザーID（匿名プレイの場合は空文字）
// Returns:
//   *GameSession: 作成されたセッション
//   error       : シャットダウン後に呼ばれた場合
func (sm *SessionManager) CreateSession(userID string) (*GameSession, error) {
	id := uuid.New().String()
	now := time.Now()
	logger := sm.logger.With().Str("game_id", id).Logger()

	opts := []GameOption{
		WithLogger(logger),
		WithSpiteMode(sm.settings.SpiteMode),
		WithCascadeInterval(sm.settings.CascadeInterval),
	}
	if sm.settings.Weights != nil {
		opts = append(opts, WithWeights(sm.settings.Weights))
	}
	if sm.settings.NewRand != nil {
		opts = append(opts, WithRand(sm.settings.NewRand()))
	}
	// ハイスコア判定は保存先があり、所有者が分かるゲームだけで行う
	if sm.results != nil && userID != "" {
		opts = append(opts, WithHighScoreQualifier(&resultQualifier{
			repo:   sm.results,
			limit:  sm.settings.HighScoreTableSize,
			logger: logger,
		}))
	}

	session := &GameSession{
		ID:           id,
		UserID:       userID,
		CreatedAt:    now,
		game:         NewGame(opts...),
		lastAdvance:  now,
		lastActivity: now,
	}
	session.game.Start()

	sm.mu.Lock()
	defer sm.mu.Unlock()
	if sm.closed {
		return nil, ErrManagerClosed
	}
	sm.sessions[id] = session

	logger.Info().Str("user_id", userID).Msg("created new game session")
	return session, nil
}

// GetSession は指定されたIDのゲームセッションを取得します。
func (sm *SessionManager) GetSession(id string) (*GameSession, bool) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	session, ok := sm.sessions[id]
	return session, ok
}

// SessionCount は管理中のセッション数を返します。
func (sm *SessionManager) SessionCount() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.sessions)
}

// ApplyAction はプレイヤーの操作をゲームに適用し、状態が変わった場合は接続中のクライアントに通知します。
//
// Parameters:
//   id     : ゲームID
//   userID : 操作するユーザーのID（匿名の場合は空文字）
//   action : アクション文字列（例: "move_left", "hard_drop"）
// Returns:
//   bool      : ゲーム状態が実際に変更された場合はtrue
//   GameStatus: 操作後のゲームの状態
//   error     : セッションが存在しない場合、アクションが不正な場合、所有者以外が操作した場合
func (sm *SessionManager) ApplyAction(id, userID, action string) (bool, GameStatus, error) {
	if !IsKnownAction(action) {
		return false, "", fmt.Errorf("%w: %q", ErrInvalidAction, action)
	}
	session, ok := sm.GetSession(id)
	if !ok {
		return false, "", ErrSessionNotFound
	}
	// 所有者のいるゲームは所有者だけが操作できる
	if session.UserID != "" && session.UserID != userID {
		return false, "", ErrForbidden
	}

	session.mu.Lock()
	applied := ApplyPlayerInput(session.game, action)
	session.lastActivity = time.Now()
	if action == "resume" || action == "start" || action == "restart" {
		// 停止中の経過時間を落下に含めない
		session.lastAdvance = session.lastActivity
	}
	status := session.game.Status()
	sm.recordResultLocked(session)
	var msg []byte
	if applied {
		var err error
		if msg, err = session.stateMessageLocked(nil); err != nil {
			sm.logger.Error().Err(err).Str("game_id", id).Msg("error marshaling game state")
		}
	}
	session.mu.Unlock()

	if msg != nil {
		sm.queueBroadcast(id, msg)
	}
	return applied, status, nil
}

// Snapshot は指定されたゲームの現在の状態を返します。
func (sm *SessionManager) Snapshot(id string) (Snapshot, error) {
	session, ok := sm.GetSession(id)
	if !ok {
		return Snapshot{}, ErrSessionNotFound
	}
	return session.Snapshot(), nil
}

// Suggestions は指定されたゲームの現在のピースランキング（最悪→最善）を返します。
func (sm *SessionManager) Suggestions(id string) ([]Suggestion, error) {
	session, ok := sm.GetSession(id)
	if !ok {
		return nil, ErrSessionNotFound
	}
	session.mu.Lock()
	defer session.mu.Unlock()
	return session.game.Suggestions(), nil
}

// Report は指定されたゲームのゲームオーバーレポートを返します。
func (sm *SessionManager) Report(id string) (*GameOverReport, error) {
	session, ok := sm.GetSession(id)
	if !ok {
		return nil, ErrSessionNotFound
	}
	session.mu.Lock()
	defer session.mu.Unlock()
	report := session.game.Report()
	if report == nil {
		return nil, ErrGameNotFinished
	}
	return report, nil
}

// Tick は全セッションのゲーム時間を now まで進め、変化があったセッションの状態をブロードキャストします。
// 長時間放置された終了済みのセッションはここで破棄します。
func (sm *SessionManager) Tick(now time.Time) {
	sm.mu.RLock()
	sessions := make([]*GameSession, 0, len(sm.sessions))
	for _, s := range sm.sessions {
		sessions = append(sessions, s)
	}
	sm.mu.RUnlock()

	for _, session := range sessions {
		session.mu.Lock()
		delta := now.Sub(session.lastAdvance)
		if delta < 0 {
			delta = 0
		}
		session.lastAdvance = now

		events := session.game.Advance(delta)
		status := session.game.Status()
		running := !session.game.Suspended() && status != StatusIdle && !status.IsTerminal()
		if len(events) > 0 {
			session.lastActivity = now
		}
		sm.recordResultLocked(session)

		var msg []byte
		if len(events) > 0 || running {
			var err error
			if msg, err = session.stateMessageLocked(events); err != nil {
				sm.logger.Error().Err(err).Str("game_id", session.ID).Msg("error marshaling game state")
				msg = nil
			}
		}
		expired := !running && now.Sub(session.lastActivity) > sessionTTL
		session.mu.Unlock()

		if msg != nil {
			sm.queueBroadcast(session.ID, msg)
		}
		if expired && !sm.hasClients(session.ID) {
			sm.mu.Lock()
			delete(sm.sessions, session.ID)
			sm.mu.Unlock()
			sm.logger.Info().Str("game_id", session.ID).Msg("removed idle session")
		}
	}
}

// recordResultLocked はゲームオーバーになったセッションの結果を一度だけ保存します。
// session.mu を保持した状態で呼び出してください。
func (sm *SessionManager) recordResultLocked(session *GameSession) {
	report := session.game.Report()
	if report == nil || report == session.recorded {
		return
	}
	session.recorded = report
	if sm.results == nil || session.UserID == "" {
		return
	}

	board, err := json.Marshal(report.FinalBoard)
	if err != nil {
		sm.logger.Error().Err(err).Str("game_id", session.ID).Msg("error marshaling final board")
		board = nil
	}
	result, err := sm.results.CreateResult(nil, session.UserID, report.Score, report.Lines, report.Level, board)
	if err != nil {
		sm.logger.Error().Err(err).Str("game_id", session.ID).Msg("failed to save game result")
		return
	}
	sm.logger.Info().Str("game_id", session.ID).Int64("result_id", result.ID).Int("score", result.Score).Msg("saved game result")
}

func (sm *SessionManager) stateMessage(id string, events []Event) ([]byte, error) {
	session, ok := sm.GetSession(id)
	if !ok {
		return nil, ErrSessionNotFound
	}
	session.mu.Lock()
	defer session.mu.Unlock()
	return session.stateMessageLocked(events)
}

// queueBroadcast はブロードキャストチャネルにメッセージを積みます。チャネルがフルの場合は捨てます。
func (sm *SessionManager) queueBroadcast(id string, msg []byte) {
	if !sm.hasClients(id) {
		return
	}
	select {
	case sm.broadcast <- GameStateEvent{SessionID: id, Message: msg}:
	default:
		sm.logger.Warn().Str("game_id", id).Msg("broadcast channel full, skipping update")
	}
}

func (sm *SessionManager) hasClients(id string) bool {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	for _, c := range sm.clients {
		if c.SessionID == id {
			return true
		}
	}
	return false
}

func (sm *SessionManager) sendError(clientID, id string, cause error) {
	sm.mu.RLock()
	client, ok := sm.clients[clientID]
	sm.mu.RUnlock()
	if !ok {
		return
	}
	msg, err := json.Marshal(StateMessage{Type: "error", GameID: id, Error: cause.Error()})
	if err != nil {
		return
	}
	client.SafeSend(msg)
}

// removeClient はクライアントの登録を解除します。最後のクライアントが切断した場合はゲームを一時停止します。
func (sm *SessionManager) removeClient(client *Client) {
	sm.mu.Lock()
	registered, ok := sm.clients[client.ID]
	if ok {
		registered.SafeClose()
		delete(sm.clients, client.ID)
	}
	sm.mu.Unlock()

	if !ok {
		sm.logger.Debug().Str("client_id", client.ID).Msg("attempted to unregister non-existent client")
		return
	}
	sm.logger.Info().Str("client_id", client.ID).Str("game_id", client.SessionID).Msg("client unregistered")

	if sm.hasClients(client.SessionID) {
		return
	}
	if session, ok := sm.GetSession(client.SessionID); ok {
		session.mu.Lock()
		if session.game.SetSuspended(true) {
			sm.logger.Info().Str("game_id", session.ID).Msg("last client left, game paused")
		}
		session.mu.Unlock()
	}
}

// RegisterClient は新しいWebSocketクライアントをSessionManagerに登録します。
// Run が動いている必要があります。
//
// Parameters:
//   id     : 接続するゲームのID
//   userID : クライアントのユーザーID（匿名の場合は空文字）
//   conn   : WebSocketコネクション
// Returns:
//   error: セッションが存在しない場合
func (sm *SessionManager) RegisterClient(id, userID string, conn *websocket.Conn) error {
	if _, ok := sm.GetSession(id); !ok {
		return ErrSessionNotFound
	}

	client := &Client{
		ID:        uuid.New().String(),
		SessionID: id,
		UserID:    userID,
		Conn:      conn,
		Send:      make(chan []byte, clientSendBuffer),
	}

	conn.SetReadLimit(readLimit)
	conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(readTimeout)) // Pong受信時にタイムアウトリセット
		return nil
	})

	go sm.readPump(client)
	go client.writePump(sm.logger)

	select {
	case sm.register <- client:
	case <-sm.quit:
		client.SafeClose()
		return ErrManagerClosed
	}
	return nil
}

// readPump はクライアントからのWebSocketメッセージを読み込み、 inputEvents チャネルに送信します。
func (sm *SessionManager) readPump(client *Client) {
	logger := sm.logger.With().Str("client_id", client.ID).Logger()
	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Msg("panic in readPump")
		}
		select {
		case sm.unregister <- client:
		case <-sm.quit:
		}
		client.Conn.Close()
	}()

	for {
		_, message, err := client.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				logger.Warn().Err(err).Msg("websocket unexpected close error")
			} else {
				logger.Debug().Err(err).Msg("websocket closed")
			}
			return
		}
		if len(message) == 0 {
			continue
		}

		var inputEvent PlayerInputEvent
		if err := json.Unmarshal(message, &inputEvent); err != nil {
			logger.Warn().Err(err).Msg("failed to unmarshal input message")
			continue
		}
		// 送信元の情報はサーバー側で上書きする
		inputEvent.ClientID = client.ID
		inputEvent.SessionID = client.SessionID
		inputEvent.UserID = client.UserID

		select {
		case sm.inputEvents <- inputEvent:
		default:
			logger.Warn().Msg("input events channel is full, dropping message")
		}
	}
}

// writePump は Client の Send チャネルからのメッセージをWebSocketコネクションに書き込みます。
// クライアントごとにこのゴルーチンが動作します。
func (c *Client) writePump(parent zerolog.Logger) {
	logger := parent.With().Str("client_id", c.ID).Logger()
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
		logger.Debug().Msg("writePump ended")
	}()

	consecutiveErrors := 0
	const maxConsecutiveErrors = 3

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				// マネージャーがチャネルを閉じた
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				consecutiveErrors++
				logger.Warn().Err(err).Int("attempt", consecutiveErrors).Msg("error writing message")
				if consecutiveErrors >= maxConsecutiveErrors {
					return
				}
				continue
			}
			consecutiveErrors = 0

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				logger.Warn().Err(err).Msg("error sending ping")
				return
			}
		}
	}
}

// Shutdown はSessionManagerを安全にシャットダウンします。複数回呼び出しても安全です。
func (sm *SessionManager) Shutdown() {
	sm.quitOnce.Do(func() {
		sm.logger.Info().Msg("shutting down session manager")
		close(sm.quit)

		sm.mu.Lock()
		sm.closed = true
		for _, client := range sm.clients {
			client.SafeClose()
		}
		sm.clients = make(map[string]*Client)
		sm.sessions = make(map[string]*GameSession)
		sm.mu.Unlock()

		sm.logger.Info().Msg("session manager shut down")
	})
}

// resultQualifier は保存済みの結果を使ってハイスコアを判定する HighScoreQualifier です。
type resultQualifier struct {
	repo   database.ResultRepository
	limit  int
	logger zerolog.Logger
}

// Qualifies はスコアが上位 limit 件に入る場合に true を返します。判定に失敗した場合は false です。
func (q *resultQualifier) Qualifies(score int) bool {
	ok, err := q.repo.QualifiesForTop(score, q.limit)
	if err != nil {
		q.logger.Warn().Err(err).Int("score", score).Msg("high score check failed")
		return false
	}
	return ok
}
