package tetris

import (
	"database/sql"
	"encoding/json"
	"errors"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/progate-hackathon-strawberry-flavor/TETRAIS-backend/internal/models"
	"github.com/progate-hackathon-strawberry-flavor/TETRAIS-backend/internal/models/tetris"
)

// fakeResultRepository はメモリ上に結果を保存する ResultRepository です。
type fakeResultRepository struct {
	mu         sync.Mutex
	created    []models.Result
	qualifies  bool
	qualifyErr error
}

func (f *fakeResultRepository) CreateResult(_ *sql.Tx, userID string, score, lines, level int, finalBoard json.RawMessage) (*models.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r := models.Result{
		ID:         int64(len(f.created) + 1),
		UserID:     userID,
		Score:      score,
		Lines:      lines,
		Level:      level,
		FinalBoard: finalBoard,
		CreatedAt:  time.Now(),
	}
	f.created = append(f.created, r)
	return &r, nil
}

func (f *fakeResultRepository) GetTopResults(int) ([]models.ResultResponse, error) {
	return []models.ResultResponse{}, nil
}

func (f *fakeResultRepository) GetUserBestScore(string) (*models.Result, error) { return nil, nil }

func (f *fakeResultRepository) GetUserRanking(string) (*models.ResultResponse, error) {
	return nil, nil
}

func (f *fakeResultRepository) QualifiesForTop(int, int) (bool, error) {
	return f.qualifies, f.qualifyErr
}

func (f *fakeResultRepository) createdResults() []models.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Result(nil), f.created...)
}

func newTestManager(repo *fakeResultRepository) *SessionManager {
	settings := SessionSettings{
		Weights:      StaticWeights(defaultTestWeights),
		TickInterval: 10 * time.Millisecond,
		NewRand:      func() *rand.Rand { return rand.New(rand.NewSource(1)) },
	}
	if repo == nil {
		return NewSessionManager(nil, settings)
	}
	return NewSessionManager(repo, settings)
}

// forceGameOver は盤面を埋めてから次のピースを出現させ、ゲームオーバーにします。
func forceGameOver(s *GameSession) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for y := 0; y < tetris.BoardHeight; y++ {
		fillBoardRow(s.game.board, y, 0)
	}
	s.game.spawn()
}

// TestCreateSession はセッションの作成と取得をテストします。
func TestCreateSession(t *testing.T) {
	sm := newTestManager(nil)

	session, err := sm.CreateSession("user-1")
	require.NoError(t, err)
	assert.NotEmpty(t, session.ID)
	assert.Equal(t, "user-1", session.UserID)
	assert.Equal(t, 1, sm.SessionCount())

	got, ok := sm.GetSession(session.ID)
	require.True(t, ok)
	assert.Same(t, session, got)

	snap, err := sm.Snapshot(session.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPlaying, snap.Status)
	assert.NotNil(t, snap.CurrentPiece)
	assert.Len(t, snap.Suggestions, len(tetris.PieceKinds))

	suggestions, err := sm.Suggestions(session.ID)
	require.NoError(t, err)
	assert.Len(t, suggestions, len(tetris.PieceKinds))
}

// TestApplyAction はSessionManager 経由の操作をテストします。
func TestApplyAction(t *testing.T) {
	sm := newTestManager(nil)
	session, err := sm.CreateSession("")
	require.NoError(t, err)

	applied, status, err := sm.ApplyAction(session.ID, "", "move_left")
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, StatusPlaying, status)

	applied, _, err = sm.ApplyAction(session.ID, "", "resume")
	require.NoError(t, err)
	assert.False(t, applied, "resume while running changes nothing")

	_, _, err = sm.ApplyAction(session.ID, "", "teleport")
	assert.ErrorIs(t, err, ErrInvalidAction)

	_, _, err = sm.ApplyAction("missing", "", "move_left")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	_, err = sm.Snapshot("missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

// TestApplyAction_OwnedGame は所有者以外の操作が拒否されることをテストします。
func TestApplyAction_OwnedGame(t *testing.T) {
	sm := newTestManager(nil)
	session, err := sm.CreateSession("user-1")
	require.NoError(t, err)

	before := len(session.game.History())
	for _, other := range []string{"", "user-2"} {
		applied, _, err := sm.ApplyAction(session.ID, other, "hard_drop")
		assert.ErrorIs(t, err, ErrForbidden, other)
		assert.False(t, applied)
	}
	assert.Len(t, session.game.History(), before, "rejected actions leave the game untouched")

	applied, _, err := sm.ApplyAction(session.ID, "user-1", "move_left")
	require.NoError(t, err)
	assert.True(t, applied)
}

// TestTick_AdvancesGame はTick によるゲームの進行をテストします。
func TestTick_AdvancesGame(t *testing.T) {
	sm := newTestManager(nil)
	session, err := sm.CreateSession("")
	require.NoError(t, err)

	before := session.Snapshot().CurrentPiece.Pos.Y
	sm.Tick(session.lastAdvance.Add(BaseDropInterval))
	assert.Equal(t, before+1, session.Snapshot().CurrentPiece.Pos.Y)

	_, _, err = sm.ApplyAction(session.ID, "", "pause")
	require.NoError(t, err)
	sm.Tick(session.lastAdvance.Add(10 * BaseDropInterval))
	assert.Equal(t, before+1, session.Snapshot().CurrentPiece.Pos.Y)
}

// TestTick_RemovesIdleSessions は放置されたセッションの削除をテストします。
func TestTick_RemovesIdleSessions(t *testing.T) {
	sm := newTestManager(nil)
	session, err := sm.CreateSession("")
	require.NoError(t, err)

	_, _, err = sm.ApplyAction(session.ID, "", "pause")
	require.NoError(t, err)

	now := time.Now()
	session.mu.Lock()
	session.lastActivity = now.Add(-sessionTTL - time.Minute)
	session.mu.Unlock()

	sm.Tick(now)
	assert.Equal(t, 0, sm.SessionCount())
}

// TestGameOver_RecordsResultOnce はゲーム結果が1ゲームにつき1回だけ保存されることをテストします。
func TestGameOver_RecordsResultOnce(t *testing.T) {
	repo := &fakeResultRepository{qualifies: true}
	sm := newTestManager(repo)
	session, err := sm.CreateSession("user-1")
	require.NoError(t, err)

	_, err = sm.Report(session.ID)
	assert.ErrorIs(t, err, ErrGameNotFinished)

	forceGameOver(session)
	sm.Tick(time.Now())
	sm.Tick(time.Now())

	created := repo.createdResults()
	require.Len(t, created, 1)
	assert.Equal(t, "user-1", created[0].UserID)
	assert.NotEmpty(t, created[0].FinalBoard)
	assert.Equal(t, StatusHighScoreEntry, session.Snapshot().Status)

	report, err := sm.Report(session.ID)
	require.NoError(t, err)
	assert.Equal(t, report.Score, created[0].Score)

	applied, status, err := sm.ApplyAction(session.ID, "user-1", "confirm_high_score")
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, StatusGameOver, status)

	applied, status, err = sm.ApplyAction(session.ID, "user-1", "restart")
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, StatusPlaying, status)

	forceGameOver(session)
	sm.Tick(time.Now())
	assert.Len(t, repo.createdResults(), 2, "a restarted game records its own result")
}

// TestGameOver_AnonymousNotRecorded は匿名ゲームの結果が保存されないことをテストします。
func TestGameOver_AnonymousNotRecorded(t *testing.T) {
	repo := &fakeResultRepository{qualifies: true}
	sm := newTestManager(repo)
	session, err := sm.CreateSession("")
	require.NoError(t, err)

	forceGameOver(session)
	sm.Tick(time.Now())

	assert.Empty(t, repo.createdResults())
	assert.Equal(t, StatusGameOver, session.Snapshot().Status)
}

// TestGameOver_QualifierErrorMeansNoHighScore はハイスコア判定のエラー時に登録へ進まないことをテストします。
func TestGameOver_QualifierErrorMeansNoHighScore(t *testing.T) {
	repo := &fakeResultRepository{qualifies: true, qualifyErr: errors.New("db down")}
	sm := newTestManager(repo)
	session, err := sm.CreateSession("user-1")
	require.NoError(t, err)

	forceGameOver(session)
	assert.Equal(t, StatusGameOver, session.Snapshot().Status)
}

// TestShutdown はSessionManager のシャットダウンをテストします。
func TestShutdown(t *testing.T) {
	sm := newTestManager(nil)
	_, err := sm.CreateSession("")
	require.NoError(t, err)

	sm.Shutdown()
	sm.Shutdown()

	assert.Equal(t, 0, sm.SessionCount())
	_, err = sm.CreateSession("")
	assert.ErrorIs(t, err, ErrManagerClosed)
}

// readMessage はタイムアウト付きで次の StateMessage を読み込みます。
func readMessage(t *testing.T, conn *websocket.Conn) StateMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var msg StateMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

// TestWebSocketClient はWebSocketクライアントの操作と状態の配信をテストします。
func TestWebSocketClient(t *testing.T) {
	sm := newTestManager(nil)
	go sm.Run()
	defer sm.Shutdown()

	session, err := sm.CreateSession("")
	require.NoError(t, err)

	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		if err := sm.RegisterClient(session.ID, "", conn); err != nil {
			conn.Close()
		}
	}))
	defer server.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	first := readMessage(t, conn)
	assert.Equal(t, "state", first.Type)
	assert.Equal(t, session.ID, first.GameID)
	assert.Equal(t, StatusPlaying, first.State.Status)

	require.NoError(t, conn.WriteJSON(map[string]string{"action": "teleport"}))
	for {
		msg := readMessage(t, conn)
		if msg.Type == "error" {
			assert.Contains(t, msg.Error, "invalid action")
			break
		}
	}

	require.NoError(t, conn.WriteJSON(map[string]string{"action": "hard_drop"}))
	for {
		msg := readMessage(t, conn)
		if containsEvent(msg.Events, EventLock) {
			break
		}
	}
}

func containsEvent(events []Event, want EventType) bool {
	for _, e := range events {
		if e.Type == want {
			return true
		}
	}
	return false
}

// TestUnregister_PausesGame は最後のクライアントが切断するとゲームが一時停止することをテストします。
func TestUnregister_PausesGame(t *testing.T) {
	sm := newTestManager(nil)
	session, err := sm.CreateSession("")
	require.NoError(t, err)

	client := &Client{ID: "c1", SessionID: session.ID, Send: make(chan []byte, 1)}
	sm.mu.Lock()
	sm.clients[client.ID] = client
	sm.mu.Unlock()

	sm.removeClient(client)
	assert.True(t, session.Snapshot().Suspended)
	assert.False(t, client.SafeSend([]byte("x")), "send channel is closed")
}
