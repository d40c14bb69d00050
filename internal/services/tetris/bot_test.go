package tetris

import (
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

// TestPlayGreedy は貪欲ボットによる自動プレイをテストします。
func TestPlayGreedy(t *testing.T) {
	g := NewGame(WithRand(rand.New(rand.NewSource(3))), WithWeights(StaticWeights(defaultTestWeights)))

	res := PlayGreedy(g, 30)

	assert.Positive(t, res.Pieces)
	assert.LessOrEqual(t, res.Pieces, 30)
	if !res.Status.IsTerminal() {
		assert.Equal(t, 30, res.Pieces)
		assert.Equal(t, StatusPlaying, res.Status)
	}
	assert.Equal(t, g.Score(), res.Score)
	assert.Equal(t, g.Lines(), res.Lines)
	assert.Equal(t, GetLevel(res.Lines), res.Level)
}

// TestPlayGreedy_SettlesCascadeAtPieceLimit はピース数の上限で止まってもカスケードを最後まで進めることをテストします。
func TestPlayGreedy_SettlesCascadeAtPieceLimit(t *testing.T) {
	for seed := int64(1); seed <= 20; seed++ {
		g := NewGame(WithRand(rand.New(rand.NewSource(seed))), WithWeights(StaticWeights(defaultTestWeights)))
		for _, limit := range []int{5, 12, 30} {
			res := PlayGreedy(g, limit)
			if res.Status.IsTerminal() {
				break
			}
			assert.Equal(t, StatusPlaying, res.Status, "seed %d limit %d", seed, limit)
			assert.Equal(t, g.Lines(), res.Lines)
			assert.Equal(t, g.Score(), res.Score)
		}
	}
}

// TestPlayGreedy_Deterministic は同じシードで同じ結果になることをテストします。
func TestPlayGreedy_Deterministic(t *testing.T) {
	play := func() BotResult {
		g := NewGame(
			WithRand(rand.New(rand.NewSource(11))),
			WithWeights(StaticWeights(defaultTestWeights)),
			WithSpiteMode(true),
		)
		return PlayGreedy(g, 25)
	}

	first := play()
	second := play()
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("same seed produced different results (-first +second):\n%s", diff)
	}
}

// TestSteerTo は目標の回転と列へのピースの誘導をテストします。
func TestSteerTo(t *testing.T) {
	g := newStartedGame(t)
	target := Placement{Rotation: 1, X: 0}

	steerTo(g, target)
	assert.Equal(t, 0, g.Player().Pos.X)

	var actions []string
	for _, m := range g.History() {
		actions = append(actions, m.Action)
	}
	assert.Contains(t, actions, "rotate_right")
	assert.Contains(t, actions, "move_left")
}
