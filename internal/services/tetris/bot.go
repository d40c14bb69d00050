package tetris

import (
	"github.com/progate-hackathon-strawberry-flavor/TETRAIS-backend/internal/models/tetris"
)

// BotResult は自動プレイの結果です。
type BotResult struct {
	Pieces      int        `json:"pieces"`
	SpitePieces int        `json:"spite_pieces"`
	Score       int        `json:"score"`
	Lines       int        `json:"lines"`
	Level       int        `json:"level"`
	Status      GameStatus `json:"status"`
}

// PlayGreedy は各ピースを BestPlacement の配置に向けて動かしてハードドロップするボットでゲームを進めます。
// ゲームオーバーになるか maxPieces 個のピースを置くまで続けます。ゲームが開始されていない場合は開始します。
// 戻る時点でカスケードは終わっており、状態は PLAYING か終了状態です。
//
// Parameters:
//   g         : 進めるゲーム
//   maxPieces : 置くピースの上限（0以下は無制限）
// Returns:
//   BotResult: 最終的なスコアなど
func PlayGreedy(g *Game, maxPieces int) BotResult {
	var res BotResult
	if g.Status() == StatusIdle {
		g.Start()
	}
	countSpite := func(events []Event) {
		for _, e := range events {
			if e.Type == EventSpawn && e.Spite {
				res.SpitePieces++
			}
		}
	}
	countSpite(g.Advance(0))

	for !g.Status().IsTerminal() && (maxPieces <= 0 || res.Pieces < maxPieces) {
		if g.Status() != StatusPlaying {
			// ライン消去後のカスケードを最後まで進める
			countSpite(g.Advance(g.cascadeInterval))
			continue
		}

		current := g.Player()
		if current == nil {
			break
		}
		target, _, ok := BestPlacement(g.board, current.Mino)
		if ok {
			steerTo(g, target)
		}
		if !g.HardDrop() {
			break
		}
		res.Pieces++
		countSpite(g.Advance(0))
	}
	// 最後のピースで始まったカスケードは結果に含める
	for g.Status() == StatusProcessingBoard || g.Status() == StatusCascading {
		countSpite(g.Advance(g.cascadeInterval))
	}

	res.Score = g.Score()
	res.Lines = g.Lines()
	res.Level = g.Level()
	res.Status = g.Status()
	return res
}

// steerTo はピースを目標の回転数と列に向けて動かします。届かない場合は動けるところまでで止めます。
func steerTo(g *Game, target Placement) {
	for i := 0; i < target.Rotation; i++ {
		if !g.Rotate(tetris.Clockwise) {
			break
		}
	}
	for g.player != nil && g.player.Pos.X > target.X {
		if !g.MoveLeft() {
			break
		}
	}
	for g.player != nil && g.player.Pos.X < target.X {
		if !g.MoveRight() {
			break
		}
	}
}
