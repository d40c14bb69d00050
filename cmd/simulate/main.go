package main

import (
	"flag"
	"math/rand"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/progate-hackathon-strawberry-flavor/TETRAIS-backend/internal/config"
	"github.com/progate-hackathon-strawberry-flavor/TETRAIS-backend/internal/services/tetris"
)

// simulate は画面なしで貪欲ボットにゲームをプレイさせ、出現確率やスパイトモードの影響を確認するツールです。
func main() {
	games := flag.Int("games", 10, "number of games to play")
	pieces := flag.Int("pieces", 500, "max pieces per game (0 = until game over)")
	seed := flag.Int64("seed", time.Now().UnixNano(), "random seed")
	spite := flag.Bool("spite", false, "enable spite mode")
	weights := flag.String("weights", config.DefaultPieceWeights, "comma separated piece weights, worst to best")
	verbose := flag.Bool("v", false, "log game events")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if *verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	w, err := config.ParsePieceWeights(*weights)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid -weights")
	}

	rng := rand.New(rand.NewSource(*seed))
	var totalScore, totalLines, totalPieces, totalSpite int
	for i := 0; i < *games; i++ {
		g := tetris.NewGame(
			tetris.WithRand(rand.New(rand.NewSource(rng.Int63()))),
			tetris.WithWeights(tetris.StaticWeights(w)),
			tetris.WithSpiteMode(*spite),
			tetris.WithLogger(log.With().Int("game", i).Logger()),
		)
		res := tetris.PlayGreedy(g, *pieces)

		log.Info().Int("game", i).Int("score", res.Score).Int("lines", res.Lines).Int("level", res.Level).
			Int("pieces", res.Pieces).Int("spite_pieces", res.SpitePieces).Str("status", string(res.Status)).Msg("game finished")

		totalScore += res.Score
		totalLines += res.Lines
		totalPieces += res.Pieces
		totalSpite += res.SpitePieces
	}

	if *games > 0 {
		n := float64(*games)
		log.Info().Int64("seed", *seed).Bool("spite", *spite).
			Float64("avg_score", float64(totalScore)/n).
			Float64("avg_lines", float64(totalLines)/n).
			Float64("avg_pieces", float64(totalPieces)/n).
			Int("spite_pieces", totalSpite).
			Msg("summary")
	}
}
