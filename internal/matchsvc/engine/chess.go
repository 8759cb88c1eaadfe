package engine

import (
	"fmt"
	"strings"

	nchess "github.com/corentings/chess/v2"

	"github.com/versusgg/versus-services/internal/matchsvc/models"
)

// Chess wraps the corentings chess engine. Moves are accepted in UCI
// notation (e2e4, e7e8q).
type Chess struct {
	game  *nchess.Game
	moves int
}

func NewChess() *Chess {
	return &Chess{game: nchess.NewGame()}
}

func (c *Chess) Apply(move string) error {
	move = strings.TrimSpace(move)
	if move == "" {
		return fmt.Errorf("%w: empty move", models.ErrIllegalMove)
	}
	if err := c.game.PushNotationMove(move, nchess.UCINotation{}, nil); err != nil {
		return fmt.Errorf("%w: %s", models.ErrIllegalMove, move)
	}
	c.moves++
	return nil
}

func (c *Chess) Turn() Color {
	if c.game.Position().Turn() == nchess.White {
		return White
	}
	return Black
}

func (c *Chess) Position() string {
	return c.game.FEN()
}

func (c *Chess) Outcome() (models.MatchResult, bool) {
	switch c.game.Outcome() {
	case nchess.WhiteWon:
		return models.ResultWhiteWins, true
	case nchess.BlackWon:
		return models.ResultBlackWins, true
	case nchess.Draw:
		return models.ResultDraw, true
	default:
		return models.ResultPending, false
	}
}

func (c *Chess) MoveCount() int {
	return c.moves
}
