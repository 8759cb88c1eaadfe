package engine

import (
	"github.com/versusgg/versus-services/internal/matchsvc/models"
)

type Color string

const (
	White Color = "white"
	Black Color = "black"
)

func (c Color) Opponent() Color {
	if c == White {
		return Black
	}
	return White
}

// Engine is the embedded rule engine for one game type. Implementations are
// not safe for concurrent use; the session actor serializes access.
type Engine interface {
	// Apply validates and plays a move for the side to move. On an illegal
	// move it returns models.ErrIllegalMove and leaves the position unchanged.
	Apply(move string) error

	// Turn is the color to move next.
	Turn() Color

	// Position is an opaque textual snapshot of the current position
	// (FEN for chess, the raw board string for tic-tac-toe).
	Position() string

	// Outcome reports the terminal result, if any.
	Outcome() (models.MatchResult, bool)

	MoveCount() int
}

// New constructs the rule engine for the given game type in its initial
// position.
func New(gameType models.GameType) (Engine, error) {
	switch gameType {
	case models.GameTypeChess:
		return NewChess(), nil
	case models.GameTypeTicTacToe:
		return NewTicTacToe(), nil
	default:
		return nil, models.ErrInvalidGameType
	}
}
