package engine

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/versusgg/versus-services/internal/matchsvc/models"
)

// TicTacToe plays on a 9-cell board kept as a flat string ("---------"),
// white as X, black as O. Moves are cell indexes "0".."8" or "row,col".
type TicTacToe struct {
	board [9]byte
	turn  Color
	moves int
}

func NewTicTacToe() *TicTacToe {
	t := &TicTacToe{turn: White}
	for i := range t.board {
		t.board[i] = '-'
	}
	return t
}

func (t *TicTacToe) Apply(move string) error {
	idx, err := parseCell(move)
	if err != nil {
		return err
	}
	if t.board[idx] != '-' {
		return fmt.Errorf("%w: cell %d occupied", models.ErrIllegalMove, idx)
	}
	if _, done := t.Outcome(); done {
		return fmt.Errorf("%w: game over", models.ErrIllegalMove)
	}
	if t.turn == White {
		t.board[idx] = 'X'
	} else {
		t.board[idx] = 'O'
	}
	t.turn = t.turn.Opponent()
	t.moves++
	return nil
}

func parseCell(move string) (int, error) {
	move = strings.TrimSpace(move)
	if row, col, ok := strings.Cut(move, ","); ok {
		r, err1 := strconv.Atoi(strings.TrimSpace(row))
		c, err2 := strconv.Atoi(strings.TrimSpace(col))
		if err1 != nil || err2 != nil || r < 0 || r > 2 || c < 0 || c > 2 {
			return 0, fmt.Errorf("%w: %q", models.ErrIllegalMove, move)
		}
		return r*3 + c, nil
	}
	idx, err := strconv.Atoi(move)
	if err != nil || idx < 0 || idx > 8 {
		return 0, fmt.Errorf("%w: %q", models.ErrIllegalMove, move)
	}
	return idx, nil
}

var ticTacToeLines = [8][3]int{
	{0, 1, 2}, {3, 4, 5}, {6, 7, 8}, // rows
	{0, 3, 6}, {1, 4, 7}, {2, 5, 8}, // columns
	{0, 4, 8}, {2, 4, 6}, // diagonals
}

func (t *TicTacToe) Turn() Color {
	return t.turn
}

func (t *TicTacToe) Position() string {
	return string(t.board[:])
}

func (t *TicTacToe) Outcome() (models.MatchResult, bool) {
	for _, l := range ticTacToeLines {
		a, b, c := t.board[l[0]], t.board[l[1]], t.board[l[2]]
		if a != '-' && a == b && b == c {
			if a == 'X' {
				return models.ResultWhiteWins, true
			}
			return models.ResultBlackWins, true
		}
	}
	if t.moves == 9 {
		return models.ResultDraw, true
	}
	return models.ResultPending, false
}

func (t *TicTacToe) MoveCount() int {
	return t.moves
}
