package models

import "time"

type GameType string

const (
	GameTypeChess     GameType = "chess"
	GameTypeTicTacToe GameType = "tictactoe"
)

// SupportedGameTypes is the fixed set of games the platform can host.
var SupportedGameTypes = map[GameType]bool{
	GameTypeChess:     true,
	GameTypeTicTacToe: true,
}

func (g GameType) Valid() bool {
	return SupportedGameTypes[g]
}

type MatchResult string

const (
	ResultPending   MatchResult = "pending"
	ResultWhiteWins MatchResult = "white_wins"
	ResultBlackWins MatchResult = "black_wins"
	ResultDraw      MatchResult = "draw"
	ResultAbandoned MatchResult = "abandoned"
)

// Match is the durable registry row, one per game. The result column only
// ever transitions pending -> terminal, enforced by conditional updates in
// the store.
type Match struct {
	ID                string      `json:"id"`
	RoomID            string      `json:"room_id"`
	GameType          GameType    `json:"game_type"`
	WhiteUserID       int64       `json:"white_user_id"`
	BlackUserID       *int64      `json:"black_user_id,omitempty"`
	WinnerID          *int64      `json:"winner_id,omitempty"`
	Result            MatchResult `json:"result"`
	WhiteRatingBefore int         `json:"white_rating_before"`
	BlackRatingBefore *int        `json:"black_rating_before,omitempty"`
	WhiteRatingChange *int        `json:"white_rating_change,omitempty"`
	BlackRatingChange *int        `json:"black_rating_change,omitempty"`
	MovesJSON         string      `json:"moves_json"`
	TotalMoves        int         `json:"total_moves"`
	DurationMs        int64       `json:"duration_ms"`
	StartedAt         time.Time   `json:"started_at"`
	EndedAt           *time.Time  `json:"ended_at,omitempty"`
}

// Settled reports whether the match has reached a terminal result.
func (m *Match) Settled() bool {
	return m.Result != ResultPending
}

// Seated reports whether the given user occupies either seat.
func (m *Match) Seated(userID int64) bool {
	if m.WhiteUserID == userID {
		return true
	}
	return m.BlackUserID != nil && *m.BlackUserID == userID
}
