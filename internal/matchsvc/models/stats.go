package models

import "time"

// UserStats is the per-user competitive aggregate. It is mutated only by the
// settler, once per completed match per user.
type UserStats struct {
	UserID        int64     `json:"user_id"`
	Rating        int       `json:"rating"`
	Wins          int       `json:"wins"`
	Losses        int       `json:"losses"`
	Draws         int       `json:"draws"`
	WinStreak     int       `json:"win_streak"`
	BestWinStreak int       `json:"best_win_streak"`
	GamesPlayed   int       `json:"games_played"`
	Points        int       `json:"points"`
	UpdatedAt     time.Time `json:"updated_at"`
}

const DefaultRating = 1000
