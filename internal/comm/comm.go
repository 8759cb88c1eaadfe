package comm

import (
	"encoding/json"
	"time"
)

// WSMessage is the envelope for every frame on the play socket.
type WSMessage struct {
	Type     string          `json:"type"` // e.g. "move", "resign", "state", "heartbeat"
	Data     json.RawMessage `json:"data"`
	SocketId string          `json:"socketid"`
}

// MovePayload carries a move or resignation from the client.
type MovePayload struct {
	PlayerNonce string `json:"player_nonce"`
	Move        string `json:"move"`
}

// MatchCompleted is published on the match.completed subject exactly once
// per settled match, from the winning CompleteOnce call. Duplicate delivery
// is tolerated by the settler's per-(match, user) dedup.
type MatchCompleted struct {
	MatchID           string    `json:"match_id"`
	RoomID            string    `json:"room_id"`
	GameType          string    `json:"game_type"`
	WhiteUserID       int64     `json:"white_user_id"`
	BlackUserID       *int64    `json:"black_user_id,omitempty"`
	WinnerID          *int64    `json:"winner_id,omitempty"`
	Result            string    `json:"result"`
	WhiteRatingChange *int      `json:"white_rating_change,omitempty"`
	BlackRatingChange *int      `json:"black_rating_change,omitempty"`
	TotalMoves        int       `json:"total_moves"`
	DurationMs        int64     `json:"duration_ms"`
	EndedAt           time.Time `json:"ended_at"`
}

// SubjectMatchCompleted is the NATS subject settlement events flow over.
const SubjectMatchCompleted = "match.completed"
