package session

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/versusgg/versus-services/internal/matchsvc/engine"
	"github.com/versusgg/versus-services/internal/matchsvc/models"
)

type State string

const (
	StateInitialized          State = "initialized"
	StateAwaitingSecondPlayer State = "awaiting_second_player"
	StateFull                 State = "full"
	StateFinished             State = "finished"
)

type seat struct {
	userID      int64
	playerNonce string
	color       engine.Color
	lastSeen    time.Time
}

// Session holds the live state of one room. All access goes through the
// manager, which locks the per-room mutex before touching it; nothing here
// locks on its own.
type Session struct {
	roomID       string
	gameType     models.GameType
	mode         string
	sessionNonce string

	eng   engine.Engine
	seats map[engine.Color]*seat
	moves []string

	state    State
	result   models.MatchResult
	winnerID *int64

	createdAt    time.Time
	lastActivity time.Time
	finishedAt   time.Time
}

// JoinGrant is returned from Join and proves seat ownership across
// reconnects.
type JoinGrant struct {
	RoomID       string       `json:"room_id"`
	Color        engine.Color `json:"color"`
	PlayerNonce  string       `json:"player_nonce"`
	SessionNonce string       `json:"session_nonce"`
	IsReconnect  bool         `json:"is_reconnect"`
}

// MoveResult reports the effect of a move or resignation. When Finished is
// set it carries everything the coordinator needs to settle the match.
type MoveResult struct {
	RoomID     string             `json:"room_id"`
	Position   string             `json:"position"`
	Turn       engine.Color       `json:"turn"`
	Finished   bool               `json:"finished"`
	Result     models.MatchResult `json:"result,omitempty"`
	WinnerID   *int64             `json:"winner_id,omitempty"`
	MovesJSON  string             `json:"-"`
	TotalMoves int                `json:"total_moves"`
}

// Snapshot is the read-only view served to reconnecting clients.
type Snapshot struct {
	RoomID       string             `json:"room_id"`
	GameType     models.GameType    `json:"game_type"`
	State        State              `json:"state"`
	Position     string             `json:"position"`
	Turn         engine.Color       `json:"turn"`
	SessionNonce string             `json:"session_nonce"`
	Result       models.MatchResult `json:"result"`
	WinnerID     *int64             `json:"winner_id,omitempty"`
	WhiteUserID  *int64             `json:"white_user_id,omitempty"`
	BlackUserID  *int64             `json:"black_user_id,omitempty"`
	TotalMoves   int                `json:"total_moves"`
}

func newSession(gameType models.GameType, roomID, mode string, now time.Time) (*Session, error) {
	eng, err := engine.New(gameType)
	if err != nil {
		return nil, err
	}
	return &Session{
		roomID:       roomID,
		gameType:     gameType,
		mode:         mode,
		sessionNonce: uuid.NewString(),
		eng:          eng,
		seats:        make(map[engine.Color]*seat, 2),
		state:        StateInitialized,
		result:       models.ResultPending,
		createdAt:    now,
		lastActivity: now,
	}, nil
}

func (s *Session) join(userID int64, priorNonce string, now time.Time) (*JoinGrant, error) {
	// Reconnection: an existing seat is proven either by the previously
	// issued nonce or by the seated user id from the registry row.
	for _, st := range s.seats {
		if (priorNonce != "" && st.playerNonce == priorNonce) || st.userID == userID {
			st.lastSeen = now
			s.lastActivity = now
			return &JoinGrant{
				RoomID:       s.roomID,
				Color:        st.color,
				PlayerNonce:  st.playerNonce,
				SessionNonce: s.sessionNonce,
				IsReconnect:  true,
			}, nil
		}
	}

	if s.state == StateFinished {
		return nil, models.ErrAlreadyCompleted
	}
	if len(s.seats) >= 2 {
		return nil, models.ErrRoomFull
	}

	color := engine.White
	if _, taken := s.seats[engine.White]; taken {
		color = engine.Black
	}
	st := &seat{
		userID:      userID,
		playerNonce: uuid.NewString(),
		color:       color,
		lastSeen:    now,
	}
	s.seats[color] = st
	s.lastActivity = now

	if len(s.seats) == 2 {
		s.state = StateFull
	} else {
		s.state = StateAwaitingSecondPlayer
	}

	return &JoinGrant{
		RoomID:       s.roomID,
		Color:        color,
		PlayerNonce:  st.playerNonce,
		SessionNonce: s.sessionNonce,
	}, nil
}

func (s *Session) seatByNonce(nonce string) *seat {
	for _, st := range s.seats {
		if st.playerNonce == nonce {
			return st
		}
	}
	return nil
}

func (s *Session) move(playerNonce, move string, now time.Time) (*MoveResult, error) {
	st := s.seatByNonce(playerNonce)
	if st == nil {
		return nil, models.ErrUnauthorized
	}
	st.lastSeen = now

	if s.state == StateFinished {
		return nil, models.ErrAlreadyCompleted
	}
	if s.state != StateFull {
		return nil, models.ErrMatchNotReady
	}
	if st.color != s.eng.Turn() {
		return nil, models.ErrNotYourTurn
	}

	if err := s.eng.Apply(move); err != nil {
		return nil, err
	}
	s.moves = append(s.moves, move)
	s.lastActivity = now

	if result, done := s.eng.Outcome(); done {
		s.finish(result, s.winnerForResult(result), now)
	}
	return s.moveResult(), nil
}

func (s *Session) resign(playerNonce string, now time.Time) (*MoveResult, error) {
	st := s.seatByNonce(playerNonce)
	if st == nil {
		return nil, models.ErrUnauthorized
	}
	if s.state == StateFinished {
		return nil, models.ErrAlreadyCompleted
	}

	opponent, ok := s.seats[st.color.Opponent()]
	if !ok {
		// Resigning with no opponent seated scraps the room.
		s.finish(models.ResultAbandoned, nil, now)
		return s.moveResult(), nil
	}

	result := models.ResultWhiteWins
	if opponent.color == engine.Black {
		result = models.ResultBlackWins
	}
	winnerID := opponent.userID
	s.finish(result, &winnerID, now)
	return s.moveResult(), nil
}

// abandon settles a room that went silent. The seat with a heartbeat inside
// the grace window is credited; if neither side is live the match is
// recorded as abandoned with no winner.
func (s *Session) abandon(grace time.Duration, now time.Time) *MoveResult {
	if s.state == StateFinished {
		return nil
	}

	var live []*seat
	for _, st := range s.seats {
		if now.Sub(st.lastSeen) <= grace {
			live = append(live, st)
		}
	}

	if len(live) == 1 {
		winnerID := live[0].userID
		result := models.ResultWhiteWins
		if live[0].color == engine.Black {
			result = models.ResultBlackWins
		}
		s.finish(result, &winnerID, now)
	} else {
		s.finish(models.ResultAbandoned, nil, now)
	}
	return s.moveResult()
}

func (s *Session) finish(result models.MatchResult, winnerID *int64, now time.Time) {
	s.state = StateFinished
	s.result = result
	s.winnerID = winnerID
	s.finishedAt = now
	s.lastActivity = now
}

func (s *Session) winnerForResult(result models.MatchResult) *int64 {
	var color engine.Color
	switch result {
	case models.ResultWhiteWins:
		color = engine.White
	case models.ResultBlackWins:
		color = engine.Black
	default:
		return nil
	}
	st, ok := s.seats[color]
	if !ok {
		return nil
	}
	id := st.userID
	return &id
}

func (s *Session) moveResult() *MoveResult {
	return &MoveResult{
		RoomID:     s.roomID,
		Position:   s.eng.Position(),
		Turn:       s.eng.Turn(),
		Finished:   s.state == StateFinished,
		Result:     s.result,
		WinnerID:   s.winnerID,
		MovesJSON:  s.movesJSON(),
		TotalMoves: len(s.moves),
	}
}

func (s *Session) movesJSON() string {
	if len(s.moves) == 0 {
		return "[]"
	}
	b, err := json.Marshal(s.moves)
	if err != nil {
		return "[]"
	}
	return string(b)
}

func (s *Session) snapshot() *Snapshot {
	snap := &Snapshot{
		RoomID:       s.roomID,
		GameType:     s.gameType,
		State:        s.state,
		Position:     s.eng.Position(),
		Turn:         s.eng.Turn(),
		SessionNonce: s.sessionNonce,
		Result:       s.result,
		WinnerID:     s.winnerID,
		TotalMoves:   len(s.moves),
	}
	if st, ok := s.seats[engine.White]; ok {
		id := st.userID
		snap.WhiteUserID = &id
	}
	if st, ok := s.seats[engine.Black]; ok {
		id := st.userID
		snap.BlackUserID = &id
	}
	return snap
}

func (s *Session) heartbeat(playerNonce string, now time.Time) error {
	st := s.seatByNonce(playerNonce)
	if st == nil {
		return models.ErrUnauthorized
	}
	st.lastSeen = now
	s.lastActivity = now
	return nil
}
