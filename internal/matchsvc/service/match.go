package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/versusgg/versus-services/internal/comm"
	"github.com/versusgg/versus-services/internal/matchsvc/models"
	"github.com/versusgg/versus-services/internal/matchsvc/session"
)

// Registry is the durable match store. Implemented by store.MatchStore.
type Registry interface {
	CreateMatch(ctx context.Context, gameType models.GameType, creatorUserID int64, creatorRating int) (*models.Match, error)
	FindByRoomID(ctx context.Context, roomID string) (*models.Match, error)
	FindJoinable(ctx context.Context, roomID string) (*models.Match, error)
	SeatSecondPlayer(ctx context.Context, matchID string, userID int64, rating int) error
	CompleteOnce(ctx context.Context, matchID string, result models.MatchResult, winnerID *int64,
		whiteChange, blackChange *int, movesJSON string, totalMoves int, durationMs int64) error
	DeleteIfUncommitted(ctx context.Context, matchID string) error
}

// RatingReader provides the current rating snapshotted into new matches.
// Implemented by store.StatsStore.
type RatingReader interface {
	GetRating(ctx context.Context, userID int64) (int, error)
}

// Publisher fans out the completed-match event. Implemented by
// broker.Broker.
type Publisher interface {
	PublishMatchCompleted(ev *comm.MatchCompleted) error
}

// MatchService coordinates the registry, the session actor and the rating
// engine. It is the only writer bridging the durable row and the live state.
type MatchService struct {
	registry  Registry
	ratings   RatingReader
	sessions  *session.Manager
	rating    *RatingService
	publisher Publisher
}

func NewMatchService(registry Registry, ratings RatingReader, sessions *session.Manager,
	rating *RatingService, publisher Publisher) *MatchService {
	return &MatchService{
		registry:  registry,
		ratings:   ratings,
		sessions:  sessions,
		rating:    rating,
		publisher: publisher,
	}
}

// RoomGrant is the response to a successful create or join.
type RoomGrant struct {
	Match *models.Match      `json:"match"`
	Grant *session.JoinGrant `json:"grant"`
}

// CreateRoom creates the registry row and then the session actor. The two
// live in different storage domains, so a failed actor init rolls the row
// back with a compensating delete instead of a transaction.
func (s *MatchService) CreateRoom(ctx context.Context, gameType models.GameType, userID int64) (*RoomGrant, error) {
	rating, err := s.ratings.GetRating(ctx, userID)
	if err != nil {
		return nil, err
	}

	m, err := s.registry.CreateMatch(ctx, gameType, userID, rating)
	if err != nil {
		return nil, err
	}

	grant, err := s.initAndSeatCreator(gameType, m.RoomID, userID)
	if err != nil {
		if delErr := s.registry.DeleteIfUncommitted(ctx, m.ID); delErr != nil {
			// Orphaned pending row; operations has to reconcile by hand.
			log.Errorf("ALERT compensating delete failed for match %s: %v (init error: %v)", m.ID, delErr, err)
		}
		return nil, fmt.Errorf("%w: %v", models.ErrRoomCreationFailed, err)
	}

	return &RoomGrant{Match: m, Grant: grant}, nil
}

func (s *MatchService) initAndSeatCreator(gameType models.GameType, roomID string, userID int64) (*session.JoinGrant, error) {
	if _, err := s.sessions.Init(gameType, roomID, "pvp"); err != nil {
		return nil, err
	}
	return s.sessions.Join(roomID, userID, "")
}

// JoinRoom seats the caller or confirms the seat they already hold. A seated
// user reconnecting never mutates the registry.
func (s *MatchService) JoinRoom(ctx context.Context, roomID string, userID int64) (*RoomGrant, error) {
	m, err := s.registry.FindByRoomID(ctx, roomID)
	if err != nil {
		return nil, err
	}

	if m.Seated(userID) {
		grant, err := s.sessions.Join(roomID, userID, "")
		if errors.Is(err, models.ErrNotFound) {
			if m.Settled() {
				// The session was evicted after settlement. Never reopen a
				// finished match; the stored row is the answer.
				return nil, models.ErrAlreadyCompleted
			}
			// Pending row with no resident session: the process restarted.
			grant, err = s.rehydrate(m, userID)
		}
		if err != nil {
			return nil, err
		}
		return &RoomGrant{Match: m, Grant: grant}, nil
	}

	if m.Settled() {
		return nil, models.ErrAlreadyCompleted
	}
	if m.BlackUserID != nil {
		return nil, models.ErrRoomFull
	}

	rating, err := s.ratings.GetRating(ctx, userID)
	if err != nil {
		return nil, err
	}

	if _, err := s.registry.FindJoinable(ctx, roomID); err != nil {
		return nil, err
	}
	if err := s.registry.SeatSecondPlayer(ctx, m.ID, userID, rating); err != nil {
		return nil, err
	}

	grant, err := s.sessions.Join(roomID, userID, "")
	if err != nil {
		if errors.Is(err, models.ErrRoomFull) {
			// Registry had the seat open but the actor disagrees. Never pick
			// a side silently.
			log.Errorf("ALERT registry/actor seat conflict for room %s user %d", roomID, userID)
			return nil, models.ErrConflict
		}
		return nil, err
	}

	m, err = s.registry.FindByRoomID(ctx, roomID)
	if err != nil {
		return nil, err
	}
	return &RoomGrant{Match: m, Grant: grant}, nil
}

// rehydrate rebuilds the session actor for a pending match after a restart,
// seating the registered players in their original colors. Moves are not
// persisted before settlement, so the board restarts from the initial
// position.
func (s *MatchService) rehydrate(m *models.Match, userID int64) (*session.JoinGrant, error) {
	if _, err := s.sessions.Init(m.GameType, m.RoomID, "pvp"); err != nil {
		return nil, err
	}
	// white held the first seat originally; joining in that order keeps
	// the colors from the row
	if _, err := s.sessions.Join(m.RoomID, m.WhiteUserID, ""); err != nil {
		return nil, err
	}
	if m.BlackUserID != nil {
		if _, err := s.sessions.Join(m.RoomID, *m.BlackUserID, ""); err != nil {
			return nil, err
		}
	}
	log.Infof("session rehydrated for room %s", m.RoomID)
	return s.sessions.Join(m.RoomID, userID, "")
}

// Move applies a move via the session actor and, when the game reaches a
// terminal position, settles the match.
func (s *MatchService) Move(ctx context.Context, roomID, playerNonce, move string) (*session.MoveResult, error) {
	res, err := s.sessions.Move(roomID, playerNonce, move)
	if err != nil {
		return nil, err
	}
	if res.Finished {
		if _, err := s.CompleteMatch(ctx, roomID, res.Result, res.WinnerID, res.MovesJSON, res.TotalMoves); err != nil {
			// The session is finished either way; completion can be retried
			// through the explicit complete endpoint.
			log.Errorf("settlement after terminal move failed for room %s: %v", roomID, err)
		}
	}
	return res, nil
}

// Resign ends the match in the opponent's favor and settles it.
func (s *MatchService) Resign(ctx context.Context, roomID, playerNonce string) (*session.MoveResult, error) {
	res, err := s.sessions.Resign(roomID, playerNonce)
	if err != nil {
		return nil, err
	}
	if _, err := s.CompleteMatch(ctx, roomID, res.Result, res.WinnerID, res.MovesJSON, res.TotalMoves); err != nil {
		log.Errorf("settlement after resignation failed for room %s: %v", roomID, err)
	}
	return res, nil
}

// SettleAbandoned is the janitor callback for rooms that went silent.
func (s *MatchService) SettleAbandoned(roomID string, res *session.MoveResult) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := s.CompleteMatch(ctx, roomID, res.Result, res.WinnerID, res.MovesJSON, res.TotalMoves); err != nil {
		log.Errorf("settlement of abandoned room %s failed: %v", roomID, err)
	}
}

// CompleteReported settles a completion reported over the REST surface. The
// caller must hold a seat and the winner must agree with the result and the
// seated users; the session actor's own settlements bypass this and call
// CompleteMatch directly.
func (s *MatchService) CompleteReported(ctx context.Context, roomID string, callerID int64,
	result models.MatchResult, winnerID *int64, movesJSON string, totalMoves int) (*models.Match, error) {

	m, err := s.registry.FindByRoomID(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if !m.Seated(callerID) {
		return nil, models.ErrUnauthorized
	}
	if err := validateOutcome(m, result, winnerID); err != nil {
		return nil, err
	}
	return s.CompleteMatch(ctx, roomID, result, winnerID, movesJSON, totalMoves)
}

// validateOutcome rejects reports whose winner names a third party or
// contradicts the result column about to be written.
func validateOutcome(m *models.Match, result models.MatchResult, winnerID *int64) error {
	switch result {
	case models.ResultWhiteWins:
		if winnerID == nil || *winnerID != m.WhiteUserID {
			return models.ErrInvalidResult
		}
	case models.ResultBlackWins:
		if winnerID == nil || m.BlackUserID == nil || *winnerID != *m.BlackUserID {
			return models.ErrInvalidResult
		}
	case models.ResultDraw, models.ResultAbandoned:
		if winnerID != nil {
			return models.ErrInvalidResult
		}
	default:
		return models.ErrInvalidResult
	}
	return nil
}

// CompleteMatch computes rating deltas and performs the once-only registry
// write. Losing the completion race is not an error: both clients may report
// the same finish, so the caller gets the stored outcome back as success.
func (s *MatchService) CompleteMatch(ctx context.Context, roomID string, result models.MatchResult,
	winnerID *int64, movesJSON string, totalMoves int) (*models.Match, error) {

	m, err := s.registry.FindByRoomID(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if m.Settled() {
		return m, nil
	}

	whiteChange, blackChange := s.ratingChanges(m, result)
	durationMs := time.Since(m.StartedAt).Milliseconds()

	err = s.registry.CompleteOnce(ctx, m.ID, result, winnerID, whiteChange, blackChange,
		movesJSON, totalMoves, durationMs)
	if errors.Is(err, models.ErrAlreadyCompleted) {
		// Another caller won the race; their outcome is the truth.
		return s.registry.FindByRoomID(ctx, roomID)
	}
	if err != nil {
		return nil, err
	}

	m, err = s.registry.FindByRoomID(ctx, roomID)
	if err != nil {
		return nil, err
	}

	s.publishCompleted(m)
	return m, nil
}

// ratingChanges maps a terminal result onto per-seat deltas. Solo rooms and
// abandoned matches with no winner are unrated.
func (s *MatchService) ratingChanges(m *models.Match, result models.MatchResult) (whiteChange, blackChange *int) {
	if m.BlackUserID == nil || m.BlackRatingBefore == nil {
		return nil, nil
	}

	white := m.WhiteRatingBefore
	black := *m.BlackRatingBefore

	switch result {
	case models.ResultDraw:
		w, b := s.rating.Deltas(white, black, true)
		return &w, &b
	case models.ResultWhiteWins:
		w, b := s.rating.Deltas(white, black, false)
		return &w, &b
	case models.ResultBlackWins:
		b, w := s.rating.Deltas(black, white, false)
		return &w, &b
	default:
		// abandoned with nobody left: no rating movement
		return nil, nil
	}
}

func (s *MatchService) publishCompleted(m *models.Match) {
	if s.publisher == nil {
		return
	}

	ev := &comm.MatchCompleted{
		MatchID:           m.ID,
		RoomID:            m.RoomID,
		GameType:          string(m.GameType),
		WhiteUserID:       m.WhiteUserID,
		BlackUserID:       m.BlackUserID,
		WinnerID:          m.WinnerID,
		Result:            string(m.Result),
		WhiteRatingChange: m.WhiteRatingChange,
		BlackRatingChange: m.BlackRatingChange,
		TotalMoves:        m.TotalMoves,
		DurationMs:        m.DurationMs,
		EndedAt:           time.Now().UTC(),
	}
	if m.EndedAt != nil {
		ev.EndedAt = *m.EndedAt
	}

	if err := s.publisher.PublishMatchCompleted(ev); err != nil {
		log.Errorf("failed to publish match.completed for %s: %v", m.ID, err)
	}
}

// GetRoom combines the registry row with the live snapshot, if the session
// is still resident.
func (s *MatchService) GetRoom(ctx context.Context, roomID string) (*models.Match, *session.Snapshot, error) {
	m, err := s.registry.FindByRoomID(ctx, roomID)
	if err != nil {
		return nil, nil, err
	}

	snap, err := s.sessions.State(roomID)
	if errors.Is(err, models.ErrNotFound) {
		return m, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	return m, snap, nil
}
