package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/versusgg/versus-services/internal/matchsvc/models"
)

type MatchStore struct {
	db *pgxpool.Pool
}

func NewMatchStore(db *pgxpool.Pool) *MatchStore {
	return &MatchStore{db: db}
}

const matchColumns = `id, room_id, game_type, white_user_id, black_user_id,
		winner_id, result, white_rating_before, black_rating_before,
		white_rating_change, black_rating_change,
		moves_json, total_moves, duration_ms, started_at, ended_at`

func scanMatch(row pgx.Row) (*models.Match, error) {
	m := &models.Match{}
	err := row.Scan(
		&m.ID,
		&m.RoomID,
		&m.GameType,
		&m.WhiteUserID,
		&m.BlackUserID,
		&m.WinnerID,
		&m.Result,
		&m.WhiteRatingBefore,
		&m.BlackRatingBefore,
		&m.WhiteRatingChange,
		&m.BlackRatingChange,
		&m.MovesJSON,
		&m.TotalMoves,
		&m.DurationMs,
		&m.StartedAt,
		&m.EndedAt,
	)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// CreateMatch inserts a pending row with the creator seated as white and the
// creator's rating snapshotted.
func (s *MatchStore) CreateMatch(ctx context.Context, gameType models.GameType, creatorUserID int64, creatorRating int) (*models.Match, error) {
	if !gameType.Valid() {
		return nil, models.ErrInvalidGameType
	}

	query := `
		INSERT INTO matches (id, room_id, game_type, white_user_id, result,
			white_rating_before, moves_json, total_moves, duration_ms, started_at)
		VALUES ($1, $2, $3, $4, 'pending', $5, '[]', 0, 0, NOW())
		RETURNING ` + matchColumns

	id := uuid.NewString()
	roomID := uuid.NewString()

	m, err := scanMatch(s.db.QueryRow(ctx, query, id, roomID, gameType, creatorUserID, creatorRating))
	if err != nil {
		return nil, fmt.Errorf("failed to create match: %w", err)
	}
	return m, nil
}

// FindByRoomID returns the row regardless of result.
func (s *MatchStore) FindByRoomID(ctx context.Context, roomID string) (*models.Match, error) {
	query := `SELECT ` + matchColumns + ` FROM matches WHERE room_id = $1`

	m, err := scanMatch(s.db.QueryRow(ctx, query, roomID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get match by room: %w", err)
	}
	return m, nil
}

// FindJoinable returns the row only while the match is still pending.
func (s *MatchStore) FindJoinable(ctx context.Context, roomID string) (*models.Match, error) {
	query := `SELECT ` + matchColumns + ` FROM matches WHERE room_id = $1 AND result = 'pending'`

	m, err := scanMatch(s.db.QueryRow(ctx, query, roomID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get joinable match: %w", err)
	}
	return m, nil
}

// SeatSecondPlayer fills the black seat. The WHERE clause makes the write a
// compare-and-swap: two racing joiners cannot both land, the loser sees
// ErrAlreadyFull.
func (s *MatchStore) SeatSecondPlayer(ctx context.Context, matchID string, userID int64, rating int) error {
	query := `
		UPDATE matches
		SET black_user_id = $2, black_rating_before = $3
		WHERE id = $1 AND black_user_id IS NULL AND result = 'pending'
	`

	tag, err := s.db.Exec(ctx, query, matchID, userID, rating)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return fmt.Errorf("invalid reference: %s", pgErr.Message)
		}
		return fmt.Errorf("failed to seat second player: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrAlreadyFull
	}
	return nil
}

// CompleteOnce finalizes the match. The result column is only written while
// it still reads 'pending'; the losing writer of a completion race gets
// ErrAlreadyCompleted and must treat the stored outcome as the truth.
func (s *MatchStore) CompleteOnce(ctx context.Context, matchID string, result models.MatchResult,
	winnerID *int64, whiteChange, blackChange *int, movesJSON string, totalMoves int, durationMs int64) error {

	query := `
		UPDATE matches
		SET result = $2,
		    winner_id = $3,
		    white_rating_change = $4,
		    black_rating_change = $5,
		    moves_json = $6,
		    total_moves = $7,
		    duration_ms = $8,
		    ended_at = NOW()
		WHERE id = $1 AND result = 'pending'
	`

	tag, err := s.db.Exec(ctx, query, matchID, result, winnerID, whiteChange, blackChange,
		movesJSON, totalMoves, durationMs)
	if err != nil {
		return fmt.Errorf("failed to complete match: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrAlreadyCompleted
	}
	return nil
}

// DeleteIfUncommitted is the compensating action for a failed room creation.
// It only removes a row nobody could have joined or settled.
func (s *MatchStore) DeleteIfUncommitted(ctx context.Context, matchID string) error {
	query := `DELETE FROM matches WHERE id = $1 AND result = 'pending' AND black_user_id IS NULL`

	tag, err := s.db.Exec(ctx, query, matchID)
	if err != nil {
		return fmt.Errorf("failed to delete uncommitted match: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}
