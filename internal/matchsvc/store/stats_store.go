package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/versusgg/versus-services/internal/matchsvc/models"
)

type StatsStore struct {
	db *pgxpool.Pool
}

func NewStatsStore(db *pgxpool.Pool) *StatsStore {
	return &StatsStore{db: db}
}

// GetOrCreate returns the user's aggregate, inserting the default row on
// first contact.
func (s *StatsStore) GetOrCreate(ctx context.Context, userID int64) (*models.UserStats, error) {
	insert := `
		INSERT INTO user_stats (user_id, rating)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO NOTHING
	`
	if _, err := s.db.Exec(ctx, insert, userID, models.DefaultRating); err != nil {
		return nil, fmt.Errorf("failed to init user stats: %w", err)
	}

	query := `
		SELECT user_id, rating, wins, losses, draws, win_streak, best_win_streak,
		       games_played, points, updated_at
		FROM user_stats
		WHERE user_id = $1
	`

	st := &models.UserStats{}
	err := s.db.QueryRow(ctx, query, userID).Scan(
		&st.UserID,
		&st.Rating,
		&st.Wins,
		&st.Losses,
		&st.Draws,
		&st.WinStreak,
		&st.BestWinStreak,
		&st.GamesPlayed,
		&st.Points,
		&st.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get user stats: %w", err)
	}
	return st, nil
}

// GetRating returns the user's current rating, seeding the default row if
// the user has never played.
func (s *StatsStore) GetRating(ctx context.Context, userID int64) (int, error) {
	st, err := s.GetOrCreate(ctx, userID)
	if err != nil {
		return 0, err
	}
	return st.Rating, nil
}
