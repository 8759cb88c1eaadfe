package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/versusgg/versus-services/internal/matchsvc/models"
)

// SettlementStore runs one user's settlement as a single transaction: the
// (match, user) claim, the aggregate write and any achievement grants commit
// or roll back together.
type SettlementStore struct {
	db *pgxpool.Pool
}

func NewSettlementStore(db *pgxpool.Pool) *SettlementStore {
	return &SettlementStore{db: db}
}

// SettleOnce claims the (match, user) settlement slot and hands the current
// aggregate to fn inside the same transaction. It returns false without
// calling fn when a previous delivery already claimed the slot. Any error
// rolls the claim back too, so a redelivered event retries the whole
// settlement instead of finding a claim with no writes behind it.
func (s *SettlementStore) SettleOnce(ctx context.Context, matchID string, userID int64,
	fn func(st *models.UserStats, grant func(achievementID string) (bool, error)) error) (bool, error) {

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to begin settlement: %w", err)
	}
	defer tx.Rollback(ctx)

	claim := `
		INSERT INTO match_settlements (match_id, user_id)
		VALUES ($1, $2)
		ON CONFLICT (match_id, user_id) DO NOTHING
	`
	tag, err := tx.Exec(ctx, claim, matchID, userID)
	if err != nil {
		return false, fmt.Errorf("failed to claim settlement: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	seed := `
		INSERT INTO user_stats (user_id, rating)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO NOTHING
	`
	if _, err := tx.Exec(ctx, seed, userID, models.DefaultRating); err != nil {
		return false, fmt.Errorf("failed to init user stats: %w", err)
	}

	sel := `
		SELECT user_id, rating, wins, losses, draws, win_streak, best_win_streak,
		       games_played, points, updated_at
		FROM user_stats
		WHERE user_id = $1
		FOR UPDATE
	`
	st := &models.UserStats{}
	err = tx.QueryRow(ctx, sel, userID).Scan(
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
		return false, fmt.Errorf("failed to get user stats: %w", err)
	}

	grant := func(achievementID string) (bool, error) {
		query := `
			INSERT INTO user_achievements (user_id, achievement_id)
			VALUES ($1, $2)
			ON CONFLICT (user_id, achievement_id) DO NOTHING
		`
		tag, err := tx.Exec(ctx, query, userID, achievementID)
		if err != nil {
			return false, fmt.Errorf("failed to grant achievement: %w", err)
		}
		return tag.RowsAffected() == 1, nil
	}

	if err := fn(st, grant); err != nil {
		return false, err
	}

	update := `
		UPDATE user_stats
		SET rating = $2, wins = $3, losses = $4, draws = $5,
		    win_streak = $6, best_win_streak = $7, games_played = $8,
		    points = $9, updated_at = NOW()
		WHERE user_id = $1
	`
	if _, err := tx.Exec(ctx, update,
		st.UserID, st.Rating, st.Wins, st.Losses, st.Draws,
		st.WinStreak, st.BestWinStreak, st.GamesPlayed, st.Points); err != nil {
		return false, fmt.Errorf("failed to update user stats: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("failed to commit settlement: %w", err)
	}
	return true, nil
}
