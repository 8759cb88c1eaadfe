package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/versusgg/versus-services/internal/matchsvc/models"
)

type AchievementStore struct {
	db *pgxpool.Pool
}

func NewAchievementStore(db *pgxpool.Pool) *AchievementStore {
	return &AchievementStore{db: db}
}

// ListByUser returns everything the user has unlocked. Grants happen inside
// the settlement transaction (see SettlementStore); this is the read side.
func (s *AchievementStore) ListByUser(ctx context.Context, userID int64) ([]*models.UserAchievement, error) {
	query := `
		SELECT user_id, achievement_id, awarded_at
		FROM user_achievements
		WHERE user_id = $1
		ORDER BY awarded_at
	`

	rows, err := s.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list achievements: %w", err)
	}
	defer rows.Close()

	var out []*models.UserAchievement
	for rows.Next() {
		ua := &models.UserAchievement{}
		if err := rows.Scan(&ua.UserID, &ua.AchievementID, &ua.AwardedAt); err != nil {
			return nil, err
		}
		out = append(out, ua)
	}
	return out, rows.Err()
}
