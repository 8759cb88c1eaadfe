package models

import "time"

type Achievement struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Points      int    `json:"points"`

	// Criteria is evaluated against the freshly settled aggregate.
	Criteria func(s *UserStats) bool `json:"-"`
}

type UserAchievement struct {
	UserID        int64     `json:"user_id"`
	AchievementID string    `json:"achievement_id"`
	AwardedAt     time.Time `json:"awarded_at"`
}

// AchievementCatalog is the fixed rule set swept after every settlement.
// Grants are deduplicated in the store, so rules only need to describe the
// threshold, not whether it was crossed before.
var AchievementCatalog = []Achievement{
	{
		ID:          "first_win",
		Name:        "First Victory",
		Description: "Win your first match",
		Points:      10,
		Criteria:    func(s *UserStats) bool { return s.Wins >= 1 },
	},
	{
		ID:          "streak_5",
		Name:        "On Fire",
		Description: "Win five matches in a row",
		Points:      50,
		Criteria:    func(s *UserStats) bool { return s.WinStreak >= 5 },
	},
	{
		ID:          "rating_1500",
		Name:        "Contender",
		Description: "Reach a rating of 1500",
		Points:      100,
		Criteria:    func(s *UserStats) bool { return s.Rating >= 1500 },
	},
	{
		ID:          "games_10",
		Name:        "Regular",
		Description: "Finish ten matches",
		Points:      20,
		Criteria:    func(s *UserStats) bool { return s.GamesPlayed >= 10 },
	},
	{
		ID:          "games_100",
		Name:        "Veteran",
		Description: "Finish one hundred matches",
		Points:      200,
		Criteria:    func(s *UserStats) bool { return s.GamesPlayed >= 100 },
	},
}
