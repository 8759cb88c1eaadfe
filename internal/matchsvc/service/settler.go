package service

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/versusgg/versus-services/internal/comm"
	"github.com/versusgg/versus-services/internal/matchsvc/models"
)

// SettlementStore runs one user's settlement as a unit. Implemented by
// store.SettlementStore, which puts the (match, user) claim, the aggregate
// write and any achievement grants in one transaction. When fn errors the
// claim is released, so a redelivered event retries the settlement instead
// of skipping a user whose writes never landed.
type SettlementStore interface {
	SettleOnce(ctx context.Context, matchID string, userID int64,
		fn func(st *models.UserStats, grant func(achievementID string) (bool, error)) error) (bool, error)
}

// SettlerService applies a completed match to both players' aggregates and
// sweeps the achievement catalog. Safe under redelivery: every user's
// settlement commits exactly once per match.
type SettlerService struct {
	store SettlementStore
}

func NewSettlerService(store SettlementStore) *SettlerService {
	return &SettlerService{store: store}
}

type seatOutcome struct {
	userID int64
	won    bool
	lost   bool
	drew   bool
	delta  int
}

// Settle processes one MatchCompleted event.
func (s *SettlerService) Settle(ctx context.Context, ev *comm.MatchCompleted) error {
	for _, seat := range s.outcomes(ev) {
		if err := s.settleUser(ctx, ev.MatchID, seat); err != nil {
			return fmt.Errorf("settle user %d for match %s: %w", seat.userID, ev.MatchID, err)
		}
	}
	return nil
}

func (s *SettlerService) outcomes(ev *comm.MatchCompleted) []seatOutcome {
	white := seatOutcome{userID: ev.WhiteUserID}
	if ev.WhiteRatingChange != nil {
		white.delta = *ev.WhiteRatingChange
	}

	out := []seatOutcome{}

	switch models.MatchResult(ev.Result) {
	case models.ResultWhiteWins:
		white.won = true
	case models.ResultBlackWins:
		white.lost = true
	case models.ResultDraw:
		white.drew = true
	case models.ResultAbandoned:
		// both gone: games counted, no win/loss, no rating movement
	default:
		log.Warnf("ignoring match %s with unexpected result %q", ev.MatchID, ev.Result)
		return out
	}
	out = append(out, white)

	if ev.BlackUserID != nil {
		black := seatOutcome{
			userID: *ev.BlackUserID,
			won:    white.lost,
			lost:   white.won,
			drew:   white.drew,
		}
		if ev.BlackRatingChange != nil {
			black.delta = *ev.BlackRatingChange
		}
		out = append(out, black)
	}
	return out
}

func (s *SettlerService) settleUser(ctx context.Context, matchID string, seat seatOutcome) error {
	claimed, err := s.store.SettleOnce(ctx, matchID, seat.userID,
		func(st *models.UserStats, grant func(achievementID string) (bool, error)) error {
			st.Rating = ApplyDelta(st.Rating, seat.delta)
			st.GamesPlayed++
			switch {
			case seat.won:
				st.Wins++
				st.WinStreak++
				if st.WinStreak > st.BestWinStreak {
					st.BestWinStreak = st.WinStreak
				}
			case seat.lost:
				st.Losses++
				st.WinStreak = 0
			case seat.drew:
				st.Draws++
				st.WinStreak = 0
			}

			granted, err := s.sweepAchievements(st, grant)
			if err != nil {
				return err
			}
			st.Points += granted
			return nil
		})
	if err != nil {
		return err
	}
	if !claimed {
		log.Infof("match %s already settled for user %d, skipping", matchID, seat.userID)
	}
	return nil
}

// sweepAchievements evaluates the fixed catalog against the updated
// aggregate and returns the points from newly landed grants.
func (s *SettlerService) sweepAchievements(st *models.UserStats, grant func(achievementID string) (bool, error)) (int, error) {
	points := 0
	for _, rule := range models.AchievementCatalog {
		if !rule.Criteria(st) {
			continue
		}
		landed, err := grant(rule.ID)
		if err != nil {
			return points, err
		}
		if landed {
			points += rule.Points
			log.Infof("achievement %s granted to user %d", rule.ID, st.UserID)
		}
	}
	return points, nil
}
