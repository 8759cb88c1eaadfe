package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/versusgg/versus-services/internal/comm"
	"github.com/versusgg/versus-services/internal/matchsvc/models"
)

type settlementKey struct {
	matchID string
	userID  int64
}

// fakeSettlementStore mirrors the transactional semantics of the postgres
// store: the claim, the aggregate write and the grants land together, and an
// error discards all of them including the claim.
type fakeSettlementStore struct {
	mu      sync.Mutex
	settled map[settlementKey]bool
	stats   map[int64]*models.UserStats
	held    map[int64]map[string]bool

	failCommits int // settlements to abort before anything persists
}

func newFakeSettlementStore() *fakeSettlementStore {
	return &fakeSettlementStore{
		settled: make(map[settlementKey]bool),
		stats:   make(map[int64]*models.UserStats),
		held:    make(map[int64]map[string]bool),
	}
}

func (f *fakeSettlementStore) SettleOnce(_ context.Context, matchID string, userID int64,
	fn func(st *models.UserStats, grant func(achievementID string) (bool, error)) error) (bool, error) {

	f.mu.Lock()
	defer f.mu.Unlock()

	k := settlementKey{matchID, userID}
	if f.settled[k] {
		return false, nil
	}

	st := &models.UserStats{UserID: userID, Rating: models.DefaultRating}
	if cur, ok := f.stats[userID]; ok {
		c := *cur
		st = &c
	}

	var staged []string
	grant := func(achievementID string) (bool, error) {
		if f.held[userID][achievementID] {
			return false, nil
		}
		for _, id := range staged {
			if id == achievementID {
				return false, nil
			}
		}
		staged = append(staged, achievementID)
		return true, nil
	}

	if err := fn(st, grant); err != nil {
		return false, err
	}
	if f.failCommits > 0 {
		f.failCommits--
		return false, errors.New("settlement commit failed")
	}

	f.settled[k] = true
	st.UpdatedAt = time.Now()
	f.stats[userID] = st
	for _, id := range staged {
		if f.held[userID] == nil {
			f.held[userID] = make(map[string]bool)
		}
		f.held[userID][id] = true
	}
	return true, nil
}

func whiteWinEvent(matchID string, white, black int64) *comm.MatchCompleted {
	wd, bd := 16, -16
	winner := white
	return &comm.MatchCompleted{
		MatchID:           matchID,
		RoomID:            "room-" + matchID,
		GameType:          "chess",
		WhiteUserID:       white,
		BlackUserID:       &black,
		WinnerID:          &winner,
		Result:            string(models.ResultWhiteWins),
		WhiteRatingChange: &wd,
		BlackRatingChange: &bd,
		TotalMoves:        20,
		DurationMs:        60000,
		EndedAt:           time.Now(),
	}
}

func TestSettleAppliesRatingsAndCounters(t *testing.T) {
	st := newFakeSettlementStore()
	settler := NewSettlerService(st)

	require.NoError(t, settler.Settle(context.Background(), whiteWinEvent("m1", 1, 2)))

	winner := st.stats[1]
	require.NotNil(t, winner)
	assert.Equal(t, 1016, winner.Rating)
	assert.Equal(t, 1, winner.Wins)
	assert.Equal(t, 1, winner.WinStreak)
	assert.Equal(t, 1, winner.BestWinStreak)
	assert.Equal(t, 1, winner.GamesPlayed)

	loser := st.stats[2]
	require.NotNil(t, loser)
	assert.Equal(t, 984, loser.Rating)
	assert.Equal(t, 1, loser.Losses)
	assert.Equal(t, 0, loser.WinStreak)
}

func TestSettleIsIdempotentUnderRedelivery(t *testing.T) {
	st := newFakeSettlementStore()
	settler := NewSettlerService(st)
	ev := whiteWinEvent("m1", 1, 2)

	require.NoError(t, settler.Settle(context.Background(), ev))
	require.NoError(t, settler.Settle(context.Background(), ev))

	assert.Equal(t, 1016, st.stats[1].Rating, "rating applied once, not twice")
	assert.Equal(t, 1, st.stats[1].Wins)
	assert.Equal(t, 984, st.stats[2].Rating)
}

func TestSettleRetriesAfterFailedCommit(t *testing.T) {
	st := newFakeSettlementStore()
	st.failCommits = 1
	settler := NewSettlerService(st)
	ev := whiteWinEvent("m1", 1, 2)

	// First delivery dies mid-settlement. The claim must die with it:
	// nothing persisted, no achievement half-granted.
	require.Error(t, settler.Settle(context.Background(), ev))
	assert.Empty(t, st.settled)
	assert.Empty(t, st.stats)
	assert.Empty(t, st.held)

	// Redelivery settles cleanly rather than skipping the claimed user.
	require.NoError(t, settler.Settle(context.Background(), ev))
	require.NotNil(t, st.stats[1])
	assert.Equal(t, 1016, st.stats[1].Rating)
	assert.Equal(t, 1, st.stats[1].Wins)
	assert.True(t, st.held[1]["first_win"])
	assert.Equal(t, 10, st.stats[1].Points)
}

func TestSettleGrantsFirstWinOnce(t *testing.T) {
	st := newFakeSettlementStore()
	settler := NewSettlerService(st)

	require.NoError(t, settler.Settle(context.Background(), whiteWinEvent("m1", 1, 2)))
	assert.True(t, st.held[1]["first_win"])
	pointsAfterFirst := st.stats[1].Points
	assert.Equal(t, 10, pointsAfterFirst)

	require.NoError(t, settler.Settle(context.Background(), whiteWinEvent("m2", 1, 2)))
	assert.Equal(t, pointsAfterFirst, st.stats[1].Points, "no double credit for a held achievement")
}

func TestSettleStreakAchievement(t *testing.T) {
	st := newFakeSettlementStore()
	settler := NewSettlerService(st)

	for i := 0; i < 5; i++ {
		ev := whiteWinEvent(string(rune('a'+i)), 1, 2)
		require.NoError(t, settler.Settle(context.Background(), ev))
	}

	assert.Equal(t, 5, st.stats[1].WinStreak)
	assert.Equal(t, 5, st.stats[1].BestWinStreak)
	assert.True(t, st.held[1]["streak_5"])
}

func TestSettleStreakResetsOnLoss(t *testing.T) {
	st := newFakeSettlementStore()
	settler := NewSettlerService(st)

	require.NoError(t, settler.Settle(context.Background(), whiteWinEvent("m1", 1, 2)))
	require.NoError(t, settler.Settle(context.Background(), whiteWinEvent("m2", 2, 1))) // user 1 loses as black

	stats := st.stats[1]
	assert.Equal(t, 0, stats.WinStreak)
	assert.Equal(t, 1, stats.BestWinStreak)
	assert.Equal(t, 1, stats.Wins)
	assert.Equal(t, 1, stats.Losses)
}

func TestSettleDraw(t *testing.T) {
	st := newFakeSettlementStore()
	settler := NewSettlerService(st)

	black := int64(2)
	zero := 0
	ev := &comm.MatchCompleted{
		MatchID:           "m1",
		WhiteUserID:       1,
		BlackUserID:       &black,
		Result:            string(models.ResultDraw),
		WhiteRatingChange: &zero,
		BlackRatingChange: &zero,
	}
	require.NoError(t, settler.Settle(context.Background(), ev))

	assert.Equal(t, 1, st.stats[1].Draws)
	assert.Equal(t, 1, st.stats[2].Draws)
	assert.Equal(t, models.DefaultRating, st.stats[1].Rating)
}

func TestSettleAbandonedLeavesRecordUnrated(t *testing.T) {
	st := newFakeSettlementStore()
	settler := NewSettlerService(st)

	black := int64(2)
	ev := &comm.MatchCompleted{
		MatchID:     "m1",
		WhiteUserID: 1,
		BlackUserID: &black,
		Result:      string(models.ResultAbandoned),
	}
	require.NoError(t, settler.Settle(context.Background(), ev))

	stats := st.stats[1]
	assert.Equal(t, models.DefaultRating, stats.Rating)
	assert.Equal(t, 0, stats.Wins)
	assert.Equal(t, 0, stats.Losses)
	assert.Equal(t, 1, stats.GamesPlayed)
}

func TestSettleRatingFloor(t *testing.T) {
	st := newFakeSettlementStore()
	st.stats[2] = &models.UserStats{UserID: 2, Rating: 5}
	settler := NewSettlerService(st)

	require.NoError(t, settler.Settle(context.Background(), whiteWinEvent("m1", 1, 2)))
	assert.Equal(t, 0, st.stats[2].Rating, "rating never goes negative")
}

func TestSettleSoloRoom(t *testing.T) {
	st := newFakeSettlementStore()
	settler := NewSettlerService(st)

	ev := &comm.MatchCompleted{
		MatchID:     "m1",
		WhiteUserID: 1,
		Result:      string(models.ResultAbandoned),
	}
	require.NoError(t, settler.Settle(context.Background(), ev))
	assert.Len(t, st.stats, 1, "only the seated user is touched")
}
