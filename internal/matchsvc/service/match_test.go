package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/versusgg/versus-services/internal/comm"
	"github.com/versusgg/versus-services/internal/matchsvc/engine"
	"github.com/versusgg/versus-services/internal/matchsvc/models"
	"github.com/versusgg/versus-services/internal/matchsvc/session"
)

// fakeRegistry mirrors the conditional-write semantics of the postgres
// store: seat and completion writes only land against the expected current
// state, under one lock.
type fakeRegistry struct {
	mu     sync.Mutex
	byRoom map[string]*models.Match
	byID   map[string]*models.Match
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{
		byRoom: make(map[string]*models.Match),
		byID:   make(map[string]*models.Match),
	}
}

func (f *fakeRegistry) CreateMatch(_ context.Context, gameType models.GameType, creatorUserID int64, creatorRating int) (*models.Match, error) {
	if !gameType.Valid() {
		return nil, models.ErrInvalidGameType
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	m := &models.Match{
		ID:                uuid.NewString(),
		RoomID:            uuid.NewString(),
		GameType:          gameType,
		WhiteUserID:       creatorUserID,
		Result:            models.ResultPending,
		WhiteRatingBefore: creatorRating,
		MovesJSON:         "[]",
		StartedAt:         time.Now(),
	}
	f.byRoom[m.RoomID] = m
	f.byID[m.ID] = m
	return copyMatch(m), nil
}

func (f *fakeRegistry) FindByRoomID(_ context.Context, roomID string) (*models.Match, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.byRoom[roomID]
	if !ok {
		return nil, models.ErrNotFound
	}
	return copyMatch(m), nil
}

func (f *fakeRegistry) FindJoinable(_ context.Context, roomID string) (*models.Match, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.byRoom[roomID]
	if !ok || m.Result != models.ResultPending {
		return nil, models.ErrNotFound
	}
	return copyMatch(m), nil
}

func (f *fakeRegistry) SeatSecondPlayer(_ context.Context, matchID string, userID int64, rating int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.byID[matchID]
	if !ok || m.BlackUserID != nil || m.Result != models.ResultPending {
		return models.ErrAlreadyFull
	}
	m.BlackUserID = &userID
	m.BlackRatingBefore = &rating
	return nil
}

func (f *fakeRegistry) CompleteOnce(_ context.Context, matchID string, result models.MatchResult,
	winnerID *int64, whiteChange, blackChange *int, movesJSON string, totalMoves int, durationMs int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.byID[matchID]
	if !ok {
		return models.ErrNotFound
	}
	if m.Result != models.ResultPending {
		return models.ErrAlreadyCompleted
	}
	now := time.Now()
	m.Result = result
	m.WinnerID = winnerID
	m.WhiteRatingChange = whiteChange
	m.BlackRatingChange = blackChange
	m.MovesJSON = movesJSON
	m.TotalMoves = totalMoves
	m.DurationMs = durationMs
	m.EndedAt = &now
	return nil
}

func (f *fakeRegistry) DeleteIfUncommitted(_ context.Context, matchID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.byID[matchID]
	if !ok || m.Result != models.ResultPending || m.BlackUserID != nil {
		return models.ErrNotFound
	}
	delete(f.byRoom, m.RoomID)
	delete(f.byID, matchID)
	return nil
}

func copyMatch(m *models.Match) *models.Match {
	c := *m
	return &c
}

type fakeRatings struct {
	mu      sync.Mutex
	ratings map[int64]int
}

func (f *fakeRatings) GetRating(_ context.Context, userID int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.ratings[userID]; ok {
		return r, nil
	}
	return models.DefaultRating, nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []*comm.MatchCompleted
}

func (f *fakePublisher) PublishMatchCompleted(ev *comm.MatchCompleted) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return nil
}

func (f *fakePublisher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

func newTestService() (*MatchService, *fakeRegistry, *fakePublisher) {
	registry := newFakeRegistry()
	pub := &fakePublisher{}
	sessions := session.NewManager(time.Minute, 30*time.Second)
	svc := NewMatchService(registry, &fakeRatings{ratings: map[int64]int{}}, sessions, NewRatingService(), pub)
	return svc, registry, pub
}

func TestCreateRoomSeatsCreatorAsWhite(t *testing.T) {
	svc, _, _ := newTestService()

	rg, err := svc.CreateRoom(context.Background(), models.GameTypeChess, 1)
	require.NoError(t, err)
	assert.Equal(t, models.ResultPending, rg.Match.Result)
	assert.Equal(t, int64(1), rg.Match.WhiteUserID)
	assert.Equal(t, models.DefaultRating, rg.Match.WhiteRatingBefore)
	assert.Equal(t, engine.White, rg.Grant.Color)
	assert.NotEmpty(t, rg.Grant.PlayerNonce)
	assert.NotEmpty(t, rg.Grant.SessionNonce)
}

func TestCreateRoomRejectsInvalidGameType(t *testing.T) {
	svc, _, _ := newTestService()

	_, err := svc.CreateRoom(context.Background(), models.GameType("snake"), 1)
	assert.ErrorIs(t, err, models.ErrInvalidGameType)
}

func TestJoinRoomFreshAndThirdCaller(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	rg, err := svc.CreateRoom(ctx, models.GameTypeTicTacToe, 1)
	require.NoError(t, err)

	joined, err := svc.JoinRoom(ctx, rg.Match.RoomID, 2)
	require.NoError(t, err)
	assert.Equal(t, engine.Black, joined.Grant.Color)
	require.NotNil(t, joined.Match.BlackUserID)
	assert.Equal(t, int64(2), *joined.Match.BlackUserID)

	_, err = svc.JoinRoom(ctx, rg.Match.RoomID, 3)
	assert.ErrorIs(t, err, models.ErrRoomFull)
}

func TestJoinRoomReconnectDoesNotTouchRegistry(t *testing.T) {
	svc, registry, _ := newTestService()
	ctx := context.Background()

	rg, err := svc.CreateRoom(ctx, models.GameTypeTicTacToe, 1)
	require.NoError(t, err)
	_, err = svc.JoinRoom(ctx, rg.Match.RoomID, 2)
	require.NoError(t, err)

	re, err := svc.JoinRoom(ctx, rg.Match.RoomID, 1)
	require.NoError(t, err)
	assert.True(t, re.Grant.IsReconnect)
	assert.Equal(t, rg.Grant.PlayerNonce, re.Grant.PlayerNonce)

	stored, err := registry.FindByRoomID(ctx, rg.Match.RoomID)
	require.NoError(t, err)
	require.NotNil(t, stored.BlackUserID)
	assert.Equal(t, int64(2), *stored.BlackUserID)
}

func TestJoinRoomUnknown(t *testing.T) {
	svc, _, _ := newTestService()
	_, err := svc.JoinRoom(context.Background(), "missing", 1)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestConcurrentJoinersOnlyOneSeated(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	rg, err := svc.CreateRoom(ctx, models.GameTypeTicTacToe, 1)
	require.NoError(t, err)

	const callers = 8
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.JoinRoom(ctx, rg.Match.RoomID, int64(i+2))
		}(i)
	}
	wg.Wait()

	seated := 0
	for _, err := range errs {
		if err == nil {
			seated++
		}
	}
	assert.Equal(t, 1, seated, "exactly one joiner wins the black seat")
}

func TestMoveToTerminalSettlesOnceWithRatings(t *testing.T) {
	svc, registry, pub := newTestService()
	ctx := context.Background()

	rg, err := svc.CreateRoom(ctx, models.GameTypeTicTacToe, 1)
	require.NoError(t, err)
	joined, err := svc.JoinRoom(ctx, rg.Match.RoomID, 2)
	require.NoError(t, err)

	roomID := rg.Match.RoomID
	white := rg.Grant.PlayerNonce
	black := joined.Grant.PlayerNonce

	var last *session.MoveResult
	for _, step := range []struct{ nonce, move string }{
		{white, "0"}, {black, "3"}, {white, "1"}, {black, "4"}, {white, "2"},
	} {
		last, err = svc.Move(ctx, roomID, step.nonce, step.move)
		require.NoError(t, err)
	}
	require.True(t, last.Finished)

	stored, err := registry.FindByRoomID(ctx, roomID)
	require.NoError(t, err)
	assert.Equal(t, models.ResultWhiteWins, stored.Result)
	require.NotNil(t, stored.WinnerID)
	assert.Equal(t, int64(1), *stored.WinnerID)
	require.NotNil(t, stored.WhiteRatingChange)
	require.NotNil(t, stored.BlackRatingChange)
	assert.Equal(t, 16, *stored.WhiteRatingChange, "1000 vs 1000, K=32")
	assert.Equal(t, -16, *stored.BlackRatingChange)
	assert.Equal(t, 5, stored.TotalMoves)
	assert.Equal(t, 1, pub.count())
}

func TestCompleteMatchIsIdempotent(t *testing.T) {
	svc, registry, pub := newTestService()
	ctx := context.Background()

	rg, err := svc.CreateRoom(ctx, models.GameTypeTicTacToe, 1)
	require.NoError(t, err)
	_, err = svc.JoinRoom(ctx, rg.Match.RoomID, 2)
	require.NoError(t, err)

	winner := int64(1)
	first, err := svc.CompleteMatch(ctx, rg.Match.RoomID, models.ResultWhiteWins, &winner, `["0"]`, 1)
	require.NoError(t, err)
	assert.Equal(t, models.ResultWhiteWins, first.Result)

	// the raced second report must return the stored truth, not fail and
	// not publish again
	loserReport := int64(2)
	second, err := svc.CompleteMatch(ctx, rg.Match.RoomID, models.ResultBlackWins, &loserReport, `["0"]`, 1)
	require.NoError(t, err)
	assert.Equal(t, models.ResultWhiteWins, second.Result)
	require.NotNil(t, second.WinnerID)
	assert.Equal(t, winner, *second.WinnerID)

	assert.Equal(t, 1, pub.count(), "only the winning CompleteOnce publishes")

	stored, err := registry.FindByRoomID(ctx, rg.Match.RoomID)
	require.NoError(t, err)
	assert.Equal(t, 16, *stored.WhiteRatingChange, "deltas applied once, not twice")
}

func TestConcurrentCompletionsAgreeOnFinalResult(t *testing.T) {
	svc, registry, pub := newTestService()
	ctx := context.Background()

	rg, err := svc.CreateRoom(ctx, models.GameTypeTicTacToe, 1)
	require.NoError(t, err)
	_, err = svc.JoinRoom(ctx, rg.Match.RoomID, 2)
	require.NoError(t, err)

	w, b := int64(1), int64(2)
	reports := []struct {
		result models.MatchResult
		winner *int64
	}{
		{models.ResultWhiteWins, &w},
		{models.ResultBlackWins, &b},
		{models.ResultDraw, nil},
	}

	var wg sync.WaitGroup
	results := make([]*models.Match, len(reports))
	for i, rep := range reports {
		wg.Add(1)
		go func(i int, result models.MatchResult, winner *int64) {
			defer wg.Done()
			m, err := svc.CompleteMatch(ctx, rg.Match.RoomID, result, winner, "[]", 0)
			assert.NoError(t, err)
			results[i] = m
		}(i, rep.result, rep.winner)
	}
	wg.Wait()

	stored, err := registry.FindByRoomID(ctx, rg.Match.RoomID)
	require.NoError(t, err)
	for _, m := range results {
		assert.Equal(t, stored.Result, m.Result, "all callers observe the persisted result")
	}
	assert.Equal(t, 1, pub.count())
}

func TestResignSettlesForOpponent(t *testing.T) {
	svc, registry, _ := newTestService()
	ctx := context.Background()

	rg, err := svc.CreateRoom(ctx, models.GameTypeChess, 7)
	require.NoError(t, err)
	joined, err := svc.JoinRoom(ctx, rg.Match.RoomID, 8)
	require.NoError(t, err)

	res, err := svc.Resign(ctx, rg.Match.RoomID, joined.Grant.PlayerNonce)
	require.NoError(t, err)
	assert.Equal(t, models.ResultWhiteWins, res.Result)

	stored, err := registry.FindByRoomID(ctx, rg.Match.RoomID)
	require.NoError(t, err)
	assert.Equal(t, models.ResultWhiteWins, stored.Result)
	require.NotNil(t, stored.WinnerID)
	assert.Equal(t, int64(7), *stored.WinnerID)
}

func TestJoinRoomRehydratesAfterRestart(t *testing.T) {
	registry := newFakeRegistry()
	ctx := context.Background()

	before := NewMatchService(registry, &fakeRatings{ratings: map[int64]int{}},
		session.NewManager(time.Minute, 30*time.Second), NewRatingService(), nil)
	rg, err := before.CreateRoom(ctx, models.GameTypeChess, 1)
	require.NoError(t, err)
	_, err = before.JoinRoom(ctx, rg.Match.RoomID, 2)
	require.NoError(t, err)

	// a fresh manager over the same registry is a restarted process: the
	// pending row survives, the live session does not
	after := NewMatchService(registry, &fakeRatings{ratings: map[int64]int{}},
		session.NewManager(time.Minute, 30*time.Second), NewRatingService(), nil)

	re, err := after.JoinRoom(ctx, rg.Match.RoomID, 1)
	require.NoError(t, err)
	assert.Equal(t, engine.White, re.Grant.Color)
	assert.True(t, re.Grant.IsReconnect)

	_, snap, err := after.GetRoom(ctx, rg.Match.RoomID)
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, session.StateFull, snap.State, "both registered seats restored")
	require.NotNil(t, snap.BlackUserID)
	assert.Equal(t, int64(2), *snap.BlackUserID)

	// the opponent reconnects into their original color too
	reB, err := after.JoinRoom(ctx, rg.Match.RoomID, 2)
	require.NoError(t, err)
	assert.Equal(t, engine.Black, reB.Grant.Color)
}

func TestJoinRoomAfterRestartOfSettledMatch(t *testing.T) {
	registry := newFakeRegistry()
	ctx := context.Background()

	before := NewMatchService(registry, &fakeRatings{ratings: map[int64]int{}},
		session.NewManager(time.Minute, 30*time.Second), NewRatingService(), nil)
	rg, err := before.CreateRoom(ctx, models.GameTypeTicTacToe, 1)
	require.NoError(t, err)
	_, err = before.JoinRoom(ctx, rg.Match.RoomID, 2)
	require.NoError(t, err)
	winner := int64(1)
	_, err = before.CompleteMatch(ctx, rg.Match.RoomID, models.ResultWhiteWins, &winner, "[]", 0)
	require.NoError(t, err)

	after := NewMatchService(registry, &fakeRatings{ratings: map[int64]int{}},
		session.NewManager(time.Minute, 30*time.Second), NewRatingService(), nil)

	_, err = after.JoinRoom(ctx, rg.Match.RoomID, 1)
	assert.ErrorIs(t, err, models.ErrAlreadyCompleted, "a settled match is never rebuilt")
}

func TestCompleteReportedValidatesCallerAndWinner(t *testing.T) {
	svc, registry, _ := newTestService()
	ctx := context.Background()

	rg, err := svc.CreateRoom(ctx, models.GameTypeTicTacToe, 1)
	require.NoError(t, err)
	_, err = svc.JoinRoom(ctx, rg.Match.RoomID, 2)
	require.NoError(t, err)

	white, black, outsider := int64(1), int64(2), int64(99)

	_, err = svc.CompleteReported(ctx, rg.Match.RoomID, outsider, models.ResultWhiteWins, &white, "[]", 0)
	assert.ErrorIs(t, err, models.ErrUnauthorized, "only seated users report completions")

	_, err = svc.CompleteReported(ctx, rg.Match.RoomID, white, models.ResultWhiteWins, &outsider, "[]", 0)
	assert.ErrorIs(t, err, models.ErrInvalidResult, "winner must hold a seat")

	_, err = svc.CompleteReported(ctx, rg.Match.RoomID, white, models.ResultWhiteWins, &black, "[]", 0)
	assert.ErrorIs(t, err, models.ErrInvalidResult, "winner must match the result column")

	_, err = svc.CompleteReported(ctx, rg.Match.RoomID, white, models.ResultDraw, &white, "[]", 0)
	assert.ErrorIs(t, err, models.ErrInvalidResult, "draws carry no winner")

	_, err = svc.CompleteReported(ctx, rg.Match.RoomID, white, models.ResultWhiteWins, nil, "[]", 0)
	assert.ErrorIs(t, err, models.ErrInvalidResult, "a decisive result names its winner")

	stored, err := registry.FindByRoomID(ctx, rg.Match.RoomID)
	require.NoError(t, err)
	assert.Equal(t, models.ResultPending, stored.Result, "rejected reports write nothing")

	m, err := svc.CompleteReported(ctx, rg.Match.RoomID, black, models.ResultWhiteWins, &white, "[]", 0)
	require.NoError(t, err)
	assert.Equal(t, models.ResultWhiteWins, m.Result)
	require.NotNil(t, m.WinnerID)
	assert.Equal(t, white, *m.WinnerID)
}

func TestGetRoomReturnsRowAndSnapshot(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	rg, err := svc.CreateRoom(ctx, models.GameTypeTicTacToe, 1)
	require.NoError(t, err)

	m, snap, err := svc.GetRoom(ctx, rg.Match.RoomID)
	require.NoError(t, err)
	assert.Equal(t, rg.Match.ID, m.ID)
	require.NotNil(t, snap)
	assert.Equal(t, session.StateAwaitingSecondPlayer, snap.State)
}
