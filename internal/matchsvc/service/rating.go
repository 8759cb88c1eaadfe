package service

import "math"

// RatingService computes Elo deltas for finished matches. Pure computation,
// no side effects.
type RatingService struct {
	kFactor float64
}

func NewRatingService() *RatingService {
	return &RatingService{kFactor: 32}
}

// Deltas returns the rating changes for the winner and the loser. For a draw
// the two arguments are white and black, each scored against an expected 0.5.
func (s *RatingService) Deltas(winnerRating, loserRating int, isDraw bool) (winnerDelta, loserDelta int) {
	expectedWinner := s.expectedScore(float64(winnerRating), float64(loserRating))
	expectedLoser := 1.0 - expectedWinner

	if isDraw {
		winnerDelta = int(math.Round(s.kFactor * (0.5 - expectedWinner)))
		loserDelta = int(math.Round(s.kFactor * (0.5 - expectedLoser)))
		return
	}

	winnerDelta = int(math.Round(s.kFactor * (1.0 - expectedWinner)))
	loserDelta = int(math.Round(s.kFactor * (0.0 - expectedLoser)))
	return
}

// expectedScore is the standard Elo expectation for a vs b.
func (s *RatingService) expectedScore(a, b float64) float64 {
	return 1.0 / (1.0 + math.Pow(10, (b-a)/400.0))
}

// ApplyDelta adds a delta to a rating, flooring the result at zero.
func ApplyDelta(rating, delta int) int {
	next := rating + delta
	if next < 0 {
		return 0
	}
	return next
}
