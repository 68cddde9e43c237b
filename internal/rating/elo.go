package rating

import "math"

const (
	// InitialRating is assigned to every newly created deck.
	InitialRating = 1500
	// KFactor bounds the number of points exchanged by a single match.
	KFactor = 32
)

// Expected returns the expected score of a player rated rating against opponent.
func Expected(rating, opponent int) float64 {
	return 1 / (1 + math.Pow(10, float64(opponent-rating)/400))
}

// Rate computes the post-match ratings of a winner and a loser from their pre-match ratings.
func Rate(winner, loser int) (newWinner, newLoser int) {
	expectedWinner := Expected(winner, loser)
	expectedLoser := Expected(loser, winner)

	newWinner = int(math.Round(float64(winner) + KFactor*(1-expectedWinner)))
	newLoser = int(math.Round(float64(loser) + KFactor*(0-expectedLoser)))
	return newWinner, newLoser
}
