package tracker

import (
	"math"
	"sort"
)

// Standing is a deck's place in the ranking.
type Standing struct {
	Deck    Deck    `json:"deck"`
	Rank    int     `json:"rank"`
	Games   int     `json:"games"`
	WinRate float64 `json:"winRate"`
}

// Standings splits decks into ranked ones, which have played at least one match, and
// unranked ones. Both lists are ordered by rating, highest first.
type Standings struct {
	Ranked   []Standing `json:"ranked"`
	Unranked []Standing `json:"unranked"`
}

// RankDecks computes standings. Decks with equal ratings keep their insertion order.
func RankDecks(decks []Deck) Standings {
	sorted := copyDecks(decks)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Elo > sorted[j].Elo
	})

	standings := Standings{Ranked: []Standing{}, Unranked: []Standing{}}
	for _, deck := range sorted {
		entry := Standing{Deck: deck, Games: deck.Games(), WinRate: WinRate(deck)}
		if entry.Games == 0 {
			standings.Unranked = append(standings.Unranked, entry)
			continue
		}
		entry.Rank = len(standings.Ranked) + 1
		standings.Ranked = append(standings.Ranked, entry)
	}
	return standings
}

// WinRate returns the percentage of matches won, rounded to one decimal.
func WinRate(deck Deck) float64 {
	games := deck.Games()
	if games == 0 {
		return 0
	}
	return math.Round(float64(deck.Wins)/float64(games)*1000) / 10
}
