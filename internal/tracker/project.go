package tracker

import "github.com/MarcoPoloResearchLab/deckelo/internal/rating"

const (
	// DeletedDeckName replaces the name of a deck that no longer exists.
	DeletedDeckName = "Deleted deck"
	// UnknownHero replaces the hero of a deck that no longer exists.
	UnknownHero = "Unknown hero"
)

// DisplaySide is one deck's view of a match, with ratings recomputed from the snapshot.
type DisplaySide struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Hero      string `json:"hero"`
	OldElo    int    `json:"oldElo"`
	NewElo    int    `json:"newElo"`
	EloChange int    `json:"eloChange"`
	Removed   bool   `json:"removed"`
}

// DisplayMatch is the read model of a match.
type DisplayMatch struct {
	ID       string      `json:"id"`
	Date     string      `json:"date"`
	WinnerID string      `json:"winnerId"`
	Deck1    DisplaySide `json:"deck1"`
	Deck2    DisplaySide `json:"deck2"`
}

// Project builds the display view of match. Deck names and heroes are looked up in
// decks; post-match ratings come from the rating engine.
func Project(match Match, decks []Deck) DisplayMatch {
	deck1NewElo, deck2NewElo := recomputeRatings(match)
	return DisplayMatch{
		ID:       match.ID,
		Date:     match.Date,
		WinnerID: match.WinnerID,
		Deck1:    projectSide(match.Deck1ID, match.Deck1OldElo, deck1NewElo, decks),
		Deck2:    projectSide(match.Deck2ID, match.Deck2OldElo, deck2NewElo, decks),
	}
}

// ProjectAll projects every match, keeping the most-recent-first order.
func ProjectAll(matches []Match, decks []Deck) []DisplayMatch {
	projected := make([]DisplayMatch, 0, len(matches))
	for _, match := range matches {
		projected = append(projected, Project(match, decks))
	}
	return projected
}

func recomputeRatings(match Match) (deck1NewElo, deck2NewElo int) {
	if match.WinnerID == match.Deck1ID {
		return rating.Rate(match.Deck1OldElo, match.Deck2OldElo)
	}
	deck2NewElo, deck1NewElo = rating.Rate(match.Deck2OldElo, match.Deck1OldElo)
	return deck1NewElo, deck2NewElo
}

func projectSide(deckID string, oldElo, newElo int, decks []Deck) DisplaySide {
	side := DisplaySide{
		ID:        deckID,
		Name:      DeletedDeckName,
		Hero:      UnknownHero,
		OldElo:    oldElo,
		NewElo:    newElo,
		EloChange: newElo - oldElo,
		Removed:   true,
	}
	if index := indexOfDeck(decks, deckID); index >= 0 {
		side.Name = decks[index].Name
		side.Hero = decks[index].Hero
		side.Removed = false
	}
	return side
}

func indexOfDeck(decks []Deck, deckID string) int {
	for i := range decks {
		if decks[i].ID == deckID {
			return i
		}
	}
	return -1
}
