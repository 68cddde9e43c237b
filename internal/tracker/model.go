package tracker

import (
	"errors"
	"time"
)

// DateLayout matches the ISO-8601 layout produced by JavaScript's Date.toISOString.
const DateLayout = "2006-01-02T15:04:05.000Z"

var (
	// ErrEmptyDeckName indicates that a deck name is empty after trimming.
	ErrEmptyDeckName = errors.New("tracker: empty deck name")
	// ErrUnknownHero indicates that a hero is not part of the supported hero list.
	ErrUnknownHero = errors.New("tracker: unknown hero")
	// ErrMissingDeckID indicates that a match references an empty deck identifier.
	ErrMissingDeckID = errors.New("tracker: missing deck id")
	// ErrSameDeck indicates that a match pits a deck against itself.
	ErrSameDeck = errors.New("tracker: deck cannot play against itself")
	// ErrDeckNotFound indicates that a referenced deck does not exist.
	ErrDeckNotFound = errors.New("tracker: deck not found")
	// ErrWinnerNotInMatch indicates that the winner is neither of the two decks.
	ErrWinnerNotInMatch = errors.New("tracker: winner is not one of the match decks")
	// ErrNothingToUndo indicates that the match history is empty.
	ErrNothingToUndo = errors.New("tracker: nothing to undo")
	// ErrUndoDeckDeleted indicates that the last match references a deleted deck.
	ErrUndoDeckDeleted = errors.New("tracker: cannot undo, deck deleted")
	// ErrMalformedMatch indicates that an imported match record cannot be made canonical.
	ErrMalformedMatch = errors.New("tracker: malformed match record")
	// ErrDuplicateID indicates that two decks or two matches share an identifier.
	ErrDuplicateID = errors.New("tracker: duplicate identifier")
)

// Deck is a tracked deck with its current rating and record.
type Deck struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Hero   string `json:"hero"`
	Elo    int    `json:"elo"`
	Wins   int    `json:"wins"`
	Losses int    `json:"losses"`
}

// Games returns the number of matches the deck has played.
func (deck Deck) Games() int {
	return deck.Wins + deck.Losses
}

// Match is the canonical match record. Only pre-match ratings are stored; post-match
// ratings are always recomputed from them.
type Match struct {
	ID          string `json:"id"`
	Date        string `json:"date"`
	Deck1ID     string `json:"deck1Id"`
	Deck2ID     string `json:"deck2Id"`
	Deck1OldElo int    `json:"deck1OldElo"`
	Deck2OldElo int    `json:"deck2OldElo"`
	WinnerID    string `json:"winnerId"`
}

// LoserID returns the identifier of the deck that lost the match.
func (match Match) LoserID() string {
	if match.WinnerID == match.Deck1ID {
		return match.Deck2ID
	}
	return match.Deck1ID
}

func (match Match) validate() error {
	if match.Deck1ID == "" || match.Deck2ID == "" {
		return ErrMissingDeckID
	}
	if match.Deck1ID == match.Deck2ID {
		return ErrSameDeck
	}
	if match.WinnerID != match.Deck1ID && match.WinnerID != match.Deck2ID {
		return ErrWinnerNotInMatch
	}
	return nil
}

// Dataset is the canonical shape of the tracker state.
type Dataset struct {
	Decks   []Deck  `json:"decks"`
	Matches []Match `json:"matches"`
}

// Records lifts the dataset back into the ingestion shape.
func (dataset Dataset) Records() RawDataset {
	raw := RawDataset{Decks: dataset.Decks}
	if dataset.Matches != nil {
		raw.Matches = make([]MatchRecord, len(dataset.Matches))
		for i, match := range dataset.Matches {
			raw.Matches[i] = CanonicalRecord(match)
		}
	}
	return raw
}

// IsEmpty reports whether the dataset holds neither decks nor matches.
func (dataset Dataset) IsEmpty() bool {
	return len(dataset.Decks) == 0 && len(dataset.Matches) == 0
}

// FormatDate renders a timestamp the way match dates are stored.
func FormatDate(value time.Time) string {
	return value.UTC().Format(DateLayout)
}
