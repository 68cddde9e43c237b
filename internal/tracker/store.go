package tracker

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/deckelo/internal/rating"
	"go.uber.org/zap"
)

var errMissingIDProvider = errors.New("tracker: id provider is required")

// StoreConfig describes the dependencies of a Store.
type StoreConfig struct {
	IDProvider IDProvider
	Clock      func() time.Time
	Logger     *zap.Logger
	// OnChange runs after every successful mutation, outside the store lock.
	OnChange func()
}

// DeckUpdate carries the editable fields of a deck. Nil fields are left untouched.
type DeckUpdate struct {
	Name *string
	Hero *string
}

// Store owns the decks and the match history. Decks keep insertion order; matches are
// kept most recent first. Every mutation runs under a single lock.
type Store struct {
	mu         sync.Mutex
	decks      []Deck
	matches    []Match
	idProvider IDProvider
	clock      func() time.Time
	logger     *zap.Logger
	onChange   func()
}

// NewStore constructs an empty store.
func NewStore(cfg StoreConfig) (*Store, error) {
	if cfg.IDProvider == nil {
		return nil, errMissingIDProvider
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		idProvider: cfg.IDProvider,
		clock:      clock,
		logger:     logger,
		onChange:   cfg.OnChange,
	}, nil
}

// SetOnChange replaces the mutation hook.
func (s *Store) SetOnChange(onChange func()) {
	s.mu.Lock()
	s.onChange = onChange
	s.mu.Unlock()
}

// AddDeck registers a new deck at the initial rating.
func (s *Store) AddDeck(name, hero string) (Deck, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return Deck{}, ErrEmptyDeckName
	}
	if !IsHero(hero) {
		return Deck{}, fmt.Errorf("%w: %q", ErrUnknownHero, hero)
	}
	id, err := s.idProvider.NewID()
	if err != nil {
		return Deck{}, fmt.Errorf("tracker: generate deck id: %w", err)
	}

	deck := Deck{ID: id, Name: trimmed, Hero: hero, Elo: rating.InitialRating}

	s.mu.Lock()
	s.decks = append(s.decks, deck)
	s.mu.Unlock()

	s.logger.Debug("deck added", zap.String("deck_id", deck.ID), zap.String("hero", deck.Hero))
	s.changed()
	return deck, nil
}

// RecordMatch records a win of winnerID in a match between deck1ID and deck2ID and
// updates both decks.
func (s *Store) RecordMatch(deck1ID, deck2ID, winnerID string) (Match, error) {
	candidate := Match{Deck1ID: deck1ID, Deck2ID: deck2ID, WinnerID: winnerID}
	if err := candidate.validate(); err != nil {
		return Match{}, err
	}
	id, err := s.idProvider.NewID()
	if err != nil {
		return Match{}, fmt.Errorf("tracker: generate match id: %w", err)
	}

	s.mu.Lock()
	deck1Index := indexOfDeck(s.decks, deck1ID)
	deck2Index := indexOfDeck(s.decks, deck2ID)
	if deck1Index < 0 || deck2Index < 0 {
		s.mu.Unlock()
		return Match{}, ErrDeckNotFound
	}

	match := Match{
		ID:          id,
		Date:        FormatDate(s.clock()),
		Deck1ID:     deck1ID,
		Deck2ID:     deck2ID,
		Deck1OldElo: s.decks[deck1Index].Elo,
		Deck2OldElo: s.decks[deck2Index].Elo,
		WinnerID:    winnerID,
	}

	winnerIndex, loserIndex := deck1Index, deck2Index
	if winnerID == deck2ID {
		winnerIndex, loserIndex = deck2Index, deck1Index
	}
	newWinnerElo, newLoserElo := rating.Rate(s.decks[winnerIndex].Elo, s.decks[loserIndex].Elo)

	s.matches = append([]Match{match}, s.matches...)
	s.decks[winnerIndex].Elo = newWinnerElo
	s.decks[winnerIndex].Wins++
	s.decks[loserIndex].Elo = newLoserElo
	s.decks[loserIndex].Losses++
	s.mu.Unlock()

	s.logger.Debug("match recorded",
		zap.String("match_id", match.ID),
		zap.String("winner_id", winnerID),
		zap.Int("winner_elo", newWinnerElo),
		zap.Int("loser_elo", newLoserElo))
	s.changed()
	return match, nil
}

// UpdateDeck edits the name and/or hero of a deck. Ratings and records are untouched.
func (s *Store) UpdateDeck(deckID string, update DeckUpdate) (Deck, error) {
	var name string
	if update.Name != nil {
		name = strings.TrimSpace(*update.Name)
		if name == "" {
			return Deck{}, ErrEmptyDeckName
		}
	}
	if update.Hero != nil && !IsHero(*update.Hero) {
		return Deck{}, fmt.Errorf("%w: %q", ErrUnknownHero, *update.Hero)
	}

	s.mu.Lock()
	index := indexOfDeck(s.decks, deckID)
	if index < 0 {
		s.mu.Unlock()
		return Deck{}, ErrDeckNotFound
	}
	if update.Name != nil {
		s.decks[index].Name = name
	}
	if update.Hero != nil {
		s.decks[index].Hero = *update.Hero
	}
	deck := s.decks[index]
	s.mu.Unlock()

	s.changed()
	return deck, nil
}

// DeleteDeck removes a deck. Matches referencing it are kept as they are.
func (s *Store) DeleteDeck(deckID string) error {
	s.mu.Lock()
	index := indexOfDeck(s.decks, deckID)
	if index < 0 {
		s.mu.Unlock()
		return ErrDeckNotFound
	}
	s.decks = append(s.decks[:index:index], s.decks[index+1:]...)
	s.mu.Unlock()

	s.logger.Debug("deck deleted", zap.String("deck_id", deckID))
	s.changed()
	return nil
}

// UndoLastMatch reverts the most recent match: both decks get their pre-match rating
// back and lose the win or loss it granted. The match stays in place when one of its
// decks has been deleted.
func (s *Store) UndoLastMatch() (Match, error) {
	s.mu.Lock()
	if len(s.matches) == 0 {
		s.mu.Unlock()
		return Match{}, ErrNothingToUndo
	}
	last := s.matches[0]
	deck1Index := indexOfDeck(s.decks, last.Deck1ID)
	deck2Index := indexOfDeck(s.decks, last.Deck2ID)
	if deck1Index < 0 || deck2Index < 0 {
		s.mu.Unlock()
		return Match{}, ErrUndoDeckDeleted
	}

	revertSide(&s.decks[deck1Index], last.Deck1OldElo, last.WinnerID == last.Deck1ID)
	revertSide(&s.decks[deck2Index], last.Deck2OldElo, last.WinnerID == last.Deck2ID)
	s.matches = s.matches[1:]
	s.mu.Unlock()

	s.logger.Debug("match undone", zap.String("match_id", last.ID))
	s.changed()
	return last, nil
}

func revertSide(deck *Deck, oldElo int, wasWinner bool) {
	deck.Elo = oldElo
	if wasWinner {
		deck.Wins = max(0, deck.Wins-1)
		return
	}
	deck.Losses = max(0, deck.Losses-1)
}

// ClearAll removes every deck and match.
func (s *Store) ClearAll() {
	s.mu.Lock()
	s.decks = nil
	s.matches = nil
	s.mu.Unlock()
	s.changed()
}

// Replace swaps the whole state for dataset.
func (s *Store) Replace(dataset Dataset) {
	s.mu.Lock()
	s.decks = copyDecks(dataset.Decks)
	s.matches = copyMatches(dataset.Matches)
	s.mu.Unlock()
	s.changed()
}

// Deck returns the deck with the given identifier.
func (s *Store) Deck(deckID string) (Deck, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	index := indexOfDeck(s.decks, deckID)
	if index < 0 {
		return Deck{}, false
	}
	return s.decks[index], true
}

// Decks returns a copy of the decks in insertion order.
func (s *Store) Decks() []Deck {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyDecks(s.decks)
}

// Matches returns a copy of the match history, most recent first.
func (s *Store) Matches() []Match {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyMatches(s.matches)
}

// Snapshot returns a consistent copy of the whole state.
func (s *Store) Snapshot() Dataset {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Dataset{Decks: copyDecks(s.decks), Matches: copyMatches(s.matches)}
}

// History returns the display view of every match, most recent first.
func (s *Store) History() []DisplayMatch {
	snapshot := s.Snapshot()
	return ProjectAll(snapshot.Matches, snapshot.Decks)
}

// Standings ranks the current decks.
func (s *Store) Standings() Standings {
	return RankDecks(s.Decks())
}

func (s *Store) changed() {
	s.mu.Lock()
	onChange := s.onChange
	s.mu.Unlock()
	if onChange != nil {
		onChange()
	}
}
