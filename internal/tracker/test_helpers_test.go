package tracker

import (
	"fmt"
	"testing"
	"time"
)

type sequentialIDProvider struct {
	prefix string
	next   int
}

func (p *sequentialIDProvider) NewID() (string, error) {
	p.next++
	return fmt.Sprintf("%s%d", p.prefix, p.next), nil
}

func fixedClock() time.Time {
	return time.Date(2025, time.March, 14, 18, 30, 0, 0, time.UTC)
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(StoreConfig{
		IDProvider: &sequentialIDProvider{prefix: "id-"},
		Clock:      fixedClock,
	})
	if err != nil {
		t.Fatalf("unexpected store error: %v", err)
	}
	return store
}

func mustAddDeck(t *testing.T, store *Store, name, hero string) Deck {
	t.Helper()
	deck, err := store.AddDeck(name, hero)
	if err != nil {
		t.Fatalf("unexpected add deck error: %v", err)
	}
	return deck
}

func mustRecordMatch(t *testing.T, store *Store, deck1ID, deck2ID, winnerID string) Match {
	t.Helper()
	match, err := store.RecordMatch(deck1ID, deck2ID, winnerID)
	if err != nil {
		t.Fatalf("unexpected record match error: %v", err)
	}
	return match
}
