package tracker

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// RecordKind tags the shape a match record was ingested in.
type RecordKind int

const (
	// RecordCanonical is the compact record storing deck ids and pre-match ratings.
	RecordCanonical RecordKind = iota
	// RecordLegacy is the verbose record embedding full deck snapshots.
	RecordLegacy
)

// String returns a readable name for the record kind.
func (kind RecordKind) String() string {
	if kind == RecordLegacy {
		return "legacy"
	}
	return "canonical"
}

// LegacySide is a deck snapshot embedded in a legacy match record.
type LegacySide struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Hero      string `json:"hero"`
	OldElo    int    `json:"oldElo"`
	NewElo    int    `json:"newElo"`
	EloChange int    `json:"eloChange"`
}

// LegacyMatch is the verbose match record written by older releases. It is only read.
type LegacyMatch struct {
	ID       string     `json:"id"`
	Date     string     `json:"date"`
	Deck1    LegacySide `json:"deck1"`
	Deck2    LegacySide `json:"deck2"`
	WinnerID string     `json:"winnerId"`
}

// MatchRecord holds one ingested match in either its canonical or its legacy shape.
// The shape is decided once, when the record is decoded.
type MatchRecord struct {
	kind      RecordKind
	canonical Match
	legacy    LegacyMatch
}

// CanonicalRecord wraps a canonical match.
func CanonicalRecord(match Match) MatchRecord {
	return MatchRecord{kind: RecordCanonical, canonical: match}
}

// LegacyRecord wraps a legacy match.
func LegacyRecord(match LegacyMatch) MatchRecord {
	return MatchRecord{kind: RecordLegacy, legacy: match}
}

// Kind reports which shape the record was ingested in.
func (record MatchRecord) Kind() RecordKind {
	return record.kind
}

// Canonical projects the record onto the canonical shape and validates it.
func (record MatchRecord) Canonical() (Match, error) {
	match := record.canonical
	if record.kind == RecordLegacy {
		match = Match{
			ID:          record.legacy.ID,
			Date:        record.legacy.Date,
			Deck1ID:     record.legacy.Deck1.ID,
			Deck2ID:     record.legacy.Deck2.ID,
			Deck1OldElo: record.legacy.Deck1.OldElo,
			Deck2OldElo: record.legacy.Deck2.OldElo,
			WinnerID:    record.legacy.WinnerID,
		}
	}
	if err := match.validate(); err != nil {
		return Match{}, fmt.Errorf("%w: %s record %q: %v", ErrMalformedMatch, record.kind, match.ID, err)
	}
	return match, nil
}

// UnmarshalJSON decodes a record, telling the legacy shape apart by an object-valued
// deck1 field carrying an id.
func (record *MatchRecord) UnmarshalJSON(data []byte) error {
	var probe struct {
		Deck1 json.RawMessage `json:"deck1"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}

	if embedsDeckSnapshot(probe.Deck1) {
		var legacy LegacyMatch
		if err := json.Unmarshal(data, &legacy); err != nil {
			return fmt.Errorf("%w: legacy record: %v", ErrMalformedMatch, err)
		}
		*record = LegacyRecord(legacy)
		return nil
	}

	var canonical Match
	if err := json.Unmarshal(data, &canonical); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedMatch, err)
	}
	*record = CanonicalRecord(canonical)
	return nil
}

// MarshalJSON writes the record back in the shape it was ingested in.
func (record MatchRecord) MarshalJSON() ([]byte, error) {
	if record.kind == RecordLegacy {
		return json.Marshal(record.legacy)
	}
	return json.Marshal(record.canonical)
}

func embedsDeckSnapshot(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return false
	}
	var side struct {
		ID any `json:"id"`
	}
	if err := json.Unmarshal(trimmed, &side); err != nil {
		return false
	}
	switch id := side.ID.(type) {
	case nil:
		return false
	case string:
		return id != ""
	default:
		return true
	}
}

// RawDataset is the ingestion shape of the tracker state: matches may mix legacy and
// canonical records.
type RawDataset struct {
	Decks   []Deck        `json:"decks"`
	Matches []MatchRecord `json:"matches"`
}

// Migrate converts every match record to the canonical shape. The input is never
// modified, and a dataset without matches comes back as it went in. A record that
// cannot be made canonical, or an identifier used twice, fails the whole migration.
func Migrate(raw RawDataset) (Dataset, error) {
	dataset := Dataset{Decks: copyDecks(raw.Decks)}
	deckIDs := make(map[string]struct{}, len(raw.Decks))
	for _, deck := range raw.Decks {
		if _, seen := deckIDs[deck.ID]; seen {
			return Dataset{}, fmt.Errorf("%w: deck %q", ErrDuplicateID, deck.ID)
		}
		deckIDs[deck.ID] = struct{}{}
	}
	if raw.Matches == nil {
		return dataset, nil
	}

	dataset.Matches = make([]Match, 0, len(raw.Matches))
	matchIDs := make(map[string]struct{}, len(raw.Matches))
	for index, record := range raw.Matches {
		match, err := record.Canonical()
		if err != nil {
			return Dataset{}, fmt.Errorf("match %d: %w", index, err)
		}
		if _, seen := matchIDs[match.ID]; seen {
			return Dataset{}, fmt.Errorf("%w: match %q", ErrDuplicateID, match.ID)
		}
		matchIDs[match.ID] = struct{}{}
		dataset.Matches = append(dataset.Matches, match)
	}
	return dataset, nil
}

// CountLegacy returns how many records are still in the legacy shape.
func CountLegacy(records []MatchRecord) int {
	count := 0
	for _, record := range records {
		if record.kind == RecordLegacy {
			count++
		}
	}
	return count
}

func copyDecks(decks []Deck) []Deck {
	if decks == nil {
		return nil
	}
	copied := make([]Deck, len(decks))
	copy(copied, decks)
	return copied
}

func copyMatches(matches []Match) []Match {
	if matches == nil {
		return nil
	}
	copied := make([]Match, len(matches))
	copy(copied, matches)
	return copied
}
