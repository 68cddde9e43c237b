package transfer

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/MarcoPoloResearchLab/deckelo/internal/tracker"
)

const (
	deckTupleArity  = 6
	matchTupleArity = 7
	sectionDecks    = "d"
	sectionMatches  = "m"
)

var (
	// ErrMissingSection indicates that a compact payload lacks its deck or match section.
	ErrMissingSection = errors.New("transfer: compact payload section missing")
	// ErrTupleArity indicates that a compact tuple has the wrong number of elements.
	ErrTupleArity = errors.New("transfer: compact tuple has wrong arity")
	// ErrTupleField indicates that a compact tuple element has the wrong type.
	ErrTupleField = errors.New("transfer: compact tuple field invalid")
	// ErrInvalidCompactPayload indicates that a compact payload is not a JSON object.
	ErrInvalidCompactPayload = errors.New("transfer: invalid compact payload")
)

// DeckTuple is [id, name, hero, elo, wins, losses].
type DeckTuple []any

// MatchTuple is [id, date, deck1Id, deck2Id, deck1OldElo, deck2OldElo, winnerId].
type MatchTuple []any

// CompactPayload is the positional form of a dataset used in share links.
type CompactPayload struct {
	D []DeckTuple  `json:"d"`
	M []MatchTuple `json:"m"`
}

// ToCompact maps a canonical dataset onto positional tuples.
func ToCompact(dataset tracker.Dataset) CompactPayload {
	payload := CompactPayload{
		D: make([]DeckTuple, 0, len(dataset.Decks)),
		M: make([]MatchTuple, 0, len(dataset.Matches)),
	}
	for _, deck := range dataset.Decks {
		payload.D = append(payload.D, DeckTuple{deck.ID, deck.Name, deck.Hero, deck.Elo, deck.Wins, deck.Losses})
	}
	for _, match := range dataset.Matches {
		payload.M = append(payload.M, MatchTuple{
			match.ID,
			match.Date,
			match.Deck1ID,
			match.Deck2ID,
			match.Deck1OldElo,
			match.Deck2OldElo,
			match.WinnerID,
		})
	}
	return payload
}

// CompactFromRecords builds a compact payload from records that may still be in the
// legacy shape.
func CompactFromRecords(raw tracker.RawDataset) (CompactPayload, error) {
	dataset, err := tracker.Migrate(raw)
	if err != nil {
		return CompactPayload{}, err
	}
	return ToCompact(dataset), nil
}

// FromCompact expands the JSON text of a compact payload back into a dataset.
func FromCompact(data []byte) (tracker.Dataset, error) {
	var envelope struct {
		D *[]json.RawMessage `json:"d"`
		M *[]json.RawMessage `json:"m"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return tracker.Dataset{}, fmt.Errorf("%w: %v", ErrInvalidCompactPayload, err)
	}
	if envelope.D == nil {
		return tracker.Dataset{}, fmt.Errorf("%w: %q", ErrMissingSection, sectionDecks)
	}
	if envelope.M == nil {
		return tracker.Dataset{}, fmt.Errorf("%w: %q", ErrMissingSection, sectionMatches)
	}

	dataset := tracker.Dataset{
		Decks:   make([]tracker.Deck, 0, len(*envelope.D)),
		Matches: make([]tracker.Match, 0, len(*envelope.M)),
	}
	for index, raw := range *envelope.D {
		reader, err := newTupleReader(sectionDecks, index, raw, deckTupleArity)
		if err != nil {
			return tracker.Dataset{}, err
		}
		deck := tracker.Deck{
			ID:     reader.text(0),
			Name:   reader.text(1),
			Hero:   reader.text(2),
			Elo:    reader.number(3),
			Wins:   reader.number(4),
			Losses: reader.number(5),
		}
		if reader.err != nil {
			return tracker.Dataset{}, reader.err
		}
		dataset.Decks = append(dataset.Decks, deck)
	}
	for index, raw := range *envelope.M {
		reader, err := newTupleReader(sectionMatches, index, raw, matchTupleArity)
		if err != nil {
			return tracker.Dataset{}, err
		}
		match := tracker.Match{
			ID:          reader.text(0),
			Date:        reader.text(1),
			Deck1ID:     reader.text(2),
			Deck2ID:     reader.text(3),
			Deck1OldElo: reader.number(4),
			Deck2OldElo: reader.number(5),
			WinnerID:    reader.text(6),
		}
		if reader.err != nil {
			return tracker.Dataset{}, reader.err
		}
		dataset.Matches = append(dataset.Matches, match)
	}
	return dataset, nil
}

// tupleReader decodes positional fields and keeps the first failure.
type tupleReader struct {
	section string
	index   int
	fields  []json.RawMessage
	err     error
}

func newTupleReader(section string, index int, raw json.RawMessage, arity int) (*tupleReader, error) {
	var fields []json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("%w: %s[%d] is not an array", ErrTupleField, section, index)
	}
	if len(fields) != arity {
		return nil, fmt.Errorf("%w: %s[%d] has %d elements, want %d", ErrTupleArity, section, index, len(fields), arity)
	}
	return &tupleReader{section: section, index: index, fields: fields}, nil
}

func (reader *tupleReader) text(position int) string {
	var value string
	reader.decode(position, &value, "string")
	return value
}

func (reader *tupleReader) number(position int) int {
	var value int
	reader.decode(position, &value, "integer")
	return value
}

func (reader *tupleReader) decode(position int, target any, kind string) {
	if reader.err != nil {
		return
	}
	if err := json.Unmarshal(reader.fields[position], target); err != nil {
		reader.err = fmt.Errorf("%w: %s[%d][%d] must be a %s", ErrTupleField, reader.section, reader.index, position, kind)
	}
}
