package transfer

import (
	"encoding/base64"
	"errors"
	"net/url"
	"testing"
)

const legacyDocument = `{"decks":[{"id":"a","name":"Ålpha","hero":"Bravo","elo":1516,"wins":1,"losses":0},
{"id":"b","name":"Beta","hero":"Katsu","elo":1484,"wins":0,"losses":1}],
"matches":[{"id":"m1","date":"2025-03-01T10:00:00.000Z",
"deck1":{"id":"a","name":"Ålpha","hero":"Bravo","oldElo":1500,"newElo":1516,"eloChange":16},
"deck2":{"id":"b","name":"Beta","hero":"Katsu","oldElo":1500,"newElo":1484,"eloChange":-16},
"winnerId":"a"}]}`

func TestDecodeLegacyImportMigratesMatches(t *testing.T) {
	encoded := base64.StdEncoding.EncodeToString([]byte(legacyDocument))

	dataset, err := DecodeLegacyImport(encoded)
	if err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}
	if dataset.Decks[0].Name != "Ålpha" {
		t.Fatalf("expected utf-8 names to survive, got %q", dataset.Decks[0].Name)
	}
	match := dataset.Matches[0]
	if match.Deck1ID != "a" || match.Deck2ID != "b" || match.Deck1OldElo != 1500 || match.Deck2OldElo != 1500 {
		t.Fatalf("unexpected migrated match: %+v", match)
	}
}

func TestDecodeLegacyImportAcceptsEscapedAndUnpaddedInput(t *testing.T) {
	encoded := base64.StdEncoding.EncodeToString([]byte(`{"decks":[],"matches":[]}`))

	if _, err := DecodeLegacyImport(url.QueryEscape(encoded)); err != nil {
		t.Fatalf("unexpected error for escaped input: %v", err)
	}
	if _, err := DecodeLegacyImport(base64.RawStdEncoding.EncodeToString([]byte(`{"decks":[],"matches":[]}`))); err != nil {
		t.Fatalf("unexpected error for unpadded input: %v", err)
	}
}

func TestDecodeLegacyImportRequiresBothSections(t *testing.T) {
	testCases := []string{
		`{"matches":[]}`,
		`{"decks":[],"matches":{}}`,
		`{"decks":"none","matches":[]}`,
		`not json`,
	}

	for _, document := range testCases {
		encoded := base64.StdEncoding.EncodeToString([]byte(document))
		if _, err := DecodeLegacyImport(encoded); !errors.Is(err, ErrInvalidLegacyPayload) {
			t.Fatalf("document %s: expected invalid payload error, got %v", document, err)
		}
	}
}

func TestDecodeLegacyImportRejectsBadBase64(t *testing.T) {
	if _, err := DecodeLegacyImport("***"); !errors.Is(err, ErrInvalidLegacyPayload) {
		t.Fatalf("expected invalid payload error, got %v", err)
	}
}
