package transfer

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/MarcoPoloResearchLab/deckelo/internal/tracker"
)

const (
	exportFilePrefix = "fab-elo-"
	qrFilePrefix     = "fab-elo-qr-"
	fileDateLayout   = "2006-01-02"
)

// ErrInvalidDocument indicates that an imported file is not a valid JSON document.
var ErrInvalidDocument = errors.New("transfer: invalid import document")

// WriteExport writes dataset as an indented JSON document.
func WriteExport(w io.Writer, dataset tracker.Dataset) error {
	document := tracker.Dataset{Decks: dataset.Decks, Matches: dataset.Matches}
	if document.Decks == nil {
		document.Decks = []tracker.Deck{}
	}
	if document.Matches == nil {
		document.Matches = []tracker.Match{}
	}
	encoded, err := json.MarshalIndent(document, "", "  ")
	if err != nil {
		return err
	}
	_, err = w.Write(encoded)
	return err
}

// ReadImport reads a JSON document written by WriteExport or by an older release.
// Anything other than a single JSON object is rejected.
func ReadImport(r io.Reader) (tracker.Dataset, error) {
	decoder := json.NewDecoder(r)
	var document json.RawMessage
	if err := decoder.Decode(&document); err != nil {
		return tracker.Dataset{}, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	if _, err := decoder.Token(); !errors.Is(err, io.EOF) {
		return tracker.Dataset{}, fmt.Errorf("%w: trailing data after document", ErrInvalidDocument)
	}
	if trimmed := bytes.TrimSpace(document); len(trimmed) == 0 || trimmed[0] != '{' {
		return tracker.Dataset{}, fmt.Errorf("%w: document is not an object", ErrInvalidDocument)
	}

	var raw tracker.RawDataset
	if err := json.Unmarshal(document, &raw); err != nil {
		return tracker.Dataset{}, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	dataset, err := tracker.Migrate(raw)
	if err != nil {
		return tracker.Dataset{}, err
	}
	if dataset.Decks == nil {
		dataset.Decks = []tracker.Deck{}
	}
	if dataset.Matches == nil {
		dataset.Matches = []tracker.Match{}
	}
	return dataset, nil
}

// ExportFileName names an export written at now.
func ExportFileName(now time.Time) string {
	return exportFilePrefix + now.UTC().Format(fileDateLayout) + ".json"
}

// QRFileName names a QR image rendered at now.
func QRFileName(now time.Time) string {
	return qrFilePrefix + now.UTC().Format(fileDateLayout) + ".png"
}
