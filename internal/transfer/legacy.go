package transfer

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/MarcoPoloResearchLab/deckelo/internal/tracker"
)

// LegacyFragmentPrefix introduces a base64 JSON payload in a URL fragment. Links of this
// form are still accepted but no longer generated.
const LegacyFragmentPrefix = "import="

// ErrInvalidLegacyPayload indicates that a legacy import payload cannot be decoded.
var ErrInvalidLegacyPayload = errors.New("transfer: invalid legacy import payload")

// DecodeLegacyImport decodes a base64 encoded full JSON document.
func DecodeLegacyImport(encoded string) (tracker.Dataset, error) {
	encoded = strings.TrimSpace(encoded)
	if strings.Contains(encoded, "%") {
		unescaped, err := url.PathUnescape(encoded)
		if err != nil {
			return tracker.Dataset{}, fmt.Errorf("%w: %v", ErrInvalidLegacyPayload, err)
		}
		encoded = unescaped
	}

	document, err := base64.RawStdEncoding.DecodeString(strings.TrimRight(encoded, "="))
	if err != nil {
		return tracker.Dataset{}, fmt.Errorf("%w: %v", ErrInvalidLegacyPayload, err)
	}

	var sections struct {
		Decks   json.RawMessage `json:"decks"`
		Matches json.RawMessage `json:"matches"`
	}
	if err := json.Unmarshal(document, &sections); err != nil {
		return tracker.Dataset{}, fmt.Errorf("%w: %v", ErrInvalidLegacyPayload, err)
	}
	if !isJSONArray(sections.Decks) {
		return tracker.Dataset{}, fmt.Errorf("%w: decks missing", ErrInvalidLegacyPayload)
	}
	if !isJSONArray(sections.Matches) {
		return tracker.Dataset{}, fmt.Errorf("%w: matches missing", ErrInvalidLegacyPayload)
	}

	var raw tracker.RawDataset
	if err := json.Unmarshal(document, &raw); err != nil {
		return tracker.Dataset{}, fmt.Errorf("%w: %v", ErrInvalidLegacyPayload, err)
	}
	return tracker.Migrate(raw)
}

func isJSONArray(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '['
}
