package transfer

import (
	"strings"

	"github.com/MarcoPoloResearchLab/deckelo/internal/tracker"
)

// FragmentKind identifies the transfer format carried by a URL fragment.
type FragmentKind string

const (
	// FragmentNone means the fragment carries no import payload.
	FragmentNone FragmentKind = ""
	// FragmentCompact marks a compressed compact payload.
	FragmentCompact FragmentKind = "lz"
	// FragmentLegacy marks a base64 full JSON payload.
	FragmentLegacy FragmentKind = "import"
)

// ParseFragment decodes the import payload of a link. It accepts a whole URL, a
// fragment with or without its leading '#', or an empty string.
func ParseFragment(link string) (tracker.Dataset, FragmentKind, error) {
	fragment := strings.TrimSpace(link)
	if _, after, found := strings.Cut(fragment, "#"); found {
		fragment = after
	}

	switch {
	case strings.HasPrefix(fragment, CompactFragmentPrefix):
		dataset, err := DecodeShare(strings.TrimPrefix(fragment, CompactFragmentPrefix))
		return dataset, FragmentCompact, err
	case strings.HasPrefix(fragment, LegacyFragmentPrefix):
		dataset, err := DecodeLegacyImport(strings.TrimPrefix(fragment, LegacyFragmentPrefix))
		return dataset, FragmentLegacy, err
	default:
		return tracker.Dataset{}, FragmentNone, nil
	}
}
