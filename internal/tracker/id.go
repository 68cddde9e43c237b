package tracker

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

const nanoIDLength = 12

const (
	// IDSchemeNanoID issues short nanoid identifiers.
	IDSchemeNanoID = "nanoid"
	// IDSchemeUUID issues UUIDv7 identifiers.
	IDSchemeUUID = "uuid"
)

// IDProvider issues identifiers for new decks and matches.
type IDProvider interface {
	NewID() (string, error)
}

type nanoIDProvider struct{}

// NewNanoIDProvider constructs an IDProvider that issues short nanoid identifiers, which
// keep share links small.
func NewNanoIDProvider() IDProvider {
	return &nanoIDProvider{}
}

func (p *nanoIDProvider) NewID() (string, error) {
	return gonanoid.New(nanoIDLength)
}

type uuidProvider struct{}

// NewUUIDProvider constructs an IDProvider that issues UUIDv7 identifiers.
func NewUUIDProvider() IDProvider {
	return &uuidProvider{}
}

func (p *uuidProvider) NewID() (string, error) {
	value, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return value.String(), nil
}

// NewIDProvider returns the provider registered for scheme.
func NewIDProvider(scheme string) (IDProvider, error) {
	switch strings.ToLower(strings.TrimSpace(scheme)) {
	case IDSchemeNanoID, "":
		return NewNanoIDProvider(), nil
	case IDSchemeUUID:
		return NewUUIDProvider(), nil
	default:
		return nil, fmt.Errorf("tracker: unknown id scheme %q", scheme)
	}
}
