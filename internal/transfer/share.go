package transfer

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/MarcoPoloResearchLab/deckelo/internal/tracker"
	lzstring "github.com/daku10/go-lz-string"
	qrcode "github.com/skip2/go-qrcode"
)

const (
	// MaxShareLength is the longest compressed payload a share link may carry.
	MaxShareLength = 2000
	// CompactFragmentPrefix introduces a compressed compact payload in a URL fragment.
	CompactFragmentPrefix = "lz="
	qrImageSize           = 400
)

var (
	// ErrNothingToShare indicates that the dataset holds neither decks nor matches.
	ErrNothingToShare = errors.New("transfer: nothing to share")
	// ErrDecompress indicates that a share payload could not be decompressed.
	ErrDecompress = errors.New("transfer: share payload decompression failed")
	// ErrCompress indicates that a share payload could not be compressed.
	ErrCompress = errors.New("transfer: share payload compression failed")
)

// SizeError reports a share payload that is still too long after compression.
type SizeError struct {
	Length       int
	Limit        int
	SourceLength int
}

func (e *SizeError) Error() string {
	return fmt.Sprintf("transfer: share payload too large after compression (%d characters, limit %d, -%d%%); export a JSON file instead, share fewer matches, or use shorter deck names",
		e.Length, e.Limit, e.Reduction())
}

// Reduction returns the compression gain in percent.
func (e *SizeError) Reduction() int {
	if e.SourceLength == 0 {
		return 0
	}
	return int(math.Round((1 - float64(e.Length)/float64(e.SourceLength)) * 100))
}

// Share is a generated share link.
type Share struct {
	URL          string `json:"url"`
	Encoded      string `json:"encoded"`
	SourceLength int    `json:"sourceLength"`
}

// EncodeShare compresses the compact form of dataset into a URL-safe string. It also
// returns the length of the uncompressed JSON text.
func EncodeShare(dataset tracker.Dataset) (string, int, error) {
	var buffer bytes.Buffer
	encoder := json.NewEncoder(&buffer)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(ToCompact(dataset)); err != nil {
		return "", 0, err
	}
	text := strings.TrimSuffix(buffer.String(), "\n")

	encoded, err := lzstring.CompressToEncodedURIComponent(text)
	if err != nil {
		return "", 0, fmt.Errorf("%w: %v", ErrCompress, err)
	}
	return encoded, len(text), nil
}

// DecodeShare reverses EncodeShare and validates the result.
func DecodeShare(encoded string) (tracker.Dataset, error) {
	text, err := lzstring.DecompressFromEncodedURIComponent(strings.TrimSpace(encoded))
	if err != nil {
		return tracker.Dataset{}, fmt.Errorf("%w: %v", ErrDecompress, err)
	}
	if text == "" {
		return tracker.Dataset{}, ErrDecompress
	}
	dataset, err := FromCompact([]byte(text))
	if err != nil {
		return tracker.Dataset{}, err
	}
	return tracker.Migrate(dataset.Records())
}

// ShareLink builds the share URL for dataset. A payload longer than limit is refused
// before anything is rendered.
func ShareLink(dataset tracker.Dataset, baseURL string, limit int) (Share, error) {
	if dataset.IsEmpty() {
		return Share{}, ErrNothingToShare
	}
	if limit <= 0 {
		limit = MaxShareLength
	}
	encoded, sourceLength, err := EncodeShare(dataset)
	if err != nil {
		return Share{}, err
	}
	if len(encoded) > limit {
		return Share{}, &SizeError{Length: len(encoded), Limit: limit, SourceLength: sourceLength}
	}
	base, _, _ := strings.Cut(baseURL, "#")
	return Share{
		URL:          base + "#" + CompactFragmentPrefix + encoded,
		Encoded:      encoded,
		SourceLength: sourceLength,
	}, nil
}

// RenderQR renders content as a PNG QR code.
func RenderQR(content string) ([]byte, error) {
	return qrcode.Encode(content, qrcode.Low, qrImageSize)
}
