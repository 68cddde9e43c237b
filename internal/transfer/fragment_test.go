package transfer

import (
	"encoding/base64"
	"reflect"
	"testing"
)

func TestParseFragmentRecognisesFormats(t *testing.T) {
	share, err := ShareLink(sampleDataset(), "https://decks.example/", MaxShareLength)
	if err != nil {
		t.Fatalf("unexpected share error: %v", err)
	}
	legacy := base64.StdEncoding.EncodeToString([]byte(`{"decks":[],"matches":[]}`))

	testCases := []struct {
		name string
		link string
		kind FragmentKind
	}{
		{name: "full compact url", link: share.URL, kind: FragmentCompact},
		{name: "bare compact fragment", link: "#lz=" + share.Encoded, kind: FragmentCompact},
		{name: "legacy fragment", link: "#import=" + legacy, kind: FragmentLegacy},
		{name: "legacy without hash", link: "import=" + legacy, kind: FragmentLegacy},
		{name: "no fragment", link: "https://decks.example/", kind: FragmentNone},
		{name: "unrelated fragment", link: "#ranking", kind: FragmentNone},
		{name: "empty", link: "", kind: FragmentNone},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			_, kind, err := ParseFragment(testCase.link)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if kind != testCase.kind {
				t.Fatalf("expected kind %q, got %q", testCase.kind, kind)
			}
		})
	}
}

func TestParseFragmentDecodesCompactPayload(t *testing.T) {
	share, err := ShareLink(sampleDataset(), "https://decks.example/", MaxShareLength)
	if err != nil {
		t.Fatalf("unexpected share error: %v", err)
	}

	dataset, _, err := ParseFragment(share.URL)
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	if !reflect.DeepEqual(dataset, sampleDataset()) {
		t.Fatalf("unexpected dataset: %+v", dataset)
	}
}

func TestParseFragmentReportsCorruptPayload(t *testing.T) {
	_, kind, err := ParseFragment("#lz=%%%")
	if err == nil {
		t.Fatalf("expected corrupt payload error")
	}
	if kind != FragmentCompact {
		t.Fatalf("expected compact kind, got %q", kind)
	}
}
