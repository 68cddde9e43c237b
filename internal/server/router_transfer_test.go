package server

import (
	"bytes"
	"context"
	"net/http"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MarcoPoloResearchLab/deckelo/internal/database"
	"github.com/MarcoPoloResearchLab/deckelo/internal/persistence"
	"github.com/MarcoPoloResearchLab/deckelo/internal/transfer"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const importDocument = `{"decks":[{"id":"a","name":"Alpha","hero":"Bravo","elo":1516,"wins":1,"losses":0},{"id":"b","name":"Beta","hero":"Katsu","elo":1484,"wins":0,"losses":1}],
"matches":[{"id":"m1","date":"2025-03-01T10:00:00.000Z","deck1":{"id":"a","name":"Alpha","hero":"Bravo","oldElo":1500,"newElo":1516,"eloChange":16},"deck2":{"id":"b","name":"Beta","hero":"Katsu","oldElo":1500,"newElo":1484,"eloChange":-16},"winnerId":"a"}]}`

func TestExportAttachment(testContext *testing.T) {
	server := newTestServer(testContext, persistence.Unavailable{})
	server.addDeck(testContext, "Alpha", "Bravo")

	recorder := server.do(testContext, http.MethodGet, "/export", nil)
	if recorder.Code != http.StatusOK {
		testContext.Fatalf("unexpected export status %d", recorder.Code)
	}
	if disposition := recorder.Header().Get("Content-Disposition"); disposition != `attachment; filename="fab-elo-2025-03-14.json"` {
		testContext.Fatalf("unexpected disposition %q", disposition)
	}
	if !strings.Contains(recorder.Body.String(), `"matches": []`) {
		testContext.Fatalf("unexpected export body %s", recorder.Body.String())
	}
}

func TestImportDocumentMigratesLegacyMatches(testContext *testing.T) {
	server := newTestServer(testContext, persistence.Unavailable{})
	server.addDeck(testContext, "Replaced", "Bravo")

	recorder := server.do(testContext, http.MethodPost, "/import", importDocument)
	if recorder.Code != http.StatusOK {
		testContext.Fatalf("unexpected import status %d: %s", recorder.Code, recorder.Body.String())
	}

	exported := server.do(testContext, http.MethodGet, "/export", nil).Body.String()
	if strings.Contains(exported, "Replaced") || !strings.Contains(exported, `"deck1OldElo": 1500`) {
		testContext.Fatalf("expected canonical imported state, got %s", exported)
	}
}

func TestImportErrorsLeaveStateUnchanged(testContext *testing.T) {
	server := newTestServer(testContext, persistence.Unavailable{})
	server.addDeck(testContext, "Kept", "Bravo")

	assertError(testContext, server.do(testContext, http.MethodPost, "/import", `{"decks":`), http.StatusBadRequest, "invalid_document")
	assertError(testContext, server.do(testContext, http.MethodPost, "/import", `null`), http.StatusBadRequest, "invalid_document")
	assertError(testContext, server.do(testContext, http.MethodPost, "/import", `{"decks":[]} junk`), http.StatusBadRequest, "invalid_document")
	duplicated := `{"decks":[{"id":"a","name":"One","hero":"Bravo","elo":1500},{"id":"a","name":"Two","hero":"Bravo","elo":1500}]}`
	assertError(testContext, server.do(testContext, http.MethodPost, "/import", duplicated), http.StatusBadRequest, "duplicate_id")
	assertError(testContext, server.do(testContext, http.MethodPost, "/import", strings.Repeat(" ", 5000)+"{}"), http.StatusRequestEntityTooLarge, "payload_too_large")
	assertError(testContext, server.do(testContext, http.MethodPost, "/import/link", gin.H{"link": "#lz=%%%"}), http.StatusBadRequest, "invalid_payload")
	assertError(testContext, server.do(testContext, http.MethodPost, "/import/link", gin.H{"link": "https://decks.example/"}), http.StatusBadRequest, "no_payload")
	assertError(testContext, server.do(testContext, http.MethodPost, "/import/link", gin.H{}), http.StatusBadRequest, "invalid_request")

	if status := server.session.Status(); status.Decks != 1 {
		testContext.Fatalf("expected state untouched, got %+v", status)
	}
}

func TestShareRoundTripThroughLinkImport(testContext *testing.T) {
	source := newTestServer(testContext, persistence.Unavailable{})
	assertError(testContext, source.do(testContext, http.MethodGet, "/share", nil), http.StatusConflict, "nothing_to_share")
	source.do(testContext, http.MethodPost, "/import", importDocument)

	var share transfer.Share
	decodeBody(testContext, source.do(testContext, http.MethodGet, "/share", nil), &share)
	if !strings.HasPrefix(share.URL, "https://decks.example/#lz=") {
		testContext.Fatalf("unexpected share url %s", share.URL)
	}

	target := newTestServer(testContext, persistence.Unavailable{})
	recorder := target.do(testContext, http.MethodPost, "/import/link", gin.H{"link": share.URL})
	if recorder.Code != http.StatusOK {
		testContext.Fatalf("unexpected link import status %d: %s", recorder.Code, recorder.Body.String())
	}
	if status := target.session.Status(); status.Decks != 2 || status.Matches != 1 {
		testContext.Fatalf("unexpected imported status %+v", status)
	}
}

func TestShareQRAttachment(testContext *testing.T) {
	server := newTestServer(testContext, persistence.Unavailable{})
	server.addDeck(testContext, "Alpha", "Bravo")

	recorder := server.do(testContext, http.MethodGet, "/share/qr.png", nil)
	if recorder.Code != http.StatusOK {
		testContext.Fatalf("unexpected qr status %d", recorder.Code)
	}
	if recorder.Header().Get("Content-Type") != "image/png" {
		testContext.Fatalf("unexpected content type %q", recorder.Header().Get("Content-Type"))
	}
	if !bytes.HasPrefix(recorder.Body.Bytes(), []byte("\x89PNG")) {
		testContext.Fatalf("expected png body")
	}
	if disposition := recorder.Header().Get("Content-Disposition"); !strings.Contains(disposition, "fab-elo-qr-2025-03-14.png") {
		testContext.Fatalf("unexpected disposition %q", disposition)
	}
}

func TestClearAllWithStorage(testContext *testing.T) {
	db, err := database.OpenSQLite(filepath.Join(testContext.TempDir(), "server.db"), zap.NewNop())
	if err != nil {
		testContext.Fatalf("failed to open database: %v", err)
	}
	gateway, err := persistence.NewSQLiteGateway(persistence.GatewayConfig{Database: db})
	if err != nil {
		testContext.Fatalf("failed to build gateway: %v", err)
	}

	server := newTestServer(testContext, gateway)
	server.do(testContext, http.MethodPost, "/import", importDocument)
	stored, err := gateway.Load(context.Background())
	if err != nil || len(stored.Decks) != 2 {
		testContext.Fatalf("expected import to be saved, got %+v, %v", stored, err)
	}

	recorder := server.do(testContext, http.MethodDelete, "/data", nil)
	if recorder.Code != http.StatusNoContent {
		testContext.Fatalf("unexpected clear status %d", recorder.Code)
	}
	stored, err = gateway.Load(context.Background())
	if err != nil || !stored.IsEmpty() {
		testContext.Fatalf("expected storage cleared, got %+v, %v", stored, err)
	}
}
