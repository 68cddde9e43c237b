package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/deckelo/internal/persistence"
	"github.com/MarcoPoloResearchLab/deckelo/internal/session"
	"github.com/MarcoPoloResearchLab/deckelo/internal/tracker"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type sequentialIDProvider struct {
	mu   sync.Mutex
	next int
}

func (p *sequentialIDProvider) NewID() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.next++
	return fmt.Sprintf("id-%d", p.next), nil
}

func fixedClock() time.Time {
	return time.Date(2025, time.March, 14, 18, 30, 0, 0, time.UTC)
}

type testServer struct {
	handler    http.Handler
	session    *session.Service
	dispatcher *RealtimeDispatcher
}

func newTestServer(testContext *testing.T, gateway persistence.Gateway) *testServer {
	testContext.Helper()
	gin.SetMode(gin.TestMode)

	store, err := tracker.NewStore(tracker.StoreConfig{IDProvider: &sequentialIDProvider{}, Clock: fixedClock})
	if err != nil {
		testContext.Fatalf("failed to build store: %v", err)
	}

	dispatcher := NewRealtimeDispatcher()
	var service *session.Service
	service, err = session.NewService(session.ServiceConfig{
		Store:        store,
		Gateway:      gateway,
		Logger:       zap.NewNop(),
		SaveDelay:    time.Hour,
		ShareBaseURL: "https://decks.example/",
		Clock:        fixedClock,
		OnChange: func() {
			status := service.Status()
			dispatcher.PublishTrackerChange(status.Decks, status.Matches, fixedClock())
		},
		OnSaveError: func(err error) {
			dispatcher.PublishSaveFailure(err, fixedClock())
		},
	})
	if err != nil {
		testContext.Fatalf("failed to build session: %v", err)
	}
	if _, err := service.Open(context.Background(), ""); err != nil {
		testContext.Fatalf("failed to open session: %v", err)
	}

	handler, err := NewHTTPHandler(Dependencies{
		Session:           service,
		Realtime:          dispatcher,
		Logger:            zap.NewNop(),
		MaxImportBytes:    4096,
		HeartbeatInterval: time.Hour,
	})
	if err != nil {
		testContext.Fatalf("failed to build handler: %v", err)
	}
	return &testServer{handler: handler, session: service, dispatcher: dispatcher}
}

func (s *testServer) do(testContext *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	testContext.Helper()
	var reader *bytes.Reader
	switch value := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(value))
	default:
		encoded, err := json.Marshal(value)
		if err != nil {
			testContext.Fatalf("failed to encode body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	}
	request := httptest.NewRequest(method, path, reader)
	request.Header.Set("Content-Type", "application/json")
	recorder := httptest.NewRecorder()
	s.handler.ServeHTTP(recorder, request)
	return recorder
}

func (s *testServer) addDeck(testContext *testing.T, name, hero string) tracker.Deck {
	testContext.Helper()
	recorder := s.do(testContext, http.MethodPost, "/decks", gin.H{"name": name, "hero": hero})
	if recorder.Code != http.StatusCreated {
		testContext.Fatalf("unexpected add deck status %d: %s", recorder.Code, recorder.Body.String())
	}
	var deck tracker.Deck
	decodeBody(testContext, recorder, &deck)
	return deck
}

func decodeBody(testContext *testing.T, recorder *httptest.ResponseRecorder, target any) {
	testContext.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		testContext.Fatalf("failed to decode response %q: %v", recorder.Body.String(), err)
	}
}

type errorPayload struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func assertError(testContext *testing.T, recorder *httptest.ResponseRecorder, status int, reason string) {
	testContext.Helper()
	if recorder.Code != status {
		testContext.Fatalf("expected status %d, got %d: %s", status, recorder.Code, recorder.Body.String())
	}
	var payload errorPayload
	decodeBody(testContext, recorder, &payload)
	if payload.Error != reason {
		testContext.Fatalf("expected error %q, got %q", reason, payload.Error)
	}
}
