package session

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/deckelo/internal/database"
	"github.com/MarcoPoloResearchLab/deckelo/internal/persistence"
	"github.com/MarcoPoloResearchLab/deckelo/internal/tracker"
	"go.uber.org/zap"
)

type sequentialIDProvider struct {
	mu     sync.Mutex
	prefix string
	next   int
}

func (p *sequentialIDProvider) NewID() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.next++
	return fmt.Sprintf("%s%d", p.prefix, p.next), nil
}

func fixedClock() time.Time {
	return time.Date(2025, time.March, 14, 18, 30, 0, 0, time.UTC)
}

type brokenGateway struct {
	persistence.Unavailable
}

func (brokenGateway) IsAvailable() bool {
	return true
}

func (brokenGateway) Load(context.Context) (tracker.Dataset, error) {
	return tracker.Dataset{}, errors.New("database is locked")
}

// slowGateway holds Load until release is closed.
type slowGateway struct {
	persistence.Unavailable
	loading chan struct{}
	release chan struct{}
}

func newSlowGateway() *slowGateway {
	return &slowGateway{loading: make(chan struct{}), release: make(chan struct{})}
}

func (slowGateway) IsAvailable() bool {
	return true
}

func (g *slowGateway) Load(ctx context.Context) (tracker.Dataset, error) {
	close(g.loading)
	select {
	case <-g.release:
		return tracker.Dataset{Decks: []tracker.Deck{}, Matches: []tracker.Match{}}, nil
	case <-ctx.Done():
		return tracker.Dataset{}, ctx.Err()
	}
}

func newSQLiteGateway(t *testing.T, path string) *persistence.SQLiteGateway {
	t.Helper()
	db, err := database.OpenSQLite(path, zap.NewNop())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	gateway, err := persistence.NewSQLiteGateway(persistence.GatewayConfig{Database: db, Logger: zap.NewNop()})
	if err != nil {
		t.Fatalf("failed to build gateway: %v", err)
	}
	return gateway
}

func newTestService(t *testing.T, gateway persistence.Gateway) *Service {
	t.Helper()
	store, err := tracker.NewStore(tracker.StoreConfig{
		IDProvider: &sequentialIDProvider{prefix: "id-"},
		Clock:      fixedClock,
	})
	if err != nil {
		t.Fatalf("failed to build store: %v", err)
	}
	service, err := NewService(ServiceConfig{
		Store:        store,
		Gateway:      gateway,
		Logger:       zap.NewNop(),
		SaveDelay:    time.Hour,
		ShareBaseURL: "https://decks.example/",
		Clock:        fixedClock,
	})
	if err != nil {
		t.Fatalf("failed to build service: %v", err)
	}
	return service
}

func newDatabasePath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "deckelo.db")
}

func mustOpen(t *testing.T, service *Service, fragment string) OpenResult {
	t.Helper()
	result, err := service.Open(context.Background(), fragment)
	if err != nil {
		t.Fatalf("unexpected open error: %v", err)
	}
	return result
}

func mustAddDeck(t *testing.T, service *Service, name, hero string) tracker.Deck {
	t.Helper()
	deck, err := service.AddDeck(name, hero)
	if err != nil {
		t.Fatalf("unexpected add deck error: %v", err)
	}
	return deck
}

func assertCode(t *testing.T, err error, code string) {
	t.Helper()
	var serviceErr *ServiceError
	if !errors.As(err, &serviceErr) {
		t.Fatalf("expected service error %s, got %v", code, err)
	}
	if serviceErr.Code() != code {
		t.Fatalf("expected code %s, got %s", code, serviceErr.Code())
	}
}
