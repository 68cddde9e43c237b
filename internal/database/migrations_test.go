package database

import (
	"path/filepath"
	"testing"

	"github.com/MarcoPoloResearchLab/deckelo/internal/persistence"
	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func TestApplyMigrationsBackfillsMatchSequence(testContext *testing.T) {
	tempDir := testContext.TempDir()
	databasePath := filepath.Join(tempDir, "migration.db")

	database, err := gorm.Open(sqlite.Open(databasePath), &gorm.Config{})
	if err != nil {
		testContext.Fatalf("failed to open sqlite: %v", err)
	}

	if err := database.AutoMigrate(&persistence.DeckRow{}, &persistence.MatchRow{}, &migrationRecord{}); err != nil {
		testContext.Fatalf("failed to migrate schema: %v", err)
	}

	rows := []persistence.MatchRow{
		{ID: "old", Date: "2025-01-01T10:00:00.000Z", Deck1ID: "a", Deck2ID: "b", Deck1OldElo: 1500, Deck2OldElo: 1500, WinnerID: "a"},
		{ID: "new", Date: "2025-01-03T10:00:00.000Z", Deck1ID: "a", Deck2ID: "b", Deck1OldElo: 1501, Deck2OldElo: 1499, WinnerID: "b"},
		{ID: "mid", Date: "2025-01-02T10:00:00.000Z", Deck1ID: "a", Deck2ID: "b", Deck1OldElo: 1516, Deck2OldElo: 1484, WinnerID: "b"},
	}
	if err := database.Create(&rows).Error; err != nil {
		testContext.Fatalf("failed to insert matches: %v", err)
	}

	if err := applyMigrations(database, zap.NewNop()); err != nil {
		testContext.Fatalf("failed to apply migrations: %v", err)
	}

	var stored []persistence.MatchRow
	if err := database.Order("sequence ASC").Find(&stored).Error; err != nil {
		testContext.Fatalf("failed to reload matches: %v", err)
	}
	order := []string{stored[0].ID, stored[1].ID, stored[2].ID}
	if order[0] != "new" || order[1] != "mid" || order[2] != "old" {
		testContext.Fatalf("unexpected match order %v", order)
	}

	var record migrationRecord
	if err := database.Where("name = ?", migrationBackfillMatchSequence).Take(&record).Error; err != nil {
		testContext.Fatalf("expected migration record to be created: %v", err)
	}
	if record.AppliedAtSeconds == 0 {
		testContext.Fatalf("expected migration timestamp to be set")
	}
}

func TestApplyMigrationsRunsOnce(testContext *testing.T) {
	database, err := OpenSQLite(filepath.Join(testContext.TempDir(), "once.db"), zap.NewNop())
	if err != nil {
		testContext.Fatalf("failed to open database: %v", err)
	}

	if err := applyMigrations(database, zap.NewNop()); err != nil {
		testContext.Fatalf("failed to reapply migrations: %v", err)
	}

	var count int64
	if err := database.Model(&migrationRecord{}).Count(&count).Error; err != nil {
		testContext.Fatalf("failed to count migrations: %v", err)
	}
	if count != 1 {
		testContext.Fatalf("expected a single migration record, got %d", count)
	}
}

func TestOpenSQLiteRequiresPathMigrations(testContext *testing.T) {
	if _, err := OpenSQLite("", zap.NewNop()); err == nil {
		testContext.Fatalf("expected error for empty path")
	}
}
