package database

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/MarcoPoloResearchLab/deckelo/internal/persistence"
	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrMissingDatabasePath indicates that no database file was configured.
var ErrMissingDatabasePath = errors.New("database: path is required")

// OpenSQLite opens the tracker database at path, creating its directory when needed, and
// brings the decks and matches tables up to date.
func OpenSQLite(path string, logger *zap.Logger) (*gorm.DB, error) {
	if path == "" {
		return nil, ErrMissingDatabasePath
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	if directory := filepath.Dir(path); directory != "." {
		if err := os.MkdirAll(directory, 0o755); err != nil {
			return nil, fmt.Errorf("database: create directory %s: %w", directory, err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("database: open %s: %w", path, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("database: connection pool: %w", err)
	}
	// SQLite allows a single writer; one connection keeps saves from contending.
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&persistence.DeckRow{}, &persistence.MatchRow{}, &migrationRecord{}); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("database: schema: %w", err)
	}

	if err := applyMigrations(db, logger); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("database: migrations: %w", err)
	}

	logger.Info("database initialized", zap.String("path", path))
	return db, nil
}
