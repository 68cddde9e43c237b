package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/MarcoPoloResearchLab/deckelo/internal/tracker"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

const insertBatchSize = 200

var (
	// ErrUnavailable indicates that no durable storage is attached.
	ErrUnavailable = errors.New("persistence: storage unavailable")

	errMissingDatabase = errors.New("database handle is required")
	noOpLogger         = zap.NewNop()
)

const (
	opGatewayNew = "persistence.gateway.new"
	opLoad       = "persistence.load"
	opSaveAll    = "persistence.save_all"
	opClear      = "persistence.clear"
)

// Gateway loads and stores the whole tracker state.
type Gateway interface {
	Load(ctx context.Context) (tracker.Dataset, error)
	SaveAll(ctx context.Context, decks []tracker.Deck, matches []tracker.Match) error
	Clear(ctx context.Context) error
	IsAvailable() bool
}

// GatewayError carries a dotted operation code alongside the cause.
type GatewayError struct {
	code string
	err  error
}

func (e *GatewayError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *GatewayError) Unwrap() error {
	return e.err
}

func (e *GatewayError) Code() string {
	return e.code
}

func newGatewayError(operation, reason string, cause error) error {
	return &GatewayError{code: fmt.Sprintf("%s.%s", operation, reason), err: cause}
}

// GatewayConfig describes the dependencies of a SQLiteGateway.
type GatewayConfig struct {
	Database *gorm.DB
	Logger   *zap.Logger
}

// SQLiteGateway persists decks and matches in two tables.
type SQLiteGateway struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewSQLiteGateway constructs a gateway over an opened database.
func NewSQLiteGateway(cfg GatewayConfig) (*SQLiteGateway, error) {
	if cfg.Database == nil {
		return nil, newGatewayError(opGatewayNew, "missing_database", errMissingDatabase)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &SQLiteGateway{db: cfg.Database, logger: logger}, nil
}

// IsAvailable always reports true for an opened database.
func (g *SQLiteGateway) IsAvailable() bool {
	return true
}

// Load reads both tables. Missing data comes back as empty slices.
func (g *SQLiteGateway) Load(ctx context.Context) (tracker.Dataset, error) {
	var deckRecords []DeckRow
	var matchRecords []MatchRow

	group, groupContext := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := g.db.WithContext(groupContext).Order("position ASC").Find(&deckRecords).Error; err != nil {
			g.logError(opLoad, "deck_query_failed", err)
			return newGatewayError(opLoad, "deck_query_failed", err)
		}
		return nil
	})
	group.Go(func() error {
		if err := g.db.WithContext(groupContext).Order("sequence ASC").Find(&matchRecords).Error; err != nil {
			g.logError(opLoad, "match_query_failed", err)
			return newGatewayError(opLoad, "match_query_failed", err)
		}
		return nil
	})
	if err := group.Wait(); err != nil {
		return tracker.Dataset{}, err
	}

	dataset := tracker.Dataset{
		Decks:   make([]tracker.Deck, 0, len(deckRecords)),
		Matches: make([]tracker.Match, 0, len(matchRecords)),
	}
	for _, row := range deckRecords {
		dataset.Decks = append(dataset.Decks, row.deck())
	}
	for _, row := range matchRecords {
		dataset.Matches = append(dataset.Matches, row.match())
	}
	return dataset, nil
}

// SaveAll replaces the stored state with decks and matches in one transaction.
func (g *SQLiteGateway) SaveAll(ctx context.Context, decks []tracker.Deck, matches []tracker.Match) error {
	return g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := clearTables(tx); err != nil {
			g.logError(opSaveAll, "clear_failed", err)
			return newGatewayError(opSaveAll, "clear_failed", err)
		}
		if len(decks) > 0 {
			if err := tx.CreateInBatches(deckRows(decks), insertBatchSize).Error; err != nil {
				g.logError(opSaveAll, "deck_insert_failed", err, zap.Int("decks", len(decks)))
				return newGatewayError(opSaveAll, "deck_insert_failed", err)
			}
		}
		if len(matches) > 0 {
			if err := tx.CreateInBatches(matchRows(matches), insertBatchSize).Error; err != nil {
				g.logError(opSaveAll, "match_insert_failed", err, zap.Int("matches", len(matches)))
				return newGatewayError(opSaveAll, "match_insert_failed", err)
			}
		}
		return nil
	})
}

// Clear removes every stored deck and match.
func (g *SQLiteGateway) Clear(ctx context.Context) error {
	return g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := clearTables(tx); err != nil {
			g.logError(opClear, "delete_failed", err)
			return newGatewayError(opClear, "delete_failed", err)
		}
		return nil
	})
}

func clearTables(tx *gorm.DB) error {
	if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&MatchRow{}).Error; err != nil {
		return err
	}
	return tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&DeckRow{}).Error
}

func (g *SQLiteGateway) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	g.logger.Error("persistence gateway error", attrs...)
}

// Unavailable is the gateway used when no storage could be opened. Loads return an
// empty dataset and writes fail with ErrUnavailable.
type Unavailable struct{}

// IsAvailable reports false.
func (Unavailable) IsAvailable() bool {
	return false
}

// Load returns an empty dataset.
func (Unavailable) Load(context.Context) (tracker.Dataset, error) {
	return tracker.Dataset{Decks: []tracker.Deck{}, Matches: []tracker.Match{}}, nil
}

// SaveAll fails with ErrUnavailable.
func (Unavailable) SaveAll(context.Context, []tracker.Deck, []tracker.Match) error {
	return ErrUnavailable
}

// Clear fails with ErrUnavailable.
func (Unavailable) Clear(context.Context) error {
	return ErrUnavailable
}
