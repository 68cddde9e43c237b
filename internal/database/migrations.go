package database

import (
	"errors"
	"time"

	"github.com/MarcoPoloResearchLab/deckelo/internal/persistence"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const migrationBackfillMatchSequence = "2025-03-10_backfill_match_sequence"

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationBackfillMatchSequence, apply: backfillMatchSequence},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := db.Transaction(migration.apply); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// backfillMatchSequence numbers matches stored before the sequence column existed. Such
// rows all carry the default sequence, so they are ordered by date, most recent first.
func backfillMatchSequence(db *gorm.DB) error {
	var unsequenced int64
	if err := db.Model(&persistence.MatchRow{}).Where("sequence = 0").Count(&unsequenced).Error; err != nil {
		return err
	}
	if unsequenced < 2 {
		return nil
	}

	var matchIDs []string
	if err := db.Model(&persistence.MatchRow{}).Order("date DESC").Order("id ASC").Pluck("id", &matchIDs).Error; err != nil {
		return err
	}
	for sequence, matchID := range matchIDs {
		if err := db.Model(&persistence.MatchRow{}).Where("id = ?", matchID).Update("sequence", sequence).Error; err != nil {
			return err
		}
	}
	return nil
}
