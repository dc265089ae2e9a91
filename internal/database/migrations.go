package database

import (
	"errors"
	"time"

	"github.com/inkwell-notes/inkwell/internal/notes"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const migrationRepairNoteUpdateTimes = "2026-08-20_repair_note_update_times"

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
		{name: migrationRepairNoteUpdateTimes, apply: repairNoteUpdateTimes},
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
		if err := migration.apply(db); err != nil {
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

// repairNoteUpdateTimes clamps any note whose updated_at drifted below
// its created_at back to the creation instant, restoring the
// updated_at >= created_at invariant over pre-existing rows.
func repairNoteUpdateTimes(db *gorm.DB) error {
	return db.Model(&notes.Note{}).
		Where("updated_at < created_at").
		Update("updated_at", gorm.Expr("created_at")).Error
}
