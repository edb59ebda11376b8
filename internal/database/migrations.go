package database

import (
	"errors"
	"time"

	"github.com/quotia/backend/internal/devicetokens"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const migrationDropOrphanedDeviceTokens = "2026-03-18_drop_orphaned_device_tokens"

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
		{name: migrationDropOrphanedDeviceTokens, apply: dropOrphanedDeviceTokens},
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

// Early builds registered device tokens before the owning user was known,
// leaving rows with an empty user id that no dispatch can ever reach.
func dropOrphanedDeviceTokens(db *gorm.DB) error {
	return db.Where("user_id = ''").Delete(&devicetokens.DeviceToken{}).Error
}
