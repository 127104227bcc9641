package migrations

import (
	"errors"
	"fmt"
	"time"

	"github.com/vinli0921/GEO-exploration/internal/domain/metrics"
	"github.com/vinli0921/GEO-exploration/internal/domain/session"
	"github.com/vinli0921/GEO-exploration/internal/infrastructure/persistence/postgres/connection"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// MigrationRecord tracks the migration history
type MigrationRecord struct {
	ID        uint      `gorm:"primaryKey"`
	Name      string    `gorm:"not null;unique"`
	Version   int       `gorm:"not null"`
	AppliedAt time.Time `gorm:"not null"`
}

// TableName specifies the table name for migration records
func (MigrationRecord) TableName() string {
	return "schema_migrations"
}

// AutoMigrate runs database migrations for all models
func AutoMigrate(db *connection.Database, logger *zap.Logger) error {
	logger.Info("Starting automatic database migration...")

	// Enable UUID extension for PostgreSQL
	if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`).Error; err != nil {
		logger.Error("Failed to create UUID extension", zap.Error(err))
		return fmt.Errorf("failed to create UUID extension: %v", err)
	}

	// Create migrations table if it doesn't exist
	if err := db.AutoMigrate(&MigrationRecord{}); err != nil {
		logger.Error("Failed to create migrations table", zap.Error(err))
		return fmt.Errorf("failed to create migrations table: %v", err)
	}

	return db.Transaction(func(tx *gorm.DB) error {
		var lastVersion int
		if err := tx.Model(&MigrationRecord{}).Select("COALESCE(MAX(version), 0)").Scan(&lastVersion).Error; err != nil {
			return fmt.Errorf("failed to get last version: %v", err)
		}

		// Ordered by foreign key dependencies: sessions own uploads, events
		// and metrics rows.
		models := []interface{}{
			&session.Session{},
			&session.Upload{},
			&session.SessionEvent{},
			&metrics.SessionMetrics{},
		}

		for i, model := range models {
			modelName := fmt.Sprintf("%T", model)

			var record MigrationRecord
			err := tx.Where("name = ?", modelName).First(&record).Error
			isNewMigration := errors.Is(err, gorm.ErrRecordNotFound)

			if err := tx.AutoMigrate(model); err != nil {
				logger.Error("Failed to migrate model",
					zap.String("model", modelName),
					zap.Error(err),
				)
				return fmt.Errorf("failed to migrate %s: %v", modelName, err)
			}

			if isNewMigration {
				record = MigrationRecord{
					Name:      modelName,
					Version:   lastVersion + i + 1,
					AppliedAt: time.Now(),
				}
				if err := tx.Create(&record).Error; err != nil {
					return fmt.Errorf("failed to record migration for %s: %v", modelName, err)
				}
				logger.Info("Applied new migration",
					zap.String("model", modelName),
					zap.Int("version", record.Version),
				)
			}
		}

		logger.Info("Database migration completed successfully")
		return nil
	})
}

// GetMigrationHistory returns the history of applied migrations
func GetMigrationHistory(db *connection.Database) ([]MigrationRecord, error) {
	var records []MigrationRecord
	err := db.Order("version ASC").Find(&records).Error
	return records, err
}
