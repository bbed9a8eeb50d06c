package repository

import (
	"gorm.io/gorm"

	"quantity-sync-service/internal/models"
)

// AutoMigrate creates or updates the tables owned by this service
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.SourceFile{},
		&models.SyncRun{},
	)
}
