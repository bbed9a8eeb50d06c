package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"quantity-sync-service/internal/models"
)

// SourceFileRepository handles database operations for file defaults
type SourceFileRepository struct {
	db *gorm.DB
}

// NewSourceFileRepository creates a new source file repository
func NewSourceFileRepository(db *gorm.DB) *SourceFileRepository {
	return &SourceFileRepository{db: db}
}

// GetDefaults returns the defaults saved for a file, empty when none exist
func (r *SourceFileRepository) GetDefaults(ctx context.Context, fileName string) (models.JSONB, error) {
	var file models.SourceFile
	err := r.db.WithContext(ctx).
		Where("file_name = ?", fileName).
		First(&file).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.JSONB{}, nil
	}
	if err != nil {
		return nil, err
	}
	if file.Defaults == nil {
		return models.JSONB{}, nil
	}
	return file.Defaults, nil
}

// SaveDefaults upserts the defaults of a file
func (r *SourceFileRepository) SaveDefaults(ctx context.Context, fileName string, defaults models.JSONB) error {
	now := time.Now()
	file := models.SourceFile{
		FileName:   fileName,
		Defaults:   defaults,
		UploadedAt: now,
		UpdatedAt:  now,
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "file_name"}},
			DoUpdates: clause.AssignmentColumns([]string{"defaults", "updated_at"}),
		}).
		Create(&file).Error
}

// DeleteByName removes the defaults of a file
func (r *SourceFileRepository) DeleteByName(ctx context.Context, fileName string) error {
	return r.db.WithContext(ctx).
		Where("file_name = ?", fileName).
		Delete(&models.SourceFile{}).Error
}
