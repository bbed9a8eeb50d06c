package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"quantity-sync-service/internal/models"
)

// SyncRunRepository handles database operations for sync runs
type SyncRunRepository struct {
	db *gorm.DB
}

// NewSyncRunRepository creates a new sync run repository
func NewSyncRunRepository(db *gorm.DB) *SyncRunRepository {
	return &SyncRunRepository{db: db}
}

// Create inserts a new run
func (r *SyncRunRepository) Create(ctx context.Context, run *models.SyncRun) error {
	return r.db.WithContext(ctx).Create(run).Error
}

// Update saves an existing run
func (r *SyncRunRepository) Update(ctx context.Context, run *models.SyncRun) error {
	return r.db.WithContext(ctx).Save(run).Error
}

// ListByStore returns the latest runs of a store, newest first
func (r *SyncRunRepository) ListByStore(ctx context.Context, storeID string, limit int) ([]models.SyncRun, error) {
	var runs []models.SyncRun
	query := r.db.WithContext(ctx).
		Where("store_id = ?", storeID).
		Order("started_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&runs).Error; err != nil {
		return nil, err
	}
	return runs, nil
}

// GetByID returns one run of a store
func (r *SyncRunRepository) GetByID(ctx context.Context, storeID string, id uuid.UUID) (*models.SyncRun, error) {
	var run models.SyncRun
	err := r.db.WithContext(ctx).
		Where("id = ? AND store_id = ?", id, storeID).
		First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.ErrRunNotFound
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}
