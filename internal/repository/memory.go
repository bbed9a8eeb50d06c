package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"quantity-sync-service/internal/models"
)

// MemorySourceFileRepository keeps file defaults in process memory
type MemorySourceFileRepository struct {
	mu       sync.RWMutex
	defaults map[string]models.JSONB
}

// NewMemorySourceFileRepository creates an empty in-memory repository
func NewMemorySourceFileRepository() *MemorySourceFileRepository {
	return &MemorySourceFileRepository{defaults: make(map[string]models.JSONB)}
}

// GetDefaults returns a copy of the defaults saved for a file
func (r *MemorySourceFileRepository) GetDefaults(_ context.Context, fileName string) (models.JSONB, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return copyJSONB(r.defaults[fileName]), nil
}

// SaveDefaults replaces the defaults of a file
func (r *MemorySourceFileRepository) SaveDefaults(_ context.Context, fileName string, defaults models.JSONB) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defaults[fileName] = copyJSONB(defaults)
	return nil
}

// DeleteByName removes the defaults of a file
func (r *MemorySourceFileRepository) DeleteByName(_ context.Context, fileName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.defaults, fileName)
	return nil
}

// MemorySyncRunRepository keeps a bounded run history per store in memory
type MemorySyncRunRepository struct {
	mu      sync.RWMutex
	runs    map[uuid.UUID]models.SyncRun
	maxRuns int
}

// NewMemorySyncRunRepository creates a repository holding at most maxRuns
// runs; older runs are evicted first. Zero keeps everything.
func NewMemorySyncRunRepository(maxRuns int) *MemorySyncRunRepository {
	return &MemorySyncRunRepository{
		runs:    make(map[uuid.UUID]models.SyncRun),
		maxRuns: maxRuns,
	}
}

// Create stores a new run
func (r *MemorySyncRunRepository) Create(_ context.Context, run *models.SyncRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs[run.ID] = *run
	r.evict()
	return nil
}

// Update replaces a stored run
func (r *MemorySyncRunRepository) Update(_ context.Context, run *models.SyncRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs[run.ID] = *run
	return nil
}

// ListByStore returns the latest runs of a store, newest first
func (r *MemorySyncRunRepository) ListByStore(_ context.Context, storeID string, limit int) ([]models.SyncRun, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	runs := make([]models.SyncRun, 0)
	for _, run := range r.runs {
		if run.StoreID == storeID {
			runs = append(runs, run)
		}
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].StartedAt.After(runs[j].StartedAt) })
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

// GetByID returns one run of a store
func (r *MemorySyncRunRepository) GetByID(_ context.Context, storeID string, id uuid.UUID) (*models.SyncRun, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	run, ok := r.runs[id]
	if !ok || run.StoreID != storeID {
		return nil, models.ErrRunNotFound
	}
	return &run, nil
}

func (r *MemorySyncRunRepository) evict() {
	if r.maxRuns <= 0 || len(r.runs) <= r.maxRuns {
		return
	}
	ordered := make([]models.SyncRun, 0, len(r.runs))
	for _, run := range r.runs {
		ordered = append(ordered, run)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].StartedAt.Before(ordered[j].StartedAt) })
	for _, run := range ordered[:len(ordered)-r.maxRuns] {
		delete(r.runs, run.ID)
	}
}

func copyJSONB(src models.JSONB) models.JSONB {
	dst := make(models.JSONB, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
