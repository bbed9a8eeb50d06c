package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"quantity-sync-service/internal/models"
)

// RunLocker grants exclusive access to one catalog target for the duration
// of a sync run. Acquire returns models.ErrRunInProgress when the target
// stays busy past the wait budget.
type RunLocker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// StoreSemaphore is an in-process RunLocker with one slot per store
type StoreSemaphore struct {
	mu         sync.Mutex
	sems       map[string]chan struct{}
	activeRuns map[string]int
	wait       time.Duration
}

var _ RunLocker = (*StoreSemaphore)(nil)

// NewStoreSemaphore creates a semaphore that waits up to wait for a busy
// store. A zero wait fails immediately.
func NewStoreSemaphore(wait time.Duration) *StoreSemaphore {
	return &StoreSemaphore{
		sems:       make(map[string]chan struct{}),
		activeRuns: make(map[string]int),
		wait:       wait,
	}
}

func (s *StoreSemaphore) getOrCreate(key string) chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sem, exists := s.sems[key]; exists {
		return sem
	}
	sem := make(chan struct{}, 1)
	s.sems[key] = sem
	return sem
}

// Acquire takes the slot for key and returns its release function
func (s *StoreSemaphore) Acquire(ctx context.Context, key string) (func(), error) {
	sem := s.getOrCreate(key)

	select {
	case sem <- struct{}{}:
	default:
		if s.wait <= 0 {
			return nil, fmt.Errorf("%w: store=%s", models.ErrRunInProgress, key)
		}
		queueCtx, cancel := context.WithTimeout(ctx, s.wait)
		defer cancel()
		select {
		case sem <- struct{}{}:
		case <-queueCtx.Done():
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			return nil, fmt.Errorf("%w: store=%s", models.ErrRunInProgress, key)
		}
	}

	s.mu.Lock()
	s.activeRuns[key]++
	s.mu.Unlock()

	var once sync.Once
	release := func() {
		once.Do(func() {
			s.mu.Lock()
			s.activeRuns[key]--
			s.mu.Unlock()
			<-sem
		})
	}
	return release, nil
}

// ActiveRuns returns the number of runs holding key
func (s *StoreSemaphore) ActiveRuns(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeRuns[key]
}
