// Package runstore keeps finished pipeline results for lookup by run ID.
package runstore

import (
	"context"
	"errors"
	"sync"
	"time"

	"clinical-notes-service/internal/models"
)

// ErrNotFound is returned for unknown or expired runs.
var ErrNotFound = errors.New("run not found")

// Store saves and loads pipeline results. Implementations are result sinks.
type Store interface {
	Save(ctx context.Context, result *models.PipelineResult) error
	Get(ctx context.Context, runID string) (*models.PipelineResult, error)
}

// MemoryStore is an in-process store whose entries expire after a TTL.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]*memoryItem
	ttl   time.Duration
	now   func() time.Time
	stop  chan struct{}
	once  sync.Once
}

type memoryItem struct {
	result     *models.PipelineResult
	expireTime time.Time
}

// NewMemoryStore creates a store and starts removing expired entries every
// cleanupInterval. Call Close to stop the cleanup goroutine.
func NewMemoryStore(ttl, cleanupInterval time.Duration) *MemoryStore {
	s := &MemoryStore{
		items: make(map[string]*memoryItem),
		ttl:   ttl,
		now:   time.Now,
		stop:  make(chan struct{}),
	}
	if cleanupInterval > 0 {
		go s.cleanupExpired(cleanupInterval)
	}
	return s
}

// Name identifies the store as a result sink.
func (s *MemoryStore) Name() string {
	return "memory-runstore"
}

// RecordResult saves result.
func (s *MemoryStore) RecordResult(ctx context.Context, result *models.PipelineResult) error {
	return s.Save(ctx, result)
}

// Save stores result under its run ID.
func (s *MemoryStore) Save(_ context.Context, result *models.PipelineResult) error {
	if result == nil || result.RunID == "" {
		return errors.New("result without run id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[result.RunID] = &memoryItem{
		result:     result,
		expireTime: s.now().Add(s.ttl),
	}
	return nil
}

// Get returns the result of runID.
func (s *MemoryStore) Get(_ context.Context, runID string) (*models.PipelineResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.items[runID]
	if !ok || s.expired(item) {
		return nil, ErrNotFound
	}
	return item.result, nil
}

// Len returns the number of stored entries, expired or not.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Close stops the cleanup goroutine.
func (s *MemoryStore) Close() error {
	s.once.Do(func() { close(s.stop) })
	return nil
}

func (s *MemoryStore) expired(item *memoryItem) bool {
	return s.ttl > 0 && s.now().After(item.expireTime)
}

func (s *MemoryStore) removeExpired() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, item := range s.items {
		if s.expired(item) {
			delete(s.items, key)
		}
	}
}

func (s *MemoryStore) cleanupExpired(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.removeExpired()
		}
	}
}
