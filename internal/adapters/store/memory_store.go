package store

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/mikey/llm-harassment-filter/internal/core"
	"go.uber.org/zap"
)

// memoryEntry holds one value with an optional expiry
type memoryEntry struct {
	value     string
	expiresAt time.Time
}

func (e *memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// MemoryStore is an in-memory implementation of the KeyValueStore interface.
// It is the default store and the degradation target when an external store
// is unavailable.
type MemoryStore struct {
	entries     map[string]*memoryEntry
	mu          sync.RWMutex
	logger      *zap.Logger
	cleanupFreq time.Duration
	stopCh      chan struct{}
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore(logger *zap.Logger, cleanupFreq time.Duration) *MemoryStore {
	s := &MemoryStore{
		entries:     make(map[string]*memoryEntry),
		logger:      logger,
		cleanupFreq: cleanupFreq,
		stopCh:      make(chan struct{}),
	}

	go s.startCleanupTask()

	return s
}

// Get retrieves a value by key
func (s *MemoryStore) Get(ctx context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[key]
	if !ok || entry.expired(time.Now()) {
		return "", core.ErrKeyNotFound
	}
	return entry.value, nil
}

// Set stores a value under a key. A zero ttl means no expiry.
func (s *MemoryStore) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := &memoryEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = time.Now().Add(ttl)
	}
	s.entries[key] = entry
	return nil
}

// Increment adds delta to an integer value, creating it at delta when absent
func (s *MemoryStore) Increment(ctx context.Context, key string, delta int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := int64(0)
	entry, ok := s.entries[key]
	if ok && !entry.expired(time.Now()) {
		parsed, err := strconv.ParseInt(entry.value, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("value at %q is not an integer: %w", key, err)
		}
		current = parsed
	} else {
		entry = &memoryEntry{}
		s.entries[key] = entry
	}

	current += delta
	entry.value = strconv.FormatInt(current, 10)
	return current, nil
}

// Expire sets the expiry on an existing key
func (s *MemoryStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok || entry.expired(time.Now()) {
		return core.ErrKeyNotFound
	}
	if ttl > 0 {
		entry.expiresAt = time.Now().Add(ttl)
	} else {
		entry.expiresAt = time.Time{}
	}
	return nil
}

// Delete removes a key
func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, key)
	return nil
}

// Cleanup removes expired entries
func (s *MemoryStore) Cleanup(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	expiredCount := 0
	for key, entry := range s.entries {
		if entry.expired(now) {
			delete(s.entries, key)
			expiredCount++
		}
	}

	s.logger.Debug("Cleaned up expired store entries", zap.Int("expired_count", expiredCount))
	return nil
}

// startCleanupTask starts a background task to clean up expired entries
func (s *MemoryStore) startCleanupTask() {
	ticker := time.NewTicker(s.cleanupFreq)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.Cleanup(context.Background()); err != nil {
				s.logger.Error("Failed to clean up store", zap.Error(err))
			}
		case <-s.stopCh:
			return
		}
	}
}

// Stop stops the background cleanup task
func (s *MemoryStore) Stop() {
	close(s.stopCh)
}
