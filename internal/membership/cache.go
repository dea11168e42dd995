package membership

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"kanban-realtime/pkg/log"
)

// cacheEntry represents a cached membership lookup
type cacheEntry struct {
	allowed   bool
	member    Member
	expiresAt time.Time
}

// CachedStore wraps a Store with a TTL cache so the authorizer and the relay
// can re-check membership on every request without hammering the database.
type CachedStore struct {
	delegate    Store
	cache       map[string]*cacheEntry
	mu          sync.RWMutex
	cacheTTL    time.Duration
	logger      log.Logger
	cacheHits   int64
	cacheMisses int64
}

// NewCachedStore creates a new CachedStore
func NewCachedStore(delegate Store, cacheTTL time.Duration, logger log.Logger) *CachedStore {
	cs := &CachedStore{
		delegate: delegate,
		cache:    make(map[string]*cacheEntry),
		cacheTTL: cacheTTL,
		logger:   logger,
	}

	// Start cache cleanup goroutine
	go cs.cleanupLoop()

	return cs
}

// cacheKey generates a cache key for membership lookups
func cacheKey(userID, projectID string) string {
	return userID + ":" + projectID
}

func (cs *CachedStore) IsMember(ctx context.Context, userID, projectID string) (bool, error) {
	key := cacheKey(userID, projectID)

	cs.mu.RLock()
	entry, exists := cs.cache[key]
	cs.mu.RUnlock()

	if exists && time.Now().Before(entry.expiresAt) {
		cs.mu.Lock()
		cs.cacheHits++
		cs.mu.Unlock()
		return entry.allowed, nil
	}

	cs.mu.Lock()
	cs.cacheMisses++
	cs.mu.Unlock()

	_, err := cs.refresh(ctx, userID, projectID)
	if err != nil && !errors.Is(err, ErrNotMember) {
		return false, err
	}
	return err == nil, nil
}

func (cs *CachedStore) Member(ctx context.Context, userID, projectID string) (Member, error) {
	key := cacheKey(userID, projectID)

	cs.mu.RLock()
	entry, exists := cs.cache[key]
	cs.mu.RUnlock()

	if exists && time.Now().Before(entry.expiresAt) {
		cs.mu.Lock()
		cs.cacheHits++
		cs.mu.Unlock()
		if !entry.allowed {
			return Member{}, ErrNotMember
		}
		return entry.member, nil
	}

	cs.mu.Lock()
	cs.cacheMisses++
	cs.mu.Unlock()

	return cs.refresh(ctx, userID, projectID)
}

// refresh performs a delegate lookup and caches both outcomes, including
// the negative one.
func (cs *CachedStore) refresh(ctx context.Context, userID, projectID string) (Member, error) {
	member, err := cs.delegate.Member(ctx, userID, projectID)
	if err != nil && !errors.Is(err, ErrNotMember) {
		return Member{}, err
	}

	cs.mu.Lock()
	cs.cache[cacheKey(userID, projectID)] = &cacheEntry{
		allowed:   err == nil,
		member:    member,
		expiresAt: time.Now().Add(cs.cacheTTL),
	}
	cs.mu.Unlock()

	if err != nil {
		return Member{}, err
	}
	return member, nil
}

// cleanupLoop periodically removes expired cache entries
func (cs *CachedStore) cleanupLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		cs.cleanup()
	}
}

// cleanup removes expired cache entries
func (cs *CachedStore) cleanup() {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	now := time.Now()
	for key, entry := range cs.cache {
		if now.After(entry.expiresAt) {
			delete(cs.cache, key)
		}
	}
}

// GetCacheStats returns cache statistics
func (cs *CachedStore) GetCacheStats() (hits, misses int64, size int) {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.cacheHits, cs.cacheMisses, len(cs.cache)
}

// InvalidateUser removes all cache entries for a specific user
func (cs *CachedStore) InvalidateUser(userID string) {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	prefix := userID + ":"
	for key := range cs.cache {
		if strings.HasPrefix(key, prefix) {
			delete(cs.cache, key)
		}
	}
}

// InvalidateProject removes all cache entries for a specific project
func (cs *CachedStore) InvalidateProject(projectID string) {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	suffix := ":" + projectID
	for key := range cs.cache {
		if strings.HasSuffix(key, suffix) {
			delete(cs.cache, key)
		}
	}
}
