package repository

import (
	"context"
	"sync"
	"time"
)

type expiringValue struct {
	value     string
	count     int
	expiresAt time.Time
}

func (v expiringValue) expired(now time.Time) bool {
	return !v.expiresAt.IsZero() && now.After(v.expiresAt)
}

// MemoryAttemptStore is the single-process AttemptStore used when Redis is
// not configured or unreachable.
type MemoryAttemptStore struct {
	mu         sync.Mutex
	attempts   map[string]expiringValue
	rateLimits map[string]expiringValue
	processed  map[string]expiringValue
	now        func() time.Time
}

func NewMemoryAttemptStore() *MemoryAttemptStore {
	return &MemoryAttemptStore{
		attempts:   make(map[string]expiringValue),
		rateLimits: make(map[string]expiringValue),
		processed:  make(map[string]expiringValue),
		now:        time.Now,
	}
}

func (r *MemoryAttemptStore) AcquireAttempt(_ context.Context, bookingID, reference string, ttl time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if cur, ok := r.attempts[bookingID]; ok && !cur.expired(now) {
		return false, nil
	}
	r.attempts[bookingID] = expiringValue{value: reference, expiresAt: expiry(now, ttl)}
	return true, nil
}

func (r *MemoryAttemptStore) ReleaseAttempt(_ context.Context, bookingID, reference string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cur, ok := r.attempts[bookingID]; ok && cur.value == reference {
		delete(r.attempts, bookingID)
	}
	return nil
}

func (r *MemoryAttemptStore) ActiveAttempt(_ context.Context, bookingID string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.attempts[bookingID]
	if !ok || cur.expired(r.now()) {
		return "", nil
	}
	return cur.value, nil
}

func (r *MemoryAttemptStore) CheckRateLimit(_ context.Context, key string, limit int, window time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	entry, ok := r.rateLimits[key]
	if !ok || entry.expired(now) {
		entry = expiringValue{expiresAt: expiry(now, window)}
	}
	entry.count++
	r.rateLimits[key] = entry
	return entry.count <= limit, nil
}

func (r *MemoryAttemptStore) MarkProcessed(_ context.Context, key string, ttl time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if cur, ok := r.processed[key]; ok && !cur.expired(now) {
		return false, nil
	}
	r.processed[key] = expiringValue{expiresAt: expiry(now, ttl)}
	return true, nil
}

func (r *MemoryAttemptStore) ClearProcessed(_ context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.processed, key)
	return nil
}

func expiry(now time.Time, ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return now.Add(ttl)
}
