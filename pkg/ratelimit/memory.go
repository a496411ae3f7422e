package ratelimit

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	value   int64
	expires time.Time
}

// MemoryStore is an in-process [AtomicCounterStore]. Counters are lost
// on restart and are not shared between replicas; use the Redis store
// for anything beyond a single instance.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryStore creates a MemoryStore. A nil clock uses time.Now.
func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{entries: make(map[string]memoryEntry), now: now}
}

// Get implements [CounterStore].
func (s *MemoryStore) Get(ctx context.Context, key string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(key), nil
}

// Set implements [CounterStore]. A non-positive ttl deletes the key.
func (s *MemoryStore) Set(ctx context.Context, key string, value int64, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.store(key, value, ttl)
	return nil
}

// IncrementIfBelow implements [AtomicCounterStore].
func (s *MemoryStore) IncrementIfBelow(ctx context.Context, key string, limit int64, ttl time.Duration) (int64, bool, error) {
	if err := ctx.Err(); err != nil {
		return 0, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	count := s.load(key)
	if count >= limit {
		return count, false, nil
	}
	s.store(key, count+1, ttl)
	return count, true, nil
}

// Sweep drops expired counters and returns how many it removed.
func (s *MemoryStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	removed := 0
	for k, e := range s.entries {
		if !now.Before(e.expires) {
			delete(s.entries, k)
			removed++
		}
	}
	return removed
}

// RunSweeper calls Sweep every interval until ctx is done. Without it
// counters for keys that are never read again stay in memory. A
// non-positive interval returns immediately.
func (s *MemoryStore) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

// Len returns the number of stored counters, expired ones included until
// they are swept or read.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// load must be called with mu held.
func (s *MemoryStore) load(key string) int64 {
	e, ok := s.entries[key]
	if !ok {
		return 0
	}
	if !s.now().Before(e.expires) {
		delete(s.entries, key)
		return 0
	}
	return e.value
}

// store must be called with mu held.
func (s *MemoryStore) store(key string, value int64, ttl time.Duration) {
	if ttl <= 0 {
		delete(s.entries, key)
		return
	}
	s.entries[key] = memoryEntry{value: value, expires: s.now().Add(ttl)}
}
