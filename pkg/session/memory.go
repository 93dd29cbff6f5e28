package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps serialized sessions in process memory. It survives a
// Manager restart within one process, which is what tests and the exec
// command need; it does not survive the process.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]memoryRecord
	now     func() time.Time
	closed  bool
	done    chan struct{}
}

type memoryRecord struct {
	data      []byte
	expiresAt time.Time
}

// MemoryStoreOption configures a MemoryStore.
type MemoryStoreOption func(*memoryStoreConfig)

type memoryStoreConfig struct {
	cleanupInterval time.Duration
	now             func() time.Time
}

// WithCleanupInterval sets how often expired records are dropped.
// Default: 1 minute.
func WithCleanupInterval(d time.Duration) MemoryStoreOption {
	return func(c *memoryStoreConfig) {
		c.cleanupInterval = d
	}
}

// WithStoreClock replaces time.Now, for tests.
func WithStoreClock(now func() time.Time) MemoryStoreOption {
	return func(c *memoryStoreConfig) {
		c.now = now
	}
}

// NewMemoryStore creates a store and starts its cleanup loop.
func NewMemoryStore(opts ...MemoryStoreOption) *MemoryStore {
	cfg := &memoryStoreConfig{
		cleanupInterval: time.Minute,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	s := &MemoryStore{
		records: make(map[string]memoryRecord),
		now:     cfg.now,
		done:    make(chan struct{}),
	}
	go s.cleanupLoop(cfg.cleanupInterval)
	return s
}

func (s *MemoryStore) Save(_ context.Context, sessionID string, data []byte, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	s.records[sessionID] = memoryRecord{data: cloneBytes(data), expiresAt: expiresAt}
	return nil
}

func (s *MemoryStore) Load(_ context.Context, sessionID string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	r, ok := s.records[sessionID]
	if !ok || !s.now().Before(r.expiresAt) {
		return nil, nil
	}
	return cloneBytes(r.data), nil
}

func (s *MemoryStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	delete(s.records, sessionID)
	return nil
}

func (s *MemoryStore) Touch(_ context.Context, sessionID string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	if r, ok := s.records[sessionID]; ok {
		r.expiresAt = expiresAt
		s.records[sessionID] = r
	}
	return nil
}

func (s *MemoryStore) SaveAll(_ context.Context, sessions map[string]SessionData) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	for id, sd := range sessions {
		s.records[id] = memoryRecord{data: cloneBytes(sd.Data), expiresAt: sd.ExpiresAt}
	}
	return nil
}

// Close stops the cleanup loop and drops every record.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.done)
	s.records = nil
	return nil
}

// Count returns the number of records, expired ones included.
func (s *MemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func (s *MemoryStore) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.cleanup()
		case <-s.done:
			return
		}
	}
}

func (s *MemoryStore) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	now := s.now()
	for id, r := range s.records {
		if !now.Before(r.expiresAt) {
			delete(s.records, id)
		}
	}
}

func cloneBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
