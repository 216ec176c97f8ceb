package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is the default single-node Store: a map of per-session entries,
// each with its own mutex so long updates on one session never stall turns on
// another. Stale sessions are reaped by a background sweeper.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*memoryEntry

	ttl           time.Duration
	sweepInterval time.Duration
	now           func() time.Time

	stopSweep chan struct{}
	stopOnce  sync.Once
}

type memoryEntry struct {
	mu       sync.Mutex
	state    Session
	lastSeen time.Time
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithTTL sets how long an idle session survives before the sweeper drops it.
func WithTTL(d time.Duration) MemoryOption {
	return func(s *MemoryStore) { s.ttl = d }
}

// WithSweepInterval sets how often the sweeper runs.
func WithSweepInterval(d time.Duration) MemoryOption {
	return func(s *MemoryStore) { s.sweepInterval = d }
}

// WithNow overrides the store's clock. Test hook.
func WithNow(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) { s.now = now }
}

// NewMemoryStore creates an in-memory store and starts its sweeper.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		entries:       make(map[string]*memoryEntry),
		ttl:           1 * time.Hour,
		sweepInterval: 5 * time.Minute,
		now:           time.Now,
		stopSweep:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	go s.sweepLoop()

	return s
}

// entry returns the session's entry, creating it if needed.
func (s *MemoryStore) entry(id string) *memoryEntry {
	s.mu.RLock()
	e, ok := s.entries[id]
	s.mu.RUnlock()
	if ok {
		return e
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok = s.entries[id]; ok {
		return e
	}
	e = &memoryEntry{
		state:    newSession(id, s.now()),
		lastSeen: s.now(),
	}
	s.entries[id] = e
	return e
}

// GetOrCreate implements Store.
func (s *MemoryStore) GetOrCreate(ctx context.Context, id string) (Session, error) {
	if err := ctx.Err(); err != nil {
		return Session{}, err
	}
	e := s.entry(id)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastSeen = s.now()
	return e.state.clone(), nil
}

// Update implements Store. fn runs exactly once, under the session's mutex.
func (s *MemoryStore) Update(ctx context.Context, id string, fn UpdateFunc) (Session, error) {
	if err := ctx.Err(); err != nil {
		return Session{}, err
	}
	e := s.entry(id)

	e.mu.Lock()
	defer e.mu.Unlock()
	fn(&e.state)
	e.lastSeen = s.now()
	return e.state.clone(), nil
}

// Snapshot implements Store.
func (s *MemoryStore) Snapshot(ctx context.Context, id string) (Session, error) {
	if err := ctx.Err(); err != nil {
		return Session{}, err
	}

	s.mu.RLock()
	e, ok := s.entries[id]
	s.mu.RUnlock()
	if !ok {
		return Session{}, ErrNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.clone(), nil
}

// Close stops the sweeper.
func (s *MemoryStore) Close() error {
	s.stopOnce.Do(func() {
		close(s.stopSweep)
	})
	return nil
}

func (s *MemoryStore) sweepLoop() {
	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-s.stopSweep:
			return
		}
	}
}

// sweep drops sessions idle past the TTL. Entries are checked under their own
// lock so an in-flight update refreshes lastSeen before the check.
func (s *MemoryStore) sweep() {
	cutoff := s.now().Add(-s.ttl)

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, e := range s.entries {
		e.mu.Lock()
		stale := e.lastSeen.Before(cutoff)
		e.mu.Unlock()
		if stale {
			delete(s.entries, id)
		}
	}
}

var _ Store = (*MemoryStore)(nil)
