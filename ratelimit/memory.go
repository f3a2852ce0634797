package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps window counters in process memory. A background
// sweep deletes expired windows so idle keys do not accumulate; Get and
// Increment also treat expired windows as absent, so the sweep interval
// only bounds memory, never correctness.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*Entry
	sweep   time.Duration
	stop    chan struct{}
	closed  bool

	now func() time.Time
}

// MemoryStoreOption configures a MemoryStore.
type MemoryStoreOption func(*MemoryStore)

// WithSweepInterval sets how often the background sweep runs.
func WithSweepInterval(d time.Duration) MemoryStoreOption {
	return func(m *MemoryStore) {
		if d > 0 {
			m.sweep = d
		}
	}
}

// NewMemoryStore creates an in-memory counter store and starts its
// sweep goroutine. Call Close to stop it.
func NewMemoryStore(opts ...MemoryStoreOption) *MemoryStore {
	m := &MemoryStore{
		entries: make(map[string]*Entry),
		sweep:   DefaultSweepInterval,
		stop:    make(chan struct{}),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}

	go m.janitor()

	return m
}

func (m *MemoryStore) janitor() {
	ticker := time.NewTicker(m.sweep)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_ = m.Cleanup(context.Background())
		case <-m.stop:
			return
		}
	}
}

// Get returns a copy of the live window for key, or (nil, nil) when the
// key has no window or the window has expired.
func (m *MemoryStore) Get(_ context.Context, key string) (*Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrStoreClosed
	}
	e, ok := m.entries[key]
	if !ok || e.Expired(m.now()) {
		return nil, nil
	}
	cp := *e
	return &cp, nil
}

// Set writes an entry, replacing any live window for its key.
func (m *MemoryStore) Set(_ context.Context, e *Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}
	cp := *e
	m.entries[e.Key] = &cp
	return nil
}

// Increment bumps the counter for key, opening a fresh window when none
// is live, and returns a copy of the resulting entry.
func (m *MemoryStore) Increment(_ context.Context, key string, window time.Duration) (*Entry, error) {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrStoreClosed
	}
	e, ok := m.entries[key]
	if !ok || e.Expired(now) {
		e = &Entry{
			Key:         key,
			Count:       1,
			WindowStart: now,
			WindowEnd:   now.Add(window),
			LastSeen:    now,
		}
		m.entries[key] = e
	} else {
		e.Count++
		e.LastSeen = now
	}
	cp := *e
	return &cp, nil
}

// Reset removes the live window for key. Idempotent.
func (m *MemoryStore) Reset(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}
	delete(m.entries, key)
	return nil
}

// Cleanup deletes every expired window.
func (m *MemoryStore) Cleanup(_ context.Context) error {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}
	for key, e := range m.entries {
		if e.Expired(now) {
			delete(m.entries, key)
		}
	}
	return nil
}

// Len reports how many windows are held, expired ones included.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Close stops the sweep goroutine and rejects further operations.
// Idempotent.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	close(m.stop)
	m.entries = nil
	return nil
}

// Ensure MemoryStore implements Store
var _ Store = (*MemoryStore)(nil)
