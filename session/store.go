package session

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// ============================================================================
// MEMORY STORE
// ============================================================================

// janitorInterval controls how often the in-memory store sweeps idle
// bindings.
const janitorInterval = 1 * time.Minute

// MemoryStore keeps bindings in a map and evicts idle ones with a
// background janitor.
type MemoryStore struct {
	mu          sync.RWMutex
	bindings    map[string]*Binding
	idleTimeout time.Duration
	logger      *slog.Logger
	stop        chan struct{}
	stopped     sync.Once
}

// NewMemoryStore creates a memory store. If idleTimeout is positive, a
// janitor goroutine evicts bindings idle longer than it.
func NewMemoryStore(idleTimeout time.Duration, logger *slog.Logger) *MemoryStore {
	if logger == nil {
		logger = slog.Default()
	}
	s := &MemoryStore{
		bindings:    make(map[string]*Binding),
		idleTimeout: idleTimeout,
		logger:      logger,
		stop:        make(chan struct{}),
	}
	if idleTimeout > 0 {
		go s.janitor()
	}
	return s
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, sessionID string) (*Binding, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.bindings[sessionID]
	if !ok {
		return nil, false, nil
	}
	return cloneBinding(b), true, nil
}

// Put implements Store.
func (s *MemoryStore) Put(_ context.Context, b *Binding) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bindings[b.SessionID] = cloneBinding(b)
	return nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.bindings, sessionID)
	return nil
}

// ReleaseAgent implements Store.
func (s *MemoryStore) ReleaseAgent(_ context.Context, agent string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.bindings {
		if b.Agent == agent {
			b.Agent = ""
		}
	}
	return nil
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	s.stopped.Do(func() { close(s.stop) })
	return nil
}

// Count returns the number of live bindings. Used by the status surface.
func (s *MemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.bindings)
}

func (s *MemoryStore) janitor() {
	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *MemoryStore) sweep() {
	cutoff := time.Now().Add(-s.idleTimeout)
	s.mu.Lock()
	defer s.mu.Unlock()
	evicted := 0
	for id, b := range s.bindings {
		if b.LastActivity.Before(cutoff) {
			delete(s.bindings, id)
			evicted++
		}
	}
	if evicted > 0 {
		s.logger.Debug("evicted idle sessions", "count", evicted)
	}
}

// cloneBinding copies a binding so callers and the store never share a
// Remote map.
func cloneBinding(b *Binding) *Binding {
	c := *b
	c.Remote = make(map[string]string, len(b.Remote))
	for k, v := range b.Remote {
		c.Remote[k] = v
	}
	return &c
}
