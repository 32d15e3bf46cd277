package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Pipeline answers questions for every session. Sessions share it
// read-only.
type Pipeline interface {
	Retriever
	Synthesizer
}

type Options struct {
	IdleTTL     time.Duration
	MaxSessions int
}

// Manager owns the live sessions and evicts idle ones.
type Manager struct {
	pipeline Pipeline
	opts     Options
	now      func() time.Time

	mu       sync.RWMutex
	sessions map[uuid.UUID]*Session
}

func NewManager(p Pipeline, opts Options) *Manager {
	return &Manager{
		pipeline: p,
		opts:     opts,
		now:      time.Now,
		sessions: make(map[uuid.UUID]*Session),
	}
}

func (m *Manager) Create() (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.opts.MaxSessions > 0 && len(m.sessions) >= m.opts.MaxSessions {
		m.evictLocked()
		if len(m.sessions) >= m.opts.MaxSessions {
			return nil, ErrTooManySessions
		}
	}

	s := newSession(m.pipeline, m.pipeline, m.now)
	m.sessions[s.ID] = s
	slog.Debug("session created", "session_id", s.ID)
	return s, nil
}

func (m *Manager) Get(id uuid.UUID) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

func (m *Manager) Delete(id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return ErrSessionNotFound
	}
	delete(m.sessions, id)
	return nil
}

func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// EvictIdle drops sessions idle for longer than IdleTTL. Sessions mid-turn
// are kept.
func (m *Manager) EvictIdle() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.evictLocked()
}

func (m *Manager) evictLocked() int {
	if m.opts.IdleTTL <= 0 {
		return 0
	}
	cutoff := m.now().Add(-m.opts.IdleTTL)
	n := 0
	for id, s := range m.sessions {
		if s.State() == Idle && s.LastActive().Before(cutoff) {
			delete(m.sessions, id)
			n++
		}
	}
	return n
}

// Run evicts idle sessions periodically until ctx is done.
func (m *Manager) Run(ctx context.Context) {
	if m.opts.IdleTTL <= 0 {
		return
	}
	ticker := time.NewTicker(max(m.opts.IdleTTL/4, time.Second))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.EvictIdle(); n > 0 {
				slog.Info("evicted idle sessions", "count", n, "remaining", m.Len())
			}
		}
	}
}
