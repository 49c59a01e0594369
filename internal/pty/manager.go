package pty

import (
	"sync"
	"time"

	"github.com/coderoom/server/internal/apierr"
	"github.com/coderoom/server/internal/env"
)

const (
	idleSweepInterval = 15 * time.Minute
	idleTimeout       = time.Hour
)

// Manager owns the set of live PTY sessions for the process. Create is
// idempotent: calling it again with an id already in use returns the
// existing session and bumps its activity clock rather than erroring,
// so a reconnecting client doesn't spawn a second shell.
type Manager struct {
	mu        sync.RWMutex
	sessions  map[string]*Session
	sanitizer *env.Sanitizer
	sink      OutputSink

	stopSweep chan struct{}
}

// NewManager constructs a Manager and starts its idle sweep.
func NewManager(sanitizer *env.Sanitizer, sink OutputSink) *Manager {
	m := &Manager{
		sessions:  make(map[string]*Session),
		sanitizer: sanitizer,
		sink:      sink,
		stopSweep: make(chan struct{}),
	}
	go m.sweepLoop()
	return m
}

// SetSanitizer swaps the env sanitizer used for PTYs spawned from now on;
// live sessions keep whatever sanitizer they were created with.
func (m *Manager) SetSanitizer(sanitizer *env.Sanitizer) {
	m.mu.Lock()
	m.sanitizer = sanitizer
	m.mu.Unlock()
}

// Create returns the existing session for id if one is live, otherwise
// spawns a new shell in cwd.
func (m *Manager) Create(id, projectID, cwd string, rows, cols int) (*Session, error) {
	m.mu.Lock()
	if existing, ok := m.sessions[id]; ok {
		m.mu.Unlock()
		existing.mu.Lock()
		existing.lastActivityAt = time.Now()
		existing.mu.Unlock()
		return existing, nil
	}
	m.mu.Unlock()

	m.mu.RLock()
	sanitizer := m.sanitizer
	m.mu.RUnlock()

	s, err := newSession(Config{
		ID:        id,
		ProjectID: projectID,
		Cwd:       cwd,
		Rows:      rows,
		Cols:      cols,
		Sanitizer: sanitizer,
		Sink:      m.sink,
	})
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	// Another caller may have raced us to create the same id; keep the
	// first winner and close our spare.
	if existing, ok := m.sessions[id]; ok {
		m.mu.Unlock()
		_ = s.Close()
		return existing, nil
	}
	m.sessions[id] = s
	m.mu.Unlock()
	return s, nil
}

// Get returns a live session by id.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, apierr.NotFound("pty session %q not found", id)
	}
	return s, nil
}

// Write sends data to a session's stdin.
func (m *Manager) Write(id string, data []byte) error {
	s, err := m.Get(id)
	if err != nil {
		return err
	}
	return s.Write(data)
}

// Resize changes a session's window size.
func (m *Manager) Resize(id string, rows, cols int) error {
	s, err := m.Get(id)
	if err != nil {
		return err
	}
	return s.Resize(rows, cols)
}

// Kill terminates and unregisters a session.
func (m *Manager) Kill(id, signal string) error {
	s, err := m.Get(id)
	if err != nil {
		return err
	}
	killErr := s.Kill(signal)
	m.remove(id)
	return killErr
}

func (m *Manager) remove(id string) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()
	if ok {
		_ = s.Close()
	}
}

// List returns the ids of all live sessions.
func (m *Manager) List() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	return ids
}

func (m *Manager) sweepLoop() {
	ticker := time.NewTicker(idleSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.sweepIdle()
		case <-m.stopSweep:
			return
		}
	}
}

func (m *Manager) sweepIdle() {
	cutoff := time.Now().Add(-idleTimeout)
	m.mu.RLock()
	stale := make([]string, 0)
	for id, s := range m.sessions {
		if s.LastActivityAt().Before(cutoff) {
			stale = append(stale, id)
		}
	}
	m.mu.RUnlock()

	for _, id := range stale {
		_ = m.Kill(id, "")
	}
}

// CloseAll kills every live session and stops the idle sweep. Used on
// process shutdown.
func (m *Manager) CloseAll() {
	close(m.stopSweep)
	m.mu.Lock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.Unlock()
	for _, id := range ids {
		m.remove(id)
	}
}
