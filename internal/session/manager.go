package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/yousuf/loopviz/internal/config"
	"github.com/yousuf/loopviz/internal/sandbox"
	"github.com/yousuf/loopviz/internal/stepper"
	"github.com/yousuf/loopviz/internal/visualizer"
)

// ErrNotFound is returned for an unknown session ID
var ErrNotFound = errors.New("session not found")

// Manager manages session contexts
type Manager struct {
	sessions map[string]*Context
	mu       sync.RWMutex
	opts     visualizer.Options
	idle     time.Duration
}

// NewManager creates a new session manager
func NewManager(cfg *config.Config) *Manager {
	return &Manager{
		sessions: make(map[string]*Context),
		opts:     ControllerOptions(cfg, log.Default()),
		idle:     cfg.Session.IdleTimeout(),
	}
}

// ControllerOptions maps the configuration onto a visualizer controller
func ControllerOptions(cfg *config.Config, logger *log.Logger) visualizer.Options {
	return visualizer.Options{
		Sandbox: sandbox.Options{
			Timeout:       cfg.Recording.Timeout(),
			MaxTimerDelay: cfg.Recording.MaxTimerDelay(),
			Logger:        logger,
		},
		MaxSteps: cfg.Recording.MaxSteps,
		Playback: stepper.Options{
			Interval: cfg.Playback.Interval(),
			Spin:     cfg.Playback.Spin(),
			Mode:     stepper.Mode(cfg.Playback.Mode),
		},
	}
}

// GetOrCreateSession gets an existing session or creates a new one
func (m *Manager) GetOrCreateSession(ctx context.Context, sessionID string) (*Context, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("empty session ID")
	}

	m.mu.RLock()
	session, exists := m.sessions[sessionID]
	m.mu.RUnlock()

	if exists {
		return session, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Double-check after acquiring write lock
	if session, exists := m.sessions[sessionID]; exists {
		return session, nil
	}

	session = NewContext(sessionID, visualizer.New(m.opts))
	m.sessions[sessionID] = session
	log.Printf("[SESSION] created %s", sessionID)

	return session, nil
}

// GetSession retrieves an existing session
func (m *Manager) GetSession(sessionID string) (*Context, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, exists := m.sessions[sessionID]
	if !exists {
		return nil, fmt.Errorf("session %q: %w", sessionID, ErrNotFound)
	}
	return session, nil
}

// DeleteSession removes a session and stops its run
func (m *Manager) DeleteSession(sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, exists := m.sessions[sessionID]
	if !exists {
		return fmt.Errorf("session %q: %w", sessionID, ErrNotFound)
	}

	session.Close()
	delete(m.sessions, sessionID)
	log.Printf("[SESSION] deleted %s", sessionID)
	return nil
}

// ReapIdle deletes every session unused since before now minus the idle
// timeout and returns how many were removed. A zero timeout keeps sessions
// forever.
func (m *Manager) ReapIdle(now time.Time) int {
	if m.idle <= 0 {
		return 0
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	reaped := 0
	for id, session := range m.sessions {
		if now.Sub(session.LastAccessed()) > m.idle {
			session.Close()
			delete(m.sessions, id)
			reaped++
		}
	}
	if reaped > 0 {
		log.Printf("[SESSION] reaped %d idle session(s)", reaped)
	}
	return reaped
}

// StartReaper runs ReapIdle every interval until ctx is done
func (m *Manager) StartReaper(ctx context.Context, interval time.Duration) {
	if m.idle <= 0 || interval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				m.ReapIdle(now)
			}
		}
	}()
}

// Len returns the number of live sessions
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// CloseAll closes all sessions
func (m *Manager) CloseAll() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, session := range m.sessions {
		session.Close()
	}
	m.sessions = make(map[string]*Context)

	return nil
}
