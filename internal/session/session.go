// Package session tracks the connected wallet identity. Results of
// async work launched under one identity must never render under
// another, so every switch bumps an epoch that in-flight work checks
// before publishing.
package session

import (
	"strings"
	"sync"
)

// Session is a snapshot of the connected identity at a point in time.
type Session struct {
	Address string // lowercased hex, "" when disconnected
	Epoch   uint64
}

// Connected reports whether a wallet is attached.
func (s Session) Connected() bool { return s.Address != "" }

// Manager holds the current session and hands out epoch-stamped
// snapshots.
type Manager struct {
	mu      sync.RWMutex
	current Session
}

func NewManager() *Manager {
	return &Manager{}
}

// Connect switches to the given wallet address. Reconnecting the same
// address still advances the epoch; the account may have changed state
// out of band while disconnected.
func (m *Manager) Connect(address string) Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.current = Session{
		Address: strings.ToLower(address),
		Epoch:   m.current.Epoch + 1,
	}
	return m.current
}

// Disconnect clears the identity and advances the epoch so in-flight
// per-account work is discarded.
func (m *Manager) Disconnect() Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.current = Session{Epoch: m.current.Epoch + 1}
	return m.current
}

// Current returns the active session snapshot.
func (m *Manager) Current() Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Valid reports whether a snapshot taken earlier still describes the
// active session. Async work calls this before publishing results.
func (m *Manager) Valid(s Session) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current.Epoch == s.Epoch
}
