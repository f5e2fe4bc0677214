package telegram

import (
	"sync"

	"github.com/digkill/genstudio/internal/models"
	"github.com/digkill/genstudio/internal/wizard"
)

// StateManager keeps one wizard session per chat.
type StateManager struct {
	mu       sync.RWMutex
	sessions map[int64]*wizard.Session
}

func NewStateManager() *StateManager {
	return &StateManager{
		sessions: make(map[int64]*wizard.Session),
	}
}

// Get returns the open session for chatID. Closed sessions are dropped.
func (m *StateManager) Get(chatID int64) (*wizard.Session, bool) {
	m.mu.RLock()
	session, ok := m.sessions[chatID]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if session.Closed() {
		m.Reset(chatID)
		return nil, false
	}
	return session, true
}

// Start replaces any session for chatID with a fresh one.
func (m *StateManager) Start(chatID int64, defaults models.Settings) *wizard.Session {
	session := wizard.New(defaults)
	m.mu.Lock()
	if old, ok := m.sessions[chatID]; ok {
		old.Cancel()
	}
	m.sessions[chatID] = session
	m.mu.Unlock()
	return session
}

func (m *StateManager) Reset(chatID int64) {
	m.mu.Lock()
	if session, ok := m.sessions[chatID]; ok {
		session.Cancel()
		delete(m.sessions, chatID)
	}
	m.mu.Unlock()
}
