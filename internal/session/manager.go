package session

import "sync"

// Manager hands out one Session per conversation. Conversations stream
// independently: separate transport, separate reducer state, nothing shared.
type Manager struct {
	opener Opener
	finish FinishFunc

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewManager(opener Opener, finish FinishFunc) *Manager {
	return &Manager{
		opener:   opener,
		finish:   finish,
		sessions: make(map[string]*Session),
	}
}

// Session returns the session for a conversation, creating it on first use.
func (m *Manager) Session(conversationID string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[conversationID]
	if !ok {
		s = New(conversationID, m.opener, m.finish)
		m.sessions[conversationID] = s
	}
	return s
}
