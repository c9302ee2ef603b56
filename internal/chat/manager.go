package chat

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Youssef2430/portfolio/internal/ai"
)

type Session struct {
	Messages   []ai.Message `json:"messages"`
	LastActive time.Time    `json:"last_active"`
}

// Manager keeps one bounded conversation per user and persists them as JSON.
type Manager struct {
	mu          sync.Mutex
	saveMu      sync.Mutex
	sessions    map[string]*Session
	maxTurns    int
	sessionFile string
}

func NewManager(maxTurns int, sessionDir string) (*Manager, error) {
	if err := os.MkdirAll(sessionDir, 0o755); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}
	if maxTurns <= 0 {
		maxTurns = 10
	}

	m := &Manager{
		sessions:    make(map[string]*Session),
		maxTurns:    maxTurns,
		sessionFile: filepath.Join(sessionDir, "sessions.json"),
	}

	// Restore; a corrupt file starts fresh.
	if data, err := os.ReadFile(m.sessionFile); err == nil {
		var s map[string]*Session
		if json.Unmarshal(data, &s) == nil && s != nil {
			m.sessions = s
		}
	}
	return m, nil
}

// History returns a copy of the user's conversation, oldest first.
func (m *Manager) History(user string) []ai.Message {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[user]
	if !ok {
		return nil
	}
	out := make([]ai.Message, len(s.Messages))
	copy(out, s.Messages)
	return out
}

// AddExchange records a question and its answer together, so a failed answer
// leaves the history untouched.
func (m *Manager) AddExchange(user, question, answer string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[user]
	if !ok {
		s = &Session{}
		m.sessions[user] = s
	}
	s.Messages = append(s.Messages,
		ai.Message{Role: ai.RoleUser, Content: question},
		ai.Message{Role: ai.RoleAssistant, Content: answer},
	)
	s.LastActive = time.Now()

	// Keep the most recent maxTurns exchanges.
	if limit := m.maxTurns * 2; len(s.Messages) > limit {
		s.Messages = s.Messages[len(s.Messages)-limit:]
	}
}

func (m *Manager) Reset(user string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, user)
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *Manager) Save() error {
	m.saveMu.Lock()
	defer m.saveMu.Unlock()

	m.mu.Lock()
	data, err := json.MarshalIndent(m.sessions, "", "  ")
	m.mu.Unlock()
	if err != nil {
		return fmt.Errorf("marshal sessions: %w", err)
	}

	tmp := m.sessionFile + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write sessions: %w", err)
	}
	return os.Rename(tmp, m.sessionFile)
}
