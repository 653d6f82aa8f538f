package ai

import (
	"fmt"
	"sync"
	"time"
)

// systemPrompt establishes the agent protocol for every conversation.
const systemPrompt = `You are a remote server administration assistant with
autonomous execution ability over an SSH shell. You can analyse command
output, answer technical questions, and run commands yourself.

To act, embed action markers in your reply:
- RUN_COMMAND{command}: run a shell command, e.g. RUN_COMMAND{ls -la /}
- SEND_KEYS{"key1","key2"}: send keystrokes to the current program,
  e.g. SEND_KEYS{"y","enter"} or SEND_KEYS{"ctrl+c"}
- WAIT{seconds}: pause before the next action, e.g. WAIT{3}

When the user asks to inspect files or run something, use RUN_COMMAND
directly instead of telling them what to type. Run one logical step at a
time and base the next step on the output. Never guess passwords; ask
the user when credentials are required. Keep answers accurate and
concise.`

// Session holds one conversation's message history.
type Session struct {
	ID string

	mu           sync.Mutex
	messages     []Message
	createdAt    time.Time
	lastActivity time.Time
}

func newSession(id string) *Session {
	now := time.Now()
	return &Session{
		ID:           id,
		messages:     []Message{{Role: "system", Content: systemPrompt}},
		createdAt:    now,
		lastActivity: now,
	}
}

func (s *Session) add(role, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, Message{Role: role, Content: content})
	s.lastActivity = time.Now()
}

// AddUser records a user turn.
func (s *Session) AddUser(content string) { s.add("user", content) }

// AddAssistant records an assistant turn.
func (s *Session) AddAssistant(content string) { s.add("assistant", content) }

// AddShellOutput records a command and its output as shared context.
func (s *Session) AddShellOutput(command, output string) {
	s.add("system", fmt.Sprintf("[shell]\ncommand: %s\noutput: %s", command, truncate(output, 500)))
}

// Recent returns at most limit messages, always keeping the leading
// system prompt so the protocol survives history trimming.
func (s *Session) Recent(limit int) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.messages) <= limit {
		return append([]Message(nil), s.messages...)
	}
	out := make([]Message, 0, limit+1)
	out = append(out, s.messages[0])
	out = append(out, s.messages[len(s.messages)-limit:]...)
	return out
}

// Len returns the number of recorded messages.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

// Expired reports whether the session has been idle longer than timeout.
func (s *Session) Expired(timeout time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.lastActivity) > timeout
}

func truncate(text string, max int) string {
	if len(text) <= max {
		return text
	}
	return text[:max] + "..."
}

// SessionManager keeps per-user sessions and drops idle ones.
type SessionManager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	timeout  time.Duration
}

// NewSessionManager creates a manager; timeout 0 means one hour.
func NewSessionManager(timeout time.Duration) *SessionManager {
	if timeout == 0 {
		timeout = time.Hour
	}
	return &SessionManager{
		sessions: make(map[string]*Session),
		timeout:  timeout,
	}
}

// Get returns the session for id, creating it on first use. Expired
// sessions are evicted on the way.
func (m *SessionManager) Get(id string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	for sid, s := range m.sessions {
		if sid != id && s.Expired(m.timeout) {
			delete(m.sessions, sid)
		}
	}

	s, ok := m.sessions[id]
	if !ok || s.Expired(m.timeout) {
		s = newSession(id)
		m.sessions[id] = s
	}
	return s
}

// Count returns the number of live sessions.
func (m *SessionManager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
