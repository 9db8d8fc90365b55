// Package history keeps per-session conversation logs.
package history

import (
	"context"
	"sync"
)

// Message is one turn in a session. Ordinal starts at 1 and increases by one
// per appended message.
type Message struct {
	SessionID string `json:"session_id"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	Ordinal   int64  `json:"ordinal"`
}

// Store appends to and reads back session logs.
type Store interface {
	Append(ctx context.Context, sessionID, role, content string) error
	// Load returns at most limit of the most recent messages, oldest first.
	// A limit of zero or less returns the whole session.
	Load(ctx context.Context, sessionID string, limit int) ([]Message, error)
}

// Memory is a process-local Store.
type Memory struct {
	mu       sync.RWMutex
	sessions map[string][]Message
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{sessions: make(map[string][]Message)}
}

func (m *Memory) Append(_ context.Context, sessionID, role, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	log := m.sessions[sessionID]
	m.sessions[sessionID] = append(log, Message{
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		Ordinal:   int64(len(log) + 1),
	})
	return nil
}

func (m *Memory) Load(_ context.Context, sessionID string, limit int) ([]Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	log := m.sessions[sessionID]
	if limit > 0 && len(log) > limit {
		log = log[len(log)-limit:]
	}
	return append([]Message(nil), log...), nil
}
