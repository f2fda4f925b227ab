package history

import (
	"context"
	"errors"
	"strings"
	"sync"
)

// Memory keeps history in process memory. Contents are lost on restart.
type Memory struct {
	mu       sync.RWMutex
	sessions map[string][]Entry
	closed   bool
}

func NewMemory() *Memory {
	return &Memory{sessions: make(map[string][]Entry)}
}

func (m *Memory) FirstContact(_ context.Context, sessionKey string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return false, errClosed
	}

	return len(m.sessions[sessionKey]) == 0, nil
}

func (m *Memory) Append(_ context.Context, entry Entry) error {
	if strings.TrimSpace(entry.SessionKey) == "" {
		return errors.New("session key is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return errClosed
	}

	m.sessions[entry.SessionKey] = append(m.sessions[entry.SessionKey], normalize(entry))
	return nil
}

func (m *Memory) List(_ context.Context, sessionKey string, limit int) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, errClosed
	}

	entries := m.sessions[sessionKey]
	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	if len(entries) == 0 {
		return nil, nil
	}

	out := make([]Entry, len(entries))
	copy(out, entries)
	return out, nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.sessions = nil
	return nil
}

var errClosed = errors.New("history store is closed")
