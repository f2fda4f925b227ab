package history

import (
	"context"
	"fmt"
	"time"

	"replybot/pkg/config"
)

// Role tells who wrote an entry.
type Role string

const (
	RoleUser Role = "user"
	RoleBot  Role = "bot"
)

// Entry is one message in a conversation.
type Entry struct {
	SessionKey string    `json:"session_key"`
	Channel    string    `json:"channel,omitempty"`
	Role       Role      `json:"role"`
	Content    string    `json:"content"`
	RuleID     string    `json:"rule_id,omitempty"`
	At         time.Time `json:"at"`
}

// Store persists conversation history.
type Store interface {
	// FirstContact reports whether nothing has been recorded for the session yet.
	FirstContact(ctx context.Context, sessionKey string) (bool, error)
	Append(ctx context.Context, entry Entry) error
	// List returns the latest limit entries in chronological order. limit <= 0 means all.
	List(ctx context.Context, sessionKey string, limit int) ([]Entry, error)
	Close() error
}

// Open builds the backend named by cfg.Driver.
func Open(cfg config.HistoryConfig) (Store, error) {
	switch cfg.Driver {
	case "", "sqlite":
		return OpenSQLite(cfg.Path)
	case "memory":
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unsupported history driver %q", cfg.Driver)
	}
}

func normalize(entry Entry) Entry {
	if entry.At.IsZero() {
		entry.At = time.Now()
	}
	entry.At = entry.At.UTC()
	return entry
}
