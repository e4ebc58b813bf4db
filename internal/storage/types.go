package storage

import (
	"errors"
	"time"
)

// ErrClosed is returned by every operation on a closed store.
var ErrClosed = errors.New("storage closed")

// Config configures storage.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Subscription binds a team id to a chat that wants its game channels.
type Subscription struct {
	Team      int
	ChatID    int64
	CreatedAt time.Time
}

// ChannelRecord is one game channel the bot created. The Bot API cannot list
// forum topics, so this table is the source of truth for what exists.
type ChannelRecord struct {
	ChatID    int64
	Name      string
	ThreadID  int
	CreatedAt time.Time
}

// AuditEntry records a side-effecting action.
type AuditEntry struct {
	At            time.Time
	ActorID       int64
	ActorUsername string
	ChatID        int64
	ThreadID      int
	Action        string
	Target        string
	Error         string
	MetaJSON      string
}
