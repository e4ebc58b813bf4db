package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"nhlbot/pkg/logx"
)

// Store is the persistence API used by the registry, channel manager and notifier.
type Store interface {
	AddSubscription(ctx context.Context, s Subscription) error
	Subscriptions(ctx context.Context) ([]Subscription, error)

	PutChannel(ctx context.Context, c ChannelRecord) error
	DeleteChannel(ctx context.Context, chatID int64, name string) (bool, error)
	Channels(ctx context.Context, chatID int64) ([]ChannelRecord, error)

	AppendAudit(ctx context.Context, e AuditEntry) error
	PutDedup(ctx context.Context, key string, until time.Time) error
	GetDedup(ctx context.Context, key string) (until time.Time, ok bool, err error)

	Close() error
}

// Open initializes the configured store. An empty driver selects memory.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "", "memory":
		return NewMemory(), nil
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, fmt.Errorf("unknown storage driver: %s", driver)
	}
}
