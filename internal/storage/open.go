package storage

import (
	"context"
	"errors"
	"strings"

	"forumpoll/internal/poll"
	logx "forumpoll/pkg/logx"
)

// Store is the persistence API used by the poll hooks and the expiry
// scheduler.
//
// Sorted set indexes follow Redis ZRANGE: inclusive, negative values count
// from the end, members ordered by score then lexicographically.
type Store interface {
	SortedSetAdd(ctx context.Context, key string, score float64, member string) error
	SortedSetRange(ctx context.Context, key string, start, stop int) ([]string, error)
	SortedSetRemove(ctx context.Context, key, member string) error

	// CreatePoll assigns p.ID and persists p. Polls with an end time are
	// added to ScheduledKey.
	CreatePoll(ctx context.Context, p *poll.Poll) (int64, error)
	GetPoll(ctx context.Context, id int64) (*poll.Poll, error)
	PollIDByPost(ctx context.Context, pid int64) (int64, error)
	// PollSettings returns (nil, nil) when the poll has no settings.
	PollSettings(ctx context.Context, id int64) (poll.Settings, error)
	ScheduledPolls(ctx context.Context) ([]int64, error)
	// EndPoll marks the poll ended and drops it from ScheduledKey. Calling it
	// again, or for an unknown id, is a no-op.
	EndPoll(ctx context.Context, id int64) error
	SetPollDeleted(ctx context.Context, id int64, deleted bool) error

	AppendAudit(ctx context.Context, e AuditEntry) error
	Close() error
}

// Open initializes the configured store.
// It returns (nil, nil) if storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "memory":
		return newMemStore(log), nil
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	case "redis":
		return openRedis(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
