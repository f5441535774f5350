package storage

import (
	"errors"
	"strconv"
	"time"
)

var (
	ErrDisabled = errors.New("storage disabled")
	ErrNotFound = errors.New("storage: not found")
	// ErrPollExists is returned by CreatePoll when the post already carries a poll.
	ErrPollExists = errors.New("storage: post already has a poll")
)

// ScheduledKey is the sorted set of open polls that have an end time,
// scored by that end time in epoch ms.
const ScheduledKey = "polls:scheduled"

// AllPollsKey is the sorted set of every poll id, scored by creation time.
const AllPollsKey = "polls"

// Config configures storage.
//
// Driver values: "memory", "file", "sqlite", "redis".
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default

	Addr     string // redis only
	Password string
	DB       int
}

// AuditEntry records a poll lifecycle action.
// Keep it compact and schema-stable.
type AuditEntry struct {
	At       time.Time `json:"at"`
	Action   string    `json:"action"`
	PollID   int64     `json:"pollid,omitempty"`
	PID      int64     `json:"pid,omitempty"`
	TID      int64     `json:"tid,omitempty"`
	UID      int64     `json:"uid,omitempty"`
	Error    string    `json:"err,omitempty"`
	MetaJSON string    `json:"meta,omitempty"`
}

func idMember(id int64) string { return strconv.FormatInt(id, 10) }

// normalizeRange converts Redis-style inclusive indexes (negative counts from
// the end) into a [lo, hi) slice window over n items.
func normalizeRange(start, stop, n int) (lo, hi int, ok bool) {
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if n == 0 || start > stop {
		return 0, 0, false
	}
	return start, stop + 1, true
}

// parseIDs converts sorted set members to poll ids, skipping junk.
func parseIDs(members []string) []int64 {
	out := make([]int64, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseInt(m, 10, 64)
		if err != nil || id <= 0 {
			continue
		}
		out = append(out, id)
	}
	return out
}
