package poll

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Canonical setting names.
const (
	SettingMaxVotes = "maxvotes"
	SettingTitle    = "title"
	SettingEnd      = "end"
)

// Settings maps canonical setting names to their raw string values.
type Settings map[string]string

// Clone returns a deep copy; nil stays nil.
func (s Settings) Clone() Settings {
	if s == nil {
		return nil
	}
	out := make(Settings, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

func (s Settings) Title() string { return s[SettingTitle] }

// End returns the end instant in epoch milliseconds. ok is false when the
// poll has no end (missing, zero, or not a number).
func (s Settings) End() (ms int64, ok bool) {
	ms, ok = ParseMillis(s[SettingEnd])
	if !ok || ms <= 0 {
		return 0, false
	}
	return ms, true
}

// ParseMillis parses an epoch-millisecond string. Fractional and exponent
// forms are accepted and truncated.
func ParseMillis(v string) (int64, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, false
	}
	if n, err := strconv.ParseInt(v, 10, 64); err == nil {
		return n, true
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return int64(f), true
}

// Option is a single poll choice. ID is its 0-based position in the markup.
type Option struct {
	ID    int    `json:"id"`
	Title string `json:"title"`
}

// Poll is the persisted aggregate created from a thread's first post.
type Poll struct {
	ID        int64    `json:"pollid"`
	Title     string   `json:"title"`
	UID       int64    `json:"uid"`
	TID       int64    `json:"tid"`
	PID       int64    `json:"pid"`
	Deleted   bool     `json:"deleted"`
	Ended     bool     `json:"ended"`
	Timestamp int64    `json:"timestamp"`
	Settings  Settings `json:"settings"`
	Options   []Option `json:"options"`
}

// Post is the metadata of a saved forum post.
type Post struct {
	UID       int64
	TID       int64
	PID       int64
	Timestamp int64 // epoch ms
	Content   string
}

// Block is the raw text of a poll block split into its two parts.
type Block struct {
	Settings string
	Content  string
}

// Parsed is the structured result of parsing a block.
type Parsed struct {
	Options  []string
	Settings Settings
}

// ThreadPostsKey is the sorted set holding a thread's post ids ordered by
// post time.
func ThreadPostsKey(tid int64) string { return fmt.Sprintf("tid:%d:posts", tid) }
