package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"forumpoll/internal/poll"
	logx "forumpoll/pkg/logx"

	"github.com/redis/go-redis/v9"
)

const (
	redisAuditKey = "polls:audit"
	redisAuditMax = 1000
	redisNextID   = "nextPollId"
)

// redisStore keeps polls in the key layout of the forum database:
//
//	poll:{id}           hash of scalar fields
//	poll:{id}:settings  hash of raw settings
//	poll:{id}:options   JSON array of options
//	pid:{pid}:poll      poll id carried by a post
//	polls               sorted set of ids by creation time
//	polls:scheduled     sorted set of open ids by end time
type redisStore struct {
	rdb *redis.Client
	log logx.Logger
}

func openRedis(cfg Config, log logx.Logger) (Store, error) {
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, errors.New("storage.addr is required for redis driver")
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	log.Debug("redis connected", logx.String("addr", addr), logx.Int("db", cfg.DB))
	return &redisStore{rdb: rdb, log: log}, nil
}

func pollKey(id int64) string         { return "poll:" + idMember(id) }
func pollSettingsKey(id int64) string { return pollKey(id) + ":settings" }
func pollOptionsKey(id int64) string  { return pollKey(id) + ":options" }
func postPollKey(pid int64) string    { return "pid:" + idMember(pid) + ":poll" }

func (s *redisStore) Close() error { return s.rdb.Close() }

func (s *redisStore) SortedSetAdd(ctx context.Context, key string, score float64, member string) error {
	return s.rdb.ZAdd(ctx, key, redis.Z{Score: score, Member: member}).Err()
}

func (s *redisStore) SortedSetRange(ctx context.Context, key string, start, stop int) ([]string, error) {
	return s.rdb.ZRange(ctx, key, int64(start), int64(stop)).Result()
}

func (s *redisStore) SortedSetRemove(ctx context.Context, key, member string) error {
	return s.rdb.ZRem(ctx, key, member).Err()
}

func (s *redisStore) CreatePoll(ctx context.Context, p *poll.Poll) (int64, error) {
	if p == nil {
		return 0, errors.New("nil poll")
	}
	options, err := json.Marshal(p.Options)
	if err != nil {
		return 0, err
	}
	id, err := s.rdb.Incr(ctx, redisNextID).Result()
	if err != nil {
		return 0, err
	}
	// Claim the post first so two saves of one post cannot both create.
	claimed, err := s.rdb.SetNX(ctx, postPollKey(p.PID), id, 0).Result()
	if err != nil {
		return 0, err
	}
	if !claimed {
		return 0, ErrPollExists
	}

	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, pollKey(id), map[string]any{
			"pollid":    id,
			"title":     p.Title,
			"uid":       p.UID,
			"tid":       p.TID,
			"pid":       p.PID,
			"deleted":   boolInt(p.Deleted),
			"ended":     boolInt(p.Ended),
			"timestamp": p.Timestamp,
		})
		if len(p.Settings) > 0 {
			fields := make(map[string]any, len(p.Settings))
			for k, v := range p.Settings {
				fields[k] = v
			}
			pipe.HSet(ctx, pollSettingsKey(id), fields)
		}
		pipe.Set(ctx, pollOptionsKey(id), options, 0)
		pipe.ZAdd(ctx, AllPollsKey, redis.Z{Score: float64(p.Timestamp), Member: idMember(id)})
		if end, ok := p.Settings.End(); ok && !p.Ended {
			pipe.ZAdd(ctx, ScheduledKey, redis.Z{Score: float64(end), Member: idMember(id)})
		}
		return nil
	})
	if err != nil {
		_ = s.rdb.Del(context.Background(), postPollKey(p.PID)).Err()
		return 0, err
	}
	p.ID = id
	return id, nil
}

func (s *redisStore) GetPoll(ctx context.Context, id int64) (*poll.Poll, error) {
	pipe := s.rdb.Pipeline()
	hcmd := pipe.HGetAll(ctx, pollKey(id))
	scmd := pipe.HGetAll(ctx, pollSettingsKey(id))
	ocmd := pipe.Get(ctx, pollOptionsKey(id))
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}
	h := hcmd.Val()
	if len(h) == 0 {
		return nil, ErrNotFound
	}
	p := &poll.Poll{
		ID:        id,
		Title:     h["title"],
		UID:       atoi64(h["uid"]),
		TID:       atoi64(h["tid"]),
		PID:       atoi64(h["pid"]),
		Deleted:   h["deleted"] == "1",
		Ended:     h["ended"] == "1",
		Timestamp: atoi64(h["timestamp"]),
	}
	if st := scmd.Val(); len(st) > 0 {
		p.Settings = poll.Settings(st)
	}
	if raw, err := ocmd.Result(); err == nil {
		if err := json.Unmarshal([]byte(raw), &p.Options); err != nil {
			return nil, fmt.Errorf("poll %d options: %w", id, err)
		}
	}
	return p, nil
}

func (s *redisStore) PollIDByPost(ctx context.Context, pid int64) (int64, error) {
	id, err := s.rdb.Get(ctx, postPollKey(pid)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, ErrNotFound
	}
	return id, err
}

func (s *redisStore) PollSettings(ctx context.Context, id int64) (poll.Settings, error) {
	m, err := s.rdb.HGetAll(ctx, pollSettingsKey(id)).Result()
	if err != nil {
		return nil, err
	}
	if len(m) == 0 {
		return nil, nil
	}
	return poll.Settings(m), nil
}

func (s *redisStore) ScheduledPolls(ctx context.Context) ([]int64, error) {
	members, err := s.rdb.ZRange(ctx, ScheduledKey, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	return parseIDs(members), nil
}

func (s *redisStore) EndPoll(ctx context.Context, id int64) error {
	if err := s.rdb.ZRem(ctx, ScheduledKey, idMember(id)).Err(); err != nil {
		return err
	}
	n, err := s.rdb.Exists(ctx, pollKey(id)).Result()
	if err != nil || n == 0 {
		return err
	}
	return s.rdb.HSet(ctx, pollKey(id), "ended", 1).Err()
}

func (s *redisStore) SetPollDeleted(ctx context.Context, id int64, deleted bool) error {
	n, err := s.rdb.Exists(ctx, pollKey(id)).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return s.rdb.HSet(ctx, pollKey(id), "deleted", boolInt(deleted)).Err()
}

func (s *redisStore) AppendAudit(ctx context.Context, e AuditEntry) error {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, redisAuditKey, b)
		pipe.LTrim(ctx, redisAuditKey, -redisAuditMax, -1)
		return nil
	})
	return err
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func atoi64(s string) int64 {
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}
