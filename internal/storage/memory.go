package storage

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"forumpoll/internal/poll"
	logx "forumpoll/pkg/logx"
)

const memAuditMax = 1000

// record is one state mutation. The memory driver applies it directly; the
// file driver journals it first so the state can be replayed on open.
type record struct {
	Op      string     `json:"op"` // zadd | zrem | poll | end | deleted
	Key     string     `json:"key,omitempty"`
	Member  string     `json:"member,omitempty"`
	Score   float64    `json:"score,omitempty"`
	Poll    *poll.Poll `json:"poll,omitempty"`
	ID      int64      `json:"id,omitempty"`
	Deleted bool       `json:"deleted,omitempty"`
}

// memState is the whole dataset of the local drivers.
type memState struct {
	NextID int64                         `json:"next_id"`
	Polls  map[int64]*poll.Poll          `json:"polls"`
	ZSets  map[string]map[string]float64 `json:"zsets"`

	byPost map[int64]int64
}

func newMemState() *memState {
	return &memState{
		Polls:  map[int64]*poll.Poll{},
		ZSets:  map[string]map[string]float64{},
		byPost: map[int64]int64{},
	}
}

// reindex rebuilds derived lookups after decoding a snapshot.
func (st *memState) reindex() {
	if st.Polls == nil {
		st.Polls = map[int64]*poll.Poll{}
	}
	if st.ZSets == nil {
		st.ZSets = map[string]map[string]float64{}
	}
	st.byPost = make(map[int64]int64, len(st.Polls))
	for id, p := range st.Polls {
		st.byPost[p.PID] = id
		if id > st.NextID {
			st.NextID = id
		}
	}
}

func (st *memState) apply(r record) {
	switch r.Op {
	case "zadd":
		z := st.ZSets[r.Key]
		if z == nil {
			z = map[string]float64{}
			st.ZSets[r.Key] = z
		}
		z[r.Member] = r.Score
	case "zrem":
		if z := st.ZSets[r.Key]; z != nil {
			delete(z, r.Member)
			if len(z) == 0 {
				delete(st.ZSets, r.Key)
			}
		}
	case "poll":
		if r.Poll == nil {
			return
		}
		p := clonePoll(r.Poll)
		st.Polls[p.ID] = p
		st.byPost[p.PID] = p.ID
		if p.ID > st.NextID {
			st.NextID = p.ID
		}
		st.apply(record{Op: "zadd", Key: AllPollsKey, Member: idMember(p.ID), Score: float64(p.Timestamp)})
		if end, ok := p.Settings.End(); ok && !p.Ended {
			st.apply(record{Op: "zadd", Key: ScheduledKey, Member: idMember(p.ID), Score: float64(end)})
		}
	case "end":
		if p := st.Polls[r.ID]; p != nil {
			p.Ended = true
		}
		st.apply(record{Op: "zrem", Key: ScheduledKey, Member: idMember(r.ID)})
	case "deleted":
		if p := st.Polls[r.ID]; p != nil {
			p.Deleted = r.Deleted
		}
	}
}

func (st *memState) zrange(key string, start, stop int) []string {
	z := st.ZSets[key]
	members := make([]string, 0, len(z))
	for m := range z {
		members = append(members, m)
	}
	sort.Slice(members, func(i, j int) bool {
		si, sj := z[members[i]], z[members[j]]
		if si != sj {
			return si < sj
		}
		return members[i] < members[j]
	})
	lo, hi, ok := normalizeRange(start, stop, len(members))
	if !ok {
		return []string{}
	}
	return members[lo:hi]
}

func clonePoll(p *poll.Poll) *poll.Poll {
	cp := *p
	cp.Settings = p.Settings.Clone()
	cp.Options = append([]poll.Option(nil), p.Options...)
	return &cp
}

// localStore serves the "memory" and "file" drivers.
type localStore struct {
	log logx.Logger

	mu    sync.Mutex
	st    *memState
	audit []AuditEntry

	// j is nil for the memory driver.
	j *journal
}

func newMemStore(log logx.Logger) *localStore {
	return &localStore{log: log, st: newMemState()}
}

// commitLocked journals r (if persistent) and then applies it.
func (s *localStore) commitLocked(r record) error {
	if s.st == nil {
		return errors.New("store closed")
	}
	if s.j != nil {
		if err := s.j.append(r, s.st); err != nil {
			return err
		}
	}
	s.st.apply(r)
	return nil
}

func (s *localStore) SortedSetAdd(ctx context.Context, key string, score float64, member string) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commitLocked(record{Op: "zadd", Key: key, Member: member, Score: score})
}

func (s *localStore) SortedSetRange(ctx context.Context, key string, start, stop int) ([]string, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.st == nil {
		return nil, errors.New("store closed")
	}
	return s.st.zrange(key, start, stop), nil
}

func (s *localStore) SortedSetRemove(ctx context.Context, key, member string) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commitLocked(record{Op: "zrem", Key: key, Member: member})
}

func (s *localStore) CreatePoll(ctx context.Context, p *poll.Poll) (int64, error) {
	_ = ctx
	if p == nil {
		return 0, errors.New("nil poll")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.st == nil {
		return 0, errors.New("store closed")
	}
	if _, ok := s.st.byPost[p.PID]; ok {
		return 0, ErrPollExists
	}
	cp := clonePoll(p)
	cp.ID = s.st.NextID + 1
	if err := s.commitLocked(record{Op: "poll", Poll: cp}); err != nil {
		return 0, err
	}
	p.ID = cp.ID
	return cp.ID, nil
}

func (s *localStore) GetPoll(ctx context.Context, id int64) (*poll.Poll, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.st == nil {
		return nil, errors.New("store closed")
	}
	p := s.st.Polls[id]
	if p == nil {
		return nil, ErrNotFound
	}
	return clonePoll(p), nil
}

func (s *localStore) PollIDByPost(ctx context.Context, pid int64) (int64, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.st == nil {
		return 0, errors.New("store closed")
	}
	id, ok := s.st.byPost[pid]
	if !ok {
		return 0, ErrNotFound
	}
	return id, nil
}

func (s *localStore) PollSettings(ctx context.Context, id int64) (poll.Settings, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.st == nil {
		return nil, errors.New("store closed")
	}
	p := s.st.Polls[id]
	if p == nil || len(p.Settings) == 0 {
		return nil, nil
	}
	return p.Settings.Clone(), nil
}

func (s *localStore) ScheduledPolls(ctx context.Context) ([]int64, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.st == nil {
		return nil, errors.New("store closed")
	}
	return parseIDs(s.st.zrange(ScheduledKey, 0, -1)), nil
}

func (s *localStore) EndPoll(ctx context.Context, id int64) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.st == nil {
		return errors.New("store closed")
	}
	p := s.st.Polls[id]
	_, scheduled := s.st.ZSets[ScheduledKey][idMember(id)]
	if (p == nil || p.Ended) && !scheduled {
		return nil
	}
	return s.commitLocked(record{Op: "end", ID: id})
}

func (s *localStore) SetPollDeleted(ctx context.Context, id int64, deleted bool) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.st == nil {
		return errors.New("store closed")
	}
	if s.st.Polls[id] == nil {
		return ErrNotFound
	}
	return s.commitLocked(record{Op: "deleted", ID: id, Deleted: deleted})
}

func (s *localStore) AppendAudit(ctx context.Context, e AuditEntry) error {
	_ = ctx
	if e.At.IsZero() {
		e.At = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.j != nil {
		return s.j.appendAudit(e)
	}
	s.audit = append(s.audit, e)
	if len(s.audit) > memAuditMax {
		s.audit = append([]AuditEntry(nil), s.audit[len(s.audit)-memAuditMax:]...)
	}
	return nil
}

// Audit returns the in-memory audit trail (memory driver only).
func (s *localStore) Audit() []AuditEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]AuditEntry(nil), s.audit...)
}

func (s *localStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var err error
	if s.j != nil {
		err = s.j.close(s.st)
		s.j = nil
	}
	s.st = nil
	return err
}
