package expiry

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"forumpoll/internal/eventbus"
	"forumpoll/internal/poll"
	logx "forumpoll/pkg/logx"

	"github.com/robfig/cron/v3"
	"golang.org/x/time/rate"
)

const defaultCloseTimeout = 10 * time.Second

// Backend is the storage the scheduler reads open polls from and closes
// them in. storage.Store satisfies it.
type Backend interface {
	ScheduledPolls(ctx context.Context) ([]int64, error)
	// PollSettings returns (nil, nil) when the poll has no settings.
	PollSettings(ctx context.Context, id int64) (poll.Settings, error)
	// EndPoll must be idempotent.
	EndPoll(ctx context.Context, id int64) error
}

type Config struct {
	// Timezone is an IANA name used when rendering fire times.
	Timezone string
	// InitRatePerSec paces Init; 0 means unlimited.
	InitRatePerSec int
	// CloseTimeout bounds the storage close issued by a firing job.
	CloseTimeout time.Duration
}

type job struct {
	entry cron.EntryID
	at    time.Time
	sched *onceSchedule
}

// Scheduler closes polls when their end time passes. It holds at most one
// pending cron entry per poll id.
type Scheduler struct {
	log   logx.Logger
	store Backend
	bus   eventbus.Bus
	now   func() time.Time
	locks *keyLocks

	mu      sync.Mutex
	cfg     Config
	loc     *time.Location
	c       *cron.Cron
	jobs    map[int64]job
	running bool
	// base is the context handed to firing jobs; canceled by Stop.
	base   context.Context
	cancel context.CancelFunc
}

// New builds a stopped scheduler. bus may be nil.
func New(cfg Config, store Backend, bus eventbus.Bus, log logx.Logger) *Scheduler {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Scheduler{
		log:   log,
		store: store,
		bus:   bus,
		now:   time.Now,
		locks: newKeyLocks(),
		cfg:   cfg,
		jobs:  map[int64]job{},
	}
	s.loc = loadLocation(cfg.Timezone, log)
	s.c = cron.New(
		cron.WithLocation(s.loc),
		cron.WithLogger(cronLogger{log: log}),
		cron.WithChain(cron.Recover(cronLogger{log: log})),
	)
	return s
}

// Apply swaps the runtime config. The timezone only changes how fire times
// are reported; pending jobs keep their absolute instants.
func (s *Scheduler) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if strings.TrimSpace(cfg.Timezone) != strings.TrimSpace(s.cfg.Timezone) {
		s.loc = loadLocation(cfg.Timezone, s.log)
	}
	s.cfg = cfg
}

func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.base, s.cancel = context.WithCancel(ctx)
	// Jobs whose end passed while stopped must still fire once.
	for _, j := range s.jobs {
		j.sched.rearm()
	}
	s.running = true
	s.c.Start()
	s.log.Info("scheduler started", logx.Int("jobs", len(s.jobs)), logx.String("tz", s.loc.String()))
}

// Stop halts the cron runner and waits for running jobs, or for ctx.
// Registered jobs stay in the registry and fire after the next Start.
func (s *Scheduler) Stop(ctx context.Context) {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	c := s.c
	s.mu.Unlock()

	start := time.Now()
	stopped := c.Stop()
	select {
	case <-stopped.Done():
	case <-ctx.Done():
		s.log.Warn("scheduler stop timed out; canceling running jobs")
		cancel()
		<-stopped.Done()
	}
	cancel()
	s.log.Info("scheduler stopped", logx.Duration("took", time.Since(start)))
}

// Init registers a job for every poll in the scheduled set. It never fails:
// a listing error is logged and Init returns, and a poll whose Add fails
// stays unregistered.
func (s *Scheduler) Init(ctx context.Context) {
	ids, err := s.store.ScheduledPolls(ctx)
	if err != nil {
		s.log.Error("list scheduled polls failed", logx.Err(err))
		return
	}

	s.mu.Lock()
	perSec := s.cfg.InitRatePerSec
	s.mu.Unlock()
	var lim *rate.Limiter
	if perSec > 0 {
		lim = rate.NewLimiter(rate.Limit(perSec), 1)
	}

	start := time.Now()
	failed := 0
	for _, id := range ids {
		if lim != nil {
			if err := lim.Wait(ctx); err != nil {
				s.log.Warn("scheduler init interrupted", logx.Err(err), logx.Int("remaining", len(ids)))
				return
			}
		}
		if err := s.Add(ctx, id); err != nil {
			failed++
			s.log.Warn("schedule poll failed", logx.Int64("pollid", id), logx.Err(err))
		}
	}
	s.log.Info("scheduler initialized",
		logx.Int("polls", len(ids)),
		logx.Int("failed", failed),
		logx.Int("jobs", s.Len()),
		logx.Duration("took", time.Since(start)),
	)
}

// Add registers the end-time job of one poll. It is a no-op when a job is
// already registered. A poll whose end has passed is closed right away.
func (s *Scheduler) Add(ctx context.Context, id int64) error {
	unlock := s.locks.lock(id)
	defer unlock()

	if s.registered(id) {
		return nil
	}

	settings, err := s.store.PollSettings(ctx, id)
	if err != nil {
		return fmt.Errorf("poll %d settings: %w", id, err)
	}
	if settings == nil {
		s.log.Warn("poll has no settings; not scheduled", logx.Int64("pollid", id))
		return nil
	}
	end, ok := settings.End()
	if !ok {
		s.log.Warn("poll has no valid end; not scheduled",
			logx.Int64("pollid", id), logx.String("end", settings[poll.SettingEnd]))
		return nil
	}

	at := time.UnixMilli(end)
	if !at.After(s.now()) {
		s.log.Debug("poll already past end; closing", logx.Int64("pollid", id), logx.Time("end", at))
		return s.endLocked(ctx, id, false)
	}

	sched := newOnceSchedule(at)
	s.mu.Lock()
	entry := s.c.Schedule(sched, cron.FuncJob(func() { s.fire(id) }))
	s.jobs[id] = job{entry: entry, at: at, sched: sched}
	loc := s.loc
	s.mu.Unlock()

	s.log.Debug("poll scheduled", logx.Int64("pollid", id), logx.String("at", at.In(loc).Format(time.RFC3339)))
	eventbus.PublishPoll(s.bus, eventbus.TypePollScheduled, eventbus.PollEvent{PollID: id, EndAt: end})
	return nil
}

// End cancels the poll's job if there is one, then closes the poll in
// storage. Closing is idempotent, so End on an ended or unknown poll is
// harmless.
func (s *Scheduler) End(ctx context.Context, id int64) error {
	unlock := s.locks.lock(id)
	defer unlock()
	return s.endLocked(ctx, id, true)
}

func (s *Scheduler) endLocked(ctx context.Context, id int64, manual bool) error {
	s.mu.Lock()
	j, ok := s.jobs[id]
	if ok {
		delete(s.jobs, id)
		s.c.Remove(j.entry)
	}
	s.mu.Unlock()

	if err := s.store.EndPoll(ctx, id); err != nil {
		return fmt.Errorf("end poll %d: %w", id, err)
	}
	s.log.Info("poll ended", logx.Int64("pollid", id), logx.Bool("had_job", ok), logx.Bool("manual", manual))
	eventbus.PublishPoll(s.bus, eventbus.TypePollEnded, eventbus.PollEvent{PollID: id, Manual: manual})
	return nil
}

// fire runs on the cron goroutine when a poll's end time arrives.
func (s *Scheduler) fire(id int64) {
	s.mu.Lock()
	timeout := s.cfg.CloseTimeout
	base := s.base
	s.mu.Unlock()
	if timeout <= 0 {
		timeout = defaultCloseTimeout
	}
	ctx, cancel := context.WithTimeout(base, timeout)
	defer cancel()

	unlock := s.locks.lock(id)
	defer unlock()
	// A manual End may have won the race for the lock.
	if !s.registered(id) {
		return
	}
	if err := s.endLocked(ctx, id, false); err != nil {
		s.log.Error("scheduled close failed", logx.Int64("pollid", id), logx.Err(err))
	}
}

func (s *Scheduler) registered(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.jobs[id]
	return ok
}

// Len reports the number of registered jobs.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

func loadLocation(tz string, log logx.Logger) *time.Location {
	tz = strings.TrimSpace(tz)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Warn("invalid timezone; using local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}

// JobInfo describes one registered job.
type JobInfo struct {
	PollID int64     `json:"pollid"`
	At     time.Time `json:"at"`
}

type Snapshot struct {
	Running  bool      `json:"running"`
	Timezone string    `json:"timezone"`
	Jobs     []JobInfo `json:"jobs"`
}

// Snapshot lists registered jobs ordered by fire time.
func (s *Scheduler) Snapshot() Snapshot {
	s.mu.Lock()
	loc := s.loc
	out := Snapshot{
		Running:  s.running,
		Timezone: loc.String(),
		Jobs:     make([]JobInfo, 0, len(s.jobs)),
	}
	for id, j := range s.jobs {
		out.Jobs = append(out.Jobs, JobInfo{PollID: id, At: j.at.In(loc)})
	}
	s.mu.Unlock()

	sort.Slice(out.Jobs, func(i, k int) bool {
		a, b := out.Jobs[i], out.Jobs[k]
		if !a.At.Equal(b.At) {
			return a.At.Before(b.At)
		}
		return a.PollID < b.PollID
	})
	return out
}
