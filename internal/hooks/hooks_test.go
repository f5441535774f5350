package hooks

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"forumpoll/internal/eventbus"
	"forumpoll/internal/expiry"
	"forumpoll/internal/poll"
	"forumpoll/internal/storage"
	logx "forumpoll/pkg/logx"
)

type testConfig struct{}

func (testConfig) MaxOptions() int { return 10 }
func (testConfig) DefaultSettings() poll.Settings {
	return poll.Settings{"title": "Poll", "maxvotes": "1", "end": "0"}
}

type fixture struct {
	hooks *Hooks
	store storage.Store
	sched *expiry.Scheduler
	bus   eventbus.Bus
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	st, err := storage.Open(storage.Config{Driver: "memory"}, logx.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	bus := eventbus.New()
	sched := expiry.New(expiry.Config{}, st, bus, logx.Nop())
	h := New(Deps{
		Polls:     poll.NewService(poll.NewParser(testConfig{}), st),
		Store:     st,
		Scheduler: sched,
		Bus:       bus,
		Log:       logx.Nop(),
	})
	return fixture{hooks: h, store: st, sched: sched, bus: bus}
}

func post(pid, tid int64, content string) poll.Post {
	return poll.Post{UID: 1, TID: tid, PID: pid, Timestamp: 1700000000000, Content: content}
}

func futureEnd() string {
	return strconv.FormatInt(time.Now().Add(time.Hour).UnixMilli(), 10)
}

func TestPostSaveCreatesAndSchedules(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	text := "Vote!\n[poll title=\"Lunch\" end=\"" + futureEnd() + "\"]\n-Pizza\n-Salad\n[/poll]\nthanks"

	p, err := f.hooks.PostSave(ctx, post(10, 1, text))
	if err != nil {
		t.Fatalf("PostSave: %v", err)
	}
	if p == nil || p.ID == 0 {
		t.Fatalf("poll not created: %+v", p)
	}
	if p.Title != "Lunch" || len(p.Options) != 2 {
		t.Fatalf("unexpected poll: %+v", p)
	}
	if f.sched.Len() != 1 {
		t.Fatalf("scheduled jobs = %d, want 1", f.sched.Len())
	}
	if id, err := f.store.PollIDByPost(ctx, 10); err != nil || id != p.ID {
		t.Fatalf("PollIDByPost = %d, %v", id, err)
	}

	if _, err := f.hooks.PostSave(ctx, post(10, 1, text)); !errors.Is(err, storage.ErrPollExists) {
		t.Fatalf("second PostSave err = %v, want ErrPollExists", err)
	}
}

func TestPostSaveWithoutEndIsNotScheduled(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	p, err := f.hooks.PostSave(context.Background(), post(20, 2, "[poll]\n-A\n-B\n[/poll]"))
	if err != nil {
		t.Fatalf("PostSave: %v", err)
	}
	if p == nil || p.Title != "Poll" {
		t.Fatalf("unexpected poll: %+v", p)
	}
	if f.sched.Len() != 0 {
		t.Fatalf("scheduled jobs = %d, want 0", f.sched.Len())
	}
}

func TestPostSaveRejections(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		content string
		first   string
		wantErr error
	}{
		{name: "plain post", content: "hello"},
		{name: "reply", content: "[poll]\n-A\n[/poll]", first: "99", wantErr: poll.ErrNotFirstPost},
		{name: "no options", content: "[poll]\n-   \n[/poll]", wantErr: poll.ErrNoOptions},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t)
			ctx := context.Background()
			if tt.first != "" {
				if err := f.store.SortedSetAdd(ctx, poll.ThreadPostsKey(3), 1, tt.first); err != nil {
					t.Fatalf("seed thread: %v", err)
				}
			}
			p, err := f.hooks.PostSave(ctx, post(30, 3, tt.content))
			if !errors.Is(err, tt.wantErr) || (tt.wantErr == nil && err != nil) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if p != nil {
				t.Fatalf("poll = %+v, want nil", p)
			}
			if _, err := f.store.PollIDByPost(ctx, 30); !errors.Is(err, storage.ErrNotFound) {
				t.Fatalf("poll stored despite rejection: %v", err)
			}
		})
	}
}

func TestClosePoll(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	p, err := f.hooks.PostSave(ctx, post(40, 4, "[poll end=\""+futureEnd()+"\"]\n-A\n[/poll]"))
	if err != nil {
		t.Fatalf("PostSave: %v", err)
	}

	if err := f.hooks.ClosePollByPost(ctx, 40); err != nil {
		t.Fatalf("ClosePollByPost: %v", err)
	}
	if f.sched.Len() != 0 {
		t.Fatalf("job not removed")
	}
	got, _ := f.store.GetPoll(ctx, p.ID)
	if !got.Ended {
		t.Fatal("poll not ended")
	}
	if err := f.hooks.ClosePoll(ctx, p.ID); err != nil {
		t.Fatalf("closing an ended poll: %v", err)
	}
	if err := f.hooks.ClosePoll(ctx, 999); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("ClosePoll unknown err = %v", err)
	}
}

func TestDeleteAndRestore(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	p, err := f.hooks.PostSave(ctx, post(50, 5, "[poll]\n-A\n[/poll]"))
	if err != nil {
		t.Fatalf("PostSave: %v", err)
	}

	if err := f.hooks.PostDelete(ctx, 50); err != nil {
		t.Fatalf("PostDelete: %v", err)
	}
	got, _ := f.store.GetPoll(ctx, p.ID)
	if !got.Deleted {
		t.Fatal("poll not deleted")
	}
	if err := f.hooks.PostRestore(ctx, 50); err != nil {
		t.Fatalf("PostRestore: %v", err)
	}
	got, _ = f.store.GetPoll(ctx, p.ID)
	if got.Deleted {
		t.Fatal("poll not restored")
	}
	if err := f.hooks.PostDelete(ctx, 12345); err != nil {
		t.Fatalf("PostDelete on post without poll: %v", err)
	}
}

func TestRenderPost(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	in := "a\n[poll]\n-A\n[/poll]\nb\n[poll x=\"1\"]\n-B\n[/poll]\nc"
	if got := f.hooks.RenderPost(in); got != "a\n\nb\n\nc" {
		t.Fatalf("RenderPost = %q", got)
	}
}

type memAuditor struct {
	mu      sync.Mutex
	entries []storage.AuditEntry
}

func (m *memAuditor) AppendAudit(_ context.Context, e storage.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	return nil
}

func TestRecordAuditDrainsOnClose(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	events, unsub := f.bus.Subscribe(32)
	a := &memAuditor{}
	done := make(chan struct{})
	go func() {
		RecordAudit(events, a, logx.Nop())
		close(done)
	}()

	ctx := context.Background()
	if _, err := f.hooks.PostSave(ctx, post(60, 6, "[poll end=\""+futureEnd()+"\"]\n-A\n[/poll]")); err != nil {
		t.Fatalf("PostSave: %v", err)
	}
	if err := f.hooks.ClosePollByPost(ctx, 60); err != nil {
		t.Fatalf("ClosePollByPost: %v", err)
	}
	unsub()
	<-done

	a.mu.Lock()
	defer a.mu.Unlock()
	want := []string{eventbus.TypePollCreated, eventbus.TypePollScheduled, eventbus.TypePollEnded}
	if len(a.entries) != len(want) {
		t.Fatalf("audit entries = %+v", a.entries)
	}
	for i, w := range want {
		if a.entries[i].Action != w {
			t.Fatalf("entry %d action = %q, want %q", i, a.entries[i].Action, w)
		}
	}
	if a.entries[2].MetaJSON != `{"manual":true}` {
		t.Fatalf("ended meta = %q", a.entries[2].MetaJSON)
	}
}
