package storage

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"

	logx "forumpoll/pkg/logx"

	"github.com/alicebob/miniredis/v2"
)

func openTestRedis(t *testing.T) (*miniredis.Miniredis, Store) {
	t.Helper()
	mr := miniredis.RunT(t)
	st, err := Open(Config{Driver: "redis", Addr: mr.Addr()}, logx.Nop())
	if err != nil {
		t.Fatalf("open redis: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return mr, st
}

func TestRedisKeyLayout(t *testing.T) {
	t.Parallel()
	mr, st := openTestRedis(t)
	ctx := context.Background()

	id, err := st.CreatePoll(ctx, samplePoll(11, "4102444800000"))
	if err != nil {
		t.Fatalf("CreatePoll: %v", err)
	}
	key := "poll:" + strconv.FormatInt(id, 10)

	if got := mr.HGet(key, "pid"); got != "11" {
		t.Fatalf("%s pid = %q, want 11", key, got)
	}
	if got := mr.HGet(key, "ended"); got != "0" {
		t.Fatalf("%s ended = %q, want 0", key, got)
	}
	if got := mr.HGet(key+":settings", "maxvotes"); got != "1" {
		t.Fatalf("settings maxvotes = %q", got)
	}
	if !mr.Exists(key + ":options") {
		t.Fatalf("%s:options missing", key)
	}
	if got, err := mr.Get("pid:11:poll"); err != nil || got != strconv.FormatInt(id, 10) {
		t.Fatalf("pid:11:poll = %q, %v", got, err)
	}
	if score, err := mr.ZScore(ScheduledKey, strconv.FormatInt(id, 10)); err != nil || score != 4102444800000 {
		t.Fatalf("scheduled score = %v, %v", score, err)
	}

	if err := st.EndPoll(ctx, id); err != nil {
		t.Fatalf("EndPoll: %v", err)
	}
	if got := mr.HGet(key, "ended"); got != "1" {
		t.Fatalf("%s ended after EndPoll = %q, want 1", key, got)
	}
	if err := st.EndPoll(ctx, id); err != nil {
		t.Fatalf("second EndPoll: %v", err)
	}
	// Ending a poll never creates its hash.
	if err := st.EndPoll(ctx, 9999); err != nil {
		t.Fatalf("EndPoll unknown id: %v", err)
	}
	if mr.Exists("poll:9999") {
		t.Fatal("EndPoll created poll:9999")
	}
}

func TestRedisCreatePollClaimsPostOnce(t *testing.T) {
	t.Parallel()
	_, st := openTestRedis(t)
	ctx := context.Background()

	const workers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
		exists  int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := st.CreatePoll(ctx, samplePoll(21, "0"))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				created++
			case errors.Is(err, ErrPollExists):
				exists++
			default:
				t.Errorf("CreatePoll: %v", err)
			}
		}()
	}
	wg.Wait()
	if created != 1 || exists != workers-1 {
		t.Fatalf("created=%d exists=%d, want 1 and %d", created, exists, workers-1)
	}
	polls, err := st.SortedSetRange(ctx, AllPollsKey, 0, -1)
	if err != nil {
		t.Fatalf("SortedSetRange: %v", err)
	}
	if len(polls) != 1 {
		t.Fatalf("polls = %v, want one", polls)
	}
}

func TestRedisGetPollBadOptions(t *testing.T) {
	t.Parallel()
	mr, st := openTestRedis(t)
	ctx := context.Background()

	id, err := st.CreatePoll(ctx, samplePoll(31, "0"))
	if err != nil {
		t.Fatalf("CreatePoll: %v", err)
	}
	if err := mr.Set("poll:"+strconv.FormatInt(id, 10)+":options", "not json"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := st.GetPoll(ctx, id); err == nil {
		t.Fatal("GetPoll decoded corrupt options")
	}
}

func TestOpenRedisFailures(t *testing.T) {
	t.Parallel()
	if _, err := Open(Config{Driver: "redis"}, logx.Nop()); err == nil {
		t.Fatal("redis driver without addr accepted")
	}
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()
	if _, err := Open(Config{Driver: "redis", Addr: addr}, logx.Nop()); err == nil {
		t.Fatal("Open succeeded against a stopped server")
	}
}
