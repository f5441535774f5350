package app

import (
	"context"
	"strconv"
	"testing"
	"time"

	"forumpoll/internal/config"
	"forumpoll/internal/eventbus"
	"forumpoll/internal/poll"
	"forumpoll/internal/storage"
)

func testConfig() *config.Config {
	return &config.Config{
		Logging: config.LoggingConfig{Level: "error"},
		Storage: &config.StorageConfig{Driver: "memory"},
	}
}

func TestMapStorageConfig(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		sc      *config.StorageConfig
		want    storage.Config
		enabled bool
		wantErr bool
	}{
		{name: "missing"},
		{name: "none", sc: &config.StorageConfig{Driver: "none"}},
		{name: "memory", sc: &config.StorageConfig{Driver: "Memory"}, want: storage.Config{Driver: "memory"}, enabled: true},
		{name: "file", sc: &config.StorageConfig{Driver: "file", Path: " ./data/polls "}, want: storage.Config{Driver: "file", Path: "./data/polls"}, enabled: true},
		{name: "file without path", sc: &config.StorageConfig{Driver: "file"}, wantErr: true},
		{name: "sqlite default busy", sc: &config.StorageConfig{Driver: "sqlite3", Path: "p.db"}, want: storage.Config{Driver: "sqlite", Path: "p.db", BusyTimeout: time.Second}, enabled: true},
		{name: "sqlite busy", sc: &config.StorageConfig{Driver: "sqlite", Path: "p.db", BusyTimeout: "3s"}, want: storage.Config{Driver: "sqlite", Path: "p.db", BusyTimeout: 3 * time.Second}, enabled: true},
		{name: "sqlite bad busy", sc: &config.StorageConfig{Driver: "sqlite", Path: "p.db", BusyTimeout: "soon"}, wantErr: true},
		{name: "redis", sc: &config.StorageConfig{Driver: "redis", Addr: "127.0.0.1:6379", DB: 2}, want: storage.Config{Driver: "redis", Addr: "127.0.0.1:6379", DB: 2}, enabled: true},
		{name: "redis without addr", sc: &config.StorageConfig{Driver: "redis"}, wantErr: true},
		{name: "unknown", sc: &config.StorageConfig{Driver: "mongo"}, wantErr: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, enabled, err := mapStorageConfig(&config.Config{Storage: tt.sc})
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if enabled != tt.enabled || got != tt.want {
				t.Fatalf("got %+v enabled=%v, want %+v enabled=%v", got, enabled, tt.want, tt.enabled)
			}
		})
	}
}

func TestMapSchedulerConfig(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	got, err := mapSchedulerConfig(cfg)
	if err != nil {
		t.Fatalf("mapSchedulerConfig: %v", err)
	}
	if got.CloseTimeout != 10*time.Second {
		t.Fatalf("default close timeout = %v", got.CloseTimeout)
	}

	cfg.Scheduler = config.SchedulerConfig{Timezone: "UTC", InitRatePerSec: 50, CloseTimeout: "2s"}
	got, err = mapSchedulerConfig(cfg)
	if err != nil {
		t.Fatalf("mapSchedulerConfig: %v", err)
	}
	if got.Timezone != "UTC" || got.InitRatePerSec != 50 || got.CloseTimeout != 2*time.Second {
		t.Fatalf("unexpected scheduler config: %+v", got)
	}

	cfg.Scheduler.CloseTimeout = "-1s"
	if _, err := mapSchedulerConfig(cfg); err == nil {
		t.Fatal("negative close timeout accepted")
	}
}

func TestAppLifecycle(t *testing.T) {
	t.Parallel()
	a, err := New(config.NewStatic(testConfig()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()
	if err := a.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	end := strconv.FormatInt(time.Now().Add(time.Hour).UnixMilli(), 10)
	p, err := a.Hooks().PostSave(ctx, poll.Post{UID: 1, TID: 7, PID: 70, Timestamp: 1, Content: "[poll end=\"" + end + "\"]\n-Yes\n-No\n[/poll]"})
	if err != nil {
		t.Fatalf("PostSave: %v", err)
	}
	if p == nil {
		t.Fatal("no poll created")
	}
	if a.Scheduler().Len() != 1 {
		t.Fatalf("jobs = %d, want 1", a.Scheduler().Len())
	}
	if err := a.Hooks().ClosePoll(ctx, p.ID); err != nil {
		t.Fatalf("ClosePoll: %v", err)
	}

	stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := a.Stop(stopCtx, StopCommand); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := a.Stop(stopCtx, StopCommand); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
	select {
	case <-a.Done():
	default:
		t.Fatal("Done not closed after Stop")
	}

	auditor, ok := a.Store().(interface{ Audit() []storage.AuditEntry })
	if !ok {
		t.Fatal("memory store does not expose its audit trail")
	}
	seen := map[string]bool{}
	for _, e := range auditor.Audit() {
		seen[e.Action] = true
	}
	for _, want := range []string{eventbus.TypePollCreated, eventbus.TypePollScheduled, eventbus.TypePollEnded} {
		if !seen[want] {
			t.Fatalf("audit missing %q: %+v", want, auditor.Audit())
		}
	}
}

func TestStopWithoutStart(t *testing.T) {
	t.Parallel()
	a, err := New(config.NewStatic(&config.Config{Logging: config.LoggingConfig{Level: "error"}}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if a.Err() != nil {
		t.Fatalf("Err = %v", a.Err())
	}
	if err := a.Stop(context.Background(), StopCommand); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestApplyConfigUpdatesScheduler(t *testing.T) {
	t.Parallel()
	prev := testConfig()
	a, err := New(config.NewStatic(prev))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Stop(context.Background(), StopCommand)

	next := testConfig()
	next.Scheduler.Timezone = "UTC"
	a.applyConfig(prev, next)
	if tz := a.Scheduler().Snapshot().Timezone; tz != "UTC" {
		t.Fatalf("timezone = %q, want UTC", tz)
	}
}
