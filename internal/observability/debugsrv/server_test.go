package debugsrv

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"forumpoll/internal/expiry"
	"forumpoll/internal/runtime/supervisor"
	logx "forumpoll/pkg/logx"
)

type fakeStatus struct{ snap expiry.Snapshot }

func (f fakeStatus) Snapshot() expiry.Snapshot { return f.snap }

func TestSchedulerEndpoint(t *testing.T) {
	t.Parallel()
	at := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	srv := New(Config{}, fakeStatus{snap: expiry.Snapshot{
		Running:  true,
		Timezone: "UTC",
		Jobs:     []expiry.JobInfo{{PollID: 7, At: at}},
	}}, nil, logx.Nop())

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/scheduler", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var got expiry.Snapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !got.Running || len(got.Jobs) != 1 || got.Jobs[0].PollID != 7 || !got.Jobs[0].At.Equal(at) {
		t.Fatalf("snapshot = %+v", got)
	}
}

func TestHealthzReportsSupervisorFailure(t *testing.T) {
	t.Parallel()
	sup := supervisor.New(context.Background())
	sup.Go("broken", func(context.Context) error { return errors.New("boom") })
	if err := sup.Wait(context.Background()); err == nil {
		t.Fatal("supervisor error not recorded")
	}

	rec := httptest.NewRecorder()
	New(Config{}, nil, sup, logx.Nop()).Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	var h health
	if err := json.Unmarshal(rec.Body.Bytes(), &h); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if h.Status != "failing" || h.Goroutines == nil || h.Goroutines.Started != 1 {
		t.Fatalf("health = %+v", h)
	}
}

func TestTokenRequired(t *testing.T) {
	t.Parallel()
	h := New(Config{Token: "s3cret"}, nil, nil, logx.Nop()).Handler()
	tests := []struct {
		name   string
		target string
		auth   string
		want   int
	}{
		{name: "missing", target: "/healthz", want: http.StatusUnauthorized},
		{name: "wrong", target: "/healthz?token=nope", want: http.StatusUnauthorized},
		{name: "query", target: "/healthz?token=s3cret", want: http.StatusOK},
		{name: "bearer", target: "/healthz", auth: "Bearer s3cret", want: http.StatusOK},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, tt.target, nil)
		if tt.auth != "" {
			req.Header.Set("Authorization", tt.auth)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != tt.want {
			t.Fatalf("%s: status = %d, want %d", tt.name, rec.Code, tt.want)
		}
	}
}

func TestIsLoopbackAddr(t *testing.T) {
	t.Parallel()
	tests := map[string]bool{
		"127.0.0.1:6060": true,
		"localhost:1":    true,
		"[::1]:80":       true,
		":6060":          false,
		"0.0.0.0:6060":   false,
		"10.0.0.1:6060":  false,
		"nonsense":       false,
	}
	for addr, want := range tests {
		if got := IsLoopbackAddr(addr); got != want {
			t.Fatalf("IsLoopbackAddr(%q) = %v, want %v", addr, got, want)
		}
	}
}

func TestRunRefusesPublicAddrWithoutToken(t *testing.T) {
	t.Parallel()
	err := New(Config{Enabled: true, Addr: "0.0.0.0:0"}, nil, nil, logx.Nop()).Run(context.Background())
	if err == nil {
		t.Fatal("public bind without token accepted")
	}
}

func TestRunReturnsOnCancel(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- New(Config{Enabled: true, Addr: "127.0.0.1:0"}, nil, nil, logx.Nop()).Run(ctx)
	}()
	time.Sleep(100 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() = %v, want nil after cancel", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
