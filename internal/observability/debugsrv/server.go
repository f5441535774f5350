// Package debugsrv serves the operator endpoints of the daemon: a liveness
// probe, the pending expiry jobs, and net/http/pprof.
package debugsrv

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	hpprof "net/http/pprof"
	"strings"
	"time"

	"forumpoll/internal/expiry"
	"forumpoll/internal/runtime/supervisor"
	logx "forumpoll/pkg/logx"

	"golang.org/x/net/netutil"
)

const (
	defaultAddr = "127.0.0.1:6060"

	// maxConns bounds concurrent connections; a CPU profile holds one for
	// its whole duration.
	maxConns = 8
)

// Config controls the optional debug HTTP server. A non-loopback Addr
// requires a Token.
type Config struct {
	Enabled bool
	Addr    string
	Token   string
}

// Status is what the server reports on.
type Status interface {
	Snapshot() expiry.Snapshot
}

type Server struct {
	cfg    Config
	status Status
	sup    *supervisor.Supervisor // optional
	log    logx.Logger
}

func New(cfg Config, status Status, sup *supervisor.Supervisor, log logx.Logger) *Server {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Server{cfg: cfg, status: status, sup: sup, log: log}
}

func (s *Server) Enabled() bool { return s.cfg.Enabled }

// Run listens and serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	addr := strings.TrimSpace(s.cfg.Addr)
	if addr == "" {
		addr = defaultAddr
	}
	if s.cfg.Token == "" && !IsLoopbackAddr(addr) {
		return errors.New("debug server refused to start: non-loopback addr requires a token")
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	ln = netutil.LimitListener(ln, maxConns)
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		cctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = srv.Shutdown(cctx)
		cancel()
	}()

	s.log.Info("debug server started", logx.String("addr", ln.Addr().String()), logx.Bool("token_set", s.cfg.Token != ""))
	err = srv.Serve(ln)
	if ctx.Err() != nil {
		return nil
	}
	if err == nil || errors.Is(err, http.ErrServerClosed) {
		return errors.New("debug server exited unexpectedly")
	}
	return err
}

// Handler returns the mux with every endpoint behind the token check.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.healthz)
	mux.HandleFunc("/debug/scheduler", s.scheduler)
	mux.HandleFunc("/debug/pprof/", hpprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", hpprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", hpprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", hpprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", hpprof.Trace)
	return withToken(s.cfg.Token, mux)
}

type health struct {
	Status     string               `json:"status"`
	Goroutines *supervisor.Counters `json:"goroutines,omitempty"`
	Error      string               `json:"error,omitempty"`
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	h := health{Status: "ok"}
	code := http.StatusOK
	if s.sup != nil {
		c := s.sup.Counters()
		h.Goroutines = &c
		if err := s.sup.Err(); err != nil {
			h.Status = "failing"
			h.Error = err.Error()
			code = http.StatusServiceUnavailable
		}
	}
	writeJSON(w, code, h)
}

func (s *Server) scheduler(w http.ResponseWriter, _ *http.Request) {
	if s.status == nil {
		http.Error(w, "scheduler unavailable", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, s.status.Snapshot())
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// withToken accepts "Authorization: Bearer <token>" or ?token=<token>.
func withToken(token string, next http.Handler) http.Handler {
	tok := strings.TrimSpace(token)
	if tok == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := r.URL.Query().Get("token")
		if got == "" {
			if ah := r.Header.Get("Authorization"); strings.HasPrefix(ah, "Bearer ") {
				got = strings.TrimSpace(strings.TrimPrefix(ah, "Bearer "))
			}
		}
		if got != tok {
			w.Header().Set("WWW-Authenticate", "Bearer")
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// IsLoopbackAddr reports whether a host:port binds to loopback only. An
// empty host means all interfaces.
func IsLoopbackAddr(addr string) bool {
	h, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	h = strings.TrimSpace(h)
	if h == "" {
		return false
	}
	if strings.EqualFold(h, "localhost") {
		return true
	}
	ip := net.ParseIP(h)
	return ip != nil && ip.IsLoopback()
}
