package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"forumpoll/internal/config"
	"forumpoll/internal/eventbus"
	"forumpoll/internal/expiry"
	"forumpoll/internal/hooks"
	"forumpoll/internal/i18n"
	"forumpoll/internal/observability/debugsrv"
	"forumpoll/internal/poll"
	"forumpoll/internal/runtime/sdnotify"
	"forumpoll/internal/runtime/supervisor"
	"forumpoll/internal/storage"
	logx "forumpoll/pkg/logx"

	"github.com/spf13/afero"
)

type App struct {
	cfgm *config.ConfigManager
	sup  *supervisor.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	polls *poll.Service
	sched *expiry.Scheduler
	hooks *hooks.Hooks
	tr    *i18n.Registry

	auditUnsub func()
	auditDone  chan struct{}

	stopped atomic.Bool
}

// NewApp loads the config file at cfgPath and wires every component.
func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	if _, err := cfgm.Load(); err != nil {
		return nil, err
	}
	return New(cfgm)
}

// New wires the app from an already loaded config manager. Nothing runs
// until Start; the hooks are usable right away, which is what the offline
// CLI commands rely on.
func New(cfgm *config.ConfigManager) (*App, error) {
	cfg := cfgm.Get()
	if cfg == nil {
		return nil, errors.New("config not loaded")
	}

	logSvc, log := logx.New(mapLogConfig(cfg))
	log = log.With(logx.String("comp", "app"))

	bus := eventbus.New()

	sc, enabled, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	if !enabled {
		sc = storage.Config{Driver: "memory"}
		log.Warn("storage disabled; polls are kept in memory only")
	}
	store, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	log.Info("storage enabled", logx.String("driver", sc.Driver))

	schedCfg, err := mapSchedulerConfig(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	sched := expiry.New(schedCfg, store, bus, log.With(logx.String("comp", "scheduler")))

	polls := poll.NewService(poll.NewParser(config.NewPollSource(cfgm)), store)
	h := hooks.New(hooks.Deps{
		Polls:     polls,
		Store:     store,
		Scheduler: sched,
		Bus:       bus,
		Log:       log,
	})

	fallback := strings.TrimSpace(cfg.Translations.Fallback)
	if fallback == "" {
		fallback = config.DefaultLanguage
	}
	tr := i18n.NewRegistry(fallback)
	if dir := strings.TrimSpace(cfg.Translations.Dir); dir != "" {
		n, err := i18n.NewLoader(afero.NewOsFs(), log.With(logx.String("comp", "i18n"))).Load(dir, tr)
		if err != nil {
			log.Warn("translations not loaded", logx.String("dir", dir), logx.Err(err))
		} else {
			log.Info("translations loaded", logx.Int("files", n), logx.Any("languages", tr.Languages()))
		}
	}

	a := &App{
		cfgm:      cfgm,
		log:       log,
		logs:      logSvc,
		bus:       bus,
		store:     store,
		polls:     polls,
		sched:     sched,
		hooks:     h,
		tr:        tr,
		auditDone: make(chan struct{}),
	}

	// The audit recorder lives outside the supervisor: it must drain after
	// the scheduler has published its last event, which is after the
	// supervisor context is gone.
	events, unsub := bus.Subscribe(256, eventbus.PollTypes...)
	a.auditUnsub = unsub
	go func() {
		defer close(a.auditDone)
		hooks.RecordAudit(events, store, log.With(logx.String("comp", "audit")))
	}()

	return a, nil
}

func (a *App) Hooks() *hooks.Hooks                  { return a.hooks }
func (a *App) Scheduler() *expiry.Scheduler         { return a.sched }
func (a *App) Store() storage.Store                 { return a.store }
func (a *App) Translations() *i18n.Registry         { return a.tr }
func (a *App) Logger() logx.Logger                  { return a.log }
func (a *App) ConfigManager() *config.ConfigManager { return a.cfgm }

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// Start runs the expiry scheduler, rehydrates its jobs from storage and
// starts the config watcher.
func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	// transactional config reload: validate before commit/publish
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		if err := config.Validate(cfg); err != nil {
			return err
		}
		if _, _, err := mapStorageConfig(cfg); err != nil {
			return err
		}
		_, err := mapSchedulerConfig(cfg)
		return err
	})

	a.sched.Start(a.sup.Context())
	a.sup.Go0("scheduler.init", a.sched.Init)

	if dc := mapDebugConfig(a.cfgm.Get()); dc.Enabled {
		srv := debugsrv.New(dc, a.sched, a.sup, a.log.With(logx.String("comp", "debug")))
		a.sup.GoRestart("debug.http", srv.Run, time.Second, 30*time.Second)
	}

	a.sup.Go0("systemd.watchdog", func(c context.Context) {
		healthy := func() bool { return a.sup.Err() == nil }
		if err := sdnotify.Watchdog(c, healthy, a.log); err != nil {
			a.log.Warn("systemd watchdog disabled", logx.Err(err))
		}
	})

	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				fields := []logx.Field{logx.String("type", e.Type), logx.Time("time", e.Time)}
				if pe, ok := e.Data.(eventbus.PollEvent); ok {
					fields = append(fields, logx.Int64("pollid", pe.PollID))
				}
				a.log.Debug("event", fields...)
			}
		}
	})

	// hot reload config fan-out
	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the latest config in the channel.
			drain:
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						break drain
					}
				}
				a.applyConfig(lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})

	if a.cfgm.Path() != "" {
		a.sup.GoRestart("config.watch", a.cfgm.Watch, 500*time.Millisecond, 10*time.Second)
	}

	a.log.Info("app started")
	return nil
}

func (a *App) applyConfig(prev, next *config.Config) {
	sections, attrs := config.SummarizeConfigChange(prev, next)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	if restart := config.RestartRequired(sections); len(restart) > 0 {
		a.log.Warn("config changed; restart required for changes to take effect",
			logx.String("sections", strings.Join(restart, ",")))
	}

	for _, s := range sections {
		if s == "logging" {
			a.logs.Apply(mapLogConfig(next))
			break
		}
	}

	if sc, err := mapSchedulerConfig(next); err != nil {
		a.log.Warn("invalid scheduler config; keeping previous", logx.Err(err))
	} else {
		a.sched.Apply(sc)
	}

	// The poll section needs no push: the parser reads it on every call.
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

// Stop shuts the app down in dependency order. It is safe to call once
// whether or not Start ran.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if !a.stopped.CompareAndSwap(false, true) {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))

	if a.sup != nil {
		a.sup.Cancel()
	}

	a.step(ctx, "scheduler", 3*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	a.step(ctx, "audit", 2*time.Second, func(c context.Context) error {
		a.auditUnsub()
		select {
		case <-a.auditDone:
			return nil
		case <-c.Done():
			return c.Err()
		}
	})
	a.step(ctx, "storage", 1*time.Second, func(context.Context) error { return a.store.Close() })
	if a.sup != nil {
		a.step(ctx, "supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })
	}

	a.log.Info("stopped", logx.Uint64("events_dropped", a.bus.Dropped()))
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}

// step runs one shutdown step with an upper bound so one component can't
// stall the whole stop. The caller's deadline is never extended.
func (a *App) step(ctx context.Context, name string, max time.Duration, fn func(context.Context) error) {
	start := time.Now()
	a.log.Debug("stop step begin", logx.String("name", name), logx.Duration("max", max))

	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem < max {
			max = rem
		}
	}
	if max <= 0 {
		a.log.Warn("stop step skipped; deadline passed", logx.String("name", name))
		return
	}
	stepCtx, cancel := context.WithTimeout(ctx, max)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic in stop step %s: %v", name, r)
			}
		}()
		done <- fn(stepCtx)
	}()

	select {
	case err := <-done:
		if err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
		took := time.Since(start)
		if took >= 500*time.Millisecond {
			a.log.Info("stop step end", logx.String("name", name), logx.Duration("took", took))
		} else {
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", took))
		}
	case <-stepCtx.Done():
		a.log.Warn("stop step deadline reached (continuing)",
			logx.String("name", name), logx.Err(stepCtx.Err()), logx.Duration("elapsed", time.Since(start)))
		// Leak logging: observe when/if the step eventually finishes.
		go func() {
			err := <-done
			took := time.Since(start)
			if err != nil {
				a.log.Warn("stop step finished after deadline", logx.String("name", name), logx.Err(err), logx.Duration("took", took))
			} else {
				a.log.Info("stop step finished after deadline", logx.String("name", name), logx.Duration("took", took))
			}
		}()
	}
}
