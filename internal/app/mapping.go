package app

import (
	"fmt"
	"strings"
	"time"

	"forumpoll/internal/config"
	"forumpoll/internal/expiry"
	"forumpoll/internal/observability/debugsrv"
	"forumpoll/internal/storage"
	logx "forumpoll/pkg/logx"
)

// mapStorageConfig returns enabled=false for a missing section or driver
// "none"; the caller then falls back to the memory store.
func mapStorageConfig(cfg *config.Config) (storage.Config, bool, error) {
	if cfg == nil || cfg.Storage == nil {
		return storage.Config{}, false, nil
	}
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	if driver == "" || driver == "none" {
		return storage.Config{}, false, nil
	}
	path := strings.TrimSpace(sc.Path)

	switch driver {
	case "memory":
		return storage.Config{Driver: driver}, true, nil
	case "file":
		if path == "" {
			return storage.Config{}, false, fmt.Errorf("storage.path is required when storage.driver=file")
		}
		return storage.Config{Driver: driver, Path: path}, true, nil
	case "sqlite", "sqlite3":
		if path == "" {
			return storage.Config{}, false, fmt.Errorf("storage.path is required when storage.driver=sqlite")
		}
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
		if err != nil {
			return storage.Config{}, false, err
		}
		return storage.Config{Driver: "sqlite", Path: path, BusyTimeout: busy}, true, nil
	case "redis":
		addr := strings.TrimSpace(sc.Addr)
		if addr == "" {
			return storage.Config{}, false, fmt.Errorf("storage.addr is required when storage.driver=redis")
		}
		return storage.Config{Driver: driver, Addr: addr, Password: sc.Password, DB: sc.DB}, true, nil
	default:
		return storage.Config{}, false, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
}

func mapSchedulerConfig(cfg *config.Config) (expiry.Config, error) {
	if cfg == nil {
		return expiry.Config{}, nil
	}
	timeout, err := config.ParseDurationOrDefault("scheduler.close_timeout", cfg.Scheduler.CloseTimeout, 10*time.Second)
	if err != nil {
		return expiry.Config{}, err
	}
	return expiry.Config{
		Timezone:       cfg.Scheduler.Timezone,
		InitRatePerSec: cfg.Scheduler.InitRatePerSec,
		CloseTimeout:   timeout,
	}, nil
}

func mapLogConfig(cfg *config.Config) logx.Config {
	if cfg == nil {
		return logx.Config{Level: "info", Console: true}
	}
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		Format:  cfg.Logging.Format,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func mapDebugConfig(cfg *config.Config) debugsrv.Config {
	if cfg == nil {
		return debugsrv.Config{}
	}
	return debugsrv.Config{
		Enabled: cfg.Debug.Enabled,
		Addr:    strings.TrimSpace(cfg.Debug.Addr),
		Token:   strings.TrimSpace(cfg.Debug.Token),
	}
}
