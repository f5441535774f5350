package config

import (
	"fmt"
	"net"
	"strings"
	"time"
)

var knownDrivers = map[string]bool{
	"": true, "none": true, "memory": true, "file": true, "sqlite": true, "sqlite3": true, "redis": true,
}

// Validate rejects configs that would fail later at wiring time, so a bad
// hot reload is caught before it is committed.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Logging.Format)) {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format: unknown %q", cfg.Logging.Format)
	}
	if cfg.Storage != nil {
		d := strings.ToLower(strings.TrimSpace(cfg.Storage.Driver))
		if !knownDrivers[d] {
			return fmt.Errorf("storage.driver: unknown %q", cfg.Storage.Driver)
		}
		if (d == "file" || d == "sqlite" || d == "sqlite3") && strings.TrimSpace(cfg.Storage.Path) == "" {
			return fmt.Errorf("storage.path is required when storage.driver=%s", d)
		}
		if d == "redis" && strings.TrimSpace(cfg.Storage.Addr) == "" {
			return fmt.Errorf("storage.addr is required when storage.driver=redis")
		}
		if _, err := ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout); err != nil {
			return err
		}
	}
	if cfg.Poll.Limits.MaxOptions < 0 {
		return fmt.Errorf("poll.limits.max_options must be >= 0")
	}
	if cfg.Scheduler.InitRatePerSec < 0 {
		return fmt.Errorf("scheduler.init_rate_per_sec must be >= 0")
	}
	if _, err := ParseDurationField("scheduler.close_timeout", cfg.Scheduler.CloseTimeout); err != nil {
		return err
	}
	if tz := strings.TrimSpace(cfg.Scheduler.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("scheduler.timezone: invalid %q: %w", tz, err)
		}
	}
	if cfg.Debug.Enabled && cfg.Debug.Token == "" {
		if addr := strings.TrimSpace(cfg.Debug.Addr); addr != "" && !isLoopback(addr) {
			return fmt.Errorf("debug.token is required when debug.addr is not loopback")
		}
	}
	return nil
}

func isLoopback(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
