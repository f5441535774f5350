package config

import (
	"reflect"
	"sort"
	"strings"

	logx "forumpoll/pkg/logx"
)

// SummarizeConfigChange returns a compact list of changed sections and safe
// structured attrs for logging (never includes secrets like the redis
// password).
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 5)
	attrs := make([]logx.Field, 0, 16)

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	// Storage: nil means disabled.
	var oS, nS StorageConfig
	if oldCfg.Storage != nil {
		oS = *oldCfg.Storage
	}
	if newCfg.Storage != nil {
		nS = *newCfg.Storage
	}
	if !strings.EqualFold(strings.TrimSpace(oS.Driver), strings.TrimSpace(nS.Driver)) ||
		strings.TrimSpace(oS.Path) != strings.TrimSpace(nS.Path) ||
		strings.TrimSpace(oS.BusyTimeout) != strings.TrimSpace(nS.BusyTimeout) ||
		strings.TrimSpace(oS.Addr) != strings.TrimSpace(nS.Addr) ||
		oS.DB != nS.DB ||
		oS.Password != nS.Password {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", strings.TrimSpace(nS.Driver)),
			logx.Bool("storage.path_set", strings.TrimSpace(nS.Path) != ""),
			logx.Bool("storage.addr_set", strings.TrimSpace(nS.Addr) != ""),
			logx.Bool("storage.password_set", nS.Password != ""),
		)
	}

	if oldCfg.Poll.Limits != newCfg.Poll.Limits || !reflect.DeepEqual(oldCfg.Poll.Defaults, newCfg.Poll.Defaults) {
		changed = append(changed, "poll")
		attrs = append(attrs,
			logx.Int("poll.max_options", newCfg.Poll.Limits.MaxOptions),
			logx.Int("poll.defaults_count", len(newCfg.Poll.Defaults)),
		)
	}

	if oldCfg.Scheduler != newCfg.Scheduler {
		changed = append(changed, "scheduler")
		attrs = append(attrs,
			logx.String("scheduler.timezone", strings.TrimSpace(newCfg.Scheduler.Timezone)),
			logx.Int("scheduler.init_rate_per_sec", newCfg.Scheduler.InitRatePerSec),
			logx.String("scheduler.close_timeout", strings.TrimSpace(newCfg.Scheduler.CloseTimeout)),
		)
	}

	if oldCfg.Translations != newCfg.Translations {
		changed = append(changed, "translations")
		attrs = append(attrs,
			logx.String("translations.dir", strings.TrimSpace(newCfg.Translations.Dir)),
			logx.String("translations.fallback", strings.TrimSpace(newCfg.Translations.Fallback)),
		)
	}

	if oldCfg.Debug != newCfg.Debug {
		changed = append(changed, "debug")
		attrs = append(attrs,
			logx.Bool("debug.enabled", newCfg.Debug.Enabled),
			logx.String("debug.addr", strings.TrimSpace(newCfg.Debug.Addr)),
			logx.Bool("debug.token_set", newCfg.Debug.Token != ""),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}

// RestartRequired reports which changed sections only take effect after a
// restart.
func RestartRequired(sections []string) []string {
	var out []string
	for _, s := range sections {
		switch s {
		case "debug", "storage", "translations":
			out = append(out, s)
		}
	}
	return out
}
