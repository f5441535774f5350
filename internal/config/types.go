package config

type Config struct {
	Logging LoggingConfig `json:"logging"`

	// Storage is optional; nil (or driver "none") disables persistence, which
	// only makes sense for the offline CLI commands.
	Storage *StorageConfig `json:"storage,omitempty"`

	Poll         PollConfig         `json:"poll"`
	Scheduler    SchedulerConfig    `json:"scheduler"`
	Translations TranslationsConfig `json:"translations,omitempty"`
	Debug        DebugConfig        `json:"debug,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	Format  string      `json:"format,omitempty"` // console format: "text" (default) or "json"
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// StorageConfig controls the persistence layer.
//
// Examples:
//
//	"storage": { "driver": "file", "path": "./data/forumpoll" }
//	"storage": { "driver": "sqlite", "path": "./data/forumpoll.db", "busy_timeout": "2s" }
//	"storage": { "driver": "redis", "addr": "127.0.0.1:6379", "db": 0 }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)

	// Redis only. Password is never logged.
	Addr     string `json:"addr,omitempty"`
	Password string `json:"password,omitempty"`
	DB       int    `json:"db,omitempty"`
}

// PollConfig holds the settings read by the markup parser on every call, so
// a hot reload changes them without a restart.
type PollConfig struct {
	Limits PollLimits `json:"limits"`
	// Defaults is merged under every extracted settings map. Keys are the
	// canonical setting names (maxvotes, title, end).
	Defaults map[string]string `json:"defaults,omitempty"`
}

type PollLimits struct {
	// MaxOptions caps the number of options per poll (default 10).
	MaxOptions int `json:"max_options"`
}

// SchedulerConfig controls the expiry scheduler.
type SchedulerConfig struct {
	// Timezone only affects how fire times are rendered in logs and snapshots.
	Timezone string `json:"timezone,omitempty"`

	// InitRatePerSec paces storage lookups while rehydrating jobs at startup.
	// 0 means unlimited.
	InitRatePerSec int `json:"init_rate_per_sec,omitempty"`

	// CloseTimeout bounds a single storage close issued by a firing job.
	// Go duration string, default "10s".
	CloseTimeout string `json:"close_timeout,omitempty"`
}

type TranslationsConfig struct {
	Dir      string `json:"dir,omitempty"`
	Fallback string `json:"fallback,omitempty"` // default "en_GB"
}

// DebugConfig controls the operator HTTP endpoints (health, pending jobs,
// pprof). A non-loopback addr requires a token.
type DebugConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"` // default "127.0.0.1:6060"
	Token   string `json:"token,omitempty"`
}

// Built-in defaults, applied when the config omits them.
const (
	DefaultMaxOptions = 10
	DefaultLanguage   = "en_GB"
)

// DefaultPollSettings returns a fresh copy of the built-in poll defaults.
func DefaultPollSettings() map[string]string {
	return map[string]string{
		"title":    "Poll",
		"maxvotes": "1",
		"end":      "0",
	}
}
