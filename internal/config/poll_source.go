package config

import "forumpoll/internal/poll"

// PollSource exposes the poll section of the live config to the parser.
// Every call reads the currently committed config, so hot reloads apply to
// the next parsed post.
type PollSource struct {
	m *ConfigManager
}

func NewPollSource(m *ConfigManager) PollSource { return PollSource{m: m} }

func (s PollSource) MaxOptions() int {
	if s.m == nil {
		return DefaultMaxOptions
	}
	cfg := s.m.Get()
	if cfg == nil || cfg.Poll.Limits.MaxOptions <= 0 {
		return DefaultMaxOptions
	}
	return cfg.Poll.Limits.MaxOptions
}

// DefaultSettings returns the built-in defaults overlaid with poll.defaults.
// The parser copies the result before mutating it.
func (s PollSource) DefaultSettings() poll.Settings {
	out := poll.Settings(DefaultPollSettings())
	if s.m == nil {
		return out
	}
	cfg := s.m.Get()
	if cfg == nil {
		return out
	}
	for k, v := range cfg.Poll.Defaults {
		out[k] = v
	}
	return out
}
