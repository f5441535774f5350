// Package logx is forumpoll's structured logger: a thin layer over zerolog
// whose sinks and level can be swapped while the daemon runs.
//
// Loggers derived from a Service follow its current configuration, so a
// config reload reaches every component without re-plumbing. The console
// sink is human readable by default and switches to JSON lines with
// Format "json" (useful under journald). The file sink is always JSON.
package logx
