// Package config holds the validated runtime configuration of the server
// process.
package config

import (
	"fmt"
	"strings"

	"github.com/vk/flowgridgo/internal/worker"
)

// DefaultAddr is the listen address used when none is configured.
const DefaultAddr = ":8000"

// Config is the full application configuration.
type Config struct {
	// Addr is the HTTP listen address.
	Addr string
	// LogFormat is "text" or "json".
	LogFormat string
	// LogLevel is one of debug, info, warn, error.
	LogLevel string
	// Workers is the capability worker pool size.
	Workers int
	// GraphsPath optionally points at a file or directory of .hcl graph
	// definitions registered at startup.
	GraphsPath string
}

// New validates and normalizes a Config.
func New(cfg Config) (*Config, error) {
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}

	cfg.LogFormat = strings.ToLower(cfg.LogFormat)
	switch cfg.LogFormat {
	case "":
		cfg.LogFormat = "json"
	case "text", "json":
	default:
		return nil, fmt.Errorf("invalid log-format %q: must be 'text' or 'json'", cfg.LogFormat)
	}

	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	switch cfg.LogLevel {
	case "":
		cfg.LogLevel = "info"
	case "debug", "info", "warn", "error":
	default:
		return nil, fmt.Errorf("invalid log-level %q: must be 'debug', 'info', 'warn', or 'error'", cfg.LogLevel)
	}

	if cfg.Workers < 0 {
		return nil, fmt.Errorf("invalid workers %d: must not be negative", cfg.Workers)
	}
	if cfg.Workers == 0 {
		cfg.Workers = worker.DefaultSize
	}

	return &cfg, nil
}
