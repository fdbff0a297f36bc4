// Package cli parses command-line arguments into a runtime configuration.
package cli

import (
	"flag"
	"fmt"
	"io"
	"log/slog"

	"github.com/vk/flowgridgo/internal/config"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// Parse processes command-line arguments. It returns a populated Config, a
// boolean indicating if the program should exit cleanly, or an ExitError.
func Parse(args []string, output io.Writer) (*config.Config, bool, error) {
	slog.Debug("CLI parser started.")
	flagSet := flag.NewFlagSet("flowgridgo", flag.ContinueOnError)
	flagSet.SetOutput(output)

	flagSet.Usage = func() {
		fmt.Fprint(output, `
flowgridgo - a workflow graph execution runtime with live streaming.

Usage:
  flowgridgo [options]

Options:
`)
		flagSet.PrintDefaults()
	}

	addrFlag := flagSet.String("addr", config.DefaultAddr, "HTTP listen address.")
	logFormatFlag := flagSet.String("log-format", "json", "Log output format. Options: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	workersFlag := flagSet.Int("workers", 0, "Number of concurrent capability workers. 0 uses the default.")
	graphsFlag := flagSet.String("graphs", "", "Path to a .hcl graph file or a directory of .hcl graph files to register at startup.")

	if err := flagSet.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	slog.Debug("Arguments parsed successfully.")

	cfg, err := config.New(config.Config{
		Addr:       *addrFlag,
		LogFormat:  *logFormatFlag,
		LogLevel:   *logLevelFlag,
		Workers:    *workersFlag,
		GraphsPath: *graphsFlag,
	})
	if err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	slog.Debug("CLI parser finished successfully.", "addr", cfg.Addr)
	return cfg, false, nil
}
