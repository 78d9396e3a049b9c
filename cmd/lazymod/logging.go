// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"io"
	"log/slog"

	"github.com/charmbracelet/log"

	"github.com/lazymod/lazymod/internal/config"
)

// newLogger builds the slog logger used by the loader, the watcher and
// module console output. Records are rendered by charmbracelet/log.
func newLogger(w io.Writer, cfg config.LogConfig, verbose bool) *slog.Logger {
	level, err := log.ParseLevel(string(cfg.Level))
	if err != nil {
		level = log.InfoLevel
	}
	if verbose {
		level = log.DebugLevel
	}

	opts := log.Options{Level: level, Prefix: "lazymod"}
	if cfg.Format == config.LogFormatJSON {
		opts.Formatter = log.JSONFormatter
		opts.ReportTimestamp = true
	}
	logger := slog.New(log.NewWithOptions(w, opts))
	slog.SetDefault(logger)
	return logger
}
