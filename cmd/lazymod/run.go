// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/lazymod/lazymod/internal/graph"
	"github.com/lazymod/lazymod/internal/issue"
	"github.com/lazymod/lazymod/internal/loader"
	"github.com/lazymod/lazymod/internal/watch"
)

// runFlags are the flags of `lazymod run`.
type runFlags struct {
	call    string
	args    []string
	watch   bool
	json    bool
	timeout time.Duration
}

func newRunCommand(app *App, root *rootFlags) *cobra.Command {
	flags := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run <entry>",
		Short: "Load an entry module and optionally call one of its exports",
		Long: `Load an entry module and everything it imports.

Without --call the export names of the entry are printed. With --call the
named export is invoked with the --arg values; a returned promise is
settled before its value is printed. --watch keeps the module map alive and
re-runs the entry whenever a loaded file changes, purging only the changed
modules and their importers.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.runEntry(cmd.Context(), root, flags, args[0])
		},
	}
	cmd.Flags().StringVar(&flags.call, "call", "", "exported function to call after loading")
	cmd.Flags().StringArrayVar(&flags.args, "arg", nil, "argument for --call, parsed as JSON when possible (repeatable)")
	cmd.Flags().BoolVarP(&flags.watch, "watch", "w", false, "purge and re-run when a loaded file changes")
	cmd.Flags().BoolVar(&flags.json, "json", false, "print the result as JSON")
	cmd.Flags().DurationVar(&flags.timeout, "timeout", 0, "override the configured resolve timeout")
	return cmd
}

func (app *App) runEntry(ctx context.Context, root *rootFlags, flags *runFlags, entry string) error {
	cfg, err := app.loadConfig(ctx, root)
	if err != nil {
		return app.fail(err, root.verbose)
	}
	logger := newLogger(app.stderr, cfg.Log, root.verbose)
	if flags.timeout > 0 {
		cfg.Timeout = flags.timeout
	}

	var (
		l       *loader.Loader
		watcher *watch.Watcher
		opts    = loader.Options{Logger: logger}
	)
	entry = entrySpec(entry)
	args := parseArgs(flags.args)
	evaluate := func(ctx context.Context) error {
		out, err := evaluateEntry(ctx, l, entry, flags, args)
		if err != nil {
			return err
		}
		fmt.Fprintln(app.stdout, out)
		return nil
	}

	if flags.watch {
		watcher, err = watch.New(watch.Config{
			Ignore:   cfg.Watch.Ignore,
			Debounce: cfg.Watch.Debounce,
			Logger:   logger,
			OnChange: func(ctx context.Context, changed []string) error {
				for _, file := range changed {
					res := l.PurgeFile(file, graph.PurgeOptions{})
					logger.Info("module purged", "file", file, "invalidated", len(res.Visited), "accepted", len(res.Accepted))
				}
				if err := evaluate(ctx); err != nil {
					app.report(err, root.verbose)
				}
				return nil
			},
		})
		if err != nil {
			return app.fail(err, root.verbose)
		}
		opts.WatchFile = watcher.Watch
	}

	l, err = loader.NewFromConfig(cfg, opts)
	if err != nil {
		return app.fail(err, root.verbose)
	}

	err = evaluate(ctx)
	if watcher == nil {
		if err != nil {
			return app.fail(err, root.verbose)
		}
		return nil
	}
	if err != nil {
		app.report(err, root.verbose)
	}
	logger.Info("watching for changes", "files", len(watcher.Watched()))
	return watcher.Run(ctx)
}

// evaluateEntry resolves entry and renders either its export names, its
// JSON form or the result of calling flags.call.
func evaluateEntry(ctx context.Context, l *loader.Loader, entry string, flags *runFlags, args []any) (string, error) {
	start := time.Now()
	exp, err := l.Resolve(ctx, entry, "", false)
	if err != nil {
		return "", issue.WrapWithContext(err, "load module", entry)
	}
	slog.Debug("entry loaded", "module", exp.ID(), "took", time.Since(start))

	if flags.call == "" {
		if flags.json {
			data, err := exp.JSON()
			return string(data), err
		}
		return TitleStyle.Render("exports:") + " " + strings.Join(exp.Keys(), ", "), nil
	}

	v, err := exp.Call(ctx, flags.call, args...)
	if err != nil {
		return "", issue.WrapWithOperation(err, "call export "+flags.call)
	}
	return formatValue(v, flags.json)
}

// entrySpec turns an existing path into an absolute identifier so the
// entry resolves against the working directory rather than the configured
// root. Anything else is passed to the resolver unchanged.
func entrySpec(entry string) string {
	if strings.Contains(entry, "://") {
		return entry
	}
	if _, err := os.Stat(entry); err != nil {
		return entry
	}
	abs, err := filepath.Abs(entry)
	if err != nil {
		return entry
	}
	return abs
}

// parseArgs decodes each --arg as JSON, falling back to the raw string.
func parseArgs(raw []string) []any {
	args := make([]any, len(raw))
	for i, s := range raw {
		var v any
		if err := json.Unmarshal([]byte(s), &v); err != nil {
			v = s
		}
		args[i] = v
	}
	return args
}

func formatValue(v any, asJSON bool) (string, error) {
	if s, ok := v.(string); ok && !asJSON {
		return s, nil
	}
	if v == nil && !asJSON {
		return "undefined", nil
	}
	var (
		data []byte
		err  error
	)
	if asJSON {
		data, err = json.MarshalIndent(v, "", "  ")
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return fmt.Sprint(v), nil
	}
	return string(data), nil
}
