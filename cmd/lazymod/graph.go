// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/lazymod/lazymod/internal/graph"
	"github.com/lazymod/lazymod/internal/issue"
	"github.com/lazymod/lazymod/internal/loader"
	"github.com/lazymod/lazymod/pkg/types"
)

func newGraphCommand(app *App, root *rootFlags) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "graph <entry>...",
		Short: "Load entry modules and print the module graph",
		Long: `Load one or more entry modules concurrently and print every module in
the module map in dependency order. Import cycles are printed as one group.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.showGraph(cmd.Context(), root, args, asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print module records as JSON")
	return cmd
}

func newBuiltinsCommand(app *App, root *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "builtins",
		Short: "List the Go builtin modules available to require() and native: imports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := app.loadConfig(cmd.Context(), root)
			if err != nil {
				return app.fail(err, root.verbose)
			}
			l, err := loader.NewFromConfig(cfg, loader.Options{Logger: newLogger(app.stderr, cfg.Log, root.verbose)})
			if err != nil {
				return app.fail(err, root.verbose)
			}
			for _, name := range l.Builtins() {
				fmt.Fprintln(app.stdout, name)
			}
			return nil
		},
	}
}

func (app *App) showGraph(ctx context.Context, root *rootFlags, entries []string, asJSON bool) error {
	cfg, err := app.loadConfig(ctx, root)
	if err != nil {
		return app.fail(err, root.verbose)
	}
	logger := newLogger(app.stderr, cfg.Log, root.verbose)
	l, err := loader.NewFromConfig(cfg, loader.Options{Logger: logger})
	if err != nil {
		return app.fail(err, root.verbose)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, entry := range entries {
		spec := entrySpec(entry)
		g.Go(func() error {
			_, err := l.Resolve(gctx, spec, "", false)
			return err
		})
	}
	loadErr := g.Wait()

	if asJSON {
		data, err := json.MarshalIndent(l.Snapshot(), "", "  ")
		if err != nil {
			return app.fail(err, root.verbose)
		}
		fmt.Fprintln(app.stdout, string(data))
	} else {
		order := l.Order()
		writeGraph(app.stdout, cfg.Root, l.Snapshot(), order)
		for _, group := range order {
			if len(group) > 1 {
				logger.Warn("import cycle", "modules", len(group), "issue", int(issue.DependencyCycleId))
			}
		}
	}
	if loadErr != nil {
		return app.fail(loadErr, root.verbose)
	}
	return nil
}

// writeGraph prints the dependency-order groups with each module's state
// and direct imports. Identifiers under root are shown relative to it.
func writeGraph(w io.Writer, root string, infos []graph.ModuleInfo, order [][]types.ModuleID) {
	byID := make(map[types.ModuleID]graph.ModuleInfo, len(infos))
	for _, info := range infos {
		byID[info.ID] = info
	}
	display := func(id types.ModuleID) string {
		if rel, err := filepath.Rel(root, string(id)); err == nil && filepath.IsAbs(string(id)) && !strings.HasPrefix(rel, "..") {
			return filepath.ToSlash(rel)
		}
		return string(id)
	}

	fmt.Fprintln(w, TitleStyle.Render("Module graph")+SubtitleStyle.Render(fmt.Sprintf(" (%d modules)", len(infos))))
	for i, group := range order {
		header := fmt.Sprintf("%d.", i+1)
		if len(group) > 1 {
			header += WarningStyle.Render(" cycle")
		}
		fmt.Fprintln(w, header)
		for _, id := range group {
			info := byID[id]
			state := info.State
			if info.Kind == "linked" {
				state = "linked"
			}
			line := IDStyle.Render(display(id)) + " " + stateStyle(state).Render("["+state+"]")
			if len(info.Imports) > 0 {
				deps := make([]string, len(info.Imports))
				for k, dep := range info.Imports {
					deps[k] = display(dep)
				}
				line += SubtitleStyle.Render(" <- " + strings.Join(deps, ", "))
			}
			if info.Error != "" {
				line += " " + ErrorStyle.Render(info.Error)
			}
			fmt.Fprintln(w, groupStyle.Render(line))
		}
	}
}
