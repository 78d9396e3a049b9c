// SPDX-License-Identifier: MPL-2.0

// Package cmd contains all CLI commands for lazymod.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"syscall"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"

	"github.com/lazymod/lazymod/internal/config"
	"github.com/lazymod/lazymod/pkg/types"
)

var (
	// Version is the semantic version (set via -ldflags).
	Version = "dev"
	// Commit is the git commit hash (set via -ldflags).
	Commit = "unknown"
	// BuildDate is the build timestamp (set via -ldflags).
	BuildDate = "unknown"
)

type (
	// App wires CLI services and shared dependencies. Every command handler
	// receives an App and reads configuration through it.
	App struct {
		Config config.Provider
		stdout io.Writer
		stderr io.Writer
	}

	// Dependencies defines the injection points for building an App. Nil
	// fields are replaced with production defaults by NewApp.
	Dependencies struct {
		Config config.Provider
		Stdout io.Writer
		Stderr io.Writer
	}

	// rootFlags are the persistent flags shared by every subcommand.
	rootFlags struct {
		configPath string
		projectDir string
		verbose    bool
	}
)

// NewApp creates an App, filling unset dependencies with defaults.
func NewApp(deps Dependencies) *App {
	app := &App{Config: deps.Config, stdout: deps.Stdout, stderr: deps.Stderr}
	if app.Config == nil {
		app.Config = config.NewProvider()
	}
	if app.stdout == nil {
		app.stdout = os.Stdout
	}
	if app.stderr == nil {
		app.stderr = os.Stderr
	}
	return app
}

// NewRootCommand builds the lazymod command tree.
func NewRootCommand(app *App) *cobra.Command {
	flags := &rootFlags{}
	root := &cobra.Command{
		Use:   "lazymod",
		Short: "An on-demand JavaScript module runtime",
		Long: TitleStyle.Render("lazymod") + SubtitleStyle.Render(" - An on-demand JavaScript module runtime") + `

lazymod loads ES modules, TypeScript and JSX the moment they are imported.
Modules are compiled once, executed once and kept in a module map until a
change purges them together with everything that depends on them.

` + SubtitleStyle.Render("Examples:") + `
  lazymod run src/main.ts                 Load an entry and list its exports
  lazymod run src/main.ts --call start    Call an exported function
  lazymod run src/main.ts --watch         Re-run whenever a loaded file changes
  lazymod graph src/main.ts               Show the module graph
  lazymod config show                     Show the effective configuration`,
		SilenceUsage: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "", "config file (default is ./"+config.ConfigFileName+")")
	pf.StringVarP(&flags.projectDir, "dir", "C", "", "project directory searched for "+config.ConfigFileName)
	pf.BoolVarP(&flags.verbose, "verbose", "v", false, "enable debug logging and detailed errors")

	root.AddCommand(
		newRunCommand(app, flags),
		newGraphCommand(app, flags),
		newBuiltinsCommand(app, flags),
		newConfigCommand(app, flags),
	)
	root.SetOut(app.stdout)
	root.SetErr(app.stderr)
	return root
}

// getVersionString returns a formatted version string for display.
func getVersionString() string {
	if Version == "dev" {
		return "dev (built from source)"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate)
}

// Execute runs the CLI with the process arguments and exits.
// This is called by main.main().
func Execute() {
	os.Exit(run(context.Background(), NewApp(Dependencies{}), os.Args[1:]))
}

// run executes the command tree and returns the process exit code.
func run(ctx context.Context, app *App, args []string) int {
	root := NewRootCommand(app)
	root.SetArgs(args)
	if err := fang.Execute(
		ctx,
		root,
		fang.WithVersion(getVersionString()),
		fang.WithNotifySignal(os.Interrupt, syscall.SIGTERM),
	); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			if exitErr.Code.Validate() != nil {
				return int(types.ExitFailure)
			}
			return int(exitErr.Code)
		}
		return 1
	}
	return 0
}

// loadConfig loads configuration honouring the persistent flags.
func (app *App) loadConfig(ctx context.Context, flags *rootFlags) (*config.Config, error) {
	return app.Config.Load(ctx, config.LoadOptions{
		ConfigFilePath: flags.configPath,
		ProjectDir:     flags.projectDir,
	})
}
