// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/lazymod/lazymod/internal/dataimport"
	"github.com/lazymod/lazymod/internal/issue"
	"github.com/lazymod/lazymod/internal/loader"
	"github.com/lazymod/lazymod/internal/rewrite"
	"github.com/lazymod/lazymod/pkg/types"
)

// ExitError signals a non-zero exit code without forcing os.Exit in RunE handlers.
type ExitError struct {
	Code types.ExitCode
	Err  error
}

// Error returns the error message for ExitError.
func (e *ExitError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("exit status %d", e.Code)
}

// Unwrap returns the underlying error, if any.
func (e *ExitError) Unwrap() error {
	return e.Err
}

// classifyError maps a loader or configuration error to an exit code and
// the catalog entry that explains it. Wrapped causes are checked before the
// errors that wrap them.
func classifyError(err error) (types.ExitCode, issue.Id) {
	var (
		status *loader.RemoteStatusError
		ae     *issue.ActionableError
	)
	switch {
	case errors.Is(err, loader.ErrTimeout):
		return types.ExitTimeout, issue.ResolveTimeoutId
	case errors.Is(err, rewrite.ErrUnsupportedSyntax):
		return types.ExitCompile, issue.UnsupportedSyntaxId
	case errors.Is(err, loader.ErrRemoteDisabled), errors.Is(err, loader.ErrRemoteTooLarge), errors.As(err, &status):
		return types.ExitCompile, issue.RemoteImportFailedId
	case errors.Is(err, dataimport.ErrUnsupportedFormat):
		return types.ExitCompile, issue.DataImportFailedId
	case errors.Is(err, loader.ErrCompile):
		return types.ExitCompile, issue.CompileFailedId
	case errors.Is(err, loader.ErrModuleNotFound):
		return types.ExitNotFound, issue.ModuleNotFoundId
	case errors.Is(err, loader.ErrExportNotFound):
		return types.ExitFailure, issue.ExportNotFoundId
	case errors.Is(err, loader.ErrExecution):
		return types.ExitFailure, issue.ExecutionFailedId
	case errors.As(err, &ae):
		if ci := ae.CatalogIssue(); ci != nil {
			return types.ExitFailure, ci.Id()
		}
	}
	return types.ExitFailure, 0
}

// formatErrorForDisplay formats an error for user display. Actionable
// errors carry suggestions; verbose mode adds the full error chain.
func formatErrorForDisplay(err error, verbose bool) string {
	var ae *issue.ActionableError
	if errors.As(err, &ae) {
		return ae.Format(verbose)
	}
	return err.Error()
}

// fail classifies err, renders the matching catalog entry to stderr in
// verbose mode and returns the ExitError for the command to return.
func (app *App) fail(err error, verbose bool) error {
	code, id := classifyError(err)
	slog.Debug("command failed", "exit", code.Label(), "issueID", id)
	if verbose {
		renderIssue(app.stderr, id)
	}
	return &ExitError{Code: code, Err: errors.New(formatErrorForDisplay(err, verbose))}
}

// report prints err without ending the command; watch mode keeps running
// after a failed reload.
func (app *App) report(err error, verbose bool) {
	_, id := classifyError(err)
	fmt.Fprintln(app.stderr, ErrorStyle.Render("error: ")+formatErrorForDisplay(err, verbose))
	if verbose {
		renderIssue(app.stderr, id)
	}
}

func renderIssue(w io.Writer, id issue.Id) {
	if id == 0 {
		return
	}
	entry := issue.Get(id)
	if entry == nil {
		return
	}
	rendered, err := entry.Render("dark")
	if err != nil {
		slog.Warn("failed to render issue catalog entry", "issueID", id, "error", err)
		return
	}
	fmt.Fprint(w, rendered)
}
