// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"fmt"
	"testing"

	"github.com/lazymod/lazymod/internal/issue"
	"github.com/lazymod/lazymod/internal/loader"
	"github.com/lazymod/lazymod/internal/rewrite"
	"github.com/lazymod/lazymod/pkg/types"
)

func TestClassifyError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      error
		wantCode types.ExitCode
		wantID   issue.Id
	}{
		{
			name:     "not found",
			err:      &loader.NotFoundError{Spec: "./gone.js", Importer: "/app/main.js"},
			wantCode: types.ExitNotFound,
			wantID:   issue.ModuleNotFoundId,
		},
		{
			name:     "unsupported syntax beats compile",
			err:      &loader.CompileError{ID: "/app/main.js", Err: &rewrite.UnsupportedSyntaxError{ID: "/app/main.js", Line: 1, Column: 1, Reason: "multiple declarators"}},
			wantCode: types.ExitCompile,
			wantID:   issue.UnsupportedSyntaxId,
		},
		{
			name:     "compile",
			err:      &loader.CompileError{ID: "/app/main.ts", Err: errors.New("bad token")},
			wantCode: types.ExitCompile,
			wantID:   issue.CompileFailedId,
		},
		{
			name:     "remote disabled",
			err:      &loader.CompileError{ID: "https://x.test/a.js", Err: loader.ErrRemoteDisabled},
			wantCode: types.ExitCompile,
			wantID:   issue.RemoteImportFailedId,
		},
		{
			name:     "export not found inside execution",
			err:      &loader.ExecutionError{ID: "/app/main.js", Err: &loader.ExportNotFoundError{Module: "/app/lib.js", Name: "x"}},
			wantCode: types.ExitFailure,
			wantID:   issue.ExportNotFoundId,
		},
		{
			name:     "execution",
			err:      &loader.ExecutionError{ID: "/app/main.js", Err: errors.New("boom")},
			wantCode: types.ExitFailure,
			wantID:   issue.ExecutionFailedId,
		},
		{
			name:     "timeout",
			err:      fmt.Errorf("entry: %w", &loader.TimeoutError{Spec: "./slow.js"}),
			wantCode: types.ExitTimeout,
			wantID:   issue.ResolveTimeoutId,
		},
		{
			name:     "config",
			err:      issue.NewErrorContext().WithOperation("load configuration").WithIssue(issue.ConfigLoadFailedId).Wrap(errors.New("bad cue")).BuildError(),
			wantCode: types.ExitFailure,
			wantID:   issue.ConfigLoadFailedId,
		},
		{
			name:     "unknown",
			err:      errors.New("something else"),
			wantCode: types.ExitFailure,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			code, id := classifyError(tt.err)
			if code != tt.wantCode || id != tt.wantID {
				t.Errorf("classifyError() = (%v, %v), want (%v, %v)", code, id, tt.wantCode, tt.wantID)
			}
		})
	}
}

func TestExitErrorUnwrap(t *testing.T) {
	t.Parallel()

	inner := errors.New("inner")
	err := &ExitError{Code: types.ExitCompile, Err: inner}
	if !errors.Is(err, inner) {
		t.Error("errors.Is(ExitError, inner) = false")
	}
	if got := (&ExitError{Code: types.ExitTimeout}).Error(); got != "exit status 4" {
		t.Errorf("Error() = %q, want %q", got, "exit status 4")
	}
}
