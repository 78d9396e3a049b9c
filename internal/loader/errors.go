// SPDX-License-Identifier: MPL-2.0

package loader

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dop251/goja"

	"github.com/lazymod/lazymod/pkg/types"
)

var (
	// ErrModuleNotFound is returned when a specifier resolves to nothing.
	ErrModuleNotFound = errors.New("module not found")
	// ErrCompile is returned when a module cannot be transformed, rewritten
	// or compiled.
	ErrCompile = errors.New("module compile failed")
	// ErrExecution is returned when module code throws.
	ErrExecution = errors.New("module execution failed")
	// ErrTimeout is returned when a caller's wait exceeds Options.Timeout.
	ErrTimeout = errors.New("module resolution timed out")
	// ErrExportNotFound is returned when code reads a name a module does not
	// export.
	ErrExportNotFound = errors.New("export not found")
	// ErrRemoteDisabled is returned for URL imports without a Fetcher.
	ErrRemoteDisabled = errors.New("remote imports are disabled")
	// ErrNotCallable is returned by Exports.Call for non-function exports.
	ErrNotCallable = errors.New("export is not a function")
)

type (
	// NotFoundError reports a specifier that resolved to no module.
	NotFoundError struct {
		Spec     string
		Importer string
	}

	// CompileError wraps a transform, rewrite or compile failure.
	CompileError struct {
		ID  types.ModuleID
		Err error
	}

	// ExecutionError reports an exception thrown while a module executed.
	// Chain lists the modules that were executing, outermost first.
	ExecutionError struct {
		ID    types.ModuleID
		Chain []types.ModuleID
		Err   error
	}

	// TimeoutError reports an abandoned wait. The work itself continues and
	// populates the module map.
	TimeoutError struct {
		Spec     string
		Importer string
		After    time.Duration
		// Pending lists this request's modules still executing, outermost
		// first, then modules still compiling.
		Pending []types.ModuleID
		// Waiting reports that the request never acquired the runtime.
		Waiting bool
		// Busy is the chain of the request holding the runtime while this
		// one waited.
		Busy []types.ModuleID
	}

	// ExportNotFoundError reports a read of a missing export.
	ExportNotFoundError struct {
		Module    types.ModuleID
		Name      string
		Available []string
	}
)

func (e *NotFoundError) Error() string {
	if e.Importer == "" {
		return fmt.Sprintf("cannot find module %q", e.Spec)
	}
	return fmt.Sprintf("cannot find module %q imported from %s", e.Spec, e.Importer)
}

// Unwrap returns ErrModuleNotFound.
func (e *NotFoundError) Unwrap() error { return ErrModuleNotFound }

func (e *CompileError) Error() string {
	return fmt.Sprintf("compiling %s: %v", e.ID, e.Err)
}

// Unwrap returns ErrCompile and the underlying failure.
func (e *CompileError) Unwrap() []error { return []error{ErrCompile, e.Err} }

func (e *ExecutionError) Error() string {
	msg := fmt.Sprintf("executing %s: %s", e.ID, exceptionMessage(e.Err))
	if len(e.Chain) > 1 {
		msg += " (import chain: " + joinIDs(e.Chain, " -> ") + ")"
	}
	return msg
}

// Unwrap returns ErrExecution and the underlying failure.
func (e *ExecutionError) Unwrap() []error { return []error{ErrExecution, e.Err} }

func (e *TimeoutError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "resolving %q", e.Spec)
	if e.Importer != "" {
		fmt.Fprintf(&sb, " from %s", e.Importer)
	}
	fmt.Fprintf(&sb, " did not finish within %s", e.After)
	if len(e.Pending) > 0 {
		sb.WriteString("; still loading: " + joinIDs(e.Pending, ", "))
	}
	if e.Waiting {
		sb.WriteString("; runtime busy")
		if len(e.Busy) > 0 {
			sb.WriteString(" with " + joinIDs(e.Busy, " -> "))
		}
	}
	return sb.String()
}

// Unwrap returns ErrTimeout.
func (e *TimeoutError) Unwrap() error { return ErrTimeout }

func (e *ExportNotFoundError) Error() string {
	msg := fmt.Sprintf("module %s has no export named %q", e.Module, e.Name)
	if len(e.Available) > 0 {
		msg += " (available: " + strings.Join(e.Available, ", ") + ")"
	}
	return msg
}

// Unwrap returns ErrExportNotFound.
func (e *ExportNotFoundError) Unwrap() error { return ErrExportNotFound }

// hostError extracts the Go error carried by a JavaScript exception that was
// raised from Go with NewGoError.
func hostError(err error) error {
	var ex *goja.Exception
	if !errors.As(err, &ex) {
		return nil
	}
	obj, ok := ex.Value().(*goja.Object)
	if !ok {
		return nil
	}
	v := obj.Get("value")
	if v == nil {
		return nil
	}
	inner, _ := v.Export().(error)
	return inner
}

// exceptionMessage renders JavaScript exceptions with their stack.
func exceptionMessage(err error) string {
	var ex *goja.Exception
	if errors.As(err, &ex) {
		return strings.TrimSpace(ex.String())
	}
	return err.Error()
}

func joinIDs(ids []types.ModuleID, sep string) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = string(id)
	}
	return strings.Join(parts, sep)
}
