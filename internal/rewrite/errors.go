// SPDX-License-Identifier: MPL-2.0

package rewrite

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnsupportedSyntax is the sentinel for module syntax the rewriter
	// refuses to lower.
	ErrUnsupportedSyntax = errors.New("unsupported module syntax")

	// ErrTransform is the sentinel for esbuild lowering failures.
	ErrTransform = errors.New("module transform failed")
)

type (
	// UnsupportedSyntaxError names the module, the position of the offending
	// statement and the reason it was rejected.
	UnsupportedSyntaxError struct {
		ID     string
		Line   int
		Column int
		Reason string
	}

	// TransformError carries the diagnostics esbuild reported for a module.
	TransformError struct {
		ID       string
		Messages []Message
	}

	// Message is a single diagnostic with a 1-based line and column.
	Message struct {
		Text   string
		Line   int
		Column int
	}
)

func (e *UnsupportedSyntaxError) Error() string {
	return fmt.Sprintf("%s:%d:%d: %s", e.ID, e.Line, e.Column, e.Reason)
}

func (e *UnsupportedSyntaxError) Unwrap() error { return ErrUnsupportedSyntax }

func (e *TransformError) Error() string {
	if len(e.Messages) == 0 {
		return fmt.Sprintf("transform %s: unknown error", e.ID)
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "transform %s:", e.ID)
	for _, m := range e.Messages {
		if m.Line > 0 {
			fmt.Fprintf(&sb, "\n  %d:%d: %s", m.Line, m.Column, m.Text)
		} else {
			fmt.Fprintf(&sb, "\n  %s", m.Text)
		}
	}
	return sb.String()
}

func (e *TransformError) Unwrap() error { return ErrTransform }
