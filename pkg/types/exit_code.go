// SPDX-License-Identifier: MPL-2.0

package types

import (
	"errors"
	"fmt"
	"strconv"
)

// Process exit codes reported by the lazymod CLI. Each failure class of the
// loader maps to exactly one code so scripts can branch on them.
const (
	// ExitOK means the entry module loaded and the requested export ran.
	ExitOK ExitCode = 0
	// ExitFailure covers errors thrown by module code and unclassified errors.
	ExitFailure ExitCode = 1
	// ExitNotFound means the entry module or one of its imports did not resolve.
	ExitNotFound ExitCode = 2
	// ExitCompile means a module could not be transformed, rewritten or fetched.
	ExitCompile ExitCode = 3
	// ExitTimeout means resolving the entry exceeded the configured timeout.
	ExitTimeout ExitCode = 4
)

// ErrInvalidExitCode is the sentinel error wrapped by InvalidExitCodeError.
var ErrInvalidExitCode = errors.New("invalid exit code")

type (
	// ExitCode is a process exit status in the POSIX range 0-255.
	ExitCode int

	// InvalidExitCodeError is returned when an ExitCode cannot be passed to os.Exit.
	InvalidExitCodeError struct {
		Value ExitCode
	}
)

var exitCodeLabels = map[ExitCode]string{
	ExitOK:       "ok",
	ExitFailure:  "failure",
	ExitNotFound: "not-found",
	ExitCompile:  "compile",
	ExitTimeout:  "timeout",
}

// Error implements the error interface.
func (e *InvalidExitCodeError) Error() string {
	return fmt.Sprintf("invalid exit code %d (must be in range 0-255)", e.Value)
}

// Unwrap returns ErrInvalidExitCode.
func (e *InvalidExitCodeError) Unwrap() error { return ErrInvalidExitCode }

// Validate reports whether c fits the POSIX exit status range.
func (c ExitCode) Validate() error {
	if c < 0 || c > 255 {
		return &InvalidExitCodeError{Value: c}
	}
	return nil
}

// Label names the failure class of c, e.g. "timeout". Codes outside the
// loader's set are labelled "exit <n>".
func (c ExitCode) Label() string {
	if l, ok := exitCodeLabels[c]; ok {
		return l
	}
	return "exit " + c.String()
}

// String returns the decimal representation of c.
func (c ExitCode) String() string { return strconv.Itoa(int(c)) }
