// SPDX-License-Identifier: MPL-2.0

package types

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidModuleID is the sentinel error wrapped by InvalidModuleIDError.
var ErrInvalidModuleID = errors.New("invalid module id")

type (
	// ModuleID is the canonical identifier of a module: an absolute file path,
	// a URL, or a virtual identifier. It is the key of the module map.
	// The zero value ("") is invalid.
	ModuleID string

	// InvalidModuleIDError is returned when a ModuleID is empty or
	// whitespace-only.
	InvalidModuleIDError struct {
		Value ModuleID
	}
)

// String returns the string representation of the ModuleID.
func (id ModuleID) String() string { return string(id) }

// IsValid returns whether the ModuleID is usable as a module map key.
func (id ModuleID) IsValid() (bool, []error) {
	if strings.TrimSpace(string(id)) == "" {
		return false, []error{&InvalidModuleIDError{Value: id}}
	}
	return true, nil
}

// IsURL reports whether the identifier is an http(s) URL.
func (id ModuleID) IsURL() bool {
	s := string(id)
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// Error implements the error interface for InvalidModuleIDError.
func (e *InvalidModuleIDError) Error() string {
	return fmt.Sprintf("invalid module id %q: must be non-empty", e.Value)
}

// Unwrap returns ErrInvalidModuleID for errors.Is() compatibility.
func (e *InvalidModuleIDError) Unwrap() error { return ErrInvalidModuleID }
