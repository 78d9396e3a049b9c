// SPDX-License-Identifier: MPL-2.0

package types

import (
	"errors"
	"testing"
)

func TestExitCodeValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		value     ExitCode
		wantValid bool
	}{
		{name: "ok is valid", value: ExitOK, wantValid: true},
		{name: "timeout is valid", value: ExitTimeout, wantValid: true},
		{name: "255 is valid", value: 255, wantValid: true},
		{name: "negative is invalid", value: -1, wantValid: false},
		{name: "256 is invalid", value: 256, wantValid: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := tt.value.Validate()
			if (err == nil) != tt.wantValid {
				t.Errorf("ExitCode(%d).Validate() error = %v, wantValid %v", tt.value, err, tt.wantValid)
			}
			if !tt.wantValid && !errors.Is(err, ErrInvalidExitCode) {
				t.Errorf("error does not wrap ErrInvalidExitCode: %v", err)
			}
		})
	}
}

func TestExitCodeLabel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		code ExitCode
		want string
	}{
		{ExitOK, "ok"},
		{ExitNotFound, "not-found"},
		{ExitCompile, "compile"},
		{ExitTimeout, "timeout"},
		{42, "exit 42"},
	}
	for _, tt := range tests {
		if got := tt.code.Label(); got != tt.want {
			t.Errorf("ExitCode(%d).Label() = %q, want %q", tt.code, got, tt.want)
		}
	}
	if got := ExitNotFound.String(); got != "2" {
		t.Errorf("ExitNotFound.String() = %q, want %q", got, "2")
	}
}
