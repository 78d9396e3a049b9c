// SPDX-License-Identifier: MPL-2.0

package types

import (
	"errors"
	"testing"
)

func TestModuleIDIsValid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		value ModuleID
		want  bool
	}{
		{name: "absolute path", value: "/src/app.ts", want: true},
		{name: "virtual", value: "virtual:routes", want: true},
		{name: "empty", value: "", want: false},
		{name: "whitespace", value: "  \t", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ok, errs := tt.value.IsValid()
			if ok != tt.want {
				t.Fatalf("ModuleID(%q).IsValid() = %v, want %v", tt.value, ok, tt.want)
			}
			if !ok && (len(errs) != 1 || !errors.Is(errs[0], ErrInvalidModuleID)) {
				t.Errorf("ModuleID(%q).IsValid() errors = %v, want ErrInvalidModuleID", tt.value, errs)
			}
		})
	}
}

func TestModuleIDIsURL(t *testing.T) {
	t.Parallel()

	if !ModuleID("https://example.com/a.json").IsURL() {
		t.Error("https URL not detected")
	}
	if ModuleID("/tmp/http.js").IsURL() {
		t.Error("file path reported as URL")
	}
}

func TestTargetKindString(t *testing.T) {
	t.Parallel()

	kinds := map[TargetKind]string{
		KindLocal:       "local",
		KindVirtual:     "virtual",
		KindExternal:    "external",
		KindRemote:      "remote",
		KindData:        "data",
		TargetKind(200): "unknown",
	}
	for k, want := range kinds {
		if got := k.String(); got != want {
			t.Errorf("TargetKind(%d).String() = %q, want %q", k, got, want)
		}
	}
	if !KindVirtual.Compiled() || KindExternal.Compiled() {
		t.Error("Compiled() should hold only for local and virtual kinds")
	}
}
