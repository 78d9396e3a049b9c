// SPDX-License-Identifier: MPL-2.0

package loader_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/lazymod/lazymod/internal/loader"
	"github.com/lazymod/lazymod/internal/testutil"
)

const exportsSource = `export const greeting = "hi";
export const list = [1, 2];
export function double(n) { return Promise.resolve(n * 2); }
export function fail() { return Promise.reject(new Error("nope")); }
export function spin() { for (;;) {} }
export function add(a, b) { return a + b; }
`

func TestExportsCall(t *testing.T) {
	t.Parallel()

	root := testutil.WriteTree(t, map[string]string{"lib.js": exportsSource})
	l, _ := newLoader(t, loader.Options{})
	lib := mustResolve(t, l, filepath.Join(root, "lib.js"))

	tests := []struct {
		name    string
		fn      string
		args    []any
		want    any
		wantErr error
		errText string
	}{
		{name: "plain", fn: "add", args: []any{1, 2}, want: int64(3)},
		{name: "fulfilled promise", fn: "double", args: []any{21}, want: int64(42)},
		{name: "rejected promise", fn: "fail", wantErr: loader.ErrExecution, errText: "nope"},
		{name: "not callable", fn: "greeting", wantErr: loader.ErrNotCallable},
		{name: "missing", fn: "absent", wantErr: loader.ErrExportNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := lib.Call(t.Context(), tt.fn, tt.args...)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Call(%s) error = %v, want %v", tt.fn, err, tt.wantErr)
				}
				if tt.errText != "" && !strings.Contains(err.Error(), tt.errText) {
					t.Errorf("Call(%s) error = %q, want it to contain %q", tt.fn, err, tt.errText)
				}
				return
			}
			if err != nil {
				t.Fatalf("Call(%s) error: %v", tt.fn, err)
			}
			if got != tt.want {
				t.Errorf("Call(%s) = %v, want %v", tt.fn, got, tt.want)
			}
		})
	}
}

func TestExportsCallInterrupted(t *testing.T) {
	t.Parallel()

	root := testutil.WriteTree(t, map[string]string{"lib.js": exportsSource})
	l, _ := newLoader(t, loader.Options{})
	lib := mustResolve(t, l, filepath.Join(root, "lib.js"))

	ctx, cancel := context.WithTimeout(t.Context(), 50*time.Millisecond)
	defer cancel()
	if _, err := lib.Call(ctx, "spin"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Call(spin) error = %v, want DeadlineExceeded", err)
	}

	// The runtime stays usable after an interrupt.
	got, err := lib.Call(t.Context(), "add", 2, 3)
	if err != nil {
		t.Fatalf("Call(add) after interrupt error: %v", err)
	}
	if got != int64(5) {
		t.Errorf("add(2, 3) = %v, want 5", got)
	}
}

func TestExportsCallCancelDoesNotLeak(t *testing.T) {
	t.Parallel()

	const rounds = 50
	files := map[string]string{"lib.js": exportsSource}
	for i := range rounds {
		files[fmt.Sprintf("fresh%d.js", i)] = fmt.Sprintf("export const n = %d;\n", i)
	}
	root := testutil.WriteTree(t, files)
	l, _ := newLoader(t, loader.Options{})
	lib := mustResolve(t, l, filepath.Join(root, "lib.js"))

	// Cancellation racing a call that already returned must not interrupt
	// the next module load.
	for i := range rounds {
		ctx, cancel := context.WithCancel(t.Context())
		go cancel()
		if _, err := lib.Call(ctx, "add", 1, 2); err != nil && !errors.Is(err, context.Canceled) {
			t.Fatalf("Call(add) error: %v", err)
		}
		cancel()

		fresh := mustResolve(t, l, filepath.Join(root, fmt.Sprintf("fresh%d.js", i)))
		if got := mustGet(t, fresh, "n"); got != int64(i) {
			t.Fatalf("fresh%d n = %v, want %d", i, got, i)
		}
	}
}

func TestExportsIntrospection(t *testing.T) {
	t.Parallel()

	root := testutil.WriteTree(t, map[string]string{"lib.js": exportsSource, "data.json": `{"name": "x"}`})
	l, _ := newLoader(t, loader.Options{})
	lib := mustResolve(t, l, filepath.Join(root, "lib.js"))

	keys := lib.Keys()
	for _, name := range []string{"add", "double", "greeting", "list"} {
		if !slices.Contains(keys, name) {
			t.Errorf("Keys() = %v, want %s", keys, name)
		}
	}
	if lib.IsLive("greeting") {
		t.Error("IsLive(greeting) = true, want false for a const")
	}
	if !lib.IsLive("unknown") {
		t.Error("IsLive(unknown) = false, want true for names without a declaration")
	}

	data := mustResolve(t, l, filepath.Join(root, "data.json"))
	if !data.IsLive("name") {
		t.Error("IsLive(name) = false on a data module, want true when no binding is known")
	}

	data, err := lib.JSON()
	if err != nil {
		t.Fatalf("JSON() error: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("JSON() returned invalid JSON %s: %v", data, err)
	}
	want := map[string]any{"greeting": "hi", "list": []any{1.0, 2.0}}
	if diff := cmp.Diff(want, decoded); diff != "" {
		t.Errorf("JSON() mismatch (-want +got):\n%s", diff)
	}
}
