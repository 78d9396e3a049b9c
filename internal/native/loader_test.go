// SPDX-License-Identifier: MPL-2.0

package native

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/dop251/goja"
	"github.com/google/go-cmp/cmp"

	"github.com/lazymod/lazymod/internal/resolve"
	"github.com/lazymod/lazymod/internal/testutil"
)

func newTestLoader(t *testing.T, files map[string]string) (string, *Loader) {
	t.Helper()
	root := testutil.WriteTree(t, files)
	var l *Loader
	r := resolve.NewFS(resolve.Options{Root: root, IsBuiltin: func(name string) bool { return l.IsBuiltin(name) }})
	l = New(Options{Resolver: r})
	return root, l
}

func TestRequireScript(t *testing.T) {
	t.Parallel()

	root, l := newTestLoader(t, map[string]string{
		"lib/main.js":   "#!/usr/bin/env node\nconst h = require('./helper'); exports.value = h.double(21); exports.dir = __dirname;",
		"lib/helper.js": "module.exports = { double: (n) => n * 2 };",
	})
	vm := goja.New()
	main := filepath.Join(root, "lib", "main.js")

	exports, err := l.Require(vm, main)
	if err != nil {
		t.Fatalf("Require() error: %v", err)
	}
	obj := exports.ToObject(vm)
	if got := obj.Get("value").ToInteger(); got != 42 {
		t.Errorf("value = %d, want 42", got)
	}
	if got := obj.Get("dir").String(); got != filepath.Join(root, "lib") {
		t.Errorf("dir = %q, want %q", got, filepath.Join(root, "lib"))
	}

	_, children, ok := l.Module(main)
	if !ok {
		t.Fatal("Module() should report the cached module")
	}
	if diff := cmp.Diff([]string{filepath.Join(root, "lib", "helper.js")}, children); diff != "" {
		t.Errorf("children mismatch (-want +got):\n%s", diff)
	}
}

func TestRequireCachesAndUnloads(t *testing.T) {
	t.Parallel()

	root, l := newTestLoader(t, map[string]string{
		"count.js": "globalThis.runs = (globalThis.runs || 0) + 1; module.exports = { runs: globalThis.runs };",
	})
	vm := goja.New()
	id := filepath.Join(root, "count.js")

	first, err := l.Require(vm, id)
	if err != nil {
		t.Fatalf("Require() error: %v", err)
	}
	second, err := l.Require(vm, id)
	if err != nil {
		t.Fatalf("Require() error: %v", err)
	}
	if !first.SameAs(second) {
		t.Error("cached require should return the same exports")
	}

	if !l.Unload(id) {
		t.Fatal("Unload() = false, want true")
	}
	if l.Unload(id) {
		t.Error("second Unload() = true, want false")
	}
	third, err := l.Require(vm, id)
	if err != nil {
		t.Fatalf("Require() error: %v", err)
	}
	if got := third.ToObject(vm).Get("runs").ToInteger(); got != 2 {
		t.Errorf("runs after unload = %d, want 2", got)
	}
}

func TestRequireCycleSeesPartialExports(t *testing.T) {
	t.Parallel()

	root, l := newTestLoader(t, map[string]string{
		"a.js": "exports.early = 'a'; const b = require('./b'); exports.fromB = b.seen;",
		"b.js": "const a = require('./a'); exports.seen = a.early;",
	})
	vm := goja.New()

	exports, err := l.Require(vm, filepath.Join(root, "a.js"))
	if err != nil {
		t.Fatalf("Require() error: %v", err)
	}
	if got := exports.ToObject(vm).Get("fromB").String(); got != "a" {
		t.Errorf("fromB = %q, want %q", got, "a")
	}
}

func TestRequireData(t *testing.T) {
	t.Parallel()

	root, l := newTestLoader(t, map[string]string{
		"data/settings.json": `{"name": "demo", "port": 8080}`,
		"use.js":             "const s = require('./data/settings.json'); module.exports = s.name + ':' + s.port;",
	})
	vm := goja.New()

	exports, err := l.Require(vm, filepath.Join(root, "use.js"))
	if err != nil {
		t.Fatalf("Require() error: %v", err)
	}
	if got := exports.String(); got != "demo:8080" {
		t.Errorf("exports = %q, want %q", got, "demo:8080")
	}
}

func TestRequireFailureIsNotCached(t *testing.T) {
	t.Parallel()

	root, l := newTestLoader(t, map[string]string{
		"boom.js":    "throw new Error('boom');",
		"missing.js": "require('./nowhere');",
	})
	vm := goja.New()

	boom := filepath.Join(root, "boom.js")
	_, err := l.Require(vm, boom)
	var ex *goja.Exception
	if !errors.As(err, &ex) {
		t.Fatalf("Require() error = %v, want *goja.Exception", err)
	}
	if _, _, ok := l.Module(boom); ok {
		t.Error("failed module should not stay cached")
	}

	_, err = l.Require(vm, filepath.Join(root, "missing.js"))
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Require() error = %v, want ErrNotFound", err)
	}

	_, err = l.Require(vm, filepath.Join(root, "absent.js"))
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Errorf("Require() error = %v, want *NotFoundError", err)
	}
}

func TestBuiltins(t *testing.T) {
	t.Parallel()

	root, l := newTestLoader(t, map[string]string{
		"use.js": `const path = require('node:path'); const greet = require('greet');
module.exports = [path.join('a', 'b', '../c'), path.basename('/x/y.js', '.js'), path.relative('/a/b/c', '/a/d'), greet('go')].join(',');`,
	})
	l.Register("greet", func(vm *goja.Runtime, module *goja.Object) error {
		return module.Set("exports", func(name string) string { return "hi " + name })
	})

	if !l.IsBuiltin("node:greet") {
		t.Error(`IsBuiltin("node:greet") = false, want true`)
	}
	if diff := cmp.Diff([]string{"greet", "path", "shell"}, l.Builtins()); diff != "" {
		t.Errorf("Builtins() mismatch (-want +got):\n%s", diff)
	}

	vm := goja.New()
	exports, err := l.Require(vm, filepath.Join(root, "use.js"))
	if err != nil {
		t.Fatalf("Require() error: %v", err)
	}
	if got, want := exports.String(), "a/c,y,../../d,hi go"; got != want {
		t.Errorf("exports = %q, want %q", got, want)
	}
}

func TestRequireResolve(t *testing.T) {
	t.Parallel()

	root, l := newTestLoader(t, map[string]string{
		"a.js": "module.exports = require.resolve('./b');",
		"b.js": "",
	})
	vm := goja.New()

	exports, err := l.Require(vm, filepath.Join(root, "a.js"))
	if err != nil {
		t.Fatalf("Require() error: %v", err)
	}
	if got, want := exports.String(), filepath.Join(root, "b.js"); got != want {
		t.Errorf("require.resolve = %q, want %q", got, want)
	}
}
