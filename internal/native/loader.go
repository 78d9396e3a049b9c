// SPDX-License-Identifier: MPL-2.0

// Package native implements the synchronous CommonJS loader used for legacy
// packages, .cjs files and Go builtin modules. It runs on the caller's goja
// runtime and keeps its own require cache.
package native

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/dop251/goja"

	"github.com/lazymod/lazymod/internal/dataimport"
	"github.com/lazymod/lazymod/internal/resolve"
)

const (
	wrapperHeader = "(function (exports, require, module, __filename, __dirname) {"
	wrapperFooter = "\n})"
)

// ErrNotFound is the sentinel error wrapped by NotFoundError.
var ErrNotFound = errors.New("cannot find module")

type (
	// ModuleFunc populates the exports of a Go builtin module. module is the
	// CommonJS module object; builtins usually set properties on
	// module.Get("exports") or replace it.
	ModuleFunc func(vm *goja.Runtime, module *goja.Object) error

	// Resolver maps require() specifiers to files or builtin names.
	Resolver interface {
		Require(spec, dir string) (string, bool)
	}

	// Options configures a Loader.
	Options struct {
		// Resolver defaults to a resolve.FS rooted at the working directory.
		Resolver Resolver
		// ReadFile defaults to os.ReadFile.
		ReadFile func(name string) ([]byte, error)
	}

	// Loader is the CommonJS module loader.
	Loader struct {
		mu       sync.Mutex
		resolver Resolver
		readFile func(string) ([]byte, error)
		builtins map[string]ModuleFunc
		cache    map[string]*record
	}

	// NotFoundError is returned when require() cannot resolve a specifier.
	NotFoundError struct {
		Spec string
		From string
	}

	record struct {
		module   *goja.Object
		children []string
	}
)

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	if e.From == "" {
		return fmt.Sprintf("cannot find module %q", e.Spec)
	}
	return fmt.Sprintf("cannot find module %q required from %s", e.Spec, e.From)
}

// Unwrap returns ErrNotFound.
func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// New creates a Loader with the default builtins registered.
func New(opts Options) *Loader {
	l := &Loader{
		readFile: opts.ReadFile,
		builtins: make(map[string]ModuleFunc),
		cache:    make(map[string]*record),
	}
	if l.readFile == nil {
		l.readFile = os.ReadFile
	}
	l.resolver = opts.Resolver
	if l.resolver == nil {
		l.resolver = resolve.NewFS(resolve.Options{IsBuiltin: l.IsBuiltin})
	}
	l.Register("path", pathModule)
	l.Register("shell", shellModule)
	return l
}

// Register adds a Go builtin module. Registering an existing name replaces it
// and drops any cached instance.
func (l *Loader) Register(name string, fn ModuleFunc) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.builtins[name] = fn
	delete(l.cache, name)
}

// IsBuiltin reports whether name (with or without a "node:" prefix) is a
// registered builtin.
func (l *Loader) IsBuiltin(name string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.builtins[strings.TrimPrefix(name, "node:")]
	return ok
}

// Builtins returns the registered builtin names, sorted.
func (l *Loader) Builtins() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	names := make([]string, 0, len(l.builtins))
	for name := range l.builtins {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Require loads id, an absolute file path or builtin name, and returns its
// module.exports. Cached modules are returned without re-running, including
// modules still executing (partial exports on cycles).
func (l *Loader) Require(vm *goja.Runtime, id string) (goja.Value, error) {
	id = strings.TrimPrefix(id, "node:")
	l.mu.Lock()
	rec, cached := l.cache[id]
	fn, builtin := l.builtins[id]
	l.mu.Unlock()
	if cached {
		return rec.module.Get("exports"), nil
	}
	if builtin {
		return l.loadBuiltin(vm, id, fn)
	}
	if dataimport.IsDataPath(id) {
		return l.loadData(vm, id)
	}
	return l.loadScript(vm, id)
}

// Unload drops id from the require cache. It reports whether it was cached.
func (l *Loader) Unload(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.cache[id]; !ok {
		return false
	}
	delete(l.cache, id)
	slog.Debug("unloaded native module", "id", id)
	return true
}

// Module returns the exports and the required children of a cached module.
func (l *Loader) Module(id string) (goja.Value, []string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.cache[id]
	if !ok {
		return nil, nil, false
	}
	return rec.module.Get("exports"), slices.Clone(rec.children), true
}

func (l *Loader) newModule(vm *goja.Runtime, id string) *goja.Object {
	module := vm.NewObject()
	_ = module.Set("id", id)
	_ = module.Set("filename", id)
	_ = module.Set("loaded", false)
	_ = module.Set("exports", vm.NewObject())
	return module
}

func (l *Loader) store(id string, module *goja.Object) *record {
	rec := &record{module: module}
	l.mu.Lock()
	l.cache[id] = rec
	l.mu.Unlock()
	return rec
}

func (l *Loader) forget(id string, rec *record) {
	l.mu.Lock()
	if l.cache[id] == rec {
		delete(l.cache, id)
	}
	l.mu.Unlock()
}

func (l *Loader) loadBuiltin(vm *goja.Runtime, id string, fn ModuleFunc) (goja.Value, error) {
	module := l.newModule(vm, id)
	rec := l.store(id, module)
	if err := fn(vm, module); err != nil {
		l.forget(id, rec)
		return nil, fmt.Errorf("builtin module %s: %w", id, err)
	}
	_ = module.Set("loaded", true)
	return module.Get("exports"), nil
}

func (l *Loader) loadData(vm *goja.Runtime, id string) (goja.Value, error) {
	data, err := l.readFile(id)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &NotFoundError{Spec: id}
		}
		return nil, fmt.Errorf("reading %s: %w", id, err)
	}
	decoded, err := dataimport.Decode(id, data)
	if err != nil {
		return nil, err
	}
	module := l.newModule(vm, id)
	_ = module.Set("exports", vm.ToValue(decoded))
	_ = module.Set("loaded", true)
	l.store(id, module)
	return module.Get("exports"), nil
}

func (l *Loader) loadScript(vm *goja.Runtime, id string) (goja.Value, error) {
	src, err := l.readFile(id)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &NotFoundError{Spec: id}
		}
		return nil, fmt.Errorf("reading %s: %w", id, err)
	}
	prg, err := goja.Compile(id, wrapperHeader+stripShebang(string(src))+wrapperFooter, false)
	if err != nil {
		return nil, fmt.Errorf("compiling %s: %w", id, err)
	}

	module := l.newModule(vm, id)
	rec := l.store(id, module)

	wrapper, err := vm.RunProgram(prg)
	if err != nil {
		l.forget(id, rec)
		return nil, err
	}
	call, ok := goja.AssertFunction(wrapper)
	if !ok {
		l.forget(id, rec)
		return nil, fmt.Errorf("compiling %s: wrapper is not a function", id)
	}

	dir := filepath.Dir(id)
	exports := module.Get("exports")
	_, err = call(exports, exports, l.requireFunc(vm, id, rec), module, vm.ToValue(id), vm.ToValue(dir))
	if err != nil {
		l.forget(id, rec)
		return nil, err
	}
	_ = module.Set("loaded", true)
	slog.Debug("loaded native module", "id", id)
	return module.Get("exports"), nil
}

// requireFunc builds the require() seen by the module at from.
func (l *Loader) requireFunc(vm *goja.Runtime, from string, rec *record) *goja.Object {
	dir := filepath.Dir(from)
	resolveSpec := func(call goja.FunctionCall) string {
		spec := call.Argument(0).String()
		target, ok := l.resolveSpec(spec, dir)
		if !ok {
			panic(vm.NewGoError(&NotFoundError{Spec: spec, From: from}))
		}
		return target
	}

	require := vm.ToValue(func(call goja.FunctionCall) goja.Value {
		target := resolveSpec(call)
		l.mu.Lock()
		if !slices.Contains(rec.children, target) {
			rec.children = append(rec.children, target)
		}
		l.mu.Unlock()

		value, err := l.Require(vm, target)
		if err != nil {
			var ex *goja.Exception
			if errors.As(err, &ex) {
				panic(ex.Value())
			}
			panic(vm.NewGoError(err))
		}
		return value
	}).(*goja.Object)
	_ = require.Set("resolve", func(call goja.FunctionCall) goja.Value {
		return vm.ToValue(resolveSpec(call))
	})
	return require
}

func (l *Loader) resolveSpec(spec, dir string) (string, bool) {
	if l.IsBuiltin(spec) {
		return strings.TrimPrefix(spec, "node:"), true
	}
	return l.resolver.Require(spec, dir)
}

func stripShebang(src string) string {
	if !strings.HasPrefix(src, "#!") {
		return src
	}
	return "//" + src[2:]
}
