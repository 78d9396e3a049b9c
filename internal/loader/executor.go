// SPDX-License-Identifier: MPL-2.0

package loader

import (
	"context"
	"errors"
	"path/filepath"
	"strings"

	"github.com/dop251/goja"

	"github.com/lazymod/lazymod/internal/dataimport"
	"github.com/lazymod/lazymod/internal/graph"
	"github.com/lazymod/lazymod/internal/native"
	"github.com/lazymod/lazymod/internal/resolve"
	"github.com/lazymod/lazymod/internal/rewrite"
	"github.com/lazymod/lazymod/pkg/types"
)

// env is the execution environment injected into one run of a module
// wrapper.
type env struct {
	l   *Loader
	ctx context.Context
	m   *graph.CompiledModule
	gen int

	target    *goja.Object
	container *goja.Object
	module    *goja.Object
	// legacy holds a non-plain value assigned to module.exports.
	legacy goja.Value
	// memo maps specifiers already requested by this run to their exports.
	memo map[string]goja.Value
}

// execute runs m once for its current generation. The cell turns Pending
// before any module code runs so re-entrant requests see the container.
func (l *Loader) execute(ctx context.Context, m *graph.CompiledModule) (goja.Value, error) {
	e := &env{l: l, ctx: ctx, m: m, memo: make(map[string]goja.Value)}
	e.target, e.container = l.newContainer(m.ID)

	gen, ok := m.Begin(e.container)
	if !ok {
		cell := m.Cell()
		if cell.State == graph.CellFailed {
			return nil, cell.Err
		}
		return cell.Container, nil
	}
	e.gen = gen

	l.push(m.ID)
	start := l.clock.Now()
	err := e.run()
	if err != nil {
		err = l.executionError(m.ID, err)
	}
	l.pop()

	took := l.clock.Since(start)
	m.Finish(gen, err, took)
	if err != nil {
		l.log.Debug("module failed", "module", m.ID, "error", err)
		return nil, err
	}
	l.log.Debug("module executed", "module", m.ID, "took", took)
	return e.container, nil
}

// executionError keeps errors raised by nested loads (missing or broken
// dependencies) and wraps everything else with the current chain.
func (l *Loader) executionError(id types.ModuleID, err error) error {
	if inner := hostError(err); inner != nil {
		var (
			nf *NotFoundError
			ce *CompileError
			ee *ExecutionError
		)
		if errors.As(inner, &nf) || errors.As(inner, &ce) || errors.As(inner, &ee) {
			return inner
		}
		err = inner
	}
	return &ExecutionError{ID: id, Chain: l.chain(), Err: err}
}

func (e *env) run() error {
	vm := e.l.vm
	wrapper, err := vm.RunProgram(e.m.Program)
	if err != nil {
		return err
	}
	call, ok := goja.AssertFunction(wrapper)
	if !ok {
		return errors.New("module wrapper is not a function")
	}

	id := string(e.m.ID)
	file, _, _ := strings.Cut(id, "?")
	dirname := ""
	if filepath.IsAbs(file) {
		dirname = filepath.Dir(file)
	}
	e.module = e.newModule()

	ret, err := call(e.target,
		e.target,
		vm.ToValue(e.require),
		e.module,
		vm.ToValue(id),
		vm.ToValue(dirname),
		e.importMeta(file, dirname),
		vm.ToValue(e.dynamicImport),
		vm.ToValue(e.nativeImport),
		vm.ToValue(e.link),
	)
	if err != nil {
		return err
	}

	h := e.l.helpers
	switch {
	case e.legacy != nil:
		_, err = h.legacy(goja.Undefined(), e.target, e.legacy)
	case !goja.IsUndefined(ret) && !goja.IsNull(ret) && len(e.target.Keys()) == 0:
		_, err = h.legacy(goja.Undefined(), e.target, ret)
	}
	if err != nil {
		return err
	}
	if e.m.Meta != nil {
		if names := e.m.Meta.Constants(); len(names) > 0 {
			list := make([]any, len(names))
			for i, name := range names {
				list[i] = name
			}
			_, err = h.freeze(goja.Undefined(), e.target, vm.NewArray(list...))
		}
	}
	return err
}

// newModule builds the CommonJS module object. Assigning a plain object to
// module.exports adopts its properties into the container; any other value
// becomes the legacy default export.
func (e *env) newModule() *goja.Object {
	vm := e.l.vm
	mod := vm.NewObject()
	_ = mod.Set("id", string(e.m.ID))
	_ = mod.Set("filename", string(e.m.ID))

	getter := vm.ToValue(func(goja.FunctionCall) goja.Value {
		if e.legacy != nil {
			return e.legacy
		}
		return e.target
	})
	setter := vm.ToValue(func(call goja.FunctionCall) goja.Value {
		v := call.Argument(0)
		if obj, ok := v.(*goja.Object); ok && obj.ClassName() == "Object" {
			if _, err := e.l.helpers.adopt(goja.Undefined(), e.target, obj); err != nil {
				e.l.throw(err)
			}
			e.legacy = nil
			return goja.Undefined()
		}
		e.legacy = v
		return goja.Undefined()
	})
	if err := mod.DefineAccessorProperty("exports", getter, setter, goja.FLAG_FALSE, goja.FLAG_TRUE); err != nil {
		e.l.throw(err)
	}
	return mod
}

// importMeta builds the value bound to __lzim; module code reads
// __lzim.meta where it wrote import.meta.
func (e *env) importMeta(file, dirname string) goja.Value {
	vm := e.l.vm
	meta := vm.NewObject()
	url := string(e.m.ID)
	if filepath.IsAbs(file) {
		url = "file://" + filepath.ToSlash(string(e.m.ID))
	}
	_ = meta.Set("url", url)
	_ = meta.Set("filename", file)
	_ = meta.Set("dirname", dirname)
	_ = meta.Set("resolve", func(spec string) string {
		t, err := e.l.resolveTarget(spec, string(e.m.ID), false)
		if err != nil {
			e.l.throw(err)
		}
		return string(t.ID)
	})

	hot := vm.NewObject()
	_ = hot.Set("accept", func(goja.FunctionCall) goja.Value {
		e.m.AcceptHot(e.gen)
		return goja.Undefined()
	})
	_ = hot.Set("dispose", func(call goja.FunctionCall) goja.Value {
		fn, ok := goja.AssertFunction(call.Argument(0))
		if !ok {
			panic(vm.NewTypeError("import.meta.hot.dispose expects a function"))
		}
		id := e.m.ID
		e.m.OnDispose(e.gen, func() {
			if _, err := fn(goja.Undefined()); err != nil {
				e.l.log.Warn("dispose hook failed", "module", id, "error", err)
			}
		})
		return goja.Undefined()
	})
	_ = meta.Set("hot", hot)

	holder := vm.NewObject()
	_ = holder.Set("meta", meta)
	return holder
}

// link requests every static dependency in declaration order. The wrapper
// calls it once the exports container is published, before the module's
// own statements run.
func (e *env) link(goja.FunctionCall) goja.Value {
	if e.m.Meta == nil {
		return goja.Undefined()
	}
	for _, spec := range e.m.Meta.Links() {
		e.resolveStatic(spec)
	}
	return goja.Undefined()
}

// require serves the require() calls of lowered import declarations.
func (e *env) require(call goja.FunctionCall) goja.Value {
	return e.resolveStatic(call.Argument(0).String())
}

func (e *env) resolveStatic(spec string) goja.Value {
	if v, ok := e.memo[spec]; ok {
		return v
	}
	_, v, err := e.l.load(e.ctx, spec, string(e.m.ID), false)
	if err != nil {
		e.l.throw(err)
	}
	e.memo[spec] = v
	return v
}

// dynamicImport implements import(): the module is loaded inline and the
// returned promise is already settled.
func (e *env) dynamicImport(call goja.FunctionCall) goja.Value {
	h := e.l.helpers
	spec := call.Argument(0).String()
	_, v, err := e.l.load(e.ctx, spec, string(e.m.ID), true)
	var (
		p    goja.Value
		perr error
	)
	if err != nil {
		p, perr = h.rejected(goja.Undefined(), e.l.errorValue(err))
	} else {
		ns, nerr := h.namespace(goja.Undefined(), v)
		if nerr != nil {
			e.l.throw(nerr)
		}
		p, perr = h.fulfilled(goja.Undefined(), ns)
	}
	if perr != nil {
		e.l.throw(perr)
	}
	return p
}

// nativeImport serves imports that bypass rewriting: the specifier goes
// straight to the legacy loader relative to this module.
func (e *env) nativeImport(call goja.FunctionCall) goja.Value {
	spec := strings.TrimPrefix(call.Argument(0).String(), rewrite.NativePrefix)
	v, err := e.l.requireNative(spec, e.m.ID)
	if err != nil {
		e.l.throw(err)
	}
	return v
}

// requireNative resolves spec the way require() would from importer and
// loads it through the legacy loader.
func (l *Loader) requireNative(spec string, importer types.ModuleID) (goja.Value, error) {
	file, _, _ := strings.Cut(string(importer), "?")
	dir := filepath.Dir(file)
	if !filepath.IsAbs(file) {
		dir, _ = filepath.Abs(".")
	}

	var id string
	switch r := l.resolver.(type) {
	case native.Resolver:
		var ok bool
		if id, ok = r.Require(spec, dir); !ok {
			return nil, &NotFoundError{Spec: spec, Importer: string(importer)}
		}
	default:
		id = strings.TrimPrefix(spec, "node:")
		if !l.natives.IsBuiltin(id) {
			return nil, &NotFoundError{Spec: spec, Importer: string(importer)}
		}
	}

	t := resolve.Target{ID: types.ModuleID(id), Kind: types.KindExternal}
	if filepath.IsAbs(id) {
		t.Reloadable = l.reloadable(id)
	}
	if dataimport.IsDataPath(id) {
		t.Kind = types.KindData
	}
	v, err := l.loadLinked(t)
	if err != nil {
		return nil, err
	}
	l.recordEdge(string(importer), t, false)
	return v, nil
}
