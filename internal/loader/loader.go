// SPDX-License-Identifier: MPL-2.0

// Package loader resolves, compiles and executes ES modules on demand. One
// goja runtime executes every module; a mutex makes it the single
// scheduling context. Top-level Resolve calls wait for their result with a
// timeout, while nested imports issued by module code run inline on the
// goroutine that holds the runtime.
package loader

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dop251/goja"

	"github.com/lazymod/lazymod/internal/dataimport"
	"github.com/lazymod/lazymod/internal/graph"
	"github.com/lazymod/lazymod/internal/native"
	"github.com/lazymod/lazymod/internal/resolve"
	"github.com/lazymod/lazymod/internal/rewrite"
	"github.com/lazymod/lazymod/internal/testutil"
	"github.com/lazymod/lazymod/internal/transform"
	"github.com/lazymod/lazymod/pkg/types"
)

type (
	// Loader is the module runtime.
	Loader struct {
		opts     Options
		log      *slog.Logger
		clock    testutil.Clock
		timeout  time.Duration
		resolver IdentifierResolver
		pipeline transform.Pipeline
		natives  *native.Loader
		graph    *graph.Graph

		// vmMu guards vm, helpers and external.
		vmMu     sync.Mutex
		vm       *goja.Runtime
		helpers  *helpers
		external map[types.ModuleID]goja.Value

		stackMu   sync.Mutex
		stack     []types.ModuleID
		compiling map[types.ModuleID]int
	}

	outcome struct {
		exports *Exports
		err     error
	}
)

// New creates a Loader.
func New(opts Options) *Loader {
	l := &Loader{
		opts:      opts,
		log:       opts.Logger,
		clock:     opts.Clock,
		timeout:   opts.Timeout,
		resolver:  opts.Resolver,
		pipeline:  opts.Pipeline,
		graph:     graph.New(),
		vm:        goja.New(),
		external:  make(map[types.ModuleID]goja.Value),
		compiling: make(map[types.ModuleID]int),
	}
	if l.log == nil {
		l.log = slog.Default()
	}
	if l.clock == nil {
		l.clock = testutil.RealClock{}
	}
	if l.timeout <= 0 {
		l.timeout = DefaultTimeout
	}
	if l.pipeline == nil {
		l.pipeline = transform.NewFSPipeline(transform.Options{Target: opts.Target})
	}
	if l.resolver == nil {
		fsOpts := resolve.Options{IsBuiltin: func(name string) bool { return l.natives.IsBuiltin(name) }}
		if p, ok := l.pipeline.(interface{ HasVirtual(id string) bool }); ok {
			fsOpts.IsVirtual = p.HasVirtual
		}
		l.resolver = resolve.NewFS(fsOpts)
	}

	nativeOpts := native.Options{}
	if r, ok := l.resolver.(native.Resolver); ok {
		nativeOpts.Resolver = r
	}
	l.natives = native.New(nativeOpts)
	for name, fn := range opts.Natives {
		l.natives.Register(name, fn)
	}

	l.vm.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))
	l.helpers = newHelpers(l.vm)
	l.installConsole()
	return l
}

// Resolve returns the exports of the module spec names, requested by
// importer (empty for entry points). The wait is bounded by Options.Timeout
// and ctx; an abandoned resolution keeps running and populates the module
// map for later callers.
func (l *Loader) Resolve(ctx context.Context, spec, importer string, dynamic bool) (*Exports, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var (
		work    = context.WithoutCancel(ctx)
		done    = make(chan outcome, 1)
		running atomic.Bool
	)
	go func() {
		l.prefetch(work, spec, importer, dynamic)

		l.vmMu.Lock()
		defer l.vmMu.Unlock()
		running.Store(true)
		t, v, err := l.load(work, spec, importer, dynamic)
		if err != nil {
			done <- outcome{err: err}
			return
		}
		done <- outcome{exports: &Exports{l: l, id: t.ID, kind: t.Kind, value: v}}
	}()

	timer := l.clock.After(l.timeout)
	select {
	case out := <-done:
		return out.exports, out.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer:
		err := &TimeoutError{Spec: spec, Importer: importer, After: l.timeout}
		if running.Load() {
			err.Pending = append(l.chain(), l.compilingIDs()...)
		} else {
			// The stack belongs to whichever request holds the runtime.
			err.Waiting = true
			err.Pending = l.compilingIDs()
			err.Busy = l.chain()
		}
		l.log.Warn("module resolution timed out", "spec", spec, "importer", importer,
			"pending", len(err.Pending), "waiting", err.Waiting)
		return nil, err
	}
}

// Purge invalidates the module id and everything that depends on it. A nil
// opts.Accept falls back to Options.Accept. opts.OnPurge runs for every
// visited module after reloadable linked modules are unloaded; calling its
// stop argument ends propagation past that module. Callbacks must not call
// back into the Loader.
func (l *Loader) Purge(id types.ModuleID, opts graph.PurgeOptions) graph.PurgeResult {
	l.vmMu.Lock()
	defer l.vmMu.Unlock()
	return l.purgeLocked(id, opts)
}

// PurgeFile purges the module backed by path, including query variants
// such as "file.ts?raw", with the same options as Purge.
func (l *Loader) PurgeFile(path string, opts graph.PurgeOptions) graph.PurgeResult {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	ids := []types.ModuleID{types.ModuleID(abs)}
	for _, info := range l.graph.Snapshot() {
		if strings.HasPrefix(string(info.ID), abs+"?") {
			ids = append(ids, info.ID)
		}
	}

	l.vmMu.Lock()
	defer l.vmMu.Unlock()
	var merged graph.PurgeResult
	for _, id := range ids {
		res := l.purgeLocked(id, opts)
		merged.Visited = append(merged.Visited, res.Visited...)
		merged.Accepted = append(merged.Accepted, res.Accepted...)
		merged.Removed = merged.Removed || res.Removed
	}
	return merged
}

// Snapshot describes every module in the map.
func (l *Loader) Snapshot() []graph.ModuleInfo { return l.graph.Snapshot() }

// Order returns the loaded modules in dependency order with each import
// cycle grouped.
func (l *Loader) Order() [][]types.ModuleID { return l.graph.Order() }

// Builtins lists the Go builtin modules available to require() and
// /* @native */ imports.
func (l *Loader) Builtins() []string { return l.natives.Builtins() }

func (l *Loader) purgeLocked(id types.ModuleID, opts graph.PurgeOptions) graph.PurgeResult {
	accept := opts.Accept
	if accept == nil {
		accept = l.opts.Accept
	}
	onPurge := opts.OnPurge
	return l.graph.Purge(id, graph.PurgeOptions{
		Accept: accept,
		OnPurge: func(m graph.Module, accepted bool, stop func()) {
			if m.Linked() && m.Reloadable() {
				l.natives.Unload(string(m.ID()))
				delete(l.external, m.ID())
			}
			if onPurge != nil {
				onPurge(m, accepted, stop)
			}
		},
	})
}

// resolveTarget asks the identifier resolver for a target and applies the
// tie-breaks: virtual ids always compile, and an external target with an ES
// module or TypeScript extension is compiled rather than required.
func (l *Loader) resolveTarget(spec, importer string, dynamic bool) (resolve.Target, error) {
	t, ok := l.resolver.Resolve(spec, importer, dynamic)
	if !ok {
		return t, &NotFoundError{Spec: spec, Importer: importer}
	}
	if ok, _ := t.ID.IsValid(); !ok {
		return t, &NotFoundError{Spec: spec, Importer: importer}
	}
	if t.Kind == types.KindExternal && compiledExtension(string(t.ID)) {
		l.log.Debug("compiling module reported as external", "module", t.ID)
		t.Kind = types.KindLocal
	}
	return t, nil
}

func compiledExtension(id string) bool {
	if transform.NeedsTransform(id) {
		return true
	}
	file, _, _ := strings.Cut(id, "?")
	return strings.EqualFold(filepath.Ext(file), ".mjs")
}

// prefetch compiles a top-level target before the runtime is taken so
// independent entry points compile concurrently.
func (l *Loader) prefetch(ctx context.Context, spec, importer string, dynamic bool) {
	t, err := l.resolveTarget(spec, importer, dynamic)
	if err != nil || !t.Kind.Compiled() || l.shouldReload(t.ID) {
		return
	}
	l.graph.Compile(t.ID, l.compileFunc(ctx, t))
}

// load resolves spec and returns its exports value. Callers hold vmMu.
func (l *Loader) load(ctx context.Context, spec, importer string, dynamic bool) (resolve.Target, goja.Value, error) {
	t, err := l.resolveTarget(spec, importer, dynamic)
	if err != nil {
		return t, nil, err
	}

	var v goja.Value
	switch t.Kind {
	case types.KindRemote:
		v, err = l.loadRemote(ctx, t)
		return t, v, err
	case types.KindExternal, types.KindData:
		v, err = l.loadLinked(t)
	default:
		v, err = l.loadCompiled(ctx, t)
	}
	l.recordEdge(importer, t, dynamic)
	return t, v, err
}

func (l *Loader) recordEdge(importer string, t resolve.Target, dynamic bool) {
	if importer == "" {
		return
	}
	if !t.Kind.Compiled() {
		if _, ok := l.graph.Linked(t.ID); !ok {
			return
		}
	}
	kind := graph.EdgeStatic
	if dynamic {
		kind = graph.EdgeDynamic
	}
	from := types.ModuleID(importer)
	l.graph.AddEdge(from, t.ID, kind)
	if t.Relative && t.Kind.Compiled() {
		l.graph.MergePackages(from, t.ID)
	}
}

func (l *Loader) loadCompiled(ctx context.Context, t resolve.Target) (goja.Value, error) {
	if l.onStack(t.ID) {
		if m, ok := l.graph.Compiled(t.ID); ok {
			if cell := m.Cell(); cell.Container != nil {
				return cell.Container, nil
			}
		}
	}

	m := l.graph.Compile(t.ID, l.compileFunc(ctx, t))
	cell := m.Cell()
	if (cell.State == graph.CellReady || cell.State == graph.CellFailed) && l.shouldReload(t.ID) {
		l.purgeLocked(t.ID, graph.PurgeOptions{Accept: func(graph.Module, graph.Module) bool { return true }})
		m = l.graph.Compile(t.ID, l.compileFunc(ctx, t))
		cell = m.Cell()
	}

	switch cell.State {
	case graph.CellPending, graph.CellReady:
		return cell.Container, nil
	case graph.CellFailed:
		return nil, cell.Err
	}
	return l.execute(ctx, m)
}

func (l *Loader) compileFunc(ctx context.Context, t resolve.Target) graph.CompileFunc {
	return func() (*graph.CompiledModule, error) {
		l.beginCompile(t.ID)
		defer l.endCompile(t.ID)

		start := l.clock.Now()
		out, err := l.pipeline.Transform(ctx, t.ID)
		if err != nil {
			return nil, &CompileError{ID: t.ID, Err: err}
		}
		res, err := rewrite.Rewrite(rewrite.Source{ID: string(t.ID), Code: out.Code, Map: out.Map, Target: l.opts.Target})
		if err != nil {
			return nil, &CompileError{ID: t.ID, Err: err}
		}
		for _, w := range res.Warnings {
			l.log.Warn("module rewrite warning", "module", t.ID, "warning", w)
		}
		prg, err := goja.Compile(string(t.ID), res.Code, false)
		if err != nil {
			return nil, &CompileError{ID: t.ID, Err: err}
		}
		l.watch(t.ID)

		took := l.clock.Since(start)
		l.log.Debug("module compiled", "module", t.ID, "kind", t.Kind, "took", took)
		return &graph.CompiledModule{
			Kind:        t.Kind,
			Code:        res.Code,
			SourceMap:   res.Map,
			Program:     prg,
			Meta:        res,
			CompileTime: took,
		}, nil
	}
}

// loadLinked serves external CommonJS modules and local data files through
// the legacy loader.
func (l *Loader) loadLinked(t resolve.Target) (goja.Value, error) {
	if v, ok := l.external[t.ID]; ok {
		if !l.shouldReload(t.ID) {
			return v, nil
		}
		l.natives.Unload(string(t.ID))
	}

	v, err := l.natives.Require(l.vm, string(t.ID))
	if err != nil {
		return nil, l.linkError(t.ID, err)
	}
	l.external[t.ID] = v
	l.watch(t.ID)
	if filepath.IsAbs(string(t.ID)) && l.isLive(string(t.ID), t.Reloadable) {
		l.track(t.ID, t.Reloadable, make(map[types.ModuleID]bool))
	}
	return v, nil
}

// track records a legacy module and its live children as linked modules.
func (l *Loader) track(id types.ModuleID, reloadable bool, seen map[types.ModuleID]bool) {
	if seen[id] {
		return
	}
	seen[id] = true
	l.graph.Link(id, reloadable, func() goja.Value {
		v, _, ok := l.natives.Module(string(id))
		if !ok {
			return goja.Undefined()
		}
		return v
	})

	_, children, _ := l.natives.Module(string(id))
	for _, child := range children {
		childReloadable := l.reloadable(child)
		if !filepath.IsAbs(child) || !l.isLive(child, childReloadable) {
			continue
		}
		l.track(types.ModuleID(child), childReloadable, seen)
		l.graph.AddEdge(id, types.ModuleID(child), graph.EdgeStatic)
		l.watch(types.ModuleID(child))
	}
}

func (l *Loader) linkError(id types.ModuleID, err error) error {
	var ex *goja.Exception
	switch {
	case errors.As(err, &ex):
		if inner := hostError(err); inner != nil {
			err = inner
		}
		return &ExecutionError{ID: id, Chain: append(l.chain(), id), Err: err}
	case errors.Is(err, native.ErrNotFound):
		return &NotFoundError{Spec: string(id)}
	default:
		return &CompileError{ID: id, Err: err}
	}
}

func (l *Loader) loadRemote(ctx context.Context, t resolve.Target) (goja.Value, error) {
	if l.opts.Fetcher == nil {
		return nil, &CompileError{ID: t.ID, Err: ErrRemoteDisabled}
	}
	data, err := l.opts.Fetcher.Fetch(ctx, string(t.ID))
	if err != nil {
		return nil, &CompileError{ID: t.ID, Err: err}
	}
	if !dataimport.IsDataPath(string(t.ID)) {
		return l.vm.ToValue(string(data)), nil
	}
	decoded, err := dataimport.Decode(string(t.ID), data)
	if err != nil {
		return nil, &CompileError{ID: t.ID, Err: err}
	}
	return l.vm.ToValue(decoded), nil
}

func (l *Loader) shouldReload(id types.ModuleID) bool {
	return l.opts.ShouldReload != nil && l.opts.ShouldReload(id)
}

func (l *Loader) isLive(path string, reloadable bool) bool {
	if l.opts.IsLiveModule != nil {
		return l.opts.IsLiveModule(path)
	}
	return reloadable
}

func (l *Loader) reloadable(path string) bool {
	if r, ok := l.resolver.(interface{ Reloadable(string) bool }); ok {
		return r.Reloadable(path)
	}
	return true
}

func (l *Loader) watch(id types.ModuleID) {
	if l.opts.WatchFile == nil {
		return
	}
	file, _, _ := strings.Cut(string(id), "?")
	if filepath.IsAbs(file) {
		l.opts.WatchFile(file)
	}
}

func (l *Loader) push(id types.ModuleID) {
	l.stackMu.Lock()
	l.stack = append(l.stack, id)
	l.stackMu.Unlock()
}

func (l *Loader) pop() {
	l.stackMu.Lock()
	l.stack = l.stack[:len(l.stack)-1]
	l.stackMu.Unlock()
}

func (l *Loader) onStack(id types.ModuleID) bool {
	l.stackMu.Lock()
	defer l.stackMu.Unlock()
	return slices.Contains(l.stack, id)
}

func (l *Loader) chain() []types.ModuleID {
	l.stackMu.Lock()
	defer l.stackMu.Unlock()
	return slices.Clone(l.stack)
}

// current is the innermost executing module.
func (l *Loader) current() types.ModuleID {
	l.stackMu.Lock()
	defer l.stackMu.Unlock()
	if len(l.stack) == 0 {
		return ""
	}
	return l.stack[len(l.stack)-1]
}

func (l *Loader) beginCompile(id types.ModuleID) {
	l.stackMu.Lock()
	l.compiling[id]++
	l.stackMu.Unlock()
}

func (l *Loader) endCompile(id types.ModuleID) {
	l.stackMu.Lock()
	if l.compiling[id]--; l.compiling[id] <= 0 {
		delete(l.compiling, id)
	}
	l.stackMu.Unlock()
}

// pending lists executing modules, outermost first, then modules being
// compiled.
// compilingIDs lists the modules being compiled that are not executing.
func (l *Loader) compilingIDs() []types.ModuleID {
	l.stackMu.Lock()
	defer l.stackMu.Unlock()
	var out []types.ModuleID
	for id := range l.compiling {
		if !slices.Contains(l.stack, id) {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return out
}
