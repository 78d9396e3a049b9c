// SPDX-License-Identifier: MPL-2.0

package graph

import (
	"time"

	"github.com/dop251/goja"

	"github.com/lazymod/lazymod/internal/rewrite"
	"github.com/lazymod/lazymod/pkg/types"
)

const (
	// CellEmpty means the module has not executed in this generation.
	CellEmpty CellState = iota
	// CellPending means execution has begun; the container may be partial.
	CellPending
	// CellReady means execution finished and the container is final.
	CellReady
	// CellFailed means compile or execution failed; the error is cached.
	CellFailed
)

type (
	// CellState is the lifecycle of a module's exports in one generation.
	CellState uint8

	// Module is the view of a record handed to purge callbacks. It is a copy
	// taken under the graph lock, so callbacks never re-enter the graph.
	Module interface {
		ID() types.ModuleID
		Linked() bool
		Reloadable() bool
		HotAccepted() bool
		Generation() int
	}

	// ExportsFunc reads the current exports of a linked module.
	ExportsFunc func() goja.Value

	// CompiledModule is a module that was transformed, rewritten and
	// compiled. The exported fields are set before the record is stored and
	// never change afterwards.
	CompiledModule struct {
		ID          types.ModuleID
		Kind        types.TargetKind
		Code        string
		SourceMap   []byte
		Program     *goja.Program
		Meta        *rewrite.Result
		CompileTime time.Duration

		g         *Graph
		imports   map[types.ModuleID]struct{}
		importers map[types.ModuleID]EdgeKind
		pkg       *PackageSet

		state       CellState
		container   *goja.Object
		err         error
		generation  int
		hotAccepted bool
		disposers   []func()
		execTime    time.Duration
		loadedAt    time.Time
	}

	// Cell is a snapshot of a compiled module's exports cell.
	Cell struct {
		State      CellState
		Container  *goja.Object
		Err        error
		Generation int
	}

	// LinkedModule is a module owned by the legacy loader. It is tracked for
	// invalidation only.
	LinkedModule struct {
		ID types.ModuleID

		reloadable bool
		exports    ExportsFunc
		imports    map[types.ModuleID]struct{}
		importers  map[types.ModuleID]EdgeKind
	}

	view struct {
		id          types.ModuleID
		linked      bool
		reloadable  bool
		hotAccepted bool
		generation  int
	}
)

// String returns the lowercase state name.
func (s CellState) String() string {
	switch s {
	case CellEmpty:
		return "empty"
	case CellPending:
		return "pending"
	case CellReady:
		return "ready"
	case CellFailed:
		return "failed"
	default:
		return "unknown"
	}
}

func (m *CompiledModule) init() {
	if m.imports == nil {
		m.imports = make(map[types.ModuleID]struct{})
	}
	if m.importers == nil {
		m.importers = make(map[types.ModuleID]EdgeKind)
	}
}

// Cell returns the current exports cell.
func (m *CompiledModule) Cell() Cell {
	m.g.mu.Lock()
	defer m.g.mu.Unlock()
	return Cell{State: m.state, Container: m.container, Err: m.err, Generation: m.generation}
}

// Begin moves an empty cell to Pending with container and returns the
// generation it belongs to. It fails when the cell is not empty.
func (m *CompiledModule) Begin(container *goja.Object) (int, bool) {
	m.g.mu.Lock()
	defer m.g.mu.Unlock()
	if m.state != CellEmpty {
		return m.generation, false
	}
	m.state = CellPending
	m.container = container
	return m.generation, true
}

// Finish settles a pending cell of generation gen: Ready when err is nil,
// Failed otherwise. Stale generations are ignored.
func (m *CompiledModule) Finish(gen int, err error, took time.Duration) {
	m.g.mu.Lock()
	defer m.g.mu.Unlock()
	if m.generation != gen || m.state != CellPending {
		return
	}
	m.execTime = took
	if err != nil {
		m.state = CellFailed
		m.err = err
		return
	}
	m.state = CellReady
	m.loadedAt = time.Now()
}

// AcceptHot marks the module as absorbing changes of its dependencies.
func (m *CompiledModule) AcceptHot(gen int) {
	m.g.mu.Lock()
	defer m.g.mu.Unlock()
	if m.generation == gen {
		m.hotAccepted = true
	}
}

// OnDispose registers fn to run when generation gen is purged.
func (m *CompiledModule) OnDispose(gen int, fn func()) {
	m.g.mu.Lock()
	defer m.g.mu.Unlock()
	if m.generation == gen {
		m.disposers = append(m.disposers, fn)
	}
}

// Package returns the module's package set, if any.
func (m *CompiledModule) Package() *PackageSet {
	m.g.mu.Lock()
	defer m.g.mu.Unlock()
	return m.pkg
}

// clear resets the cell to Empty in a new generation and returns the
// dispose hooks of the old one. Callers hold g.mu.
func (m *CompiledModule) clear() []func() {
	disposers := m.disposers
	m.generation++
	m.state = CellEmpty
	m.container = nil
	m.err = nil
	m.hotAccepted = false
	m.disposers = nil
	return disposers
}

func (m *CompiledModule) view() view {
	return view{id: m.ID, reloadable: true, hotAccepted: m.hotAccepted, generation: m.generation}
}

// Exports reads the module's current exports through the legacy loader.
func (m *LinkedModule) Exports() goja.Value {
	if m.exports == nil {
		return goja.Undefined()
	}
	return m.exports()
}

func (m *LinkedModule) view() view {
	return view{id: m.ID, linked: true, reloadable: m.reloadable}
}

func (v view) ID() types.ModuleID { return v.id }
func (v view) Linked() bool       { return v.linked }
func (v view) Reloadable() bool   { return v.reloadable }
func (v view) HotAccepted() bool  { return v.hotAccepted }
func (v view) Generation() int    { return v.generation }
