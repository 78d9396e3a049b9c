// SPDX-License-Identifier: MPL-2.0

// Package graph is the module map: compiled and linked module records, the
// edges between them, package sets and the in-flight compile index. Every
// mutation happens under one mutex; compiles run outside it and are
// coalesced per identifier.
package graph

import (
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/lazymod/lazymod/pkg/types"
)

const (
	// EdgeStatic is an import declaration or re-export.
	EdgeStatic EdgeKind = iota + 1
	// EdgeDynamic is an import() call.
	EdgeDynamic
)

type (
	// EdgeKind tags an importer edge.
	EdgeKind uint8

	// CompileFunc produces a compiled module record for an identifier.
	CompileFunc func() (*CompiledModule, error)

	// Graph is the module map.
	Graph struct {
		mu       sync.Mutex
		compiled map[types.ModuleID]*CompiledModule
		linked   map[types.ModuleID]*LinkedModule
		// pending keeps the importers of purged records until the module is
		// compiled or linked again.
		pending map[types.ModuleID]map[types.ModuleID]EdgeKind
		// epoch is bumped whenever a record is removed so a compile that
		// started earlier does not store a stale record.
		epoch  map[types.ModuleID]uint64
		flight singleflight.Group
	}
)

// String returns "static" or "dynamic".
func (k EdgeKind) String() string {
	switch k {
	case EdgeStatic:
		return "static"
	case EdgeDynamic:
		return "dynamic"
	default:
		return "unknown"
	}
}

// New creates an empty Graph.
func New() *Graph {
	return &Graph{
		compiled: make(map[types.ModuleID]*CompiledModule),
		linked:   make(map[types.ModuleID]*LinkedModule),
		pending:  make(map[types.ModuleID]map[types.ModuleID]EdgeKind),
		epoch:    make(map[types.ModuleID]uint64),
	}
}

// Compiled returns the compiled record for id.
func (g *Graph) Compiled(id types.ModuleID) (*CompiledModule, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	m, ok := g.compiled[id]
	return m, ok
}

// Linked returns the linked record for id.
func (g *Graph) Linked(id types.ModuleID) (*LinkedModule, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	m, ok := g.linked[id]
	return m, ok
}

// Len returns the number of compiled and linked records.
func (g *Graph) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.compiled) + len(g.linked)
}

// Compile returns the record for id, compiling it with fn when the map has
// none. Concurrent callers for the same id share one call of fn. A failing
// fn yields a Failed record that is stored like any other, so the error is
// reported to every requester until the module is purged.
func (g *Graph) Compile(id types.ModuleID, fn CompileFunc) *CompiledModule {
	g.mu.Lock()
	if m, ok := g.compiled[id]; ok {
		g.mu.Unlock()
		return m
	}
	g.mu.Unlock()

	v, _, shared := g.flight.Do(string(id), func() (any, error) {
		g.mu.Lock()
		if m, ok := g.compiled[id]; ok {
			g.mu.Unlock()
			return m, nil
		}
		epoch := g.epoch[id]
		g.mu.Unlock()

		m, err := fn()
		if err != nil {
			m = &CompiledModule{ID: id, state: CellFailed, err: err}
		}
		m.ID = id
		m.init()

		g.mu.Lock()
		defer g.mu.Unlock()
		m.g = g
		if g.epoch[id] != epoch {
			slog.Debug("discarding compile superseded by purge", "module", id)
			return m, nil
		}
		g.compiled[id] = m
		g.adoptPending(id, m.importers)
		return m, nil
	})
	if shared {
		slog.Debug("joined in-flight compile", "module", id)
	}
	return v.(*CompiledModule)
}

// Link records a module loaded by the legacy loader. An existing record is
// updated in place.
func (g *Graph) Link(id types.ModuleID, reloadable bool, exports ExportsFunc) *LinkedModule {
	g.mu.Lock()
	defer g.mu.Unlock()
	if m, ok := g.linked[id]; ok {
		m.reloadable = reloadable
		m.exports = exports
		return m
	}
	m := &LinkedModule{
		ID:         id,
		reloadable: reloadable,
		exports:    exports,
		imports:    make(map[types.ModuleID]struct{}),
		importers:  make(map[types.ModuleID]EdgeKind),
	}
	g.linked[id] = m
	g.adoptPending(id, m.importers)
	return m
}

// AddEdge records that importer requested dep. An edge that is already
// static stays static. Unknown importers are ignored; an unknown dep keeps
// the edge until it is compiled or linked.
func (g *Graph) AddEdge(importer, dep types.ModuleID, kind EdgeKind) {
	g.mu.Lock()
	defer g.mu.Unlock()

	switch {
	case g.compiled[importer] != nil:
		g.compiled[importer].imports[dep] = struct{}{}
	case g.linked[importer] != nil:
		g.linked[importer].imports[dep] = struct{}{}
	default:
		return
	}
	addImporter(g.importersOf(dep), importer, kind)
}

func addImporter(set map[types.ModuleID]EdgeKind, importer types.ModuleID, kind EdgeKind) {
	if set[importer] != EdgeStatic {
		set[importer] = kind
	}
}

// importersOf returns the importer set of id, creating a pending one for
// modules not in the map. Callers hold g.mu.
func (g *Graph) importersOf(id types.ModuleID) map[types.ModuleID]EdgeKind {
	if m := g.compiled[id]; m != nil {
		return m.importers
	}
	if m := g.linked[id]; m != nil {
		return m.importers
	}
	set := g.pending[id]
	if set == nil {
		set = make(map[types.ModuleID]EdgeKind)
		g.pending[id] = set
	}
	return set
}

func (g *Graph) adoptPending(id types.ModuleID, into map[types.ModuleID]EdgeKind) {
	for importer, kind := range g.pending[id] {
		addImporter(into, importer, kind)
	}
	delete(g.pending, id)
}

// removeOutgoing drops every import edge of id in both directions. Callers
// hold g.mu.
func (g *Graph) removeOutgoing(id types.ModuleID, imports map[types.ModuleID]struct{}) {
	for dep := range imports {
		switch {
		case g.compiled[dep] != nil:
			delete(g.compiled[dep].importers, id)
		case g.linked[dep] != nil:
			delete(g.linked[dep].importers, id)
		case g.pending[dep] != nil:
			delete(g.pending[dep], id)
			if len(g.pending[dep]) == 0 {
				delete(g.pending, dep)
			}
		}
		delete(imports, dep)
	}
}
