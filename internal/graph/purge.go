// SPDX-License-Identifier: MPL-2.0

package graph

import (
	"log/slog"
	"slices"

	"github.com/lazymod/lazymod/pkg/types"
)

type (
	// PurgeOptions customises a purge walk. Callbacks run under the graph
	// lock and must not call back into the Graph.
	PurgeOptions struct {
		// Accept reports whether m absorbs the change that reached it through
		// dep. Propagation stops past accepting modules. The root is asked
		// with itself as dep. Defaults to m.HotAccepted().
		Accept func(m, dep Module) bool
		// OnPurge is called for every visited module. Calling stop ends
		// propagation past m.
		OnPurge func(m Module, accepted bool, stop func())
	}

	// PurgeResult lists what a purge touched.
	PurgeResult struct {
		// Visited holds every cleared module in visiting order, root first.
		Visited []types.ModuleID
		// Accepted holds the modules where propagation stopped.
		Accepted []types.ModuleID
		// Removed reports whether the root had a record in the map.
		Removed bool
	}

	visit struct {
		id  types.ModuleID
		dep types.ModuleID
	}
)

// Purge invalidates id and, breadth first along importer edges, every
// module that depends on it. Visited modules get their exports cleared and
// their import edges removed; the root record is removed from the map and
// from its package set while its importer edges are kept for the next
// record. Dispose hooks run after the graph lock is released. Purge never
// panics.
func (g *Graph) Purge(id types.ModuleID, opts PurgeOptions) PurgeResult {
	accept := opts.Accept
	if accept == nil {
		accept = func(m, _ Module) bool { return m.HotAccepted() }
	}

	g.mu.Lock()
	var (
		result    PurgeResult
		disposers []func()
		touched   = map[types.ModuleID]bool{id: true}
		queue     = []visit{{id: id, dep: id}}
		views     = make(map[types.ModuleID]Module)
	)
	g.epoch[id]++
	g.flight.Forget(string(id))

	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]

		v, importers, ok := g.visitLocked(next.id)
		if !ok {
			continue
		}
		views[next.id] = v
		depView, ok := views[next.dep]
		if !ok {
			depView = v
		}

		accepted := safeAccept(accept, v, depView)
		stopped := accepted
		if opts.OnPurge != nil {
			safeOnPurge(opts.OnPurge, v, accepted, func() { stopped = true })
		}

		result.Visited = append(result.Visited, next.id)
		if m := g.compiled[next.id]; m != nil {
			disposers = append(disposers, m.clear()...)
			g.removeOutgoing(next.id, m.imports)
		} else if m := g.linked[next.id]; m != nil {
			g.removeOutgoing(next.id, m.imports)
		}
		if stopped {
			result.Accepted = append(result.Accepted, next.id)
			continue
		}
		for _, importer := range importers {
			if !touched[importer] {
				touched[importer] = true
				queue = append(queue, visit{id: importer, dep: next.id})
			}
		}
	}

	result.Removed = g.removeLocked(id)
	g.mu.Unlock()

	for _, fn := range disposers {
		runDisposer(id, fn)
	}
	slog.Debug("module purged", "module", id, "visited", len(result.Visited), "accepted", len(result.Accepted))
	return result
}

// visitLocked returns the view and sorted importers of a compiled or
// linked record.
func (g *Graph) visitLocked(id types.ModuleID) (Module, []types.ModuleID, bool) {
	if m := g.compiled[id]; m != nil {
		return m.view(), sortedKeys(m.importers), true
	}
	if m := g.linked[id]; m != nil {
		return m.view(), sortedKeys(m.importers), true
	}
	return nil, nil, false
}

// removeLocked drops the root record, keeping its importers pending.
func (g *Graph) removeLocked(id types.ModuleID) bool {
	var importers map[types.ModuleID]EdgeKind
	if m := g.compiled[id]; m != nil {
		g.leave(m)
		importers = m.importers
		delete(g.compiled, id)
	} else if m := g.linked[id]; m != nil {
		importers = m.importers
		delete(g.linked, id)
	} else {
		return false
	}
	if len(importers) > 0 {
		set := g.importersOf(id)
		for importer, kind := range importers {
			addImporter(set, importer, kind)
		}
	}
	return true
}

func sortedKeys(set map[types.ModuleID]EdgeKind) []types.ModuleID {
	keys := make([]types.ModuleID, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func safeAccept(accept func(m, dep Module) bool, m, dep Module) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("accept callback panicked", "module", m.ID(), "panic", r)
			ok = false
		}
	}()
	return accept(m, dep)
}

func safeOnPurge(fn func(Module, bool, func()), m Module, accepted bool, stop func()) {
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("purge callback panicked", "module", m.ID(), "panic", r)
		}
	}()
	fn(m, accepted, stop)
}

func runDisposer(root types.ModuleID, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("dispose hook panicked", "purged", root, "panic", r)
		}
	}()
	fn()
}
