// SPDX-License-Identifier: MPL-2.0

package graph

import (
	"slices"
	"strings"
	"time"

	"github.com/lazymod/lazymod/internal/dag"
	"github.com/lazymod/lazymod/pkg/types"
)

type (
	// ModuleInfo describes one record for introspection.
	ModuleInfo struct {
		ID          types.ModuleID   `json:"id"`
		Kind        string           `json:"kind"`
		State       string           `json:"state"`
		Generation  int              `json:"generation"`
		HotAccepted bool             `json:"hot_accepted,omitempty"`
		Reloadable  bool             `json:"reloadable"`
		Imports     []types.ModuleID `json:"imports,omitempty"`
		Importers   []Edge           `json:"importers,omitempty"`
		Package     []types.ModuleID `json:"package,omitempty"`
		CompileTime time.Duration    `json:"compile_time,omitempty"`
		ExecTime    time.Duration    `json:"exec_time,omitempty"`
		LoadedAt    time.Time        `json:"loaded_at,omitzero"`
		Error       string           `json:"error,omitempty"`
	}

	// Edge is one importer edge.
	Edge struct {
		ID   types.ModuleID `json:"id"`
		Kind string         `json:"kind"`
	}
)

// Snapshot describes every record, sorted by id.
func (g *Graph) Snapshot() []ModuleInfo {
	g.mu.Lock()
	defer g.mu.Unlock()

	infos := make([]ModuleInfo, 0, len(g.compiled)+len(g.linked))
	for _, m := range g.compiled {
		info := ModuleInfo{
			ID:          m.ID,
			Kind:        m.Kind.String(),
			State:       m.state.String(),
			Generation:  m.generation,
			HotAccepted: m.hotAccepted,
			Reloadable:  true,
			Imports:     sortedSet(m.imports),
			Importers:   edges(m.importers),
			CompileTime: m.CompileTime,
			ExecTime:    m.execTime,
			LoadedAt:    m.loadedAt,
		}
		if m.pkg != nil {
			info.Package = m.pkg.sorted()
		}
		if m.err != nil {
			info.Error = m.err.Error()
		}
		infos = append(infos, info)
	}
	for _, m := range g.linked {
		infos = append(infos, ModuleInfo{
			ID:         m.ID,
			Kind:       "linked",
			State:      CellReady.String(),
			Reloadable: m.reloadable,
			Imports:    sortedSet(m.imports),
			Importers:  edges(m.importers),
		})
	}
	slices.SortFunc(infos, func(a, b ModuleInfo) int { return strings.Compare(string(a.ID), string(b.ID)) })
	return infos
}

// Order returns the records in dependency order, dependencies first. Each
// import cycle is returned as one group.
func (g *Graph) Order() [][]types.ModuleID {
	infos := g.Snapshot()
	known := make(map[types.ModuleID]bool, len(infos))
	d := dag.New()
	for _, info := range infos {
		known[info.ID] = true
		d.AddNode(string(info.ID))
	}
	for _, info := range infos {
		for _, dep := range info.Imports {
			if known[dep] {
				d.AddEdge(string(dep), string(info.ID))
			}
		}
	}
	groups := d.Groups()
	out := make([][]types.ModuleID, 0, len(groups))
	for _, group := range groups {
		ids := make([]types.ModuleID, 0, len(group))
		for _, name := range group {
			ids = append(ids, types.ModuleID(name))
		}
		out = append(out, ids)
	}
	return out
}

func sortedSet(set map[types.ModuleID]struct{}) []types.ModuleID {
	keys := make([]types.ModuleID, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func edges(set map[types.ModuleID]EdgeKind) []Edge {
	out := make([]Edge, 0, len(set))
	for _, id := range sortedKeys(set) {
		out = append(out, Edge{ID: id, Kind: set[id].String()})
	}
	return out
}
