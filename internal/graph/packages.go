// SPDX-License-Identifier: MPL-2.0

package graph

import (
	"maps"
	"slices"

	"github.com/lazymod/lazymod/pkg/types"
)

// PackageSet groups compiled modules that reach each other through relative
// imports.
type PackageSet struct {
	members map[types.ModuleID]struct{}
}

// MergePackages unions the package sets of two compiled modules. Modules
// missing from the map are ignored.
func (g *Graph) MergePackages(a, b types.ModuleID) {
	g.mu.Lock()
	defer g.mu.Unlock()

	ma, mb := g.compiled[a], g.compiled[b]
	if ma == nil || mb == nil || a == b {
		return
	}
	switch {
	case ma.pkg == nil && mb.pkg == nil:
		set := &PackageSet{members: map[types.ModuleID]struct{}{a: {}, b: {}}}
		ma.pkg, mb.pkg = set, set
	case ma.pkg == nil:
		g.join(mb.pkg, ma)
	case mb.pkg == nil:
		g.join(ma.pkg, mb)
	case ma.pkg != mb.pkg:
		into, from := ma.pkg, mb.pkg
		if len(from.members) > len(into.members) {
			into, from = from, into
		}
		for id := range from.members {
			if m := g.compiled[id]; m != nil {
				g.join(into, m)
			}
		}
	}
}

// PackageMembers returns the members of id's package set, sorted. A module
// without a set is alone.
func (g *Graph) PackageMembers(id types.ModuleID) []types.ModuleID {
	g.mu.Lock()
	defer g.mu.Unlock()
	m := g.compiled[id]
	if m == nil || m.pkg == nil {
		return nil
	}
	return m.pkg.sorted()
}

func (g *Graph) join(set *PackageSet, m *CompiledModule) {
	set.members[m.ID] = struct{}{}
	m.pkg = set
}

// leave removes m from its package set. Callers hold g.mu.
func (g *Graph) leave(m *CompiledModule) {
	if m.pkg == nil {
		return
	}
	delete(m.pkg.members, m.ID)
	m.pkg = nil
}

func (p *PackageSet) sorted() []types.ModuleID {
	return slices.Sorted(maps.Keys(p.members))
}
