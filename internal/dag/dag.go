// SPDX-License-Identifier: MPL-2.0

// Package dag orders module graphs. Edges point from a dependency to the
// module that imports it, so a topological order loads dependencies first.
// Import cycles are legal in module graphs; Groups collapses each cycle into
// one group instead of failing.
package dag

import (
	"fmt"
	"strings"
)

type (
	// CycleError indicates that the graph contains a cycle, preventing a strict
	// topological ordering.
	CycleError struct {
		// Cycle lists the nodes still carrying incoming edges once Kahn's
		// algorithm stalls; every cycle is among them.
		Cycle []string
	}

	// Graph is a directed graph keyed by string node names. An edge from A to
	// B means A must be ordered before B.
	Graph struct {
		adjacency map[string][]string
		// nodes keeps insertion order so output is deterministic.
		nodes   []string
		nodeSet map[string]bool
	}
)

func (e *CycleError) Error() string {
	return fmt.Sprintf("import cycle detected: %s", strings.Join(e.Cycle, " -> "))
}

// New creates an empty Graph.
func New() *Graph {
	return &Graph{
		adjacency: make(map[string][]string),
		nodeSet:   make(map[string]bool),
	}
}

// AddNode adds a node; existing nodes are left untouched.
func (g *Graph) AddNode(name string) {
	if g.nodeSet[name] {
		return
	}
	g.nodeSet[name] = true
	g.nodes = append(g.nodes, name)
}

// AddEdge adds from -> to, adding both nodes if needed. Duplicate edges are ignored.
func (g *Graph) AddEdge(from, to string) {
	g.AddNode(from)
	g.AddNode(to)
	for _, existing := range g.adjacency[from] {
		if existing == to {
			return
		}
	}
	g.adjacency[from] = append(g.adjacency[from], to)
}

// Len returns the number of nodes.
func (g *Graph) Len() int { return len(g.nodes) }

// TopologicalSort returns a strict order using Kahn's algorithm, or a
// CycleError. Nodes at the same level keep insertion order.
func (g *Graph) TopologicalSort() ([]string, error) {
	if len(g.nodes) == 0 {
		return nil, nil
	}

	inDegree := make(map[string]int, len(g.nodes))
	for _, neighbors := range g.adjacency {
		for _, neighbor := range neighbors {
			inDegree[neighbor]++
		}
	}

	queue := make([]string, 0, len(g.nodes))
	for _, node := range g.nodes {
		if inDegree[node] == 0 {
			queue = append(queue, node)
		}
	}

	result := make([]string, 0, len(g.nodes))
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		result = append(result, node)

		for _, neighbor := range g.adjacency[node] {
			inDegree[neighbor]--
			if inDegree[neighbor] == 0 {
				queue = append(queue, neighbor)
			}
		}
	}

	if len(result) != len(g.nodes) {
		var cycleNodes []string
		for _, node := range g.nodes {
			if inDegree[node] > 0 {
				cycleNodes = append(cycleNodes, node)
			}
		}
		return nil, &CycleError{Cycle: cycleNodes}
	}
	return result, nil
}

// Groups returns the strongly connected components in topological order.
// Acyclic nodes form singleton groups; each import cycle (including a
// self-import) forms one group whose members keep insertion order.
func (g *Graph) Groups() [][]string {
	if len(g.nodes) == 0 {
		return nil
	}

	order := make(map[string]int, len(g.nodes))
	for i, n := range g.nodes {
		order[n] = i
	}

	// Tarjan's algorithm; components come out in reverse topological order.
	var (
		index    int
		stack    []string
		onStack  = make(map[string]bool)
		indices  = make(map[string]int)
		lowlink  = make(map[string]int)
		sccs     [][]string
		strongly func(v string)
	)
	strongly = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range g.adjacency[v] {
			if _, seen := indices[w]; !seen {
				strongly(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		if lowlink[v] != indices[v] {
			return
		}
		var comp []string
		for {
			w := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			onStack[w] = false
			comp = append(comp, w)
			if w == v {
				break
			}
		}
		sortByOrder(comp, order)
		sccs = append(sccs, comp)
	}
	for _, n := range g.nodes {
		if _, seen := indices[n]; !seen {
			strongly(n)
		}
	}

	// Condense and order components with Kahn so ties keep insertion order.
	compOf := make(map[string]int, len(g.nodes))
	for i, comp := range sccs {
		for _, n := range comp {
			compOf[n] = i
		}
	}
	condensed := New()
	key := func(i int) string { return sccs[i][0] }
	for _, n := range g.nodes {
		if n == key(compOf[n]) {
			condensed.AddNode(n)
		}
	}
	for _, from := range g.nodes {
		for _, to := range g.adjacency[from] {
			if cf, ct := compOf[from], compOf[to]; cf != ct {
				condensed.AddEdge(key(cf), key(ct))
			}
		}
	}
	heads, err := condensed.TopologicalSort()
	if err != nil {
		// Unreachable: a condensation is acyclic.
		panic(err)
	}

	groups := make([][]string, 0, len(heads))
	for _, h := range heads {
		groups = append(groups, sccs[compOf[h]])
	}
	return groups
}

// Cycles returns only the groups that form a cycle.
func (g *Graph) Cycles() [][]string {
	var cycles [][]string
	for _, group := range g.Groups() {
		if len(group) > 1 || g.hasEdge(group[0], group[0]) {
			cycles = append(cycles, group)
		}
	}
	return cycles
}

func (g *Graph) hasEdge(from, to string) bool {
	for _, n := range g.adjacency[from] {
		if n == to {
			return true
		}
	}
	return false
}

func sortByOrder(nodes []string, order map[string]int) {
	for i := 1; i < len(nodes); i++ {
		for j := i; j > 0 && order[nodes[j]] < order[nodes[j-1]]; j-- {
			nodes[j], nodes[j-1] = nodes[j-1], nodes[j]
		}
	}
}
