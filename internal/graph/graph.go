// Package graph implements the routing graph's data model: nodes, edges,
// and the topologically-ordered graph store itself (spec.md §3, §4.4-§4.6).
// A Graph is a control-plane value: one goroutine (or a mutex-guarded set
// of control threads) builds and mutates it, then hands it to a processor
// for atomic publication. Once published, structural fields are read-only
// from the audio thread's perspective — only the per-edge Params cells and
// per-sink output gain cells remain mutable in place, by design (see
// DESIGN.md's notes on the "RCU on graph" open question).
package graph

import (
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
)

// Graph owns the node map, edge list, cached topological order, and dirty
// flag described in spec.md §3.
type Graph struct {
	mu sync.Mutex

	nodes     map[NodeHandle]Node
	nodeOrder []NodeHandle // insertion order, for deterministic iteration
	edges     map[EdgeId]*Edge
	edgeOrder []EdgeId

	order []NodeHandle
	dirty bool

	nextNodeHandle atomic.Uint32
	nextEdgeID     atomic.Uint32

	topologyVersion int
	cycleWarnedAt   int // topologyVersion at which the last cycle warning was logged
}

// New returns an empty Graph.
func New() *Graph {
	return &Graph{
		nodes: make(map[NodeHandle]Node),
		edges: make(map[EdgeId]*Edge),
		dirty: true,
	}
}

// Clone returns a new Graph sharing this graph's Node and Edge values (and
// therefore their Params/output-gain cells) but with independent maps, so
// that structural mutations on the clone never touch the graph a render
// thread currently holds via the processor's published pointer.
func (g *Graph) Clone() *Graph {
	g.mu.Lock()
	defer g.mu.Unlock()

	clone := &Graph{
		nodes:           make(map[NodeHandle]Node, len(g.nodes)),
		nodeOrder:       append([]NodeHandle(nil), g.nodeOrder...),
		edges:           make(map[EdgeId]*Edge, len(g.edges)),
		edgeOrder:       append([]EdgeId(nil), g.edgeOrder...),
		order:           append([]NodeHandle(nil), g.order...),
		dirty:           g.dirty,
		topologyVersion: g.topologyVersion,
		cycleWarnedAt:   g.cycleWarnedAt,
	}
	for h, n := range g.nodes {
		clone.nodes[h] = n
	}
	for id, e := range g.edges {
		clone.edges[id] = e
	}
	clone.nextNodeHandle.Store(g.nextNodeHandle.Load())
	clone.nextEdgeID.Store(g.nextEdgeID.Load())
	return clone
}

// AddNode allocates a fresh handle, inserts node, and marks the graph dirty.
func (g *Graph) AddNode(n Node) NodeHandle {
	g.mu.Lock()
	defer g.mu.Unlock()

	h := NodeHandle(g.nextNodeHandle.Add(1))
	g.nodes[h] = n
	g.nodeOrder = append(g.nodeOrder, h)
	g.dirty = true
	return h
}

// RemoveNode removes node h and every edge incident to it in the same
// control-plane transition, per spec.md's "node removal ≡ edge removal"
// invariant. Reports whether h was present.
func (g *Graph) RemoveNode(h NodeHandle) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.nodes[h]; !ok {
		return false
	}
	delete(g.nodes, h)
	g.nodeOrder = removeHandle(g.nodeOrder, h)

	var kept []EdgeId
	for _, id := range g.edgeOrder {
		e := g.edges[id]
		if e.SourceHandle == h || e.TargetHandle == h {
			delete(g.edges, id)
			continue
		}
		kept = append(kept, id)
	}
	g.edgeOrder = kept
	g.dirty = true
	return true
}

// AddEdge allocates a fresh EdgeId and connects src:sp → tgt:tp with
// unity gain, unmuted. Fails with ErrNodeNotFound if either endpoint is
// absent, ErrInvalidPort if either port is out of range for its node, or
// ErrDuplicateEdge if the (source, source_port, target, target_port)
// quadruple already exists.
func (g *Graph) AddEdge(src NodeHandle, sp PortId, tgt NodeHandle, tp PortId) (EdgeId, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	srcNode, ok := g.nodes[src]
	if !ok {
		return 0, ErrNodeNotFound
	}
	tgtNode, ok := g.nodes[tgt]
	if !ok {
		return 0, ErrNodeNotFound
	}
	if int(sp) >= srcNode.OutputPortCount() {
		return 0, ErrInvalidPort
	}
	if int(tp) >= tgtNode.InputPortCount() {
		return 0, ErrInvalidPort
	}

	key := endpointKey{src: src, sp: sp, tgt: tgt, tp: tp}
	for _, id := range g.edgeOrder {
		e := g.edges[id]
		if (endpointKey{e.SourceHandle, e.SourcePort, e.TargetHandle, e.TargetPort}) == key {
			return 0, ErrDuplicateEdge
		}
	}

	id := EdgeId(g.nextEdgeID.Add(1))
	g.edges[id] = &Edge{
		ID:           id,
		SourceHandle: src,
		SourcePort:   sp,
		TargetHandle: tgt,
		TargetPort:   tp,
		Params:       NewParams(1.0, false),
	}
	g.edgeOrder = append(g.edgeOrder, id)
	g.dirty = true
	return id, nil
}

// RemoveEdge removes the edge with the given id. Reports whether it was
// present.
func (g *Graph) RemoveEdge(id EdgeId) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.edges[id]; !ok {
		return false
	}
	delete(g.edges, id)
	g.edgeOrder = removeEdgeID(g.edgeOrder, id)
	g.dirty = true
	return true
}

// Node returns the node with handle h, if present.
func (g *Graph) Node(h NodeHandle) (Node, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	n, ok := g.nodes[h]
	return n, ok
}

// Edge returns the edge with id, if present.
func (g *Graph) Edge(id EdgeId) (*Edge, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	e, ok := g.edges[id]
	return e, ok
}

// NodeCount returns the number of nodes currently in the graph.
func (g *Graph) NodeCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.nodes)
}

// NodeHandles returns every node handle, in insertion order.
func (g *Graph) NodeHandles() []NodeHandle {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]NodeHandle(nil), g.nodeOrder...)
}

// EdgesTargeting returns every edge whose target is h, in insertion order.
func (g *Graph) EdgesTargeting(h NodeHandle) []*Edge {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []*Edge
	for _, id := range g.edgeOrder {
		e := g.edges[id]
		if e.TargetHandle == h {
			out = append(out, e)
		}
	}
	return out
}

// Order returns the cached topological order. Only meaningful when Dirty()
// is false.
func (g *Graph) Order() []NodeHandle {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]NodeHandle(nil), g.order...)
}

// Dirty reports whether the cached order needs to be rebuilt.
func (g *Graph) Dirty() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.dirty
}

// RebuildOrderIfNeeded recomputes the topological order via Kahn's
// algorithm when dirty, per spec.md §4.6. Returns true if a cycle was
// detected (the cached order is then only the acyclic prefix that could be
// scheduled). Safe to call even when not dirty — it is then a no-op.
func (g *Graph) RebuildOrderIfNeeded() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.dirty {
		return false
	}

	order, cyclic := kahn(g.nodes, g.nodeOrder, g.edges, g.edgeOrder)
	g.order = order
	g.dirty = false
	g.topologyVersion++

	if cyclic && g.cycleWarnedAt != g.topologyVersion {
		g.cycleWarnedAt = g.topologyVersion
		slog.Warn("graph: cycle detected, scheduling acyclic prefix only",
			"topology_version", g.topologyVersion,
			"scheduled", len(order),
			"total", len(g.nodes))
	}
	return cyclic
}

// kahn computes a topological order of nodes over the set of distinct
// (source → target) node pairs implied by edges. In-degree for a node is
// the count of distinct source nodes feeding it; multiple edges (e.g.
// across ports) between the same pair count once. Ties among zero-in-degree
// nodes are broken by kind (Source < Bus < Sink), then by handle, so the
// order is deterministic. Returns (order, cyclic).
func kahn(nodes map[NodeHandle]Node, nodeOrder []NodeHandle, edges map[EdgeId]*Edge, edgeOrder []EdgeId) ([]NodeHandle, bool) {
	distinctOut := make(map[NodeHandle]map[NodeHandle]bool) // src -> set(tgt)
	distinctIn := make(map[NodeHandle]map[NodeHandle]bool)  // tgt -> set(src)

	for _, id := range edgeOrder {
		e := edges[id]
		if distinctOut[e.SourceHandle] == nil {
			distinctOut[e.SourceHandle] = make(map[NodeHandle]bool)
		}
		distinctOut[e.SourceHandle][e.TargetHandle] = true
		if distinctIn[e.TargetHandle] == nil {
			distinctIn[e.TargetHandle] = make(map[NodeHandle]bool)
		}
		distinctIn[e.TargetHandle][e.SourceHandle] = true
	}

	inDegree := make(map[NodeHandle]int, len(nodeOrder))
	for _, h := range nodeOrder {
		inDegree[h] = len(distinctIn[h])
	}

	ready := make([]NodeHandle, 0, len(nodeOrder))
	for _, h := range nodeOrder {
		if inDegree[h] == 0 {
			ready = append(ready, h)
		}
	}
	sortReady(ready, nodes)

	var result []NodeHandle
	for len(ready) > 0 {
		h := ready[0]
		ready = ready[1:]
		result = append(result, h)

		var newlyReady []NodeHandle
		for tgt := range distinctOut[h] {
			inDegree[tgt]--
			if inDegree[tgt] == 0 {
				newlyReady = append(newlyReady, tgt)
			}
		}
		if len(newlyReady) > 0 {
			sortReady(newlyReady, nodes)
			ready = mergeReady(ready, newlyReady, nodes)
		}
	}

	return result, len(result) < len(nodeOrder)
}

// sortReady orders a batch of zero-in-degree handles by (kind, handle) for
// determinism.
func sortReady(handles []NodeHandle, nodes map[NodeHandle]Node) {
	sort.Slice(handles, func(i, j int) bool {
		ki, kj := nodes[handles[i]].Kind(), nodes[handles[j]].Kind()
		if ki != kj {
			return ki < kj
		}
		return handles[i] < handles[j]
	})
}

// mergeReady merges newlyReady into the existing ready queue, keeping the
// combined queue sorted by (kind, handle).
func mergeReady(ready, newlyReady []NodeHandle, nodes map[NodeHandle]Node) []NodeHandle {
	combined := append(ready, newlyReady...)
	sortReady(combined, nodes)
	return combined
}

func removeHandle(s []NodeHandle, h NodeHandle) []NodeHandle {
	for i, v := range s {
		if v == h {
			return append(s[:i], s[i+1:]...)
		}
	}
	return s
}

func removeEdgeID(s []EdgeId, id EdgeId) []EdgeId {
	for i, v := range s {
		if v == id {
			return append(s[:i], s[i+1:]...)
		}
	}
	return s
}
