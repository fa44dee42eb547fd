// Package control implements the control surface of spec.md §4.10: the set
// of operations a front end (RPC, CLI, or daemon) may call to mutate or
// inspect a running graph. Every mutation here either touches an atomic
// parameter cell in place or clones the graph, mutates the clone, and
// republishes it — never the published instance itself, per the
// publication discipline in internal/graph's package doc.
package control

import (
	"bken/mixcore/internal/graph"
	"bken/mixcore/internal/processor"
)

// Surface is the single control entry point wrapping one Processor's
// currently published graph.
type Surface struct {
	proc *processor.Processor
}

// New returns a control Surface over proc.
func New(proc *processor.Processor) *Surface {
	return &Surface{proc: proc}
}

// SetEdgeGain sets an edge's gain in place; it is always safe because
// Params.Gain is an atomic cell and does not require a graph republish.
func (s *Surface) SetEdgeGain(id graph.EdgeId, gain float32) bool {
	g := s.proc.Graph()
	if g == nil {
		return false
	}
	e, ok := g.Edge(id)
	if !ok {
		return false
	}
	e.Params.SetGain(gain)
	return true
}

// SetEdgeMuted sets an edge's mute flag in place.
func (s *Surface) SetEdgeMuted(id graph.EdgeId, muted bool) bool {
	g := s.proc.Graph()
	if g == nil {
		return false
	}
	e, ok := g.Edge(id)
	if !ok {
		return false
	}
	e.Params.SetMuted(muted)
	return true
}

// SetSinkOutputGain sets one port's output gain on a Sink node in place.
func (s *Surface) SetSinkOutputGain(h graph.NodeHandle, port graph.PortId, gain float32) bool {
	g := s.proc.Graph()
	if g == nil {
		return false
	}
	n, ok := g.Node(h)
	if !ok {
		return false
	}
	sink, ok := n.(*graph.SinkNode)
	if !ok {
		return false
	}
	sink.SetOutputGain(port, gain)
	return true
}

// AddNode clones the current graph, adds n to the clone, and republishes
// it, returning the new node's handle. If no graph is published yet, a
// fresh one is created.
func (s *Surface) AddNode(n graph.Node) graph.NodeHandle {
	g := s.currentOrNew()
	clone := g.Clone()
	h := clone.AddNode(n)
	s.proc.ReplaceGraph(clone)
	return h
}

// RemoveNode clones the current graph, removes h (and every edge incident
// to it) from the clone, and republishes it.
func (s *Surface) RemoveNode(h graph.NodeHandle) bool {
	g := s.proc.Graph()
	if g == nil {
		return false
	}
	clone := g.Clone()
	ok := clone.RemoveNode(h)
	if ok {
		s.proc.ReplaceGraph(clone)
	}
	return ok
}

// AddEdge clones the current graph, adds the edge to the clone, and
// republishes it.
func (s *Surface) AddEdge(src graph.NodeHandle, sp graph.PortId, tgt graph.NodeHandle, tp graph.PortId) (graph.EdgeId, error) {
	g := s.currentOrNew()
	clone := g.Clone()
	id, err := clone.AddEdge(src, sp, tgt, tp)
	if err != nil {
		return 0, err
	}
	s.proc.ReplaceGraph(clone)
	return id, nil
}

// RemoveEdge clones the current graph, removes the edge from the clone, and
// republishes it.
func (s *Surface) RemoveEdge(id graph.EdgeId) bool {
	g := s.proc.Graph()
	if g == nil {
		return false
	}
	clone := g.Clone()
	ok := clone.RemoveEdge(id)
	if ok {
		s.proc.ReplaceGraph(clone)
	}
	return ok
}

// ReplaceGraph republishes an entirely new graph, e.g. one loaded from
// persisted configuration at startup.
func (s *Surface) ReplaceGraph(g *graph.Graph) {
	s.proc.ReplaceGraph(g)
}

// ReadMeters returns the most recently published metering snapshot.
func (s *Surface) ReadMeters() graph.GraphMeters {
	return s.proc.Meters()
}

func (s *Surface) currentOrNew() *graph.Graph {
	if g := s.proc.Graph(); g != nil {
		return g
	}
	return graph.New()
}
