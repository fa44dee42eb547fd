package graph

import "testing"

func Test_SnapshotCapturesNodeAndEdgeLevels(t *testing.T) {
	g := New()
	src := newTestSource(g)
	sink := newTestSink(g, 1)
	id := mustEdge(t, g, src, 0, sink, 0)
	e, _ := g.Edge(id)
	e.Params.SetGain(0.5)

	srcNode, _ := g.Node(src)
	srcNode.ClearBuffers(4)
	srcNode.OutputBuffer(0).WriteSamples([]float32{1, 1, 1, 1})
	srcNode.OutputPeakLevels() // refresh cache

	m := Snapshot(g, 42)
	if m.Timestamp != 42 {
		t.Errorf("Timestamp = %d, want 42", m.Timestamp)
	}
	if _, ok := m.Nodes[src]; !ok {
		t.Errorf("Nodes missing source handle %v", src)
	}
	if _, ok := m.Nodes[sink]; !ok {
		t.Errorf("Nodes missing sink handle %v", sink)
	}
	level, ok := m.Edges[id]
	if !ok {
		t.Fatalf("Edges missing edge %v", id)
	}
	if level != 0.5 {
		t.Errorf("edge level = %v, want 0.5 (peak 1.0 * gain 0.5)", level)
	}
}

func Test_SnapshotMutedEdgeHasZeroLevel(t *testing.T) {
	g := New()
	src := newTestSource(g)
	sink := newTestSink(g, 1)
	id := mustEdge(t, g, src, 0, sink, 0)
	e, _ := g.Edge(id)
	e.Params.SetMuted(true)

	srcNode, _ := g.Node(src)
	srcNode.ClearBuffers(4)
	srcNode.OutputBuffer(0).WriteSamples([]float32{1, 1, 1, 1})
	srcNode.OutputPeakLevels()

	m := Snapshot(g, 1)
	if m.Edges[id] != 0 {
		t.Errorf("muted edge level = %v, want 0", m.Edges[id])
	}
}
