package graph

// NodeMeter is one node's per-port input and output peak/RMS levels at the
// moment a GraphMeters snapshot was taken.
type NodeMeter struct {
	InputPeak  []float32
	InputRMS   []float32
	OutputPeak []float32
	OutputRMS  []float32
}

// GraphMeters is a metering snapshot: per-node input/output peak/RMS,
// per-edge post-gain level, and a monotonically increasing timestamp.
// Callers that read a GraphMeters via Processor.Meters should treat it as
// a point-in-time copy of the numbers, not a handle to retain: the
// real-time producer reuses a small ring of GraphMeters buffers
// (SnapshotInto) to avoid allocating on the audio thread, so a buffer's
// Nodes/Edges maps will be overwritten by a later callback.
type GraphMeters struct {
	Timestamp int64
	Nodes     map[NodeHandle]NodeMeter
	Edges     map[EdgeId]float32
}

// Snapshot walks g's current node and edge set and builds a fresh
// GraphMeters value from their cached peak/RMS levels. Convenient for
// control-plane callers (tests, one-shot reads); the audio thread instead
// calls SnapshotInto against a preallocated buffer it owns, since Snapshot
// itself allocates two fresh maps on every call.
func Snapshot(g *Graph, timestamp int64) GraphMeters {
	var m GraphMeters
	SnapshotInto(g, timestamp, &m)
	return m
}

// SnapshotInto walks g's current node and edge set into into, reusing
// into's existing Nodes/Edges maps (lazily allocating them only the first
// time into is used) instead of allocating fresh ones. Called once per
// callback by the graph processor (spec.md §4.7 step 5) against a
// processor-owned scratch buffer, so the steady-state per-callback path
// allocates no maps; the per-node level slices (and the handle and edge
// slices the graph accessors return) are still allocated on every call.
func SnapshotInto(g *Graph, timestamp int64, into *GraphMeters) {
	handles := g.NodeHandles()
	if into.Nodes == nil {
		into.Nodes = make(map[NodeHandle]NodeMeter, len(handles))
	} else {
		clear(into.Nodes)
	}
	for _, h := range handles {
		n, ok := g.Node(h)
		if !ok {
			continue
		}
		into.Nodes[h] = NodeMeter{
			InputPeak:  n.InputPeakLevels(),
			OutputPeak: n.OutputPeakLevels(),
			InputRMS:   n.InputRMSLevels(),
			OutputRMS:  n.OutputRMSLevels(),
		}
	}

	if into.Edges == nil {
		into.Edges = make(map[EdgeId]float32)
	} else {
		clear(into.Edges)
	}
	for _, h := range handles {
		for _, e := range g.EdgesTargeting(h) {
			src, ok := g.Node(e.SourceHandle)
			if !ok {
				continue
			}
			srcBuf := src.OutputBuffer(e.SourcePort)
			if srcBuf == nil {
				continue
			}
			level := srcBuf.Peak() * e.Params.Gain()
			if e.Params.Muted() {
				level = 0
			}
			into.Edges[e.ID] = level
		}
	}

	into.Timestamp = timestamp
}
