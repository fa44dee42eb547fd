// Package processor implements the per-callback graph scheduler described
// in spec.md §4.7: the single synchronisation point between control
// threads (which publish new graphs) and audio threads (which process
// them). It generalises the atomic-pointer handoff the teacher's
// AudioEngine uses for its running/muted/deafened flags to a whole graph
// value, swapped in one atomic store per structural change.
package processor

import (
	"log/slog"
	"sync/atomic"

	"bken/mixcore/internal/audiobuf"
	"bken/mixcore/internal/graph"
)

// ReadSourceFunc fills a Source node's output buffer for one callback. It
// is implemented by the render driver, which knows how to resolve a
// SourceId to a ring-buffer read; the processor itself never touches a
// ring buffer directly.
type ReadSourceFunc func(id graph.SourceId, out *audiobuf.Buffer)

// Processor owns the currently published Graph behind an atomic pointer
// and the most recently published metering snapshot. Control threads call
// ReplaceGraph; audio threads call Process once per device callback.
type Processor struct {
	current atomic.Pointer[graph.Graph]
	meters  atomic.Pointer[graph.GraphMeters]
	tick    atomic.Int64

	// meterBufs is a double buffer the audio thread alternates between when
	// publishing a metering snapshot, so SnapshotInto does not allocate new
	// maps in steady state: each buffer's maps are allocated once, on its
	// first use, then cleared and refilled in place on every other callback.
	// meterBufIdx is touched only by the audio thread calling Process.
	meterBufs   [2]graph.GraphMeters
	meterBufIdx int
}

// New returns a Processor with no graph published yet; Process is a no-op
// until the first ReplaceGraph call.
func New() *Processor {
	return &Processor{}
}

// ReplaceGraph rebuilds g's topological order if needed and atomically
// publishes it as the current graph. Every subsequent callback on every
// render thread observes it (spec.md §5's acquire-release guarantee on the
// graph pointer — Go's atomic.Pointer gives this for free).
func (p *Processor) ReplaceGraph(g *graph.Graph) {
	cyclic := g.RebuildOrderIfNeeded()
	p.current.Store(g)
	slog.Info("processor: graph published", "nodes", g.NodeCount(), "cyclic", cyclic)
}

// Graph returns the currently published graph, or nil if none has been
// published yet.
func (p *Processor) Graph() *graph.Graph {
	return p.current.Load()
}

// Meters returns the most recently published metering snapshot. Returns
// the zero value if Process has never run.
func (p *Processor) Meters() graph.GraphMeters {
	m := p.meters.Load()
	if m == nil {
		return graph.GraphMeters{}
	}
	return *m
}

// Process runs one callback's worth of the per-callback algorithm from
// spec.md §4.7 against the currently published graph:
//
//  1. Acquire the graph (already order-rebuilt at publication time).
//  2. Clear every node's buffers to frames valid_frames of silence. The
//     spec text clears only nodes in topological order; this clears the
//     full node set instead, so a node left unscheduled by a cycle
//     (spec.md §8's boundary case) is guaranteed to read back as silence
//     rather than carrying stale samples over from a prior callback.
//  3. Fill every Source node's output via readSource.
//  4. For every other node in topological order, sum its active incoming
//     edges into its input ports, then call Process.
//  5. Publish a metering snapshot.
//
// frames == 0 performs no work and leaves the published meters unchanged,
// per spec.md §8's boundary behaviour. Process calls back into no user code
// other than readSource. It is not allocation- or lock-free: every graph
// accessor it uses (NodeHandles, Node, Order, EdgesTargeting) takes the
// graph's sync.Mutex, NodeHandles/Order/EdgesTargeting return freshly
// allocated slices, and the metering snapshot allocates each node's level
// slices.
func (p *Processor) Process(frames int, readSource ReadSourceFunc) {
	g := p.current.Load()
	if g == nil || frames <= 0 {
		return
	}

	for _, h := range g.NodeHandles() {
		if n, ok := g.Node(h); ok {
			n.ClearBuffers(frames)
		}
	}

	order := g.Order()

	for _, h := range order {
		n, ok := g.Node(h)
		if !ok || n.Kind() != graph.KindSource {
			continue
		}
		src, ok := n.(*graph.SourceNode)
		if !ok {
			continue
		}
		if readSource != nil {
			readSource(src.ID(), src.OutputBuffer(0))
		}
		src.Process(frames)
	}

	for _, h := range order {
		n, ok := g.Node(h)
		if !ok || n.Kind() == graph.KindSource {
			continue
		}
		for _, e := range g.EdgesTargeting(h) {
			if !e.Params.Active() {
				continue
			}
			srcNode, ok := g.Node(e.SourceHandle)
			if !ok {
				continue
			}
			srcBuf := srcNode.OutputBuffer(e.SourcePort)
			dstBuf := n.InputBuffer(e.TargetPort)
			if srcBuf == nil || dstBuf == nil {
				continue
			}
			dstBuf.MixFrom(srcBuf, e.Params.Gain())
		}
		n.Process(frames)
	}

	ts := p.tick.Add(1)
	buf := &p.meterBufs[p.meterBufIdx]
	graph.SnapshotInto(g, ts, buf)
	p.meters.Store(buf)
	p.meterBufIdx = (p.meterBufIdx + 1) % len(p.meterBufs)
}
