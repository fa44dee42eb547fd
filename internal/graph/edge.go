package graph

import (
	"math"
	"sync/atomic"
)

// edgeSilenceGain is the |gain| threshold below which an edge is treated
// as contributing nothing, per spec.md §4.5.
const edgeSilenceGain = 1e-4

// Params is an edge's lock-free parameter cell: gain as a bit-punned
// float32 and muted as an atomic bool. Writers use relaxed ordering — Go's
// atomic package gives sequentially consistent loads/stores, which is at
// least as strong as the relaxed ordering spec.md asks for for this field;
// the important property (no torn reads of a 32-bit gain) holds either way.
type Params struct {
	gain  atomic.Uint32
	muted atomic.Bool
}

// NewParams returns a Params cell initialised to the given gain and mute
// state. gain is coerced/clamped the same way SetGain does.
func NewParams(gain float32, muted bool) *Params {
	p := &Params{}
	p.SetGain(gain)
	p.muted.Store(muted)
	return p
}

// Gain returns the current gain.
func (p *Params) Gain() float32 {
	return math.Float32frombits(p.gain.Load())
}

// SetGain coerces a non-finite gain to 1.0 and clamps a finite one to
// [0, 4], then stores it atomically.
func (p *Params) SetGain(g float32) {
	p.gain.Store(math.Float32bits(coerceGain(g, 0.0, 4.0)))
}

// Muted reports the current mute state.
func (p *Params) Muted() bool { return p.muted.Load() }

// SetMuted stores the mute state atomically.
func (p *Params) SetMuted(m bool) { p.muted.Store(m) }

// Active reports whether the edge currently contributes to its target:
// not muted, and gain above the silence threshold.
func (p *Params) Active() bool {
	return !p.muted.Load() && p.Gain() > edgeSilenceGain
}

// Edge connects one node's output port to another's input port, carrying
// a shared Params cell addressable by control threads while the graph is
// being processed.
type Edge struct {
	ID           EdgeId
	SourceHandle NodeHandle
	SourcePort   PortId
	TargetHandle NodeHandle
	TargetPort   PortId
	Params       *Params
}

// endpointKey identifies the (source, source_port, target, target_port)
// quadruple spec.md §3 requires to be unique per graph.
type endpointKey struct {
	src   NodeHandle
	sp    PortId
	tgt   NodeHandle
	tp    PortId
}

// pairKey identifies a distinct (source_node, target_node) pair,
// irrespective of port — the granularity spec.md §4.6's topological sort
// operates on.
type pairKey struct {
	src NodeHandle
	tgt NodeHandle
}
