// Package ring implements the broadcast ring buffer described in spec.md
// §3/§4.3: a single producer writes one audio channel's samples; any number
// of independent consumers read from it at their own pace via a cursor they
// own. It generalises the teacher's per-sender jitter ring
// (client/internal/jitter) from "one ring per remote sender, one reader"
// to "one ring per local channel, many readers" — the multi-consumer half
// the jitter buffer never needed because voice chat only ever has one
// playback loop per sender stream.
package ring

import (
	"log"
	"sync/atomic"
)

// Ring is a lock-free single-producer, multi-consumer sample ring for one
// audio channel. The producer calls Write from exactly one goroutine (the
// capture driver's device callback). Any number of consumers call Read
// concurrently, each owning its own cursor returned by Subscribe.
type Ring struct {
	buf []float32
	w   atomic.Uint64 // monotonically increasing write position
	tag string        // subsystem tag used in gap log lines, e.g. "capture:0:2"
}

// New returns a Ring with the given sample capacity (spec.md's R, e.g.
// 16384) and a tag used to identify it in overrun log lines.
func New(capacity int, tag string) *Ring {
	return &Ring{buf: make([]float32, capacity), tag: tag}
}

// Write appends samples to the ring, advancing the write cursor. Safe to
// call only from the single producer goroutine. The store uses release
// ordering semantics: any reader that observes the new write position via
// Load is guaranteed to see these samples.
func (r *Ring) Write(samples []float32) {
	w := r.w.Load()
	cap := len(r.buf)
	for i, s := range samples {
		r.buf[(int(w)+i)%cap] = s
	}
	r.w.Store(w + uint64(len(samples)))
}

// Subscribe returns a cursor positioned at the current write position, so a
// newly attached consumer starts consuming "from now" rather than replaying
// whatever stale samples happen to occupy the ring.
func (r *Ring) Subscribe() uint64 {
	return r.w.Load()
}

// Read copies up to len(out) samples starting at cursor into out, padding
// any shortfall with silence, and returns the advanced cursor. If cursor is
// already at the current write position, out is filled entirely with
// silence and the returned cursor equals cursor (boundary case in spec.md
// §8). If the writer has lapped cursor (it points further behind than the
// ring's capacity), the reader jumps forward to the current write position,
// losing the unread samples, and a gap is logged once per occurrence.
func (r *Ring) Read(cursor uint64, out []float32) uint64 {
	w := r.w.Load()
	avail := w - cursor // cursor is never ahead of w by construction

	if avail > uint64(len(r.buf)) {
		log.Printf("[ring] %s: reader overrun, jumping forward by %d samples", r.tag, avail-uint64(len(r.buf)))
		cursor = w
		avail = 0
	}

	n := uint64(len(out))
	if n > avail {
		n = avail
	}
	cap := len(r.buf)
	for i := uint64(0); i < n; i++ {
		out[i] = r.buf[(int(cursor)+int(i))%cap]
	}
	for i := n; i < uint64(len(out)); i++ {
		out[i] = 0
	}
	return cursor + n
}

// Capacity returns the ring's fixed sample capacity.
func (r *Ring) Capacity() int { return len(r.buf) }
