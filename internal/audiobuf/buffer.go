// Package audiobuf implements the mono, fixed-capacity sample buffer that
// backs every node port in the routing graph. It mirrors the capture/
// playback buffers the teacher allocates once in AudioEngine.Start and
// reuses across callbacks — no per-block allocation, ever.
package audiobuf

import "bken/mixcore/internal/kernel"

// silenceGain is the threshold below which a gain is treated as silence;
// mirrors the |gain| < 1e-4 contract in spec.md §4.2.
const silenceGain = 1e-4

// Buffer is a mono sample store of fixed capacity. Accesses beyond
// validFrames return zero-semantics: Samples() only ever exposes
// [0, validFrames), and Clear(frames) zeroes that range before setting
// validFrames to frames.
type Buffer struct {
	data        []float32
	validFrames int
	peak        float32
	rms         float32
}

// New returns a Buffer with the given fixed capacity.
func New(capacity int) *Buffer {
	return &Buffer{data: make([]float32, capacity)}
}

// Capacity returns the fixed maximum block size this buffer was built for.
func (b *Buffer) Capacity() int { return len(b.data) }

// ValidFrames returns the number of valid frames, as set by the last Clear
// or WriteSamples call.
func (b *Buffer) ValidFrames() int { return b.validFrames }

// Samples returns the valid portion of the underlying storage. The caller
// must not retain the slice past the next Clear/Write call.
func (b *Buffer) Samples() []float32 { return b.data[:b.validFrames] }

// Clear zeroes the first frames samples and sets validFrames to frames,
// clamped to capacity. Peak/RMS caches are reset to zero.
func (b *Buffer) Clear(frames int) {
	if frames > len(b.data) {
		frames = len(b.data)
	}
	if frames < 0 {
		frames = 0
	}
	kernel.Clear(b.data[:frames])
	b.validFrames = frames
	b.peak = 0
	b.rms = 0
}

// WriteSamples copies src into the buffer from offset 0, setting
// validFrames to min(len(src), capacity).
func (b *Buffer) WriteSamples(src []float32) {
	n := len(src)
	if n > len(b.data) {
		n = len(b.data)
	}
	copy(b.data[:n], src[:n])
	b.validFrames = n
}

// CopyFrom replaces this buffer's contents with source's, over
// min(self.validFrames, source.validFrames) — per spec.md §4.2, the
// destination's current validFrames bounds the copy length, not the source's.
func (b *Buffer) CopyFrom(source *Buffer) {
	n := b.validFrames
	if source.validFrames < n {
		n = source.validFrames
	}
	copy(b.data[:n], source.data[:n])
}

// MixFrom adds gain*source into this buffer over
// min(self.validFrames, source.validFrames) samples. Silent (no-op) when
// |gain| is below the silence threshold.
func (b *Buffer) MixFrom(source *Buffer, gain float32) {
	if gain < 0 {
		if -gain < silenceGain {
			return
		}
	} else if gain < silenceGain {
		return
	}
	n := b.validFrames
	if source.validFrames < n {
		n = source.validFrames
	}
	kernel.MixAdd(source.data[:n], b.data[:n], gain)
}

// ApplyGain scales the valid portion of the buffer by g in place.
func (b *Buffer) ApplyGain(g float32) {
	kernel.Scale(b.data[:b.validFrames], b.data[:b.validFrames], g)
}

// UpdatePeak recomputes and caches the peak level over the valid portion.
func (b *Buffer) UpdatePeak() {
	b.peak = kernel.Peak(b.data[:b.validFrames])
}

// UpdateRMS recomputes and caches the RMS level over the valid portion.
func (b *Buffer) UpdateRMS() {
	b.rms = kernel.RMS(b.data[:b.validFrames])
}

// Peak returns the most recently cached peak level.
func (b *Buffer) Peak() float32 { return b.peak }

// RMS returns the most recently cached RMS level.
func (b *Buffer) RMS() float32 { return b.rms }
