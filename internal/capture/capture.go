// Package capture implements the capture driver of spec.md §4.8: one
// goroutine per input device, deinterleaving its device callback buffer into
// one broadcast ring.Ring per physical channel, mirroring the deinterleave
// loop in the teacher's AudioEngine.captureLoop generalised from stereo to
// an arbitrary channel count.
package capture

import (
	"fmt"
	"log/slog"
	"sync"

	"bken/mixcore/internal/deviceio"
	"bken/mixcore/internal/ring"
)

// ringCapacity is the sample capacity of every per-channel ring, spec.md's R.
const ringCapacity = 16384

// Driver owns one open capture stream and one ring.Ring per physical input
// channel on that device. Run runs its read loop on the caller's
// goroutine; callers are expected to run it with `go`.
type Driver struct {
	deviceID string
	stream   deviceio.CaptureStream
	rings    []*ring.Ring

	stop chan struct{}
	done chan struct{}
}

// Open opens a capture stream on deviceID and allocates one ring per input
// channel it reports.
func Open(backend deviceio.Backend, deviceID string, sampleRate float64, blockSize int) (*Driver, error) {
	stream, err := backend.OpenCapture(deviceID, sampleRate, blockSize)
	if err != nil {
		return nil, err
	}
	channels := stream.Channels()
	rings := make([]*ring.Ring, channels)
	for ch := range rings {
		rings[ch] = ring.New(ringCapacity, fmt.Sprintf("capture:%s:%d", deviceID, ch))
	}
	return &Driver{
		deviceID: deviceID,
		stream:   stream,
		rings:    rings,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}, nil
}

// Channel returns the ring carrying physical input channel ch, or nil if
// out of range.
func (d *Driver) Channel(ch int) *ring.Ring {
	if ch < 0 || ch >= len(d.rings) {
		return nil
	}
	return d.rings[ch]
}

// ChannelCount returns the number of physical input channels this driver
// deinterleaves into rings.
func (d *Driver) ChannelCount() int {
	return len(d.rings)
}

// Run starts the stream and blocks, calling Read once per block and
// deinterleaving the result into each channel's ring, until Stop is called
// or Read returns an error. It is meant to be run on its own goroutine.
func (d *Driver) Run() error {
	defer close(d.done)
	if err := d.stream.Start(); err != nil {
		return err
	}
	defer d.stream.Stop()

	channels := len(d.rings)
	for {
		select {
		case <-d.stop:
			return nil
		default:
		}
		if err := d.stream.Read(); err != nil {
			slog.Error("capture: read failed, stopping driver", "device", d.deviceID, "err", err)
			return err
		}
		interleaved := d.stream.Buffer()
		frames := 0
		if channels > 0 {
			frames = len(interleaved) / channels
		}
		deinterleave(interleaved, channels, frames, d.rings)
	}
}

// deinterleave extracts channel ch's samples from an interleaved buffer by
// striding channels apart, then writes them into that channel's ring. This
// is the mirror image of kernel.MixToInterleaved.
func deinterleave(interleaved []float32, channels, frames int, rings []*ring.Ring) {
	if channels <= 0 {
		return
	}
	scratch := make([]float32, frames)
	for ch := 0; ch < channels; ch++ {
		for f := 0; f < frames; f++ {
			scratch[f] = interleaved[f*channels+ch]
		}
		rings[ch].Write(scratch)
	}
}

// Stop signals Run to exit and waits for it to finish, then closes the
// underlying stream.
func (d *Driver) Stop() {
	close(d.stop)
	<-d.done
	d.stream.Close()
}

// outputKey identifies one output device's interest in a capture device's
// channels, for Registry's cursor bookkeeping.
type outputKey struct {
	inputDeviceID  string
	outputDeviceID string
}

// Registry tracks, per (input device, output device) pair, one read cursor
// per physical input channel that output device consumes. A render driver
// registers interest once when it starts; its cursors are seeded at "now" on
// the relevant rings so it never replays stale samples that predate it.
type Registry struct {
	mu      sync.Mutex
	drivers map[string]*Driver // input device id -> driver
	cursors map[outputKey][]uint64
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		drivers: make(map[string]*Driver),
		cursors: make(map[outputKey][]uint64),
	}
}

// Register associates an already-opened Driver with its input device id, so
// later render drivers can subscribe to its channels.
func (r *Registry) Register(d *Driver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.drivers[d.deviceID] = d
}

// Unregister removes a driver's bookkeeping. It does not stop the driver.
func (r *Registry) Unregister(inputDeviceID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.drivers, inputDeviceID)
	for k := range r.cursors {
		if k.inputDeviceID == inputDeviceID {
			delete(r.cursors, k)
		}
	}
}

// Driver returns the registered driver for an input device id, if any.
func (r *Registry) Driver(inputDeviceID string) (*Driver, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.drivers[inputDeviceID]
	return d, ok
}

// Subscribe registers outputDeviceID's interest in inputDeviceID, seeding
// one cursor per physical input channel at that channel's current write
// position. Calling Subscribe again for the same pair reseeds the cursors
// at "now", discarding whatever old cursor positions existed.
func (r *Registry) Subscribe(inputDeviceID, outputDeviceID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.drivers[inputDeviceID]
	if !ok {
		return deviceio.ErrDeviceNotFound
	}
	cursors := make([]uint64, d.ChannelCount())
	for ch, rg := range d.rings {
		cursors[ch] = rg.Subscribe()
	}
	r.cursors[outputKey{inputDeviceID, outputDeviceID}] = cursors
	return nil
}

// Read copies the next block of channel ch into out for the given
// (input device, output device) pair, advancing that pair's cursor. It
// returns false if the pair was never subscribed or ch is out of range.
func (r *Registry) Read(inputDeviceID, outputDeviceID string, ch int, out []float32) bool {
	r.mu.Lock()
	d, ok := r.drivers[inputDeviceID]
	if !ok {
		r.mu.Unlock()
		return false
	}
	key := outputKey{inputDeviceID, outputDeviceID}
	cursors, ok := r.cursors[key]
	if !ok || ch < 0 || ch >= len(cursors) {
		r.mu.Unlock()
		return false
	}
	rg := d.Channel(ch)
	r.mu.Unlock()
	if rg == nil {
		return false
	}
	next := rg.Read(cursors[ch], out)
	r.mu.Lock()
	r.cursors[key][ch] = next
	r.mu.Unlock()
	return true
}
