// Package render implements the render driver of spec.md §4.9: one state
// machine per output device that drives processor.Process once per device
// callback, reads sources into the graph, and interleaves every Sink node's
// input ports back out to the device. It generalises the teacher's
// AudioEngine.playbackLoop state handling (the same
// idle/starting/running/stopping lifecycle AudioEngine.Start/Stop drive)
// from one fixed playback device to any number of independently
// started/stopped output devices.
package render

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"bken/mixcore/internal/audiobuf"
	"bken/mixcore/internal/capture"
	"bken/mixcore/internal/deviceio"
	"bken/mixcore/internal/graph"
	"bken/mixcore/internal/kernel"
	"bken/mixcore/internal/processor"
)

// State is a render driver's lifecycle state, mirroring AudioEngine's own
// running/starting bookkeeping but made explicit as a value so it can be
// inspected from the control surface.
type State int

const (
	stateIdle State = iota
	stateStarting
	stateRunning
	stateStopping
)

func (s State) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateStarting:
		return "starting"
	case stateRunning:
		return "running"
	case stateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// startDeadline is how long Start waits for the device to report it is
// producing callbacks before giving up, per spec.md §4.9.
const startDeadline = 2 * time.Second

// prismReader supplies samples for a virtual (non-device) source channel,
// e.g. an application's audio bus. Render drivers that never route a
// SourcePrismChannel can leave this nil.
type prismReader func(channel int, out []float32)

// Driver owns one open render stream for one output device and the
// processor instance it drives.
type Driver struct {
	deviceID string
	stream   deviceio.RenderStream
	proc     *processor.Processor
	registry *capture.Registry
	prism    prismReader

	state  State
	stopCh chan struct{}
	doneCh chan struct{}

	// cache holds one scratch buffer per distinct SourceId the graph has
	// ever routed through this driver, allocated once on first sight and
	// reused for the rest of the driver's lifetime. tick marks which
	// callback last refilled an entry, so readSource both dedups repeat
	// reads of the same source within one callback and never calls make()
	// in the steady-state per-callback path.
	cache map[graph.SourceId]*sourceScratch
	tick  int64
}

type sourceScratch struct {
	buf  []float32
	tick int64
}

// Open opens a render stream on deviceID. registry resolves SourceInputDevice
// reads against capture drivers registered under outputDeviceID==deviceID;
// prism (optional) resolves SourcePrismChannel reads.
func Open(backend deviceio.Backend, deviceID string, sampleRate float64, blockSize int, proc *processor.Processor, registry *capture.Registry, prism prismReader) (*Driver, error) {
	stream, err := backend.OpenRender(deviceID, sampleRate, blockSize)
	if err != nil {
		return nil, err
	}
	return &Driver{
		deviceID: deviceID,
		stream:   stream,
		proc:     proc,
		registry: registry,
		prism:    prism,
		state:    stateIdle,
		cache:    make(map[graph.SourceId]*sourceScratch),
	}, nil
}

// State returns the driver's current lifecycle state.
func (d *Driver) State() State { return d.state }

// Start transitions Idle -> Starting -> Running, blocking up to
// startDeadline for the first successful Write. If the deadline elapses or
// the stream's Start call errors, Start returns an error and the driver
// returns to Idle. On success, the callback loop continues running on its
// own goroutine until Stop is called.
func (d *Driver) Start(frames int) error {
	if d.state != stateIdle {
		return fmt.Errorf("render: device %s not idle", d.deviceID)
	}
	d.state = stateStarting
	if err := d.stream.Start(); err != nil {
		d.state = stateIdle
		return err
	}

	ready := make(chan error, 1)
	d.stopCh = make(chan struct{})
	d.doneCh = make(chan struct{})
	go d.loop(frames, ready)

	ctx, cancel := context.WithTimeout(context.Background(), startDeadline)
	defer cancel()
	select {
	case err := <-ready:
		if err != nil {
			d.state = stateIdle
			return err
		}
		d.state = stateRunning
		return nil
	case <-ctx.Done():
		close(d.stopCh)
		<-d.doneCh
		d.state = stateIdle
		return deviceio.ErrStartTimeout
	}
}

// Stop transitions Running -> Stopping -> Idle, waiting for the callback
// loop to exit before closing the stream.
func (d *Driver) Stop() error {
	if d.state != stateRunning {
		return fmt.Errorf("render: device %s not running", d.deviceID)
	}
	d.state = stateStopping
	close(d.stopCh)
	<-d.doneCh
	d.stream.Stop()
	d.stream.Close()
	d.state = stateIdle
	return nil
}

// loop is the device callback loop: read sources into the graph, run the
// processor, interleave sinks out, clip, write. It runs until stopCh closes
// or Write fails.
func (d *Driver) loop(frames int, ready chan<- error) {
	defer close(d.doneCh)
	signalled := false

	for {
		select {
		case <-d.stopCh:
			return
		default:
		}

		d.tick++
		d.proc.Process(frames, d.readSource)

		out := d.stream.Buffer()
		kernel.Clear(out)
		channels := d.stream.Channels()
		d.interleaveSinks(out, channels)
		kernel.Clip(out, -1.0, 1.0)

		if err := d.stream.Write(); err != nil {
			slog.Error("render: write failed, stopping driver", "device", d.deviceID, "err", err)
			if !signalled {
				ready <- err
			}
			return
		}
		if !signalled {
			ready <- nil
			signalled = true
		}
	}
}

// readSource is the processor.ReadSourceFunc for this driver. It caches one
// read per SourceId per callback so a graph that happens to route the same
// physical source into two Source nodes never reads its ring twice in one
// callback, and reuses each SourceId's scratch buffer for the driver's
// whole lifetime rather than allocating one on every callback.
func (d *Driver) readSource(id graph.SourceId, out *audiobuf.Buffer) {
	entry, ok := d.cache[id]
	if !ok {
		entry = &sourceScratch{buf: make([]float32, out.Capacity())}
		d.cache[id] = entry
	}
	// The processor cleared out to this callback's frame count.
	n := min(out.ValidFrames(), len(entry.buf))
	if entry.tick != d.tick {
		switch id.Kind {
		case graph.SourceInputDevice:
			if d.registry != nil {
				d.registry.Read(id.DeviceID, d.deviceID, id.Channel, entry.buf[:n])
			}
		case graph.SourcePrismChannel:
			if d.prism != nil {
				d.prism(id.Channel, entry.buf[:n])
			}
		}
		entry.tick = d.tick
	}
	out.WriteSamples(entry.buf[:n])
}

// interleaveSinks walks every Sink node in the current graph whose device
// id matches this driver and mixes its input ports into out at their
// declared channel offset, applying each port's atomic output gain.
func (d *Driver) interleaveSinks(out []float32, channels int) {
	g := d.proc.Graph()
	if g == nil || channels <= 0 {
		return
	}
	for _, h := range g.NodeHandles() {
		n, ok := g.Node(h)
		if !ok || n.Kind() != graph.KindSink {
			continue
		}
		sink, ok := n.(*graph.SinkNode)
		if !ok || sink.ID().DeviceID != d.deviceID {
			continue
		}
		for p := 0; p < sink.InputPortCount(); p++ {
			buf := sink.InputBuffer(graph.PortId(p))
			if buf == nil {
				continue
			}
			gain := sink.OutputGain(graph.PortId(p))
			offset := (sink.ID().ChannelOffset + p) % channels
			kernel.MixToInterleaved(buf.Samples(), out, offset, channels, gain)
		}
	}
}
