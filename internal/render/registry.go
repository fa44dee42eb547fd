package render

import (
	"fmt"
	"sync"

	"bken/mixcore/internal/capture"
	"bken/mixcore/internal/deviceio"
	"bken/mixcore/internal/processor"
)

// Registry owns every render Driver the process has opened, keyed by
// output device id, so the control surface can start/stop an output by
// name without holding a reference to its Driver.
type Registry struct {
	backend   deviceio.Backend
	proc      *processor.Processor
	captures  *capture.Registry
	prism     prismReader
	sampleHz  float64
	blockSize int

	mu      sync.Mutex
	drivers map[string]*Driver
}

// NewRegistry returns a Registry that opens drivers against backend on
// demand, driving proc and resolving SourceInputDevice reads against
// captures.
func NewRegistry(backend deviceio.Backend, proc *processor.Processor, captures *capture.Registry, sampleHz float64, blockSize int) *Registry {
	return &Registry{
		backend:   backend,
		proc:      proc,
		captures:  captures,
		sampleHz:  sampleHz,
		blockSize: blockSize,
		drivers:   make(map[string]*Driver),
	}
}

// SetPrismReader installs the reader used to resolve SourcePrismChannel
// sources for every driver opened from this point on.
func (r *Registry) SetPrismReader(p prismReader) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prism = p
}

// Start opens (if needed) and starts the render driver for deviceID. Only
// one device may be active per start-session (spec.md §4.9): any other
// driver currently running is stopped first.
func (r *Registry) Start(deviceID string) error {
	r.mu.Lock()
	var others []*Driver
	for id, other := range r.drivers {
		if id != deviceID && other.State() == stateRunning {
			others = append(others, other)
		}
	}
	d, ok := r.drivers[deviceID]
	if !ok {
		opened, err := Open(r.backend, deviceID, r.sampleHz, r.blockSize, r.proc, r.captures, r.prism)
		if err != nil {
			r.mu.Unlock()
			return err
		}
		d = opened
		r.drivers[deviceID] = d
	}
	r.mu.Unlock()

	for _, other := range others {
		if err := other.Stop(); err != nil {
			return fmt.Errorf("render: stopping prior active device: %w", err)
		}
	}
	return d.Start(r.blockSize)
}

// Stop stops the render driver for deviceID, if one is running.
func (r *Registry) Stop(deviceID string) error {
	r.mu.Lock()
	d, ok := r.drivers[deviceID]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("render: device %s was never started", deviceID)
	}
	return d.Stop()
}

// State returns the lifecycle state of deviceID's driver, or stateIdle if
// it was never opened.
func (r *Registry) State(deviceID string) State {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.drivers[deviceID]
	if !ok {
		return stateIdle
	}
	return d.State()
}

// DeviceIDs returns the output device ids this registry has opened a
// driver for, regardless of current lifecycle state.
func (r *Registry) DeviceIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.drivers))
	for id := range r.drivers {
		ids = append(ids, id)
	}
	return ids
}
