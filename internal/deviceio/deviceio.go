// Package deviceio is the thin boundary spec.md §1 calls the "device I/O
// layer": device enumeration and callback-style capture/render streams.
// Everything behind this boundary is the opaque platform audio API — format
// negotiation, device handles, native buffers — the routing engine never
// reaches past it. The interfaces here mirror the shape of the teacher's
// paStream abstraction (client/audio.go), generalised from "one capture
// device, one render device" to "any number of each".
package deviceio

import "errors"

// Device errors, per spec.md §7's device-error taxonomy. Reported through
// a one-shot channel to the caller that requested the start, not returned
// synchronously from deep inside a callback.
var (
	ErrDeviceNotFound             = errors.New("deviceio: device not found")
	ErrFormatNegotiationFailed    = errors.New("deviceio: format negotiation failed")
	ErrCallbackRegistrationFailed = errors.New("deviceio: callback registration failed")
	ErrStartTimeout               = errors.New("deviceio: start timeout")
)

// Device describes one enumerated audio device.
type Device struct {
	ID             string
	Name           string
	InputChannels  int
	OutputChannels int
	IsAggregate    bool
}

// CaptureStream is an open, platform-level capture stream. Read blocks
// until one block of frames is available and copied, still interleaved, into
// Buffer's backing storage; Buffer itself never changes address across calls, so the
// capture driver can retain a slice into it.
type CaptureStream interface {
	Start() error
	Stop() error
	Close() error
	Read() error
	// Buffer returns the interleaved float32 block most recently filled by
	// Read, length blockSize*channels.
	Buffer() []float32
	Channels() int
}

// RenderStream is an open, platform-level render stream. The caller fills
// Buffer's backing storage then calls Write to emit it.
type RenderStream interface {
	Start() error
	Stop() error
	Close() error
	Write() error
	// Buffer returns the interleaved float32 block Write will emit,
	// length blockSize*channels.
	Buffer() []float32
	Channels() int
}

// Backend opens capture/render streams and enumerates devices. The
// production Backend is PortAudio-backed (portaudio.go); tests supply a
// fake.
type Backend interface {
	Devices() ([]Device, error)
	OpenCapture(deviceID string, sampleRate float64, blockSize int) (CaptureStream, error)
	OpenRender(deviceID string, sampleRate float64, blockSize int) (RenderStream, error)
}

// Resolve returns the device with the given id, or ErrDeviceNotFound.
func Resolve(devices []Device, id string) (Device, error) {
	for _, d := range devices {
		if d.ID == id {
			return d, nil
		}
	}
	return Device{}, ErrDeviceNotFound
}
