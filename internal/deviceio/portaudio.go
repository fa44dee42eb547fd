package deviceio

import (
	"fmt"

	"github.com/gordonklaus/portaudio"
)

// PortAudioBackend is the production Backend, wrapping
// github.com/gordonklaus/portaudio the same way client/audio.go's
// AudioEngine.Start does: resolve a device index, open a stream with the
// device's default low latency, start it, and hand back a thin wrapper.
type PortAudioBackend struct{}

// NewPortAudioBackend initialises the PortAudio library. Callers must call
// Terminate when done, mirroring portaudio.Initialize/Terminate pairing.
func NewPortAudioBackend() (*PortAudioBackend, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, err
	}
	return &PortAudioBackend{}, nil
}

// Terminate releases the PortAudio library.
func (b *PortAudioBackend) Terminate() error {
	return portaudio.Terminate()
}

// Devices enumerates every PortAudio device, exposing IDs as decimal
// string indices the way the teacher's AudioDevice.ID already does for
// its Wails-bound device lists.
func (b *PortAudioBackend) Devices() ([]Device, error) {
	infos, err := portaudio.Devices()
	if err != nil {
		return nil, err
	}
	out := make([]Device, 0, len(infos))
	for i, d := range infos {
		out = append(out, Device{
			ID:             fmt.Sprintf("%d", i),
			Name:           d.Name,
			InputChannels:  d.MaxInputChannels,
			OutputChannels: d.MaxOutputChannels,
			IsAggregate:    d.MaxInputChannels > 2 || d.MaxOutputChannels > 2,
		})
	}
	return out, nil
}

func (b *PortAudioBackend) resolve(deviceID string) (*portaudio.DeviceInfo, error) {
	infos, err := portaudio.Devices()
	if err != nil {
		return nil, err
	}
	var idx int
	if _, err := fmt.Sscanf(deviceID, "%d", &idx); err != nil || idx < 0 || idx >= len(infos) {
		return nil, ErrDeviceNotFound
	}
	return infos[idx], nil
}

// OpenCapture opens a capture stream at sampleRate with blockSize frames
// per buffer, using the device's full input channel count and its default
// low input latency — the same StreamParameters shape as
// AudioEngine.Start's captureParams.
func (b *PortAudioBackend) OpenCapture(deviceID string, sampleRate float64, blockSize int) (CaptureStream, error) {
	dev, err := b.resolve(deviceID)
	if err != nil {
		return nil, err
	}
	channels := dev.MaxInputChannels
	if channels == 0 {
		return nil, ErrFormatNegotiationFailed
	}
	buf := make([]float32, blockSize*channels)
	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   dev,
			Channels: channels,
			Latency:  dev.DefaultLowInputLatency,
		},
		SampleRate:      sampleRate,
		FramesPerBuffer: blockSize,
	}
	stream, err := portaudio.OpenStream(params, buf)
	if err != nil {
		return nil, ErrCallbackRegistrationFailed
	}
	return &paCaptureStream{stream: stream, buf: buf, channels: channels}, nil
}

// OpenRender opens a render stream symmetric to OpenCapture, using the
// device's full output channel count.
func (b *PortAudioBackend) OpenRender(deviceID string, sampleRate float64, blockSize int) (RenderStream, error) {
	dev, err := b.resolve(deviceID)
	if err != nil {
		return nil, err
	}
	channels := dev.MaxOutputChannels
	if channels == 0 {
		return nil, ErrFormatNegotiationFailed
	}
	buf := make([]float32, blockSize*channels)
	params := portaudio.StreamParameters{
		Output: portaudio.StreamDeviceParameters{
			Device:   dev,
			Channels: channels,
			Latency:  dev.DefaultLowOutputLatency,
		},
		SampleRate:      sampleRate,
		FramesPerBuffer: blockSize,
	}
	stream, err := portaudio.OpenStream(params, buf)
	if err != nil {
		return nil, ErrCallbackRegistrationFailed
	}
	return &paRenderStream{stream: stream, buf: buf, channels: channels}, nil
}

// paStream is the minimal surface of *portaudio.Stream this package uses;
// naming it lets paCaptureStream/paRenderStream be tested against a fake.
type paStream interface {
	Start() error
	Stop() error
	Close() error
	Read() error
	Write() error
}

type paCaptureStream struct {
	stream   paStream
	buf      []float32
	channels int
}

func (s *paCaptureStream) Start() error      { return s.stream.Start() }
func (s *paCaptureStream) Stop() error       { return s.stream.Stop() }
func (s *paCaptureStream) Close() error      { return s.stream.Close() }
func (s *paCaptureStream) Read() error       { return s.stream.Read() }
func (s *paCaptureStream) Buffer() []float32 { return s.buf }
func (s *paCaptureStream) Channels() int     { return s.channels }

type paRenderStream struct {
	stream   paStream
	buf      []float32
	channels int
}

func (s *paRenderStream) Start() error      { return s.stream.Start() }
func (s *paRenderStream) Stop() error       { return s.stream.Stop() }
func (s *paRenderStream) Close() error      { return s.stream.Close() }
func (s *paRenderStream) Write() error      { return s.stream.Write() }
func (s *paRenderStream) Buffer() []float32 { return s.buf }
func (s *paRenderStream) Channels() int     { return s.channels }
