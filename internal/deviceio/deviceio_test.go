package deviceio

import "testing"

type mockCaptureStream struct {
	started, stopped, closed bool
	buf                      []float32
	channels                 int
}

func (m *mockCaptureStream) Start() error      { m.started = true; return nil }
func (m *mockCaptureStream) Stop() error       { m.stopped = true; return nil }
func (m *mockCaptureStream) Close() error      { m.closed = true; return nil }
func (m *mockCaptureStream) Read() error       { return nil }
func (m *mockCaptureStream) Buffer() []float32 { return m.buf }
func (m *mockCaptureStream) Channels() int     { return m.channels }

type mockBackend struct {
	devices []Device
}

func (b *mockBackend) Devices() ([]Device, error) { return b.devices, nil }

func (b *mockBackend) OpenCapture(deviceID string, sampleRate float64, blockSize int) (CaptureStream, error) {
	d, err := Resolve(b.devices, deviceID)
	if err != nil {
		return nil, err
	}
	return &mockCaptureStream{buf: make([]float32, blockSize*d.InputChannels), channels: d.InputChannels}, nil
}

func (b *mockBackend) OpenRender(deviceID string, sampleRate float64, blockSize int) (RenderStream, error) {
	return nil, ErrFormatNegotiationFailed
}

func Test_ResolveFindsDeviceByID(t *testing.T) {
	devices := []Device{{ID: "0", Name: "Built-in Mic", InputChannels: 2}}
	d, err := Resolve(devices, "0")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if d.Name != "Built-in Mic" {
		t.Errorf("Name = %q, want %q", d.Name, "Built-in Mic")
	}
}

func Test_ResolveMissingIDReturnsErrDeviceNotFound(t *testing.T) {
	_, err := Resolve(nil, "missing")
	if err != ErrDeviceNotFound {
		t.Errorf("err = %v, want ErrDeviceNotFound", err)
	}
}

func Test_BackendOpenCaptureSizesBufferByChannelsAndBlockSize(t *testing.T) {
	b := &mockBackend{devices: []Device{{ID: "0", InputChannels: 2}}}
	s, err := b.OpenCapture("0", 48000, 128)
	if err != nil {
		t.Fatalf("OpenCapture: %v", err)
	}
	if len(s.Buffer()) != 256 {
		t.Errorf("Buffer len = %d, want 256", len(s.Buffer()))
	}
	if s.Channels() != 2 {
		t.Errorf("Channels = %d, want 2", s.Channels())
	}
}
