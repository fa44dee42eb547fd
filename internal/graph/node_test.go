package graph

import (
	"math"
	"testing"
)

func Test_SourcePortCounts(t *testing.T) {
	s := NewSource(SourceId{Kind: SourcePrismChannel, Channel: 0}, "prism-0", 64)
	if s.InputPortCount() != 0 || s.OutputPortCount() != 1 {
		t.Errorf("Source port counts = (%d,%d), want (0,1)", s.InputPortCount(), s.OutputPortCount())
	}
	if s.InputBuffer(0) != nil {
		t.Errorf("Source.InputBuffer should be nil")
	}
	if s.OutputBuffer(0) == nil {
		t.Errorf("Source.OutputBuffer(0) should not be nil")
	}
}

func Test_BusIdentityCopyWithNoPlugins(t *testing.T) {
	b := NewBus("stereo bus", 2, 64)
	b.ClearBuffers(4)
	b.InputBuffer(0).WriteSamples([]float32{0.1, 0.2, 0.3, 0.4})
	b.InputBuffer(1).WriteSamples([]float32{-0.1, -0.2, -0.3, -0.4})

	b.Process(4)

	got0 := b.OutputBuffer(0).Samples()
	want0 := []float32{0.1, 0.2, 0.3, 0.4}
	for i := range want0 {
		if got0[i] != want0[i] {
			t.Errorf("OutputBuffer(0)[%d] = %v, want %v", i, got0[i], want0[i])
		}
	}
}

type upperCaseHost struct{ calls []string }

func (h *upperCaseHost) Process(slotID string, buf []float32) {
	h.calls = append(h.calls, slotID)
	for i := range buf {
		buf[i] *= 2
	}
}

func Test_BusAppliesEnabledPluginsInOrder(t *testing.T) {
	b := NewBus("bus", 1, 4)
	host := &upperCaseHost{}
	b.Host = host
	b.Plugins = []PluginSlot{
		{ID: "gain2x-a", Enabled: true},
		{ID: "disabled", Enabled: false},
		{ID: "gain2x-b", Enabled: true},
	}
	b.ClearBuffers(2)
	b.InputBuffer(0).WriteSamples([]float32{1, 1})

	b.Process(2)

	got := b.OutputBuffer(0).Samples()
	if got[0] != 4 || got[1] != 4 {
		t.Errorf("OutputBuffer(0) = %v, want [4 4] after two 2x plugins", got)
	}
	want := []string{"gain2x-a", "gain2x-b"}
	if len(host.calls) != len(want) {
		t.Fatalf("plugin calls = %v, want %v", host.calls, want)
	}
	for i := range want {
		if host.calls[i] != want[i] {
			t.Errorf("plugin call[%d] = %v, want %v", i, host.calls[i], want[i])
		}
	}
}

func Test_SinkOutputGainClampAndNaNCoercion(t *testing.T) {
	s := NewSink(SinkId{DeviceID: "dev", ChannelOffset: 0, ChannelCount: 2}, "sink", 64)
	if g := s.OutputGain(0); g != 1.0 {
		t.Errorf("default OutputGain = %v, want 1.0", g)
	}

	s.SetOutputGain(0, 10.0)
	if g := s.OutputGain(0); g != 4.0 {
		t.Errorf("OutputGain after over-range set = %v, want 4.0 (clamped)", g)
	}

	s.SetOutputGain(1, -1.0)
	if g := s.OutputGain(1); g != 0.0 {
		t.Errorf("OutputGain after negative set = %v, want 0.0 (clamped)", g)
	}

	s.SetOutputGain(0, float32(math.NaN()))
	if g := s.OutputGain(0); g != 1.0 {
		t.Errorf("OutputGain after NaN set = %v, want 1.0 (coerced)", g)
	}
}
