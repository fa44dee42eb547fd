package graph

import (
	"math"
	"testing"
)

func Test_ParamsActiveRequiresUnmutedAndAboveSilenceGain(t *testing.T) {
	p := NewParams(1.0, false)
	if !p.Active() {
		t.Errorf("Active() = false, want true for unmuted gain=1.0")
	}

	p.SetMuted(true)
	if p.Active() {
		t.Errorf("Active() = true, want false when muted")
	}

	p.SetMuted(false)
	p.SetGain(1e-5)
	if p.Active() {
		t.Errorf("Active() = true, want false for gain below silence threshold")
	}
}

func Test_ParamsSetGainClampsAndCoercesNaN(t *testing.T) {
	p := NewParams(1.0, false)

	p.SetGain(-1.0)
	if p.Gain() != 0 {
		t.Errorf("Gain() after negative set = %v, want 0", p.Gain())
	}

	p.SetGain(100.0)
	if p.Gain() != 4.0 {
		t.Errorf("Gain() after over-range set = %v, want 4.0", p.Gain())
	}

	p.SetGain(float32(math.NaN()))
	if p.Gain() != 1.0 {
		t.Errorf("Gain() after NaN set = %v, want 1.0", p.Gain())
	}
}
