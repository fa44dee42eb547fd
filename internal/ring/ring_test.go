package ring

import (
	"testing"

	"pgregory.net/rapid"
)

func Test_ReadAtWritePositionReturnsSilenceCursorUnchanged(t *testing.T) {
	r := New(16, "test")
	r.Write([]float32{1, 2, 3, 4})
	cur := r.Subscribe() // subscribes at "now", i.e. after the write above

	out := make([]float32, 4)
	newCur := r.Read(cur, out)

	for i, v := range out {
		if v != 0 {
			t.Errorf("out[%d] = %v, want 0 (silence)", i, v)
		}
	}
	if newCur != cur {
		t.Errorf("cursor advanced to %d, want unchanged %d", newCur, cur)
	}
}

func Test_BroadcastLateSubscriberSeesSilenceIndependentCursors(t *testing.T) {
	r := New(2048, "test")
	cur1 := r.Subscribe()

	samples := make([]float32, 1024)
	for i := range samples {
		samples[i] = float32(i)
	}
	r.Write(samples)

	cur2 := r.Subscribe() // subscribes after the write: starts later than cur1

	out1 := make([]float32, 256)
	out2 := make([]float32, 256)
	newCur1 := r.Read(cur1, out1)
	newCur2 := r.Read(cur2, out2)

	for i := 0; i < 256; i++ {
		if out1[i] != samples[i] {
			t.Fatalf("consumer1 out[%d] = %v, want %v", i, out1[i], samples[i])
		}
	}
	// consumer2 subscribed after the write, so it is caught up: it should
	// see silence, not replayed samples.
	for i := 0; i < 256; i++ {
		if out2[i] != 0 {
			t.Fatalf("consumer2 out[%d] = %v, want 0 (subscribed after write)", i, out2[i])
		}
	}

	if newCur1 != cur1+256 {
		t.Errorf("consumer1 cursor advanced to %d, want %d", newCur1, cur1+256)
	}
	if newCur2 != cur2 {
		t.Errorf("consumer2 cursor advanced to %d, want unchanged %d", newCur2, cur2)
	}
}

func Test_BroadcastSharedStreamSameStartingCursor(t *testing.T) {
	r := New(2048, "test")
	cur := r.Subscribe()

	samples := make([]float32, 1024)
	for i := range samples {
		samples[i] = float32(i)
	}
	r.Write(samples)

	out1 := make([]float32, 256)
	out2 := make([]float32, 256)
	r.Read(cur, out1)
	r.Read(cur, out2) // independent read from the same starting cursor

	for i := 0; i < 256; i++ {
		if out1[i] != out2[i] {
			t.Fatalf("two reads from the same cursor diverged at %d: %v vs %v", i, out1[i], out2[i])
		}
	}
}

func Test_UnderflowPadsWithSilence(t *testing.T) {
	r := New(16, "test")
	cur := r.Subscribe()
	r.Write([]float32{1, 2})

	out := make([]float32, 5)
	r.Read(cur, out)
	want := []float32{1, 2, 0, 0, 0}
	for i := range want {
		if out[i] != want[i] {
			t.Errorf("out[%d] = %v, want %v", i, out[i], want[i])
		}
	}
}

func Test_OverrunJumpsReaderForward(t *testing.T) {
	r := New(8, "test")
	cur := r.Subscribe()

	// Write far more than capacity, lapping the reader many times over.
	big := make([]float32, 100)
	r.Write(big)

	out := make([]float32, 4)
	newCur := r.Read(cur, out)

	if newCur != r.Subscribe() {
		t.Errorf("overrun reader did not jump to current write position")
	}
	for i, v := range out {
		if v != 0 {
			t.Errorf("out[%d] = %v, want 0 after overrun jump", i, v)
		}
	}
}

// Property: after one write of any length up to half the capacity, a
// consumer that subscribed before the write and then reads once with any
// length observes exactly the written samples (as many as fit) followed by
// silence, and its cursor advances by the number of samples it received.
func Test_Property_ReadNeverExceedsWritten(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		capacity := rapid.IntRange(32, 256).Draw(t, "capacity")
		r := New(capacity, "prop")
		cur := r.Subscribe()

		nWrite := rapid.IntRange(0, capacity/2).Draw(t, "nWrite")
		samples := make([]float32, nWrite)
		for i := range samples {
			samples[i] = float32(i + 1)
		}
		r.Write(samples)

		readLen := rapid.IntRange(0, capacity).Draw(t, "readLen")
		out := make([]float32, readLen)
		newCur := r.Read(cur, out)

		expectedN := nWrite
		if readLen < expectedN {
			expectedN = readLen
		}
		for i := 0; i < expectedN; i++ {
			if out[i] != samples[i] {
				t.Fatalf("out[%d] = %v, want %v", i, out[i], samples[i])
			}
		}
		for i := expectedN; i < readLen; i++ {
			if out[i] != 0 {
				t.Fatalf("out[%d] = %v, want silence past written data", i, out[i])
			}
		}
		if newCur != cur+uint64(expectedN) {
			t.Fatalf("cursor = %d, want %d", newCur, cur+uint64(expectedN))
		}
	})
}
