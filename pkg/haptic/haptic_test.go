package haptic

import (
	"testing"
	"time"
)

func TestMockRecords(t *testing.T) {
	m := NewMock()
	m.Vibrate(150 * time.Millisecond)
	pattern := []time.Duration{0, 300 * time.Millisecond}
	m.VibratePattern(pattern)
	pattern[1] = 0 // caller mutation must not leak into the record

	calls := m.Calls()
	if len(calls) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(calls))
	}
	if calls[0].Duration != 150*time.Millisecond {
		t.Errorf("unexpected pulse %v", calls[0].Duration)
	}
	if p := m.Patterns(); len(p) != 1 || p[0][1] != 300*time.Millisecond {
		t.Errorf("unexpected patterns %v", p)
	}
}

func TestMilliseconds(t *testing.T) {
	got := Milliseconds([]time.Duration{0, 300 * time.Millisecond, 150 * time.Millisecond})
	want := []int64{0, 300, 150}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("index %d: got %d, want %d", i, got[i], want[i])
		}
	}
}
