package position

import (
	"math"
	"testing"
	"time"
)

var t0 = time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)

func TestUpdateBeforeInitializeSeeds(t *testing.T) {
	f := NewFilter(DefaultConfig())
	if f.Initialized() {
		t.Fatal("new filter must be uninitialized")
	}
	if v := f.State().Variance; v != -1 {
		t.Errorf("expected sentinel variance -1, got %v", v)
	}

	out := f.Update(37.5, 127.0, 5, t0)
	if out.Point.Lat != 37.5 || out.Point.Lon != 127.0 {
		t.Errorf("expected state seeded from measurement, got %v", out.Point)
	}
	if out.Accuracy != 5 {
		t.Errorf("expected accuracy 5, got %v", out.Accuracy)
	}
	if v := f.State().Variance; v != 25 {
		t.Errorf("expected variance 25, got %v", v)
	}
}

func TestAccuracyClamped(t *testing.T) {
	f := NewFilter(DefaultConfig())
	f.Update(37.5, 127.0, 0.1, t0)
	if v := f.State().Variance; v != 1 {
		t.Errorf("expected variance clamped to 1, got %v", v)
	}
}

func TestConvergesWithConstantMeasurement(t *testing.T) {
	f := NewFilter(DefaultConfig())
	f.Initialize(37.0, 127.0, 20, t0)

	targetLat, targetLon := 37.001, 127.001
	prevVar := f.State().Variance
	prevErr := math.Abs(37.0 - targetLat)

	for i := 1; i <= 50; i++ {
		f.Update(targetLat, targetLon, 5, t0) // same timestamp: no inflation
		s := f.State()
		if s.Variance > prevVar {
			t.Fatalf("step %d: variance increased %v -> %v", i, prevVar, s.Variance)
		}
		if s.Variance < 0 {
			t.Fatalf("step %d: negative variance", i)
		}
		errNow := math.Abs(s.Lat - targetLat)
		if errNow > prevErr {
			t.Fatalf("step %d: moved away from measurement", i)
		}
		prevVar, prevErr = s.Variance, errNow
	}

	if prevErr > 1e-5 {
		t.Errorf("expected convergence towards measurement, residual %v", prevErr)
	}
}

func TestElapsedInflatesVariance(t *testing.T) {
	cfg := Config{ProcessNoise: 2, MinAccuracy: 1}
	f := NewFilter(cfg)
	f.Initialize(0, 0, 3, t0) // variance 9

	f.Update(0, 0, 3, t0.Add(4*time.Second))
	// variance: 9 + 4*4 = 25; k = 25/34; new variance = 25*(9/34)
	want := 25.0 * 9.0 / 34.0
	if got := f.State().Variance; math.Abs(got-want) > 1e-9 {
		t.Errorf("expected variance %v, got %v", want, got)
	}
}

func TestNonPositiveElapsed(t *testing.T) {
	f := NewFilter(DefaultConfig())
	f.Initialize(0, 0, 4, t0) // variance 16

	// Timestamp in the past: no inflation, LastUpdate unchanged.
	f.Update(0, 0, 4, t0.Add(-time.Second))
	if got := f.State().Variance; math.Abs(got-8) > 1e-9 {
		t.Errorf("expected variance 8, got %v", got)
	}
	if !f.State().LastUpdate.Equal(t0) {
		t.Error("LastUpdate must not move backwards")
	}

	// Repeated identical timestamps keep shrinking the variance.
	f.Update(0, 0, 4, t0)
	f.Update(0, 0, 4, t0)
	if got := f.State().Variance; got >= 8 {
		t.Errorf("expected variance below 8, got %v", got)
	}
}

func TestGainWeighting(t *testing.T) {
	f := NewFilter(Config{ProcessNoise: 0, MinAccuracy: 1})
	f.Initialize(10, 20, 2, t0) // variance 4
	out := f.Update(12, 24, 2, t0)
	// k = 0.5
	if math.Abs(out.Point.Lat-11) > 1e-12 || math.Abs(out.Point.Lon-22) > 1e-12 {
		t.Errorf("expected midpoint (11,22), got %v", out.Point)
	}
	if math.Abs(out.Accuracy-math.Sqrt(2)) > 1e-12 {
		t.Errorf("expected accuracy sqrt(2), got %v", out.Accuracy)
	}
}

func TestReset(t *testing.T) {
	f := NewFilter(DefaultConfig())
	f.Update(1, 2, 3, t0)
	f.Reset()
	if f.Initialized() {
		t.Error("expected uninitialized after reset")
	}
	if _, ok := f.Current(); ok {
		t.Error("Current must report false after reset")
	}
	if !math.IsNaN(f.Accuracy()) {
		t.Error("expected NaN accuracy after reset")
	}
}
