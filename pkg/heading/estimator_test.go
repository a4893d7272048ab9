package heading

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/teslashibe/go-wayfinder/pkg/geo"
)

// uprightFacing returns the rotation vector (x, y, z, w) of a phone held
// upright in portrait, screen towards the user, back camera pointing at the
// given compass heading.
func uprightFacing(headingDeg float64) []float64 {
	return UprightRotationVector(headingDeg)
}

// toDevice rotates a world (ENU) vector into device coordinates.
func toDevice(r *mat.Dense, world [3]float64) []float64 {
	var out mat.VecDense
	out.MulVec(r.T(), mat.NewVecDense(3, world[:]))
	return []float64{out.AtVec(0), out.AtVec(1), out.AtVec(2)}
}

func angleClose(a, b, tol float64) bool {
	return math.Abs(geo.ShortestDelta(a, b)) <= tol
}

func TestRotationVectorHeading(t *testing.T) {
	for _, want := range []float64{0, 45, 90, 180, 271} {
		e := NewEstimator(DefaultConfig(), Capabilities{RotationVector: true})
		got, ok := e.Process(Sample{Kind: SensorRotationVector, Values: uprightFacing(want)})
		if !ok {
			t.Fatalf("heading %v: expected accepted update", want)
		}
		if !angleClose(got, want, 0.01) {
			t.Errorf("expected heading %v, got %v", want, got)
		}
	}
}

func TestRotationVectorWithoutW(t *testing.T) {
	v := uprightFacing(90)
	e := NewEstimator(DefaultConfig(), Capabilities{RotationVector: true})
	got, ok := e.Process(Sample{Kind: SensorRotationVector, Values: v[:3]})
	if !ok || !angleClose(got, 90, 0.01) {
		t.Errorf("expected 90 from 3-component vector, got %v (ok=%v)", got, ok)
	}
}

func TestAccMagFallback(t *testing.T) {
	gravity := [3]float64{0, 0, 9.81}
	field := [3]float64{0, 22, -42} // north and down, like the northern hemisphere

	for _, want := range []float64{0, 90, 200} {
		r, _ := rotationFromVector(uprightFacing(want))
		acc := toDevice(r, gravity)
		mag := toDevice(r, field)

		e := NewEstimator(DefaultConfig(), Capabilities{Accelerometer: true, Magnetometer: true})

		if _, ok := e.Process(Sample{Kind: SensorAccelerometer, Values: acc}); ok {
			t.Fatal("accelerometer alone must not produce a heading")
		}
		got, ok := e.Process(Sample{Kind: SensorMagnetometer, Values: mag})
		if !ok {
			t.Fatalf("heading %v: expected update once both sensors reported", want)
		}
		if !angleClose(got, want, 0.01) {
			t.Errorf("expected heading %v, got %v", want, got)
		}
	}
}

func TestRotationVectorPreferred(t *testing.T) {
	e := NewEstimator(DefaultConfig(), Capabilities{RotationVector: true, Accelerometer: true, Magnetometer: true})
	e.Process(Sample{Kind: SensorAccelerometer, Values: []float64{0, 9.81, 0}})
	if _, ok := e.Process(Sample{Kind: SensorMagnetometer, Values: []float64{0, -40, -20}}); ok {
		t.Error("acc+mag must be ignored when a rotation vector sensor exists")
	}
}

func TestNoSensors(t *testing.T) {
	e := NewEstimator(DefaultConfig(), Capabilities{})
	if _, ok := e.Process(Sample{Kind: SensorRotationVector, Values: uprightFacing(10)}); ok {
		t.Error("expected no heading without sensors")
	}
	if _, ok := e.Heading(); ok {
		t.Error("expected no heading")
	}
}

func TestDisplayRotationRemap(t *testing.T) {
	// Phone held in landscape (rotated 90 degrees counter-clockwise), facing north:
	// device x points up, device y points west, screen faces south.
	r := mat.NewDense(3, 3, []float64{
		0, -1, 0,
		0, 0, -1,
		1, 0, 0,
	})
	if got := azimuth(remap(r, Rotation90)); !angleClose(got, 0, 1e-9) {
		t.Errorf("landscape north: expected 0, got %v", got)
	}

	// Each remap must stay a proper rotation.
	for _, rot := range []Rotation{Rotation0, Rotation90, Rotation180, Rotation270} {
		out := remap(r, rot)
		if d := mat.Det(out); math.Abs(d-1) > 1e-9 {
			t.Errorf("rotation %d: det = %v, want 1", rot, d)
		}
	}
}

func TestSmoothingWrapAround(t *testing.T) {
	cfg := DefaultConfig()
	e := NewEstimator(cfg, Capabilities{RotationVector: true})
	e.Update(359)

	got, ok := e.Update(2)
	if !ok {
		t.Fatal("expected accepted update")
	}
	// delta is +3, so smoothed moves by alpha*3 clockwise through north.
	want := geo.Normalize(359 + cfg.Alpha*3)
	if !angleClose(got, want, 1e-9) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestSmoothingMaxJump(t *testing.T) {
	cfg := DefaultConfig()
	limit := cfg.Alpha*180 + 1e-9

	for h1 := 0.0; h1 < 360; h1 += 7.5 {
		for h2 := 0.0; h2 < 360; h2 += 11.25 {
			e := NewEstimator(cfg, Capabilities{RotationVector: true})
			e.Update(h1)
			got, _ := e.Update(h2)
			if jump := math.Abs(geo.ShortestDelta(h1, got)); jump > limit {
				t.Fatalf("h1=%v h2=%v: jump %v exceeds %v", h1, h2, jump, limit)
			}
			if got < 0 || got >= 360 {
				t.Fatalf("heading out of range: %v", got)
			}
		}
	}
}

func TestSmoothingConverges(t *testing.T) {
	e := NewEstimator(DefaultConfig(), Capabilities{RotationVector: true})
	e.Update(350)
	var got float64
	for i := 0; i < 100; i++ {
		got, _ = e.Update(20)
	}
	if !angleClose(got, 20, 0.01) {
		t.Errorf("expected convergence to 20, got %v", got)
	}
}

func TestSpikeRejection(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SpikeThreshold = 45

	var calls []float64
	e := NewEstimator(cfg, Capabilities{RotationVector: true}, WithCallback(func(deg float64) {
		calls = append(calls, deg)
	}))

	e.Update(10)
	if _, ok := e.Update(100); ok {
		t.Error("expected 90 degree jump to be rejected")
	}
	if _, ok := e.Update(40); !ok {
		t.Error("expected 30 degree change to be accepted")
	}

	if len(calls) != 2 {
		t.Fatalf("expected callback twice (seed + accepted), got %d", len(calls))
	}
	accepted, rejected := e.Stats()
	if accepted != 2 || rejected != 1 {
		t.Errorf("expected 2 accepted / 1 rejected, got %d / %d", accepted, rejected)
	}
}

func TestSpikeFilterDisabledByDefault(t *testing.T) {
	e := NewEstimator(DefaultConfig(), Capabilities{RotationVector: true})
	e.Update(0)
	if _, ok := e.Update(179); !ok {
		t.Error("spike filter should be disabled by default")
	}
}

func TestReset(t *testing.T) {
	e := NewEstimator(DefaultConfig(), Capabilities{Accelerometer: true, Magnetometer: true})
	e.Update(120)
	e.Process(Sample{Kind: SensorAccelerometer, Values: []float64{0, 9.81, 0}})
	e.Reset()

	if _, ok := e.Heading(); ok {
		t.Error("expected heading cleared after reset")
	}
	// Only the magnetometer arrives after reset: still waiting for acc.
	if _, ok := e.Process(Sample{Kind: SensorMagnetometer, Values: []float64{0, -40, -20}}); ok {
		t.Error("expected fallback buffers cleared after reset")
	}
	// First update after reset seeds directly.
	if got, _ := e.Update(300); got != 300 {
		t.Errorf("expected seed 300 after reset, got %v", got)
	}
}
