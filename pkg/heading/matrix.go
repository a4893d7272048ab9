package heading

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/teslashibe/go-wayfinder/pkg/geo"
)

// Minimum magnitudes below which the acc+mag cross products are meaningless.
const (
	standardGravity       = 9.80665
	freeFallGravitySquare = 0.01 * standardGravity * standardGravity
	minHorizontalField    = 0.1
)

// axis is a signed device axis used to describe a coordinate remap.
type axis struct {
	index    int // 0=x, 1=y, 2=z
	negative bool
}

var (
	axisX      = axis{index: 0}
	axisZ      = axis{index: 2}
	axisMinusX = axis{index: 0, negative: true}
	axisMinusZ = axis{index: 2, negative: true}
)

func (a axis) unit() [3]float64 {
	var v [3]float64
	v[a.index] = 1
	if a.negative {
		v[a.index] = -1
	}
	return v
}

// remapAxes lists, per display rotation, which device axes become the new X
// and Y axes. Matches a phone held upright in front of the user.
var remapAxes = map[Rotation][2]axis{
	Rotation0:   {axisX, axisZ},
	Rotation90:  {axisZ, axisMinusX},
	Rotation180: {axisMinusX, axisMinusZ},
	Rotation270: {axisMinusZ, axisX},
}

// rotationFromVector converts a rotation-vector sample (x, y, z[, w]) into a
// 3x3 rotation matrix that maps device coordinates to world (ENU) coordinates.
func rotationFromVector(values []float64) (*mat.Dense, bool) {
	if len(values) < 3 {
		return nil, false
	}
	q1, q2, q3 := values[0], values[1], values[2]
	var q0 float64
	if len(values) >= 4 {
		q0 = values[3]
	} else {
		q0 = 1 - q1*q1 - q2*q2 - q3*q3
		if q0 > 0 {
			q0 = math.Sqrt(q0)
		} else {
			q0 = 0
		}
	}

	sqQ1 := 2 * q1 * q1
	sqQ2 := 2 * q2 * q2
	sqQ3 := 2 * q3 * q3
	q1q2 := 2 * q1 * q2
	q3q0 := 2 * q3 * q0
	q1q3 := 2 * q1 * q3
	q2q0 := 2 * q2 * q0
	q2q3 := 2 * q2 * q3
	q1q0 := 2 * q1 * q0

	return mat.NewDense(3, 3, []float64{
		1 - sqQ2 - sqQ3, q1q2 - q3q0, q1q3 + q2q0,
		q1q2 + q3q0, 1 - sqQ1 - sqQ3, q2q3 - q1q0,
		q1q3 - q2q0, q2q3 + q1q0, 1 - sqQ1 - sqQ2,
	}), true
}

// rotationFromAccMag builds the rotation matrix from a gravity reading and a
// geomagnetic reading. It returns false while the device is in free fall or
// close to the magnetic pole, where the result would be garbage.
func rotationFromAccMag(gravity, geomagnetic [3]float64) (*mat.Dense, bool) {
	ax, ay, az := gravity[0], gravity[1], gravity[2]
	if ax*ax+ay*ay+az*az < freeFallGravitySquare {
		return nil, false
	}
	ex, ey, ez := geomagnetic[0], geomagnetic[1], geomagnetic[2]

	// H = E x A points east.
	hx := ey*az - ez*ay
	hy := ez*ax - ex*az
	hz := ex*ay - ey*ax
	normH := math.Sqrt(hx*hx + hy*hy + hz*hz)
	if normH < minHorizontalField {
		return nil, false
	}
	hx, hy, hz = hx/normH, hy/normH, hz/normH

	invA := 1 / math.Sqrt(ax*ax+ay*ay+az*az)
	ax, ay, az = ax*invA, ay*invA, az*invA

	// M = A x H points north.
	mx := ay*hz - az*hy
	my := az*hx - ax*hz
	mz := ax*hy - ay*hx

	return mat.NewDense(3, 3, []float64{
		hx, hy, hz,
		mx, my, mz,
		ax, ay, az,
	}), true
}

// remap rewrites r so that the orientation is expressed relative to the screen
// for the given display rotation. Unknown rotations return r unchanged.
func remap(r *mat.Dense, rot Rotation) *mat.Dense {
	axes, ok := remapAxes[rot]
	if !ok {
		return mat.DenseCopyOf(r)
	}
	x := axes[0].unit()
	y := axes[1].unit()
	z := cross(x, y)

	p := mat.NewDense(3, 3, []float64{
		x[0], x[1], x[2],
		y[0], y[1], y[2],
		z[0], z[1], z[2],
	})

	var out mat.Dense
	out.Mul(r, p)
	return &out
}

// azimuth extracts the compass heading in [0,360) from a rotation matrix.
func azimuth(r mat.Matrix) float64 {
	return geo.Normalize(geo.Degrees(math.Atan2(r.At(0, 1), r.At(1, 1))))
}

func cross(a, b [3]float64) [3]float64 {
	return [3]float64{
		a[1]*b[2] - a[2]*b[1],
		a[2]*b[0] - a[0]*b[2],
		a[0]*b[1] - a[1]*b[0],
	}
}

// UprightRotationVector returns the rotation-vector sample (x, y, z, w) of a
// phone held upright in portrait whose screen faces the user while the user
// looks toward headingDeg.
func UprightRotationVector(headingDeg float64) []float64 {
	// q = qz(-heading) * qx(90)
	half := geo.Radians(-headingDeg) / 2
	zw, zz := math.Cos(half), math.Sin(half)
	xw, xx := math.Cos(math.Pi/4), math.Sin(math.Pi/4)

	return []float64{zw * xx, zz * xx, zz * xw, zw * xw}
}
