package inertial

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/geomeasure/internal/filter"
)

// Vector is a position, velocity or acceleration in the local tangent plane,
// in metres (or m/s, m/s²) north, east and up of the reference point.
type Vector struct {
	North float64 `json:"north"`
	East  float64 `json:"east"`
	Up    float64 `json:"up"`
}

func (v Vector) Add(o Vector) Vector {
	return Vector{v.North + o.North, v.East + o.East, v.Up + o.Up}
}

func (v Vector) Sub(o Vector) Vector {
	return Vector{v.North - o.North, v.East - o.East, v.Up - o.Up}
}

func (v Vector) Scale(k float64) Vector {
	return Vector{v.North * k, v.East * k, v.Up * k}
}

// Norm returns the Euclidean length of v.
func (v Vector) Norm() float64 {
	return math.Sqrt(v.North*v.North + v.East*v.East + v.Up*v.Up)
}

// Attitude is the device orientation in radians.
type Attitude struct {
	Roll  float64 `json:"roll"`
	Pitch float64 `json:"pitch"`
	Yaw   float64 `json:"yaw"`
}

// IsFinite reports whether every angle is a finite number.
func (a Attitude) IsFinite() bool {
	return filter.Axes{X: a.Roll, Y: a.Pitch, Z: a.Yaw}.IsFinite()
}

// Gravity is the world-frame gravity vector removed from every sample.
var Gravity = Vector{Up: -9.81}

// RestAccel is the accelerometer reading of a level device at rest. Samples
// carrying it integrate to no motion.
var RestAccel = filter.Axes{Z: -9.81}

// RotationMatrix returns the sensor-to-world rotation for a, composed in
// Z-Y-X order: R = Rz(yaw) · Ry(pitch) · Rx(roll).
func RotationMatrix(a Attitude) *mat.Dense {
	sr, cr := math.Sincos(a.Roll)
	sp, cp := math.Sincos(a.Pitch)
	sy, cy := math.Sincos(a.Yaw)

	rx := mat.NewDense(3, 3, []float64{
		1, 0, 0,
		0, cr, -sr,
		0, sr, cr,
	})
	ry := mat.NewDense(3, 3, []float64{
		cp, 0, sp,
		0, 1, 0,
		-sp, 0, cp,
	})
	rz := mat.NewDense(3, 3, []float64{
		cy, -sy, 0,
		sy, cy, 0,
		0, 0, 1,
	})

	var zy, r mat.Dense
	zy.Mul(rz, ry)
	r.Mul(&zy, rx)
	return &r
}

// ToWorld rotates a sensor-frame reading into the world frame. Sensor X, Y
// and Z map to north, east and up once rotated.
func ToWorld(a Attitude, s filter.Axes) Vector {
	var w mat.VecDense
	w.MulVec(RotationMatrix(a), mat.NewVecDense(3, []float64{s.X, s.Y, s.Z}))
	return Vector{North: w.AtVec(0), East: w.AtVec(1), Up: w.AtVec(2)}
}
