// Package filter smooths 3-axis inertial sensor streams before integration.
package filter

import "math"

// Axes is a sample in the sensor frame.
type Axes struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

func (a Axes) Add(b Axes) Axes { return Axes{a.X + b.X, a.Y + b.Y, a.Z + b.Z} }
func (a Axes) Sub(b Axes) Axes { return Axes{a.X - b.X, a.Y - b.Y, a.Z - b.Z} }
func (a Axes) Scale(k float64) Axes { return Axes{a.X * k, a.Y * k, a.Z * k} }
func (a Axes) Norm() float64 { return math.Sqrt(a.X*a.X + a.Y*a.Y + a.Z*a.Z) }
func (a Axes) IsFinite() bool { return isFinite(a.X) && isFinite(a.Y) && isFinite(a.Z) }
func isFinite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

// LowPass is a single-pole RC low-pass filter for one 3-axis channel. The
// zero value is not usable; construct with NewLowPass.
//
// LowPass is not safe for concurrent use. The inertial tracker owns one per
// channel and only touches it under its own lock.
type LowPass struct {
	cutoffHz float64
	rc       float64
	prev     Axes
	primed   bool
}

// NewLowPass returns a filter with the given cutoff frequency in Hz.
func NewLowPass(cutoffHz float64) *LowPass {
	return &LowPass{
		cutoffHz: cutoffHz,
		rc:       1 / (2 * math.Pi * cutoffHz),
	}
}

// CutoffHz returns the configured cutoff frequency.
func (f *LowPass) CutoffHz() float64 { return f.cutoffHz }

// Alpha returns the blend factor applied for a step of dt seconds.
func (f *LowPass) Alpha(dt float64) float64 {
	if dt <= 0 {
		return 0
	}
	return dt / (f.rc + dt)
}

// Filter blends sample into the filter state and returns the smoothed value.
// The first sample after construction or Reset passes through unchanged.
func (f *LowPass) Filter(sample Axes, dt float64) Axes {
	if !f.primed {
		f.prev = sample
		f.primed = true
		return sample
	}
	out := f.prev.Add(sample.Sub(f.prev).Scale(f.Alpha(dt)))
	f.prev = out
	return out
}

// Reset discards the filter history.
func (f *LowPass) Reset() {
	f.prev = Axes{}
	f.primed = false
}
