// Package inertial implements short-range dead reckoning from IMU samples.
//
// A Tracker integrates filtered acceleration into a local north/east/up
// position relative to a reference point and projects it back to geodetic
// coordinates on demand. Error grows without bound, so the tracker can be
// recalibrated against a known point.
package inertial

import (
	"math"
	"sync"
	"time"

	"github.com/banshee-data/geomeasure/internal/filter"
	"github.com/banshee-data/geomeasure/internal/geodesy"
	"github.com/banshee-data/geomeasure/internal/measure"
	"github.com/banshee-data/geomeasure/internal/monitoring"
	"github.com/banshee-data/geomeasure/internal/timeutil"
)

// Config holds the tracker tuning parameters.
type Config struct {
	AccelCutoffHz      float64
	GyroCutoffHz       float64
	InitialAccuracy    float64 // metres, after Start
	CalibratedAccuracy float64 // metres, after Calibrate
	DriftGrowth        float64 // metres of accuracy lost per second
}

// DefaultConfig returns the field defaults.
func DefaultConfig() Config {
	return Config{
		AccelCutoffHz:      0.1,
		GyroCutoffHz:       0.1,
		InitialAccuracy:    0.1,
		CalibratedAccuracy: 0.05,
		DriftGrowth:        0.01,
	}
}

// Sample is one IMU reading. Accel is the raw device-frame accelerometer
// output in m/s² with gravity included (RestAccel at rest), Gyro the angular
// rate in rad/s and DT the seconds elapsed since the previous sample.
type Sample struct {
	Accel    filter.Axes
	Gyro     filter.Axes
	Attitude Attitude
	DT       float64
	Time     time.Time
}

func (s Sample) valid() bool {
	return s.Accel.IsFinite() && s.Gyro.IsFinite() && s.Attitude.IsFinite() &&
		!math.IsNaN(s.DT) && !math.IsInf(s.DT, 0) && s.DT >= 0
}

// State is a snapshot of the tracker for observers.
type State struct {
	Running      bool           `json:"running"`
	Calibrated   bool           `json:"calibrated"`
	Position     Vector         `json:"position"`
	Velocity     Vector         `json:"velocity"`
	Drift        Vector         `json:"drift_correction"`
	Attitude     Attitude       `json:"attitude"`
	RotationRate filter.Axes    `json:"rotation_rate"`
	Accuracy     float64        `json:"accuracy"`
	Reference    *measure.Point `json:"reference,omitempty"`
	LastSample   time.Time      `json:"last_sample"`
	Samples      uint64         `json:"samples"`
}

// Tracker is the dead-reckoning engine. All methods are safe for concurrent
// use; state changes are serialised by a single mutex so the sample stream and
// user actions never interleave within an update.
type Tracker struct {
	cfg   Config
	clock timeutil.Clock

	mu         sync.Mutex
	accel      *filter.LowPass
	gyro       *filter.LowPass
	running    bool
	position   Vector
	velocity   Vector
	drift      Vector
	attitude   Attitude
	rate       filter.Axes
	accuracy   float64
	ref        *measure.Point
	calibrated bool
	lastSample time.Time
	samples    uint64

	rejected *monitoring.Throttle
}

// NewTracker returns a stopped tracker. A nil clock uses the wall clock.
func NewTracker(cfg Config, clock timeutil.Clock) *Tracker {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Tracker{
		cfg:      cfg,
		clock:    clock,
		accel:    filter.NewLowPass(cfg.AccelCutoffHz),
		gyro:     filter.NewLowPass(cfg.GyroCutoffHz),
		rejected: monitoring.NewThrottle(10 * time.Second),
	}
}

// Start resets the state and begins accepting samples. ref may be nil, in
// which case no measurement can be produced until SetReferencePoint.
func (t *Tracker) Start(ref *measure.Point) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.position = Vector{}
	t.velocity = Vector{}
	t.drift = Vector{}
	t.attitude = Attitude{}
	t.rate = filter.Axes{}
	t.accuracy = t.cfg.InitialAccuracy
	t.ref = nil
	if ref != nil {
		r := *ref
		t.ref = &r
	}
	t.calibrated = ref != nil
	t.accel.Reset()
	t.gyro.Reset()
	t.lastSample = t.clock.Now()
	t.samples = 0
	t.running = true

	if ref != nil {
		monitoring.Logf("inertial: started from reference %s", ref)
	} else {
		monitoring.Logf("inertial: started without reference")
	}
}

// SetReferencePoint rebinds the anchor without interrupting sampling.
func (t *Tracker) SetReferencePoint(p measure.Point) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.ref = &p
	t.position = Vector{}
	t.drift = Vector{}
	t.calibrated = true
	monitoring.Logf("inertial: reference set to %s", p)
}

// OnSample integrates one IMU sample. It returns false when the tracker is
// stopped or the sample is rejected as non-finite.
func (t *Tracker) OnSample(s Sample) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.running {
		return false
	}
	if !s.valid() {
		t.rejected.Logf("invalid-sample", "inertial: rejected sample with non-finite values (dt=%v)", s.DT)
		return false
	}

	dt := s.DT
	accel := t.accel.Filter(s.Accel, dt)
	t.rate = t.gyro.Filter(s.Gyro, dt)

	net := ToWorld(s.Attitude, accel).Sub(Gravity)
	t.velocity = t.velocity.Add(net.Scale(dt))
	t.position = t.position.
		Add(t.velocity.Scale(dt)).
		Add(net.Scale(0.5 * dt * dt)).
		Add(t.drift.Scale(dt))
	t.accuracy += t.cfg.DriftGrowth * dt
	t.attitude = s.Attitude

	if s.Time.IsZero() {
		t.lastSample = t.clock.Now()
	} else {
		t.lastSample = s.Time
	}
	t.samples++
	return true
}

// Calibrate corrects the accumulated error against a point whose true
// position is known. The position snaps to the known point and the offset is
// kept as the drift correction applied on later samples. Velocity is left
// untouched. It returns the great-circle distance in metres between the
// estimate before calibration and the known point, or 0 without a reference.
func (t *Tracker) Calibrate(known measure.Point) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	var expected Vector
	var residual float64
	if t.ref != nil {
		expected = t.localOf(known)
		est := t.coordinateOf(t.position)
		residual = geodesy.Distance(est, geodesy.Coordinate{Latitude: known.Latitude, Longitude: known.Longitude})
	}

	t.drift = expected.Sub(t.position)
	t.position = expected
	t.accuracy = t.cfg.CalibratedAccuracy
	t.calibrated = true

	monitoring.Logf("inertial: calibrated against %s, residual %.2f m, drift correction %+v", known, residual, t.drift)
	return residual
}

// CurrentMeasurement projects the current position to a measurement point.
// It reports false when no reference point is set.
func (t *Tracker) CurrentMeasurement() (measure.Point, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.ref == nil {
		return measure.Point{}, false
	}
	c := t.coordinateOf(t.position)
	accuracy := t.accuracy
	return measure.NewPoint(c.Latitude, c.Longitude, t.ref.Height+t.position.Up, &accuracy, measure.Inertial, t.clock.Now()), true
}

// Stop freezes integration until the next Start.
func (t *Tracker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		monitoring.Logf("inertial: stopped after %d samples", t.samples)
	}
	t.running = false
}

// Running reports whether samples are being integrated.
func (t *Tracker) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

// State returns a snapshot of the tracker.
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := State{
		Running:      t.running,
		Calibrated:   t.calibrated,
		Position:     t.position,
		Velocity:     t.velocity,
		Drift:        t.drift,
		Attitude:     t.attitude,
		RotationRate: t.rate,
		Accuracy:     t.accuracy,
		LastSample:   t.lastSample,
		Samples:      t.samples,
	}
	if t.ref != nil {
		r := *t.ref
		s.Reference = &r
	}
	return s
}

// localOf returns the tangent-plane position of p. Caller holds t.mu and
// t.ref is set.
func (t *Tracker) localOf(p measure.Point) Vector {
	north, east := geodesy.ToLocal(t.refCoordinate(), geodesy.Coordinate{Latitude: p.Latitude, Longitude: p.Longitude})
	return Vector{North: north, East: east, Up: p.Height - t.ref.Height}
}

func (t *Tracker) coordinateOf(v Vector) geodesy.Coordinate {
	return geodesy.FromLocal(t.refCoordinate(), v.North, v.East)
}

func (t *Tracker) refCoordinate() geodesy.Coordinate {
	return geodesy.Coordinate{Latitude: t.ref.Latitude, Longitude: t.ref.Longitude}
}
