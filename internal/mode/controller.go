// Package mode selects which source, satellite fix or inertial dead
// reckoning, produces each captured measurement point.
package mode

import (
	"sync"
	"time"

	"github.com/banshee-data/geomeasure/internal/gnss"
	"github.com/banshee-data/geomeasure/internal/inertial"
	"github.com/banshee-data/geomeasure/internal/measure"
	"github.com/banshee-data/geomeasure/internal/monitoring"
	"github.com/banshee-data/geomeasure/internal/timeutil"
)

// DefaultDegradationThreshold is the satellite accuracy in metres above which
// switching to inertial mode is advised.
const DefaultDegradationThreshold = 5.0

// HeightModel answers geoid undulation lookups. *geoid.Model implements it.
type HeightModel interface {
	Interpolate(lat, lon float64) (float64, bool)
}

// Tracker is the inertial engine driven by the controller. *inertial.Tracker
// implements it.
type Tracker interface {
	Start(ref *measure.Point)
	SetReferencePoint(p measure.Point)
	Calibrate(known measure.Point) float64
	CurrentMeasurement() (measure.Point, bool)
	Stop()
	State() inertial.State
}

// Observer is notified after state changes. Callbacks run on the caller's
// goroutine after the controller lock is released.
type Observer interface {
	OnCapture(p measure.Point)
	OnDelete(id string)
	OnModeChange(m measure.Mode)
}

// Config holds controller tuning.
type Config struct {
	DegradationThreshold float64
}

// Status is a snapshot for API consumers.
type Status struct {
	Mode          measure.Mode   `json:"mode"`
	Fix           *gnss.Fix      `json:"fix,omitempty"`
	Height        *float64       `json:"height,omitempty"`
	GeoidFallback bool           `json:"geoid_fallback"`
	SwitchAdvised bool           `json:"switch_advised"`
	Points        int            `json:"points"`
	Inertial      inertial.State `json:"inertial"`
}

// Controller is the two-state machine owning the measurement log.
type Controller struct {
	cfg     Config
	heights HeightModel
	tracker Tracker
	log     *measure.Log
	clock   timeutil.Clock

	mu        sync.Mutex
	mode      measure.Mode
	fix       *gnss.Fix
	paused    bool
	observers []Observer

	fallbackLog *monitoring.Throttle
}

// NewController returns a controller in satellite mode. log may hold points
// restored from storage; nil starts an empty log.
func NewController(cfg Config, heights HeightModel, tracker Tracker, log *measure.Log, clock timeutil.Clock) *Controller {
	if cfg.DegradationThreshold <= 0 {
		cfg.DegradationThreshold = DefaultDegradationThreshold
	}
	if log == nil {
		log = measure.NewLog()
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Controller{
		cfg:         cfg,
		heights:     heights,
		tracker:     tracker,
		log:         log,
		clock:       clock,
		mode:        measure.SatelliteFix,
		fallbackLog: monitoring.NewThrottle(time.Minute),
	}
}

// AddObserver registers o for future notifications.
func (c *Controller) AddObserver(o Observer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observers = append(c.observers, o)
}

func (c *Controller) snapshotObservers() []Observer {
	return append([]Observer(nil), c.observers...)
}

// Mode returns the active mode.
func (c *Controller) Mode() measure.Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// Toggle switches between satellite and inertial mode and returns the new
// mode. Entering inertial mode arms the tracker from the last captured point;
// with an empty log the mode still flips but nothing can be captured until a
// reference is supplied.
func (c *Controller) Toggle() measure.Mode {
	c.mu.Lock()
	var next measure.Mode
	switch c.mode {
	case measure.SatelliteFix:
		c.paused = true
		c.fix = nil
		if last, ok := c.log.Last(); ok {
			c.tracker.Start(&last)
		} else {
			monitoring.Logf("mode: inertial mode entered without a prior point; tracker not armed")
		}
		next = measure.Inertial
	default:
		c.tracker.Stop()
		c.paused = false
		next = measure.SatelliteFix
	}
	c.mode = next
	observers := c.snapshotObservers()
	c.mu.Unlock()

	monitoring.Logf("mode: switched to %s", next)
	for _, o := range observers {
		o.OnModeChange(next)
	}
	return next
}

// StartInertialWithReference enters inertial mode anchored at ref, whatever
// the current mode.
func (c *Controller) StartInertialWithReference(ref measure.Point) {
	c.mu.Lock()
	changed := c.mode != measure.Inertial
	c.mode = measure.Inertial
	c.paused = true
	c.fix = nil
	c.tracker.Start(&ref)
	observers := c.snapshotObservers()
	c.mu.Unlock()

	if changed {
		monitoring.Logf("mode: switched to %s", measure.Inertial)
		for _, o := range observers {
			o.OnModeChange(measure.Inertial)
		}
	}
}

// CalibrateInertial recalibrates the tracker against a known point and returns
// the residual in metres. It reports false outside inertial mode.
func (c *Controller) CalibrateInertial(known measure.Point) (float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mode != measure.Inertial {
		return 0, false
	}
	return c.tracker.Calibrate(known), true
}

// UpdateFix records the latest satellite fix. Fixes are ignored while
// satellite updates are paused by inertial mode.
func (c *Controller) UpdateFix(fix gnss.Fix) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.paused {
		return
	}
	f := fix
	c.fix = &f
}

// CurrentFix returns the latest satellite fix, if any.
func (c *Controller) CurrentFix() (gnss.Fix, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fix == nil {
		return gnss.Fix{}, false
	}
	return *c.fix, true
}

// CurrentHeight returns the orthometric height of the latest fix.
func (c *Controller) CurrentHeight() (float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fix == nil {
		return 0, false
	}
	h, _ := c.orthometric(*c.fix)
	return h, true
}

// orthometric converts a fix height. Caller holds c.mu.
func (c *Controller) orthometric(fix gnss.Fix) (float64, bool) {
	n, ok := c.heights.Interpolate(fix.Latitude, fix.Longitude)
	if !ok {
		c.fallbackLog.Logf("geoid-fallback", "mode: no geoid value at %.6f,%.6f, using fallback undulation %.1f m",
			fix.Latitude, fix.Longitude, n)
	}
	return fix.EllipsoidalHeight - n, ok
}

// ShouldSwitchToInertial reports whether accuracy is degraded enough to
// advise inertial mode. The switch itself is left to the caller.
func (c *Controller) ShouldSwitchToInertial(accuracy float64) bool {
	return accuracy > c.cfg.DegradationThreshold
}

// CapturePoint records a measurement from the active source. It reports false,
// and records nothing, when satellite mode has no fix or the tracker has no
// reference.
func (c *Controller) CapturePoint() (measure.Point, bool) {
	c.mu.Lock()
	var (
		p  measure.Point
		ok bool
	)
	switch c.mode {
	case measure.SatelliteFix:
		if c.fix != nil {
			h, _ := c.orthometric(*c.fix)
			p = measure.NewPoint(c.fix.Latitude, c.fix.Longitude, h, c.fix.Accuracy, measure.SatelliteFix, c.clock.Now())
			ok = true
		}
	case measure.Inertial:
		p, ok = c.tracker.CurrentMeasurement()
	}
	if !ok {
		c.mu.Unlock()
		return measure.Point{}, false
	}
	c.log.Append(p)
	observers := c.snapshotObservers()
	c.mu.Unlock()

	monitoring.Logf("mode: captured %s", p)
	for _, o := range observers {
		o.OnCapture(p)
	}
	return p, true
}

// DeletePoint removes a point from the log.
func (c *Controller) DeletePoint(id string) bool {
	c.mu.Lock()
	ok := c.log.Delete(id)
	observers := c.snapshotObservers()
	c.mu.Unlock()

	if ok {
		for _, o := range observers {
			o.OnDelete(id)
		}
	}
	return ok
}

// Points returns the log in capture order.
func (c *Controller) Points() []measure.Point {
	return c.log.Points()
}

// Status returns a snapshot of mode, fix and tracker.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Status{
		Mode:     c.mode,
		Points:   c.log.Len(),
		Inertial: c.tracker.State(),
	}
	if c.fix != nil {
		f := *c.fix
		s.Fix = &f
		h, ok := c.orthometric(f)
		s.Height = &h
		s.GeoidFallback = !ok
		if f.Accuracy != nil {
			s.SwitchAdvised = c.ShouldSwitchToInertial(*f.Accuracy)
		}
	}
	return s
}
