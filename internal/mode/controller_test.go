package mode

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/geomeasure/internal/geoid"
	"github.com/banshee-data/geomeasure/internal/gnss"
	"github.com/banshee-data/geomeasure/internal/inertial"
	"github.com/banshee-data/geomeasure/internal/measure"
	"github.com/banshee-data/geomeasure/internal/monitoring"
	"github.com/banshee-data/geomeasure/internal/timeutil"
)

var epoch = time.Date(2025, 10, 19, 9, 0, 0, 0, time.UTC)

func init() {
	monitoring.SetLogger(nil)
}

type recorder struct {
	mu       sync.Mutex
	captures []measure.Point
	deletes  []string
	modes    []measure.Mode
}

func (r *recorder) OnCapture(p measure.Point) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.captures = append(r.captures, p)
}

func (r *recorder) OnDelete(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deletes = append(r.deletes, id)
}

func (r *recorder) OnModeChange(m measure.Mode) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.modes = append(r.modes, m)
}

type fixture struct {
	ctrl    *Controller
	tracker *inertial.Tracker
	clock   *timeutil.MockClock
	rec     *recorder
}

// newFixture uses a flat 40 m geoid around Budapest.
func newFixture(t *testing.T) fixture {
	t.Helper()
	bounds := geoid.Bounds{MinLat: 46, MaxLat: 48, MinLon: 18, MaxLon: 20}
	model, err := geoid.Load([]float32{40, 40, 40, 40}, 2, 2, bounds, geoid.DefaultNoData)
	require.NoError(t, err)

	clock := timeutil.NewMockClock(epoch)
	tracker := inertial.NewTracker(inertial.DefaultConfig(), clock)
	ctrl := NewController(Config{}, model, tracker, nil, clock)
	rec := &recorder{}
	ctrl.AddObserver(rec)
	return fixture{ctrl: ctrl, tracker: tracker, clock: clock, rec: rec}
}

func fixAt(lat, lon, ellipsoidal float64, accuracy *float64) gnss.Fix {
	return gnss.Fix{Latitude: lat, Longitude: lon, EllipsoidalHeight: ellipsoidal, Accuracy: accuracy, Quality: "1", Time: epoch}
}

func ptr(v float64) *float64 { return &v }

func TestCapture_SatelliteUsesOrthometricHeight(t *testing.T) {
	f := newFixture(t)

	_, ok := f.ctrl.CapturePoint()
	assert.False(t, ok, "no fix yet")

	f.ctrl.UpdateFix(fixAt(47, 19, 140, ptr(1.5)))
	p, ok := f.ctrl.CapturePoint()
	require.True(t, ok)

	assert.Equal(t, measure.SatelliteFix, p.Mode)
	assert.InDelta(t, 100.0, p.Height, 1e-9)
	assert.Equal(t, 47.0, p.Latitude)
	require.NotNil(t, p.Accuracy)
	assert.Equal(t, 1.5, *p.Accuracy)
	assert.Equal(t, epoch, p.Timestamp)
	assert.NotEmpty(t, p.ID)

	require.Len(t, f.ctrl.Points(), 1)
	require.Len(t, f.rec.captures, 1)
	assert.Equal(t, p.ID, f.rec.captures[0].ID)
}

func TestCapture_SatelliteOutsideGridUsesFallback(t *testing.T) {
	f := newFixture(t)
	f.ctrl.UpdateFix(fixAt(52.5, 13.4, 148.3, nil))

	p, ok := f.ctrl.CapturePoint()
	require.True(t, ok)
	assert.InDelta(t, 148.3-geoid.FallbackUndulation, p.Height, 1e-9)
	assert.Nil(t, p.Accuracy)

	st := f.ctrl.Status()
	assert.True(t, st.GeoidFallback)
}

func TestToggle_ArmsTrackerFromLastPoint(t *testing.T) {
	f := newFixture(t)
	f.ctrl.UpdateFix(fixAt(47, 19, 140, ptr(1)))
	last, ok := f.ctrl.CapturePoint()
	require.True(t, ok)

	assert.Equal(t, measure.Inertial, f.ctrl.Toggle())
	assert.Equal(t, measure.Inertial, f.ctrl.Mode())
	st := f.tracker.State()
	assert.True(t, st.Running)
	require.NotNil(t, st.Reference)
	assert.Equal(t, last.ID, st.Reference.ID)

	for i := 0; i < 60; i++ {
		f.tracker.OnSample(inertial.Sample{Accel: inertial.RestAccel, DT: 1.0 / 60})
	}
	p, ok := f.ctrl.CapturePoint()
	require.True(t, ok)
	assert.Equal(t, measure.Inertial, p.Mode)
	assert.InDelta(t, 47.0, p.Latitude, 1e-12)
	assert.InDelta(t, 19.0, p.Longitude, 1e-12)
	assert.InDelta(t, last.Height, p.Height, 1e-12)

	assert.Equal(t, measure.SatelliteFix, f.ctrl.Toggle())
	assert.False(t, f.tracker.State().Running)
	assert.Equal(t, []measure.Mode{measure.Inertial, measure.SatelliteFix}, f.rec.modes)
}

func TestToggle_WithoutPriorPointIsUncapturable(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, measure.Inertial, f.ctrl.Toggle())
	assert.False(t, f.tracker.State().Running)

	_, ok := f.ctrl.CapturePoint()
	assert.False(t, ok)
	assert.Empty(t, f.ctrl.Points())
	assert.Empty(t, f.rec.captures)
}

func TestFixesPausedInInertialMode(t *testing.T) {
	f := newFixture(t)
	f.ctrl.UpdateFix(fixAt(47, 19, 140, nil))
	_, ok := f.ctrl.CapturePoint()
	require.True(t, ok)

	f.ctrl.Toggle()
	_, ok = f.ctrl.CurrentFix()
	assert.False(t, ok, "fix cleared on entering inertial mode")
	f.ctrl.UpdateFix(fixAt(47.5, 19.5, 150, nil))
	_, ok = f.ctrl.CurrentFix()
	assert.False(t, ok, "fixes ignored while paused")

	f.ctrl.Toggle()
	_, ok = f.ctrl.CapturePoint()
	assert.False(t, ok, "needs a fresh fix after resuming")

	f.ctrl.UpdateFix(fixAt(47.5, 19.5, 150, nil))
	h, ok := f.ctrl.CurrentHeight()
	require.True(t, ok)
	assert.InDelta(t, 110.0, h, 1e-9)
}

func TestShouldSwitchToInertial(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		accuracy float64
		want     bool
	}{
		{0.5, false},
		{5, false},
		{5.01, true},
		{30, true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, f.ctrl.ShouldSwitchToInertial(tt.accuracy), "accuracy %v", tt.accuracy)
	}

	custom := NewController(Config{DegradationThreshold: 2}, geoid.Unloaded(), f.tracker, nil, nil)
	assert.True(t, custom.ShouldSwitchToInertial(3))
}

func TestStartInertialWithReferenceAndCalibrate(t *testing.T) {
	f := newFixture(t)

	_, ok := f.ctrl.CalibrateInertial(measure.Point{})
	assert.False(t, ok, "calibration only applies in inertial mode")

	ref := measure.NewPoint(47.0, 19.0, 100, nil, measure.SatelliteFix, epoch)
	f.ctrl.StartInertialWithReference(ref)
	assert.Equal(t, measure.Inertial, f.ctrl.Mode())
	assert.Equal(t, []measure.Mode{measure.Inertial}, f.rec.modes)

	known := measure.NewPoint(47.0009, 19.0, 100, nil, measure.SatelliteFix, epoch)
	residual, ok := f.ctrl.CalibrateInertial(known)
	require.True(t, ok)
	assert.InDelta(t, 100, residual, 0.5)

	p, ok := f.ctrl.CapturePoint()
	require.True(t, ok)
	assert.InDelta(t, known.Latitude, p.Latitude, 1e-9)
	require.NotNil(t, p.Accuracy)
	assert.Equal(t, 0.05, *p.Accuracy)

	// Re-anchoring while already inertial does not announce a mode change.
	f.ctrl.StartInertialWithReference(known)
	assert.Len(t, f.rec.modes, 1)
}

func TestDeletePoint(t *testing.T) {
	f := newFixture(t)
	f.ctrl.UpdateFix(fixAt(47, 19, 140, nil))
	a, _ := f.ctrl.CapturePoint()
	b, _ := f.ctrl.CapturePoint()

	assert.True(t, f.ctrl.DeletePoint(a.ID))
	assert.False(t, f.ctrl.DeletePoint(a.ID))
	assert.False(t, f.ctrl.DeletePoint("missing"))

	pts := f.ctrl.Points()
	require.Len(t, pts, 1)
	assert.Equal(t, b.ID, pts[0].ID)
	assert.Equal(t, []string{a.ID}, f.rec.deletes)
}

func TestStatus(t *testing.T) {
	f := newFixture(t)
	st := f.ctrl.Status()
	assert.Equal(t, measure.SatelliteFix, st.Mode)
	assert.Nil(t, st.Fix)
	assert.Nil(t, st.Height)

	f.ctrl.UpdateFix(fixAt(47, 19, 140, ptr(8)))
	st = f.ctrl.Status()
	require.NotNil(t, st.Fix)
	require.NotNil(t, st.Height)
	assert.InDelta(t, 100.0, *st.Height, 1e-9)
	assert.True(t, st.SwitchAdvised)
	assert.False(t, st.GeoidFallback)
	assert.Equal(t, 0, st.Points)
}

func TestRestoredLog(t *testing.T) {
	saved := measure.NewPoint(47.2, 19.2, 123, nil, measure.SatelliteFix, epoch)
	tracker := inertial.NewTracker(inertial.DefaultConfig(), nil)
	ctrl := NewController(Config{}, geoid.Unloaded(), tracker, measure.NewLog(saved), nil)

	ctrl.Toggle()
	st := tracker.State()
	require.NotNil(t, st.Reference)
	assert.Equal(t, saved.ID, st.Reference.ID)
}
