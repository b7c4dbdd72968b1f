package inertial

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/geomeasure/internal/filter"
	"github.com/banshee-data/geomeasure/internal/timeutil"
)

func TestParseSample(t *testing.T) {
	s, err := ParseSample("12.5,0.1,-0.2,-9.81,0.01,0.02,0.03,0.1,0.2,1.5", time.Time{})
	require.NoError(t, err)

	assert.Equal(t, filter.Axes{X: 0.1, Y: -0.2, Z: -9.81}, s.Accel)
	assert.Equal(t, filter.Axes{X: 0.01, Y: 0.02, Z: 0.03}, s.Gyro)
	assert.Equal(t, Attitude{Roll: 0.1, Pitch: 0.2, Yaw: 1.5}, s.Attitude)
	assert.Equal(t, DefaultSampleInterval, s.DT)
	assert.Equal(t, time.Unix(12, 500_000_000).UTC(), s.Time)

	next, err := ParseSample("12.55,0,0,-9.81,0,0,0,0,0,0", s.Time)
	require.NoError(t, err)
	assert.InDelta(t, 0.05, next.DT, 1e-9)

	// Clock went backwards: fall back to the nominal period.
	back, err := ParseSample("12.0,0,0,-9.81,0,0,0,0,0,0", s.Time)
	require.NoError(t, err)
	assert.Equal(t, DefaultSampleInterval, back.DT)
}

func TestParseSample_Malformed(t *testing.T) {
	for _, line := range []string{
		"",
		"1,2,3",
		"$GPGGA,092750.000,5321.6802,N,00630.3372,W,1,8,1.03,61.7,M,55.2,M,,*76",
		"1,2,3,4,5,6,7,8,9,x",
		"1,2,3,4,5,6,7,8,9,10,11",
	} {
		_, err := ParseSample(line, time.Time{})
		assert.ErrorIs(t, err, ErrMalformedSample, "line %q", line)
	}
}

func TestFormatSampleRoundTrip(t *testing.T) {
	in := Sample{
		Accel:    filter.Axes{X: 0.25, Y: -1.5, Z: -9.81},
		Gyro:     filter.Axes{Z: 0.125},
		Attitude: Attitude{Yaw: 0.5},
		Time:     time.Unix(100, 250_000_000).UTC(),
	}
	out, err := ParseSample(FormatSample(in), time.Time{})
	require.NoError(t, err)
	assert.Equal(t, in.Accel, out.Accel)
	assert.Equal(t, in.Gyro, out.Gyro)
	assert.Equal(t, in.Attitude, out.Attitude)
	assert.Equal(t, in.Time, out.Time)
}

type recordingSink struct {
	mu      sync.Mutex
	samples []Sample
}

func (r *recordingSink) OnSample(s Sample) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples = append(r.samples, s)
	return true
}

func TestFeed_SkipsBadLinesAndStopsOnClose(t *testing.T) {
	lines := make(chan string, 5)
	lines <- "0.0,0,0,-9.81,0,0,0,0,0,0"
	lines <- "garbage"
	lines <- ""
	lines <- "0.1,1,0,-9.81,0,0,0,0,0,0"
	close(lines)

	sink := &recordingSink{}
	err := Feed(context.Background(), lines, sink)
	require.NoError(t, err)

	require.Len(t, sink.samples, 2)
	assert.Equal(t, DefaultSampleInterval, sink.samples[0].DT)
	assert.InDelta(t, 0.1, sink.samples[1].DT, 1e-9)
	assert.Equal(t, 1.0, sink.samples[1].Accel.X)
}

func TestFeed_Cancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	lines := make(chan string)

	done := make(chan error, 1)
	go func() { done <- Feed(ctx, lines, &recordingSink{}) }()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Feed did not return after cancel")
	}
}

func TestFeed_DrivesTracker(t *testing.T) {
	tr, _ := newTestTracker(t)
	ref := reference()
	tr.Start(&ref)

	lines := make(chan string, 61)
	start := time.Unix(1000, 0).UTC()
	for i := 0; i < 61; i++ {
		lines <- FormatSample(Sample{Accel: RestAccel, Time: start.Add(time.Duration(i) * time.Second / 60)})
	}
	close(lines)

	require.NoError(t, Feed(context.Background(), lines, tr))
	st := tr.State()
	assert.Equal(t, uint64(61), st.Samples)
	assert.Equal(t, Vector{}, st.Position)
}

func TestSimulator(t *testing.T) {
	clock := timeutil.NewMockClock(epoch)
	sim := NewSimulator(clock)
	sim.Accel = RestAccel.Add(filter.Axes{X: 0.5})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	samples := sim.Samples(ctx)

	for i := 1; i <= 3; i++ {
		clock.Advance(sim.Interval)
		select {
		case s := <-samples:
			assert.Equal(t, sim.Accel, s.Accel)
			assert.InDelta(t, 1.0/60, s.DT, 1e-9)
			assert.Equal(t, epoch.Add(time.Duration(i)*sim.Interval), s.Time)
		case <-time.After(2 * time.Second):
			t.Fatalf("no sample after tick %d", i)
		}
	}

	cancel()
	select {
	case _, ok := <-samples:
		assert.False(t, ok, "channel closes after cancel")
	case <-time.After(2 * time.Second):
		t.Fatal("simulator did not stop")
	}
}
