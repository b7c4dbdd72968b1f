package gnss

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/geomeasure/internal/monitoring"
	"github.com/banshee-data/geomeasure/internal/timeutil"
)

const (
	ggaGPS   = "$GPGGA,092750.000,4730.0000,N,01903.0000,E,1,8,1.03,120.5,M,41.2,M,,*55"
	ggaNoFix = "$GPGGA,092751.000,4730.0000,N,01903.0000,E,0,0,,,M,,M,,*70"
	gstMatch = "$GPGST,092750.000,1.2,0.9,0.6,35.0,0.3,0.4,0.8*5B"
	ggaRTK   = "$GNGGA,092752.000,4700.0000,N,01900.0000,E,4,12,0.6,150.25,M,43.75,M,1.0,0000*6B"
	rmc      = "$GPRMC,092750.000,A,4730.0000,N,01903.0000,E,0.02,31.66,191025,,,A*52"
)

var epoch = time.Date(2025, 10, 19, 9, 27, 50, 0, time.UTC)

func init() {
	monitoring.SetLogger(nil)
}

func TestParse_GGAWithHDOPAccuracy(t *testing.T) {
	p := NewParser(timeutil.NewMockClock(epoch))

	fix, ok, err := p.Parse(ggaGPS)
	require.NoError(t, err)
	require.True(t, ok)

	assert.InDelta(t, 47.5, fix.Latitude, 1e-9)
	assert.InDelta(t, 19.05, fix.Longitude, 1e-9)
	assert.InDelta(t, 161.7, fix.EllipsoidalHeight, 1e-9)
	require.NotNil(t, fix.Accuracy)
	assert.InDelta(t, 1.03*HDOPScale, *fix.Accuracy, 1e-9)
	assert.Equal(t, "1", fix.Quality)
	assert.Equal(t, int64(8), fix.Satellites)
	assert.Equal(t, epoch, fix.Time)
}

func TestParse_GSTRefinesAccuracy(t *testing.T) {
	p := NewParser(timeutil.NewMockClock(epoch))

	fix, ok, err := p.Parse(gstMatch)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, Fix{}, fix)

	fix, ok, err = p.Parse(ggaGPS)
	require.NoError(t, err)
	require.True(t, ok)
	require.NotNil(t, fix.Accuracy)
	assert.InDelta(t, 0.5, *fix.Accuracy, 1e-9)

	// Two seconds later the GST no longer applies.
	fix, ok, err = p.Parse(ggaRTK)
	require.NoError(t, err)
	require.True(t, ok)
	require.NotNil(t, fix.Accuracy)
	assert.InDelta(t, 0.6*HDOPScale, *fix.Accuracy, 1e-9)
	assert.InDelta(t, 194.0, fix.EllipsoidalHeight, 1e-9)
}

func TestParse_NoFix(t *testing.T) {
	p := NewParser(nil)
	_, ok, err := p.Parse(ggaNoFix)
	assert.ErrorIs(t, err, ErrNoFix)
	assert.False(t, ok)
}

func TestParse_IgnoresOtherSentences(t *testing.T) {
	p := NewParser(nil)
	_, ok, err := p.Parse(rmc)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestParse_Rejects(t *testing.T) {
	p := NewParser(nil)
	for _, line := range []string{
		"",
		"not nmea",
		"$GPGGA,092750.000,4730.0000,N,01903.0000,E,1,8,1.03,120.5,M,41.2,M,,*00",
	} {
		_, ok, err := p.Parse(line)
		assert.Error(t, err, "line %q", line)
		assert.False(t, ok)
	}
}

type fixRecorder struct {
	mu    sync.Mutex
	fixes []Fix
}

func (r *fixRecorder) UpdateFix(f Fix) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fixes = append(r.fixes, f)
}

func TestTrack(t *testing.T) {
	lines := make(chan string, 8)
	for _, l := range []string{
		gstMatch,
		ggaGPS,
		"0.0,0,0,-9.81,0,0,0,0,0,0",
		"$GPGGA,garbage",
		ggaNoFix,
		rmc,
		ggaRTK,
	} {
		lines <- l
	}
	close(lines)

	rec := &fixRecorder{}
	err := Track(context.Background(), NewParser(timeutil.NewMockClock(epoch)), lines, rec)
	require.NoError(t, err)

	require.Len(t, rec.fixes, 2)
	assert.InDelta(t, 0.5, rec.fixes[0].AccuracyOr(-1), 1e-9)
	assert.InDelta(t, 47.0, rec.fixes[1].Latitude, 1e-9)
}

func TestTrack_Cancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Track(ctx, NewParser(nil), make(chan string), &fixRecorder{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFixAccuracyOr(t *testing.T) {
	assert.Equal(t, 7.0, Fix{}.AccuracyOr(7))
	acc := 1.5
	assert.Equal(t, 1.5, Fix{Accuracy: &acc}.AccuracyOr(7))
}
