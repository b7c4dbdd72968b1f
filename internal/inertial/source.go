package inertial

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/banshee-data/geomeasure/internal/filter"
	"github.com/banshee-data/geomeasure/internal/monitoring"
	"github.com/banshee-data/geomeasure/internal/timeutil"
)

// DefaultSampleInterval is the nominal IMU period (60 Hz).
const DefaultSampleInterval = 1.0 / 60.0

// sampleFields is the column count of an IMU line:
// t,ax,ay,az,gx,gy,gz,roll,pitch,yaw
const sampleFields = 10

// ErrMalformedSample is returned by ParseSample for lines that are not IMU
// samples.
var ErrMalformedSample = errors.New("malformed IMU sample")

// Sink consumes samples. *Tracker is the production implementation.
type Sink interface {
	OnSample(Sample) bool
}

// SampleSource produces samples until ctx is cancelled or the source is
// exhausted, at which point the channel is closed.
type SampleSource interface {
	Samples(ctx context.Context) <-chan Sample
}

// ParseSample decodes one IMU line. The timestamp is in seconds; DT is the
// gap to prev, or DefaultSampleInterval when prev is zero or not earlier.
func ParseSample(line string, prev time.Time) (Sample, error) {
	fields := strings.Split(strings.TrimSpace(line), ",")
	if len(fields) != sampleFields {
		return Sample{}, fmt.Errorf("%w: want %d fields, got %d", ErrMalformedSample, sampleFields, len(fields))
	}
	vals := make([]float64, sampleFields)
	for i, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return Sample{}, fmt.Errorf("%w: field %d: %v", ErrMalformedSample, i, err)
		}
		vals[i] = v
	}

	at := time.Unix(0, 0).Add(time.Duration(vals[0] * float64(time.Second))).UTC()
	dt := DefaultSampleInterval
	if !prev.IsZero() && at.After(prev) {
		dt = at.Sub(prev).Seconds()
	}
	return Sample{
		Accel:    filter.Axes{X: vals[1], Y: vals[2], Z: vals[3]},
		Gyro:     filter.Axes{X: vals[4], Y: vals[5], Z: vals[6]},
		Attitude: Attitude{Roll: vals[7], Pitch: vals[8], Yaw: vals[9]},
		DT:       dt,
		Time:     at,
	}, nil
}

// FormatSample renders s in the line format read by ParseSample.
func FormatSample(s Sample) string {
	t := float64(s.Time.UnixNano()) / float64(time.Second)
	vals := []float64{
		t,
		s.Accel.X, s.Accel.Y, s.Accel.Z,
		s.Gyro.X, s.Gyro.Y, s.Gyro.Z,
		s.Attitude.Roll, s.Attitude.Pitch, s.Attitude.Yaw,
	}
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = strconv.FormatFloat(v, 'f', -1, 64)
	}
	return strings.Join(parts, ",")
}

// LineSource adapts a stream of IMU text lines, typically a serial port
// subscription, into a SampleSource. Malformed lines are logged and skipped.
type LineSource struct {
	lines  <-chan string
	errLog *monitoring.Throttle
}

// NewLineSource wraps lines.
func NewLineSource(lines <-chan string) *LineSource {
	return &LineSource{lines: lines, errLog: monitoring.NewThrottle(10 * time.Second)}
}

// Samples implements SampleSource.
func (s *LineSource) Samples(ctx context.Context) <-chan Sample {
	out := make(chan Sample)
	go func() {
		defer close(out)
		var prev time.Time
		for {
			select {
			case <-ctx.Done():
				return
			case line, ok := <-s.lines:
				if !ok {
					return
				}
				if strings.TrimSpace(line) == "" {
					continue
				}
				sample, err := ParseSample(line, prev)
				if err != nil {
					s.errLog.Logf("parse", "inertial: skipping line %q: %v", line, err)
					continue
				}
				prev = sample.Time
				select {
				case out <- sample:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

// Simulator emits samples of a device moving with constant acceleration,
// RestAccel by default, on a clock ticker. Used by the dev server.
type Simulator struct {
	Clock    timeutil.Clock
	Interval time.Duration
	Accel    filter.Axes
	Attitude Attitude
}

// NewSimulator returns a resting 60 Hz simulator.
func NewSimulator(clock timeutil.Clock) *Simulator {
	return &Simulator{
		Clock:    clock,
		Interval: time.Second / 60,
		Accel:    RestAccel,
	}
}

// Samples implements SampleSource.
func (s *Simulator) Samples(ctx context.Context) <-chan Sample {
	out := make(chan Sample)
	ticker := s.Clock.NewTicker(s.Interval)
	go func() {
		defer close(out)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C():
				sample := Sample{
					Accel:    s.Accel,
					Attitude: s.Attitude,
					DT:       s.Interval.Seconds(),
					Time:     now,
				}
				select {
				case out <- sample:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

// Run drives sink from src until the source closes or ctx is done. It
// returns ctx.Err() on cancellation and nil when the source is exhausted.
func Run(ctx context.Context, src SampleSource, sink Sink) error {
	for sample := range src.Samples(ctx) {
		sink.OnSample(sample)
	}
	return ctx.Err()
}

// Feed drives sink from IMU text lines.
func Feed(ctx context.Context, lines <-chan string, sink Sink) error {
	return Run(ctx, NewLineSource(lines), sink)
}
