package gnss

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	nmea "github.com/adrianmo/go-nmea"

	"github.com/banshee-data/geomeasure/internal/monitoring"
	"github.com/banshee-data/geomeasure/internal/timeutil"
)

// gstMaxAge is how far apart a GST and a GGA may be, in receiver time, for the
// GST error estimate to apply to the GGA position.
const gstMaxAge = time.Second

// Parser decodes a receiver's NMEA stream. GGA sentences yield fixes; GST
// sentences refine the accuracy of the following or matching GGA. It is safe
// for concurrent use.
type Parser struct {
	clock timeutil.Clock

	mu        sync.Mutex
	gstTime   time.Duration
	gstSigma  float64
	gstPrimed bool
}

// NewParser returns a parser stamping fixes with clock. A nil clock uses the
// wall clock.
func NewParser(clock timeutil.Clock) *Parser {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Parser{clock: clock}
}

// Parse consumes one NMEA line. It returns the fix and true for a valid GGA,
// false for any other sentence, ErrNoFix for a GGA without a fix, and a parse
// error for lines go-nmea rejects.
func (p *Parser) Parse(line string) (Fix, bool, error) {
	s, err := nmea.Parse(strings.TrimSpace(line))
	if err != nil {
		return Fix{}, false, fmt.Errorf("failed to parse NMEA sentence: %w", err)
	}

	switch m := s.(type) {
	case nmea.GST:
		p.mu.Lock()
		p.gstTime = timeOfDay(m.Time)
		p.gstSigma = math.Hypot(m.LatDev, m.LonDev)
		p.gstPrimed = m.Time.Valid
		p.mu.Unlock()
		return Fix{}, false, nil
	case nmea.GGA:
		return p.fromGGA(m)
	default:
		return Fix{}, false, nil
	}
}

func (p *Parser) fromGGA(m nmea.GGA) (Fix, bool, error) {
	if m.FixQuality == nmea.Invalid || m.FixQuality == "" {
		return Fix{}, false, ErrNoFix
	}

	var accuracy *float64
	p.mu.Lock()
	if p.gstPrimed && m.Time.Valid && absDuration(timeOfDay(m.Time)-p.gstTime) <= gstMaxAge {
		sigma := p.gstSigma
		accuracy = &sigma
	}
	p.mu.Unlock()
	if accuracy == nil && m.HDOP > 0 {
		est := m.HDOP * HDOPScale
		accuracy = &est
	}

	return Fix{
		Latitude:  m.Latitude,
		Longitude: m.Longitude,
		// GGA altitude is above the receiver's own geoid; adding the
		// separation recovers the ellipsoidal height.
		EllipsoidalHeight: m.Altitude + m.Separation,
		Accuracy:          accuracy,
		Quality:           m.FixQuality,
		Satellites:        m.NumSatellites,
		Time:              p.clock.Now(),
	}, true, nil
}

func timeOfDay(t nmea.Time) time.Duration {
	return time.Duration(t.Hour)*time.Hour +
		time.Duration(t.Minute)*time.Minute +
		time.Duration(t.Second)*time.Second +
		time.Duration(t.Millisecond)*time.Millisecond
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

// FixSink receives fixes. mode.Controller is the production implementation.
type FixSink interface {
	UpdateFix(Fix)
}

// Track parses lines until ctx is done or lines is closed and forwards every
// valid fix to sink. Parse failures and lost fixes are logged at a limited
// rate.
func Track(ctx context.Context, p *Parser, lines <-chan string, sink FixSink) error {
	throttle := monitoring.NewThrottle(10 * time.Second)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if !strings.HasPrefix(strings.TrimSpace(line), "$") {
				continue
			}
			fix, ok, err := p.Parse(line)
			switch {
			case errors.Is(err, ErrNoFix):
				throttle.Logf("nofix", "gnss: %v", err)
			case err != nil:
				throttle.Logf("parse", "gnss: skipping line %q: %v", line, err)
			case ok:
				sink.UpdateFix(fix)
			}
		}
	}
}
