// Package measure defines the measurement record shared by the satellite and
// inertial capture paths, and the ordered log the capture paths append to.
package measure

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Mode identifies which source produced a measurement.
type Mode int

const (
	// SatelliteFix points come from a GNSS fix corrected by the geoid model.
	SatelliteFix Mode = iota
	// Inertial points come from dead reckoning relative to a reference point.
	Inertial
)

// String returns the wire tag used by exporters and the HTTP API.
func (m Mode) String() string {
	switch m {
	case SatelliteFix:
		return "gps"
	case Inertial:
		return "imu"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseMode converts a wire tag back into a Mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "gps":
		return SatelliteFix, nil
	case "imu":
		return Inertial, nil
	default:
		return 0, fmt.Errorf("unknown measurement mode %q", s)
	}
}

func (m Mode) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

func (m *Mode) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseMode(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Point is an immutable measurement record. Height is orthometric (above the
// geoid); satellite heights are converted before a Point is built.
type Point struct {
	ID        string    `json:"id"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Height    float64   `json:"height"`
	Timestamp time.Time `json:"timestamp"`
	Accuracy  *float64  `json:"accuracy,omitempty"`
	Mode      Mode      `json:"mode"`
}

// NewPoint builds a Point with a fresh identifier. accuracy may be nil when the
// source gives no estimate.
func NewPoint(lat, lon, height float64, accuracy *float64, mode Mode, at time.Time) Point {
	var acc *float64
	if accuracy != nil {
		v := *accuracy
		acc = &v
	}
	return Point{
		ID:        uuid.NewString(),
		Latitude:  lat,
		Longitude: lon,
		Height:    height,
		Timestamp: at,
		Accuracy:  acc,
		Mode:      mode,
	}
}

// AccuracyOr returns the accuracy estimate, or def when there is none.
func (p Point) AccuracyOr(def float64) float64 {
	if p.Accuracy == nil {
		return def
	}
	return *p.Accuracy
}

func (p Point) String() string {
	return fmt.Sprintf("%s %s lat=%.7f lon=%.7f h=%.3f acc=%.2f",
		p.ID, p.Mode, p.Latitude, p.Longitude, p.Height, p.AccuracyOr(0))
}
