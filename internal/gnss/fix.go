// Package gnss turns NMEA 0183 output from a satellite receiver into fixes
// carrying ellipsoidal height and a horizontal accuracy estimate.
package gnss

import (
	"errors"
	"time"
)

// ErrNoFix is returned for GGA sentences reporting an invalid fix.
var ErrNoFix = errors.New("receiver reports no fix")

// HDOPScale converts HDOP into an approximate horizontal accuracy in metres
// when the receiver does not emit GST.
const HDOPScale = 5.0

// Fix is one satellite position. EllipsoidalHeight is above the WGS84
// ellipsoid; conversion to orthometric height is done by the geoid model.
type Fix struct {
	Latitude          float64   `json:"latitude"`
	Longitude         float64   `json:"longitude"`
	EllipsoidalHeight float64   `json:"ellipsoidal_height"`
	Accuracy          *float64  `json:"accuracy,omitempty"`
	Quality           string    `json:"quality"`
	Satellites        int64     `json:"satellites"`
	Time              time.Time `json:"time"`
}

// AccuracyOr returns the accuracy estimate, or def when there is none.
func (f Fix) AccuracyOr(def float64) float64 {
	if f.Accuracy == nil {
		return def
	}
	return *f.Accuracy
}
